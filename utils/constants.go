package utils

const (
	ServiceNameOBS    = "obs"
	ServiceNameMINIO  = "minio"
	ServiceNameMEMORY = "memory"
)

const (
	DefaultDataBucket    = "urchin-data"
	DefaultRootDirectory = "appendstore"
	MaxBatchWorkers      = 32
)

const (
	DefaultListMax        = 1000
	DefaultBatchWorkers   = 16
	DefaultConnectTimeout = 30
	DefaultSocketTimeout  = 120
	DefaultMaxRetryCount  = 3
	DefaultContentType    = "application/octet-stream"
	MaxObjectKeyLength    = 1023
)
