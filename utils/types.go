package utils

type DataStoreConfig struct {
	Name           string `mapstructure:"name"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access-key"`
	SecretKey      string `mapstructure:"secret-key"`
	Bucket         string `mapstructure:"bucket"`
	RootDirectory  string `mapstructure:"root-directory"`
	Workers        int    `mapstructure:"workers"`
	UseSSL         bool   `mapstructure:"use-ssl"`
	ConnectTimeout int    `mapstructure:"connect-timeout"`
	SocketTimeout  int    `mapstructure:"socket-timeout"`
	MaxRetryCount  int    `mapstructure:"max-retry-count"`
}

type WithDataStoreOption interface {
	WithRegion(region string) WithOption
	WithEndpoint(endpoint string) WithOption
	WithAccessKey(accessKey string) WithOption
	WithSecretKey(secretKey string) WithOption
	WithBucket(bucket string) WithOption
	WithRootDirectory(rootDirectory string) WithOption
	WithWorkers(workers int) WithOption
	WithSSL(useSSL bool) WithOption
	WithTimeouts(connect, socket int) WithOption
	WithMaxRetryCount(count int) WithOption
}

type WithOption func(options *DataStoreConfig) error
