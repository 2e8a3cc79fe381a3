package appendstore

import (
	"fmt"

	"github.com/glin-gogogo/go-net-appendstore/datastore"
	"github.com/glin-gogogo/go-net-appendstore/utils"
)

func WithOption(cfg utils.DataStoreConfig, dsOption utils.WithDataStoreOption) []utils.WithOption {
	withOpts := []utils.WithOption{dsOption.WithRegion(cfg.Region)}
	withOpts = append(withOpts, dsOption.WithEndpoint(cfg.Endpoint))
	withOpts = append(withOpts, dsOption.WithAccessKey(cfg.AccessKey))
	withOpts = append(withOpts, dsOption.WithSecretKey(cfg.SecretKey))
	withOpts = append(withOpts, dsOption.WithBucket(cfg.Bucket))
	withOpts = append(withOpts, dsOption.WithRootDirectory(cfg.RootDirectory))
	withOpts = append(withOpts, dsOption.WithWorkers(cfg.Workers))
	withOpts = append(withOpts, dsOption.WithSSL(cfg.UseSSL))
	withOpts = append(withOpts, dsOption.WithTimeouts(cfg.ConnectTimeout, cfg.SocketTimeout))
	withOpts = append(withOpts, dsOption.WithMaxRetryCount(cfg.MaxRetryCount))

	return withOpts
}

// New builds the backend named by cfg.Name.
func New(cfg utils.DataStoreConfig) (datastore.DataStorage, error) {
	opts := WithOption(cfg, &datastore.WithStorageOption{})

	switch cfg.Name {
	case utils.ServiceNameOBS:
		return datastore.NewOBS(opts...)
	case utils.ServiceNameMINIO:
		return datastore.NewMinio(opts...)
	case utils.ServiceNameMEMORY:
		return datastore.NewMemory(opts...)
	}

	return nil, fmt.Errorf("%w: %q", utils.ErrUnknownService, cfg.Name)
}
