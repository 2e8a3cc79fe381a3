package datastore

import (
	"github.com/glin-gogogo/go-net-appendstore/utils"
)

type WithStorageOption struct{}

func (o *WithStorageOption) WithRegion(region string) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.Region = region
		return nil
	}
}

func (o *WithStorageOption) WithEndpoint(endpoint string) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.Endpoint = endpoint
		return nil
	}
}

func (o *WithStorageOption) WithAccessKey(accessKey string) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.AccessKey = accessKey
		return nil
	}
}

func (o *WithStorageOption) WithSecretKey(secretKey string) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.SecretKey = secretKey
		return nil
	}
}

func (o *WithStorageOption) WithBucket(bucket string) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.Bucket = bucket

		if options.Bucket == "" {
			options.Bucket = utils.DefaultDataBucket
		}
		return nil
	}
}

func (o *WithStorageOption) WithRootDirectory(rootDirectory string) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.RootDirectory = rootDirectory

		if options.RootDirectory == "" {
			options.RootDirectory = utils.DefaultRootDirectory
		}
		return nil
	}
}

func (o *WithStorageOption) WithWorkers(workers int) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.Workers = workers

		if options.Workers <= 0 {
			options.Workers = utils.DefaultBatchWorkers
		}
		if options.Workers > utils.MaxBatchWorkers {
			options.Workers = utils.MaxBatchWorkers
		}
		return nil
	}
}

func (o *WithStorageOption) WithSSL(useSSL bool) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.UseSSL = useSSL
		return nil
	}
}

func (o *WithStorageOption) WithTimeouts(connect, socket int) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.ConnectTimeout = connect
		options.SocketTimeout = socket

		if options.ConnectTimeout <= 0 {
			options.ConnectTimeout = utils.DefaultConnectTimeout
		}
		if options.SocketTimeout <= 0 {
			options.SocketTimeout = utils.DefaultSocketTimeout
		}
		return nil
	}
}

func (o *WithStorageOption) WithMaxRetryCount(count int) utils.WithOption {
	return func(options *utils.DataStoreConfig) error {
		options.MaxRetryCount = count

		if options.MaxRetryCount < 0 {
			options.MaxRetryCount = utils.DefaultMaxRetryCount
		}
		return nil
	}
}

func newConfig(opts []utils.WithOption) (*utils.DataStoreConfig, error) {
	dsConfig := new(utils.DataStoreConfig)
	for _, o := range opts {
		if err := o(dsConfig); err != nil {
			return nil, err
		}
	}

	if dsConfig.Bucket == "" {
		dsConfig.Bucket = utils.DefaultDataBucket
	}
	if dsConfig.RootDirectory == "" {
		dsConfig.RootDirectory = utils.DefaultRootDirectory
	}
	return dsConfig, nil
}
