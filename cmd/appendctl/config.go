package main

import (
	"strings"

	"github.com/glin-gogogo/go-net-appendstore/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "APPENDCTL"

var errNoBackend = errors.New("no backend configured (obs, minio, or memory, which lasts one run)")

var configDefaults = map[string]interface{}{
	"name":            "",
	"region":          "",
	"endpoint":        "",
	"access-key":      "",
	"secret-key":      "",
	"bucket":          utils.DefaultDataBucket,
	"root-directory":  utils.DefaultRootDirectory,
	"workers":         utils.DefaultBatchWorkers,
	"use-ssl":         false,
	"connect-timeout": utils.DefaultConnectTimeout,
	"socket-timeout":  utils.DefaultSocketTimeout,
	"max-retry-count": utils.DefaultMaxRetryCount,
}

// loadConfig reads appendctl.yaml (or path, when set) and lets APPENDCTL_*
// environment variables override it. The backend name has no default: the
// memory backend forgets everything when the process exits, so it has to be
// asked for.
func loadConfig(path string) (utils.DataStoreConfig, error) {
	var cfg utils.DataStoreConfig

	v := viper.New()
	for k, val := range configDefaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("appendctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.appendctl")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return cfg, errors.Wrap(err, "Failed to read config")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "Failed to decode config")
	}
	if cfg.Name == "" {
		return cfg, errors.Wrapf(errNoBackend, "set name in the config file or %s_NAME", envPrefix)
	}
	return cfg, nil
}
