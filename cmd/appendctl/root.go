// Root of command-line argument parsing for appendctl.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/glin-gogogo/go-net-appendstore"
	logging "github.com/ipfs/go-log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	logLevel   string
	bucketName string
	shardID    string

	client *appendstore.Client
)

var log = logging.Logger("appendctl")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "appendctl",
	Short:         "Positional appends against an object store",
	Long:          `Append to, write, inspect and list objects in an OBS, MinIO or in-memory store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range []string{"appendctl", "appendstore", "datastore"} {
			if err := logging.SetLogLevel(name, logLevel); err != nil {
				return errors.Wrap(err, "Invalid log level "+logLevel)
			}
		}

		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}

		var shard *appendstore.ShardIdV1
		if shardID != "" {
			if shard, err = appendstore.ParseShardFunc(shardID); err != nil {
				return errors.Wrap(err, "Invalid shard identifier")
			}
		}

		client, err = appendstore.Open(cmd.Context(), cfg, shard)
		if err != nil {
			return errors.Wrapf(err, "Failed to open %s store", cfg.Name)
		}
		log.Debugf("opened %s store at %s", cfg.Name, cfg.Endpoint)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if client != nil {
			if err := client.Close(); err != nil {
				log.Warnf("close store: %v", err)
			}
		}
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		if code, ok := appendstore.CodeOf(err); ok {
			fmt.Fprintf(os.Stderr, "error code: %s\n", code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./appendctl.yaml); name selects obs, minio or memory, and memory lasts only one run")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&bucketName, "bucket", "b", "", "bucket (default is the configured bucket)")
	rootCmd.PersistentFlags().StringVar(&shardID, "shard", "", "key layout, e.g. /repo/appendstore/shard/v1/next-to-last/2")
}
