package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	lsMarker string
	lsLimit  int64
)

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List objects",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}

		objects, err := client.ListObjects(cmd.Context(), bucketName, prefix, lsMarker, lsLimit)
		if err != nil {
			return errors.Wrap(err, "List failed")
		}
		for _, o := range objects {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %12d  %s\n", o.Type, o.Length, o.Key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().StringVar(&lsMarker, "marker", "", "list keys after this one")
	lsCmd.Flags().Int64Var(&lsLimit, "limit", 0, "maximum number of keys (default 1000)")
}
