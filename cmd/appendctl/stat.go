package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/glin-gogogo/go-net-appendstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat <key>",
	Short: "Show an object's type, length and next append position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := client.GetObjectMetadata(cmd.Context(), bucketName, args[0])
		if err != nil {
			return errors.Wrap(err, "Stat failed")
		}
		printObject(cmd.OutOrStdout(), o)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Write an object's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := client.GetObject(cmd.Context(), bucketName, args[0])
		if err != nil {
			return errors.Wrap(err, "Get failed")
		}
		defer o.Body.Close()

		if _, err := io.Copy(cmd.OutOrStdout(), o.Body); err != nil {
			return errors.Wrap(err, "Failed to read object")
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return errors.Wrap(client.DeleteObject(cmd.Context(), bucketName, args[0]), "Delete failed")
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
}

func printObject(out io.Writer, o *appendstore.Object) {
	fmt.Fprintf(out, "key: %s\n", o.Key)
	fmt.Fprintf(out, "type: %s\n", o.Type)
	fmt.Fprintf(out, "length: %d\n", o.Length)
	fmt.Fprintf(out, "next-position: %s\n", o.NextPosition)
	fmt.Fprintf(out, "content-type: %s\n", o.ContentType)
	fmt.Fprintf(out, "etag: %s\n", o.ETag)

	keys := make([]string, 0, len(o.UserMetadata))
	for k := range o.UserMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "meta-%s: %s\n", k, o.UserMetadata[k])
	}
}
