package main

import (
	"fmt"
	"io"
	"os"

	"github.com/glin-gogogo/go-net-appendstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var putContentType string

var putCmd = &cobra.Command{
	Use:   "put <key> [file]",
	Short: "Write a normal object from a file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src io.Reader = cmd.InOrStdin()
		length := int64(-1)

		if len(args) == 2 && args[1] != "-" {
			f, err := os.Open(args[1])
			if err != nil {
				return errors.Wrap(err, "Failed to open "+args[1])
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return errors.Wrap(err, "Failed to stat "+args[1])
			}
			src, length = f, info.Size()
		}

		var meta *appendstore.ObjectMeta
		if putContentType != "" {
			meta = &appendstore.ObjectMeta{ContentType: putContentType}
		}

		res, err := client.PutObject(cmd.Context(), bucketName, args[0], src, length, meta)
		if err != nil {
			return errors.Wrap(err, "Put failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "etag: %s\nrequest-id: %s\n", res.ETag, res.RequestID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().StringVar(&putContentType, "content-type", "", "content type of the object")
}
