// Implements 'appendctl append'. The position is mandatory; a rejected
// append prints the error code so scripts can branch on it.
package main

import (
	"fmt"

	"github.com/glin-gogogo/go-net-appendstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	appendPosition    int64
	appendContentType string
)

var appendCmd = &cobra.Command{
	Use:   "append <key> [file]",
	Short: "Append a file or stdin to an object at a position",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		var req appendstore.AppendRequest
		if len(args) == 2 && args[1] != "-" {
			req = appendstore.NewAppendRequestFromFile(bucketOrDefault(), key, args[1])
		} else {
			req = appendstore.NewAppendRequest(bucketOrDefault(), key, cmd.InOrStdin(), nil)
		}
		if appendContentType != "" {
			req = req.WithMetadata(&appendstore.ObjectMeta{ContentType: appendContentType})
		}
		if cmd.Flags().Changed("position") {
			req = req.WithPosition(appendPosition)
		}

		res, err := client.AppendObject(cmd.Context(), req)
		if err != nil {
			return errors.Wrap(err, "Append failed")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "next-position: %s\n", res.NextPosition)
		fmt.Fprintf(out, "bytes-written: %d\n", res.BytesWritten)
		fmt.Fprintf(out, "etag: %s\n", res.ETag)
		if res.HasCRC64 {
			fmt.Fprintf(out, "crc64: %d\n", res.CRC64)
		}
		fmt.Fprintf(out, "request-id: %s\n", res.RequestID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(appendCmd)

	appendCmd.Flags().Int64VarP(&appendPosition, "position", "p", 0, "offset the object is expected to have (required)")
	appendCmd.Flags().StringVar(&appendContentType, "content-type", "", "content type applied when the append creates the object")
}

func bucketOrDefault() string {
	if bucketName != "" {
		return bucketName
	}
	return client.DefaultBucket()
}
