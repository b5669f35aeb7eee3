package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/blobstore"
	"github.com/roach88/provgraph/internal/cid"
)

// BlobResult is the output of blob put.
type BlobResult struct {
	CID   string `json:"cid"`
	Codec string `json:"codec"`
	Size  int    `json:"size"`
}

// String renders the CID alone.
func (r BlobResult) String() string { return r.CID }

// NewBlobCommand creates the blob command group.
func NewBlobCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Store and fetch content-addressed blobs",
	}
	cmd.AddCommand(newBlobPutCommand(rootOpts))
	cmd.AddCommand(newBlobGetCommand(rootOpts))
	cmd.AddCommand(newBlobExistsCommand(rootOpts))
	return cmd
}

func withBlobStore(rootOpts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, st blobstore.Store) error) error {
	e, err := newEnv(rootOpts)
	if err != nil {
		return err
	}
	st, err := e.openBlobStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cmd.Context(), st)
}

func newBlobPutCommand(rootOpts *RootOptions) *cobra.Command {
	var codecName, expected string
	cmd := &cobra.Command{
		Use:   "put <file|->",
		Short: "Store a file and print its CID",
		Long: `Store a file in the configured blob store and print its CID.
With --expected the content must hash to that CID.

Example:
  provgraph blob put model.bin
  provgraph blob put meta.json --codec json-jcs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := cid.ParseCodec(codecName)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --codec", err)
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return withBlobStore(rootOpts, cmd, func(ctx context.Context, st blobstore.Store) error {
				id, err := st.Put(ctx, data, codec, expected)
				if err != nil {
					return err
				}
				out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
				return out.Success(BlobResult{CID: id, Codec: cid.CodecName(codec), Size: len(data)})
			})
		},
	}
	cmd.Flags().StringVar(&codecName, "codec", "raw", "codec name or hex code")
	cmd.Flags().StringVar(&expected, "expected", "", "expected CID")
	return cmd
}

func newBlobGetCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <cid>",
		Short: "Write a blob to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlobStore(rootOpts, cmd, func(ctx context.Context, st blobstore.Store) error {
				data, err := st.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if output != "" {
					if err := os.WriteFile(output, data, 0o644); err != nil {
						return WrapExitError(ExitCommandError, "failed to write output", err)
					}
					return nil
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newBlobExistsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <cid>",
		Short: "Report whether a blob is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlobStore(rootOpts, cmd, func(ctx context.Context, st blobstore.Store) error {
				ok, err := st.Exists(ctx, args[0])
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(map[string]bool{"exists": ok})
			})
		},
	}
}
