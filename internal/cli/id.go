package cli

import (
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/statement"
)

// IDResult is the output of id compute and id validate.
type IDResult struct {
	ID      string `json:"id"`
	Codec   string `json:"codec"`
	Matches *bool  `json:"matches,omitempty"`
}

// String renders the identifier alone.
func (r IDResult) String() string { return r.ID }

// CIDInfo is the output of id parse.
type CIDInfo struct {
	CID      string `json:"cid"`
	Version  uint64 `json:"version"`
	Codec    string `json:"codec"`
	HashCode uint64 `json:"hash_code"`
	Digest   string `json:"digest"`
}

// NewIDCommand creates the id command group.
func NewIDCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "id",
		Short: "Compute and validate content identifiers",
	}
	cmd.AddCommand(newIDComputeCommand(rootOpts))
	cmd.AddCommand(newIDValidateCommand(rootOpts))
	cmd.AddCommand(newIDParseCommand(rootOpts))
	return cmd
}

func newIDComputeCommand(rootOpts *RootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "compute <file.json|->",
		Short: "Compute the identifier of a statement",
		Long: `Compute the identifier of a statement with the configured canonicalization.

The "@id" field is ignored when computing; "matches" reports whether it
equals the computed value. With --raw the input is any JSON value and the
result is its JSON-JCS CID.

Examples:
  provgraph id compute statement.json
  echo '{"a":1}' | provgraph id compute --raw -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			if raw {
				v, err := cid.DecodeGeneric(data)
				if err != nil {
					return WrapExitError(ExitCommandError, "input is not JSON", err)
				}
				id, _, err := cid.ComputeJSON(v)
				if err != nil {
					return err
				}
				return out.Success(IDResult{ID: id, Codec: cid.CodecName(cid.JSONJCS)})
			}

			e, err := newEnv(rootOpts)
			if err != nil {
				return err
			}
			s, err := statement.Decode(data)
			if err != nil {
				return err
			}
			id, err := e.addr.ComputeIDOf(s)
			if err != nil {
				return err
			}
			matches := cid.Equal(id, statement.ID(s))
			return out.Success(IDResult{ID: id, Codec: cid.CodecName(e.addr.Codec()), Matches: &matches})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "treat input as arbitrary JSON and compute its JSON-JCS CID")
	return cmd
}

func newIDValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var codecName, expected string
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check that a file's bytes hash to an expected CID",
		Long: `Check that a file's bytes hash to an expected CID.

Exits with status 1 and code IDENTITY_MISMATCH when the computed CID differs.

Example:
  provgraph id validate hello.txt --codec raw --expected bafkr4i...`,
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
			id, err := cid.Validate(data, codec, expected)
			if err != nil {
				return err
			}
			matches := true
			out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return out.Success(IDResult{ID: id, Codec: cid.CodecName(codec), Matches: &matches})
		},
	}
	cmd.Flags().StringVar(&codecName, "codec", "raw", "codec name or hex code")
	cmd.Flags().StringVar(&expected, "expected", "", "expected CID (required)")
	_ = cmd.MarkFlagRequired("expected")
	return cmd
}

func newIDParseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <cid>",
		Short: "Show the codec and digest of a CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := cid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid CID", err)
			}
			out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return out.Success(CIDInfo{
				CID:      cid.StripURN(args[0]),
				Version:  info.Version,
				Codec:    cid.CodecName(info.Codec),
				HashCode: info.HashCode,
				Digest:   hex.EncodeToString(info.Digest),
			})
		},
	}
}
