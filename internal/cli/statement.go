package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/statement"
)

// StatementCreateOptions holds flags for statement create.
type StatementCreateOptions struct {
	*RootOptions
	RegisteredBy string
	Timestamp    string

	Subject      string
	Association  string
	Data         []string
	Metadata     string
	MetadataJSON string
	StoredOn     string
	OperatedBy   string
	Computation  string
	Input        []string
	Output       []string
	ExecutedOn   string
	Entity       []string
	Document     string
	DID          string

	Register bool
	Graph    string
}

// RegisterResult summarises a statement register run.
type RegisterResult struct {
	Registered []string `json:"registered"`
	Graph      string   `json:"graph,omitempty"`
}

// NewStatementCommand creates the statement command group.
func NewStatementCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Create, register and fetch provenance statements",
	}
	cmd.AddCommand(newStatementCreateCommand(rootOpts))
	cmd.AddCommand(newStatementRegisterCommand(rootOpts))
	cmd.AddCommand(newStatementGetCommand(rootOpts))
	cmd.AddCommand(newStatementVerifyCommand(rootOpts))
	return cmd
}

func newStatementCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatementCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <association|data|metadata|storage|computation|entity|governance|did>",
		Short: "Build a statement and print it",
		Long: `Build a statement with a computed identifier and print it.

Bare CIDs are prefixed with "urn:cid:" and entity UUIDs with "urn:uuid:".
With --metadata-json the document is canonicalized, stored in the blob
store and referenced by its JSON-JCS CID.

Credentials and attested DIDs are registered from JSON files with
"statement register".

Examples:
  provgraph statement create data --data bafkr4i... --registered-by did:key:z6Mk...
  provgraph statement create computation --input a --output b --operated-by did:key:op --registered-by did:key:me
  provgraph statement create metadata --subject bafkr4i... --metadata-json '{"name":"model"}' --registered-by did:key:me --register --graph <id>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatementCreate(cmd.Context(), opts, args[0], cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.RegisteredBy, "registered-by", "", "DID of the registrant (required)")
	_ = cmd.MarkFlagRequired("registered-by")
	f.StringVar(&opts.Timestamp, "timestamp", "", "RFC 3339 timestamp (defaults to now)")
	f.StringVar(&opts.Subject, "subject", "", "subject identifier")
	f.StringVar(&opts.Association, "association", "", "associated identifier")
	f.StringSliceVar(&opts.Data, "data", nil, "data CIDs")
	f.StringVar(&opts.Metadata, "metadata", "", "metadata document CID")
	f.StringVar(&opts.MetadataJSON, "metadata-json", "", "metadata document as JSON")
	f.StringVar(&opts.StoredOn, "stored-on", "", "storage location identifier")
	f.StringVar(&opts.OperatedBy, "operated-by", "", "operator DID")
	f.StringVar(&opts.Computation, "computation", "", "computation CID")
	f.StringSliceVar(&opts.Input, "input", nil, "input CIDs")
	f.StringSliceVar(&opts.Output, "output", nil, "output CIDs")
	f.StringVar(&opts.ExecutedOn, "executed-on", "", "DID of the executing host")
	f.StringSliceVar(&opts.Entity, "entity", nil, "entity UUIDs")
	f.StringVar(&opts.Document, "document", "", "governance document identifier")
	f.StringVar(&opts.DID, "did", "", "DID to register")
	f.BoolVar(&opts.Register, "register", false, "also register the statement")
	f.StringVar(&opts.Graph, "graph", "", "graph to link a registered statement to")

	return cmd
}

func runStatementCreate(ctx context.Context, opts *StatementCreateOptions, kind string, cmd *cobra.Command) error {
	e, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	b := e.builder()

	var s statement.Statement
	switch statement.Kind(kind) {
	case statement.KindAssociation:
		s, err = b.NewAssociation(opts.Subject, opts.Association, opts.RegisteredBy, opts.Timestamp)
	case statement.KindData:
		s, err = b.NewData(opts.Data, opts.RegisteredBy, opts.Timestamp)
	case statement.KindMetadata:
		s, err = createMetadata(ctx, e, opts)
	case statement.KindStorage:
		s, err = b.NewStorage(firstOf(opts.Data), opts.StoredOn, opts.OperatedBy, opts.RegisteredBy, opts.Timestamp)
	case statement.KindComputation:
		s, err = b.NewComputation(statement.ComputationSpec{
			Computation: opts.Computation,
			Input:       opts.Input,
			Output:      opts.Output,
			OperatedBy:  opts.OperatedBy,
			ExecutedOn:  opts.ExecutedOn,
		}, opts.RegisteredBy, opts.Timestamp)
	case statement.KindEntity:
		s, err = b.NewEntity(opts.Entity, opts.RegisteredBy, opts.Timestamp)
	case statement.KindGovernance:
		s, err = b.NewGovernance(opts.Subject, opts.Document, opts.RegisteredBy, opts.Timestamp)
	case statement.KindDid:
		s, err = b.NewDid(opts.DID, nil, opts.RegisteredBy, opts.Timestamp)
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("cannot create %q statements from flags", kind))
	}
	if err != nil {
		return err
	}

	if opts.Register {
		gs, err := e.openGraphStore()
		if err != nil {
			return err
		}
		defer gs.Close()
		if err := gs.Register(ctx, s, opts.Graph); err != nil {
			return err
		}
	}

	return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(s)
}

func createMetadata(ctx context.Context, e *env, opts *StatementCreateOptions) (statement.Statement, error) {
	b := e.builder()
	if opts.MetadataJSON == "" {
		return b.NewMetadata(opts.Subject, opts.Metadata, opts.RegisteredBy, opts.Timestamp)
	}

	doc, err := cid.DecodeGeneric([]byte(opts.MetadataJSON))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --metadata-json", err)
	}
	s, canonical, err := b.NewMetadataFromJSON(opts.Subject, doc, opts.RegisteredBy, opts.Timestamp)
	if err != nil {
		return nil, err
	}
	blobs, err := e.openBlobStore()
	if err != nil {
		return nil, err
	}
	defer blobs.Close()
	if _, err := blobs.Put(ctx, canonical, cid.JSONJCS, s.Metadata); err != nil {
		return nil, err
	}
	return s, nil
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func newStatementRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var graphID string
	cmd := &cobra.Command{
		Use:   "register <file.json|->",
		Short: "Register statements from a JSON file",
		Long: `Register one statement or an array of statements.

Every statement is verified against its "@id" before it is stored.
Graph-scoped statements are linked to --graph; global statements
(governance, DIDs, credentials) are stored without a graph.

Example:
  provgraph statement register statements.json --graph 6f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			sts, err := decodeStatements(data)
			if err != nil {
				return err
			}

			e, err := newEnv(rootOpts)
			if err != nil {
				return err
			}
			gs, err := e.openGraphStore()
			if err != nil {
				return err
			}
			defer gs.Close()

			result := RegisterResult{Registered: []string{}, Graph: graphID}
			for _, s := range sts {
				if err := gs.Register(cmd.Context(), s, graphID); err != nil {
					return err
				}
				result.Registered = append(result.Registered, statement.ID(s))
			}
			return newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(result)
		},
	}
	cmd.Flags().StringVar(&graphID, "graph", "", "graph id to link statements to")
	return cmd
}

func newStatementGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a stored statement by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(rootOpts)
			if err != nil {
				return err
			}
			gs, err := e.openGraphStore()
			if err != nil {
				return err
			}
			defer gs.Close()

			s, err := gs.GetStatement(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(s)
		},
	}
}

func newStatementVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file.json|->",
		Short: "Check statements against their identifiers without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			sts, err := decodeStatements(data)
			if err != nil {
				return err
			}
			e, err := newEnv(rootOpts)
			if err != nil {
				return err
			}

			verified := make([]string, 0, len(sts))
			for _, s := range sts {
				if err := statement.Verify(e.addr, s); err != nil {
					return err
				}
				verified = append(verified, statement.ID(s))
			}
			if len(verified) == 0 {
				return errs.NewMalformed("no statements in input")
			}
			return newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(map[string]any{"verified": verified})
		},
	}
}
