package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/graphstore"
)

// AssociationsResult is the output of graph associations.
type AssociationsResult struct {
	Identifier string   `json:"identifier"`
	Direction  string   `json:"direction"`
	Values     []string `json:"values"`
}

// NewGraphCommand creates the graph command group.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Manage graphs and retrieve their statement closures",
	}
	cmd.AddCommand(newGraphCreateCommand(rootOpts))
	cmd.AddCommand(newGraphGetCommand(rootOpts))
	cmd.AddCommand(newGraphListCommand(rootOpts))
	cmd.AddCommand(newGraphChildrenCommand(rootOpts))
	cmd.AddCommand(newGraphAncestorsCommand(rootOpts))
	cmd.AddCommand(newGraphAssociateCommand(rootOpts))
	cmd.AddCommand(newGraphAssociationsCommand(rootOpts))
	return cmd
}

// withGraphStore opens the graph store, runs fn and prints its result.
func withGraphStore(rootOpts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, gs *graphstore.Store) (any, error)) error {
	e, err := newEnv(rootOpts)
	if err != nil {
		return err
	}
	gs, err := e.openGraphStore()
	if err != nil {
		return err
	}
	defer gs.Close()

	result, err := fn(cmd.Context(), gs)
	if err != nil {
		return err
	}
	return newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(result)
}

func newGraphCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var parent, id string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a graph",
		Long: `Create a graph, optionally below a parent.

A random UUID is assigned unless --id is given.

Examples:
  provgraph graph create training
  provgraph graph create fine-tune --parent 6f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraphStore(rootOpts, cmd, func(ctx context.Context, gs *graphstore.Store) (any, error) {
				return gs.CreateGraph(ctx, graphstore.Graph{ID: id, Name: args[0], ParentID: parent})
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent graph id")
	cmd.Flags().StringVar(&id, "id", "", "graph id (defaults to a new UUID)")
	return cmd
}

func newGraphGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <graph-id>",
		Short: "Retrieve a graph with the closure of its statements",
		Long: `Retrieve a graph with every statement visible to it.

The closure starts from the computations linked to the graph, adds the
annotations of referenced identifiers from the graph and its ancestors, and
finishes with credentials and registrant DIDs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraphStore(rootOpts, cmd, func(ctx context.Context, gs *graphstore.Store) (any, error) {
				return gs.RetrieveGraph(ctx, args[0])
			})
		},
	}
}

func newGraphListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraphStore(rootOpts, cmd, func(ctx context.Context, gs *graphstore.Store) (any, error) {
				return nonNilGraphs(gs.ListGraphs(ctx))
			})
		},
	}
}

func newGraphChildrenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "children <graph-id>",
		Short: "List every descendant of a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraphStore(rootOpts, cmd, func(ctx context.Context, gs *graphstore.Store) (any, error) {
				return nonNilGraphs(gs.ChildGraphs(ctx, args[0]))
			})
		},
	}
}

func newGraphAncestorsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ancestors <graph-id>",
		Short: "List a graph and its ancestors, closest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraphStore(rootOpts, cmd, func(ctx context.Context, gs *graphstore.Store) (any, error) {
				return nonNilGraphs(gs.Ancestors(ctx, args[0]))
			})
		},
	}
}

func newGraphAssociateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "associate <statement-id> <graph-id>",
		Short: "Link a stored statement to a graph",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraphStore(rootOpts, cmd, func(ctx context.Context, gs *graphstore.Store) (any, error) {
				if err := gs.AssociateStatementToGraph(ctx, args[0], args[1]); err != nil {
					return nil, err
				}
				return gs.GraphsForStatement(ctx, args[0])
			})
		},
	}
}

func newGraphAssociationsCommand(rootOpts *RootOptions) *cobra.Command {
	var reverse bool
	cmd := &cobra.Command{
		Use:   "associations <identifier>",
		Short: "List associations registered for a subject",
		Long: `List the associations registered for a subject, or with --reverse the
subjects registered for an association.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraphStore(rootOpts, cmd, func(ctx context.Context, gs *graphstore.Store) (any, error) {
				result := AssociationsResult{Identifier: args[0], Direction: "associations"}
				var err error
				if reverse {
					result.Direction = "subjects"
					result.Values, err = gs.SubjectsForAssociation(ctx, args[0])
				} else {
					result.Values, err = gs.AssociationsForSubject(ctx, args[0])
				}
				if result.Values == nil {
					result.Values = []string{}
				}
				return result, err
			})
		},
	}
	cmd.Flags().BoolVar(&reverse, "reverse", false, "list subjects of an association instead")
	return cmd
}

func nonNilGraphs(graphs []graphstore.Graph, err error) ([]graphstore.Graph, error) {
	if err != nil {
		return nil, err
	}
	if graphs == nil {
		graphs = []graphstore.Graph{}
	}
	return graphs, nil
}
