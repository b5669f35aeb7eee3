package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/attrstore"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/statement"
)

// DeleteResult is the output of attr delete.
type DeleteResult struct {
	Deleted int64 `json:"deleted"`
}

// NewAttrCommand creates the attr command group.
func NewAttrCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attr",
		Short: "Index statements with attributes and query them",
		Long: `Index statements with attributes and query them with filter expressions.

Filters use a small expression language:
  statementType == "DataRegistration"
  attributes.stage == "train" && attributes.epoch > 3
  !(attributes.owner == "alice") || attributes.size < 1e6

Supported forms:
  ` + strings.Join(filter.Supported, "\n  "),
	}
	cmd.AddCommand(newAttrRegisterCommand(rootOpts))
	cmd.AddCommand(newAttrQueryCommand(rootOpts))
	cmd.AddCommand(newAttrGetCommand(rootOpts))
	cmd.AddCommand(newAttrUniqueCommand(rootOpts))
	cmd.AddCommand(newAttrUpdateCommand(rootOpts))
	cmd.AddCommand(newAttrRemoveCommand(rootOpts))
	cmd.AddCommand(newAttrDeleteCommand(rootOpts))
	cmd.AddCommand(newAttrCountCommand(rootOpts))
	return cmd
}

// withAttrStore opens the attribute store, runs fn and prints its result.
func withAttrStore(rootOpts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, st attrstore.Store) (any, error)) error {
	e, err := newEnv(rootOpts)
	if err != nil {
		return err
	}
	st, err := e.openAttrStore()
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := fn(cmd.Context(), st)
	if err != nil {
		return err
	}
	return newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(result)
}

func newAttrRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var attrs string
	cmd := &cobra.Command{
		Use:   "register <file.json|->",
		Short: "Index statements with attributes",
		Long: `Index one statement or an array of statements with the same attributes.
An existing entry for the same id is replaced.

Example:
  provgraph attr register data.json --attrs '{"stage":"train","epoch":4}'`,
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
			patch, err := parseObject("attrs", attrs)
			if err != nil {
				return err
			}
			return withAttrStore(rootOpts, cmd, func(ctx context.Context, st attrstore.Store) (any, error) {
				result := RegisterResult{Registered: []string{}}
				for _, s := range sts {
					if err := st.Register(ctx, s, patch); err != nil {
						return nil, err
					}
					result.Registered = append(result.Registered, statement.ID(s))
				}
				return result, nil
			})
		},
	}
	cmd.Flags().StringVar(&attrs, "attrs", "", "attributes as a JSON object")
	return cmd
}

func newAttrQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query [expression]",
		Short: "Retrieve statements matching a filter",
		Long: `Retrieve the statements matching a filter expression, ordered by id.
Without an expression every indexed statement is returned.

Example:
  provgraph attr query 'attributes.stage == "train" && attributes.epoch > 3'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := ""
			if len(args) == 1 {
				expr = args[0]
			}
			return withAttrStore(rootOpts, cmd, func(ctx context.Context, st attrstore.Store) (any, error) {
				sts, attrs, err := attrstore.RetrieveQuery(ctx, st, expr)
				if err != nil {
					return nil, err
				}
				records := make([]attrstore.Record, 0, len(sts))
				for _, s := range sts {
					records = append(records, attrstore.Record{Statement: s, Attributes: attrs[statement.ID(s)]})
				}
				return records, nil
			})
		},
	}
}

func newAttrGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch one indexed statement with its attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAttrStore(rootOpts, cmd, func(ctx context.Context, st attrstore.Store) (any, error) {
				return st.Get(ctx, args[0])
			})
		},
	}
}

func newAttrUniqueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unique",
		Short: "List the distinct values of every attribute key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAttrStore(rootOpts, cmd, func(ctx context.Context, st attrstore.Store) (any, error) {
				return st.UniqueAttributes(ctx)
			})
		},
	}
}

func newAttrUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var attrs string
	cmd := &cobra.Command{
		Use:   "update <id,id,...>",
		Short: "Merge attributes into indexed statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseObject("attrs", attrs)
			if err != nil {
				return err
			}
			if len(patch) == 0 {
				return NewExitError(ExitCommandError, "--attrs must not be empty")
			}
			ids := splitList(args[0])
			return withAttrStore(rootOpts, cmd, func(ctx context.Context, st attrstore.Store) (any, error) {
				if err := st.UpdateAttributes(ctx, ids, patch); err != nil {
					return nil, err
				}
				return map[string]any{"updated": ids}, nil
			})
		},
	}
	cmd.Flags().StringVar(&attrs, "attrs", "", "attributes to merge as a JSON object (required)")
	_ = cmd.MarkFlagRequired("attrs")
	return cmd
}

func newAttrRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	var keys string
	cmd := &cobra.Command{
		Use:   "remove <id,id,...>",
		Short: "Remove attribute keys from indexed statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := splitList(args[0])
			keyList := splitList(keys)
			return withAttrStore(rootOpts, cmd, func(ctx context.Context, st attrstore.Store) (any, error) {
				if err := st.RemoveAttributes(ctx, ids, keyList); err != nil {
					return nil, err
				}
				return map[string]any{"updated": ids, "removed": keyList}, nil
			})
		},
	}
	cmd.Flags().StringVar(&keys, "keys", "", "comma separated attribute keys (required)")
	_ = cmd.MarkFlagRequired("keys")
	return cmd
}

func newAttrDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete [expression]",
		Short: "Delete indexed statements matching a filter",
		Long: `Delete indexed statements matching a filter expression.
Deleting everything requires --all instead of an expression.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := ""
			if len(args) == 1 {
				expr = args[0]
			}
			if strings.TrimSpace(expr) == "" && !all {
				return NewExitError(ExitCommandError, "refusing to delete every statement without --all")
			}
			return withAttrStore(rootOpts, cmd, func(ctx context.Context, st attrstore.Store) (any, error) {
				n, err := attrstore.DeleteQuery(ctx, st, expr)
				return DeleteResult{Deleted: n}, err
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every indexed statement")
	return cmd
}

func newAttrCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count indexed statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAttrStore(rootOpts, cmd, func(ctx context.Context, st attrstore.Store) (any, error) {
				n, err := st.Count(ctx)
				return map[string]int64{"count": n}, err
			})
		},
	}
}
