package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/graphstore"
	"github.com/roach88/provgraph/internal/manifest"
	"github.com/roach88/provgraph/internal/statement"
)

// ImportResult summarises a manifest import.
type ImportResult struct {
	Version    string `json:"version"`
	Statements int    `json:"statements"`
	Graphs     int    `json:"graphs,omitempty"`
	Blobs      int    `json:"blobs"`
}

// NewManifestCommand creates the manifest command group.
func NewManifestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Export and import self-contained provenance bundles",
	}
	cmd.AddCommand(newManifestExportCommand(rootOpts))
	cmd.AddCommand(newManifestImportCommand(rootOpts))
	cmd.AddCommand(newManifestMergeCommand(rootOpts))
	return cmd
}

func newManifestExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		graphIDs    []string
		version     string
		output      string
		compress    bool
		contexts    bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export graph closures with their blobs",
		Long: `Export the closures of one or more graphs together with the blobs they
reference and, with --contexts, the JSON-LD contexts they use.

Version 3 bundles key statements by id; version 4 keeps them per graph.
Blobs missing from the blob store are skipped with a warning.

Examples:
  provgraph manifest export --graph 6f1c... -o bundle.json
  provgraph manifest export --graph a --graph b --version 4 --compress -o bundle.json.zst`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if version != manifest.VersionV3 && version != manifest.VersionV4 {
				return NewExitError(ExitCommandError, "--version must be 3 or 4")
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
			blobs, err := e.openBlobStore()
			if err != nil {
				return err
			}
			defer blobs.Close()

			ctx := cmd.Context()
			var (
				graphs []graphstore.Graph
				all    []statement.Statement
			)
			for _, id := range graphIDs {
				g, err := gs.RetrieveGraph(ctx, id)
				if err != nil {
					return err
				}
				graphs = append(graphs, g)
				all = append(all, g.Statements...)
			}

			resolved, err := manifest.ResolveBlobs(ctx, all, blobs, concurrency, slog.Default())
			if err != nil {
				return err
			}
			mopts := manifest.Options{Logger: slog.Default()}
			if contexts {
				mopts.Contexts = e.loader
			}

			var bundle any
			if version == manifest.VersionV4 {
				mg := make([]manifest.Graph, len(graphs))
				for i, g := range graphs {
					mg[i] = manifest.GraphFrom(g)
				}
				bundle, err = manifest.NewV4(mg, resolved, mopts)
			} else {
				bundle, err = manifest.New(all, resolved, mopts)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create output", err)
				}
				defer f.Close()
				w = f
			}
			return manifest.Write(w, bundle, compress)
		},
	}
	cmd.Flags().StringSliceVar(&graphIDs, "graph", nil, "graph id to export (repeatable, required)")
	_ = cmd.MarkFlagRequired("graph")
	cmd.Flags().StringVar(&version, "version", manifest.VersionV3, "manifest version (3|4)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (defaults to stdout)")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd compress the bundle")
	cmd.Flags().BoolVar(&contexts, "contexts", false, "embed the JSON-LD contexts of exported statements")
	cmd.Flags().IntVar(&concurrency, "concurrency", manifest.DefaultConcurrency, "parallel blob fetches")
	return cmd
}

func newManifestImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle|->",
		Short: "Register the statements and blobs of a bundle",
		Long: `Register the statements and blobs of a bundle. Compressed bundles are
detected automatically.

Version 4 graphs are created when missing and their statements linked to
them. Version 3 statements are registered without a graph.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			raw, err := manifest.ReadRaw(bytes.NewReader(data))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read bundle", err)
			}
			version, err := manifest.Version(raw)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read bundle", err)
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
			blobs, err := e.openBlobStore()
			if err != nil {
				return err
			}
			defer blobs.Close()

			ctx := cmd.Context()
			result := ImportResult{Version: version}
			var blobMap map[string]string

			switch version {
			case manifest.VersionV3:
				m, err := manifest.Read(bytes.NewReader(raw))
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to decode bundle", err)
				}
				for _, s := range m.StatementsOf() {
					if err := gs.Register(ctx, s, ""); err != nil {
						return err
					}
					result.Statements++
				}
				blobMap = m.Blobs
			case manifest.VersionV4:
				m, err := manifest.ReadV4(bytes.NewReader(raw))
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to decode bundle", err)
				}
				for _, g := range m.Graphs {
					if err := ensureGraph(cmd, gs, g); err != nil {
						return err
					}
					for _, s := range g.Statements {
						graphID := g.ID
						if statement.ScopeOfStatement(s) == statement.ScopeGlobal {
							graphID = ""
						}
						if err := gs.Register(ctx, s, graphID); err != nil {
							return err
						}
						result.Statements++
					}
					result.Graphs++
				}
				blobMap = m.Blobs
			default:
				return NewExitError(ExitCommandError, "unsupported manifest version "+version)
			}

			if err := manifest.ImportBlobs(ctx, blobMap, blobs); err != nil {
				return err
			}
			result.Blobs = len(blobMap)
			return newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(result)
		},
	}
}

// ensureGraph creates g unless a graph with its id exists. Parents appear
// before children in exported bundles.
func ensureGraph(cmd *cobra.Command, gs *graphstore.Store, g manifest.Graph) error {
	if _, err := gs.GetGraph(cmd.Context(), g.ID); err == nil {
		return nil
	}
	_, err := gs.CreateGraph(cmd.Context(), graphstore.Graph{ID: g.ID, Name: g.Name, ParentID: g.ParentID})
	return err
}

func newManifestMergeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		output   string
		compress bool
	)
	cmd := &cobra.Command{
		Use:   "merge <left> <right>",
		Short: "Merge two version 3 bundles",
		Long: `Merge two version 3 bundles. Entries of the right bundle win when both
bundles carry the same key.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bundles [2]*manifest.Manifest
			for i, path := range args {
				data, err := readInput(cmd, path)
				if err != nil {
					return err
				}
				m, err := manifest.Read(bytes.NewReader(data))
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to decode "+path, err)
				}
				bundles[i] = m
			}
			merged, err := manifest.Merge(bundles[0], bundles[1])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to merge bundles", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create output", err)
				}
				defer f.Close()
				w = f
			}
			return manifest.Write(w, merged, compress)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (defaults to stdout)")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd compress the bundle")
	return cmd
}
