package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/model"
)

// schemaApplyConcurrency bounds the kinds applied at once.
const schemaApplyConcurrency = 4

// defaultPurgeBatch is the number of nodes deleted per transaction.
const defaultPurgeBatch = 1000

// kindSchema is the JSON form of one kind's DDL.
type kindSchema struct {
	Kind       string   `json:"kind"`
	Statements []string `json:"statements"`
}

// purgeResult is the JSON form of one kind's purge.
type purgeResult struct {
	Kind   string `json:"kind"`
	Purged int    `json:"purged"`
}

func (c *cli) newSchemaCmd() *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show or apply constraints and indexes",
		Long: `Show or apply the uniqueness constraints and indexes declared by the
model file. Every kind gets a uid constraint; TTL kinds also get a ttl
index. Statements use IF NOT EXISTS, so applying twice is a no-op.`,
	}
	cmd.PersistentFlags().StringSliceVarP(&kinds, "kind", "k", nil, "Limit to these kinds (default: all)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the schema statements without running them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSchemaShow(cmd, kinds)
		},
	}
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Create missing constraints and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSchemaApply(cmd, kinds)
		},
	}

	var batch int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete nodes whose ttl has passed",
		Long: `Delete the expired nodes of TTL kinds together with their relationships.
Without --kind every TTL kind is purged. Nodes are removed in
transactions of at most --batch nodes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSchemaPurge(cmd, kinds, batch)
		},
	}
	purge.Flags().IntVar(&batch, "batch", defaultPurgeBatch, "Nodes deleted per transaction")

	cmd.AddCommand(show, apply, purge)
	return cmd
}

func (c *cli) runSchemaShow(cmd *cobra.Command, names []string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	kinds, err := selectKinds(reg, names)
	if err != nil {
		return err
	}

	out := make([]kindSchema, 0, len(kinds))
	for _, kind := range kinds {
		ks := kindSchema{Kind: kind.Name}
		for _, stmt := range compiler.CompileSchema(kind) {
			ks.Statements = append(ks.Statements, stmt.Text)
		}
		out = append(out, ks)
	}

	if c.jsonOutput() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := cmd.OutOrStdout()
	for i, ks := range out {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "// %s\n", ks.Kind)
		for _, text := range ks.Statements {
			fmt.Fprintf(w, "%s;\n", text)
		}
	}
	return nil
}

func (c *cli) runSchemaApply(cmd *cobra.Command, names []string) error {
	ctx := cmd.Context()

	reg, err := c.registry()
	if err != nil {
		return err
	}
	kinds, err := selectKinds(reg, names)
	if err != nil {
		return err
	}

	rt, err := c.connect(ctx, reg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(ctx); cerr != nil {
			c.logger.WarnContext(ctx, "shutdown failed", "error", cerr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(schemaApplyConcurrency)
	for _, kind := range kinds {
		objects := rt.manager.MustObjects(kind.Name)
		g.Go(func() error {
			return objects.ApplySchema(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Applied schema for %d %s\n", len(kinds), plural(len(kinds), "kind"))
	return nil
}

func (c *cli) runSchemaPurge(cmd *cobra.Command, names []string, batch int) error {
	ctx := cmd.Context()

	if batch <= 0 {
		return NewCLIError(ExitUsage, "--batch must be positive")
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}
	kinds, err := selectKinds(reg, names)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		var expiring []*model.EntityKind
		for _, kind := range kinds {
			if kind.TTL != nil {
				expiring = append(expiring, kind)
			}
		}
		kinds = expiring
	}

	rt, err := c.connect(ctx, reg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(ctx); cerr != nil {
			c.logger.WarnContext(ctx, "shutdown failed", "error", cerr)
		}
	}()

	results := make([]purgeResult, 0, len(kinds))
	for _, kind := range kinds {
		n, err := rt.manager.MustObjects(kind.Name).PurgeExpired(ctx, batch)
		if err != nil {
			return err
		}
		results = append(results, purgeResult{Kind: kind.Name, Purged: n})
	}

	if c.jsonOutput() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired %s of %s\n", r.Purged, plural(r.Purged, "node"), r.Kind)
	}
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
