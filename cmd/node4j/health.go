package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the Neo4j server",
		Args:  cobra.NoArgs,
		RunE:  c.runHealth,
	}
}

func (c *cli) runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	be, err := c.open(ctx, c.cfg.Neo4j, c.logger)
	if err != nil {
		return WrapError(ExitUnhealthy, fmt.Sprintf("cannot connect to %s", c.cfg.Neo4j.URI), err)
	}
	defer func() {
		if cerr := be.Close(ctx); cerr != nil {
			c.logger.WarnContext(ctx, "close failed", "error", cerr)
		}
	}()

	status := be.Health(ctx)

	w := cmd.OutOrStdout()
	if c.jsonOutput() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "URI:      %s\n", c.cfg.Neo4j.URI)
		fmt.Fprintf(w, "Database: %s\n", databaseName(c.cfg.Neo4j.Database))
		fmt.Fprintf(w, "Status:   %s\n", status.State)
		if status.Message != "" {
			fmt.Fprintf(w, "Message:  %s\n", status.Message)
		}
		if status.Latency > 0 {
			fmt.Fprintf(w, "Latency:  %s\n", status.Latency)
		}
	}

	if !status.IsHealthy() {
		return NewCLIError(ExitUnhealthy, fmt.Sprintf("server is %s", status.State))
	}
	return nil
}

func databaseName(name string) string {
	if name == "" {
		return "(default)"
	}
	return name
}
