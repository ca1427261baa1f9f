package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gkeb/node4j/internal/config"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/observability"
	"github.com/gkeb/node4j/internal/util"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	// FormatText is human-readable text output
	FormatText OutputFormat = "text"
	// FormatJSON is structured JSON output
	FormatJSON OutputFormat = "json"
)

// DefaultModelsFile is read when --models is not given.
const DefaultModelsFile = "models.yaml"

// GlobalFlags holds global flags available to all commands
type GlobalFlags struct {
	Verbose      bool
	OutputFormat string
	ConfigFile   string
	ModelsFile   string
}

// cli carries the state shared by every command of one invocation.
type cli struct {
	flags  GlobalFlags
	cfg    *config.Config
	logger *slog.Logger
	open   backendOpener
}

// newRootCmd builds the command tree. open connects to the execution
// service for the commands that need one.
func newRootCmd(open backendOpener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:   "node4j",
		Short: "node4j - graph object mapper for Neo4j",
		Long: `node4j maps declared entity kinds onto a Neo4j graph.

The CLI reads kind declarations from a YAML model file and can show or
apply their constraints and indexes, compile filters to Cypher without
running them, and probe the server.`,
		PersistentPreRunE: c.loadConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&c.flags.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVarP(&c.flags.OutputFormat, "output", "o", string(FormatText), "Output format (text|json)")
	flags.StringVar(&c.flags.ConfigFile, "config", "", "Path to config file (default: $HOME/.node4j/config.yaml)")
	flags.StringVarP(&c.flags.ModelsFile, "models", "m", DefaultModelsFile, "Path to the model declarations file")

	root.AddCommand(c.newSchemaCmd())
	root.AddCommand(c.newCompileCmd())
	root.AddCommand(c.newHealthCmd())
	root.AddCommand(c.newVersionCmd())
	return root
}

// Execute runs the root command with signal handling
func Execute(ctx context.Context, root *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return root.ExecuteContext(ctx)
}

// loadConfig is called before any command runs to load configuration
func (c *cli) loadConfig(cmd *cobra.Command, args []string) error {
	format := OutputFormat(c.flags.OutputFormat)
	if format != FormatText && format != FormatJSON {
		return NewCLIError(ExitUsage, "--output must be text or json")
	}

	for _, p := range []*string{&c.flags.ConfigFile, &c.flags.ModelsFile} {
		expanded, err := util.ExpandPath(*p)
		if err != nil {
			return WrapError(ExitUsage, "invalid path", err)
		}
		*p = expanded
	}

	path := c.flags.ConfigFile
	if path == "" {
		path = config.DefaultConfigPath(config.DefaultHomeDir())
	}

	loader := config.NewConfigLoader(config.NewValidator())
	var (
		cfg *config.Config
		err error
	)
	if c.flags.ConfigFile != "" {
		cfg, err = loader.Load(path)
	} else {
		cfg, err = loader.LoadWithDefaults(path)
	}
	if err != nil {
		return err
	}
	if c.flags.Verbose {
		cfg.Logging.Level = "debug"
	}

	c.cfg = cfg
	c.logger = observability.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	slog.SetDefault(c.logger)
	return nil
}

// registry loads the model declarations and builds a frozen registry.
func (c *cli) registry() (*model.Registry, error) {
	decls, err := model.LoadDeclarationsFile(c.flags.ModelsFile)
	if err != nil {
		return nil, err
	}
	return decls.Registry()
}

// selectKinds returns the named kinds, or every kind when names is empty.
func selectKinds(reg *model.Registry, names []string) ([]*model.EntityKind, error) {
	if len(names) == 0 {
		return reg.Kinds(), nil
	}
	out := make([]*model.EntityKind, 0, len(names))
	for _, name := range names {
		kind, err := reg.Kind(name)
		if err != nil {
			return nil, err
		}
		out = append(out, kind)
	}
	return out, nil
}

func (c *cli) jsonOutput() bool {
	return OutputFormat(c.flags.OutputFormat) == FormatJSON
}
