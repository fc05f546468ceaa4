package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const defaultServer = "http://127.0.0.1:8080"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	server   string
	logLevel string
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{server: defaultServer}
	if v := os.Getenv("TEXSTREAM_SERVER"); v != "" {
		opts.server = v
	}
	opts.logLevel = os.Getenv("TEXSTREAM_LOG_LEVEL")
	return buildRootCmdWith(opts)
}

// buildRootCmdWith constructs the command tree: the daemon itself plus
// admin commands talking to a running daemon.
func buildRootCmdWith(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "texstreamd",
		Short:         "Texture mip streaming daemon and admin client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", opts.server, "Admin API base URL (defaults TEXSTREAM_SERVER or "+defaultServer+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: debug|info|warn|error (defaults TEXSTREAM_LOG_LEVEL or config)")

	root.AddCommand(newServeCmd(opts))
	addClientCommands(root, opts)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error {
		return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
	}})
	root.AddCommand(completionCmd)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var f serveFlags
	f.config = os.Getenv("TEXSTREAM_CONFIG")
	f.addr = os.Getenv("TEXSTREAM_ADDR")
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the streaming simulation and serve the admin API",
		Example: "  texstreamd serve --catalog scenes/town.yaml --state-file ~/.texstream/state.zst",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f, opts.logLevel)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			d, err := newDaemon(ctx, cfg, f.scene, log, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			return d.run(ctx)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", f.config, "Config file (.yaml, .json or .toml; defaults TEXSTREAM_CONFIG)")
	fl.StringVar(&f.addr, "addr", f.addr, "HTTP listen address, e.g. :8080 (defaults TEXSTREAM_ADDR)")
	fl.StringVar(&f.catalog, "catalog", "", "Scene manifest file or directory")
	fl.StringVar(&f.scene, "scene", "", "Scene to run when --catalog is a directory (default: first)")
	fl.StringVar(&f.stateFile, "state-file", "", "File the streaming state is saved to and restored from")
	fl.StringVar(&f.eventsDSN, "events-dsn", "", "Event log DSN (sqlite path unless the config selects postgres)")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma separated origins; enables CORS when set")
	fl.StringVar(&f.logFormat, "log-format", "", "Log format: console|json")
	fl.Float64Var(&f.frameRate, "frame-rate", 0, "Simulated frames per second")
	return cmd
}
