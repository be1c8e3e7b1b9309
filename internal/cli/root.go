// Package cli implements the mdnorm command line using Cobra.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgallion1/mdnorm/internal/config"
	"github.com/dgallion1/mdnorm/internal/normalize"
)

type ctxKey string

const appKey ctxKey = "app"

// errReported means the failure was already printed to stderr.
var errReported = errors.New("errors reported")

// app is the wiring shared by every subcommand.
type app struct {
	cfg        config.Config
	log        *slog.Logger
	normalizer *normalize.Normalizer
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"workers":   "worker_count",
	"log-level": "log_level",
	"port":      "port",
}

// Execute runs the root command and prints any error as "Error: <msg>".
func Execute() error {
	return execute(NewRootCmd())
}

func execute(cmd *cobra.Command) error {
	err := cmd.Execute()
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
	}
	return err
}

// NewRootCmd constructs the Cobra root command and wires dependencies.
func NewRootCmd() *cobra.Command {
	var (
		cfgPath string
		opts    formatOptions
	)

	cmd := &cobra.Command{
		Use:   "mdnorm [file...]",
		Short: "Normalize Markdown into one canonical style",
		Long: `mdnorm rewrites Markdown with uniform list markers, indentation, rules and
fences. Code blocks tagged markdown or md are normalized the same way.

With no file arguments, mdnorm reads standard input and writes standard
output. Directories are searched for Markdown files.`,
		Example: `  mdnorm README.md
  mdnorm -w docs/
  cat notes.md | mdnorm
  mdnorm --check docs/`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if cfgPath != "" {
				v.SetConfigFile(cfgPath)
			}
			for flag, key := range flagKeys {
				if f := cmd.Flags().Lookup(flag); f != nil {
					if err := v.BindPFlag(key, f); err != nil {
						return err
					}
				}
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a := newApp(cfg, cmd)
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, args, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (yaml|toml|json)")
	cmd.PersistentFlags().Int("workers", 0, "files normalized in parallel (default from config)")
	cmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")

	cmd.Flags().BoolVarP(&opts.write, "write", "w", false, "write result back to the source file")
	cmd.Flags().BoolVar(&opts.check, "check", false, "list files that would change and exit 1 if any")
	cmd.MarkFlagsMutuallyExclusive("write", "check")

	cmd.AddCommand(newServeCmd())

	return cmd
}

func newApp(cfg config.Config, cmd *cobra.Command) *app {
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return &app{
		cfg:        cfg,
		log:        log,
		normalizer: newNormalizer(cfg, log),
	}
}

func newNormalizer(cfg config.Config, log *slog.Logger) *normalize.Normalizer {
	opts := []normalize.Option{
		normalize.WithLogger(log),
		normalize.WithMaxDepth(cfg.MaxNestingDepth),
		normalize.WithSemanticCheck(cfg.VerifyNested),
	}
	if cfg.CaseSensitiveTags {
		opts = append(opts, normalize.WithCaseSensitiveTags())
	}
	return normalize.New(opts...)
}

func getApp(cmd *cobra.Command) *app {
	a, ok := cmd.Context().Value(appKey).(*app)
	if !ok {
		panic("cli: app not initialized")
	}
	return a
}
