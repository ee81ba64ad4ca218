// Package commands implements the pdf2cbz command tree.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf2cbz/cmd/pdf2cbz/ui"
	"github.com/spherical/pdf2cbz/internal/config"
	"github.com/spherical/pdf2cbz/internal/observability"
	"github.com/spherical/pdf2cbz/internal/settings"
)

var (
	cfgFile    string
	verbose    bool
	noColor    bool
	jsonOutput bool
)

// app is the state shared by subcommands, built once per invocation.
var app struct {
	cfg    *config.Config
	logger *observability.Logger
	store  *settings.Store
	ui     *ui.UI
}

var rootCmd = &cobra.Command{
	Use:   "pdf2cbz",
	Short: "Convert PDF documents into CBZ page-image archives",
	Long: `pdf2cbz rasterizes every page of a PDF, transcodes the pages to WEBP and
packs them into a CBZ archive. The archive only replaces an existing file after
it has been verified complete.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Observability.LogLevel
	if verbose {
		level = "debug"
	} else if cfg.Observability.LogLevel == "info" {
		// The spinner and result lines already cover routine progress.
		level = "warn"
	}
	format := cfg.Observability.LogFormat
	if jsonOutput {
		format = "json"
	}

	app.cfg = cfg
	closeStore()
	app.logger = observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      format,
		ServiceName: "pdf2cbz",
	})
	app.ui = ui.New(jsonOutput, noColor)

	if cfg.Settings.Enabled {
		store, err := settings.Open(cfg.Settings.Path, app.logger)
		if err != nil {
			app.logger.Warn().Err(err).Str("path", cfg.Settings.Path).Msg("Settings store unavailable, using config only")
			return nil
		}
		app.store = store
		if err := store.Apply(cmd.Context(), cfg); err != nil {
			app.logger.Warn().Err(err).Msg("Failed to apply stored settings")
		}
	}
	return nil
}

// closeStore releases the settings store. Cobra skips post-run hooks when a
// command fails, so setup calls it too.
func closeStore() {
	if app.store != nil {
		_ = app.store.Close()
		app.store = nil
	}
}
