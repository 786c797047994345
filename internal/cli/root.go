// Package cli implements the battery-status command line using Cobra.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-status/internal/config"
	"github.com/cptspacemanspiff/battery-status/internal/logging"
)

var (
	configPath string
	verbose    bool
	logTopics  string
)

var rootCmd = &cobra.Command{
	Use:   "battery-status",
	Short: "Keep a live battery reading in a desktop notification",
	Long: `battery-status samples battery temperature, current, voltage and health
every few seconds and shows the latest reading in a resident desktop
notification. Sampling pauses while the display is off and resumes when it
comes back or when the notification is clicked.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable all verbose logging (equivalent to --log=all)")
	rootCmd.PersistentFlags().StringVar(&logTopics, "log", "", "comma-separated log topics: battery,display,scheduler,notify,journal (or 'all')")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return logging.New(os.Stderr, logging.ParseTopics(verbose, logTopics))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
