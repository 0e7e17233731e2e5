// Command pdfshelf is a browser and command line client for the PDF
// document REST API: list, search, upload and delete documents, keep
// per-page bookmarks and read documents in a watermarked page viewer.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/drummonds/pdfshelf/internal/logging"
)

var (
	flagConfPath string
	flagAPIURL   string
	flagOwner    string
	flagLogLevel string
	flagOutput   string

	// conf is resolved by preload before any command runs.
	conf       = defaultConfig()
	confSource = "defaults"
)

var rootCmd = &cobra.Command{
	Use:               "pdfshelf",
	Short:             "Browse, read and bookmark PDF documents",
	SilenceUsage:      true,
	PersistentPreRunE: preload,
}

// preload resolves the config file, the environment and then the flags.
func preload(cmd *cobra.Command, _ []string) error {
	c, source, err := resolveConfig(flagConfPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("api") {
		c.APIURL = flagAPIURL
	}
	if cmd.Flags().Changed("owner") {
		c.Owner = flagOwner
	}
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if err := logging.SetLogLevel(c.LogLevel); err != nil {
		return err
	}
	conf, confSource = c, source
	return nil
}

// Run executes CLI.
func Run() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(Run())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfPath, "config", configFileName, "Config file path")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api", "", "Root URL of the PDF document API (overrides "+envAPI+")")
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", "", "Bookmark owner sent as X-User-ID (overrides "+envOwner+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagOutput, "output", "", "Output format of list commands: table (default), json or yaml")
}
