package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kazankay/eventpipe/pkg/config"
	"github.com/kazankay/eventpipe/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "eventpipe",
	Short:        "Extracts structured events from scraped social-media posts",
	Long: `eventpipe turns raw social-media posts into structured, deduplicated
event records. Posts are split and parsed by an LLM gateway, events are
matched against a similarity index, and results land in PostgreSQL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger.Setup(c.Logging.Level, c.Logging.Format)
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
