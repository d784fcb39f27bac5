// Package cmd contains the CLI commands for chomp.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	cfgFile string
	logger  *logrus.Logger
)

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "chomp",
	Short: "Chomp - a configuration-driven, clustered ETL ingestion engine",
	Long: `Chomp ingests data on a schedule from HTTP APIs, WebSocket feeds, scraped
pages, chain RPC endpoints and its own process vitals, transforms it per a
declarative field graph, and writes it to ClickHouse. Every process in a
cluster runs the same configuration; a per-tick claim in the shared cache
keeps exactly one process the effective owner of any given tick.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "./config.yaml", "config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, fatal, panic)")

	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func initLogger() {
	logLevel, err := rootCmd.PersistentFlags().GetString("log-level")
	if err != nil {
		logLevel = "info"
	}
	level, parseErr := logrus.ParseLevel(logLevel)
	if parseErr != nil {
		logger.WithError(parseErr).Warn("Invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
