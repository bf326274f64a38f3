package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stagelift",
	Short: "Stagelift - declarative extract-load orchestrator",
	Long: `Stagelift moves data from heterogeneous sources into a columnar
warehouse through a compressed object-storage stage.

A declarative catalog of schemas, tables and per-table ingestion policies
drives job planning; each job is a clean, extract and load sequence that
runs locally or on the managed workflow engine.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Stagelift version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("env", "dev", "Target environment (dev, prod)")

	cobra.OnInitialize(initLogging, initEnv)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func initEnv() {
	env, _ := rootCmd.PersistentFlags().GetString("env")
	config.SetEnv(config.Env(env))
}
