package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	logLevel   string
	logFormat  string
	servePort  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "v2coach",
	Short: "Goal and habit tracker with a motivational coach",
	Long: `v2coach serves a JSON API over a user's goals and habits.

It provides:
- Day, week, month and year tasks plus tracked bad habits
- Streaks, discipline level and a weekly breakdown
- A coach conversation with a focus timer and recalibration mode`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "v2coach %s\n", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load the configuration and report problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: llm=%s storage=%s port=%s\n",
			cfg.LLM.Provider, cfg.Storage.Backend, cfg.Server.Port)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json, text")

	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "port to listen on (overrides config)")

	rootCmd.AddCommand(serveCmd, versionCmd, configValidateCmd)
}
