package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"colmatch-service/internal/config"
)

var (
	logLevel  string
	stateFile string
)

var rootCmd = &cobra.Command{
	Use:           "colmatch",
	Short:         "Fuzzy-match two spreadsheet columns",
	Long:          `Loads an .xlsx/.xls/.csv table, finds the best match for every value of one column among the values of another and writes the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state", "", "state file (default from STATE_FILE)")
	rootCmd.AddCommand(serveCmd, matchCmd, exportCmd)
}

// loadConfig: env + флаги; CLI-команды пишут лог только в stderr.
func loadConfig(cliOnly bool) (config.Config, zerolog.Logger) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if stateFile != "" {
		cfg.StateFile = stateFile
	}
	if cliOnly {
		cfg.LogFile = ""
		if logLevel == "" && os.Getenv("LOG_LEVEL") == "" {
			cfg.LogLevel = "warn"
		}
		return cfg, config.SetupLogger(cfg, os.Stderr)
	}
	return cfg, config.SetupLogger(cfg, os.Stdout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
