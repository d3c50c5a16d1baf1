package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kirakosyanara/gropos-sub007/internal/client"
	"github.com/kirakosyanara/gropos-sub007/internal/config"
	"github.com/kirakosyanara/gropos-sub007/internal/events"
)

var rootCmd = &cobra.Command{
	Use:   "gropos",
	Short: "Offline-first point-of-sale sync client",
	Long: `gropos keeps a register usable when the backend is unreachable.

Cashier actions are queued durably on the device and delivered to the
backend once connectivity returns, exactly once in effect.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

var (
	configPath string
	logLevel   string
	jsonOutput bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default: gropos.json, ~/.config/gropos/gropos.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Emit machine-readable JSON output")
}

func setup() error {
	loader := config.NewLoader(configPath)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	apiClient, err = client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	return nil
}

func main() {
	defer func() {
		if apiClient != nil {
			_ = apiClient.Close()
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// Output helpers

func printSuccess(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(os.Stdout, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		printError("encode output: %v", err)
		return
	}
	fmt.Println(string(data))
}
