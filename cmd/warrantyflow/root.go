package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/proffectiv/warrantyflow/internal/config"
	"github.com/proffectiv/warrantyflow/internal/redact"
)

var (
	cfgFile  string
	noRedact bool
)

var rootCmd = &cobra.Command{
	Use:   "warrantyflow",
	Short: "Warranty ticket intake and status notifications",
	Long: `warrantyflow receives Tally warranty form submissions, keeps them in
the shared Excel workbook and mails clients when staff move their
ticket through the workflow.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute runs the CLI. Called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default warrantyflow.yaml in . or /etc/warrantyflow)")
	rootCmd.PersistentFlags().BoolVar(&noRedact, "no-redact", false,
		"log personal data and secrets unmasked")
}

// loadConfig reads the configuration and installs the redacting log
// writer. Loggers are created after this, so they all inherit it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.Log.Redact && !noRedact {
		log.SetOutput(redact.NewWriter(os.Stderr))
	}
	return cfg, nil
}

// loadValidConfig is loadConfig plus the pre-run checks.
func loadValidConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
