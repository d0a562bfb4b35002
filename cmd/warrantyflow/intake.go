package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/proffectiv/warrantyflow/internal/intake"
)

var intakeCmd = &cobra.Command{
	Use:   "intake [payload.json]",
	Short: "Process one Tally webhook payload from a file or stdin",
	Long: `intake feeds a webhook body through the same pipeline the server
uses: validation, duplicate check, workbook append and the confirmation
mails. Useful for replaying a delivery or for batch-style setups that
receive payloads as files.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		d, err := buildDeps(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		body, err := readPayload(args)
		if err != nil {
			return err
		}

		res, err := d.Intake.Process(cmd.Context(), body)
		if errors.Is(err, intake.ErrWrongEvent) {
			fmt.Fprintln(cmd.OutOrStdout(), "ignored: not a form submission")
			return nil
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func readPayload(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		return body, nil
	}
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading payload from stdin: %w", err)
	}
	return body, nil
}

func init() {
	rootCmd.AddCommand(intakeCmd)
}
