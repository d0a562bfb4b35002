package main

import (
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Run one status notification pass",
	Long: `notify compares the workbook against the last snapshot and mails
clients whose ticket status changed. The pass report is printed as JSON.
A delivery rate below the configured minimum makes the command exit
nonzero so cron and CI surface it.`,
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

		rep, runErr := d.StatusRun.Run(cmd.Context())
		if rep != nil {
			if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}
