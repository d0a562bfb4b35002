package main

import (
	"github.com/spf13/cobra"
)

var summaryEmail bool

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show which tickets are being tracked and their statuses",
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

		sum, err := d.StatusRun.Summary(cmd.Context())
		if err != nil {
			return err
		}
		if summaryEmail {
			if err := d.Notifier.SendAdminTracking(cmd.Context(), sum.TotalTracked, sum.ByStatus, sum.ByBrand); err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

func init() {
	summaryCmd.Flags().BoolVar(&summaryEmail, "email", false, "also mail the summary to the admin address")
	rootCmd.AddCommand(summaryCmd)
}
