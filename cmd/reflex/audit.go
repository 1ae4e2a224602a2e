package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:     "audit",
	Short:   "Show the listener firing audit log",
	GroupID: "events",
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceStr, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		var since time.Time
		if sinceStr != "" {
			var err error
			since, err = time.Parse(time.RFC3339, sinceStr)
			if err != nil {
				return fmt.Errorf("invalid --since (want RFC3339): %w", err)
			}
		}

		entries, err := reflexClient.ListAudit(context.Background(), since, limit)
		if err != nil {
			return fmt.Errorf("listing audit entries: %w", err)
		}
		if jsonOutput {
			printJSON(entries)
		} else {
			printAuditList(entries)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().String("since", "", "only entries after this RFC3339 timestamp")
	auditCmd.Flags().Int("limit", 100, "maximum number of entries to return")
}
