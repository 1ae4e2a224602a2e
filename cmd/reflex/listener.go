package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/reflex/internal/client"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/spf13/cobra"
)

var listenerCmd = &cobra.Command{
	Use:     "listener <command>",
	Short:   "Manage event listeners",
	GroupID: "listeners",
}

var listenerCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a listener",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		condition, _ := cmd.Flags().GetString("condition")
		action, _ := cmd.Flags().GetString("action")
		actionConfig, _ := cmd.Flags().GetString("action-config")
		conversation, _ := cmd.Flags().GetString("conversation")
		oneTime, _ := cmd.Flags().GetBool("one-time")

		var cond model.Condition
		if err := json.Unmarshal([]byte(condition), &cond); err != nil {
			return fmt.Errorf("invalid --condition JSON: %w", err)
		}

		req := &client.CreateListenerRequest{
			Name:           args[0],
			SourceID:       model.SourceID(source),
			Condition:      cond,
			ActionType:     model.ActionType(action),
			ConversationID: conversation,
			OneTime:        oneTime,
		}
		if actionConfig != "" {
			req.ActionConfig = json.RawMessage(actionConfig)
		}
		if cmd.Flags().Changed("daily-cap") {
			dailyCap, _ := cmd.Flags().GetInt("daily-cap")
			req.DailyCap = &dailyCap
		}

		l, err := reflexClient.CreateListener(context.Background(), req)
		if err != nil {
			return fmt.Errorf("creating listener: %w", err)
		}
		if jsonOutput {
			printJSON(l)
		} else {
			printListener(l)
		}
		return nil
	},
}

var listenerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List listeners",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		req := &client.ListListenersRequest{
			SourceID: model.SourceID(source),
			Limit:    limit,
			Offset:   offset,
		}
		if cmd.Flags().Changed("enabled") {
			enabled, _ := cmd.Flags().GetBool("enabled")
			req.Enabled = &enabled
		}

		listeners, err := reflexClient.ListListeners(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing listeners: %w", err)
		}
		if jsonOutput {
			printJSON(listeners)
		} else {
			printListenerList(listeners)
		}
		return nil
	},
}

var listenerShowCmd = &cobra.Command{
	Use:   "show <listener-id>",
	Short: "Show a listener",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := reflexClient.GetListener(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting listener: %w", err)
		}
		if jsonOutput {
			printJSON(l)
		} else {
			printListener(l)
		}
		return nil
	},
}

var listenerEnableCmd = &cobra.Command{
	Use:   "enable <listener-id>",
	Short: "Enable a listener",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := reflexClient.EnableListener(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("enabling listener: %w", err)
		}
		fmt.Printf("Enabled %s\n", l.ID)
		return nil
	},
}

var listenerDisableCmd = &cobra.Command{
	Use:   "disable <listener-id>",
	Short: "Disable a listener",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := reflexClient.DisableListener(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("disabling listener: %w", err)
		}
		fmt.Printf("Disabled %s\n", l.ID)
		return nil
	},
}

var listenerDeleteCmd = &cobra.Command{
	Use:   "delete <listener-id>",
	Short: "Delete a listener",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := reflexClient.DeleteListener(context.Background(), args[0]); err != nil {
			return fmt.Errorf("deleting listener: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	listenerCreateCmd.Flags().String("source", "", "event source to listen on (required)")
	listenerCreateCmd.Flags().String("condition", "", "condition tree as JSON (required)")
	listenerCreateCmd.Flags().String("action", string(model.ActionWakeLLM), "action type (wake_llm or script)")
	listenerCreateCmd.Flags().String("action-config", "", "action configuration as JSON")
	listenerCreateCmd.Flags().String("conversation", "", "conversation to wake (wake_llm)")
	listenerCreateCmd.Flags().Bool("one-time", false, "disable the listener after its first firing")
	listenerCreateCmd.Flags().Int("daily-cap", model.DefaultDailyCap, "maximum firings per day")
	listenerCreateCmd.MarkFlagRequired("source")
	listenerCreateCmd.MarkFlagRequired("condition")

	listenerListCmd.Flags().String("source", "", "filter by source")
	listenerListCmd.Flags().Bool("enabled", false, "filter by enabled state")
	listenerListCmd.Flags().Int("limit", 50, "maximum number of listeners to return")
	listenerListCmd.Flags().Int("offset", 0, "pagination offset")

	listenerCmd.AddCommand(listenerCreateCmd)
	listenerCmd.AddCommand(listenerListCmd)
	listenerCmd.AddCommand(listenerShowCmd)
	listenerCmd.AddCommand(listenerEnableCmd)
	listenerCmd.AddCommand(listenerDisableCmd)
	listenerCmd.AddCommand(listenerDeleteCmd)
}
