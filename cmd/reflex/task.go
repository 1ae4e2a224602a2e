package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:     "task <command>",
	Short:   "Inspect dispatched tasks",
	GroupID: "events",
}

var taskGetCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := reflexClient.GetTask(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting task: %w", err)
		}
		if jsonOutput {
			printJSON(t)
		} else {
			printTask(t)
		}
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		tasks, err := reflexClient.ListTasks(context.Background(), model.TaskStatus(status), limit)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if jsonOutput {
			printJSON(tasks)
		} else {
			printTaskList(tasks)
		}
		return nil
	},
}

func init() {
	taskListCmd.Flags().String("status", "", "filter by status (pending, running, retrying, succeeded, failed)")
	taskListCmd.Flags().Int("limit", 50, "maximum number of tasks to return")

	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskListCmd)
}
