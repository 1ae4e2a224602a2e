package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/reflex/internal/engine"
	"github.com/alfredjeanlab/reflex/internal/model"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printTask(t *model.Task) {
	fmt.Printf("ID:           %s\n", t.ID)
	fmt.Printf("Type:         %s\n", t.Type)
	fmt.Printf("Status:       %s\n", t.Status)
	fmt.Printf("Attempts:     %d/%d\n", t.AttemptCount, t.MaxAttempts)
	if t.LastError != "" {
		fmt.Printf("Last Error:   %s\n", t.LastError)
	}
	if t.ListenerID != "" {
		fmt.Printf("Listener:     %s\n", t.ListenerID)
	}
	if t.EventID != "" {
		fmt.Printf("Event:        %s\n", t.EventID)
	}
	if t.ConversationID != "" {
		fmt.Printf("Conversation: %s\n", t.ConversationID)
	}
	fmt.Printf("Created At:   %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated At:   %s\n", t.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printTaskList(tasks []*model.Task) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tATTEMPTS\tLAST ERROR")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			t.ID, t.Type, t.Status, t.AttemptCount, t.MaxAttempts, truncate(t.LastError, 48))
	}
	w.Flush()
	fmt.Printf("\n%d task(s)\n", len(tasks))
}

func printListener(l *model.Listener) {
	fmt.Printf("ID:           %s\n", l.ID)
	fmt.Printf("Name:         %s\n", l.Name)
	fmt.Printf("Source:       %s\n", l.SourceID)
	fmt.Printf("Condition:    %s\n", conditionString(&l.Condition))
	fmt.Printf("Action:       %s\n", l.ActionType)
	if l.ConversationID != "" {
		fmt.Printf("Conversation: %s\n", l.ConversationID)
	}
	fmt.Printf("Enabled:      %t\n", l.Enabled)
	fmt.Printf("One Time:     %t\n", l.OneTime)
	fmt.Printf("Daily Cap:    %d (%d used today)\n", l.DailyCap, l.DailyExecutions)
	if l.LastExecutionAt != nil {
		fmt.Printf("Last Fired:   %s\n", l.LastExecutionAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Created At:   %s\n", l.CreatedAt.Format("2006-01-02 15:04:05"))
}

func printListenerList(listeners []*model.Listener) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSOURCE\tACTION\tENABLED\tCAP\tUSED")
	for _, l := range listeners {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%d\n",
			l.ID, truncate(l.Name, 32), l.SourceID, l.ActionType, l.Enabled, l.DailyCap, l.DailyExecutions)
	}
	w.Flush()
	fmt.Printf("\n%d listener(s)\n", len(listeners))
}

func printAuditList(entries []*model.AuditEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tLISTENER\tEVENT\tOUTCOME\tTASK\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.ListenerID, e.EventID, e.Outcome, e.TaskID, truncate(e.Detail, 48))
	}
	w.Flush()
	fmt.Printf("\n%d entr(ies)\n", len(entries))
}

func printSubmitResult(res *engine.SubmitResult) {
	fmt.Printf("Event:   %s (%s/%s)\n", res.Event.ID, res.Event.SourceID, res.Event.EventType)
	if len(res.Records) == 0 {
		fmt.Println("No listeners matched.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LISTENER\tOUTCOME\tTASK\tDETAIL")
	for _, r := range res.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ListenerID, r.Outcome, r.TaskID, r.Detail)
	}
	w.Flush()
}

// conditionString renders a condition tree in a compact one-line form.
func conditionString(c *model.Condition) string {
	if c.IsLeaf() {
		return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
	}
	if c.Not != nil {
		return "not(" + conditionString(c.Not) + ")"
	}
	var (
		parts []string
		sep   string
		kids  []model.Condition
	)
	if len(c.All) > 0 {
		sep, kids = " and ", c.All
	} else {
		sep, kids = " or ", c.Any
	}
	for i := range kids {
		parts = append(parts, conditionString(&kids[i]))
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
