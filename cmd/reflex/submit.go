package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/reflex/internal/client"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:     "submit <source> <event-type>",
	Short:   "Submit an event through the pipeline",
	GroupID: "events",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, _ := cmd.Flags().GetString("payload")
		fieldPairs, _ := cmd.Flags().GetStringArray("field")

		raw, err := buildPayload(payload, fieldPairs)
		if err != nil {
			return err
		}

		res, err := reflexClient.SubmitEvent(context.Background(), &client.SubmitEventRequest{
			SourceID:  model.SourceID(args[0]),
			EventType: args[1],
			Payload:   raw,
		})
		if err != nil {
			return fmt.Errorf("submitting event: %w", err)
		}

		if jsonOutput {
			printJSON(res)
		} else {
			printSubmitResult(res)
		}
		return nil
	},
}

// buildPayload merges an optional raw JSON payload with -f key=value pairs.
// Pairs override keys present in the raw payload.
func buildPayload(raw string, pairs []string) (json.RawMessage, error) {
	m := make(map[string]any)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("invalid --payload JSON: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := splitField(p)
		if !ok {
			return nil, fmt.Errorf("invalid field %q: expected key=value", p)
		}
		m[k] = rawOrString(v)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("event payload is required (--payload or -f key=value)")
	}
	return json.Marshal(m)
}

func init() {
	submitCmd.Flags().String("payload", "", "event payload as a JSON object")
	submitCmd.Flags().StringArrayP("field", "f", nil, "payload field as key=value (repeatable)")
}
