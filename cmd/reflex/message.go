package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alfredjeanlab/reflex/internal/client"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/notify"
	"github.com/alfredjeanlab/reflex/internal/ui"
	"github.com/spf13/cobra"
)

var messageCmd = &cobra.Command{
	Use:     "message <command>",
	Short:   "Append to and follow conversation transcripts",
	GroupID: "conversations",
}

var messageAppendCmd = &cobra.Command{
	Use:   "append <conversation-id> <body>",
	Short: "Append a message to a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		iface, _ := cmd.Flags().GetString("interface")
		role, _ := cmd.Flags().GetString("role")

		m, err := reflexClient.AppendMessage(context.Background(), args[0], &client.AppendMessageRequest{
			InterfaceType: model.InterfaceType(iface),
			Role:          role,
			Body:          args[1],
		})
		if err != nil {
			return fmt.Errorf("appending message: %w", err)
		}
		if jsonOutput {
			printJSON(m)
		} else {
			fmt.Printf("Appended %s at %s\n", m.ID, m.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var messageTailCmd = &cobra.Command{
	Use:   "tail <conversation-id>",
	Short: "Follow a conversation over the notification stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		iface, _ := cmd.Flags().GetString("interface")
		cursor, _ := cmd.Flags().GetString("cursor")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		q := url.Values{}
		q.Set("interface_type", iface)
		if cursor != "" {
			if _, err := time.Parse(time.RFC3339Nano, cursor); err != nil {
				return fmt.Errorf("invalid --cursor (want RFC3339): %w", err)
			}
			q.Set("cursor", cursor)
		}
		streamURL := fmt.Sprintf("%s/v1/conversations/%s/stream?%s",
			strings.TrimRight(httpURL, "/"), url.PathEscape(args[0]), q.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
		if err != nil {
			return err
		}
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("opening stream: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		err = readSSE(resp.Body, printStreamFrame)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// readSSE parses server-sent-event frames from r and invokes fn for each
// complete frame. Comment lines and unknown fields are skipped.
func readSSE(r io.Reader, fn func(event string, data []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var event string
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				fn(event, data)
			}
			event, data = "", nil
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, []byte(strings.TrimPrefix(line, "data: "))...)
		}
	}
	return scanner.Err()
}

func printStreamFrame(event string, data []byte) {
	if jsonOutput {
		if event != "heartbeat" {
			fmt.Println(string(data))
		}
		return
	}
	switch event {
	case "heartbeat":
		return
	case "message":
		var m model.Message
		if err := json.Unmarshal(data, &m); err == nil {
			role := m.Role
			if role == "" {
				role = string(m.InterfaceType)
			}
			fmt.Printf("%s %s %s\n",
				ui.RenderMuted(m.CreatedAt.Format("15:04:05")),
				ui.RenderAccent("["+role+"]"), m.Body)
			return
		}
	case "notification":
		var note notify.Notification
		if err := json.Unmarshal(data, &note); err == nil {
			fmt.Printf("%s %s %s\n",
				ui.RenderMuted(note.CreatedAt.Format("15:04:05")),
				ui.RenderAccent("[new]"), note.MessageID)
			return
		}
	}
	fmt.Printf("%s %s\n", ui.RenderMuted(event), string(data))
}

func init() {
	messageAppendCmd.Flags().String("interface", "cli", "interface type of the message")
	messageAppendCmd.Flags().String("role", "", "speaker role (user, assistant, system)")

	messageTailCmd.Flags().String("interface", "cli", "interface type to subscribe as")
	messageTailCmd.Flags().String("cursor", "", "catch up from this RFC3339 timestamp")

	messageCmd.AddCommand(messageAppendCmd)
	messageCmd.AddCommand(messageTailCmd)
}
