package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPInvoker wakes a conversational turn by POSTing to an external
// endpoint. The conversation runtime lives outside this service; this is
// the boundary call.
type HTTPInvoker struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTPInvoker returns an invoker targeting the given URL. When token is
// non-empty, an Authorization header is set on every request.
func NewHTTPInvoker(url, token string) *HTTPInvoker {
	return &HTTPInvoker{url: url, token: token, httpClient: &http.Client{}}
}

// WakeConversation posts the conversation ID and context summary. Any
// non-2xx response is an error; the worker treats it as transient and
// retries with backoff.
func (i *HTTPInvoker) WakeConversation(ctx context.Context, conversationID, contextSummary string) error {
	body, err := json.Marshal(map[string]string{
		"conversation_id": conversationID,
		"context_summary": contextSummary,
	})
	if err != nil {
		return fmt.Errorf("marshal wake request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create wake request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if i.token != "" {
		req.Header.Set("Authorization", "Bearer "+i.token)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wake endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wake endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
