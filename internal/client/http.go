package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/reflex/internal/engine"
	"github.com/alfredjeanlab/reflex/internal/model"
)

// HTTPClient implements ReflexClient using the reflex HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Events ---

func (c *HTTPClient) SubmitEvent(ctx context.Context, req *SubmitEventRequest) (*engine.SubmitResult, error) {
	var res engine.SubmitResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Tasks ---

func (c *HTTPClient) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	if err := c.doJSON(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) ListTasks(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Tasks []*model.Task `json:"tasks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// --- Listeners ---

func (c *HTTPClient) CreateListener(ctx context.Context, req *CreateListenerRequest) (*model.Listener, error) {
	var l model.Listener
	if err := c.doJSON(ctx, http.MethodPost, "/v1/listeners", req, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *HTTPClient) GetListener(ctx context.Context, id string) (*model.Listener, error) {
	var l model.Listener
	if err := c.doJSON(ctx, http.MethodGet, "/v1/listeners/"+url.PathEscape(id), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *HTTPClient) ListListeners(ctx context.Context, req *ListListenersRequest) ([]*model.Listener, error) {
	q := url.Values{}
	if req.SourceID != "" {
		q.Set("source_id", string(req.SourceID))
	}
	if req.Enabled != nil {
		q.Set("enabled", strconv.FormatBool(*req.Enabled))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	path := "/v1/listeners"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Listeners []*model.Listener `json:"listeners"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Listeners, nil
}

func (c *HTTPClient) EnableListener(ctx context.Context, id string) (*model.Listener, error) {
	var l model.Listener
	if err := c.doJSON(ctx, http.MethodPost, "/v1/listeners/"+url.PathEscape(id)+"/enable", nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *HTTPClient) DisableListener(ctx context.Context, id string) (*model.Listener, error) {
	var l model.Listener
	if err := c.doJSON(ctx, http.MethodPost, "/v1/listeners/"+url.PathEscape(id)+"/disable", nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *HTTPClient) DeleteListener(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/listeners/"+url.PathEscape(id), nil, nil)
}

// --- Audit ---

func (c *HTTPClient) ListAudit(ctx context.Context, since time.Time, limit int) ([]*model.AuditEntry, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Entries []*model.AuditEntry `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// --- Messages ---

func (c *HTTPClient) AppendMessage(ctx context.Context, conversationID string, req *AppendMessageRequest) (*model.Message, error) {
	var m model.Message
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the
// JSON response into result (when non-nil).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
