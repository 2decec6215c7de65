package goalloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/gaia/reason"
)

// HostClient executes host actions. The HTTP implementation is below; tests
// substitute fakes.
type HostClient interface {
	Execute(ctx context.Context, action string, params any) (json.RawMessage, error)
}

// Client talks to a running host over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewClient builds a Client with sane timeouts. The per-request context
// still wins; the client timeout is the backstop.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
		Logger:  slog.Default(),
	}
}

type executeEnvelope struct {
	Action string `json:"action"`
	Params any    `json:"params"`
}

// Execute posts one action envelope. Transport and HTTP-status failures map
// to http_4xx / http_5xx so the loop's stop logic sees one taxonomy.
func (c *Client) Execute(ctx context.Context, actionName string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(executeEnvelope{Action: actionName, Params: params})
	if err != nil {
		return nil, reason.Errorf(reason.InvalidInput, "marshal params: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("goalloop: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, reason.Errorf(reason.HTTP5xx, "host unreachable: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, reason.Errorf(reason.HTTP5xx, "read response: %v", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, reason.Errorf(reason.HTTP5xx, "host returned %d: %s", resp.StatusCode, clip(data, 200))
	case resp.StatusCode >= 400:
		return nil, reason.Errorf(reason.HTTP4xx, "host rejected %s: %s", actionName, clip(data, 200))
	}
	return data, nil
}

func clip(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
