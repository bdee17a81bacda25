package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taleweaver/internal/events"
)

// HTTPCommander posts commands as JSON to {baseURL}/commands.
type HTTPCommander struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPCommander(baseURL string, client *http.Client) *HTTPCommander {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPCommander{
		endpoint:   strings.TrimRight(baseURL, "/") + "/commands",
		httpClient: client,
	}
}

// Send implements session.Commander.
func (c *HTTPCommander) Send(ctx context.Context, cmd events.Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", cmd.ID.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pipeline rejected %s with status %d: %s", cmd.Name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
