package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/grovetools/envmirror/version"
)

// Event reports that backend state changed.
type Event struct {
	Type   string `json:"type"`   // "settings" or "envs"
	Source string `json:"source"` // "rpc", "cli" or "file"
	Key    string `json:"key,omitempty"`
}

// EventSource is implemented by channels that can stream backend changes.
type EventSource interface {
	Events(ctx context.Context) (<-chan Event, error)
}

// Events subscribes to the backend's /events stream. The returned channel is
// closed when ctx is done or the stream ends.
func (c *HTTPChannel) Events(ctx context.Context) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", version.UserAgent())

	// The call timeout would cut the stream short
	client := &http.Client{Transport: c.httpClient.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events at %s: %w", c.endpoint(), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

var _ EventSource = (*HTTPChannel)(nil)
