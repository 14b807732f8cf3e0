package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/grovetools/envmirror/version"
)

// unixBaseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const unixBaseURL = "http://unix"

// HTTPChannel implements Channel by POSTing to the backend's /rpc endpoints,
// either over a Unix socket or a regular TCP base URL.
type HTTPChannel struct {
	httpClient *http.Client
	baseURL    string
	socketPath string
}

// NewUnixChannel creates an HTTPChannel that dials the backend's Unix socket.
func NewUnixChannel(socketPath string, timeout time.Duration) *HTTPChannel {
	// Create HTTP client that dials Unix socket
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	return &HTTPChannel{
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		baseURL:    unixBaseURL,
		socketPath: socketPath,
	}
}

// NewHTTPChannel creates an HTTPChannel for a TCP base URL such as http://127.0.0.1:7450.
func NewHTTPChannel(baseURL string, timeout time.Duration) *HTTPChannel {
	return &HTTPChannel{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Init probes the backend's health endpoint.
func (c *HTTPChannel) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend is not reachable at %s: %w", c.endpoint(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Call posts payload to /rpc/<method> and decodes the JSON reply into result.
func (c *HTTPChannel) Call(ctx context.Context, method Method, payload, result interface{}) error {
	body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+string(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		var remote RemoteError
		if err := json.Unmarshal(data, &remote); err == nil && remote.Message != "" {
			return &remote
		}
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return decodeResult(data, result)
}

// Close cleans up any resources used by the channel.
func (c *HTTPChannel) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPChannel) endpoint() string {
	if c.socketPath != "" {
		return c.socketPath
	}
	return c.baseURL
}

// Ensure HTTPChannel implements Channel interface.
var _ Channel = (*HTTPChannel)(nil)
