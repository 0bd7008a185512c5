// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package apiclient is a typed HTTP client for the controller API.
//
// It mirrors the API's wire format with its own response types, so
// command-line tools can talk to a running server without importing
// the server's router.
package apiclient

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

	"github.com/cocreateceo/tmux-builder-sub002/lib/netutil"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
	"github.com/cocreateceo/tmux-builder-sub002/lib/sessiondef"
	"github.com/cocreateceo/tmux-builder-sub002/lib/version"
)

// Error is a non-2xx response from the API.
type Error struct {
	Operation string
	Status    int
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Operation, e.Status, e.Message)
}

// Client talks to one controller API server.
type Client struct {
	httpClient *http.Client
	base       *url.URL
}

// New returns a Client for the server at address, which is either a
// host:port or a full http:// URL.
func New(address string) (*Client, error) {
	return NewWithHTTPClient(address, &http.Client{})
}

// NewWithHTTPClient is New with a caller-supplied HTTP client.
func NewWithHTTPClient(address string, httpClient *http.Client) (*Client, error) {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	base, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parsing server address %q: %w", address, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server address %q: scheme must be http or https", address)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &Client{httpClient: httpClient, base: base}, nil
}

// DispatchResult is the wire format of an acknowledged dispatch.
type DispatchResult struct {
	Session      session.Session `json:"session"`
	Attempts     int             `json:"attempts"`
	PromptDigest string          `json:"prompt_digest"`
}

// Health is the wire format of GET /healthz.
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Version  string `json:"version"`
}

// Start asks the server to create a session. The session is returned
// as created; bring-up continues on the server.
func (c *Client) Start(ctx context.Context, template sessiondef.Template) (session.Session, error) {
	var created session.Session
	err := c.do(ctx, "start", http.MethodPost, "/v1/sessions", template, http.StatusAccepted, &created)
	return created, err
}

// Get returns one session.
func (c *Client) Get(ctx context.Context, id string) (session.Session, error) {
	var s session.Session
	err := c.do(ctx, "status", http.MethodGet, sessionPath(id), nil, http.StatusOK, &s)
	return s, err
}

// List returns the live sessions.
func (c *Client) List(ctx context.Context) ([]session.Session, error) {
	var response struct {
		Sessions []session.Session `json:"sessions"`
	}
	err := c.do(ctx, "list", http.MethodGet, "/v1/sessions", nil, http.StatusOK, &response)
	return response.Sessions, err
}

// Dispatch sends a task and returns once the agent acknowledged it.
func (c *Client) Dispatch(ctx context.Context, id, task string) (DispatchResult, error) {
	var result DispatchResult
	body := map[string]string{"task": task}
	err := c.do(ctx, "dispatch", http.MethodPost, sessionPath(id)+"/dispatch", body, http.StatusOK, &result)
	return result, err
}

// Complete ends a session successfully.
func (c *Client) Complete(ctx context.Context, id string) (session.Session, error) {
	var s session.Session
	err := c.do(ctx, "complete", http.MethodPost, sessionPath(id)+"/complete", nil, http.StatusOK, &s)
	return s, err
}

// Kill ends a session.
func (c *Client) Kill(ctx context.Context, id string) (session.Session, error) {
	var s session.Session
	err := c.do(ctx, "kill", http.MethodDelete, sessionPath(id), nil, http.StatusOK, &s)
	return s, err
}

// Events returns up to limit of a session's most recent events.
func (c *Client) Events(ctx context.Context, id string, limit int) ([]progress.Event, error) {
	var response struct {
		Events []progress.Event `json:"events"`
	}
	path := sessionPath(id) + "/events?limit=" + strconv.Itoa(limit)
	err := c.do(ctx, "events", http.MethodGet, path, nil, http.StatusOK, &response)
	return response.Events, err
}

// Health reports the server's status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	err := c.do(ctx, "health", http.MethodGet, "/healthz", nil, http.StatusOK, &health)
	return health, err
}

// StreamURL returns the websocket URL of a session's push channel.
func (c *Client) StreamURL(id string) string {
	stream := *c.base
	stream.Scheme = "ws"
	if c.base.Scheme == "https" {
		stream.Scheme = "wss"
	}
	stream.Path += sessionPath(id) + "/stream"
	return stream.String()
}

func sessionPath(id string) string {
	return "/v1/sessions/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any, want int, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", operation, err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.base.String() + path
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	request.Header.Set("User-Agent", "tmux-builder/"+version.Short())
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer response.Body.Close()

	if response.StatusCode != want {
		return &Error{Operation: operation, Status: response.StatusCode, Message: errorMessage(response.Body)}
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("%s: decoding response: %w", operation, err)
	}
	return nil
}

// errorMessage extracts the "error" field of an error body, falling
// back to the raw body.
func errorMessage(body io.Reader) string {
	raw := netutil.ErrorBody(body)
	var decoded struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(raw), &decoded) == nil && decoded.Error != "" {
		return decoded.Error
	}
	return strings.TrimSpace(raw)
}
