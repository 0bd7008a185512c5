// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/codec"
	"github.com/cocreateceo/tmux-builder-sub002/lib/netutil"
)

// ActionFunc processes a socket request for one action. raw is the
// full CBOR request, including the "action" field.
//
// A nil result produces {ok: true}. A non-nil result is encoded into
// the response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every socket response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

const (
	// socketMode restricts the socket to the user running the
	// orchestrator; agents run as the same user.
	socketMode = 0o600

	// ioTimeout bounds reading a request and writing its response.
	ioTimeout = 10 * time.Second

	// maxRequestSize bounds one request. A notify message is a line
	// of text.
	maxRequestSize = 64 * 1024
)

// ErrServed is returned by a second call to Serve.
var ErrServed = errors.New("socket server already served")

// SocketServer answers one CBOR request per connection on a Unix
// socket, routing it by its "action" field.
type SocketServer struct {
	path    string
	actions map[string]ActionFunc
	logger  *slog.Logger

	served      atomic.Bool
	ready       chan struct{}
	connections sync.WaitGroup
}

// NewSocketServer returns a server for the socket at path. Register
// actions with Handle before calling Serve.
func NewSocketServer(path string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		path:    path,
		actions: make(map[string]ActionFunc),
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Handle registers fn for action. Panics on a duplicate.
func (s *SocketServer) Handle(action string, fn ActionFunc) {
	if _, taken := s.actions[action]; taken {
		panic(fmt.Sprintf("service.SocketServer: action %q registered twice", action))
	}
	s.actions[action] = fn
}

// Ready is closed once the socket accepts connections.
func (s *SocketServer) Ready() <-chan struct{} { return s.ready }

// Serve accepts connections until ctx is done, then waits for the
// requests in flight. Whatever sits at the socket path beforehand is
// replaced, and the socket is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return ErrServed
	}
	listener, err := s.listen()
	if err != nil {
		return err
	}
	defer os.Remove(s.path)
	defer listener.Close()
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Debug("socket listening", "path", s.path)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accepting connection failed", "path", s.path, "error", err)
			continue
		}
		s.connections.Go(func() { s.serveConn(ctx, conn) })
	}
	s.connections.Wait()
	return nil
}

func (s *SocketServer) listen() (net.Listener, error) {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.path, err)
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, socketMode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restricting socket %s: %w", s.path, err)
	}
	return listener, nil
}

// serveConn reads one request, runs its action, and writes the
// response.
func (s *SocketServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ioTimeout))

	action, raw, err := readRequest(conn)
	if errors.Is(err, io.EOF) {
		// The peer hung up without asking anything.
		return
	}
	if err != nil {
		s.respond(conn, action, nil, err)
		return
	}
	fn, ok := s.actions[action]
	if !ok {
		s.respond(conn, action, nil, fmt.Errorf("unknown action %q", action))
		return
	}
	result, err := fn(ctx, raw)
	if err != nil {
		s.logger.Debug("action failed", "action", action, "error", err)
	}
	s.respond(conn, action, result, err)
}

// readRequest decodes one bounded request and extracts its action.
func readRequest(conn net.Conn) (string, []byte, error) {
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("invalid request: %w", err)
	}
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		return "", nil, fmt.Errorf("invalid request: %w", err)
	}
	if header.Action == "" {
		return "", nil, errors.New("missing required field: action")
	}
	return header.Action, raw, nil
}

// respond writes the response for a finished action: the error when
// there is one, otherwise ok with result as data.
func (s *SocketServer) respond(conn net.Conn, action string, result any, failure error) {
	response := Response{OK: failure == nil}
	if failure != nil {
		response.Error = failure.Error()
	} else if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			response = Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)}
		} else {
			response.Data = data
		}
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Debug("writing response failed", "action", action, "error", err)
	}
}
