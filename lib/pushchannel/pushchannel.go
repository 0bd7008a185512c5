// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package pushchannel streams a session's progress events to a
// websocket observer.
//
// Server frames are progress.Frame JSON objects. The only frames a
// client may send are application keepalives, {"type":"ping"}, which
// are answered with {"type":"pong"}. Protocol-level pings go out every
// heartbeat interval; a connection that has not produced a pong (or
// any other frame) within the pong timeout is treated as half-open
// and dropped.
package pushchannel

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cocreateceo/tmux-builder-sub002/lib/broadcast"
	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
	"github.com/cocreateceo/tmux-builder-sub002/lib/netutil"
)

// Source hands out subscriptions to a session's events.
type Source interface {
	Subscribe(sessionID string) (*broadcast.Subscription, error)
}

// Options configures a Handler. Zero durations select defaults.
type Options struct {
	Heartbeat    time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration

	// CheckOrigin is passed to the websocket upgrader. Nil accepts
	// every origin.
	CheckOrigin func(r *http.Request) bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Handler upgrades requests and runs one stream per connection.
type Handler struct {
	source   Source
	upgrader websocket.Upgrader
	options  Options
}

const maxClientFrame = 4096

// NewHandler returns a Handler streaming from source.
func NewHandler(source Source, options Options) *Handler {
	if options.Heartbeat <= 0 {
		options.Heartbeat = 20 * time.Second
	}
	if options.PongTimeout <= 0 {
		options.PongTimeout = 60 * time.Second
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = 10 * time.Second
	}
	if options.CheckOrigin == nil {
		options.CheckOrigin = func(*http.Request) bool { return true }
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		source:   source,
		upgrader: websocket.Upgrader{CheckOrigin: options.CheckOrigin},
		options:  options,
	}
}

// Serve streams sessionID's events over a websocket upgraded from r.
// It returns when the subscription ends, the client goes away, or the
// request context is cancelled. The subscription is taken before the
// upgrade, so replay starts from the moment of the request.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	subscription, err := h.source.Subscribe(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer subscription.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.options.Logger.Debug("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	logger := h.options.Logger.With("session_id", sessionID, "subscriber", subscription.ID())
	logger.Debug("observer connected", "remote", r.RemoteAddr)

	pongs := make(chan struct{}, 1)
	readerDone := make(chan struct{})
	go h.readPump(conn, pongs, readerDone, logger)

	ticker := h.options.Clock.NewTicker(h.options.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-subscription.Events():
			if !ok {
				h.closeWith(conn, subscription.Err())
				logger.Debug("stream ended", "reason", subscription.Err())
				return
			}
			if err := h.writeJSON(conn, event.Frame()); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					logger.Debug("observer write failed", "error", err)
				}
				return
			}
		case <-pongs:
			if err := h.writeJSON(conn, map[string]string{"type": "pong"}); err != nil {
				logger.Debug("observer write failed", "error", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.options.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debug("heartbeat failed", "error", err)
				return
			}
		case <-readerDone:
			logger.Debug("observer disconnected")
			return
		case <-r.Context().Done():
			h.closeWith(conn, broadcast.ErrShutdown)
			return
		}
	}
}

// readPump consumes client frames. Every frame, and every pong,
// extends the read deadline.
func (h *Handler) readPump(conn *websocket.Conn, pongs chan<- struct{}, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)

	extend := func() { conn.SetReadDeadline(time.Now().Add(h.options.PongTimeout)) }
	conn.SetReadLimit(maxClientFrame)
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("observer read failed", "error", err)
			}
			return
		}
		extend()
		if kind != websocket.TextMessage {
			continue
		}
		var frame struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &frame) != nil || frame.Type != "ping" {
			continue
		}
		select {
		case pongs <- struct{}{}:
		default:
		}
	}
}

func (h *Handler) writeJSON(conn *websocket.Conn, value any) error {
	conn.SetWriteDeadline(time.Now().Add(h.options.WriteTimeout))
	return conn.WriteJSON(value)
}

// closeWith sends a close frame naming why the stream ended.
func (h *Handler) closeWith(conn *websocket.Conn, reason error) {
	code, text := websocket.CloseNormalClosure, "session ended"
	switch {
	case errors.Is(reason, broadcast.ErrSlowObserver):
		code, text = websocket.CloseTryAgainLater, "observer fell behind"
	case errors.Is(reason, broadcast.ErrShutdown):
		code, text = websocket.CloseGoingAway, "server shutting down"
	}
	deadline := time.Now().Add(h.options.WriteTimeout)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
