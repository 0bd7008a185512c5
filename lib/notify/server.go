// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cocreateceo/tmux-builder-sub002/lib/codec"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/service"
)

// Publisher receives every event a session's agent emits and returns
// it as published (with seq and timestamp assigned).
type Publisher func(ctx context.Context, event progress.Event) (progress.Event, error)

// Server is one session's notify socket.
type Server struct {
	sessionID string
	socket    *service.SocketServer
	publish   Publisher
	logger    *slog.Logger
}

// NewServer returns a server for sessionID listening on socketPath.
func NewServer(socketPath, sessionID string, publish Publisher, logger *slog.Logger) *Server {
	s := &Server{
		sessionID: sessionID,
		socket:    service.NewSocketServer(socketPath, logger),
		publish:   publish,
		logger:    logger,
	}
	s.socket.Handle(ActionEmit, s.handleEmit)
	return s
}

// Serve runs until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error { return s.socket.Serve(ctx) }

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} { return s.socket.Ready() }

func (s *Server) handleEmit(ctx context.Context, raw []byte) (any, error) {
	var request Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding emit request: %w", err)
	}

	event := progress.Event{
		SessionID: s.sessionID,
		Type:      request.Type,
		Message:   request.Message,
		Percent:   request.Percent,
		Phase:     request.Phase,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	published, err := s.publish(ctx, event)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("agent event",
		"session_id", s.sessionID,
		"type", published.Type,
		"seq", published.Seq,
	)
	return Reply{Seq: published.Seq}, nil
}
