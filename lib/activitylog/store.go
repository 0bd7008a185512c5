// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package activitylog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

// Store keeps one Writer open per session, opening logs on first use.
type Store struct {
	pathFor func(sessionID string) string

	mutex   sync.Mutex
	writers map[string]*Writer
}

// NewStore returns a Store that places each session's log at
// pathFor(sessionID). The directory must exist by the first Append.
func NewStore(pathFor func(sessionID string) string) *Store {
	return &Store{pathFor: pathFor, writers: make(map[string]*Writer)}
}

// Path returns the log path for a session.
func (s *Store) Path(sessionID string) string { return s.pathFor(sessionID) }

// Append writes event to the log of event.SessionID.
func (s *Store) Append(event progress.Event) error {
	if event.SessionID == "" {
		return fmt.Errorf("appending activity event: missing session id")
	}
	writer, err := s.writer(event.SessionID)
	if err != nil {
		return err
	}
	return writer.Append(event)
}

// Tail returns the last n events of a session's log.
func (s *Store) Tail(sessionID string, n int) ([]progress.Event, error) {
	return Tail(s.pathFor(sessionID), n)
}

// Close closes a session's writer, if open.
func (s *Store) Close(sessionID string) error {
	s.mutex.Lock()
	writer := s.writers[sessionID]
	delete(s.writers, sessionID)
	s.mutex.Unlock()

	if writer == nil {
		return nil
	}
	return writer.Close()
}

// Archive closes a session's writer and compresses its log.
func (s *Store) Archive(sessionID string) (string, error) {
	if err := s.Close(sessionID); err != nil {
		return "", err
	}
	return Archive(s.pathFor(sessionID))
}

// CloseAll closes every open writer.
func (s *Store) CloseAll() error {
	s.mutex.Lock()
	writers := s.writers
	s.writers = make(map[string]*Writer)
	s.mutex.Unlock()

	var errs []error
	for _, writer := range writers {
		errs = append(errs, writer.Close())
	}
	return errors.Join(errs...)
}

func (s *Store) writer(sessionID string) (*Writer, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if writer, ok := s.writers[sessionID]; ok {
		return writer, nil
	}
	writer, err := Open(s.pathFor(sessionID))
	if err != nil {
		return nil, err
	}
	s.writers[sessionID] = writer
	return writer, nil
}
