// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"slices"
	"sync"
)

// Registry maps live session ids to values of type T. It is safe for
// concurrent use.
type Registry[T any] struct {
	mutex   sync.RWMutex
	entries map[string]T
}

// NewRegistry returns an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Add registers value under id, failing with *DuplicateError if id is
// taken.
func (r *Registry[T]) Add(id string, value T) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.entries[id]; ok {
		return &DuplicateError{ID: id}
	}
	r.entries[id] = value
	return nil
}

// Get returns the value for id or *NotFoundError.
func (r *Registry[T]) Get(id string) (T, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	value, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, &NotFoundError{ID: id}
	}
	return value, nil
}

// Remove deletes id and returns what was registered.
func (r *Registry[T]) Remove(id string) (T, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	value, ok := r.entries[id]
	delete(r.entries, id)
	return value, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry[T]) IDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered sessions.
func (r *Registry[T]) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}
