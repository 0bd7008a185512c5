// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout places session directories under Root.
type Layout struct {
	Root string
}

// Paths are the files of one session:
//
//	{root}/{id}/markers/{ready,ack,completed}.marker
//	{root}/{id}/prompt.txt
//	{root}/{id}/status.json
//	{root}/{id}/activity.log
//	{root}/{id}/notify.sock
//	{root}/{id}/bin/notify
type Paths struct {
	Dir          string
	Markers      string
	Prompt       string
	Status       string
	ActivityLog  string
	NotifySocket string
	NotifyScript string
}

// Paths returns the file locations for session id.
func (l Layout) Paths(id string) Paths {
	dir := filepath.Join(l.Root, id)
	return Paths{
		Dir:          dir,
		Markers:      filepath.Join(dir, "markers"),
		Prompt:       filepath.Join(dir, "prompt.txt"),
		Status:       filepath.Join(dir, "status.json"),
		ActivityLog:  filepath.Join(dir, "activity.log"),
		NotifySocket: filepath.Join(dir, "notify.sock"),
		NotifyScript: filepath.Join(dir, "bin", "notify"),
	}
}

// Create makes the session directory tree. It fails if the session
// directory already exists, so two sessions can never share files.
func (l Layout) Create(id string) (Paths, error) {
	paths := l.Paths(id)
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return paths, fmt.Errorf("creating session root: %w", err)
	}
	if err := os.Mkdir(paths.Dir, 0o755); err != nil {
		if os.IsExist(err) {
			return paths, &DuplicateError{ID: id}
		}
		return paths, fmt.Errorf("creating session directory: %w", err)
	}
	for _, dir := range []string{paths.Markers, filepath.Dir(paths.NotifyScript)} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return paths, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return paths, nil
}

// List returns the ids of every session directory under Root that has
// a status.json.
func (l Layout) List() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(l.Paths(entry.Name()).Status); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}
