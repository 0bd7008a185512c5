// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/cocreateceo/tmux-builder-sub002/lib/activitylog"
	"github.com/cocreateceo/tmux-builder-sub002/lib/broadcast"
	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
	"github.com/cocreateceo/tmux-builder-sub002/lib/dispatch"
	"github.com/cocreateceo/tmux-builder-sub002/lib/marker"
	"github.com/cocreateceo/tmux-builder-sub002/lib/notify"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
	"github.com/cocreateceo/tmux-builder-sub002/lib/tmux"
)

// Terminal is the terminal multiplexer the agents run in.
type Terminal interface {
	dispatch.Terminal
	NewSession(name string, options tmux.SessionOptions) error
	HasSession(name string) bool
	ForceKill(name string) error
	CapturePane(name string, maxLines int) (string, error)
}

// Timing holds the handshake and lifetime bounds.
type Timing struct {
	StartupDelay      time.Duration
	PollInterval      time.Duration
	SettleDelay       time.Duration
	ReadyTimeout      time.Duration
	AckTimeout        time.Duration
	Attempts          int
	Backoff           time.Duration
	BackoffMax        time.Duration
	ProcessingTimeout time.Duration
	SessionTimeout    time.Duration
}

// Options configures an Orchestrator.
type Options struct {
	Layout session.Layout

	// NotifyBinary is the absolute path of the notify helper. Empty
	// disables the notify channel; agents then report only through
	// markers.
	NotifyBinary string

	AgentCommand  []string
	SessionPrefix string
	CaptureLines  int
	Timing        Timing
	ArchiveLogs   bool

	Clock   clock.Clock
	Watcher marker.Watcher
	Logger  *slog.Logger
}

// StartRequest describes a new session.
type StartRequest struct {
	Label            string
	WorkingDirectory string
	InitialTask      string
	Environment      map[string]string
}

// Orchestrator owns every live session.
type Orchestrator struct {
	terminal     Terminal
	broadcaster  *broadcast.Broadcaster
	logs         *activitylog.Store
	registry     *session.Registry[*managed]
	synchronizer *marker.Synchronizer
	dispatcher   *dispatch.Dispatcher
	options      Options
	clock        clock.Clock
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  sync.WaitGroup
}

// New returns an Orchestrator. logs must be the Log behind
// broadcaster.
func New(terminal Terminal, broadcaster *broadcast.Broadcaster, logs *activitylog.Store, options Options) *Orchestrator {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Timing.Attempts < 1 {
		options.Timing.Attempts = 1
	}
	synchronizer := marker.NewSynchronizer(options.Clock, options.Watcher, options.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		terminal:     terminal,
		broadcaster:  broadcaster,
		logs:         logs,
		registry:     session.NewRegistry[*managed](),
		synchronizer: synchronizer,
		dispatcher:   dispatch.New(terminal, synchronizer, options.Clock, options.Logger),
		options:      options,
		clock:        options.Clock,
		logger:       options.Logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Create registers a new session in state CREATED. Nothing is started
// until BringUp.
func (o *Orchestrator) Create(request StartRequest) (session.Session, error) {
	if err := validateWorkingDirectory(request.WorkingDirectory); err != nil {
		return session.Session{}, err
	}
	if err := o.ctx.Err(); err != nil {
		return session.Session{}, errors.New("orchestrator is shutting down")
	}

	id := session.NewID()
	paths, err := o.options.Layout.Create(id)
	if err != nil {
		return session.Session{}, err
	}
	target := dispatch.Target{
		SessionID: id,
		Terminal:  session.TerminalHandle(o.options.SessionPrefix, id),
		Paths:     paths,
	}

	machine, err := session.NewMachine(session.Session{
		ID:               id,
		Label:            request.Label,
		WorkingDirectory: request.WorkingDirectory,
		TerminalHandle:   target.Terminal,
	}, paths.Status, o.clock, o.logger)
	if err != nil {
		os.RemoveAll(paths.Dir)
		return session.Session{}, err
	}
	if err := o.broadcaster.Open(id); err != nil {
		os.RemoveAll(paths.Dir)
		return session.Session{}, err
	}

	m := newManaged(o.ctx, machine, target, request)
	if err := o.registry.Add(id, m); err != nil {
		o.broadcaster.Close(id, nil)
		return session.Session{}, err
	}
	o.logger.Info("session created",
		"session_id", id,
		"label", request.Label,
		"working_directory", request.WorkingDirectory,
	)
	return machine.Snapshot(), nil
}

// Start creates a session and brings it up, returning once it is READY
// (and its initial task, if any, has been acknowledged) or has failed.
func (o *Orchestrator) Start(ctx context.Context, request StartRequest) (session.Session, error) {
	created, err := o.Create(request)
	if err != nil {
		return session.Session{}, err
	}
	err = o.BringUp(ctx, created.ID)
	return o.snapshotOrLoad(created.ID), err
}

// Launch creates a session and brings it up in the background.
func (o *Orchestrator) Launch(request StartRequest) (session.Session, error) {
	created, err := o.Create(request)
	if err != nil {
		return session.Session{}, err
	}
	o.group.Go(func() {
		if err := o.BringUp(o.ctx, created.ID); err != nil {
			o.logger.Warn("background bring-up failed", "session_id", created.ID, "error", err)
		}
	})
	return created, nil
}

// BringUp starts a CREATED session's agent and runs the ready
// handshake. A failure moves the session to ERROR and tears it down.
// When the session was created with an initial task it is dispatched
// once the session is READY.
func (o *Orchestrator) BringUp(ctx context.Context, id string) error {
	m, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	if _, err := m.machine.TransitionFrom(session.StateCreated, session.StateInitializing, "starting agent"); err != nil {
		return err
	}
	o.publishLifecycle(m, "starting agent")

	ctx, stop := bind(ctx, m.ctx)
	defer stop()

	if err := o.startNotify(m); err != nil {
		o.fail(m, fmt.Sprintf("starting notify channel: %v", err))
		return err
	}

	options := tmux.SessionOptions{
		WorkingDirectory: m.request.WorkingDirectory,
		Environment:      o.sessionEnvironment(m),
		Command:          o.options.AgentCommand,
	}
	if err := o.terminal.NewSession(m.target.Terminal, options); err != nil {
		err = &session.DeliveryError{ID: id, Op: "create", Err: err}
		o.fail(m, err.Error())
		return err
	}
	// A teardown that ran while the terminal was being created found
	// nothing to kill.
	if m.isTornDown() {
		o.killTerminal(m)
		return errSessionEnded(id)
	}
	m.armSessionTimer(o.clock, o.options.Timing.SessionTimeout, func() {
		o.fail(m, fmt.Sprintf("session exceeded its %v lifetime", o.options.Timing.SessionTimeout))
	})

	if delay := o.options.Timing.StartupDelay; delay > 0 {
		select {
		case <-ctx.Done():
			o.fail(m, "bring-up cancelled")
			return ctx.Err()
		case <-o.clock.After(delay):
		}
	}

	attempts, err := o.dispatcher.AwaitReady(ctx, m.target, o.handshake(o.options.Timing.ReadyTimeout))
	if err != nil {
		o.fail(m, o.withDiagnostics(m, fmt.Sprintf("ready handshake failed: %v", err)))
		return err
	}
	if _, err := m.machine.TransitionFrom(session.StateInitializing, session.StateReady, "agent ready"); err != nil {
		o.fail(m, fmt.Sprintf("recording ready state: %v", err))
		o.killTerminal(m)
		return err
	}
	o.publishLifecycle(m, "agent ready")
	o.logger.Info("session ready", "session_id", id, "attempts", attempts)

	if task := m.request.InitialTask; strings.TrimSpace(task) != "" {
		if _, err := o.Dispatch(ctx, id, task); err != nil {
			return fmt.Errorf("dispatching initial task: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) killTerminal(m *managed) {
	if err := o.terminal.ForceKill(m.target.Terminal); err != nil && !errors.Is(err, tmux.ErrNoSession) {
		o.logger.Warn("killing terminal failed", "session_id", m.id(), "terminal", m.target.Terminal, "error", err)
	}
}

func errSessionEnded(id string) error {
	return fmt.Errorf("session %s ended during bring-up", id)
}

func (o *Orchestrator) startNotify(m *managed) error {
	if o.options.NotifyBinary == "" {
		return nil
	}
	paths := m.target.Paths
	if err := notify.WriteScript(paths.NotifyScript, o.options.NotifyBinary, paths.NotifySocket); err != nil {
		return err
	}

	server := notify.NewServer(paths.NotifySocket, m.id(), func(_ context.Context, event progress.Event) (progress.Event, error) {
		return o.HandleEvent(event)
	}, o.logger)
	serveErr := make(chan error, 1)
	o.group.Go(func() { serveErr <- server.Serve(m.ctx) })

	select {
	case <-server.Ready():
		return nil
	case err := <-serveErr:
		return err
	}
}

func (o *Orchestrator) sessionEnvironment(m *managed) map[string]string {
	environment := make(map[string]string, len(m.request.Environment)+3)
	for key, value := range m.request.Environment {
		environment[key] = value
	}
	environment["TMUX_BUILDER_SESSION_ID"] = m.id()
	environment["TMUX_BUILDER_MARKERS"] = m.target.Paths.Markers
	if o.options.NotifyBinary != "" {
		environment["TMUX_BUILDER_NOTIFY"] = m.target.Paths.NotifyScript
	}
	return environment
}

func (o *Orchestrator) handshake(timeout time.Duration) marker.HandshakeOptions {
	timing := o.options.Timing
	return marker.HandshakeOptions{
		Attempts: timing.Attempts,
		Backoff:  marker.Backoff{Base: timing.Backoff, Max: timing.BackoffMax},
		Wait: marker.WaitOptions{
			Timeout:      timeout,
			PollInterval: timing.PollInterval,
			SettleDelay:  timing.SettleDelay,
		},
	}
}

// withDiagnostics appends the last lines of the agent's pane to
// message.
func (o *Orchestrator) withDiagnostics(m *managed, message string) string {
	if o.options.CaptureLines <= 0 {
		return message
	}
	pane, err := o.terminal.CapturePane(m.target.Terminal, o.options.CaptureLines)
	if err != nil {
		return message
	}
	var lines []string
	for line := range strings.Lines(ansi.Strip(pane)) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return message
	}
	return message + "; last output: " + strings.Join(lines, " | ")
}

func (o *Orchestrator) publishLifecycle(m *managed, message string) {
	_, err := o.broadcaster.Publish(progress.Event{
		SessionID: m.id(),
		Type:      progress.TypeStatus,
		Message:   message,
		Phase:     progress.PhaseLifecycle,
	})
	if err != nil {
		o.logger.Warn("publishing lifecycle event failed", "session_id", m.id(), "error", err)
	}
}

func (o *Orchestrator) snapshotOrLoad(id string) session.Session {
	if s, err := o.Get(id); err == nil {
		return s
	}
	return session.Session{ID: id}
}

func validateWorkingDirectory(path string) error {
	if path == "" {
		return errors.New("working directory is required")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("working directory %q must be absolute", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %q is not a directory", path)
	}
	return nil
}

// bind returns a context cancelled when either parent is.
func bind(ctx, other context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return bound, func() {
		stop()
		cancel()
	}
}
