// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "TMUX_BUILDER_CONFIG"

// Environment is the deployment type.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete orchestrator configuration.
type Config struct {
	Environment Environment     `yaml:"environment"`
	Paths       PathsConfig     `yaml:"paths"`
	Tmux        TmuxConfig      `yaml:"tmux"`
	Timing      TimingConfig    `yaml:"timing"`
	Broadcast   BroadcastConfig `yaml:"broadcast"`
	HTTP        HTTPConfig      `yaml:"http"`

	// Per-environment sections, decoded over the base values.
	Development yaml.Node `yaml:"development,omitempty"`
	Staging     yaml.Node `yaml:"staging,omitempty"`
	Production  yaml.Node `yaml:"production,omitempty"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	// Root holds one directory per session.
	Root string `yaml:"root"`

	// NotifyBinary is the tmux-builder-notify executable the
	// per-session wrapper scripts exec. A bare name is resolved
	// through PATH when the daemon starts.
	NotifyBinary string `yaml:"notify_binary"`

	// Templates is the default directory for session templates.
	Templates string `yaml:"templates"`
}

// TmuxConfig configures the terminal multiplexer.
type TmuxConfig struct {
	// Socket is the tmux server socket. A dedicated server keeps
	// agent sessions apart from the user's own tmux.
	Socket string `yaml:"socket"`

	// ConfigFile is passed to tmux -f. "/dev/null" ignores
	// ~/.tmux.conf.
	ConfigFile string `yaml:"config_file"`

	// AgentCommand is the argument vector started in each session.
	AgentCommand []string `yaml:"agent_command"`

	// SessionPrefix is prepended to the session id to name the tmux
	// session.
	SessionPrefix string `yaml:"session_prefix"`

	// CaptureLines is how much pane history is attached to bring-up
	// and dispatch failures.
	CaptureLines int `yaml:"capture_lines"`
}

// TimingConfig holds the handshake timings. The defaults suit an
// interactive coding agent in tmux and are expected to be retuned.
type TimingConfig struct {
	StartupDelay      time.Duration `yaml:"startup_delay"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	AckTimeout        time.Duration `yaml:"ack_timeout"`
	Attempts          int           `yaml:"attempts"`
	Backoff           time.Duration `yaml:"backoff"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	SessionTimeout    time.Duration `yaml:"session_timeout"`
}

// BroadcastConfig configures event fan-out.
type BroadcastConfig struct {
	Replay      int           `yaml:"replay"`
	QueueSize   int           `yaml:"queue_size"`
	Overflow    string        `yaml:"overflow"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	PongTimeout time.Duration `yaml:"pong_timeout"`

	// ArchiveLogs compresses a session's activity log when it ends.
	ArchiveLogs bool `yaml:"archive_logs"`
}

// HTTPConfig configures the controller API.
type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// WriteTimeout bounds a response. Zero means none, which a
	// dispatch request holding the whole handshake needs.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used for any key the file does
// not set.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:         "${HOME}/.local/state/tmux-builder/sessions",
			NotifyBinary: "tmux-builder-notify",
			Templates:    "${HOME}/.config/tmux-builder/templates",
		},
		Tmux: TmuxConfig{
			Socket:        "${TMUX_BUILDER_ROOT}/tmux.sock",
			ConfigFile:    "/dev/null",
			AgentCommand:  []string{"claude"},
			SessionPrefix: "tb-",
			CaptureLines:  40,
		},
		Timing: TimingConfig{
			StartupDelay:      3 * time.Second,
			PollInterval:      500 * time.Millisecond,
			SettleDelay:       2 * time.Second,
			ReadyTimeout:      60 * time.Second,
			AckTimeout:        30 * time.Second,
			Attempts:          3,
			Backoff:           2 * time.Second,
			BackoffMax:        10 * time.Second,
			ProcessingTimeout: 2 * time.Hour,
			SessionTimeout:    24 * time.Hour,
		},
		Broadcast: BroadcastConfig{
			Replay:      50,
			QueueSize:   256,
			Overflow:    "disconnect",
			Heartbeat:   20 * time.Second,
			PongTimeout: 60 * time.Second,
			ArchiveLogs: true,
		},
		HTTP: HTTPConfig{
			Address:         "127.0.0.1:8742",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load loads the file named by TMUX_BUILDER_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your tmux-builder.yaml, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over Default, applies the
// section for the configured environment, and expands path variables.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is LoadFile for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() error {
	var section *yaml.Node
	switch c.Environment {
	case Development:
		section = &c.Development
	case Staging:
		section = &c.Staging
	case Production:
		section = &c.Production
	default:
		return nil
	}
	if section.Kind == 0 {
		return nil
	}

	environment := c.Environment
	if err := section.Decode(c); err != nil {
		return fmt.Errorf("applying %s overrides: %w", environment, err)
	}
	// An override section may not switch environments.
	c.Environment = environment
	return nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["TMUX_BUILDER_ROOT"] = c.Paths.Root

	c.Paths.NotifyBinary = expandVars(c.Paths.NotifyBinary, vars)
	c.Paths.Templates = expandVars(c.Paths.Templates, vars)
	c.Tmux.Socket = expandVars(c.Tmux.Socket, vars)
	c.Tmux.ConfigFile = expandVars(c.Tmux.ConfigFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, looking in vars
// before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value := vars[name]; value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	} else if !filepath.IsAbs(c.Paths.Root) {
		errs = append(errs, fmt.Errorf("paths.root %q must be absolute", c.Paths.Root))
	}
	if c.Paths.NotifyBinary == "" {
		errs = append(errs, errors.New("paths.notify_binary is required"))
	}

	if c.Tmux.Socket == "" {
		errs = append(errs, errors.New("tmux.socket is required"))
	}
	if len(c.Tmux.AgentCommand) == 0 || c.Tmux.AgentCommand[0] == "" {
		errs = append(errs, errors.New("tmux.agent_command is required"))
	}
	if c.Tmux.CaptureLines < 0 {
		errs = append(errs, errors.New("tmux.capture_lines must not be negative"))
	}

	positive := map[string]time.Duration{
		"timing.poll_interval":      c.Timing.PollInterval,
		"timing.ready_timeout":      c.Timing.ReadyTimeout,
		"timing.ack_timeout":        c.Timing.AckTimeout,
		"timing.processing_timeout": c.Timing.ProcessingTimeout,
		"timing.session_timeout":    c.Timing.SessionTimeout,
		"broadcast.heartbeat":       c.Broadcast.Heartbeat,
		"broadcast.pong_timeout":    c.Broadcast.PongTimeout,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	nonNegative := map[string]time.Duration{
		"timing.startup_delay":  c.Timing.StartupDelay,
		"timing.settle_delay":   c.Timing.SettleDelay,
		"timing.backoff":        c.Timing.Backoff,
		"timing.backoff_max":    c.Timing.BackoffMax,
		"http.shutdown_timeout": c.HTTP.ShutdownTimeout,
		"http.write_timeout":    c.HTTP.WriteTimeout,
	}
	for _, key := range sortedKeys(nonNegative) {
		if nonNegative[key] < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", key))
		}
	}
	if c.Timing.Attempts < 1 {
		errs = append(errs, errors.New("timing.attempts must be at least 1"))
	}
	if c.Broadcast.PongTimeout > 0 && c.Broadcast.PongTimeout <= c.Broadcast.Heartbeat {
		errs = append(errs, errors.New("broadcast.pong_timeout must exceed broadcast.heartbeat"))
	}

	if c.Broadcast.Replay < 1 {
		errs = append(errs, errors.New("broadcast.replay must be at least 1"))
	}
	if c.Broadcast.QueueSize < 1 {
		errs = append(errs, errors.New("broadcast.queue_size must be at least 1"))
	}
	if c.Broadcast.Overflow != "disconnect" && c.Broadcast.Overflow != "drop-oldest" {
		errs = append(errs, fmt.Errorf("broadcast.overflow must be disconnect or drop-oldest, not %q", c.Broadcast.Overflow))
	}

	if c.HTTP.Address == "" {
		errs = append(errs, errors.New("http.address is required"))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the session root.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Paths.Root, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.Root, err)
	}
	if dir := filepath.Dir(c.Tmux.Socket); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// NotifyBinaryPath resolves Paths.NotifyBinary to an absolute path:
// as given when it contains a slash, otherwise through PATH.
func (c *Config) NotifyBinaryPath() (string, error) {
	name := c.Paths.NotifyBinary
	if filepath.Base(name) != name {
		absolute, err := filepath.Abs(name)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(absolute); err != nil {
			return "", fmt.Errorf("notify binary: %w", err)
		}
		return absolute, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return filepath.Abs(path)
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
