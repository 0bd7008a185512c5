// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/cocreateceo/tmux-builder-sub002/cmd/tmux-builder/cli"
	"github.com/cocreateceo/tmux-builder-sub002/lib/apiclient"
	"github.com/cocreateceo/tmux-builder-sub002/lib/config"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
	"github.com/cocreateceo/tmux-builder-sub002/lib/sessiondef"
)

type startParams struct {
	clientParams
	Template    string
	Directory   string
	Label       string
	Task        string
	TaskFile    string
	Environment []string
	Wait        bool
	WaitTimeout time.Duration
}

func startCommand() *cli.Command {
	var params startParams
	return &cli.Command{
		Name:    "start",
		Summary: "Start an agent session",
		Description: `Start an agent session in a new tmux session.

The session is described by flags, by a JSONC template (--template),
or both: flags override the template's fields. A template given by
name is looked up in the configured templates directory.

The command returns once the session is registered. With --wait it
polls until the agent is ready or the session failed.`,
		Usage: "tmux-builder start [--template NAME|PATH] [--dir DIR] [--task TEXT] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("start")
			params.addFlags(flagSet)
			flagSet.StringVarP(&params.Template, "template", "t", "", "session template name or path")
			flagSet.StringVarP(&params.Directory, "dir", "C", "", "working directory of the agent (default: template's, else current)")
			flagSet.StringVar(&params.Label, "label", "", "human-readable label")
			flagSet.StringVar(&params.Task, "task", "", "initial task dispatched once the agent is ready")
			flagSet.StringVar(&params.TaskFile, "task-file", "", "read the initial task from a file")
			flagSet.StringArrayVarP(&params.Environment, "env", "e", nil, "extra environment variable KEY=VALUE (repeatable)")
			flagSet.BoolVar(&params.Wait, "wait", false, "wait until the agent is ready or the session failed")
			flagSet.DurationVar(&params.WaitTimeout, "wait-timeout", 5*time.Minute, "bound on --wait")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Start an agent in the current directory", Command: "tmux-builder start --label docs"},
			{Description: "Start from a template with an initial task", Command: "tmux-builder start -t website --task 'build the landing page' --wait"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			template, err := params.template()
			if err != nil {
				return err
			}
			client, err := params.client()
			if err != nil {
				return err
			}

			started, err := client.Start(ctx, *template)
			if err != nil {
				return err
			}
			logger.Debug("session registered", "session_id", started.ID)

			if params.Wait {
				waitCtx, cancel := context.WithTimeout(ctx, params.WaitTimeout)
				defer cancel()
				started, err = waitForBringUp(waitCtx, client, started.ID, time.Second)
				if err != nil {
					return err
				}
			}

			if done, err := params.EmitJSON(started); done {
				return err
			}
			fmt.Println(started.ID)
			if started.State == session.StateError {
				fmt.Fprintf(os.Stderr, "session failed: %s\n", started.StatusMessage)
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// template builds the session description from the template file and
// the flags.
func (p *startParams) template() (*sessiondef.Template, error) {
	template := &sessiondef.Template{}
	if p.Template != "" {
		path, err := resolveTemplate(p.Template)
		if err != nil {
			return nil, err
		}
		template, err = sessiondef.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if template.Label == "" {
			template.Label = sessiondef.NameFromPath(path)
		}
	}

	if p.Directory != "" {
		template.WorkingDirectory = p.Directory
	}
	if template.WorkingDirectory == "" {
		directory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		template.WorkingDirectory = directory
	}
	directory, err := filepath.Abs(template.WorkingDirectory)
	if err != nil {
		return nil, err
	}
	template.WorkingDirectory = directory

	if p.Label != "" {
		template.Label = p.Label
	}
	switch {
	case p.Task != "" && p.TaskFile != "":
		return nil, errors.New("--task and --task-file are mutually exclusive")
	case p.Task != "":
		template.InitialTask = p.Task
	case p.TaskFile != "":
		task, err := os.ReadFile(p.TaskFile)
		if err != nil {
			return nil, fmt.Errorf("reading task: %w", err)
		}
		template.InitialTask = string(task)
	}

	for _, assignment := range p.Environment {
		name, value, ok := strings.Cut(assignment, "=")
		if !ok {
			return nil, fmt.Errorf("--env %q: want KEY=VALUE", assignment)
		}
		if template.Environment == nil {
			template.Environment = make(map[string]string)
		}
		template.Environment[name] = value
	}

	if issues := sessiondef.Validate(template); len(issues) > 0 {
		return nil, fmt.Errorf("invalid session: %s", strings.Join(issues, "; "))
	}
	return template, nil
}

// resolveTemplate returns reference itself when it names an existing
// file, otherwise {templates}/{reference}.jsonc.
func resolveTemplate(reference string) (string, error) {
	if _, err := os.Stat(reference); err == nil {
		return reference, nil
	}
	if strings.ContainsRune(reference, filepath.Separator) {
		return "", fmt.Errorf("template %s not found", reference)
	}

	var cfg *config.Config
	var err error
	if os.Getenv(config.EnvironmentVariable) != "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return "", err
	}
	path := filepath.Join(cfg.Paths.Templates, strings.TrimSuffix(reference, ".jsonc")+".jsonc")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("template %q not found in %s", reference, cfg.Paths.Templates)
	}
	return path, nil
}

// waitForBringUp polls until the session has left CREATED and
// INITIALIZING.
func waitForBringUp(ctx context.Context, client *apiclient.Client, id string, interval time.Duration) (session.Session, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		current, err := client.Get(ctx, id)
		if err != nil {
			return session.Session{}, err
		}
		if current.State != session.StateCreated && current.State != session.StateInitializing {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return current, fmt.Errorf("waiting for session %s (state %s): %w", id, current.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

func dispatchCommand() *cli.Command {
	var params clientParams
	var taskFile string
	return &cli.Command{
		Name:    "dispatch",
		Summary: "Hand a task to a ready agent",
		Description: `Hand a task to a READY session and wait for the agent to
acknowledge it. The task is the remaining arguments joined by spaces,
or the contents of --file ("-" reads stdin).`,
		Usage: "tmux-builder dispatch <session-id> [task...] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("dispatch")
			params.addFlags(flagSet)
			flagSet.StringVarP(&taskFile, "file", "f", "", "read the task from a file")
			return flagSet
		},
		Examples: []cli.Example{
			{Command: "tmux-builder dispatch 3f2c... 'add a contact form to index.html'"},
			{Description: "Task from a file", Command: "tmux-builder dispatch 3f2c... -f task.md"},
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) == 0 {
				return errors.New("session id required")
			}
			task, err := readTask(args[1:], taskFile, os.Stdin)
			if err != nil {
				return err
			}
			client, err := params.client()
			if err != nil {
				return err
			}
			result, err := client.Dispatch(ctx, args[0], task)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Printf("acknowledged after %d attempt(s), instruction %d, prompt %s\n",
				result.Attempts, result.Session.InstructionCount, shortDigest(result.PromptDigest))
			return nil
		},
	}
}

func readTask(words []string, file string, stdin io.Reader) (string, error) {
	var task string
	switch {
	case file != "" && len(words) > 0:
		return "", errors.New("give the task as arguments or --file, not both")
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		task = string(data)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		task = string(data)
	default:
		task = strings.Join(words, " ")
	}
	if strings.TrimSpace(task) == "" {
		return "", errors.New("task is empty")
	}
	return task, nil
}

func statusCommand() *cli.Command {
	var params clientParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show one session, or list all",
		Description: `Show a session's state, or list every known session when no id
is given. Exits 1 when the session is in ERROR.`,
		Usage: "tmux-builder status [session-id] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("status")
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			client, err := params.client()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				sessions, err := client.List(ctx)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(sessions); done {
					return err
				}
				writeSessionTable(os.Stdout, sessions)
				return nil
			}

			current, err := client.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(current); !done {
				writeSession(os.Stdout, current)
			} else if err != nil {
				return err
			}
			if current.State == session.StateError {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func completeCommand() *cli.Command {
	return endCommand("complete", "Mark a session completed and close it",
		"End a READY session: mark it COMPLETED, close its event stream and kill its tmux session.",
		(*apiclient.Client).Complete)
}

func killCommand() *cli.Command {
	return endCommand("kill", "Kill a session",
		`Kill a session in any non-terminal state. The session ends in ERROR with the
message "killed".`,
		(*apiclient.Client).Kill)
}

func endCommand(name, summary, description string, end func(*apiclient.Client, context.Context, string) (session.Session, error)) *cli.Command {
	var params clientParams
	return &cli.Command{
		Name:        name,
		Summary:     summary,
		Description: description,
		Usage:       "tmux-builder " + name + " <session-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet(name)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return errors.New("exactly one session id required")
			}
			client, err := params.client()
			if err != nil {
				return err
			}
			ended, err := end(client, ctx, args[0])
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(ended); done {
				return err
			}
			fmt.Printf("%s %s\n", ended.ID, ended.State)
			return nil
		},
	}
}

func writeSessionTable(w io.Writer, sessions []session.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	table := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tSTATE\tPROGRESS\tTASKS\tLABEL\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(table, "%s\t%s\t%d%%\t%d\t%s\t%s\n",
			s.ID, s.State, s.Progress, s.InstructionCount, s.Label, s.UpdatedAt.Local().Format(time.DateTime))
	}
	table.Flush()
}

func writeSession(w io.Writer, s session.Session) {
	table := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	row := func(key, value string) {
		if value != "" {
			fmt.Fprintf(table, "%s:\t%s\n", key, value)
		}
	}
	row("id", s.ID)
	row("label", s.Label)
	row("state", string(s.State))
	row("directory", s.WorkingDirectory)
	row("tmux session", s.TerminalHandle)
	row("progress", fmt.Sprintf("%d%%", s.Progress))
	row("phase", s.Phase)
	row("status", s.StatusMessage)
	row("tasks", fmt.Sprintf("%d", s.InstructionCount))
	row("last prompt", shortDigest(s.LastPromptDigest))
	row("created", s.CreatedAt.Local().Format(time.DateTime))
	row("updated", s.UpdatedAt.Local().Format(time.DateTime))
	table.Flush()
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
