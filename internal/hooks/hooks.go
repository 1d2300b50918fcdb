// Package hooks runs command-based guardrails around statement execution.
// A BeforeExec hook receives the SQL text on stdin and answers with a JSON
// verdict (accept, optionally a modified statement); an AfterExec hook does
// the same for the serialized result. Hooks are matched by regex and run in
// configuration order as a middleware chain.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config is the hook runner's own config type.
type Config struct {
	DefaultTimeout time.Duration
	BeforeExec     []Entry
	AfterExec      []Entry
}

// Entry defines a single command-based hook.
type Entry struct {
	Pattern string
	Command string
	Args    []string
	Timeout time.Duration // 0 means use DefaultTimeout
}

// BeforeExecResult is the JSON response expected from a before_exec hook.
type BeforeExecResult struct {
	Accept       bool   `json:"accept"`
	ModifiedSQL  string `json:"modified_sql,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// AfterExecResult is the JSON response expected from an after_exec hook.
type AfterExecResult struct {
	Accept         bool   `json:"accept"`
	ModifiedResult string `json:"modified_result,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

type compiledHook struct {
	pattern *regexp.Regexp
	command string
	args    []string
	timeout time.Duration
}

// Runner executes command-based hooks.
type Runner struct {
	beforeExec []compiledHook
	afterExec  []compiledHook
	logger     zerolog.Logger
}

// NewRunner creates a new Runner. Returns an error on invalid regex or
// missing default timeout.
func NewRunner(config Config, logger zerolog.Logger) (*Runner, error) {
	if config.DefaultTimeout == 0 && (len(config.BeforeExec) > 0 || len(config.AfterExec) > 0) {
		return nil, errors.New("hooks: default hook timeout must be > 0 when hooks are configured")
	}

	compile := func(entries []Entry) ([]compiledHook, error) {
		compiled := make([]compiledHook, len(entries))
		for i, e := range entries {
			re, err := regexp.Compile(e.Pattern)
			if err != nil {
				return nil, fmt.Errorf("hooks: invalid regex pattern %q: %v", e.Pattern, err)
			}
			timeout := e.Timeout
			if timeout == 0 {
				timeout = config.DefaultTimeout
			}
			compiled[i] = compiledHook{
				pattern: re,
				command: e.Command,
				args:    e.Args,
				timeout: timeout,
			}
		}
		return compiled, nil
	}

	before, err := compile(config.BeforeExec)
	if err != nil {
		return nil, err
	}
	after, err := compile(config.AfterExec)
	if err != nil {
		return nil, err
	}
	return &Runner{beforeExec: before, afterExec: after, logger: logger}, nil
}

// HasAfterExecHooks returns true if any AfterExec hooks are configured.
func (r *Runner) HasAfterExecHooks() bool {
	return len(r.afterExec) > 0
}

// RunBeforeExec runs matching BeforeExec hooks in a middleware chain.
// Returns the (possibly modified) SQL and the commands that ran.
func (r *Runner) RunBeforeExec(ctx context.Context, sql string) (string, []string, error) {
	current := sql
	var executed []string
	for _, hook := range r.beforeExec {
		if !hook.pattern.MatchString(current) {
			continue
		}
		output, err := r.executeHook(ctx, hook, current)
		if err != nil {
			return "", executed, fmt.Errorf("before_exec hook error: %w", err)
		}
		executed = append(executed, hook.command)

		var result BeforeExecResult
		if err := json.Unmarshal(output, &result); err != nil {
			return "", executed, fmt.Errorf("before_exec hook returned unparseable response (command: %s): %w", hook.command, err)
		}

		if !result.Accept {
			errMsg := "statement rejected by hook"
			if result.ErrorMessage != "" {
				errMsg = result.ErrorMessage
			}
			return "", executed, errors.New(errMsg)
		}
		if result.ModifiedSQL != "" {
			current = result.ModifiedSQL
		}
	}
	return current, executed, nil
}

// RunAfterExec runs matching AfterExec hooks in a middleware chain over the
// serialized result. Returns the (possibly modified) result JSON and the
// commands that ran.
func (r *Runner) RunAfterExec(ctx context.Context, resultJSON string) (string, []string, error) {
	current := resultJSON
	var executed []string
	for _, hook := range r.afterExec {
		if !hook.pattern.MatchString(current) {
			continue
		}
		output, err := r.executeHook(ctx, hook, current)
		if err != nil {
			return "", executed, fmt.Errorf("after_exec hook error: %w", err)
		}
		executed = append(executed, hook.command)

		var result AfterExecResult
		if err := json.Unmarshal(output, &result); err != nil {
			return "", executed, fmt.Errorf("after_exec hook returned unparseable response (command: %s): %w", hook.command, err)
		}

		if !result.Accept {
			errMsg := "result rejected by hook"
			if result.ErrorMessage != "" {
				errMsg = result.ErrorMessage
			}
			return "", executed, errors.New(errMsg)
		}
		if result.ModifiedResult != "" {
			current = result.ModifiedResult
		}
	}
	return current, executed, nil
}

func (r *Runner) executeHook(ctx context.Context, hook compiledHook, input string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, hook.timeout)
	defer cancel()

	// Command and args are passed separately — no shell interpretation.
	cmd := exec.CommandContext(ctx, hook.command, hook.args...)
	cmd.Stdin = strings.NewReader(input)

	// Stdout is the JSON verdict; stderr is captured for logging only.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			r.logger.Warn().Str("command", hook.command).Str("stderr", stderr.String()).Msg("hook stderr output")
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("hook timed out: %s", hook.command)
		}
		return nil, fmt.Errorf("hook failed (command: %s): %w", hook.command, err)
	}
	if stderr.Len() > 0 {
		r.logger.Debug().Str("command", hook.command).Str("stderr", stderr.String()).Msg("hook stderr output")
	}
	return output, nil
}
