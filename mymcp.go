package mymcp

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/dbbridge/mysql-mcp/internal/errprompt"
	"github.com/dbbridge/mysql-mcp/internal/hooks"
	"github.com/dbbridge/mysql-mcp/internal/protection"
	"github.com/dbbridge/mysql-mcp/internal/sanitize"
	"github.com/dbbridge/mysql-mcp/internal/timeout"
)

// MySQLMcp is the core engine that provides the Execute, ListTables, and
// DescribeTable tools over a single managed MySQL session. All exported
// methods are safe for concurrent use; statement execution is serialized so
// two calls never share the session's in-flight state.
type MySQLMcp struct {
	config        Config
	database      string
	conns         *connManager
	execMu        sync.Mutex // one statement in flight at a time
	gate          *protection.Gate
	cmdHooks      *hooks.Runner         // command-based hooks (CLI mode)
	goBeforeHooks []BeforeExecHookEntry // Go function hooks (library mode)
	goAfterHooks  []AfterExecHookEntry  // Go function hooks (library mode)
	sanitizer     *sanitize.Sanitizer
	errPrompts    *errprompt.Matcher
	timeoutMgr    *timeout.Manager
	logger        zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	serverHooks *ServerHooksConfig
}

// WithServerHooks passes command-based hook configuration to MySQLMcp.
// Mutually exclusive with Config.BeforeExecHooks/AfterExecHooks (Go hooks).
func WithServerHooks(h ServerHooksConfig) Option {
	return func(o *options) {
		o.serverHooks = &h
	}
}

// New creates a new MySQLMcp instance. conn carries the session parameters
// (typically from LoadEnv); the engine opens at most one database session,
// lazily, on first use. Panics on invalid config (programming errors).
// Returns error only for runtime failures.
func New(ctx context.Context, conn ConnConfig, config Config, logger zerolog.Logger, opts ...Option) (*MySQLMcp, error) {
	if conn.Database == "" {
		panic("mymcp: conn.Database must be non-empty")
	}

	db, err := sql.Open("mysql", conn.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %w", err)
	}
	// The handle backs exactly one logical session; keep the pool at one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	m, err := newFromDB(db, conn.Database, config, logger, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// newFromDB builds the engine on an existing database handle. Split out of
// New so tests can inject a handle backed by a fake driver.
func newFromDB(db *sql.DB, database string, config Config, logger zerolog.Logger, opts ...Option) (*MySQLMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Config validation (panics on invalid config) ---

	if config.Exec.DefaultTimeoutSeconds < 0 {
		panic("mymcp: exec.default_timeout_seconds must be >= 0")
	}
	if config.Exec.MaxSQLLength < 0 {
		panic("mymcp: exec.max_sql_length must be >= 0")
	}
	if config.Exec.MaxResultLength < 0 {
		panic("mymcp: exec.max_result_length must be >= 0")
	}

	// Apply defaults for zero values
	if config.Exec.DefaultTimeoutSeconds == 0 {
		config.Exec.DefaultTimeoutSeconds = 30
	}
	if config.Exec.ListTablesTimeoutSeconds == 0 {
		config.Exec.ListTablesTimeoutSeconds = 10
	}
	if config.Exec.DescribeTableTimeoutSeconds == 0 {
		config.Exec.DescribeTableTimeoutSeconds = 10
	}
	if config.Exec.MaxSQLLength == 0 {
		config.Exec.MaxSQLLength = 100000
	}
	if config.Exec.MaxResultLength == 0 {
		config.Exec.MaxResultLength = 100000
	}

	// Go hooks and command hooks are mutually exclusive.
	hasGoHooks := len(config.BeforeExecHooks) > 0 || len(config.AfterExecHooks) > 0
	hasCmdHooks := o.serverHooks != nil && (len(o.serverHooks.BeforeExec) > 0 || len(o.serverHooks.AfterExec) > 0)
	if hasGoHooks && hasCmdHooks {
		panic("mymcp: Go hooks (Config.BeforeExecHooks/AfterExecHooks) and command hooks (WithServerHooks) are mutually exclusive")
	}
	if hasGoHooks && config.DefaultHookTimeoutSeconds <= 0 {
		panic("mymcp: default_hook_timeout_seconds must be > 0 when Go hooks are configured")
	}
	for _, entry := range config.BeforeExecHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("mymcp: before_exec hook %q has negative timeout", entry.Name))
		}
	}
	for _, entry := range config.AfterExecHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("mymcp: after_exec hook %q has negative timeout", entry.Name))
		}
	}
	for _, rule := range config.Exec.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("mymcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}

	// --- Initialize internal components ---

	gate := protection.NewGate(protection.Config{
		AllowWrites:       config.AllowWrites,
		AllowedStatements: config.Exec.AllowedStatements,
	})

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		return nil, err
	}
	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		return nil, err
	}

	timeoutRules := make([]timeout.Rule, len(config.Exec.TimeoutRules))
	for i, r := range config.Exec.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Exec.DefaultTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})
	if err != nil {
		return nil, err
	}

	var cmdHooks *hooks.Runner
	if hasCmdHooks {
		entries := func(in []HookEntry) []hooks.Entry {
			result := make([]hooks.Entry, len(in))
			for i, e := range in {
				result[i] = hooks.Entry{
					Pattern: e.Pattern,
					Command: e.Command,
					Args:    e.Args,
					Timeout: time.Duration(e.TimeoutSeconds) * time.Second,
				}
			}
			return result
		}
		cmdHooks, err = hooks.NewRunner(hooks.Config{
			DefaultTimeout: time.Duration(config.DefaultHookTimeoutSeconds) * time.Second,
			BeforeExec:     entries(o.serverHooks.BeforeExec),
			AfterExec:      entries(o.serverHooks.AfterExec),
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	return &MySQLMcp{
		config:        config,
		database:      database,
		conns:         newConnManager(db, logger),
		gate:          gate,
		cmdHooks:      cmdHooks,
		goBeforeHooks: config.BeforeExecHooks,
		goAfterHooks:  config.AfterExecHooks,
		sanitizer:     san,
		errPrompts:    matcher,
		timeoutMgr:    tmgr,
		logger:        logger,
	}, nil
}

// Ping verifies the database session is reachable, opening it if needed.
// On failure the session is dropped so the next call reconnects.
func (m *MySQLMcp) Ping(ctx context.Context) error {
	m.execMu.Lock()
	defer m.execMu.Unlock()

	sess, err := m.conns.get(ctx)
	if err != nil {
		return err
	}
	if err := sess.PingContext(ctx); err != nil {
		m.conns.markBroken()
		return err
	}
	return nil
}

// SessionOpens returns how many database sessions have been opened since
// startup. Useful for observing connection lifecycle in tests and
// diagnostics.
func (m *MySQLMcp) SessionOpens() int64 {
	return m.conns.Opens()
}

// Close releases the database session and handle. Idempotent. Accepts a
// context for API forward-compatibility; close does not block on it.
func (m *MySQLMcp) Close(ctx context.Context) {
	m.conns.close()
}

// mapSanitizationRules converts mymcp SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapErrorPromptRules converts mymcp ErrorPromptRules to internal errprompt.Rules.
func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}
