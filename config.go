package mymcp

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ConnConfig holds the MySQL session parameters. It is constructed once at
// process start (typically via LoadEnv) and passed into New — the engine
// never reads the environment ad hoc.
type ConnConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`

	// Optional session knobs.
	Charset             string `json:"charset,omitempty"`
	TLS                 string `json:"tls,omitempty"` // go-sql-driver tls param: "true", "skip-verify", or a registered config name
	DialTimeoutSeconds  int    `json:"dial_timeout_seconds,omitempty"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds,omitempty"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds,omitempty"`
}

// LoadEnv reads the connection configuration from MYSQL_HOST, MYSQL_PORT,
// MYSQL_USER, MYSQL_PASSWORD, and MYSQL_DATABASE. Host defaults to
// "localhost" and port to 3306; user, password, and database are required.
func LoadEnv() (ConnConfig, error) {
	conn := ConnConfig{
		Host:     os.Getenv("MYSQL_HOST"),
		User:     os.Getenv("MYSQL_USER"),
		Password: os.Getenv("MYSQL_PASSWORD"),
		Database: os.Getenv("MYSQL_DATABASE"),
	}
	if conn.Host == "" {
		conn.Host = "localhost"
	}

	portStr := os.Getenv("MYSQL_PORT")
	if portStr == "" {
		portStr = "3306"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return ConnConfig{}, fmt.Errorf("invalid MYSQL_PORT %q: must be a positive integer", portStr)
	}
	conn.Port = port

	var missing []string
	if conn.User == "" {
		missing = append(missing, "MYSQL_USER")
	}
	if conn.Password == "" {
		missing = append(missing, "MYSQL_PASSWORD")
	}
	if conn.Database == "" {
		missing = append(missing, "MYSQL_DATABASE")
	}
	if len(missing) > 0 {
		return ConnConfig{}, fmt.Errorf("missing required database configuration: %s", strings.Join(missing, ", "))
	}

	return conn, nil
}

// DSN renders the connection parameters into a go-sql-driver DSN.
// ParseTime is always on so DATETIME/TIMESTAMP columns arrive as time.Time
// and can be normalized to RFC 3339 text.
func (c ConnConfig) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	if c.Charset != "" {
		mc.Params = map[string]string{"charset": c.Charset}
	}
	if c.TLS != "" {
		mc.TLSConfig = c.TLS
	}
	if c.DialTimeoutSeconds > 0 {
		mc.Timeout = time.Duration(c.DialTimeoutSeconds) * time.Second
	}
	if c.ReadTimeoutSeconds > 0 {
		mc.ReadTimeout = time.Duration(c.ReadTimeoutSeconds) * time.Second
	}
	if c.WriteTimeoutSeconds > 0 {
		mc.WriteTimeout = time.Duration(c.WriteTimeoutSeconds) * time.Second
	}
	return mc.FormatDSN()
}

// Config is the base engine configuration used by library mode via New().
type Config struct {
	Exec                      ExecConfig         `json:"exec"`
	ErrorPrompts              []ErrorPromptRule  `json:"error_prompts"`
	Sanitization              []SanitizationRule `json:"sanitization"`
	AllowWrites               bool               `json:"allow_writes"`
	DefaultHookTimeoutSeconds int                `json:"default_hook_timeout_seconds"`

	// Library mode: Go function hooks (not serializable).
	// Mutually exclusive with ServerConfig.ServerHooks.
	BeforeExecHooks []BeforeExecHookEntry `json:"-"`
	AfterExecHooks  []AfterExecHookEntry  `json:"-"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Server      ServerSettings    `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
	ServerHooks ServerHooksConfig `json:"server_hooks"`
}

// ServerSettings holds transport settings for CLI mode. Port 0 means stdio
// transport (the default for MCP hosts that spawn the server as a child
// process); a positive port serves streamable HTTP instead.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stderr (default), stdout, or file path
}

// ExecConfig holds statement execution settings.
type ExecConfig struct {
	DefaultTimeoutSeconds       int           `json:"default_timeout_seconds"`
	ListTablesTimeoutSeconds    int           `json:"list_tables_timeout_seconds"`
	DescribeTableTimeoutSeconds int           `json:"describe_table_timeout_seconds"`
	MaxSQLLength                int           `json:"max_sql_length"`
	MaxResultLength             int           `json:"max_result_length"`
	TimeoutRules                []TimeoutRule `json:"timeout_rules"`

	// AllowedStatements overrides the read-only leading-keyword allow-list
	// (SELECT, SHOW, DESCRIBE, DESC, EXPLAIN). Ignored when AllowWrites is set.
	AllowedStatements []string `json:"allowed_statements"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based field sanitization rule.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// ServerHooksConfig holds command-based hook configuration for CLI mode.
type ServerHooksConfig struct {
	BeforeExec []HookEntry `json:"before_exec"`
	AfterExec  []HookEntry `json:"after_exec"`
}

// HookEntry defines a single command-based hook.
type HookEntry struct {
	Pattern        string   `json:"pattern"`
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// BeforeExecHook can inspect and modify statements before execution.
type BeforeExecHook interface {
	Run(ctx context.Context, sql string) (string, error)
}

// AfterExecHook can inspect and modify results after execution.
type AfterExecHook interface {
	Run(ctx context.Context, result *ExecuteOutput) (*ExecuteOutput, error)
}

// BeforeExecHookEntry wraps a BeforeExecHook with metadata.
type BeforeExecHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    BeforeExecHook
}

// AfterExecHookEntry wraps an AfterExecHook with metadata.
type AfterExecHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    AfterExecHook
}
