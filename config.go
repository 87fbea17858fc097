package sfmcp

import (
	"context"
	"time"
)

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool                      PoolConfig         `json:"pool"`
	Protection                ProtectionConfig   `json:"protection"`
	Query                     QueryConfig        `json:"query"`
	Cortex                    CortexConfig       `json:"cortex"`
	ErrorPrompts              []ErrorPromptRule  `json:"error_prompts"`
	Sanitization              []SanitizationRule `json:"sanitization"`
	ReadOnly                  bool               `json:"read_only"`
	Timezone                  string             `json:"timezone"`
	DefaultHookTimeoutSeconds int                `json:"default_hook_timeout_seconds"`

	// Library mode: Go function hooks (not serializable).
	// Mutually exclusive with ServerConfig.ServerHooks.
	BeforeQueryHooks []BeforeQueryHookEntry `json:"-"`
	AfterQueryHooks  []AfterQueryHookEntry  `json:"-"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection  ConnectionConfig  `json:"connection"`
	Server      ServerSettings    `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
	ServerHooks ServerHooksConfig `json:"server_hooks"`
}

// ConnectionConfig holds Snowflake connection parameters used by CLI mode.
// Credentials come from the SNOWFLAKE_* environment or an interactive prompt,
// never from this file.
type ConnectionConfig struct {
	Account       string `json:"account"`
	User          string `json:"user"`
	Database      string `json:"database"`
	Schema        string `json:"schema"`
	Warehouse     string `json:"warehouse"`
	Role          string `json:"role"`
	Region        string `json:"region"`
	Authenticator string `json:"authenticator"`
	KeepAlive     bool   `json:"client_session_keep_alive"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxConns        int    `json:"max_conns"`
	MinConns        int    `json:"min_conns"`
	MaxConnLifetime string `json:"max_conn_lifetime"`
	MaxConnIdleTime string `json:"max_conn_idle_time"`
}

// ServerSettings holds transport settings for CLI mode.
type ServerSettings struct {
	Transport          string `json:"transport"` // http, stdio
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}

// ProtectionConfig controls which SQL statement classes are allowed.
// All fields default to false (blocked). Set to true to allow.
type ProtectionConfig struct {
	AllowDDL         bool `json:"allow_ddl"`
	AllowDML         bool `json:"allow_dml"`
	AllowGrantRevoke bool `json:"allow_grant_revoke"`
	AllowCall        bool `json:"allow_call"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds  int           `json:"default_timeout_seconds"`
	MetadataTimeoutSeconds int           `json:"metadata_timeout_seconds"`
	CortexTimeoutSeconds   int           `json:"cortex_timeout_seconds"`
	MaxSQLLength           int           `json:"max_sql_length"`
	MaxResultLength        int           `json:"max_result_length"`
	TimeoutRules           []TimeoutRule `json:"timeout_rules"`
}

// CortexConfig holds Cortex service catalog settings.
type CortexConfig struct {
	ServicesPath string `json:"services_path"`
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
	BeforeQuery []HookEntry `json:"before_query"`
	AfterQuery  []HookEntry `json:"after_query"`
}

// HookEntry defines a single command-based hook.
type HookEntry struct {
	Pattern        string   `json:"pattern"`
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// BeforeQueryHook can inspect and modify queries before execution.
type BeforeQueryHook interface {
	Run(ctx context.Context, query string) (string, error)
}

// AfterQueryHook can inspect and modify results after execution.
type AfterQueryHook interface {
	Run(ctx context.Context, result *QueryOutput) (*QueryOutput, error)
}

// BeforeQueryHookEntry wraps a BeforeQueryHook with metadata.
type BeforeQueryHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    BeforeQueryHook
}

// AfterQueryHookEntry wraps an AfterQueryHook with metadata.
type AfterQueryHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    AfterQueryHook
}
