package sfmcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snowflakedb/gosnowflake"

	"github.com/rickchristie/snowflake-mcp/internal/errprompt"
	"github.com/rickchristie/snowflake-mcp/internal/hooks"
	"github.com/rickchristie/snowflake-mcp/internal/protection"
	"github.com/rickchristie/snowflake-mcp/internal/registry"
	"github.com/rickchristie/snowflake-mcp/internal/sanitize"
	"github.com/rickchristie/snowflake-mcp/internal/timeout"
)

// DefaultServicesPath is the Cortex service catalog location used when
// cortex.services_path is not configured.
const DefaultServicesPath = "service_config.yaml"

// SnowflakeMcp is the core engine behind every tool: query execution,
// metadata listing, and the Cortex Complete/Search/Analyst operations.
// All exported methods are safe for concurrent use from multiple goroutines.
type SnowflakeMcp struct {
	config        Config
	db            *sql.DB
	registry      *registry.Registry
	semaphore     chan struct{}
	protection    *protection.Checker
	cmdHooks      *hooks.Runner          // command-based hooks (CLI mode)
	goBeforeHooks []BeforeQueryHookEntry // Go function hooks (library mode)
	goAfterHooks  []AfterQueryHookEntry  // Go function hooks (library mode)
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

// WithServerHooks passes command-based hook configuration to SnowflakeMcp.
// Mutually exclusive with Config.BeforeQueryHooks/AfterQueryHooks (Go hooks).
func WithServerHooks(h ServerHooksConfig) Option {
	return func(o *options) {
		o.serverHooks = &h
	}
}

// New creates a new SnowflakeMcp instance.
// dsn is the Snowflake connection string (must include credentials).
// In library mode, dsn is required — ServerConfig.Connection fields are ignored
// (the CLI is responsible for building dsn from Connection + prompted credentials).
// New does not dial: the first query or Ping() establishes a connection.
// Panics on invalid config. Returns error only for runtime failures.
func New(ctx context.Context, dsn string, config Config, logger zerolog.Logger, opts ...Option) (*SnowflakeMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Config validation (panics on invalid config) ---

	if dsn == "" {
		panic("sfmcp: dsn must be non-empty")
	}
	if config.Pool.MaxConns <= 0 {
		panic("sfmcp: pool.max_conns must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("sfmcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.MetadataTimeoutSeconds <= 0 {
		panic("sfmcp: query.metadata_timeout_seconds must be > 0")
	}
	if config.Query.CortexTimeoutSeconds <= 0 {
		panic("sfmcp: query.cortex_timeout_seconds must be > 0")
	}

	// Apply defaults for zero values
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.MaxSQLLength < 0 {
		panic("sfmcp: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("sfmcp: query.max_result_length must be > 0")
	}
	if config.Cortex.ServicesPath == "" {
		config.Cortex.ServicesPath = DefaultServicesPath
	}

	// Validate hook configuration: Go hooks and command hooks are mutually exclusive
	hasGoHooks := len(config.BeforeQueryHooks) > 0 || len(config.AfterQueryHooks) > 0
	hasCmdHooks := o.serverHooks != nil && (len(o.serverHooks.BeforeQuery) > 0 || len(o.serverHooks.AfterQuery) > 0)
	if hasGoHooks && hasCmdHooks {
		panic("sfmcp: Go hooks (Config.BeforeQueryHooks/AfterQueryHooks) and command hooks (WithServerHooks) are mutually exclusive")
	}

	// Validate DefaultHookTimeoutSeconds if any hooks are configured
	if hasGoHooks && config.DefaultHookTimeoutSeconds <= 0 {
		panic("sfmcp: default_hook_timeout_seconds must be > 0 when Go hooks are configured")
	}

	// Validate per-hook timeouts for Go hooks
	for _, entry := range config.BeforeQueryHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("sfmcp: before_query hook %q has negative timeout", entry.Name))
		}
	}
	for _, entry := range config.AfterQueryHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("sfmcp: after_query hook %q has negative timeout", entry.Name))
		}
	}

	// Validate timeout rules
	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("sfmcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}

	// --- Configure the database/sql pool ---

	sfConfig, err := gosnowflake.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Session timezone is a connection parameter in Snowflake, so it is
	// injected into the DSN rather than set per session.
	if config.Timezone != "" {
		if sfConfig.Params == nil {
			sfConfig.Params = make(map[string]*string)
		}
		tz := config.Timezone
		sfConfig.Params["timezone"] = &tz
	}

	rebuilt, err := gosnowflake.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	db, err := sql.Open("snowflake", rebuilt)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	db.SetMaxOpenConns(config.Pool.MaxConns)
	if config.Pool.MinConns > 0 {
		db.SetMaxIdleConns(config.Pool.MinConns)
	}

	// Parse pool duration strings
	if config.Pool.MaxConnLifetime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnLifetime)
		if err != nil {
			panic(fmt.Sprintf("sfmcp: invalid pool.max_conn_lifetime %q: %v", config.Pool.MaxConnLifetime, err))
		}
		db.SetConnMaxLifetime(d)
	}
	if config.Pool.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnIdleTime)
		if err != nil {
			panic(fmt.Sprintf("sfmcp: invalid pool.max_conn_idle_time %q: %v", config.Pool.MaxConnIdleTime, err))
		}
		db.SetConnMaxIdleTime(d)
	}

	// --- Initialize internal components ---

	protectionChecker := protection.NewChecker(protection.Config{
		AllowDDL:         config.Protection.AllowDDL,
		AllowDML:         config.Protection.AllowDML,
		AllowGrantRevoke: config.Protection.AllowGrantRevoke,
		AllowCall:        config.Protection.AllowCall,
		ReadOnly:         config.ReadOnly,
	})

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic(fmt.Sprintf("sfmcp: invalid sanitization rules: %v", err))
	}
	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		panic(fmt.Sprintf("sfmcp: invalid error_prompts rules: %v", err))
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})
	if err != nil {
		panic(fmt.Sprintf("sfmcp: invalid timeout_rules: %v", err))
	}

	// Initialize command hooks if configured
	var cmdHooks *hooks.Runner
	if hasCmdHooks {
		hookEntries := func(entries []HookEntry) []hooks.HookEntry {
			result := make([]hooks.HookEntry, len(entries))
			for i, e := range entries {
				result[i] = hooks.HookEntry{
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
			BeforeQuery:    hookEntries(o.serverHooks.BeforeQuery),
			AfterQuery:     hookEntries(o.serverHooks.AfterQuery),
		}, logger)
		if err != nil {
			panic(fmt.Sprintf("sfmcp: invalid server_hooks: %v", err))
		}
	}

	s := &SnowflakeMcp{
		config:        config,
		db:            db,
		registry:      registry.New(config.Cortex.ServicesPath),
		semaphore:     make(chan struct{}, config.Pool.MaxConns),
		protection:    protectionChecker,
		cmdHooks:      cmdHooks,
		goBeforeHooks: config.BeforeQueryHooks,
		goAfterHooks:  config.AfterQueryHooks,
		sanitizer:     san,
		errPrompts:    matcher,
		timeoutMgr:    tmgr,
		logger:        logger,
	}
	s.logCatalogProblems(s.registry.Snapshot())
	return s, nil
}

// Ping verifies the Snowflake connection by executing a round-trip.
func (s *SnowflakeMcp) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool. Accepts context for API forward-compatibility,
// but does not currently use it — database/sql close does not support context-based shutdown.
func (s *SnowflakeMcp) Close(ctx context.Context) error {
	return s.db.Close()
}

// ReloadServices re-reads the Cortex service catalog and swaps the snapshot
// used by subsequent calls. In-flight calls keep the snapshot they started
// with. The CLI wires this to SIGHUP.
func (s *SnowflakeMcp) ReloadServices() {
	snap := s.registry.Reload()
	event := s.logger.Info().Str("path", snap.Path())
	if search, err := snap.ListSearch(); err == nil {
		event = event.Int("search_services", len(search))
	}
	if analyst, err := snap.ListAnalyst(); err == nil {
		event = event.Int("analyst_services", len(analyst))
	}
	event.Msg("cortex services reloaded")
	s.logCatalogProblems(snap)
}

// logCatalogProblems emits warnings for catalog sections that failed to load.
// A broken section disables only its own service type, so this is the one
// place the operator learns about it before a tool call fails.
func (s *SnowflakeMcp) logCatalogProblems(snap *registry.Snapshot) {
	if snap.Missing() {
		s.logger.Warn().Str("path", snap.Path()).Msg("cortex services config not found, cortex complete falls back to built-in defaults")
		return
	}
	if _, err := snap.ListSearch(); err != nil {
		s.logger.Warn().Err(err).Msg("cortex search services unavailable")
	}
	if _, err := snap.ListAnalyst(); err != nil {
		s.logger.Warn().Err(err).Msg("cortex analyst services unavailable")
	}
	if _, err := snap.Complete(); err != nil {
		s.logger.Warn().Err(err).Msg("cortex complete configuration unavailable")
	}
}

// mapSanitizationRules converts sfmcp SanitizationRules to internal sanitize.Rules.
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

// mapErrorPromptRules converts sfmcp ErrorPromptRules to internal errprompt.Rules.
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
