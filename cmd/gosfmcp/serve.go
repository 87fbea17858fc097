package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	sfmcp "github.com/rickchristie/snowflake-mcp"
	"github.com/rickchristie/snowflake-mcp/internal/meta"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/snowflakedb/gosnowflake"
	"golang.org/x/term"
)

func runServe() error {
	ctx := context.Background()

	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	transport := serverConfig.Server.Transport
	if transport == "" {
		transport = "stdio"
	}
	if transport != "stdio" && transport != "http" {
		panic(fmt.Sprintf("gosfmcp: unknown server.transport %q (must be stdio or http)", transport))
	}

	// 2. Resolve connection string
	dsn := os.Getenv("GOSFMCP_SNOWFLAKE_DSN")
	if dsn == "" {
		dsn, err = buildDSN(serverConfig.Connection)
		if err != nil {
			return fmt.Errorf("failed to build connection string: %w", err)
		}
	}

	// 3. Setup logger
	if transport == "stdio" && serverConfig.Logging.Output == "stdout" {
		// stdout carries the MCP protocol in stdio mode.
		serverConfig.Logging.Output = "stderr"
	}
	logger := setupLogger(serverConfig.Logging)

	// 4. Create SnowflakeMcp instance
	var opts []sfmcp.Option
	if len(serverConfig.ServerHooks.BeforeQuery) > 0 || len(serverConfig.ServerHooks.AfterQuery) > 0 {
		opts = append(opts, sfmcp.WithServerHooks(serverConfig.ServerHooks))
	}
	sfMcp, err := sfmcp.New(ctx, dsn, serverConfig.Config, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SnowflakeMcp: %w", err)
	}
	defer sfMcp.Close(ctx)

	// 5. Test Snowflake connection
	logger.Info().Msg("testing snowflake connection")
	if err := sfMcp.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("snowflake connection test failed")
		return fmt.Errorf("snowflake connection test failed: %w", err)
	}
	logger.Info().Msg("snowflake connection test successful")

	// 6. SIGHUP reloads the Cortex service catalog without a restart
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info().Msg("SIGHUP received, reloading cortex services")
			sfMcp.ReloadServices()
		}
	}()

	// 7. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		clientName := req.Params.ClientInfo.Name
		clientVersion := req.Params.ClientInfo.Version
		logger.Info().
			Str("client_name", clientName).
			Str("client_version", clientVersion).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("gosfmcp", meta.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithHooks(hooks),
	)

	sfmcp.RegisterMCPTools(mcpServer, sfMcp)
	sfmcp.RegisterMCPResources(mcpServer, sfMcp)

	// 8. Serve on the configured transport
	if transport == "stdio" {
		logger.Info().Msg("starting gosfmcp server on stdio")
		return server.ServeStdio(mcpServer)
	}

	if serverConfig.Server.Port <= 0 {
		panic("gosfmcp: server.port must be > 0")
	}

	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not Snowflake connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			panic("gosfmcp: health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Create StreamableHTTPServer with custom http.Server
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler: Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	logger.Info().Int("port", serverConfig.Server.Port).Msg("starting gosfmcp server")
	return streamableServer.Start(addr)
}

func loadServerConfig() (*sfmcp.ServerConfig, error) {
	configPath := os.Getenv("GOSFMCP_CONFIG_PATH")
	if configPath == "" {
		configPath = ".gosfmcp/config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config sfmcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// buildDSN assembles a Snowflake DSN from ConnectionConfig plus the
// SNOWFLAKE_* environment. Environment values win over the config file.
// Credentials never live in the config file: the password comes from
// SNOWFLAKE_PASSWORD or an interactive prompt.
func buildDSN(conn sfmcp.ConnectionConfig) (string, error) {
	account := firstNonEmpty(os.Getenv("SNOWFLAKE_ACCOUNT"), conn.Account)
	if account == "" {
		return "", fmt.Errorf("snowflake account not set: set connection.account or SNOWFLAKE_ACCOUNT")
	}

	user := firstNonEmpty(os.Getenv("SNOWFLAKE_USER"), conn.User)
	if user == "" {
		user = promptInput("Snowflake username: ")
	}

	sfConfig := &gosnowflake.Config{
		Account:   account,
		User:      user,
		Password:  os.Getenv("SNOWFLAKE_PASSWORD"),
		Token:     os.Getenv("SNOWFLAKE_TOKEN"),
		Database:  firstNonEmpty(os.Getenv("SNOWFLAKE_DATABASE"), conn.Database),
		Schema:    firstNonEmpty(os.Getenv("SNOWFLAKE_SCHEMA"), conn.Schema),
		Warehouse: firstNonEmpty(os.Getenv("SNOWFLAKE_WAREHOUSE"), conn.Warehouse),
		Role:      firstNonEmpty(os.Getenv("SNOWFLAKE_ROLE"), conn.Role),
		Region:    conn.Region,
	}
	if conn.KeepAlive {
		// The driver reads this session parameter to decide whether to run
		// its heartbeat, so it goes through Params rather than a struct field.
		keepAlive := "true"
		sfConfig.Params = map[string]*string{"client_session_keep_alive": &keepAlive}
	}

	needsPassword := false
	switch conn.Authenticator {
	case "", "snowflake":
		sfConfig.Authenticator = gosnowflake.AuthTypeSnowflake
		needsPassword = true
	case "username_password_mfa":
		sfConfig.Authenticator = gosnowflake.AuthTypeUsernamePasswordMFA
		needsPassword = true
	case "externalbrowser":
		sfConfig.Authenticator = gosnowflake.AuthTypeExternalBrowser
	case "snowflake_jwt":
		sfConfig.Authenticator = gosnowflake.AuthTypeJwt
	case "oauth":
		sfConfig.Authenticator = gosnowflake.AuthTypeOAuth
	default:
		return "", fmt.Errorf("unknown connection.authenticator %q", conn.Authenticator)
	}

	if needsPassword && sfConfig.Password == "" {
		sfConfig.Password = promptPassword("Snowflake password: ")
	}

	return gosnowflake.DSN(sfConfig)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func setupLogger(config sfmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
