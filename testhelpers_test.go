package sfmcp_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sfmcp "github.com/rickchristie/snowflake-mcp"
	"github.com/rs/zerolog"
)

// testDSNEnv names the environment variable holding the DSN of a Snowflake
// account used for integration tests. Tests that need a live connection skip
// when it is unset.
const testDSNEnv = "SNOWFLAKE_TEST_DSN"

func acquireTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping integration test", testDSNEnv)
	}
	return dsn
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() sfmcp.Config {
	return sfmcp.Config{
		Pool: sfmcp.PoolConfig{MaxConns: 5},
		Query: sfmcp.QueryConfig{
			DefaultTimeoutSeconds:  30,
			MetadataTimeoutSeconds: 10,
			CortexTimeoutSeconds:   60,
			MaxSQLLength:           100000,
			MaxResultLength:        100000,
		},
	}
}

func newTestInstance(t *testing.T, config sfmcp.Config) (*sfmcp.SnowflakeMcp, string) {
	t.Helper()
	dsn := acquireTestDSN(t)
	ctx := context.Background()
	s, err := sfmcp.New(ctx, dsn, config, testLogger())
	if err != nil {
		t.Fatalf("Failed to create SnowflakeMcp: %v", err)
	}
	t.Cleanup(func() { s.Close(ctx) })
	return s, dsn
}

func newTestInstanceWithHooks(t *testing.T, config sfmcp.Config, hooks sfmcp.ServerHooksConfig) *sfmcp.SnowflakeMcp {
	t.Helper()
	dsn := acquireTestDSN(t)
	ctx := context.Background()
	s, err := sfmcp.New(ctx, dsn, config, testLogger(), sfmcp.WithServerHooks(hooks))
	if err != nil {
		t.Fatalf("Failed to create SnowflakeMcp: %v", err)
	}
	t.Cleanup(func() { s.Close(ctx) })
	return s
}

// newOfflineInstance creates a SnowflakeMcp against an unreachable account.
// Usable for everything that fails before touching the network: validation,
// protection, dispatch envelopes, and service registry behavior.
func newOfflineInstance(t *testing.T, config sfmcp.Config) *sfmcp.SnowflakeMcp {
	t.Helper()
	ctx := context.Background()
	s, err := sfmcp.New(ctx, dummyDSN, config, testLogger())
	if err != nil {
		t.Fatalf("Failed to create SnowflakeMcp: %v", err)
	}
	t.Cleanup(func() { s.Close(ctx) })
	return s
}

func hookScript(name string) string {
	return filepath.Join("testdata", "hooks", name)
}

func setupTable(t *testing.T, s *sfmcp.SnowflakeMcp, sql string) {
	t.Helper()
	if _, err := s.Query(context.Background(), sfmcp.QueryInput{Query: sql}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

// newReadOnlyTestInstance creates a read-only SnowflakeMcp instance with
// tables pre-populated by setupFn. It first creates a write instance to run
// DDL/DML, then closes it and creates a read-only instance with the given
// config.
func newReadOnlyTestInstance(t *testing.T, config sfmcp.Config, setupFn func(t *testing.T, s *sfmcp.SnowflakeMcp)) *sfmcp.SnowflakeMcp {
	t.Helper()
	dsn := acquireTestDSN(t)
	ctx := context.Background()

	// Set up tables with a write instance
	setupConfig := defaultConfig()
	setupConfig.Protection.AllowDDL = true
	setupConfig.Protection.AllowDML = true
	setupS, err := sfmcp.New(ctx, dsn, setupConfig, testLogger())
	if err != nil {
		t.Fatalf("failed to create setup instance: %v", err)
	}
	setupFn(t, setupS)
	setupS.Close(ctx)

	// Create read-only instance
	config.ReadOnly = true
	s, err := sfmcp.New(ctx, dsn, config, testLogger())
	if err != nil {
		t.Fatalf("failed to create read-only instance: %v", err)
	}
	t.Cleanup(func() { s.Close(ctx) })
	return s
}

// writeServicesFile writes a Cortex service catalog to a temp file and
// returns its path.
func writeServicesFile(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service_config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write services file: %v", err)
	}
	return path
}
