package sfmcp_test

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickchristie/snowflake-mcp/internal/errprompt"
	"github.com/rickchristie/snowflake-mcp/internal/protection"
	"github.com/rickchristie/snowflake-mcp/internal/registry"
	"github.com/rickchristie/snowflake-mcp/internal/sanitize"
	"github.com/rickchristie/snowflake-mcp/internal/timeout"
)

func TestRace_ConcurrentSanitization(t *testing.T) {
	s, err := sanitize.NewSanitizer([]sanitize.Rule{
		{Pattern: `\d{3}-\d{4}`, Replacement: "***-****"},
		{Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, Replacement: "[REDACTED]"},
	})
	if err != nil {
		t.Fatalf("failed to build sanitizer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				// Each iteration gets a fresh copy since SanitizeRows mutates in-place.
				rows := []map[string]any{
					{"PHONE": "555-1234", "EMAIL": "test@example.com", "NAME": "Alice"},
					{"PHONE": "555-5678", "DOC": map[string]any{"contact": "bob@test.org"}},
				}
				s.SanitizeRows(rows)
			}
		}()
	}
	wg.Wait()
}

func TestRace_ConcurrentProtectionCheck(t *testing.T) {
	c := protection.NewChecker(protection.Config{})

	queries := []string{
		"SELECT * FROM users",
		"INSERT INTO users (name) VALUES ('test')",
		"UPDATE users SET name = 'test' WHERE id = 1",
		"MERGE INTO users USING staging ON users.id = staging.id WHEN MATCHED THEN UPDATE SET name = staging.name",
		"DROP TABLE users",
		"CREATE TABLE foo (id INTEGER)",
		"SHOW WAREHOUSES",
		"EXPLAIN SELECT 1",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sql := queries[(id+j)%len(queries)]
				_ = c.Check(sql)
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentErrorPrompt(t *testing.T) {
	m, err := errprompt.NewMatcher([]errprompt.Rule{
		{Pattern: `does not exist or not authorized`, Message: "Check the object name and your role's grants."},
		{Pattern: `syntax error`, Message: "Check your SQL syntax."},
		{Pattern: `insufficient privileges`, Message: "Ask an admin for access."},
	})
	if err != nil {
		t.Fatalf("failed to build matcher: %v", err)
	}

	errors := []string{
		"SQL compilation error: Object 'ORDERS' does not exist or not authorized.",
		"syntax error line 1 at position 8 unexpected 'FORM'",
		"insufficient privileges to operate on schema 'FINANCE'",
		"Warehouse 'REPORTING_WH' cannot be resumed",
		"connection refused",
		"timeout expired",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				errMsg := errors[(id+j)%len(errors)]
				_ = m.Match(errMsg)
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentTimeout(t *testing.T) {
	m, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: 30 * time.Second,
		Rules: []timeout.Rule{
			{Pattern: `(?i)SYSTEM\$WAIT`, Timeout: 60 * time.Second},
			{Pattern: `(?i)INSERT`, Timeout: 10 * time.Second},
			{Pattern: `(?i)DELETE`, Timeout: 15 * time.Second},
		},
	})
	if err != nil {
		t.Fatalf("failed to build manager: %v", err)
	}

	queries := []string{
		"SELECT SYSTEM$WAIT(1)",
		"INSERT INTO users (name) VALUES ('test')",
		"DELETE FROM users WHERE id = 1",
		"SELECT * FROM users",
		"UPDATE users SET name = 'test'",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sql := queries[(id+j)%len(queries)]
				_ = m.GetTimeout(sql)
			}
		}(i)
	}
	wg.Wait()
}

// TestRace_RegistryReloadDuringLookups hammers catalog lookups while the file
// is rewritten and reloaded. Every lookup must see exactly one of the two
// catalog versions, never a blend.
func TestRace_RegistryReloadDuringLookups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service_config.yaml")

	catalogA := []byte(`search_services:
  - service_name: orders
    database_name: sales
    schema_name: public
`)
	catalogB := []byte(`search_services:
  - service_name: customers
    database_name: crm
    schema_name: public
`)

	if err := os.WriteFile(path, catalogA, 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	r := registry.New(path)

	var torn atomic.Int32
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := r.Snapshot()
				resolved := 0
				if svc, err := snap.ResolveSearch("orders"); err == nil {
					resolved++
					if svc.Database != "sales" {
						torn.Add(1)
					}
				}
				if svc, err := snap.ResolveSearch("customers"); err == nil {
					resolved++
					if svc.Database != "crm" {
						torn.Add(1)
					}
				}
				if resolved != 1 {
					torn.Add(1)
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		catalog := catalogA
		if i%2 == 1 {
			catalog = catalogB
		}
		if err := os.WriteFile(path, catalog, 0o644); err != nil {
			t.Fatalf("failed to rewrite catalog: %v", err)
		}
		r.Reload()
	}
	close(done)
	wg.Wait()

	if n := torn.Load(); n != 0 {
		t.Fatalf("observed %d torn catalog views", n)
	}
}
