// Package sfmcp provides safe, controlled Snowflake access for AI agents
// through the Model Context Protocol (MCP).
//
// It exposes query, metadata, and Cortex AI tools with a full execution
// pipeline: SQL protection, query hooks, data sanitization, result
// truncation, and dynamic agent steering via error prompts. Every tool
// response is a uniform envelope with a status field, so agents can branch
// on success or failure without parsing free-form error text.
//
// SQL injection is prevented by passing all caller-supplied values as bind
// parameters (named binds for queries, positional binds for Cortex
// functions). On top of that, regex-based protection rules validate each
// statement before it reaches Snowflake, and identifiers interpolated into
// metadata statements are restricted to a safe character set.
//
// # Library Usage
//
//	s, err := sfmcp.New(ctx, dsn, sfmcp.Config{
//		Pool:     sfmcp.PoolConfig{MaxConns: 10},
//		ReadOnly: true,
//		Query: sfmcp.QueryConfig{
//			DefaultTimeoutSeconds:  30,
//			MetadataTimeoutSeconds: 10,
//			CortexTimeoutSeconds:   60,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close(ctx)
//
//	// Use directly
//	output, err := s.Query(ctx, sfmcp.QueryInput{Query: "SELECT * FROM users LIMIT 10"})
//
//	// Or dispatch by operation name with an envelope response
//	envelope := s.Dispatch(ctx, sfmcp.ToolRequest{
//		Op:   sfmcp.OpExecuteQuery,
//		Args: map[string]any{"query": "SELECT * FROM users LIMIT 10"},
//	})
//
//	// Or register as MCP tools
//	sfmcp.RegisterMCPTools(mcpServer, s)
//
// # Hooks
//
// BeforeQuery and AfterQuery hooks run as a middleware chain around query
// execution. Implement [BeforeQueryHook] and [AfterQueryHook] for native Go
// hooks with full type safety:
//
//	type AuditHook struct{}
//
//	func (h *AuditHook) Run(ctx context.Context, query string) (string, error) {
//		log.Printf("query: %s", query)
//		return query, nil // return modified query or original
//	}
//
// Unlike command-based hooks (server mode), Go hooks have no regex pattern
// matching; the hook function itself decides whether to act.
//
// AfterQuery hooks run before transaction commit for write queries, enabling
// guardrails like rolling back if too many rows are affected. AfterQuery
// hooks do not run for read-only queries (SELECT, SHOW, DESCRIBE, EXPLAIN),
// which are rolled back immediately after collecting results.
//
// # Cortex Services
//
// Cortex Search and Cortex Analyst services are declared in a YAML catalog
// that is loaded at startup and can be reloaded at runtime with
// [SnowflakeMcp.ReloadServices] without restarting the server. A broken
// section of the catalog disables only the tools that depend on it.
//
// For full documentation, configuration reference, and examples, see:
// https://github.com/rickchristie/snowflake-mcp
package sfmcp
