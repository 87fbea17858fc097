package sfmcp

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers every tool operation on the given MCP server.
// All handlers funnel through Dispatch, so tool responses always carry the
// response envelope regardless of how the call failed.
func RegisterMCPTools(mcpServer *server.MCPServer, sfMcp *SnowflakeMcp) {
	executeQueryTool := mcp.NewTool("execute_query",
		mcp.WithDescription("Execute a SQL query against the Snowflake database. Returns results as JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The SQL query to execute. Reference bind parameters as :name."),
		),
		mcp.WithObject("params",
			mcp.Description("Optional bind parameters: an object mapping bind names to string, number, boolean, or null values"),
		),
	)
	mcpServer.AddTool(executeQueryTool, sfMcp.dispatchToolHandler(OpExecuteQuery))

	listDatabasesTool := mcp.NewTool("list_databases",
		mcp.WithDescription("List the databases visible to the current role."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listDatabasesTool, sfMcp.dispatchToolHandler(OpListDatabases))

	listSchemasTool := mcp.NewTool("list_schemas",
		mcp.WithDescription("List schemas in a database, or in the current database when none is given."),
		mcp.WithString("database",
			mcp.Description("Database name (optional)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listSchemasTool, sfMcp.dispatchToolHandler(OpListSchemas))

	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List tables in a database or schema scope."),
		mcp.WithString("database",
			mcp.Description("Database name (optional)"),
		),
		mcp.WithString("schema",
			mcp.Description("Schema name (optional)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listTablesTool, sfMcp.dispatchToolHandler(OpListTables))

	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Describe the columns of a table, including types, nullability, and key flags."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name to describe"),
		),
		mcp.WithString("database",
			mcp.Description("Database name (optional)"),
		),
		mcp.WithString("schema",
			mcp.Description("Schema name (optional)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(describeTableTool, sfMcp.dispatchToolHandler(OpDescribeTable))

	listWarehousesTool := mcp.NewTool("list_warehouses",
		mcp.WithDescription("List the warehouses visible to the current role."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listWarehousesTool, sfMcp.dispatchToolHandler(OpListWarehouses))

	listRolesTool := mcp.NewTool("list_roles",
		mcp.WithDescription("List the roles visible to the current user."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listRolesTool, sfMcp.dispatchToolHandler(OpListRoles))

	testConnectionTool := mcp.NewTool("test_connection",
		mcp.WithDescription("Test the Snowflake database connection."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(testConnectionTool, sfMcp.dispatchToolHandler(OpTestConnection))

	cortexCompleteTool := mcp.NewTool("cortex_complete",
		mcp.WithDescription("Use Cortex Complete for chat completion with large language models."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The input prompt for completion, up to 10000 characters"),
		),
		mcp.WithString("model",
			mcp.Description("Optional model name; must be on the configured allow-list (defaults to the configured model)"),
		),
		mcp.WithNumber("temperature",
			mcp.Description("Temperature for response generation, between 0 and 1"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Maximum number of tokens to generate, between 1 and 4000"),
		),
	)
	mcpServer.AddTool(cortexCompleteTool, sfMcp.dispatchToolHandler(OpCortexComplete))

	cortexSearchTool := mcp.NewTool("cortex_search",
		mcp.WithDescription("Use a Cortex Search service for semantic search over text data."),
		mcp.WithString("service_name",
			mcp.Required(),
			mcp.Description("Name of the configured search service to use"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, up to 1000 characters"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return, between 1 and 100 (default: 10)"),
		),
		mcp.WithString("filter",
			mcp.Description("Optional JSON object in Cortex Search filter syntax, up to 500 characters"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(cortexSearchTool, sfMcp.dispatchToolHandler(OpCortexSearch))

	cortexAnalystTool := mcp.NewTool("cortex_analyst",
		mcp.WithDescription("Use Cortex Analyst for natural language querying over structured data."),
		mcp.WithString("service_name",
			mcp.Required(),
			mcp.Description("Name of the configured analyst service to use"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural language question about the data, up to 2000 characters"),
		),
		mcp.WithBoolean("include_sql",
			mcp.Description("Whether to include the generated SQL in the response (default: true)"),
		),
		mcp.WithBoolean("include_data",
			mcp.Description("Whether to include the query results in the response (default: true)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(cortexAnalystTool, sfMcp.dispatchToolHandler(OpCortexAnalyst))

	listCortexServicesTool := mcp.NewTool("list_cortex_services",
		mcp.WithDescription("List the configured Cortex services."),
		mcp.WithString("service_type",
			mcp.Description("Type of services to list: 'search', 'analyst', 'complete', or 'all' (default: all)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listCortexServicesTool, sfMcp.dispatchToolHandler(OpListCortexServices))
}

// RegisterMCPResources registers the read-only snowflake:// resources.
// Resources return plain JSON data; failures surface as resource errors
// rather than an error envelope.
func RegisterMCPResources(mcpServer *server.MCPServer, sfMcp *SnowflakeMcp) {
	addJSONResource(mcpServer, "snowflake://databases", "Databases",
		"List of available databases",
		func(ctx context.Context) (any, error) {
			return sfMcp.ListDatabases(ctx)
		})
	addJSONResource(mcpServer, "snowflake://schemas", "Schemas",
		"List of schemas in the current database",
		func(ctx context.Context) (any, error) {
			return sfMcp.ListSchemas(ctx, ListSchemasInput{})
		})
	addJSONResource(mcpServer, "snowflake://tables", "Tables",
		"List of tables in the current scope",
		func(ctx context.Context) (any, error) {
			return sfMcp.ListTables(ctx, ListTablesInput{})
		})
	addJSONResource(mcpServer, "snowflake://warehouses", "Warehouses",
		"List of available warehouses",
		func(ctx context.Context) (any, error) {
			return sfMcp.ListWarehouses(ctx)
		})
	addJSONResource(mcpServer, "snowflake://roles", "Roles",
		"List of available roles",
		func(ctx context.Context) (any, error) {
			return sfMcp.ListRoles(ctx)
		})
	addJSONResource(mcpServer, "snowflake://cortex/search_services", "Cortex Search Services",
		"List of configured Cortex Search services",
		func(ctx context.Context) (any, error) {
			out, err := sfMcp.ListCortexServices(ctx, ListCortexServicesInput{ServiceType: "search"})
			if err != nil {
				return nil, err
			}
			return out.SearchServices, nil
		})
	addJSONResource(mcpServer, "snowflake://cortex/analyst_services", "Cortex Analyst Services",
		"List of configured Cortex Analyst services",
		func(ctx context.Context) (any, error) {
			out, err := sfMcp.ListCortexServices(ctx, ListCortexServicesInput{ServiceType: "analyst"})
			if err != nil {
				return nil, err
			}
			return out.AnalystServices, nil
		})
	addJSONResource(mcpServer, "snowflake://cortex/complete_config", "Cortex Complete Configuration",
		"Cortex Complete configuration and available models",
		func(ctx context.Context) (any, error) {
			out, err := sfMcp.ListCortexServices(ctx, ListCortexServicesInput{ServiceType: "complete"})
			if err != nil {
				return nil, err
			}
			return out.Complete, nil
		})
}

// addJSONResource registers one static resource whose content is the JSON
// rendering of whatever fetch returns.
func addJSONResource(mcpServer *server.MCPServer, uri, name, description string, fetch func(ctx context.Context) (any, error)) {
	resource := mcp.NewResource(uri, name,
		mcp.WithResourceDescription(description),
		mcp.WithMIMEType("application/json"),
	)
	mcpServer.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

// dispatchToolHandler builds the MCP handler for one operation: raw
// arguments in, serialized envelope out. Error envelopes also set the MCP
// error flag so clients that only look at IsError still notice.
func (s *SnowflakeMcp) dispatchToolHandler(op Operation) server.ToolHandlerFunc {
	return s.loggedToolHandler(string(op), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		envelope := s.Dispatch(ctx, ToolRequest{Op: op, Args: req.GetArguments()})
		jsonBytes, err := json.Marshal(envelope)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal tool response"), nil
		}
		if envelope.Status == StatusError {
			return mcp.NewToolResultError(string(jsonBytes)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

// loggedToolHandler wraps a tool handler to log request and response lengths
// under a per-call request id.
func (s *SnowflakeMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		requestID := uuid.NewString()
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		s.logger.Info().
			Str("tool", tool).
			Str("request_id", requestID).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
