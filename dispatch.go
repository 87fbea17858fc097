package sfmcp

import (
	"context"

	"github.com/rickchristie/snowflake-mcp/internal/errkind"
	"github.com/rickchristie/snowflake-mcp/internal/validate"
)

// Operation identifies a dispatchable tool operation.
type Operation string

const (
	OpExecuteQuery       Operation = "execute_query"
	OpListDatabases      Operation = "list_databases"
	OpListSchemas        Operation = "list_schemas"
	OpListTables         Operation = "list_tables"
	OpDescribeTable      Operation = "describe_table"
	OpListWarehouses     Operation = "list_warehouses"
	OpListRoles          Operation = "list_roles"
	OpTestConnection     Operation = "test_connection"
	OpCortexComplete     Operation = "cortex_complete"
	OpCortexSearch       Operation = "cortex_search"
	OpCortexAnalyst      Operation = "cortex_analyst"
	OpListCortexServices Operation = "list_cortex_services"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ToolRequest is a single tool invocation: the operation plus its raw,
// untrusted arguments.
type ToolRequest struct {
	Op   Operation
	Args map[string]any
}

// Envelope is the uniform tool response. Exactly one of Data and Error is
// set, matching Status.
type Envelope struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError carries a classified failure. Code is the error kind,
// Field names the offending parameter when one is known, and Choices lists
// the accepted values for not-found and not-supported errors.
type EnvelopeError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Field   string   `json:"field,omitempty"`
	Choices []string `json:"choices,omitempty"`
}

// Dispatch validates the request arguments, routes the call to exactly one
// backend operation, and wraps the outcome in the response envelope.
// Failures of any kind produce an error envelope; Dispatch never returns a
// Go error, so MCP handlers only have to serialize what comes back.
func (s *SnowflakeMcp) Dispatch(ctx context.Context, req ToolRequest) *Envelope {
	switch req.Op {
	case OpExecuteQuery:
		params, err := validate.ExecuteQuery(req.Args)
		if err != nil {
			return s.fail(req.Op, err)
		}
		out, err := s.Query(ctx, QueryInput{Query: params.Query, Params: params.Binds})
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpListDatabases:
		out, err := s.ListDatabases(ctx)
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpListSchemas:
		params, err := validate.Schemas(req.Args)
		if err != nil {
			return s.fail(req.Op, err)
		}
		out, err := s.ListSchemas(ctx, ListSchemasInput{Database: params.Database})
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpListTables:
		params, err := validate.Tables(req.Args)
		if err != nil {
			return s.fail(req.Op, err)
		}
		out, err := s.ListTables(ctx, ListTablesInput{Database: params.Database, Schema: params.Schema})
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpDescribeTable:
		params, err := validate.Table(req.Args)
		if err != nil {
			return s.fail(req.Op, err)
		}
		out, err := s.DescribeTable(ctx, DescribeTableInput{Table: params.Table, Database: params.Database, Schema: params.Schema})
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpListWarehouses:
		out, err := s.ListWarehouses(ctx)
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpListRoles:
		out, err := s.ListRoles(ctx)
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpTestConnection:
		out, err := s.TestConnection(ctx)
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpCortexComplete:
		params, err := validate.CortexComplete(req.Args)
		if err != nil {
			return s.fail(req.Op, err)
		}
		out, err := s.CortexComplete(ctx, CortexCompleteInput{
			Prompt:      params.Prompt,
			Model:       params.Model,
			Temperature: params.Temperature,
			MaxTokens:   params.MaxTokens,
		})
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpCortexSearch:
		params, err := validate.CortexSearch(req.Args)
		if err != nil {
			return s.fail(req.Op, err)
		}
		out, err := s.CortexSearch(ctx, CortexSearchInput{
			ServiceName: params.ServiceName,
			Query:       params.Query,
			Limit:       params.Limit,
			Filter:      params.Filter,
		})
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpCortexAnalyst:
		params, err := validate.CortexAnalyst(req.Args)
		if err != nil {
			return s.fail(req.Op, err)
		}
		out, err := s.CortexAnalyst(ctx, CortexAnalystInput{
			ServiceName: params.ServiceName,
			Question:    params.Question,
			IncludeSQL:  params.IncludeSQL,
			IncludeData: params.IncludeData,
		})
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	case OpListCortexServices:
		params, err := validate.ListServices(req.Args)
		if err != nil {
			return s.fail(req.Op, err)
		}
		out, err := s.ListCortexServices(ctx, ListCortexServicesInput{ServiceType: params.ServiceType})
		if err != nil {
			return s.fail(req.Op, err)
		}
		return succeed(out)

	default:
		return s.fail(req.Op, errkind.Validationf("operation", "unknown operation %q", string(req.Op)))
	}
}

func succeed(data any) *Envelope {
	return &Envelope{Status: StatusSuccess, Data: data}
}

// fail classifies the error, appends any matching error-prompt guidance, and
// logs the failure. This is the single funnel every tool error goes through.
func (s *SnowflakeMcp) fail(op Operation, err error) *Envelope {
	e := errkind.Classify(err)
	msg := e.Message

	patterns := s.errPrompts.MatchedPatterns(msg)
	if prompt := s.errPrompts.Match(msg); prompt != "" {
		msg = msg + "\n\n" + prompt
	}

	logEvent := s.logger.Error().
		Str("operation", string(op)).
		Str("kind", string(e.Kind)).
		Err(err)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("tool call failed")

	return &Envelope{
		Status: StatusError,
		Error: &EnvelopeError{
			Code:    string(e.Kind),
			Message: msg,
			Field:   e.Field,
			Choices: e.Choices,
		},
	}
}
