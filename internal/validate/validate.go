// Package validate turns raw MCP tool arguments into typed, bounds-checked
// parameter structs. Validators are pure: no I/O, no registry lookups — a
// request that fails here is rejected before anything else runs.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rickchristie/snowflake-mcp/internal/errkind"
)

// Bounds enforced on tool parameters.
const (
	MaxIdentifierLength  = 255
	MaxPromptLength      = 10000
	MaxSearchQueryLength = 1000
	MaxFilterLength      = 500
	MaxQuestionLength    = 2000
	MinLimit             = 1
	MaxLimit             = 100
	DefaultLimit         = 10
	MinMaxTokens         = 1
	MaxMaxTokens         = 4000
	MinTemperature       = 0.0
	MaxTemperature       = 1.0
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QueryParams is a validated execute_query request.
type QueryParams struct {
	Query string
	Binds map[string]any
}

// CompleteParams is a validated cortex_complete request. Model is empty when
// the caller did not pick one; the dispatcher substitutes the configured
// default and enforces the model whitelist.
type CompleteParams struct {
	Prompt      string
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// SearchParams is a validated cortex_search request.
type SearchParams struct {
	ServiceName string
	Query       string
	Limit       int
	Filter      string
}

// AnalystParams is a validated cortex_analyst request.
type AnalystParams struct {
	ServiceName string
	Question    string
	IncludeSQL  bool
	IncludeData bool
}

// ListServicesParams is a validated list_cortex_services request.
type ListServicesParams struct {
	ServiceType string // "search", "analyst", "complete", or "all"
}

// SchemasParams is a validated list_schemas request.
type SchemasParams struct {
	Database string
}

// TablesParams is a validated list_tables request.
type TablesParams struct {
	Database string
	Schema   string
}

// TableParams is a validated describe_table request.
type TableParams struct {
	Table    string
	Database string
	Schema   string
}

// Identifier validates a Snowflake object name: letters, digits, and
// underscores, not starting with a digit, at most MaxIdentifierLength runes.
func Identifier(field, value string) error {
	if value == "" {
		return errkind.Validationf(field, "must not be empty")
	}
	if utf8.RuneCountInString(value) > MaxIdentifierLength {
		return errkind.Validationf(field, "must be at most %d characters", MaxIdentifierLength)
	}
	if !identifierRe.MatchString(value) {
		return errkind.Validationf(field, "must contain only letters, digits, and underscores, and must not start with a digit")
	}
	return nil
}

// ExecuteQuery validates an execute_query request. The query text is trimmed
// and length/safety checks happen downstream in the execution pipeline; bind
// parameters are checked here: identifier keys, primitive values only.
func ExecuteQuery(args map[string]any) (*QueryParams, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}

	params := &QueryParams{Query: query}

	raw, ok := args["params"]
	if !ok || raw == nil {
		return params, nil
	}
	bindMap, ok := raw.(map[string]any)
	if !ok {
		return nil, errkind.Validationf("params", "must be an object mapping bind names to values")
	}
	binds := make(map[string]any, len(bindMap))
	for key, val := range bindMap {
		if Identifier("params", key) != nil {
			return nil, errkind.Validationf("params", "bind name %q must be a valid identifier", key)
		}
		switch val.(type) {
		case string, bool, nil, float64, int, int64:
			binds[key] = val
		default:
			return nil, errkind.Validationf("params", "bind value for %q must be a string, number, boolean, or null", key)
		}
	}
	params.Binds = binds
	return params, nil
}

// CortexComplete validates a cortex_complete request.
func CortexComplete(args map[string]any) (*CompleteParams, error) {
	prompt, err := requiredString(args, "prompt")
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptLength {
		return nil, errkind.Validationf("prompt", "must be at most %d characters, got %d", MaxPromptLength, n)
	}

	params := &CompleteParams{Prompt: prompt}

	model, ok, err := optionalString(args, "model")
	if err != nil {
		return nil, err
	}
	if ok {
		params.Model = model
	}

	if temp, ok, err := optionalFloat(args, "temperature"); err != nil {
		return nil, err
	} else if ok {
		if temp < MinTemperature || temp > MaxTemperature {
			return nil, errkind.Validationf("temperature", "must be between %g and %g, got %g", MinTemperature, MaxTemperature, temp)
		}
		params.Temperature = &temp
	}

	if tokens, ok, err := optionalInt(args, "max_tokens"); err != nil {
		return nil, err
	} else if ok {
		if tokens < MinMaxTokens || tokens > MaxMaxTokens {
			return nil, errkind.Validationf("max_tokens", "must be between %d and %d, got %d", MinMaxTokens, MaxMaxTokens, tokens)
		}
		params.MaxTokens = &tokens
	}

	return params, nil
}

// CortexSearch validates a cortex_search request.
func CortexSearch(args map[string]any) (*SearchParams, error) {
	serviceName, err := requiredString(args, "service_name")
	if err != nil {
		return nil, err
	}
	if err := Identifier("service_name", serviceName); err != nil {
		return nil, err
	}

	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(query); n > MaxSearchQueryLength {
		return nil, errkind.Validationf("query", "must be at most %d characters, got %d", MaxSearchQueryLength, n)
	}

	params := &SearchParams{ServiceName: serviceName, Query: query, Limit: DefaultLimit}

	if limit, ok, err := optionalInt(args, "limit"); err != nil {
		return nil, err
	} else if ok {
		if limit < MinLimit || limit > MaxLimit {
			return nil, errkind.Validationf("limit", "must be between %d and %d, got %d", MinLimit, MaxLimit, limit)
		}
		params.Limit = limit
	}

	if filter, ok, err := optionalString(args, "filter"); err != nil {
		return nil, err
	} else if ok {
		if n := utf8.RuneCountInString(filter); n > MaxFilterLength {
			return nil, errkind.Validationf("filter", "must be at most %d characters, got %d", MaxFilterLength, n)
		}
		params.Filter = filter
	}

	return params, nil
}

// CortexAnalyst validates a cortex_analyst request.
func CortexAnalyst(args map[string]any) (*AnalystParams, error) {
	serviceName, err := requiredString(args, "service_name")
	if err != nil {
		return nil, err
	}
	if err := Identifier("service_name", serviceName); err != nil {
		return nil, err
	}

	question, err := requiredString(args, "question")
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(question); n > MaxQuestionLength {
		return nil, errkind.Validationf("question", "must be at most %d characters, got %d", MaxQuestionLength, n)
	}

	params := &AnalystParams{ServiceName: serviceName, Question: question, IncludeSQL: true, IncludeData: true}

	if includeSQL, ok, err := optionalBool(args, "include_sql"); err != nil {
		return nil, err
	} else if ok {
		params.IncludeSQL = includeSQL
	}
	if includeData, ok, err := optionalBool(args, "include_data"); err != nil {
		return nil, err
	} else if ok {
		params.IncludeData = includeData
	}

	return params, nil
}

// ListServices validates a list_cortex_services request.
func ListServices(args map[string]any) (*ListServicesParams, error) {
	params := &ListServicesParams{ServiceType: "all"}

	serviceType, ok, err := optionalString(args, "service_type")
	if err != nil {
		return nil, err
	}
	if !ok || serviceType == "" {
		return params, nil
	}
	switch serviceType {
	case "search", "analyst", "complete", "all":
		params.ServiceType = serviceType
		return params, nil
	default:
		return nil, errkind.Validationf("service_type", "must be one of: search, analyst, complete, all; got %q", serviceType)
	}
}

// Schemas validates a list_schemas request.
func Schemas(args map[string]any) (*SchemasParams, error) {
	params := &SchemasParams{}
	database, ok, err := optionalString(args, "database")
	if err != nil {
		return nil, err
	}
	if ok && database != "" {
		if err := Identifier("database", database); err != nil {
			return nil, err
		}
		params.Database = database
	}
	return params, nil
}

// Tables validates a list_tables request.
func Tables(args map[string]any) (*TablesParams, error) {
	params := &TablesParams{}
	database, ok, err := optionalString(args, "database")
	if err != nil {
		return nil, err
	}
	if ok && database != "" {
		if err := Identifier("database", database); err != nil {
			return nil, err
		}
		params.Database = database
	}
	schema, ok, err := optionalString(args, "schema")
	if err != nil {
		return nil, err
	}
	if ok && schema != "" {
		if err := Identifier("schema", schema); err != nil {
			return nil, err
		}
		params.Schema = schema
	}
	return params, nil
}

// Table validates a describe_table request.
func Table(args map[string]any) (*TableParams, error) {
	table, err := requiredString(args, "table")
	if err != nil {
		return nil, err
	}
	if err := Identifier("table", table); err != nil {
		return nil, err
	}

	scoped, err := Tables(args)
	if err != nil {
		return nil, err
	}
	return &TableParams{Table: table, Database: scoped.Database, Schema: scoped.Schema}, nil
}

// --- extraction helpers ---

func requiredString(args map[string]any, field string) (string, error) {
	raw, ok := args[field]
	if !ok || raw == nil {
		return "", errkind.Validationf(field, "is required")
	}
	s, ok := raw.(string)
	if !ok {
		return "", errkind.Validationf(field, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errkind.Validationf(field, "must not be empty")
	}
	return s, nil
}

func optionalString(args map[string]any, field string) (string, bool, error) {
	raw, ok := args[field]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, errkind.Validationf(field, "must be a string")
	}
	return strings.TrimSpace(s), true, nil
}

// optionalInt accepts the numeric shapes JSON decoding produces. A fractional
// float is rejected rather than rounded.
func optionalInt(args map[string]any, field string) (int, bool, error) {
	raw, ok := args[field]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, false, errkind.Validationf(field, "must be an integer, got %v", v)
		}
		return int(v), true, nil
	default:
		return 0, false, errkind.Validationf(field, "must be an integer")
	}
}

func optionalFloat(args map[string]any, field string) (float64, bool, error) {
	raw, ok := args[field]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, errkind.Validationf(field, "must be a number, got %v", describeType(raw))
	}
}

func optionalBool(args map[string]any, field string) (bool, bool, error) {
	raw, ok := args[field]
	if !ok || raw == nil {
		return false, false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, false, errkind.Validationf(field, "must be a boolean")
	}
	return b, true, nil
}

func describeType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
