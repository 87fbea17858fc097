package sfmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickchristie/snowflake-mcp/internal/errkind"
	"github.com/rickchristie/snowflake-mcp/internal/validate"
)

// cortexQuery executes a Cortex function call under the cortex timeout.
// Caller input always travels through bind parameters, never through string
// interpolation into the statement.
func (s *SnowflakeMcp) cortexQuery(ctx context.Context, opName, sqlText string, args ...any) ([]map[string]any, error) {
	select {
	case s.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", opName, cap(s.semaphore), ctx.Err())
	}
	defer func() { <-s.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.Query.CortexTimeoutSeconds)*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", opName, err)
	}
	out, err := s.collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s scan failed: %w", opName, err)
	}
	return out.Rows, nil
}

// resultText returns the named cell as JSON text. Semi-structured cells have
// already been parsed by collectRows, so those are re-serialized.
func resultText(row map[string]any, key string) string {
	switch val := row[key].(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// CortexComplete runs a prompt through SNOWFLAKE.CORTEX.COMPLETE. An empty
// model picks the configured default; the model is checked against the
// allow-list either way. When inference options are present the call uses the
// message-array form, which returns a response envelope instead of raw text.
func (s *SnowflakeMcp) CortexComplete(ctx context.Context, input CortexCompleteInput) (*CortexCompleteOutput, error) {
	startTime := time.Now()

	snap := s.registry.Snapshot()
	model, err := snap.ResolveModel(input.Model)
	if err != nil {
		return nil, err
	}

	useOptions := input.Temperature != nil || input.MaxTokens != nil
	var rows []map[string]any
	if useOptions {
		messages, _ := json.Marshal([]map[string]any{{"role": "user", "content": input.Prompt}})
		options := map[string]any{}
		if input.Temperature != nil {
			options["temperature"] = *input.Temperature
		}
		if input.MaxTokens != nil {
			options["max_tokens"] = *input.MaxTokens
		}
		optionsJSON, _ := json.Marshal(options)
		rows, err = s.cortexQuery(ctx, "CortexComplete",
			"SELECT SNOWFLAKE.CORTEX.COMPLETE(?, PARSE_JSON(?), PARSE_JSON(?)) AS response",
			model, string(messages), string(optionsJSON))
	} else {
		rows, err = s.cortexQuery(ctx, "CortexComplete",
			"SELECT SNOWFLAKE.CORTEX.COMPLETE(?, ?) AS response",
			model, input.Prompt)
	}
	if err != nil {
		return nil, err
	}

	out := &CortexCompleteOutput{Model: model}
	if len(rows) == 0 {
		out.Response = "No response generated"
		return out, nil
	}

	raw := resultText(rows[0], "RESPONSE")
	if useOptions {
		var envelope struct {
			Choices []struct {
				Messages string `json:"messages"`
			} `json:"choices"`
			Usage map[string]any `json:"usage"`
		}
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			return nil, fmt.Errorf("CortexComplete: unexpected response shape: %w", err)
		}
		if len(envelope.Choices) == 0 {
			return nil, errkind.New(errkind.Backend, "CortexComplete: response envelope has no choices")
		}
		out.Response = envelope.Choices[0].Messages
		out.Usage = envelope.Usage
	} else {
		out.Response = raw
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Str("model", model).
		Int("prompt_length", len(input.Prompt)).
		Msg("CortexComplete executed")

	return out, nil
}

// CortexSearch queries a configured Cortex Search service through
// SNOWFLAKE.CORTEX.SEARCH_PREVIEW. The service name is resolved against the
// catalog snapshot before anything touches the backend.
func (s *SnowflakeMcp) CortexSearch(ctx context.Context, input CortexSearchInput) (*CortexSearchOutput, error) {
	startTime := time.Now()

	snap := s.registry.Snapshot()
	svc, err := snap.ResolveSearch(input.ServiceName)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit == 0 {
		limit = validate.DefaultLimit
	}
	request := map[string]any{
		"query": input.Query,
		"limit": limit,
	}
	if input.Filter != "" {
		var filter map[string]any
		if err := json.Unmarshal([]byte(input.Filter), &filter); err != nil {
			return nil, errkind.Validationf("filter", "must be a JSON object: %v", err)
		}
		request["filter"] = filter
	}
	requestJSON, _ := json.Marshal(request)

	qualified := fmt.Sprintf("%s.%s.%s", svc.Database, svc.Schema, svc.Name)
	rows, err := s.cortexQuery(ctx, "CortexSearch",
		"SELECT SNOWFLAKE.CORTEX.SEARCH_PREVIEW(?, ?) AS search_results",
		qualified, string(requestJSON))
	if err != nil {
		return nil, err
	}

	out := &CortexSearchOutput{ServiceName: input.ServiceName, Results: []map[string]any{}}
	if len(rows) > 0 {
		var envelope struct {
			Results   []map[string]any `json:"results"`
			RequestID string           `json:"request_id"`
		}
		raw := resultText(rows[0], "SEARCH_RESULTS")
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			return nil, fmt.Errorf("CortexSearch: unexpected response shape: %w", err)
		}
		if envelope.Results != nil {
			out.Results = envelope.Results
		}
		out.RequestID = envelope.RequestID
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Str("service", qualified).
		Int("result_count", len(out.Results)).
		Msg("CortexSearch executed")

	return out, nil
}

// CortexAnalyst asks a natural-language question against a configured
// semantic model through SNOWFLAKE.CORTEX.ANALYST. The sql and data fields
// of the analysis document are removed when the caller excluded them; that
// is pure post-processing, the service call is identical either way.
func (s *SnowflakeMcp) CortexAnalyst(ctx context.Context, input CortexAnalystInput) (*CortexAnalystOutput, error) {
	startTime := time.Now()

	snap := s.registry.Snapshot()
	svc, err := snap.ResolveAnalyst(input.ServiceName)
	if err != nil {
		return nil, err
	}

	rows, err := s.cortexQuery(ctx, "CortexAnalyst",
		"SELECT SNOWFLAKE.CORTEX.ANALYST(?, ?) AS analysis_result",
		svc.SemanticModel, input.Question)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errkind.New(errkind.Backend, "no analysis result generated")
	}

	raw := resultText(rows[0], "ANALYSIS_RESULT")
	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("CortexAnalyst: unexpected response shape: %w", err)
	}

	if !input.IncludeSQL {
		delete(result, "sql")
	}
	if !input.IncludeData {
		delete(result, "data")
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Str("service", input.ServiceName).
		Str("semantic_model", svc.SemanticModel).
		Msg("CortexAnalyst executed")

	return &CortexAnalystOutput{ServiceName: input.ServiceName, Result: result}, nil
}

// ListCortexServices reports what the Cortex service catalog currently
// offers. With service_type "all", a catalog section that failed to load is
// skipped and reported in Warnings instead of failing the whole call; asking
// for a specific type surfaces that section's load error directly.
func (s *SnowflakeMcp) ListCortexServices(ctx context.Context, input ListCortexServicesInput) (*ListCortexServicesOutput, error) {
	serviceType := input.ServiceType
	if serviceType == "" {
		serviceType = "all"
	}
	switch serviceType {
	case "search", "analyst", "complete", "all":
	default:
		return nil, errkind.Validationf("service_type", "must be one of: search, analyst, complete, all; got %q", serviceType)
	}

	snap := s.registry.Snapshot()
	out := &ListCortexServicesOutput{}

	if serviceType == "search" || serviceType == "all" {
		services, err := snap.ListSearch()
		if err != nil {
			if serviceType == "search" {
				return nil, err
			}
			out.Warnings = append(out.Warnings, err.Error())
		} else {
			out.SearchServices = make([]CortexSearchService, 0, len(services))
			for _, svc := range services {
				out.SearchServices = append(out.SearchServices, CortexSearchService{
					Name:        svc.Name,
					Database:    svc.Database,
					Schema:      svc.Schema,
					Description: svc.Description,
				})
			}
		}
	}

	if serviceType == "analyst" || serviceType == "all" {
		services, err := snap.ListAnalyst()
		if err != nil {
			if serviceType == "analyst" {
				return nil, err
			}
			out.Warnings = append(out.Warnings, err.Error())
		} else {
			out.AnalystServices = make([]CortexAnalystService, 0, len(services))
			for _, svc := range services {
				out.AnalystServices = append(out.AnalystServices, CortexAnalystService{
					Name:          svc.Name,
					SemanticModel: svc.SemanticModel,
					Description:   svc.Description,
				})
			}
		}
	}

	if serviceType == "complete" || serviceType == "all" {
		cfg, err := snap.Complete()
		if err != nil {
			if serviceType == "complete" {
				return nil, err
			}
			out.Warnings = append(out.Warnings, err.Error())
		} else {
			out.Complete = &CortexCompleteConfig{
				DefaultModel: cfg.DefaultModel,
				Models:       append([]string(nil), cfg.Models...),
			}
		}
	}

	s.logger.Info().
		Str("service_type", serviceType).
		Int("search_services", len(out.SearchServices)).
		Int("analyst_services", len(out.AnalystServices)).
		Msg("ListCortexServices executed")

	return out, nil
}
