package sfmcp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rickchristie/snowflake-mcp/internal/errkind"
)

// Query executes the full query pipeline: semaphore, length check, before
// hooks, protection check, timeout resolution, execution, after hooks,
// sanitization, truncation. Bind parameters are passed by name; reference
// them as :name in the query text.
// Errors carry a classification kind; Dispatch() converts them into the
// response envelope, so MCP clients never see a bare Go error.
func (s *SnowflakeMcp) Query(ctx context.Context, input QueryInput) (*QueryOutput, error) {
	startTime := time.Now()
	sqlText := input.Query

	if strings.TrimSpace(sqlText) == "" {
		return nil, errkind.Validationf("query", "must not be empty")
	}

	// 1. Acquire semaphore (respects context cancellation to prevent deadlock)
	select {
	case s.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(s.semaphore), ctx.Err())
	}
	defer func() { <-s.semaphore }()

	// 2. Check SQL length (before any processing — hooks, protection)
	if len(sqlText) > s.config.Query.MaxSQLLength {
		return nil, errkind.Validationf("query", "too long: %d bytes exceeds maximum of %d bytes", len(sqlText), s.config.Query.MaxSQLLength)
	}

	// --- Pipeline tracking ---
	var beforeHooks, afterHooks []string
	timeoutRule := ""
	sanitized := false

	// 3. Run BeforeQuery hooks (middleware chain)
	var err error
	if len(s.goBeforeHooks) > 0 {
		sqlText, err = s.runGoBeforeHooks(ctx, sqlText)
		for _, entry := range s.goBeforeHooks {
			beforeHooks = append(beforeHooks, entry.Name)
		}
	} else if s.cmdHooks != nil {
		sqlText, beforeHooks, err = s.cmdHooks.RunBeforeQuery(ctx, sqlText)
	}
	if err != nil {
		return nil, err
	}

	// 4. Protection check (on potentially modified query)
	if err := s.protection.Check(sqlText); err != nil {
		return nil, errkind.Unsafe(err)
	}

	// 5. Determine timeout
	var execTimeout time.Duration
	execTimeout, timeoutRule = s.timeoutMgr.GetTimeoutWithPattern(sqlText)
	queryCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	// 6. Execute in a transaction so after-query hooks can still reject
	// writes before they commit. Rollback after Commit is a no-op, so the
	// deferred call is safe on both paths.
	tx, err := s.db.BeginTx(queryCtx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(queryCtx, sqlText, bindArgs(input.Params)...)
	if err != nil {
		return nil, err
	}

	// 7. Collect results
	result, err := s.collectRows(rows)
	if err != nil {
		return nil, err
	}

	// 8. Detect read-only vs write statement
	isReadOnly := isReadOnlyStatement(sqlText)

	// 9. For read-only queries, rollback immediately (no commit needed)
	if isReadOnly {
		tx.Rollback()
	}

	// 10. AfterQuery hooks — run BEFORE commit for write queries.
	// This allows hooks to reject and trigger rollback for writes.
	var finalResult *QueryOutput
	if len(s.goAfterHooks) > 0 {
		finalResult, err = s.runGoAfterHooks(ctx, result)
		if err != nil {
			return nil, err
		}
		for _, entry := range s.goAfterHooks {
			afterHooks = append(afterHooks, entry.Name)
		}
	} else if s.cmdHooks != nil && s.cmdHooks.HasAfterQueryHooks() {
		resultJSON, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}

		modifiedJSON, executed, err := s.cmdHooks.RunAfterQuery(ctx, string(resultJSON))
		if err != nil {
			return nil, err
		}
		afterHooks = executed

		finalResult = &QueryOutput{}
		dec := json.NewDecoder(strings.NewReader(modifiedJSON))
		dec.UseNumber()
		if err := dec.Decode(finalResult); err != nil {
			return nil, err
		}
	} else {
		finalResult = result
	}

	// 11. For write queries, commit AFTER hooks have approved the result.
	if !isReadOnly {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
	}

	// 12. Apply sanitization (per-field, recursive into VARIANT/OBJECT/ARRAY)
	sanitized = s.sanitizer.HasRules()
	finalResult.Rows = s.sanitizer.SanitizeRows(finalResult.Rows)
	finalResult.RowCount = len(finalResult.Rows)

	// 13. Apply max result length truncation
	s.truncateIfNeeded(finalResult)

	// 14. Log successful query execution with pipeline details
	logEvent := s.logger.Info().
		Str("sql", truncateForLog(sqlText, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", finalResult.RowCount)
	if len(beforeHooks) > 0 {
		logEvent = logEvent.Strs("before_hooks", beforeHooks)
	}
	if len(afterHooks) > 0 {
		logEvent = logEvent.Strs("after_hooks", afterHooks)
	}
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if sanitized {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("query executed")

	return finalResult, nil
}

// bindArgs converts a bind parameter map into named driver arguments,
// ordered by name so statements are reproducible in logs and tests.
func bindArgs(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, sql.Named(k, params[k]))
	}
	return args
}

// leadingVerbRe extracts the first keyword of a statement. Leading
// parentheses are skipped so a parenthesized SELECT is classified by its verb.
var leadingVerbRe = regexp.MustCompile(`^[\s(]*([A-Za-z_]+)`)

// isReadOnlyStatement returns true if the SQL is a read-only statement.
// Snowflake has no embeddable parser, so this goes by the leading verb;
// the statement has already passed protection checks at this point.
func isReadOnlyStatement(sqlText string) bool {
	m := leadingVerbRe.FindStringSubmatch(sqlText)
	if m == nil {
		return false
	}
	switch strings.ToUpper(m[1]) {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN":
		return true
	}
	return false
}

// runGoBeforeHooks runs Go-interface BeforeQuery hooks in middleware chain.
func (s *SnowflakeMcp) runGoBeforeHooks(ctx context.Context, sqlText string) (string, error) {
	for _, entry := range s.goBeforeHooks {
		hookTimeout := entry.Timeout
		if hookTimeout == 0 {
			hookTimeout = time.Duration(s.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)

		modified, err := entry.Hook.Run(hookCtx, sqlText)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("before_query hook error: hook timed out (name: %s, timeout: %s)", entry.Name, hookTimeout)
			}
			return "", fmt.Errorf("before_query hook error: hook rejected query (name: %s): %w", entry.Name, err)
		}
		sqlText = modified
	}
	return sqlText, nil
}

// runGoAfterHooks runs Go-interface AfterQuery hooks in middleware chain.
func (s *SnowflakeMcp) runGoAfterHooks(ctx context.Context, result *QueryOutput) (*QueryOutput, error) {
	for _, entry := range s.goAfterHooks {
		hookTimeout := entry.Timeout
		if hookTimeout == 0 {
			hookTimeout = time.Duration(s.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)

		modified, err := entry.Hook.Run(hookCtx, result)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("after_query hook error: hook timed out (name: %s, timeout: %s)", entry.Name, hookTimeout)
			}
			return nil, fmt.Errorf("after_query hook error: hook rejected result (name: %s): %w", entry.Name, err)
		}
		result = modified
	}
	return result, nil
}

// collectRows reads all rows from sql.Rows and returns a QueryOutput.
// Values in VARIANT, OBJECT, and ARRAY columns arrive as JSON text and are
// parsed into structures so clients see objects instead of strings.
func (s *SnowflakeMcp) collectRows(rows *sql.Rows) (*QueryOutput, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	semiStructured := make([]bool, len(columns))
	for i, ct := range colTypes {
		switch ct.DatabaseTypeName() {
		case "VARIANT", "OBJECT", "ARRAY":
			semiStructured[i] = true
		}
	}

	scan := make([]any, len(columns))
	for i := range scan {
		scan[i] = new(any)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := *(scan[i].(*any))
			if raw, ok := v.(string); ok && semiStructured[i] {
				v = parseSemiStructured(raw)
			}
			row[col] = convertValue(v)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryOutput{Columns: columns, Rows: resultRows, RowCount: len(resultRows)}, nil
}

// parseSemiStructured parses the JSON text of a semi-structured value.
// Numbers stay as json.Number to avoid float64 precision loss on Snowflake's
// 38-digit integers. Unparseable text is returned as-is.
func parseSemiStructured(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	return v
}

// convertValue converts a driver-returned value to a JSON-friendly Go type.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		if math.IsNaN(float64(val)) {
			return "NaN"
		}
		if math.IsInf(float64(val), 1) {
			return "Infinity"
		}
		if math.IsInf(float64(val), -1) {
			return "-Infinity"
		}
		return val
	case float64:
		if math.IsNaN(val) {
			return "NaN"
		}
		if math.IsInf(val, 1) {
			return "Infinity"
		}
		if math.IsInf(val, -1) {
			return "-Infinity"
		}
		return val
	case []byte:
		// BINARY — base64 encode
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[k] = convertValue(v)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v := range val {
			result[i] = convertValue(v)
		}
		return result
	default:
		return val
	}
}

// truncateIfNeeded drops the rows and keeps a truncated JSON rendering when
// the serialized rows exceed MaxResultLength (in characters).
func (s *SnowflakeMcp) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= s.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	output.Rows = nil
	output.Truncated = true
	output.TruncatedResult = string(runes[:s.config.Query.MaxResultLength]) + "...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
