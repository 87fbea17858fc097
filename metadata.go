package sfmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rickchristie/snowflake-mcp/internal/errkind"
	"github.com/rickchristie/snowflake-mcp/internal/validate"
)

// showRows executes a server-built metadata statement (SHOW, DESCRIBE,
// SELECT 1) under the metadata timeout and returns the collected rows.
// Metadata statements do NOT go through the hook/protection/sanitization
// pipeline: their SQL is assembled here from validated identifiers, never
// from raw caller input.
func (s *SnowflakeMcp) showRows(ctx context.Context, opName, sqlText string) ([]map[string]any, error) {
	select {
	case s.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", opName, cap(s.semaphore), ctx.Err())
	}
	defer func() { <-s.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.Query.MetadataTimeoutSeconds)*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", opName, err)
	}
	out, err := s.collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s scan failed: %w", opName, err)
	}
	return out.Rows, nil
}

// ListDatabases returns the databases visible to the current role.
func (s *SnowflakeMcp) ListDatabases(ctx context.Context) (*ListDatabasesOutput, error) {
	startTime := time.Now()

	rows, err := s.showRows(ctx, "ListDatabases", "SHOW DATABASES")
	if err != nil {
		return nil, err
	}

	databases := make([]DatabaseEntry, 0, len(rows))
	for _, row := range rows {
		databases = append(databases, DatabaseEntry{
			Name:      rowString(row, "name"),
			Origin:    rowString(row, "origin"),
			Owner:     rowString(row, "owner"),
			Comment:   rowString(row, "comment"),
			CreatedOn: rowString(row, "created_on"),
			IsCurrent: rowBool(row, "is_current"),
		})
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("database_count", len(databases)).
		Msg("ListDatabases executed")

	return &ListDatabasesOutput{Databases: databases}, nil
}

// ListSchemas returns the schemas in the given database, or in the current
// database when none is given.
func (s *SnowflakeMcp) ListSchemas(ctx context.Context, input ListSchemasInput) (*ListSchemasOutput, error) {
	startTime := time.Now()

	sqlText := "SHOW SCHEMAS"
	if input.Database != "" {
		if err := validate.Identifier("database", input.Database); err != nil {
			return nil, err
		}
		sqlText = fmt.Sprintf("SHOW SCHEMAS IN DATABASE %s", input.Database)
	}

	rows, err := s.showRows(ctx, "ListSchemas", sqlText)
	if err != nil {
		return nil, err
	}

	schemas := make([]SchemaEntry, 0, len(rows))
	for _, row := range rows {
		schemas = append(schemas, SchemaEntry{
			Name:      rowString(row, "name"),
			Database:  rowString(row, "database_name"),
			Owner:     rowString(row, "owner"),
			Comment:   rowString(row, "comment"),
			IsCurrent: rowBool(row, "is_current"),
		})
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("schema_count", len(schemas)).
		Msg("ListSchemas executed")

	return &ListSchemasOutput{Schemas: schemas}, nil
}

// ListTables returns the tables in the given scope. With both database and
// schema the scope is that schema; with only a database, the whole database;
// with only a schema, that schema in the current database.
func (s *SnowflakeMcp) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	if input.Database != "" {
		if err := validate.Identifier("database", input.Database); err != nil {
			return nil, err
		}
	}
	if input.Schema != "" {
		if err := validate.Identifier("schema", input.Schema); err != nil {
			return nil, err
		}
	}

	var sqlText string
	switch {
	case input.Database != "" && input.Schema != "":
		sqlText = fmt.Sprintf("SHOW TABLES IN %s.%s", input.Database, input.Schema)
	case input.Database != "":
		sqlText = fmt.Sprintf("SHOW TABLES IN DATABASE %s", input.Database)
	case input.Schema != "":
		sqlText = fmt.Sprintf("SHOW TABLES IN SCHEMA %s", input.Schema)
	default:
		sqlText = "SHOW TABLES"
	}

	rows, err := s.showRows(ctx, "ListTables", sqlText)
	if err != nil {
		return nil, err
	}

	tables := make([]TableEntry, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, TableEntry{
			Name:     rowString(row, "name"),
			Database: rowString(row, "database_name"),
			Schema:   rowString(row, "schema_name"),
			Kind:     rowString(row, "kind"),
			Rows:     rowInt64(row, "rows"),
			Bytes:    rowInt64(row, "bytes"),
			Owner:    rowString(row, "owner"),
			Comment:  rowString(row, "comment"),
		})
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Tables: tables}, nil
}

// DescribeTable returns the column definitions of a table. Database and
// schema qualify the name; a database without a schema uses Snowflake's
// double-dot notation, which resolves through the PUBLIC schema.
func (s *SnowflakeMcp) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	startTime := time.Now()

	if err := validate.Identifier("table", input.Table); err != nil {
		return nil, err
	}
	if input.Database != "" {
		if err := validate.Identifier("database", input.Database); err != nil {
			return nil, err
		}
	}
	if input.Schema != "" {
		if err := validate.Identifier("schema", input.Schema); err != nil {
			return nil, err
		}
	}

	var qualified string
	switch {
	case input.Database != "" && input.Schema != "":
		qualified = fmt.Sprintf("%s.%s.%s", input.Database, input.Schema, input.Table)
	case input.Database != "":
		qualified = fmt.Sprintf("%s..%s", input.Database, input.Table)
	case input.Schema != "":
		qualified = fmt.Sprintf("%s.%s", input.Schema, input.Table)
	default:
		qualified = input.Table
	}

	rows, err := s.showRows(ctx, "DescribeTable", fmt.Sprintf("DESCRIBE TABLE %s", qualified))
	if err != nil {
		return nil, err
	}

	columns := make([]ColumnInfo, 0, len(rows))
	for _, row := range rows {
		columns = append(columns, ColumnInfo{
			Name:         rowString(row, "name"),
			Type:         rowString(row, "type"),
			Kind:         rowString(row, "kind"),
			Nullable:     rowBool(row, "null?"),
			Default:      rowString(row, "default"),
			IsPrimaryKey: rowBool(row, "primary key"),
			IsUniqueKey:  rowBool(row, "unique key"),
			Comment:      rowString(row, "comment"),
		})
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Str("table", qualified).
		Int("column_count", len(columns)).
		Msg("DescribeTable executed")

	return &DescribeTableOutput{
		Table:    input.Table,
		Database: input.Database,
		Schema:   input.Schema,
		Columns:  columns,
	}, nil
}

// ListWarehouses returns the warehouses visible to the current role.
func (s *SnowflakeMcp) ListWarehouses(ctx context.Context) (*ListWarehousesOutput, error) {
	startTime := time.Now()

	rows, err := s.showRows(ctx, "ListWarehouses", "SHOW WAREHOUSES")
	if err != nil {
		return nil, err
	}

	warehouses := make([]WarehouseEntry, 0, len(rows))
	for _, row := range rows {
		warehouses = append(warehouses, WarehouseEntry{
			Name:        rowString(row, "name"),
			State:       rowString(row, "state"),
			Type:        rowString(row, "type"),
			Size:        rowString(row, "size"),
			Running:     rowInt64(row, "running"),
			Queued:      rowInt64(row, "queued"),
			IsCurrent:   rowBool(row, "is_current"),
			AutoSuspend: rowInt64(row, "auto_suspend"),
			AutoResume:  rowBool(row, "auto_resume"),
			Owner:       rowString(row, "owner"),
			Comment:     rowString(row, "comment"),
		})
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("warehouse_count", len(warehouses)).
		Msg("ListWarehouses executed")

	return &ListWarehousesOutput{Warehouses: warehouses}, nil
}

// ListRoles returns the roles visible to the current user.
func (s *SnowflakeMcp) ListRoles(ctx context.Context) (*ListRolesOutput, error) {
	startTime := time.Now()

	rows, err := s.showRows(ctx, "ListRoles", "SHOW ROLES")
	if err != nil {
		return nil, err
	}

	roles := make([]RoleEntry, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, RoleEntry{
			Name:            rowString(row, "name"),
			IsCurrent:       rowBool(row, "is_current"),
			IsDefault:       rowBool(row, "is_default"),
			AssignedToUsers: rowInt64(row, "assigned_to_users"),
			GrantedToRoles:  rowInt64(row, "granted_to_roles"),
			Owner:           rowString(row, "owner"),
			Comment:         rowString(row, "comment"),
		})
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("role_count", len(roles)).
		Msg("ListRoles executed")

	return &ListRolesOutput{Roles: roles}, nil
}

// TestConnection executes a SELECT 1 round-trip and reports how long it took.
func (s *SnowflakeMcp) TestConnection(ctx context.Context) (*TestConnectionOutput, error) {
	startTime := time.Now()

	if _, err := s.showRows(ctx, "TestConnection", "SELECT 1"); err != nil {
		return nil, errkind.ClassifyConnection(err)
	}
	elapsed := time.Since(startTime)

	s.logger.Info().
		Dur("duration", elapsed).
		Msg("TestConnection executed")

	return &TestConnectionOutput{Connected: true, Duration: elapsed.String()}, nil
}

// --- SHOW output accessors ---
//
// SHOW and DESCRIBE result cells arrive with mixed driver types, and flags
// come back as Y/N markers. These helpers absorb that.

func rowString(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func rowBool(row map[string]any, key string) bool {
	v, ok := row[key]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToUpper(strings.TrimSpace(val)) {
		case "Y", "YES", "TRUE":
			return true
		}
	}
	return false
}

func rowInt64(row map[string]any, key string) int64 {
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0
		}
		return n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
