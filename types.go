package sfmcp

// QueryInput is the input for the Query tool.
type QueryInput struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params,omitempty"`
}

// QueryOutput is the output of the Query tool. When the serialized rows
// exceed query.max_result_length, Rows is dropped and TruncatedResult holds
// the truncated JSON with a marker appended.
type QueryOutput struct {
	Columns         []string         `json:"columns"`
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"row_count"`
	Truncated       bool             `json:"truncated,omitempty"`
	TruncatedResult string           `json:"truncated_result,omitempty"`
}

// DatabaseEntry represents a single database in the ListDatabases output.
type DatabaseEntry struct {
	Name      string `json:"name"`
	Origin    string `json:"origin,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Comment   string `json:"comment,omitempty"`
	CreatedOn string `json:"created_on,omitempty"`
	IsCurrent bool   `json:"is_current"`
}

// ListDatabasesOutput is the output of the ListDatabases tool.
type ListDatabasesOutput struct {
	Databases []DatabaseEntry `json:"databases"`
}

// ListSchemasInput is the input for the ListSchemas tool.
type ListSchemasInput struct {
	Database string `json:"database,omitempty"`
}

// SchemaEntry represents a single schema in the ListSchemas output.
type SchemaEntry struct {
	Name      string `json:"name"`
	Database  string `json:"database,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Comment   string `json:"comment,omitempty"`
	IsCurrent bool   `json:"is_current"`
}

// ListSchemasOutput is the output of the ListSchemas tool.
type ListSchemasOutput struct {
	Schemas []SchemaEntry `json:"schemas"`
}

// ListTablesInput is the input for the ListTables tool.
type ListTablesInput struct {
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

// TableEntry represents a single table in the ListTables output.
type TableEntry struct {
	Name     string `json:"name"`
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Kind     string `json:"kind"` // "TABLE", "VIEW", "TRANSIENT", "TEMPORARY", "EXTERNAL"
	Rows     int64  `json:"rows"`
	Bytes    int64  `json:"bytes"`
	Owner    string `json:"owner,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// ListTablesOutput is the output of the ListTables tool.
type ListTablesOutput struct {
	Tables []TableEntry `json:"tables"`
}

// DescribeTableInput is the input for the DescribeTable tool.
type DescribeTableInput struct {
	Table    string `json:"table"`
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

// ColumnInfo describes a single column. Nullable and the key flags come from
// the Y/N markers in DESCRIBE TABLE output.
type ColumnInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Kind         string `json:"kind,omitempty"` // "COLUMN"
	Nullable     bool   `json:"nullable"`
	Default      string `json:"default,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	IsUniqueKey  bool   `json:"is_unique_key"`
	Comment      string `json:"comment,omitempty"`
}

// DescribeTableOutput is the output of the DescribeTable tool.
type DescribeTableOutput struct {
	Table    string       `json:"table"`
	Database string       `json:"database,omitempty"`
	Schema   string       `json:"schema,omitempty"`
	Columns  []ColumnInfo `json:"columns"`
}

// WarehouseEntry represents a single warehouse in the ListWarehouses output.
type WarehouseEntry struct {
	Name        string `json:"name"`
	State       string `json:"state"` // "STARTED", "SUSPENDED", "RESIZING"
	Type        string `json:"type,omitempty"`
	Size        string `json:"size,omitempty"`
	Running     int64  `json:"running"`
	Queued      int64  `json:"queued"`
	IsCurrent   bool   `json:"is_current"`
	AutoSuspend int64  `json:"auto_suspend,omitempty"`
	AutoResume  bool   `json:"auto_resume"`
	Owner       string `json:"owner,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// ListWarehousesOutput is the output of the ListWarehouses tool.
type ListWarehousesOutput struct {
	Warehouses []WarehouseEntry `json:"warehouses"`
}

// RoleEntry represents a single role in the ListRoles output.
type RoleEntry struct {
	Name            string `json:"name"`
	IsCurrent       bool   `json:"is_current"`
	IsDefault       bool   `json:"is_default"`
	AssignedToUsers int64  `json:"assigned_to_users"`
	GrantedToRoles  int64  `json:"granted_to_roles"`
	Owner           string `json:"owner,omitempty"`
	Comment         string `json:"comment,omitempty"`
}

// ListRolesOutput is the output of the ListRoles tool.
type ListRolesOutput struct {
	Roles []RoleEntry `json:"roles"`
}

// TestConnectionOutput is the output of the TestConnection tool.
type TestConnectionOutput struct {
	Connected bool   `json:"connected"`
	Duration  string `json:"duration"`
}

// CortexCompleteInput is the input for the CortexComplete tool. Model is
// optional; the configured default model is used when empty.
type CortexCompleteInput struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// CortexCompleteOutput is the output of the CortexComplete tool. Usage is
// only populated when the model was called with inference options, which
// makes Snowflake return the full response envelope.
type CortexCompleteOutput struct {
	Model    string         `json:"model"`
	Response string         `json:"response"`
	Usage    map[string]any `json:"usage,omitempty"`
}

// CortexSearchInput is the input for the CortexSearch tool. Filter, when
// set, must be a JSON object in Cortex Search filter syntax.
type CortexSearchInput struct {
	ServiceName string `json:"service_name"`
	Query       string `json:"query"`
	Limit       int    `json:"limit,omitempty"`
	Filter      string `json:"filter,omitempty"`
}

// CortexSearchOutput is the output of the CortexSearch tool.
type CortexSearchOutput struct {
	ServiceName string           `json:"service_name"`
	Results     []map[string]any `json:"results"`
	RequestID   string           `json:"request_id,omitempty"`
}

// CortexAnalystInput is the input for the CortexAnalyst tool.
type CortexAnalystInput struct {
	ServiceName string `json:"service_name"`
	Question    string `json:"question"`
	IncludeSQL  bool   `json:"include_sql"`
	IncludeData bool   `json:"include_data"`
}

// CortexAnalystOutput is the output of the CortexAnalyst tool. Result is the
// analysis document returned by the service; the sql and data fields are
// removed when the caller asked to exclude them.
type CortexAnalystOutput struct {
	ServiceName string         `json:"service_name"`
	Result      map[string]any `json:"result"`
}

// ListCortexServicesInput is the input for the ListCortexServices tool.
// ServiceType is one of "search", "analyst", "complete", or "all" (default).
type ListCortexServicesInput struct {
	ServiceType string `json:"service_type,omitempty"`
}

// CortexSearchService describes a configured Cortex Search service.
type CortexSearchService struct {
	Name        string `json:"service_name"`
	Database    string `json:"database_name"`
	Schema      string `json:"schema_name"`
	Description string `json:"description,omitempty"`
}

// CortexAnalystService describes a configured Cortex Analyst service.
type CortexAnalystService struct {
	Name          string `json:"service_name"`
	SemanticModel string `json:"semantic_model"`
	Description   string `json:"description,omitempty"`
}

// CortexCompleteConfig describes the Cortex Complete model configuration.
type CortexCompleteConfig struct {
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models"`
}

// ListCortexServicesOutput is the output of the ListCortexServices tool.
// When ServiceType is "all", sets whose catalog section failed to load are
// omitted and the load failures are reported in Warnings.
type ListCortexServicesOutput struct {
	SearchServices  []CortexSearchService  `json:"search_services,omitempty"`
	AnalystServices []CortexAnalystService `json:"analyst_services,omitempty"`
	Complete        *CortexCompleteConfig  `json:"cortex_complete,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
}
