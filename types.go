package mymcp

// ExecuteInput is the input for the execute_sql tool. Params are bind values
// substituted through the driver's placeholder mechanism, never interpolated
// into the SQL text.
type ExecuteInput struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

// ExecuteOutput is the normalized outcome of one statement. Row-returning
// statements fill Columns and Rows (rows in database order, values restricted
// to a JSON-portable scalar subset); mutating statements fill RowsAffected.
// All failures (MySQL errors, gate rejections, hook rejections, Go errors)
// are placed in Error with ErrorKind naming the taxonomy bucket; callers only
// need to check Error, never a Go error.
type ExecuteOutput struct {
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	Error        string   `json:"error,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
}

// ListTablesInput is the input for the list_tables tool.
type ListTablesInput struct{}

// ListTablesOutput is the output of the list_tables tool. Tables are ordered
// by name so repeated calls against an unchanged schema are identical.
type ListTablesOutput struct {
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
}

// DescribeTableInput is the input for the describe_table tool.
type DescribeTableInput struct {
	Table string `json:"table"`
}

// ColumnInfo describes a single column, mirroring MySQL's DESCRIBE shape.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      string `json:"key,omitempty"`     // PRI, UNI, MUL
	Default  string `json:"default,omitempty"` // empty when NULL
	Extra    string `json:"extra,omitempty"`   // auto_increment, on update ...
}

// IndexInfo describes a single index with its column sequence.
type IndexInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// ForeignKeyInfo describes a single foreign key.
type ForeignKeyInfo struct {
	Name              string `json:"name"`
	Columns           string `json:"columns"`
	ReferencedTable   string `json:"referenced_table"`
	ReferencedColumns string `json:"referenced_columns"`
}

// DescribeTableOutput is the output of the describe_table tool.
type DescribeTableOutput struct {
	Database    string           `json:"database"`
	Table       string           `json:"table"`
	Columns     []ColumnInfo     `json:"columns"`
	Indexes     []IndexInfo      `json:"indexes"`
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys"`
}
