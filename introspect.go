package mymcp

import (
	"context"
	"time"
)

// Catalog queries. Schema and table names are always bound as parameters,
// never concatenated into the SQL text.

const listTablesSQL = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = ?
ORDER BY table_name
`

const columnsSQL = `
SELECT
    column_name,
    column_type,
    CASE is_nullable WHEN 'YES' THEN 1 ELSE 0 END,
    column_key,
    COALESCE(column_default, ''),
    extra
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position
`

const indexesSQL = `
SELECT index_name, column_name, non_unique
FROM information_schema.statistics
WHERE table_schema = ? AND table_name = ?
ORDER BY index_name, seq_in_index
`

const foreignKeysSQL = `
SELECT
    constraint_name,
    GROUP_CONCAT(column_name ORDER BY ordinal_position SEPARATOR ', '),
    referenced_table_name,
    GROUP_CONCAT(referenced_column_name ORDER BY ordinal_position SEPARATOR ', ')
FROM information_schema.key_column_usage
WHERE table_schema = ? AND table_name = ? AND referenced_table_name IS NOT NULL
GROUP BY constraint_name, referenced_table_name
ORDER BY constraint_name
`

// ListTables returns the tables of the configured database, ordered by name
// so repeated calls against an unchanged schema yield identical results.
// Does NOT go through the hook/gate/sanitization pipeline.
func (m *MySQLMcp) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	m.execMu.Lock()
	defer m.execMu.Unlock()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(m.config.Exec.ListTablesTimeoutSeconds)*time.Second)
	defer cancel()

	sess, err := m.conns.get(queryCtx)
	if err != nil {
		return nil, m.introspectErr(err)
	}

	rows, err := sess.QueryContext(queryCtx, listTablesSQL, m.database)
	if err != nil {
		return nil, m.introspectErr(err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, m.introspectErr(err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, m.introspectErr(err)
	}

	m.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Database: m.database, Tables: tables}, nil
}

// DescribeTable returns column, index, and foreign-key information for a
// table of the configured database. An unknown table name yields an explicit
// not-found validation error. Does NOT go through the hook/gate/sanitization
// pipeline.
func (m *MySQLMcp) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	startTime := time.Now()

	if input.Table == "" {
		return nil, validationErrorf("table name is required")
	}

	m.execMu.Lock()
	defer m.execMu.Unlock()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(m.config.Exec.DescribeTableTimeoutSeconds)*time.Second)
	defer cancel()

	sess, err := m.conns.get(queryCtx)
	if err != nil {
		return nil, m.introspectErr(err)
	}

	output := &DescribeTableOutput{
		Database:    m.database,
		Table:       input.Table,
		Columns:     []ColumnInfo{},
		Indexes:     []IndexInfo{},
		ForeignKeys: []ForeignKeyInfo{},
	}

	// Columns. Zero rows means the table does not exist — surfaced as an
	// explicit not-found error rather than an empty description.
	rows, err := sess.QueryContext(queryCtx, columnsSQL, m.database, input.Table)
	if err != nil {
		return nil, m.introspectErr(err)
	}
	for rows.Next() {
		var col ColumnInfo
		var nullable int
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Key, &col.Default, &col.Extra); err != nil {
			rows.Close()
			return nil, m.introspectErr(err)
		}
		col.Nullable = nullable == 1
		output.Columns = append(output.Columns, col)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, m.introspectErr(err)
	}
	rows.Close()

	if len(output.Columns) == 0 {
		return nil, validationErrorf("table not found: %s.%s", m.database, input.Table)
	}

	// Indexes, grouped by name with columns in sequence order.
	rows, err = sess.QueryContext(queryCtx, indexesSQL, m.database, input.Table)
	if err != nil {
		return nil, m.introspectErr(err)
	}
	for rows.Next() {
		var indexName, columnName string
		var nonUnique int
		if err := rows.Scan(&indexName, &columnName, &nonUnique); err != nil {
			rows.Close()
			return nil, m.introspectErr(err)
		}
		if n := len(output.Indexes); n > 0 && output.Indexes[n-1].Name == indexName {
			output.Indexes[n-1].Columns = append(output.Indexes[n-1].Columns, columnName)
		} else {
			output.Indexes = append(output.Indexes, IndexInfo{
				Name:    indexName,
				Columns: []string{columnName},
				Unique:  nonUnique == 0,
			})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, m.introspectErr(err)
	}
	rows.Close()

	// Foreign keys.
	rows, err = sess.QueryContext(queryCtx, foreignKeysSQL, m.database, input.Table)
	if err != nil {
		return nil, m.introspectErr(err)
	}
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.Name, &fk.Columns, &fk.ReferencedTable, &fk.ReferencedColumns); err != nil {
			rows.Close()
			return nil, m.introspectErr(err)
		}
		output.ForeignKeys = append(output.ForeignKeys, fk)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, m.introspectErr(err)
	}
	rows.Close()

	m.logger.Info().
		Str("table", input.Table).
		Dur("duration", time.Since(startTime)).
		Int("column_count", len(output.Columns)).
		Msg("DescribeTable executed")

	return output, nil
}

// introspectErr classifies an introspection failure, dropping the session
// for connectivity-class errors so the next call reconnects.
func (m *MySQLMcp) introspectErr(err error) error {
	toolErr := classifyError(err)
	if toolErr.Kind == KindConnection {
		m.conns.markBroken()
	}
	m.logger.Error().Err(err).Str("error_kind", string(toolErr.Kind)).Msg("introspection error")
	return toolErr
}
