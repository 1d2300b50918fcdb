package mymcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers execute_sql, list_tables, and describe_table
// as MCP tools on the given MCP server. This is the single boundary where
// engine failures become protocol-visible error results — no invocation may
// crash the process or surface a transport-level fault.
func RegisterMCPTools(mcpServer *server.MCPServer, m *MySQLMcp) {
	// execute_sql tool
	executeSQLTool := mcp.NewTool("execute_sql",
		mcp.WithDescription("Execute an SQL query on the MySQL server. Returns results as JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The SQL query to execute"),
		),
	)

	mcpServer.AddTool(executeSQLTool, m.loggedToolHandler("execute_sql", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		output := m.Execute(ctx, ExecuteInput{SQL: query})
		if output.Error != "" {
			return mcp.NewToolResultError(output.Error), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal execute result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// list_tables tool
	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all tables in the configured MySQL database."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, m.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := m.ListTables(ctx, ListTablesInput{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal list tables result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// describe_table tool
	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Describe the schema of a table including columns, types, indexes, and foreign keys."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name to describe"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(describeTableTool, m.loggedToolHandler("describe_table", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		output, err := m.DescribeTable(ctx, DescribeTableInput{Table: table})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal describe table result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))
}

// RegisterMCPResources registers every table of the configured database as an
// MCP resource (mysql://<table>/data) on the given MCP server. Reading a
// resource returns the first 100 rows of the table as comma-separated text.
// The table set is captured at registration time; the server should advertise
// the list-changed resource capability so clients re-list after schema
// changes.
func RegisterMCPResources(ctx context.Context, mcpServer *server.MCPServer, m *MySQLMcp) error {
	output, err := m.ListTables(ctx, ListTablesInput{})
	if err != nil {
		return err
	}
	for _, table := range output.Tables {
		resource := mcp.NewResource(
			"mysql://"+table+"/data",
			"Table: "+table,
			mcp.WithResourceDescription("Data in table: "+table),
			mcp.WithMIMEType("text/plain"),
		)
		mcpServer.AddResource(resource, m.tableResourceHandler)
	}
	m.logger.Info().Int("resource_count", len(output.Tables)).Msg("table resources registered")
	return nil
}

// tableResourceHandler serves a resource read by running a bounded SELECT
// through the regular execution pipeline, so gating, sanitization, and the
// single-session contract all apply.
func (m *MySQLMcp) tableResourceHandler(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	table, err := tableFromResourceURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	output := m.Execute(ctx, ExecuteInput{SQL: "SELECT * FROM " + quoteIdent(table) + " LIMIT 100"})
	if output.Error != "" {
		return nil, errors.New(output.Error)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     renderTableText(output),
		},
	}, nil
}

// tableFromResourceURI extracts the table name from a mysql://<table>/data URI.
func tableFromResourceURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "mysql://")
	if !ok {
		return "", fmt.Errorf("invalid resource URI: %s", uri)
	}
	table, ok := strings.CutSuffix(rest, "/data")
	if !ok || table == "" || strings.Contains(table, "/") {
		return "", fmt.Errorf("invalid resource URI: %s", uri)
	}
	return table, nil
}

// quoteIdent renders a MySQL identifier with backtick quoting, doubling any
// embedded backticks.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// renderTableText renders a result set as comma-separated text: one header
// line of column names, then one line per row.
func renderTableText(output *ExecuteOutput) string {
	lines := make([]string, 0, len(output.Rows)+1)
	lines = append(lines, strings.Join(output.Columns, ","))
	for _, row := range output.Rows {
		fields := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				fields[i] = "NULL"
			} else {
				fields[i] = fmt.Sprintf("%v", v)
			}
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	return strings.Join(lines, "\n")
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (m *MySQLMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		m.logger.Info().
			Str("tool", tool).
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
