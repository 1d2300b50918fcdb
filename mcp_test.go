package mymcp

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func newTestMCPServer(t *testing.T, config Config, fdb *fakeDB) (*server.MCPServer, *MySQLMcp) {
	t.Helper()
	m := newTestEngine(t, config, fdb)
	mcpServer := server.NewMCPServer("gomymcp-test", "0.0.0",
		server.WithToolCapabilities(true),
	)
	RegisterMCPTools(mcpServer, m)
	return mcpServer, m
}

// dispatch sends a raw JSON-RPC message to the MCP server in process and
// returns the response decoded into a generic map.
func dispatch(t *testing.T, mcpServer *server.MCPServer, method string, params any) map[string]any {
	t.Helper()
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	resp := mcpServer.HandleMessage(context.Background(), reqBytes)
	respBytes, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(respBytes, &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return decoded
}

func callTool(t *testing.T, mcpServer *server.MCPServer, name string, args map[string]any) (text string, isError bool) {
	t.Helper()
	resp := dispatch(t, mcpServer, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if errObj, ok := resp["error"]; ok {
		t.Fatalf("unexpected protocol error: %v", errObj)
	}
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("missing result in response: %v", resp)
	}
	isError, _ = result["isError"].(bool)
	content, _ := result["content"].([]any)
	for _, c := range content {
		if m, ok := c.(map[string]any); ok && m["type"] == "text" {
			text += m["text"].(string)
		}
	}
	return text, isError
}

func TestToolsListRegistersAllTools(t *testing.T) {
	t.Parallel()
	mcpServer, _ := newTestMCPServer(t, Config{}, &fakeDB{})

	resp := dispatch(t, mcpServer, "tools/list", nil)
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("missing result: %v", resp)
	}
	tools, _ := result["tools"].([]any)
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.(map[string]any)["name"].(string)] = true
	}
	for _, want := range []string{"execute_sql", "list_tables", "describe_table"} {
		if !names[want] {
			t.Fatalf("expected tool %q registered, got %v", want, names)
		}
	}
}

func TestDispatchExecuteSQL(t *testing.T) {
	t.Parallel()
	fdb := &fakeDB{
		queryFn: staticRows([]string{"id"}, []driver.Value{int64(42)}),
	}
	mcpServer, _ := newTestMCPServer(t, Config{}, fdb)

	text, isError := callTool(t, mcpServer, "execute_sql", map[string]any{"query": "SELECT id FROM t"})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var output ExecuteOutput
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		t.Fatalf("tool result is not valid JSON: %v", err)
	}
	if len(output.Columns) != 1 || output.Columns[0] != "id" {
		t.Fatalf("unexpected columns: %v", output.Columns)
	}
	if len(output.Rows) != 1 {
		t.Fatalf("unexpected rows: %v", output.Rows)
	}
}

func TestDispatchExecuteSQLRejectionIsErrorResult(t *testing.T) {
	t.Parallel()
	fdb := &fakeDB{}
	mcpServer, m := newTestMCPServer(t, Config{}, fdb)

	text, isError := callTool(t, mcpServer, "execute_sql", map[string]any{"query": "DROP TABLE users"})
	if !isError {
		t.Fatal("expected error tool result")
	}
	if !strings.Contains(text, "not allowed in read-only mode") {
		t.Fatalf("unexpected error text: %s", text)
	}
	if m.SessionOpens() != 0 {
		t.Fatalf("expected database untouched, opens = %d", m.SessionOpens())
	}
}

func TestDispatchExecuteSQLMissingQuery(t *testing.T) {
	t.Parallel()
	mcpServer, _ := newTestMCPServer(t, Config{}, &fakeDB{})

	text, isError := callTool(t, mcpServer, "execute_sql", map[string]any{})
	if !isError {
		t.Fatal("expected error tool result")
	}
	if !strings.Contains(text, "query parameter is required") {
		t.Fatalf("unexpected error text: %s", text)
	}
}

func TestDispatchListTables(t *testing.T) {
	t.Parallel()
	fdb := &fakeDB{queryFn: catalogQueryFn}
	mcpServer, _ := newTestMCPServer(t, Config{}, fdb)

	text, isError := callTool(t, mcpServer, "list_tables", nil)
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var output ListTablesOutput
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		t.Fatalf("tool result is not valid JSON: %v", err)
	}
	if output.Database != "testdb" || len(output.Tables) != 2 {
		t.Fatalf("unexpected output: %+v", output)
	}
}

func TestDispatchDescribeTable(t *testing.T) {
	t.Parallel()
	fdb := &fakeDB{queryFn: catalogQueryFn}
	mcpServer, _ := newTestMCPServer(t, Config{}, fdb)

	text, isError := callTool(t, mcpServer, "describe_table", map[string]any{"table": "orders"})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var output DescribeTableOutput
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		t.Fatalf("tool result is not valid JSON: %v", err)
	}
	if output.Table != "orders" || len(output.Columns) != 3 {
		t.Fatalf("unexpected output: %+v", output)
	}
}

func TestDispatchDescribeTableNotFound(t *testing.T) {
	t.Parallel()
	fdb := &fakeDB{
		queryFn: func(query string, args []driver.NamedValue) (driver.Rows, error) {
			return &fakeRows{columns: []string{"column_name", "column_type", "nullable", "column_key", "column_default", "extra"}}, nil
		},
	}
	mcpServer, _ := newTestMCPServer(t, Config{}, fdb)

	text, isError := callTool(t, mcpServer, "describe_table", map[string]any{"table": "missing"})
	if !isError {
		t.Fatal("expected error tool result")
	}
	if !strings.Contains(text, "table not found") {
		t.Fatalf("unexpected error text: %s", text)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	t.Parallel()
	fdb := &fakeDB{}
	mcpServer, m := newTestMCPServer(t, Config{}, fdb)

	resp := dispatch(t, mcpServer, "tools/call", map[string]any{
		"name":      "drop_everything",
		"arguments": map[string]any{},
	})
	if _, ok := resp["error"]; !ok {
		t.Fatalf("expected protocol error for unknown tool, got %v", resp)
	}

	// An unknown tool never reaches the database.
	if m.SessionOpens() != 0 {
		t.Fatalf("expected database untouched, opens = %d", m.SessionOpens())
	}
	if len(fdb.recorded()) != 0 {
		t.Fatalf("expected no statements recorded, got %v", fdb.recorded())
	}
}

// tableDataQueryFn answers both the information_schema queries (for resource
// registration) and plain SELECTs against the fixed schema's tables.
func tableDataQueryFn(query string, args []driver.NamedValue) (driver.Rows, error) {
	if strings.Contains(query, "information_schema") {
		return catalogQueryFn(query, args)
	}
	return &fakeRows{
		columns: []string{"id", "email"},
		rows: [][]driver.Value{
			{int64(1), "a@example.com"},
			{int64(2), nil},
		},
	}, nil
}

func newTestResourceServer(t *testing.T, fdb *fakeDB) (*server.MCPServer, *MySQLMcp) {
	t.Helper()
	m := newTestEngine(t, Config{}, fdb)
	mcpServer := server.NewMCPServer("gomymcp-test", "0.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
	)
	RegisterMCPTools(mcpServer, m)
	if err := RegisterMCPResources(context.Background(), mcpServer, m); err != nil {
		t.Fatalf("failed to register resources: %v", err)
	}
	return mcpServer, m
}

func TestResourcesListExposesAllTables(t *testing.T) {
	t.Parallel()
	fdb := &fakeDB{queryFn: tableDataQueryFn}
	mcpServer, _ := newTestResourceServer(t, fdb)

	resp := dispatch(t, mcpServer, "resources/list", nil)
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("missing result: %v", resp)
	}
	resources, _ := result["resources"].([]any)
	byURI := map[string]map[string]any{}
	for _, r := range resources {
		res := r.(map[string]any)
		byURI[res["uri"].(string)] = res
	}
	for _, table := range []string{"orders", "users"} {
		res, ok := byURI["mysql://"+table+"/data"]
		if !ok {
			t.Fatalf("expected resource for table %q, got %v", table, byURI)
		}
		if res["name"] != "Table: "+table {
			t.Fatalf("unexpected resource name: %v", res["name"])
		}
		if res["mimeType"] != "text/plain" {
			t.Fatalf("unexpected mime type: %v", res["mimeType"])
		}
	}
}

func TestResourceReadReturnsTableData(t *testing.T) {
	t.Parallel()
	fdb := &fakeDB{queryFn: tableDataQueryFn}
	mcpServer, _ := newTestResourceServer(t, fdb)

	resp := dispatch(t, mcpServer, "resources/read", map[string]any{
		"uri": "mysql://users/data",
	})
	if errObj, ok := resp["error"]; ok {
		t.Fatalf("unexpected protocol error: %v", errObj)
	}
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("missing result: %v", resp)
	}
	contents, _ := result["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("expected 1 content item, got %v", contents)
	}
	content := contents[0].(map[string]any)
	if content["uri"] != "mysql://users/data" || content["mimeType"] != "text/plain" {
		t.Fatalf("unexpected content metadata: %v", content)
	}
	text, _ := content["text"].(string)
	lines := strings.Split(text, "\n")
	if len(lines) != 3 || lines[0] != "id,email" || lines[1] != "1,a@example.com" || lines[2] != "2,NULL" {
		t.Fatalf("unexpected rendered text: %q", text)
	}

	// The read goes through the regular pipeline with a quoted identifier and
	// a bounded row count.
	stmt := fdb.lastStatement(t)
	if stmt.sql != "SELECT * FROM `users` LIMIT 100" {
		t.Fatalf("unexpected statement: %q", stmt.sql)
	}
}

func TestTableFromResourceURI(t *testing.T) {
	t.Parallel()
	cases := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{uri: "mysql://users/data", want: "users"},
		{uri: "mysql://order_items/data", want: "order_items"},
		{uri: "postgres://users/data", wantErr: true},
		{uri: "mysql:///data", wantErr: true},
		{uri: "mysql://users", wantErr: true},
		{uri: "mysql://a/b/data", wantErr: true},
	}
	for _, c := range cases {
		got, err := tableFromResourceURI(c.uri)
		if c.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q, got %q", c.uri, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", c.uri, err)
		}
		if got != c.want {
			t.Fatalf("uri %q: expected table %q, got %q", c.uri, c.want, got)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()
	if got := quoteIdent("users"); got != "`users`" {
		t.Fatalf("unexpected quoting: %q", got)
	}
	if got := quoteIdent("odd`name"); got != "`odd``name`" {
		t.Fatalf("expected embedded backticks doubled, got %q", got)
	}
}

func TestRequestLength(t *testing.T) {
	t.Parallel()
	req := mcp.CallToolRequest{}
	if got := requestLength(req); got != 0 {
		t.Fatalf("expected 0 for empty arguments, got %d", got)
	}

	req.Params.Arguments = map[string]any{"query": "SELECT 1"}
	got := requestLength(req)
	want := len(`{"query":"SELECT 1"}`)
	if got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestResultLength(t *testing.T) {
	t.Parallel()
	if got := resultLength(nil); got != 0 {
		t.Fatalf("expected 0 for nil result, got %d", got)
	}
	result := mcp.NewToolResultText("hello")
	if got := resultLength(result); got != len("hello") {
		t.Fatalf("expected %d, got %d", len("hello"), got)
	}
	result = &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "ab"},
			mcp.TextContent{Type: "text", Text: "cde"},
		},
	}
	if got := resultLength(result); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}
