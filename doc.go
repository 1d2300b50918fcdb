// Package mymcp provides safe, controlled MySQL access for AI agents
// through the Model Context Protocol (MCP).
//
// It exposes three tools — execute_sql, list_tables, and describe_table —
// with a full execution pipeline: statement gating, exec hooks, data
// sanitization, result truncation, and dynamic agent steering via error
// prompts.
//
// SQL injection is prevented at the protocol level: bind parameters always
// travel through the driver's placeholder mechanism and are never
// interpolated into statement text. On top of that, a quote- and
// comment-aware statement gate enforces single-statement execution and a
// configurable leading-keyword allow-list (read-only by default).
//
// # Library Usage
//
//	conn, err := mymcp.LoadEnv() // MYSQL_HOST, MYSQL_PORT, MYSQL_USER, ...
//	if err != nil {
//		log.Fatal(err)
//	}
//	m, err := mymcp.New(ctx, conn, mymcp.Config{
//		Exec: mymcp.ExecConfig{DefaultTimeoutSeconds: 30},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close(ctx)
//
//	// Use directly
//	output := m.Execute(ctx, mymcp.ExecuteInput{SQL: "SELECT * FROM users LIMIT 10"})
//
//	// Or register as MCP tools
//	mymcp.RegisterMCPTools(mcpServer, m)
//
// The engine brokers a single database session: one statement runs at a
// time, the session is created lazily, reused across calls, and dropped and
// re-established after a connectivity failure. Tool-level failures never
// escape as process faults — they surface as error tool results.
//
// # Hooks
//
// BeforeExec and AfterExec hooks run as a middleware chain around statement
// execution. Implement [BeforeExecHook] and [AfterExecHook] for native Go
// hooks, or configure command hooks (server mode) that receive JSON on stdin
// and answer with an accept/reject verdict on stdout.
package mymcp
