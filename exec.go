package mymcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dbbridge/mysql-mcp/internal/protection"
)

// Execute runs the full statement pipeline and returns only ExecuteOutput.
// All errors (MySQL errors, gate rejections, hook rejections, Go errors)
// are converted to output.Error with output.ErrorKind naming the taxonomy
// bucket. The error message is then evaluated against error_prompts patterns
// — any matching prompt messages are appended. Callers only need to check
// output.Error, never a Go error.
func (m *MySQLMcp) Execute(ctx context.Context, input ExecuteInput) *ExecuteOutput {
	startTime := time.Now()
	sqlText := input.SQL

	// 1. Serialize: one statement in flight at a time, so two invocations
	// never share the single session's in-flight state.
	m.execMu.Lock()
	defer m.execMu.Unlock()

	// 2. Check SQL length before any processing (hooks, gate, execution)
	if len(sqlText) > m.config.Exec.MaxSQLLength {
		return m.handleError(validationErrorf("SQL statement too long: %d bytes exceeds maximum of %d bytes", len(sqlText), m.config.Exec.MaxSQLLength))
	}

	// --- Pipeline tracking ---
	var beforeHooks, afterHooks []string
	timeoutRule := ""

	// 3. Run BeforeExec hooks (middleware chain)
	var err error
	if len(m.goBeforeHooks) > 0 {
		sqlText, err = m.runGoBeforeHooks(ctx, sqlText)
		for _, entry := range m.goBeforeHooks {
			beforeHooks = append(beforeHooks, entry.Name)
		}
	} else if m.cmdHooks != nil {
		sqlText, beforeHooks, err = m.cmdHooks.RunBeforeExec(ctx, sqlText)
	}
	if err != nil {
		return m.handleError(&ToolError{Kind: KindValidation, Message: err.Error()})
	}

	// 4. Gate check (on the potentially modified statement): exactly one
	// statement, allow-listed leading keyword unless writes are enabled.
	if err := m.gate.Check(sqlText); err != nil {
		return m.handleError(&ToolError{Kind: KindValidation, Message: err.Error()})
	}

	// 5. Determine timeout
	var execTimeout time.Duration
	execTimeout, timeoutRule = m.timeoutMgr.Resolve(sqlText)
	execCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	// 6. Acquire the session
	sess, err := m.conns.get(execCtx)
	if err != nil {
		return m.handleError(err)
	}

	// 7. Execute. Row-returning statements are fully materialized — no open
	// cursor survives past this call. Bind parameters go through the
	// driver's placeholder mechanism, never into the SQL text.
	keyword := protection.LeadingKeyword(sqlText)
	var result *ExecuteOutput
	if protection.ReturnsRows(keyword) {
		rows, err := sess.QueryContext(execCtx, sqlText, input.Params...)
		if err != nil {
			return m.handleError(err)
		}
		result, err = collectRows(rows)
		if err != nil {
			return m.handleError(err)
		}
	} else {
		res, err := sess.ExecContext(execCtx, sqlText, input.Params...)
		if err != nil {
			return m.handleError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			m.logger.Warn().Err(err).Msg("affected-row count unavailable, reporting 0")
			affected = 0
		}
		result = &ExecuteOutput{RowsAffected: affected}
	}

	// 8. AfterExec hooks
	var finalResult *ExecuteOutput
	if len(m.goAfterHooks) > 0 {
		finalResult, err = m.runGoAfterHooks(ctx, result)
		if err != nil {
			return m.handleError(&ToolError{Kind: KindValidation, Message: err.Error()})
		}
		for _, entry := range m.goAfterHooks {
			afterHooks = append(afterHooks, entry.Name)
		}
	} else if m.cmdHooks != nil && m.cmdHooks.HasAfterExecHooks() {
		resultJSON, err := json.Marshal(result)
		if err != nil {
			return m.handleError(err)
		}

		modifiedJSON, executed, err := m.cmdHooks.RunAfterExec(ctx, string(resultJSON))
		if err != nil {
			return m.handleError(&ToolError{Kind: KindValidation, Message: err.Error()})
		}
		afterHooks = executed

		finalResult = &ExecuteOutput{}
		dec := json.NewDecoder(strings.NewReader(modifiedJSON))
		dec.UseNumber()
		if err := dec.Decode(finalResult); err != nil {
			return m.handleError(err)
		}
	} else {
		finalResult = result
	}

	// 9. Apply sanitization and result-length truncation
	sanitized := m.sanitizer.HasRules()
	finalResult.Rows = m.sanitizer.Apply(finalResult.Rows)
	m.truncateIfNeeded(finalResult)

	// 10. Log successful execution with pipeline details
	logEvent := m.logger.Info().
		Str("sql", truncateForLog(sqlText, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(finalResult.Rows)).
		Int64("rows_affected", finalResult.RowsAffected)
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
	logEvent.Msg("statement executed")

	return finalResult
}

// runGoBeforeHooks runs Go-interface BeforeExec hooks in a middleware chain.
func (m *MySQLMcp) runGoBeforeHooks(ctx context.Context, sqlText string) (string, error) {
	for _, entry := range m.goBeforeHooks {
		timeout := entry.Timeout
		if timeout == 0 {
			timeout = time.Duration(m.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, timeout)

		modified, err := entry.Hook.Run(hookCtx, sqlText)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("before_exec hook error: hook timed out (name: %s, timeout: %s)", entry.Name, timeout)
			}
			return "", fmt.Errorf("before_exec hook error: hook rejected statement (name: %s): %w", entry.Name, err)
		}
		sqlText = modified
	}
	return sqlText, nil
}

// runGoAfterHooks runs Go-interface AfterExec hooks in a middleware chain.
func (m *MySQLMcp) runGoAfterHooks(ctx context.Context, result *ExecuteOutput) (*ExecuteOutput, error) {
	for _, entry := range m.goAfterHooks {
		timeout := entry.Timeout
		if timeout == 0 {
			timeout = time.Duration(m.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, timeout)

		modified, err := entry.Hook.Run(hookCtx, result)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("after_exec hook error: hook timed out (name: %s, timeout: %s)", entry.Name, timeout)
			}
			return nil, fmt.Errorf("after_exec hook error: hook rejected result (name: %s): %w", entry.Name, err)
		}
		result = modified
	}
	return result, nil
}

// collectRows reads all rows and returns an ExecuteOutput with columns and
// row values in database order.
func collectRows(rows *sql.Rows) (*ExecuteOutput, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(columns))
		for i, v := range raw {
			row[i] = convertValue(v)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ExecuteOutput{Columns: columns, Rows: resultRows}, nil
}

// convertValue normalizes a driver-returned value to the portable scalar
// subset (string, number, boolean, null). MySQL text and binary columns
// arrive as []byte; temporal columns arrive as time.Time with ParseTime on.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case int64, float64, bool, string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// handleError converts any error into an ExecuteOutput with a classified
// error message. Connectivity-class errors drop the held session so the next
// invocation reconnects. The message is evaluated against error_prompts —
// matching prompt messages are appended.
func (m *MySQLMcp) handleError(err error) *ExecuteOutput {
	toolErr := classifyError(err)
	if toolErr.Kind == KindConnection {
		m.conns.markBroken()
	}

	errMsg := toolErr.Message
	prompt, patterns := m.errPrompts.Match(errMsg)

	logEvent := m.logger.Error().Err(err).Str("error_kind", string(toolErr.Kind))
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("statement error")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return &ExecuteOutput{Error: errMsg, ErrorKind: string(toolErr.Kind)}
}

// truncateIfNeeded truncates output rows if their JSON rendering exceeds
// MaxResultLength (in characters).
func (m *MySQLMcp) truncateIfNeeded(output *ExecuteOutput) {
	if len(output.Rows) == 0 {
		return
	}
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= m.config.Exec.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	truncated := string(runes[:m.config.Exec.MaxResultLength])
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
	output.ErrorKind = string(KindValidation)
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
