package mymcp

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ErrorKind is the failure taxonomy surfaced to the dispatcher. Every
// tool-level failure is exactly one of these; none of them escapes a
// dispatch call as a process fault.
type ErrorKind string

const (
	// KindValidation: malformed or missing arguments, disallowed statement
	// kind. The database is never touched.
	KindValidation ErrorKind = "validation"
	// KindConnection: the session itself is unusable (dial/auth failure,
	// network loss, timeout). The session is dropped; the next invocation
	// reconnects.
	KindConnection ErrorKind = "connection"
	// KindQuery: the database rejected a well-formed request (syntax,
	// permission, constraint). The session remains usable.
	KindQuery ErrorKind = "query"
)

// ToolError carries a classified failure from the engine to the dispatch
// boundary, where it becomes an error tool result.
type ToolError struct {
	Kind    ErrorKind
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// classifyError buckets an error into the taxonomy. MySQL server errors keep
// their code, SQL state, and message verbatim for diagnostic transparency.
// Connectivity-class errors are detected first so the caller can drop the
// broken session.
func classifyError(err error) *ToolError {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// The server may omit the SQL state, leaving five zero bytes.
		msg := fmt.Sprintf("Error %d: %s", myErr.Number, myErr.Message)
		if myErr.SQLState != [5]byte{} {
			msg = fmt.Sprintf("Error %d (%s): %s", myErr.Number, myErr.SQLState[:], myErr.Message)
		}
		return &ToolError{Kind: KindQuery, Message: msg}
	}

	if isConnectivityError(err) {
		return &ToolError{Kind: KindConnection, Message: err.Error()}
	}

	return &ToolError{Kind: KindQuery, Message: err.Error()}
}

// isConnectivityError reports whether the session itself is unusable, as
// opposed to a statement-level rejection.
func isConnectivityError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
