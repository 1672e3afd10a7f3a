package database

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNestedTransaction is returned when RunInTx is called with a context that
// already carries an open transaction.
var ErrNestedTransaction = errors.New("nested transactions are not supported")

// sensitiveParams are never written to logs.
var sensitiveParams = map[string]bool{
	"pass":      true,
	"token":     true,
	"secret":    true,
	"sessionId": true,
}

// StatementError wraps a driver failure with the context needed to debug it:
// the gateway method, logical statement, SQL text, parameters and call site.
type StatementError struct {
	Method string
	Key    string
	Query  string
	Params Params
	Caller string
	Err    error
}

func (e *StatementError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Method)
	if e.Key != "" {
		fmt.Fprintf(&b, " [%s]", e.Key)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Query != "" {
		fmt.Fprintf(&b, " (sql: %s)", strings.Join(strings.Fields(e.Query), " "))
	}
	if len(e.Params) > 0 {
		fmt.Fprintf(&b, " (params: %s)", redact(e.Params))
	}
	if e.Caller != "" {
		fmt.Fprintf(&b, " (at %s)", e.Caller)
	}
	return b.String()
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// newStatementError records the caller two frames above the gateway method.
func newStatementError(method, key, query string, params Params, err error) *StatementError {
	caller := ""
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s:%d", file, line)
	}
	return &StatementError{
		Method: method,
		Key:    key,
		Query:  query,
		Params: params,
		Caller: caller,
		Err:    err,
	}
}

func redact(params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if sensitiveParams[k] {
			parts = append(parts, k+"=***")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}

// IsUniqueViolation reports whether err is a primary key or unique index
// violation from either supported driver.
func IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			// Connections without extended result codes only report the primary code.
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}
