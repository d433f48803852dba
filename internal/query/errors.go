package query

import (
	"errors"
	"fmt"
)

// SyntaxError is returned by every data-access operation when the backend
// rejects a statement as malformed. It echoes the statement text.
type SyntaxError struct {
	Statement string
	Code      string
	Message   string
	Err       error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error: %s\nQuery:\n%s", e.Message, e.Statement)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// NewSyntaxError wraps a backend error raised for statement.
func NewSyntaxError(statement, code, message string, err error) *SyntaxError {
	return &SyntaxError{
		Statement: statement,
		Code:      code,
		Message:   message,
		Err:       err,
	}
}

// IsSyntaxError reports whether err or anything it wraps is a *SyntaxError.
func IsSyntaxError(err error) bool {
	var syntaxErr *SyntaxError
	return errors.As(err, &syntaxErr)
}
