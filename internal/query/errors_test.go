package query

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyntaxErrorMessageEchoesStatement(t *testing.T) {
	cause := errors.New("backend said no")
	err := NewSyntaxError("MATCH (u:User RETURN u", "Neo.ClientError.Statement.SyntaxError", "Invalid input 'R'", cause)

	assert.Contains(t, err.Error(), "MATCH (u:User RETURN u")
	assert.Contains(t, err.Error(), "Invalid input 'R'")
	assert.ErrorIs(t, err, cause)
}

func TestIsSyntaxError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection refused"), false},
		{"direct", NewSyntaxError("x", "", "bad", nil), true},
		{"wrapped", fmt.Errorf("creating user: %w", NewSyntaxError("x", "", "bad", nil)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSyntaxError(tt.err))
		})
	}
}

func TestNewDefaultsParams(t *testing.T) {
	stmt := New("ping", "RETURN 1", Read, nil)

	assert.NotNil(t, stmt.Params)
	assert.Equal(t, "read", stmt.Mode.String())
	assert.Equal(t, "write", Write.String())
}
