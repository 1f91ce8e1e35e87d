package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCommandError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CommandError
		expected string
	}{
		{
			name:     "ERR prefix",
			err:      ErrSyntax,
			expected: "ERR syntax error",
		},
		{
			name:     "WRONGTYPE prefix",
			err:      ErrWrongType,
			expected: "WRONGTYPE Operation against a key holding the wrong kind of value",
		},
		{
			name:     "arity",
			err:      WrongArity("GET"),
			expected: "ERR wrong number of arguments for 'get' command",
		},
		{
			name:     "unknown command keeps name as sent",
			err:      UnknownCommand("FooBar"),
			expected: "ERR unknown command 'FooBar'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCommandError_Is(t *testing.T) {
	if !errors.Is(WrongArity("get"), ErrArity) {
		t.Error("errors.Is should match same code with different message")
	}
	if errors.Is(ErrSyntax, ErrArity) {
		t.Error("errors.Is should not match different codes")
	}
	if errors.Is(ErrSyntax, fmt.Errorf("syntax error")) {
		t.Error("errors.Is should not match non-CommandError")
	}

	wrapped := fmt.Errorf("store: %w", ErrWrongType)
	if !errors.Is(wrapped, ErrWrongType) {
		t.Error("errors.Is should see through wrapping")
	}
}

func TestAsCommandError(t *testing.T) {
	if got := AsCommandError(fmt.Errorf("x: %w", ErrOverflow)); got != ErrOverflow {
		t.Errorf("AsCommandError() = %v, want ErrOverflow", got)
	}

	got := AsCommandError(errors.New("disk full"))
	if got.Error() != "ERR disk full" {
		t.Errorf("AsCommandError(foreign).Error() = %q", got.Error())
	}
}
