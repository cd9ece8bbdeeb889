package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/arockwell/emdx/internal/types"
)

func TestResolveDocID(t *testing.T) {
	tests := []struct {
		ref     string
		id      int64
		numeric bool
	}{
		{"42", 42, true},
		{"0", 0, true},
		{"-7", -7, true},
		{"Async Patterns", 0, false},
		{"", 0, false},
		{"12abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			id, ok := resolveDocID(tt.ref)
			if ok != tt.numeric {
				t.Fatalf("resolveDocID(%q) ok = %v, want %v", tt.ref, ok, tt.numeric)
			}
			if ok && id != tt.id {
				t.Fatalf("resolveDocID(%q) = %d, want %d", tt.ref, id, tt.id)
			}
		})
	}
}

// exitCodeFor maps error kinds onto the documented process exit codes.
func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"invalid input", types.NewError(types.ErrKindInvalidInput, "bad title"), 2},
		{"timeout", types.NewError(types.ErrKindTimeout, "deadline exceeded"), 124},
		{"killed", types.NewError(types.ErrKindKilled, "signal sent"), 130},
		{"not found", types.NewError(types.ErrKindNotFound, "no such doc"), 1},
		{"conflict", types.NewError(types.ErrKindConflictState, "already purged"), 1},
		{"plain error", errors.New("boom"), 1},
		{
			"wrapped typed error",
			fmt.Errorf("save: %w", types.NewError(types.ErrKindInvalidInput, "empty title")),
			2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Fatalf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
