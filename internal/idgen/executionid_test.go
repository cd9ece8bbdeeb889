package idgen

import (
	"testing"
	"time"
)

func TestGenerateExecutionIDUniqueAndShaped(t *testing.T) {
	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	a := GenerateExecutionID(ts, 4242)
	b := GenerateExecutionID(ts, 4242)

	wantPrefix := "exec-" + "1785499200000" + "-4242-"
	if len(a) != len(wantPrefix)+8 || a[:len(wantPrefix)] != wantPrefix {
		t.Errorf("GenerateExecutionID() = %q, want prefix %q plus 8 hex chars", a, wantPrefix)
	}
	if a == b {
		t.Errorf("expected distinct execution ids across calls, got %q twice", a)
	}
}
