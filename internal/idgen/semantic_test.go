package idgen

import "testing"

func TestGenerateSlug(t *testing.T) {
	gen := NewSemanticIDGenerator()

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"simple", "Fix login timeout", "fix_login_timeout"},
		{"with articles", "The API returns an error", "api_returns_error"},
		{"with prepositions", "Add support for dark mode", "add_support_dark_mode"},
		{"uppercase", "FIX THE BUG", "fix_bug"},
		{"numbers", "Fix issue 123", "fix_issue_123"},
		{"punctuation", "Fix: login (timeout)", "fix_login_timeout"},
		{"special chars", "Fix bug #42 - login", "fix_bug_42_login"},
		{"empty", "", "untitled"},
		{"only stop words", "the a an", "the"},
		{"numeric start", "123 fix", "n123_fix"},
		{"hyphens to underscores", "fix-login-bug", "fix_login_bug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gen.GenerateSlug(tt.prompt)
			if got != tt.want {
				t.Errorf("GenerateSlug(%q) = %q, want %q", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestSlugLength(t *testing.T) {
	gen := NewSemanticIDGenerator()

	longPrompt := "This is an extremely long prompt that goes on and on and should definitely be truncated to fit within the maximum allowed slug length"
	slug := gen.GenerateSlug(longPrompt)

	if len(slug) > 46 {
		t.Errorf("slug length %d exceeds max 46: %q", len(slug), slug)
	}
	if len(slug) < 3 {
		t.Errorf("slug length %d is below minimum 3: %q", len(slug), slug)
	}
}

func TestStopWordRemoval(t *testing.T) {
	gen := NewSemanticIDGenerator()

	slug := gen.GenerateSlug("is are the a an")
	if slug == "" || len(slug) < 3 {
		t.Errorf("slug from stop words should have fallback, got %q", slug)
	}
}

func TestGenerateBranchNameShapeAndUniqueness(t *testing.T) {
	gen := NewSemanticIDGenerator()

	name1, err := gen.GenerateBranchName("delegate", "Fix the flaky retry test")
	if err != nil {
		t.Fatalf("GenerateBranchName: %v", err)
	}
	name2, err := gen.GenerateBranchName("delegate", "Fix the flaky retry test")
	if err != nil {
		t.Fatalf("GenerateBranchName: %v", err)
	}

	const wantPrefix = "delegate/fix_flaky_retry_test-"
	if len(name1) != len(wantPrefix)+5 || name1[:len(wantPrefix)] != wantPrefix {
		t.Errorf("GenerateBranchName() = %q, want prefix %q plus 5 hex chars", name1, wantPrefix)
	}
	if name1 == name2 {
		t.Errorf("expected distinct branch names across calls, got %q twice", name1)
	}
}
