package search

import "testing"

func TestParseQueryPlainTerm(t *testing.T) {
	got := ParseQuery("deploy")
	if got != "deploy*" {
		t.Fatalf("expected prefix wildcard, got %q", got)
	}
}

func TestParseQueryShortTermNoWildcard(t *testing.T) {
	got := ParseQuery("rm")
	if got != "rm" {
		t.Fatalf("expected no wildcard for short token, got %q", got)
	}
}

func TestParseQueryQuotedPhrase(t *testing.T) {
	got := ParseQuery(`"exact phrase"`)
	if got != `"exact phrase"` {
		t.Fatalf("expected phrase passthrough, got %q", got)
	}
}

func TestParseQueryUserFilter(t *testing.T) {
	got := ParseQuery("user:deploy")
	if got != "(role:user AND content:deploy)" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestParseQueryAssistantFilterBare(t *testing.T) {
	got := ParseQuery("ai:")
	if got != "role:assistant" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestParseQueryMultipleTermsANDed(t *testing.T) {
	got := ParseQuery("deploy server")
	want := "deploy* AND server*"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestParseQueryEmpty(t *testing.T) {
	if got := ParseQuery("   "); got != "" {
		t.Fatalf("expected empty result for blank input, got %q", got)
	}
}
