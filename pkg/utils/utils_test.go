package utils

import (
	"regexp"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	id1 := GenerateID("client")
	id2 := GenerateID("client")
	if !strings.HasPrefix(id1, "client_") {
		t.Errorf("unexpected id format: %s", id1)
	}
	if id1 == id2 {
		t.Error("expected unique ids")
	}
}

func TestGenerateRoomName(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z]+-[a-z]+-\d{4}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name := GenerateRoomName()
		if !pattern.MatchString(name) {
			t.Fatalf("unexpected room name format: %s", name)
		}
		seen[name] = true
	}
	if len(seen) < 2 {
		t.Error("expected some variety in generated names")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  "); got != "helloworld" {
		t.Errorf("unexpected result: %q", got)
	}
	if got := SanitizeString("line1\nline2"); got != "line1\nline2" {
		t.Errorf("newlines must survive, got %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("unexpected: %q", got)
	}
	if got := TruncateString("a long string here", 10); got != "a long ..." {
		t.Errorf("unexpected: %q", got)
	}
	if got := TruncateString("abcdef", 2); got != "ab" {
		t.Errorf("unexpected: %q", got)
	}
}
