package onboarding

import (
	"strings"
	"testing"
)

func TestCodeGeneratorRoundTrip(t *testing.T) {
	g, err := NewCodeGenerator("test-salt")
	if err != nil {
		t.Fatal(err)
	}

	code, err := g.Code(42)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) < 6 || strings.ToUpper(code) != code {
		t.Errorf("code %q should be at least 6 upper-case characters", code)
	}

	id, err := g.UserID(code)
	if err != nil || id != 42 {
		t.Fatalf("UserID(%q) = %d, %v", code, id, err)
	}

	other, err := g.Code(43)
	if err != nil || other == code {
		t.Fatalf("code for 43 %q should differ from %q (%v)", other, code, err)
	}

	if _, err := g.Code(0); err == nil {
		t.Error("expected error for non-positive id")
	}
}
