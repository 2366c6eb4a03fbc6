package payments

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	valid := map[string]string{
		"0712345678":      "254712345678",
		"712345678":       "254712345678",
		"+254712345678":   "254712345678",
		"254712345678":    "254712345678",
		"0112 345 678":    "254112345678",
		"+254-712-345678": "254712345678",
	}
	for in, want := range valid {
		got, err := NormalizePhone(in)
		if err != nil {
			t.Errorf("NormalizePhone(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "12345", "0812345678", "25471234567", "07123456789", "abcdefghij"} {
		if _, err := NormalizePhone(in); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("NormalizePhone(%q) err = %v, want ErrInvalidPhone", in, err)
		}
	}
}

func TestNewReference(t *testing.T) {
	a := NewReference("RENT", 42)
	b := NewReference("RENT", 42)

	if !strings.HasPrefix(a, "RENT-42-") || len(a) != len("RENT-42-")+8 {
		t.Errorf("unexpected reference %q", a)
	}
	if strings.ToUpper(a) != a {
		t.Errorf("reference should be upper case: %q", a)
	}
	if a == b {
		t.Error("references should differ")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := map[string]State{
		"COMPLETED": StateCompleted,
		"Completed": StateCompleted,
		"success":   StateCompleted,
		"FAILED":    StateFailed,
		"INVALID":   StatePending,
		"REVERSED":  StatePending,
		"Cancelled": StateCancelled,
		"PENDING":   StatePending,
		"":          StatePending,
		"whatever":  StatePending,
	}
	for in, want := range tests {
		if got := ClassifyStatus(in); got != want {
			t.Errorf("ClassifyStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
