package params

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		limit      int
		page       int
		wantOffset int
	}{
		{"", DefaultLimit, 1, 0},
		{"limit=30&page=2", 30, 2, 30},
		{"limit=1000", MaxLimit, 1, 0},
		{"limit=-5&page=0", DefaultLimit, 1, 0},
		{"limit=abc&page=xyz", DefaultLimit, 1, 0},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		p := ParsePagination(q)
		if p.Limit != tt.limit || p.Page != tt.page || p.Offset != tt.wantOffset {
			t.Errorf("%q: got %+v", tt.query, p)
		}
	}
}

func TestComputeMeta(t *testing.T) {
	p := Pagination{Limit: 10, Page: 2}
	p.ComputeMeta(25)
	if p.TotalPages != 3 || !p.HasNext || !p.HasPrev {
		t.Fatalf("got %+v", p)
	}
	p = Pagination{Limit: 10, Page: 3}
	p.ComputeMeta(25)
	if p.HasNext {
		t.Fatal("last page should not have next")
	}
}

func TestParseSince(t *testing.T) {
	since, err := ParseSince(url.Values{"since": {"2025-03-01"}})
	if err != nil || !since.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("since = %v, %v", since, err)
	}
	if s, err := ParseSince(url.Values{}); err != nil || !s.IsZero() {
		t.Fatalf("empty since = %v, %v", s, err)
	}
	if _, err := ParseSince(url.Values{"since": {"01/03/2025"}}); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("err = %v", err)
	}
}
