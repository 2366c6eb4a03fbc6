package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestSetThenGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != "v" {
		t.Errorf("got %q, want %q", got, "v")
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	_ = c.Delete(ctx, "k")

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestJSONRoundTripAndMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type session struct {
		Step int    `json:"step"`
		Kind string `json:"kind"`
	}

	if err := c.SetJSON(ctx, "s", session{Step: 3, Kind: "tenant"}, time.Minute); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var got session
	if err := c.GetJSON(ctx, "s", &got); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if got.Step != 3 || got.Kind != "tenant" {
		t.Errorf("got %+v", got)
	}

	if err := c.GetJSON(ctx, "missing", &got); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}
