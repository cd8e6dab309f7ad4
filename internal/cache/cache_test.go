package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ragline/ragline/internal/log"
)

// Paths below never touch the network, so a zero-value client suffices.

func TestSetNonPositiveTTLIsNoop(t *testing.T) {
	c := &Cache{logger: log.NewNop()}
	if err := c.Set(context.Background(), "k", "v", 0); err != nil {
		t.Errorf("ttl=0 should skip caching, got %v", err)
	}
	if err := c.Set(context.Background(), "k", "v", -time.Second); err != nil {
		t.Errorf("negative ttl should skip caching, got %v", err)
	}
}

func TestSetStructUnmarshalable(t *testing.T) {
	c := &Cache{logger: log.NewNop()}
	if err := c.SetStruct(context.Background(), "k", make(chan int), time.Minute); err == nil {
		t.Error("expected marshal error for unsupported type")
	}
}

func TestDeleteEmptyIsNoop(t *testing.T) {
	c := &Cache{logger: log.NewNop()}
	if err := c.Delete(context.Background()); err != nil {
		t.Errorf("empty delete should be a no-op, got %v", err)
	}
}
