package app

import (
	"context"
	"testing"

	"github.com/ragline/ragline/internal/log"
)

func TestClosePartiallyInitialized(t *testing.T) {
	// Setup cleans up via Close on failure, so Close must tolerate a
	// container where nothing was connected yet.
	a := &App{Logger: log.NewNop()}
	a.Close(context.Background())
}
