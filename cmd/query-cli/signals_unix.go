//go:build !windows

package main

import (
	"context"
	"syscall"

	"github.com/agentuity/go-query/lifecycle"
)

// notifyLifecycle maps SIGUSR1 to background and SIGUSR2 to foreground.
func notifyLifecycle(ctx context.Context, b *lifecycle.Broadcaster) {
	lifecycle.NotifyOnSignals(ctx, b, syscall.SIGUSR1, syscall.SIGUSR2)
}
