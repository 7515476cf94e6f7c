package main

import (
	"context"

	"github.com/agentuity/go-query/lifecycle"
)

// notifyLifecycle is a no-op: there are no user signals on windows.
func notifyLifecycle(context.Context, *lifecycle.Broadcaster) {}
