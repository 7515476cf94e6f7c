package lifecycle

import (
	"context"
	"os"
	"os/signal"
)

// NotifyOnSignals drives b from process signals until ctx is done: receiving
// background moves the application to the background, receiving foreground
// brings it back. A typical mapping for daemons is SIGUSR1/SIGUSR2.
func NotifyOnSignals(ctx context.Context, b *Broadcaster, background, foreground os.Signal) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, background, foreground)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				b.SetBackground(sig == background)
			}
		}
	}()
}
