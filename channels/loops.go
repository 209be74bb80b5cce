package channels

import (
	"context"
	"time"
)

// StartChannelLoops runs the lifecycle sweep every interval until ctx is done.
// The returned channel is closed once the loop has exited.
func StartChannelLoops(ctx context.Context, m *Manager, interval time.Duration) <-chan struct{} {
	m.log.Infow("Starting channel loops", "interval", interval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweepLoop(ctx, m, interval)
	}()
	return done
}

func sweepLoop(ctx context.Context, m *Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.log.Debug("Running lifecycle sweep")
			m.Sweep(ctx)
		}
	}
}
