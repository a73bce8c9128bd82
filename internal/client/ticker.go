package client

import (
	"context"
	"time"
)

// DefaultTick is how often the renderer is handed a fresh snapshot.
const DefaultTick = 50 * time.Millisecond

// RunTicker calls render with a snapshot of m every interval until ctx is
// done. render runs on the ticker goroutine and must not block for long.
func RunTicker(ctx context.Context, m *Mirror, interval time.Duration, render func(Snapshot)) {
	if interval <= 0 {
		interval = DefaultTick
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			render(m.Snapshot())
		}
	}
}
