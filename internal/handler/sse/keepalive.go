package sse

import (
	"log/slog"
	"sync"
	"time"
)

// KeepAliveWriter writes a keep-alive message (SSE comment).
// Returns an error once the connection is gone.
type KeepAliveWriter interface {
	WriteKeepAlive() error
}

// TickerKeepAlive sends keep-alive pings at a fixed interval until stopped
// or until a write fails
type TickerKeepAlive struct {
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewTickerKeepAlive creates a ticker-based keep-alive
func NewTickerKeepAlive(interval time.Duration) *TickerKeepAlive {
	return &TickerKeepAlive{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins sending pings. The returned channel closes when the
// keep-alive goroutine exits, either on Stop or on a failed write.
func (k *TickerKeepAlive) Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{} {
	ticker := time.NewTicker(k.interval)
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					logger.Debug("keep-alive write failed, stopping", "error", err)
					return
				}
			case <-k.done:
				return
			}
		}
	}()

	return stopped
}

// Stop terminates the keep-alive. Safe to call multiple times.
func (k *TickerKeepAlive) Stop() {
	k.stopOnce.Do(func() { close(k.done) })
}
