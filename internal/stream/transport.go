package stream

import (
	"context"
	"expvar"
	"time"
)

var (
	metricStreamConnectsTotal     = expvar.NewInt("stream_connects_total")
	metricStreamReconnectsTotal   = expvar.NewInt("stream_reconnects_total")
	metricStreamEventsTotal       = expvar.NewInt("stream_events_total")
	metricStreamDecodeErrorsTotal = expvar.NewInt("stream_decode_errors_total")
)

// Handlers are the delivery callbacks for one subscription. OnEvent
// receives decoded events in network arrival order, which is not
// guaranteed to be sequence order; reordering is the sequencer's job.
// OnComplete fires exactly once, on deliberate closure.
type Handlers struct {
	OnEvent    func(Event)
	OnError    func(error)
	OnComplete func()
}

// Subscription is a live one-way feed. Close tears the connection down
// and cancels any pending reconnect timer synchronously.
type Subscription interface {
	Close()
}

// Transport opens subscriptions against a stream URL. Implementations
// own their reconnect policy; callers only see the callback interface.
// HTTP streaming and a native socket both satisfy this.
type Transport interface {
	Subscribe(ctx context.Context, streamURL string, h Handlers) (Subscription, error)
}

// Backoff is the reconnect delay policy: base doubled per consecutive
// failed attempt, capped.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns min(Base * 2^attempt, Max).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
