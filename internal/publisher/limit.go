package publisher

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// limited throttles a publisher and bounds each call with a timeout.
type limited struct {
	next    Publisher
	limiter *rate.Limiter
	timeout time.Duration
}

// Limit wraps p with a token-bucket limiter (ratePerSec <= 0 disables it) and
// a per-call timeout (timeout <= 0 disables it).
func Limit(p Publisher, ratePerSec int, timeout time.Duration) Publisher {
	if p == nil {
		return nil
	}
	l := &limited{next: p, timeout: timeout}
	if ratePerSec > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return l
}

func (l *limited) Platform() string { return l.next.Platform() }

func (l *limited) Publish(ctx context.Context, text string) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit wait: %w", ErrUnavailable, err)
		}
	}
	return l.next.Publish(ctx, text)
}
