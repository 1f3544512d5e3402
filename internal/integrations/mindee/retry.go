package mindee

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// clock abstracts time so throttle and backoff can be tested without sleeping.
type clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// throttle enforces a minimum interval between outbound requests. It is
// shared by every caller of one Client, so concurrent conversations queue
// behind the same mutex.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	clock    clock
}

func (t *throttle) wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() {
		if elapsed := t.clock.Now().Sub(t.last); elapsed < t.interval {
			if err := t.clock.Sleep(ctx, t.interval-elapsed); err != nil {
				return err
			}
		}
	}
	t.last = t.clock.Now()
	return nil
}

// backoff returns min(base * 2^attempt, ceiling) for a zero-indexed attempt.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}
	return d
}

// retryAfter reads a Retry-After header in either delta-seconds or HTTP-date
// form and falls back when it is missing or unusable. The result never
// exceeds ceiling.
func retryAfter(h http.Header, now time.Time, fallback, ceiling time.Duration) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	switch {
	case err == nil && secs < 0:
		return fallback
	case err == nil && secs >= int64(ceiling/time.Second):
		return ceiling
	case err == nil:
		return time.Duration(secs) * time.Second
	case errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(v, "-"):
		return ceiling
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		switch {
		case d <= 0:
			return 0
		case d > ceiling:
			return ceiling
		}
		return d
	}
	return fallback
}
