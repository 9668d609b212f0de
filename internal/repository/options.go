package repository

import "time"

// DefaultLikeWindow is the trailing window used for like rate limiting.
const DefaultLikeWindow = 24 * time.Hour

// Option tweaks repository behaviour, mostly for tests.
type Option func(*options)

type options struct {
	now    func() time.Time
	window time.Duration
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, window: DefaultLikeWindow}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now as the source of created_at and "now".
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithWindow sets the trailing window used by MatchRepository.CountToday.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// utcNow is truncated to milliseconds so stored timestamps round-trip through
// pagination cursors on every driver.
func (o options) utcNow() time.Time {
	return o.now().UTC().Truncate(time.Millisecond)
}
