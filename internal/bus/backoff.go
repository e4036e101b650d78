package bus

import "time"

// backoff produces capped exponential retry delays. Delays start at the
// floor, double on every call to next, never exceed the limit, and
// never decrease until reset drops the schedule back to the floor.
type backoff struct {
	floor time.Duration
	limit time.Duration
	cur   time.Duration
}

func newBackoff(floor, limit time.Duration) *backoff {
	return &backoff{floor: floor, limit: limit, cur: floor}
}

// next returns the current delay and advances the schedule.
func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.limit {
		b.cur = b.limit
	}
	return d
}

// reset drops the schedule back to the floor.
func (b *backoff) reset() {
	b.cur = b.floor
}
