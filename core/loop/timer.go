package loop

import "time"

// Timer is one pending or repeating expiration, per spec §3. sequence is a
// monotonically increasing number issued at creation; Cancel matches a
// handle by (pointer, sequence). The time-ordered heap orders by
// expiration only and does not use sequence.
type timer struct {
	expiration time.Time
	interval   time.Duration // zero means one-shot
	callback   func()
	sequence   uint64
	heapIndex  int
}

func (t *timer) repeats() bool { return t.interval > 0 }

func (t *timer) restart(now time.Time) {
	t.expiration = now.Add(t.interval)
}

// TimerHandle is the only thing user code is allowed to hold: a pointer
// and the sequence it was issued with. Dereferencing the pointer is never
// performed by user code, only by TimerQueue internals (spec §3).
type TimerHandle struct {
	t   *timer
	seq uint64
}
