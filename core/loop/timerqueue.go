package loop

import (
	"container/heap"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/corewire/reactor/logging"
)

// minRearmDelta is the minimum delta used to arm the timer fd, avoiding
// the pathological immediate-refire loop spec §4.4 warns about.
const minRearmDelta = 100 * time.Microsecond

// TimerQueue owns one kernel timerfd and a time-ordered set of pending
// timers (spec §2 item 4, §4.4). All methods other than AddTimer/Cancel
// assume they run on the owning EventLoop's thread; AddTimer/Cancel
// trampoline through RunInLoop when called from elsewhere.
type TimerQueue struct {
	loop *EventLoop
	fd   int
	ch   *Channel

	pending timerHeap // time-ordered, by expiration
	byTimer map[*timer]struct{}
	nextSeq uint64

	inDispatch         bool
	canceledInDispatch map[*timer]uint64
}

func newTimerQueue(l *EventLoop) (*TimerQueue, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	tq := &TimerQueue{
		loop:               l,
		fd:                 fd,
		byTimer:            make(map[*timer]struct{}),
		canceledInDispatch: make(map[*timer]uint64),
	}
	tq.ch = NewChannel(l, fd)
	tq.ch.ReadCallback = func(time.Time) { tq.handleExpiration() }
	tq.ch.EnableReading()
	return tq, nil
}

func (tq *TimerQueue) close() error {
	return unix.Close(tq.fd)
}

// AddTimer constructs a Timer with a fresh sequence, inserts it into both
// sets, and re-arms the fd if when becomes the new earliest (spec §4.4).
func (tq *TimerQueue) AddTimer(cb func(), when time.Time, interval time.Duration) TimerHandle {
	t := &timer{
		expiration: when,
		interval:   interval,
		callback:   cb,
		sequence:   atomic.AddUint64(&tq.nextSeq, 1),
	}
	handle := TimerHandle{t: t, seq: t.sequence}

	tq.loop.RunInLoop(func() {
		tq.insert(t)
	})
	return handle
}

func (tq *TimerQueue) insert(t *timer) {
	wasEarliest := tq.pending.Len() == 0 || t.expiration.Before(tq.pending[0].expiration)
	heap.Push(&tq.pending, t)
	tq.byTimer[t] = struct{}{}
	if wasEarliest {
		tq.rearm(t.expiration)
	}
}

// Cancel locates the timer by (pointer, sequence). If found, it is removed
// from both sets and discarded. If not found but a dispatch pass is
// currently running, it is recorded so the restart phase will not
// reinstate it (spec §4.4) — this is what lets a repeating timer cancel
// itself, or a sibling, from inside its own callback.
func (tq *TimerQueue) Cancel(h TimerHandle) {
	tq.loop.RunInLoop(func() {
		if _, ok := tq.byTimer[h.t]; ok && h.t.sequence == h.seq {
			tq.remove(h.t)
			return
		}
		if tq.inDispatch {
			tq.canceledInDispatch[h.t] = h.seq
		}
	})
}

func (tq *TimerQueue) remove(t *timer) {
	if t.heapIndex >= 0 && t.heapIndex < tq.pending.Len() && tq.pending[t.heapIndex] == t {
		heap.Remove(&tq.pending, t.heapIndex)
	}
	delete(tq.byTimer, t)
}

// handleExpiration implements the seven-step dispatch procedure of
// spec §4.4.
func (tq *TimerQueue) handleExpiration() {
	tq.drainFd()

	now := time.Now()
	expired := tq.popExpired(now)
	if len(expired) == 0 {
		tq.rearmEarliest()
		return
	}

	tq.inDispatch = true
	for k := range tq.canceledInDispatch {
		delete(tq.canceledInDispatch, k)
	}

	for _, t := range expired {
		t.callback()
	}

	tq.inDispatch = false

	for _, t := range expired {
		_, canceled := tq.canceledInDispatch[t]
		if t.repeats() && !canceled {
			t.restart(now)
			heap.Push(&tq.pending, t)
			tq.byTimer[t] = struct{}{}
		} else {
			delete(tq.byTimer, t)
		}
	}

	tq.rearmEarliest()
}

func (tq *TimerQueue) drainFd() {
	var buf [8]byte
	_, err := unix.Read(tq.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		logging.Warnf("timerqueue", "drain read failed: %v", err)
	}
}

// popExpired removes and returns all entries with expiration <= now, in
// ascending-expiration order.
func (tq *TimerQueue) popExpired(now time.Time) []*timer {
	var expired []*timer
	for tq.pending.Len() > 0 && !tq.pending[0].expiration.After(now) {
		t := heap.Pop(&tq.pending).(*timer)
		delete(tq.byTimer, t)
		expired = append(expired, t)
	}
	return expired
}

func (tq *TimerQueue) rearmEarliest() {
	if tq.pending.Len() > 0 {
		tq.rearm(tq.pending[0].expiration)
	}
}

func (tq *TimerQueue) rearm(when time.Time) {
	d := time.Until(when)
	if d < minRearmDelta {
		d = minRearmDelta
	}
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(d.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(tq.fd, 0, &spec, nil); err != nil {
		logging.Errorf("timerqueue", "timerfd_settime failed: %v", err)
		panic(err)
	}
}
