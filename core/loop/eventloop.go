package loop

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/corewire/reactor/logging"
)

// EventLoop is a one-thread scheduler owning one demultiplexer, one wakeup
// fd, and one TimerQueue (spec §2 item 3, §4.3). It enforces "one loop per
// OS thread": Loop must be called from, and every loop-mutating call must
// happen on, the goroutine that becomes its owning thread.
type EventLoop struct {
	demux     *demultiplexer
	timers    *TimerQueue
	wakeupFd  int
	wakeupCh  *Channel

	threadID atomic.Int32 // OS tid owning this loop; 0 means "not yet started"

	mu       sync.Mutex
	pending  []func()
	quitting atomic.Bool

	callingPendingFns bool
	eventHandling     bool
}

// NewEventLoop constructs an EventLoop. It does not start running until
// Loop is called; construction may happen on any goroutine, but Loop must
// run on the goroutine that will own the loop for its whole lifetime.
func NewEventLoop() (*EventLoop, error) {
	d, err := newDemultiplexer()
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		d.close()
		return nil, err
	}

	l := &EventLoop{demux: d, wakeupFd: wfd}
	l.timers, err = newTimerQueue(l)
	if err != nil {
		unix.Close(wfd)
		d.close()
		return nil, err
	}

	l.wakeupCh = NewChannel(l, wfd)
	l.wakeupCh.ReadCallback = l.handleWakeup
	l.wakeupCh.EnableReading()
	return l, nil
}

// assertInLoopThread panics (programming error, spec §7) if called from
// any OS thread other than the one that is running Loop.
func (l *EventLoop) assertInLoopThread() {
	if tid := l.threadID.Load(); tid != 0 && tid != int32(unix.Gettid()) {
		panic("loop: cross-thread access without runInLoop/queueInLoop")
	}
}

// IsInLoopThread reports whether the calling OS thread is this loop's
// owning thread. Loop locks its goroutine to its OS thread for the
// duration of the run so this identity is stable (spec §4.3 "one loop per
// OS thread").
func (l *EventLoop) IsInLoopThread() bool {
	return l.threadID.Load() == int32(unix.Gettid())
}

// Loop repeats: wait on the demultiplexer, dispatch every returned
// channel's event, then drain the deferred-closure queue (spec §4.3). It
// blocks until Quit is called. Loop must be invoked on the goroutine that
// will own this loop for its entire lifetime; it pins that goroutine to
// its current OS thread so the ownership check in assertInLoopThread
// stays valid even across Go's M:N scheduler.
func (l *EventLoop) Loop() {
	runtime.LockOSThread()
	l.threadID.Store(int32(unix.Gettid()))
	logging.Infof("loop", "EventLoop starting")

	for !l.quitting.Load() {
		active, now, err := l.demux.wait(10000)
		if err != nil {
			logging.Errorf("loop", "demultiplexer wait failed: %v", err)
			panic(err)
		}
		l.eventHandling = true
		for _, ch := range active {
			l.handleChannelEvent(ch, now)
		}
		l.eventHandling = false
		l.doPendingFunctors()
	}

	logging.Infof("loop", "EventLoop stopping")
}

func (l *EventLoop) handleChannelEvent(ch *Channel, now time.Time) {
	ch.dispatchEvent(now)
}

// RunInLoop executes fn immediately if called on this loop's own thread;
// otherwise it behaves exactly like QueueInLoop (spec §4.3).
func (l *EventLoop) RunInLoop(fn func()) {
	if l.IsInLoopThread() {
		fn()
		return
	}
	l.QueueInLoop(fn)
}

// QueueInLoop appends fn to the deferred queue under a short-held mutex
// and wakes the loop up if needed (spec §4.3): either the caller is on a
// different thread, or the loop is currently draining deferred closures
// and a freshly enqueued one must not wait for the next I/O event.
func (l *EventLoop) QueueInLoop(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	needsWake := !l.IsInLoopThread() || l.callingPendingFns
	l.mu.Unlock()

	if needsWake {
		l.wakeup()
	}
}

func (l *EventLoop) doPendingFunctors() {
	l.mu.Lock()
	fns := l.pending
	l.pending = nil
	l.callingPendingFns = true
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}

	l.mu.Lock()
	l.callingPendingFns = false
	l.mu.Unlock()
}

// Quit sets the quitting flag and, if called from another thread, pokes
// the wakeup fd so the loop observes it promptly (spec §4.3).
func (l *EventLoop) Quit() {
	l.quitting.Store(true)
	if !l.IsInLoopThread() {
		l.wakeup()
	}
}

func (l *EventLoop) wakeup() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(l.wakeupFd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			logging.Errorf("loop", "wakeup write failed: %v", err)
		}
		return
	}
}

func (l *EventLoop) handleWakeup(time.Time) {
	var buf [8]byte
	_, err := unix.Read(l.wakeupFd, buf[:])
	if err != nil && err != unix.EAGAIN {
		logging.Warnf("loop", "wakeup read failed: %v", err)
	}
}

func (l *EventLoop) updateChannel(c *Channel) {
	l.assertInLoopThread()
	l.demux.update(c)
}

func (l *EventLoop) removeChannel(c *Channel) {
	l.assertInLoopThread()
	l.demux.remove(c)
}

// Timers exposes this loop's TimerQueue for AddTimer/Cancel.
func (l *EventLoop) Timers() *TimerQueue { return l.timers }

// Close tears down the wakeup fd, timer fd, and demultiplexer. Call only
// after Loop has returned.
func (l *EventLoop) Close() error {
	l.timers.close()
	unix.Close(l.wakeupFd)
	return l.demux.close()
}
