package loop

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Event is a bitmask of readiness flags, using the kernel's own epoll bit
// positions so Channel and the demultiplexer never need to translate
// between two encodings.
type Event uint32

const (
	EventRead  Event = unix.EPOLLIN
	EventPri   Event = unix.EPOLLPRI
	EventWrite Event = unix.EPOLLOUT
	EventErr   Event = unix.EPOLLERR
	EventHup   Event = unix.EPOLLHUP
	EventRDHup Event = unix.EPOLLRDHUP
)

// registrationTag is the three-state tag from spec §4.1.
type registrationTag int

const (
	tagNew registrationTag = iota
	tagAdded
	tagDeleted
)

// Tie is the liveness guard a Channel consults before running its
// callbacks. An owner (e.g. TcpConnection) ties itself in when it is
// established and invalidates the tie exactly once, from connectDestroyed, so that an
// event already queued for dispatch at the moment of logical destruction
// is dropped instead of re-entering a torn-down owner (spec §4.2, §4.6).
type Tie struct {
	alive atomic.Bool
}

// NewTie returns a Tie in the alive state.
func NewTie() *Tie {
	t := &Tie{}
	t.alive.Store(true)
	return t
}

// Invalidate marks the tie dead. Idempotent.
func (t *Tie) Invalidate() { t.alive.Store(false) }

// Alive reports whether the tie has not yet been invalidated.
func (t *Tie) Alive() bool { return t.alive.Load() }

// Channel binds one fd to one EventLoop. It never opens, closes, or reads
// from the fd; that is the owning object's job (spec §3, §4.2).
type Channel struct {
	ownerLoop *EventLoop
	fd        int

	interest Event
	ready    Event
	tag      registrationTag

	// levelTriggered opts a channel out of the edge-triggered default of
	// spec §4.9. Only the Acceptor's listening-socket channel sets this.
	levelTriggered bool

	tie *Tie

	ReadCallback  func(receiveTime time.Time)
	WriteCallback func()
	CloseCallback func()
	ErrorCallback func()

	eventHandling bool
}

// NewChannel creates a Channel for fd on l. The caller registers callbacks
// and calls EnableReading/EnableWriting as needed; the channel starts with
// an empty interest set and tag kNew.
func NewChannel(l *EventLoop, fd int) *Channel {
	return &Channel{ownerLoop: l, fd: fd, tag: tagNew}
}

// Fd returns the borrowed file descriptor.
func (c *Channel) Fd() int { return c.fd }

// Interest returns the currently registered interest mask.
func (c *Channel) Interest() Event { return c.interest }

// SetReady is called by the demultiplexer after Wait to stash the mask the
// kernel reported for this fd.
func (c *Channel) SetReady(ev Event) { c.ready = ev }

func (c *Channel) registrationTag() registrationTag { return c.tag }
func (c *Channel) setRegistrationTag(t registrationTag) { c.tag = t }

// Tie binds t as this channel's liveness guard.
func (c *Channel) Tie(t *Tie) { c.tie = t }

// SetLevelTriggered opts this channel out of the edge-triggered default
// (spec §4.9): only the listening socket calls this, since accept storms
// are bounded by the kernel backlog and LT simplifies EMFILE recovery.
// Every other channel stays edge-triggered.
func (c *Channel) SetLevelTriggered() { c.levelTriggered = true }

// IsLevelTriggered reports whether this channel opted out of ET.
func (c *Channel) IsLevelTriggered() bool { return c.levelTriggered }

// EnableReading, EnableWriting, DisableReading, DisableWriting and
// DisableAll mutate the interest mask and push the change to the owning
// loop's demultiplexer via updateChannel. EnableReading also arms
// EPOLLRDHUP so a peer's half-close is visible under edge-triggered
// delivery without waiting on a subsequent read to observe EOF.
func (c *Channel) EnableReading() {
	c.interest |= EventRead | EventPri | EventRDHup
	c.update()
}

func (c *Channel) DisableReading() {
	c.interest &^= EventRead | EventPri | EventRDHup
	c.update()
}

func (c *Channel) EnableWriting() {
	c.interest |= EventWrite
	c.update()
}

func (c *Channel) DisableWriting() {
	c.interest &^= EventWrite
	c.update()
}

func (c *Channel) DisableAll() {
	c.interest = 0
	c.update()
}

// IsWriting reports whether the channel is currently registered for write
// readiness, the question TcpConnection's send path must answer (spec
// §4.6 fast path).
func (c *Channel) IsWriting() bool { return c.interest&EventWrite != 0 }

func (c *Channel) update() { c.ownerLoop.updateChannel(c) }

// Remove detaches the channel from its loop's demultiplexer entirely.
func (c *Channel) Remove() { c.ownerLoop.removeChannel(c) }

// dispatchEvent is the single entry point the EventLoop uses to deliver a
// ready mask to this channel (spec §4.2).
func (c *Channel) dispatchEvent(receiveTime time.Time) {
	if c.tie != nil && !c.tie.Alive() {
		return
	}
	c.eventHandling = true
	defer func() { c.eventHandling = false }()

	ev := c.ready
	if ev&EventHup != 0 && ev&EventRead == 0 {
		if c.CloseCallback != nil {
			c.CloseCallback()
		}
		return
	}
	if ev&EventErr != 0 && c.ErrorCallback != nil {
		c.ErrorCallback()
	}
	if ev&(EventRead|EventPri|EventRDHup) != 0 && c.ReadCallback != nil {
		c.ReadCallback(receiveTime)
	}
	if ev&EventWrite != 0 && c.WriteCallback != nil {
		c.WriteCallback()
	}
}
