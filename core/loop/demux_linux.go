//go:build linux

package loop

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/corewire/reactor/logging"
)

// demultiplexer wraps an epoll instance, grounded on the
// searchktools-fast-server poller.EpollPoller shape but generalized from
// "fd -> nothing" to "fd -> *Channel" per spec §4.1, and edge-triggered
// instead of level-triggered for every channel except the listening
// socket (spec §4.9; the Acceptor opts its channel out through
// Channel.SetLevelTriggered, and ctl then leaves EPOLLET unset, see
// core/tcp/acceptor.go).
type demultiplexer struct {
	epfd    int
	events  []unix.EpollEvent
	fdToCh  map[int]*Channel
}

const initialEventCapacity = 16

func newDemultiplexer() (*demultiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &demultiplexer{
		epfd:   epfd,
		events: make([]unix.EpollEvent, initialEventCapacity),
		fdToCh: make(map[int]*Channel, 64),
	}, nil
}

func (d *demultiplexer) close() error {
	return unix.Close(d.epfd)
}

// update reconciles the kernel's interest state for channel.fd against the
// three-tag transition table in spec §4.1.
func (d *demultiplexer) update(c *Channel) {
	switch c.registrationTag() {
	case tagNew, tagDeleted:
		fd := c.fd
		d.fdToCh[fd] = c
		if err := d.ctl(unix.EPOLL_CTL_ADD, c); err != nil {
			logging.Errorf("demux", "EPOLL_CTL_ADD fd=%d failed: %v", fd, err)
			panic(err)
		}
		c.setRegistrationTag(tagAdded)
	case tagAdded:
		if c.Interest() == 0 {
			if err := d.ctl(unix.EPOLL_CTL_DEL, c); err != nil {
				logging.Warnf("demux", "EPOLL_CTL_DEL fd=%d failed (tolerated): %v", c.fd, err)
			}
			c.setRegistrationTag(tagDeleted)
		} else {
			if err := d.ctl(unix.EPOLL_CTL_MOD, c); err != nil {
				logging.Errorf("demux", "EPOLL_CTL_MOD fd=%d failed: %v", c.fd, err)
				panic(err)
			}
		}
	}
}

// remove retires a channel. Per spec §4.1, a fd in tagAdded must be
// DEL'd from the kernel first; a DEL failure is logged and tolerated since
// the fd may already have been closed by its owner.
func (d *demultiplexer) remove(c *Channel) {
	delete(d.fdToCh, c.fd)
	if c.registrationTag() == tagAdded {
		if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, c.fd, nil); err != nil {
			logging.Warnf("demux", "EPOLL_CTL_DEL on remove fd=%d failed (tolerated): %v", c.fd, err)
		}
	}
	c.setRegistrationTag(tagNew)
}

func (d *demultiplexer) ctl(op int, c *Channel) error {
	events := uint32(c.Interest())
	if !c.IsLevelTriggered() {
		events |= unix.EPOLLET
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(c.fd)}
	return unix.EpollCtl(d.epfd, op, c.fd, &ev)
}

// wait blocks until at least one registered fd is ready, or timeoutMs
// elapses, and writes the ready masks back into the affected channels
// (spec §4.1). EINTR is retried transparently, never surfaced as an error.
func (d *demultiplexer) wait(timeoutMs int) ([]*Channel, time.Time, error) {
	for {
		n, err := unix.EpollWait(d.epfd, d.events, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, time.Time{}, err
		}
		now := time.Now()
		if n <= 0 {
			return nil, now, nil
		}
		ready := make([]*Channel, 0, n)
		for i := 0; i < n; i++ {
			fd := int(d.events[i].Fd)
			c, ok := d.fdToCh[fd]
			if !ok {
				continue
			}
			c.SetReady(Event(d.events[i].Events))
			ready = append(ready, c)
		}
		if n == len(d.events) {
			// The ready-event buffer filled exactly; it may be truncating
			// a larger ready set, so grow it for the next wait.
			d.events = make([]unix.EpollEvent, len(d.events)*2)
		}
		return ready, now, nil
	}
}
