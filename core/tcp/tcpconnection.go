package tcp

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/corewire/reactor/core/loop"
	"github.com/corewire/reactor/logging"
)

// State is the TcpConnection state machine of spec §3/§4.6.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type (
	ConnectionCallback     func(c *Connection)
	MessageCallback        func(c *Connection, in *Buffer, receiveTime time.Time)
	WriteCompleteCallback  func(c *Connection)
	HighWaterCallback      func(c *Connection, outstanding int)
	internalCloseCallback  func(c *Connection)
)

// Connection owns the connected socket and its Channel, driving
// read-into-Buffer, queued-write-from-Buffer, graceful-shutdown ordering,
// idle-timeout refresh and user callbacks (spec §2 item 8, §4.6).
// Grounded on the shape of the teacher's core/engine.go Connection struct,
// generalized to the full state machine the teacher does not implement.
type Connection struct {
	ioLoop *loop.EventLoop
	fd     int
	ch     *loop.Channel
	tie    *loop.Tie

	state State

	in  *Buffer
	out *Buffer

	highWaterMark int

	localAddr string
	peerAddr  string

	connectionCB    ConnectionCallback
	messageCB       MessageCallback
	writeCompleteCB WriteCompleteCallback
	highWaterCB     HighWaterCallback
	closeCB         internalCloseCallback // registered by TcpServer

	idleTimeout  time.Duration
	idleTimer    loop.TimerHandle
	hasIdleTimer bool

	// ID is the per-connection correlation identifier the owning Server
	// assigns at accept time, for tying log lines across a connection's
	// lifetime.
	ID string

	// Context is a free slot for the protocol layer (the incremental
	// HttpParser) to stash its in-progress parse state across reads
	// (spec §3 "a context slot for the parser").
	Context any
}

// NewConnection constructs a Connection bound to l for an already-accepted,
// non-blocking fd. The connection starts in StateConnecting; call
// ConnectEstablished once registered with its owning TcpServer.
func NewConnection(l *loop.EventLoop, fd int, localAddr, peerAddr string, idleTimeout time.Duration) *Connection {
	c := &Connection{
		ioLoop:      l,
		fd:          fd,
		in:          NewBuffer(),
		out:         NewBuffer(),
		localAddr:   localAddr,
		peerAddr:    peerAddr,
		state:       StateConnecting,
		idleTimeout: idleTimeout,
	}
	c.ch = loop.NewChannel(l, fd)
	c.ch.ReadCallback = c.handleRead
	c.ch.WriteCallback = c.handleWrite
	c.ch.CloseCallback = c.handleClose
	c.ch.ErrorCallback = c.handleError
	return c
}

func (c *Connection) Fd() int          { return c.fd }
func (c *Connection) State() State     { return c.state }
func (c *Connection) LocalAddr() string { return c.localAddr }
func (c *Connection) PeerAddr() string  { return c.peerAddr }
func (c *Connection) Loop() *loop.EventLoop { return c.ioLoop }

func (c *Connection) SetConnectionCallback(cb ConnectionCallback)       { c.connectionCB = cb }
func (c *Connection) SetMessageCallback(cb MessageCallback)             { c.messageCB = cb }
func (c *Connection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCB = cb }
func (c *Connection) SetHighWaterCallback(cb HighWaterCallback, mark int) {
	c.highWaterCB = cb
	c.highWaterMark = mark
}
func (c *Connection) setCloseCallback(cb internalCloseCallback) { c.closeCB = cb }

// ConnectEstablished binds the lifetime guard, enables reading, starts the
// idle timer, and fires the upward connection-change callback (spec
// §4.6). Must run on c.ioLoop.
func (c *Connection) ConnectEstablished() {
	c.state = StateConnected
	c.tie = loop.NewTie()
	c.ch.Tie(c.tie)
	c.ch.EnableReading()
	c.resetIdleTimer()
	if c.connectionCB != nil {
		c.connectionCB(c)
	}
}

func (c *Connection) handleRead(receiveTime time.Time) {
	n, res, err := c.in.ReadFrom(c.fd)
	switch res {
	case ioAgain:
		if n > 0 {
			c.resetIdleTimer()
			if c.messageCB != nil {
				c.messageCB(c, c.in, receiveTime)
			}
		}
	case ioEOF:
		c.handleClose()
	case ioError:
		logging.Warnf("tcpconnection", "read error fd=%d: %v", c.fd, err)
		c.handleError()
		c.handleClose()
	}
}

func (c *Connection) handleWrite() {
	if !c.ch.IsWriting() {
		return
	}
	_, res, err := c.out.WriteTo(c.fd)
	if res == ioError {
		logging.Warnf("tcpconnection", "write error fd=%d: %v", c.fd, err)
		c.handleClose()
		return
	}
	if c.out.ReadableBytes() == 0 {
		c.ch.DisableWriting()
		if c.writeCompleteCB != nil {
			c.writeCompleteCB(c)
		}
		if c.state == StateDisconnecting {
			c.shutdownWriteNow()
		}
	}
}

func (c *Connection) handleClose() {
	if c.state == StateDisconnected {
		return
	}
	c.state = StateDisconnected
	c.ch.DisableAll()

	if c.connectionCB != nil {
		c.connectionCB(c)
	}
	c.cancelIdleTimer()

	if c.closeCB != nil {
		c.closeCB(c)
	}
}

func (c *Connection) handleError() {
	logging.Warnf("tcpconnection", "socket error fd=%d", c.fd)
}

// Send queues data for the connection. Off-loop callers are rescheduled
// via RunInLoop (spec §4.6 send path).
func (c *Connection) Send(data []byte) {
	if c.ioLoop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	buf := append([]byte(nil), data...)
	c.ioLoop.RunInLoop(func() { c.sendInLoop(buf) })
}

func (c *Connection) sendInLoop(data []byte) {
	if c.state != StateConnected {
		return
	}

	remaining := data
	faulted := false

	if c.out.ReadableBytes() == 0 && !c.ch.IsWriting() {
		n, err := unix.Write(c.fd, data)
		for err == unix.EINTR {
			n, err = unix.Write(c.fd, data)
		}
		if err != nil {
			if err != unix.EAGAIN {
				if err == unix.EPIPE || err == unix.ECONNRESET {
					faulted = true
				}
				logging.Warnf("tcpconnection", "direct write failed fd=%d: %v", c.fd, err)
			}
			n = 0
		}
		remaining = data[n:]
		if n == len(data) {
			remaining = nil
			if c.writeCompleteCB != nil {
				c.ioLoop.QueueInLoop(func() { c.writeCompleteCB(c) })
			}
		}
	}

	if faulted {
		c.handleClose()
		return
	}

	if len(remaining) > 0 {
		before := c.out.ReadableBytes()
		c.out.Append(remaining)
		after := c.out.ReadableBytes()
		if c.highWaterCB != nil && before < c.highWaterMark && after >= c.highWaterMark {
			c.highWaterCB(c, after)
		}
		if !c.ch.IsWriting() {
			c.ch.EnableWriting()
		}
	}

	c.resetIdleTimer()
}

// Shutdown asynchronously half-closes the connection's write side once the
// output Buffer has drained (spec §4.6). Never blocks the caller.
func (c *Connection) Shutdown() {
	c.ioLoop.RunInLoop(func() {
		if c.state == StateConnected {
			c.state = StateDisconnecting
			c.shutdownWriteIfFlushed()
		}
	})
}

func (c *Connection) shutdownWriteIfFlushed() {
	if !c.ch.IsWriting() {
		c.shutdownWriteNow()
	}
}

func (c *Connection) shutdownWriteNow() {
	if err := unix.Shutdown(c.fd, unix.SHUT_WR); err != nil {
		logging.Warnf("tcpconnection", "shutdown(SHUT_WR) fd=%d: %v", c.fd, err)
	}
}

// ForceClose schedules the close path unconditionally (spec §4.6).
func (c *Connection) ForceClose() {
	c.ioLoop.RunInLoop(func() {
		if c.state != StateDisconnected {
			c.handleClose()
		}
	})
}

func (c *Connection) resetIdleTimer() {
	if c.idleTimeout <= 0 {
		return
	}
	c.cancelIdleTimer()
	c.idleTimer = c.ioLoop.Timers().AddTimer(func() {
		logging.Infof("tcpconnection", "idle timeout fd=%d peer=%s", c.fd, c.peerAddr)
		c.ForceClose()
	}, time.Now().Add(c.idleTimeout), 0)
	c.hasIdleTimer = true
}

func (c *Connection) cancelIdleTimer() {
	if c.hasIdleTimer {
		c.ioLoop.Timers().Cancel(c.idleTimer)
		c.hasIdleTimer = false
	}
}

// ConnectDestroyed is the final destruction step, invoked by the IO loop
// after the TcpServer has removed its strong reference from the
// connection map (spec §4.6). Invalidates the lifetime tie so any event
// already queued for this channel at the moment of removal is dropped.
func (c *Connection) ConnectDestroyed() {
	if c.state == StateConnected {
		c.state = StateDisconnected
		c.ch.DisableAll()
	}
	c.ch.Remove()
	if c.tie != nil {
		c.tie.Invalidate()
	}
	unix.Close(c.fd)
}
