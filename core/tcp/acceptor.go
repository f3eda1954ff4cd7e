package tcp

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/corewire/reactor/core/loop"
	"github.com/corewire/reactor/logging"
)

// NewConnectionCallback receives a freshly accepted fd and its peer
// address; the caller takes ownership of fd.
type NewConnectionCallback func(fd int, peer unix.Sockaddr)

// Acceptor owns a listening socket and its Channel, producing
// (new_fd, peer_addr) callbacks (spec §2 item 5). Grounded on the
// teacher's core/engine.go acceptConnections, generalized with the
// reserved-idle-fd EMFILE recovery of spec §4.9, which the teacher does
// not implement.
type Acceptor struct {
	l          *loop.EventLoop
	listenFd   int
	ch         *loop.Channel
	idleFd     int
	reusePort  bool
	NewConnCB  NewConnectionCallback
	listening  bool
}

// NewAcceptor binds and listens on addr (host:port). The listening socket
// is registered level-triggered (spec §4.9): accept storms are bounded by
// the kernel backlog and LT simplifies EMFILE recovery.
func NewAcceptor(l *loop.EventLoop, addr string, reusePort bool) (*Acceptor, error) {
	sa, family, err := resolveListenAddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("tcp: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if reusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp: bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp: listen: %w", err)
	}

	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	a := &Acceptor{l: l, listenFd: fd, idleFd: idleFd, reusePort: reusePort}
	a.ch = loop.NewChannel(l, fd)
	a.ch.SetLevelTriggered()
	a.ch.ReadCallback = func(_ time.Time) { a.handleRead() }
	return a, nil
}

// Listen enables readiness notification on the listening socket. Split
// from NewAcceptor so TcpServer can finish wiring NewConnCB first.
func (a *Acceptor) Listen() {
	a.listening = true
	a.ch.EnableReading()
}

func (a *Acceptor) handleRead() {
	for {
		fd, sa, err := unix.Accept(a.listenFd)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EMFILE, unix.ENFILE:
				a.recoverFromEMFILE()
				return
			default:
				logging.Warnf("acceptor", "accept failed: %v", err)
				return
			}
		}
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			continue
		}
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

		if a.NewConnCB != nil {
			a.NewConnCB(fd, sa)
		} else {
			unix.Close(fd)
		}
	}
}

// recoverFromEMFILE implements the reserved-idle-fd trick of spec §4.9:
// close the idle fd to free one descriptor, accept and immediately close
// the surplus connection to drain the backlog entry, then reopen the idle
// fd so the next exhaustion can be handled the same way.
func (a *Acceptor) recoverFromEMFILE() {
	unix.Close(a.idleFd)
	fd, _, err := unix.Accept(a.listenFd)
	if err == nil {
		unix.Close(fd)
	}
	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		logging.Errorf("acceptor", "failed to reopen idle fd after EMFILE: %v", err)
		return
	}
	a.idleFd = idleFd
}

// Close shuts down the listening socket and the reserved idle fd.
func (a *Acceptor) Close() {
	a.ch.Remove()
	unix.Close(a.listenFd)
	unix.Close(a.idleFd)
}
