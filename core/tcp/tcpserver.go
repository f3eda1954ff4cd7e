package tcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/corewire/reactor/core/loop"
	"github.com/corewire/reactor/logging"
)

// Server binds one Acceptor on a base loop to a ThreadPool of IO loops,
// round-robin assigning each accepted connection to a loop (spec §2 item
// 9, §5). Grounded on the teacher's core/engine.go Engine struct, split so
// the accept path and the IO-loop pool are independently testable.
type Server struct {
	baseLoop *loop.EventLoop
	acceptor *Acceptor
	pool     *loop.ThreadPool

	idleTimeout time.Duration

	mu    sync.Mutex
	conns map[int]*Connection

	connectionCB    ConnectionCallback
	messageCB       MessageCallback
	writeCompleteCB WriteCompleteCallback
}

// NewServer constructs a Server listening on addr, with numIOThreads
// dedicated IO loops (>=1) each hosting its own epoll instance and timer
// queue. The acceptor itself runs on baseLoop.
func NewServer(baseLoop *loop.EventLoop, addr string, numIOThreads int, reusePort bool, idleTimeout time.Duration) (*Server, error) {
	pool, err := loop.NewThreadPool(numIOThreads)
	if err != nil {
		return nil, err
	}

	a, err := NewAcceptor(baseLoop, addr, reusePort)
	if err != nil {
		pool.Stop()
		return nil, err
	}

	s := &Server{
		baseLoop:    baseLoop,
		acceptor:    a,
		pool:        pool,
		idleTimeout: idleTimeout,
		conns:       make(map[int]*Connection),
	}
	a.NewConnCB = s.newConnection
	return s, nil
}

func (s *Server) SetConnectionCallback(cb ConnectionCallback)       { s.connectionCB = cb }
func (s *Server) SetMessageCallback(cb MessageCallback)             { s.messageCB = cb }
func (s *Server) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.writeCompleteCB = cb }

// Start enables accept readiness. Call after every callback has been
// registered.
func (s *Server) Start() {
	s.acceptor.Listen()
	logging.Infof("tcpserver", "listening")
}

// newConnection runs on the base loop (the Acceptor's own thread) and
// hands the fd off to the next IO loop in round-robin order (spec §5): the
// Connection object itself is constructed and driven entirely on that
// target loop.
func (s *Server) newConnection(fd int, peer unix.Sockaddr) {
	ioLoop := s.pool.NextLoop()
	peerAddr := PeerAddrString(peer)
	local, err := unix.Getsockname(fd)
	localAddr := "unknown"
	if err == nil {
		localAddr = PeerAddrString(local)
	}

	connID := uuid.NewString()
	logging.Infof("tcpserver", "accepted %s fd=%d peer=%s", connID, fd, peerAddr)

	ioLoop.RunInLoop(func() {
		conn := NewConnection(ioLoop, fd, localAddr, peerAddr, s.idleTimeout)
		conn.ID = connID
		conn.SetConnectionCallback(s.connectionCB)
		conn.SetMessageCallback(s.messageCB)
		conn.SetWriteCompleteCallback(s.writeCompleteCB)
		conn.setCloseCallback(s.removeConnection)

		s.mu.Lock()
		s.conns[fd] = conn
		s.mu.Unlock()

		conn.ConnectEstablished()
	})
}

// removeConnection runs on the connection's own IO loop, invoked from its
// handleClose. It drops the server's strong reference first, then defers
// the final ConnectDestroyed teardown via QueueInLoop so it runs after the
// current round of channel dispatch has fully unwound (spec §4.6 — the
// channel that is mid-dispatch must not be removed out from under itself).
func (s *Server) removeConnection(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.Fd())
	s.mu.Unlock()

	c.Loop().QueueInLoop(func() {
		c.ConnectDestroyed()
	})
}

// Connections returns a snapshot slice of every currently tracked
// connection, for diagnostics and graceful-shutdown broadcast.
func (s *Server) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Stop closes the acceptor on the base loop, force-closes every tracked
// connection, and stops the IO thread pool. Safe to call from any
// goroutine.
func (s *Server) Stop() {
	s.baseLoop.RunInLoop(s.acceptor.Close)
	for _, c := range s.Connections() {
		c.ForceClose()
	}
	s.pool.Stop()
}
