package http

import (
	"time"

	"github.com/corewire/reactor/core/loop"
	"github.com/corewire/reactor/core/router"
	"github.com/corewire/reactor/core/tcp"
	"github.com/corewire/reactor/logging"
	"github.com/corewire/reactor/workpool"
)

// HandlerFunc is the per-route handler signature (spec §6 "Handler
// interface"). The handler must fully populate ctx.Response before
// returning.
type HandlerFunc func(ctx *Context)

// Server binds a Parser and a Router to a tcp.Server, turning its
// connection and message callbacks into the request/response
// turn described by spec §5's ordering guarantees. Grounded on the
// teacher's core/engine.go Engine, which plays the same binding role
// between its zero-allocation parser and its radix router.
type Server struct {
	tcp *tcp.Server
	r   *router.Router

	plusAsSpace bool
	compute     *workpool.Pool

	errorHandler     ErrorHandler
	notFoundHandler  HandlerFunc
	methodNotAllowed HandlerFunc
}

// NewServer constructs an HttpServer over a freshly-bound tcp.Server
// listening on addr with numIOThreads IO loops and idleTimeout per
// connection.
func NewServer(baseLoop *loop.EventLoop, addr string, numIOThreads int, reusePort bool, idleTimeout time.Duration) (*Server, error) {
	ts, err := tcp.NewServer(baseLoop, addr, numIOThreads, reusePort, idleTimeout)
	if err != nil {
		return nil, err
	}
	s := &Server{
		tcp:              ts,
		r:                router.New(),
		errorHandler:     DefaultErrorHandler,
		notFoundHandler:  wrapNotFound,
		methodNotAllowed: wrapMethodNotAllowed,
	}
	ts.SetConnectionCallback(s.onConnection)
	ts.SetMessageCallback(s.onMessage)
	return s, nil
}

func wrapNotFound(ctx *Context)        { DefaultNotFoundHandler(ctx) }
func wrapMethodNotAllowed(ctx *Context) { DefaultMethodNotAllowedHandler(ctx) }

// Handle registers handler under method for path (spec §4.8
// registration, driven through the Router). Call only before Start;
// the route tree is immutable afterward (spec §5).
func (s *Server) Handle(method, path string, handler HandlerFunc) error {
	return s.r.AddRoute(path, method, router.Handler(handler))
}

// SetErrorHandler overrides the panic-recovery handler (spec §6,
// default DefaultErrorHandler).
func (s *Server) SetErrorHandler(h ErrorHandler) { s.errorHandler = h }

// SetNotFoundHandler overrides the "not found URL" handler (spec §6,
// default 404). Per spec, both this and SetMethodNotAllowedHandler
// close the connection after responding.
func (s *Server) SetNotFoundHandler(h HandlerFunc) { s.notFoundHandler = h }

// SetMethodNotAllowedHandler overrides the "method not allowed" handler
// (spec §6, default 405).
func (s *Server) SetMethodNotAllowedHandler(h HandlerFunc) { s.methodNotAllowed = h }

// PercentPlusAsSpace controls whether the parser decodes '+' in query
// values as a literal space (spec §4.7).
func (s *Server) PercentPlusAsSpace(v bool) { s.plusAsSpace = v }

// SetComputePool attaches the external compute thread pool spec §6
// names: handlers may submit CPU-bound work to it through ctx.Submit,
// but the core itself never touches it — all I/O and parsing stays on
// the IO loop.
func (s *Server) SetComputePool(p *workpool.Pool) { s.compute = p }

// Start begins accepting connections.
func (s *Server) Start() { s.tcp.Start() }

// Stop tears the server down; see tcp.Server.Stop.
func (s *Server) Stop() { s.tcp.Stop() }

func (s *Server) onConnection(c *tcp.Connection) {
	if c.State() == tcp.StateConnected {
		c.Context = NewParser(s.plusAsSpace)
		logging.Infof("httpserver", "connection up %s peer=%s", c.ID, c.PeerAddr())
	} else {
		logging.Infof("httpserver", "connection down %s peer=%s", c.ID, c.PeerAddr())
	}
}

// onMessage implements the HttpParser/HttpServer turn of spec §4.7/§5:
// feed the connection's input Buffer to its parser; each time a full
// request completes, dispatch it, queue the response, and reset the
// parser before looking for the next pipelined request in the same
// read.
func (s *Server) onMessage(c *tcp.Connection, in *tcp.Buffer, _ time.Time) {
	p, _ := c.Context.(*Parser)
	if p == nil {
		return
	}

	for {
		state, err := p.Feed(in)
		if err != nil {
			logging.Warnf("httpserver", "parse failed %s: %v", c.ID, err)
			c.Send([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
			c.Shutdown()
			return
		}
		if state != Complete {
			return
		}

		s.dispatch(c, p.Request())
		p.Reset()

		if in.ReadableBytes() == 0 {
			return
		}
	}
}

func (s *Server) dispatch(c *tcp.Connection, req *Request) {
	resp := newResponse()
	ctx := &Context{Request: req, Response: resp, compute: s.compute}

	status, h, captures := s.r.Find(req.Path, req.Method)
	ctx.Params = captures
	req.Params = captures

	closeAfter := !req.KeepAlive()

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Errorf("httpserver", "handler panic on %s %s: %v", req.Method, req.Path, rec)
				resp.reset()
				s.errorHandler(ctx, rec)
			}
		}()

		switch status {
		case router.Found:
			h.(HandlerFunc)(ctx)
		case router.NotFoundURL:
			s.notFoundHandler(ctx)
			closeAfter = true
		case router.NotFoundMethod:
			s.methodNotAllowed(ctx)
			closeAfter = true
		}
	}()

	c.Send(render(resp, closeAfter))
	if closeAfter {
		c.Shutdown()
	}
}
