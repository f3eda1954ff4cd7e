package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/corewire/reactor/config"
	"github.com/corewire/reactor/core/http"
	"github.com/corewire/reactor/core/loop"
	"github.com/corewire/reactor/logging"
	"github.com/corewire/reactor/runtimeopt"
	"github.com/corewire/reactor/workpool"
)

// App wires a ServerConfig to a running HttpServer: one base loop for the
// Acceptor, an IO loop pool sized from cfg, and the signal-driven
// graceful-shutdown path the teacher's app.go already had the shape of.
type App struct {
	cfg     config.ServerConfig
	base    *loop.EventLoop
	srv     *http.Server
	compute *workpool.Pool
	fileLog *logging.FileSink
}

// New constructs an App. It opens the configured log sink and starts the
// base EventLoop's underlying demultiplexer, but does not begin accepting
// connections until Run is called.
func New(cfg config.ServerConfig) (*App, error) {
	runtimeopt.Tune(runtimeopt.ForIOLoops())

	var fileSink *logging.FileSink
	if cfg.LogFile != "" {
		fs, err := logging.NewFileSink(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		logging.Init(fs)
		fileSink = fs
	}

	base, err := loop.NewEventLoop()
	if err != nil {
		return nil, err
	}

	srv, err := http.NewServer(base, cfg.ListenAddr, cfg.IOLoops, cfg.ReusePort, cfg.IdleTimeout)
	if err != nil {
		base.Close()
		return nil, err
	}

	compute := workpool.New(0)
	srv.SetComputePool(compute)

	return &App{cfg: cfg, base: base, srv: srv, compute: compute, fileLog: fileSink}, nil
}

// Server exposes the HttpServer for route registration before Run.
func (a *App) Server() *http.Server { return a.srv }

// Run starts accepting connections and blocks running the base loop
// until a termination signal arrives, then tears everything down (spec
// §5 scheduling model: one base loop thread runs the Acceptor).
func (a *App) Run() {
	go a.awaitSignal()

	a.srv.Start()
	logging.Infof("app", "listening on %s env=%s io_loops=%d", a.cfg.ListenAddr, a.cfg.Env, a.cfg.IOLoops)

	a.base.Loop()

	if err := a.base.Close(); err != nil {
		logging.Errorf("app", "base loop close: %v", err)
	}
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logging.Infof("app", "signal received: %v, shutting down", sig)

	a.srv.Stop()
	a.compute.Close()
	a.base.Quit()
	logging.Stop()
	if a.fileLog != nil {
		a.fileLog.Close()
	}
}
