/*
Package reactor is a single-host, non-blocking TCP reactor with a
keep-alive HTTP/1.1 server built on top of it.

The reactor follows the one-loop-per-OS-thread model: a base loop runs
the Acceptor, and a fixed pool of IO loop threads each own a disjoint
subset of connections, assigned round-robin at accept time. All socket
I/O is edge-triggered except the listening socket, which stays
level-triggered for simpler EMFILE recovery.

Quick Start

	package main

	import (
	    "github.com/corewire/reactor/app"
	    "github.com/corewire/reactor/config"
	    "github.com/corewire/reactor/core/http"
	)

	func main() {
	    cfg := config.Default()
	    application, err := app.New(cfg)
	    if err != nil {
	        panic(err)
	    }

	    application.Server().Handle("GET", "/hello", func(ctx *http.Context) {
	        ctx.Response.WriteString("hi")
	    })

	    application.Run()
	}

Modules

The repository is organized into:

  - app: process lifecycle, signal-driven graceful shutdown
  - config: TOML + environment + flag configuration loading
  - logging: process-wide structured logging sink
  - runtimeopt: GC tuning for the reactor's allocation profile
  - workpool: work-stealing goroutine pool for CPU-bound handler work
  - core/loop: EventLoop, Channel, TimerQueue, ThreadPool
  - core/tcp: Buffer, Acceptor, Connection, Server
  - core/http: the incremental HTTP/1.1 parser and HttpServer facade
  - core/router: the static/parameter/wildcard route tree
*/
package reactor
