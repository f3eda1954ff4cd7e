// Command reactord runs the reactor core's HttpServer with a route table
// exercising every capture kind the router supports, grounded on the
// teacher's examples/basic/main.go demo server.
package main

import (
	"os"

	"github.com/corewire/reactor/app"
	"github.com/corewire/reactor/config"
	"github.com/corewire/reactor/core/http"
	"github.com/corewire/reactor/logging"
)

func main() {
	cfg, err := config.LoadFromFlags(os.Args[1:])
	if err != nil {
		logging.Errorf("main", "config: %v", err)
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		logging.Errorf("main", "startup: %v", err)
		os.Exit(1)
	}

	srv := application.Server()

	mustHandle(srv, "GET", "/hello", func(ctx *http.Context) {
		ctx.Response.WriteString("hi")
	})

	mustHandle(srv, "GET", "/api/users/:id", func(ctx *http.Context) {
		ctx.Response.SetHeader("Content-Type", "text/plain")
		ctx.Response.WriteString("user " + ctx.Param("id"))
	})

	mustHandle(srv, "GET", "/files/*rest", func(ctx *http.Context) {
		ctx.Response.WriteString(ctx.Param("rest"))
	})

	mustHandle(srv, "GET", "/api/search", func(ctx *http.Context) {
		ctx.Response.WriteString(ctx.Query("q"))
	})

	mustHandle(srv, "POST", "/api/users", func(ctx *http.Context) {
		ctx.Response.SetStatus(201, "Created")
		ctx.Response.WriteString("created")
	})

	mustHandle(srv, "POST", "/api/audit", func(ctx *http.Context) {
		body := append([]byte(nil), ctx.Request.Body...)
		ctx.Submit(func() {
			logging.Infof("audit", "received %d bytes", len(body))
		})
		ctx.Response.SetStatus(202, "Accepted")
	})

	logging.Infof("main", "starting reactord")
	application.Run()
}

func mustHandle(srv *http.Server, method, path string, h http.HandlerFunc) {
	if err := srv.Handle(method, path, h); err != nil {
		logging.Errorf("main", "route registration failed: %v", err)
		os.Exit(1)
	}
}
