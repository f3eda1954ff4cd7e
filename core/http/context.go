package http

import (
	"fmt"
	"strconv"

	"github.com/corewire/reactor/workpool"
)

// Response is the handler-facing response builder (spec §6): status
// code, status message, header set, body. The handler must fully
// populate it before returning.
type Response struct {
	StatusCode int
	StatusMsg  string

	headerKeys []string
	headers    map[string]string

	Body []byte
}

func newResponse() *Response {
	return &Response{StatusCode: 200, StatusMsg: "OK", headers: make(map[string]string)}
}

// SetStatus sets the status line code and message.
func (resp *Response) SetStatus(code int, message string) {
	resp.StatusCode = code
	resp.StatusMsg = message
}

// SetHeader installs a header, in insertion order (spec §6 "additional
// headers... emitted verbatim in insertion order").
func (resp *Response) SetHeader(key, value string) {
	if _, exists := resp.headers[key]; !exists {
		resp.headerKeys = append(resp.headerKeys, key)
	}
	resp.headers[key] = value
}

// WriteString appends s to the response body.
func (resp *Response) WriteString(s string) {
	resp.Body = append(resp.Body, s...)
}

// Write appends b to the response body, satisfying io.Writer.
func (resp *Response) Write(b []byte) (int, error) {
	resp.Body = append(resp.Body, b...)
	return len(b), nil
}

func (resp *Response) reset() {
	resp.StatusCode = 200
	resp.StatusMsg = "OK"
	resp.headerKeys = resp.headerKeys[:0]
	for k := range resp.headers {
		delete(resp.headers, k)
	}
	resp.Body = resp.Body[:0]
}

// Context is the handler-facing object exposing the parsed request, the
// response builder, and the router's path-parameter captures (spec §6
// "Handler interface").
type Context struct {
	Request  *Request
	Response *Response
	Params   map[string]string

	compute *workpool.Pool
}

// Param returns a captured path parameter, or "" if it was not bound.
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// Query returns a query-string value, or "" if absent.
func (c *Context) Query(name string) string {
	return c.Request.Query[name]
}

// Submit hands task to the server's compute thread pool, if one was
// configured via Server.SetComputePool (spec §6 "Compute thread pool");
// without a pool the task is dropped. The task normally runs on a pool
// goroutine, but the pool runs it inline, on the IO loop, when it has been
// closed or every worker queue is full. It must not touch ctx, Response,
// or Request after the handler has returned.
func (c *Context) Submit(task workpool.Task) {
	if c.compute != nil {
		c.compute.Submit(task)
	}
}

// render serializes the status line, headers, and body into a single
// wire-format buffer (spec §6 "Wire protocol (emitted)"). connClose
// overrides the Connection header to "close" even if the handler didn't
// set one, per connection-policy rules the HttpServer decides.
func render(resp *Response, connClose bool) []byte {
	out := make([]byte, 0, 256+len(resp.Body))
	out = append(out, "HTTP/1.1 "...)
	out = append(out, strconv.Itoa(resp.StatusCode)...)
	out = append(out, ' ')
	out = append(out, resp.StatusMsg...)
	out = append(out, "\r\n"...)

	out = append(out, "Content-Length: "...)
	out = append(out, strconv.Itoa(len(resp.Body))...)
	out = append(out, "\r\n"...)

	connValue := "Keep-Alive"
	if connClose {
		connValue = "close"
	}

	for _, k := range resp.headerKeys {
		if k == "Content-Length" {
			continue
		}
		if k == "Connection" {
			if !connClose {
				connValue = resp.headers[k]
			}
			continue
		}
		out = append(out, k...)
		out = append(out, ": "...)
		out = append(out, resp.headers[k]...)
		out = append(out, "\r\n"...)
	}

	out = append(out, "Connection: "...)
	out = append(out, connValue...)
	out = append(out, "\r\n\r\n"...)

	out = append(out, resp.Body...)
	return out
}

// ErrorHandler is the configurable handler invoked when a route handler
// panics (spec §6 "a handler throwing an exception").
type ErrorHandler func(ctx *Context, recovered any)

// DefaultErrorHandler writes 500 with the panic's message as the body
// (spec §6 default, testable scenario S9).
func DefaultErrorHandler(ctx *Context, recovered any) {
	ctx.Response.SetStatus(500, "Internal Server Error")
	ctx.Response.WriteString(fmt.Sprintf("%v", recovered))
}

// DefaultNotFoundHandler writes 404 (spec §6 default).
func DefaultNotFoundHandler(ctx *Context) {
	ctx.Response.SetStatus(404, "Not Found")
	ctx.Response.WriteString("404 Not Found")
}

// DefaultMethodNotAllowedHandler writes 405 (spec §6 default).
func DefaultMethodNotAllowedHandler(ctx *Context) {
	ctx.Response.SetStatus(405, "Method Not Allowed")
	ctx.Response.WriteString("405 Method Not Allowed")
}
