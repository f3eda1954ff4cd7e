package http

import "sync"

// Request is the parsed form of an incoming HTTP/1.0 or HTTP/1.1 message
// (spec §4.7, §6). Predefined fields for the handful of headers every
// handler touches are kept unboxed; everything else lands in
// ExtraHeaders, grounded on the teacher's request.go dispatch table.
type Request struct {
	Method string
	Path   string
	Proto  string

	ContentType   string
	ContentLength string
	UserAgent     string
	Accept        string
	Host          string
	Connection    string

	ExtraHeaders map[string]string
	Query        map[string]string

	// Params holds the router's captured path parameters, populated by
	// HttpServer after a successful route lookup, not by the parser.
	Params map[string]string

	Body []byte
}

var requestPool = sync.Pool{
	New: func() any {
		return &Request{Body: make([]byte, 0, 1024)}
	},
}

// AcquireRequest returns a Request from the pool, reset and ready to
// parse into.
func AcquireRequest() *Request {
	return requestPool.Get().(*Request)
}

// Reset clears every field for reuse without releasing backing storage.
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	r.ContentType = ""
	r.ContentLength = ""
	r.UserAgent = ""
	r.Accept = ""
	r.Host = ""
	r.Connection = ""

	for k := range r.ExtraHeaders {
		delete(r.ExtraHeaders, k)
	}
	for k := range r.Query {
		delete(r.Query, k)
	}
	for k := range r.Params {
		delete(r.Params, k)
	}

	r.Body = r.Body[:0]
}

// ReleaseRequest resets req and returns it to the pool.
func ReleaseRequest(req *Request) {
	req.Reset()
	requestPool.Put(req)
}

// SetHeader records one header, routing the common names into their
// dedicated fields (spec §4.7 header grammar).
func (r *Request) SetHeader(key, value string) {
	switch key {
	case "Content-Type":
		r.ContentType = value
	case "Content-Length":
		r.ContentLength = value
	case "User-Agent":
		r.UserAgent = value
	case "Accept":
		r.Accept = value
	case "Host":
		r.Host = value
	case "Connection":
		r.Connection = value
	default:
		if r.ExtraHeaders == nil {
			r.ExtraHeaders = make(map[string]string)
		}
		r.ExtraHeaders[key] = value
	}
}

// Header looks a header up by name, checking the dedicated fields first.
func (r *Request) Header(key string) (string, bool) {
	switch key {
	case "Content-Type":
		return r.ContentType, r.ContentType != ""
	case "Content-Length":
		return r.ContentLength, r.ContentLength != ""
	case "User-Agent":
		return r.UserAgent, r.UserAgent != ""
	case "Accept":
		return r.Accept, r.Accept != ""
	case "Host":
		return r.Host, r.Host != ""
	case "Connection":
		return r.Connection, r.Connection != ""
	default:
		v, ok := r.ExtraHeaders[key]
		return v, ok
	}
}

// KeepAlive reports whether the connection should persist after this
// request, per the HTTP/1.0-vs-1.1 default and any explicit Connection
// header override (spec §6).
func (r *Request) KeepAlive() bool {
	switch r.Connection {
	case "close":
		return false
	case "Keep-Alive", "keep-alive":
		return true
	}
	return r.Proto == "HTTP/1.1"
}
