package http

import (
	"testing"

	"github.com/corewire/reactor/core/tcp"
)

func TestParseSimpleGet(t *testing.T) {
	p := NewParser(false)
	buf := tcp.NewBuffer()
	buf.Append([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))

	state, err := p.Feed(buf)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if state != Complete {
		t.Fatalf("expected Complete, got %v", state)
	}

	req := p.Request()
	if req.Method != "GET" || req.Path != "/hello" || req.Proto != "HTTP/1.1" || req.Host != "x" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseFragmentedByteAtATimeProducesOneComplete(t *testing.T) {
	raw := "GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"
	p := NewParser(false)
	buf := tcp.NewBuffer()

	completions := 0
	for i := 0; i < len(raw); i++ {
		buf.Append([]byte{raw[i]})
		state, err := p.Feed(buf)
		if err != nil {
			t.Fatalf("unexpected parse error: %v", err)
		}
		if state == Complete {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("expected exactly one completion from byte-at-a-time delivery, got %d", completions)
	}
}

func TestParseRejectsUnknownMethod(t *testing.T) {
	p := NewParser(false)
	buf := tcp.NewBuffer()
	buf.Append([]byte("PATCH /x HTTP/1.1\r\n\r\n"))

	if _, err := p.Feed(buf); err != ErrParseFailed {
		t.Fatalf("expected ErrParseFailed, got %v", err)
	}
}

func TestParseRejectsBadVersion(t *testing.T) {
	p := NewParser(false)
	buf := tcp.NewBuffer()
	buf.Append([]byte("GET /x HTTP/2.0\r\n\r\n"))

	if _, err := p.Feed(buf); err != ErrParseFailed {
		t.Fatalf("expected ErrParseFailed, got %v", err)
	}
}

func TestParseRejectsWhitespaceOnlyHeaderField(t *testing.T) {
	p := NewParser(false)
	buf := tcp.NewBuffer()
	buf.Append([]byte("GET /x HTTP/1.1\r\n   : value\r\n\r\n"))

	if _, err := p.Feed(buf); err != ErrParseFailed {
		t.Fatalf("expected ErrParseFailed, got %v", err)
	}
}

func TestParseQueryPercentDecoding(t *testing.T) {
	p := NewParser(true)
	buf := tcp.NewBuffer()
	buf.Append([]byte("GET /s?q=a%20b+c&bad=%zz HTTP/1.1\r\n\r\n"))

	state, err := p.Feed(buf)
	if err != nil || state != Complete {
		t.Fatalf("unexpected parse result: state=%v err=%v", state, err)
	}

	req := p.Request()
	if req.Query["q"] != "a b c" {
		t.Fatalf("expected decoded query %q, got %q", "a b c", req.Query["q"])
	}
	if req.Query["bad"] != "%zz" {
		t.Fatalf("expected malformed escape preserved literally, got %q", req.Query["bad"])
	}
}

func TestParseBodyWaitsForContentLength(t *testing.T) {
	p := NewParser(false)
	buf := tcp.NewBuffer()
	buf.Append([]byte("POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\nab"))

	state, err := p.Feed(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != ExpectBody {
		t.Fatalf("expected ExpectBody while body is short, got %v", state)
	}

	buf.Append([]byte("cde"))
	state, err = p.Feed(buf)
	if err != nil || state != Complete {
		t.Fatalf("unexpected result after remaining body arrives: state=%v err=%v", state, err)
	}
	if string(p.Request().Body) != "abcde" {
		t.Fatalf("unexpected body: %q", p.Request().Body)
	}
}

func TestParseResetAllowsNextRequestOnSameConnection(t *testing.T) {
	p := NewParser(false)
	buf := tcp.NewBuffer()
	buf.Append([]byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n"))

	state, err := p.Feed(buf)
	if err != nil || state != Complete || p.Request().Path != "/a" {
		t.Fatalf("first request: state=%v err=%v path=%q", state, err, p.Request().Path)
	}
	p.Reset()

	state, err = p.Feed(buf)
	if err != nil || state != Complete || p.Request().Path != "/b" {
		t.Fatalf("second request: state=%v err=%v path=%q", state, err, p.Request().Path)
	}
}
