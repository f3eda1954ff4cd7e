package http

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/corewire/reactor/core/tcp"
)

// ParseState is the incremental HttpParser's state machine (spec §4.7):
// parser state persists across partial reads so keep-alive and fragmented
// delivery are handled uniformly, one Feed call per read cycle.
type ParseState int

const (
	ExpectRequestLine ParseState = iota
	ExpectHeaders
	ExpectBody
	Complete
)

// ErrParseFailed is returned by Feed when the stream violates the
// request-line or header grammar; the caller (HttpServer) responds with
// 400 Bad Request and half-closes (spec §4.7 failure path).
var ErrParseFailed = errors.New("http: malformed request")

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "HEAD": true, "PUT": true, "DELETE": true,
}

// Parser extracts one Request at a time from a connection's input
// Buffer. Grounded on the teacher's parser.go manual byte-scanning style
// (bytes.IndexByte over SplitN), restructured into a resumable state
// machine instead of a single whole-buffer pass.
type Parser struct {
	state         ParseState
	req           *Request
	contentLength int
	plusAsSpace   bool
}

// NewParser returns a Parser primed at ExpectRequestLine. plusAsSpace
// controls whether '+' in query values decodes to a literal space (spec
// §4.7 percent-decoding rule).
func NewParser(plusAsSpace bool) *Parser {
	return &Parser{state: ExpectRequestLine, req: AcquireRequest(), plusAsSpace: plusAsSpace}
}

// Request returns the request currently being (or just) parsed. Valid
// until the next Reset.
func (p *Parser) Request() *Request { return p.req }

// State reports the parser's current position in the state machine.
func (p *Parser) State() ParseState { return p.state }

// Reset re-primes the parser for the next request on the same connection,
// once the caller has dispatched the completed one (spec §4.7
// termination).
func (p *Parser) Reset() {
	ReleaseRequest(p.req)
	p.req = AcquireRequest()
	p.state = ExpectRequestLine
	p.contentLength = 0
}

// Feed advances the parser as far as buf's currently readable bytes
// allow, consuming everything it parses. It returns Complete once a full
// request has been extracted; otherwise it returns the state it is
// blocked in, with buf left holding only the unconsumed remainder, so
// the next read cycle's Feed call picks up exactly where this one
// stopped (spec §4.7, testable property 4: one message callback per
// complete request, none for partial ones).
func (p *Parser) Feed(buf *tcp.Buffer) (ParseState, error) {
	for {
		switch p.state {
		case ExpectRequestLine:
			line, n, ok := findLine(buf.Peek())
			if !ok {
				return p.state, nil
			}
			if err := p.parseRequestLine(line); err != nil {
				return p.state, err
			}
			buf.Retrieve(n)
			p.state = ExpectHeaders

		case ExpectHeaders:
			line, n, ok := findLine(buf.Peek())
			if !ok {
				return p.state, nil
			}
			if len(line) == 0 {
				buf.Retrieve(n)
				if p.req.ContentLength == "" {
					p.contentLength = 0
				} else {
					v, err := strconv.Atoi(p.req.ContentLength)
					if err != nil || v < 0 {
						return p.state, ErrParseFailed
					}
					p.contentLength = v
				}
				if p.contentLength == 0 {
					p.state = Complete
					return Complete, nil
				}
				p.state = ExpectBody
				continue
			}
			if err := p.parseHeaderLine(line); err != nil {
				return p.state, err
			}
			buf.Retrieve(n)

		case ExpectBody:
			if buf.ReadableBytes() < p.contentLength {
				return p.state, nil
			}
			p.req.Body = append(p.req.Body[:0], buf.Peek()[:p.contentLength]...)
			buf.Retrieve(p.contentLength)
			p.state = Complete
			return Complete, nil

		case Complete:
			return Complete, nil
		}
	}
}

// findLine locates a CRLF- or bare-LF-terminated line in data, returning
// the line content (terminator stripped) and the total number of bytes
// the line plus its terminator occupy.
func findLine(data []byte) (line []byte, consumed int, ok bool) {
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		return nil, 0, false
	}
	end := idx
	if end > 0 && data[end-1] == '\r' {
		end--
	}
	return data[:end], idx + 1, true
}

// parseRequestLine implements the "METHOD SP URL SP VERSION" grammar of
// spec §4.7.
func (p *Parser) parseRequestLine(line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return ErrParseFailed
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 == -1 {
		return ErrParseFailed
	}
	sp2 += sp1 + 1

	method := string(line[:sp1])
	if !allowedMethods[method] {
		return ErrParseFailed
	}
	proto := string(line[sp2+1:])
	if proto != "HTTP/1.0" && proto != "HTTP/1.1" {
		return ErrParseFailed
	}

	p.req.Method = method
	p.req.Proto = proto
	p.req.Path = string(line[sp1+1 : sp2])

	if idx := strings.IndexByte(p.req.Path, '?'); idx != -1 {
		p.parseQuery(p.req.Path[idx+1:])
		p.req.Path = p.req.Path[:idx]
	}
	return nil
}

// parseQuery implements the "&"-separated key[=value] grammar with
// percent-decoding of both key and value (spec §4.7).
func (p *Parser) parseQuery(queryStr string) {
	if queryStr == "" {
		return
	}
	if p.req.Query == nil {
		p.req.Query = make(map[string]string)
	}
	for _, pair := range strings.Split(queryStr, "&") {
		if pair == "" {
			continue
		}
		if eq := strings.IndexByte(pair, '='); eq != -1 {
			k := percentDecode(pair[:eq], p.plusAsSpace)
			v := percentDecode(pair[eq+1:], p.plusAsSpace)
			p.req.Query[k] = v
		} else {
			p.req.Query[percentDecode(pair, p.plusAsSpace)] = ""
		}
	}
}

// parseHeaderLine implements the 'FIELD ":" OWS VALUE OWS' grammar of
// spec §4.7: a FIELD that is empty or whitespace-only is a parse failure,
// not a silently skipped line.
func (p *Parser) parseHeaderLine(line []byte) error {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return ErrParseFailed
	}
	field := bytes.TrimSpace(line[:colon])
	if len(field) == 0 {
		return ErrParseFailed
	}
	value := bytes.TrimSpace(line[colon+1:])
	p.req.SetHeader(string(field), string(value))
	return nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// percentDecode implements spec §4.7's percent-decoding rule: only
// well-formed three-character %HH escapes decode; a malformed escape
// leaves the '%' in place literally. '+' decodes to space only when
// plusAsSpace is set.
func percentDecode(s string, plusAsSpace bool) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		case c == '+' && plusAsSpace:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
