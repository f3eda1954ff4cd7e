// Package router implements the per-segment static/param/wildcard
// route tree of spec §4.8. It is grounded on the teacher's deleted
// core/router/radix.go node shape (a tree of nodes, each holding a
// method-keyed handler map) and the three-way edge classification the
// teacher's deleted core/router/fast.go used, applied recursively per
// path segment instead of compressed radix-style.
package router

import (
	"fmt"
	"strings"
)

// Status is the outcome of a Find call (spec §4.8).
type Status int

const (
	Found Status = iota
	NotFoundURL
	NotFoundMethod
)

// Handler is the opaque value installed at a route; the router never
// inspects it.
type Handler any

type node struct {
	static   map[string]*node
	param    *node
	paramKey string
	wildcard *node
	wildKey  string

	handlers map[string]Handler
}

func newNode() *node {
	return &node{static: make(map[string]*node)}
}

// Router is the immutable-after-startup route tree described by spec
// §4.8, §5: registration happens at startup, lookups afterward are
// lock-free and concurrent since nothing mutates.
type Router struct {
	root *node
}

// New returns an empty Router.
func New() *Router {
	return &Router{root: newNode()}
}

func splitSegments(path string) []string {
	raw := strings.Split(path, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// AddRoute registers handler under method for path (spec §4.8
// registration). Returns a conflict error if the path collides with a
// differently-named parameter or wildcard edge, a non-terminal wildcard,
// or a handler already installed under the same method at the same node.
func (r *Router) AddRoute(path, method string, handler Handler) error {
	segs := splitSegments(path)
	n := r.root
	for i, seg := range segs {
		switch seg[0] {
		case ':':
			name := seg[1:]
			if n.param == nil {
				n.param = newNode()
				n.paramKey = name
			} else if n.paramKey != name {
				return fmt.Errorf("router: conflicting parameter name %q vs %q at segment %d of %q", name, n.paramKey, i, path)
			}
			n = n.param
		case '*':
			if i != len(segs)-1 {
				return fmt.Errorf("router: wildcard segment %q must be last in %q", seg, path)
			}
			name := seg[1:]
			if n.wildcard == nil {
				n.wildcard = newNode()
				n.wildKey = name
			} else if n.wildKey != name {
				return fmt.Errorf("router: conflicting wildcard name %q vs %q at segment %d of %q", name, n.wildKey, i, path)
			}
			n = n.wildcard
		default:
			child, ok := n.static[seg]
			if !ok {
				child = newNode()
				n.static[seg] = child
			}
			n = child
		}
	}
	if n.handlers == nil {
		n.handlers = make(map[string]Handler)
	}
	if _, exists := n.handlers[method]; exists {
		return fmt.Errorf("router: handler already registered for %s %q", method, path)
	}
	n.handlers[method] = handler
	return nil
}

// Find looks path/method up (spec §4.8 lookup): static exact match first,
// then a parameter edge, then a wildcard edge, with no backtracking
// between priorities once a branch is entered (testable property 5/6).
func (r *Router) Find(path, method string) (Status, Handler, map[string]string) {
	segs := splitSegments(path)
	n := r.root
	var captures map[string]string

	for i, seg := range segs {
		if child, ok := n.static[seg]; ok {
			n = child
			continue
		}
		if n.param != nil {
			if captures == nil {
				captures = make(map[string]string)
			}
			captures[n.paramKey] = seg
			n = n.param
			continue
		}
		if n.wildcard != nil {
			if captures == nil {
				captures = make(map[string]string)
			}
			captures[n.wildKey] = strings.Join(segs[i:], "/")
			n = n.wildcard
			return lookupTerminal(n, method, captures)
		}
		return NotFoundURL, nil, nil
	}
	return lookupTerminal(n, method, captures)
}

func lookupTerminal(n *node, method string, captures map[string]string) (Status, Handler, map[string]string) {
	if len(n.handlers) == 0 {
		return NotFoundURL, nil, nil
	}
	h, ok := n.handlers[method]
	if !ok {
		return NotFoundMethod, nil, nil
	}
	return Found, h, captures
}
