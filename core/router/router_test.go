package router

import "testing"

func TestStaticParamWildcardPriority(t *testing.T) {
	r := New()
	mustAdd(t, r, "/x/static", "GET", "static")
	mustAdd(t, r, "/x/:p", "GET", "param")
	mustAdd(t, r, "/x/*rest", "GET", "wildcard")

	status, h, caps := r.Find("/x/static", "GET")
	if status != Found || h != "static" {
		t.Fatalf("static: got status=%v handler=%v", status, h)
	}

	status, h, caps = r.Find("/x/foo", "GET")
	if status != Found || h != "param" || caps["p"] != "foo" {
		t.Fatalf("param: got status=%v handler=%v caps=%v", status, h, caps)
	}

	// /x/a dead-ends into the :p param branch (bound at the first unmatched
	// segment) rather than backtracking to try the sibling wildcard, so the
	// remaining segments never match: NotFoundURL, not the wildcard.
	status, h, caps = r.Find("/x/a/b/c", "GET")
	if status != NotFoundURL {
		t.Fatalf("non-backtracking dead-end: got status=%v handler=%v caps=%v", status, h, caps)
	}
}

func TestWildcardMatchesWhenNoSiblingParamExists(t *testing.T) {
	r := New()
	mustAdd(t, r, "/files/*rest", "GET", "wildcard")

	status, h, caps := r.Find("/files/a/b/c", "GET")
	if status != Found || h != "wildcard" || caps["rest"] != "a/b/c" {
		t.Fatalf("wildcard: got status=%v handler=%v caps=%v", status, h, caps)
	}
}

func TestNotFoundURLAndMethod(t *testing.T) {
	r := New()
	mustAdd(t, r, "/x", "GET", "h")

	if status, _, _ := r.Find("/x", "POST"); status != NotFoundMethod {
		t.Fatalf("expected NotFoundMethod, got %v", status)
	}
	if status, _, _ := r.Find("/y", "GET"); status != NotFoundURL {
		t.Fatalf("expected NotFoundURL, got %v", status)
	}
}

func TestParamNameConflict(t *testing.T) {
	r := New()
	mustAdd(t, r, "/x/:id", "GET", "h")
	if err := r.AddRoute("/x/:name", "GET", "h2"); err == nil {
		t.Fatal("expected conflict error for differently-named parameter edge")
	}
}

func TestWildcardMustBeLastSegment(t *testing.T) {
	r := New()
	if err := r.AddRoute("/x/*rest/y", "GET", "h"); err == nil {
		t.Fatal("expected error for non-terminal wildcard")
	}
}

func TestDuplicateHandlerConflict(t *testing.T) {
	r := New()
	mustAdd(t, r, "/x", "GET", "h1")
	if err := r.AddRoute("/x", "GET", "h2"); err == nil {
		t.Fatal("expected conflict error for duplicate method handler")
	}
}

func TestLookupDeterministicRegardlessOfOrder(t *testing.T) {
	a := New()
	mustAdd(t, a, "/x/:p", "GET", "param")
	mustAdd(t, a, "/x/static", "GET", "static")

	b := New()
	mustAdd(t, b, "/x/static", "GET", "static")
	mustAdd(t, b, "/x/:p", "GET", "param")

	for _, path := range []string{"/x/static", "/x/other"} {
		sa, ha, _ := a.Find(path, "GET")
		sb, hb, _ := b.Find(path, "GET")
		if sa != sb || ha != hb {
			t.Fatalf("registration order changed lookup result for %q: (%v,%v) vs (%v,%v)", path, sa, ha, sb, hb)
		}
	}
}

func mustAdd(t *testing.T, r *Router, path, method string, h Handler) {
	t.Helper()
	if err := r.AddRoute(path, method, h); err != nil {
		t.Fatalf("AddRoute(%q, %q): %v", path, method, err)
	}
}
