package tcp

import "testing"

func TestBufferAppendRetrieveRoundTrip(t *testing.T) {
	b := NewBuffer()
	want := ""
	for _, s := range []string{"hello", " ", "world", "!", "more data to force growth past the initial capacity and exercise makeSpace"} {
		b.Append([]byte(s))
		want += s
	}
	got := b.RetrieveAllAsString()
	if got != want {
		t.Fatalf("round trip mismatch: got %q want %q", got, want)
	}
	if b.ReadableBytes() != 0 {
		t.Fatalf("expected empty buffer after RetrieveAll, got %d readable", b.ReadableBytes())
	}
}

func TestBufferPartialRetrieveKeepsRemainder(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("abcdef"))
	b.Retrieve(3)
	if got := string(b.Peek()); got != "def" {
		t.Fatalf("got %q want %q", got, "def")
	}
}

func TestBufferCompactsInsteadOfGrowingWhenSlackSuffices(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("0123456789"))
	b.Retrieve(8)
	before := len(b.buf)
	b.Append(make([]byte, before-prependSize-2))
	if len(b.buf) != before {
		t.Fatalf("expected compaction to avoid growth: before=%d after=%d", before, len(b.buf))
	}
}
