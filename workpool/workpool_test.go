package workpool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Basic(t *testing.T) {
	p := New(4)
	defer p.Close()

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		p.Submit(func() { counter.Add(1) })
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().Completed >= 100 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if counter.Load() != 100 {
		t.Fatalf("expected 100 tasks completed, got %d", counter.Load())
	}
}

func TestPool_InlineFallbackAfterClose(t *testing.T) {
	p := New(2)
	p.Close()

	ran := false
	p.Submit(func() { ran = true })
	if !ran {
		t.Fatal("expected Submit to run inline after Close")
	}
}

func TestPool_WorkStealing(t *testing.T) {
	p := New(4)
	defer p.Close()

	var counter atomic.Int64
	for i := 0; i < 200; i++ {
		i := i
		p.Submit(func() {
			if i%20 == 0 {
				time.Sleep(5 * time.Millisecond)
			}
			counter.Add(1)
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().Completed >= 200 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if counter.Load() != 200 {
		t.Fatalf("expected 200 tasks completed, got %d", counter.Load())
	}
}
