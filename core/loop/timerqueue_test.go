package loop

import (
	"testing"
	"time"
)

func newRunningLoop(t *testing.T) (*EventLoop, func()) {
	t.Helper()
	l, err := NewEventLoop()
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	done := make(chan struct{})
	go func() {
		l.Loop()
		close(done)
	}()
	return l, func() {
		l.Quit()
		<-done
		l.Close()
	}
}

func TestTimerFiresOnce(t *testing.T) {
	l, stop := newRunningLoop(t)
	defer stop()

	fired := make(chan struct{}, 1)
	l.Timers().AddTimer(func() { fired <- struct{}{} }, time.Now().Add(20*time.Millisecond), 0)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	select {
	case <-fired:
		t.Fatal("one-shot timer fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimerCancelBeforeExpiry(t *testing.T) {
	l, stop := newRunningLoop(t)
	defer stop()

	fired := make(chan struct{}, 1)
	h := l.Timers().AddTimer(func() { fired <- struct{}{} }, time.Now().Add(50*time.Millisecond), 0)
	l.Timers().Cancel(h)

	select {
	case <-fired:
		t.Fatal("canceled timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRepeatingTimerCancelsItself(t *testing.T) {
	l, stop := newRunningLoop(t)
	defer stop()

	count := 0
	fired := make(chan struct{}, 10)
	var handle TimerHandle
	handle = l.Timers().AddTimer(func() {
		count++
		fired <- struct{}{}
		if count >= 2 {
			l.Timers().Cancel(handle)
		}
	}, time.Now().Add(10*time.Millisecond), 10*time.Millisecond)

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("repeating timer did not fire enough times")
		}
	}

	select {
	case <-fired:
		t.Fatal("timer fired again after canceling itself from its own callback")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRunInLoopFromOtherGoroutine(t *testing.T) {
	l, stop := newRunningLoop(t)
	defer stop()

	done := make(chan struct{})
	l.RunInLoop(func() {
		if !l.IsInLoopThread() {
			t.Error("RunInLoop closure did not run on the loop's own thread")
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunInLoop closure never ran")
	}
}
