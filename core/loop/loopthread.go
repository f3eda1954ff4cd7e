package loop

import "github.com/corewire/reactor/logging"

// LoopThread starts exactly one goroutine hosting exactly one EventLoop,
// grounded on the one-goroutine-per-worker shape of the teacher's
// core/pools/worker_pool.go, generalized from "run tasks off a channel"
// to "run an EventLoop.Loop forever" (spec §2 item 6).
type LoopThread struct {
	loop    *EventLoop
	started chan struct{}
}

// NewLoopThread constructs the loop synchronously (so New never races with
// Start) but does not start running it.
func NewLoopThread() (*LoopThread, error) {
	l, err := NewEventLoop()
	if err != nil {
		return nil, err
	}
	return &LoopThread{loop: l, started: make(chan struct{})}, nil
}

// Start launches the goroutine that runs Loop and blocks until that
// goroutine has started. It does not wait for the loop's first iteration;
// work handed to the loop before then is queued by RunInLoop/QueueInLoop.
func (lt *LoopThread) Start() *EventLoop {
	go func() {
		close(lt.started)
		lt.loop.Loop()
	}()
	<-lt.started
	return lt.loop
}

// Loop returns the underlying EventLoop.
func (lt *LoopThread) Loop() *EventLoop { return lt.loop }

// Stop asks the loop to quit. It does not close the loop's fds; that is
// CloseResources. Safe to call from any goroutine.
func (lt *LoopThread) Stop() {
	lt.loop.Quit()
}

// CloseResources releases the loop's fds. Call only after the loop
// goroutine has actually returned from Loop().
func (lt *LoopThread) CloseResources() {
	if err := lt.loop.Close(); err != nil {
		logging.Warnf("loopthread", "close failed: %v", err)
	}
}
