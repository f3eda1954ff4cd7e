package loop

import "fmt"

// ThreadPool starts N worker threads, each hosting one EventLoop, and
// round-robin dispatches across them (spec §2 item 6, §5). The base loop
// that hosts the Acceptor is not part of this pool; TcpServer owns that
// one directly.
type ThreadPool struct {
	threads []*LoopThread
	loops   []*EventLoop
	next    int
}

// NewThreadPool starts n IO loop threads. n must be >= 1.
func NewThreadPool(n int) (*ThreadPool, error) {
	if n < 1 {
		return nil, fmt.Errorf("loop: thread pool size must be >= 1, got %d", n)
	}
	p := &ThreadPool{}
	for i := 0; i < n; i++ {
		lt, err := NewLoopThread()
		if err != nil {
			p.Stop()
			return nil, fmt.Errorf("loop: starting IO thread %d: %w", i, err)
		}
		p.threads = append(p.threads, lt)
	}
	for _, lt := range p.threads {
		p.loops = append(p.loops, lt.Start())
	}
	return p, nil
}

// NextLoop returns the next loop in round-robin order, the assignment
// TcpServer uses for every newly accepted connection (spec §5).
func (p *ThreadPool) NextLoop() *EventLoop {
	l := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return l
}

// Loops returns every IO loop in the pool, in round-robin order.
func (p *ThreadPool) Loops() []*EventLoop { return p.loops }

// Stop quits every loop thread. It does not wait for the goroutines to
// return; callers that need a clean shutdown should arrange that via the
// loops' own Quit-triggered teardown.
func (p *ThreadPool) Stop() {
	for _, lt := range p.threads {
		lt.Stop()
	}
}
