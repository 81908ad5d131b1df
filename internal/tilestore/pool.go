package tilestore

import "sync"

// pool runs tasks on a fixed number of goroutines. The queue is unbounded so a
// worker of one pool can always hand off to another without blocking.
type pool struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	active  int

	wg sync.WaitGroup
}

func newPool(name string, workers int) *pool {
	if workers <= 0 {
		workers = 1
	}
	p := &pool{name: name}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

// submit enqueues fn. It reports false once the pool has been stopped.
func (p *pool) submit(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.queue = append(p.queue, fn)
	p.cond.Signal()
	return true
}

func (p *pool) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.active++
		p.mu.Unlock()

		fn()

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

// depth returns queued and running task counts.
func (p *pool) depth() (queued, running int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue), p.active
}

// stop lets workers finish the queue, then waits for them to exit.
func (p *pool) stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
