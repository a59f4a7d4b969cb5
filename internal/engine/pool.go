package engine

import "sync"

// Pool runs one batch job per submitted processing id on a fixed set of
// workers. The backlog is unbounded; the dispatcher's admission check is the
// only thing keeping it from growing without limit.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	backlog []string
	closed  bool
	wg      sync.WaitGroup
	run     func(processingID string)
}

func NewPool(workers int, run func(processingID string)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{run: run}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.backlog) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.backlog) == 0 {
			p.mu.Unlock()
			return
		}
		id := p.backlog[0]
		p.backlog = p.backlog[1:]
		p.mu.Unlock()

		p.run(id)
	}
}

// Submit queues a processing id for execution. Submissions after Close are
// dropped.
func (p *Pool) Submit(processingID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.backlog = append(p.backlog, processingID)
	p.cond.Signal()
}

// QueueSize is the count of submitted but not yet started batch jobs. The
// dispatcher reads it for admission control.
func (p *Pool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

// Close drains the backlog and waits for in-flight jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
