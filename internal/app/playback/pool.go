package playback

import "sync"

// Pool runs network-bound work off the guild actors with bounded concurrency.
// Go never blocks the caller; excess work waits for a free slot in its own goroutine.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool creates a pool running at most size tasks at once.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Go schedules fn.
func (p *Pool) Go(fn func()) {
	p.After(nil, fn)
}

// After schedules fn once done is closed. No slot is held while waiting.
// A nil done does not wait.
func (p *Pool) After(done <-chan struct{}, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if done != nil {
			<-done
		}
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Wait blocks until every scheduled task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
