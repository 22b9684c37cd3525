package registry

import (
	"runtime"
	"sync"
)

type job struct {
	lo, hi int
	fn     func(i int)
}

// pool runs one phase over every vehicle on a fixed set of workers. run
// returns once all workers finished their share, which makes each call a
// barrier between phases.
type pool struct {
	jobs []chan job
	wg   sync.WaitGroup
	once sync.Once
}

func newPool(workers int) *pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &pool{jobs: make([]chan job, workers)}
	for w := range p.jobs {
		ch := make(chan job)
		p.jobs[w] = ch
		go func() {
			for j := range ch {
				for i := j.lo; i < j.hi; i++ {
					j.fn(i)
				}
				p.wg.Done()
			}
		}()
	}
	return p
}

// run calls fn for every index in [0, n) and waits for all of them.
func (p *pool) run(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if n == 1 {
		fn(0)
		return
	}
	w := min(len(p.jobs), n)
	per := (n + w - 1) / w
	for k := range w {
		lo := k * per
		if lo >= n {
			break
		}
		p.wg.Add(1)
		p.jobs[k] <- job{lo: lo, hi: min(lo+per, n), fn: fn}
	}
	p.wg.Wait()
}

func (p *pool) close() {
	p.once.Do(func() {
		for _, ch := range p.jobs {
			close(ch)
		}
	})
}
