package evolve

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum job count dispatched to workers. Below
// it, running inline is faster than the channel round trip.
const parallelThreshold = 2

// workChunk is a half-open range of job indices for one worker.
type workChunk struct {
	start, end int
	fn         func(i int)
}

// workerPool runs indexed jobs on persistent goroutines. Results are written
// by index, so the outcome never depends on scheduling.
type workerPool struct {
	numWorkers int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newWorkerPool(workers int) *workerPool {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &workerPool{numWorkers: workers}
}

// start launches the workers if they are not running.
func (p *workerPool) start() {
	if p.running {
		return
	}
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			for i := chunk.start; i < chunk.end; i++ {
				chunk.fn(i)
			}
			p.doneChan <- struct{}{}
		}
	}
}

// run calls fn(i) for every i in [0, n) and returns when all calls are done.
// fn must only write state owned by index i.
func (p *workerPool) run(n int, fn func(i int)) {
	if n < parallelThreshold || p.numWorkers == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	p.start()

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end, fn: fn}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}
