// Package worker provides the cooperative-goroutine-group primitive used
// by the long-lived components in this module (Session, Dispatcher). It
// reimplements, in spirit, the katzenpost
// core/worker.Worker contract: embed it, launch loops with Go, and every
// loop selects on HaltCh() to know when to stop.
package worker

import "sync"

// Worker is embedded by types that run one or more background goroutines
// and need a single coordinated shutdown signal for all of them.
type Worker struct {
	haltOnce sync.Once
	haltCh   chan struct{}
	wg       sync.WaitGroup

	initOnce sync.Once
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}

// HaltCh returns the channel that is closed when Halt is called. Loops
// launched via Go should select on this to detect shutdown.
func (w *Worker) HaltCh() chan struct{} {
	w.init()
	return w.haltCh
}

// Go launches fn in a new goroutine tracked by this Worker's WaitGroup.
func (w *Worker) Go(fn func()) {
	w.init()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// Halt signals all goroutines launched via Go to stop, by closing HaltCh.
// It is safe to call Halt more than once.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltCh)
	})
}

// Wait blocks until every goroutine launched via Go has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}
