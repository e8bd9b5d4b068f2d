// Package schedule runs at most one recurring task at a time.
package schedule

import (
	"sync"
	"time"
)

// Ticker is the subset of *time.Ticker the scheduler needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type RealClock struct{}

func (RealClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Scheduler owns a single recurring task handle. Starting a task always
// cancels the previous one, so two tasks can never be live together.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	task   *task
	nextID uint64
}

type task struct {
	id     uint64
	ticker Ticker
	stop   chan struct{}
}

func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{clock: clock}
}

// Start cancels any running task and begins calling fn every interval.
// fn runs on the scheduler's goroutine and receives the task id; ids never repeat.
func (s *Scheduler) Start(interval time.Duration, fn func(id uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.nextID++
	t := &task{id: s.nextID, ticker: s.clock.NewTicker(interval), stop: make(chan struct{})}
	s.task = t

	go func() {
		for {
			select {
			case <-t.stop:
				return
			case <-t.ticker.C():
				select {
				case <-t.stop:
					return
				default:
				}
				fn(t.id)
			}
		}
	}()
	return t.id
}

// Stop cancels the running task, if any. It does not wait for an in-flight
// callback, so it is safe to call from inside fn.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Scheduler) stopLocked() {
	if s.task == nil {
		return
	}
	s.task.ticker.Stop()
	close(s.task.stop)
	s.task = nil
}

// Active is the number of live tasks: 0 or 1.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == nil {
		return 0
	}
	return 1
}

// Current returns the id of the live task, or 0.
func (s *Scheduler) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == nil {
		return 0
	}
	return s.task.id
}
