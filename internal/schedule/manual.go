package schedule

import (
	"sync"
	"time"
)

// ManualClock hands out tickers that only fire when Tick is called.
type ManualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func NewManualClock() *ManualClock { return &ManualClock{} }

func (m *ManualClock) NewTicker(d time.Duration) Ticker {
	t := &manualTicker{c: make(chan time.Time, 1), interval: d}
	m.mu.Lock()
	m.tickers = append(m.tickers, t)
	m.mu.Unlock()
	return t
}

// Tick fires every ticker that has not been stopped and reports how many fired.
func (m *ManualClock) Tick() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	live := m.tickers[:0]
	for _, t := range m.tickers {
		if t.stopped() {
			continue
		}
		live = append(live, t)
		select {
		case t.c <- time.Now():
			n++
		default:
		}
	}
	m.tickers = live
	return n
}

// Live is the number of tickers that have not been stopped.
func (m *ManualClock) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

// LastInterval is the period of the most recently created ticker.
func (m *ManualClock) LastInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return 0
	}
	return m.tickers[len(m.tickers)-1].interval
}

type manualTicker struct {
	c        chan time.Time
	interval time.Duration

	mu   sync.Mutex
	done bool
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

func (t *manualTicker) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
