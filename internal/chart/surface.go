package chart

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"lifedash/internal/models"
)

var (
	ErrMountBusy = errors.New("chart: mount already holds a live chart")
	ErrDestroyed = errors.New("chart: instance destroyed")
)

type Kind string

const (
	KindMap Kind = "map"
	KindBar Kind = "bar"
)

type EventType string

const (
	EventCreated   EventType = "created"
	EventDestroyed EventType = "destroyed"
	EventRedrawn   EventType = "redrawn"
	EventReflowed  EventType = "reflowed"
)

// Event reports a lifecycle step of one chart instance.
type Event struct {
	Type     EventType `json:"type"`
	Key      string    `json:"key"`
	Kind     Kind      `json:"kind"`
	Revision uint64    `json:"revision"`
}

// Surface owns every mounted chart. One live instance per mount key.
type Surface struct {
	mu     sync.Mutex
	mounts map[string]instance
	rev    uint64
	subs   []func(Event)
}

type instance interface {
	kind() Kind
	snapshot() any
	revision() uint64
	setRevision(uint64)
}

func NewSurface() *Surface {
	return &Surface{mounts: make(map[string]instance)}
}

// Subscribe registers fn for every future event. fn runs synchronously on
// the goroutine that caused the event and must not block.
func (s *Surface) Subscribe(fn func(Event)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Surface) emit(ev Event) {
	s.mu.Lock()
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Live is the number of instances that have not been destroyed.
func (s *Surface) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mounts)
}

// Snapshot returns the last drawn options of the chart on key.
func (s *Surface) Snapshot(key string) (opts any, kind Kind, rev uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.mounts[key]
	if !ok {
		return nil, "", 0, false
	}
	return inst.snapshot(), inst.kind(), inst.revision(), true
}

func (s *Surface) mount(key string, inst instance) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.mounts[key]; busy {
		return 0, fmt.Errorf("%w: %s", ErrMountBusy, key)
	}
	s.mounts[key] = inst
	s.rev++
	inst.setRevision(s.rev)
	return s.rev, nil
}

// NewMapChart renders a choropleth on key. The mount must be free.
func (s *Surface) NewMapChart(key string, opts MapOptions) (*MapChart, error) {
	if err := ValidateMap(opts); err != nil {
		return nil, err
	}
	m := &MapChart{s: s, key: key, opts: opts}
	rev, err := s.mount(key, m)
	if err != nil {
		return nil, err
	}
	s.emit(Event{Type: EventCreated, Key: key, Kind: KindMap, Revision: rev})
	return m, nil
}

// NewBarChart renders a bar chart on key. The mount must be free.
func (s *Surface) NewBarChart(key string, opts BarOptions) (*BarChart, error) {
	if err := validateBar(opts); err != nil {
		return nil, err
	}
	b := &BarChart{s: s, key: key, drawn: opts.clone(), pending: opts.clone()}
	rev, err := s.mount(key, b)
	if err != nil {
		return nil, err
	}
	s.emit(Event{Type: EventCreated, Key: key, Kind: KindBar, Revision: rev})
	return b, nil
}

type MapChart struct {
	s         *Surface
	key       string
	opts      MapOptions
	rev       uint64
	reflows   int
	destroyed bool
}

func (m *MapChart) kind() Kind           { return KindMap }
func (m *MapChart) snapshot() any        { return m.opts }
func (m *MapChart) revision() uint64     { return m.rev }
func (m *MapChart) setRevision(r uint64) { m.rev = r }

func (m *MapChart) Key() string { return m.key }

func (m *MapChart) Options() MapOptions {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.opts
}

func (m *MapChart) Revision() uint64 {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.rev
}

func (m *MapChart) Reflows() int {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.reflows
}

// Destroy frees the mount. Calling it twice is a no-op.
func (m *MapChart) Destroy() {
	m.s.mu.Lock()
	if m.destroyed {
		m.s.mu.Unlock()
		return
	}
	m.destroyed = true
	delete(m.s.mounts, m.key)
	rev := m.rev
	m.s.mu.Unlock()
	m.s.emit(Event{Type: EventDestroyed, Key: m.key, Kind: KindMap, Revision: rev})
}

// Reflow asks the client to recompute the layout of a chart whose container became visible.
func (m *MapChart) Reflow() {
	m.s.mu.Lock()
	if m.destroyed {
		m.s.mu.Unlock()
		return
	}
	m.reflows++
	rev := m.rev
	m.s.mu.Unlock()
	m.s.emit(Event{Type: EventReflowed, Key: m.key, Kind: KindMap, Revision: rev})
}

// BarChart is updated in place. Changes made with redraw=false stay pending
// until Redraw publishes them.
type BarChart struct {
	s         *Surface
	key       string
	drawn     BarOptions
	pending   BarOptions
	dirty     bool
	rev       uint64
	reflows   int
	destroyed bool
}

func (b *BarChart) kind() Kind           { return KindBar }
func (b *BarChart) snapshot() any        { return b.drawn }
func (b *BarChart) revision() uint64     { return b.rev }
func (b *BarChart) setRevision(r uint64) { b.rev = r }

func (b *BarChart) Key() string { return b.key }

func (b *BarChart) Options() BarOptions {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return b.drawn.clone()
}

func (b *BarChart) Revision() uint64 {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return b.rev
}

func (b *BarChart) Reflows() int {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return b.reflows
}

// UpdateSeries replaces the first series' name and data.
func (b *BarChart) UpdateSeries(name string, data []models.BarPoint, redraw bool) error {
	b.s.mu.Lock()
	if b.destroyed {
		b.s.mu.Unlock()
		return ErrDestroyed
	}
	b.pending.Series[0].Name = name
	b.pending.Series[0].Data = append([]models.BarPoint(nil), data...)
	b.dirty = true
	b.s.mu.Unlock()
	if redraw {
		return b.Redraw()
	}
	return nil
}

func (b *BarChart) SetCategories(cats []string, redraw bool) error {
	b.s.mu.Lock()
	if b.destroyed {
		b.s.mu.Unlock()
		return ErrDestroyed
	}
	b.pending.XAxis.Categories = append([]string(nil), cats...)
	b.dirty = true
	b.s.mu.Unlock()
	if redraw {
		return b.Redraw()
	}
	return nil
}

// Redraw publishes pending changes. Invalid pending state is discarded and
// the previously drawn options stay in place.
func (b *BarChart) Redraw() error {
	b.s.mu.Lock()
	if b.destroyed {
		b.s.mu.Unlock()
		return ErrDestroyed
	}
	if !b.dirty {
		b.s.mu.Unlock()
		return nil
	}
	if err := validateBar(b.pending); err != nil {
		b.pending = b.drawn.clone()
		b.dirty = false
		b.s.mu.Unlock()
		return err
	}
	b.drawn = b.pending.clone()
	b.dirty = false
	b.s.rev++
	b.rev = b.s.rev
	rev := b.rev
	b.s.mu.Unlock()
	b.s.emit(Event{Type: EventRedrawn, Key: b.key, Kind: KindBar, Revision: rev})
	return nil
}

func (b *BarChart) Reflow() {
	b.s.mu.Lock()
	if b.destroyed {
		b.s.mu.Unlock()
		return
	}
	b.reflows++
	rev := b.rev
	b.s.mu.Unlock()
	b.s.emit(Event{Type: EventReflowed, Key: b.key, Kind: KindBar, Revision: rev})
}

func (b *BarChart) Destroy() {
	b.s.mu.Lock()
	if b.destroyed {
		b.s.mu.Unlock()
		return
	}
	b.destroyed = true
	delete(b.s.mounts, b.key)
	rev := b.rev
	b.s.mu.Unlock()
	b.s.emit(Event{Type: EventDestroyed, Key: b.key, Kind: KindBar, Revision: rev})
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ValidateMap reports whether o can be drawn.
func ValidateMap(o MapOptions) error {
	if len(o.Series) == 0 {
		return errors.New("chart: map has no series")
	}
	for _, s := range o.Series {
		for _, p := range s.Data {
			if !finite(p.Value) {
				return fmt.Errorf("chart: region %s has non-finite value", p.MOI)
			}
		}
	}
	return nil
}

func validateBar(o BarOptions) error {
	if len(o.Series) == 0 {
		return errors.New("chart: bar chart has no series")
	}
	for _, s := range o.Series {
		for _, p := range s.Data {
			if !finite(p.Y) || !finite(p.SD) {
				return fmt.Errorf("chart: bar %q has non-finite value", p.Name)
			}
		}
	}
	return nil
}
