// Package dashboard owns the chart instances, the selected year, playback
// and the active tab. Every mutation goes through a Controller.
package dashboard

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lifedash/internal/chart"
	"lifedash/internal/metrics"
	"lifedash/internal/models"
	"lifedash/internal/schedule"
)

// FrameSource yields the chart inputs for a year.
type FrameSource interface {
	Frame(year int) *models.YearFrame
}

type Options struct {
	MinYear     int
	MaxYear     int
	InitialYear int
	Interval    time.Duration
	// Geometry is the map name the client binds boundary data under.
	Geometry string
	Layout   Layout
	Logger   *slog.Logger
}

// State is a point-in-time view of the interactive state.
type State struct {
	Year    int    `json:"year"`
	MinYear int    `json:"min_year"`
	MaxYear int    `json:"max_year"`
	Playing bool   `json:"playing"`
	Tab     TabKey `json:"tab"`
	Ticks   []int  `json:"ticks"`
}

type Controller struct {
	frames  FrameSource
	surface *chart.Surface
	sched   *schedule.Scheduler
	opts    Options
	log     *slog.Logger

	// pubMu orders state delivery; it is acquired while holding mu.
	pubMu sync.Mutex

	mu      sync.Mutex
	year    int
	playing bool
	task    uint64
	tab     TabKey
	maps    map[ChartKey]*chart.MapChart // absent until first render
	bars    map[ChartKey]*chart.BarChart
	subs    []func(State)
}

// New mounts the four bar charts, which live as long as the controller.
// Map charts are created by the first UpdateCharts.
func New(frames FrameSource, surface *chart.Surface, sched *schedule.Scheduler, opts Options) (*Controller, error) {
	if opts.MaxYear < opts.MinYear {
		return nil, fmt.Errorf("dashboard: year range [%d, %d] is empty", opts.MinYear, opts.MaxYear)
	}
	if opts.Layout.mounts == nil {
		return nil, errors.New("dashboard: layout not resolved")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Controller{
		frames:  frames,
		surface: surface,
		sched:   sched,
		opts:    opts,
		log:     opts.Logger.With("component", "dashboard"),
		year:    clamp(opts.InitialYear, opts.MinYear, opts.MaxYear),
		tab:     TabMeanMaps,
		maps:    make(map[ChartKey]*chart.MapChart, len(MapKeys)),
		bars:    make(map[ChartKey]*chart.BarChart, len(BarKeys)),
	}
	for _, k := range BarKeys {
		b, err := surface.NewBarChart(opts.Layout.Mount(k), barSpecs[k].options())
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("mount %s: %w", k, err)
		}
		c.bars[k] = b
	}
	metrics.LiveCharts.Set(float64(surface.Live()))
	return c, nil
}

// Init draws the initial year and shows the mean maps tab.
func (c *Controller) Init() error {
	c.mu.Lock()
	err := c.updateLocked(c.year)
	c.showTabLocked(TabMeanMaps)
	st := c.stateLocked()
	c.unlockAndPublish(st)
	return err
}

// Subscribe registers fn to receive the state after every change. fn must not
// call back into the controller.
func (c *Controller) Subscribe(fn func(State)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// unlockAndPublish releases c.mu and hands st to the subscribers. pubMu is
// taken before c.mu is released, so states are delivered in the order they
// were taken.
func (c *Controller) unlockAndPublish(st State) {
	subs := append([]func(State){}, c.subs...)
	c.pubMu.Lock()
	c.mu.Unlock()
	defer c.pubMu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{
		Year:    c.year,
		MinYear: c.opts.MinYear,
		MaxYear: c.opts.MaxYear,
		Playing: c.playing,
		Tab:     c.tab,
		Ticks:   Ticks(c.opts.MinYear, c.opts.MaxYear),
	}
}

func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Mount returns the element id chart k renders into.
func (c *Controller) Mount(k ChartKey) string { return c.opts.Layout.Mount(k) }

func (c *Controller) Layout() Layout { return c.opts.Layout }

// UpdateCharts rebinds every chart to year. Map charts are destroyed and
// recreated; bar charts are updated in place and redrawn once each.
// The year is not checked against the slider bounds.
func (c *Controller) UpdateCharts(year int) error {
	c.mu.Lock()
	err := c.updateLocked(year)
	c.mu.Unlock()
	return err
}

func (c *Controller) updateLocked(year int) error {
	f := c.frames.Frame(year)
	var errs []error

	for _, k := range MapKeys {
		spec := mapSpecs[k]
		opts := spec.options(c.opts.Geometry, year, spec.data(f))
		if err := chart.ValidateMap(opts); err != nil {
			errs = append(errs, c.renderFailed(k, year, err))
			continue
		}
		if old := c.maps[k]; old != nil {
			old.Destroy()
			delete(c.maps, k)
		}
		m, err := c.surface.NewMapChart(c.opts.Layout.Mount(k), opts)
		if err != nil {
			errs = append(errs, c.renderFailed(k, year, err))
			continue
		}
		c.maps[k] = m
	}

	for _, k := range BarKeys {
		spec := barSpecs[k]
		recs := spec.ranked(f)
		b := c.bars[k]
		if err := b.UpdateSeries(fmt.Sprintf("%s Life Expectancy (%d)", spec.sex, year), models.BarPoints(recs), false); err != nil {
			errs = append(errs, c.renderFailed(k, year, err))
			continue
		}
		if err := b.SetCategories(models.Names(recs), false); err != nil {
			errs = append(errs, c.renderFailed(k, year, err))
		}
	}
	for _, k := range BarKeys {
		if err := c.bars[k].Redraw(); err != nil {
			errs = append(errs, c.renderFailed(k, year, err))
		}
	}

	metrics.ChartUpdatesTotal.Inc()
	metrics.LiveCharts.Set(float64(c.surface.Live()))
	return errors.Join(errs...)
}

func (c *Controller) renderFailed(k ChartKey, year int, err error) error {
	metrics.RenderErrorsTotal.WithLabelValues(string(k)).Inc()
	c.log.Error("render_error", "chart", k, "year", year, "err", err)
	return &RenderError{Chart: k, Year: year, Err: err}
}

// SetYear handles slider input: it stops playback, then selects year,
// clamped to the slider bounds.
func (c *Controller) SetYear(year int) error {
	c.mu.Lock()
	c.pauseLocked()
	c.year = clamp(year, c.opts.MinYear, c.opts.MaxYear)
	err := c.updateLocked(c.year)
	st := c.stateLocked()
	c.unlockAndPublish(st)
	return err
}

// Play starts playback. At the last year it rewinds to the first before
// the timer starts. Playing again while playing is a no-op.
func (c *Controller) Play() error {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return nil
	}
	var err error
	if c.year == c.opts.MaxYear {
		c.year = c.opts.MinYear
		err = c.updateLocked(c.year)
	}
	c.playing = true
	c.task = c.sched.Start(c.opts.Interval, c.onTick)
	c.log.Debug("playback_started", "year", c.year)
	st := c.stateLocked()
	c.unlockAndPublish(st)
	return err
}

func (c *Controller) Pause() {
	c.mu.Lock()
	c.pauseLocked()
	st := c.stateLocked()
	c.unlockAndPublish(st)
}

// TogglePlay is the play/pause button.
func (c *Controller) TogglePlay() error {
	if c.Playing() {
		c.Pause()
		return nil
	}
	return c.Play()
}

func (c *Controller) pauseLocked() {
	if !c.playing {
		return
	}
	c.playing = false
	c.task = 0
	c.sched.Stop()
	c.log.Debug("playback_paused", "year", c.year)
}

// Reset pauses and returns to the first year whatever the current state.
func (c *Controller) Reset() error {
	c.mu.Lock()
	c.pauseLocked()
	c.year = c.opts.MinYear
	err := c.updateLocked(c.year)
	st := c.stateLocked()
	c.unlockAndPublish(st)
	return err
}

func (c *Controller) onTick(task uint64) {
	c.mu.Lock()
	if !c.playing || task != c.task {
		// tick from a task that was cancelled while it waited for the lock
		c.mu.Unlock()
		return
	}
	err := c.tickLocked()
	st := c.stateLocked()
	if err != nil {
		c.log.Warn("tick_render_incomplete", "year", st.Year, "err", err)
	}
	c.unlockAndPublish(st)
}

// Tick performs one playback step. The step that reaches the last year
// still renders it; only the following step pauses.
func (c *Controller) Tick() error {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return nil
	}
	err := c.tickLocked()
	st := c.stateLocked()
	c.unlockAndPublish(st)
	return err
}

func (c *Controller) tickLocked() error {
	if c.year < c.opts.MaxYear {
		c.year++
		metrics.PlaybackTicksTotal.Inc()
		return c.updateLocked(c.year)
	}
	c.pauseLocked()
	return nil
}

// ShowTab makes tab the only visible tab and reflows the charts inside it.
func (c *Controller) ShowTab(tab TabKey) error {
	if _, ok := TabCharts[tab]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}
	c.mu.Lock()
	c.showTabLocked(tab)
	st := c.stateLocked()
	c.unlockAndPublish(st)
	return nil
}

func (c *Controller) showTabLocked(tab TabKey) {
	c.tab = tab
	for _, k := range TabCharts[tab] {
		if m := c.maps[k]; m != nil {
			m.Reflow()
		}
		if b := c.bars[k]; b != nil {
			b.Reflow()
		}
	}
}

// Close stops playback and destroys every chart.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked()
	for k, m := range c.maps {
		m.Destroy()
		delete(c.maps, k)
	}
	for k, b := range c.bars {
		b.Destroy()
		delete(c.bars, k)
	}
	metrics.LiveCharts.Set(float64(c.surface.Live()))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
