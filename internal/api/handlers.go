package api

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"lifedash/internal/chart"
	"lifedash/internal/dashboard"
	"lifedash/internal/engine"
)

const (
	appKey = "lifedash.app"

	defaultPNGWidth  = 800
	defaultPNGHeight = 500
	maxPNGSide       = 4096

	mimeArrowStream = "application/vnd.apache.arrow.stream"
)

// App is everything the handlers need once the dataset has loaded.
type App struct {
	Controller   *dashboard.Controller
	Dataset      *engine.Dataset
	Frames       *engine.FrameCache
	Surface      *chart.Surface
	GeometryName string
	ThumbSize    float64
}

type Handler struct {
	mu  sync.RWMutex
	app *App
	hub *Hub
	log *slog.Logger
}

// NewHandler starts with no data; /api answers 503 until SetApp.
func NewHandler(hub *Hub, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{hub: hub, log: log.With("component", "api")}
}

func (h *Handler) SetApp(a *App) {
	h.mu.Lock()
	h.app = a
	h.mu.Unlock()
}

func (h *Handler) current() *App {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.app
}

// RegisterRoutes mounts the API. rateLimit is per-client requests per
// second on the control endpoints; zero disables limiting.
func (h *Handler) RegisterRoutes(e *echo.Echo, rateLimit float64) {
	if h.hub != nil {
		e.GET("/api/ws", h.hub.Serve)
	}

	api := e.Group("/api", h.requireApp)
	api.GET("/layout", h.GetLayout)
	api.GET("/geometry", h.GetGeometry)
	api.GET("/state", h.GetState)
	api.GET("/charts", h.ListCharts)
	api.GET("/charts/:key", h.GetChart)
	api.GET("/charts/:key/png", h.GetChartPNG)
	api.GET("/frames/:year", h.GetFrame)
	api.GET("/export.arrow", h.ExportArrow)

	var mw []echo.MiddlewareFunc
	if rateLimit > 0 {
		mw = append(mw, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStore(rate.Limit(rateLimit)),
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many control requests")
			},
		}))
	}
	api.POST("/year", h.SetYear, mw...)
	api.POST("/play", h.Play, mw...)
	api.POST("/pause", h.Pause, mw...)
	api.POST("/toggle", h.Toggle, mw...)
	api.POST("/reset", h.Reset, mw...)
	api.POST("/tab/:key", h.ShowTab, mw...)
}

func (h *Handler) requireApp(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		a := h.current()
		if a == nil {
			c.Response().Header().Set("Retry-After", "1")
			return echo.NewHTTPError(http.StatusServiceUnavailable, "dataset is still loading")
		}
		c.Set(appKey, a)
		return next(c)
	}
}

func appFrom(c echo.Context) *App {
	return c.Get(appKey).(*App)
}

// --- READ HANDLERS ---

type layoutResponse struct {
	Geometry string                                    `json:"geometry"`
	Mounts   map[dashboard.ChartKey]string             `json:"mounts"`
	Tabs     map[dashboard.TabKey][]dashboard.ChartKey `json:"tabs"`
	TabOrder []dashboard.TabKey                        `json:"tab_order"`
}

func (h *Handler) GetLayout(c echo.Context) error {
	a := appFrom(c)
	return cachedJSON(c, layoutResponse{
		Geometry: a.GeometryName,
		Mounts:   a.Controller.Layout().Mounts(),
		Tabs:     dashboard.TabCharts,
		TabOrder: dashboard.Tabs,
	})
}

func (h *Handler) GetGeometry(c echo.Context) error {
	return cachedBlob(c, echo.MIMEApplicationJSON, appFrom(c).Dataset.Boundaries.Raw)
}

type stateResponse struct {
	dashboard.State
	BubbleOffset *float64 `json:"bubble_offset,omitempty"`
}

// GetState returns the interactive state. With ?width= it also positions
// the year bubble for a slider of that many pixels.
func (h *Handler) GetState(c echo.Context) error {
	a := appFrom(c)
	resp := stateResponse{State: a.Controller.State()}

	if w := c.QueryParam("width"); w != "" {
		width, err := strconv.ParseFloat(w, 64)
		if err != nil || !validSize(width) {
			return echo.NewHTTPError(http.StatusBadRequest, "width must be a non-negative number")
		}
		thumb := a.ThumbSize
		if t := c.QueryParam("thumb"); t != "" {
			if thumb, err = strconv.ParseFloat(t, 64); err != nil || !validSize(thumb) {
				return echo.NewHTTPError(http.StatusBadRequest, "thumb must be a non-negative number")
			}
		}
		off := dashboard.BubbleOffset(resp.Year, resp.MinYear, resp.MaxYear, width, thumb)
		resp.BubbleOffset = &off
	}
	return c.JSON(http.StatusOK, resp)
}

func validSize(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

type chartDoc struct {
	Key      dashboard.ChartKey `json:"key"`
	Mount    string             `json:"mount"`
	Kind     chart.Kind         `json:"kind"`
	Revision uint64             `json:"revision"`
	Options  any                `json:"options"`
}

func (h *Handler) snapshot(a *App, k dashboard.ChartKey) (chartDoc, bool) {
	mount := a.Controller.Mount(k)
	opts, kind, rev, ok := a.Surface.Snapshot(mount)
	if !ok {
		return chartDoc{}, false
	}
	return chartDoc{Key: k, Mount: mount, Kind: kind, Revision: rev, Options: opts}, true
}

// ListCharts returns every live chart in layout order.
func (h *Handler) ListCharts(c echo.Context) error {
	a := appFrom(c)
	docs := make([]chartDoc, 0, len(dashboard.ChartKeys))
	for _, k := range dashboard.ChartKeys {
		if d, ok := h.snapshot(a, k); ok {
			docs = append(docs, d)
		}
	}
	return cachedJSON(c, docs)
}

func (h *Handler) GetChart(c echo.Context) error {
	k, err := dashboard.ParseChartKey(c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	d, ok := h.snapshot(appFrom(c), k)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "chart "+string(k)+" is not rendered")
	}
	return cachedJSON(c, d)
}

// GetChartPNG renders a bar chart as it is currently drawn.
func (h *Handler) GetChartPNG(c echo.Context) error {
	k, err := dashboard.ParseChartKey(c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	d, ok := h.snapshot(appFrom(c), k)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "chart "+string(k)+" is not rendered")
	}
	opts, isBar := d.Options.(chart.BarOptions)
	if !isBar {
		return echo.NewHTTPError(http.StatusBadRequest, "only bar charts have a PNG rendering")
	}
	width := intParam(c, "width", defaultPNGWidth)
	height := intParam(c, "height", defaultPNGHeight)
	if width <= 0 || height <= 0 || width > maxPNGSide || height > maxPNGSide {
		return echo.NewHTTPError(http.StatusBadRequest, "width and height must be between 1 and 4096")
	}

	var buf bytes.Buffer
	if err := chart.RenderBarPNG(&buf, opts, width, height); err != nil {
		h.log.Error("png_render_error", "chart", k, "err", err)
		return err
	}
	return cachedBlob(c, "image/png", buf.Bytes())
}

func intParam(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// GetFrame returns the aggregated inputs of one year.
func (h *Handler) GetFrame(c echo.Context) error {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "year must be an integer")
	}
	a := appFrom(c)
	if a.Dataset.Store.YearCount(year) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no records for year "+strconv.Itoa(year))
	}
	return cachedJSON(c, a.Frames.Frame(year))
}

func (h *Handler) ExportArrow(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, mimeArrowStream)
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="life_expectancy.arrow"`)
	c.Response().WriteHeader(http.StatusOK)
	return engine.WriteArrow(c.Response(), appFrom(c).Dataset.Store)
}

// --- CONTROL HANDLERS ---

type yearRequest struct {
	Year *int `json:"year"`
}

func (h *Handler) SetYear(c echo.Context) error {
	var req yearRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Year == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "year is required")
	}
	return h.control(c, "set_year", func(ctl *dashboard.Controller) error {
		return ctl.SetYear(*req.Year)
	})
}

func (h *Handler) Play(c echo.Context) error {
	return h.control(c, "play", (*dashboard.Controller).Play)
}

func (h *Handler) Pause(c echo.Context) error {
	return h.control(c, "pause", func(ctl *dashboard.Controller) error {
		ctl.Pause()
		return nil
	})
}

func (h *Handler) Toggle(c echo.Context) error {
	return h.control(c, "toggle", (*dashboard.Controller).TogglePlay)
}

func (h *Handler) Reset(c echo.Context) error {
	return h.control(c, "reset", (*dashboard.Controller).Reset)
}

func (h *Handler) ShowTab(c echo.Context) error {
	tab, err := dashboard.ParseTab(c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return h.control(c, "show_tab", func(ctl *dashboard.Controller) error {
		return ctl.ShowTab(tab)
	})
}

// control runs op and answers with the resulting state. Render failures
// leave the affected charts as they were, so they are logged, not returned.
func (h *Handler) control(c echo.Context, name string, op func(*dashboard.Controller) error) error {
	ctl := appFrom(c).Controller
	if err := op(ctl); err != nil {
		var re *dashboard.RenderError
		if !errors.As(err, &re) {
			return err
		}
		h.log.Warn("control_render_incomplete", "op", name, "err", err)
	}
	return c.JSON(http.StatusOK, ctl.State())
}
