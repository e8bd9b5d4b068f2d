package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"lifedash/internal/chart"
	"lifedash/internal/dashboard"
	"lifedash/internal/engine"
	"lifedash/internal/models"
	"lifedash/internal/schedule"
)

const regions = 12

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtureDataset(t *testing.T) *engine.Dataset {
	t.Helper()
	var features []string
	var recs []models.Record
	for i := 0; i < regions; i++ {
		moi := fmt.Sprintf("%08d", 10002000+i)
		features = append(features, fmt.Sprintf(`{"type":"Feature","properties":{"MOI":%q},"geometry":null}`, moi))
		for y := 2000; y <= 2002; y++ {
			for _, sex := range models.Sexes {
				recs = append(recs, models.Record{
					Year: y,
					Sex:  sex,
					MOI:  models.RegionID(moi),
					Name: fmt.Sprintf("T%02d", i),
					Mean: 70 + float64(i) + float64(sex)*3,
					SD:   float64(i%5) / 2,
				})
			}
		}
	}
	b, err := engine.ParseBoundaries([]byte(`{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`))
	if err != nil {
		t.Fatal(err)
	}
	return &engine.Dataset{Boundaries: b, Store: engine.NewColumnStore(recs)}
}

type server struct {
	e     *echo.Echo
	h     *Handler
	app   *App
	clock *schedule.ManualClock
}

func newServer(t *testing.T, loaded bool, rateLimit float64) *server {
	t.Helper()
	log := quietLogger()
	s := &server{e: NewServer(log), h: NewHandler(nil, log)}
	s.h.RegisterRoutes(s.e, rateLimit)
	if !loaded {
		return s
	}

	ds := fixtureDataset(t)
	frames := engine.NewFrameCache(ds.Store)
	layout, err := dashboard.ResolveLayout(dashboard.DefaultMounts())
	if err != nil {
		t.Fatal(err)
	}
	s.clock = schedule.NewManualClock()
	surface := chart.NewSurface()
	ctl, err := dashboard.New(frames, surface, schedule.New(s.clock), dashboard.Options{
		MinYear:     2000,
		MaxYear:     2002,
		InitialYear: 2000,
		Interval:    time.Second,
		Geometry:    "TWbord_town",
		Layout:      layout,
		Logger:      log,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctl.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(ctl.Close)

	s.app = &App{
		Controller:   ctl,
		Dataset:      ds,
		Frames:       frames,
		Surface:      surface,
		GeometryName: "TWbord_town",
		ThumbSize:    20,
	}
	s.h.SetApp(s.app)
	return s
}

func (s *server) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func TestUnavailableUntilLoaded(t *testing.T) {
	s := newServer(t, false, 0)
	for _, path := range []string{"/api/state", "/api/charts", "/api/layout"} {
		if rec := s.do(http.MethodGet, path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, rec.Code)
		}
	}
	if rec := s.do(http.MethodPost, "/api/play", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("play: expected 503, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/", ""); rec.Code != http.StatusOK {
		t.Errorf("index should be served while loading, got %d", rec.Code)
	}
}

func TestGetState(t *testing.T) {
	s := newServer(t, true, 0)

	st := decodeState(t, s.do(http.MethodGet, "/api/state", ""))
	if st.Year != 2000 || st.MinYear != 2000 || st.MaxYear != 2002 || st.Playing {
		t.Errorf("state = %+v", st.State)
	}
	if st.Tab != dashboard.TabMeanMaps {
		t.Errorf("Expected initial tab %s, got %s", dashboard.TabMeanMaps, st.Tab)
	}
	if st.BubbleOffset != nil {
		t.Error("bubble offset needs a width")
	}

	st = decodeState(t, s.do(http.MethodGet, "/api/state?width=420", ""))
	if st.BubbleOffset == nil || *st.BubbleOffset != 10 {
		t.Errorf("bubble offset = %v, want 10", st.BubbleOffset)
	}

	for _, q := range []string{"width=wide", "width=-1", "width=NaN", "width=Inf", "width=420&thumb=-Inf", "width=420&thumb=nan"} {
		if rec := s.do(http.MethodGet, "/api/state?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestGetLayout(t *testing.T) {
	s := newServer(t, true, 0)
	rec := s.do(http.MethodGet, "/api/layout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var l layoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &l); err != nil {
		t.Fatal(err)
	}
	if len(l.Mounts) != 8 || len(l.TabOrder) != 3 || l.Geometry != "TWbord_town" {
		t.Errorf("layout = %+v", l)
	}
	if len(l.Tabs[dashboard.TabTopBottom]) != 4 {
		t.Errorf("top-bottom tab = %v", l.Tabs[dashboard.TabTopBottom])
	}
}

func TestChartsAndETag(t *testing.T) {
	s := newServer(t, true, 0)

	rec := s.do(http.MethodGet, "/api/charts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var docs []struct {
		Key  string `json:"key"`
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 8 {
		t.Fatalf("Expected 8 charts, got %d", len(docs))
	}

	rec = s.do(http.MethodGet, "/api/charts/LEtop10_male", "")
	tag := rec.Header().Get("ETag")
	if rec.Code != http.StatusOK || tag == "" {
		t.Fatalf("Expected 200 with ETag, got %d %q", rec.Code, tag)
	}
	if !strings.Contains(rec.Body.String(), "Top 10 Male Life Expectancy") {
		t.Errorf("unexpected chart document: %s", rec.Body.String())
	}
	if rec := s.do(http.MethodGet, "/api/charts/LEtop10_male", "", "If-None-Match", tag); rec.Code != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", rec.Code)
	}

	decodeState(t, s.do(http.MethodPost, "/api/year", `{"year":2001}`))
	rec = s.do(http.MethodGet, "/api/charts/LEtop10_male", "", "If-None-Match", tag)
	if rec.Code != http.StatusOK || rec.Header().Get("ETag") == tag {
		t.Errorf("redrawn chart should have a new ETag, got %d", rec.Code)
	}

	if rec := s.do(http.MethodGet, "/api/charts/LEmedian", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown chart, got %d", rec.Code)
	}
}

func TestControlEndpoints(t *testing.T) {
	s := newServer(t, true, 0)

	st := decodeState(t, s.do(http.MethodPost, "/api/year", `{"year":2001}`))
	if st.Year != 2001 {
		t.Errorf("Expected 2001, got %d", st.Year)
	}
	st = decodeState(t, s.do(http.MethodPost, "/api/year", `{"year":1990}`))
	if st.Year != 2000 {
		t.Errorf("slider input should clamp to 2000, got %d", st.Year)
	}

	st = decodeState(t, s.do(http.MethodPost, "/api/play", ""))
	if !st.Playing || s.clock.Live() != 1 {
		t.Errorf("play: playing=%v timers=%d", st.Playing, s.clock.Live())
	}
	st = decodeState(t, s.do(http.MethodPost, "/api/toggle", ""))
	if st.Playing || s.clock.Live() != 0 {
		t.Errorf("toggle: playing=%v timers=%d", st.Playing, s.clock.Live())
	}
	decodeState(t, s.do(http.MethodPost, "/api/play", ""))
	st = decodeState(t, s.do(http.MethodPost, "/api/pause", ""))
	if st.Playing || s.clock.Live() != 0 {
		t.Errorf("pause: playing=%v timers=%d", st.Playing, s.clock.Live())
	}

	decodeState(t, s.do(http.MethodPost, "/api/year", `{"year":2002}`))
	st = decodeState(t, s.do(http.MethodPost, "/api/reset", ""))
	if st.Year != 2000 || st.Playing {
		t.Errorf("reset: %+v", st.State)
	}

	st = decodeState(t, s.do(http.MethodPost, "/api/tab/topBottomSection", ""))
	if st.Tab != dashboard.TabTopBottom {
		t.Errorf("Expected tab %s, got %s", dashboard.TabTopBottom, st.Tab)
	}
	if rec := s.do(http.MethodPost, "/api/tab/otherSection", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown tab, got %d", rec.Code)
	}
	if got := s.app.Controller.State().Tab; got != dashboard.TabTopBottom {
		t.Errorf("unknown tab changed state to %s", got)
	}
}

func TestSetYearBadInput(t *testing.T) {
	s := newServer(t, true, 0)
	for _, body := range []string{`{}`, `{"year":"2001"}`, `{"year":`} {
		if rec := s.do(http.MethodPost, "/api/year", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, true, 1)
	if rec := s.do(http.MethodPost, "/api/pause", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/api/pause", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/state", ""); rec.Code != http.StatusOK {
		t.Errorf("reads are not limited, got %d", rec.Code)
	}
}

func TestChartPNG(t *testing.T) {
	s := newServer(t, true, 0)

	rec := s.do(http.MethodGet, "/api/charts/LEbottom10_female/png?width=400&height=300", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
	if rec := s.do(http.MethodGet, "/api/charts/LEmeanMap_male/png", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("map PNG: expected 400, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/charts/LEtop10_male/png?width=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("zero width: expected 400, got %d", rec.Code)
	}
}

func TestGetFrame(t *testing.T) {
	s := newServer(t, true, 0)

	rec := s.do(http.MethodGet, "/api/frames/2001", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var f models.YearFrame
	if err := json.Unmarshal(rec.Body.Bytes(), &f); err != nil {
		t.Fatal(err)
	}
	if f.Year != 2001 || len(f.Male.Records) != regions || len(f.Female.Top) != 10 {
		t.Errorf("frame year=%d male=%d top=%d", f.Year, len(f.Male.Records), len(f.Female.Top))
	}

	if rec := s.do(http.MethodGet, "/api/frames/1990", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for empty year, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/frames/latest", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad year, got %d", rec.Code)
	}
}

func TestGeometryAndExport(t *testing.T) {
	s := newServer(t, true, 0)

	rec := s.do(http.MethodGet, "/api/geometry", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "FeatureCollection") {
		t.Errorf("geometry: %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/export.arrow", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rec.Code)
	}
	r, err := ipc.NewReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("ipc.NewReader: %v", err)
	}
	defer r.Release()
	var rows int64
	for r.Next() {
		rows += r.Record().NumRows()
	}
	if want := int64(s.app.Dataset.Store.Len()); rows != want {
		t.Errorf("Expected %d exported rows, got %d", want, rows)
	}
}
