package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"lifedash/internal/models"
)

const geoFixture = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"MOI":"10002010"},"geometry":null},
{"type":"Feature","properties":{"MOI":10002020},"geometry":null}
]}`

const statsFixture = `[
{"YEAR":2000,"SEX":1,"MOI":"10002010","County_Township_ZH":"宜蘭縣宜蘭市","e0_mean":74.5,"e0_sd":1.2},
{"YEAR":2000,"SEX":2,"MOI":"10002010","County_Township_ZH":"宜蘭縣宜蘭市","e0_mean":80.1,"e0_sd":1.1},
{"YEAR":2001,"SEX":1,"MOI":10002020,"County_Township_ZH":"宜蘭縣羅東鎮","e0_mean":75.0,"e0_sd":0.9},
{"YEAR":2001,"SEX":1,"MOI":"10002030","County_Township_ZH":"宜蘭縣蘇澳鎮","e0_mean":73.0,"e0_sd":2.0}
]`

func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}

func TestLoadDatasetFiles(t *testing.T) {
	geo := writeTemp(t, "town_*.geojson", geoFixture)
	stats := writeTemp(t, "le_*.json", statsFixture)

	ds, err := LoadDataset(context.Background(), geo, stats, nil)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if ds.Store.Len() != 4 {
		t.Fatalf("Expected 4 rows, got %d", ds.Store.Len())
	}
	if ds.Boundaries.Len() != 2 {
		t.Errorf("Expected 2 features, got %d", ds.Boundaries.Len())
	}
	if !ds.Boundaries.Has("10002020") {
		t.Error("numeric MOI in geometry should be indexed as a string")
	}
	if got := ds.Unmatched(); got != 1 {
		t.Errorf("Expected 1 unmatched region, got %d", got)
	}
	if string(ds.Boundaries.Raw) != geoFixture {
		t.Error("geometry document should be kept verbatim")
	}

	r := ds.Store.Record(2)
	if r.MOI != "10002020" || r.Sex != models.Male || r.Year != 2001 {
		t.Errorf("Row 2 decoded wrong: %+v", r)
	}
}

func TestLoadDatasetHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/TWbord_town.geojson":
			w.Write([]byte(geoFixture))
		case "/data/LEsmoothed.json":
			w.Write([]byte(statsFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ds, err := LoadDataset(context.Background(), srv.URL+"/data/TWbord_town.geojson", srv.URL+"/data/LEsmoothed.json", srv.Client())
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if ds.Store.Len() != 4 {
		t.Errorf("Expected 4 rows, got %d", ds.Store.Len())
	}
}

func TestLoadDatasetFailsWhenEitherFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/geo" {
			w.Write([]byte(geoFixture))
			return
		}
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := LoadDataset(context.Background(), srv.URL+"/geo", srv.URL+"/stats", srv.Client())
	var dle *DataLoadError
	if !errors.As(err, &dle) {
		t.Fatalf("Expected DataLoadError, got %v", err)
	}
	if dle.Resource != srv.URL+"/stats" {
		t.Errorf("Expected failing resource to be stats, got %s", dle.Resource)
	}

	stats := writeTemp(t, "le_*.json", statsFixture)
	_, err = LoadDataset(context.Background(), "/nonexistent/town.geojson", stats, nil)
	if !errors.As(err, &dle) {
		t.Fatalf("Expected DataLoadError for missing file, got %v", err)
	}
}

func TestLoadDatasetBadShape(t *testing.T) {
	geo := writeTemp(t, "town_*.geojson", `{"type":"Topology"}`)
	stats := writeTemp(t, "le_*.json", statsFixture)

	_, err := LoadDataset(context.Background(), geo, stats, nil)
	var dle *DataLoadError
	if !errors.As(err, &dle) || dle.Resource != geo {
		t.Fatalf("Expected geometry DataLoadError, got %v", err)
	}
}

func TestColumnStoreYearRange(t *testing.T) {
	cs := NewColumnStore([]models.Record{
		{Year: 2005}, {Year: 2001}, {Year: 2010}, {Year: 2001},
	})
	min, max, ok := cs.YearRange()
	if !ok || min != 2001 || max != 2010 {
		t.Errorf("YearRange = %d, %d, %v", min, max, ok)
	}
	if cs.YearCount(2001) != 2 {
		t.Errorf("Expected 2 rows in 2001, got %d", cs.YearCount(2001))
	}

	empty := NewColumnStore(nil)
	if _, _, ok := empty.YearRange(); ok {
		t.Error("empty store should report no range")
	}
}
