package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"lifedash/internal/models"
)

// DataLoadError means one of the two datasets could not be fetched or decoded.
// The dashboard cannot start without both.
type DataLoadError struct {
	Resource string
	Err      error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Resource, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// Boundaries is the township geometry document, kept verbatim for the map charts.
type Boundaries struct {
	Raw json.RawMessage
	ids map[models.RegionID]struct{}
}

func (b *Boundaries) Has(id models.RegionID) bool {
	_, ok := b.ids[id]
	return ok
}

func (b *Boundaries) Len() int { return len(b.ids) }

type Dataset struct {
	Boundaries *Boundaries
	Store      *ColumnStore
}

// Unmatched counts statistics regions with no boundary feature.
func (d *Dataset) Unmatched() int {
	n := 0
	for _, id := range d.Store.Regions() {
		if !d.Boundaries.Has(id) {
			n++
		}
	}
	return n
}

// LoadDataset fetches the geometry and statistics documents concurrently.
// Either failure cancels the other and is returned as a *DataLoadError.
func LoadDataset(ctx context.Context, geometrySrc, statisticsSrc string, client *http.Client) (*Dataset, error) {
	start := time.Now()
	if client == nil {
		client = http.DefaultClient
	}

	var (
		geoRaw   []byte
		statsRaw []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := fetch(gctx, client, geometrySrc)
		if err != nil {
			return &DataLoadError{Resource: geometrySrc, Err: err}
		}
		geoRaw = b
		return nil
	})
	g.Go(func() error {
		b, err := fetch(gctx, client, statisticsSrc)
		if err != nil {
			return &DataLoadError{Resource: statisticsSrc, Err: err}
		}
		statsRaw = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bounds, err := ParseBoundaries(geoRaw)
	if err != nil {
		return nil, &DataLoadError{Resource: geometrySrc, Err: err}
	}
	var recs []models.Record
	if err := json.Unmarshal(statsRaw, &recs); err != nil {
		return nil, &DataLoadError{Resource: statisticsSrc, Err: fmt.Errorf("decode statistics: %w", err)}
	}

	ds := &Dataset{Boundaries: bounds, Store: NewColumnStore(recs)}
	slog.Default().Info("dataset_loaded",
		"records", ds.Store.Len(),
		"regions", len(ds.Store.Regions()),
		"features", bounds.Len(),
		"unmatched_regions", ds.Unmatched(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

// ParseBoundaries indexes the MOI property of every feature in a GeoJSON
// FeatureCollection. The document itself is retained untouched.
func ParseBoundaries(raw []byte) (*Boundaries, error) {
	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties struct {
				MOI models.RegionID `json:"MOI"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	if !strings.EqualFold(doc.Type, "FeatureCollection") {
		return nil, fmt.Errorf("decode geometry: unexpected type %q", doc.Type)
	}
	b := &Boundaries{Raw: json.RawMessage(raw), ids: make(map[models.RegionID]struct{}, len(doc.Features))}
	for _, f := range doc.Features {
		if f.Properties.MOI != "" {
			b.ids[f.Properties.MOI] = struct{}{}
		}
	}
	return b, nil
}

func fetch(ctx context.Context, client *http.Client, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.ReadFile(src)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
