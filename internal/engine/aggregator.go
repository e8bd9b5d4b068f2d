package engine

import (
	"runtime"
	"sort"
	"sync"

	"lifedash/internal/models"
)

// RankSize is how many townships the top/bottom bar charts show.
const RankSize = 10

// Aggregate slices the store down to one year and derives every chart input.
func Aggregate(cs *ColumnStore, year int) *models.YearFrame {
	f := &models.YearFrame{Year: year}
	for _, sex := range models.Sexes {
		*f.For(sex) = sexFrame(cs.Rows(year, sex))
	}
	return f
}

func sexFrame(recs []models.Record) models.SexFrame {
	sf := models.SexFrame{
		Records: recs,
		Mean:    make([]models.MapPoint, len(recs)),
		SD:      make([]models.MapPoint, len(recs)),
	}
	for i, r := range recs {
		sf.Mean[i] = models.MapPoint{MOI: r.MOI, Value: r.Mean, Name: r.Name}
		sf.SD[i] = models.MapPoint{MOI: r.MOI, Value: r.SD, Name: r.Name}
	}
	sf.Top = Rank(recs, true, RankSize)
	sf.Bottom = Rank(recs, false, RankSize)
	return sf
}

// Rank returns up to n records ordered by mean. Ties keep collection order.
func Rank(recs []models.Record, desc bool, n int) []models.Record {
	sorted := make([]models.Record, len(recs))
	copy(sorted, recs)
	if desc {
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Mean > sorted[j].Mean })
	} else {
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Mean < sorted[j].Mean })
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// FrameCache holds precomputed frames. Frames are shared and must be treated as read-only.
type FrameCache struct {
	cs     *ColumnStore
	mu     sync.RWMutex
	frames map[int]*models.YearFrame
}

func NewFrameCache(cs *ColumnStore) *FrameCache {
	return &FrameCache{cs: cs, frames: make(map[int]*models.YearFrame)}
}

// Precompute aggregates every year in [min, max] across NumCPU workers.
func (fc *FrameCache) Precompute(min, max int) {
	if max < min {
		return
	}
	numWorkers := runtime.NumCPU()
	years := make(chan int)
	results := make(chan *models.YearFrame, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range years {
				results <- Aggregate(fc.cs, y)
			}
		}()
	}
	go func() {
		for y := min; y <= max; y++ {
			years <- y
		}
		close(years)
	}()
	go func() { wg.Wait(); close(results) }()

	local := make(map[int]*models.YearFrame, max-min+1)
	for f := range results {
		local[f.Year] = f
	}

	fc.mu.Lock()
	for y, f := range local {
		fc.frames[y] = f
	}
	fc.mu.Unlock()
}

// Frame returns the cached frame for year, aggregating on a miss.
func (fc *FrameCache) Frame(year int) *models.YearFrame {
	fc.mu.RLock()
	f, ok := fc.frames[year]
	fc.mu.RUnlock()
	if ok {
		return f
	}
	f = Aggregate(fc.cs, year)
	fc.mu.Lock()
	fc.frames[year] = f
	fc.mu.Unlock()
	return f
}

func (fc *FrameCache) Len() int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return len(fc.frames)
}
