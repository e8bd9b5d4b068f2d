package engine

import (
	"lifedash/internal/models"
)

// ColumnStore holds the statistics table in Struct-of-Arrays format.
// Rows are never mutated after NewColumnStore returns.
type ColumnStore struct {
	// Data Columns (Flat Arrays)
	Years []int32
	Sexes []int8
	Means []float64
	SDs   []float64

	// Dictionary Encoded IDs (0..N)
	RegionIDs []int32
	NameIDs   []int32

	// Dictionaries (ID -> String)
	RegionDict []models.RegionID
	NameDict   []string

	// year -> row numbers, ascending (original collection order)
	byYear map[int32][]int32
}

func NewColumnStore(recs []models.Record) *ColumnStore {
	n := len(recs)
	cs := &ColumnStore{
		Years:     make([]int32, n),
		Sexes:     make([]int8, n),
		Means:     make([]float64, n),
		SDs:       make([]float64, n),
		RegionIDs: make([]int32, n),
		NameIDs:   make([]int32, n),
		byYear:    make(map[int32][]int32),
	}

	regMap := make(map[models.RegionID]int32)
	nameMap := make(map[string]int32)

	for i, r := range recs {
		cs.Years[i] = int32(r.Year)
		cs.Sexes[i] = int8(r.Sex)
		cs.Means[i] = r.Mean
		cs.SDs[i] = r.SD

		id, ok := regMap[r.MOI]
		if !ok {
			id = int32(len(cs.RegionDict))
			cs.RegionDict = append(cs.RegionDict, r.MOI)
			regMap[r.MOI] = id
		}
		cs.RegionIDs[i] = id

		nid, ok := nameMap[r.Name]
		if !ok {
			nid = int32(len(cs.NameDict))
			cs.NameDict = append(cs.NameDict, r.Name)
			nameMap[r.Name] = nid
		}
		cs.NameIDs[i] = nid

		cs.byYear[int32(r.Year)] = append(cs.byYear[int32(r.Year)], int32(i))
	}
	return cs
}

func (cs *ColumnStore) Len() int { return len(cs.Years) }

// Record rebuilds row i.
func (cs *ColumnStore) Record(i int) models.Record {
	return models.Record{
		Year: int(cs.Years[i]),
		Sex:  models.Sex(cs.Sexes[i]),
		MOI:  cs.RegionDict[cs.RegionIDs[i]],
		Name: cs.NameDict[cs.NameIDs[i]],
		Mean: cs.Means[i],
		SD:   cs.SDs[i],
	}
}

// Rows returns the records of one (year, sex) pair in collection order.
func (cs *ColumnStore) Rows(year int, sex models.Sex) []models.Record {
	idx := cs.byYear[int32(year)]
	out := make([]models.Record, 0, len(idx)/2+1)
	for _, i := range idx {
		if models.Sex(cs.Sexes[i]) == sex {
			out = append(out, cs.Record(int(i)))
		}
	}
	return out
}

// YearCount is the number of rows for a year across both sexes.
func (cs *ColumnStore) YearCount(year int) int {
	return len(cs.byYear[int32(year)])
}

// YearRange reports the smallest and largest year present.
func (cs *ColumnStore) YearRange() (min, max int, ok bool) {
	for y := range cs.byYear {
		if !ok {
			min, max, ok = int(y), int(y), true
			continue
		}
		if int(y) < min {
			min = int(y)
		}
		if int(y) > max {
			max = int(y)
		}
	}
	return min, max, ok
}

// Regions returns the distinct region ids in first-seen order.
func (cs *ColumnStore) Regions() []models.RegionID {
	return cs.RegionDict
}
