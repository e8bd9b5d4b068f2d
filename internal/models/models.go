package models

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

type Sex int

const (
	Male   Sex = 1
	Female Sex = 2
)

func (s Sex) String() string {
	switch s {
	case Male:
		return "Male"
	case Female:
		return "Female"
	}
	return fmt.Sprintf("Sex(%d)", int(s))
}

// Sexes lists the sexes in chart order.
var Sexes = []Sex{Male, Female}

// RegionID is the MOI township code used to join statistics to geometry.
// Upstream files carry it either as a string or as a bare number.
type RegionID string

func (r *RegionID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("region id: %w", err)
		}
		*r = RegionID(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("region id: %w", err)
	}
	*r = RegionID(n.String())
	return nil
}

// Record is one row of the smoothed life-expectancy table.
type Record struct {
	Year int      `json:"YEAR"`
	Sex  Sex      `json:"SEX"`
	MOI  RegionID `json:"MOI"`
	Name string   `json:"County_Township_ZH"`
	Mean float64  `json:"e0_mean"`
	SD   float64  `json:"e0_sd"`
}

// MapPoint feeds a choropleth series joined by MOI.
type MapPoint struct {
	MOI   RegionID `json:"MOI"`
	Value float64  `json:"value"`
	Name  string   `json:"name"`
}

type BarPoint struct {
	Name string  `json:"name"`
	Y    float64 `json:"y"`
	SD   float64 `json:"e0_sd"`
}

type SexFrame struct {
	Records []Record   `json:"records"`
	Mean    []MapPoint `json:"mean"`
	SD      []MapPoint `json:"sd"`
	Top     []Record   `json:"top10"`
	Bottom  []Record   `json:"bottom10"`
}

// YearFrame is everything the charts need for a single year.
type YearFrame struct {
	Year   int      `json:"year"`
	Male   SexFrame `json:"male"`
	Female SexFrame `json:"female"`
}

func (f *YearFrame) For(s Sex) *SexFrame {
	if s == Female {
		return &f.Female
	}
	return &f.Male
}

// BarPoints converts ranked records into bar data.
func BarPoints(recs []Record) []BarPoint {
	out := make([]BarPoint, len(recs))
	for i, r := range recs {
		out[i] = BarPoint{Name: r.Name, Y: r.Mean, SD: r.SD}
	}
	return out
}

func Names(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}
