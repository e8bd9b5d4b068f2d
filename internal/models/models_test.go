package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestRegionIDUnmarshal(t *testing.T) {
	cases := map[string]RegionID{
		`{"MOI":"10002010"}`:     "10002010",
		`{"MOI":10002020}`:       "10002020",
		`{"MOI":"10\/01"}`:       "10/01",
		`{"MOI":"\u0031\u0030"}`: "10",
		`{"MOI":null}`:           "",
	}
	for in, want := range cases {
		var rec Record
		if err := json.Unmarshal([]byte(in), &rec); err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if rec.MOI != want {
			t.Errorf("%s: got %q, want %q", in, rec.MOI, want)
		}
	}

	var rec Record
	if err := json.Unmarshal([]byte(`{"MOI":true}`), &rec); err == nil {
		t.Error("boolean MOI should fail")
	}
}
