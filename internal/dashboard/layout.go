package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"lifedash/internal/chart"
	"lifedash/internal/models"
)

// ChartKey names one of the eight chart mounts.
type ChartKey string

const (
	MeanMapMale    ChartKey = "LEmeanMap_male"
	MeanMapFemale  ChartKey = "LEmeanMap_female"
	SDMapMale      ChartKey = "LEsdMap_male"
	SDMapFemale    ChartKey = "LEsdMap_female"
	Top10Male      ChartKey = "LEtop10_male"
	Bottom10Male   ChartKey = "LEbottom10_male"
	Top10Female    ChartKey = "LEtop10_female"
	Bottom10Female ChartKey = "LEbottom10_female"
)

var (
	MapKeys   = []ChartKey{MeanMapMale, MeanMapFemale, SDMapMale, SDMapFemale}
	BarKeys   = []ChartKey{Top10Male, Bottom10Male, Top10Female, Bottom10Female}
	ChartKeys = append(append([]ChartKey{}, MapKeys...), BarKeys...)
)

type TabKey string

const (
	TabMeanMaps  TabKey = "meanMapsSection"
	TabSDMaps    TabKey = "sdMapsSection"
	TabTopBottom TabKey = "topBottomSection"
)

var Tabs = []TabKey{TabMeanMaps, TabSDMaps, TabTopBottom}

// TabCharts lists the charts shown inside each tab.
var TabCharts = map[TabKey][]ChartKey{
	TabMeanMaps:  {MeanMapMale, MeanMapFemale},
	TabSDMaps:    {SDMapMale, SDMapFemale},
	TabTopBottom: {Top10Male, Bottom10Male, Top10Female, Bottom10Female},
}

func ParseTab(s string) (TabKey, error) {
	for _, t := range Tabs {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTab, s)
}

func ParseChartKey(s string) (ChartKey, error) {
	for _, k := range ChartKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChart, s)
}

// Layout maps every chart key to the element that hosts it.
type Layout struct {
	mounts map[ChartKey]string
}

// DefaultMounts mounts every chart on an element with the same id.
func DefaultMounts() map[string]string {
	m := make(map[string]string, len(ChartKeys))
	for _, k := range ChartKeys {
		m[string(k)] = string(k)
	}
	return m
}

// ResolveLayout checks that every chart key has a mount and that no two
// charts share one. It fails on the first problem rather than at render time.
func ResolveLayout(mounts map[string]string) (Layout, error) {
	l := Layout{mounts: make(map[ChartKey]string, len(ChartKeys))}
	used := make(map[string]ChartKey, len(ChartKeys))

	for _, k := range ChartKeys {
		el := strings.TrimSpace(mounts[string(k)])
		if el == "" {
			return Layout{}, fmt.Errorf("layout: no mount for chart %s", k)
		}
		if other, dup := used[el]; dup {
			return Layout{}, fmt.Errorf("layout: charts %s and %s share mount %q", other, k, el)
		}
		used[el] = k
		l.mounts[k] = el
	}

	var unknown []string
	for k := range mounts {
		if _, err := ParseChartKey(k); err != nil {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Layout{}, fmt.Errorf("layout: unknown chart keys %v", unknown)
	}
	return l, nil
}

func (l Layout) Mount(k ChartKey) string { return l.mounts[k] }

// Mounts returns a copy of the key to element mapping.
func (l Layout) Mounts() map[ChartKey]string {
	out := make(map[ChartKey]string, len(l.mounts))
	for k, v := range l.mounts {
		out[k] = v
	}
	return out
}

// mapSpec and barSpec describe the fixed presentation of each chart.
type mapSpec struct {
	sex models.Sex
	sd  bool
}

type barSpec struct {
	sex    models.Sex
	top    bool
	window chart.Window
}

var mapSpecs = map[ChartKey]mapSpec{
	MeanMapMale:   {sex: models.Male},
	MeanMapFemale: {sex: models.Female},
	SDMapMale:     {sex: models.Male, sd: true},
	SDMapFemale:   {sex: models.Female, sd: true},
}

var barSpecs = map[ChartKey]barSpec{
	Top10Male:      {sex: models.Male, top: true, window: chart.Window{Min: 75, Max: 86}},
	Bottom10Male:   {sex: models.Male, window: chart.Window{Min: 55, Max: 70}},
	Top10Female:    {sex: models.Female, top: true, window: chart.Window{Min: 80, Max: 92}},
	Bottom10Female: {sex: models.Female, window: chart.Window{Min: 65, Max: 80}},
}

func (s mapSpec) options(geometry string, year int, data []models.MapPoint) chart.MapOptions {
	if s.sd {
		return chart.NewMapOptions(geometry,
			fmt.Sprintf("%s Life Expectancy Standard Deviation (%d)", s.sex, year),
			fmt.Sprintf("Standard deviation of LE at birth (%s)", s.sex),
			"SD of LE at birth", chart.SDColorAxis(), data)
	}
	return chart.NewMapOptions(geometry,
		fmt.Sprintf("%s Life Expectancy (%d)", s.sex, year),
		fmt.Sprintf("LE at birth (%s)", s.sex),
		"LE at birth", chart.MeanColorAxis(), data)
}

func (s barSpec) options() chart.BarOptions {
	rank, color := "Bottom", chart.BottomBarColor
	if s.top {
		rank, color = "Top", chart.TopBarColor
	}
	return chart.NewBarOptions(
		fmt.Sprintf("%s 10 %s Life Expectancy", rank, s.sex),
		fmt.Sprintf("%s Life Expectancy", s.sex),
		color, s.window)
}

func (s barSpec) ranked(f *models.YearFrame) []models.Record {
	if s.top {
		return f.For(s.sex).Top
	}
	return f.For(s.sex).Bottom
}

func (s mapSpec) data(f *models.YearFrame) []models.MapPoint {
	if s.sd {
		return f.For(s.sex).SD
	}
	return f.For(s.sex).Mean
}
