// Package chart is the in-process chart surface. It keeps Highcharts-shaped
// option documents for every mounted chart and tracks instance lifecycles.
package chart

import (
	"lifedash/internal/models"
)

// Stop is one [offset, colour] pair of a colour axis gradient.
type Stop [2]any

type TextStyle struct {
	FontFamily string `json:"fontFamily,omitempty"`
	FontSize   string `json:"fontSize,omitempty"`
	Color      string `json:"color,omitempty"`
	FontWeight string `json:"fontWeight,omitempty"`
}

type Title struct {
	Text  string     `json:"text"`
	Style *TextStyle `json:"style,omitempty"`
}

type ColorAxis struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Stops   []Stop  `json:"stops"`
	NaColor string  `json:"naColor"`
}

type Tooltip struct {
	PointFormat string `json:"pointFormat"`
}

type MapSeries struct {
	Data        []models.MapPoint `json:"data"`
	JoinBy      string            `json:"joinBy"`
	Name        string            `json:"name"`
	BorderColor string            `json:"borderColor"`
	BorderWidth float64           `json:"borderWidth"`
	Tooltip     Tooltip           `json:"tooltip"`
}

type MapFrame struct {
	Map string `json:"map"`
}

// MapOptions is a choropleth definition. Map names the geometry document the
// client binds before rendering.
type MapOptions struct {
	Chart     MapFrame    `json:"chart"`
	Title     Title       `json:"title"`
	ColorAxis ColorAxis   `json:"colorAxis"`
	Series    []MapSeries `json:"series"`
}

type BarFrame struct {
	Type string `json:"type"`
}

type AxisTitle struct {
	Text  *string `json:"text"`
	Align string  `json:"align,omitempty"`
}

type XAxis struct {
	Categories []string  `json:"categories"`
	Title      AxisTitle `json:"title"`
}

type YAxis struct {
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Title AxisTitle `json:"title"`
}

type DataLabels struct {
	Enabled bool   `json:"enabled"`
	Format  string `json:"format"`
}

type BarPlot struct {
	DataLabels DataLabels `json:"dataLabels"`
}

type PlotOptions struct {
	Bar BarPlot `json:"bar"`
}

type BarSeries struct {
	Name  string            `json:"name"`
	Data  []models.BarPoint `json:"data"`
	Color string            `json:"color"`
}

type BarOptions struct {
	Chart       BarFrame    `json:"chart"`
	Title       Title       `json:"title"`
	XAxis       XAxis       `json:"xAxis"`
	YAxis       YAxis       `json:"yAxis"`
	PlotOptions PlotOptions `json:"plotOptions"`
	Tooltip     *Tooltip    `json:"tooltip,omitempty"`
	Series      []BarSeries `json:"series"`
}

func (o BarOptions) clone() BarOptions {
	c := o
	c.XAxis.Categories = append([]string(nil), o.XAxis.Categories...)
	c.Series = make([]BarSeries, len(o.Series))
	for i, s := range o.Series {
		c.Series[i] = s
		c.Series[i].Data = append([]models.BarPoint(nil), s.Data...)
	}
	return c
}

const (
	NaColor        = "#808080"
	TopBarColor    = "#fca24d"
	BottomBarColor = "#1f4e79"
)

// MeanStops shade mean life expectancy from dark red through cream to dark blue.
var MeanStops = []Stop{
	{0.0, "#9F353A"}, {0.1, "#B50D18"}, {0.2, "#D3422F"}, {0.3, "#FB9966"}, {0.4, "#FFBA84"}, {0.5, "#F4E496"},
	{0.6, "#E0EAA9"}, {0.7, "#B2D494"}, {0.8, "#8DC191"}, {0.9, "#4D9595"}, {1.0, "#26659C"},
}

var SDStops = []Stop{{0.0, "#FFFFFF"}, {1.0, "#fc4d50"}}

func MeanColorAxis() ColorAxis {
	return ColorAxis{Min: 55, Max: 90, Stops: MeanStops, NaColor: NaColor}
}

func SDColorAxis() ColorAxis {
	return ColorAxis{Min: 0, Max: 7.5, Stops: SDStops, NaColor: NaColor}
}

func titleStyle() *TextStyle {
	return &TextStyle{FontFamily: "Outfit, sans-serif", FontSize: "15px", Color: "#333333", FontWeight: "normal"}
}

// Window is a fixed y-axis range for a bar chart.
type Window struct{ Min, Max float64 }

// NewMapOptions builds one choropleth. Title embeds the year.
func NewMapOptions(geometry, title, seriesName, valueLabel string, axis ColorAxis, data []models.MapPoint) MapOptions {
	return MapOptions{
		Chart:     MapFrame{Map: geometry},
		Title:     Title{Text: title, Style: titleStyle()},
		ColorAxis: axis,
		Series: []MapSeries{{
			Data:        data,
			JoinBy:      "MOI",
			Name:        seriesName,
			BorderColor: NaColor,
			BorderWidth: 0.3,
			Tooltip:     Tooltip{PointFormat: "<b>{point.name}</b><br><b>" + valueLabel + ":</b> {point.value:.3f}<br>"},
		}},
	}
}

// NewBarOptions builds an empty ranked bar chart; data arrives through updates.
func NewBarOptions(title, seriesName, color string, w Window) BarOptions {
	label := "Life Expectancy"
	return BarOptions{
		Chart: BarFrame{Type: "bar"},
		Title: Title{Text: title, Style: titleStyle()},
		XAxis: XAxis{Categories: []string{}},
		YAxis: YAxis{Min: w.Min, Max: w.Max, Title: AxisTitle{Text: &label, Align: "high"}},
		PlotOptions: PlotOptions{Bar: BarPlot{
			DataLabels: DataLabels{Enabled: true, Format: "{point.y:.3f}"},
		}},
		Tooltip: &Tooltip{PointFormat: "<b>{point.name}</b><br><b>LE at birth:</b> {point.y:.3f}<br><b>SD:</b> {point.e0_sd:.3f}"},
		Series:  []BarSeries{{Name: seriesName, Data: []models.BarPoint{}, Color: color}},
	}
}
