package chart

import (
	"errors"
	"fmt"
	"io"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var ErrNoBars = errors.New("chart: nothing to render")

// RenderBarPNG draws a static snapshot of a bar chart's first series,
// clipped to the chart's fixed y window.
func RenderBarPNG(w io.Writer, o BarOptions, width, height int) error {
	if len(o.Series) == 0 || len(o.Series[0].Data) == 0 {
		return ErrNoBars
	}
	s := o.Series[0]
	fill := drawing.ColorFromHex(strings.TrimPrefix(s.Color, "#"))

	bars := make([]gochart.Value, len(s.Data))
	for i, p := range s.Data {
		bars[i] = gochart.Value{
			Value: p.Y,
			Label: p.Name,
			Style: gochart.Style{FillColor: fill, StrokeColor: fill, StrokeWidth: 1},
		}
	}

	bc := gochart.BarChart{
		Title:      o.Title.Text + " - " + s.Name,
		Width:      width,
		Height:     height,
		BarWidth:   width / (2*len(bars) + 2),
		Background: gochart.Style{Padding: gochart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: o.YAxis.Min, Max: o.YAxis.Max},
		},
		Bars: bars,
	}
	if err := bc.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("render %q: %w", o.Title.Text, err)
	}
	return nil
}
