package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChartUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifedash_chart_updates_total",
		Help: "Total number of year re-binds across all charts",
	})
	PlaybackTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifedash_playback_ticks_total",
		Help: "Total playback ticks that advanced the year",
	})
	RenderErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifedash_render_errors_total",
		Help: "Charts left in their prior state because a render failed",
	}, []string{"chart"})
	LiveCharts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lifedash_live_charts",
		Help: "Chart instances currently mounted",
	})
	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lifedash_ws_clients",
		Help: "Connected websocket clients",
	})
	DatasetRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lifedash_dataset_records",
		Help: "Statistics records loaded",
	})
)

func init() {
	prometheus.MustRegister(ChartUpdatesTotal)
	prometheus.MustRegister(PlaybackTicksTotal)
	prometheus.MustRegister(RenderErrorsTotal)
	prometheus.MustRegister(LiveCharts)
	prometheus.MustRegister(WSClients)
	prometheus.MustRegister(DatasetRecords)
}
