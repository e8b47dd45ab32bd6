// Package metrics exposes the feed and command counters on /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "containerdesk_frames_received_total",
			Help: "inbound frames per channel",
		},
		[]string{"channel"},
	)

	FrameParseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "containerdesk_frame_parse_failures_total",
			Help: "malformed frames skipped per channel",
		},
		[]string{"channel"},
	)

	DroppedEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "containerdesk_dropped_entries_total",
			Help: "order/trade entries dropped on field coercion",
		},
		[]string{"kind"},
	)

	OpenChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "containerdesk_open_channels",
			Help: "distinct upstream channels currently open",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "containerdesk_commands_total",
			Help: "outbound commands by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)
)

var handlerOnce sync.Once
var handler http.Handler

// Handler registers the collectors on a private registry and returns the
// scrape handler for the dashboard mux.
func Handler() http.Handler {
	handlerOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			FramesReceived,
			FrameParseFailures,
			DroppedEntries,
			OpenChannels,
			CommandsTotal,
			collectors.NewGoCollector(),
		)
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	})
	return handler
}
