package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ActiveRelays tracks the number of segment relays currently streaming to clients.
var ActiveRelays = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "iptv_player_active_relays",
	Help: "Number of relays currently streaming",
})

// BytesRelayed counts bytes copied from origins to clients, labelled by resource kind
// (segment, key, playlist).
var BytesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptv_player_bytes_relayed_total",
	Help: "Total bytes relayed from upstream to clients",
}, []string{"kind"})

// UpstreamRequests counts upstream fetches by purpose and outcome.
// outcome is "ok" or a client.Reason value.
var UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptv_player_upstream_requests_total",
	Help: "Upstream requests by kind and outcome",
}, []string{"kind", "outcome"})

// PlaylistRewrites counts rewritten playlists by detected playlist kind.
var PlaylistRewrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptv_player_playlist_rewrites_total",
	Help: "Rewritten playlists by kind",
}, []string{"kind"})

// ProbeResults counts liveness probe outcomes ("online" or "offline").
var ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptv_player_probe_results_total",
	Help: "Liveness probe outcomes",
}, []string{"result"})

// ProbeDuration observes the wall-clock time of a full probe (both attempts).
var ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "iptv_player_probe_duration_seconds",
	Help:    "Duration of liveness probes",
	Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
})

// HTTPRequests counts served API requests by route template and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptv_player_http_requests_total",
	Help: "HTTP requests served",
}, []string{"route", "code"})
