package engine

import "github.com/prometheus/client_golang/prometheus"

// Cache result label values.
const (
	cacheHit  = "hit"
	cacheMiss = "miss"
)

var (
	lapsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "racetrack_laps_recorded_total",
			Help: "Total number of laps recorded across all races.",
		},
	)

	raceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racetrack_race_transitions_total",
			Help: "Total number of race status transitions, by target status.",
		},
		[]string{"status"},
	)

	statsCacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racetrack_stats_cache_requests_total",
			Help: "Race statistics lookups, by cache result.",
		},
		[]string{"result"},
	)

	armedTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "racetrack_race_timers_armed",
			Help: "Number of race timers currently waiting to end a race.",
		},
	)
)

func init() {
	prometheus.MustRegister(lapsRecorded)
	prometheus.MustRegister(raceTransitions)
	prometheus.MustRegister(statsCacheRequests)
	prometheus.MustRegister(armedTimers)

	statsCacheRequests.WithLabelValues(cacheHit)
	statsCacheRequests.WithLabelValues(cacheMiss)
}
