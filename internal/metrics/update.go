// Package metrics provides Prometheus metrics for the update lifecycle and
// telemetry stats.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statsBumps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appshell",
		Subsystem: "telemetry",
		Name:      "stats_bumped_total",
		Help:      "Telemetry stats bumped, by group and name",
	}, []string{"group", "name"})

	statsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "appshell",
		Subsystem: "telemetry",
		Name:      "stats_dropped_total",
		Help:      "Telemetry stats dropped because the report queue was full",
	})

	updateState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "appshell",
		Subsystem: "updater",
		Name:      "state",
		Help:      "Current update controller state (1 for the active state)",
	}, []string{"state"})

	updatePrompts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appshell",
		Subsystem: "updater",
		Name:      "prompts_total",
		Help:      "Update confirmation prompts, by outcome",
	}, []string{"outcome"})

	// Local cache for API access.
	statsCache   = make(map[StatKey]float64)
	statsCacheMu sync.RWMutex
)

// StatKey identifies a telemetry stat.
type StatKey struct {
	Group string `json:"group"`
	Name  string `json:"name"`
}

// StatCount is a stat with the number of times it was bumped.
type StatCount struct {
	StatKey
	Count float64 `json:"count"`
}

// RecordStat increments the counter for a telemetry stat.
func RecordStat(group, name string) {
	statsBumps.WithLabelValues(group, name).Inc()

	statsCacheMu.Lock()
	statsCache[StatKey{Group: group, Name: name}]++
	statsCacheMu.Unlock()
}

// RecordStatDropped counts a stat that could not be queued for reporting.
func RecordStatDropped() {
	statsDropped.Inc()
}

// GetStatCounts returns all recorded stats sorted by group then name.
func GetStatCounts() []StatCount {
	statsCacheMu.RLock()
	defer statsCacheMu.RUnlock()

	result := make([]StatCount, 0, len(statsCache))
	for k, v := range statsCache {
		result = append(result, StatCount{StatKey: k, Count: v})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// ResetStats clears all recorded stats.
func ResetStats() {
	statsBumps.Reset()

	statsCacheMu.Lock()
	statsCache = make(map[StatKey]float64)
	statsCacheMu.Unlock()
}

// SetUpdateState marks state as the active controller state.
func SetUpdateState(state string) {
	updateState.Reset()
	updateState.WithLabelValues(state).Set(1)
}

// RecordPrompt counts a prompt outcome: shown, accepted, declined or skipped.
func RecordPrompt(outcome string) {
	updatePrompts.WithLabelValues(outcome).Inc()
}
