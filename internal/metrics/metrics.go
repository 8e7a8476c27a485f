// Package metrics holds the prometheus collectors shared by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babylog",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by scope and result (hit or miss).",
	}, []string{"scope", "result"})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babylog",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Cache entries removed, by reason.",
	}, []string{"reason"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babylog",
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Store failures by kind.",
	}, []string{"kind"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babylog",
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Daily maintenance runs by outcome.",
	}, []string{"outcome"})

	SweepPruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babylog",
		Subsystem: "sweep",
		Name:      "pruned_total",
		Help:      "Rows removed by retention, by relation.",
	}, []string{"relation"})
)
