package trainer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics, labelled by run name.
var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tangle_generations_total",
		Help: "Completed generations",
	}, []string{"run"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tangle_generation_duration_seconds",
		Help:    "Wall time of one generation, evaluation through reproduction",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
	}, []string{"run"})

	championReward = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tangle_champion_reward",
		Help: "Reward of the current champion team",
	}, []string{"run"})

	populationSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tangle_population_size",
		Help: "Arena size after reproduction, by kind",
	}, []string{"run", "kind"})

	collectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tangle_collected_total",
		Help: "Teams and learners freed by garbage collection",
	}, []string{"run", "kind"})

	noDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tangle_no_decisions_total",
		Help: "Traversals that ended without an atomic action",
	}, []string{"run"})

	rejectedExemplarsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tangle_rejected_exemplars_total",
		Help: "Exemplars skipped because they failed validation",
	}, []string{"run"})

	fitnessErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tangle_fitness_errors_total",
		Help: "Generations aborted by a fitness strategy error",
	}, []string{"run"})
)
