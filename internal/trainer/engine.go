// Package trainer runs the generational evolutionary loop over a tpg population.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/dyluth/tangle/internal/config"
	"github.com/dyluth/tangle/internal/fitness"
	"github.com/dyluth/tangle/pkg/store"
	"github.com/dyluth/tangle/pkg/tpg"
	"github.com/google/uuid"
)

var (
	// ErrFitness wraps any error returned by a fitness strategy. It aborts the generation.
	ErrFitness = errors.New("fitness strategy failed")

	// ErrNoExemplars is returned when every exemplar failed validation.
	ErrNoExemplars = errors.New("no valid exemplars")
)

// Result describes how a Train call ended.
type Result struct {
	RunID string
	Model *tpg.Model

	// Generations completed during this call
	Generations int
	BestReward  float64

	// Stopped is set when the context ended the run early; Model holds the
	// last completed generation.
	Stopped       bool
	ReachedTarget bool

	History []store.GenerationEvent
}

// Status maps the result onto a run record status.
func (r *Result) Status() store.RunStatus {
	if r.Stopped {
		return store.RunStatusStopped
	}
	return store.RunStatusCompleted
}

// Engine owns one population and evolves it generation by generation.
// Graph mutation happens only between evaluations.
type Engine struct {
	cfg     *config.TangleConfig
	source  tpg.Source
	fitness tpg.FitnessFactory
	sink    EventSink
	workers int
	runID   string

	model   *tpg.Model
	mutator *tpg.Mutator

	generation atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventSink publishes a GenerationEvent after every generation.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithWorkers overrides run.workers.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithModel resumes training from a previously saved model.
func WithModel(m *tpg.Model) Option {
	return func(e *Engine) { e.model = m }
}

// WithRunID sets the run identifier used in logs and events.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// New builds an engine. A nil factory selects the strategy named in cfg.
// When cfg lists no labels, the source must provide them through a Labels method.
func New(cfg *config.TangleConfig, source tpg.Source, factory tpg.FitnessFactory, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if source == nil {
		return nil, fmt.Errorf("exemplar source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if factory == nil {
		f, err := fitness.ByName(cfg.Fitness.Strategy)
		if err != nil {
			return nil, err
		}
		factory = f
	}

	e := &Engine{
		cfg:     cfg,
		source:  source,
		fitness: factory,
		workers: *cfg.Run.Workers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = uuid.New().String()
	}

	if e.model == nil {
		labels, err := e.labels()
		if err != nil {
			return nil, err
		}
		m, err := newModel(cfg, labels)
		if err != nil {
			return nil, err
		}
		e.model = m
	} else if e.model.Graph == nil || e.model.RNG == nil {
		return nil, fmt.Errorf("resumed model is incomplete")
	}

	mutator, err := tpg.NewMutator(e.model.Rand(), cfg.MutationParams(), e.model.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to build mutator: %w", err)
	}
	mutator.ProgramActions = cfg.Actions.ProgramActions
	mutator.ActionRegisters = cfg.Program.ActionRegisters
	mutator.ActionOutputs = cfg.Program.ActionOutputs
	mutator.InitialProgramSize = cfg.Program.InitialSize
	e.mutator = mutator

	if e.model.Graph.TeamCount() == 0 {
		if err := e.initPopulation(); err != nil {
			return nil, fmt.Errorf("failed to seed population: %w", err)
		}
	}
	e.generation.Store(int64(e.model.Generation))

	return e, nil
}

// Train is the one-shot entry point: build an engine and run it to completion.
func Train(ctx context.Context, cfg *config.TangleConfig, source tpg.Source, factory tpg.FitnessFactory, opts ...Option) (*Result, error) {
	e, err := New(cfg, source, factory, opts...)
	if err != nil {
		return nil, err
	}
	return e.Train(ctx)
}

// RunID returns the identifier used in logs and events.
func (e *Engine) RunID() string { return e.runID }

// Model returns the population. After a failed Train call it holds the last completed generation.
func (e *Engine) Model() *tpg.Model { return e.model }

// Generation returns the last completed generation. Safe to call concurrently with Train.
func (e *Engine) Generation() int { return int(e.generation.Load()) }

// Train evolves the population until the generation budget or target reward
// is reached, or ctx ends. Cancellation is checked at generation boundaries
// and is not an error: the result reports Stopped and carries the model of the
// last completed generation.
func (e *Engine) Train(ctx context.Context) (*Result, error) {
	exemplars, err := e.source.Exemplars(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return &Result{RunID: e.runID, Model: e.model, Stopped: true}, nil
		}
		return nil, fmt.Errorf("failed to load exemplars: %w", err)
	}
	valid, rejected := e.validExemplars(exemplars)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: %d rejected", ErrNoExemplars, rejected)
	}

	run := e.cfg.Run
	log.Printf("[Trainer] Starting run '%s' (%s): population=%d generations=%d workers=%d exemplars=%d",
		run.Name, e.runID, run.Population, run.Generations, e.workers, len(valid))

	res := &Result{RunID: e.runID, Model: e.model}
	for e.model.Generation < run.Generations {
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}

		// a started generation always runs to completion; ctx is only checked between generations
		ev, err := e.step(context.WithoutCancel(ctx), valid)
		if err != nil {
			return nil, fmt.Errorf("generation %d: %w", e.model.Generation+1, err)
		}
		ev.Rejected = rejected
		rejectedExemplarsTotal.WithLabelValues(run.Name).Add(float64(rejected))

		res.Generations++
		res.BestReward = ev.BestReward
		res.History = append(res.History, *ev)
		e.publish(context.WithoutCancel(ctx), ev)

		if run.TargetReward != nil && ev.BestReward >= *run.TargetReward {
			log.Printf("[Trainer] Target reward %g reached at generation %d", *run.TargetReward, ev.Generation)
			res.ReachedTarget = true
			break
		}
	}

	if res.Stopped {
		log.Printf("[Trainer] Stopped after generation %d", e.model.Generation)
	}
	e.publishFinal(context.WithoutCancel(ctx), res)

	return res, nil
}

// step runs one full generation: evaluate, select, collect, reproduce.
func (e *Engine) step(ctx context.Context, exemplars []tpg.Exemplar) (*store.GenerationEvent, error) {
	start := time.Now()
	g := e.model.Graph
	name := e.cfg.Run.Name

	roots := g.Roots()
	if len(roots) == 0 {
		return nil, fmt.Errorf("population has no root teams")
	}

	bank := g.Memory()
	var snapshot tpg.MemorySnapshot
	if bank != nil {
		snapshot = bank.Snapshot()
	}

	scores, err := e.evaluate(ctx, roots, exemplars)
	if err != nil {
		if bank != nil {
			bank.Restore(snapshot)
		}
		if errors.Is(err, ErrFitness) {
			fitnessErrorsTotal.WithLabelValues(name).Inc()
			e.logLevel("error", "fitness_failed", map[string]interface{}{
				"generation": e.model.Generation + 1,
				"error":      err.Error(),
			})
		}
		return nil, err
	}

	rankScores(scores)
	champion := scores[0]
	e.model.Champion = champion.team

	removed, err := e.selectSurvivors(scores)
	if err != nil {
		return nil, err
	}
	report := g.Collect()

	next := e.model.Generation + 1
	if err := e.reproduce(next); err != nil {
		return nil, fmt.Errorf("reproduction failed: %w", err)
	}
	e.model.Generation = next
	e.generation.Store(int64(next))

	ev := &store.GenerationEvent{
		RunID:             e.runID,
		Generation:        next,
		BestReward:        champion.reward,
		MeanReward:        meanReward(scores),
		Champion:          uint64(champion.team),
		Roots:             len(g.Roots()),
		Teams:             g.TeamCount(),
		Learners:          g.LearnerCount(),
		Removed:           removed,
		CollectedTeams:    len(report.Teams),
		CollectedLearners: len(report.Learners),
		NoDecisions:       totalNoDecisions(scores),
		DurationMs:        time.Since(start).Milliseconds(),
		Status:            store.RunStatusRunning,
		TimestampMs:       time.Now().UnixMilli(),
	}

	generationsTotal.WithLabelValues(name).Inc()
	generationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	championReward.WithLabelValues(name).Set(ev.BestReward)
	populationSize.WithLabelValues(name, "teams").Set(float64(ev.Teams))
	populationSize.WithLabelValues(name, "learners").Set(float64(ev.Learners))
	collectedTotal.WithLabelValues(name, "teams").Add(float64(ev.CollectedTeams))
	collectedTotal.WithLabelValues(name, "learners").Add(float64(ev.CollectedLearners))
	noDecisionsTotal.WithLabelValues(name).Add(float64(ev.NoDecisions))

	if ev.NoDecisions > 0 {
		e.logLevel("warn", "no_decision", map[string]interface{}{
			"generation": next,
			"count":      ev.NoDecisions,
		})
	}
	e.logEvent("generation_complete", map[string]interface{}{
		"generation":         next,
		"best_reward":        ev.BestReward,
		"mean_reward":        ev.MeanReward,
		"champion":           ev.Champion,
		"teams":              ev.Teams,
		"learners":           ev.Learners,
		"collected_teams":    ev.CollectedTeams,
		"collected_learners": ev.CollectedLearners,
		"latency_ms":         ev.DurationMs,
	})

	return ev, nil
}

// validExemplars drops exemplars that fail validation, logging each one.
func (e *Engine) validExemplars(exemplars []tpg.Exemplar) ([]tpg.Exemplar, int) {
	valid := make([]tpg.Exemplar, 0, len(exemplars))
	rejected := 0
	for i := range exemplars {
		if err := exemplars[i].Validate(e.model.Labels); err != nil {
			rejected++
			e.logLevel("warn", "exemplar_rejected", map[string]interface{}{
				"exemplar_id": exemplars[i].ID,
				"error":       err.Error(),
			})
			continue
		}
		valid = append(valid, exemplars[i])
	}
	return valid, rejected
}

func (e *Engine) publishFinal(ctx context.Context, res *Result) {
	ev := &store.GenerationEvent{
		RunID:       e.runID,
		Generation:  e.model.Generation,
		Champion:    uint64(e.model.Champion),
		BestReward:  res.BestReward,
		Teams:       e.model.Graph.TeamCount(),
		Learners:    e.model.Graph.LearnerCount(),
		Roots:       len(e.model.Graph.Roots()),
		Status:      res.Status(),
		TimestampMs: time.Now().UnixMilli(),
	}
	e.publish(ctx, ev)
}

// labels resolves the action label set from config or, failing that, the source.
func (e *Engine) labels() ([]int64, error) {
	if len(e.cfg.Actions.Labels) > 0 {
		return e.cfg.Actions.Labels, nil
	}
	if l, ok := e.source.(interface{ Labels() []int64 }); ok {
		if labels := l.Labels(); len(labels) > 0 {
			return labels, nil
		}
	}
	return nil, fmt.Errorf("no action labels configured and none discoverable from the dataset")
}

func newModel(cfg *config.TangleConfig, labels []int64) (*tpg.Model, error) {
	args := cfg.Args()
	var bank *tpg.MemoryBank
	if cfg.Memory != nil && cfg.Memory.Rows > 0 {
		b, err := tpg.NewMemoryBank(cfg.Memory.Rows, cfg.Memory.Cols, cfg.Memory.Probability, config.MemorySeed(args))
		if err != nil {
			return nil, fmt.Errorf("failed to create memory bank: %w", err)
		}
		bank = b
	}
	return tpg.NewModel(args, cfg.SeedValue(), tpg.NewGraph(bank), labels), nil
}
