package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dyluth/tangle/pkg/store"
	"github.com/dyluth/tangle/pkg/tpg"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Version is the only tangle.yml schema version this build understands.
const Version = "1.0"

// configValidate checks struct tags on every config section.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	// Labels are int64 and the minimum value is reserved as the "no label" sentinel
	_ = configValidate.RegisterValidation("nolabelsentinel", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() != math.MinInt64
	})
	// Instance names become part of every Redis key
	_ = configValidate.RegisterValidation("instancename", func(fl validator.FieldLevel) bool {
		return store.ValidateInstanceName(fl.Field().String()) == nil
	})
}

// TangleConfig represents the top-level tangle.yml configuration
type TangleConfig struct {
	Version  string          `yaml:"version" validate:"required"`
	Run      RunConfig       `yaml:"run"`
	Program  *ProgramConfig  `yaml:"program,omitempty"`
	Mutation *MutationConfig `yaml:"mutation,omitempty"`
	Memory   *MemoryConfig   `yaml:"memory,omitempty"` // nil or 0x0 disables the memory bank
	Actions  ActionsConfig   `yaml:"actions"`
	Fitness  *FitnessConfig  `yaml:"fitness,omitempty"`
	Dataset  DatasetConfig   `yaml:"dataset"`
	Store    *StoreConfig    `yaml:"store,omitempty"` // nil keeps runs local
}

// RunConfig controls the evolutionary loop
type RunConfig struct {
	Name            string   `yaml:"name" validate:"required,max=128"`
	Seed            *uint64  `yaml:"seed,omitempty"`
	Generations     int      `yaml:"generations" validate:"gte=1"`
	Population      int      `yaml:"population" validate:"gte=2"`
	KeepFraction    *float64 `yaml:"keep_fraction,omitempty" validate:"required,gt=0,lt=1"`
	InitialTeamSize *int     `yaml:"initial_team_size,omitempty" validate:"required,gte=2"`
	Workers         *int     `yaml:"workers,omitempty" validate:"required,gte=1"`
	TargetReward    *float64 `yaml:"target_reward,omitempty"` // stop early once the champion reaches it
	HealthAddr      string   `yaml:"health_addr,omitempty"`   // e.g. ":8080"; empty disables /healthz and /metrics
}

// ProgramConfig bounds bidding and action programs
type ProgramConfig struct {
	MaxSize         int `yaml:"max_size" validate:"gte=1,lte=4096"`
	InitialSize     int `yaml:"initial_size,omitempty" validate:"gte=0"`
	ActionRegisters int `yaml:"action_registers,omitempty" validate:"gte=0,lte=256"`
	ActionOutputs   int `yaml:"action_outputs,omitempty" validate:"gte=0"`
}

// MutationConfig holds every variation probability. Unset fields take defaults.
type MutationConfig struct {
	ProgramDelete *float64 `yaml:"program_delete,omitempty" validate:"required,gte=0,lte=1"`
	ProgramAdd    *float64 `yaml:"program_add,omitempty" validate:"required,gte=0,lte=1"`
	ProgramSwap   *float64 `yaml:"program_swap,omitempty" validate:"required,gte=0,lte=1"`
	ProgramMutate *float64 `yaml:"program_mutate,omitempty" validate:"required,gte=0,lte=1"`
	ActionMutate  *float64 `yaml:"action_mutate,omitempty" validate:"required,gte=0,lte=1"`
	ActionTeamRef *float64 `yaml:"action_team_ref,omitempty" validate:"required,gte=0,lte=1"`
	LearnerDelete *float64 `yaml:"learner_delete,omitempty" validate:"required,gte=0,lte=1"`
	LearnerAdd    *float64 `yaml:"learner_add,omitempty" validate:"required,gte=0,lte=1"`
	LearnerMutate *float64 `yaml:"learner_mutate,omitempty" validate:"required,gte=0,lte=1"`
	MaxTeamSize   *int     `yaml:"max_team_size,omitempty" validate:"required,gte=2"`
}

// MemoryConfig sizes the shared memory bank
type MemoryConfig struct {
	Rows        int     `yaml:"rows" validate:"gte=0"`
	Cols        int     `yaml:"cols" validate:"gte=0"`
	Probability float64 `yaml:"probability" validate:"gte=0,lte=1"`
	Writable    bool    `yaml:"writable"`
}

// ActionsConfig defines the atomic action set
type ActionsConfig struct {
	Labels         []int64 `yaml:"labels,omitempty" validate:"unique,dive,nolabelsentinel"` // empty: discovered from the dataset
	ProgramActions float64 `yaml:"program_actions,omitempty" validate:"gte=0,lte=1"`
}

// FitnessConfig selects a built-in fitness strategy
type FitnessConfig struct {
	Strategy string `yaml:"strategy" validate:"omitempty,oneof=accuracy balanced_accuracy"`
}

// DatasetConfig points at the JSON-lines exemplar file
type DatasetConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// StoreConfig configures the Redis run store
type StoreConfig struct {
	RedisURL string `yaml:"redis_url" validate:"required"`
	Instance string `yaml:"instance,omitempty" validate:"omitempty,instancename"`
}

// Defaults applied by Validate
const (
	DefaultKeepFraction    = 0.5
	DefaultInitialTeamSize = 4
	DefaultWorkers         = 4
	DefaultMaxProgramSize  = 24
	DefaultInitialProgram  = 8
	DefaultFitness         = "accuracy"
	DefaultInstance        = "default"
)

// Validate applies defaults and performs strict validation on the configuration
func (c *TangleConfig) Validate() error {
	// Required: version
	if c.Version != Version {
		return fmt.Errorf("unsupported version: %s (expected: %s)", c.Version, Version)
	}

	c.applyDefaults()

	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid field: %w", err)
	}

	if c.Program.InitialSize > c.Program.MaxSize {
		return fmt.Errorf("program.initial_size (%d) must not exceed program.max_size (%d)", c.Program.InitialSize, c.Program.MaxSize)
	}
	if c.Program.ActionOutputs > c.Program.ActionRegisters {
		return fmt.Errorf("program.action_outputs (%d) must not exceed program.action_registers (%d)", c.Program.ActionOutputs, c.Program.ActionRegisters)
	}
	if *c.Run.InitialTeamSize > *c.Mutation.MaxTeamSize {
		return fmt.Errorf("run.initial_team_size (%d) must not exceed mutation.max_team_size (%d)", *c.Run.InitialTeamSize, *c.Mutation.MaxTeamSize)
	}
	if c.Memory != nil && (c.Memory.Rows == 0) != (c.Memory.Cols == 0) {
		return fmt.Errorf("memory.rows and memory.cols must both be set or both be 0, got %dx%d", c.Memory.Rows, c.Memory.Cols)
	}
	if c.Run.TargetReward != nil && math.IsNaN(*c.Run.TargetReward) {
		return fmt.Errorf("run.target_reward must be a number")
	}

	return nil
}

func (c *TangleConfig) applyDefaults() {
	if c.Run.KeepFraction == nil {
		c.Run.KeepFraction = floatPtr(DefaultKeepFraction)
	}
	if c.Run.InitialTeamSize == nil {
		c.Run.InitialTeamSize = intPtr(DefaultInitialTeamSize)
	}
	if c.Run.Workers == nil {
		c.Run.Workers = intPtr(DefaultWorkers)
	}

	if c.Program == nil {
		c.Program = &ProgramConfig{MaxSize: DefaultMaxProgramSize}
	}
	if c.Program.InitialSize == 0 {
		c.Program.InitialSize = min(DefaultInitialProgram, c.Program.MaxSize)
	}
	if c.Program.ActionRegisters == 0 {
		c.Program.ActionRegisters = tpg.BidRegisters
	}
	if c.Program.ActionOutputs == 0 {
		c.Program.ActionOutputs = 1
	}

	if c.Mutation == nil {
		c.Mutation = &MutationConfig{}
	}
	m := c.Mutation
	setDefault(&m.ProgramDelete, 0.5)
	setDefault(&m.ProgramAdd, 0.5)
	setDefault(&m.ProgramSwap, 0.5)
	setDefault(&m.ProgramMutate, 0.5)
	setDefault(&m.ActionMutate, 0.1)
	setDefault(&m.ActionTeamRef, 0.5)
	setDefault(&m.LearnerDelete, 0.7)
	setDefault(&m.LearnerAdd, 0.7)
	setDefault(&m.LearnerMutate, 0.2)
	if m.MaxTeamSize == nil {
		m.MaxTeamSize = intPtr(10)
	}

	if c.Fitness == nil {
		c.Fitness = &FitnessConfig{}
	}
	if c.Fitness.Strategy == "" {
		c.Fitness.Strategy = DefaultFitness
	}

	if c.Store != nil && c.Store.Instance == "" {
		c.Store.Instance = DefaultInstance
	}
}

// SeedValue returns the configured seed, or 1 when none is set.
func (c *TangleConfig) SeedValue() uint64 {
	if c.Run.Seed == nil {
		return 1
	}
	return *c.Run.Seed
}

// MutationParams converts the mutation and program sections for the engine.
// Call after Validate.
func (c *TangleConfig) MutationParams() tpg.MutationParams {
	m := c.Mutation
	return tpg.MutationParams{
		ProgramDelete:  *m.ProgramDelete,
		ProgramAdd:     *m.ProgramAdd,
		ProgramSwap:    *m.ProgramSwap,
		ProgramMutate:  *m.ProgramMutate,
		MaxProgramSize: c.Program.MaxSize,
		CanWrite:       c.Memory != nil && c.Memory.Writable,
		ActionMutate:   *m.ActionMutate,
		ActionTeamRef:  *m.ActionTeamRef,
		LearnerDelete:  *m.LearnerDelete,
		LearnerAdd:     *m.LearnerAdd,
		LearnerMutate:  *m.LearnerMutate,
		MaxTeamSize:    *m.MaxTeamSize,
	}
}

// Args flattens the validated configuration into the string-keyed argument
// map persisted alongside a trained model.
func (c *TangleConfig) Args() map[string]string {
	args := map[string]string{
		"version":                  Version,
		"run.name":                 c.Run.Name,
		"run.seed":                 strconv.FormatUint(c.SeedValue(), 10),
		"run.generations":          strconv.Itoa(c.Run.Generations),
		"run.population":           strconv.Itoa(c.Run.Population),
		"run.keep_fraction":        formatFloat(*c.Run.KeepFraction),
		"run.initial_team_size":    strconv.Itoa(*c.Run.InitialTeamSize),
		"program.max_size":         strconv.Itoa(c.Program.MaxSize),
		"program.initial_size":     strconv.Itoa(c.Program.InitialSize),
		"program.action_registers": strconv.Itoa(c.Program.ActionRegisters),
		"program.action_outputs":   strconv.Itoa(c.Program.ActionOutputs),
		"actions.program_actions":  formatFloat(c.Actions.ProgramActions),
		"fitness.strategy":         c.Fitness.Strategy,
		"dataset.path":             c.Dataset.Path,
		tpg.MemorySeedArg:          strconv.FormatUint(c.SeedValue()^0x9E3779B97F4A7C15, 10),
	}
	if c.Run.TargetReward != nil {
		args["run.target_reward"] = formatFloat(*c.Run.TargetReward)
	}

	p := c.MutationParams()
	args["mutation.program_delete"] = formatFloat(p.ProgramDelete)
	args["mutation.program_add"] = formatFloat(p.ProgramAdd)
	args["mutation.program_swap"] = formatFloat(p.ProgramSwap)
	args["mutation.program_mutate"] = formatFloat(p.ProgramMutate)
	args["mutation.action_mutate"] = formatFloat(p.ActionMutate)
	args["mutation.action_team_ref"] = formatFloat(p.ActionTeamRef)
	args["mutation.learner_delete"] = formatFloat(p.LearnerDelete)
	args["mutation.learner_add"] = formatFloat(p.LearnerAdd)
	args["mutation.learner_mutate"] = formatFloat(p.LearnerMutate)
	args["mutation.max_team_size"] = strconv.Itoa(p.MaxTeamSize)

	if c.Memory != nil {
		args["memory.rows"] = strconv.Itoa(c.Memory.Rows)
		args["memory.cols"] = strconv.Itoa(c.Memory.Cols)
		args["memory.probability"] = formatFloat(c.Memory.Probability)
		args["memory.writable"] = strconv.FormatBool(c.Memory.Writable)
	}
	if len(c.Actions.Labels) > 0 {
		labels := make([]string, len(c.Actions.Labels))
		for i, l := range c.Actions.Labels {
			labels[i] = strconv.FormatInt(l, 10)
		}
		args["actions.labels"] = strings.Join(labels, ",")
	}
	return args
}

// MemorySeed returns the seed the memory bank's commit RNG starts from.
func MemorySeed(args map[string]string) uint64 {
	seed, _ := strconv.ParseUint(args[tpg.MemorySeedArg], 10, 64)
	return seed
}

// Load reads and validates tangle.yml from the specified path
func Load(path string) (*TangleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config TangleConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefault(p **float64, v float64) {
	if *p == nil {
		*p = floatPtr(v)
	}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
