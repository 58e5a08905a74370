package tpg

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrNoChampion is returned when a model has no champion team to decide with.
var ErrNoChampion = errors.New("model has no champion team")

// Model is a complete trained state: run arguments, RNG, memory bank and population.
type Model struct {
	// Args is the string-keyed argument map the model was trained with.
	Args map[string]string
	// RNG drives every stochastic choice of the training loop.
	RNG   *rand.PCG
	Graph *Graph

	Generation int
	Champion   TeamID
	Labels     []int64

	rng *rand.Rand
}

// NewModel wraps a graph with a seeded RNG.
func NewModel(args map[string]string, seed uint64, graph *Graph, labels []int64) *Model {
	if args == nil {
		args = map[string]string{}
	}
	return &Model{
		Args:   args,
		RNG:    rand.NewPCG(seed, seed^0xDA3E39CB94B95BDB),
		Graph:  graph,
		Labels: append([]int64(nil), labels...),
	}
}

// Rand returns a generator drawing from the model's RNG state.
func (m *Model) Rand() *rand.Rand {
	if m.rng == nil {
		m.rng = rand.New(m.RNG)
	}
	return m.rng
}

// Memory returns the population's memory bank, or nil.
func (m *Model) Memory() *MemoryBank {
	return m.Graph.Memory()
}

// Decide runs the champion team on input.
func (m *Model) Decide(input []float64) (Decision, error) {
	if m.Champion == 0 {
		return Decision{}, ErrNoChampion
	}
	if _, ok := m.Graph.Team(m.Champion); !ok {
		return Decision{}, fmt.Errorf("%w: champion %d is not in the graph", ErrNoChampion, m.Champion)
	}
	return m.Graph.Decide(m.Champion, input)
}
