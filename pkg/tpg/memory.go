package tpg

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// MemoryBank is a rows x cols scratchpad shared by reference across a population.
// Each row carries the probability that a write addressed to it is committed.
//
// Concurrency: every read, write and commit draw goes through a single bank-wide
// mutex, so parallel evaluations observe a serialised history of cell updates.
type MemoryBank struct {
	mu     sync.Mutex
	rows   int
	cols   int
	cells  []float64
	probs  []float64
	rng    *rand.Rand
	source *rand.PCG
}

// NewMemoryBank creates a zeroed bank with every row's commit probability set to prob.
func NewMemoryBank(rows, cols int, prob float64, seed uint64) (*MemoryBank, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("memory bank needs positive dimensions, got %dx%d", rows, cols)
	}
	if prob < 0 || prob > 1 {
		return nil, fmt.Errorf("memory commit probability must be in [0, 1], got %v", prob)
	}
	probs := make([]float64, rows)
	for i := range probs {
		probs[i] = prob
	}
	src := rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)
	return &MemoryBank{
		rows:   rows,
		cols:   cols,
		cells:  make([]float64, rows*cols),
		probs:  probs,
		rng:    rand.New(src),
		source: src,
	}, nil
}

// Rows returns the number of rows.
func (m *MemoryBank) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *MemoryBank) Cols() int { return m.cols }

// Address maps a flat operand address onto a (row, col) cell.
func (m *MemoryBank) Address(addr uint32) (int, int) {
	a := uint64(addr)
	return int((a / uint64(m.cols)) % uint64(m.rows)), int(a % uint64(m.cols))
}

// Read returns the value at (row, col). Out-of-range coordinates read 0.
func (m *MemoryBank) Read(row, col int) float64 {
	if !m.inBounds(row, col) {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[row*m.cols+col]
}

// Write commits value to (row, col) when canWrite is set and a fresh draw falls
// below the row's probability. It reports whether the write was committed.
func (m *MemoryBank) Write(row, col int, value float64, canWrite bool) bool {
	if !canWrite || !m.inBounds(row, col) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng.Float64() >= m.probs[row] {
		return false
	}
	m.cells[row*m.cols+col] = value
	return true
}

// Load reads the cell addressed by a flat operand address.
func (m *MemoryBank) Load(addr uint32) float64 {
	r, c := m.Address(addr)
	return m.Read(r, c)
}

// Store writes to the cell addressed by a flat operand address on behalf of a writable program.
func (m *MemoryBank) Store(addr uint32, value float64) bool {
	r, c := m.Address(addr)
	return m.Write(r, c, value, true)
}

// Probability returns the commit probability of a row.
func (m *MemoryBank) Probability(row int) float64 {
	if row < 0 || row >= m.rows {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probs[row]
}

// SetProbability sets the commit probability of a row.
func (m *MemoryBank) SetProbability(row int, prob float64) error {
	if row < 0 || row >= m.rows {
		return fmt.Errorf("row %d out of range [0, %d)", row, m.rows)
	}
	if prob < 0 || prob > 1 {
		return fmt.Errorf("probability must be in [0, 1], got %v", prob)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probs[row] = prob
	return nil
}

// MemorySnapshot is a point-in-time copy of bank contents, used to roll back a failed generation.
type MemorySnapshot struct {
	cells []float64
	probs []float64
	rng   []byte
}

// Snapshot copies the bank contents and commit RNG state.
func (m *MemoryBank) Snapshot() MemorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, _ := m.source.MarshalBinary()
	return MemorySnapshot{
		cells: append([]float64(nil), m.cells...),
		probs: append([]float64(nil), m.probs...),
		rng:   state,
	}
}

// Restore replaces the bank contents with a snapshot taken from the same bank.
func (m *MemoryBank) Restore(s MemorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.cells, s.cells)
	copy(m.probs, s.probs)
	if s.rng != nil {
		_ = m.source.UnmarshalBinary(s.rng)
	}
}

// Equal compares dimensions, cells and probabilities.
func (m *MemoryBank) Equal(o *MemoryBank) bool {
	if m == nil || o == nil {
		return m == o
	}
	a, b := m.Snapshot(), o.Snapshot()
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i := range a.cells {
		if a.cells[i] != b.cells[i] {
			return false
		}
	}
	for i := range a.probs {
		if a.probs[i] != b.probs[i] {
			return false
		}
	}
	return true
}

func (m *MemoryBank) inBounds(row, col int) bool {
	return row >= 0 && row < m.rows && col >= 0 && col < m.cols
}
