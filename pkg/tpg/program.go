package tpg

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
)

const (
	// BidRegisters is the register file size of every bidding program.
	BidRegisters = 8

	// MaxRegisters is the largest register file addressable by the 8-bit dest field.
	MaxRegisters = destMask + 1

	expLimit = 700.0
)

// Program is an ordered instruction sequence executed against a zeroed register file.
// A Program owns its instructions exclusively; the memory bank it may address is shared.
type Program struct {
	instructions []Instruction
	registers    int
	outputs      int

	// Writable permits MEMORY store instructions to commit to the bank.
	Writable bool

	// retain keeps register contents between calls to Run. Off unless set explicitly.
	retain bool
	mu     sync.Mutex
	state  []float64

	bank *MemoryBank
}

// NewProgram builds a program from instructions. registers must be in
// [1, MaxRegisters] and outputs in [1, registers].
func NewProgram(instructions []Instruction, registers, outputs int) (*Program, error) {
	if registers < 1 || registers > MaxRegisters {
		return nil, fmt.Errorf("register count must be in [1, %d], got %d", MaxRegisters, registers)
	}
	if outputs < 1 || outputs > registers {
		return nil, fmt.Errorf("output count must be in [1, %d], got %d", registers, outputs)
	}
	if len(instructions) == 0 {
		return nil, fmt.Errorf("program needs at least one instruction")
	}
	ins := make([]Instruction, len(instructions))
	copy(ins, instructions)
	return &Program{instructions: ins, registers: registers, outputs: outputs}, nil
}

// NewBidProgram builds a bidding program: BidRegisters registers, one output.
func NewBidProgram(instructions []Instruction) (*Program, error) {
	return NewProgram(instructions, BidRegisters, 1)
}

// RandomProgram draws a program of length in [1, size].
func RandomProgram(rng *rand.Rand, size, registers, outputs int, canWrite bool) (*Program, error) {
	if size < 1 {
		return nil, fmt.Errorf("program size must be >= 1, got %d", size)
	}
	n := 1 + rng.IntN(size)
	ins := make([]Instruction, n)
	for i := range ins {
		ins[i] = RandomInstruction(rng, canWrite)
	}
	p, err := NewProgram(ins, registers, outputs)
	if err != nil {
		return nil, err
	}
	p.Writable = canWrite
	return p, nil
}

// SetRetainRegisters switches register retention on or off and clears any retained state.
// A retaining program is no longer a pure function of its input.
func (p *Program) SetRetainRegisters(retain bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retain = retain
	p.state = nil
}

// RetainsRegisters reports whether registers survive between runs.
func (p *Program) RetainsRegisters() bool {
	return p.retain
}

// BindMemory attaches the shared memory bank. A nil bank makes MEMORY reads return 0.
func (p *Program) BindMemory(bank *MemoryBank) {
	p.bank = bank
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.instructions)
}

// Registers returns the register file size.
func (p *Program) Registers() int {
	return p.registers
}

// Outputs returns how many leading registers Run returns.
func (p *Program) Outputs() int {
	return p.outputs
}

// Instructions returns a copy of the instruction sequence.
func (p *Program) Instructions() []Instruction {
	out := make([]Instruction, len(p.instructions))
	copy(out, p.instructions)
	return out
}

// Clone deep-copies the program. The clone shares the memory bank and starts with fresh registers.
func (p *Program) Clone() *Program {
	return &Program{
		instructions: p.Instructions(),
		registers:    p.registers,
		outputs:      p.outputs,
		Writable:     p.Writable,
		retain:       p.retain,
		bank:         p.bank,
	}
}

// Equal reports whether two programs have identical instructions and shape.
func (p *Program) Equal(o *Program) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.registers != o.registers || p.outputs != o.outputs || p.Writable != o.Writable ||
		p.retain != o.retain || len(p.instructions) != len(o.instructions) {
		return false
	}
	for i := range p.instructions {
		if p.instructions[i] != o.instructions[i] {
			return false
		}
	}
	return true
}

// Run executes every instruction in order and returns the first Outputs registers.
func (p *Program) Run(input []float64) []float64 {
	var reg []float64
	if p.retain {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.state == nil {
			p.state = make([]float64, p.registers)
		}
		reg = p.state
	} else {
		reg = make([]float64, p.registers)
	}

	for _, ins := range p.instructions {
		d := int(ins.Dest()) % len(reg)
		if ins.Store() {
			if p.Writable && p.bank != nil {
				p.bank.Store(ins.Source(), reg[d])
			}
			continue
		}
		reg[d] = apply(ins.Op(), reg[d], p.operand(ins, reg, input))
	}

	out := make([]float64, p.outputs)
	copy(out, reg[:p.outputs])
	return out
}

func (p *Program) operand(ins Instruction, reg, input []float64) float64 {
	switch ins.Mode() {
	case ModeInput:
		if len(input) == 0 {
			return 0
		}
		return input[InputIndex(ins.Source(), len(input))]
	case ModeMemory:
		if p.bank == nil {
			return 0
		}
		return p.bank.Load(ins.Source())
	default:
		return reg[int(ins.Source()%uint32(len(reg)))]
	}
}

// InputIndex resolves an INPUT operand address against an input of length n > 0.
func InputIndex(addr uint32, n int) int {
	return int(uint64(addr) % uint64(n))
}

func apply(op Op, a, x float64) float64 {
	var r float64
	switch op {
	case OpAdd:
		r = a + x
	case OpSub:
		r = a - x
	case OpMul:
		r = a * x
	case OpDiv:
		if x == 0 {
			r = a
		} else {
			r = a / x
		}
	case OpCos:
		r = math.Cos(x)
	case OpLog:
		if x == 0 {
			r = a
		} else {
			r = math.Log(math.Abs(x))
		}
	case OpExp:
		r = math.Exp(math.Min(x, expLimit))
	case OpCond:
		r = a
		if a < x {
			r = -a
		}
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Sigmoid squashes a raw program output into a bid in (0, 1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
