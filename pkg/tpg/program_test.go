package tpg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramRunIsPure(t *testing.T) {
	rng := testRand(3)
	bank, err := NewMemoryBank(4, 4, 1, 9)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		p, err := RandomProgram(rng, 20, BidRegisters, 1, false)
		require.NoError(t, err)
		p.BindMemory(bank)
		input := []float64{rng.Float64(), -rng.Float64() * 10, rng.Float64() * 100}

		first := p.Run(input)
		for j := 0; j < 5; j++ {
			got := p.Run(input)
			require.Equal(t, math.Float64bits(first[0]), math.Float64bits(got[0]), "run %d differs", j)
		}
	}
}

func TestInputIndexWraps(t *testing.T) {
	rng := testRand(4)
	for i := 0; i < 1000; i++ {
		addr := rng.Uint32()
		n := 1 + rng.IntN(50)
		idx := InputIndex(addr, n)
		assert.Equal(t, int(addr%uint32(n)), idx)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, n)
	}
}

func TestProgramInputAddressingAliases(t *testing.T) {
	// address 7 on a 3-feature input resolves to index 1
	p, err := NewBidProgram([]Instruction{NewInstruction(ModeInput, OpAdd, 7, 0, false)})
	require.NoError(t, err)
	assert.Equal(t, []float64{20}, p.Run([]float64{10, 20, 30}))
	assert.Equal(t, []float64{0}, p.Run(nil), "empty input reads 0")
}

func TestProgramMemoryWithoutBank(t *testing.T) {
	p, err := NewBidProgram([]Instruction{
		NewInstruction(ModeRegister, OpAdd, 0, 0, false),
		NewInstruction(ModeMemory, OpAdd, 12, 0, false),
		NewInstruction(ModeMemory, OpAdd, 12, 0, true),
	})
	require.NoError(t, err)
	p.Writable = true
	assert.Equal(t, []float64{0}, p.Run([]float64{1}))
}

func TestProgramMemoryStore(t *testing.T) {
	bank, err := NewMemoryBank(2, 3, 1, 1)
	require.NoError(t, err)

	p, err := NewBidProgram([]Instruction{
		NewInstruction(ModeInput, OpAdd, 0, 0, false),
		NewInstruction(ModeMemory, OpAdd, 4, 0, true),
	})
	require.NoError(t, err)
	p.BindMemory(bank)

	p.Run([]float64{6})
	assert.Equal(t, 0.0, bank.Read(1, 1), "read-only program must not commit")

	p.Writable = true
	p.Run([]float64{6})
	assert.Equal(t, 6.0, bank.Read(1, 1))

	reader, err := NewBidProgram([]Instruction{NewInstruction(ModeMemory, OpAdd, 4, 0, false)})
	require.NoError(t, err)
	reader.BindMemory(bank)
	assert.Equal(t, []float64{6}, reader.Run(nil))
}

func TestProgramRegistersResetUnlessRetained(t *testing.T) {
	p, err := NewBidProgram([]Instruction{NewInstruction(ModeInput, OpAdd, 0, 0, false)})
	require.NoError(t, err)

	assert.Equal(t, []float64{2}, p.Run([]float64{2}))
	assert.Equal(t, []float64{2}, p.Run([]float64{2}))

	p.SetRetainRegisters(true)
	assert.True(t, p.RetainsRegisters())
	assert.Equal(t, []float64{2}, p.Run([]float64{2}))
	assert.Equal(t, []float64{4}, p.Run([]float64{2}))

	p.SetRetainRegisters(false)
	assert.Equal(t, []float64{2}, p.Run([]float64{2}))
}

func TestProgramOutputs(t *testing.T) {
	p, err := NewProgram([]Instruction{
		NewInstruction(ModeInput, OpAdd, 0, 0, false),
		NewInstruction(ModeInput, OpAdd, 1, 1, false),
	}, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, p.Run([]float64{3, 4}))
}

func TestNewProgramValidation(t *testing.T) {
	ins := []Instruction{NewInstruction(ModeRegister, OpAdd, 0, 0, false)}

	_, err := NewProgram(ins, 0, 1)
	assert.Error(t, err)
	_, err = NewProgram(ins, MaxRegisters+1, 1)
	assert.Error(t, err)
	_, err = NewProgram(ins, 4, 5)
	assert.Error(t, err)
	_, err = NewProgram(nil, 4, 1)
	assert.Error(t, err)
}

func TestApplyKeepsRegistersFinite(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		a, x float64
		want float64
	}{
		{"div by zero keeps dest", OpDiv, 3, 0, 3},
		{"log of zero keeps dest", OpLog, 3, 0, 3},
		{"log of negative uses magnitude", OpLog, 0, -math.E, 1},
		{"exp exponent is clamped", OpExp, 0, 1e6, math.Exp(expLimit)},
		{"mul overflow becomes zero", OpMul, math.MaxFloat64, 10, 0},
		{"cond negates when smaller", OpCond, 1, 2, -1},
		{"cond keeps when larger", OpCond, 3, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, apply(tt.op, tt.a, tt.x), 1e-12)
		})
	}
}

func TestSigmoidBids(t *testing.T) {
	assert.InDelta(t, 0.993, Sigmoid(5), 0.001)
	assert.InDelta(t, 0.0067, Sigmoid(-5), 0.0001)
}
