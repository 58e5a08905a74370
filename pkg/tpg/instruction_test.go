package tpg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionFields(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		op     Op
		source uint32
		dest   uint8
		store  bool
	}{
		{"register add", ModeRegister, OpAdd, 3, 1, false},
		{"input max source", ModeInput, OpCond, 0xFFFFFFFF, 255, false},
		{"memory store", ModeMemory, OpMul, 77, 7, true},
		{"store flag ignored outside memory", ModeInput, OpDiv, 5, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := NewInstruction(tt.mode, tt.op, tt.source, tt.dest, tt.store)
			assert.Equal(t, tt.mode, ins.Mode())
			assert.Equal(t, tt.op, ins.Op())
			assert.Equal(t, tt.source, ins.Source())
			assert.Equal(t, tt.dest, ins.Dest())
			assert.Equal(t, tt.store && tt.mode == ModeMemory, ins.Store())
		})
	}
}

func TestRandomInstructionRespectsCanWrite(t *testing.T) {
	rng := testRand(1)
	for i := 0; i < 2000; i++ {
		assert.False(t, RandomInstruction(rng, false).Store())
	}

	sawStore := false
	for i := 0; i < 2000; i++ {
		ins := RandomInstruction(rng, true)
		if ins.Store() {
			sawStore = true
			assert.Equal(t, ModeMemory, ins.Mode())
		}
	}
	assert.True(t, sawStore, "expected some store instructions when writing is allowed")
}

func TestInstructionWords(t *testing.T) {
	rng := testRand(2)
	for i := 0; i < 100; i++ {
		ins := RandomInstruction(rng, true)
		back, err := InstructionFromWords(ins.Words())
		require.NoError(t, err)
		assert.Equal(t, ins, back)
	}

	t.Run("rejects wrong word count", func(t *testing.T) {
		_, err := InstructionFromWords([]uint64{1, 2})
		assert.Error(t, err)
	})

	t.Run("rejects bits above the layout", func(t *testing.T) {
		_, err := InstructionFromWords([]uint64{1 << 60})
		assert.Error(t, err)
	})
}

func TestUnusedModeAliasesToRegister(t *testing.T) {
	ins := Instruction(uint64(3) << modeShift)
	assert.Equal(t, ModeRegister, ins.Mode())
}
