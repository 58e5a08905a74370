package tpg

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// constProgram returns a bidding program that outputs 1+2+2 = 5 (or -5 when negate is set)
// on the input [1, 0, 2].
func constProgram(t *testing.T, negate bool) *Program {
	t.Helper()
	op := OpAdd
	if negate {
		op = OpSub
	}
	p, err := NewBidProgram([]Instruction{
		NewInstruction(ModeInput, op, 0, 0, false),
		NewInstruction(ModeInput, op, 2, 0, false),
		NewInstruction(ModeInput, op, 2, 0, false),
	})
	require.NoError(t, err)
	return p
}

func addLearner(t *testing.T, g *Graph, prog *Program, act Action) LearnerID {
	t.Helper()
	id, err := g.AddLearner(NewLearner(0, prog, act))
	require.NoError(t, err)
	return id
}

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func testParams() MutationParams {
	return MutationParams{
		ProgramDelete:  0.3,
		ProgramAdd:     0.3,
		ProgramSwap:    0.3,
		ProgramMutate:  0.3,
		MaxProgramSize: 12,
		CanWrite:       true,
		ActionMutate:   0.5,
		ActionTeamRef:  0.5,
		LearnerDelete:  0.3,
		LearnerAdd:     0.3,
		LearnerMutate:  0.5,
		MaxTeamSize:    6,
	}
}
