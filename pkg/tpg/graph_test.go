package tpg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAllocatorMonotonic(t *testing.T) {
	var ids IDAllocator
	assert.Equal(t, TeamID(1), ids.NextTeam())
	assert.Equal(t, TeamID(2), ids.NextTeam())
	assert.Equal(t, LearnerID(1), ids.NextLearner())
	lt, ll := ids.Last()
	assert.Equal(t, TeamID(2), lt)
	assert.Equal(t, LearnerID(1), ll)
}

func TestGraphIDsNeverReused(t *testing.T) {
	g := NewGraph(nil)
	t1 := g.NewTeam(0)
	require.NoError(t, g.RemoveTeam(t1.ID))
	g.Collect()
	t2 := g.NewTeam(0)
	assert.Greater(t, t2.ID, t1.ID)
}

func TestAttachDetachCounts(t *testing.T) {
	g := NewGraph(nil)
	ta, tb := g.NewTeam(0), g.NewTeam(0)
	l := addLearner(t, g, constProgram(t, false), LabelAction(1))
	learner, _ := g.Learner(l)

	require.NoError(t, g.Attach(ta.ID, l))
	require.NoError(t, g.Attach(tb.ID, l))
	assert.Equal(t, 2, learner.RefCount())
	assert.Error(t, g.Attach(ta.ID, l), "double attach")

	require.NoError(t, g.Detach(ta.ID, l))
	assert.Equal(t, 1, learner.RefCount())
	assert.Error(t, g.Detach(ta.ID, l), "double detach")
	require.NoError(t, g.CheckInvariants())
}

func TestRetargetSwapsTeamCounts(t *testing.T) {
	g := NewGraph(nil)
	owner, a, b := g.NewTeam(0), g.NewTeam(0), g.NewTeam(0)
	l := addLearner(t, g, constProgram(t, false), TeamAction(a.ID))
	require.NoError(t, g.Attach(owner.ID, l))
	assert.Equal(t, 1, a.InDegree())

	require.NoError(t, g.Retarget(l, TeamAction(b.ID)))
	assert.Equal(t, 0, a.InDegree())
	assert.Equal(t, 1, b.InDegree())

	// retargeting onto the current target must never dip through zero
	require.NoError(t, g.Retarget(l, TeamAction(b.ID)))
	assert.Equal(t, 1, b.InDegree())

	require.NoError(t, g.Retarget(l, LabelAction(3)))
	assert.Equal(t, 0, b.InDegree())
	assert.True(t, b.IsRoot())

	assert.Error(t, g.Retarget(l, TeamAction(999)))
	require.NoError(t, g.CheckInvariants())
}

func TestRefCountInvariantUnderRandomOperations(t *testing.T) {
	rng := testRand(11)
	g := NewGraph(nil)
	var teams []TeamID
	var learners []LearnerID
	for i := 0; i < 6; i++ {
		teams = append(teams, g.NewTeam(0).ID)
	}
	for i := 0; i < 12; i++ {
		learners = append(learners, addLearner(t, g, constProgram(t, false), LabelAction(int64(i))))
	}

	for step := 0; step < 2000; step++ {
		tid := teams[rng.IntN(len(teams))]
		lid := learners[rng.IntN(len(learners))]
		switch rng.IntN(3) {
		case 0:
			_ = g.Attach(tid, lid)
		case 1:
			_ = g.Detach(tid, lid)
		case 2:
			if rng.IntN(2) == 0 {
				require.NoError(t, g.Retarget(lid, TeamAction(tid)))
			} else {
				require.NoError(t, g.Retarget(lid, LabelAction(int64(step))))
			}
		}

		for _, id := range learners {
			l, _ := g.Learner(id)
			held := 0
			for _, team := range teams {
				tm, _ := g.Team(team)
				if tm.Has(id) {
					held++
				}
			}
			require.Equal(t, held, l.RefCount(), "step %d learner %d", step, id)
			require.GreaterOrEqual(t, l.RefCount(), 0)
		}
		require.NoError(t, g.CheckInvariants())
	}
}

func TestRemoveTeamRefusesTargetedTeam(t *testing.T) {
	g := NewGraph(nil)
	owner, target := g.NewTeam(0), g.NewTeam(0)
	l := addLearner(t, g, constProgram(t, false), TeamAction(target.ID))
	require.NoError(t, g.Attach(owner.ID, l))

	err := g.RemoveTeam(target.ID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "still targeted")
}

func TestCollectFreesUnreferencedLearners(t *testing.T) {
	g := NewGraph(nil)
	keep, drop := g.NewTeam(0), g.NewTeam(0)
	shared := addLearner(t, g, constProgram(t, false), LabelAction(1))
	only := addLearner(t, g, constProgram(t, true), LabelAction(2))
	require.NoError(t, g.Attach(keep.ID, shared))
	require.NoError(t, g.Attach(drop.ID, shared))
	require.NoError(t, g.Attach(drop.ID, only))

	onlyLearner, _ := g.Learner(only)
	require.Equal(t, 1, onlyLearner.RefCount())

	require.NoError(t, g.RemoveTeam(drop.ID))
	assert.Equal(t, 0, onlyLearner.RefCount())

	report := g.Collect()
	assert.Equal(t, []LearnerID{only}, report.Learners)
	assert.Empty(t, report.Teams)
	_, ok := g.Learner(only)
	assert.False(t, ok)
	assert.Nil(t, onlyLearner.Program, "collected learner releases its program")

	sharedLearner, ok := g.Learner(shared)
	require.True(t, ok)
	assert.Equal(t, 1, sharedLearner.RefCount())
	require.NoError(t, g.CheckInvariants())
}

func TestCollectCascadesThroughTeamReferences(t *testing.T) {
	// root -> child: dropping root frees its learner, which releases child, making child a root.
	g := NewGraph(nil)
	root, child := g.NewTeam(0), g.NewTeam(0)
	pointer := addLearner(t, g, constProgram(t, false), TeamAction(child.ID))
	atomic := addLearner(t, g, constProgram(t, false), LabelAction(1))
	require.NoError(t, g.Attach(root.ID, pointer))
	require.NoError(t, g.Attach(child.ID, atomic))
	require.False(t, child.IsRoot())

	require.NoError(t, g.RemoveTeam(root.ID))
	report := g.Collect()
	assert.Equal(t, []LearnerID{pointer}, report.Learners)
	assert.True(t, child.IsRoot())
	assert.Equal(t, []TeamID{child.ID}, g.Roots())
	require.NoError(t, g.CheckInvariants())
}

func TestCollectRemovesOrphanedCycles(t *testing.T) {
	g := NewGraph(nil)
	root, a, b := g.NewTeam(0), g.NewTeam(0), g.NewTeam(0)
	toA := addLearner(t, g, constProgram(t, false), TeamAction(a.ID))
	aToB := addLearner(t, g, constProgram(t, false), TeamAction(b.ID))
	bToA := addLearner(t, g, constProgram(t, false), TeamAction(a.ID))
	require.NoError(t, g.Attach(root.ID, toA))
	require.NoError(t, g.Attach(a.ID, aToB))
	require.NoError(t, g.Attach(b.ID, bToA))

	assert.Empty(t, g.Collect().Teams, "cycle reachable from a root survives")

	require.NoError(t, g.RemoveTeam(root.ID))
	report := g.Collect()
	assert.Equal(t, []TeamID{a.ID, b.ID}, report.Teams)
	assert.ElementsMatch(t, []LearnerID{toA, aToB, bToA}, report.Learners)
	assert.Zero(t, g.TeamCount())
	assert.Zero(t, g.LearnerCount())
	require.NoError(t, g.CheckInvariants())
}

func TestCollectIsDeterministic(t *testing.T) {
	build := func() *Graph {
		rng := testRand(21)
		m, err := NewMutator(rng, testParams(), []int64{0, 1, 2})
		require.NoError(t, err)
		g := NewGraph(nil)
		var roots []TeamID
		for i := 0; i < 8; i++ {
			tm, err := m.NewTeam(g, 0, 4)
			require.NoError(t, err)
			roots = append(roots, tm.ID)
		}
		for i := 0; i < 8; i++ {
			child, err := g.CloneTeam(roots[i], 1)
			require.NoError(t, err)
			require.NoError(t, m.MutateTeam(g, child.ID, 1, roots))
		}
		return g
	}

	g1, g2 := build(), build()
	for _, g := range []*Graph{g1, g2} {
		for _, id := range g.Roots()[:3] {
			require.NoError(t, g.RemoveTeam(id))
		}
	}
	assert.Equal(t, g1.Collect(), g2.Collect())
}
