// Package tpg implements Tangled Program Graphs: populations of teams of
// bidding programs that evolve into a directed, possibly cyclic graph.
//
// # Structure
//
// A Learner pairs a register-machine bidding program with an Action. An action
// is atomic (a label, or a program emitting a vector) or a reference to
// another Team. A Team holds an ordered set of learners and decides by
// running every learner's program on the input and following the highest bid.
// Teams that no learner references are roots; the population is evaluated
// through its roots only.
//
// Teams and learners live in a Graph arena and are addressed by ids that are
// never reused. Learners are shared between teams and carry a reference count
// equal to the number of teams holding them; teams carry a count of the
// learners whose action points at them. Every change to membership or to an
// action goes through a Graph method so the counts stay exact. Collect frees
// unreferenced learners and teams unreachable from any root.
//
// # Decisions
//
// Decide enters each team at most once per call. A learner whose action
// targets an already visited team is excluded from the auction; when nothing
// is left the call ends with Decision.NoDecision set. Bid ties go to the
// lowest learner id.
//
// # Memory
//
// A population may share one MemoryBank. Programs read it with the load
// instruction and, when writing is enabled, commit values with per-row
// probability. The bank owns its own random source so decisions never draw
// from the training RNG.
//
// # Persistence
//
// Marshal and Unmarshal encode a complete Model (arguments, RNG state, memory
// bank and graph) in a versioned binary format. Unmarshal validates every id
// and count before returning and fails with ErrCorruptModel otherwise.
package tpg
