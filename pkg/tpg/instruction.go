package tpg

import (
	"fmt"
	"math/rand/v2"
)

// Instruction is a single register-machine operation packed into one 64-bit word.
//
// Layout (least significant bit first):
//
//	┌──────────┬────────────────┬────────┬──────┬───────┬──────────┐
//	│   dest   │     source     │ opcode │ mode │ store │  unused  │
//	│  8 bits  │    32 bits     │ 4 bits │2 bits│ 1 bit │ 17 bits  │
//	└──────────┴────────────────┴────────┴──────┴───────┴──────────┘
//
// Field values are stored raw and resolved at execution time (dest modulo the
// register count, opcode modulo the opcode count), so every bit pattern is a
// valid instruction. Instructions are immutable; mutation replaces them.
type Instruction uint64

const (
	destShift   = 0
	sourceShift = 8
	opShift     = 40
	modeShift   = 44
	storeShift  = 46

	destMask   = 0xFF
	sourceMask = 0xFFFFFFFF
	opMask     = 0xF
	modeMask   = 0x3
	storeMask  = 0x1

	instructionBits = 47
)

// Mode selects where an instruction's source operand comes from.
type Mode uint8

const (
	// ModeRegister reads the program's own register file
	ModeRegister Mode = iota
	// ModeInput reads the external feature vector, wrapping the address
	ModeInput
	// ModeMemory reads (or, with the store flag, writes) the shared memory bank
	ModeMemory

	modeCount = 3
)

// String returns the assembler mnemonic for the mode.
func (m Mode) String() string {
	switch m {
	case ModeRegister:
		return "R"
	case ModeInput:
		return "IN"
	case ModeMemory:
		return "MEM"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Op is an arithmetic operation applied to the destination register and the source operand.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpCos
	OpLog
	OpExp
	OpCond

	opCount = 8
)

var opNames = [opCount]string{"add", "sub", "mul", "div", "cos", "log", "exp", "cond"}

// String returns the assembler mnemonic for the op.
func (o Op) String() string {
	if int(o) < opCount {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// NewInstruction packs the given fields. Out-of-range field values are masked.
func NewInstruction(mode Mode, op Op, source uint32, dest uint8, store bool) Instruction {
	var w uint64
	w |= uint64(dest&destMask) << destShift
	w |= uint64(source) << sourceShift
	w |= uint64(op&opMask) << opShift
	w |= uint64(mode&modeMask) << modeShift
	if store {
		w |= storeMask << storeShift
	}
	return Instruction(w)
}

// RandomInstruction draws a uniformly random instruction. The store flag is
// only ever set on MEMORY-mode instructions and only when canWrite is true.
func RandomInstruction(rng *rand.Rand, canWrite bool) Instruction {
	mode := Mode(rng.IntN(modeCount))
	store := canWrite && mode == ModeMemory && rng.IntN(2) == 0
	return NewInstruction(mode, Op(rng.IntN(opCount)), rng.Uint32(), uint8(rng.UintN(destMask+1)), store)
}

// Dest returns the raw destination register field.
func (i Instruction) Dest() uint8 {
	return uint8((uint64(i) >> destShift) & destMask)
}

// Source returns the raw source operand address.
func (i Instruction) Source() uint32 {
	return uint32((uint64(i) >> sourceShift) & sourceMask)
}

// Op returns the opcode, resolved into the implemented repertoire.
func (i Instruction) Op() Op {
	return Op(((uint64(i) >> opShift) & opMask) % opCount)
}

// Mode returns the addressing mode. The unused fourth encoding aliases to ModeRegister.
func (i Instruction) Mode() Mode {
	m := Mode((uint64(i) >> modeShift) & modeMask)
	if m >= modeCount {
		return ModeRegister
	}
	return m
}

// Store reports whether this is a MEMORY write. The flag is ignored in other modes.
func (i Instruction) Store() bool {
	return i.Mode() == ModeMemory && (uint64(i)>>storeShift)&storeMask == 1
}

// Words returns the instruction's bit vector as 64-bit words for persistence.
func (i Instruction) Words() []uint64 {
	return []uint64{uint64(i)}
}

// InstructionFromWords rebuilds an instruction from its persisted words.
func InstructionFromWords(words []uint64) (Instruction, error) {
	if len(words) != 1 {
		return 0, fmt.Errorf("instruction expects 1 word, got %d", len(words))
	}
	if words[0]>>instructionBits != 0 {
		return 0, fmt.Errorf("instruction word %#x has bits above %d set", words[0], instructionBits)
	}
	return Instruction(words[0]), nil
}

// String renders the instruction in a compact assembler form, e.g. "r3 = r3 add IN[17]".
func (i Instruction) String() string {
	if i.Store() {
		return fmt.Sprintf("MEM[%d] <- r%d", i.Source(), i.Dest())
	}
	return fmt.Sprintf("r%d = r%d %s %s[%d]", i.Dest(), i.Dest(), i.Op(), i.Mode(), i.Source())
}
