package tpg

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sort"
)

// Persisted stream layout, in order:
//
//	magic "TPG1"
//	(1) argument map     [len] {[len]key [len]value}...
//	(2) RNG state        [len] PCG binary state
//	(3) memory bank      [rows][cols] rows*cols doubles, [len] probability doubles,
//	                     [len] commit PCG binary state
//	(4) population       generation, champion, labels, id counters, learners, teams
//
// Every length field is written as n+1 and decremented on read; rows and cols
// of 0 mean the model has no memory bank. Doubles are IEEE-754 bits in little
// endian. Each instruction is a count-prefixed array of 64-bit words.
// Decoded lengths are only a bound: slices grow as payload is actually read.

// ErrCorruptModel is wrapped by every decoding failure.
var ErrCorruptModel = errors.New("corrupt model")

// MemorySeedArg is the argument key holding the seed a new memory bank's
// commit RNG starts from. Saved models carry the live RNG state instead.
const MemorySeedArg = "memory.seed"

const (
	magic     = "TPG1"
	maxLength = 1 << 26

	// initial capacity for slices sized by a decoded length
	growHint = 1024
)

// Marshal encodes a model into a byte slice.
func Marshal(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a model from a byte slice.
func Unmarshal(data []byte) (*Model, error) {
	return Decode(bytes.NewReader(data))
}

// Encode writes the model to w.
func Encode(w io.Writer, m *Model) error {
	if m == nil || m.Graph == nil || m.RNG == nil {
		return fmt.Errorf("encode: model is incomplete")
	}
	e := &encoder{w: bufio.NewWriter(w)}

	e.raw([]byte(magic))

	keys := make([]string, 0, len(m.Args))
	for k := range m.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.length(len(keys))
	for _, k := range keys {
		e.str(k)
		e.str(m.Args[k])
	}

	state, err := m.RNG.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode rng: %w", err)
	}
	e.bytes(state)

	if err := e.memory(m.Graph.memory); err != nil {
		return fmt.Errorf("encode memory rng: %w", err)
	}

	g := m.Graph
	e.varint(int64(m.Generation))
	e.uvarint(uint64(m.Champion))
	e.length(len(m.Labels))
	for _, l := range m.Labels {
		e.varint(l)
	}
	lastTeam, lastLearner := g.ids.Last()
	e.uvarint(uint64(lastTeam))
	e.uvarint(uint64(lastLearner))

	lids := g.LearnerIDs()
	e.length(len(lids))
	for _, id := range lids {
		l := g.learners[id]
		e.uvarint(uint64(l.ID))
		e.varint(int64(l.Birthday))
		e.uvarint(uint64(l.refs))
		e.program(l.Program)
		e.action(l.action)
	}

	tids := g.TeamIDs()
	e.length(len(tids))
	for _, id := range tids {
		t := g.teams[id]
		e.uvarint(uint64(t.ID))
		e.varint(int64(t.Birthday))
		e.uvarint(uint64(t.inRefs))
		e.length(len(t.learners))
		for _, lid := range t.learners {
			e.uvarint(uint64(lid))
		}
	}

	if e.err != nil {
		return fmt.Errorf("encode: %w", e.err)
	}
	return e.w.Flush()
}

// Decode reads a model from r. It either returns a fully consistent model or
// an error wrapping ErrCorruptModel; it never returns a partial model.
func Decode(r io.Reader) (*Model, error) {
	d := &decoder{r: bufio.NewReader(r)}

	head := d.raw(len(magic))
	if d.err == nil && string(head) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptModel, head)
	}

	args := make(map[string]string)
	n := d.length()
	for i := 0; i < n && d.err == nil; i++ {
		k := d.str()
		args[k] = d.str()
	}

	state := d.bytes()
	pcg := &rand.PCG{}
	if d.err == nil {
		if err := pcg.UnmarshalBinary(state); err != nil {
			return nil, fmt.Errorf("%w: rng state: %v", ErrCorruptModel, err)
		}
	}

	bank := d.memory()

	g := NewGraph(bank)
	m := &Model{Args: args, RNG: pcg, Graph: g}
	m.Generation = int(d.varint())
	m.Champion = TeamID(d.uvarint())
	n = d.length()
	for i := 0; i < n && d.err == nil; i++ {
		m.Labels = append(m.Labels, d.varint())
	}
	g.ids.lastTeam = TeamID(d.uvarint())
	g.ids.lastLearner = LearnerID(d.uvarint())

	n = d.length()
	for i := 0; i < n && d.err == nil; i++ {
		l := &Learner{}
		l.ID = LearnerID(d.uvarint())
		l.Birthday = int(d.varint())
		l.refs = int(d.uvarint())
		l.Program = d.program()
		l.action = d.action()
		if d.err != nil {
			break
		}
		if _, dup := g.learners[l.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate learner %d", ErrCorruptModel, l.ID)
		}
		g.learners[l.ID] = l
	}

	n = d.length()
	for i := 0; i < n && d.err == nil; i++ {
		t := &Team{}
		t.ID = TeamID(d.uvarint())
		t.Birthday = int(d.varint())
		t.inRefs = int(d.uvarint())
		k := d.length()
		for j := 0; j < k && d.err == nil; j++ {
			t.learners = append(t.learners, LearnerID(d.uvarint()))
		}
		if d.err != nil {
			break
		}
		if _, dup := g.teams[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate team %d", ErrCorruptModel, t.ID)
		}
		g.teams[t.ID] = t
	}

	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, d.err)
	}
	if err := g.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if m.Champion != 0 {
		if _, ok := g.teams[m.Champion]; !ok {
			return nil, fmt.Errorf("%w: champion %d is not in the graph", ErrCorruptModel, m.Champion)
		}
	}
	for _, id := range g.LearnerIDs() {
		g.bind(g.learners[id])
	}
	return m, nil
}

type encoder struct {
	w   *bufio.Writer
	err error
	buf [binary.MaxVarintLen64]byte
}

func (e *encoder) raw(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) uvarint(v uint64) {
	n := binary.PutUvarint(e.buf[:], v)
	e.raw(e.buf[:n])
}

func (e *encoder) varint(v int64) {
	n := binary.PutVarint(e.buf[:], v)
	e.raw(e.buf[:n])
}

func (e *encoder) length(n int) {
	e.uvarint(uint64(n) + 1)
}

func (e *encoder) word(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.raw(b[:])
}

func (e *encoder) float(f float64) {
	e.word(math.Float64bits(f))
}

func (e *encoder) bytes(b []byte) {
	e.length(len(b))
	e.raw(b)
}

func (e *encoder) str(s string) {
	e.bytes([]byte(s))
}

func (e *encoder) memory(m *MemoryBank) error {
	if m == nil {
		e.length(0)
		e.length(0)
		e.length(0)
		return nil
	}
	s := m.Snapshot()
	if s.rng == nil {
		return errors.New("commit rng state unavailable")
	}
	e.length(m.rows)
	e.length(m.cols)
	for _, c := range s.cells {
		e.float(c)
	}
	e.length(len(s.probs))
	for _, p := range s.probs {
		e.float(p)
	}
	e.bytes(s.rng)
	return nil
}

func (e *encoder) program(p *Program) {
	e.length(p.registers)
	e.length(p.outputs)
	var flags byte
	if p.Writable {
		flags |= 1
	}
	if p.retain {
		flags |= 2
	}
	e.raw([]byte{flags})
	e.length(len(p.instructions))
	for _, ins := range p.instructions {
		words := ins.Words()
		e.length(len(words))
		for _, w := range words {
			e.word(w)
		}
	}
}

func (e *encoder) action(a Action) {
	e.raw([]byte{byte(a.Kind)})
	switch a.Kind {
	case ActionLabel:
		e.varint(a.Label)
	case ActionProgram:
		e.program(a.Program)
	case ActionTeam:
		e.uvarint(uint64(a.Team))
	}
}

type decoder struct {
	r   *bufio.Reader
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) raw(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n <= growHint {
		b := make([]byte, n)
		if _, err := io.ReadFull(d.r, b); err != nil {
			d.fail("truncated stream: %v", err)
			return nil
		}
		return b
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
		d.fail("truncated stream: %v", err)
		return nil
	}
	return buf.Bytes()
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(d.r)
	if err != nil {
		d.fail("truncated varint: %v", err)
	}
	return v
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, err := binary.ReadVarint(d.r)
	if err != nil {
		d.fail("truncated varint: %v", err)
	}
	return v
}

func (d *decoder) length() int {
	v := d.uvarint()
	if d.err != nil {
		return 0
	}
	if v == 0 {
		d.fail("length field of 0 is reserved")
		return 0
	}
	if v-1 > maxLength {
		d.fail("length %d exceeds limit %d", v-1, maxLength)
		return 0
	}
	return int(v - 1)
}

func (d *decoder) word() uint64 {
	b := d.raw(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) float() float64 {
	return math.Float64frombits(d.word())
}

func (d *decoder) bytes() []byte {
	n := d.length()
	return d.raw(n)
}

func (d *decoder) str() string {
	return string(d.bytes())
}

func (d *decoder) memory() *MemoryBank {
	rows, cols := d.length(), d.length()
	if d.err != nil {
		return nil
	}
	if rows == 0 || cols == 0 {
		if rows != cols {
			d.fail("memory bank has %dx%d dimensions", rows, cols)
		}
		if n := d.length(); n != 0 {
			d.fail("memory bank absent but %d probabilities present", n)
		}
		return nil
	}
	if rows*cols > maxLength {
		d.fail("memory bank %dx%d exceeds limit", rows, cols)
		return nil
	}
	cells := make([]float64, 0, min(rows*cols, growHint))
	for i := 0; i < rows*cols && d.err == nil; i++ {
		cells = append(cells, d.float())
	}
	n := d.length()
	if d.err == nil && n != rows {
		d.fail("memory bank has %d rows but %d probabilities", rows, n)
	}
	probs := make([]float64, 0, min(n, growHint))
	for i := 0; i < n && d.err == nil; i++ {
		p := d.float()
		if p < 0 || p > 1 || p != p {
			d.fail("memory row %d probability %v out of range", i, p)
		}
		probs = append(probs, p)
	}
	state := d.bytes()
	if d.err != nil {
		return nil
	}

	src := &rand.PCG{}
	if err := src.UnmarshalBinary(state); err != nil {
		d.fail("memory rng state: %v", err)
		return nil
	}
	return &MemoryBank{
		rows:   rows,
		cols:   cols,
		cells:  cells,
		probs:  probs,
		rng:    rand.New(src),
		source: src,
	}
}

func (d *decoder) program() *Program {
	registers, outputs := d.length(), d.length()
	flags := d.raw(1)
	n := d.length()
	if d.err != nil {
		return nil
	}
	ins := make([]Instruction, 0, min(n, growHint))
	for i := 0; i < n && d.err == nil; i++ {
		k := d.length()
		words := make([]uint64, 0, min(k, growHint))
		for j := 0; j < k && d.err == nil; j++ {
			words = append(words, d.word())
		}
		if d.err != nil {
			return nil
		}
		in, err := InstructionFromWords(words)
		if err != nil {
			d.fail("instruction %d: %v", i, err)
			return nil
		}
		ins = append(ins, in)
	}
	p, err := NewProgram(ins, registers, outputs)
	if err != nil {
		d.fail("program: %v", err)
		return nil
	}
	p.Writable = flags[0]&1 != 0
	p.retain = flags[0]&2 != 0
	return p
}

func (d *decoder) action() Action {
	kind := d.raw(1)
	if d.err != nil {
		return Action{}
	}
	switch ActionKind(kind[0]) {
	case ActionLabel:
		v := d.varint()
		if v == NoLabel {
			d.fail("label action carries the NoLabel sentinel")
		}
		return Action{Kind: ActionLabel, Label: v}
	case ActionProgram:
		return Action{Kind: ActionProgram, Program: d.program()}
	case ActionTeam:
		return Action{Kind: ActionTeam, Team: TeamID(d.uvarint())}
	default:
		d.fail("unknown action kind %d", kind[0])
		return Action{}
	}
}
