package classfile

import (
	"fmt"
	"sort"

	"github.com/chazu/jasm/symbol"
)

// ---------------------------------------------------------------------------
// Stack strategies
// ---------------------------------------------------------------------------

// StackMode selects how a method body sizes its operand stack.
type StackMode int

const (
	// StackOptimistic keeps a running sum of stack deltas and records its
	// high-water mark.
	StackOptimistic StackMode = iota
	// StackPessimistic adds only positive deltas.
	StackPessimistic
	// StackFixed uses an explicitly declared size.
	StackFixed
)

var stackModeNames = map[StackMode]string{
	StackOptimistic:  "optimistic",
	StackPessimistic: "pessimistic",
	StackFixed:       "fixed",
}

func (m StackMode) String() string {
	return stackModeNames[m]
}

// ParseStackMode parses "optimistic" or "pessimistic".
func ParseStackMode(s string) (StackMode, error) {
	switch s {
	case "optimistic", "":
		return StackOptimistic, nil
	case "pessimistic":
		return StackPessimistic, nil
	}
	return 0, fmt.Errorf("unknown stack mode %q (expected optimistic or pessimistic)", s)
}

// ---------------------------------------------------------------------------
// MethodBody: Bytecode buffer with branch fixups
// ---------------------------------------------------------------------------

type label struct {
	id symbol.ID
	pc int
}

type fixup struct {
	target    symbol.ID
	base      int // offset of the branch opcode
	placement int // offset of the operand to patch
	wide      bool
}

// MethodBody encodes one method's instructions. Bytes are emitted
// immediately; branch operands are written as zeros and patched by
// Resolve once every label is known.
type MethodBody struct {
	names *symbol.Interner
	code  *Sink

	mode     StackMode
	depth    int
	maxDepth int

	labels   []label
	placed   map[symbol.ID]int // label -> pc
	fixups   []fixup
	resolved bool

	// Optimistic-mode bookkeeping: depth observed at the first branch to
	// each label, and whether the previous instruction never falls through.
	labelDepth  map[symbol.ID]int
	pending     []symbol.ID
	unreachable bool
	handlers    []int // handler entry offsets
}

// NewMethodBody creates an empty body using the optimistic stack strategy.
func NewMethodBody(names *symbol.Interner) *MethodBody {
	return &MethodBody{
		names:      names,
		code:       NewSink(64),
		placed:     make(map[symbol.ID]int),
		labelDepth: make(map[symbol.ID]int),
	}
}

// SetStackMode selects the stack strategy. For StackFixed, size is the
// declared max stack.
func (b *MethodBody) SetStackMode(mode StackMode, size int) {
	b.mode = mode
	if mode == StackFixed {
		b.maxDepth = size
	}
}

// StackMode returns the selected strategy.
func (b *MethodBody) StackMode() StackMode {
	return b.mode
}

// PC returns the offset of the next byte to be emitted.
func (b *MethodBody) PC() int {
	return b.code.Len()
}

// MaxStack returns the computed (or declared) maximum stack depth.
func (b *MethodBody) MaxStack() int {
	return b.maxDepth
}

// Depth returns the current tracked stack depth.
func (b *MethodBody) Depth() int {
	return b.depth
}

// Put appends an opcode with its operand bytes and applies stackDelta.
func (b *MethodBody) Put(stackDelta int, op byte, operands ...byte) {
	b.unreachable = false
	b.code.U1(op)
	b.code.Append(operands...)
	b.AdjustStack(stackDelta)
}

// PutRaw appends bytes without touching the stack counter.
func (b *MethodBody) PutRaw(data ...byte) {
	b.code.Append(data...)
}

// AdjustStack applies a stack delta under the selected strategy.
func (b *MethodBody) AdjustStack(delta int) {
	switch b.mode {
	case StackOptimistic:
		b.depth += delta
		if b.depth < 0 {
			b.depth = 0
		}
		if b.depth > b.maxDepth {
			b.maxDepth = b.depth
		}
	case StackPessimistic:
		if delta > 0 {
			b.depth += delta
			if b.depth > b.maxDepth {
				b.maxDepth = b.depth
			}
		}
	}
	b.drainPending()
}

// drainPending records the current depth for branch targets registered
// since the last stack adjustment.
func (b *MethodBody) drainPending() {
	for _, id := range b.pending {
		if _, ok := b.labelDepth[id]; !ok {
			b.labelDepth[id] = b.depth
		}
	}
	b.pending = b.pending[:0]
}

// EnterHandler marks the current offset as an exception handler entry,
// where the JVM pushes the thrown exception onto an empty stack. A label
// placed here keeps that depth.
func (b *MethodBody) EnterHandler() {
	b.drainPending()
	if b.isHandler(b.code.Len()) {
		return
	}
	switch b.mode {
	case StackOptimistic:
		b.depth = 1
	case StackPessimistic:
		b.depth++
	default:
		return
	}
	if b.depth > b.maxDepth {
		b.maxDepth = b.depth
	}
	b.unreachable = false
	b.handlers = append(b.handlers, b.code.Len())
}

// MarkUnconditional records that the last instruction never falls
// through (goto, return, athrow, switch).
func (b *MethodBody) MarkUnconditional() {
	b.unreachable = true
}

// Unreachable reports whether the next instruction can only be reached
// through a label.
func (b *MethodBody) Unreachable() bool {
	return b.unreachable
}

// Align pads the code with zero bytes up to a 4-byte boundary.
func (b *MethodBody) Align() {
	for b.code.Len()%4 != 0 {
		b.code.U1(0)
	}
}

// PutLabel places a label at the current offset. Placing the same label
// twice is an error.
func (b *MethodBody) PutLabel(id symbol.ID) error {
	if _, ok := b.placed[id]; ok {
		return fmt.Errorf("%w: label [%s] is already defined in the method body", ErrDuplicateName, b.names.Name(id))
	}
	b.drainPending()
	pc := b.code.Len()
	b.placed[id] = pc
	b.labels = append(b.labels, label{id: id, pc: pc})

	if b.mode == StackOptimistic && b.isHandler(pc) {
		if d := b.labelDepth[id]; d > b.depth {
			b.depth = d
		}
	} else if b.unreachable && b.mode == StackOptimistic {
		b.depth = b.labelDepth[id]
	}
	b.unreachable = false
	return nil
}

func (b *MethodBody) isHandler(pc int) bool {
	for _, h := range b.handlers {
		if h == pc {
			return true
		}
	}
	return false
}

// HasLabel reports whether a label has already been placed.
func (b *MethodBody) HasLabel(id symbol.ID) bool {
	_, ok := b.placed[id]
	return ok
}

// RegisterBranch records a fixup for a branch opcode about to be emitted
// at the current offset. The operand (2 bytes, or 4 when wide) follows
// the opcode and is relative to the opcode's own offset.
func (b *MethodBody) RegisterBranch(target symbol.ID, wide bool) {
	pc := b.code.Len()
	b.RegisterBranchAt(pc, pc+1, target, wide)
}

// RegisterBranchAt records a fixup whose operand sits at placement and
// whose delta is computed relative to base. Switch tables use it for
// every jump-list entry.
func (b *MethodBody) RegisterBranchAt(base, placement int, target symbol.ID, wide bool) {
	b.fixups = append(b.fixups, fixup{
		target:    target,
		base:      base,
		placement: placement,
		wide:      wide,
	})
	b.pending = append(b.pending, target)
}

// Resolve patches every recorded branch operand. All unresolved targets
// are reported together in one UnresolvedLabelsError.
func (b *MethodBody) Resolve(className, methodName string) error {
	if b.resolved {
		return nil
	}

	sorted := make([]label, len(b.labels))
	copy(sorted, b.labels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	var missing []string
	seenMissing := make(map[symbol.ID]bool)

	for _, f := range b.fixups {
		i := sort.Search(len(sorted), func(i int) bool { return sorted[i].id >= f.target })
		if i >= len(sorted) || sorted[i].id != f.target {
			if !seenMissing[f.target] {
				seenMissing[f.target] = true
				missing = append(missing, b.names.Name(f.target))
			}
			continue
		}

		delta := sorted[i].pc - f.base
		if f.wide {
			b.code.PatchU4(f.placement, uint32(int32(delta)))
			continue
		}
		if delta < -32768 || delta > 32767 {
			return &BranchRangeError{Label: b.names.Name(f.target), Delta: delta}
		}
		b.code.PatchU2(f.placement, uint16(int16(delta)))
	}

	if len(missing) > 0 {
		return &UnresolvedLabelsError{Class: className, Method: methodName, Labels: missing}
	}
	b.resolved = true
	return nil
}

// Code returns the encoded bytes. Call Resolve first.
func (b *MethodBody) Code() []byte {
	return b.code.Bytes()
}

// Dump resolves branches and appends the code bytes to w. Nothing is
// written when resolution fails.
func (b *MethodBody) Dump(w *Sink, className, methodName string) error {
	if err := b.Resolve(className, methodName); err != nil {
		return err
	}
	w.Append(b.code.Bytes()...)
	return nil
}
