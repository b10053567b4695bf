package classfile

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/chazu/jasm/symbol"
)

const (
	opNop   = 0x00
	opGoto  = 0xa7
	opGotoW = 0xc8
	opIfeq  = 0x99
)

func TestBranchResolutionShortAndLong(t *testing.T) {
	for _, wide := range []bool{false, true} {
		names := symbol.NewInterner()
		b := NewMethodBody(names)
		back, fwd := names.Intern("back"), names.Intern("fwd")
		op := byte(opGoto)
		operand := []byte{0, 0}
		if wide {
			op = opGotoW
			operand = []byte{0, 0, 0, 0}
		}

		b.Put(0, opNop)
		if err := b.PutLabel(back); err != nil {
			t.Fatal(err)
		}
		b.Put(0, opNop) // pc 1
		b.RegisterBranch(fwd, wide)
		fwdSrc := b.PC()
		b.Put(0, op, operand...)
		b.RegisterBranch(back, wide)
		backSrc := b.PC()
		b.Put(0, op, operand...)
		b.Put(0, opNop)
		if err := b.PutLabel(fwd); err != nil {
			t.Fatal(err)
		}
		fwdPC := b.PC()
		b.Put(0, opNop)

		if err := b.Resolve("C", "m"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		code := b.Code()

		read := func(at int) int {
			if wide {
				return int(int32(binary.BigEndian.Uint32(code[at:])))
			}
			return int(int16(binary.BigEndian.Uint16(code[at:])))
		}
		if got, want := read(fwdSrc+1), fwdPC-fwdSrc; got != want {
			t.Errorf("wide=%v forward delta = %d, want %d", wide, got, want)
		}
		if got, want := read(backSrc+1), 1-backSrc; got != want {
			t.Errorf("wide=%v backward delta = %d, want %d", wide, got, want)
		}
	}
}

func TestUnresolvedLabelsAggregated(t *testing.T) {
	names := symbol.NewInterner()
	b := NewMethodBody(names)

	for _, l := range []string{"a", "b", "a"} {
		b.RegisterBranch(names.Intern(l), false)
		b.Put(0, opGoto, 0, 0)
	}

	out := NewSink(16)
	err := b.Dump(out, "Foo", "bar")

	var ule *UnresolvedLabelsError
	if !errors.As(err, &ule) {
		t.Fatalf("err = %v, want UnresolvedLabelsError", err)
	}
	if len(ule.Labels) != 2 || ule.Labels[0] != "a" || ule.Labels[1] != "b" {
		t.Errorf("Labels = %v, want [a b]", ule.Labels)
	}
	if out.Len() != 0 {
		t.Errorf("Dump wrote %d bytes on failure", out.Len())
	}
}

func TestDuplicateLabel(t *testing.T) {
	names := symbol.NewInterner()
	b := NewMethodBody(names)
	l := names.Intern("loop")
	if err := b.PutLabel(l); err != nil {
		t.Fatal(err)
	}
	if err := b.PutLabel(l); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("err = %v, want ErrDuplicateName", err)
	}
}

func TestShortBranchOutOfRange(t *testing.T) {
	names := symbol.NewInterner()
	b := NewMethodBody(names)
	far := names.Intern("far")

	b.RegisterBranch(far, false)
	b.Put(0, opIfeq, 0, 0)
	b.PutRaw(make([]byte, 40000)...)
	if err := b.PutLabel(far); err != nil {
		t.Fatal(err)
	}

	var bre *BranchRangeError
	if err := b.Resolve("C", "m"); !errors.As(err, &bre) {
		t.Fatalf("err = %v, want BranchRangeError", err)
	}
	if bre.Label != "far" || bre.Delta != 40003 {
		t.Errorf("BranchRangeError = %+v", bre)
	}
}

func TestAlign(t *testing.T) {
	b := NewMethodBody(symbol.NewInterner())
	b.Put(0, 0xaa) // tableswitch
	b.Align()
	if b.PC() != 4 {
		t.Errorf("PC after align = %d, want 4", b.PC())
	}
	b.Align()
	if b.PC() != 4 {
		t.Errorf("aligned PC moved to %d", b.PC())
	}
}

func TestStackStrategies(t *testing.T) {
	deltas := []int{1, 1, -2, 2, -1, 1}

	tests := []struct {
		mode StackMode
		want int
	}{
		{StackOptimistic, 2},
		{StackPessimistic, 5},
		{StackFixed, 9},
	}
	for _, tt := range tests {
		b := NewMethodBody(symbol.NewInterner())
		b.SetStackMode(tt.mode, 9)
		for _, d := range deltas {
			b.Put(d, opNop)
		}
		if got := b.MaxStack(); got != tt.want {
			t.Errorf("%v MaxStack = %d, want %d", tt.mode, got, tt.want)
		}
	}
}

func TestOptimisticDepthRestoredAtLabel(t *testing.T) {
	names := symbol.NewInterner()
	b := NewMethodBody(names)
	done := names.Intern("done")

	b.Put(1, 0x04) // iconst_1
	b.Put(1, 0x04) // iconst_1
	b.RegisterBranch(done, false)
	b.Put(-1, opIfeq, 0, 0) // depth 1 at target
	b.Put(-1, 0x57)         // pop
	b.Put(0, 0xb1)          // return
	b.MarkUnconditional()
	if err := b.PutLabel(done); err != nil {
		t.Fatal(err)
	}
	if b.Depth() != 1 {
		t.Errorf("depth at label = %d, want 1", b.Depth())
	}
}

func TestHandlerEntryDepth(t *testing.T) {
	const (
		opIconst0      = 0x03
		opPop          = 0x57
		opAstore1      = 0x4c
		opInvokestatic = 0xb8
	)
	tests := []struct {
		mode  StackMode
		label string // "", "before" or "after" the handler entry
		push  bool   // iconst_0; pop before the store
		want  int
	}{
		{StackOptimistic, "", false, 1},
		{StackOptimistic, "before", false, 1},
		{StackOptimistic, "after", false, 1},
		{StackOptimistic, "after", true, 2},
		{StackOptimistic, "before", true, 2},
		{StackPessimistic, "", false, 1},
		{StackPessimistic, "before", false, 1},
		{StackPessimistic, "after", false, 1},
		{StackPessimistic, "after", true, 2},
	}
	for _, tt := range tests {
		names := symbol.NewInterner()
		b := NewMethodBody(names)
		b.SetStackMode(tt.mode, 0)
		done, handler := names.Intern("done"), names.Intern("handler")

		b.Put(0, opInvokestatic, 0, 1)
		b.RegisterBranch(done, false)
		b.Put(0, opGoto, 0, 0)
		b.MarkUnconditional()
		if tt.label == "before" {
			if err := b.PutLabel(handler); err != nil {
				t.Fatal(err)
			}
		}
		b.EnterHandler()
		if tt.label == "after" {
			if err := b.PutLabel(handler); err != nil {
				t.Fatal(err)
			}
		}
		if tt.push {
			b.Put(1, opIconst0)
			b.Put(-1, opPop)
		}
		b.Put(-1, opAstore1)
		if err := b.PutLabel(done); err != nil {
			t.Fatal(err)
		}
		b.Put(0, 0xb1)

		if got := b.MaxStack(); got != tt.want {
			t.Errorf("%v label=%q push=%v: MaxStack = %d, want %d", tt.mode, tt.label, tt.push, got, tt.want)
		}
	}
}

func TestHandlerEntryCountedOncePerOffset(t *testing.T) {
	b := NewMethodBody(symbol.NewInterner())
	b.SetStackMode(StackPessimistic, 0)
	b.Put(0, opNop)
	b.EnterHandler()
	b.EnterHandler() // second catch clause for the same handler
	if got := b.MaxStack(); got != 1 {
		t.Errorf("MaxStack = %d, want 1", got)
	}
}
