package asm

import (
	"slices"
	"testing"
)

func TestCatalog(t *testing.T) {
	m := Mnemonics()
	if !slices.IsSorted(m) || !slices.Contains(m, "invokeinterface") {
		t.Errorf("Mnemonics() = %v", m)
	}
	d := Directives()
	for _, want := range []string{"class", "method", "end", "catch", "include"} {
		if !slices.Contains(d, want) {
			t.Errorf("Directives() is missing %s", want)
		}
	}
	if op, ok := Opcode("goto"); !ok || op != 0xa7 {
		t.Errorf("Opcode(goto) = %#x, %v", op, ok)
	}
	if _, ok := Opcode("goto2"); ok {
		t.Error("Opcode(goto2) found")
	}
}
