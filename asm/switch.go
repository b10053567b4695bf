package asm

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/chazu/jasm/symbol"
)

// ---------------------------------------------------------------------------
// Switch tables
// ---------------------------------------------------------------------------

const opTableswitch byte = 0xaa

// minTableDensity is the smallest ratio of cases to table slots a
// tableswitch may have.
const minTableDensity = 0.05

// switchTable collects the rows of an open tableswitch or lookupswitch.
type switchTable struct {
	mnemonic string
	op       byte
	cases    map[int32]symbol.ID
	def      symbol.ID
	hasDef   bool
}

// beginSwitch opens the table that follows a switch instruction. Nothing
// is emitted until its .end.
func (a *assembler) beginSwitch(mnemonic string, ins instruction, c *cursor) error {
	if err := c.done(); err != nil {
		return err
	}
	a.method.table = &switchTable{
		mnemonic: mnemonic,
		op:       ins.op,
		cases:    make(map[int32]symbol.ID),
	}
	if ins.op == opTableswitch {
		a.state = stateJumpTable
	} else {
		a.state = stateLookupTable
	}
	return nil
}

// tableRow reads one "value, label" row.
func (a *assembler) tableRow(c *cursor) error {
	t := a.method.table
	v, err := a.eval(c, true)
	if err != nil {
		return err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return fmt.Errorf("case value %d does not fit an int", v)
	}
	if err := c.expect(',', "between case value and label"); err != nil {
		return err
	}
	label := c.ident()
	if label == "" {
		return syntaxf("case label expected")
	}
	if err := c.done(); err != nil {
		return err
	}
	if _, dup := t.cases[int32(v)]; dup {
		return fmt.Errorf("duplicate case value %d", v)
	}
	t.cases[int32(v)] = a.names.Intern(label)
	return nil
}

// emitSwitch encodes the closed table: opcode, padding to a 4-byte
// boundary, the default offset, then the jump list. Offsets are relative
// to the opcode.
func (a *assembler) emitSwitch() error {
	t := a.method.table
	if !t.hasDef {
		return fmt.Errorf("%s has no .default label", t.mnemonic)
	}
	keys := make([]int32, 0, len(t.cases))
	for k := range t.cases {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var low, high int32
	if t.op == opTableswitch {
		if len(keys) == 0 {
			return errors.New("tableswitch has no cases")
		}
		low, high = keys[0], keys[len(keys)-1]
		span := int64(high) - int64(low) + 1
		if float64(len(keys))/float64(span) < minTableDensity {
			return fmt.Errorf("tableswitch with %d cases over %d slots is too sparse; use lookupswitch", len(keys), span)
		}
	}

	body := a.method.md.Body()
	base := body.PC()
	body.Put(-1, t.op)
	body.Align()
	word := func(v int32) {
		u := uint32(v)
		body.PutRaw(byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	}
	jump := func(target symbol.ID) {
		body.RegisterBranchAt(base, body.PC(), target, true)
		word(0)
	}

	jump(t.def)
	if t.op == opTableswitch {
		word(low)
		word(high)
		for v := int64(low); v <= int64(high); v++ {
			target, ok := t.cases[int32(v)]
			if !ok {
				target = t.def
			}
			jump(target)
		}
	} else {
		word(int32(len(keys)))
		for _, k := range keys {
			word(k)
			jump(t.cases[k])
		}
	}
	body.MarkUnconditional()

	a.method.table = nil
	a.state = stateMethodBody
	return nil
}
