package asm

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/chazu/jasm/classfile"
	"github.com/chazu/jasm/resolver"
)

const (
	opNew           byte = 0xbb
	opGetstatic     byte = 0xb2
	opPutstatic     byte = 0xb3
	opGetfield      byte = 0xb4
	opPutfield      byte = 0xb5
	opInvokevirtual byte = 0xb6
	opInvokespecial byte = 0xb7
	opLdc2W         byte = 0x14
)

// instruction encodes one instruction line into the open method body.
func (a *assembler) instruction(st *statement) error {
	ins, ok := instructions[st.mnemonic]
	if !ok {
		if s := resolver.Suggest(st.mnemonic, mnemonics()); s != "" {
			return syntaxf("unknown instruction [%s]; did you mean [%s]?", st.mnemonic, s)
		}
		return syntaxf("unknown instruction [%s]", st.mnemonic)
	}
	if a.state != stateMethodHeader && a.state != stateMethodBody {
		return syntaxf("instruction [%s] is only allowed in a method body", st.mnemonic)
	}
	if ins.shape == shapeUnsupported {
		return fmt.Errorf("instruction [%s] is not supported", st.mnemonic)
	}
	if err := a.enterBody(); err != nil {
		return err
	}
	m := a.method
	if m.lines == LinesAuto {
		m.md.AddLineRecord(a.line)
	}
	m.emitted = true

	c := st.args
	var err error
	switch ins.shape {
	case shapeNone:
		if err = c.done(); err == nil {
			m.md.Body().Put(ins.delta, ins.op)
		}
	case shapeLocal:
		err = a.encodeLocal(ins, c)
	case shapeIinc:
		err = a.encodeIinc(c)
	case shapeByte, shapeShort:
		err = a.encodePush(ins, c)
	case shapeArrayType:
		err = a.encodeNewarray(ins, c)
	case shapeClass:
		err = a.encodeClass(ins, c)
	case shapeMultiArray:
		err = a.encodeMultiArray(ins, c)
	case shapeLdc, shapeLdcWide, shapeLdc2:
		err = a.encodeLdc(st.mnemonic, ins, c)
	case shapeBranch, shapeBranchWide:
		err = a.encodeBranch(ins, c)
	case shapeField:
		err = a.encodeField(ins, c)
	case shapeMethod:
		err = a.encodeMethod(ins, c)
	case shapeSwitch:
		return a.beginSwitch(st.mnemonic, ins, c)
	}
	if err != nil {
		return err
	}
	if ins.noFall {
		m.md.Body().MarkUnconditional()
	}
	return nil
}

func mnemonics() []string {
	out := make([]string, 0, len(instructions))
	for n := range instructions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func u2(v uint16) (byte, byte) {
	return byte(v >> 8), byte(v)
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// eval evaluates an integer expression. With names set, identifiers
// stand for the slots of declared variables.
func (a *assembler) eval(c *cursor, names bool) (int64, error) {
	e := evaluator{c: c}
	if names && a.method != nil && a.method.md.Body() != nil {
		e.lookup = func(name string) (int64, error) {
			v, err := a.variable(name)
			return int64(v.Slot), err
		}
	}
	return e.additive()
}

// variable looks up a declared variable in the open scopes.
func (a *assembler) variable(name string) (classfile.Variable, error) {
	md := a.method.md
	v, err := md.Var(a.names.Intern(name))
	if err != nil {
		var names []string
		for _, d := range md.Vars() {
			names = append(names, a.names.Name(d.Name))
		}
		if s := resolver.Suggest(name, names); s != "" {
			return v, fmt.Errorf("%w; did you mean [%s]?", err, s)
		}
	}
	return v, err
}

// localOperand reads a variable name or a slot expression.
func (a *assembler) localOperand(c *cursor) (int, *classfile.Variable, error) {
	save := c.pos
	if name := c.ident(); name != "" {
		c.skipBlank()
		if p := c.peek(); p == 0 || p == ',' {
			v, err := a.variable(name)
			if err != nil {
				return 0, nil, err
			}
			return v.Slot, &v, nil
		}
	}
	c.pos = save
	n, err := a.eval(c, true)
	if err != nil {
		return 0, nil, err
	}
	if n < 0 || n > math.MaxUint16 {
		return 0, nil, fmt.Errorf("local variable index %d is out of range", n)
	}
	return int(n), nil, nil
}

func (a *assembler) checkSlot(slot, width int) error {
	if limit := a.method.md.MaxLocals(); slot+width > limit {
		return fmt.Errorf("local variable index %d is outside the frame of %d slots", slot, limit)
	}
	return nil
}

// assign records a store to v and rejects a second store to a final
// variable.
func (a *assembler) assign(v classfile.Variable) error {
	if v.Flags&classfile.AccFinal == 0 {
		return nil
	}
	k := varKey{v.Name, v.Start}
	if a.method.assigned[k] {
		return fmt.Errorf("final variable [%s] is already assigned", a.names.Name(v.Name))
	}
	a.method.assigned[k] = true
	return nil
}

// ---------------------------------------------------------------------------
// Encoders
// ---------------------------------------------------------------------------

func (a *assembler) encodeLocal(ins instruction, c *cursor) error {
	slot, v, err := a.localOperand(c)
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	width := 1
	if ins.delta == 2 || ins.delta == -2 {
		width = 2
	}
	if err := a.checkSlot(slot, width); err != nil {
		return err
	}
	if isStore(ins.op) && v != nil {
		if err := a.assign(*v); err != nil {
			return err
		}
	}

	body := a.method.md.Body()
	switch {
	case slot <= 3:
		body.Put(ins.delta, shortLocal(ins.op, slot))
	case slot <= math.MaxUint8:
		body.Put(ins.delta, ins.op, byte(slot))
	default:
		hi, lo := u2(uint16(slot))
		body.Put(ins.delta, opWide, ins.op, hi, lo)
	}
	return nil
}

func (a *assembler) encodeIinc(c *cursor) error {
	slot, v, err := a.localOperand(c)
	if err != nil {
		return err
	}
	if err := c.expect(',', "between iinc operands"); err != nil {
		return err
	}
	n, err := a.eval(c, false)
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	if err := a.checkSlot(slot, 1); err != nil {
		return err
	}
	if v != nil {
		if err := a.assign(*v); err != nil {
			return err
		}
	}

	body := a.method.md.Body()
	switch {
	case slot <= math.MaxUint8 && n >= math.MinInt8 && n <= math.MaxInt8:
		body.Put(0, opIinc, byte(slot), byte(int8(n)))
	case n >= math.MinInt16 && n <= math.MaxInt16:
		sh, sl := u2(uint16(slot))
		nh, nl := u2(uint16(int16(n)))
		body.Put(0, opWide, opIinc, sh, sl, nh, nl)
	default:
		return fmt.Errorf("iinc increment %d does not fit a short", n)
	}
	return nil
}

// encodePush emits bipush or sipush, folding -1..5 into iconst_<n>.
func (a *assembler) encodePush(ins instruction, c *cursor) error {
	n, err := a.eval(c, false)
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	body := a.method.md.Body()
	switch {
	case n >= -1 && n <= 5:
		body.Put(1, byte(int64(opIconst0)+n))
	case ins.op == opBipush:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return fmt.Errorf("bipush operand %d does not fit a byte", n)
		}
		body.Put(1, ins.op, byte(int8(n)))
	default:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return fmt.Errorf("sipush operand %d does not fit a short", n)
		}
		hi, lo := u2(uint16(int16(n)))
		body.Put(1, ins.op, hi, lo)
	}
	return nil
}

func (a *assembler) encodeNewarray(ins instruction, c *cursor) error {
	w := c.ident()
	if w == "" {
		return syntaxf("array element type expected")
	}
	if err := c.done(); err != nil {
		return err
	}
	code, ok := arrayTypes[w]
	if !ok {
		return fmt.Errorf("newarray takes a primitive element type, not [%s]", w)
	}
	a.method.md.Body().Put(ins.delta, ins.op, code)
	return nil
}

func (a *assembler) encodeClass(ins instruction, c *cursor) error {
	typ, err := c.typeName()
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	name, ref, err := a.classEntry(typ)
	if err != nil {
		return err
	}
	if ins.op == opNew {
		switch {
		case strings.HasPrefix(name, "["):
			return fmt.Errorf("new cannot create array [%s]; use newarray or anewarray", typ)
		case ref.own && a.class.Flags()&classfile.AccAbstract != 0,
			ref.info != nil && (ref.info.IsInterface() || ref.info.IsAbstract()):
			return fmt.Errorf("cannot instantiate abstract class or interface [%s]", typ)
		}
	}
	idx, err := a.class.Pool.AsClass(a.names.Intern(name))
	if err != nil {
		return err
	}
	hi, lo := u2(idx)
	a.method.md.Body().Put(ins.delta, ins.op, hi, lo)
	return nil
}

func (a *assembler) encodeMultiArray(ins instruction, c *cursor) error {
	typ, err := c.typeName()
	if err != nil {
		return err
	}
	if err := c.expect(',', "between multianewarray operands"); err != nil {
		return err
	}
	dims, err := a.eval(c, false)
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	if dims < 1 || dims > math.MaxUint8 {
		return fmt.Errorf("dimension count %d is out of range", dims)
	}
	desc, err := a.descriptor(typ, false)
	if err != nil {
		return err
	}
	if int64(len(desc)-len(strings.TrimLeft(desc, "["))) < dims {
		return fmt.Errorf("type [%s] has fewer than %d dimensions", typ, dims)
	}
	idx, err := a.class.Pool.AsClass(a.names.Intern(desc))
	if err != nil {
		return err
	}
	hi, lo := u2(idx)
	a.method.md.Body().Put(1-int(dims), ins.op, hi, lo, byte(dims))
	return nil
}

// encodeLdc emits a constant load. The operand is a string, a character,
// a class literal or a number; ldc widens to ldc_w when the pool index
// needs two bytes.
func (a *assembler) encodeLdc(mnemonic string, ins instruction, c *cursor) error {
	pool := a.class.Pool
	wide := ins.shape == shapeLdc2
	var idx uint16
	var err error

	c.skipBlank()
	w := c.peekIdent()
	switch {
	case c.peek() == '"':
		if wide {
			return syntaxf("ldc2_w takes a long or double constant")
		}
		var s string
		if s, err = c.stringLit(); err != nil {
			return err
		}
		idx, err = pool.AsString(a.names.Intern(s))

	case c.peek() == '\'':
		if wide {
			return syntaxf("ldc2_w takes a long or double constant")
		}
		var u uint16
		if u, err = c.charLit(); err != nil {
			return err
		}
		idx, err = pool.AsInteger(int32(u))

	case w != "" && !strings.HasPrefix(w, "NaN") && !strings.HasPrefix(w, "Infinity"):
		if wide {
			return syntaxf("ldc2_w takes a long or double constant")
		}
		typ, err := c.typeName()
		if err != nil {
			return err
		}
		if t, ok := strings.CutSuffix(typ, ".class"); ok {
			typ = t
		} else if !c.accept('.') || c.ident() != "class" {
			return syntaxf("constant expected, found [%s]", typ)
		}
		name, _, err := a.classEntry(typ)
		if err != nil {
			return err
		}
		idx, err = pool.AsClass(a.names.Intern(name))
		if err != nil {
			return err
		}

	default:
		n, err := c.number()
		if err != nil {
			return err
		}
		switch {
		case !wide && n.kind == numInt:
			if n.i < math.MinInt32 || n.i > math.MaxInt32 {
				return fmt.Errorf("constant %d does not fit an int; use ldc2_w with an L suffix", n.i)
			}
			idx, err = pool.AsInteger(int32(n.i))
		case !wide && (n.kind == numReal || n.kind == numFloat):
			idx, err = pool.AsFloat(float32(n.f))
		case !wide:
			return syntaxf("%s takes an int, float, string or class constant; use ldc2_w for long and double", mnemonic)
		case n.kind == numInt || n.kind == numLong:
			idx, err = pool.AsLong(n.i)
		case n.kind == numReal || n.kind == numDouble:
			idx, err = pool.AsDouble(n.f)
		default:
			return syntaxf("ldc2_w takes a long or double constant")
		}
		if err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}

	body := a.method.md.Body()
	hi, lo := u2(idx)
	switch {
	case wide:
		body.Put(2, opLdc2W, hi, lo)
	case ins.op == opLdc && idx <= math.MaxUint8:
		body.Put(1, opLdc, lo)
	default:
		body.Put(1, opLdcW, hi, lo)
	}
	return nil
}

func (a *assembler) encodeBranch(ins instruction, c *cursor) error {
	label := c.ident()
	if label == "" {
		return syntaxf("branch target label expected")
	}
	if err := c.done(); err != nil {
		return err
	}
	body := a.method.md.Body()
	wide := ins.shape == shapeBranchWide
	body.RegisterBranch(a.names.Intern(label), wide)
	if wide {
		body.Put(ins.delta, ins.op, 0, 0, 0, 0)
	} else {
		body.Put(ins.delta, ins.op, 0, 0)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Member references
// ---------------------------------------------------------------------------

// splitMember splits Owner.member; owner is empty for a bare member name.
func splitMember(target string) (owner, name string) {
	i := strings.LastIndexAny(target, "./")
	if i < 0 {
		return "", target
	}
	return target[:i], target[i+1:]
}

func (a *assembler) ownField(name string) *classfile.Field {
	id := a.names.Intern(name)
	for _, f := range a.class.Fields() {
		if f.Name == id {
			return f
		}
	}
	return nil
}

// encodeField emits getstatic, putstatic, getfield or putfield. The field
// type comes from the declaration, the resolver, or an explicit type
// after the name.
func (a *assembler) encodeField(ins instruction, c *cursor) error {
	target := c.qualified()
	if target == "" {
		return syntaxf("field reference expected")
	}
	var explicit string
	if !c.atEnd() {
		typ, err := c.typeName()
		if err != nil {
			return err
		}
		if explicit, err = a.descriptor(typ, false); err != nil {
			return err
		}
	}
	if err := c.done(); err != nil {
		return err
	}

	ownerName, name := splitMember(target)
	var owner, desc string
	known, static := false, false
	if ownerName == "" || a.isOwn(ownerName) {
		owner = a.class.ClassName()
		if f := a.ownField(name); f != nil {
			desc = a.names.Name(f.Desc)
			known, static = true, f.Flags&classfile.AccStatic != 0
		} else if explicit == "" {
			if a.hasSuper && a.superRef.info != nil {
				if r, err := a.res.Field(a.superRef.internal, name); err == nil {
					desc = r.Desc
					known, static = true, r.IsStatic()
				}
			}
			if desc == "" {
				var names []string
				for _, f := range a.class.Fields() {
					names = append(names, a.names.Name(f.Name))
				}
				if s := resolver.Suggest(name, names); s != "" {
					return fmt.Errorf("field [%s] is not declared in class [%s]; did you mean [%s]?", name, a.simple, s)
				}
				return fmt.Errorf("field [%s] is not declared in class [%s]", name, a.simple)
			}
		}
	} else {
		ref, err := a.classRef(ownerName)
		if err != nil {
			return err
		}
		owner = ref.internal
		switch {
		case ref.info != nil:
			r, err := a.res.Field(ref.internal, name)
			if err != nil {
				return err
			}
			desc = r.Desc
			known, static = true, r.IsStatic()
		case explicit == "":
			return fmt.Errorf("type of field [%s] is unknown; write it after the field name", target)
		}
	}
	if explicit != "" {
		if desc != "" && desc != explicit {
			return fmt.Errorf("field [%s] has type %s, not %s", target, desc, explicit)
		}
		desc = explicit
	}

	wantStatic := ins.op == opGetstatic || ins.op == opPutstatic
	if known && static != wantStatic {
		if static {
			return fmt.Errorf("field [%s] is static; use getstatic or putstatic", target)
		}
		return fmt.Errorf("field [%s] is not static; use getfield or putfield", target)
	}

	size := classfile.SlotSize(desc)
	var delta int
	switch ins.op {
	case opGetstatic:
		delta = size
	case opPutstatic:
		delta = -size
	case opGetfield:
		delta = size - 1
	case opPutfield:
		delta = -1 - size
	}
	idx, err := a.class.Pool.AsFieldRef(a.names.Intern(owner), a.names.Intern(name), a.names.Intern(desc))
	if err != nil {
		return err
	}
	hi, lo := u2(idx)
	a.method.md.Body().Put(delta, ins.op, hi, lo)
	return nil
}

// signature reads a method descriptor written right after the member name,
// with dots allowed in place of slashes.
func (c *cursor) signature() (string, error) {
	start := c.pos
	end := strings.IndexByte(c.s[c.pos:], ')')
	if end < 0 {
		return "", syntaxf("unclosed parenthesis in method signature")
	}
	c.pos += end + 1
	for c.pos < len(c.s) && !isBlank(c.s[c.pos]) {
		c.pos++
	}
	sig := strings.ReplaceAll(c.s[start:c.pos], ".", "/")
	if _, _, err := classfile.ParseMethodDescriptor(sig); err != nil {
		return "", syntaxf("malformed method signature [%s]", c.s[start:c.pos])
	}
	return sig, nil
}

// ownMethod finds a method of the class being assembled. An empty sig
// matches by name and must be unique.
func (a *assembler) ownMethod(name, sig string) (*classfile.MethodDescriptor, error) {
	var found []*classfile.MethodDescriptor
	for _, md := range a.class.Methods() {
		if md.NameString() == name && (sig == "" || md.Signature() == sig) {
			found = append(found, md)
		}
	}
	if len(found) > 1 {
		return nil, fmt.Errorf("method [%s] is overloaded; give its signature", name)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func simpleOf(internal string) string {
	return internal[strings.LastIndexByte(internal, '/')+1:]
}

// encodeMethod emits one of the invoke instructions.
func (a *assembler) encodeMethod(ins instruction, c *cursor) error {
	target := c.qualified()
	if target == "" {
		return syntaxf("method reference expected")
	}
	var sig string
	if c.peek() == '(' {
		var err error
		if sig, err = c.signature(); err != nil {
			return err
		}
	}
	if err := c.done(); err != nil {
		return err
	}

	ownerName, name := splitMember(target)
	var owner classRef
	if ownerName == "" || a.isOwn(ownerName) {
		owner = classRef{internal: a.class.ClassName(), own: true}
	} else {
		var err error
		if owner, err = a.classRef(ownerName); err != nil {
			return err
		}
	}
	if name == simpleOf(owner.internal) {
		name = classfile.ConstructorName
	}
	iface := owner.isInterface() || owner.own && a.iface

	var flags uint16
	known := false
	switch {
	case owner.own:
		md, err := a.ownMethod(name, sig)
		if err != nil {
			return err
		}
		if md != nil {
			sig, flags, known = md.Signature(), md.Flags, true
			break
		}
		if sig == "" && a.hasSuper && a.superRef.info != nil {
			if r, err := a.res.Method(a.superRef.internal, name, ""); err == nil {
				sig, flags, known = r.Desc, r.Flags, true
			}
		}
		if sig == "" {
			return fmt.Errorf("method [%s] is not declared in class [%s]", name, a.simple)
		}
	case owner.info != nil:
		r, err := a.res.Method(owner.internal, name, sig)
		if err != nil {
			return err
		}
		sig, flags, known = r.Desc, r.Flags, true
	case sig == "":
		return fmt.Errorf("signature of method [%s] is unknown; write it after the name, as in %s(I)V", target, target)
	}

	static := flags&classfile.AccStatic != 0
	switch {
	case name == classfile.ConstructorName && ins.op != opInvokespecial:
		return fmt.Errorf("constructor of [%s] must be called with invokespecial", simpleOf(owner.internal))
	case known && ins.op == opInvokestatic && !static:
		return fmt.Errorf("method [%s] is not static", target)
	case known && ins.op != opInvokestatic && static:
		return fmt.Errorf("method [%s] is static; use invokestatic", target)
	case ins.op == opInvokeinterface && !iface && (owner.own || owner.info != nil):
		return fmt.Errorf("[%s] is not an interface; use invokevirtual", simpleOf(owner.internal))
	case ins.op == opInvokevirtual && iface:
		return fmt.Errorf("[%s] is an interface; use invokeinterface", simpleOf(owner.internal))
	}

	args, ret, err := classfile.ArgSlots(sig)
	if err != nil {
		return err
	}
	delta := ret - args
	if ins.op != opInvokestatic {
		delta--
	}

	cls, nm, ds := a.names.Intern(owner.internal), a.names.Intern(name), a.names.Intern(sig)
	var idx uint16
	if iface || ins.op == opInvokeinterface {
		idx, err = a.class.Pool.AsInterfaceMethodRef(cls, nm, ds)
	} else {
		idx, err = a.class.Pool.AsMethodRef(cls, nm, ds)
	}
	if err != nil {
		return err
	}
	hi, lo := u2(idx)
	body := a.method.md.Body()
	if ins.op == opInvokeinterface {
		body.Put(delta, ins.op, hi, lo, byte(args+1), 0)
	} else {
		body.Put(delta, ins.op, hi, lo)
	}
	return nil
}
