package classfile

import (
	"fmt"
	"math"

	"github.com/chazu/jasm/symbol"
)

// ---------------------------------------------------------------------------
// Variable frames
// ---------------------------------------------------------------------------

// Variable is a parameter or local variable with its slot and live range.
type Variable struct {
	Name  symbol.ID
	Desc  string
	Flags uint16
	Slot  int
	Start int // pc at declaration
	End   int // pc at scope exit, -1 while in scope
}

type frame struct {
	vars  map[symbol.ID]int // name -> index in MethodDescriptor.vars
	displ int               // slot displacement at push time
}

// ExceptionRecord is one exception-table entry.
type ExceptionRecord struct {
	Start     int
	End       int
	Handler   int
	CatchType uint16 // pool index of the exception class, 0 for catch-all
}

// LineRecord maps a code offset to a source line.
type LineRecord struct {
	PC   int
	Line int
}

// ---------------------------------------------------------------------------
// MethodDescriptor
// ---------------------------------------------------------------------------

// MethodDescriptor describes one method: flags, name, signature,
// throws list, and (unless abstract or native) a method body with its
// variable frames, exception table and line-number table.
type MethodDescriptor struct {
	class *ClassAssembler
	pool  *ConstantPool

	Flags uint16
	Name  symbol.ID
	ret   string
	param []string

	paramsClosed bool
	completed    bool

	body    *MethodBody
	vars    []Variable
	frames  []frame
	displ   int
	maxLocs int

	throws     []uint16
	exceptions []ExceptionRecord
	lines      []LineRecord
	localTable bool

	// Pool indices resolved at completion.
	nameIdx, descIdx uint16
	codeIdx, excIdx  uint16
	lvtIdx, lntIdx   uint16
	varIdx           [][2]uint16 // name, descriptor per emitted variable
}

func newMethodDescriptor(c *ClassAssembler, flags uint16, name symbol.ID, ret string) *MethodDescriptor {
	m := &MethodDescriptor{
		class:      c,
		pool:       c.Pool,
		Flags:      flags,
		Name:       name,
		ret:        ret,
		localTable: true,
	}
	if flags&(AccAbstract|AccNative) == 0 {
		m.body = NewMethodBody(c.Names)
		m.frames = []frame{{vars: make(map[symbol.ID]int)}}
	}
	if m.body != nil && flags&AccStatic == 0 {
		// Receiver occupies slot 0.
		this := c.Names.Intern("this")
		m.declare(this, ClassDescriptor(c.className), 0)
	}
	return m
}

// NameString returns the method name.
func (m *MethodDescriptor) NameString() string {
	return m.class.Names.Name(m.Name)
}

// Body returns the method body, or nil for abstract and native methods.
func (m *MethodDescriptor) Body() *MethodBody {
	return m.body
}

// IsStatic reports whether the method is static.
func (m *MethodDescriptor) IsStatic() bool {
	return m.Flags&AccStatic != 0
}

// Completed reports whether Complete has been called.
func (m *MethodDescriptor) Completed() bool {
	return m.completed
}

// ReturnType returns the return type descriptor.
func (m *MethodDescriptor) ReturnType() string {
	return m.ret
}

// Params returns the parameter descriptors declared so far.
func (m *MethodDescriptor) Params() []string {
	return m.param
}

// Signature returns the method descriptor built from the declared
// parameters and return type.
func (m *MethodDescriptor) Signature() string {
	return BuildMethodDescriptor(m.param, m.ret)
}

// SetLocalVariableTable enables or disables the LocalVariableTable attribute.
func (m *MethodDescriptor) SetLocalVariableTable(on bool) {
	m.localTable = on
}

// ParametersClosed reports whether the parameter section is closed.
func (m *MethodDescriptor) ParametersClosed() bool {
	return m.paramsClosed
}

// CloseParameters ends the parameter section. It happens implicitly on
// the first non-parameter declaration.
func (m *MethodDescriptor) CloseParameters() {
	m.paramsClosed = true
}

func (m *MethodDescriptor) declare(name symbol.ID, desc string, flags uint16) (Variable, error) {
	top := &m.frames[len(m.frames)-1]
	if _, ok := top.vars[name]; ok {
		return Variable{}, fmt.Errorf("%w: duplicate variable name [%s] in this block", ErrDuplicateName, m.class.Names.Name(name))
	}
	v := Variable{
		Name:  name,
		Desc:  desc,
		Flags: flags,
		Slot:  m.displ,
		Start: m.body.PC(),
		End:   -1,
	}
	top.vars[name] = len(m.vars)
	m.vars = append(m.vars, v)
	m.displ += SlotSize(desc)
	if m.displ > m.maxLocs {
		m.maxLocs = m.displ
	}
	return v, nil
}

// AddParameter declares a parameter in the outermost frame.
func (m *MethodDescriptor) AddParameter(name symbol.ID, desc string, flags uint16) (Variable, error) {
	if m.completed {
		return Variable{}, ErrMethodClosed
	}
	if m.paramsClosed {
		return Variable{}, fmt.Errorf("%w: parameter [%s] must precede all other method content", ErrParametersClosed, m.class.Names.Name(name))
	}
	if m.body == nil {
		// Abstract and native methods record only the signature.
		m.param = append(m.param, desc)
		return Variable{Name: name, Desc: desc, Flags: flags}, nil
	}
	v, err := m.declare(name, desc, flags)
	if err != nil {
		return Variable{}, err
	}
	m.param = append(m.param, desc)
	return v, nil
}

// AddVar declares a local variable in the current frame and closes the
// parameter section.
func (m *MethodDescriptor) AddVar(name symbol.ID, desc string, flags uint16) (Variable, error) {
	if m.completed {
		return Variable{}, ErrMethodClosed
	}
	if m.body == nil {
		return Variable{}, fmt.Errorf("%w: cannot declare variables", ErrNoBody)
	}
	m.paramsClosed = true
	return m.declare(name, desc, flags)
}

// Var resolves a name innermost-frame first.
func (m *MethodDescriptor) Var(name symbol.ID) (Variable, error) {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if idx, ok := m.frames[i].vars[name]; ok {
			return m.vars[idx], nil
		}
	}
	return Variable{}, fmt.Errorf("variable [%s] is %w anywhere in this method", m.class.Names.Name(name), ErrUndeclared)
}

// Begin pushes a nested variable frame.
func (m *MethodDescriptor) Begin() error {
	if m.body == nil {
		return ErrNoBody
	}
	m.paramsClosed = true
	m.frames = append(m.frames, frame{vars: make(map[symbol.ID]int), displ: m.displ})
	return nil
}

// End pops the innermost frame. Its slots become reusable.
func (m *MethodDescriptor) End() error {
	if len(m.frames) <= 1 {
		return ErrScopeUnbalanced
	}
	top := m.frames[len(m.frames)-1]
	m.closeFrame(top)
	m.frames = m.frames[:len(m.frames)-1]
	m.displ = top.displ
	return nil
}

// Depth returns the number of open frames beyond the method frame.
func (m *MethodDescriptor) Depth() int {
	return len(m.frames) - 1
}

// MaxLocals returns the highest slot displacement ever allocated.
func (m *MethodDescriptor) MaxLocals() int {
	return m.maxLocs
}

// Vars returns every variable declared so far in declaration order.
func (m *MethodDescriptor) Vars() []Variable {
	return m.vars
}

func (m *MethodDescriptor) closeFrame(f frame) {
	pc := m.body.PC()
	for _, idx := range f.vars {
		if m.vars[idx].End < 0 {
			m.vars[idx].End = pc
		}
	}
}

// AddThrows appends a class to the throws list.
func (m *MethodDescriptor) AddThrows(classIdx uint16) {
	m.throws = append(m.throws, classIdx)
}

// AddExceptionRecord appends an exception-table entry.
func (m *MethodDescriptor) AddExceptionRecord(start, end int, catchType uint16, handler int) error {
	if m.body == nil {
		return ErrNoBody
	}
	if start >= end {
		return fmt.Errorf("empty try block (start %d, end %d)", start, end)
	}
	m.exceptions = append(m.exceptions, ExceptionRecord{Start: start, End: end, Handler: handler, CatchType: catchType})
	return nil
}

// Exceptions returns the exception table.
func (m *MethodDescriptor) Exceptions() []ExceptionRecord {
	return m.exceptions
}

// AddLineRecord pairs the current body offset with a source line.
// A record at an offset already recorded replaces it; a record repeating
// the previous line is dropped.
func (m *MethodDescriptor) AddLineRecord(line int) {
	if m.body == nil {
		return
	}
	pc := m.body.PC()
	if n := len(m.lines); n > 0 {
		last := &m.lines[n-1]
		if last.PC == pc {
			last.Line = line
			return
		}
		if last.Line == line {
			return
		}
	}
	m.lines = append(m.lines, LineRecord{PC: pc, Line: line})
}

// Lines returns the line-number table.
func (m *MethodDescriptor) Lines() []LineRecord {
	return m.lines
}

// Complete closes the method: open frames must be balanced, branches are
// resolved, and every pool entry the method needs is allocated.
func (m *MethodDescriptor) Complete() error {
	if m.completed {
		return ErrMethodClosed
	}
	m.paramsClosed = true

	className := m.class.ClassName()
	if m.body != nil {
		if len(m.frames) != 1 {
			return fmt.Errorf("%w: %d block(s) left open in method [%s]", ErrScopeUnbalanced, len(m.frames)-1, m.NameString())
		}
		if err := m.body.Resolve(className, m.NameString()); err != nil {
			return err
		}
		codeLen := m.body.PC()
		if codeLen > 0xFFFF {
			return fmt.Errorf("code of method [%s] is too long (%d bytes)", m.NameString(), codeLen)
		}
		m.closeFrame(m.frames[0])
		for len(m.lines) > 0 && m.lines[len(m.lines)-1].PC >= codeLen {
			m.lines = m.lines[:len(m.lines)-1]
		}
	}

	if err := m.allocate(); err != nil {
		return err
	}
	m.completed = true
	return nil
}

func (m *MethodDescriptor) allocate() error {
	var err error
	names := m.class.Names
	pool := m.pool

	if m.nameIdx, err = pool.AsUtf8(m.Name); err != nil {
		return err
	}
	if m.descIdx, err = pool.AsUtf8(names.Intern(m.Signature())); err != nil {
		return err
	}
	if len(m.throws) > 0 {
		if m.excIdx, err = pool.AsUtf8String(AttrExceptions); err != nil {
			return err
		}
	}
	if m.body == nil {
		return nil
	}
	if m.codeIdx, err = pool.AsUtf8String(AttrCode); err != nil {
		return err
	}
	if len(m.lines) > 0 {
		if m.lntIdx, err = pool.AsUtf8String(AttrLineNumberTable); err != nil {
			return err
		}
	}
	if vars := m.tableVars(); len(vars) > 0 {
		if m.lvtIdx, err = pool.AsUtf8String(AttrLocalVariableTable); err != nil {
			return err
		}
		m.varIdx = make([][2]uint16, len(vars))
		for i, v := range vars {
			if m.varIdx[i][0], err = pool.AsUtf8(v.Name); err != nil {
				return err
			}
			if m.varIdx[i][1], err = pool.AsUtf8(names.Intern(v.Desc)); err != nil {
				return err
			}
		}
	}
	return nil
}

// tableVars returns the variables that go into the LocalVariableTable:
// those whose declaration precedes the end of the code.
func (m *MethodDescriptor) tableVars() []Variable {
	if !m.localTable || m.body == nil {
		return nil
	}
	codeLen := m.body.PC()
	var out []Variable
	for _, v := range m.vars {
		if v.Start < codeLen {
			out = append(out, v)
		}
	}
	return out
}

// Dump writes the method_info structure. The method must be completed.
func (m *MethodDescriptor) Dump(w *Sink) error {
	if !m.completed {
		return fmt.Errorf("%w: method [%s]", ErrMethodOpen, m.NameString())
	}
	for _, l := range m.lines {
		if l.Line < 0 || l.Line > math.MaxUint16 {
			return fmt.Errorf("method [%s]: line number %d is out of range", m.NameString(), l.Line)
		}
	}

	w.U2(m.Flags)
	w.U2(m.nameIdx)
	w.U2(m.descIdx)

	attrs := 0
	if m.body != nil {
		attrs++
	}
	if len(m.throws) > 0 {
		attrs++
	}
	w.U2(uint16(attrs))

	if len(m.throws) > 0 {
		w.U2(m.excIdx)
		w.U4(uint32(2 + 2*len(m.throws)))
		w.U2(uint16(len(m.throws)))
		for _, t := range m.throws {
			w.U2(t)
		}
	}

	if m.body == nil {
		return nil
	}

	code := m.body.Code()
	vars := m.tableVars()

	// max_stack(2) + max_locals(2) + code_length(4) + code + exception_table_length(2)
	// + entries(8 each) + attributes_count(2) + sub-attributes
	length := 2 + 2 + 4 + len(code) + 2 + 8*len(m.exceptions) + 2
	subAttrs := 0
	if len(vars) > 0 {
		length += 6 + 2 + 10*len(vars)
		subAttrs++
	}
	if len(m.lines) > 0 {
		length += 6 + 2 + 4*len(m.lines)
		subAttrs++
	}

	w.U2(m.codeIdx)
	w.U4(uint32(length))
	w.U2(uint16(m.body.MaxStack()))
	w.U2(uint16(m.maxLocs))
	w.U4(uint32(len(code)))
	w.Append(code...)

	w.U2(uint16(len(m.exceptions)))
	for _, e := range m.exceptions {
		w.U2(uint16(e.Start))
		w.U2(uint16(e.End))
		w.U2(uint16(e.Handler))
		w.U2(e.CatchType)
	}

	w.U2(uint16(subAttrs))
	if len(vars) > 0 {
		w.U2(m.lvtIdx)
		w.U4(uint32(2 + 10*len(vars)))
		w.U2(uint16(len(vars)))
		for i, v := range vars {
			end := v.End
			if end < 0 || end > len(code) {
				end = len(code)
			}
			w.U2(uint16(v.Start))
			w.U2(uint16(end - v.Start))
			w.U2(m.varIdx[i][0])
			w.U2(m.varIdx[i][1])
			w.U2(uint16(v.Slot))
		}
	}
	if len(m.lines) > 0 {
		w.U2(m.lntIdx)
		w.U4(uint32(2 + 4*len(m.lines)))
		w.U2(uint16(len(m.lines)))
		for _, l := range m.lines {
			w.U2(uint16(l.PC))
			w.U2(uint16(l.Line))
		}
	}
	return nil
}
