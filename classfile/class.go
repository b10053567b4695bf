package classfile

import (
	"fmt"
	"strings"

	"github.com/chazu/jasm/symbol"
)

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// Field is one field_info entry.
type Field struct {
	Flags uint16
	Name  symbol.ID
	Desc  symbol.ID

	nameIdx, descIdx uint16
	constIdx         uint16 // ConstantValue entry, 0 if none
	constAttrIdx     uint16
}

// ConstantValue returns the pool index of the field's initial value, or 0.
func (f *Field) ConstantValue() uint16 {
	return f.constIdx
}

// ---------------------------------------------------------------------------
// ClassAssembler
// ---------------------------------------------------------------------------

// ClassAssembler owns the constant pool, field table and method list of
// one class and serializes them to the class-file layout.
type ClassAssembler struct {
	Names *symbol.Interner
	Pool  *ConstantPool

	major, minor uint16

	classSet   bool
	flags      uint16
	className  string // internal form
	thisIdx    uint16
	superName  string
	superIdx   uint16
	interfaces []uint16
	ifaceSeen  map[uint16]bool

	fields    []*Field
	fieldSeen map[symbol.ID]bool
	methods   []*MethodDescriptor
	sigSeen   map[string]bool
	current   *MethodDescriptor

	sourceIdx     uint16
	sourceAttrIdx uint16
}

// NewClassAssembler creates an assembler with a fresh pool over names.
func NewClassAssembler(names *symbol.Interner) *ClassAssembler {
	return &ClassAssembler{
		Names:     names,
		Pool:      NewConstantPool(names),
		major:     DefaultMajor,
		minor:     DefaultMinor,
		ifaceSeen: make(map[uint16]bool),
		fieldSeen: make(map[symbol.ID]bool),
		sigSeen:   make(map[string]bool),
	}
}

// SetVersion sets the class-file version.
func (c *ClassAssembler) SetVersion(major, minor uint16) error {
	if major < MinMajor || major > MaxMajor {
		return fmt.Errorf("unsupported class-file version %d.%d", major, minor)
	}
	c.major, c.minor = major, minor
	return nil
}

// Version returns the class-file version.
func (c *ClassAssembler) Version() (major, minor uint16) {
	return c.major, c.minor
}

// SetClass declares the class. pkg may be the ID of an empty string for
// the default package. Only one declaration is allowed.
func (c *ClassAssembler) SetClass(flags uint16, pkg, name symbol.ID) error {
	if c.classSet {
		return ErrClassAlreadySet
	}
	internal := InternalName(c.Names.Name(name))
	if p := c.Names.Name(pkg); p != "" {
		internal = InternalName(p) + "/" + internal
	}

	idx, err := c.Pool.AsClass(c.Names.Intern(internal))
	if err != nil {
		return err
	}
	c.classSet = true
	c.flags = flags
	c.className = internal
	c.thisIdx = idx
	return nil
}

// ClassName returns the class name in internal form.
func (c *ClassAssembler) ClassName() string {
	return c.className
}

// Flags returns the class access flags.
func (c *ClassAssembler) Flags() uint16 {
	return c.flags
}

// IsInterface reports whether the class was declared as an interface.
func (c *ClassAssembler) IsInterface() bool {
	return c.flags&AccInterface != 0
}

// SetSuperclass sets the superclass, given in internal form.
func (c *ClassAssembler) SetSuperclass(name symbol.ID) error {
	if !c.classSet {
		return ErrClassNotSet
	}
	idx, err := c.Pool.AsClass(name)
	if err != nil {
		return err
	}
	c.superName = c.Names.Name(name)
	c.superIdx = idx
	return nil
}

// SuperclassName returns the declared superclass in internal form, or the
// root object type when none was declared.
func (c *ClassAssembler) SuperclassName() string {
	if c.superName == "" {
		return ObjectClass
	}
	return c.superName
}

// AddInterface adds an implemented (or, for interfaces, extended) interface.
func (c *ClassAssembler) AddInterface(name symbol.ID) error {
	if !c.classSet {
		return ErrClassNotSet
	}
	idx, err := c.Pool.AsClass(name)
	if err != nil {
		return err
	}
	if c.ifaceSeen[idx] {
		return fmt.Errorf("%w: interface [%s] is listed twice", ErrDuplicateName, c.Names.Name(name))
	}
	c.ifaceSeen[idx] = true
	c.interfaces = append(c.interfaces, idx)
	return nil
}

// AddField appends a field. Field names must be unique.
func (c *ClassAssembler) AddField(flags uint16, name, desc symbol.ID) (*Field, error) {
	if !c.classSet {
		return nil, ErrClassNotSet
	}
	if c.fieldSeen[name] {
		return nil, fmt.Errorf("%w: field [%s] is already declared", ErrDuplicateName, c.Names.Name(name))
	}
	nameIdx, err := c.Pool.AsUtf8(name)
	if err != nil {
		return nil, err
	}
	descIdx, err := c.Pool.AsUtf8(desc)
	if err != nil {
		return nil, err
	}
	f := &Field{Flags: flags, Name: name, Desc: desc, nameIdx: nameIdx, descIdx: descIdx}
	c.fieldSeen[name] = true
	c.fields = append(c.fields, f)
	return f, nil
}

// SetConstantValue attaches a ConstantValue attribute to f.
func (c *ClassAssembler) SetConstantValue(f *Field, valueIdx uint16) error {
	attrIdx, err := c.Pool.AsUtf8String(AttrConstantValue)
	if err != nil {
		return err
	}
	f.constIdx = valueIdx
	f.constAttrIdx = attrIdx
	return nil
}

// Fields returns the field table.
func (c *ClassAssembler) Fields() []*Field {
	return c.fields
}

// AddMethod starts a new method description. The previous one must be
// completed, and abstract methods require an abstract class.
func (c *ClassAssembler) AddMethod(flags uint16, name symbol.ID, ret string) (*MethodDescriptor, error) {
	if !c.classSet {
		return nil, ErrClassNotSet
	}
	if c.current != nil && !c.current.Completed() {
		return nil, fmt.Errorf("%w: method [%s]", ErrMethodOpen, c.current.NameString())
	}
	if flags&AccAbstract != 0 && c.flags&AccAbstract == 0 {
		return nil, fmt.Errorf("%w: method [%s]", ErrAbstractMethod, c.Names.Name(name))
	}
	m := newMethodDescriptor(c, flags, name, ret)
	c.methods = append(c.methods, m)
	c.current = m
	return m, nil
}

// CompleteMethod completes the current method and checks that its
// name and signature are unique within the class.
func (c *ClassAssembler) CompleteMethod() error {
	m := c.current
	if m == nil {
		return ErrMethodClosed
	}
	key := m.NameString() + m.Signature()
	if c.sigSeen[key] {
		return fmt.Errorf("%w: method [%s%s] is already declared", ErrDuplicateName, m.NameString(), m.Signature())
	}
	if err := m.Complete(); err != nil {
		return err
	}
	c.sigSeen[key] = true
	return nil
}

// CurrentMethod returns the method being described, or nil.
func (c *ClassAssembler) CurrentMethod() *MethodDescriptor {
	if c.current == nil || c.current.Completed() {
		return nil
	}
	return c.current
}

// Methods returns the method list.
func (c *ClassAssembler) Methods() []*MethodDescriptor {
	return c.methods
}

// SetSourceFile records the SourceFile attribute.
func (c *ClassAssembler) SetSourceFile(name symbol.ID) error {
	attrIdx, err := c.Pool.AsUtf8String(AttrSourceFile)
	if err != nil {
		return err
	}
	idx, err := c.Pool.AsUtf8(name)
	if err != nil {
		return err
	}
	c.sourceAttrIdx, c.sourceIdx = attrIdx, idx
	return nil
}

// finish defaults the superclass before serialization.
func (c *ClassAssembler) finish() error {
	if c.superIdx != 0 || c.className == ObjectClass {
		return nil
	}
	return c.SetSuperclass(c.Names.Intern(ObjectClass))
}

// Dump serializes the class to w. Nothing is appended to w unless the
// whole class serializes without fault.
func (c *ClassAssembler) Dump(w *Sink) error {
	if !c.classSet {
		return ErrClassNotSet
	}
	if c.current != nil && !c.current.Completed() {
		return fmt.Errorf("%w: method [%s] has no matching .end", ErrMethodOpen, c.current.NameString())
	}
	if err := c.finish(); err != nil {
		return err
	}

	out := NewSink(c.Pool.buf.Len() + 256)
	out.U4(Magic)
	out.U2(c.minor)
	out.U2(c.major)

	out.U2(uint16(c.Pool.Size()))
	c.Pool.Dump(out)

	out.U2(c.flags)
	out.U2(c.thisIdx)
	out.U2(c.superIdx)

	out.U2(uint16(len(c.interfaces)))
	for _, idx := range c.interfaces {
		out.U2(idx)
	}

	out.U2(uint16(len(c.fields)))
	for _, f := range c.fields {
		out.U2(f.Flags)
		out.U2(f.nameIdx)
		out.U2(f.descIdx)
		if f.constIdx != 0 {
			out.U2(1)
			out.U2(f.constAttrIdx)
			out.U4(2)
			out.U2(f.constIdx)
		} else {
			out.U2(0)
		}
	}

	out.U2(uint16(len(c.methods)))
	for _, m := range c.methods {
		if err := m.Dump(out); err != nil {
			return err
		}
	}

	if c.sourceIdx != 0 {
		out.U2(1)
		out.U2(c.sourceAttrIdx)
		out.U4(2)
		out.U2(c.sourceIdx)
	} else {
		out.U2(0)
	}

	w.Append(out.Bytes()...)
	return nil
}

// Bytes serializes the class and returns the class-file bytes.
func (c *ClassAssembler) Bytes() ([]byte, error) {
	w := NewSink(1024)
	if err := c.Dump(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// SimpleName returns the class name without its package.
func (c *ClassAssembler) SimpleName() string {
	if i := strings.LastIndexByte(c.className, '/'); i >= 0 {
		return c.className[i+1:]
	}
	return c.className
}
