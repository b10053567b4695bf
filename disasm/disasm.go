// Package disasm reads class files back into a javap-like listing. The
// assembler's tests and the inspect command use it to look at output
// through an independent class reader.
package disasm

import (
	"bytes"
	"fmt"
	"strings"

	parser "github.com/wreulicke/classfile-parser"
)

// ---------------------------------------------------------------------------
// Output types
// ---------------------------------------------------------------------------

type ClassInfo struct {
	Major      int          `json:"major"`
	Minor      int          `json:"minor"`
	Release    string       `json:"release"`
	Flags      []string     `json:"flags"`
	Name       string       `json:"name"`
	Super      string       `json:"super,omitempty"`
	Interfaces []string     `json:"interfaces"`
	SourceFile string       `json:"sourceFile,omitempty"`
	Fields     []FieldInfo  `json:"fields"`
	Methods    []MethodInfo `json:"methods"`
}

// IsInterface reports whether the class was declared with .interface.
func (c *ClassInfo) IsInterface() bool {
	for _, f := range c.Flags {
		if f == "interface" {
			return true
		}
	}
	return false
}

type FieldInfo struct {
	Flags      []string `json:"flags"`
	Name       string   `json:"name"`
	Descriptor string   `json:"descriptor"`
	Type       string   `json:"type"`
}

type MethodInfo struct {
	Flags      []string      `json:"flags"`
	Name       string        `json:"name"`
	Descriptor string        `json:"descriptor"`
	Return     string        `json:"return"`
	Params     []string      `json:"params"`
	Exceptions []string      `json:"exceptions,omitempty"`
	HasCode    bool          `json:"hasCode"`
	MaxStack   int           `json:"maxStack,omitempty"`
	MaxLocals  int           `json:"maxLocals,omitempty"`
	Code       []Instruction `json:"code,omitempty"`
}

// Instruction is one decoded opcode. Operands is already rendered; switch
// instructions carry their jump list in Cases and Default instead.
type Instruction struct {
	PC       int    `json:"pc"`
	Mnemonic string `json:"mnemonic"`
	Operands string `json:"operands,omitempty"`
	Cases    []Case `json:"cases,omitempty"`
	Default  int    `json:"default,omitempty"`
}

// Case is one row of a tableswitch or lookupswitch, with an absolute
// target.
type Case struct {
	Match  int32 `json:"match"`
	Target int   `json:"target"`
}

// ---------------------------------------------------------------------------
// Release mapping
// ---------------------------------------------------------------------------

var releases = map[int]string{
	45: "1.1", 46: "1.2", 47: "1.3", 48: "1.4",
	49: "5", 50: "6", 51: "7", 52: "8",
	53: "9", 54: "10", 55: "11", 56: "12",
	57: "13", 58: "14", 59: "15", 60: "16",
	61: "17", 62: "18", 63: "19", 64: "20",
	65: "21",
}

// ---------------------------------------------------------------------------
// Access flags
// ---------------------------------------------------------------------------

type flagList []string

func (l *flagList) add(on bool, name string) {
	if on {
		*l = append(*l, name)
	}
}

func classFlags(f parser.AccessFlags) []string {
	out := flagList{}
	out.add(f.Is(parser.ACC_PUBLIC), "public")
	out.add(f.Is(parser.ACC_FINAL), "final")
	out.add(f.Is(parser.ACC_SUPER), "super")
	out.add(f.Is(0x0200), "interface") // ACC_INTERFACE
	out.add(f.Is(parser.ACC_ABSTRACT), "abstract")
	out.add(f.Is(parser.ACC_SYNTHETIC), "synthetic")
	out.add(f.Is(parser.ACC_ANNOTATION), "annotation")
	out.add(f.Is(parser.ACC_ENUM), "enum")
	return out
}

func fieldFlags(f parser.AccessFlags) []string {
	out := flagList{}
	out.add(f.Is(parser.ACC_PUBLIC), "public")
	out.add(f.Is(parser.ACC_PRIVATE), "private")
	out.add(f.Is(parser.ACC_PROTECTED), "protected")
	out.add(f.Is(parser.ACC_STATIC), "static")
	out.add(f.Is(parser.ACC_FINAL), "final")
	out.add(f.Is(parser.ACC_VOLATILE), "volatile")
	out.add(f.Is(parser.ACC_TRANSIENT), "transient")
	out.add(f.Is(parser.ACC_SYNTHETIC), "synthetic")
	out.add(f.Is(parser.ACC_ENUM), "enum")
	return out
}

func methodFlags(f parser.AccessFlags) []string {
	out := flagList{}
	out.add(f.Is(parser.ACC_PUBLIC), "public")
	out.add(f.Is(parser.ACC_PRIVATE), "private")
	out.add(f.Is(parser.ACC_PROTECTED), "protected")
	out.add(f.Is(parser.ACC_STATIC), "static")
	out.add(f.Is(parser.ACC_FINAL), "final")
	out.add(f.Is(parser.ACC_SYNCHRONIZED), "synchronized")
	out.add(f.Is(parser.ACC_BRIDGE), "bridge")
	out.add(f.Is(parser.ACC_VARARGS), "varargs")
	out.add(f.Is(parser.ACC_NATIVE), "native")
	out.add(f.Is(parser.ACC_ABSTRACT), "abstract")
	out.add(f.Is(parser.ACC_STRICT), "strictfp")
	out.add(f.Is(parser.ACC_SYNTHETIC), "synthetic")
	return out
}

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

func descriptorType(desc string, pos *int) string {
	if *pos >= len(desc) {
		return "?"
	}
	ch := desc[*pos]
	*pos++
	switch ch {
	case 'B':
		return "byte"
	case 'C':
		return "char"
	case 'D':
		return "double"
	case 'F':
		return "float"
	case 'I':
		return "int"
	case 'J':
		return "long"
	case 'S':
		return "short"
	case 'Z':
		return "boolean"
	case 'V':
		return "void"
	case '[':
		return descriptorType(desc, pos) + "[]"
	case 'L':
		end := strings.IndexByte(desc[*pos:], ';')
		if end == -1 {
			return "?"
		}
		name := desc[*pos : *pos+end]
		*pos += end + 1
		return dotted(name)
	}
	return string(ch)
}

// FieldType renders a field descriptor as a source type name.
func FieldType(desc string) string {
	pos := 0
	return descriptorType(desc, &pos)
}

// MethodTypes renders a method descriptor as parameter and return type
// names.
func MethodTypes(desc string) (params []string, ret string) {
	params = []string{}
	if len(desc) == 0 || desc[0] != '(' {
		return params, "?"
	}
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		params = append(params, descriptorType(desc, &pos))
	}
	if pos < len(desc) {
		pos++
	}
	return params, descriptorType(desc, &pos)
}

func dotted(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// ---------------------------------------------------------------------------
// Class reading
// ---------------------------------------------------------------------------

// Disassemble parses a class file and decodes every method body.
func Disassemble(data []byte) (*ClassInfo, error) {
	cf, err := parser.New(bytes.NewReader(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse class file: %w", err)
	}
	cp := cf.ConstantPool

	name, err := cf.ThisClassName()
	if err != nil {
		return nil, fmt.Errorf("failed to read class name: %w", err)
	}
	info := &ClassInfo{
		Major:      int(cf.MajorVersion),
		Minor:      int(cf.MinorVersion),
		Flags:      classFlags(cf.AccessFlags),
		Name:       dotted(name),
		Interfaces: []string{},
	}
	info.Release = releases[info.Major]
	if info.Release == "" {
		info.Release = fmt.Sprintf("unknown (%d)", info.Major)
	}
	if cf.SuperClass != 0 {
		super, err := cf.SuperClassName()
		if err != nil {
			return nil, fmt.Errorf("%s: superclass: %w", info.Name, err)
		}
		info.Super = dotted(super)
	}
	for _, idx := range cf.Interfaces {
		iName, err := cp.GetClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("%s: interface: %w", info.Name, err)
		}
		info.Interfaces = append(info.Interfaces, dotted(iName))
	}
	if sf := cf.SourceFile(); sf != nil {
		if u := cp.LookupUtf8(sf.SourcefileIndex); u != nil {
			info.SourceFile = u.String()
		}
	}

	info.Fields = make([]FieldInfo, 0, len(cf.Fields))
	for _, f := range cf.Fields {
		fName, _ := f.Name(cp)
		fDesc, _ := f.Descriptor(cp)
		info.Fields = append(info.Fields, FieldInfo{
			Flags:      fieldFlags(f.AccessFlags),
			Name:       fName,
			Descriptor: fDesc,
			Type:       FieldType(fDesc),
		})
	}

	info.Methods = make([]MethodInfo, 0, len(cf.Methods))
	for _, m := range cf.Methods {
		mName, _ := m.Name(cp)
		mDesc, _ := m.Descriptor(cp)
		params, ret := MethodTypes(mDesc)
		mi := MethodInfo{
			Flags:      methodFlags(m.AccessFlags),
			Name:       mName,
			Descriptor: mDesc,
			Return:     ret,
			Params:     params,
		}
		if exc := m.Exceptions(); exc != nil {
			for _, idx := range exc.ExceptionIndexes {
				eName, err := cp.GetClassName(idx)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: throws: %w", info.Name, mName, err)
				}
				mi.Exceptions = append(mi.Exceptions, dotted(eName))
			}
		}
		if code := m.Code(); code != nil {
			mi.HasCode = true
			mi.MaxStack = int(code.MaxStack)
			mi.MaxLocals = int(code.MaxLocals)
			if mi.Code, err = Decode(code.Codes, cp); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", info.Name, mName, err)
			}
		}
		info.Methods = append(info.Methods, mi)
	}
	return info, nil
}

// Method returns the first method with the given name.
func (c *ClassInfo) Method(name string) (*MethodInfo, bool) {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i], true
		}
	}
	return nil, false
}
