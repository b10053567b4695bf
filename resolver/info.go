package resolver

import (
	"strings"

	"github.com/chazu/jasm/classfile"
)

// Kind names what a symbolic name resolved to.
type Kind uint8

const (
	KindClass Kind = iota + 1
	KindField
	KindMethod
	KindConstructor
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindField:
		return "field"
	case KindMethod:
		return "method"
	case KindConstructor:
		return "constructor"
	}
	return "unknown"
}

// ClassInfo is the metadata the assembler needs about one class: its
// hierarchy, flags and member signatures. Names are in internal form
// (java/lang/Object).
type ClassInfo struct {
	Name       string       `cbor:"1,keyasint"`
	Super      string       `cbor:"2,keyasint,omitempty"`
	Interfaces []string     `cbor:"3,keyasint,omitempty"`
	Flags      uint16       `cbor:"4,keyasint"`
	Fields     []FieldInfo  `cbor:"5,keyasint,omitempty"`
	Methods    []MethodInfo `cbor:"6,keyasint,omitempty"` // constructors included as <init>
}

// FieldInfo describes one field.
type FieldInfo struct {
	Name  string `cbor:"1,keyasint"`
	Desc  string `cbor:"2,keyasint"`
	Flags uint16 `cbor:"3,keyasint"`
}

// MethodInfo describes one method or constructor.
type MethodInfo struct {
	Name  string `cbor:"1,keyasint"`
	Desc  string `cbor:"2,keyasint"`
	Flags uint16 `cbor:"3,keyasint"`
}

func (c *ClassInfo) IsInterface() bool { return c.Flags&classfile.AccInterface != 0 }
func (c *ClassInfo) IsFinal() bool     { return c.Flags&classfile.AccFinal != 0 }
func (c *ClassInfo) IsAbstract() bool  { return c.Flags&classfile.AccAbstract != 0 }

// DottedName returns the class name in source form (java.lang.Object).
func (c *ClassInfo) DottedName() string {
	return strings.ReplaceAll(c.Name, "/", ".")
}

// SimpleName returns the class name without its package.
func (c *ClassInfo) SimpleName() string {
	return simpleName(c.Name)
}

func (c *ClassInfo) field(name string) (FieldInfo, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

func (c *ClassInfo) methods(name string) []MethodInfo {
	var out []MethodInfo
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Ref is a resolved member together with the class that declares it.
type Ref struct {
	Owner *ClassInfo
	Name  string
	Desc  string
	Flags uint16
}

// IsStatic reports whether the member is static.
func (r Ref) IsStatic() bool { return r.Flags&classfile.AccStatic != 0 }

func simpleName(internal string) string {
	if i := strings.LastIndexByte(internal, '/'); i >= 0 {
		return internal[i+1:]
	}
	return internal
}

func packageOf(internal string) string {
	if i := strings.LastIndexByte(internal, '/'); i >= 0 {
		return internal[:i]
	}
	return ""
}
