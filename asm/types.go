package asm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/jasm/classfile"
	"github.com/chazu/jasm/resolver"
)

// ---------------------------------------------------------------------------
// Class and type names
// ---------------------------------------------------------------------------

const throwableClass = "java/lang/Throwable"

var errVoid = errors.New("void is not a value type")

// classRef is a resolved class name. info is nil for the class being
// assembled and for classes trusted without metadata.
type classRef struct {
	internal string
	info     *resolver.ClassInfo
	own      bool
}

func (r classRef) isInterface() bool {
	return r.info != nil && r.info.IsInterface()
}

// isOwn reports whether name denotes the class being assembled.
func (a *assembler) isOwn(name string) bool {
	if a.simple == "" {
		return false
	}
	if name == a.simple {
		return true
	}
	return classfile.InternalName(name) == a.class.ClassName()
}

// classRef resolves a class name as written in the source. Results are
// cached on the interned name.
func (a *assembler) classRef(name string) (classRef, error) {
	if a.isOwn(name) {
		return classRef{internal: a.class.ClassName(), own: true}, nil
	}
	id := a.names.Intern(name)
	if ref, ok := a.names.Payload(id).(classRef); ok {
		return ref, nil
	}
	ref, err := a.lookupClass(name)
	if err != nil {
		return classRef{}, err
	}
	a.names.Attach(id, ref)
	return ref, nil
}

func (a *assembler) lookupClass(name string) (classRef, error) {
	qualified := strings.ContainsAny(name, "./")
	if !qualified && a.pkg != "" {
		if info, err := a.res.Class(a.pkg + "/" + name); err == nil {
			return classRef{internal: info.Name, info: info}, nil
		}
	}
	info, err := a.res.Class(name)
	if err == nil {
		return classRef{internal: info.Name, info: info}, nil
	}
	var nf *resolver.NotFoundError
	if !errors.As(err, &nf) {
		return classRef{}, err
	}
	// Imported but not indexed.
	if internal, e := a.res.ClassName(name); e == nil {
		if a.opts.Lenient {
			return classRef{internal: internal}, nil
		}
		return classRef{}, err
	}
	if qualified && a.opts.Lenient {
		return classRef{internal: classfile.InternalName(name)}, nil
	}
	return classRef{}, err
}

// descriptor converts a source type such as int, String or byte[][] to a
// field descriptor. void is accepted only when allowVoid is set.
func (a *assembler) descriptor(typ string, allowVoid bool) (string, error) {
	base, dims := typ, 0
	for strings.HasSuffix(base, "[]") {
		base = base[:len(base)-2]
		dims++
	}
	if dims > 255 {
		return "", fmt.Errorf("type [%s] has more than 255 dimensions", typ)
	}
	prefix := strings.Repeat("[", dims)
	if d, ok := classfile.PrimitiveDescriptor(base); ok {
		if d == "V" && (!allowVoid || dims > 0) {
			return "", errVoid
		}
		return prefix + d, nil
	}
	ref, err := a.classRef(base)
	if err != nil {
		return "", err
	}
	return prefix + classfile.ClassDescriptor(ref.internal), nil
}

// classEntry returns the name a Class pool entry uses for typ: the
// internal name of a class, or the descriptor of an array type.
func (a *assembler) classEntry(typ string) (string, classRef, error) {
	if !strings.HasSuffix(typ, "[]") {
		if _, ok := classfile.PrimitiveDescriptor(typ); ok {
			return "", classRef{}, fmt.Errorf("[%s] is a primitive type, not a class", typ)
		}
		ref, err := a.classRef(typ)
		return ref.internal, ref, err
	}
	desc, err := a.descriptor(typ, false)
	if err != nil {
		return "", classRef{}, err
	}
	return desc, classRef{internal: desc}, nil
}

// isThrowable reports whether ref may appear in a throws clause or a
// catch. Classes without metadata are trusted.
func (a *assembler) isThrowable(ref classRef) bool {
	switch {
	case ref.own:
		if !a.hasSuper {
			return false
		}
		return a.isThrowable(a.superRef)
	case ref.info == nil:
		return true
	}
	return a.res.IsSubclass(ref.internal, throwableClass)
}

// throwable resolves name and checks that it is a Throwable.
func (a *assembler) throwable(name string) (uint16, error) {
	ref, err := a.classRef(name)
	if err != nil {
		return 0, err
	}
	if !a.isThrowable(ref) {
		return 0, fmt.Errorf("[%s] is not a subclass of java.lang.Throwable", name)
	}
	return a.class.Pool.AsClass(a.names.Intern(ref.internal))
}
