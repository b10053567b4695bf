// Package resolver maps the textual class, field and method names used in
// assembly source to class metadata. Lookups run against a stack of
// immutable snapshots: the platform base types at the bottom, indexed
// libraries above them, and import scopes on top.
package resolver

import (
	"errors"
	"slices"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jasm.resolver")

// Resolver answers name lookups. A Resolver is not safe for concurrent
// use; call Fork to get an independent scope stack over the same
// snapshots.
type Resolver struct {
	stack []*Snapshot
}

// New returns a resolver over the base types plus the given snapshots,
// innermost last.
func New(snaps ...*Snapshot) *Resolver {
	r := &Resolver{stack: []*Snapshot{BaseTypes()}}
	for _, s := range snaps {
		if s != nil {
			r.stack = append(r.stack, s)
		}
	}
	return r
}

// Fork returns a resolver with a copy of r's scope stack.
func (r *Resolver) Fork() *Resolver {
	return &Resolver{stack: slices.Clone(r.stack)}
}

// Push opens a new innermost scope.
func (r *Resolver) Push(s *Snapshot) {
	r.stack = append(r.stack, s)
}

// Pop closes the innermost scope. The base types cannot be popped.
func (r *Resolver) Pop() error {
	if len(r.stack) <= 1 {
		return errors.New("resolver: scope stack underflow")
	}
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

// Depth returns the number of scopes on the stack.
func (r *Resolver) Depth() int {
	return len(r.stack)
}

// Truncate pops scopes until Depth is at most depth.
func (r *Resolver) Truncate(depth int) {
	if depth < 1 {
		depth = 1
	}
	if depth < len(r.stack) {
		r.stack = r.stack[:depth]
	}
}

// ClassNames returns the internal name of every class in scope, sorted
// and without duplicates.
func (r *Resolver) ClassNames() []string {
	var out []string
	for _, s := range r.stack {
		for name := range s.classes {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func (r *Resolver) lookup(internal string) (*ClassInfo, bool) {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if c, ok := r.stack[i].Class(internal); ok {
			return c, true
		}
	}
	return nil, false
}

// canonical maps a source name to an internal name. Simple names go
// through import aliases, on-demand packages and java.lang in that order.
func (r *Resolver) canonical(name string) (string, bool) {
	internal := internalName(name)
	if strings.Contains(internal, "/") {
		if _, ok := r.lookup(internal); ok {
			return internal, true
		}
		// Outer.Inner written with a dot.
		for i := strings.LastIndexByte(internal, '/'); i > 0; i = strings.LastIndexByte(internal[:i], '/') {
			nested := internal[:i] + "$" + strings.ReplaceAll(internal[i+1:], "/", "$")
			if _, ok := r.lookup(nested); ok {
				return nested, true
			}
		}
		return "", false
	}

	for i := len(r.stack) - 1; i >= 0; i-- {
		s := r.stack[i]
		if target, ok := s.aliases[internal]; ok {
			return target, true
		}
		for _, pkg := range s.packages {
			if _, ok := r.lookup(pkg + "/" + internal); ok {
				return pkg + "/" + internal, true
			}
		}
	}
	if _, ok := r.lookup("java/lang/" + internal); ok {
		return "java/lang/" + internal, true
	}
	return "", false
}

// ClassName resolves name to its internal form. Imported names resolve
// even when the class itself is not indexed.
func (r *Resolver) ClassName(name string) (string, error) {
	if internal, ok := r.canonical(name); ok {
		return internal, nil
	}
	return "", r.classError(name)
}

// Class resolves name to its metadata.
func (r *Resolver) Class(name string) (*ClassInfo, error) {
	internal, ok := r.canonical(name)
	if !ok {
		return nil, r.classError(name)
	}
	c, ok := r.lookup(internal)
	if !ok {
		return nil, &NotFoundError{Kind: KindClass, Name: strings.ReplaceAll(internal, "/", ".")}
	}
	return c, nil
}

// HasClass reports whether name resolves to a known class.
func (r *Resolver) HasClass(name string) bool {
	_, err := r.Class(name)
	return err == nil
}

func (r *Resolver) classError(name string) error {
	// a.b.C.member names a member, not a class
	if i := strings.LastIndexAny(name, "./"); i > 0 {
		if owner, ok := r.canonical(name[:i]); ok {
			if c, ok := r.lookup(owner); ok {
				member := name[i+1:]
				if _, ok := c.field(member); ok {
					return &WrongKindError{Name: name, Want: KindClass, Got: KindField}
				}
				if len(c.methods(member)) > 0 {
					return &WrongKindError{Name: name, Want: KindClass, Got: KindMethod}
				}
			}
		}
	}
	return &NotFoundError{Kind: KindClass, Name: name, Suggestion: r.suggestClass(name)}
}

func (r *Resolver) suggestClass(name string) string {
	qualified := strings.ContainsAny(name, "./")
	seen := make(map[string]bool)
	var candidates []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			candidates = append(candidates, s)
		}
	}
	for _, s := range r.stack {
		for internal := range s.classes {
			if qualified {
				add(strings.ReplaceAll(internal, "/", "."))
			} else if pkg := packageOf(internal); pkg == "java/lang" || slices.Contains(s.packages, pkg) {
				add(simpleName(internal))
			}
		}
		for alias := range s.aliases {
			if !qualified {
				add(alias)
			}
		}
	}
	if !qualified {
		// on-demand packages may name classes from lower snapshots
		for _, s := range r.stack {
			for _, pkg := range s.packages {
				for _, low := range r.stack {
					for internal := range low.classes {
						if packageOf(internal) == pkg {
							add(simpleName(internal))
						}
					}
				}
			}
		}
	}
	return Suggest(strings.ReplaceAll(name, "/", "."), candidates)
}

// hierarchy returns c followed by its known superclasses and
// superinterfaces, breadth first.
func (r *Resolver) hierarchy(c *ClassInfo) []*ClassInfo {
	out := []*ClassInfo{c}
	seen := map[string]bool{c.Name: true}
	for i := 0; i < len(out); i++ {
		k := out[i]
		next := make([]string, 0, 1+len(k.Interfaces))
		if k.Super != "" {
			next = append(next, k.Super)
		}
		next = append(next, k.Interfaces...)
		for _, n := range next {
			if seen[n] {
				continue
			}
			seen[n] = true
			if sup, ok := r.lookup(n); ok {
				out = append(out, sup)
			}
		}
	}
	return out
}

// IsSubclass reports whether class sub is super or inherits from it.
// Unknown classes are never subclasses.
func (r *Resolver) IsSubclass(sub, super string) bool {
	c, ok := r.lookup(sub)
	if !ok {
		return false
	}
	for _, k := range r.hierarchy(c) {
		if k.Name == super {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// Field resolves a field of class, searching superclasses and interfaces.
func (r *Resolver) Field(class, name string) (Ref, error) {
	c, err := r.Class(class)
	if err != nil {
		return Ref{}, err
	}
	h := r.hierarchy(c)
	for _, k := range h {
		if f, ok := k.field(name); ok {
			return Ref{Owner: k, Name: f.Name, Desc: f.Desc, Flags: f.Flags}, nil
		}
	}
	var candidates []string
	for _, k := range h {
		if len(k.methods(name)) > 0 {
			return Ref{}, &WrongKindError{Name: c.DottedName() + "." + name, Want: KindField, Got: KindMethod}
		}
		for _, f := range k.Fields {
			candidates = append(candidates, f.Name)
		}
	}
	return Ref{}, &NotFoundError{Kind: KindField, Name: c.DottedName() + "." + name, Suggestion: Suggest(name, candidates)}
}

// HasField reports whether class has a field called name.
func (r *Resolver) HasField(class, name string) bool {
	_, err := r.Field(class, name)
	return err == nil
}

// Method resolves a method of class. With an empty desc the name must not
// be overloaded in the first class that declares it.
func (r *Resolver) Method(class, name, desc string) (Ref, error) {
	if name == "<init>" {
		return r.Constructor(class, desc)
	}
	c, err := r.Class(class)
	if err != nil {
		return Ref{}, err
	}
	h := r.hierarchy(c)
	found := false
	for _, k := range h {
		ms := k.methods(name)
		if len(ms) == 0 {
			continue
		}
		found = true
		if desc == "" {
			if len(ms) > 1 {
				descs := make([]string, len(ms))
				for i, m := range ms {
					descs[i] = m.Desc
				}
				return Ref{}, &AmbiguousError{Name: c.DottedName() + "." + name, Candidates: descs}
			}
			return Ref{Owner: k, Name: name, Desc: ms[0].Desc, Flags: ms[0].Flags}, nil
		}
		for _, m := range ms {
			if m.Desc == desc {
				return Ref{Owner: k, Name: name, Desc: m.Desc, Flags: m.Flags}, nil
			}
		}
	}

	full := c.DottedName() + "." + name
	if found {
		return Ref{}, &NotFoundError{Kind: KindMethod, Name: full + desc}
	}
	var candidates []string
	for _, k := range h {
		if _, ok := k.field(name); ok {
			return Ref{}, &WrongKindError{Name: full, Want: KindMethod, Got: KindField}
		}
		for _, m := range k.Methods {
			if m.Name != "<init>" && m.Name != "<clinit>" {
				candidates = append(candidates, m.Name)
			}
		}
	}
	return Ref{}, &NotFoundError{Kind: KindMethod, Name: full, Suggestion: Suggest(name, candidates)}
}

// HasMethod reports whether class has a method called name.
func (r *Resolver) HasMethod(class, name string) bool {
	c, err := r.Class(class)
	if err != nil {
		return false
	}
	for _, k := range r.hierarchy(c) {
		if len(k.methods(name)) > 0 {
			return true
		}
	}
	return false
}

// Constructor resolves a constructor of class. Constructors are not
// inherited.
func (r *Resolver) Constructor(class, desc string) (Ref, error) {
	c, err := r.Class(class)
	if err != nil {
		return Ref{}, err
	}
	ms := c.methods("<init>")
	switch {
	case len(ms) == 0:
	case desc == "" && len(ms) == 1:
		return Ref{Owner: c, Name: "<init>", Desc: ms[0].Desc, Flags: ms[0].Flags}, nil
	case desc == "":
		descs := make([]string, len(ms))
		for i, m := range ms {
			descs[i] = m.Desc
		}
		return Ref{}, &AmbiguousError{Name: c.DottedName() + ".<init>", Candidates: descs}
	default:
		for _, m := range ms {
			if m.Desc == desc {
				return Ref{Owner: c, Name: "<init>", Desc: m.Desc, Flags: m.Flags}, nil
			}
		}
	}
	return Ref{}, &NotFoundError{Kind: KindConstructor, Name: c.DottedName() + desc}
}

// HasConstructor reports whether class declares any constructor.
func (r *Resolver) HasConstructor(class string) bool {
	c, err := r.Class(class)
	return err == nil && len(c.methods("<init>")) > 0
}
