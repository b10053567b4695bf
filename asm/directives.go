package asm

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/chazu/jasm/classfile"
	"github.com/chazu/jasm/resolver"
)

// ---------------------------------------------------------------------------
// Directive dispatch
// ---------------------------------------------------------------------------

type directiveDef struct {
	states stateSet
	run    func(a *assembler, st *statement) error
}

var directives map[string]directiveDef

func init() {
	header := states(stateBeforePackage, stateBeforeImport)
	method := states(stateMethodHeader, stateMethodBody)
	tables := states(stateLookupTable, stateJumpTable)

	directives = map[string]directiveDef{
		"package":   {states(stateBeforePackage), (*assembler).packageDirective},
		"import":    {header, (*assembler).importDirective},
		"version":   {header, (*assembler).versionDirective},
		"include":   {^tables, (*assembler).includeDirective},
		"class":     {header, func(a *assembler, st *statement) error { return a.classDirective(st, false) }},
		"interface": {header, func(a *assembler, st *statement) error { return a.classDirective(st, true) }},
		"source":    {header | states(stateClass), (*assembler).sourceDirective},
		"line":      {header | states(stateClass) | method, (*assembler).lineDirective},
		"field":     {states(stateClass), (*assembler).fieldDirective},
		"method":    {states(stateClass), (*assembler).methodDirective},
		"parameter": {states(stateMethodHeader), (*assembler).parameterDirective},
		"var":       {method, (*assembler).varDirective},
		"begin":     {method, (*assembler).beginDirective},
		"end":       {states(stateClass) | method | tables, (*assembler).endDirective},
		"stack":     {method, (*assembler).stackDirective},
		"try":       {method, (*assembler).tryDirective},
		"catch":     {method, (*assembler).catchDirective},
		"endtry":    {method, (*assembler).endtryDirective},
		"default":   {tables, (*assembler).defaultDirective},
	}
}

func (a *assembler) runDirective(st *statement) error {
	d, ok := directives[st.directive]
	if !ok {
		if s := resolver.Suggest(st.directive, directiveNames()); s != "" {
			return syntaxf("unknown directive [.%s]; did you mean [.%s]?", st.directive, s)
		}
		return syntaxf("unknown directive [.%s]", st.directive)
	}
	if !d.states.has(a.state) {
		return syntaxf("directive .%s is not allowed %s", st.directive, a.state)
	}
	return d.run(a, st)
}

// ---------------------------------------------------------------------------
// Modifiers
// ---------------------------------------------------------------------------

var modifierFlags = map[string]uint16{
	"public":       classfile.AccPublic,
	"protected":    classfile.AccProtected,
	"private":      classfile.AccPrivate,
	"static":       classfile.AccStatic,
	"final":        classfile.AccFinal,
	"synchronized": classfile.AccSynchronized,
	"volatile":     classfile.AccVolatile,
	"transient":    classfile.AccTransient,
	"native":       classfile.AccNative,
	"abstract":     classfile.AccAbstract,
	"strictfp":     classfile.AccStrict,
	"synthetic":    classfile.AccSynthetic,
	"varargs":      classfile.AccVarargs,
}

// modifiers is a parsed option list. Several flags share a bit across
// contexts, so exclusivity checks go by word.
type modifiers struct {
	flags uint16
	words []string
}

func (m modifiers) has(word string) bool {
	return slices.Contains(m.words, word)
}

func (m modifiers) exclusive(words ...string) error {
	var present []string
	for _, w := range words {
		if m.has(w) {
			present = append(present, w)
		}
	}
	if len(present) > 1 {
		return fmt.Errorf("options %s are mutually exclusive", strings.Join(present, " and "))
	}
	return nil
}

// modifiers reads option words up to the first word that is not a
// modifier.
func (a *assembler) modifiers(c *cursor, what string, allowed ...string) (modifiers, error) {
	var m modifiers
	for {
		w := c.peekIdent()
		flag, ok := modifierFlags[w]
		if !ok {
			return m, nil
		}
		c.ident()
		if !slices.Contains(allowed, w) {
			return m, fmt.Errorf("%s cannot be %s", what, w)
		}
		if m.has(w) {
			return m, fmt.Errorf("duplicate option [%s]", w)
		}
		m.words = append(m.words, w)
		m.flags |= flag
	}
}

// declaration reads "type name" or, when the name led the directive,
// just the type.
func declaration(st *statement) (typ, name string, err error) {
	c := st.args
	if typ, err = c.typeName(); err != nil {
		return "", "", err
	}
	if name = st.name; name == "" {
		c.skipBlank()
		if name = c.segment(); name == "" {
			return "", "", syntaxf("name expected after type [%s]", typ)
		}
	}
	if strings.HasPrefix(name, "<") {
		return "", "", syntaxf("[%s] is reserved for methods", name)
	}
	return typ, name, nil
}

// ---------------------------------------------------------------------------
// File-level directives
// ---------------------------------------------------------------------------

func (a *assembler) packageDirective(st *statement) error {
	c := st.args
	name := c.qualified()
	if name == "" || strings.HasSuffix(name, "*") {
		return syntaxf("package name expected")
	}
	if err := c.done(); err != nil {
		return err
	}
	a.pkg = classfile.InternalName(name)
	a.state = stateBeforeImport
	return nil
}

func (a *assembler) importDirective(st *statement) error {
	c := st.args
	name := c.qualified()
	if name == "" {
		return syntaxf("class or package name expected")
	}
	if err := c.done(); err != nil {
		return err
	}
	if !strings.HasSuffix(name, "*") && !a.opts.Lenient {
		if _, err := a.res.Class(name); err != nil {
			return err
		}
	}
	a.res.Push(resolver.Imports(name))
	a.state = stateBeforeImport
	return nil
}

func (a *assembler) versionDirective(st *statement) error {
	c := st.args
	v := c.token()
	if v == "" {
		return syntaxf("version expected")
	}
	if err := c.done(); err != nil {
		return err
	}
	if a.version {
		return errors.New("duplicate .version directive")
	}
	major, minor, err := ParseVersion(v)
	if err != nil {
		return err
	}
	a.version = true
	return a.class.SetVersion(major, minor)
}

func (a *assembler) includeDirective(st *statement) error {
	c := st.args
	path, err := c.stringLit()
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	return a.include(path)
}

func (a *assembler) sourceDirective(st *statement) error {
	c := st.args
	name, err := c.stringLit()
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	if a.sourceSet {
		return errors.New("duplicate .source directive")
	}
	a.source, a.sourceSet = name, true
	return nil
}

// lineDirective selects a line mode or records an explicit line.
func (a *assembler) lineDirective(st *statement) error {
	c := st.args
	if w := c.peekIdent(); w != "" {
		c.ident()
		mode, err := ParseLineMode(w)
		if err != nil {
			return syntaxf("%v", err)
		}
		if err := c.done(); err != nil {
			return err
		}
		if a.method != nil {
			a.method.lines = mode
		} else {
			a.lines = mode
		}
		return nil
	}

	n, err := a.eval(c, false)
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	if a.method == nil {
		return syntaxf(".line <number> is only allowed in a method body")
	}
	if n < 0 || n > math.MaxUint16 {
		return fmt.Errorf("line number %d is out of range", n)
	}
	if err := a.enterBody(); err != nil {
		return err
	}
	if a.method.lines != LinesNone {
		a.method.md.AddLineRecord(int(n))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Class and members
// ---------------------------------------------------------------------------

func (a *assembler) classDirective(st *statement, iface bool) error {
	c := st.args
	name := st.name
	if name == "" {
		name = c.qualified()
	}
	if name == "" {
		return syntaxf("class name expected")
	}
	pkg := a.pkg
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		if a.pkg != "" {
			return syntaxf("class name [%s] must be simple after .package", name)
		}
		pkg, name = classfile.InternalName(name[:i]), name[i+1:]
	}
	if newCursor(name).ident() != name {
		return syntaxf("malformed class name [%s]", name)
	}

	what, allowed := "class", []string{"public", "final", "abstract", "synthetic"}
	if iface {
		what, allowed = "interface", []string{"public", "abstract", "synthetic"}
	}
	mods, err := a.modifiers(c, what, allowed...)
	if err != nil {
		return err
	}
	if err := mods.exclusive("abstract", "final"); err != nil {
		return err
	}
	flags := mods.flags
	if iface {
		flags |= classfile.AccInterface | classfile.AccAbstract
	} else {
		flags |= classfile.AccSuper
	}
	if err := a.class.SetClass(flags, a.names.Intern(pkg), a.names.Intern(name)); err != nil {
		return err
	}
	a.pkg, a.simple, a.iface = pkg, name, iface
	a.state = stateClass
	if obj, err := a.res.Class(classfile.ObjectClass); err == nil && a.class.ClassName() != classfile.ObjectClass {
		a.superRef, a.hasSuper = classRef{internal: obj.Name, info: obj}, true
	}

	extended := false
	for !c.atEnd() {
		switch w := c.ident(); w {
		case "extends":
			if iface {
				if err := a.implementsList(c); err != nil {
					return err
				}
				continue
			}
			if extended {
				return syntaxf("a class extends only one superclass")
			}
			extended = true
			super, err := c.typeName()
			if err != nil {
				return err
			}
			if err := a.extends(super); err != nil {
				return err
			}
		case "implements":
			if iface {
				return syntaxf("an interface extends other interfaces; it does not implement them")
			}
			if err := a.implementsList(c); err != nil {
				return err
			}
		case "":
			return syntaxf("unexpected [%s]", c.rest())
		default:
			if _, ok := modifierFlags[w]; ok {
				return syntaxf("option [%s] must precede extends and implements", w)
			}
			return syntaxf("unexpected [%s]", w)
		}
	}
	log.Debugf("class %s", a.class.ClassName())
	return nil
}

func (a *assembler) extends(name string) error {
	ref, err := a.classRef(name)
	if err != nil {
		return err
	}
	switch {
	case ref.own:
		return fmt.Errorf("class [%s] cannot extend itself", name)
	case ref.isInterface():
		return fmt.Errorf("cannot extend interface [%s]; use implements", name)
	case ref.info != nil && ref.info.IsFinal():
		return fmt.Errorf("cannot extend final class [%s]", name)
	}
	if err := a.class.SetSuperclass(a.names.Intern(ref.internal)); err != nil {
		return err
	}
	a.superRef, a.hasSuper = ref, true
	return nil
}

func (a *assembler) implementsList(c *cursor) error {
	names, err := c.list()
	if err != nil {
		return err
	}
	for _, name := range names {
		ref, err := a.classRef(name)
		if err != nil {
			return err
		}
		if ref.own || ref.info != nil && !ref.info.IsInterface() {
			return fmt.Errorf("[%s] is not an interface", name)
		}
		if err := a.class.AddInterface(a.names.Intern(ref.internal)); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) fieldDirective(st *statement) error {
	typ, name, err := declaration(st)
	if err != nil {
		return err
	}
	c := st.args
	mods, err := a.modifiers(c, "field", "public", "protected", "private", "static", "final", "volatile", "transient", "synthetic")
	if err != nil {
		return err
	}
	if err := mods.exclusive("public", "protected", "private"); err != nil {
		return err
	}
	if err := mods.exclusive("final", "volatile"); err != nil {
		return err
	}
	flags := mods.flags
	if a.iface {
		if mods.has("private") || mods.has("protected") {
			return fmt.Errorf("interface field [%s] must be public", name)
		}
		flags |= classfile.AccPublic | classfile.AccStatic | classfile.AccFinal
	}

	desc, err := a.descriptor(typ, false)
	if errors.Is(err, errVoid) {
		return fmt.Errorf("field [%s] cannot be void", name)
	} else if err != nil {
		return err
	}
	f, err := a.class.AddField(flags, a.names.Intern(name), a.names.Intern(desc))
	if err != nil {
		return err
	}
	if c.accept('=') {
		const constant = classfile.AccStatic | classfile.AccFinal
		if flags&constant != constant {
			return fmt.Errorf("field [%s] must be static final to have a constant value", name)
		}
		idx, err := a.constantValue(desc, c)
		if err != nil {
			return err
		}
		if err := a.class.SetConstantValue(f, idx); err != nil {
			return err
		}
	}
	return c.done()
}

// intRanges bounds the constants of int-like field types.
var intRanges = map[string][2]int64{
	"Z": {0, 1},
	"B": {math.MinInt8, math.MaxInt8},
	"C": {0, math.MaxUint16},
	"S": {math.MinInt16, math.MaxInt16},
	"I": {math.MinInt32, math.MaxInt32},
}

// constantValue parses a field initializer and returns its pool index.
func (a *assembler) constantValue(desc string, c *cursor) (uint16, error) {
	pool := a.class.Pool
	if r, ok := intRanges[desc]; ok {
		var v int64
		c.skipBlank()
		switch w := c.peekIdent(); {
		case c.peek() == '\'':
			u, err := c.charLit()
			if err != nil {
				return 0, err
			}
			v = int64(u)
		case desc == "Z" && (w == "true" || w == "false"):
			c.ident()
			if w == "true" {
				v = 1
			}
		default:
			n, err := c.number()
			if err != nil {
				return 0, err
			}
			if n.kind != numInt {
				return 0, fmt.Errorf("constant is not an integer")
			}
			v = n.i
		}
		if v < r[0] || v > r[1] {
			return 0, fmt.Errorf("constant %d is out of range for its field type", v)
		}
		return pool.AsInteger(int32(v))
	}

	switch desc {
	case "J", "F", "D":
		n, err := c.number()
		if err != nil {
			return 0, err
		}
		switch {
		case desc == "J" && (n.kind == numInt || n.kind == numLong):
			return pool.AsLong(n.i)
		case desc == "F" && n.kind == numInt:
			return pool.AsFloat(float32(n.i))
		case desc == "F" && (n.kind == numReal || n.kind == numFloat):
			return pool.AsFloat(float32(n.f))
		case desc == "D" && (n.kind == numInt || n.kind == numLong):
			return pool.AsDouble(float64(n.i))
		case desc == "D" && n.kind != numLong:
			return pool.AsDouble(n.f)
		}
		return 0, fmt.Errorf("constant does not match field type %s", desc)
	case "Ljava/lang/String;":
		s, err := c.stringLit()
		if err != nil {
			return 0, err
		}
		return pool.AsString(a.names.Intern(s))
	}
	return 0, fmt.Errorf("a field of type %s cannot have a constant value", desc)
}

func (a *assembler) methodDirective(st *statement) error {
	c := st.args
	var ret, name string
	var err error
	if ret, err = c.typeName(); err != nil {
		return err
	}
	if name = st.name; name == "" {
		c.skipBlank()
		if name = c.segment(); name == "" {
			return syntaxf("method name expected after type [%s]", ret)
		}
	}

	mods, err := a.modifiers(c, "method", "public", "protected", "private", "static", "final",
		"synchronized", "native", "abstract", "strictfp", "synthetic", "varargs")
	if err != nil {
		return err
	}
	if err := mods.exclusive("public", "protected", "private"); err != nil {
		return err
	}
	if mods.has("abstract") {
		for _, w := range []string{"static", "final", "private", "native", "synchronized", "strictfp"} {
			if mods.has(w) {
				return fmt.Errorf("abstract method [%s] cannot be %s", name, w)
			}
		}
	}
	var throws []string
	if c.peekIdent() == "throws" {
		c.ident()
		if throws, err = c.list(); err != nil {
			return err
		}
	}
	if err := c.done(); err != nil {
		return err
	}

	flags := mods.flags
	internal := name
	if name == a.simple || name == classfile.ConstructorName {
		if a.iface && !mods.has("static") {
			return fmt.Errorf("interface [%s] cannot declare a constructor", a.simple)
		}
		for _, w := range []string{"abstract", "final", "synchronized", "native"} {
			if mods.has(w) {
				return fmt.Errorf("constructor cannot be %s", w)
			}
		}
		internal = classfile.ConstructorName
		if mods.has("static") {
			internal = classfile.ClassInitializer
		}
	}
	if internal == classfile.ClassInitializer {
		if !mods.has("static") {
			return errors.New("class initializer must be static")
		}
		if a.clinitSeen {
			return errors.New("class initializer is already declared")
		}
		a.clinitSeen = true
	}
	if internal != name || internal == classfile.ConstructorName {
		if ret != "void" {
			return fmt.Errorf("constructor [%s] must return void", name)
		}
	}
	if a.iface && internal != classfile.ClassInitializer {
		if mods.has("static") {
			return fmt.Errorf("interface method [%s] cannot be static", name)
		}
		if mods.has("private") || mods.has("protected") {
			return fmt.Errorf("interface method [%s] must be public", name)
		}
		flags |= classfile.AccPublic | classfile.AccAbstract
	}

	retDesc, err := a.descriptor(ret, true)
	if err != nil {
		return err
	}
	md, err := a.class.AddMethod(flags, a.names.Intern(internal), retDesc)
	if err != nil {
		return err
	}
	md.SetLocalVariableTable(a.opts.LocalVars)
	if body := md.Body(); body != nil {
		body.SetStackMode(a.opts.StackMode, 0)
	}
	for _, t := range throws {
		idx, err := a.throwable(t)
		if err != nil {
			return err
		}
		md.AddThrows(idx)
	}
	a.method = &methodState{md: md, name: name, lines: a.lines, assigned: make(map[varKey]bool)}
	a.state = stateMethodHeader
	return nil
}

// ---------------------------------------------------------------------------
// Method header and body
// ---------------------------------------------------------------------------

func (a *assembler) parameterDirective(st *statement) error {
	m := a.method
	if m.md.NameString() == classfile.ClassInitializer {
		return errors.New("class initializer takes no parameters")
	}
	typ, name, err := declaration(st)
	if err != nil {
		return err
	}
	c := st.args
	mods, err := a.modifiers(c, "parameter", "final", "synthetic")
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	desc, err := a.descriptor(typ, false)
	if errors.Is(err, errVoid) {
		return fmt.Errorf("parameter [%s] cannot be void", name)
	} else if err != nil {
		return err
	}
	v, err := m.md.AddParameter(a.names.Intern(name), desc, mods.flags)
	if err != nil {
		return err
	}
	if mods.has("final") {
		m.assigned[varKey{v.Name, v.Start}] = true
	}
	return nil
}

func (a *assembler) varDirective(st *statement) error {
	if err := a.enterBody(); err != nil {
		return err
	}
	typ, name, err := declaration(st)
	if err != nil {
		return err
	}
	c := st.args
	mods, err := a.modifiers(c, "variable", "final", "synthetic")
	if err != nil {
		return err
	}
	if err := c.done(); err != nil {
		return err
	}
	desc, err := a.descriptor(typ, false)
	if errors.Is(err, errVoid) {
		return fmt.Errorf("variable [%s] cannot be void", name)
	} else if err != nil {
		return err
	}
	_, err = a.method.md.AddVar(a.names.Intern(name), desc, mods.flags)
	return err
}

func (a *assembler) beginDirective(st *statement) error {
	if err := st.args.done(); err != nil {
		return err
	}
	if err := a.enterBody(); err != nil {
		return err
	}
	return a.method.md.Begin()
}

// endDirective closes, innermost first, a switch table, a .begin block,
// a method or the class.
func (a *assembler) endDirective(st *statement) error {
	c := st.args
	name := st.name
	if name == "" {
		name = c.qualified()
	}
	if err := c.done(); err != nil {
		return err
	}

	switch a.state {
	case stateLookupTable, stateJumpTable:
		if name != "" {
			return syntaxf(".end of a %s table takes no name", a.method.table.mnemonic)
		}
		return a.emitSwitch()

	case stateMethodHeader, stateMethodBody:
		m := a.method
		if name == "" && m.md.Body() != nil && m.md.Depth() > 0 {
			return m.md.End()
		}
		if name != "" && name != m.name && name != m.md.NameString() {
			return fmt.Errorf(".end %s does not match method [%s]", name, m.name)
		}
		if len(m.tries) > 0 {
			return fmt.Errorf("method [%s] has an unclosed .try block", m.name)
		}
		if err := a.class.CompleteMethod(); err != nil {
			return err
		}
		if body := m.md.Body(); body != nil {
			log.Debugf("method %s%s: %d bytes, max stack %d, max locals %d",
				m.md.NameString(), m.md.Signature(), body.PC(), body.MaxStack(), m.md.MaxLocals())
		}
		a.method = nil
		a.state = stateClass

	case stateClass:
		if name != "" && !a.isOwn(name) {
			return fmt.Errorf(".end %s does not match class [%s]", name, a.simple)
		}
		a.state = stateAfterClass
	}
	return nil
}

func (a *assembler) stackDirective(st *statement) error {
	m := a.method
	body := m.md.Body()
	if body == nil {
		return fmt.Errorf("abstract or native method [%s] has no operand stack", m.name)
	}
	if m.stackSet {
		return errors.New("duplicate .stack directive")
	}
	if m.emitted {
		return syntaxf(".stack must precede the first instruction")
	}
	c := st.args
	if w := c.ident(); w != "" {
		mode, err := classfile.ParseStackMode(w)
		if err != nil {
			return syntaxf("%v", err)
		}
		body.SetStackMode(mode, 0)
	} else {
		n, err := a.eval(c, false)
		if err != nil {
			return err
		}
		if n < 0 || n > math.MaxUint16 {
			return fmt.Errorf("stack size %d is out of range", n)
		}
		body.SetStackMode(classfile.StackFixed, int(n))
	}
	m.stackSet = true
	return c.done()
}

func (a *assembler) tryDirective(st *statement) error {
	if err := st.args.done(); err != nil {
		return err
	}
	if err := a.enterBody(); err != nil {
		return err
	}
	m := a.method
	m.tries = append(m.tries, tryBlock{start: m.md.Body().PC(), end: -1})
	return nil
}

// catchDirective closes the protected range on the first catch and
// records one exception-table entry per listed type.
func (a *assembler) catchDirective(st *statement) error {
	if err := a.enterBody(); err != nil {
		return err
	}
	m := a.method
	if len(m.tries) == 0 {
		return errors.New(".catch without .try")
	}
	c := st.args
	var types []string
	if !c.atEnd() {
		var err error
		if types, err = c.list(); err != nil {
			return err
		}
	}
	if err := c.done(); err != nil {
		return err
	}

	body := m.md.Body()
	t := &m.tries[len(m.tries)-1]
	pc := body.PC()
	if t.end < 0 {
		t.end = pc
	}
	if len(types) == 0 {
		if err := m.md.AddExceptionRecord(t.start, t.end, 0, pc); err != nil {
			return err
		}
	}
	for _, typ := range types {
		idx, err := a.throwable(typ)
		if err != nil {
			return err
		}
		if err := m.md.AddExceptionRecord(t.start, t.end, idx, pc); err != nil {
			return err
		}
	}
	t.catches++
	body.EnterHandler()
	return nil
}

func (a *assembler) endtryDirective(st *statement) error {
	if err := st.args.done(); err != nil {
		return err
	}
	if err := a.enterBody(); err != nil {
		return err
	}
	m := a.method
	if len(m.tries) == 0 {
		return errors.New(".endtry without .try")
	}
	t := m.tries[len(m.tries)-1]
	m.tries = m.tries[:len(m.tries)-1]
	if t.catches == 0 {
		return errors.New(".try block has no .catch")
	}
	return nil
}

func (a *assembler) defaultDirective(st *statement) error {
	c := st.args
	label := c.ident()
	if label == "" {
		return syntaxf("default label expected")
	}
	if err := c.done(); err != nil {
		return err
	}
	t := a.method.table
	if t.hasDef {
		return errors.New("duplicate .default")
	}
	t.def, t.hasDef = a.names.Intern(label), true
	return nil
}

// directiveNames returns the known directives, sorted.
func directiveNames() []string {
	out := make([]string, 0, len(directives))
	for n := range directives {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
