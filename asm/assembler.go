// Package asm assembles the line-oriented class notation into class files.
//
// Each source line holds one directive, one instruction, a label, or a
// label followed by an instruction. The assembler is a state machine:
// directives are legal only in specific states, and any fault aborts the
// whole assembly unit with an *Error carrying the source line.
package asm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/jasm/classfile"
	"github.com/chazu/jasm/resolver"
	"github.com/chazu/jasm/symbol"
)

var log = commonlog.GetLogger("jasm.asm")

// ---------------------------------------------------------------------------
// Options and results
// ---------------------------------------------------------------------------

// LineMode selects how LineNumberTable records are produced.
type LineMode int

const (
	// LinesAuto records the source line of every instruction.
	LinesAuto LineMode = iota
	// LinesManual records only lines given with .line <n>.
	LinesManual
	// LinesNone emits no line numbers.
	LinesNone
)

func (m LineMode) String() string {
	switch m {
	case LinesManual:
		return "manual"
	case LinesNone:
		return "none"
	}
	return "auto"
}

// ParseLineMode parses "auto", "manual" or "none".
func ParseLineMode(s string) (LineMode, error) {
	switch s {
	case "auto", "":
		return LinesAuto, nil
	case "manual":
		return LinesManual, nil
	case "none":
		return LinesNone, nil
	}
	return 0, fmt.Errorf("unknown line mode %q (expected auto, manual or none)", s)
}

// ParseVersion parses a class-file version: a major version such as 52,
// major.minor such as 45.3, a release number such as 8, or the legacy
// 1.N release form.
func ParseVersion(s string) (major, minor uint16, err error) {
	bad := fmt.Errorf("malformed class-file version %q", s)
	whole, frac, dotted := strings.Cut(s, ".")
	w, err := strconv.ParseUint(whole, 10, 16)
	if err != nil {
		return 0, 0, bad
	}
	if dotted {
		f, err := strconv.ParseUint(frac, 10, 16)
		if err != nil {
			return 0, 0, bad
		}
		if w == 1 {
			if f <= 1 {
				return 45, 3, nil
			}
			return uint16(44 + f), 0, nil
		}
		major, minor = uint16(w), uint16(f)
	} else {
		switch {
		case w >= uint64(classfile.MinMajor):
			major = uint16(w)
		case w >= 5:
			major = uint16(44 + w)
		default:
			return 0, 0, bad
		}
	}
	if major < classfile.MinMajor || major > classfile.MaxMajor {
		return 0, 0, fmt.Errorf("unsupported class-file version %q", s)
	}
	return major, minor, nil
}

// Options configures one assembly run.
type Options struct {
	// Resolver answers class, field and method lookups. It is forked, so
	// imports never leak into the caller's scope. Nil means base types only.
	Resolver *resolver.Resolver
	// Includer opens .include targets. Nil means FileIncluder.
	Includer Includer
	// FileName names the source in errors and, in auto line mode, the
	// default SourceFile attribute.
	FileName string
	// Version is the default class-file version; see ParseVersion.
	Version string
	// StackMode applies to methods without a .stack directive.
	StackMode classfile.StackMode
	// LineMode is the default line-number mode.
	LineMode LineMode
	// LocalVars emits LocalVariableTable attributes.
	LocalVars bool
	// Lenient trusts qualified class names the resolver does not know.
	Lenient bool
}

// DefaultOptions returns the options the command-line tool starts from.
func DefaultOptions() Options {
	return Options{LocalVars: true}
}

// Result is one assembled class.
type Result struct {
	ClassName string // internal form, e.g. com/example/Hello
	Major     uint16
	Minor     uint16
	Bytes     []byte
}

// Path returns the class file path relative to an output root.
func (r *Result) Path() string {
	return filepath.FromSlash(r.ClassName) + ".class"
}

// ---------------------------------------------------------------------------
// States
// ---------------------------------------------------------------------------

type state uint8

const (
	stateBeforePackage state = iota
	stateBeforeImport
	stateClass
	stateMethodHeader
	stateMethodBody
	stateLookupTable
	stateJumpTable
	stateAfterClass
)

var stateNames = [...]string{
	stateBeforePackage: "before the package declaration",
	stateBeforeImport:  "in the import section",
	stateClass:         "inside a class",
	stateMethodHeader:  "inside a method header",
	stateMethodBody:    "inside a method body",
	stateLookupTable:   "inside a lookupswitch table",
	stateJumpTable:     "inside a tableswitch table",
	stateAfterClass:    "after the end of the class",
}

func (s state) String() string {
	return stateNames[s]
}

type stateSet uint16

func states(ss ...state) stateSet {
	var set stateSet
	for _, s := range ss {
		set |= 1 << s
	}
	return set
}

func (set stateSet) has(s state) bool {
	return set&(1<<s) != 0
}

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

// varKey identifies one declared variable.
type varKey struct {
	name  symbol.ID
	start int
}

type tryBlock struct {
	start   int
	end     int // -1 until the first .catch
	catches int
}

// methodState is the parser-side bookkeeping of the open method.
type methodState struct {
	md       *classfile.MethodDescriptor
	name     string // as written in the source
	stackSet bool
	emitted  bool
	lines    LineMode
	tries    []tryBlock
	table    *switchTable
	assigned map[varKey]bool // final variables already stored
}

type assembler struct {
	opts  Options
	names *symbol.Interner
	res   *resolver.Resolver
	class *classfile.ClassAssembler
	state state

	// position
	file      string
	line      int
	directive string
	including map[string]bool
	depth     int

	version    bool
	pkg        string // internal form
	simple     string
	iface      bool
	superRef   classRef
	hasSuper   bool
	source     string
	sourceSet  bool
	lines      LineMode
	clinitSeen bool

	method *methodState
}

const maxIncludeDepth = 16

func newAssembler(opts Options) *assembler {
	names := symbol.NewInterner()
	res := opts.Resolver
	if res == nil {
		res = resolver.New()
	} else {
		res = res.Fork()
	}
	if opts.Includer == nil {
		opts.Includer = FileIncluder{}
	}
	return &assembler{
		opts:      opts,
		names:     names,
		res:       res,
		class:     classfile.NewClassAssembler(names),
		lines:     opts.LineMode,
		including: make(map[string]bool),
	}
}

// Assemble reads one assembly unit from src and returns the class file.
// Any fault is returned as an *Error and no result is produced.
func Assemble(src io.Reader, opts Options) (*Result, error) {
	a := newAssembler(opts)
	a.file = opts.FileName
	if opts.Version != "" {
		major, minor, err := ParseVersion(opts.Version)
		if err != nil {
			return nil, a.wrap(err)
		}
		if err := a.class.SetVersion(major, minor); err != nil {
			return nil, a.wrap(err)
		}
	}
	if a.file != "" {
		a.including[a.file] = true
	}
	if err := a.run(src); err != nil {
		return nil, err
	}
	return a.finish()
}

// AssembleString assembles source held in memory.
func AssembleString(src string, opts Options) (*Result, error) {
	return Assemble(strings.NewReader(src), opts)
}

// AssembleFile assembles the file at path. FileName defaults to path.
func AssembleFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if opts.FileName == "" {
		opts.FileName = path
	}
	return Assemble(f, opts)
}

// wrap turns err into an *Error at the current position.
func (a *assembler) wrap(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: kindOf(err), File: a.file, Line: a.line, Directive: a.directive, Err: err}
}

// run feeds every line of src through the state machine.
func (a *assembler) run(src io.Reader) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		a.line++
		a.directive = ""
		if err := a.processLine(sc.Text()); err != nil {
			return a.wrap(err)
		}
	}
	if err := sc.Err(); err != nil {
		return a.wrap(fmt.Errorf("read failed: %w", err))
	}
	return nil
}

func (a *assembler) processLine(text string) error {
	text, err := stripComment(text)
	if err != nil {
		return err
	}
	if a.state == stateLookupTable || a.state == stateJumpTable {
		if t := strings.TrimSpace(text); t != "" && t[0] != '.' {
			a.directive = a.method.table.mnemonic
			return a.tableRow(newCursor(t))
		}
	}

	st, err := splitStatement(text)
	if err != nil {
		return err
	}
	if st.label != "" {
		if err := a.placeLabel(st.label); err != nil {
			return err
		}
	}
	switch {
	case st.directive != "":
		a.directive = "." + st.directive
		return a.runDirective(&st)
	case st.mnemonic != "":
		a.directive = st.mnemonic
		return a.instruction(&st)
	}
	return nil
}

// finish checks the terminal state and serializes the class.
func (a *assembler) finish() (*Result, error) {
	switch a.state {
	case stateBeforePackage, stateBeforeImport:
		return nil, a.wrap(syntaxf("no .class or .interface declared"))
	case stateClass:
		return nil, a.wrap(syntaxf("class [%s] is not closed with .end", a.simple))
	case stateMethodHeader, stateMethodBody:
		return nil, a.wrap(syntaxf("method [%s] is not closed with .end", a.method.name))
	case stateLookupTable, stateJumpTable:
		return nil, a.wrap(syntaxf("%s table is not closed with .end", a.method.table.mnemonic))
	}

	if !a.sourceSet && a.lines == LinesAuto && a.opts.FileName != "" {
		a.source = filepath.Base(a.opts.FileName)
		a.sourceSet = true
	}
	if a.sourceSet {
		if err := a.class.SetSourceFile(a.names.Intern(a.source)); err != nil {
			return nil, a.wrap(err)
		}
	}
	data, err := a.class.Bytes()
	if err != nil {
		return nil, a.wrap(err)
	}
	major, minor := a.class.Version()
	log.Debugf("assembled %s: %d bytes, version %d.%d", a.class.ClassName(), len(data), major, minor)
	return &Result{ClassName: a.class.ClassName(), Major: major, Minor: minor, Bytes: data}, nil
}

// include splices another source file at the current line.
func (a *assembler) include(path string) error {
	if a.depth >= maxIncludeDepth {
		return fmt.Errorf("includes nested deeper than %d levels", maxIncludeDepth)
	}
	rc, name, err := a.opts.Includer.Include(a.file, path)
	if err != nil {
		return fmt.Errorf("cannot include [%s]: %w", path, err)
	}
	defer rc.Close()
	if a.including[name] {
		return fmt.Errorf("recursive include of [%s]", name)
	}

	file, line := a.file, a.line
	a.including[name] = true
	a.depth++
	a.file, a.line = name, 0
	log.Debugf("including %s", name)

	err = a.run(rc)

	a.depth--
	delete(a.including, name)
	a.file, a.line = file, line
	return err
}

// placeLabel places a branch target in the current method body.
func (a *assembler) placeLabel(name string) error {
	if a.state != stateMethodHeader && a.state != stateMethodBody {
		return syntaxf("label [%s:] is only allowed in a method body", name)
	}
	if err := a.enterBody(); err != nil {
		return err
	}
	return a.method.md.Body().PutLabel(a.names.Intern(name))
}

// enterBody closes the method header on the first body content.
func (a *assembler) enterBody() error {
	if a.state == stateMethodBody {
		return nil
	}
	m := a.method
	if m.md.Body() == nil {
		return fmt.Errorf("abstract or native method [%s] cannot have a body", m.name)
	}
	m.md.CloseParameters()
	a.state = stateMethodBody
	return nil
}
