package asm

import (
	"errors"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Expression evaluator
// ---------------------------------------------------------------------------

// LookupFunc maps a name used in an expression to its value. The
// assembler binds names to local-variable slots.
type LookupFunc func(name string) (int64, error)

var errDivideByZero = errors.New("division by zero in expression")

// evaluator is a recursive-descent parser over integer expressions:
// additive over multiplicative over unary minus over terms.
type evaluator struct {
	c      *cursor
	lookup LookupFunc
}

// Eval evaluates the integer expression at the start of s. It returns the
// value and the offset just past the expression so scanning can continue.
// A nil lookup rejects names.
func Eval(s string, lookup LookupFunc) (int64, int, error) {
	e := evaluator{c: newCursor(s), lookup: lookup}
	v, err := e.additive()
	if err != nil {
		return 0, 0, err
	}
	return v, e.c.pos, nil
}

func (e *evaluator) additive() (int64, error) {
	v, err := e.multiplicative()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case e.c.accept('+'):
			r, err := e.multiplicative()
			if err != nil {
				return 0, err
			}
			v += r
		case e.c.accept('-'):
			r, err := e.multiplicative()
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

func (e *evaluator) multiplicative() (int64, error) {
	v, err := e.unary()
	if err != nil {
		return 0, err
	}
	for {
		c := e.c
		c.skipBlank()
		op := c.peek()
		if op != '*' && op != '/' && op != '%' {
			return v, nil
		}
		c.pos++
		r, err := e.unary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			v *= r
		case '/', '%':
			if r == 0 {
				return 0, errDivideByZero
			}
			if op == '/' {
				v /= r
			} else {
				v %= r
			}
		}
	}
}

func (e *evaluator) unary() (int64, error) {
	if e.c.accept('-') {
		v, err := e.unary()
		return -v, err
	}
	return e.term()
}

func (e *evaluator) term() (int64, error) {
	c := e.c
	c.skipBlank()
	switch ch := c.peek(); {
	case ch == '(':
		c.pos++
		v, err := e.additive()
		if err != nil {
			return 0, err
		}
		if err := c.expect(')', "to close the expression"); err != nil {
			return 0, err
		}
		return v, nil
	case ch == '\'':
		u, err := c.charLit()
		return int64(u), err
	case ch >= '0' && ch <= '9':
		return c.integer()
	}
	name := c.ident()
	if name == "" {
		if c.atEnd() {
			return 0, syntaxf("expression expected, found end of line")
		}
		return 0, syntaxf("expression expected, found [%s]", c.rest())
	}
	if e.lookup == nil {
		return 0, syntaxf("name [%s] is not allowed in a constant expression", name)
	}
	return e.lookup(name)
}

// integer reads an unsigned decimal, hex (0x) or octal (leading 0)
// integer literal.
func (c *cursor) integer() (int64, error) {
	start := c.pos
	for c.pos < len(c.s) && isNumberPart(c.s[c.pos]) {
		c.pos++
	}
	text := c.s[start:c.pos]
	if strings.HasPrefix(text, "0") && len(text) > 1 && text[1] != 'x' && text[1] != 'X' {
		text = "0o" + text[1:]
	}
	v, err := strconv.ParseUint(text, 0, 63)
	if err != nil {
		return 0, syntaxf("malformed integer [%s]", c.s[start:c.pos])
	}
	return int64(v), nil
}

func isNumberPart(ch byte) bool {
	return ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

// ---------------------------------------------------------------------------
// Numeric literals
// ---------------------------------------------------------------------------

type numKind int

const (
	numInt    numKind = iota
	numLong           // L suffix
	numReal           // decimal point or exponent, no suffix
	numFloat          // f suffix
	numDouble         // d suffix
)

// number is a literal constant operand.
type number struct {
	kind numKind
	i    int64
	f    float64
}

// number reads a signed numeric literal. Hex int literals up to 32 bits
// keep their bit pattern, so 0xFFFFFFFF is -1.
func (c *cursor) number() (number, error) {
	c.skipBlank()
	neg := false
	if c.peek() == '-' || c.peek() == '+' {
		neg = c.peek() == '-'
		c.pos++
	}
	start := c.pos
	hex := strings.HasPrefix(c.s[c.pos:], "0x") || strings.HasPrefix(c.s[c.pos:], "0X")
scan:
	for c.pos < len(c.s) {
		ch := c.s[c.pos]
		switch {
		case isNumberPart(ch) || ch == '.':
		case (ch == '+' || ch == '-') && !hex && c.pos > start && (c.s[c.pos-1] == 'e' || c.s[c.pos-1] == 'E'):
		default:
			break scan
		}
		c.pos++
	}
	text := strings.ReplaceAll(c.s[start:c.pos], "_", "")
	if text == "" {
		return number{}, syntaxf("number expected, found [%s]", c.rest())
	}
	bad := func() (number, error) {
		return number{}, syntaxf("malformed number [%s]", c.s[start:c.pos])
	}

	switch text {
	case "NaN", "NaNf", "NaNd", "Infinity", "Infinityf", "Infinityd":
		return realLiteral(text, neg)
	}
	last := text[len(text)-1]
	switch {
	case last == 'L' || last == 'l':
		v, err := parseInteger(text[:len(text)-1], neg, 64)
		if err != nil {
			return bad()
		}
		return number{kind: numLong, i: v}, nil
	case hex:
		v, err := parseInteger(text, neg, 32)
		if err != nil {
			return bad()
		}
		return number{kind: numInt, i: v}, nil
	case strings.ContainsAny(text, ".eE") || last == 'f' || last == 'F' || last == 'd' || last == 'D':
		n, err := realLiteral(text, neg)
		if err != nil {
			return bad()
		}
		return n, nil
	}
	v, err := parseInteger(text, neg, 64)
	if err != nil {
		return bad()
	}
	return number{kind: numInt, i: v}, nil
}

// parseInteger parses an unsigned literal in any Java radix notation and
// applies the sign. With bits 32, a hex literal may use the full unsigned
// range and wraps to a signed int.
func parseInteger(text string, neg bool, bits int) (int64, error) {
	if strings.HasPrefix(text, "0") && len(text) > 1 && text[1] != 'x' && text[1] != 'X' {
		text = "0o" + text[1:]
	}
	u, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, err
	}
	var v int64
	switch {
	case bits == 32 && u <= 0xFFFFFFFF:
		v = int64(int32(uint32(u)))
	case u < 1<<63 || u == 1<<63 && neg:
		v = int64(u)
	default:
		return 0, strconv.ErrRange
	}
	if neg {
		v = -v
	}
	return v, nil
}

func realLiteral(text string, neg bool) (number, error) {
	kind := numReal
	switch text[len(text)-1] {
	case 'f', 'F':
		kind, text = numFloat, text[:len(text)-1]
	case 'd', 'D':
		kind, text = numDouble, text[:len(text)-1]
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return number{}, err
	}
	if neg {
		f = -f
	}
	return number{kind: kind, f: f}, nil
}
