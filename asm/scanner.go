package asm

import (
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Cursor: Scanner over one source line
// ---------------------------------------------------------------------------

// cursor walks one source line. Comments are stripped before a cursor is
// made, so the end of the string is the end of the statement.
type cursor struct {
	s   string
	pos int
}

func newCursor(s string) *cursor {
	return &cursor{s: s}
}

func isBlank(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f'
}

func (c *cursor) skipBlank() {
	for c.pos < len(c.s) && isBlank(c.s[c.pos]) {
		c.pos++
	}
}

// atEnd skips blanks and reports whether the line is exhausted.
func (c *cursor) atEnd() bool {
	c.skipBlank()
	return c.pos >= len(c.s)
}

// peek returns the current byte, or 0 at the end of the line.
func (c *cursor) peek() byte {
	if c.pos < len(c.s) {
		return c.s[c.pos]
	}
	return 0
}

// accept skips blanks and consumes ch if it is next.
func (c *cursor) accept(ch byte) bool {
	c.skipBlank()
	if c.peek() == ch {
		c.pos++
		return true
	}
	return false
}

func (c *cursor) expect(ch byte, context string) error {
	if !c.accept(ch) {
		if c.atEnd() {
			return syntaxf("expected '%c' %s, found end of line", ch, context)
		}
		return syntaxf("expected '%c' %s, found [%s]", ch, context, c.rest())
	}
	return nil
}

// rest returns the unread part of the line without surrounding blanks.
func (c *cursor) rest() string {
	return strings.TrimSpace(c.s[c.pos:])
}

// done fails when anything but blanks is left on the line.
func (c *cursor) done() error {
	if !c.atEnd() {
		return syntaxf("unparsed text [%s]", c.rest())
	}
	return nil
}

func (c *cursor) runeAt(pos int) (rune, int) {
	if pos >= len(c.s) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(c.s[pos:])
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

// ident reads a plain identifier, or "" when none starts here.
func (c *cursor) ident() string {
	c.skipBlank()
	start := c.pos
	r, n := c.runeAt(c.pos)
	if n == 0 || !isIdentStart(r) {
		return ""
	}
	c.pos += n
	for {
		r, n = c.runeAt(c.pos)
		if n == 0 || !isIdentPart(r) {
			break
		}
		c.pos += n
	}
	return c.s[start:c.pos]
}

// peekIdent returns the identifier at the cursor without consuming it.
func (c *cursor) peekIdent() string {
	save := c.pos
	id := c.ident()
	c.pos = save
	return id
}

// segment reads one component of a qualified name: an identifier or one
// of the special method names <init> and <clinit>.
func (c *cursor) segment() string {
	if c.peek() == '<' {
		end := strings.IndexByte(c.s[c.pos:], '>')
		if end < 0 {
			return ""
		}
		seg := c.s[c.pos : c.pos+end+1]
		if seg != "<init>" && seg != "<clinit>" {
			return ""
		}
		c.pos += end + 1
		return seg
	}
	return c.ident()
}

// qualified reads a dotted (or slashed) name such as java.lang.String,
// java/lang/Object.<init> or java.util.*.
func (c *cursor) qualified() string {
	c.skipBlank()
	start := c.pos
	if c.segment() == "" {
		c.pos = start
		return ""
	}
	for c.pos < len(c.s) && (c.s[c.pos] == '.' || c.s[c.pos] == '/') {
		save := c.pos
		c.pos++
		if c.peek() == '*' {
			c.pos++
			break
		}
		if c.segment() == "" {
			c.pos = save
			break
		}
	}
	return c.s[start:c.pos]
}

// typeName reads a type such as int, java.lang.String or byte[][].
func (c *cursor) typeName() (string, error) {
	name := c.qualified()
	if name == "" {
		if c.atEnd() {
			return "", syntaxf("type name expected, found end of line")
		}
		return "", syntaxf("type name expected, found [%s]", c.rest())
	}
	for c.peek() == '[' {
		c.pos++
		if c.peek() != ']' {
			return "", syntaxf("unclosed bracket in type [%s]", name)
		}
		c.pos++
		name += "[]"
	}
	return name, nil
}

// token reads a run of characters up to a blank or a comma.
func (c *cursor) token() string {
	c.skipBlank()
	start := c.pos
	for c.pos < len(c.s) && !isBlank(c.s[c.pos]) && c.s[c.pos] != ',' {
		c.pos++
	}
	return c.s[start:c.pos]
}

// list reads one or more comma-separated type names.
func (c *cursor) list() ([]string, error) {
	var out []string
	for {
		name, err := c.typeName()
		if err != nil {
			return nil, err
		}
		out = append(out, name)
		if !c.accept(',') {
			return out, nil
		}
	}
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// escape decodes one backslash escape starting after the backslash and
// returns the UTF-16 unit it denotes.
func (c *cursor) escape() (rune, error) {
	if c.pos >= len(c.s) {
		return 0, syntaxf("unterminated escape sequence")
	}
	ch := c.s[c.pos]
	c.pos++
	switch ch {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case '"', '\'', '\\':
		return rune(ch), nil
	case 'u':
		for c.peek() == 'u' {
			c.pos++
		}
		if c.pos+4 > len(c.s) {
			return 0, syntaxf("malformed unicode escape")
		}
		var v rune
		for _, h := range c.s[c.pos : c.pos+4] {
			d := hexDigit(h)
			if d < 0 {
				return 0, syntaxf("malformed unicode escape [\\u%s]", c.s[c.pos:c.pos+4])
			}
			v = v<<4 | rune(d)
		}
		c.pos += 4
		return v, nil
	}
	if ch >= '0' && ch <= '7' {
		v := rune(ch - '0')
		limit := 2
		if ch > '3' {
			limit = 1
		}
		for i := 0; i < limit && c.peek() >= '0' && c.peek() <= '7'; i++ {
			v = v<<3 | rune(c.peek()-'0')
			c.pos++
		}
		return v, nil
	}
	return 0, syntaxf("illegal escape character [\\%c]", ch)
}

func hexDigit(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10
	}
	return -1
}

// quoted reads a literal delimited by quote and returns its UTF-16 units.
func (c *cursor) quoted(quote byte) ([]uint16, error) {
	c.skipBlank()
	if c.peek() != quote {
		return nil, syntaxf("expected %c-quoted literal", quote)
	}
	c.pos++
	var units []uint16
	for {
		if c.pos >= len(c.s) {
			return nil, syntaxf("unclosed quote")
		}
		ch := c.s[c.pos]
		if ch == quote {
			c.pos++
			return units, nil
		}
		if ch == '\\' {
			c.pos++
			r, err := c.escape()
			if err != nil {
				return nil, err
			}
			units = append(units, uint16(r))
			continue
		}
		r, n := c.runeAt(c.pos)
		if r == utf8.RuneError && n == 1 {
			return nil, syntaxf("invalid UTF-8 byte 0x%02X in quoted literal", c.s[c.pos])
		}
		c.pos += n
		units = utf16.AppendRune(units, r)
	}
}

// stringLit reads a double-quoted string literal. Escaped surrogate pairs
// combine; a lone surrogate is an error.
func (c *cursor) stringLit() (string, error) {
	units, err := c.quoted('"')
	if err != nil {
		return "", err
	}
	for i := 0; i < len(units); i++ {
		u := rune(units[i])
		if !utf16.IsSurrogate(u) {
			continue
		}
		if u >= 0xDC00 || i+1 >= len(units) || !utf16.IsSurrogate(rune(units[i+1])) || units[i+1] < 0xDC00 {
			return "", syntaxf("unpaired surrogate \\u%04X in string literal", u)
		}
		i++
	}
	return string(utf16.Decode(units)), nil
}

// charLit reads a single-quoted character literal as its UTF-16 value.
func (c *cursor) charLit() (uint16, error) {
	units, err := c.quoted('\'')
	if err != nil {
		return 0, err
	}
	if len(units) != 1 {
		return 0, syntaxf("character literal must hold exactly one character")
	}
	return units[0], nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// stripComment cuts a // comment, honoring quotes.
func stripComment(line string) (string, error) {
	var quote byte
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quote != 0 && ch == '\\':
			i++
		case quote != 0 && ch == quote:
			quote = 0
		case quote != 0:
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i], nil
		}
	}
	if quote != 0 {
		return "", syntaxf("unclosed quote")
	}
	return line, nil
}

// statement is one parsed source line.
type statement struct {
	label     string // "loop" for "loop:"
	name      string // leading member name, as in "count .field int"
	directive string // directive without its dot
	mnemonic  string
	args      *cursor
}

func (s *statement) empty() bool {
	return s.label == "" && s.directive == "" && s.mnemonic == ""
}

// leadingName lists the directives that may follow the name they declare.
var leadingName = map[string]bool{
	"class": true, "interface": true, "field": true, "method": true,
	"parameter": true, "var": true, "end": true,
}

// leadName reads a name written before its directive, which may be
// qualified or one of the special method names.
func (c *cursor) leadName() string {
	start := c.pos
	for c.pos < len(c.s) {
		r, n := c.runeAt(c.pos)
		if !isIdentPart(r) && r != '.' && r != '/' && r != '<' && r != '>' {
			break
		}
		c.pos += n
	}
	return c.s[start:c.pos]
}

func (c *cursor) directiveName() (string, error) {
	c.pos++ // '.'
	d := c.ident()
	if d == "" {
		return "", syntaxf("directive name expected after '.'")
	}
	return d, nil
}

// splitStatement classifies a comment-free line into its label, directive
// or instruction parts. The args cursor is left after the head.
func splitStatement(line string) (statement, error) {
	c := newCursor(line)
	st := statement{args: c}
	if c.atEnd() {
		return st, nil
	}
	if c.peek() == '.' {
		d, err := c.directiveName()
		st.directive = d
		return st, err
	}

	start := c.pos
	head := c.leadName()
	if head == "" {
		return st, syntaxf("unexpected [%s]", c.rest())
	}
	if c.peek() == ':' {
		c.pos++
		r, _ := utf8.DecodeRuneInString(head)
		if !isIdentStart(r) || strings.ContainsAny(head, "./<>") {
			return st, syntaxf("malformed label [%s]", head)
		}
		st.label = head
		if c.atEnd() {
			return st, nil
		}
		if c.peek() == '.' {
			d, err := c.directiveName()
			st.directive = d
			return st, err
		}
		if st.mnemonic = c.ident(); st.mnemonic == "" {
			return st, syntaxf("instruction expected after label [%s:], found [%s]", head, c.rest())
		}
		return st, nil
	}

	save := c.pos
	if c.atEnd() || c.peek() != '.' {
		c.pos = save
	} else {
		at := c.pos
		d, err := c.directiveName()
		if err == nil && leadingName[d] {
			st.name = head
			st.directive = d
			return st, nil
		}
		c.pos = at
	}

	c.pos = start
	if st.mnemonic = c.ident(); c.pos != start+len(head) {
		return st, syntaxf("malformed instruction [%s]", head)
	}
	return st, nil
}
