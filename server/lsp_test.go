package server

import (
	"slices"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/resolver"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"        iloa", protocol.Position{Line: 0, Character: 12}, "iloa"},
		{".met", protocol.Position{Line: 0, Character: 4}, ".met"},
		{"  invokestatic java.lang.Ma", protocol.Position{Line: 0, Character: 27}, "java.lang.Ma"},
		{"first line\nsecond\n  ldc", protocol.Position{Line: 2, Character: 5}, "ldc"},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"single line", protocol.Position{Line: 5, Character: 0}, ""},
	}
	for _, tt := range tests {
		if got := extractPrefix(tt.text, tt.pos); got != tt.want {
			t.Errorf("extractPrefix(%q, %v) = %q, want %q", tt.text, tt.pos, got, tt.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"loop:   iload n", protocol.Position{Line: 0, Character: 2}, "loop"},
		{"        goto loop", protocol.Position{Line: 0, Character: 17}, "loop"},
		{"        iload n", protocol.Position{Line: 0, Character: 10}, "iload"},
		{"  getstatic java.lang.System.out", protocol.Position{Line: 0, Character: 16}, "java.lang.System.out"},
		{"  invokespecial java.lang.Object.<init>()V", protocol.Position{Line: 0, Character: 20}, "java.lang.Object"},
		{".method void f", protocol.Position{Line: 0, Character: 3}, ".method"},
		{"a  b", protocol.Position{Line: 0, Character: 2}, ""},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"x", protocol.Position{Line: 3, Character: 0}, ""},
	}
	for _, tt := range tests {
		if got := extractWord(tt.text, tt.pos); got != tt.want {
			t.Errorf("extractWord(%q, %v) = %q, want %q", tt.text, tt.pos, got, tt.want)
		}
	}
}

func TestBoolPtr(t *testing.T) {
	if p := boolPtr(true); p == nil || !*p {
		t.Error("boolPtr(true) did not return pointer to true")
	}
	if p := boolPtr(false); p == nil || *p {
		t.Error("boolPtr(false) did not return pointer to false")
	}
}

func TestUriPath(t *testing.T) {
	tests := []struct {
		uri  protocol.DocumentUri
		want string
	}{
		{"file:///home/me/src/Hello.jasm", "/home/me/src/Hello.jasm"},
		{"file:///tmp/with%20space.jasm", "/tmp/with space.jasm"},
		{"untitled:Untitled-1", "untitled:Untitled-1"},
	}
	for _, tt := range tests {
		if got := uriPath(tt.uri); got != tt.want {
			t.Errorf("uriPath(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Resolver-backed features
// ---------------------------------------------------------------------------

func labels(items []protocol.CompletionItem) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func TestLSP_Complete(t *testing.T) {
	s := NewLSP(nil, asm.DefaultOptions())
	defer s.worker.Stop()
	res := resolver.New()

	got := labels(s.complete(res, ".me"))
	if !slices.Contains(got, ".method") {
		t.Errorf("complete(.me) = %v, want .method", got)
	}
	for _, l := range got {
		if !strings.HasPrefix(l, ".") {
			t.Errorf("complete(.me) offered %q", l)
		}
	}

	got = labels(s.complete(res, "iload"))
	if !slices.Contains(got, "iload") || !slices.Contains(got, "iload_0") {
		t.Errorf("complete(iload) = %v", got)
	}

	got = labels(s.complete(res, "java.lang.Str"))
	if !slices.Contains(got, "java.lang.String") {
		t.Errorf("complete(java.lang.Str) = %v", got)
	}

	got = labels(s.complete(res, "PrintStr"))
	if !slices.Contains(got, "java.io.PrintStream") {
		t.Errorf("complete(PrintStr) = %v", got)
	}
}

func TestLSP_Hover(t *testing.T) {
	s := NewLSP(nil, asm.DefaultOptions())
	defer s.worker.Stop()
	res := resolver.New()

	tests := []struct {
		word string
		want string
	}{
		{"iadd", "0x60"},
		{"java.lang.String", "class** java.lang.String extends java.lang.Object"},
		{"java.lang.Runnable", "interface"},
		{".method", ".method"},
	}
	for _, tt := range tests {
		h := s.hover(res, tt.word)
		if h == nil {
			t.Errorf("hover(%q) = nil", tt.word)
			continue
		}
		value := h.Contents.(protocol.MarkupContent).Value
		if !strings.Contains(value, tt.want) {
			t.Errorf("hover(%q) = %q, want it to contain %q", tt.word, value, tt.want)
		}
	}

	for _, word := range []string{"zzz", ".nothing"} {
		if h := s.hover(res, word); h != nil {
			t.Errorf("hover(%q) = %+v, want nil", word, h)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestLSP_Diagnose(t *testing.T) {
	s := NewLSP(nil, asm.DefaultOptions())
	defer s.worker.Stop()

	if d := s.diagnose("file:///src/Hello.jasm", helloSource); len(d) != 0 {
		t.Errorf("diagnostics for valid source = %+v", d)
	}

	d := s.diagnose("file:///src/Bad.jasm", brokenSource)
	if len(d) != 1 {
		t.Fatalf("diagnostics = %+v, want 1", d)
	}
	if d[0].Range.Start.Line != 3 {
		t.Errorf("line = %d, want 3", d[0].Range.Start.Line)
	}
	if d[0].Range.Start.Character != 8 {
		t.Errorf("start column = %d, want 8", d[0].Range.Start.Character)
	}
	if !strings.Contains(d[0].Message, "count") {
		t.Errorf("message = %q", d[0].Message)
	}
}

func TestLSP_DiagnoseUnclosed(t *testing.T) {
	s := NewLSP(nil, asm.DefaultOptions())
	defer s.worker.Stop()

	src := ".class Open\n.method void f static\n        return\n"
	d := s.diagnose("file:///src/Open.jasm", src)
	if len(d) != 1 {
		t.Fatalf("diagnostics = %+v, want 1", d)
	}
	// Reported on the last line read.
	if d[0].Range.Start.Line != 2 {
		t.Errorf("line = %d, want 2", d[0].Range.Start.Line)
	}
	if !strings.Contains(d[0].Message, "not closed") {
		t.Errorf("message = %q", d[0].Message)
	}
}

func TestLSP_DiagnoseOpenInclude(t *testing.T) {
	s := NewLSP(nil, asm.DefaultOptions())
	defer s.worker.Stop()

	main := ".class Guard\n.include \"helpers.jasm\"\n.end Guard\n"
	if d := s.diagnose("file:///proj/Guard.jasm", main); len(d) != 1 {
		t.Errorf("missing include: diagnostics = %+v, want 1", d)
	}

	s.setDoc("file:///proj/helpers.jasm", ".method void g static\n        return\n.end g\n")
	if d := s.diagnose("file:///proj/Guard.jasm", main); len(d) != 0 {
		t.Errorf("open include: diagnostics = %+v", d)
	}
}

// ---------------------------------------------------------------------------
// Labels and variables
// ---------------------------------------------------------------------------

const sumSource = `.class Sum
.method int sum static
  .parameter int n
  .var int acc
        iconst_0
        istore acc
loop:   iload n
        ifle done
        iload acc
        iload n
        iadd
        istore acc
        iinc n, -1
        goto loop       // back
done:   iload acc
        ireturn
.end sum
.method void other static
loop:   goto loop
.end other
.end Sum
`

func TestLSP_Definition(t *testing.T) {
	uri := protocol.DocumentUri("file:///src/Sum.jasm")
	tests := []struct {
		name string
		pos  protocol.Position
		line int
		col  int
	}{
		{"label", protocol.Position{Line: 13, Character: 14}, 6, 0},
		{"forward label", protocol.Position{Line: 7, Character: 14}, 14, 0},
		{"parameter", protocol.Position{Line: 6, Character: 14}, 2, 17},
		{"variable", protocol.Position{Line: 8, Character: 15}, 3, 11},
		{"other method", protocol.Position{Line: 18, Character: 14}, 18, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs := definition(uri, sumSource, tt.pos)
			if len(locs) != 1 {
				t.Fatalf("definition = %+v, want 1 location", locs)
			}
			start := locs[0].Range.Start
			if int(start.Line) != tt.line || int(start.Character) != tt.col {
				t.Errorf("definition at %d:%d, want %d:%d", start.Line, start.Character, tt.line, tt.col)
			}
		})
	}

	if locs := definition(uri, sumSource, protocol.Position{Line: 4, Character: 10}); locs != nil {
		t.Errorf("definition of a mnemonic = %+v", locs)
	}
}

func TestLSP_References(t *testing.T) {
	uri := protocol.DocumentUri("file:///src/Sum.jasm")

	// acc: declaration plus four uses, all inside sum.
	locs := references(uri, sumSource, protocol.Position{Line: 3, Character: 12}, true)
	if len(locs) != 5 {
		t.Errorf("references(acc) = %d, want 5", len(locs))
	}
	locs = references(uri, sumSource, protocol.Position{Line: 3, Character: 12}, false)
	if len(locs) != 4 {
		t.Errorf("references(acc) without declaration = %d, want 4", len(locs))
	}

	// loop in sum does not see loop in other.
	locs = references(uri, sumSource, protocol.Position{Line: 6, Character: 1}, true)
	if len(locs) != 2 {
		t.Errorf("references(loop) = %+v, want 2", locs)
	}
	for _, l := range locs {
		if l.Range.Start.Line > 16 {
			t.Errorf("reference escaped its method: %+v", l)
		}
	}

	if locs := references(uri, sumSource, protocol.Position{Line: 4, Character: 10}, true); locs != nil {
		t.Errorf("references(iconst_0) = %+v", locs)
	}
}

func TestLSP_DocumentStore(t *testing.T) {
	s := NewLSP(nil, asm.DefaultOptions())
	defer s.worker.Stop()

	uri := protocol.DocumentUri("file:///test.jasm")
	s.setDoc(uri, ".class A\n.end A\n")
	if text, ok := s.doc(uri); !ok || text != ".class A\n.end A\n" {
		t.Errorf("doc = %q, %v", text, ok)
	}

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()
	if _, ok := s.doc(uri); ok {
		t.Error("document still present after delete")
	}
}
