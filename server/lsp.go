package server

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/resolver"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "jasm-lsp"

// LspServer provides editor features for .jasm documents. Every change is
// assembled in memory and its fault published as a diagnostic.
type LspServer struct {
	worker *Worker
	opts   asm.Options

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates an LSP server resolving against res. opts supplies the
// assembler defaults; its Includer is used for includes not open in the
// editor.
func NewLSP(res *resolver.Resolver, opts asm.Options) *LspServer {
	s := &LspServer{
		worker:  NewWorker(res),
		opts:    opts,
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "jasm LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.setDoc(uri, text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDoc(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDoc(uri protocol.DocumentUri, text string) {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
}

func (s *LspServer) doc(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.doc(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(context.Background(), func(res *resolver.Resolver) any {
		return s.complete(res, prefix)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.doc(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(context.Background(), func(res *resolver.Resolver) any {
		return s.hover(res, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.doc(uri)
	if !ok {
		return nil, nil
	}
	locations := definition(uri, text, params.Position)
	if len(locations) == 0 {
		return nil, nil
	}
	return locations, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.doc(uri)
	if !ok {
		return nil, nil
	}
	return references(uri, text, params.Position, params.Context.IncludeDeclaration), nil
}

// --- Resolver-backed logic (called on worker goroutine) ---

func (s *LspServer) complete(res *resolver.Resolver, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		insert := label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &insert,
		})
	}

	if strings.HasPrefix(prefix, ".") {
		for _, d := range asm.Directives() {
			if strings.HasPrefix(d, prefix[1:]) {
				add("."+d, protocol.CompletionItemKindKeyword, "directive")
			}
		}
		return items
	}

	lowerPrefix := strings.ToLower(prefix)
	for _, m := range asm.Mnemonics() {
		if strings.HasPrefix(m, lowerPrefix) {
			op, _ := asm.Opcode(m)
			add(m, protocol.CompletionItemKindOperator, fmt.Sprintf("opcode 0x%02x", op))
		}
	}

	// Classes complete by dotted name, or by simple name when the prefix
	// carries no package.
	dotted := strings.ReplaceAll(prefix, "/", ".")
	for _, internal := range res.ClassNames() {
		name := strings.ReplaceAll(internal, "/", ".")
		simple := name[strings.LastIndexByte(name, '.')+1:]
		if strings.HasPrefix(name, dotted) || (!strings.Contains(dotted, ".") && strings.HasPrefix(simple, dotted)) {
			add(name, protocol.CompletionItemKindClass, "class")
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func (s *LspServer) hover(res *resolver.Resolver, word string) *protocol.Hover {
	var b strings.Builder
	switch {
	case strings.HasPrefix(word, "."):
		name := word[1:]
		for _, d := range asm.Directives() {
			if d == name {
				fmt.Fprintf(&b, "**.%s** directive", name)
			}
		}
	default:
		if op, ok := asm.Opcode(word); ok {
			fmt.Fprintf(&b, "**%s**\n\nopcode `0x%02x` (%d)", word, op, op)
			break
		}
		c, err := res.Class(word)
		if err != nil {
			return nil
		}
		kind := "class"
		if c.IsInterface() {
			kind = "interface"
		}
		fmt.Fprintf(&b, "**%s** %s", kind, c.DottedName())
		if c.Super != "" {
			fmt.Fprintf(&b, " extends %s", strings.ReplaceAll(c.Super, "/", "."))
		}
		if len(c.Interfaces) > 0 {
			names := make([]string, len(c.Interfaces))
			for i, n := range c.Interfaces {
				names[i] = strings.ReplaceAll(n, "/", ".")
			}
			fmt.Fprintf(&b, " implements %s", strings.Join(names, ", "))
		}
		fmt.Fprintf(&b, "\n\n%d fields, %d methods", len(c.Fields), len(c.Methods))
		if c.IsFinal() {
			b.WriteString(" (final)")
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// --- Diagnostics ---

// diagnose assembles text and converts the fault, if any.
func (s *LspServer) diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	path := uriPath(uri)
	res, err := s.worker.Resolver(context.Background())
	if err != nil {
		log.Warningf("diagnostics for %s: %s", uri, err)
		return nil
	}
	opts := s.opts
	opts.Resolver = res
	opts.FileName = path
	opts.Includer = &docIncluder{s: s, fallback: s.opts.Includer}
	diagnostics := []protocol.Diagnostic{}
	_, fault := asm.AssembleString(text, opts)
	if fault == nil {
		return diagnostics
	}
	for _, d := range Diagnose(fault) {
		line := d.Line - 1
		if d.Line == 0 {
			line = strings.Count(text, "\n")
		}
		msg := d.Message
		if d.Directive != "" {
			msg = d.Directive + ": " + msg
		}
		if d.File != "" && d.File != path {
			// Fault inside an include; anchor it to the top of the file.
			msg = fmt.Sprintf("%s:%d: %s", d.File, d.Line, msg)
			line = 0
		}
		severity := protocol.DiagnosticSeverityError
		source := lspName
		code := protocol.IntegerOrString{Value: d.Kind}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    lineRange(text, line),
			Severity: &severity,
			Code:     &code,
			Source:   &source,
			Message:  msg,
		})
	}
	return diagnostics
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: s.diagnose(uri, text),
	})
}

// docIncluder serves includes from open documents, then from fallback.
type docIncluder struct {
	s        *LspServer
	fallback asm.Includer
}

func (d *docIncluder) Include(from, path string) (io.ReadCloser, string, error) {
	full := path
	if !filepath.IsAbs(full) && from != "" {
		full = filepath.Join(filepath.Dir(from), path)
	}
	full = filepath.Clean(full)
	d.s.mu.Lock()
	for uri, text := range d.s.docs {
		if uriPath(protocol.DocumentUri(uri)) == full {
			d.s.mu.Unlock()
			return io.NopCloser(strings.NewReader(text)), full, nil
		}
	}
	d.s.mu.Unlock()
	if d.fallback == nil {
		return asm.FileIncluder{}.Include(from, path)
	}
	return d.fallback.Include(from, path)
}

// uriPath converts a file URI to a path. Other URIs are returned as is.
func uriPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	return filepath.FromSlash(u.Path)
}

func lineRange(text string, line int) protocol.Range {
	lines := strings.Split(text, "\n")
	if line < 0 {
		line = 0
	}
	if line >= len(lines) {
		line = len(lines) - 1
	}
	l := lines[line]
	start := len(l) - len(strings.TrimLeft(l, " \t"))
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(start)},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(len(strings.TrimRight(l, " \t\r")))},
	}
}

// --- Labels and variables ---

// A symbol is a label or a local variable. Both are scoped to the method
// that declares them.

// methodSpan returns the line range [start, end) of the method around line.
func methodSpan(lines []string, line int) (int, int) {
	start, end := 0, len(lines)
	for i := line; i >= 0; i-- {
		if hasToken(lines[i], ".method") {
			start = i
			break
		}
	}
	for i := line + 1; i < len(lines); i++ {
		if hasToken(lines[i], ".method") {
			end = i
			break
		}
	}
	return start, end
}

func hasToken(line, tok string) bool {
	for _, f := range strings.Fields(stripComment(line)) {
		if f == tok {
			return true
		}
	}
	return false
}

// stripComment cuts a // comment outside quotes.
func stripComment(line string) string {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '"' && (i == 0 || line[i-1] != '\\'):
			quoted = !quoted
		case !quoted && line[i] == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

// declares reports where line declares name, as a label or through
// .var/.parameter, or -1.
func declares(line, name string) int {
	code := stripComment(line)
	trimmed := strings.TrimLeft(code, " \t")
	if strings.HasPrefix(trimmed, name+":") {
		return len(code) - len(trimmed)
	}
	fields := strings.Fields(code)
	for i, f := range fields {
		if (f == ".var" || f == ".parameter") && i+2 < len(fields) && fields[i+2] == name {
			return wordIndex(code, name, 0)
		}
	}
	return -1
}

// wordIndex finds name as a whole word in line at or after from.
func wordIndex(line, name string, from int) int {
	for from <= len(line)-len(name) {
		i := strings.Index(line[from:], name)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(name)
		if (i == 0 || !isWordPart(line[i-1])) && (end == len(line) || !isWordPart(line[end])) {
			return i
		}
		from = i + 1
	}
	return -1
}

func isWordPart(ch byte) bool {
	return ch == '_' || ch == '$' || ch == '.' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch))
}

func symbolLocation(uri protocol.DocumentUri, line, col int, name string) protocol.Location {
	return protocol.Location{
		URI: uri,
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)},
			End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col + len(name))},
		},
	}
}

func definition(uri protocol.DocumentUri, text string, pos protocol.Position) []protocol.Location {
	word := extractWord(text, pos)
	if word == "" || strings.Contains(word, ".") {
		return nil
	}
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil
	}
	start, end := methodSpan(lines, int(pos.Line))
	for i := start; i < end; i++ {
		if col := declares(lines[i], word); col >= 0 {
			return []protocol.Location{symbolLocation(uri, i, col, word)}
		}
	}
	return nil
}

func references(uri protocol.DocumentUri, text string, pos protocol.Position, withDecl bool) []protocol.Location {
	word := extractWord(text, pos)
	if word == "" || strings.Contains(word, ".") {
		return nil
	}
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil
	}
	start, end := methodSpan(lines, int(pos.Line))
	declared := false
	for i := start; i < end; i++ {
		if declares(lines[i], word) >= 0 {
			declared = true
			break
		}
	}
	if !declared {
		return nil
	}

	var locations []protocol.Location
	for i := start; i < end; i++ {
		code := stripComment(lines[i])
		decl := declares(lines[i], word)
		for col := wordIndex(code, word, 0); col >= 0; col = wordIndex(code, word, col+len(word)) {
			if col == decl && !withDecl {
				continue
			}
			locations = append(locations, symbolLocation(uri, i, col, word))
		}
	}
	return locations
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the name
	start := col
	for start > 0 && (isWordPart(line[start-1]) || line[start-1] == '/') {
		start--
	}

	if start == col {
		return ""
	}
	return line[start:col]
}

// extractWord returns the full name under the cursor. Qualified class
// names and directives are one word; a label's trailing colon is not part
// of it.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isWordPart(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordPart(line[end]) {
		end++
	}

	if start == end {
		return ""
	}
	return strings.TrimSuffix(line[start:end], ".")
}

func boolPtr(b bool) *bool {
	return &b
}
