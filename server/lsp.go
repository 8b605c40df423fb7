package server

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/abooishaaq/sahl/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "sahl-lsp"

// document is an open editor buffer and its last analysis.
type document struct {
	text  string
	ast   *compiler.Program
	diags []compiler.Diagnostic
}

// LspServer provides diagnostics, completion, hover, and go-to-definition
// for sahl and Starlark-syntax sources.
type LspServer struct {
	mu   sync.Mutex
	docs map[protocol.DocumentUri]*document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[protocol.DocumentUri]*document),
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
	log.Info("LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

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
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := s.update(params.TextDocument.URI, params.TextDocument.Text)
	s.publish(ctx, params.TextDocument.URI, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) == 0 {
		return nil
	}
	last := params.ContentChanges[len(params.ContentChanges)-1]
	whole, ok := last.(protocol.TextDocumentContentChangeEventWhole)
	if !ok {
		return nil
	}
	doc := s.update(params.TextDocument.URI, whole.Text)
	s.publish(ctx, params.TextDocument.URI, doc)
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update analyzes text and stores it as the current content of uri. A
// document that no longer parses keeps its previous AST, so completion and
// navigation keep working while the user types.
func (s *LspServer) update(uri protocol.DocumentUri, text string) *document {
	ast, diags := compiler.Diagnose(documentName(uri), []byte(text), compiler.FrontendAuto)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := &document{text: text, ast: ast, diags: diags}
	if ast == nil {
		if prev, ok := s.docs[uri]; ok {
			doc.ast = prev.ast
		}
	}
	s.docs[uri] = doc
	return doc
}

func (s *LspServer) document(uri protocol.DocumentUri) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// documentName returns the path part of uri, whose extension selects the
// frontend.
func documentName(uri protocol.DocumentUri) string {
	if u, err := url.Parse(string(uri)); err == nil && u.Path != "" {
		return u.Path
	}
	return string(uri)
}

// --- Feature handlers ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return complete(doc, extractPrefix(doc.text, params.Position)), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(doc, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	loc := definition(doc, params.TextDocument.URI, word)
	if loc == nil {
		return nil, nil
	}
	return loc, nil
}

// --- Queries ---

// functions lists the declared functions of doc, main last.
func functions(doc *document) []*compiler.Func {
	if doc.ast == nil {
		return nil
	}
	fns := append([]*compiler.Func(nil), doc.ast.Funcs...)
	if doc.ast.Main != nil {
		fns = append(fns, doc.ast.Main)
	}
	return fns
}

// complete offers functions, builtins, and keywords matching prefix.
func complete(doc *document, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:  label,
			Kind:   &kind,
			Detail: &detail,
		})
	}

	for _, fn := range functions(doc) {
		add(fn.Name, fn.Signature(), protocol.CompletionItemKindFunction)
	}
	for _, name := range compiler.Builtins {
		add(name, "builtin", protocol.CompletionItemKindFunction)
	}
	keywords := compiler.Keywords()
	sort.Strings(keywords)
	for _, kw := range keywords {
		add(kw, "keyword", protocol.CompletionItemKindKeyword)
	}
	return items
}

// hover shows the signature of a declared function or builtin.
func hover(doc *document, word string) *protocol.Hover {
	var value string
	if fn := doc.lookup(word); fn != nil {
		value = fmt.Sprintf("```sahl\n%s\n```", fn.Signature())
	} else {
		for _, b := range compiler.Builtins {
			if b == word {
				value = fmt.Sprintf("**%s** (builtin)", word)
			}
		}
	}
	if value == "" {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// definition locates the declaration of function word.
func definition(doc *document, uri protocol.DocumentUri, word string) *protocol.Location {
	fn := doc.lookup(word)
	if fn == nil {
		return nil
	}
	return &protocol.Location{URI: uri, Range: toRange(fn.NameSpan.Start, fn.NameSpan.End)}
}

func (d *document) lookup(name string) *compiler.Func {
	if d.ast == nil {
		return nil
	}
	return d.ast.Lookup(name)
}

// --- Diagnostics ---

func (s *LspServer) publish(ctx *glsp.Context, uri protocol.DocumentUri, doc *document) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: toLSPDiagnostics(doc.diags),
	})
}

func toLSPDiagnostics(diags []compiler.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	source := lspName
	for _, d := range diags {
		severity := protocol.DiagnosticSeverityError
		if d.Severity == compiler.SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		out = append(out, protocol.Diagnostic{
			Range:    toRange(d.Pos, d.End),
			Severity: &severity,
			Source:   &source,
			Message:  d.Msg,
		})
	}
	return out
}

// toRange converts 1-based compiler positions to a 0-based LSP range. A
// missing end collapses onto the start.
func toRange(start, end compiler.Position) protocol.Range {
	if end.Line == 0 {
		end = start
	}
	return protocol.Range{
		Start: toPosition(start),
		End:   toPosition(end),
	}
}

func toPosition(p compiler.Position) protocol.Position {
	line, col := p.Line-1, p.Column-1
	if line < 0 {
		line = 0
	}
	if col < 0 {
		col = 0
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

// --- Text extraction helpers ---

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// cursorLine returns the line under pos and the clamped column.
func cursorLine(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
