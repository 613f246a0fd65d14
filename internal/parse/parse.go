// Package parse extracts module references and top-level declarations from
// source files using tree-sitter, and regenerates sources after references
// have been rewritten.
package parse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/empathy/internal/lang"
	"github.com/phobologic/empathy/internal/model"
)

var (
	// ErrSyntax is returned when a source file does not parse cleanly.
	ErrSyntax = errors.New("syntax error")
	// ErrUnsupported is returned for files with no registered language.
	ErrUnsupported = errors.New("unsupported file type")
)

// Specifier is a read/write view over the string value of one module
// reference. Setting the value does not touch the source until Render.
type Specifier struct {
	Kind  model.SpecifierKind
	Line  int
	quote byte
	start uint32 // first byte inside the quotes
	end   uint32 // closing quote
	orig  string
	value string
}

// Value returns the current specifier value.
func (s *Specifier) Value() string { return s.value }

// SetValue replaces the specifier value.
func (s *Specifier) SetValue(v string) { s.value = v }

// Original returns the value as it appeared in the source.
func (s *Specifier) Original() string { return s.orig }

// Changed reports whether the value differs from the source.
func (s *Specifier) Changed() bool { return s.value != s.orig }

// Document is one parsed source file.
type Document struct {
	Source     []byte
	Specifiers []*Specifier

	topLevel map[string]struct{}
	globals  map[string]struct{}
}

// Declares reports whether name is declared by a top-level class, function
// or variable declaration.
func (d *Document) Declares(name string) bool {
	_, ok := d.topLevel[name]
	return ok
}

// TopLevelNames returns the declared top-level names in sorted order.
func (d *Document) TopLevelNames() []string {
	names := make([]string, 0, len(d.topLevel))
	for n := range d.topLevel {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// References reports whether name is used as the object of a member access
// anywhere in the file. Scoping is not considered.
func (d *Document) References(name string) bool {
	_, ok := d.globals[name]
	return ok
}

// File parses source using the language registered for path's extension.
func File(ctx context.Context, path string, source []byte) (*Document, error) {
	l := lang.ForPath(path)
	if l == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	return Parse(ctx, l, source)
}

// Parse builds a Document from source.
func Parse(ctx context.Context, l *lang.Language, source []byte) (*Document, error) {
	query, err := l.GetReferenceQuery()
	if err != nil {
		return nil, err
	}

	parser := l.NewParser()
	defer parser.Close()

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := firstError(root); n != nil {
			return nil, fmt.Errorf("%w at line %d", ErrSyntax, n.StartPoint().Row+1)
		}
		return nil, ErrSyntax
	}

	doc := &Document{
		Source:   source,
		topLevel: collectTopLevelNames(root, source),
		globals:  make(map[string]struct{}),
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}

		var sourceNode, declNode *sitter.Node
		var kind model.SpecifierKind

		for _, c := range match.Captures {
			switch query.CaptureNameForId(c.Index) {
			case "source":
				sourceNode = c.Node
			case "reference.import":
				declNode, kind = c.Node, model.Import
			case "reference.export":
				declNode, kind = c.Node, exportKind(c.Node)
			case "global":
				doc.globals[nodeText(c.Node, source)] = struct{}{}
			}
		}

		if sourceNode == nil || declNode == nil {
			continue
		}
		if spec := newSpecifier(kind, sourceNode, source); spec != nil {
			doc.Specifiers = append(doc.Specifiers, spec)
		}
	}

	sort.Slice(doc.Specifiers, func(i, j int) bool {
		return doc.Specifiers[i].start < doc.Specifiers[j].start
	})
	return doc, nil
}

// Render regenerates the source with every changed specifier applied.
func (d *Document) Render() []byte {
	var b bytes.Buffer
	b.Grow(len(d.Source))

	var pos uint32
	for _, s := range d.Specifiers {
		if !s.Changed() {
			continue
		}
		b.Write(d.Source[pos:s.start])
		b.WriteString(escape(s.value, s.quote))
		pos = s.end
	}
	b.Write(d.Source[pos:])
	return b.Bytes()
}

// Changed reports whether Render would differ from Source.
func (d *Document) Changed() bool {
	for _, s := range d.Specifiers {
		if s.Changed() {
			return true
		}
	}
	return false
}

func newSpecifier(kind model.SpecifierKind, node *sitter.Node, source []byte) *Specifier {
	start, end := node.StartByte(), node.EndByte()
	if end-start < 2 {
		return nil
	}
	value := unescape(string(source[start+1 : end-1]))
	if value == "" {
		return nil
	}
	return &Specifier{
		Kind:  kind,
		Line:  int(node.StartPoint().Row) + 1,
		quote: source[start],
		start: start + 1,
		end:   end - 1,
		orig:  value,
		value: value,
	}
}

// exportKind distinguishes `export * from` from every other sourced export.
func exportKind(node *sitter.Node) model.SpecifierKind {
	star := false
	for i := 0; i < int(node.ChildCount()); i++ {
		switch node.Child(i).Type() {
		case "*":
			star = true
		case "namespace_export", "export_clause":
			return model.ExportNamed
		}
	}
	if star {
		return model.ExportAll
	}
	return model.ExportNamed
}

func collectTopLevelNames(root *sitter.Node, source []byte) map[string]struct{} {
	names := make(map[string]struct{})
	add := func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "identifier", "type_identifier":
			names[nodeText(n, source)] = struct{}{}
		}
	}

	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		switch n.Type() {
		case "class_declaration", "abstract_class_declaration",
			"function_declaration", "generator_function_declaration":
			add(n.ChildByFieldName("name"))
		case "lexical_declaration", "variable_declaration":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				decl := n.NamedChild(j)
				if decl.Type() == "variable_declarator" {
					add(decl.ChildByFieldName("name"))
				}
			}
		case "export_statement":
			if decl := n.ChildByFieldName("declaration"); decl != nil {
				visit(decl)
			}
		}
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		visit(root.NamedChild(i))
	}
	return names
}

func firstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !child.HasError() && !child.IsMissing() {
			continue
		}
		if n := firstError(child); n != nil {
			return n
		}
	}
	return nil
}

// escape encodes value as the body of a string literal delimited by quote.
func escape(value string, quote byte) string {
	if !strings.ContainsAny(value, "\\\n\r\t"+string(quote)) {
		return value
	}
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case rune(quote):
			b.WriteByte('\\')
			b.WriteByte(quote)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// unescape decodes the escape sequences of a string literal body. An
// unrecognized escape yields the escaped character itself.
func unescape(raw string) string {
	if !strings.Contains(raw, `\`) {
		return raw
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 == len(raw) {
			b.WriteByte(c)
			continue
		}
		i++
		switch c = raw[i]; c {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case '\n':
			// line continuation
		case 'x':
			if r, n := hexRune(raw[i+1:], 2); n > 0 {
				b.WriteRune(r)
				i += n
				continue
			}
			b.WriteByte(c)
		case 'u':
			rest := raw[i+1:]
			if strings.HasPrefix(rest, "{") {
				if end := strings.IndexByte(rest, '}'); end > 1 {
					if r, n := hexRune(rest[1:end], end-1); n == end-1 {
						b.WriteRune(r)
						i += end + 1
						continue
					}
				}
			} else if r, n := hexRune(rest, 4); n > 0 {
				b.WriteRune(r)
				i += n
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// hexRune parses exactly n hex digits from the start of s.
func hexRune(s string, n int) (rune, int) {
	if n == 0 || len(s) < n {
		return 0, 0
	}
	v, err := strconv.ParseUint(s[:n], 16, 32)
	if err != nil {
		return 0, 0
	}
	return rune(v), n
}

func nodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
