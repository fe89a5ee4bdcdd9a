// Package c implements SymbolParser for C source via direct tree-sitter
// node traversal, the same grammar the teacher loads but walked without
// the missing .scm query assets (see internal/parser/python for the same
// deviation, applied consistently across the two tree-sitter languages).
package c

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	sitterc "github.com/tree-sitter/tree-sitter-c/bindings/go"

	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/parser"
)

type Parser struct{}

func New() *Parser { return &Parser{} }

func (p *Parser) Parse(path string, content []byte) (*parser.ParseResult, error) {
	sp := sitter.NewParser()
	defer sp.Close()
	if err := sp.SetLanguage(sitter.NewLanguage(sitterc.Language())); err != nil {
		return nil, fmt.Errorf("c: set language: %w", err)
	}

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("c: failed to parse %s", path)
	}
	defer tree.Close()

	w := &walker{content: content, result: &parser.ParseResult{}}
	w.walk(tree.RootNode(), -1)
	return w.result, nil
}

type walker struct {
	content []byte
	result  *parser.ParseResult
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) walk(n *sitter.Node, enclosing int) {
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_definition":
			idx := w.visitFunction(child)
			if body := child.ChildByFieldName("body"); body != nil {
				w.walk(body, idx)
			}
		case "call_expression":
			w.visitCall(child, enclosing)
			w.walk(child, enclosing)
		case "preproc_include":
			w.visitInclude(child)
		default:
			w.walk(child, enclosing)
		}
	}
}

func (w *walker) visitFunction(n *sitter.Node) int {
	declarator := n.ChildByFieldName("declarator")
	name := "<anonymous>"
	if declarator != nil {
		if nameNode := findIdentifier(declarator); nameNode != nil {
			name = w.text(nameNode)
		}
	}

	sym := &model.Symbol{
		Name:      name,
		Kind:      model.KindFunction,
		LineStart: int(n.StartPosition().Row) + 1,
		LineEnd:   int(n.EndPosition().Row) + 1,
		Signature: strings.TrimSpace(strings.SplitN(w.text(n), "{", 2)[0]),
	}
	countLines(w, n, sym)

	idx := len(w.result.Symbols)
	w.result.Symbols = append(w.result.Symbols, sym)
	w.result.SymbolText = append(w.result.SymbolText, w.text(n))
	return idx
}

// findIdentifier descends into a (possibly pointer/array) declarator to
// find the function_declarator's identifier child.
func findIdentifier(n *sitter.Node) *sitter.Node {
	if n.Kind() == "identifier" {
		return n
	}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		if child := n.Child(i); child != nil {
			if found := findIdentifier(child); found != nil {
				return found
			}
		}
	}
	return nil
}

func (w *walker) visitCall(n *sitter.Node, enclosing int) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	w.result.Calls = append(w.result.Calls, parser.CallSite{
		FromSymbolIndex: enclosing,
		ToName:          w.text(fn),
		Line:            int(n.StartPosition().Row) + 1,
	})
}

func (w *walker) visitInclude(n *sitter.Node) {
	raw := w.text(n)
	pathNode := n.ChildByFieldName("path")
	module := raw
	if pathNode != nil {
		module = strings.Trim(w.text(pathNode), "<>\"")
	}
	w.result.Imports = append(w.result.Imports, parser.ImportSite{
		ToModuleName: module,
		Raw:          raw,
	})
}

func countLines(w *walker, n *sitter.Node, sym *model.Symbol) {
	text := w.text(n)
	lines := strings.Split(text, "\n")
	sym.LOC = len(lines)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			sym.BlankLines++
		case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "/*"), strings.HasPrefix(trimmed, "*"):
			sym.CommentLines++
		}
	}
}
