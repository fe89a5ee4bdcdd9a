// Package python implements SymbolParser for Python source, walking the
// tree-sitter parse tree directly (the teacher's pkg/codegraph/parser
// drives the same grammar through compiled .scm query captures; none
// shipped with this pipeline, so the walk below visits function_definition
// / class_definition / call nodes by hand instead).
package python

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	sitterpython "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/parser"
)

type Parser struct{}

func New() *Parser { return &Parser{} }

func (p *Parser) Parse(path string, content []byte) (*parser.ParseResult, error) {
	sp := sitter.NewParser()
	defer sp.Close()
	if err := sp.SetLanguage(sitter.NewLanguage(sitterpython.Language())); err != nil {
		return nil, fmt.Errorf("python: set language: %w", err)
	}

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("python: failed to parse %s", path)
	}
	defer tree.Close()

	w := &walker{content: content, result: &parser.ParseResult{}}
	w.walkModule(tree.RootNode())
	return w.result, nil
}

type walker struct {
	content []byte
	result  *parser.ParseResult
	// symbolStack tracks the enclosing symbol's index for attributing calls.
	symbolStack []int
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) currentSymbolIndex() int {
	if len(w.symbolStack) == 0 {
		return -1
	}
	return w.symbolStack[len(w.symbolStack)-1]
}

func (w *walker) walkModule(n *sitter.Node) {
	w.walkChildren(n, false)
}

// walkChildren visits n's children at any depth, recording every function
// or class definition it reaches as a symbol of its own (nested definitions
// are flattened); insideClass marks functions found in a class body as
// methods.
func (w *walker) walkChildren(n *sitter.Node, insideClass bool) {
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_definition":
			w.visitFunction(child, insideClass)
		case "class_definition":
			w.visitClass(child)
		case "call":
			w.visitCall(child)
		case "import_statement", "import_from_statement":
			w.visitImport(child)
		default:
			w.walkChildren(child, insideClass)
		}
	}
}

func (w *walker) visitFunction(n *sitter.Node, isMethod bool) {
	nameNode := n.ChildByFieldName("name")
	name := "<anonymous>"
	if nameNode != nil {
		name = w.text(nameNode)
	}

	sym := &model.Symbol{
		Name:      name,
		Kind:      model.KindFunction,
		LineStart: int(n.StartPosition().Row) + 1,
		LineEnd:   int(n.EndPosition().Row) + 1,
		Signature: signature(w, n),
	}
	if isMethod {
		sym.Kind = model.KindMethod
	}

	body := n.ChildByFieldName("body")
	if body != nil {
		if doc := leadingDocstring(w, body); doc != "" {
			sym.Docstring = doc
			sym.HasDocstring = true
			sym.DocstringLength = len(doc)
		}
	}
	countLines(w, n, sym)

	idx := len(w.result.Symbols)
	w.result.Symbols = append(w.result.Symbols, sym)
	w.result.SymbolText = append(w.result.SymbolText, w.text(n))

	w.symbolStack = append(w.symbolStack, idx)
	if body != nil {
		w.walkChildren(body, false)
	}
	w.symbolStack = w.symbolStack[:len(w.symbolStack)-1]
}

func (w *walker) visitClass(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	name := "<anonymous>"
	if nameNode != nil {
		name = w.text(nameNode)
	}

	sym := &model.Symbol{
		Name:      name,
		Kind:      model.KindClass,
		LineStart: int(n.StartPosition().Row) + 1,
		LineEnd:   int(n.EndPosition().Row) + 1,
		Signature: "class " + name,
	}
	body := n.ChildByFieldName("body")
	if body != nil {
		if doc := leadingDocstring(w, body); doc != "" {
			sym.Docstring = doc
			sym.HasDocstring = true
			sym.DocstringLength = len(doc)
		}
	}
	countLines(w, n, sym)

	w.result.Symbols = append(w.result.Symbols, sym)
	w.result.SymbolText = append(w.result.SymbolText, w.text(n))

	if body != nil {
		w.walkChildren(body, true)
	}
}

func (w *walker) visitCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	name := w.text(fn)
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}

	w.result.Calls = append(w.result.Calls, parser.CallSite{
		FromSymbolIndex: w.currentSymbolIndex(),
		ToName:          name,
		Line:            int(n.StartPosition().Row) + 1,
	})
}

func (w *walker) visitImport(n *sitter.Node) {
	raw := w.text(n)
	module := raw
	fields := strings.Fields(raw)
	if len(fields) >= 2 {
		module = fields[1]
	}
	module = strings.SplitN(module, ".", 2)[0]

	w.result.Imports = append(w.result.Imports, parser.ImportSite{
		ToModuleName: module,
		Raw:          raw,
	})
}

func signature(w *walker, n *sitter.Node) string {
	nameNode := n.ChildByFieldName("name")
	params := n.ChildByFieldName("parameters")
	name := "<anonymous>"
	if nameNode != nil {
		name = w.text(nameNode)
	}
	paramText := "()"
	if params != nil {
		paramText = w.text(params)
	}
	return "def " + name + paramText
}

// leadingDocstring returns the string literal of a bare expression_statement
// that is the first statement in a block, Python's docstring convention.
func leadingDocstring(w *walker, block *sitter.Node) string {
	if block.ChildCount() == 0 {
		return ""
	}
	first := block.Child(0)
	if first == nil || first.Kind() != "expression_statement" {
		return ""
	}
	if first.ChildCount() == 0 {
		return ""
	}
	lit := first.Child(0)
	if lit == nil || lit.Kind() != "string" {
		return ""
	}
	text := w.text(lit)
	text = strings.Trim(text, "\"'")
	return strings.TrimSpace(text)
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
		case strings.HasPrefix(trimmed, "#"):
			sym.CommentLines++
		}
	}
}
