// Package parser is the SymbolParser capability registry (spec §4.D): one
// implementation per supported language, dispatched by internal/lang's
// detection result and producing a uniform ParseResult.
package parser

import (
	"github.com/sourcequal/codequal/internal/lang"
	"github.com/sourcequal/codequal/internal/model"
)

// CallSite is an unresolved call observed while parsing one file; the
// CallGraphBuilder later resolves ToName against the symbol table.
type CallSite struct {
	FromSymbolIndex int // index into ParseResult.Symbols; -1 for a call outside any symbol
	ToName          string
	Line            int
}

// ImportSite is an unresolved import observed while parsing one file.
type ImportSite struct {
	ToModuleName string
	Raw          string
}

// ParseResult is what every language implementation produces for one file.
// SymbolText holds each Symbol's raw source slice, aligned by index, for
// MetricsAnalyzer to compute complexity and maintainability from; it is
// never persisted.
type ParseResult struct {
	Symbols    []*model.Symbol
	SymbolText []string
	Calls      []CallSite
	Imports    []ImportSite
}

// SymbolParser is implemented once per supported language.
type SymbolParser interface {
	Parse(path string, content []byte) (*ParseResult, error)
}

// Registry dispatches to the language-specific SymbolParser.
type Registry struct {
	parsers map[lang.Language]SymbolParser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[lang.Language]SymbolParser)}
}

func (r *Registry) Register(l lang.Language, p SymbolParser) {
	r.parsers[l] = p
}

func (r *Registry) Get(l lang.Language) (SymbolParser, bool) {
	p, ok := r.parsers[l]
	return p, ok
}
