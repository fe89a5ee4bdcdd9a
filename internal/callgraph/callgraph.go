// Package callgraph is CallGraphBuilder (spec §4.F): it resolves raw call
// sites into CallEdge rows, then derives dead-code and cycle findings from
// the resolved graph.
package callgraph

import (
	"sort"

	"github.com/sourcequal/codequal/internal/model"
)

// PendingCall is one call site awaiting resolution, carrying the caller's
// already-persisted Symbol ID rather than the parser's file-local index.
type PendingCall struct {
	FromSymbolID string
	FileID       string
	ToName       string
	Line         int
}

// EntryPointNames names symbols that are dead-code-detection roots even
// with zero callers (spec §4.F: "not an entry point").
var EntryPointNames = map[string]bool{
	"main": true,
}

// Resolve performs the two-pass name resolution the builder guarantees:
// same-file first, then repo-wide by exact name; a name matching more than
// one repo-wide candidate resolves to none (ambiguous stays unresolved).
func Resolve(symbols []*model.Symbol, calls []PendingCall) []*model.CallEdge {
	byFile := make(map[string]map[string][]*model.Symbol) // fileID -> name -> symbols
	byName := make(map[string][]*model.Symbol)
	for _, s := range symbols {
		byName[s.Name] = append(byName[s.Name], s)
	}
	for _, s := range symbols {
		if byFile[s.FileID] == nil {
			byFile[s.FileID] = make(map[string][]*model.Symbol)
		}
		byFile[s.FileID][s.Name] = append(byFile[s.FileID][s.Name], s)
	}

	edges := make([]*model.CallEdge, 0, len(calls))
	for _, c := range calls {
		edge := &model.CallEdge{
			FromSymbolID: c.FromSymbolID,
			ToName:       c.ToName,
			FileID:       c.FileID,
			Line:         c.Line,
		}

		if local := byFile[c.FileID][c.ToName]; len(local) == 1 {
			edge.ToSymbolID = local[0].ID
		} else if global := byName[c.ToName]; len(global) == 1 {
			edge.ToSymbolID = global[0].ID
		} else {
			edge.IsExternal = true
		}

		edges = append(edges, edge)
	}
	return edges
}

// DeadCodeSeverity buckets a dead symbol by how many calls it makes that
// become unreachable with it.
func DeadCodeSeverity(outgoingCalls int) model.Severity {
	switch {
	case outgoingCalls == 0:
		return model.SeverityLow
	case outgoingCalls <= 2:
		return model.SeverityMedium
	default:
		return model.SeverityHigh
	}
}

// DeadSymbol is one symbol with in-degree zero that isn't an entry point.
type DeadSymbol struct {
	Symbol        *model.Symbol
	OutgoingCalls int
	Severity      model.Severity
}

// FindDeadCode returns symbols with no incoming resolved call and no
// entry-point name, ordered by severity then by file path then by name for
// determinism.
func FindDeadCode(symbols []*model.Symbol, edges []*model.CallEdge, pathOf func(fileID string) string) []DeadSymbol {
	inDegree := make(map[string]int)
	outDegree := make(map[string]int)
	for _, e := range edges {
		if e.ToSymbolID != "" {
			inDegree[e.ToSymbolID]++
		}
		outDegree[e.FromSymbolID]++
	}

	var dead []DeadSymbol
	for _, s := range symbols {
		if inDegree[s.ID] > 0 {
			continue
		}
		if EntryPointNames[s.Name] {
			continue
		}
		dead = append(dead, DeadSymbol{
			Symbol:        s,
			OutgoingCalls: outDegree[s.ID],
			Severity:      DeadCodeSeverity(outDegree[s.ID]),
		})
	}

	severityRank := map[model.Severity]int{model.SeverityCritical: 0, model.SeverityHigh: 1, model.SeverityMedium: 2, model.SeverityLow: 3}
	sort.Slice(dead, func(i, j int) bool {
		if severityRank[dead[i].Severity] != severityRank[dead[j].Severity] {
			return severityRank[dead[i].Severity] < severityRank[dead[j].Severity]
		}
		pi, pj := pathOf(dead[i].Symbol.FileID), pathOf(dead[j].Symbol.FileID)
		if pi != pj {
			return pi < pj
		}
		return dead[i].Symbol.Name < dead[j].Symbol.Name
	})
	return dead
}

// Cycle is one strongly-connected component of size > 1 in the resolved
// call graph.
type Cycle struct {
	SymbolIDs []string
	Severity  model.Severity
}

// CycleSeverity buckets a cycle by the size of its strongly-connected
// component: size>=5 is critical, 3-4 is high, 2 (including a self-loop)
// is medium.
func CycleSeverity(size int) model.Severity {
	switch {
	case size >= 5:
		return model.SeverityCritical
	case size >= 3:
		return model.SeverityHigh
	default:
		return model.SeverityMedium
	}
}

// FindCycles runs Tarjan's SCC algorithm over the resolved call graph and
// returns every component with more than one member, each ordered by its
// lexicographically smallest member for determinism.
func FindCycles(edges []*model.CallEdge) []Cycle {
	adjacency := make(map[string][]string)
	for _, e := range edges {
		if e.ToSymbolID != "" {
			adjacency[e.FromSymbolID] = append(adjacency[e.FromSymbolID], e.ToSymbolID)
		}
	}

	sccs := tarjanSCC(adjacency)

	var cycles []Cycle
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		sort.Strings(scc)
		cycles = append(cycles, Cycle{SymbolIDs: scc, Severity: CycleSeverity(len(scc))})
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].SymbolIDs[0] < cycles[j].SymbolIDs[0] })
	return cycles
}

// tarjanSCC finds strongly connected components of a directed graph given
// as an adjacency list, the standard one-pass index/lowlink/stack
// algorithm.
func tarjanSCC(adjacency map[string][]string) [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var result [][]string

	nodes := make([]string, 0, len(adjacency))
	seen := make(map[string]bool)
	for n, neighbors := range adjacency {
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
		for _, m := range neighbors {
			if !seen[m] {
				seen[m] = true
				nodes = append(nodes, m)
			}
		}
	}
	sort.Strings(nodes)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, ok := indices[w]; !ok {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			result = append(result, component)
		}
	}

	for _, n := range nodes {
		if _, ok := indices[n]; !ok {
			strongConnect(n)
		}
	}
	return result
}
