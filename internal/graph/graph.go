// Package graph indexes declarations by key and follows their type
// references.
package graph

import (
	"sort"

	"github.com/phobologic/starpugen/internal/model"
)

// Graph is the reference graph of one translation unit.
type Graph struct {
	decls []model.Decl
	index map[string]int
	edges map[string][]string
}

// Build indexes decls by key. Only references to declared keys become edges.
func Build(decls []model.Decl) *Graph {
	g := &Graph{
		decls: decls,
		index: make(map[string]int, len(decls)),
		edges: make(map[string][]string, len(decls)),
	}
	for i := range decls {
		if decls[i].Name == "" {
			continue
		}
		if _, dup := g.index[decls[i].Key()]; !dup {
			g.index[decls[i].Key()] = i
		}
	}
	for i := range decls {
		d := &decls[i]
		if d.Name == "" {
			continue
		}
		key := d.Key()
		for _, ref := range d.Refs {
			if ref == key {
				continue // no self-edges
			}
			if _, ok := g.index[ref]; ok {
				g.edges[key] = append(g.edges[key], ref)
			}
		}
	}
	return g
}

// Lookup returns the declaration with the given key.
func (g *Graph) Lookup(key string) (*model.Decl, bool) {
	i, ok := g.index[key]
	if !ok {
		return nil, false
	}
	return &g.decls[i], true
}

// Refs returns the declared keys that key references directly.
func (g *Graph) Refs(key string) []string {
	return g.edges[key]
}

// Closure returns seeds plus every declared key reachable from them, sorted.
func (g *Graph) Closure(seeds []string) []string {
	seen := make(map[string]struct{}, len(seeds))
	stack := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		stack = append(stack, s)
	}
	for len(stack) > 0 {
		key := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ref := range g.Refs(key) {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			stack = append(stack, ref)
		}
	}
	return sortedKeys(seen)
}

// FileDeps aggregates reference edges between the headers that declare
// them. Each dependency lists the referenced type keys.
func FileDeps(decls []model.Decl) []model.Dependency {
	g := Build(decls)

	type edgeKey struct{ src, tgt string }
	edgeSymbols := make(map[edgeKey][]string)

	for i := range decls {
		d := &decls[i]
		for _, ref := range d.Refs {
			target, ok := g.Lookup(ref)
			if !ok || target.File == d.File {
				continue
			}
			key := edgeKey{d.File, target.File}
			if !contains(edgeSymbols[key], ref) {
				edgeSymbols[key] = append(edgeSymbols[key], ref)
			}
		}
	}

	deps := make([]model.Dependency, 0, len(edgeSymbols))
	for key, syms := range edgeSymbols {
		sort.Strings(syms)
		deps = append(deps, model.Dependency{Source: key.src, Target: key.tgt, Symbols: syms})
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		return deps[i].Target < deps[j].Target
	})
	return deps
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
