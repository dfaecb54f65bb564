// Package filter applies the allow and block lists that decide which
// declarations become Go symbols.
package filter

import (
	"fmt"
	"regexp"
	"slices"
	"sort"

	"github.com/phobologic/starpugen/internal/config"
	"github.com/phobologic/starpugen/internal/graph"
	"github.com/phobologic/starpugen/internal/model"
)

// Patterns matches a name against any of a list of anchored regexps.
type Patterns []*regexp.Regexp

// CompilePatterns anchors and compiles every pattern of list.
func CompilePatterns(list []string) (Patterns, error) {
	out := make(Patterns, 0, len(list))
	for _, p := range list {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Match reports whether s matches any pattern.
func (ps Patterns) Match(s string) bool {
	for _, re := range ps {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Filter is a compiled config.Policy.
type Filter struct {
	allowFiles, allowTypes, allowFunctions, allowVars Patterns
	blockFiles, blockTypes, blockFunctions, blockVars Patterns
	recursive                                         bool
	allowAll                                          bool
}

// Compile compiles every pattern of p.
func Compile(p config.Policy) (*Filter, error) {
	f := &Filter{recursive: p.AllowRecursively}
	lists := []struct {
		dst *Patterns
		src []string
	}{
		{&f.allowFiles, p.AllowFiles},
		{&f.allowTypes, p.AllowTypes},
		{&f.allowFunctions, p.AllowFunctions},
		{&f.allowVars, p.AllowVars},
		{&f.blockFiles, p.BlockFiles},
		{&f.blockTypes, p.BlockTypes},
		{&f.blockFunctions, p.BlockFunctions},
		{&f.blockVars, p.BlockVars},
	}
	for _, l := range lists {
		ps, err := CompilePatterns(l.src)
		if err != nil {
			return nil, err
		}
		*l.dst = ps
	}
	f.allowAll = len(f.allowFiles)+len(f.allowTypes)+len(f.allowFunctions)+len(f.allowVars) == 0
	return f, nil
}

// FileAllowed reports whether declarations from origin are emitted on
// their own account.
func (f *Filter) FileAllowed(origin string) bool {
	if f.blockFiles.Match(origin) {
		return false
	}
	return f.allowAll || f.allowFiles.Match(origin)
}

// Blocked reports whether d must never be emitted.
func (f *Filter) Blocked(d *model.Decl) bool {
	if f.blockFiles.Match(d.File) {
		return true
	}
	if d.Name == "" {
		return false
	}
	switch {
	case d.Kind.IsType():
		return f.blockTypes.Match(d.Name)
	case d.Kind == model.Function:
		return f.blockFunctions.Match(d.Name)
	default:
		return f.blockVars.Match(d.Name)
	}
}

// Allowed reports whether d is selected directly, by its origin or by name.
func (f *Filter) Allowed(d *model.Decl) bool {
	if f.Blocked(d) {
		return false
	}
	if f.allowAll || f.allowFiles.Match(d.File) {
		return true
	}
	if d.Name == "" {
		return false
	}
	switch {
	case d.Kind.IsType():
		return f.allowTypes.Match(d.Name)
	case d.Kind == model.Function:
		return f.allowFunctions.Match(d.Name)
	default:
		return f.allowVars.Match(d.Name)
	}
}

// Selection is the outcome of filtering one translation unit.
type Selection struct {
	// Decls are the emitted declarations in source order.
	Decls []model.Decl
	// Foreign holds the sorted keys referenced by Decls but not emitted.
	Foreign []string
	// Blocked holds the sorted keys removed by a block list.
	Blocked []string
}

// Select applies f to decls. Declarations referenced by allowed ones are
// pulled in only when recursive allow-listing is enabled.
func (f *Filter) Select(decls []model.Decl) Selection {
	g := graph.Build(decls)

	emit := make(map[string]struct{})
	var blocked []string
	var seeds []string
	for i := range decls {
		d := &decls[i]
		if f.Blocked(d) {
			if d.Name != "" {
				blocked = append(blocked, d.Key())
			}
			continue
		}
		if f.Allowed(d) && d.Name != "" {
			seeds = append(seeds, d.Key())
		}
	}
	if f.recursive {
		seeds = g.Closure(seeds)
	}
	for _, key := range seeds {
		if d, ok := g.Lookup(key); ok && !f.Blocked(d) {
			emit[key] = struct{}{}
		}
	}

	var sel Selection
	foreign := make(map[string]struct{})
	for i := range decls {
		d := &decls[i]
		if d.Name == "" {
			if !f.Allowed(d) {
				continue
			}
		} else if _, ok := emit[d.Key()]; !ok {
			continue
		}
		sel.Decls = append(sel.Decls, *d)
		for _, ref := range d.Refs {
			if _, ok := emit[ref]; !ok {
				foreign[ref] = struct{}{}
			}
		}
	}
	for k := range foreign {
		sel.Foreign = append(sel.Foreign, k)
	}
	sort.Strings(sel.Foreign)
	sort.Strings(blocked)
	sel.Blocked = slices.Compact(blocked)
	return sel
}
