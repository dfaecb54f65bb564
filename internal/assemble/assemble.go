// Package assemble groups foreign types into dependency units and writes
// the generated files into the package directory.
package assemble

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phobologic/starpugen/internal/config"
	"github.com/phobologic/starpugen/internal/filter"
	"github.com/phobologic/starpugen/internal/gen"
	"github.com/phobologic/starpugen/internal/model"
)

// LibcUnit is the unit publishing the C arithmetic types.
const LibcUnit = "libc"

// Units sorts the foreign keys into the dependency units of deps by the
// header declaring them. The first unit whose file patterns match wins.
// lookup returns the declaration of a key; keys it does not know are
// classified by an empty origin.
//
// The returned map gives the Go spelling of every foreign key: the alias
// published by its unit, or the cgo spelling when the unit is gated by a
// build tag or the alias name is taken.
func Units(emitted []model.Decl, foreign []string, lookup func(string) (*model.Decl, bool), deps []config.Dependency) ([]model.Unit, map[string]string, error) {
	matchers := make([]filter.Patterns, len(deps))
	for i, d := range deps {
		ps, err := filter.CompilePatterns(d.Files)
		if err != nil {
			return nil, nil, fmt.Errorf("dependency %s: %w", d.Name, err)
		}
		matchers[i] = ps
	}

	taken := make(map[string]bool)
	for _, sc := range gen.Scalars {
		taken[sc.Alias] = true
	}
	for i := range emitted {
		for _, n := range goNames(&emitted[i]) {
			taken[n] = true
		}
	}

	units := make([]model.Unit, len(deps))
	for i, d := range deps {
		units[i] = model.Unit{Name: d.Name, BuildTag: d.BuildTag, Scalars: d.Name == LibcUnit}
	}

	spelling := make(map[string]string, len(foreign))
	for _, key := range foreign {
		goName := gen.TypeName(key)
		if _, scalar := scalarNames[key]; scalar {
			continue
		}

		var origin string
		if d, ok := lookup(key); ok {
			origin = d.File
		}
		idx := -1
		for i, m := range matchers {
			if m.Match(origin) {
				idx = i
				break
			}
		}
		if idx < 0 || taken[goName] {
			spelling[key] = gen.CSpelling(key)
			continue
		}
		taken[goName] = true

		a := model.Alias{GoName: goName, CName: gen.CSpelling(key)}
		if origin != "" {
			a.Origin = filepath.Base(origin)
		}
		u := &units[idx]
		u.Aliases = append(u.Aliases, a)
		if u.BuildTag != "" {
			spelling[key] = gen.CSpelling(key)
			continue
		}
		spelling[key] = goName
	}

	out := units[:0]
	for _, u := range units {
		if len(u.Aliases) == 0 && !u.Scalars {
			continue
		}
		sort.Slice(u.Aliases, func(i, j int) bool { return u.Aliases[i].GoName < u.Aliases[j].GoName })
		out = append(out, u)
	}
	return out, spelling, nil
}

// scalarNames holds the C spellings the libc unit always publishes.
var scalarNames = func() map[string]struct{} {
	m := make(map[string]struct{}, len(gen.Scalars))
	for _, sc := range gen.Scalars {
		m[strings.TrimPrefix(sc.C, "C.")] = struct{}{}
	}
	return m
}()

// goNames lists the Go identifiers an emitted declaration may claim.
func goNames(d *model.Decl) []string {
	if d.Name == "" {
		return nil
	}
	names := []string{gen.Exported(d.Name)}
	if d.Kind == model.Enum {
		names = append(names, gen.Exported(d.Name)+"_Type")
		for _, e := range d.Enumerators {
			names = append(names, gen.Exported(e.Name))
		}
	}
	return names
}

// Write replaces the generated files in dir with artifacts. Every artifact
// is first written to a temporary file; only when all of them succeeded are
// they renamed into place and stale generated files removed. Files whose
// content is unchanged are left untouched.
func Write(dir string, artifacts []model.Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", model.ErrArtifactWrite, err)
	}

	type pending struct{ tmp, final string }
	var staged []pending
	cleanup := func() {
		for _, p := range staged {
			_ = os.Remove(p.tmp)
		}
	}

	keep := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if !strings.HasPrefix(a.Name, gen.Prefix) || filepath.Base(a.Name) != a.Name {
			cleanup()
			return fmt.Errorf("%w: invalid artifact name %q", model.ErrArtifactWrite, a.Name)
		}
		final := filepath.Join(dir, a.Name)
		keep[a.Name] = true
		if old, err := os.ReadFile(final); err == nil && bytes.Equal(old, a.Source) {
			continue
		}
		tmp, err := writeTemp(dir, a)
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: %s: %v", model.ErrArtifactWrite, a.Name, err)
		}
		staged = append(staged, pending{tmp: tmp, final: final})
	}

	for i, p := range staged {
		if err := os.Rename(p.tmp, p.final); err != nil {
			staged = staged[i:]
			cleanup()
			return fmt.Errorf("%w: %v", model.ErrArtifactWrite, err)
		}
	}

	stale, err := filepath.Glob(filepath.Join(dir, gen.Prefix+"*.go"))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrArtifactWrite, err)
	}
	for _, path := range stale {
		if keep[filepath.Base(path)] {
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("%w: removing stale %s: %v", model.ErrArtifactWrite, filepath.Base(path), err)
		}
	}
	return nil
}

func writeTemp(dir string, a model.Artifact) (string, error) {
	f, err := os.CreateTemp(dir, "."+a.Name+".*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(a.Source); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
