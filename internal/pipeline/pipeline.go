// Package pipeline composes the locator, the binding generator and the
// artifact assembly into one generation run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/phobologic/starpugen/internal/assemble"
	"github.com/phobologic/starpugen/internal/config"
	"github.com/phobologic/starpugen/internal/cpp"
	"github.com/phobologic/starpugen/internal/discover"
	"github.com/phobologic/starpugen/internal/filter"
	"github.com/phobologic/starpugen/internal/gen"
	"github.com/phobologic/starpugen/internal/graph"
	"github.com/phobologic/starpugen/internal/lang"
	"github.com/phobologic/starpugen/internal/locate"
	"github.com/phobologic/starpugen/internal/model"
	"github.com/phobologic/starpugen/internal/parse"
	"github.com/phobologic/starpugen/internal/target"
)

// AutoHeader selects an umbrella header synthesized from the headers
// installed with the library.
const AutoHeader = "auto"

// AutoHeaderName is the file name of a synthesized umbrella header.
const AutoHeaderName = gen.Prefix + "auto.h"

// Options configures one run.
type Options struct {
	Config config.Config
	// Dir is the package directory. Relative headers and the ignore file
	// are looked up there.
	Dir    string
	Runner locate.Runner
	Target *target.Detector
	Log    zerolog.Logger
}

// Result is the outcome of a run.
type Result struct {
	Surface      *model.Surface
	Artifacts    []model.Artifact
	Dependencies []model.Dependency
	// DocsBuild is set when the run was skipped for a documentation build.
	DocsBuild bool
}

// Probe resolves the library and returns it with the linker fixups of the
// target.
func Probe(ctx context.Context, opts Options) (*model.Library, []string, error) {
	lib, err := resolve(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return lib, locate.LinkFixups(lib, opts.Target.Family()), nil
}

func resolve(ctx context.Context, opts Options) (*model.Library, error) {
	cfg := opts.Config
	req, err := locate.ParseRequirement(cfg.Library.Version)
	if err != nil {
		return nil, fmt.Errorf("locate: %w", err)
	}
	lib, err := locate.New(opts.Runner, opts.Log).Resolve(ctx, cfg.Library.Name, req)
	if err != nil {
		return nil, fmt.Errorf("locate: %w", err)
	}
	opts.Log.Info().
		Str("library", lib.Name).
		Str("version", lib.Version).
		Str("range", req.String()).
		Str("target", opts.Target.OS()).
		Str("family", opts.Target.Family()).
		Msg("resolved library")
	return lib, nil
}

// Build runs every step except writing and returns the generated files.
func Build(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	log := opts.Log

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	f, err := filter.Compile(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	lib, err := resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	var artifacts []model.Artifact
	header, include := cfg.Header, cfg.Header
	if cfg.Header == AutoHeader {
		umbrella, err := synthesize(lib, f, opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("discover: %w", err)
		}
		tmp, err := os.MkdirTemp("", "starpugen-")
		if err != nil {
			return nil, fmt.Errorf("discover: %w", err)
		}
		defer os.RemoveAll(tmp)
		header = filepath.Join(tmp, AutoHeaderName)
		if err := os.WriteFile(header, umbrella, 0o644); err != nil {
			return nil, fmt.Errorf("discover: %w", err)
		}
		include = AutoHeaderName
		artifacts = append(artifacts, model.Artifact{Name: AutoHeaderName, Source: umbrella})
	} else if !filepath.IsAbs(header) {
		header = filepath.Join(opts.Dir, header)
	}

	unit, err := cpp.Preprocess(ctx, opts.Runner, cpp.Options{
		Compiler:       cfg.Compiler,
		Header:         header,
		IncludePaths:   lib.IncludePaths,
		Args:           cfg.CPPArgs,
		RetainComments: cfg.Policy.RetainComments,
	})
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	decls, err := parse.ExtractDecls(lang.C, unit, f.FileAllowed)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	log.Debug().Int("declarations", len(decls)).Msg("parsed translation unit")

	sel := f.Select(decls)
	for _, key := range sel.Blocked {
		log.Debug().Str("symbol", key).Msg("blocked")
	}

	blocked := make(map[string]bool, len(sel.Blocked))
	for _, key := range sel.Blocked {
		blocked[key] = true
	}
	var foreign []string
	for _, key := range sel.Foreign {
		if !blocked[key] {
			foreign = append(foreign, key)
		}
	}

	g := graph.Build(decls)
	units, spelling, err := assemble.Units(sel.Decls, foreign, g.Lookup, cfg.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	surface := &model.Surface{
		Package: cfg.Package,
		Header:  include,
		Library: lib,
		Decls:   sel.Decls,
		Units:   units,
		Foreign: spelling,
	}

	primary, skipped, err := gen.Generate(surface, cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	surface.Skipped = skipped
	for _, sk := range skipped {
		log.Debug().Str("symbol", sk.Name).Str("kind", string(sk.Kind)).Str("reason", sk.Reason).Msg("skipped")
	}
	artifacts = append(artifacts, primary)

	for _, u := range units {
		art, err := gen.Unit(cfg.Package, include, u)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		artifacts = append(artifacts, art)
	}

	cppflags, ldflags := locate.CgoFlags(lib, opts.Target.Family())
	cgo, err := gen.Cgo(cfg.Package, lib, cppflags, ldflags)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	artifacts = append(artifacts, cgo)

	var deps []model.Dependency
	for _, d := range graph.FileDeps(decls) {
		if f.FileAllowed(d.Source) {
			deps = append(deps, d)
		}
	}

	log.Info().
		Int("symbols", len(sel.Decls)).
		Int("skipped", len(skipped)).
		Int("units", len(units)).
		Msg("generated bindings")

	return &Result{Surface: surface, Artifacts: artifacts, Dependencies: deps}, nil
}

// Run builds the bindings and writes them into the output directory. A
// documentation build skips everything.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config.DocsBuild {
		opts.Log.Info().Msg("documentation build, skipping binding generation")
		return &Result{DocsBuild: true}, nil
	}
	res, err := Build(ctx, opts)
	if err != nil {
		return nil, err
	}

	out := opts.Config.OutputDir
	if !filepath.IsAbs(out) {
		out = filepath.Join(opts.Dir, out)
	}
	if err := assemble.Write(out, res.Artifacts); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	opts.Log.Info().Str("dir", out).Int("files", len(res.Artifacts)).Msg("wrote bindings")
	return res, nil
}

// synthesize builds an umbrella header from the allowed headers found in
// the include directories of lib.
func synthesize(lib *model.Library, f *filter.Filter, dir string) ([]byte, error) {
	gi, err := discover.LoadIgnore(dir)
	if err != nil {
		return nil, err
	}
	var headers []discover.Header
	seen := make(map[string]bool)
	for _, inc := range lib.IncludePaths {
		found, err := discover.Headers(inc, gi)
		if err != nil {
			return nil, err
		}
		for _, h := range found {
			if !f.FileAllowed(h.Abs) || seen[h.Path] {
				continue
			}
			seen[h.Path] = true
			headers = append(headers, h)
		}
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no headers of %s found in %v", model.ErrGenerationFailure, lib.Name, lib.IncludePaths)
	}
	return discover.Umbrella(headers), nil
}
