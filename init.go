package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/starpugen/internal/config"
)

const (
	sentinelStart = "// starpugen:start"
	sentinelEnd   = "// starpugen:end"

	generateFile = "generate.go"
	wrapperBody  = "#include <starpu.h>\n"
)

func (a *app) newInitCmd() *cobra.Command {
	var (
		dryRun bool
		pkg    string
	)
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a package for generated bindings",
		Long: `Write an umbrella header, a configuration file with the default binding
policy and a go:generate directive into dir (default --dir).

The directive is wrapped in sentinel comments inside ` + generateFile + ` so it can be
updated in place on subsequent runs without touching surrounding content.
Existing headers and configuration files are left alone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.dir
			if len(args) > 0 {
				dir = args[0]
			}
			return a.runInit(dir, pkg, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying any file")
	cmd.Flags().StringVar(&pkg, "package", "", "package name (default: the directory name)")
	return cmd
}

// runInit implements `starpugen init`.
func (a *app) runInit(dir, pkg string, dryRun bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving dir: %w", err)
	}
	if pkg == "" {
		pkg = packageName(abs)
	}

	cfg := config.Default()
	cfg.Package = pkg
	cfgBody, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	genPath := filepath.Join(dir, generateFile)
	existing, err := os.ReadFile(genPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", genPath, err)
	}
	updated := applySection(string(existing), pkg, generateSection())

	files := []struct {
		path      string
		body      string
		overwrite bool
	}{
		{filepath.Join(dir, cfg.Header), wrapperBody, false},
		{filepath.Join(dir, config.FileNames[0]), string(cfgBody), false},
		{genPath, updated, true},
	}

	if dryRun {
		for _, f := range files {
			_, _ = fmt.Fprintf(a.stdout, "==> %s <==\n%s\n", f.path, f.body)
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for _, f := range files {
		if !f.overwrite {
			if _, err := os.Stat(f.path); err == nil {
				_, _ = fmt.Fprintf(a.stderr, "kept existing %s\n", f.path)
				continue
			}
		}
		if err := os.WriteFile(f.path, []byte(f.body), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		_, _ = fmt.Fprintf(a.stderr, "wrote %s\n", f.path)
	}
	return nil
}

// generateSection returns the sentinel-wrapped go:generate block.
func generateSection() string {
	body := `//
// Bindings are regenerated from the installed StarPU. Set
// STARPUGEN_DOCS_BUILD=1 to skip generation when no StarPU is available.
//
//go:generate go run github.com/phobologic/starpugen`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into the Go source content, replacing an
// existing sentinel block if present or appending if not. Empty content
// becomes a file of package pkg.
func applySection(content, pkg, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if strings.TrimSpace(content) == "" {
		return "package " + pkg + "\n\n" + section + "\n"
	}

	// Append, ensuring a blank line separator.
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}

// packageName derives a Go package name from a directory.
func packageName(dir string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, filepath.Base(dir))
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return "starpu"
	}
	return name
}
