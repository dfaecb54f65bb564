// Package locate finds an installed native library through pkg-config and
// computes the compiler and linker flags needed to bind against it.
package locate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/phobologic/starpugen/internal/model"
	"github.com/phobologic/starpugen/internal/target"
)

// Runner executes an external tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// Run implements Runner. Standard error is folded into the returned error.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Locator queries pkg-config.
type Locator struct {
	Runner Runner
	// Tool is the pkg-config binary. Defaults to $PKG_CONFIG or "pkg-config".
	Tool string
	Log  zerolog.Logger
}

// New returns a Locator using runner.
func New(runner Runner, log zerolog.Logger) *Locator {
	tool := os.Getenv("PKG_CONFIG")
	if tool == "" {
		tool = "pkg-config"
	}
	return &Locator{Runner: runner, Tool: tool, Log: log}
}

// Resolve finds the package name whose version satisfies req. Failure is not
// retried: the set of installed packages does not change during a build.
func (l *Locator) Resolve(ctx context.Context, name string, req VersionRequirement) (*model.Library, error) {
	out, err := l.Runner.Run(ctx, l.Tool, "--modversion", name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", model.ErrDependencyNotFound, name, req, err)
	}
	version := strings.TrimSpace(string(out))
	if !req.Contains(version) {
		return nil, fmt.Errorf("%w: %s %s: installed version %s is out of range",
			model.ErrDependencyNotFound, name, req, version)
	}
	l.Log.Debug().Str("package", name).Str("version", version).Msg("found package")

	lib := &model.Library{Name: name, Version: version}

	includes, err := l.query(ctx, name, req, "--cflags-only-I")
	if err != nil {
		return nil, err
	}
	lib.IncludePaths = trimFlag(includes, "-I")

	dirs, err := l.query(ctx, name, req, "--libs-only-L")
	if err != nil {
		return nil, err
	}
	lib.LinkPaths = trimFlag(dirs, "-L")
	for _, p := range lib.LinkPaths {
		if !utf8.ValidString(p) {
			return nil, fmt.Errorf("%w: %q", model.ErrMalformedLinkPath, p)
		}
	}

	libs, err := l.query(ctx, name, req, "--libs-only-l")
	if err != nil {
		return nil, err
	}
	lib.Libs = trimFlag(libs, "-l")

	return lib, nil
}

func (l *Locator) query(ctx context.Context, name string, req VersionRequirement, flag string) ([]string, error) {
	out, err := l.Runner.Run(ctx, l.Tool, flag, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %s: %v", model.ErrDependencyNotFound, name, req, flag, err)
	}
	return splitFlags(string(out))
}

func trimFlag(args []string, prefix string) []string {
	var out []string
	for _, a := range args {
		if v := strings.TrimPrefix(a, prefix); v != a && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// splitFlags splits pkg-config output into arguments. pkg-config escapes
// spaces and shell metacharacters with a backslash and may emit quoted
// strings from .pc files.
func splitFlags(s string) ([]string, error) {
	var (
		args  []string
		cur   []byte
		inArg bool
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
				continue
			}
			if c == '\\' && quote == '"' && i+1 < len(s) {
				i++
				c = s[i]
			}
			cur = append(cur, c)
		case c == '\\':
			if i+1 < len(s) {
				i++
				cur = append(cur, s[i])
				inArg = true
			}
		case c == '\'' || c == '"':
			quote = c
			inArg = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inArg {
				args = append(args, string(cur))
				cur = cur[:0]
				inArg = false
			}
		default:
			cur = append(cur, c)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote in pkg-config output")
	}
	if inArg {
		args = append(args, string(cur))
	}
	return args, nil
}

// LinkFixups returns one rpath linker argument per link directory of lib
// when families contains "unix". pkg-config reports the library's own
// location but not rpaths for its transitive native dependencies, so
// dynamically linked binaries would build and then fail to load them.
func LinkFixups(lib *model.Library, families string) []string {
	if !target.HasFamily(families, "unix") {
		return nil
	}
	out := make([]string, 0, len(lib.LinkPaths))
	for _, p := range lib.LinkPaths {
		out = append(out, "-Wl,-rpath,"+p)
	}
	return out
}

// CgoFlags returns the CPPFLAGS and LDFLAGS for a #cgo directive.
func CgoFlags(lib *model.Library, families string) (cppflags, ldflags []string) {
	for _, p := range lib.IncludePaths {
		cppflags = append(cppflags, "-I"+p)
	}
	for _, p := range lib.LinkPaths {
		ldflags = append(ldflags, "-L"+p)
	}
	for _, l := range lib.Libs {
		ldflags = append(ldflags, "-l"+l)
	}
	ldflags = append(ldflags, LinkFixups(lib, families)...)
	return cppflags, ldflags
}
