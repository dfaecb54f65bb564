// Package cpp runs the C preprocessor over the umbrella header and maps every
// line of its output back to the header it came from.
package cpp

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/phobologic/starpugen/internal/model"
)

// Runner executes an external tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Options configures one preprocessor invocation.
type Options struct {
	Compiler     string
	Header       string
	IncludePaths []string
	Args         []string
	// RetainComments keeps comments so declarations can carry their docs.
	RetainComments bool
}

// Define is an object-like macro definition found in the output.
type Define struct {
	Row  int
	Name string
	Body string
}

// Unit is preprocessed source with line markers and macro definitions
// removed.
type Unit struct {
	Source  []byte
	Defines []Define
	origins []string
	lines   []int
}

// Origin returns the header that produced the 0-based output row.
func (u *Unit) Origin(row int) string {
	if row < 0 || row >= len(u.origins) {
		return ""
	}
	return u.origins[row]
}

// Line returns the 1-based line within Origin(row) of the output row.
func (u *Unit) Line(row int) int {
	if row < 0 || row >= len(u.lines) {
		return 0
	}
	return u.lines[row]
}

// Args returns the compiler arguments for opts.
func Args(opts Options) []string {
	args := []string{"-E", "-dD"}
	if opts.RetainComments {
		args = append(args, "-C")
	}
	for _, inc := range opts.IncludePaths {
		args = append(args, "-isystem", inc)
	}
	args = append(args, opts.Args...)
	return append(args, "-x", "c", opts.Header)
}

// Preprocess runs the compiler in preprocess-only mode and splits the result.
func Preprocess(ctx context.Context, r Runner, opts Options) (*Unit, error) {
	out, err := r.Run(ctx, opts.Compiler, Args(opts)...)
	if err != nil {
		return nil, fmt.Errorf("%w: preprocessing %s: %v", model.ErrGenerationFailure, opts.Header, err)
	}
	return Split(out), nil
}

// lineMarker matches both the GNU `# N "file" flags` form and `#line N "file"`.
var lineMarker = regexp.MustCompile(`^#\s*(?:line\s+)?(\d+)\s+("(?:[^"\\]|\\.)*")`)

// defineRe matches a #define; a parenthesis right after the name marks a
// function-like macro.
var defineRe = regexp.MustCompile(`^#\s*define\s+([A-Za-z_][A-Za-z0-9_]*)(\(?)(.*)$`)

// dropped lists directives the parser has no use for.
var dropped = [][]byte{[]byte("#undef"), []byte("#pragma"), []byte("#ident"), []byte("#line")}

// Split removes line markers and directives from preprocessor output,
// replacing each with an empty line so rows keep their positions, and
// records the origin file of every row. Object-like macro definitions are
// collected into Defines. With -dD they may appear anywhere, including
// inside an enum body.
func Split(out []byte) *Unit {
	lines := bytes.Split(out, []byte("\n"))
	u := &Unit{
		origins: make([]string, len(lines)),
		lines:   make([]int, len(lines)),
	}

	var buf bytes.Buffer
	buf.Grow(len(out))
	current, next := "", 1
	for i, line := range lines {
		trimmed := bytes.TrimLeft(line, " \t")
		if m := lineMarker.FindSubmatch(trimmed); m != nil {
			n, _ := strconv.Atoi(string(m[1]))
			current, next = unquote(string(m[2])), n
			u.origins[i] = current
			line = nil
		} else {
			u.origins[i] = current
			u.lines[i] = next
			next++
			if m := defineRe.FindSubmatch(trimmed); m != nil {
				if len(m[2]) == 0 {
					u.Defines = append(u.Defines, Define{Row: i, Name: string(m[1]), Body: string(bytes.TrimSpace(m[3]))})
				}
				line = openComment(line)
			}
			for _, d := range dropped {
				if bytes.HasPrefix(trimmed, d) {
					line = nil
					break
				}
			}
		}
		buf.Write(line)
		if i < len(lines)-1 {
			buf.WriteByte('\n')
		}
	}
	u.Source = buf.Bytes()
	return u
}

// openComment keeps a block comment opened on a removed line open, so the
// rows that continue it still parse as a comment.
func openComment(line []byte) []byte {
	if bytes.LastIndex(line, []byte("/*")) > bytes.LastIndex(line, []byte("*/")) {
		return []byte("/*")
	}
	return nil
}

func unquote(s string) string {
	if v, err := strconv.Unquote(s); err == nil {
		return v
	}
	return s[1 : len(s)-1]
}
