// Package discover finds the public headers of an installed library and
// synthesizes an umbrella header including all of them.
package discover

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/starpugen/internal/lang"
)

// IgnoreFile lists header paths, relative to an include directory, left out
// of a synthesized umbrella. It uses gitignore syntax.
const IgnoreFile = ".starpugenignore"

// Header is a discovered header file.
type Header struct {
	// Path is relative to the include directory it was found in, with
	// forward slashes, as written in an #include.
	Path string
	// Abs is the absolute file path.
	Abs string
}

var skipDirs = map[string]struct{}{
	"internal": {},
	"private":  {},
	"detail":   {},
}

// Headers discovers C headers under root. Hidden files and directories,
// symlinks, private subdirectories and paths matched by gi are skipped.
func Headers(root string, gi *ignore.GitIgnore) ([]Header, error) {
	var results []Header

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		if !lang.C.IsHeader(name) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		results = append(results, Header{Path: rel, Abs: path})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// LoadIgnore compiles the ignore file in dir. It returns nil when there is
// none.
func LoadIgnore(dir string) (*ignore.GitIgnore, error) {
	path := filepath.Join(dir, IgnoreFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return gi, nil
}

// Umbrella returns a header including every one of headers.
func Umbrella(headers []Header) []byte {
	var b bytes.Buffer
	b.WriteString("/* Code generated by starpugen. DO NOT EDIT. */\n\n")
	for _, h := range headers {
		fmt.Fprintf(&b, "#include <%s>\n", h.Path)
	}
	return b.Bytes()
}
