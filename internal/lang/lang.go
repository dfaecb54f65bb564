// Package lang provides the tree-sitter C language used to read headers and
// its embedded query files.
package lang

import (
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

//go:embed queries/*.scm
var queryFS embed.FS

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a header language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
	queryOnce  sync.Once
	query      *sitter.Query
	queryErr   error
}

// C is the language of the headers starpugen binds.
var C = &Language{
	Name:       "c",
	Extensions: []string{".h"},
	lang:       c.GetLanguage(),
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// GetRefQuery returns the compiled type-reference query (safe to share
// across goroutines).
func (l *Language) GetRefQuery() (*sitter.Query, error) {
	l.queryOnce.Do(func() {
		data, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.scm", l.Name))
		if err != nil {
			l.queryErr = fmt.Errorf("reading query file: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, l.lang)
		if err != nil {
			l.queryErr = fmt.Errorf("compiling query: %w", err)
			return
		}
		l.query = q
	})
	return l.query, l.queryErr
}

// IsHeader reports whether path has a header extension of l.
func (l *Language) IsHeader(path string) bool {
	for _, ext := range l.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
