// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/starpugen/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeLibrary converts a resolved library and its linker fixups into TOON
// format.
func EncodeLibrary(lib *model.Library, fixups []string) string {
	parts := []string{
		fmt.Sprintf("library: %s", encodeValue(lib.Name)),
		fmt.Sprintf("version: %s", encodeValue(lib.Version)),
		formatList("include_paths", lib.IncludePaths),
		formatList("link_paths", lib.LinkPaths),
		formatList("libs", lib.Libs),
		formatList("link_fixups", fixups),
	}
	return strings.Join(parts, "\n")
}

// EncodeSurface converts a binding surface and the header dependencies of
// its declarations into TOON format.
func EncodeSurface(s *model.Surface, deps []model.Dependency) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("package: %s", encodeValue(s.Package)))
	parts = append(parts, fmt.Sprintf("header: %s", encodeValue(s.Header)))
	if s.Library != nil {
		parts = append(parts, fmt.Sprintf("library: %s", encodeValue(s.Library.Name)))
		parts = append(parts, fmt.Sprintf("version: %s", encodeValue(s.Library.Version)))
	}

	var symbolRows [][]string
	for i := range s.Decls {
		d := &s.Decls[i]
		symbolRows = append(symbolRows, []string{
			d.File,
			d.Name,
			string(d.Kind),
			fmt.Sprintf("%d", d.Line),
		})
	}
	parts = append(parts, formatTabular("symbols", []string{"file", "name", "kind", "line"}, symbolRows))

	var aliasRows [][]string
	for i := range s.Units {
		u := &s.Units[i]
		for _, a := range u.Aliases {
			aliasRows = append(aliasRows, []string{u.Name, u.BuildTag, a.GoName, a.CName, a.Origin})
		}
	}
	parts = append(parts, formatTabular("aliases", []string{"unit", "build_tag", "go_name", "c_name", "origin"}, aliasRows))

	var skipRows [][]string
	for i := range s.Skipped {
		sk := &s.Skipped[i]
		skipRows = append(skipRows, []string{sk.Name, string(sk.Kind), sk.Reason})
	}
	parts = append(parts, formatTabular("skipped", []string{"name", "kind", "reason"}, skipRows))

	var depRows [][]string
	for i := range deps {
		d := &deps[i]
		depRows = append(depRows, []string{
			d.Source,
			d.Target,
			strings.Join(d.Symbols, " "),
		})
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target", "symbols"}, depRows))

	return strings.Join(parts, "\n")
}

func formatList(name string, values []string) string {
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = encodeValue(v)
	}
	if len(encoded) == 0 {
		return fmt.Sprintf("%s[0]:", name)
	}
	return fmt.Sprintf("%s[%d]: %s", name, len(values), strings.Join(encoded, ","))
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
