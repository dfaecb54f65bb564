// Package parse extracts top-level declarations from preprocessed headers
// using tree-sitter.
package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/starpugen/internal/cpp"
	"github.com/phobologic/starpugen/internal/lang"
	"github.com/phobologic/starpugen/internal/model"
)

var captureMap = map[string]model.Kind{
	"reference.struct": model.Struct,
	"reference.union":  model.Union,
	"reference.enum":   model.Enum,
	"reference.type":   model.Typedef,
}

// ExtractDecls parses a preprocessed unit and returns its top-level
// declarations in source order. Syntax errors are fatal only inside
// declarations whose origin satisfies strict; the others are never emitted.
func ExtractDecls(l *lang.Language, unit *cpp.Unit, strict func(origin string) bool) ([]model.Decl, error) {
	query, err := l.GetRefQuery()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrGenerationFailure, err)
	}
	parser := l.NewParser()
	tree, err := parser.ParseCtx(context.Background(), nil, unit.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing headers: %v", model.ErrGenerationFailure, err)
	}
	defer tree.Close()

	x := &extractor{
		language: l,
		source:   unit.Source,
		unit:     unit,
		query:    query,
	}
	root := tree.RootNode()

	var (
		doc       []string
		docEnd    = -1
		docOrigin string
		// comment groups by the row that follows them, for macros
		docBefore = make(map[int]string)
	)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		row := int(n.StartPoint().Row)
		origin := unit.Origin(row)

		if n.Type() == "comment" {
			if docEnd != row-1 || docOrigin != origin {
				doc = doc[:0]
			}
			doc = append(doc, lang.NodeText(n, x.source))
			docEnd, docOrigin = int(n.EndPoint().Row), origin
			docBefore[docEnd+1] = cleanDoc(doc)
			continue
		}

		if n.Type() == "ERROR" || n.HasError() {
			if strict(origin) {
				return nil, fmt.Errorf("%w: %s:%d: syntax error in %s",
					model.ErrGenerationFailure, origin, unit.Line(row), lang.CollapseWhitespace(firstLine(lang.NodeText(n, x.source))))
			}
			doc, docEnd = doc[:0], -1
			continue
		}

		x.doc = ""
		if len(doc) > 0 && docEnd == row-1 && docOrigin == origin {
			x.doc = cleanDoc(doc)
		}
		doc, docEnd = doc[:0], -1

		x.topLevel(n)
	}

	macros := x.macros(docBefore)
	return dedupe(merge(x.decls, x.rows, macros)), nil
}

type extractor struct {
	language *lang.Language
	source   []byte
	unit     *cpp.Unit
	query    *sitter.Query
	doc      string
	decls    []model.Decl
	rows     []int
}

func (x *extractor) text(n *sitter.Node) string {
	return lang.NodeText(n, x.source)
}

func (x *extractor) add(n *sitter.Node, d model.Decl) {
	row := int(n.StartPoint().Row)
	d.File = x.unit.Origin(row)
	d.Line = x.unit.Line(row)
	d.Doc = x.doc
	d.Refs = x.refs(n, d.Key())
	x.decls = append(x.decls, d)
	x.rows = append(x.rows, row)
	// A comment documents the first declaration that follows it.
	x.doc = ""
}

func (x *extractor) topLevel(n *sitter.Node) {
	switch n.Type() {
	case "struct_specifier", "union_specifier", "enum_specifier":
		x.specifier(n, n)
	case "declaration":
		x.declaration(n)
	case "type_definition":
		x.typeDefinition(n)
	}
}

type macroDecl struct {
	row  int
	decl model.Decl
}

// macros evaluates the unit's object-like macros in definition order.
func (x *extractor) macros(docBefore map[int]string) []macroDecl {
	if len(x.unit.Defines) == 0 {
		return nil
	}
	eval := newEvaluator(x.language.NewParser())
	out := make([]macroDecl, 0, len(x.unit.Defines))
	for _, def := range x.unit.Defines {
		d := model.Decl{
			Kind:  model.Macro,
			Name:  def.Name,
			File:  x.unit.Origin(def.Row),
			Line:  x.unit.Line(def.Row),
			Doc:   docBefore[def.Row],
			Macro: def.Body,
		}
		d.Value = eval.macro(def.Name, def.Body)
		out = append(out, macroDecl{row: def.Row, decl: d})
	}
	return out
}

// merge interleaves macros with the other declarations by row.
func merge(decls []model.Decl, rows []int, macros []macroDecl) []model.Decl {
	out := make([]model.Decl, 0, len(decls)+len(macros))
	i, j := 0, 0
	for i < len(decls) || j < len(macros) {
		if j == len(macros) || (i < len(decls) && rows[i] <= macros[j].row) {
			out = append(out, decls[i])
			i++
			continue
		}
		out = append(out, macros[j].decl)
		j++
	}
	return out
}

// dedupe keeps one declaration per key, at the position of its first
// appearance. A later definition replaces an earlier forward declaration.
func dedupe(decls []model.Decl) []model.Decl {
	index := make(map[string]int, len(decls))
	out := decls[:0]
	for _, d := range decls {
		if d.Name == "" {
			out = append(out, d)
			continue
		}
		key := d.Key()
		if i, ok := index[key]; ok {
			if d.Complete && !out[i].Complete {
				if d.Doc == "" {
					d.Doc = out[i].Doc
				}
				out[i] = d
			}
			continue
		}
		index[key] = len(out)
		out = append(out, d)
	}
	return out
}

var specifierKinds = map[string]model.Kind{
	"struct_specifier": model.Struct,
	"union_specifier":  model.Union,
	"enum_specifier":   model.Enum,
}

// specifier records a named struct, union or enum. at is the node whose
// position and references the declaration takes.
func (x *extractor) specifier(spec, at *sitter.Node) {
	kind, ok := specifierKinds[spec.Type()]
	if !ok {
		return
	}
	name := spec.ChildByFieldName("name")
	body := spec.ChildByFieldName("body")
	if name == nil {
		if kind == model.Enum && body != nil {
			x.add(at, model.Decl{Kind: model.Enum, Complete: true, Enumerators: x.enumerators(body)})
		}
		return
	}
	d := model.Decl{Kind: kind, Name: x.text(name), Complete: body != nil}
	if kind == model.Enum && body != nil {
		d.Enumerators = x.enumerators(body)
	}
	x.add(at, d)
}

func (x *extractor) enumerators(body *sitter.Node) []model.Enumerator {
	var out []model.Enumerator
	for i := 0; i < int(body.NamedChildCount()); i++ {
		e := body.NamedChild(i)
		if e.Type() != "enumerator" {
			continue
		}
		if name := e.ChildByFieldName("name"); name != nil {
			out = append(out, model.Enumerator{Name: x.text(name)})
		}
	}
	return out
}

func (x *extractor) declaration(n *sitter.Node) {
	typ := n.ChildByFieldName("type")
	if typ == nil {
		return
	}
	declarators := x.declarators(n, typ)
	if _, ok := specifierKinds[typ.Type()]; ok && typ.ChildByFieldName("body") != nil || len(declarators) == 0 {
		x.specifier(typ, n)
	}
	if hasChild(n, "storage_class_specifier", "static", x.source) {
		return
	}

	base := x.baseType(typ)
	for _, dn := range declarators {
		info := walkDeclarator(dn, x.source)
		if info.name == "" {
			continue
		}
		if info.params != nil {
			params, variadic := x.params(info.params)
			x.add(n, model.Decl{
				Kind:     model.Function,
				Name:     info.name,
				Params:   params,
				Variadic: variadic,
				Result:   info.ctype(base),
			})
			continue
		}
		x.add(n, model.Decl{Kind: model.Var, Name: info.name, Type: info.ctype(base)})
	}
}

func (x *extractor) typeDefinition(n *sitter.Node) {
	typ := n.ChildByFieldName("type")
	if typ == nil {
		return
	}
	declarators := x.declarators(n, typ)

	kind, isSpec := specifierKinds[typ.Type()]
	anonymous := isSpec && typ.ChildByFieldName("name") == nil
	if isSpec && !anonymous {
		x.specifier(typ, n)
	}

	base := x.baseType(typ)
	for _, dn := range declarators {
		info := walkDeclarator(dn, x.source)
		if info.name == "" {
			continue
		}
		if anonymous && info.ptrs == 0 && !info.array && info.params == nil && !info.funcPtr {
			d := model.Decl{Kind: kind, Name: info.name, Tagless: true, Complete: true}
			if body := typ.ChildByFieldName("body"); kind == model.Enum && body != nil {
				d.Enumerators = x.enumerators(body)
			}
			x.add(n, d)
			continue
		}
		t := info.ctype(base)
		if info.params != nil {
			t = model.CType{Func: true}
		}
		x.add(n, model.Decl{Kind: model.Typedef, Name: info.name, Type: t})
	}
}

// declarators returns the declarator children of a declaration or typedef.
func (x *extractor) declarators(n, typ *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() == typ.StartByte() && c.EndByte() == typ.EndByte() {
			continue
		}
		switch c.Type() {
		case "identifier", "type_identifier", "primitive_type",
			"pointer_declarator", "function_declarator", "array_declarator",
			"init_declarator", "parenthesized_declarator", "attributed_declarator":
			out = append(out, c)
		}
	}
	return out
}

func (x *extractor) params(list *sitter.Node) ([]model.Param, bool) {
	var (
		params   []model.Param
		variadic bool
	)
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		switch p.Type() {
		case "variadic_parameter":
			variadic = true
		case "parameter_declaration":
			typ := p.ChildByFieldName("type")
			if typ == nil {
				continue
			}
			base := x.baseType(typ)
			var info declInfo
			if dn := p.ChildByFieldName("declarator"); dn != nil {
				info = walkDeclarator(dn, x.source)
			}
			t := info.ctype(base)
			if t.Base == "void" && t.Pointers == 0 && !t.Func && info.name == "" {
				continue
			}
			params = append(params, model.Param{Name: info.name, Type: t})
		}
	}
	// `...` is an unnamed anonymous token in some grammar versions.
	if !variadic && strings.HasSuffix(strings.TrimRight(x.text(list), " \t\n)"), "...") {
		variadic = true
	}
	return params, variadic
}

// baseType spells the type specifier of a declaration without qualifiers.
func (x *extractor) baseType(typ *sitter.Node) string {
	switch typ.Type() {
	case "primitive_type", "sized_type_specifier", "type_identifier":
		return lang.CollapseWhitespace(x.text(typ))
	case "struct_specifier", "union_specifier", "enum_specifier":
		kind := specifierKinds[typ.Type()]
		if name := typ.ChildByFieldName("name"); name != nil {
			return string(kind) + " " + x.text(name)
		}
		return string(kind)
	}
	return ""
}

// refs runs the reference query over n and returns the keys of every type
// mentioned, excluding self.
func (x *extractor) refs(n *sitter.Node, self string) []string {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(x.query, n)

	seen := map[string]struct{}{self: {}}
	var out []string
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range match.Captures {
			kind, ok := captureMap[x.query.CaptureNameForId(c.Index)]
			if !ok {
				continue
			}
			if kind == model.Typedef && isTagName(c.Node) {
				continue
			}
			key := model.KeyOf(kind, x.text(c.Node))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}

func isTagName(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	_, ok := specifierKinds[p.Type()]
	return ok
}

func hasChild(n *sitter.Node, typ, text string, source []byte) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == typ && lang.NodeText(c, source) == text {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// cleanDoc strips comment markers from consecutive comments.
func cleanDoc(comments []string) string {
	var lines []string
	for _, c := range comments {
		c = strings.TrimSpace(c)
		switch {
		case strings.HasPrefix(c, "//"):
			lines = append(lines, strings.TrimSpace(strings.TrimLeft(c, "/!<")))
		case strings.HasPrefix(c, "/*"):
			c = strings.TrimSuffix(strings.TrimPrefix(c, "/*"), "*/")
			c = strings.TrimLeft(c, "*!<")
			for _, l := range strings.Split(c, "\n") {
				l = strings.TrimSpace(l)
				l = strings.TrimSpace(strings.TrimPrefix(l, "*"))
				lines = append(lines, l)
			}
		}
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
