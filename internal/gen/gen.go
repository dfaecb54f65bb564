// Package gen renders the binding surface as cgo source files.
package gen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/starpugen/internal/config"
	"github.com/phobologic/starpugen/internal/model"
)

// File names of the generated artifacts. Every generated file carries the
// prefix so stale ones can be found.
const (
	Prefix      = "zstarpu_"
	PrimaryName = Prefix + "bindings.go"
	CgoName     = Prefix + "cgo.go"
)

// UnitName returns the file name of a dependency unit.
func UnitName(unit string) string {
	return Prefix + unit + ".go"
}

var errUnsupported = errors.New("unsupported type")

// Generate renders the primary artifact: aliases, constants, wrappers and
// helpers for every declaration of s. Declarations that cannot be expressed
// are returned as skipped.
func Generate(s *model.Surface, p config.Policy) (model.Artifact, []model.Skipped, error) {
	g := &generator{
		surface:   s,
		policy:    p,
		names:     make(map[string]string),
		used:      make(map[string]string),
		intMacros: make(map[string]string),
		module:    make(map[string]bool, len(p.ModuleConstsEnums)),
	}
	for _, e := range p.ModuleConstsEnums {
		g.module[e] = true
	}
	g.claimNames()

	for i := range s.Decls {
		d := &s.Decls[i]
		if g.skip[i] {
			continue
		}
		var err error
		switch d.Kind {
		case model.Struct, model.Union:
			g.record(d)
		case model.Enum:
			g.enum(d)
		case model.Typedef:
			g.typedef(d)
		case model.Function:
			err = g.function(d)
		case model.Var:
			err = g.variable(d)
		case model.Macro:
			err = g.macro(d)
		}
		if err != nil {
			g.skipped = append(g.skipped, model.Skipped{Name: d.Name, Kind: d.Kind, Reason: err.Error()})
		}
	}

	var out bytes.Buffer
	writeHeader(&out, s.Package, s.Header, "")
	var imports []string
	if uses(g.body.Bytes(), "fmt.Sprintf(") {
		imports = append(imports, `"fmt"`)
	}
	if uses(g.body.Bytes(), "unsafe.Pointer") {
		imports = append(imports, `"unsafe"`)
	}
	if len(imports) > 0 {
		fmt.Fprintf(&out, "import (\n\t%s\n)\n\n", strings.Join(imports, "\n\t"))
	}
	out.Write(g.body.Bytes())

	src, err := format.Source(out.Bytes())
	if err != nil {
		return model.Artifact{}, nil, fmt.Errorf("%w: formatting %s: %v", model.ErrGenerationFailure, PrimaryName, err)
	}
	return model.Artifact{Name: PrimaryName, Source: src}, g.skipped, nil
}

type generator struct {
	surface *model.Surface
	policy  config.Policy

	// names maps emitted type keys to their Go names.
	names map[string]string
	// used maps claimed Go identifiers to the key that owns them.
	used map[string]string
	skip map[int]bool
	// intMacros maps integer macros to their Go constant, for array lengths.
	intMacros map[string]string
	module    map[string]bool

	skipped []model.Skipped
	body    bytes.Buffer
}

// claimNames reserves the Go identifiers of every declaration in source
// order. A declaration whose identifier is already taken is skipped.
func (g *generator) claimNames() {
	g.skip = make(map[int]bool)
	for _, sc := range Scalars {
		g.used[sc.Alias] = "scalar " + sc.C
	}
	for key, goName := range g.surface.Foreign {
		if !strings.HasPrefix(goName, "C.") {
			g.used[goName] = key
		}
	}

	for i := range g.surface.Decls {
		d := &g.surface.Decls[i]
		if d.Kind == model.Typedef {
			if err := typedefErr(d); err != nil {
				g.skip[i] = true
				g.skipped = append(g.skipped, model.Skipped{Name: d.Name, Kind: d.Kind, Reason: err.Error()})
				continue
			}
		}
		idents := g.identifiers(d)
		var clash string
		for _, id := range idents {
			if owner, ok := g.used[id]; ok {
				clash = fmt.Sprintf("duplicate Go name %s (%s)", id, owner)
				break
			}
		}
		if clash != "" {
			g.skip[i] = true
			g.skipped = append(g.skipped, model.Skipped{Name: d.Name, Kind: d.Kind, Reason: clash})
			continue
		}
		for _, id := range idents {
			g.used[id] = d.Key()
		}
		if d.Kind.IsType() && d.Name != "" {
			g.names[d.Key()] = g.typeName(d)
		}
		if d.Kind == model.Macro && d.Value != nil && d.Value.Kind == model.IntConst {
			g.intMacros[d.Name] = Exported(d.Name)
		}
	}
}

// identifiers lists the package-level Go names a declaration defines.
func (g *generator) identifiers(d *model.Decl) []string {
	var ids []string
	switch d.Kind {
	case model.Struct, model.Union:
		t := g.typeName(d)
		ids = append(ids, t)
		if d.Complete {
			ids = append(ids, g.deriveNames(t)...)
		}
	case model.Enum:
		if d.Name != "" {
			ids = append(ids, g.typeName(d))
			if g.moduleConsts(d) {
				ids = append(ids, Exported(d.Name))
				break
			}
		}
		for _, e := range d.Enumerators {
			ids = append(ids, g.enumeratorName(d, e))
		}
	case model.Macro:
		if d.Value != nil {
			ids = append(ids, Exported(d.Name))
		}
	default:
		ids = append(ids, Exported(d.Name))
	}
	return ids
}

func (g *generator) typeName(d *model.Decl) string {
	if d.Kind == model.Enum && g.moduleConsts(d) {
		return Exported(d.Name) + "_Type"
	}
	return Exported(d.Name)
}

func (g *generator) moduleConsts(d *model.Decl) bool {
	if d.Name == "" {
		return false
	}
	return g.policy.EnumStyle == config.EnumModuleConsts || g.module[d.Name]
}

func (g *generator) enumeratorName(d *model.Decl, e model.Enumerator) string {
	if g.policy.PrependEnumName && d.Name != "" {
		return Exported(d.Name) + "_" + e.Name
	}
	return Exported(e.Name)
}

func (g *generator) deriveNames(t string) []string {
	var out []string
	dv := g.policy.Derive
	if dv.Default {
		out = append(out, "Default"+t)
	}
	if dv.Copy {
		out = append(out, "Copy"+t)
	}
	if dv.Debug {
		out = append(out, "Debug"+t)
	}
	if dv.PartialEq {
		out = append(out, "Equal"+t)
	}
	return out
}

func (g *generator) doc(d *model.Decl) {
	if !g.policy.RetainComments || d.Doc == "" {
		return
	}
	for _, line := range strings.Split(d.Doc, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			g.body.WriteString("//\n")
			continue
		}
		g.body.WriteString("// " + line + "\n")
	}
}

func (g *generator) printf(format string, args ...any) {
	fmt.Fprintf(&g.body, format, args...)
}

func (g *generator) record(d *model.Decl) {
	t := g.names[d.Key()]
	g.doc(d)
	g.printf("type %s = %s\n\n", t, cSpellingOf(d))
	if !d.Complete {
		return
	}
	dv := g.policy.Derive
	if dv.Default {
		g.printf("// Default%[1]s returns a zero-initialized %[1]s.\nfunc Default%[1]s() %[1]s { return %[1]s{} }\n\n", t)
	}
	if dv.Copy {
		g.printf("// Copy%[1]s copies src into dst.\nfunc Copy%[1]s(dst, src *%[1]s) { *dst = *src }\n\n", t)
	}
	if dv.Debug {
		g.printf("// Debug%[1]s formats v with its field names.\nfunc Debug%[1]s(v *%[1]s) string { return fmt.Sprintf(\"%%+v\", *v) }\n\n", t)
	}
	if dv.PartialEq {
		g.printf("// Equal%[1]s reports whether a and b hold the same field values.\nfunc Equal%[1]s(a, b *%[1]s) bool { return *a == *b }\n\n", t)
	}
}

func (g *generator) enum(d *model.Decl) {
	if d.Name == "" {
		g.doc(d)
		g.printf("const (\n")
		for _, e := range d.Enumerators {
			g.printf("\t%s = C.%s\n", g.enumeratorName(d, e), e.Name)
		}
		g.printf(")\n\n")
		return
	}

	t := g.names[d.Key()]
	if g.moduleConsts(d) {
		ns := Exported(d.Name)
		g.printf("// %s is the type of the %s constants.\ntype %s = %s\n\n", t, ns, t, cSpellingOf(d))
		g.doc(d)
		if d.Doc == "" || !g.policy.RetainComments {
			g.printf("// %s holds the constants of %s.\n", ns, d.Key())
		}
		g.printf("var %s = struct {\n", ns)
		for _, e := range d.Enumerators {
			g.printf("\t%s %s\n", Exported(e.Name), t)
		}
		g.printf("}{\n")
		for _, e := range d.Enumerators {
			g.printf("\t%s: C.%s,\n", Exported(e.Name), e.Name)
		}
		g.printf("}\n\n")
		return
	}

	g.doc(d)
	g.printf("type %s = %s\n\n", t, cSpellingOf(d))
	if len(d.Enumerators) == 0 {
		return
	}
	g.printf("const (\n")
	for _, e := range d.Enumerators {
		g.printf("\t%s %s = C.%s\n", g.enumeratorName(d, e), t, e.Name)
	}
	g.printf(")\n\n")
}

// typedefErr reports typedefs cgo cannot alias.
func typedefErr(d *model.Decl) error {
	if d.Type.Func || d.Type.Pointers > 0 || d.Type.Array {
		return nil
	}
	if d.Type.Base == "void" {
		return fmt.Errorf("%w void", errUnsupported)
	}
	if _, ok, supported := scalar(d.Type.Base); ok && !supported {
		return fmt.Errorf("%w %s", errUnsupported, d.Type.Base)
	}
	return nil
}

func (g *generator) typedef(d *model.Decl) {
	g.doc(d)
	g.printf("type %s = %s\n\n", g.names[d.Key()], cSpellingOf(d))
}

func (g *generator) function(d *model.Decl) error {
	if d.Variadic {
		return errors.New("variadic function")
	}
	result, err := g.goType(d.Result, false)
	if err != nil {
		return err
	}

	params := make([]string, 0, len(d.Params))
	args := make([]string, 0, len(d.Params))
	for i, p := range d.Params {
		if isVaList(p.Type) {
			return errors.New("va_list parameter")
		}
		name := paramName(p.Name, i)
		typ, err := g.goType(p.Type, true)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
		params = append(params, name+" "+typ)
		if p.Type.Array && strings.HasPrefix(typ, "*[") {
			elem, _ := g.goType(model.CType{Base: p.Type.Base, Pointers: p.Type.Pointers}, false)
			args = append(args, fmt.Sprintf("(*%s)(unsafe.Pointer(%s))", elem, name))
			continue
		}
		args = append(args, name)
	}

	g.doc(d)
	call := fmt.Sprintf("C.%s(%s)", d.Name, strings.Join(args, ", "))
	if result == "" {
		g.printf("func %s(%s) {\n\t%s\n}\n\n", Exported(d.Name), strings.Join(params, ", "), call)
		return nil
	}
	g.printf("func %s(%s) %s {\n\treturn %s\n}\n\n", Exported(d.Name), strings.Join(params, ", "), result, call)
	return nil
}

func (g *generator) variable(d *model.Decl) error {
	if d.Type.Array {
		return errors.New("array variable")
	}
	typ, err := g.goType(d.Type, false)
	if err != nil {
		return err
	}
	if typ == "" {
		return fmt.Errorf("%w void", errUnsupported)
	}
	g.doc(d)
	if !g.policy.RetainComments || d.Doc == "" {
		g.printf("// %s returns the address of the C variable %s.\n", Exported(d.Name), d.Name)
	}
	g.printf("func %s() *%s { return &C.%s }\n\n", Exported(d.Name), typ, d.Name)
	return nil
}

func (g *generator) macro(d *model.Decl) error {
	v := d.Value
	if v == nil {
		return errors.New("not a constant expression")
	}
	name := Exported(d.Name)
	g.doc(d)
	switch v.Kind {
	case model.IntConst:
		g.printf("const %s = %s\n\n", name, v.Int.String())
	case model.FloatConst:
		g.printf("const %s = %s\n\n", name, v.Float)
	case model.StringConst:
		if g.policy.GenerateCStr {
			g.printf("const %s = %s\n\n", name, strconv.Quote(string(v.Str)))
			break
		}
		elems := make([]string, 0, len(v.Str)+1)
		for _, b := range v.Str {
			elems = append(elems, fmt.Sprintf("0x%02x", b))
		}
		elems = append(elems, "0x00")
		g.printf("var %s = [...]byte{%s}\n\n", name, strings.Join(elems, ", "))
	}
	return nil
}

// vaLists holds the spellings of va_list. It is an array type on some
// ABIs, which decays to a pointer in a C call but not in a cgo one.
var vaLists = map[string]bool{
	"va_list":           true,
	"__gnuc_va_list":    true,
	"__builtin_va_list": true,
}

func isVaList(t model.CType) bool {
	return vaLists[t.Base] && t.Pointers == 0 && !t.Array && !t.Func
}

var decimal = regexp.MustCompile(`^[0-9]+$`)

// goType spells t in Go. The empty string stands for void. Arrays are only
// valid as parameters.
func (g *generator) goType(t model.CType, param bool) (string, error) {
	stars := strings.Repeat("*", t.Pointers)
	if t.Func {
		return stars + "*[0]byte", nil
	}

	var base string
	switch {
	case t.Base == "void":
		if t.Pointers == 0 {
			if t.Array {
				return "", fmt.Errorf("%w void array", errUnsupported)
			}
			return "", nil
		}
		base, stars = "unsafe.Pointer", stars[1:]
	default:
		b, err := g.baseType(t.Base)
		if err != nil {
			return "", err
		}
		base = b
	}
	elem := stars + base

	if !t.Array {
		return elem, nil
	}
	if !param {
		return "", fmt.Errorf("%w array", errUnsupported)
	}
	if g.policy.ArrayPointersInArguments {
		if n := g.arrayLen(t.ArrayLen); n != "" {
			return "*[" + n + "]" + elem, nil
		}
	}
	return "*" + elem, nil
}

func (g *generator) baseType(base string) (string, error) {
	if alias, ok, supported := scalar(base); ok {
		if !supported {
			return "", fmt.Errorf("%w %s", errUnsupported, base)
		}
		return alias, nil
	}
	if base == "" || base == "struct" || base == "union" || base == "enum" {
		return "", fmt.Errorf("%w: anonymous or unknown type", errUnsupported)
	}
	key := base
	if name, ok := g.names[key]; ok {
		return name, nil
	}
	if name, ok := g.surface.Foreign[key]; ok {
		return name, nil
	}
	return CSpelling(key), nil
}

func (g *generator) arrayLen(s string) string {
	if decimal.MatchString(s) {
		return s
	}
	return g.intMacros[s]
}

// uses reports whether a code line of src contains token.
func uses(src []byte, token string) bool {
	for _, line := range bytes.Split(src, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if bytes.HasPrefix(line, []byte("//")) {
			continue
		}
		if bytes.Contains(line, []byte(token)) {
			return true
		}
	}
	return false
}

// writeHeader writes the preamble shared by every generated file.
func writeHeader(w *bytes.Buffer, pkg, header, buildTag string) {
	w.WriteString("// Code generated by starpugen. DO NOT EDIT.\n\n")
	w.WriteString("//lint:file-ignore ST1003 C identifiers keep their native spelling.\n\n")
	if buildTag != "" {
		fmt.Fprintf(w, "//go:build %s\n\n", buildTag)
	}
	fmt.Fprintf(w, "package %s\n\n", pkg)
	if header != "" {
		fmt.Fprintf(w, "/*\n#include %q\n*/\n", header)
	}
	w.WriteString("import \"C\"\n\n")
}
