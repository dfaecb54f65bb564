package gen

import (
	"go/token"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/phobologic/starpugen/internal/model"
)

// Exported returns the Go name under which a C identifier is published.
// The first letter is upper-cased and the rest kept, so starpu_task becomes
// Starpu_task and STARPU_R stays as is. Names starting with an underscore
// gain an X prefix.
func Exported(name string) string {
	if name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(name)
	if r == '_' {
		return "X" + name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// TypeName is the Go name of a type key: "struct starpu_task" and the
// typedef "starpu_task_t" give Starpu_task and Starpu_task_t.
func TypeName(key string) string {
	_, name := splitKey(key)
	return Exported(name)
}

// CSpelling is the cgo spelling of a type key.
func CSpelling(key string) string {
	kind, name := splitKey(key)
	switch kind {
	case model.Struct, model.Union, model.Enum:
		return "C." + string(kind) + "_" + name
	}
	return "C." + name
}

func splitKey(key string) (model.Kind, string) {
	for _, k := range []model.Kind{model.Struct, model.Union, model.Enum} {
		if rest, ok := strings.CutPrefix(key, string(k)+" "); ok {
			return k, rest
		}
	}
	return model.Typedef, key
}

// cSpellingOf is the cgo spelling of a type declaration.
func cSpellingOf(d *model.Decl) string {
	return CSpelling(d.Key())
}

// paramName returns a Go identifier for the i-th parameter.
func paramName(name string, i int) string {
	switch {
	case name == "":
		return "arg" + strconv.Itoa(i)
	case token.IsKeyword(name), name == "C", name == "unsafe", name == "fmt":
		return name + "_"
	}
	return name
}

// Scalar is a C arithmetic type and the Go alias published for it.
type Scalar struct {
	Alias string
	C     string
}

// Scalars lists the C arithmetic types published by the libc unit.
var Scalars = []Scalar{
	{"Char", "C.char"},
	{"Schar", "C.schar"},
	{"Uchar", "C.uchar"},
	{"Short", "C.short"},
	{"Ushort", "C.ushort"},
	{"Int", "C.int"},
	{"Uint", "C.uint"},
	{"Long", "C.long"},
	{"Ulong", "C.ulong"},
	{"Longlong", "C.longlong"},
	{"Ulonglong", "C.ulonglong"},
	{"Float", "C.float"},
	{"Double", "C.double"},
	{"Bool", "C._Bool"},
	{"Size_t", "C.size_t"},
	{"Ssize_t", "C.ssize_t"},
	{"Ptrdiff_t", "C.ptrdiff_t"},
	{"Intptr_t", "C.intptr_t"},
	{"Uintptr_t", "C.uintptr_t"},
	{"Int8_t", "C.int8_t"},
	{"Int16_t", "C.int16_t"},
	{"Int32_t", "C.int32_t"},
	{"Int64_t", "C.int64_t"},
	{"Uint8_t", "C.uint8_t"},
	{"Uint16_t", "C.uint16_t"},
	{"Uint32_t", "C.uint32_t"},
	{"Uint64_t", "C.uint64_t"},
}

var scalarAlias = func() map[string]string {
	m := make(map[string]string, len(Scalars))
	for _, s := range Scalars {
		m[strings.TrimPrefix(s.C, "C.")] = s.Alias
	}
	return m
}()

// scalar maps a C arithmetic type spelling to its Go alias. ok is false
// for types that are not arithmetic; supported is false for arithmetic
// types cgo cannot represent.
func scalar(base string) (alias string, ok, supported bool) {
	if base == "" || base == "void" {
		return "", false, false
	}
	if a, found := scalarAlias[base]; found {
		return a, true, true
	}

	var signed, unsigned, isChar, isShort, isFloat, isDouble, isBool bool
	longs := 0
	for _, w := range strings.Fields(base) {
		switch w {
		case "signed":
			signed = true
		case "unsigned":
			unsigned = true
		case "char":
			isChar = true
		case "short":
			isShort = true
		case "int":
		case "long":
			longs++
		case "float":
			isFloat = true
		case "double":
			isDouble = true
		case "_Bool", "bool":
			isBool = true
		case "_Complex", "__int128", "_Float128", "__float128":
			return "", true, false
		default:
			return "", false, false
		}
	}
	switch {
	case isBool:
		return "Bool", true, true
	case isDouble && longs > 0:
		return "", true, false
	case isDouble:
		return "Double", true, true
	case isFloat:
		return "Float", true, true
	case isChar && unsigned:
		return "Uchar", true, true
	case isChar && signed:
		return "Schar", true, true
	case isChar:
		return "Char", true, true
	case isShort:
		return pick(unsigned, "Ushort", "Short"), true, true
	case longs >= 2:
		return pick(unsigned, "Ulonglong", "Longlong"), true, true
	case longs == 1:
		return pick(unsigned, "Ulong", "Long"), true, true
	}
	return pick(unsigned, "Uint", "Int"), true, true
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
