package gen

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"

	"github.com/phobologic/starpugen/internal/model"
)

// Unit renders the file of one dependency unit: the foreign types it
// re-exports and, for the scalar unit, the C arithmetic types.
func Unit(pkg, header string, u model.Unit) (model.Artifact, error) {
	var buf bytes.Buffer
	writeHeader(&buf, pkg, header, u.BuildTag)

	if u.Scalars {
		buf.WriteString("// C arithmetic types.\ntype (\n")
		for _, sc := range Scalars {
			fmt.Fprintf(&buf, "\t%s = %s\n", sc.Alias, sc.C)
		}
		buf.WriteString(")\n\n")
	}
	if len(u.Aliases) > 0 {
		fmt.Fprintf(&buf, "// Types re-exported from %s.\ntype (\n", u.Name)
		for _, a := range u.Aliases {
			if a.Origin != "" {
				fmt.Fprintf(&buf, "\t%s = %s // %s\n", a.GoName, a.CName, a.Origin)
				continue
			}
			fmt.Fprintf(&buf, "\t%s = %s\n", a.GoName, a.CName)
		}
		buf.WriteString(")\n")
	}

	name := UnitName(u.Name)
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return model.Artifact{}, fmt.Errorf("%w: formatting %s: %v", model.ErrGenerationFailure, name, err)
	}
	return model.Artifact{Name: name, Source: src}, nil
}

// Cgo renders the file carrying the compiler and linker flags of the
// resolved library.
func Cgo(pkg string, lib *model.Library, cppflags, ldflags []string) (model.Artifact, error) {
	var buf bytes.Buffer
	buf.WriteString("// Code generated by starpugen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", pkg)
	// The preamble above import "C" is compiled as C, so it holds only
	// #cgo directives.
	if lib != nil {
		fmt.Fprintf(&buf, "// Flags for %s %s.\n\n", lib.Name, lib.Version)
	}
	if len(cppflags) > 0 {
		fmt.Fprintf(&buf, "// #cgo CPPFLAGS: %s\n", joinFlags(cppflags))
	}
	if len(ldflags) > 0 {
		fmt.Fprintf(&buf, "// #cgo LDFLAGS: %s\n", joinFlags(ldflags))
	}
	buf.WriteString("import \"C\"\n")

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return model.Artifact{}, fmt.Errorf("%w: formatting %s: %v", model.ErrGenerationFailure, CgoName, err)
	}
	return model.Artifact{Name: CgoName, Source: src}, nil
}

// joinFlags quotes flags containing blanks the way cgo splits them. cgo
// quoting has no escapes, so the quote is picked from what f lacks.
func joinFlags(flags []string) string {
	out := make([]string, len(flags))
	for i, f := range flags {
		switch {
		case !strings.ContainsAny(f, " \t'\""):
		case !strings.Contains(f, "'"):
			f = "'" + f + "'"
		default:
			f = `"` + f + `"`
		}
		out[i] = f
	}
	return strings.Join(out, " ")
}
