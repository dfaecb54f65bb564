// Package model defines core data structures for starpugen.
package model

import "math/big"

// Kind indicates the syntactic kind of a top-level C declaration.
type Kind string

const (
	Struct   Kind = "struct"
	Union    Kind = "union"
	Enum     Kind = "enum"
	Typedef  Kind = "typedef"
	Function Kind = "function"
	Var      Kind = "var"
	Macro    Kind = "macro"
)

// IsType reports whether declarations of this kind name a type.
func (k Kind) IsType() bool {
	switch k {
	case Struct, Union, Enum, Typedef:
		return true
	}
	return false
}

// Library is the resolved installation of a native library, as reported by
// pkg-config for one (name, version range) query.
type Library struct {
	Name         string
	Version      string
	IncludePaths []string
	LinkPaths    []string
	Libs         []string
}

// CType is a C type as written in a declaration, reduced to what the Go
// emitter needs.
type CType struct {
	// Base is the type without declarator parts: "int", "unsigned long",
	// "struct starpu_task", "starpu_data_handle_t", "void".
	Base string
	// Pointers counts pointer indirections applied to Base.
	Pointers int
	// ArrayLen is set for array parameters; "" with Array true means [].
	Array    bool
	ArrayLen string
	// Func marks function pointer types; Base and Pointers are then unused.
	Func bool
}

// Param is a single function parameter.
type Param struct {
	Name string
	Type CType
}

// Enumerator is a single enum constant.
type Enumerator struct {
	Name string
}

// Decl is one top-level C declaration extracted from the preprocessed header.
type Decl struct {
	Kind Kind
	// Name is the C name: the tag for struct/union/enum, the identifier
	// otherwise. Anonymous enums have an empty name.
	Name string
	File string
	Line int
	Doc  string

	// Complete is false for forward declared structs and unions.
	Complete bool

	// Tagless marks a struct, union or enum declared only through a typedef
	// of an anonymous specifier. C spells it by the typedef name.
	Tagless bool

	Enumerators []Enumerator

	Params   []Param
	Result   CType
	Variadic bool

	// Var declarations.
	Type CType

	// Macro is the raw replacement text of an object-like macro and Value
	// its evaluation, nil when the text is not a constant expression.
	Macro string
	Value *Const

	// Refs holds the keys of types this declaration mentions.
	Refs []string
}

// Key returns the identity of a declaration within one translation unit.
// Struct, union and enum tags live in their own namespace in C.
func (d *Decl) Key() string {
	if d.Tagless {
		return KeyOf(Typedef, d.Name)
	}
	return KeyOf(d.Kind, d.Name)
}

// ConstKind classifies an evaluated macro.
type ConstKind int

const (
	IntConst ConstKind = iota + 1
	FloatConst
	StringConst
)

// Const is the value of an object-like macro.
type Const struct {
	Kind ConstKind
	Int  *big.Int
	// Float holds the literal text, which Go accepts as written.
	Float string
	// Str holds the decoded bytes of a string literal, without the NUL.
	Str []byte
}

// KeyOf builds a declaration key from a kind and a C name.
func KeyOf(kind Kind, name string) string {
	switch kind {
	case Struct, Union, Enum:
		return string(kind) + " " + name
	case Typedef:
		return name
	}
	return string(kind) + ":" + name
}

// Dependency is a directed edge between two headers: declarations in Source
// reference the Symbols declared in Target.
type Dependency struct {
	Source  string
	Target  string
	Symbols []string
}

// Artifact is one generated Go source file.
type Artifact struct {
	Name   string
	Source []byte
}

// Alias is a foreign type made available under a Go name by a dependency
// unit.
type Alias struct {
	GoName string
	CName  string
	Origin string
}

// Unit groups the aliases re-exported for one dependency binding.
type Unit struct {
	Name     string
	BuildTag string
	Aliases  []Alias
	// Scalars marks the unit that publishes the C arithmetic types.
	Scalars bool
}

// Skipped records a declaration that matched the policy but could not be
// emitted.
type Skipped struct {
	Name   string
	Kind   Kind
	Reason string
}

// Surface is the complete generated binding surface, ready for emission.
type Surface struct {
	Package string
	Header  string
	Library *Library
	Decls   []Decl
	Units   []Unit
	Skipped []Skipped
	// Foreign maps type keys referenced by Decls but not emitted to the Go
	// name their dependency unit gives them.
	Foreign map[string]string
}
