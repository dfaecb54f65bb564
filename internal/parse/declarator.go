package parse

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/starpugen/internal/lang"
	"github.com/phobologic/starpugen/internal/model"
)

// declInfo is what a declarator adds to its base type.
type declInfo struct {
	name     string
	ptrs     int
	array    bool
	arrayLen string
	// params is the parameter list when the declarator declares a function.
	params *sitter.Node
	// funcPtr marks a pointer to function, or an array of them.
	funcPtr bool
}

func (d declInfo) ctype(base string) model.CType {
	if d.funcPtr {
		return model.CType{Func: true, Pointers: max(d.ptrs-1, 0)}
	}
	return model.CType{Base: base, Pointers: d.ptrs, Array: d.array, ArrayLen: d.arrayLen}
}

// walkDeclarator descends a (possibly abstract) declarator, counting
// pointers and locating the declared name.
func walkDeclarator(n *sitter.Node, source []byte) declInfo {
	var info declInfo
	for n != nil {
		switch n.Type() {
		case "identifier", "type_identifier", "field_identifier", "primitive_type":
			info.name = lang.NodeText(n, source)
			return info
		case "pointer_declarator", "abstract_pointer_declarator":
			info.ptrs++
			n = n.ChildByFieldName("declarator")
		case "array_declarator", "abstract_array_declarator":
			if !info.array && info.params == nil && !info.funcPtr {
				info.array = true
				if size := n.ChildByFieldName("size"); size != nil {
					info.arrayLen = lang.CollapseWhitespace(lang.NodeText(size, source))
				}
			} else {
				info.ptrs++
			}
			n = n.ChildByFieldName("declarator")
		case "function_declarator", "abstract_function_declarator":
			inner := unwrapParens(n.ChildByFieldName("declarator"))
			if info.params == nil && inner != nil && isName(inner) {
				info.params = n.ChildByFieldName("parameters")
			} else {
				info.funcPtr = true
			}
			n = n.ChildByFieldName("declarator")
		case "parenthesized_declarator", "abstract_parenthesized_declarator":
			n = firstNamed(n)
		case "init_declarator", "attributed_declarator":
			n = n.ChildByFieldName("declarator")
			if n == nil {
				return info
			}
		default:
			return info
		}
	}
	return info
}

func unwrapParens(n *sitter.Node) *sitter.Node {
	for n != nil && (n.Type() == "parenthesized_declarator" || n.Type() == "attributed_declarator") {
		if n.Type() == "attributed_declarator" {
			n = n.ChildByFieldName("declarator")
			continue
		}
		n = firstNamed(n)
	}
	return n
}

func isName(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "type_identifier", "field_identifier":
		return true
	}
	return false
}

func firstNamed(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "comment", "type_qualifier", "attribute_specifier", "ms_call_modifier":
			continue
		}
		return c
	}
	return nil
}
