package parse

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/starpugen/internal/lang"
	"github.com/phobologic/starpugen/internal/model"
)

var errUnsupported = errors.New("unsupported expression")

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`//.*$`)
)

// evaluator folds object-like macro bodies into constants. Macros defined
// earlier in the unit may be referenced by later ones.
type evaluator struct {
	parser *sitter.Parser
	known  map[string]*model.Const
}

func newEvaluator(p *sitter.Parser) *evaluator {
	return &evaluator{parser: p, known: make(map[string]*model.Const)}
}

// value is an intermediate result. Integer results carry whether any
// operand was unsigned.
type value struct {
	c        model.Const
	unsigned bool
}

func (e *evaluator) macro(name, body string) *model.Const {
	c, err := e.Eval(body)
	if err != nil {
		delete(e.known, name)
		return nil
	}
	e.known[name] = c
	return c
}

// Eval evaluates a C constant expression.
func (e *evaluator) Eval(expr string) (*model.Const, error) {
	expr = blockComment.ReplaceAllString(expr, " ")
	expr = lineComment.ReplaceAllString(expr, "")
	if i := strings.Index(expr, "/*"); i >= 0 {
		expr = expr[:i]
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errUnsupported
	}

	src := []byte("int __starpugen_v = (" + expr + ");\n")
	tree, err := e.parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.HasError() || root.NamedChildCount() != 1 {
		return nil, errUnsupported
	}
	decl := root.NamedChild(0)
	init := decl.ChildByFieldName("declarator")
	if init == nil || init.Type() != "init_declarator" {
		return nil, errUnsupported
	}
	v, err := e.eval(init.ChildByFieldName("value"), src)
	if err != nil {
		return nil, err
	}
	if v.c.Kind == model.IntConst && v.unsigned && v.c.Int.Sign() < 0 {
		return nil, errUnsupported
	}
	c := v.c
	return &c, nil
}

func (e *evaluator) eval(n *sitter.Node, src []byte) (value, error) {
	if n == nil {
		return value{}, errUnsupported
	}
	text := lang.NodeText(n, src)
	switch n.Type() {
	case "number_literal":
		return parseNumber(text)
	case "char_literal":
		b, err := decodeEscapes(strings.TrimSuffix(strings.TrimPrefix(text, "'"), "'"))
		if err != nil || len(b) != 1 {
			return value{}, errUnsupported
		}
		return intValue(big.NewInt(int64(int8(b[0]))), false), nil
	case "string_literal":
		return stringValue(text)
	case "concatenated_string":
		var out []byte
		for i := 0; i < int(n.NamedChildCount()); i++ {
			part, err := e.eval(n.NamedChild(i), src)
			if err != nil || part.c.Kind != model.StringConst {
				return value{}, errUnsupported
			}
			out = append(out, part.c.Str...)
		}
		return value{c: model.Const{Kind: model.StringConst, Str: out}}, nil
	case "parenthesized_expression":
		return e.eval(firstNamed(n), src)
	case "cast_expression":
		t := n.ChildByFieldName("type")
		if t == nil || t.ChildByFieldName("declarator") != nil {
			// Pointer casts have no Go constant form.
			return value{}, errUnsupported
		}
		bits, unsigned, ok := castType(lang.NodeText(t, src))
		if !ok {
			return value{}, errUnsupported
		}
		v, err := e.integer(n.ChildByFieldName("value"), src)
		if err != nil {
			return value{}, err
		}
		if bits == 1 {
			return boolValue(v.c.Int.Sign() != 0), nil
		}
		return intValue(truncate(v.c.Int, bits, unsigned), unsigned), nil
	case "identifier":
		c, ok := e.known[text]
		if !ok {
			return value{}, errUnsupported
		}
		return value{c: *c}, nil
	case "unary_expression":
		return e.unary(n, src)
	case "binary_expression":
		return e.binary(n, src)
	case "conditional_expression":
		cond, err := e.integer(n.ChildByFieldName("condition"), src)
		if err != nil {
			return value{}, err
		}
		if cond.c.Int.Sign() != 0 {
			return e.eval(n.ChildByFieldName("consequence"), src)
		}
		return e.eval(n.ChildByFieldName("alternative"), src)
	}
	return value{}, errUnsupported
}

func (e *evaluator) integer(n *sitter.Node, src []byte) (value, error) {
	v, err := e.eval(n, src)
	if err != nil {
		return value{}, err
	}
	if v.c.Kind != model.IntConst {
		return value{}, errUnsupported
	}
	return v, nil
}

func (e *evaluator) unary(n *sitter.Node, src []byte) (value, error) {
	op := n.ChildByFieldName("operator")
	arg := n.ChildByFieldName("argument")
	if op == nil {
		return value{}, errUnsupported
	}
	opText := lang.NodeText(op, src)

	if opText == "-" || opText == "+" {
		v, err := e.eval(arg, src)
		if err != nil {
			return value{}, err
		}
		if v.c.Kind != model.FloatConst && v.c.Kind != model.IntConst {
			return value{}, errUnsupported
		}
		if opText == "-" {
			return negate(v), nil
		}
		return v, nil
	}

	v, err := e.integer(arg, src)
	if err != nil {
		return value{}, err
	}
	switch opText {
	case "~":
		return intValue(new(big.Int).Not(v.c.Int), v.unsigned), nil
	case "!":
		return boolValue(v.c.Int.Sign() == 0), nil
	}
	return value{}, errUnsupported
}

func (e *evaluator) binary(n *sitter.Node, src []byte) (value, error) {
	op := n.ChildByFieldName("operator")
	if op == nil {
		return value{}, errUnsupported
	}
	opText := lang.NodeText(op, src)

	l, err := e.integer(n.ChildByFieldName("left"), src)
	if err != nil {
		return value{}, err
	}
	// Short circuit before the right operand is inspected.
	switch opText {
	case "&&":
		if l.c.Int.Sign() == 0 {
			return boolValue(false), nil
		}
	case "||":
		if l.c.Int.Sign() != 0 {
			return boolValue(true), nil
		}
	}
	r, err := e.integer(n.ChildByFieldName("right"), src)
	if err != nil {
		return value{}, err
	}
	a, b := l.c.Int, r.c.Int
	unsigned := l.unsigned || r.unsigned
	z := new(big.Int)

	switch opText {
	case "+":
		z.Add(a, b)
	case "-":
		z.Sub(a, b)
	case "*":
		z.Mul(a, b)
	case "/":
		if b.Sign() == 0 {
			return value{}, errUnsupported
		}
		z.Quo(a, b)
	case "%":
		if b.Sign() == 0 {
			return value{}, errUnsupported
		}
		z.Rem(a, b)
	case "<<":
		if b.Sign() < 0 || b.Cmp(big.NewInt(128)) > 0 {
			return value{}, errUnsupported
		}
		z.Lsh(a, uint(b.Uint64()))
	case ">>":
		if b.Sign() < 0 || b.Cmp(big.NewInt(128)) > 0 {
			return value{}, errUnsupported
		}
		z.Rsh(a, uint(b.Uint64()))
	case "&":
		z.And(a, b)
	case "|":
		z.Or(a, b)
	case "^":
		z.Xor(a, b)
	case "&&", "||":
		return boolValue(r.c.Int.Sign() != 0), nil
	case "==":
		return boolValue(a.Cmp(b) == 0), nil
	case "!=":
		return boolValue(a.Cmp(b) != 0), nil
	case "<":
		return boolValue(a.Cmp(b) < 0), nil
	case "<=":
		return boolValue(a.Cmp(b) <= 0), nil
	case ">":
		return boolValue(a.Cmp(b) > 0), nil
	case ">=":
		return boolValue(a.Cmp(b) >= 0), nil
	default:
		return value{}, errUnsupported
	}
	return intValue(z, unsigned), nil
}

func negate(v value) value {
	switch v.c.Kind {
	case model.FloatConst:
		if f, ok := strings.CutPrefix(v.c.Float, "-"); ok {
			v.c.Float = f
		} else {
			v.c.Float = "-" + v.c.Float
		}
	case model.IntConst:
		v.c.Int = new(big.Int).Neg(v.c.Int)
	}
	return v
}

// integerWidths gives the width in bits of the integer types a constant
// may be cast to, for the LP64 data model. _Bool has width 1.
var integerWidths = map[string]int{
	"char":      8,
	"short":     16,
	"int":       32,
	"long":      64,
	"long long": 64,
	"_Bool":     1,
	"bool":      1,
	"int8_t":    8,
	"int16_t":   16,
	"int32_t":   32,
	"int64_t":   64,
	"uint8_t":   -8,
	"uint16_t":  -16,
	"uint32_t":  -32,
	"uint64_t":  -64,
	"size_t":    -64,
	"ssize_t":   64,
	"ptrdiff_t": 64,
	"intptr_t":  64,
	"uintptr_t": -64,
}

// castType reads the integer type named by a cast. Negative widths in
// integerWidths mark unsigned typedefs.
func castType(typ string) (bits int, unsigned, ok bool) {
	var words []string
	sign := false
	for _, w := range strings.Fields(typ) {
		switch w {
		case "const", "volatile":
		case "unsigned":
			unsigned, sign = true, true
		case "signed":
			sign = true
		default:
			words = append(words, w)
		}
	}
	switch n := len(words); {
	case n == 0 && sign:
		words = []string{"int"}
	case n > 1 && words[n-1] == "int":
		words = words[:n-1]
	}
	bits, ok = integerWidths[strings.Join(words, " ")]
	if !ok {
		return 0, false, false
	}
	if bits < 0 {
		if sign {
			return 0, false, false
		}
		bits, unsigned = -bits, true
	}
	return bits, unsigned, true
}

// truncate converts z to an integer type of the given width the way a C
// conversion does.
func truncate(z *big.Int, bits int, unsigned bool) *big.Int {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	r := new(big.Int).Mod(z, mod)
	if !unsigned && r.Cmp(new(big.Int).Rsh(mod, 1)) >= 0 {
		r.Sub(r, mod)
	}
	return r
}

func intValue(z *big.Int, unsigned bool) value {
	return value{c: model.Const{Kind: model.IntConst, Int: z}, unsigned: unsigned}
}

func boolValue(b bool) value {
	if b {
		return intValue(big.NewInt(1), false)
	}
	return intValue(big.NewInt(0), false)
}

var floatLiteral = regexp.MustCompile(`^(?:[0-9]*\.[0-9]*(?:[eE][+-]?[0-9]+)?|[0-9]+[eE][+-]?[0-9]+)$`)

// parseNumber reads a number literal. The grammar folds a leading sign
// into the literal, so it is split off before the radix is chosen.
func parseNumber(text string) (value, error) {
	neg := strings.HasPrefix(text, "-")
	text = strings.TrimLeft(text, "+-")
	v, err := parseMagnitude(text)
	if err != nil || !neg {
		return v, err
	}
	return negate(v), nil
}

func parseMagnitude(text string) (value, error) {
	lower := strings.ToLower(text)
	isHex := strings.HasPrefix(lower, "0x")

	if !isHex && (strings.ContainsAny(lower, ".e")) {
		f := strings.TrimRight(lower, "fl")
		if !floatLiteral.MatchString(f) || f == "." {
			return value{}, errUnsupported
		}
		if strings.HasPrefix(f, ".") {
			f = "0" + f
		}
		return value{c: model.Const{Kind: model.FloatConst, Float: f}}, nil
	}

	digits := strings.TrimRight(lower, "ul")
	unsigned := strings.Contains(lower[len(digits):], "u")
	digits = strings.ReplaceAll(digits, "'", "")

	z := new(big.Int)
	var ok bool
	switch {
	case isHex:
		_, ok = z.SetString(digits[2:], 16)
	case strings.HasPrefix(digits, "0b"):
		_, ok = z.SetString(digits[2:], 2)
	case len(digits) > 1 && digits[0] == '0':
		_, ok = z.SetString(digits[1:], 8)
	default:
		_, ok = z.SetString(digits, 10)
	}
	if !ok {
		return value{}, errUnsupported
	}
	return intValue(z, unsigned), nil
}

func stringValue(text string) (value, error) {
	if i := strings.IndexByte(text, '"'); i > 0 {
		// Wide and unicode prefixes are not representable as bytes.
		return value{}, errUnsupported
	}
	b, err := decodeEscapes(strings.TrimSuffix(strings.TrimPrefix(text, `"`), `"`))
	if err != nil {
		return value{}, err
	}
	return value{c: model.Const{Kind: model.StringConst, Str: b}}, nil
}

// decodeEscapes decodes the C escape sequences of a literal body.
func decodeEscapes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' {
			out = append(out, ch)
			continue
		}
		i++
		if i >= len(s) {
			return nil, errUnsupported
		}
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case 'a':
			out = append(out, '\a')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'v':
			out = append(out, '\v')
		case 'e':
			out = append(out, 0x1b)
		case '\\', '\'', '"', '?':
			out = append(out, s[i])
		case 'x':
			j := i + 1
			for j < len(s) && isHexDigit(s[j]) {
				j++
			}
			if j == i+1 {
				return nil, errUnsupported
			}
			n, err := strconv.ParseUint(s[i+1:j], 16, 64)
			if err != nil || n > 0xff {
				return nil, errUnsupported
			}
			out = append(out, byte(n))
			i = j - 1
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(s[i:j], 8, 16)
			if n > 0xff {
				return nil, errUnsupported
			}
			out = append(out, byte(n))
			i = j - 1
		default:
			return nil, errUnsupported
		}
	}
	return out, nil
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
