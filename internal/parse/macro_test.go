package parse

import (
	"testing"

	"github.com/phobologic/starpugen/internal/lang"
	"github.com/phobologic/starpugen/internal/model"
)

func TestEvalIntegers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want int64
	}{
		{"0", 0},
		{"42", 42},
		{"0x1F", 31},
		{"010", 8},
		{"8U", 8},
		{"1UL << 4", 16},
		{"(1 << 3) | 1", 9},
		{"-1", -1},
		{"~0", -1},
		{"!0", 1},
		{"7 / 2", 3},
		{"-7 % 3", -1},
		{"3 > 2 && 0", 0},
		{"0 || 5", 1},
		{"1 ? 10 : 20", 10},
		{"(int)12", 12},
		{"'A'", 65},
		{"'\\n'", 10},
		{"2 * (3 + 4) /* comment */", 14},
		{"5 ^ 1", 4},
		{"-010", -8},
		{"-0x10", -16},
		{"+0x10", 16},
		{"(unsigned)-1", 4294967295},
		{"(unsigned char)300", 44},
		{"(signed char)200", -56},
		{"(short)0x18000", -32768},
		{"(unsigned short int)70000", 4464},
		{"(const int)7", 7},
		{"(uint8_t)257", 1},
		{"(_Bool)5", 1},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			e := newEvaluator(lang.C.NewParser())
			c, err := e.Eval(tt.expr)
			if err != nil {
				t.Fatalf("Eval(%q): %v", tt.expr, err)
			}
			if c.Kind != model.IntConst || !c.Int.IsInt64() || c.Int.Int64() != tt.want {
				t.Errorf("Eval(%q) = %+v, want %d", tt.expr, c, tt.want)
			}
		})
	}
}

func TestEvalFloatsAndStrings(t *testing.T) {
	t.Parallel()

	e := newEvaluator(lang.C.NewParser())

	f, err := e.Eval("1.5e3f")
	if err != nil || f.Kind != model.FloatConst || f.Float != "1.5e3" {
		t.Errorf("float = %+v, %v", f, err)
	}
	neg, err := e.Eval("-.25")
	if err != nil || neg.Float != "-0.25" {
		t.Errorf("negative float = %+v, %v", neg, err)
	}

	for expr, want := range map[string]string{"-1.5": "-1.5", "-(-1.5)": "1.5", "-2e3": "-2e3"} {
		c, err := e.Eval(expr)
		if err != nil || c.Kind != model.FloatConst || c.Float != want {
			t.Errorf("Eval(%q) = %+v, %v, want %s", expr, c, err, want)
		}
	}

	s, err := e.Eval(`"a\tb" "\x41\101"`)
	if err != nil || s.Kind != model.StringConst || string(s.Str) != "a\tbAA" {
		t.Errorf("string = %+v, %v", s, err)
	}
}

func TestEvalUnsupported(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{
		"",
		"1 / 0",
		"-1U",
		"((void*)0)",
		"sizeof(int)",
		"UNKNOWN + 1",
		`L"wide"`,
		"__attribute__((deprecated))",
		"(double)1",
		"(int)1.5",
		"(starpu_data_handle_t)0",
		"(unsigned uint8_t)1",
	} {
		e := newEvaluator(lang.C.NewParser())
		if c, err := e.Eval(expr); err == nil {
			t.Errorf("Eval(%q) = %+v, want error", expr, c)
		}
	}
}

func TestEvalReferencesEarlierMacros(t *testing.T) {
	t.Parallel()

	e := newEvaluator(lang.C.NewParser())
	if e.macro("STARPU_NMAXBUFS", "8") == nil {
		t.Fatal("base macro not evaluated")
	}
	c := e.macro("STARPU_NMAX_SCHED_CTXS", "(STARPU_NMAXBUFS + 2)")
	if c == nil || c.Int.Int64() != 10 {
		t.Errorf("derived = %+v", c)
	}
	if e.macro("STARPU_BROKEN", "STARPU_UNDEFINED") != nil {
		t.Error("unknown reference evaluated")
	}
}

func TestEvalUnsignedLongCast(t *testing.T) {
	t.Parallel()

	e := newEvaluator(lang.C.NewParser())
	c, err := e.Eval("(unsigned long)-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Int.String(); got != "18446744073709551615" {
		t.Errorf("(unsigned long)-1 = %s", got)
	}
}
