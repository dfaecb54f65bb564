package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/starpugen/internal/config"
	"github.com/phobologic/starpugen/internal/model"
)

const (
	taskH   = "/usr/include/starpu/1.4/starpu_task.h"
	hwlocH  = "/usr/include/hwloc.h"
	stdargH = "/usr/lib/gcc/x86_64-linux-gnu/13/include/stdarg.h"
	stdlibH = "/usr/include/stdlib.h"
)

func unit() []model.Decl {
	return []model.Decl{
		{Kind: model.Typedef, Name: "__gnuc_va_list", File: stdargH},
		{Kind: model.Typedef, Name: "va_list", File: stdargH, Refs: []string{"__gnuc_va_list"}},
		{Kind: model.Struct, Name: "drand48_data", File: stdlibH, Complete: true},
		{Kind: model.Struct, Name: "random_data", File: stdlibH, Complete: true},
		{Kind: model.Typedef, Name: "hwloc_topology_t", File: hwlocH, Refs: []string{"struct hwloc_topology"}},
		{Kind: model.Struct, Name: "hwloc_topology", File: hwlocH},
		{Kind: model.Struct, Name: "starpu_conf", File: taskH, Complete: true,
			Refs: []string{"hwloc_topology_t", "struct random_data"}},
		{Kind: model.Function, Name: "starpu_vprintf", File: taskH, Refs: []string{"va_list"}},
		{Kind: model.Macro, Name: "STARPU_TASK_INIT", File: taskH},
		{Kind: model.Macro, Name: "STARPU_NMAXBUFS", File: taskH},
		{Kind: model.Enum, File: taskH, Enumerators: []model.Enumerator{{Name: "STARPU_ANON"}}},
		{Kind: model.Enum, File: stdlibH, Enumerators: []model.Enumerator{{Name: "P_ALL"}}},
	}
}

func keys(decls []model.Decl) []string {
	out := make([]string, len(decls))
	for i, d := range decls {
		out[i] = d.Key()
	}
	return out
}

func mustCompile(t *testing.T, p config.Policy) *Filter {
	t.Helper()
	f, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return f
}

func TestSelectDefaultPolicy(t *testing.T) {
	t.Parallel()

	f := mustCompile(t, config.Default().Policy)
	sel := f.Select(unit())

	want := []string{
		"__gnuc_va_list",
		"va_list",
		"struct drand48_data",
		"struct starpu_conf",
		"function:starpu_vprintf",
		"macro:STARPU_NMAXBUFS",
		"enum ",
	}
	if diff := cmp.Diff(want, keys(sel.Decls)); diff != "" {
		t.Errorf("emitted mismatch (-want +got):\n%s", diff)
	}
	wantForeign := []string{"hwloc_topology_t", "struct random_data"}
	if diff := cmp.Diff(wantForeign, sel.Foreign); diff != "" {
		t.Errorf("foreign mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"macro:STARPU_TASK_INIT"}, sel.Blocked); diff != "" {
		t.Errorf("blocked mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectNeverEmitsUnallowedReferencedTypes(t *testing.T) {
	t.Parallel()

	f := mustCompile(t, config.Default().Policy)
	for _, d := range f.Select(unit()).Decls {
		if d.File == hwlocH {
			t.Errorf("hwloc declaration %q emitted", d.Key())
		}
		if d.Name == "random_data" {
			t.Error("field type from a system header emitted")
		}
	}
}

func TestSelectRecursive(t *testing.T) {
	t.Parallel()

	p := config.Default().Policy
	p.AllowRecursively = true
	sel := mustCompile(t, p).Select(unit())

	got := keys(sel.Decls)
	for _, k := range []string{"hwloc_topology_t", "struct hwloc_topology", "struct random_data"} {
		if !containsKey(got, k) {
			t.Errorf("recursive selection missing %q: %v", k, got)
		}
	}
	if len(sel.Foreign) != 0 {
		t.Errorf("foreign = %v, want none", sel.Foreign)
	}
}

func TestSelectAllowAllWithoutAllowLists(t *testing.T) {
	t.Parallel()

	sel := mustCompile(t, config.Policy{BlockFiles: []string{".*/hwloc.*"}}).Select(unit())
	for _, d := range sel.Decls {
		if d.File == hwlocH {
			t.Errorf("blocked file emitted %q", d.Key())
		}
	}
	if !containsKey(keys(sel.Decls), "struct random_data") {
		t.Error("declaration missing with no allow lists")
	}
}

func TestPatternsAreAnchored(t *testing.T) {
	t.Parallel()

	f := mustCompile(t, config.Policy{AllowTypes: []string{"starpu_conf"}})
	tests := []struct {
		name string
		want bool
	}{
		{"starpu_conf", true},
		{"starpu_conf_t", false},
		{"my_starpu_conf", false},
	}
	for _, tt := range tests {
		d := &model.Decl{Kind: model.Struct, Name: tt.name, File: taskH}
		if got := f.Allowed(d); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFileAllowed(t *testing.T) {
	t.Parallel()

	f := mustCompile(t, config.Default().Policy)
	if !f.FileAllowed(taskH) {
		t.Error("starpu header not allowed")
	}
	if f.FileAllowed(hwlocH) {
		t.Error("hwloc header allowed")
	}
}

func TestCompileInvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := Compile(config.Policy{AllowTypes: []string{"("}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func containsKey(keys []string, k string) bool {
	for _, v := range keys {
		if v == k {
			return true
		}
	}
	return false
}
