package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/starpugen/internal/model"
)

const (
	taskH  = "/usr/include/starpu/1.4/starpu_task.h"
	dataH  = "/usr/include/starpu/1.4/starpu_data.h"
	hwlocH = "/usr/include/hwloc.h"
)

func sample() []model.Decl {
	return []model.Decl{
		{Kind: model.Struct, Name: "starpu_task", File: taskH, Complete: true,
			Refs: []string{"struct starpu_codelet", "starpu_data_handle_t", "struct unknown"}},
		{Kind: model.Struct, Name: "starpu_codelet", File: taskH, Complete: true,
			Refs: []string{"starpu_cpu_func_t", "struct starpu_codelet"}},
		{Kind: model.Typedef, Name: "starpu_cpu_func_t", File: taskH},
		{Kind: model.Typedef, Name: "starpu_data_handle_t", File: dataH,
			Refs: []string{"struct _starpu_data_state"}},
		{Kind: model.Struct, Name: "_starpu_data_state", File: dataH},
		{Kind: model.Typedef, Name: "hwloc_topology_t", File: hwlocH},
		{Kind: model.Function, Name: "starpu_task_submit", File: taskH,
			Refs: []string{"struct starpu_task"}},
		{Kind: model.Function, Name: "starpu_get_hwloc", File: dataH,
			Refs: []string{"hwloc_topology_t"}},
		{Kind: model.Enum, File: taskH},
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	g := Build(sample())
	d, ok := g.Lookup("struct starpu_codelet")
	if !ok || d.Name != "starpu_codelet" {
		t.Fatalf("Lookup = %+v, %v", d, ok)
	}
	if _, ok := g.Lookup("struct unknown"); ok {
		t.Error("undeclared key found")
	}
}

func TestRefsDropUndeclaredAndSelf(t *testing.T) {
	t.Parallel()

	g := Build(sample())
	if diff := cmp.Diff([]string{"struct starpu_codelet", "starpu_data_handle_t"}, g.Refs("struct starpu_task")); diff != "" {
		t.Errorf("task refs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"starpu_cpu_func_t"}, g.Refs("struct starpu_codelet")); diff != "" {
		t.Errorf("codelet refs mismatch (-want +got):\n%s", diff)
	}
}

func TestClosure(t *testing.T) {
	t.Parallel()

	g := Build(sample())
	got := g.Closure([]string{"function:starpu_task_submit"})
	want := []string{
		"function:starpu_task_submit",
		"starpu_cpu_func_t",
		"starpu_data_handle_t",
		"struct _starpu_data_state",
		"struct starpu_codelet",
		"struct starpu_task",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("closure mismatch (-want +got):\n%s", diff)
	}
}

func TestClosureEmpty(t *testing.T) {
	t.Parallel()

	g := Build(sample())
	if got := g.Closure(nil); len(got) != 0 {
		t.Errorf("Closure(nil) = %v", got)
	}
}

func TestFileDeps(t *testing.T) {
	t.Parallel()

	deps := FileDeps(sample())
	want := []model.Dependency{
		{Source: dataH, Target: hwlocH, Symbols: []string{"hwloc_topology_t"}},
		{Source: taskH, Target: dataH, Symbols: []string{"starpu_data_handle_t"}},
	}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("deps mismatch (-want +got):\n%s", diff)
	}
}
