package assemble

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/starpugen/internal/config"
	"github.com/phobologic/starpugen/internal/model"
)

func lookupIn(decls ...model.Decl) func(string) (*model.Decl, bool) {
	return func(key string) (*model.Decl, bool) {
		for i := range decls {
			if decls[i].Key() == key {
				return &decls[i], true
			}
		}
		return nil, false
	}
}

func TestUnitsClassifiesByOrigin(t *testing.T) {
	t.Parallel()

	lookup := lookupIn(
		model.Decl{Kind: model.Typedef, Name: "hwloc_topology_t", File: "/usr/include/hwloc.h"},
		model.Decl{Kind: model.Struct, Name: "hwloc_obj", File: "/usr/include/hwloc.h"},
		model.Decl{Kind: model.Typedef, Name: "cl_mem", File: "/usr/include/CL/cl.h"},
		model.Decl{Kind: model.Struct, Name: "random_data", File: "/usr/include/stdlib.h"},
		model.Decl{Kind: model.Typedef, Name: "size_t", File: "/usr/lib/gcc/include/stddef.h"},
		model.Decl{Kind: model.Typedef, Name: "pthread_t", File: "/usr/include/bits/pthreadtypes.h"},
	)
	foreign := []string{"cl_mem", "hwloc_topology_t", "pthread_t", "size_t", "struct hwloc_obj", "struct random_data"}
	emitted := []model.Decl{{Kind: model.Typedef, Name: "pthread_t", File: "/usr/include/starpu/1.4/starpu_thread.h"}}

	units, spelling, err := Units(emitted, foreign, lookup, config.Default().Dependencies)
	if err != nil {
		t.Fatal(err)
	}

	want := []model.Unit{
		{Name: "hwloc", Aliases: []model.Alias{
			{GoName: "Hwloc_obj", CName: "C.struct_hwloc_obj", Origin: "hwloc.h"},
			{GoName: "Hwloc_topology_t", CName: "C.hwloc_topology_t", Origin: "hwloc.h"},
		}},
		{Name: "opencl", BuildTag: "opencl", Aliases: []model.Alias{
			{GoName: "Cl_mem", CName: "C.cl_mem", Origin: "cl.h"},
		}},
		{Name: "libc", Scalars: true, Aliases: []model.Alias{
			{GoName: "Random_data", CName: "C.struct_random_data", Origin: "stdlib.h"},
		}},
	}
	if diff := cmp.Diff(want, units); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}

	wantSpelling := map[string]string{
		"cl_mem":             "C.cl_mem",
		"hwloc_topology_t":   "Hwloc_topology_t",
		"pthread_t":          "C.pthread_t",
		"struct hwloc_obj":   "Hwloc_obj",
		"struct random_data": "Random_data",
	}
	if diff := cmp.Diff(wantSpelling, spelling); diff != "" {
		t.Errorf("spelling mismatch (-want +got):\n%s", diff)
	}
}

func TestUnitsDropsEmptyUnits(t *testing.T) {
	t.Parallel()

	units, _, err := Units(nil, nil, lookupIn(), config.Default().Dependencies)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Name != LibcUnit || !units[0].Scalars {
		t.Errorf("units = %+v, want only the libc unit", units)
	}
}

func TestUnitsUnmatchedOrigin(t *testing.T) {
	t.Parallel()

	deps := []config.Dependency{{Name: "hwloc", Files: []string{".*/hwloc.*"}}}
	lookup := lookupIn(model.Decl{Kind: model.Struct, Name: "timespec", File: "/usr/include/time.h"})
	units, spelling, err := Units(nil, []string{"struct timespec"}, lookup, deps)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 0 {
		t.Errorf("units = %+v, want none", units)
	}
	if spelling["struct timespec"] != "C.struct_timespec" {
		t.Errorf("spelling = %q", spelling["struct timespec"])
	}
}

func TestUnitsUnknownOrigin(t *testing.T) {
	t.Parallel()

	units, spelling, err := Units(nil, []string{"__builtin_va_list"}, lookupIn(), config.Default().Dependencies)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Unit{{Name: "libc", Scalars: true, Aliases: []model.Alias{
		{GoName: "X__builtin_va_list", CName: "C.__builtin_va_list"},
	}}}
	if diff := cmp.Diff(want, units); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}
	if spelling["__builtin_va_list"] != "X__builtin_va_list" {
		t.Errorf("spelling = %q", spelling["__builtin_va_list"])
	}
}

func TestUnitsInvalidPattern(t *testing.T) {
	t.Parallel()

	deps := []config.Dependency{{Name: "bad", Files: []string{"("}}}
	if _, _, err := Units(nil, nil, lookupIn(), deps); err == nil {
		t.Fatal("expected error")
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for name, content := range map[string]string{
		"zstarpu_old.go": "package starpu\n",
		"doc.go":         "package starpu\n",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	arts := []model.Artifact{
		{Name: "zstarpu_bindings.go", Source: []byte("package starpu\n\n// bindings\n")},
		{Name: "zstarpu_cgo.go", Source: []byte("package starpu\n")},
	}
	if err := Write(dir, arts); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := []string{"doc.go", "zstarpu_bindings.go", "zstarpu_cgo.go"}
	if diff := cmp.Diff(want, listDir(t, dir)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	got, err := os.ReadFile(filepath.Join(dir, "zstarpu_bindings.go"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(arts[0].Source) {
		t.Errorf("content = %q", got)
	}
}

func TestWriteUnchangedKeepsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	arts := []model.Artifact{{Name: "zstarpu_bindings.go", Source: []byte("package starpu\n")}}
	if err := Write(dir, arts); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "zstarpu_bindings.go")
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(dir, arts); err != nil {
		t.Fatal(err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(before, after) {
		t.Error("unchanged artifact was rewritten")
	}
}

func TestWriteInvalidNameLeavesNoOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	arts := []model.Artifact{
		{Name: "zstarpu_bindings.go", Source: []byte("package starpu\n")},
		{Name: "../escape.go", Source: []byte("package starpu\n")},
	}
	err := Write(dir, arts)
	if !errors.Is(err, model.ErrArtifactWrite) {
		t.Fatalf("err = %v, want ErrArtifactWrite", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("dir not empty after failure: %v", names)
	}
}

func TestWriteUnwritableDir(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := Write(filepath.Join(blocker, "pkg"), []model.Artifact{{Name: "zstarpu_cgo.go"}})
	if !errors.Is(err, model.ErrArtifactWrite) {
		t.Errorf("err = %v, want ErrArtifactWrite", err)
	}
}
