package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"

	"github.com/phobologic/starpugen/internal/config"
	"github.com/phobologic/starpugen/internal/locate"
)

const fixtureHeader = `#ifndef STARPU_H
#define STARPU_H
#include <stdarg.h>
#include <stddef.h>
#include <stdint.h>

#define STARPU_NMAXBUFS 8
#define STARPU_VERSION_STRING "1.4.7"
#define STARPU_NEG_FLOAT -1.5
#define STARPU_NEG_OCTAL -010
#define STARPU_ALL_ONES ((unsigned)-1)

enum starpu_task_status { STARPU_TASK_INIT, STARPU_TASK_BLOCKED, STARPU_TASK_READY };
enum starpu_data_access_mode { STARPU_NONE = 0, STARPU_R = 1, STARPU_W = 2, STARPU_RW = STARPU_R | STARPU_W };

struct starpu_conf { int ncpus; size_t mem; };
typedef struct _starpu_data_state *starpu_data_handle_t;

/* Initialize conf with the defaults. */
int starpu_conf_init(struct starpu_conf *conf);
int starpu_init(struct starpu_conf *conf);
void starpu_shutdown(void);
int starpu_vector_sum(const int values[STARPU_NMAXBUFS], uint32_t n);
void starpu_vprint(const char *fmt, va_list ap);
int starpu_print(const char *fmt, ...);
extern int starpu_silent;
#endif
`

const fixtureSource = `#include "starpu.h"

int starpu_silent = 1;
static int initialized;

int starpu_conf_init(struct starpu_conf *conf) { conf->ncpus = 4; conf->mem = 0; return 0; }
int starpu_init(struct starpu_conf *conf) { initialized = conf->ncpus; return 0; }
void starpu_shutdown(void) { initialized = 0; }
int starpu_vector_sum(const int values[STARPU_NMAXBUFS], uint32_t n) {
	int s = 0;
	for (uint32_t i = 0; i < n; i++) s += values[i];
	return s;
}
void starpu_vprint(const char *fmt, va_list ap) { (void)fmt; (void)ap; }
int starpu_print(const char *fmt, ...) { (void)fmt; return 0; }
`

const fixtureTest = `package starpufixture

import "testing"

func TestFixtureBindings(t *testing.T) {
	var conf Starpu_conf
	if Starpu_conf_init(&conf) != 0 || conf.ncpus != 4 {
		t.Fatalf("conf = %+v", conf)
	}
	if Starpu_init(&conf) != 0 {
		t.Fatal("init failed")
	}
	defer Starpu_shutdown()

	values := [STARPU_NMAXBUFS]Int{1, 2, 3}
	if got := Starpu_vector_sum(&values, 3); got != 6 {
		t.Errorf("sum = %d", got)
	}
	if *Starpu_silent() != 1 {
		t.Error("starpu_silent not readable")
	}
	if Starpu_task_status.STARPU_TASK_READY != 2 || STARPU_RW != 3 {
		t.Error("enum values")
	}
	if STARPU_NEG_FLOAT != -1.5 || STARPU_NEG_OCTAL != -8 || STARPU_ALL_ONES != 4294967295 {
		t.Error("macro values")
	}
	if STARPU_VERSION_STRING != "1.4.7" {
		t.Error("version string")
	}
}
`

// fixtureRunner answers pkg-config for the fixture library and runs the
// real preprocessor.
type fixtureRunner struct {
	include, lib string
}

func (r fixtureRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if len(args) > 0 && args[0] == "-E" {
		return locate.ExecRunner{}.Run(ctx, name, args...)
	}
	switch args[0] {
	case "--modversion":
		return []byte("1.4.7\n"), nil
	case "--cflags-only-I":
		return []byte("-I" + r.include + "\n"), nil
	case "--libs-only-L":
		return []byte("-L" + r.lib + "\n"), nil
	}
	return []byte("-lstarpu-1.4\n"), nil
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func command(t *testing.T, dir, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1", "GOWORK=off", "GOFLAGS=-mod=mod", "GOTOOLCHAIN=local", "GOPROXY=off")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("%s %v: %v\n%s", name, args, err, out)
	}
}

// TestGeneratedPackageCompiles generates bindings for a small C library and
// builds and tests the result with cgo.
func TestGeneratedPackageCompiles(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a cgo package")
	}
	if runtime.GOOS != "linux" {
		t.Skip("fixture library is built as an ELF shared object")
	}
	for _, tool := range []string{"cc", "go"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found", tool)
		}
	}
	t.Parallel()

	root := t.TempDir()
	include := filepath.Join(root, "include", "starpu", "1.4")
	lib := filepath.Join(root, "lib")
	pkg := filepath.Join(root, "pkg")

	writeFile(t, filepath.Join(include, "starpu.h"), fixtureHeader)
	writeFile(t, filepath.Join(root, "src", "starpu.c"), fixtureSource)
	if err := os.MkdirAll(lib, 0o755); err != nil {
		t.Fatal(err)
	}
	command(t, root, "cc", "-shared", "-fPIC", "-I"+include,
		"-o", filepath.Join(lib, "libstarpu-1.4.so"), filepath.Join(root, "src", "starpu.c"))

	writeFile(t, filepath.Join(pkg, "wrapper.h"), "#include <starpu.h>\n")
	writeFile(t, filepath.Join(pkg, "go.mod"), "module example.com/starpufixture\n\ngo 1.21\n")
	writeFile(t, filepath.Join(pkg, "fixture_test.go"), fixtureTest)

	cfg := config.Default()
	cfg.Package = "starpufixture"
	res, err := Run(context.Background(), Options{
		Config: cfg,
		Dir:    pkg,
		Runner: fixtureRunner{include: include, lib: lib},
		Target: detector(runtime.GOOS),
		Log:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	skipped := map[string]string{}
	for _, sk := range res.Surface.Skipped {
		skipped[sk.Name] = sk.Reason
	}
	if skipped["starpu_vprint"] != "va_list parameter" || skipped["starpu_print"] != "variadic function" {
		t.Errorf("skipped = %v", skipped)
	}

	command(t, pkg, "go", "test", ".")
}
