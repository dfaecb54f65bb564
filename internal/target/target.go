// Package target reports the family of the platform bindings are generated
// for, which may differ from the host when cross-compiling.
package target

import (
	"runtime"
	"strings"
	"sync"
)

// FamilyEnv overrides the detected target family. It takes the same
// comma-separated form Family returns.
const FamilyEnv = "STARPUGEN_TARGET_FAMILY"

// Lookup reads one environment variable.
type Lookup func(key string) (string, bool)

// unixGOOS lists the GOOS values matched by Go's "unix" build constraint.
var unixGOOS = map[string]struct{}{
	"aix":       {},
	"android":   {},
	"darwin":    {},
	"dragonfly": {},
	"freebsd":   {},
	"hurd":      {},
	"illumos":   {},
	"ios":       {},
	"linux":     {},
	"netbsd":    {},
	"openbsd":   {},
	"solaris":   {},
}

// Detector resolves the target family and OS once and caches them for the
// life of the process.
type Detector struct {
	lookup Lookup

	once   sync.Once
	family string
	goos   string
}

// NewDetector returns a Detector reading the environment through lookup.
func NewDetector(lookup Lookup) *Detector {
	return &Detector{lookup: lookup}
}

func (d *Detector) load() {
	d.once.Do(func() {
		goos, ok := d.lookup("GOOS")
		if !ok || goos == "" {
			goos = runtime.GOOS
		}
		d.goos = goos
		if fam, ok := d.lookup(FamilyEnv); ok && fam != "" {
			d.family = fam
			return
		}
		d.family = FamilyOf(goos)
	})
}

// Family returns the comma-separated target families, e.g. "unix".
func (d *Detector) Family() string {
	d.load()
	return d.family
}

// OS returns the target GOOS.
func (d *Detector) OS() string {
	d.load()
	return d.goos
}

// FamilyOf maps a GOOS value to its family list.
func FamilyOf(goos string) string {
	if _, ok := unixGOOS[goos]; ok {
		return "unix"
	}
	switch goos {
	case "windows":
		return "windows"
	case "js", "wasip1":
		return "wasm"
	}
	return ""
}

// HasFamily reports whether the comma-separated families include want.
// Components are compared exactly.
func HasFamily(families, want string) bool {
	for _, f := range strings.Split(families, ",") {
		if f == want {
			return true
		}
	}
	return false
}
