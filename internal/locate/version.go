package locate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a major.minor.patch release number.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) semver() string {
	return "v" + v.String()
}

// VersionRequirement accepts every release of one minor series from Min on.
// The exclusive upper bound is always the next minor release, patch zero.
type VersionRequirement struct {
	Min Version
}

// ParseRequirement parses "major.minor" or "major.minor.patch".
func ParseRequirement(s string) (VersionRequirement, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return VersionRequirement{}, fmt.Errorf("version requirement %q: want major.minor[.patch]", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return VersionRequirement{}, fmt.Errorf("version requirement %q: bad component %q", s, p)
		}
		nums[i] = n
	}
	if nums[1] == math.MaxInt {
		return VersionRequirement{}, fmt.Errorf("version requirement %q: minor version has no successor", s)
	}
	return VersionRequirement{Min: Version{nums[0], nums[1], nums[2]}}, nil
}

// Max returns the exclusive upper bound.
func (r VersionRequirement) Max() Version {
	return Version{Major: r.Min.Major, Minor: r.Min.Minor + 1}
}

// Contains reports whether version lies in [Min, Max). Versions that cannot
// be read are never contained.
func (r VersionRequirement) Contains(version string) bool {
	v, ok := canonical(version)
	if !ok {
		return false
	}
	return semver.Compare(v, r.Min.semver()) >= 0 && semver.Compare(v, r.Max().semver()) < 0
}

func (r VersionRequirement) String() string {
	return fmt.Sprintf("[%s, %s)", r.Min, r.Max())
}

// canonical turns a version reported by pkg-config into a semver string.
// Distributions sometimes append a fourth component or a suffix; only the
// leading numeric major.minor.patch is kept then.
func canonical(version string) (string, bool) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return "", false
	}
	if v := "v" + version; semver.IsValid(v) {
		return semver.Canonical(v), true
	}

	nums := make([]string, 0, 3)
	for _, part := range strings.SplitN(version, ".", 4) {
		if len(nums) == 3 {
			break
		}
		end := 0
		for end < len(part) && part[end] >= '0' && part[end] <= '9' {
			end++
		}
		if end == 0 {
			break
		}
		n, _ := strconv.Atoi(part[:end])
		nums = append(nums, strconv.Itoa(n))
		if end < len(part) {
			break
		}
	}
	if len(nums) == 0 {
		return "", false
	}
	for len(nums) < 3 {
		nums = append(nums, "0")
	}
	v := "v" + strings.Join(nums, ".")
	return v, semver.IsValid(v)
}
