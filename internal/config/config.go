// Package config holds the generator configuration: which library to bind,
// where to write the bindings, and the policy deciding which declarations
// become Go symbols.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Enum styles.
const (
	EnumConsts       = "consts"
	EnumModuleConsts = "module_consts"
)

// FileNames are the configuration files looked up in a package directory,
// in order.
var FileNames = []string{"starpugen.yaml", "starpugen.yml", "starpugen.toml", "starpugen.json"}

// Library selects the native library through pkg-config.
type Library struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Version string `json:"version" yaml:"version" toml:"version"`
}

// Derive selects the helpers generated for complete structs and unions.
type Derive struct {
	Copy      bool `json:"copy" yaml:"copy" toml:"copy"`
	Debug     bool `json:"debug" yaml:"debug" toml:"debug"`
	Default   bool `json:"default" yaml:"default" toml:"default"`
	PartialEq bool `json:"partialeq" yaml:"partialeq" toml:"partialeq"`
}

// Policy decides which declarations are emitted and how.
type Policy struct {
	AllowFiles       []string `json:"allow_files" yaml:"allow_files" toml:"allow_files"`
	AllowTypes       []string `json:"allow_types" yaml:"allow_types" toml:"allow_types"`
	AllowFunctions   []string `json:"allow_functions" yaml:"allow_functions" toml:"allow_functions"`
	AllowVars        []string `json:"allow_vars" yaml:"allow_vars" toml:"allow_vars"`
	AllowRecursively bool     `json:"allow_recursively" yaml:"allow_recursively" toml:"allow_recursively"`

	BlockFiles     []string `json:"block_files" yaml:"block_files" toml:"block_files"`
	BlockTypes     []string `json:"block_types" yaml:"block_types" toml:"block_types"`
	BlockFunctions []string `json:"block_functions" yaml:"block_functions" toml:"block_functions"`
	BlockVars      []string `json:"block_vars" yaml:"block_vars" toml:"block_vars"`

	EnumStyle         string   `json:"enum_style" yaml:"enum_style" toml:"enum_style"`
	ModuleConstsEnums []string `json:"module_consts_enums" yaml:"module_consts_enums" toml:"module_consts_enums"`
	PrependEnumName   bool     `json:"prepend_enum_name" yaml:"prepend_enum_name" toml:"prepend_enum_name"`

	Derive                   Derive `json:"derive" yaml:"derive" toml:"derive"`
	GenerateCStr             bool   `json:"generate_cstr" yaml:"generate_cstr" toml:"generate_cstr"`
	ArrayPointersInArguments bool   `json:"array_pointers_in_arguments" yaml:"array_pointers_in_arguments" toml:"array_pointers_in_arguments"`
	RetainComments           bool   `json:"retain_comments" yaml:"retain_comments" toml:"retain_comments"`
}

// Dependency is a binding unit re-exporting foreign types whose declaring
// header matches Files. BuildTag gates the unit at compile time.
type Dependency struct {
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Files    []string `json:"files" yaml:"files" toml:"files"`
	BuildTag string   `json:"build_tag" yaml:"build_tag" toml:"build_tag"`
}

// Config holds all generator parameters.
type Config struct {
	Package   string   `json:"package" yaml:"package" toml:"package"`
	Header    string   `json:"header" yaml:"header" toml:"header"`
	OutputDir string   `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	Compiler  string   `json:"compiler" yaml:"compiler" toml:"compiler"`
	CPPArgs   []string `json:"cpp_args" yaml:"cpp_args" toml:"cpp_args"`

	Library      Library      `json:"library" yaml:"library" toml:"library"`
	Policy       Policy       `json:"policy" yaml:"policy" toml:"policy"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies" toml:"dependencies"`

	// DocsBuild skips generation entirely. Set from the environment only.
	DocsBuild bool `json:"-" yaml:"-" toml:"-"`
}

// Default returns the configuration the StarPU bindings are built with.
func Default() Config {
	return Config{
		Package:   "starpu",
		Header:    "wrapper.h",
		OutputDir: ".",
		Compiler:  "cc",
		// Neutralize GNU extensions the C grammar does not model. These
		// only affect parsing; cgo compiles the real headers.
		CPPArgs: []string{
			"-D__attribute__(x)=",
			"-D__extension__=",
			"-D__restrict=",
			"-D__restrict__=",
			"-D__inline=inline",
			"-D__asm__(x)=",
			"-D__asm(x)=",
		},
		Library: Library{Name: "libstarpu", Version: "1.4.0"},
		Policy: Policy{
			AllowFiles:        []string{".*/starpu/.*"},
			AllowTypes:        []string{".*va_list.*|drand48_data"},
			BlockVars:         []string{"STARPU_TASK_INIT"},
			EnumStyle:         EnumConsts,
			ModuleConstsEnums: []string{"starpu_task_status"},
			Derive: Derive{
				Copy:      true,
				Debug:     true,
				Default:   true,
				PartialEq: true,
			},
			GenerateCStr:             true,
			ArrayPointersInArguments: true,
			RetainComments:           true,
		},
		Dependencies: []Dependency{
			{Name: "hwloc", Files: []string{".*/hwloc.*"}},
			{Name: "opencl", Files: []string{".*/CL/.*", ".*/OpenCL/.*"}, BuildTag: "opencl"},
			{Name: "libc", Files: []string{".*"}},
		},
	}
}

// Load reads a configuration file over the defaults, based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Find returns the first configuration file present in dir, or "".
func Find(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

// LoadDir loads the configuration file found in dir, or the defaults when
// there is none.
func LoadDir(dir string) (Config, error) {
	p := Find(dir)
	if p == "" {
		return Default(), nil
	}
	return Load(p)
}

// ApplyEnv overrides fields from the environment. go generate exports
// GOPACKAGE for the package being generated.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("GOPACKAGE"); ok && v != "" {
		c.Package = v
	}
	if v, ok := lookup("STARPUGEN_OUT_DIR"); ok && v != "" {
		c.OutputDir = v
	}
	if v, ok := lookup("CC"); ok && v != "" {
		c.Compiler = v
	}
	if DocsBuild(lookup) {
		c.DocsBuild = true
	}
}

// DocsBuild reports whether the environment marks a documentation build,
// which needs no library and no configuration.
func DocsBuild(lookup func(string) (string, bool)) bool {
	if v, ok := lookup("STARPUGEN_DOCS_BUILD"); ok && v != "" && v != "0" {
		return true
	}
	_, ok := lookup("DOCS_RS")
	return ok
}

// Validate checks fields that have no usable zero value.
func (c *Config) Validate() error {
	if c.Package == "" {
		return errors.New("package name is empty")
	}
	if c.Header == "" {
		return errors.New("umbrella header is empty")
	}
	if c.Library.Name == "" {
		return errors.New("library name is empty")
	}
	switch c.Policy.EnumStyle {
	case EnumConsts, EnumModuleConsts:
	default:
		return fmt.Errorf("unknown enum style %q", c.Policy.EnumStyle)
	}
	for _, d := range c.Dependencies {
		if d.Name == "" {
			return errors.New("dependency with empty name")
		}
	}
	return nil
}
