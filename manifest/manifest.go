// Package manifest handles sahl.toml project configuration.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by FindAndLoad.
const FileName = "sahl.toml"

//go:embed schema.cue
var schemaSource string

// Manifest represents a sahl.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Build   BuildConfig `toml:"build"`
	VM      VMConfig    `toml:"vm"`
	Cache   CacheConfig `toml:"cache"`
	Server  Server      `toml:"server"`
	Log     LogConfig   `toml:"log"`

	// Dir is the directory containing the sahl.toml file (set at load time).
	// Empty for a default manifest.
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Entry   string `toml:"entry"`
	Version string `toml:"version"`
}

// BuildConfig configures bytecode image output.
type BuildConfig struct {
	Output string `toml:"output"`
	Verify *bool  `toml:"verify"`
}

// VMConfig bounds program execution.
type VMConfig struct {
	MaxStack  int  `toml:"max_stack"`
	MaxFrames int  `toml:"max_frames"`
	Trace     bool `toml:"trace"`
}

// CacheConfig configures the compiled-program store.
type CacheConfig struct {
	Path    string `toml:"path"`
	Enabled *bool  `toml:"enabled"`
}

// Server configures the network services.
type Server struct {
	HTTPAddr string `toml:"http_addr"`
	GRPCAddr string `toml:"grpc_addr"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Defaults
const (
	DefaultOutput    = "exe.bin"
	DefaultMaxStack  = 1 << 16
	DefaultMaxFrames = 4096
	DefaultCachePath = ".sahl/cache.db"
	DefaultHTTPAddr  = "127.0.0.1:7070"
	DefaultGRPCAddr  = "127.0.0.1:7071"
)

// Default returns a manifest with every default applied.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Build.Output == "" {
		m.Build.Output = DefaultOutput
	}
	if m.Build.Verify == nil {
		m.Build.Verify = boolPtr(true)
	}
	if m.VM.MaxStack == 0 {
		m.VM.MaxStack = DefaultMaxStack
	}
	if m.VM.MaxFrames == 0 {
		m.VM.MaxFrames = DefaultMaxFrames
	}
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}
	if m.Cache.Enabled == nil {
		m.Cache.Enabled = boolPtr(true)
	}
	if m.Server.HTTPAddr == "" {
		m.Server.HTTPAddr = DefaultHTTPAddr
	}
	if m.Server.GRPCAddr == "" {
		m.Server.GRPCAddr = DefaultGRPCAddr
	}
}

func boolPtr(b bool) *bool { return &b }

// Parse decodes and validates manifest content. name is used in error
// messages only.
func Parse(name string, data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", name, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", name, err)
	}
	m.applyDefaults()
	return &m, nil
}

// Validate checks decoded TOML against the embedded CUE schema. Unknown
// sections and fields are rejected.
func Validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return err
	}
	return def.Unify(value).Validate(cue.Concrete(true))
}

// Load parses a sahl.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(path, data)
	if err != nil {
		return nil, err
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a sahl.toml file, then loads
// and returns the manifest. Without a manifest it returns Default().
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Resolve returns p relative to the manifest directory. Absolute paths and
// default manifests return p unchanged.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the absolute path of the project entry file, or "" if
// none is configured.
func (m *Manifest) EntryPath() string {
	return m.Resolve(m.Project.Entry)
}

// CachePath returns the store location, or "" when caching is disabled.
func (m *Manifest) CachePath() string {
	if m.Cache.Enabled != nil && !*m.Cache.Enabled {
		return ""
	}
	return m.Resolve(m.Cache.Path)
}

// OutputPath returns where -c writes the image.
func (m *Manifest) OutputPath() string {
	return m.Resolve(m.Build.Output)
}

// VerifyEnabled reports whether programs are verified before running.
func (m *Manifest) VerifyEnabled() bool {
	return m.Build.Verify == nil || *m.Build.Verify
}
