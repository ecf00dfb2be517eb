// Package manifest handles latino.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/latino/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "latino.toml"

// Defaults applied to keys the manifest leaves out.
const (
	DefaultEntry    = "main.lat"
	DefaultCache    = ".latino/cache.db"
	DefaultAddr     = ":4567"
	DefaultGRPCAddr = ":4568"
)

var log = commonlog.GetLogger("latino.manifest")

// Manifest represents a latino.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project" json:"project"`
	Source  Source       `toml:"source" json:"source"`
	VM      VMConfig     `toml:"vm" json:"vm"`
	Cache   CacheConfig  `toml:"cache" json:"cache"`
	Server  ServerConfig `toml:"server" json:"server"`

	// Dir is the directory containing the latino.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" json:"name"`
	Version string `toml:"version" json:"version"`
}

// Source configures source file locations.
type Source struct {
	Entry string   `toml:"entry" json:"entry"`
	Dirs  []string `toml:"dirs" json:"dirs"`
}

// VMConfig configures the virtual machine.
type VMConfig struct {
	Interactive bool `toml:"interactive" json:"interactive"`
	MaxDepth    int  `toml:"max-depth" json:"max-depth"`
	MaxCalls    int  `toml:"max-calls" json:"max-calls"`
	Trace       bool `toml:"trace" json:"trace"`
}

// CacheConfig configures the compiled-unit cache.
type CacheConfig struct {
	Path    string `toml:"path" json:"path"`
	Enabled bool   `toml:"enabled" json:"enabled"`
}

// ServerConfig configures the evaluation servers.
type ServerConfig struct {
	Addr     string `toml:"addr" json:"addr"`
	GRPCAddr string `toml:"grpc-addr" json:"grpc-addr"`
}

// Default returns the configuration used when no latino.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.Cache.Enabled = true
	m.applyDefaults()
	return m
}

// Load parses and validates a latino.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text, fills in defaults and validates the result.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("unknown key %s in %s", key, FileName)
	}

	if !md.IsDefined("cache", "enabled") {
		m.Cache.Enabled = true
	}
	m.applyDefaults()

	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Source.Entry == "" {
		m.Source.Entry = DefaultEntry
	}
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"."}
	}
	if m.VM.MaxDepth == 0 {
		m.VM.MaxDepth = vm.DefaultMaxContextDepth
	}
	if m.VM.MaxCalls == 0 {
		m.VM.MaxCalls = vm.DefaultMaxCallDepth
	}
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCache
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
	if m.Server.GRPCAddr == "" {
		m.Server.GRPCAddr = DefaultGRPCAddr
	}
}

// FindAndLoad walks up from startDir to find a latino.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
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
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// EntryPath returns the path of the program run when no file is named.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// CachePath returns the path of the compiled-unit cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// VMOptions translates the [vm] section into VM options.
func (m *Manifest) VMOptions() []vm.Option {
	return []vm.Option{
		vm.WithInteractive(m.VM.Interactive),
		vm.WithMaxContextDepth(m.VM.MaxDepth),
		vm.WithMaxCallDepth(m.VM.MaxCalls),
		vm.WithTrace(m.VM.Trace),
	}
}
