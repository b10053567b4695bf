// Package manifest handles jasm.toml project configuration.
package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/classfile"
)

// FileName is the name of the project file.
const FileName = "jasm.toml"

// Manifest represents a jasm.toml project configuration.
type Manifest struct {
	Project   Project   `toml:"project"`
	Source    Source    `toml:"source"`
	Output    Output    `toml:"output"`
	Assembler Assembler `toml:"assembler"`
	Classpath Classpath `toml:"classpath"`
	Server    Server    `toml:"server"`

	// Dir is the directory containing the jasm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs []string `toml:"dirs"`
}

// Output configures where class files go.
type Output struct {
	Dir string `toml:"dir"`
	Jar string `toml:"jar"`
}

// Assembler holds the defaults applied to every source file.
type Assembler struct {
	Version        string `toml:"version"`
	Stack          string `toml:"stack"`
	Lines          string `toml:"lines"`
	LocalVariables *bool  `toml:"local-variables"`
	Lenient        bool   `toml:"lenient"`
}

// Classpath lists the types the resolver knows beyond the base set.
type Classpath struct {
	Indexes []string `toml:"indexes"`
	Jars    []string `toml:"jars"`
}

// Server configures jasm serve.
type Server struct {
	Addr string `toml:"addr"`
}

// Default returns the manifest used when no jasm.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "classes"
	}
	if m.Server.Addr == "" {
		m.Server.Addr = ":4568"
	}
}

// Load parses a jasm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	if _, err := m.AssemblerOptions(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a jasm.toml file,
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

// AssemblerOptions converts the [assembler] table. The Resolver and
// FileName fields are left for the caller.
func (m *Manifest) AssemblerOptions() (asm.Options, error) {
	opts := asm.DefaultOptions()
	a := m.Assembler
	if a.Version != "" {
		if _, _, err := asm.ParseVersion(a.Version); err != nil {
			return opts, err
		}
		opts.Version = a.Version
	}
	if a.Stack != "" {
		mode, err := classfile.ParseStackMode(a.Stack)
		if err != nil {
			return opts, err
		}
		opts.StackMode = mode
	}
	mode, err := asm.ParseLineMode(a.Lines)
	if err != nil {
		return opts, err
	}
	opts.LineMode = mode
	if a.LocalVariables != nil {
		opts.LocalVars = *a.LocalVariables
	}
	opts.Lenient = a.Lenient
	opts.Includer = asm.FileIncluder{Root: m.Dir}
	return opts, nil
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.path(d))
	}
	return paths
}

// SourceFiles lists every .jasm file under the source directories in a
// stable order. Missing directories are skipped.
func (m *Manifest) SourceFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SourceDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir && os.IsNotExist(err) {
					return fs.SkipDir
				}
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".jasm" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// OutputDir returns the absolute class output directory.
func (m *Manifest) OutputDir() string {
	return m.path(m.Output.Dir)
}

// JarPath returns the absolute jar path, or "" when no jar is configured.
func (m *Manifest) JarPath() string {
	if m.Output.Jar == "" {
		return ""
	}
	return m.path(m.Output.Jar)
}

func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
