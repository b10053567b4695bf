package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/classfile"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
version = "0.1.0"

[source]
dirs = ["src", "gen"]

[output]
dir = "out"
jar = "dist/demo.jar"

[assembler]
version = "1.8"
stack = "pessimistic"
lines = "manual"
local-variables = false
lenient = true

[classpath]
indexes = ["lib.idx"]
jars = ["lib/foo.jar"]

[server]
addr = "127.0.0.1:9000"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "demo" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if !reflect.DeepEqual(m.Source.Dirs, []string{"src", "gen"}) {
		t.Errorf("source dirs = %v", m.Source.Dirs)
	}
	if m.OutputDir() != filepath.Join(m.Dir, "out") {
		t.Errorf("OutputDir = %q", m.OutputDir())
	}
	if m.JarPath() != filepath.Join(m.Dir, "dist", "demo.jar") {
		t.Errorf("JarPath = %q", m.JarPath())
	}
	if len(m.Classpath.Indexes) != 1 || len(m.Classpath.Jars) != 1 {
		t.Errorf("classpath = %+v", m.Classpath)
	}
	if m.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("server addr = %q", m.Server.Addr)
	}

	opts, err := m.AssemblerOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Version != "1.8" {
		t.Errorf("Version = %q, want 1.8", opts.Version)
	}
	if opts.StackMode != classfile.StackPessimistic {
		t.Errorf("StackMode = %v, want pessimistic", opts.StackMode)
	}
	if opts.LineMode != asm.LinesManual {
		t.Errorf("LineMode = %v, want manual", opts.LineMode)
	}
	if opts.LocalVars {
		t.Error("LocalVars = true, want false")
	}
	if !opts.Lenient {
		t.Error("Lenient = false, want true")
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project]\nname = \"minimal\"\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Output.Dir != "classes" {
		t.Errorf("default output dir = %q, want classes", m.Output.Dir)
	}
	if m.JarPath() != "" {
		t.Errorf("JarPath = %q, want empty", m.JarPath())
	}
	if m.Server.Addr != ":4568" {
		t.Errorf("default addr = %q", m.Server.Addr)
	}
	opts, err := m.AssemblerOptions()
	if err != nil {
		t.Fatal(err)
	}
	if !opts.LocalVars || opts.StackMode != classfile.StackOptimistic || opts.LineMode != asm.LinesAuto {
		t.Errorf("default options = %+v", opts)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name, content, want string
	}{
		{"syntax", "[project\n", "parse error"},
		{"unknown key", "[output]\nfolder = \"x\"\n", "unknown key output.folder"},
		{"bad version", "[assembler]\nversion = \"99\"\n", "version"},
		{"bad stack", "[assembler]\nstack = \"lazy\"\n", "lazy"},
		{"bad lines", "[assembler]\nlines = \"some\"\n", "line mode"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeManifest(t, dir, tt.content)
		_, err := Load(dir)
		if err == nil {
			t.Errorf("%s: accepted", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no jasm.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "/abs/lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != filepath.Join("/app", "src") {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/abs/lib" {
		t.Errorf("paths[1] = %q, want /abs/lib", paths[1])
	}
}

func TestSourceFiles(t *testing.T) {
	dir := t.TempDir()
	m := Default(dir)
	m.Source.Dirs = []string{"src", "missing"}
	for _, f := range []string{"src/b/Two.jasm", "src/One.jasm", "src/notes.txt"} {
		p := filepath.Join(dir, filepath.FromSlash(f))
		os.MkdirAll(filepath.Dir(p), 0755)
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := m.SourceFiles()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "src", "One.jasm"),
		filepath.Join(dir, "src", "b", "Two.jasm"),
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("SourceFiles = %v, want %v", files, want)
	}
}
