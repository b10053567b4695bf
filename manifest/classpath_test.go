package manifest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/classfile"
	"github.com/chazu/jasm/resolver"
)

// writeJar packs lib/Widget into path, plus extra empty entries.
func writeJar(t *testing.T, path string, extra ...string) {
	t.Helper()
	res, err := asm.AssembleString(".package lib\n.class Widget public\n.method void spin public\n        return\n.end spin\n.end Widget\n", asm.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	w, err := zw.Create(res.ClassName + ".class")
	if err != nil {
		t.Fatal(err)
	}
	w.Write(res.Bytes)
	for _, name := range extra {
		if _, err := zw.Create(name); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadResolverFromJars(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "lib"), 0755)
	jar := filepath.Join(dir, "lib", "widget.jar")
	writeJar(t, jar)
	writeManifest(t, dir, "[classpath]\njars = [\"lib/widget.jar\"]\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	r, err := m.LoadResolver()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Method("lib.Widget", "spin", "()V"); err != nil {
		t.Errorf("lib.Widget.spin: %v", err)
	}
	if !r.HasClass("java.lang.String") {
		t.Error("base types missing")
	}

	lock, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if lock.Classes != 1 || len(lock.Jars) != 1 || lock.Jars[0].Path != "lib/widget.jar" {
		t.Errorf("lock = %+v", lock)
	}

	// An unchanged jar is served from the cache, whatever it holds.
	marker := resolver.NewSnapshot(&resolver.ClassInfo{Name: "cached/Marker", Super: classfile.ObjectClass, Flags: classfile.AccPublic})
	data, err := resolver.MarshalSnapshot(marker)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.IndexCachePath(), data, 0644); err != nil {
		t.Fatal(err)
	}
	r, err = m.LoadResolver()
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasClass("cached.Marker") {
		t.Error("cached index not used")
	}

	// A changed jar invalidates the cache.
	writeJar(t, jar, "META-INF/MANIFEST.MF")
	r, err = m.LoadResolver()
	if err != nil {
		t.Fatal(err)
	}
	if r.HasClass("cached.Marker") || !r.HasClass("lib.Widget") {
		t.Error("stale cache used after the jar changed")
	}
}

func TestLoadResolverFromIndex(t *testing.T) {
	dir := t.TempDir()
	snap := resolver.NewSnapshot(&resolver.ClassInfo{Name: "idx/Thing", Super: classfile.ObjectClass, Flags: classfile.AccPublic})
	f, err := os.Create(filepath.Join(dir, "lib.idx"))
	if err != nil {
		t.Fatal(err)
	}
	if err := resolver.SaveSnapshot(f, snap); err != nil {
		t.Fatal(err)
	}
	f.Close()
	writeManifest(t, dir, "[classpath]\nindexes = [\"lib.idx\"]\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	r, err := m.LoadResolver()
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasClass("idx.Thing") {
		t.Error("indexed class missing")
	}
	if _, err := os.Stat(m.LockFilePath()); !os.IsNotExist(err) {
		t.Error("lock written without jars")
	}
}

func TestLoadResolverMissingJar(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[classpath]\njars = [\"nope.jar\"]\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.LoadResolver(); err == nil {
		t.Error("missing jar accepted")
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classpath.lock")
	lf := &LockFile{
		Classes: 12,
		Jars: []LockedJar{
			{Path: "lib/a.jar", Size: 100, ModTime: 1700000000123456789},
			{Path: "lib/b.jar", Size: 7, ModTime: 1},
		},
	}
	if err := WriteLock(path, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}
	loaded, err := ReadLock(path)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}
	if loaded.Classes != 12 || !loaded.matches(lf.Jars) {
		t.Errorf("loaded = %+v, want %+v", loaded, lf)
	}
	if loaded.matches(lf.Jars[:1]) {
		t.Error("lock matches a different jar set")
	}
}

func TestReadLockNotFound(t *testing.T) {
	lf, err := ReadLock(filepath.Join(t.TempDir(), "missing.lock"))
	if err != nil {
		t.Errorf("ReadLock error for missing file: %v", err)
	}
	if lf == nil || len(lf.Jars) != 0 {
		t.Errorf("ReadLock = %+v, want empty lock", lf)
	}
}
