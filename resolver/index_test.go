package resolver

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/jasm/classfile"
	"github.com/chazu/jasm/symbol"
)

// widgetClass assembles com/example/Widget with a public constant, a
// constructor, one public method and one private method.
func widgetClass(t *testing.T) []byte {
	t.Helper()
	names := symbol.NewInterner()
	c := classfile.NewClassAssembler(names)
	if err := c.SetClass(classfile.AccPublic|classfile.AccSuper, names.Intern("com.example"), names.Intern("Widget")); err != nil {
		t.Fatal(err)
	}
	if err := c.AddInterface(names.Intern("java/lang/Runnable")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddField(classfile.AccPublic|classfile.AccStatic|classfile.AccFinal, names.Intern("SIZE"), names.Intern("I")); err != nil {
		t.Fatal(err)
	}

	for _, m := range []struct {
		flags uint16
		name  string
	}{
		{classfile.AccPublic, "<init>"},
		{classfile.AccPublic, "run"},
		{classfile.AccPrivate, "helper"},
	} {
		md, err := c.AddMethod(m.flags, names.Intern(m.name), "V")
		if err != nil {
			t.Fatal(err)
		}
		md.Body().Put(0, 0xb1)
		if err := c.CompleteMethod(); err != nil {
			t.Fatal(err)
		}
	}
	data, err := c.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestIndexClassFile(t *testing.T) {
	info, err := IndexClassFile(widgetClass(t))
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "com/example/Widget" || info.Super != "java/lang/Object" {
		t.Errorf("info = %s extends %s", info.Name, info.Super)
	}
	if len(info.Interfaces) != 1 || info.Interfaces[0] != "java/lang/Runnable" {
		t.Errorf("Interfaces = %v", info.Interfaces)
	}
	if len(info.Fields) != 1 || info.Fields[0].Name != "SIZE" {
		t.Errorf("Fields = %+v", info.Fields)
	}
	if len(info.Methods) != 2 {
		t.Errorf("Methods = %+v, want <init> and run", info.Methods)
	}
	if info.Flags&classfile.AccPublic == 0 {
		t.Errorf("Flags = %#x, want public", info.Flags)
	}
}

func TestIndexJarAndDir(t *testing.T) {
	dir := t.TempDir()
	data := widgetClass(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("com/example/Widget.class")
	if err != nil {
		t.Fatal(err)
	}
	w.Write(data)
	mw, _ := zw.Create("META-INF/MANIFEST.MF")
	mw.Write([]byte("Manifest-Version: 1.0\n"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	jar := filepath.Join(dir, "lib.jar")
	if err := os.WriteFile(jar, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	infos, err := IndexJar(jar)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("IndexJar = %d classes, want 1", len(infos))
	}

	classDir := filepath.Join(dir, "classes", "com", "example")
	os.MkdirAll(classDir, 0o755)
	os.WriteFile(filepath.Join(classDir, "Widget.class"), data, 0o644)

	snap, err := Index(filepath.Join(dir, "classes"), jar)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Len() != 1 {
		t.Errorf("Len = %d, want 1 (duplicate class collapses)", snap.Len())
	}

	r := New(snap)
	r.Push(Imports("com.example.Widget"))
	if _, err := r.Method("Widget", "run", "()V"); err != nil {
		t.Errorf("Widget.run: %v", err)
	}
	if _, err := r.Method("Widget", "helper", ""); err == nil {
		t.Error("private method was indexed")
	}
	if !r.IsSubclass("com/example/Widget", "java/lang/Runnable") {
		t.Error("Widget should implement Runnable")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	orig := NewSnapshot(
		&ClassInfo{Name: "b/B", Super: "java/lang/Object", Methods: []MethodInfo{{Name: "f", Desc: "()V", Flags: classfile.AccPublic}}},
		&ClassInfo{Name: "a/A", Super: "b/B", Fields: []FieldInfo{{Name: "x", Desc: "I"}}},
	)
	data, err := MarshalSnapshot(orig)
	if err != nil {
		t.Fatal(err)
	}
	again, err := MarshalSnapshot(orig)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("snapshot encoding is not deterministic")
	}

	path := filepath.Join(t.TempDir(), "lib.idx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveSnapshot(f, orig); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := LoadSnapshotFile(path)
	if err != nil {
		t.Fatal(err)
	}
	classes := got.Classes()
	if len(classes) != 2 || classes[0].Name != "a/A" || classes[1].Name != "b/B" {
		t.Fatalf("Classes = %+v", classes)
	}

	r := New(got)
	ref, err := r.Method("a.A", "f", "")
	if err != nil || ref.Owner.Name != "b/B" {
		t.Errorf("inherited a.A.f = %+v, %v", ref, err)
	}

	if _, err := UnmarshalSnapshot([]byte{0xff}); err == nil {
		t.Error("garbage decoded as a snapshot")
	}
}
