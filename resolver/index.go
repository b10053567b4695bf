package resolver

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	parser "github.com/wreulicke/classfile-parser"

	"github.com/chazu/jasm/classfile"
)

// ---------------------------------------------------------------------------
// Class file indexing
// ---------------------------------------------------------------------------

// IndexClassFile extracts the resolver metadata from one class file.
// Private and synthetic members are left out.
func IndexClassFile(data []byte) (*ClassInfo, error) {
	cf, err := parser.New(bytes.NewReader(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse class file: %w", err)
	}
	cp := cf.ConstantPool

	name, err := cf.ThisClassName()
	if err != nil {
		return nil, fmt.Errorf("failed to read class name: %w", err)
	}
	info := &ClassInfo{Name: name, Flags: accessFlags(cf.AccessFlags)}
	if cf.SuperClass != 0 {
		if info.Super, err = cf.SuperClassName(); err != nil {
			return nil, fmt.Errorf("%s: superclass: %w", name, err)
		}
	}
	for _, idx := range cf.Interfaces {
		iName, err := cp.GetClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("%s: interface: %w", name, err)
		}
		info.Interfaces = append(info.Interfaces, iName)
	}

	for _, f := range cf.Fields {
		flags := accessFlags(f.AccessFlags)
		if flags&(classfile.AccPrivate|classfile.AccSynthetic) != 0 {
			continue
		}
		fName, err := f.Name(cp)
		if err != nil {
			return nil, fmt.Errorf("%s: field name: %w", name, err)
		}
		fDesc, err := f.Descriptor(cp)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: field descriptor: %w", name, fName, err)
		}
		info.Fields = append(info.Fields, FieldInfo{Name: fName, Desc: fDesc, Flags: flags})
	}

	for _, m := range cf.Methods {
		flags := accessFlags(m.AccessFlags)
		if flags&(classfile.AccPrivate|classfile.AccSynthetic) != 0 {
			continue
		}
		mName, err := m.Name(cp)
		if err != nil {
			return nil, fmt.Errorf("%s: method name: %w", name, err)
		}
		if mName == classfile.ClassInitializer {
			continue
		}
		mDesc, err := m.Descriptor(cp)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: method descriptor: %w", name, mName, err)
		}
		info.Methods = append(info.Methods, MethodInfo{Name: mName, Desc: mDesc, Flags: flags})
	}
	return info, nil
}

func accessFlags(f parser.AccessFlags) uint16 {
	var out uint16
	set := func(on bool, flag uint16) {
		if on {
			out |= flag
		}
	}
	set(f.Is(parser.ACC_PUBLIC), classfile.AccPublic)
	set(f.Is(parser.ACC_PRIVATE), classfile.AccPrivate)
	set(f.Is(parser.ACC_PROTECTED), classfile.AccProtected)
	set(f.Is(parser.ACC_STATIC), classfile.AccStatic)
	set(f.Is(parser.ACC_FINAL), classfile.AccFinal)
	set(f.Is(parser.ACC_SYNCHRONIZED), classfile.AccSynchronized)
	set(f.Is(parser.ACC_VOLATILE), classfile.AccVolatile)
	set(f.Is(parser.ACC_TRANSIENT), classfile.AccTransient)
	set(f.Is(parser.ACC_NATIVE), classfile.AccNative)
	set(f.Is(0x0200), classfile.AccInterface) // ACC_INTERFACE
	set(f.Is(parser.ACC_ABSTRACT), classfile.AccAbstract)
	set(f.Is(parser.ACC_SYNTHETIC), classfile.AccSynthetic)
	set(f.Is(parser.ACC_ENUM), classfile.AccEnum)
	return out
}

// skipEntry reports whether a class file carries no resolvable type.
func skipEntry(name string) bool {
	base := filepath.Base(name)
	return base == "module-info.class" || base == "package-info.class" ||
		strings.HasPrefix(name, "META-INF/")
}

// IndexJar indexes every class file in a jar.
func IndexJar(path string) ([]*ClassInfo, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []*ClassInfo
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".class") || skipEntry(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		buf, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		info, err := IndexClassFile(buf)
		if err != nil {
			return nil, fmt.Errorf("%s!%s: %w", path, f.Name, err)
		}
		out = append(out, info)
	}
	log.Debugf("indexed %d classes from %s", len(out), path)
	return out, nil
}

// IndexDir indexes the class files and jars below root.
func IndexDir(root string) ([]*ClassInfo, error) {
	var out []*ClassInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".class":
			rel, _ := filepath.Rel(root, path)
			if skipEntry(filepath.ToSlash(rel)) {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			info, err := IndexClassFile(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			out = append(out, info)
		case ".jar":
			infos, err := IndexJar(path)
			if err != nil {
				return err
			}
			out = append(out, infos...)
		}
		return nil
	})
	return out, err
}

// Index builds one snapshot from class files, jars and directories.
func Index(paths ...string) (*Snapshot, error) {
	var all []*ClassInfo
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		var infos []*ClassInfo
		switch {
		case st.IsDir():
			infos, err = IndexDir(p)
		case strings.HasSuffix(p, ".jar"):
			infos, err = IndexJar(p)
		case strings.HasSuffix(p, ".class"):
			var data []byte
			if data, err = os.ReadFile(p); err == nil {
				var info *ClassInfo
				if info, err = IndexClassFile(data); err == nil {
					infos = []*ClassInfo{info}
				}
			}
		default:
			err = fmt.Errorf("%s: not a class file, jar or directory", p)
		}
		if err != nil {
			return nil, err
		}
		all = append(all, infos...)
	}
	log.Infof("indexed %d classes", len(all))
	return NewSnapshot(all...), nil
}
