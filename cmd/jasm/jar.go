package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chazu/jasm/asm"
)

const jarManifest = "Manifest-Version: 1.0\r\nCreated-By: jasm\r\n\r\n"

// jarEpoch stamps every entry so that equal inputs produce equal jars.
var jarEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// writeJar packs classes into a jar at path, replacing any existing file.
func writeJar(path string, classes []*asm.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jasm-*.jar")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	sorted := append([]*asm.Result(nil), classes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ClassName < sorted[j].ClassName })

	zw := zip.NewWriter(tmp)
	if err := addJarEntry(zw, "META-INF/MANIFEST.MF", []byte(jarManifest)); err != nil {
		tmp.Close()
		return err
	}
	for _, c := range sorted {
		if err := addJarEntry(zw, c.ClassName+".class", c.Bytes); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func addJarEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: jarEpoch,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
