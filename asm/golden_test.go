package asm

import (
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/chazu/jasm/disasm"
)

// TestGolden assembles input.jasm from every archive in testdata and
// compares the disassembly with want.txt, or the error with the lines of
// want.err. Other files in the archive are available to .include.
func TestGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no golden archives")
	}
	for _, file := range files {
		t.Run(strings.TrimSuffix(filepath.Base(file), ".txtar"), func(t *testing.T) {
			ar, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			contents := make(MapIncluder)
			for _, f := range ar.Files {
				contents[f.Name] = string(f.Data)
			}
			src, ok := contents["input.jasm"]
			if !ok {
				t.Fatal("archive has no input.jasm")
			}

			opts := DefaultOptions()
			opts.FileName = "input.jasm"
			opts.Includer = contents
			res, err := AssembleString(src, opts)

			if want, ok := contents["want.err"]; ok {
				if err == nil {
					t.Fatal("assembled without error")
				}
				for _, line := range strings.Split(strings.TrimSpace(want), "\n") {
					if !strings.Contains(err.Error(), line) {
						t.Errorf("error %q does not contain %q", err, line)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("assemble: %v", err)
			}
			info, err := disasm.Disassemble(res.Bytes)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := disasm.FormatString(info), contents["want.txt"]; got != want {
				t.Errorf("disassembly mismatch\n--- got ---\n%s--- want ---\n%s", got, want)
			}
		})
	}
}
