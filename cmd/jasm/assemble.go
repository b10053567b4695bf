package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/classfile"
)

// assembleFlags override the [assembler] and [output] tables of jasm.toml.
type assembleFlags struct {
	outDir    *string
	jar       *string
	version   *string
	stack     *string
	lines     *string
	noLocals  *bool
	lenient   *bool
	classpath *string
}

func registerAssembleFlags(fs *flag.FlagSet) *assembleFlags {
	return &assembleFlags{
		outDir:    fs.String("d", "", "Write class files below `dir` (default: [output] dir, or .)"),
		jar:       fs.String("jar", "", "Also pack the classes into `file`"),
		version:   fs.String("version", "", "Default class-file `version` (52, 52.0, 8 or 1.8)"),
		stack:     fs.String("stack", "", "Default stack `mode`: optimistic or pessimistic"),
		lines:     fs.String("lines", "", "Line-number `mode`: auto, manual or none"),
		noLocals:  fs.Bool("no-locals", false, "Omit LocalVariableTable attributes"),
		lenient:   fs.Bool("lenient", false, "Trust qualified class names the classpath does not know"),
		classpath: fs.String("cp", "", "Extra classpath: comma-separated jars, class directories or .idx files"),
	}
}

func (f *assembleFlags) apply(opts *asm.Options) error {
	if *f.version != "" {
		if _, _, err := asm.ParseVersion(*f.version); err != nil {
			return err
		}
		opts.Version = *f.version
	}
	if *f.stack != "" {
		mode, err := classfile.ParseStackMode(*f.stack)
		if err != nil {
			return err
		}
		opts.StackMode = mode
	}
	if *f.lines != "" {
		mode, err := asm.ParseLineMode(*f.lines)
		if err != nil {
			return err
		}
		opts.LineMode = mode
	}
	if *f.noLocals {
		opts.LocalVars = false
	}
	if *f.lenient {
		opts.Lenient = true
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// assemble assembles every file and writes the classes that succeeded.
// Failures are collected and reported together.
func assemble(e *env, f *assembleFlags, files []string) error {
	opts, err := e.assemblerOptions()
	if err != nil {
		return err
	}
	if err := f.apply(&opts); err != nil {
		return err
	}
	res, err := e.resolver(splitList(*f.classpath))
	if err != nil {
		return err
	}
	opts.Resolver = res

	if len(files) == 0 {
		if e.m == nil {
			return fmt.Errorf("no input files and no jasm.toml found")
		}
		if files, err = e.m.SourceFiles(); err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no .jasm files in %s", strings.Join(e.m.Source.Dirs, ", "))
		}
	}

	outDir := *f.outDir
	if outDir == "" {
		outDir = e.dir
		if e.m != nil {
			outDir = e.m.OutputDir()
		}
	}
	jarPath := *f.jar
	if jarPath == "" && e.m != nil {
		jarPath = e.m.JarPath()
	}

	var result *multierror.Error
	var done []*asm.Result
	seen := make(map[string]string)
	for _, file := range files {
		out, err := asm.AssembleFile(file, opts)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if prev, ok := seen[out.ClassName]; ok {
			result = multierror.Append(result, fmt.Errorf("%s: class %s already defined in %s", file, out.ClassName, prev))
			continue
		}
		seen[out.ClassName] = file
		if err := writeClass(outDir, out); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		log.Infof("%s -> %s", file, filepath.Join(outDir, out.Path()))
		done = append(done, out)
	}

	if jarPath != "" && len(done) > 0 {
		if err := writeJar(jarPath, done); err != nil {
			result = multierror.Append(result, err)
		} else {
			log.Infof("packed %d classes into %s", len(done), jarPath)
		}
	}
	if result != nil {
		result.ErrorFormat = listErrors
	}
	return result.ErrorOrNil()
}

func writeClass(outDir string, r *asm.Result) error {
	path := filepath.Join(outDir, r.Path())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, r.Bytes, 0o644)
}

// listErrors prints one fault per line, the way compilers do.
func listErrors(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	if len(errs) == 1 {
		return lines[0]
	}
	return fmt.Sprintf("%d files failed:\n  %s", len(errs), strings.Join(lines, "\n  "))
}
