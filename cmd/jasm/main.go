// jasm assembles .jasm sources into JVM class files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/manifest"
	"github.com/chazu/jasm/resolver"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("jasm.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// commands maps subcommand names to handlers. Anything else on the command
// line is a source file to assemble.
var commands = map[string]func(env *env, args []string) error{
	"inspect": handleInspectCommand,
	"index":   handleIndexCommand,
	"lsp":     handleLSPCommand,
	"serve":   handleServeCommand,
}

// env is the state shared by every subcommand.
type env struct {
	dir    string
	m      *manifest.Manifest // nil without jasm.toml
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jasm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Verbose output")
	logFile := fs.String("log", "", "Write log output to `file` instead of stderr")
	dir := fs.String("C", ".", "Run as if started in `dir`")
	af := registerAssembleFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: jasm [options] [files...]\n")
		fmt.Fprintf(stderr, "       jasm [options] <command> [arguments]\n\n")
		fmt.Fprintf(stderr, "Assembles .jasm files into class files. Without files, assembles the\n")
		fmt.Fprintf(stderr, "source directories named in jasm.toml.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nCommands:\n")
		fmt.Fprintf(stderr, "  inspect [-json] <file.class>...     Disassemble class files\n")
		fmt.Fprintf(stderr, "  index -o <out.idx> <jar|dir|class>... Build a classpath index\n")
		fmt.Fprintf(stderr, "  lsp                                  Run the language server on stdio\n")
		fmt.Fprintf(stderr, "  serve [-addr host:port] [-grpc host:port]  Run the assembly service\n")
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  jasm Hello.jasm                 # writes ./Hello.class (package path respected)\n")
		fmt.Fprintf(stderr, "  jasm -d out -version 1.8 src/*.jasm\n")
		fmt.Fprintf(stderr, "  jasm inspect out/demo/Hello.class\n")
		fmt.Fprintf(stderr, "  jasm index -o rt.idx lib/rt.jar\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	configureLogging(*verbose, *logFile)

	e := &env{dir: *dir, stdout: stdout, stderr: stderr}
	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	e.m = m
	if m != nil {
		log.Infof("using %s", filepath.Join(m.Dir, manifest.FileName))
	}

	rest := fs.Args()
	if len(rest) > 0 {
		if handler, ok := commands[rest[0]]; ok {
			err = handler(e, rest[1:])
			return report(stderr, err)
		}
	}
	return report(stderr, assemble(e, af, rest))
}

func report(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func configureLogging(verbose bool, path string) {
	verbosity := 0
	if verbose {
		verbosity = 2
	}
	var p *string
	if path != "" {
		p = &path
	}
	commonlog.Configure(verbosity, p)
}

// assemblerOptions returns the manifest's assembler options, or the
// defaults without a manifest.
func (e *env) assemblerOptions() (asm.Options, error) {
	if e.m == nil {
		return asm.DefaultOptions(), nil
	}
	return e.m.AssemblerOptions()
}

// resolver loads the classpath of the manifest, plus extra index, jar or
// class directory paths.
func (e *env) resolver(extra []string) (*resolver.Resolver, error) {
	res := resolver.New()
	if e.m != nil {
		var err error
		if res, err = e.m.LoadResolver(); err != nil {
			return nil, err
		}
	}
	if len(extra) > 0 {
		snap, err := loadClasspath(extra)
		if err != nil {
			return nil, err
		}
		res.Push(snap)
	}
	return res, nil
}

// loadClasspath reads .idx files as snapshots and indexes everything else.
func loadClasspath(paths []string) (*resolver.Snapshot, error) {
	var snaps []*resolver.Snapshot
	var index []string
	for _, p := range paths {
		if filepath.Ext(p) == ".idx" {
			s, err := resolver.LoadSnapshotFile(p)
			if err != nil {
				return nil, err
			}
			snaps = append(snaps, s)
			continue
		}
		index = append(index, p)
	}
	if len(index) > 0 {
		s, err := resolver.Index(index...)
		if err != nil {
			return nil, fmt.Errorf("indexing classpath: %w", err)
		}
		snaps = append(snaps, s)
	}
	return resolver.Merge(snaps...), nil
}
