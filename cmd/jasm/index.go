package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/jasm/resolver"
)

// handleIndexCommand processes the `jasm index` subcommand. It writes a
// CBOR snapshot of the classes found in jars, class directories and class
// files, for [classpath] indexes or -cp.
func handleIndexCommand(e *env, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	out := fs.String("o", "classpath.idx", "Output `file`")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("index requires at least one jar, directory or class file")
	}

	snap, err := resolver.Index(fs.Args()...)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := resolver.SaveSnapshot(f, snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "indexed %d classes into %s\n", snap.Len(), *out)
	return nil
}
