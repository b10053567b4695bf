package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/jasm/disasm"
)

// handleInspectCommand processes the `jasm inspect` subcommand.
// Usage:
//
//	jasm inspect Hello.class           # text listing
//	jasm inspect -json Hello.class     # decoded structure as JSON
//	jasm inspect - < Hello.class       # read stdin
func handleInspectCommand(e *env, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	asJSON := fs.Bool("json", false, "Print the decoded class as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("inspect requires at least one class file")
	}

	var result *multierror.Error
	for i, path := range fs.Args() {
		info, err := inspectFile(path)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if *asJSON {
			enc := json.NewEncoder(e.stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(info); err != nil {
				return err
			}
			continue
		}
		if i > 0 {
			fmt.Fprintln(e.stdout)
		}
		if err := disasm.Format(e.stdout, info); err != nil {
			return err
		}
	}
	return result.ErrorOrNil()
}

func inspectFile(path string) (*disasm.ClassInfo, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return disasm.Disassemble(data)
}
