package disasm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Format writes a javap-like listing of c. Pool references are printed by
// value rather than index, so the listing does not depend on pool order.
func Format(w io.Writer, c *ClassInfo) error {
	bw := bufio.NewWriter(w)
	kind := "class"
	if c.IsInterface() {
		kind = "interface"
	}
	fmt.Fprintf(bw, "%s %s\n", kind, c.Name)
	fmt.Fprintf(bw, "  version %d.%d (%s)\n", c.Major, c.Minor, c.Release)
	fmt.Fprintf(bw, "  flags %s\n", strings.Join(c.Flags, " "))
	if c.Super != "" {
		fmt.Fprintf(bw, "  extends %s\n", c.Super)
	}
	if len(c.Interfaces) > 0 {
		fmt.Fprintf(bw, "  implements %s\n", strings.Join(c.Interfaces, ", "))
	}
	if c.SourceFile != "" {
		fmt.Fprintf(bw, "  source %q\n", c.SourceFile)
	}

	for _, f := range c.Fields {
		fmt.Fprintf(bw, "\n  field %s\n", declaration(f.Flags, f.Type+" "+f.Name))
	}
	for _, m := range c.Methods {
		sig := m.Return + " " + m.Name + "(" + strings.Join(m.Params, ", ") + ")"
		fmt.Fprintf(bw, "\n  method %s\n", declaration(m.Flags, sig))
		if len(m.Exceptions) > 0 {
			fmt.Fprintf(bw, "    throws %s\n", strings.Join(m.Exceptions, ", "))
		}
		if !m.HasCode {
			continue
		}
		fmt.Fprintf(bw, "    stack %d, locals %d\n", m.MaxStack, m.MaxLocals)
		for _, ins := range m.Code {
			formatInstruction(bw, ins)
		}
	}
	return bw.Flush()
}

func declaration(flags []string, rest string) string {
	if len(flags) == 0 {
		return rest
	}
	return strings.Join(flags, " ") + " " + rest
}

func formatInstruction(w io.Writer, ins Instruction) {
	if ins.Operands != "" {
		fmt.Fprintf(w, "    %4d: %s %s\n", ins.PC, ins.Mnemonic, ins.Operands)
	} else {
		fmt.Fprintf(w, "    %4d: %s\n", ins.PC, ins.Mnemonic)
	}
	if ins.Mnemonic != "tableswitch" && ins.Mnemonic != "lookupswitch" {
		return
	}
	for _, c := range ins.Cases {
		fmt.Fprintf(w, "          %d: %d\n", c.Match, c.Target)
	}
	fmt.Fprintf(w, "          default: %d\n", ins.Default)
}

// FormatString is Format into a string.
func FormatString(c *ClassInfo) string {
	var sb strings.Builder
	Format(&sb, c)
	return sb.String()
}
