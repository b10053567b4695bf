package classfile

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Type descriptors
// ---------------------------------------------------------------------------

var primitiveDescriptors = map[string]string{
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
	"void":    "V",
}

// PrimitiveDescriptor returns the descriptor of a primitive type keyword.
func PrimitiveDescriptor(keyword string) (string, bool) {
	d, ok := primitiveDescriptors[keyword]
	return d, ok
}

// ClassDescriptor returns the field descriptor of a class in internal form.
func ClassDescriptor(internalName string) string {
	return "L" + internalName + ";"
}

// InternalName converts a dotted class name to internal form.
func InternalName(dotted string) string {
	return strings.ReplaceAll(dotted, ".", "/")
}

// SlotSize returns the number of local-variable or operand-stack slots a
// value of the given field descriptor occupies.
func SlotSize(desc string) int {
	switch desc {
	case "J", "D":
		return 2
	case "V", "":
		return 0
	}
	return 1
}

// IsPrimitive reports whether desc is a primitive (non-reference) type.
func IsPrimitive(desc string) bool {
	return len(desc) == 1 && desc != "V"
}

// scanFieldDescriptor returns the length of the field descriptor starting
// at desc[0], or an error.
func scanFieldDescriptor(desc string) (int, error) {
	i := 0
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return 0, fmt.Errorf("truncated descriptor %q", desc)
	}
	switch desc[i] {
	case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end <= 1 {
			return 0, fmt.Errorf("missing ';' in class descriptor %q", desc)
		}
		return i + end + 1, nil
	}
	return 0, fmt.Errorf("illegal descriptor symbol '%c' in %q", desc[i], desc)
}

// ValidFieldDescriptor reports whether desc is exactly one field descriptor.
func ValidFieldDescriptor(desc string) bool {
	n, err := scanFieldDescriptor(desc)
	return err == nil && n == len(desc)
}

// ParseMethodDescriptor splits a method descriptor into parameter and
// return descriptors.
func ParseMethodDescriptor(desc string) (params []string, ret string, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("method descriptor %q must start with '('", desc)
	}
	rest := desc[1:]
	for {
		if rest == "" {
			return nil, "", fmt.Errorf("unclosed bracket ')' in method descriptor %q", desc)
		}
		if rest[0] == ')' {
			rest = rest[1:]
			break
		}
		n, err := scanFieldDescriptor(rest)
		if err != nil {
			return nil, "", err
		}
		params = append(params, rest[:n])
		rest = rest[n:]
	}
	if rest == "V" {
		return params, "V", nil
	}
	n, err := scanFieldDescriptor(rest)
	if err != nil {
		return nil, "", err
	}
	if n != len(rest) {
		return nil, "", fmt.Errorf("trailing text after return type in %q", desc)
	}
	return params, rest, nil
}

// ArgSlots returns the total slot size of a method's parameters and the
// slot size of its return value.
func ArgSlots(desc string) (args, ret int, err error) {
	params, r, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range params {
		args += SlotSize(p)
	}
	return args, SlotSize(r), nil
}

// BuildMethodDescriptor builds a method descriptor from its parts.
func BuildMethodDescriptor(params []string, ret string) string {
	return "(" + strings.Join(params, "") + ")" + ret
}
