package disasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	parser "github.com/wreulicke/classfile-parser"

	"github.com/chazu/jasm/classfile"
)

// ---------------------------------------------------------------------------
// Constant references
// ---------------------------------------------------------------------------

// constantRef renders a pool entry the way an assembler operand would name
// it. Unknown or unsupported entries fall back to #index.
func constantRef(cp *parser.ConstantPool, index uint16) string {
	if int(index) < 1 || int(index) > len(cp.Constants) {
		return fmt.Sprintf("#%d", index)
	}
	c := cp.Constants[index-1]
	if c == nil {
		return fmt.Sprintf("#%d", index)
	}

	switch v := c.(type) {
	case *parser.ConstantClass:
		if name := cp.LookupUtf8(v.NameIndex); name != nil {
			return dotted(name.String())
		}
	case *parser.ConstantString:
		if s := cp.LookupUtf8(v.StringIndex); s != nil {
			return strconv.Quote(s.String())
		}
	case *parser.ConstantFieldref:
		return memberRef(cp, v.ClassIndex, v.NameAndTypeIndex)
	case *parser.ConstantMethodref:
		return memberRef(cp, v.ClassIndex, v.NameAndTypeIndex)
	case *parser.ConstantInterfaceMethodref:
		return memberRef(cp, v.ClassIndex, v.NameAndTypeIndex)
	case *parser.ConstantInteger:
		return strconv.Itoa(int(int32(v.Bytes)))
	case *parser.ConstantFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(v.Bytes))), 'g', -1, 32) + "f"
	case *parser.ConstantLong:
		return strconv.FormatInt(int64(v.HighBytes)<<32|int64(v.LowBytes), 10) + "L"
	case *parser.ConstantUtf8:
		return v.String()
	}
	return fmt.Sprintf("#%d", index)
}

func memberRef(cp *parser.ConstantPool, classIndex, natIndex uint16) string {
	className, err := cp.GetClassName(classIndex)
	if err != nil {
		className = fmt.Sprintf("#%d", classIndex)
	}
	if int(natIndex) < 1 || int(natIndex) > len(cp.Constants) {
		return dotted(className) + ".#" + strconv.Itoa(int(natIndex))
	}
	nat, ok := cp.Constants[natIndex-1].(*parser.ConstantNameAndType)
	if !ok {
		return dotted(className) + ".#" + strconv.Itoa(int(natIndex))
	}
	name := cp.LookupUtf8(nat.NameIndex)
	desc := cp.LookupUtf8(nat.DescriptorIndex)
	if name == nil || desc == nil {
		return dotted(className) + ".?"
	}
	return dotted(className) + "." + name.String() + ":" + desc.String()
}

// ---------------------------------------------------------------------------
// Bytecode decoding
// ---------------------------------------------------------------------------

var arrayTypes = map[byte]string{
	4: "boolean", 5: "char", 6: "float", 7: "double",
	8: "byte", 9: "short", 10: "int", 11: "long",
}

// TruncatedError reports an instruction whose operands run past the end
// of the code array.
type TruncatedError struct {
	PC       int
	Mnemonic string
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%s at %d is truncated", e.Mnemonic, e.PC)
}

// Decode converts a Code attribute's byte array into instructions. Branch
// and switch targets are absolute offsets.
func Decode(code []byte, cp *parser.ConstantPool) ([]Instruction, error) {
	var out []Instruction
	i := 0
	for i < len(code) {
		op := code[i]
		name := classfile.OpcodeName(op)
		if name == "" {
			return out, fmt.Errorf("reserved opcode 0x%02x at %d", op, i)
		}
		ins := Instruction{PC: i, Mnemonic: name}
		need := func(n int) error {
			if i+n > len(code) {
				return &TruncatedError{PC: i, Mnemonic: name}
			}
			return nil
		}
		u1 := func(off int) int { return int(code[i+off]) }
		u2 := func(off int) uint16 { return binary.BigEndian.Uint16(code[i+off:]) }
		s4 := func(off int) int32 { return int32(binary.BigEndian.Uint32(code[off:])) }

		size := 1
		switch {
		case op == 0x10: // bipush
			size = 2
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = strconv.Itoa(int(int8(code[i+1])))

		case op == 0x11: // sipush
			size = 3
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = strconv.Itoa(int(int16(u2(1))))

		case op == 0x12: // ldc
			size = 2
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = constantRef(cp, uint16(code[i+1]))

		case op >= 0x15 && op <= 0x19, op >= 0x36 && op <= 0x3a, op == 0xa9: // loads, stores, ret
			size = 2
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = strconv.Itoa(u1(1))

		case op == 0x84: // iinc
			size = 3
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = fmt.Sprintf("%d, %d", u1(1), int8(code[i+2]))

		case op == 0x13, op == 0x14, op >= 0xb2 && op <= 0xb8, op == 0xbb, op == 0xbd, op == 0xc0, op == 0xc1:
			size = 3
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = constantRef(cp, u2(1))

		case op >= 0x99 && op <= 0xa8, op == 0xc6, op == 0xc7: // if*, goto, jsr, ifnull, ifnonnull
			size = 3
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = strconv.Itoa(i + int(int16(u2(1))))

		case op == 0xb9: // invokeinterface
			size = 5
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = fmt.Sprintf("%s, %d", constantRef(cp, u2(1)), u1(3))

		case op == 0xba: // invokedynamic
			size = 5
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = fmt.Sprintf("#%d", u2(1))

		case op == 0xbc: // newarray
			size = 2
			if err := need(size); err != nil {
				return out, err
			}
			if t, ok := arrayTypes[code[i+1]]; ok {
				ins.Operands = t
			} else {
				ins.Operands = strconv.Itoa(u1(1))
			}

		case op == 0xc5: // multianewarray
			size = 4
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = fmt.Sprintf("%s, %d", constantRef(cp, u2(1)), u1(3))

		case op == 0xc8, op == 0xc9: // goto_w, jsr_w
			size = 5
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = strconv.Itoa(i + int(s4(i+1)))

		case op == 0xc4: // wide
			if err := need(2); err != nil {
				return out, err
			}
			inner := code[i+1]
			ins.Mnemonic = "wide " + classfile.OpcodeName(inner)
			size = 4
			if inner == 0x84 {
				size = 6
			}
			if err := need(size); err != nil {
				return out, err
			}
			ins.Operands = strconv.Itoa(int(u2(2)))
			if inner == 0x84 {
				ins.Operands += ", " + strconv.Itoa(int(int16(u2(4))))
			}

		case op == 0xaa, op == 0xab: // tableswitch, lookupswitch
			p := (i + 4) &^ 3
			head := 8
			if op == 0xaa {
				head = 12
			}
			if p+head > len(code) {
				return out, &TruncatedError{PC: i, Mnemonic: name}
			}
			ins.Default = i + int(s4(p))
			if op == 0xaa {
				low, high := s4(p+4), s4(p+8)
				p += 12
				for v := int64(low); v <= int64(high); v++ {
					if p+4 > len(code) {
						return out, &TruncatedError{PC: i, Mnemonic: name}
					}
					ins.Cases = append(ins.Cases, Case{Match: int32(v), Target: i + int(s4(p))})
					p += 4
				}
			} else {
				n := int(s4(p + 4))
				p += 8
				for k := 0; k < n; k++ {
					if p+8 > len(code) {
						return out, &TruncatedError{PC: i, Mnemonic: name}
					}
					ins.Cases = append(ins.Cases, Case{Match: s4(p), Target: i + int(s4(p+4))})
					p += 8
				}
			}
			size = p - i
		}

		out = append(out, ins)
		i += size
	}
	return out, nil
}
