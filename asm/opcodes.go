package asm

// ---------------------------------------------------------------------------
// Instruction table
// ---------------------------------------------------------------------------

// shape is the operand encoding of an instruction.
type shape uint8

const (
	shapeNone        shape = iota
	shapeLocal             // local variable index
	shapeIinc              // local variable index, signed increment
	shapeByte              // signed byte immediate
	shapeShort             // signed short immediate
	shapeArrayType         // newarray type tag
	shapeClass             // class pool index
	shapeMultiArray        // class pool index, dimensions
	shapeLdc               // constant needing a fresh pool slot
	shapeLdcWide           // ldc_w
	shapeLdc2              // long or double constant
	shapeBranch            // signed 16-bit offset
	shapeBranchWide        // signed 32-bit offset
	shapeField             // field reference
	shapeMethod            // method reference
	shapeSwitch            // tableswitch or lookupswitch body
	shapeUnsupported
)

// instruction describes one mnemonic. delta is the operand-stack effect
// for shapes whose effect does not depend on the operand.
type instruction struct {
	op     byte
	shape  shape
	delta  int
	noFall bool // control never falls through to the next instruction
}

// instructions is keyed by mnemonic.
var instructions = map[string]instruction{
	"nop":         {0x00, shapeNone, 0, false},
	"aconst_null": {0x01, shapeNone, 1, false},
	"iconst_m1":   {0x02, shapeNone, 1, false},
	"iconst_0":    {0x03, shapeNone, 1, false},
	"iconst_1":    {0x04, shapeNone, 1, false},
	"iconst_2":    {0x05, shapeNone, 1, false},
	"iconst_3":    {0x06, shapeNone, 1, false},
	"iconst_4":    {0x07, shapeNone, 1, false},
	"iconst_5":    {0x08, shapeNone, 1, false},
	"lconst_0":    {0x09, shapeNone, 2, false},
	"lconst_1":    {0x0a, shapeNone, 2, false},
	"fconst_0":    {0x0b, shapeNone, 1, false},
	"fconst_1":    {0x0c, shapeNone, 1, false},
	"fconst_2":    {0x0d, shapeNone, 1, false},
	"dconst_0":    {0x0e, shapeNone, 2, false},
	"dconst_1":    {0x0f, shapeNone, 2, false},
	"bipush":      {0x10, shapeByte, 1, false},
	"sipush":      {0x11, shapeShort, 1, false},
	"ldc":         {0x12, shapeLdc, 1, false},
	"ldc_w":       {0x13, shapeLdcWide, 1, false},
	"ldc2_w":      {0x14, shapeLdc2, 2, false},

	"iload": {0x15, shapeLocal, 1, false},
	"lload": {0x16, shapeLocal, 2, false},
	"fload": {0x17, shapeLocal, 1, false},
	"dload": {0x18, shapeLocal, 2, false},
	"aload": {0x19, shapeLocal, 1, false},

	"iload_0": {0x1a, shapeNone, 1, false},
	"iload_1": {0x1b, shapeNone, 1, false},
	"iload_2": {0x1c, shapeNone, 1, false},
	"iload_3": {0x1d, shapeNone, 1, false},
	"lload_0": {0x1e, shapeNone, 2, false},
	"lload_1": {0x1f, shapeNone, 2, false},
	"lload_2": {0x20, shapeNone, 2, false},
	"lload_3": {0x21, shapeNone, 2, false},
	"fload_0": {0x22, shapeNone, 1, false},
	"fload_1": {0x23, shapeNone, 1, false},
	"fload_2": {0x24, shapeNone, 1, false},
	"fload_3": {0x25, shapeNone, 1, false},
	"dload_0": {0x26, shapeNone, 2, false},
	"dload_1": {0x27, shapeNone, 2, false},
	"dload_2": {0x28, shapeNone, 2, false},
	"dload_3": {0x29, shapeNone, 2, false},
	"aload_0": {0x2a, shapeNone, 1, false},
	"aload_1": {0x2b, shapeNone, 1, false},
	"aload_2": {0x2c, shapeNone, 1, false},
	"aload_3": {0x2d, shapeNone, 1, false},

	"iaload": {0x2e, shapeNone, -1, false},
	"laload": {0x2f, shapeNone, 0, false},
	"faload": {0x30, shapeNone, -1, false},
	"daload": {0x31, shapeNone, 0, false},
	"aaload": {0x32, shapeNone, -1, false},
	"baload": {0x33, shapeNone, -1, false},
	"caload": {0x34, shapeNone, -1, false},
	"saload": {0x35, shapeNone, -1, false},

	"istore": {0x36, shapeLocal, -1, false},
	"lstore": {0x37, shapeLocal, -2, false},
	"fstore": {0x38, shapeLocal, -1, false},
	"dstore": {0x39, shapeLocal, -2, false},
	"astore": {0x3a, shapeLocal, -1, false},

	"istore_0": {0x3b, shapeNone, -1, false},
	"istore_1": {0x3c, shapeNone, -1, false},
	"istore_2": {0x3d, shapeNone, -1, false},
	"istore_3": {0x3e, shapeNone, -1, false},
	"lstore_0": {0x3f, shapeNone, -2, false},
	"lstore_1": {0x40, shapeNone, -2, false},
	"lstore_2": {0x41, shapeNone, -2, false},
	"lstore_3": {0x42, shapeNone, -2, false},
	"fstore_0": {0x43, shapeNone, -1, false},
	"fstore_1": {0x44, shapeNone, -1, false},
	"fstore_2": {0x45, shapeNone, -1, false},
	"fstore_3": {0x46, shapeNone, -1, false},
	"dstore_0": {0x47, shapeNone, -2, false},
	"dstore_1": {0x48, shapeNone, -2, false},
	"dstore_2": {0x49, shapeNone, -2, false},
	"dstore_3": {0x4a, shapeNone, -2, false},
	"astore_0": {0x4b, shapeNone, -1, false},
	"astore_1": {0x4c, shapeNone, -1, false},
	"astore_2": {0x4d, shapeNone, -1, false},
	"astore_3": {0x4e, shapeNone, -1, false},

	"iastore": {0x4f, shapeNone, -3, false},
	"lastore": {0x50, shapeNone, -4, false},
	"fastore": {0x51, shapeNone, -3, false},
	"dastore": {0x52, shapeNone, -4, false},
	"aastore": {0x53, shapeNone, -3, false},
	"bastore": {0x54, shapeNone, -3, false},
	"castore": {0x55, shapeNone, -3, false},
	"sastore": {0x56, shapeNone, -3, false},

	"pop":     {0x57, shapeNone, -1, false},
	"pop2":    {0x58, shapeNone, -2, false},
	"dup":     {0x59, shapeNone, 1, false},
	"dup_x1":  {0x5a, shapeNone, 1, false},
	"dup_x2":  {0x5b, shapeNone, 1, false},
	"dup2":    {0x5c, shapeNone, 2, false},
	"dup2_x1": {0x5d, shapeNone, 2, false},
	"dup2_x2": {0x5e, shapeNone, 2, false},
	"swap":    {0x5f, shapeNone, 0, false},

	"iadd": {0x60, shapeNone, -1, false},
	"ladd": {0x61, shapeNone, -2, false},
	"fadd": {0x62, shapeNone, -1, false},
	"dadd": {0x63, shapeNone, -2, false},
	"isub": {0x64, shapeNone, -1, false},
	"lsub": {0x65, shapeNone, -2, false},
	"fsub": {0x66, shapeNone, -1, false},
	"dsub": {0x67, shapeNone, -2, false},
	"imul": {0x68, shapeNone, -1, false},
	"lmul": {0x69, shapeNone, -2, false},
	"fmul": {0x6a, shapeNone, -1, false},
	"dmul": {0x6b, shapeNone, -2, false},
	"idiv": {0x6c, shapeNone, -1, false},
	"ldiv": {0x6d, shapeNone, -2, false},
	"fdiv": {0x6e, shapeNone, -1, false},
	"ddiv": {0x6f, shapeNone, -2, false},
	"irem": {0x70, shapeNone, -1, false},
	"lrem": {0x71, shapeNone, -2, false},
	"frem": {0x72, shapeNone, -1, false},
	"drem": {0x73, shapeNone, -2, false},
	"ineg": {0x74, shapeNone, 0, false},
	"lneg": {0x75, shapeNone, 0, false},
	"fneg": {0x76, shapeNone, 0, false},
	"dneg": {0x77, shapeNone, 0, false},

	"ishl":  {0x78, shapeNone, -1, false},
	"lshl":  {0x79, shapeNone, -1, false},
	"ishr":  {0x7a, shapeNone, -1, false},
	"lshr":  {0x7b, shapeNone, -1, false},
	"iushr": {0x7c, shapeNone, -1, false},
	"lushr": {0x7d, shapeNone, -1, false},
	"iand":  {0x7e, shapeNone, -1, false},
	"land":  {0x7f, shapeNone, -2, false},
	"ior":   {0x80, shapeNone, -1, false},
	"lor":   {0x81, shapeNone, -2, false},
	"ixor":  {0x82, shapeNone, -1, false},
	"lxor":  {0x83, shapeNone, -2, false},
	"iinc":  {0x84, shapeIinc, 0, false},

	"i2l": {0x85, shapeNone, 1, false},
	"i2f": {0x86, shapeNone, 0, false},
	"i2d": {0x87, shapeNone, 1, false},
	"l2i": {0x88, shapeNone, -1, false},
	"l2f": {0x89, shapeNone, -1, false},
	"l2d": {0x8a, shapeNone, 0, false},
	"f2i": {0x8b, shapeNone, 0, false},
	"f2l": {0x8c, shapeNone, 1, false},
	"f2d": {0x8d, shapeNone, 1, false},
	"d2i": {0x8e, shapeNone, -1, false},
	"d2l": {0x8f, shapeNone, 0, false},
	"d2f": {0x90, shapeNone, -1, false},
	"i2b": {0x91, shapeNone, 0, false},
	"i2c": {0x92, shapeNone, 0, false},
	"i2s": {0x93, shapeNone, 0, false},

	"lcmp":  {0x94, shapeNone, -3, false},
	"fcmpl": {0x95, shapeNone, -1, false},
	"fcmpg": {0x96, shapeNone, -1, false},
	"dcmpl": {0x97, shapeNone, -3, false},
	"dcmpg": {0x98, shapeNone, -3, false},

	"ifeq":      {0x99, shapeBranch, -1, false},
	"ifne":      {0x9a, shapeBranch, -1, false},
	"iflt":      {0x9b, shapeBranch, -1, false},
	"ifge":      {0x9c, shapeBranch, -1, false},
	"ifgt":      {0x9d, shapeBranch, -1, false},
	"ifle":      {0x9e, shapeBranch, -1, false},
	"if_icmpeq": {0x9f, shapeBranch, -2, false},
	"if_icmpne": {0xa0, shapeBranch, -2, false},
	"if_icmplt": {0xa1, shapeBranch, -2, false},
	"if_icmpge": {0xa2, shapeBranch, -2, false},
	"if_icmpgt": {0xa3, shapeBranch, -2, false},
	"if_icmple": {0xa4, shapeBranch, -2, false},
	"if_acmpeq": {0xa5, shapeBranch, -2, false},
	"if_acmpne": {0xa6, shapeBranch, -2, false},
	"goto":      {0xa7, shapeBranch, 0, true},
	"jsr":       {0xa8, shapeUnsupported, 0, false},
	"ret":       {0xa9, shapeUnsupported, 0, false},

	"tableswitch":  {0xaa, shapeSwitch, -1, true},
	"lookupswitch": {0xab, shapeSwitch, -1, true},

	"ireturn": {0xac, shapeNone, -1, true},
	"lreturn": {0xad, shapeNone, -2, true},
	"freturn": {0xae, shapeNone, -1, true},
	"dreturn": {0xaf, shapeNone, -2, true},
	"areturn": {0xb0, shapeNone, -1, true},
	"return":  {0xb1, shapeNone, 0, true},

	"getstatic":       {0xb2, shapeField, 0, false},
	"putstatic":       {0xb3, shapeField, 0, false},
	"getfield":        {0xb4, shapeField, 0, false},
	"putfield":        {0xb5, shapeField, 0, false},
	"invokevirtual":   {0xb6, shapeMethod, 0, false},
	"invokespecial":   {0xb7, shapeMethod, 0, false},
	"invokestatic":    {0xb8, shapeMethod, 0, false},
	"invokeinterface": {0xb9, shapeMethod, 0, false},
	"invokedynamic":   {0xba, shapeUnsupported, 0, false},

	"new":          {0xbb, shapeClass, 1, false},
	"newarray":     {0xbc, shapeArrayType, 0, false},
	"anewarray":    {0xbd, shapeClass, 0, false},
	"arraylength":  {0xbe, shapeNone, 0, false},
	"athrow":       {0xbf, shapeNone, -1, true},
	"checkcast":    {0xc0, shapeClass, 0, false},
	"instanceof":   {0xc1, shapeClass, 0, false},
	"monitorenter": {0xc2, shapeNone, -1, false},
	"monitorexit":  {0xc3, shapeNone, -1, false},

	"wide":           {0xc4, shapeUnsupported, 0, false},
	"multianewarray": {0xc5, shapeMultiArray, 0, false},
	"ifnull":         {0xc6, shapeBranch, -1, false},
	"ifnonnull":      {0xc7, shapeBranch, -1, false},
	"goto_w":         {0xc8, shapeBranchWide, 0, true},
	"jsr_w":          {0xc9, shapeUnsupported, 0, false},
}

// Opcodes the encoders emit on their own.
const (
	opIconst0 byte = 0x03
	opBipush  byte = 0x10
	opLdc     byte = 0x12
	opLdcW    byte = 0x13
	opIinc    byte = 0x84
	opWide    byte = 0xc4

	opInvokestatic    byte = 0xb8
	opInvokeinterface byte = 0xb9
)

// arrayTypes maps newarray keywords to their type tags.
var arrayTypes = map[string]byte{
	"boolean": 4,
	"char":    5,
	"float":   6,
	"double":  7,
	"byte":    8,
	"short":   9,
	"int":     10,
	"long":    11,
}

// shortLocal returns the one-byte form of a load or store of slot 0..3.
func shortLocal(op byte, slot int) byte {
	if op >= 0x36 {
		return 0x3b + (op-0x36)*4 + byte(slot)
	}
	return 0x1a + (op-0x15)*4 + byte(slot)
}

// isStore reports whether op is a local-variable store.
func isStore(op byte) bool {
	return op >= 0x36 && op <= 0x3a
}
