package asm

// Mnemonics returns every instruction mnemonic the assembler accepts,
// sorted. Unsupported ones (jsr, invokedynamic) are included; they are
// rejected with a fault when used.
func Mnemonics() []string {
	return mnemonics()
}

// Directives returns the directive names without their leading dot,
// sorted.
func Directives() []string {
	return directiveNames()
}

// Opcode returns the opcode byte of mnemonic.
func Opcode(mnemonic string) (byte, bool) {
	ins, ok := instructions[mnemonic]
	return ins.op, ok
}
