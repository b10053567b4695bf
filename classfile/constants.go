// Package classfile builds the binary class-file layout: the constant
// pool, method bodies with branch resolution, method and field tables,
// and the final big-endian serialization.
package classfile

// ---------------------------------------------------------------------------
// Class File Format Constants
// ---------------------------------------------------------------------------

// Magic identifies a class file.
const Magic uint32 = 0xCAFEBABE

// Default class-file version. Version 50 still lets the verifier fall back
// to type inference when no stack-map frames are present.
const (
	DefaultMajor uint16 = 50
	DefaultMinor uint16 = 0
)

// Supported version range.
const (
	MinMajor uint16 = 45
	MaxMajor uint16 = 65
)

// MaxPoolSize is the largest value the constant-pool count field may hold.
const MaxPoolSize = 65535

// Tag identifies the kind of a constant-pool entry.
type Tag byte

// Constant-pool tags
const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
)

const tagCount = 13

var tagNames = [tagCount]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
}

// String implements the Stringer interface.
func (t Tag) String() string {
	if int(t) < tagCount && tagNames[t] != "" {
		return tagNames[t]
	}
	return "Tag(?)"
}

// Slots returns the number of pool indices an entry of this kind occupies.
func (t Tag) Slots() int {
	if t == TagLong || t == TagDouble {
		return 2
	}
	return 1
}

// Access flags
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSuper        uint16 = 0x0020
	AccSynchronized uint16 = 0x0020
	AccVolatile     uint16 = 0x0040
	AccBridge       uint16 = 0x0040
	AccTransient    uint16 = 0x0080
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
)

// Attribute names
const (
	AttrCode               = "Code"
	AttrExceptions         = "Exceptions"
	AttrConstantValue      = "ConstantValue"
	AttrSourceFile         = "SourceFile"
	AttrLineNumberTable    = "LineNumberTable"
	AttrLocalVariableTable = "LocalVariableTable"
)

// Well-known names
const (
	ObjectClass      = "java/lang/Object"
	StringClass      = "java/lang/String"
	ConstructorName  = "<init>"
	ClassInitializer = "<clinit>"
)
