package classfile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/jasm/symbol"
)

func TestPoolDedup(t *testing.T) {
	names := symbol.NewInterner()
	p := NewConstantPool(names)

	obj := names.Intern("java/lang/Object")
	a, err := p.AsClass(obj)
	if err != nil {
		t.Fatal(err)
	}
	before := p.buf.Len()
	b, err := p.AsClass(obj)
	if err != nil {
		t.Fatal(err)
	}

	if a != b {
		t.Errorf("AsClass index = %d, want %d", b, a)
	}
	if p.buf.Len() != before {
		t.Errorf("pool grew by %d bytes on a repeated request", p.buf.Len()-before)
	}
	// Utf8 name first, then the Class entry
	if a != 2 {
		t.Errorf("class index = %d, want 2", a)
	}
	if p.Size() != 3 {
		t.Errorf("Size = %d, want 3", p.Size())
	}
}

func TestPoolWideConstantsTakeTwoSlots(t *testing.T) {
	p := NewConstantPool(symbol.NewInterner())

	l, _ := p.AsLong(1 << 40)
	d, _ := p.AsDouble(2.5)
	i, _ := p.AsInteger(7)

	if l != 1 || d != 3 || i != 5 {
		t.Errorf("indices = %d, %d, %d, want 1, 3, 5", l, d, i)
	}
	if p.Size() != 6 {
		t.Errorf("Size = %d, want 6", p.Size())
	}
}

func TestPoolFloatKeyedByBits(t *testing.T) {
	p := NewConstantPool(symbol.NewInterner())
	pos, _ := p.AsFloat(0.0)
	neg, _ := p.AsFloat(float32(negZero()))
	if pos == neg {
		t.Error("0.0 and -0.0 share a pool entry")
	}
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestPoolMemberRefBytes(t *testing.T) {
	names := symbol.NewInterner()
	p := NewConstantPool(names)

	idx, err := p.AsMethodRef(names.Intern("java/lang/Object"), names.Intern("<init>"), names.Intern("()V"))
	if err != nil {
		t.Fatal(err)
	}
	// 1 Utf8 class name, 2 Class, 3 Utf8 <init>, 4 Utf8 ()V, 5 NameAndType, 6 Methodref
	if idx != 6 {
		t.Errorf("methodref index = %d, want 6", idx)
	}

	out := NewSink(64)
	p.Dump(out)
	data := out.Bytes()

	tail := data[len(data)-5:]
	want := []byte{byte(TagMethodref), 0, 2, 0, 5}
	if !bytes.Equal(tail, want) {
		t.Errorf("methodref bytes = % x, want % x", tail, want)
	}
	if data[0] != byte(TagUtf8) || data[1] != 0 || data[2] != 16 {
		t.Errorf("first entry header = % x, want Utf8 of length 16", data[:3])
	}

	// A field ref with the same name-and-type reuses entries 1-5.
	f, _ := p.AsFieldRef(names.Intern("java/lang/Object"), names.Intern("<init>"), names.Intern("()V"))
	if f != 7 {
		t.Errorf("fieldref index = %d, want 7", f)
	}
}

func TestPoolStringAndUtf8Share(t *testing.T) {
	names := symbol.NewInterner()
	p := NewConstantPool(names)

	s, _ := p.AsString(names.Intern("hello"))
	u, _ := p.AsUtf8String("hello")
	if s != 2 || u != 1 {
		t.Errorf("string = %d, utf8 = %d, want 2, 1", s, u)
	}
}

func TestPoolOverflow(t *testing.T) {
	p := NewConstantPool(symbol.NewInterner())

	for i := int32(0); i < MaxPoolSize-1; i++ {
		if _, err := p.AsInteger(i); err != nil {
			t.Fatalf("AsInteger(%d) failed early: %v", i, err)
		}
	}
	if p.Size() != MaxPoolSize {
		t.Fatalf("Size = %d, want %d", p.Size(), MaxPoolSize)
	}

	// Existing entries still resolve.
	if idx, err := p.AsInteger(0); err != nil || idx != 1 {
		t.Errorf("AsInteger(0) = %d, %v, want 1, nil", idx, err)
	}

	_, err := p.AsInteger(MaxPoolSize)
	if !errors.Is(err, ErrPoolOverflow) {
		t.Errorf("err = %v, want ErrPoolOverflow", err)
	}
	// Deterministic: the same request fails the same way.
	_, err = p.AsInteger(MaxPoolSize)
	if !errors.Is(err, ErrPoolOverflow) {
		t.Errorf("second err = %v, want ErrPoolOverflow", err)
	}
}

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"A", []byte{'A'}},
		{"\x00", []byte{0xC0, 0x80}},
		{"é", []byte{0xC3, 0xA9}},
		{"€", []byte{0xE2, 0x82, 0xAC}},
		{"😀", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tt := range tests {
		got, err := ModifiedUTF8(tt.in)
		if err != nil {
			t.Fatalf("ModifiedUTF8(%q): %v", tt.in, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("ModifiedUTF8(%q) = % x, want % x", tt.in, got, tt.want)
		}
		if back := DecodeModifiedUTF8(got); back != tt.in {
			t.Errorf("DecodeModifiedUTF8(% x) = %q, want %q", got, back, tt.in)
		}
	}
}
