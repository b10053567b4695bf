package classfile

import (
	"fmt"
	"math"

	"github.com/chazu/jasm/symbol"
)

// ---------------------------------------------------------------------------
// ConstantPool: Deduplicated constant-pool builder
// ---------------------------------------------------------------------------

// ConstantPool accumulates constant-pool entries in first-use order.
// Every AsX operation looks up the entry's composite key and returns the
// existing index, or serializes a new entry and allocates the next index
// (two indices for Long and Double).
type ConstantPool struct {
	names *symbol.Interner
	buf   *Sink
	count int // slots used; the next entry gets index count+1

	trees   [tagCount]*symbol.TupleTree
	indices [tagCount][]uint16 // tree reference -> pool index
}

// NewConstantPool creates an empty pool. Names given to the AsX
// operations are IDs from names.
func NewConstantPool(names *symbol.Interner) *ConstantPool {
	p := &ConstantPool{
		names: names,
		buf:   NewSink(1024),
	}
	for i := range p.trees {
		p.trees[i] = symbol.NewTupleTree()
	}
	return p
}

// Names returns the interner the pool resolves IDs against.
func (p *ConstantPool) Names() *symbol.Interner {
	return p.names
}

// Size returns the value of the class-file constant_pool_count field:
// the number of used slots plus one.
func (p *ConstantPool) Size() int {
	return p.count + 1
}

// Dump writes the accumulated entry bytes.
func (p *ConstantPool) Dump(w *Sink) {
	w.Append(p.buf.Bytes()...)
}

// place returns the pool index stored for key, or allocates one by calling
// emit. emit writes the entry body (without the tag) and may itself
// request dependent entries; those are allocated first so they precede
// the entry that refers to them.
func (p *ConstantPool) place(tag Tag, key symbol.Key, emit func(body *Sink)) (uint16, error) {
	tree := p.trees[tag]
	if ref, ok := tree.Seek(key); ok {
		return p.indices[tag][ref-1], nil
	}

	if p.count+tag.Slots()+1 > MaxPoolSize {
		return 0, fmt.Errorf("%w: cannot add %s entry", ErrPoolOverflow, tag)
	}

	body := NewSink(8)
	emit(body)

	index := uint16(p.count + 1)
	p.count += tag.Slots()
	p.buf.U1(byte(tag))
	p.buf.Append(body.Bytes()...)

	tree.Place(key)
	p.indices[tag] = append(p.indices[tag], index)
	return index, nil
}

// AsUtf8 returns the index of a Utf8 entry holding the name of id.
func (p *ConstantPool) AsUtf8(id symbol.ID) (uint16, error) {
	if ref, ok := p.trees[TagUtf8].Seek(symbol.K1(int64(id))); ok {
		return p.indices[TagUtf8][ref-1], nil
	}
	encoded, err := ModifiedUTF8(p.names.Name(id))
	if err != nil {
		return 0, err
	}
	return p.place(TagUtf8, symbol.K1(int64(id)), func(body *Sink) {
		body.U2(uint16(len(encoded)))
		body.Append(encoded...)
	})
}

// AsUtf8String interns s and returns its Utf8 index.
func (p *ConstantPool) AsUtf8String(s string) (uint16, error) {
	return p.AsUtf8(p.names.Intern(s))
}

// AsClass returns the index of a Class entry. id names the class in
// internal form (java/lang/Object) or as an array descriptor.
func (p *ConstantPool) AsClass(id symbol.ID) (uint16, error) {
	key := symbol.K1(int64(id))
	if ref, ok := p.trees[TagClass].Seek(key); ok {
		return p.indices[TagClass][ref-1], nil
	}
	nameIdx, err := p.AsUtf8(id)
	if err != nil {
		return 0, err
	}
	return p.place(TagClass, key, func(body *Sink) {
		body.U2(nameIdx)
	})
}

// AsString returns the index of a String entry for the text of id.
func (p *ConstantPool) AsString(id symbol.ID) (uint16, error) {
	key := symbol.K1(int64(id))
	if ref, ok := p.trees[TagString].Seek(key); ok {
		return p.indices[TagString][ref-1], nil
	}
	utfIdx, err := p.AsUtf8(id)
	if err != nil {
		return 0, err
	}
	return p.place(TagString, key, func(body *Sink) {
		body.U2(utfIdx)
	})
}

// AsInteger returns the index of an Integer entry.
func (p *ConstantPool) AsInteger(v int32) (uint16, error) {
	return p.place(TagInteger, symbol.K1(int64(v)), func(body *Sink) {
		body.U4(uint32(v))
	})
}

// AsFloat returns the index of a Float entry. Entries are keyed by bit
// pattern, so 0.0 and -0.0 are distinct.
func (p *ConstantPool) AsFloat(v float32) (uint16, error) {
	bits := math.Float32bits(v)
	return p.place(TagFloat, symbol.K1(int64(bits)), func(body *Sink) {
		body.U4(bits)
	})
}

// AsLong returns the index of a Long entry. It occupies two indices.
func (p *ConstantPool) AsLong(v int64) (uint16, error) {
	return p.place(TagLong, symbol.K1(v), func(body *Sink) {
		body.U8(uint64(v))
	})
}

// AsDouble returns the index of a Double entry. It occupies two indices.
func (p *ConstantPool) AsDouble(v float64) (uint16, error) {
	bits := math.Float64bits(v)
	return p.place(TagDouble, symbol.K1(int64(bits)), func(body *Sink) {
		body.U8(bits)
	})
}

// AsNameAndType returns the index of a NameAndType entry.
func (p *ConstantPool) AsNameAndType(name, desc symbol.ID) (uint16, error) {
	key := symbol.K2(int64(name), int64(desc))
	if ref, ok := p.trees[TagNameAndType].Seek(key); ok {
		return p.indices[TagNameAndType][ref-1], nil
	}
	nameIdx, err := p.AsUtf8(name)
	if err != nil {
		return 0, err
	}
	descIdx, err := p.AsUtf8(desc)
	if err != nil {
		return 0, err
	}
	return p.place(TagNameAndType, key, func(body *Sink) {
		body.U2(nameIdx)
		body.U2(descIdx)
	})
}

// AsFieldRef returns the index of a Fieldref entry.
func (p *ConstantPool) AsFieldRef(class, name, desc symbol.ID) (uint16, error) {
	return p.memberRef(TagFieldref, class, name, desc)
}

// AsMethodRef returns the index of a Methodref entry.
func (p *ConstantPool) AsMethodRef(class, name, desc symbol.ID) (uint16, error) {
	return p.memberRef(TagMethodref, class, name, desc)
}

// AsInterfaceMethodRef returns the index of an InterfaceMethodref entry.
func (p *ConstantPool) AsInterfaceMethodRef(class, name, desc symbol.ID) (uint16, error) {
	return p.memberRef(TagInterfaceMethodref, class, name, desc)
}

func (p *ConstantPool) memberRef(tag Tag, class, name, desc symbol.ID) (uint16, error) {
	key := symbol.K3(int64(class), int64(name), int64(desc))
	if ref, ok := p.trees[tag].Seek(key); ok {
		return p.indices[tag][ref-1], nil
	}
	classIdx, err := p.AsClass(class)
	if err != nil {
		return 0, err
	}
	natIdx, err := p.AsNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.place(tag, key, func(body *Sink) {
		body.U2(classIdx)
		body.U2(natIdx)
	})
}
