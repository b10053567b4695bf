package symbol

// ---------------------------------------------------------------------------
// TupleTree: Composite-key dedup
// ---------------------------------------------------------------------------

// Key is a composite key of up to three integers. Unused positions are zero.
type Key [3]int64

// K1, K2 and K3 build keys of one, two and three components.
func K1(a int64) Key { return Key{a} }
func K2(a, b int64) Key { return Key{a, b} }
func K3(a, b, c int64) Key { return Key{a, b, c} }

// TupleTree maps composite keys to small positive references.
// The first insertion of a key returns a fresh reference (1, 2, ...);
// later insertions of an identical key return the same reference.
type TupleTree struct {
	refs map[Key]int
	keys []Key // ref-1 -> key
}

// NewTupleTree creates an empty tree.
func NewTupleTree() *TupleTree {
	return &TupleTree{refs: make(map[Key]int)}
}

// Place returns the reference for key, allocating one if the key is new.
// fresh reports whether this call allocated it.
func (t *TupleTree) Place(key Key) (ref int, fresh bool) {
	if ref, ok := t.refs[key]; ok {
		return ref, false
	}
	t.keys = append(t.keys, key)
	ref = len(t.keys)
	t.refs[key] = ref
	return ref, true
}

// Seek returns the reference for key without allocating.
func (t *TupleTree) Seek(key Key) (int, bool) {
	ref, ok := t.refs[key]
	return ref, ok
}

// KeyOf returns the key stored under ref.
func (t *TupleTree) KeyOf(ref int) Key {
	return t.keys[ref-1]
}

// Len returns the number of distinct keys.
func (t *TupleTree) Len() int {
	return len(t.keys)
}
