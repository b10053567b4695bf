// Package symbol provides the name interner and the composite-key
// dedup trees shared by the class-file builders and the source parser.
package symbol

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Interner: Interned names
// ---------------------------------------------------------------------------

// ID is a stable handle for an interned name.
type ID uint32

// Interner assigns stable IDs to distinct names. Equal names always yield
// the same ID, and IDs are never reused for the lifetime of the interner.
// Each ID may carry one optional payload.
type Interner struct {
	mu     sync.RWMutex
	byName map[string]ID // name -> ID
	byID   []string      // ID -> name
	cargo  []any         // ID -> payload
}

// NewInterner creates a new empty interner.
func NewInterner() *Interner {
	return &Interner{
		byName: make(map[string]ID),
		byID:   make([]string, 0, 256),
		cargo:  make([]any, 0, 256),
	}
}

// Intern returns the ID for a name, creating a new one if needed.
func (in *Interner) Intern(name string) ID {
	// Fast path: read-only lookup
	in.mu.RLock()
	if id, ok := in.byName[name]; ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := in.byName[name]; ok {
		return id
	}

	id := ID(len(in.byID))
	in.byName[name] = id
	in.byID = append(in.byID, name)
	in.cargo = append(in.cargo, nil)
	return id
}

// InternBytes interns a byte span. The span is copied.
func (in *Interner) InternBytes(b []byte) ID {
	return in.Intern(string(b))
}

// Lookup returns the ID for a name without creating it.
func (in *Interner) Lookup(name string) (ID, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.byName[name]
	return id, ok
}

// Name returns the name for an ID. An ID the interner never issued is a
// programming error and panics.
func (in *Interner) Name(id ID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if int(id) >= len(in.byID) {
		panic(fmt.Sprintf("symbol: id %d out of range (%d interned)", id, len(in.byID)))
	}
	return in.byID[id]
}

// Attach associates a payload with an ID, replacing any previous one.
func (in *Interner) Attach(id ID, payload any) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if int(id) >= len(in.byID) {
		panic(fmt.Sprintf("symbol: id %d out of range (%d interned)", id, len(in.byID)))
	}
	in.cargo[id] = payload
}

// Payload returns the payload attached to an ID, or nil.
func (in *Interner) Payload(id ID) any {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if int(id) >= len(in.byID) {
		panic(fmt.Sprintf("symbol: id %d out of range (%d interned)", id, len(in.byID)))
	}
	return in.cargo[id]
}

// Len returns the number of interned names.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byID)
}

// All returns all names in ID order.
func (in *Interner) All() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	result := make([]string, len(in.byID))
	copy(result, in.byID)
	return result
}
