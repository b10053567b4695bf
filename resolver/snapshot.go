package resolver

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is an immutable set of known classes plus import aliases.
// Resolvers stack snapshots; none of them is ever modified after
// construction, so a snapshot may be shared freely between resolvers.
type Snapshot struct {
	classes  map[string]*ClassInfo // internal name -> info
	aliases  map[string]string     // simple name -> internal name
	packages []string              // on-demand imports, internal form
}

// NewSnapshot builds a snapshot over classes. Later duplicates win.
func NewSnapshot(classes ...*ClassInfo) *Snapshot {
	s := &Snapshot{classes: make(map[string]*ClassInfo, len(classes))}
	for _, c := range classes {
		s.classes[c.Name] = c
	}
	return s
}

// Imports builds an alias-only snapshot from import names in source form.
// A trailing ".*" imports a whole package on demand.
func Imports(names ...string) *Snapshot {
	s := &Snapshot{aliases: make(map[string]string)}
	for _, n := range names {
		internal := internalName(n)
		if pkg, ok := strings.CutSuffix(internal, "/*"); ok {
			s.packages = append(s.packages, pkg)
			continue
		}
		s.aliases[simpleName(internal)] = internal
	}
	return s
}

// Merge returns a snapshot holding the classes of every argument.
func Merge(snaps ...*Snapshot) *Snapshot {
	out := &Snapshot{classes: make(map[string]*ClassInfo), aliases: make(map[string]string)}
	for _, s := range snaps {
		if s == nil {
			continue
		}
		for k, v := range s.classes {
			out.classes[k] = v
		}
		for k, v := range s.aliases {
			out.aliases[k] = v
		}
		out.packages = append(out.packages, s.packages...)
	}
	return out
}

// Class looks up a class by internal name.
func (s *Snapshot) Class(internal string) (*ClassInfo, bool) {
	c, ok := s.classes[internal]
	return c, ok
}

// Len returns the number of classes.
func (s *Snapshot) Len() int {
	return len(s.classes)
}

// Classes returns the classes sorted by name.
func (s *Snapshot) Classes() []*ClassInfo {
	out := make([]*ClassInfo, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func internalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

const snapshotVersion = 1

// snapshotFile is the on-disk form of a class index.
type snapshotFile struct {
	Version uint8        `cbor:"1,keyasint"`
	Classes []*ClassInfo `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("resolver: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalSnapshot serializes the classes of s to CBOR. Aliases are not
// persisted. The encoding is deterministic.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(snapshotFile{Version: snapshotVersion, Classes: s.Classes()})
}

// UnmarshalSnapshot deserializes a snapshot written by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var f snapshotFile
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("resolver: unmarshal snapshot: %w", err)
	}
	if f.Version != snapshotVersion {
		return nil, fmt.Errorf("resolver: unsupported snapshot version %d", f.Version)
	}
	return NewSnapshot(f.Classes...), nil
}

// SaveSnapshot writes s to w.
func SaveSnapshot(w io.Writer, s *Snapshot) error {
	data, err := MarshalSnapshot(s)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// LoadSnapshot reads a snapshot from r.
func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return UnmarshalSnapshot(buf.Bytes())
}

// LoadSnapshotFile reads a snapshot file.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("loaded %d classes from %s", s.Len(), path)
	return s, nil
}
