package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/jasm/resolver"
)

var log = commonlog.GetLogger("jasm.manifest")

// ---------------------------------------------------------------------------
// Lock file
// ---------------------------------------------------------------------------

// LockedJar records the state of a jar when the cached index was built.
type LockedJar struct {
	Path    string `toml:"path"`
	Size    int64  `toml:"size"`
	ModTime int64  `toml:"mod-time"` // unix nanoseconds
}

// LockFile describes the cached classpath index in .jasm/.
type LockFile struct {
	Classes int         `toml:"classes"`
	Jars    []LockedJar `toml:"jar"`
}

// ReadLock reads a lock file. A missing file yields an empty lock.
func ReadLock(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &LockFile{}, nil
	}
	if err != nil {
		return nil, err
	}
	var lf LockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock writes lf to path.
func WriteLock(path string, lf *LockFile) error {
	var buf bytes.Buffer
	buf.WriteString("# Generated by jasm. Do not edit.\n\n")
	if err := toml.NewEncoder(&buf).Encode(lf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// matches reports whether lf was written for exactly these jar states.
func (lf *LockFile) matches(jars []LockedJar) bool {
	if len(lf.Jars) != len(jars) {
		return false
	}
	for i, j := range jars {
		if lf.Jars[i] != j {
			return false
		}
	}
	return true
}

// CacheDir returns the path to the .jasm directory.
func (m *Manifest) CacheDir() string {
	return filepath.Join(m.Dir, ".jasm")
}

// LockFilePath returns the path to .jasm/classpath.lock.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.CacheDir(), "classpath.lock")
}

// IndexCachePath returns the path to the cached jar index.
func (m *Manifest) IndexCachePath() string {
	return filepath.Join(m.CacheDir(), "classpath.idx")
}

// ---------------------------------------------------------------------------
// Classpath resolution
// ---------------------------------------------------------------------------

// LoadResolver builds a resolver over the base types, the prebuilt index
// files and the configured jars, in that order. The jar index is cached
// under .jasm and rebuilt only when a jar changes.
func (m *Manifest) LoadResolver() (*resolver.Resolver, error) {
	var snaps []*resolver.Snapshot
	for _, p := range m.Classpath.Indexes {
		s, err := resolver.LoadSnapshotFile(m.path(p))
		if err != nil {
			return nil, fmt.Errorf("classpath index: %w", err)
		}
		snaps = append(snaps, s)
	}
	if len(m.Classpath.Jars) > 0 {
		s, err := m.jarSnapshot()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return resolver.New(snaps...), nil
}

func (m *Manifest) jarSnapshot() (*resolver.Snapshot, error) {
	var paths []string
	var state []LockedJar
	for _, j := range m.Classpath.Jars {
		p := m.path(j)
		st, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("classpath entry %q not found at %s: %w", j, p, err)
		}
		paths = append(paths, p)
		state = append(state, LockedJar{Path: j, Size: st.Size(), ModTime: st.ModTime().UnixNano()})
	}

	lock, err := ReadLock(m.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	if lock.matches(state) {
		if s, err := resolver.LoadSnapshotFile(m.IndexCachePath()); err == nil {
			return s, nil
		} else {
			log.Warningf("ignoring classpath cache: %s", err)
		}
	}

	s, err := resolver.Index(paths...)
	if err != nil {
		return nil, fmt.Errorf("indexing classpath: %w", err)
	}
	if err := m.writeCache(s, state); err != nil {
		log.Warningf("cannot cache classpath index: %s", err)
	}
	return s, nil
}

func (m *Manifest) writeCache(s *resolver.Snapshot, state []LockedJar) error {
	if err := os.MkdirAll(m.CacheDir(), 0o755); err != nil {
		return err
	}
	data, err := resolver.MarshalSnapshot(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.IndexCachePath(), data, 0o644); err != nil {
		return err
	}
	return WriteLock(m.LockFilePath(), &LockFile{Classes: s.Len(), Jars: state})
}
