package upload

import (
	"sync"

	"github.com/alexjbarnes/ledger-upload/internal/models"
)

// FileSet is the ordered list of pending local files. Entries are
// identified by pointer, never by name.
type FileSet struct {
	mu      sync.Mutex
	entries []*models.FileEntry
}

// NewFileSet returns a set holding entries in order.
func NewFileSet(entries ...*models.FileEntry) *FileSet {
	s := &FileSet{}
	s.Add(entries...)

	return s
}

// Add appends entries. Nil entries are ignored.
func (s *FileSet) Add(entries ...*models.FileEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e != nil {
			s.entries = append(s.entries, e)
		}
	}
}

// Remove deletes e from the set. It reports whether e was present.
func (s *FileSet) Remove(e *models.FileEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(e)
}

func (s *FileSet) removeLocked(e *models.FileEntry) bool {
	for i, cur := range s.entries {
		if cur == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}

	return false
}

// RemoveAll deletes every entry in entries that is still present and
// returns how many were removed.
func (s *FileSet) RemoveAll(entries []*models.FileEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, e := range entries {
		if s.removeLocked(e) {
			n++
		}
	}

	return n
}

// Replace swaps old for renamed at old's position. It reports false,
// leaving the set unchanged, when old is no longer present.
func (s *FileSet) Replace(old, renamed *models.FileEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cur := range s.entries {
		if cur == old {
			s.entries[i] = renamed
			return true
		}
	}

	return false
}

// Snapshot returns a copy of the current entries. Later mutations of the
// set do not affect the returned slice.
func (s *FileSet) Snapshot() []*models.FileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.FileEntry, len(s.entries))
	copy(out, s.entries)

	return out
}

// At returns the entry at index i.
func (s *FileSet) At(i int) (*models.FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.entries) {
		return nil, false
	}

	return s.entries[i], true
}

// Len returns the number of entries.
func (s *FileSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Clear removes every entry.
func (s *FileSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
}
