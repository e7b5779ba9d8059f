package wordstore

import (
	"sort"
	"sync"

	"github.com/kestrel-automation/modbus/common"
)

// Option configures a Store at construction time.
type Option func(*Store)

// WithMaxWordSize overrides the default per-Word register/coil cap.
func WithMaxWordSize(n common.Quantity) Option {
	return func(s *Store) { s.maxWordSize = n }
}

// Store holds an ordered, overlap-free set of Words per register type.
// Ref: SPEC_FULL.md §4.4
type Store struct {
	mu          sync.RWMutex
	words       [4][]*Word
	sorted      [4]bool
	began       bool
	maxWordSize common.Quantity
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{maxWordSize: DefaultMaxWordSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) validate(w *Word) error {
	if w.NbRegs == 0 || w.NbRegs > s.maxWordSize {
		return ErrInvalidWord
	}
	if int(w.StartAddr)+int(w.NbRegs) > 0x10000 {
		return ErrAddressRange
	}
	if w.RegType.IsReadOnly() && w.WriteHandler != nil {
		return ErrInvalidWord
	}
	if w.DirectPtr != nil && w.NbRegs != 1 {
		return ErrInvalidWord
	}
	if w.DirectPtr == nil && w.ReadHandler == nil {
		return ErrInvalidWord
	}
	return nil
}

// Insert adds w to the store. Before the store has been finalized via
// SortAll, overlap checks are skipped (bulk-insert fast path); after
// SortAll, each insertion is overlap-checked and placed in sorted position.
// Ref: SPEC_FULL.md §4.4 bulk insert policy
func (s *Store) Insert(w *Word) error {
	if err := s.validate(w); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := int(w.RegType)
	if s.began {
		if s.overlapsLocked(w) {
			return ErrOverlap
		}
		idx := sort.Search(len(s.words[t]), func(i int) bool {
			return s.words[t][i].StartAddr >= w.StartAddr
		})
		s.words[t] = append(s.words[t], nil)
		copy(s.words[t][idx+1:], s.words[t][idx:])
		s.words[t][idx] = w
		return nil
	}

	s.words[t] = append(s.words[t], w)
	s.sorted[t] = false
	return nil
}

// ClearAll removes every Word from every register type.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.words {
		s.words[t] = nil
		s.sorted[t] = false
	}
	s.began = false
}

// SortAll sorts every type's Words by StartAddr, scans for overlaps, and
// marks the store as begun (subsequent Insert calls are overlap-checked and
// keep the slice sorted). Returns the first overlap encountered, if any.
// Ref: SPEC_FULL.md §4.4 "Server.Begin() sorts ... runs a single linear overlap scan"
func (s *Store) SortAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for t := range s.words {
		list := s.words[t]
		sort.Slice(list, func(i, j int) bool { return list[i].StartAddr < list[j].StartAddr })
		s.sorted[t] = true
		for i := 1; i < len(list); i++ {
			if list[i].StartAddr < list[i-1].End() {
				return ErrOverlap
			}
		}
	}
	s.began = true
	return nil
}

// overlapsLocked reports whether w overlaps any existing Word of its type.
// Caller must hold s.mu.
func (s *Store) overlapsLocked(w *Word) bool {
	for _, existing := range s.words[w.RegType] {
		if w.StartAddr < existing.End() && existing.StartAddr < w.End() {
			return true
		}
	}
	return false
}

// Overlaps reports whether w overlaps any existing Word of its type.
// Ref: SPEC_FULL.md §4.4 overlap rule
func (s *Store) Overlaps(w *Word) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlapsLocked(w)
}

// FindExact returns the Word whose StartAddr equals addr, if any.
func (s *Store) FindExact(t RegType, addr common.Address) (*Word, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.words[t]
	if !s.sorted[t] {
		for _, w := range list {
			if w.StartAddr == addr {
				return w, true
			}
		}
		return nil, false
	}
	idx := sort.Search(len(list), func(i int) bool { return list[i].StartAddr >= addr })
	if idx < len(list) && list[idx].StartAddr == addr {
		return list[idx], true
	}
	return nil, false
}

// FindContaining returns the Word covering addr, if any.
func (s *Store) FindContaining(t RegType, addr common.Address) (*Word, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findContainingLocked(t, addr)
}

func (s *Store) findContainingLocked(t RegType, addr common.Address) (*Word, bool) {
	list := s.words[t]
	if !s.sorted[t] {
		for _, w := range list {
			if w.Covers(addr) {
				return w, true
			}
		}
		return nil, false
	}
	// Last word with StartAddr <= addr.
	idx := sort.Search(len(list), func(i int) bool { return list[i].StartAddr > addr }) - 1
	if idx >= 0 && list[idx].Covers(addr) {
		return list[idx], true
	}
	return nil, false
}

// FindNext returns the Word with the smallest StartAddr >= addr, if any.
func (s *Store) FindNext(t RegType, addr common.Address) (*Word, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.words[t]
	if !s.sorted[t] {
		var best *Word
		for _, w := range list {
			if w.StartAddr >= addr && (best == nil || w.StartAddr < best.StartAddr) {
				best = w
			}
		}
		return best, best != nil
	}
	idx := sort.Search(len(list), func(i int) bool { return list[i].StartAddr >= addr })
	if idx < len(list) {
		return list[idx], true
	}
	return nil, false
}

// Size returns the number of Words of the given type.
func (s *Store) Size(t RegType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.words[t])
}

// TotalSize returns the total number of Words across all register types.
func (s *Store) TotalSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for t := range s.words {
		total += len(s.words[t])
	}
	return total
}

// Capacity returns the total number of addressable registers/coils covered
// across all Words of all register types (sum of each Word's NbRegs).
func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for t := range s.words {
		for _, w := range s.words[t] {
			total += int(w.NbRegs)
		}
	}
	return total
}
