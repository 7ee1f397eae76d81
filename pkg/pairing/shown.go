package pairing

import "sync"

// PairKey identifies an unordered pair of image ids. Low <= High.
type PairKey struct {
	Low  int64
	High int64
}

// NewPairKey orders a and b into a key.
func NewPairKey(a, b int64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// ShownPairs is the in-memory set of pairs presented in the current session.
type ShownPairs struct {
	mu    sync.Mutex
	pairs map[PairKey]struct{}
}

// NewShownPairs returns an empty set.
func NewShownPairs() *ShownPairs {
	return &ShownPairs{pairs: make(map[PairKey]struct{})}
}

// Add inserts key and reports whether it was not already present.
func (s *ShownPairs) Add(key PairKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[key]; ok {
		return false
	}
	s.pairs[key] = struct{}{}
	return true
}

// Contains reports whether key was shown.
func (s *ShownPairs) Contains(key PairKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pairs[key]
	return ok
}

// Remove deletes key.
func (s *ShownPairs) Remove(key PairKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pairs, key)
}

// Clear empties the set.
func (s *ShownPairs) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = make(map[PairKey]struct{})
}

// Len returns the number of shown pairs.
func (s *ShownPairs) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pairs)
}
