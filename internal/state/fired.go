package state

// FiredSet records alert ids that have already been handled. Ids are never
// evicted: an alert is surfaced at most once for the lifetime of the owner.
//
// A FiredSet is not safe for concurrent use; it belongs to a single engine.
type FiredSet struct {
	ids map[string]struct{}
}

// NewFiredSet returns an empty set
func NewFiredSet() *FiredSet {
	return &FiredSet{ids: make(map[string]struct{})}
}

// HasFired reports whether id was marked
func (s *FiredSet) HasFired(id string) bool {
	if s == nil || s.ids == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// MarkFired records id. Marking twice is a no-op.
func (s *FiredSet) MarkFired(id string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}

// Len returns the number of recorded ids
func (s *FiredSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Clone returns an independent copy
func (s *FiredSet) Clone() *FiredSet {
	c := &FiredSet{ids: make(map[string]struct{}, s.Len())}
	if s != nil {
		for id := range s.ids {
			c.ids[id] = struct{}{}
		}
	}
	return c
}
