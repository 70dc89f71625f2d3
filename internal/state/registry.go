package state

// orderedSet is a string set that remembers insertion order. Index 0
// is the oldest member.
type orderedSet struct {
	order  []string
	member map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{member: make(map[string]struct{})}
}

func (s *orderedSet) has(v string) bool {
	_, ok := s.member[v]
	return ok
}

// add appends v unless already present. Reports whether it was added.
func (s *orderedSet) add(v string) bool {
	if s.has(v) {
		return false
	}
	s.member[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// remove deletes v preserving the order of the rest. Reports whether
// it was present.
func (s *orderedSet) remove(v string) bool {
	if !s.has(v) {
		return false
	}
	delete(s.member, v)
	for i, got := range s.order {
		if got == v {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *orderedSet) oldest() (string, bool) {
	if len(s.order) == 0 {
		return "", false
	}
	return s.order[0], true
}

func (s *orderedSet) items() []string {
	return append([]string(nil), s.order...)
}

// HydrateStats reports what Hydrate had to clean up. The engine logs
// these; the registry itself stays quiet.
type HydrateStats struct {
	Segments   int
	Cards      int
	Duplicates int
	// Truncated maps segment ID to the card IDs dropped because the
	// persisted list exceeded capacity.
	Truncated map[string][]string
}

// Registry tracks which cards are starred in which segment, in star
// insertion order. Capacity bounds each segment's set independently.
//
// The registry holds whatever the snapshot held: segments and cards
// that do not exist in the current document are kept as-is so that a
// hydrate/snapshot round trip never loses another page's stars.
type Registry struct {
	capacity int
	segments map[string]*orderedSet
}

// NewRegistry returns an empty registry. Capacity must be >= 1; the
// profile validates this before an engine is built.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		segments: make(map[string]*orderedSet),
	}
}

// Capacity returns the per-segment star limit.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Hydrate replaces all registry state with the snapshot's contents.
// Duplicate card IDs within a list keep their first position. Lists
// longer than capacity drop their oldest entries until they fit.
func (r *Registry) Hydrate(snap Snapshot) HydrateStats {
	r.segments = make(map[string]*orderedSet, len(snap.Segments))
	stats := HydrateStats{Truncated: map[string][]string{}}

	for segID, cards := range snap.Segments {
		set := newOrderedSet()
		for _, cardID := range cards {
			if !set.add(cardID) {
				stats.Duplicates++
			}
		}
		for len(set.order) > r.capacity {
			oldest, _ := set.oldest()
			set.remove(oldest)
			stats.Truncated[segID] = append(stats.Truncated[segID], oldest)
		}
		r.segments[segID] = set
		stats.Segments++
		stats.Cards += len(set.order)
	}
	if len(stats.Truncated) == 0 {
		stats.Truncated = nil
	}
	return stats
}

// Snapshot materializes all non-empty sets into persisted shape.
func (r *Registry) Snapshot() Snapshot {
	snap := EmptySnapshot()
	for segID, set := range r.segments {
		if len(set.order) == 0 {
			continue
		}
		snap.Segments[segID] = set.items()
	}
	return snap
}

// Has reports whether card is starred in segment.
func (r *Registry) Has(segID, cardID string) bool {
	set, ok := r.segments[segID]
	return ok && set.has(cardID)
}

// Add stars card in segment, creating the segment set on first use.
// Reports whether the card was newly added. Capacity is not enforced
// here; the state machine checks AtCapacity and evicts first.
func (r *Registry) Add(segID, cardID string) bool {
	set, ok := r.segments[segID]
	if !ok {
		set = newOrderedSet()
		r.segments[segID] = set
	}
	return set.add(cardID)
}

// Remove unstars card in segment. Reports whether it was starred.
func (r *Registry) Remove(segID, cardID string) bool {
	set, ok := r.segments[segID]
	if !ok {
		return false
	}
	return set.remove(cardID)
}

// Count returns how many cards are starred in segment.
func (r *Registry) Count(segID string) int {
	set, ok := r.segments[segID]
	if !ok {
		return 0
	}
	return len(set.order)
}

// AtCapacity reports whether segment's set is full.
func (r *Registry) AtCapacity(segID string) bool {
	return r.Count(segID) >= r.capacity
}

// Oldest returns the longest-starred card in segment, the eviction
// candidate when the set is full.
func (r *Registry) Oldest(segID string) (string, bool) {
	set, ok := r.segments[segID]
	if !ok {
		return "", false
	}
	return set.oldest()
}

// Starred returns segment's card IDs in star insertion order.
func (r *Registry) Starred(segID string) []string {
	set, ok := r.segments[segID]
	if !ok {
		return nil
	}
	return set.items()
}
