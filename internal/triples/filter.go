package triples

// FilterSet is a deduplicated set of known-true triples used by the
// filtered evaluation protocol and by negative sampling.
type FilterSet map[Triple]struct{}

// PrepareFilterTriples builds a filter set from the evaluation triples and
// any number of additional known-true triple slices (typically the
// training and validation splits). Duplicates collapse, so filtering the
// same triples twice yields an identical set.
func PrepareFilterTriples(evaluation []Triple, additional ...[]Triple) FilterSet {
	set := make(FilterSet, len(evaluation))
	set.Add(evaluation)
	for _, ts := range additional {
		set.Add(ts)
	}
	return set
}

// Add inserts triples into the set.
func (s FilterSet) Add(ts []Triple) {
	for _, t := range ts {
		s[t] = struct{}{}
	}
}

// Contains reports whether the triple is in the set.
func (s FilterSet) Contains(t Triple) bool {
	_, ok := s[t]
	return ok
}

// Len returns the number of distinct triples.
func (s FilterSet) Len() int {
	return len(s)
}
