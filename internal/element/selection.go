package element

// Selection is an ordered list of elements returned by traversal.
type Selection []*Element

// Len returns the number of elements.
func (s Selection) Len() int {
	return len(s)
}

// Empty reports whether the selection has no elements.
func (s Selection) Empty() bool {
	return len(s) == 0
}

// First returns the first element or ErrNoElements.
func (s Selection) First() (*Element, error) {
	if len(s) == 0 {
		return nil, ErrNoElements
	}
	return s[0], nil
}

// Last returns the last element or ErrNoElements.
func (s Selection) Last() (*Element, error) {
	if len(s) == 0 {
		return nil, ErrNoElements
	}
	return s[len(s)-1], nil
}

// Contains reports whether el is in the selection.
func (s Selection) Contains(el *Element) bool {
	for _, e := range s {
		if e.Equal(el) {
			return true
		}
	}
	return false
}

// Union returns the elements of s followed by the elements of other that are
// not already present. Order within each half is kept.
func (s Selection) Union(other Selection) Selection {
	seen := make(map[string]struct{}, len(s)+len(other))
	out := make(Selection, 0, len(s)+len(other))
	for _, part := range []Selection{s, other} {
		for _, e := range part {
			if _, ok := seen[e.Key()]; ok {
				continue
			}
			seen[e.Key()] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// Filter keeps the elements matching every filter. With no filters it
// returns s unchanged.
func (s Selection) Filter(filters ...Filter) (Selection, error) {
	if len(filters) == 0 {
		return s, nil
	}

	out := make(Selection, 0, len(s))
	for _, e := range s {
		ok, err := matchAll(e, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Keys returns the node identities in order.
func (s Selection) Keys() []string {
	keys := make([]string, len(s))
	for i, e := range s {
		keys[i] = e.Key()
	}
	return keys
}
