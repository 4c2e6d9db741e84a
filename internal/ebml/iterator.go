package ebml

// ElementRange iterates elements sequentially over [from, to) of a source.
// It owns the most recently yielded element only until the next call to
// Next; callers that need to retain one must copy it out (Element has no
// pointer fields that alias reader-internal state other than Binary, which
// is a freshly allocated slice per read).
type ElementRange struct {
	src  Source
	pos  int64
	to   int64
	err  error
}

// NewElementRange starts an iterator over [from, to) of src.
func NewElementRange(src Source, from, to int64) *ElementRange {
	return &ElementRange{src: src, pos: from, to: to}
}

// Next yields the next element, or ok=false when the range is exhausted.
// Once Next returns an error, the iterator is dead and keeps returning it.
func (r *ElementRange) Next() (Element, bool, error) {
	if r.err != nil {
		return Element{}, false, r.err
	}
	if r.pos >= r.to {
		return Element{}, false, nil
	}

	el, err := ReadElement(r.src, &r.pos)
	if err != nil {
		r.err = err
		return Element{}, false, err
	}
	return el, true, nil
}
