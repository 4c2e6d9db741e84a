package ebml

// Searcher performs lazy, keyed lookup over an element range. Header
// parsing touches several siblings by id (Info, Tracks, Cues, ...) without
// knowing their order or wanting to re-scan the stream for each one: a
// Searcher scans forward on demand and retains every element it reads (not
// just matches), so later Get calls for a different id are satisfied from
// the retained list before falling back to scanning further.
type Searcher struct {
	it       *ElementRange
	retained []Element
	exhausted bool
}

// NewSearcher creates a Searcher over [from, to) of src.
func NewSearcher(src Source, from, to int64) *Searcher {
	return &Searcher{it: NewElementRange(src, from, to)}
}

// Get returns the first retained or newly-scanned element with the given
// id. ok is false if the range was exhausted without finding one.
func (s *Searcher) Get(id ID) (Element, bool, error) {
	for _, el := range s.retained {
		if el.ID == id {
			return el, true, nil
		}
	}
	if s.exhausted {
		return Element{}, false, nil
	}

	for {
		el, ok, err := s.it.Next()
		if err != nil {
			return Element{}, false, err
		}
		if !ok {
			s.exhausted = true
			return Element{}, false, nil
		}
		s.retained = append(s.retained, el)
		if el.ID == id {
			return el, true, nil
		}
	}
}

// GetAll returns every retained-or-scanned element with the given id,
// consuming the whole range.
func (s *Searcher) GetAll(id ID) ([]Element, error) {
	if !s.exhausted {
		for {
			el, ok, err := s.it.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				s.exhausted = true
				break
			}
			s.retained = append(s.retained, el)
		}
	}
	var out []Element
	for _, el := range s.retained {
		if el.ID == id {
			out = append(out, el)
		}
	}
	return out, nil
}

// Release drops the retained element list. Go's GC reclaims the backing
// storage regardless; Release exists so a call site can mark "done with
// this Searcher" at a glance.
func (s *Searcher) Release() {
	s.retained = nil
}
