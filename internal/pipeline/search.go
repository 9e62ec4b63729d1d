package pipeline

// insertionSearch enumerates adapter sequences for one failing edge.
//
// tried holds catalog indices, adapter 0 sitting next to the edge's source.
// A failure at position p (the connection into adapter p, or into the edge's
// sink when p == len) advances the counter at p with carry toward position 0.
// Positions after p keep their indices. When position 0 overflows the
// sequence grows by one, up to max. Every step strictly increases the
// counter read as a number in base len(catalog), so the search terminates.
type insertionSearch struct {
	catalog int
	max     int
	tried   []int

	memo     []int
	usedMemo bool
	steps    int
}

func newInsertionSearch(catalog, maxLen int, memo []int) *insertionSearch {
	s := &insertionSearch{catalog: catalog, max: maxLen}
	if validSequence(memo, catalog, maxLen) {
		s.memo = append([]int(nil), memo...)
	}
	return s
}

func validSequence(seq []int, catalog, maxLen int) bool {
	if len(seq) == 0 || len(seq) > maxLen {
		return false
	}
	for _, i := range seq {
		if i < 0 || i >= catalog {
			return false
		}
	}
	return true
}

// first returns the sequence to try after the edge failed without adapters:
// the remembered sequence when there is one, else a single catalog entry 0.
func (s *insertionSearch) first() ([]int, bool) {
	if s.catalog == 0 || s.max <= 0 {
		return nil, false
	}
	s.steps++
	if s.memo != nil {
		s.usedMemo = true
		return s.sequence(s.memo), true
	}
	s.tried = []int{0}
	return s.sequence(s.tried), true
}

// next returns the sequence to try after the current one failed at errPos.
// It returns false once the search space is exhausted.
func (s *insertionSearch) next(errPos int) ([]int, bool) {
	if s.usedMemo {
		s.usedMemo, s.memo = false, nil
		s.tried = []int{0}
		s.steps++
		return s.sequence(s.tried), true
	}
	if len(s.tried) == 0 {
		return nil, false
	}

	pos := min(max(errPos, 0), len(s.tried)-1)
	s.tried[pos]++
	for s.tried[pos] == s.catalog {
		s.tried[pos] = 0
		pos--
		if pos < 0 {
			if len(s.tried) >= s.max {
				s.tried = nil
				return nil, false
			}
			s.tried = append(s.tried, 0)
			break
		}
		s.tried[pos]++
	}
	s.steps++
	return s.sequence(s.tried), true
}

func (s *insertionSearch) sequence(seq []int) []int {
	return append([]int(nil), seq...)
}
