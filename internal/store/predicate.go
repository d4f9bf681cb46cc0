package store

import (
	"bytes"

	"github.com/eigerco/widescan/pkg/scan"
)

// selector applies a scan.Predicate to the columns of one row, visited in
// name order.
type selector struct {
	names  map[string]struct{}
	start  []byte
	finish []byte
	count  int
}

func newSelector(p scan.Predicate) selector {
	s := selector{start: p.Start, finish: p.Finish, count: p.Count}
	if len(p.Names) > 0 {
		s.names = make(map[string]struct{}, len(p.Names))
		for _, n := range p.Names {
			s.names[string(n)] = struct{}{}
		}
	}
	return s
}

// selects reports whether column name is returned, given how many columns of
// the row were already kept.
func (s selector) selects(name []byte, kept int) bool {
	if s.names != nil {
		_, ok := s.names[string(name)]
		return ok
	}
	if len(s.start) > 0 && bytes.Compare(name, s.start) < 0 {
		return false
	}
	if len(s.finish) > 0 && bytes.Compare(name, s.finish) > 0 {
		return false
	}
	return s.count <= 0 || kept < s.count
}
