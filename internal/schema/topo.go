package schema

import (
	"fmt"
	"sort"
	"strings"
)

// deriveOrder topologically sorts the derived fields (Kahn's algorithm) so
// each one is evaluated strictly after everything it depends on. Only
// derived-to-derived edges constrain the order; leaf dependencies are
// always ready. A cycle is a schema configuration error reported with the
// fields involved.
func deriveOrder(s *Schema) ([]string, error) {
	indegree := map[string]int{}
	downstream := map[string][]string{}

	for _, id := range s.Order {
		f := s.Fields[id]
		if !f.IsDerived() {
			continue
		}
		indegree[id] += 0
		for _, dep := range f.Derive.DependsOn {
			if !s.Fields[dep].IsDerived() {
				continue
			}
			indegree[id]++
			downstream[dep] = append(downstream[dep], id)
		}
	}

	ready := make([]string, 0, len(indegree))
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		next := downstream[id]
		sort.Strings(next)
		for _, d := range next {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(indegree) {
		var stuck []string
		for id, n := range indegree {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("derivation cycle involving: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}
