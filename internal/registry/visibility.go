// SPDX-License-Identifier: MPL-2.0

package registry

import "github.com/crossmodel/crossmodel/pkg/datamodel"

// IsVisible reports whether package source may reference symbols of package
// target. Visibility is reflexive for registered packages, directed and
// transitive along declared dependencies. The unknown package sees nothing
// and is seen by nothing.
func (r *Registry) IsVisible(source, target string) bool {
	if source == datamodel.UnknownID || target == datamodel.UnknownID {
		return false
	}
	for _, id := range r.VisibleSet(source, true) {
		if id == target {
			return true
		}
	}
	return false
}

// VisibleSet returns the ids reachable from source by following declared
// dependencies, in breadth-first order. Ids that are not registered are dead
// edges: they are neither returned nor expanded. Cycles are tolerated.
func (r *Registry) VisibleSet(source string, includeSelf bool) []string {
	if source == datamodel.UnknownID {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.infoForID(source); !ok {
		return nil
	}

	visited := map[string]bool{source: true}
	queue := []string{source}
	var out []string
	if includeSelf {
		out = append(out, source)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		info, _ := r.infoForID(cur)
		for _, dep := range info.DependencyIDs() {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if _, ok := r.infoForID(dep); !ok {
				continue
			}
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return out
}

// Dependents returns the registered ids that declare a direct dependency on
// one of ids, in registration order.
func (r *Registry) Dependents(ids ...string) []string {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, u := range r.uriOrder {
		info := r.byURI[u]
		if seen[info.ID] {
			continue
		}
		for _, dep := range info.DependencyIDs() {
			if want[dep] {
				seen[info.ID] = true
				out = append(out, info.ID)
				break
			}
		}
	}
	return out
}
