package buildpkg

import "sort"

// DependencyWalker performs a preorder traversal of a spec's dependency DAG
// with a shared visited-set keyed by package name, so a diamond dependency
// is visited exactly once.
type DependencyWalker struct {
	visited map[string]bool
}

// NewDependencyWalker returns a walker with a fresh visited-set.
func NewDependencyWalker() *DependencyWalker {
	return &DependencyWalker{visited: map[string]bool{}}
}

// Visited reports whether name has already been visited by this walker.
func (w *DependencyWalker) Visited(name string) bool { return w.visited[name] }

// MarkVisited records name as visited.
func (w *DependencyWalker) MarkVisited(name string) { w.visited[name] = true }

// Walk visits s's dependencies in preorder: real (non-virtual) children
// first, visited in dependency-name-ascending order, skipping names already
// in the visited-set, and recursing before invoking visit on s itself is
// left to the caller (the driver calls Walk once per dependency it
// installs, so "preorder" here means dependency-before-dependent at each
// level, which Walk achieves by returning the child list in visit order
// for the caller to recurse over). When includeVirtual is true, virtual
// edges are included in the returned order as well; by default the walker
// does not descend into virtual nodes, relying on the solver having
// concretized them.
func (w *DependencyWalker) Walk(s *Spec, includeVirtual bool) []DependencyEdge {
	edges := make([]DependencyEdge, 0, len(s.Dependencies))
	for _, e := range s.Dependencies {
		if e.Kind == DependencyVirtual && !includeVirtual {
			continue
		}
		if w.visited[e.Name] {
			continue
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Name < edges[j].Name })
	return edges
}
