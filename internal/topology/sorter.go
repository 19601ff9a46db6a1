package topology

import (
	"fmt"
	"slices"
)

// CyclicDependencyError is returned when a dependency chain revisits a node
// that is still being processed.
type CyclicDependencyError struct {
	Node       string
	Dependency string
	// Path is the chain that closes the cycle, starting and ending at Dependency.
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency between %q and %q", e.Node, e.Dependency)
}

// Node wraps a named value and the names it depends on. Dependencies are
// resolved through the owning graph on demand, so a node can be added before
// the nodes it refers to.
type Node[T any] struct {
	Name  string
	Value T
	deps  []string
	graph *Graph[T]
}

// DependencyNames returns the declared dependency names, known or not.
func (n *Node[T]) DependencyNames() []string {
	return slices.Clone(n.deps)
}

// Dependencies returns the dependency nodes currently present in the graph.
func (n *Node[T]) Dependencies() []*Node[T] {
	var out []*Node[T]
	for _, name := range n.deps {
		if dep, ok := n.graph.nodes[name]; ok {
			out = append(out, dep)
		}
	}
	return out
}

type Graph[T any] struct {
	nodes map[string]*Node[T]
	order []string
}

func NewGraph[T any]() *Graph[T] {
	return &Graph[T]{nodes: make(map[string]*Node[T])}
}

// Add registers a node. Adding an existing name replaces its value and
// dependencies but keeps its original position.
func (g *Graph[T]) Add(name string, value T, deps ...string) *Node[T] {
	node := &Node[T]{Name: name, Value: value, deps: slices.Clone(deps), graph: g}
	if _, exists := g.nodes[name]; !exists {
		g.order = append(g.order, name)
	}
	g.nodes[name] = node
	return node
}

func (g *Graph[T]) Node(name string) (*Node[T], bool) {
	n, ok := g.nodes[name]
	return n, ok
}

func (g *Graph[T]) Len() int {
	return len(g.order)
}

// Names returns node names in insertion order.
func (g *Graph[T]) Names() []string {
	return slices.Clone(g.order)
}

// Result holds the sorted nodes and every reference to a name that is not in
// the graph. External names are listed once per reference.
type Result[T any] struct {
	Ordered  []*Node[T]
	External []string
}

func (r Result[T]) Names() []string {
	names := make([]string, len(r.Ordered))
	for i, n := range r.Ordered {
		names[i] = n.Name
	}
	return names
}

func (r Result[T]) Values() []T {
	values := make([]T, len(r.Ordered))
	for i, n := range r.Ordered {
		values[i] = n.Value
	}
	return values
}

// Sort orders the graph so that every node comes after the nodes it depends
// on. Nodes without a relationship keep their insertion order.
func (g *Graph[T]) Sort() (Result[T], error) {
	s := &sorter[T]{
		graph:      g,
		placed:     make(map[string]bool, len(g.order)),
		processing: make(map[string]bool),
	}

	for _, name := range g.order {
		if s.placed[name] {
			continue
		}
		if err := s.visit(g.nodes[name]); err != nil {
			return Result[T]{}, err
		}
		s.place(g.nodes[name])
	}

	return Result[T]{Ordered: s.output, External: s.external}, nil
}

type sorter[T any] struct {
	graph      *Graph[T]
	output     []*Node[T]
	placed     map[string]bool
	external   []string
	stack      []string
	processing map[string]bool
}

func (s *sorter[T]) visit(n *Node[T]) error {
	s.stack = append(s.stack, n.Name)
	s.processing[n.Name] = true

	for _, depName := range n.deps {
		dep, known := s.graph.nodes[depName]
		if !known {
			s.external = append(s.external, depName)
			continue
		}
		if s.processing[depName] {
			return &CyclicDependencyError{Node: n.Name, Dependency: depName, Path: s.cyclePath(depName)}
		}
		if s.placed[depName] {
			continue
		}
		if err := s.visit(dep); err != nil {
			return err
		}
		s.place(dep)
	}

	s.stack = s.stack[:len(s.stack)-1]
	delete(s.processing, n.Name)
	return nil
}

func (s *sorter[T]) cyclePath(from string) []string {
	start := slices.Index(s.stack, from)
	path := slices.Clone(s.stack[start:])
	return append(path, from)
}

func (s *sorter[T]) place(n *Node[T]) {
	if s.placed[n.Name] {
		return
	}
	s.placed[n.Name] = true
	s.output = append(s.output, n)
}

// Sort is the map-shaped form: keys are node names, values their dependency
// names. Keys are visited in lexical order so the result is deterministic.
func Sort(deps map[string][]string) (ordered []string, external []string, err error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	slices.Sort(names)

	g := NewGraph[struct{}]()
	for _, name := range names {
		g.Add(name, struct{}{}, deps[name]...)
	}

	result, err := g.Sort()
	if err != nil {
		return nil, nil, err
	}
	return result.Names(), result.External, nil
}
