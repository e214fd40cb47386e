package graph

import (
	"fmt"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// Edge is a dependency of a node on another component
type Edge struct {
	DependsOn string
	Type      domain.DependencyType
	Optional  bool
}

// Blocking reports whether the edge constrains scheduling order
func (e Edge) Blocking() bool {
	if e.Optional {
		return false
	}
	switch e.Type {
	case domain.DependencyHard, domain.DependencyData, domain.DependencyOrder:
		return true
	}
	return false
}

// RequiresSuccess reports whether the dependent must be skipped when the dependency fails
func (e Edge) RequiresSuccess() bool {
	if e.Optional {
		return false
	}
	return e.Type == domain.DependencyHard || e.Type == domain.DependencyData
}

// Node is one component plus its incoming and outgoing edges
type Node struct {
	Component  domain.RecoveryComponent
	DependsOn  []Edge
	Dependents []string
}

// BlockingCount is the number of blocking dependencies
func (n *Node) BlockingCount() int {
	count := 0
	for _, e := range n.DependsOn {
		if e.Blocking() {
			count++
		}
	}
	return count
}

// Graph is the adjacency view of a plan, nodes kept in declaration order
type Graph struct {
	PlanID string
	nodes  map[string]*Node
	order  []string
}

// Node returns the node for a component ID
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// IDs returns component IDs in declaration order
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Len is the number of components
func (g *Graph) Len() int {
	return len(g.order)
}

// Build turns a plan into a dependency graph. Component dependency lists are
// hard edges; explicit plan edges override type and optional flags per pair.
func Build(plan *domain.RecoveryPlan) (*Graph, error) {
	if plan == nil || len(plan.Components) == 0 {
		return nil, fmt.Errorf("%w: plan has no components", domain.ErrInvalidPlan)
	}

	g := &Graph{PlanID: plan.ID, nodes: make(map[string]*Node, len(plan.Components))}
	for _, c := range plan.Components {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: component with empty id", domain.ErrInvalidPlan)
		}
		if _, dup := g.nodes[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate component id %q", domain.ErrInvalidPlan, c.ID)
		}
		g.nodes[c.ID] = &Node{Component: c}
		g.order = append(g.order, c.ID)
	}

	// edges[dependent][dependency]
	edges := make(map[string]map[string]Edge)
	addEdge := func(from, to string, e Edge) error {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("%w: %q", domain.ErrUnknownComponent, from)
		}
		if _, ok := g.nodes[to]; !ok {
			return fmt.Errorf("%w: %q (dependency of %q)", domain.ErrUnknownComponent, to, from)
		}
		if from == to && e.Blocking() {
			return fmt.Errorf("%w: %q depends on itself", domain.ErrCyclicDependency, from)
		}
		if edges[from] == nil {
			edges[from] = make(map[string]Edge)
		}
		edges[from][to] = e
		return nil
	}

	for _, c := range plan.Components {
		for _, dep := range c.Dependencies {
			if err := addEdge(c.ID, dep, Edge{DependsOn: dep, Type: domain.DependencyHard}); err != nil {
				return nil, err
			}
		}
	}
	for _, d := range plan.Dependencies {
		typ := d.Type
		if typ == "" {
			typ = domain.DependencyHard
		}
		for _, dep := range d.DependsOn {
			if err := addEdge(d.ComponentID, dep, Edge{DependsOn: dep, Type: typ, Optional: d.Optional}); err != nil {
				return nil, err
			}
		}
	}

	// Materialize in declaration order so the graph is deterministic.
	for _, id := range g.order {
		n := g.nodes[id]
		for _, depID := range g.order {
			e, ok := edges[id][depID]
			if !ok || depID == id {
				continue
			}
			n.DependsOn = append(n.DependsOn, e)
			g.nodes[depID].Dependents = append(g.nodes[depID].Dependents, id)
		}
	}
	return g, nil
}

// View renders the graph with group assignments for API consumers
func (g *Graph) View(s *Schedule) domain.DependencyGraphView {
	groupOf := make(map[string]int)
	if s != nil {
		for _, grp := range s.Groups {
			for _, id := range grp.ComponentIDs {
				groupOf[id] = grp.Index
			}
		}
	}

	view := domain.DependencyGraphView{PlanID: g.PlanID}
	for _, id := range g.order {
		n := g.nodes[id]
		view.Nodes = append(view.Nodes, domain.GraphNode{
			ID:          id,
			Name:        n.Component.Name,
			Type:        n.Component.Type,
			Criticality: n.Component.Criticality,
			Group:       groupOf[id],
		})
		for _, e := range n.DependsOn {
			view.Edges = append(view.Edges, domain.GraphEdge{
				Source:   e.DependsOn,
				Target:   id,
				Type:     e.Type,
				Optional: e.Optional,
			})
		}
	}
	return view
}
