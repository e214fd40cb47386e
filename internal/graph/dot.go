package graph

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/drorchestrator/backend-go/internal/domain"
)

var criticalityColors = map[domain.Criticality]string{
	domain.CriticalityCritical: "lightcoral",
	domain.CriticalityHigh:     "lightyellow",
	domain.CriticalityMedium:   "lightblue",
	domain.CriticalityLow:      "white",
}

// DOT renders the graph in Graphviz format with one cluster per execution group
func DOT(g *Graph, s *Schedule) *dot.Graph {
	out := dot.NewGraph(dot.Directed)
	out.Attr("rankdir", "LR")
	out.Attr("nodesep", "0.5")
	out.Attr("label", g.PlanID)

	nodes := make(map[string]dot.Node, g.Len())
	parentOf := func(id string) *dot.Graph {
		if s == nil {
			return out
		}
		idx := s.GroupOf(id)
		if idx < 0 {
			return out
		}
		cluster := out.Subgraph(fmt.Sprintf("group %d", idx), dot.ClusterOption{})
		cluster.Attr("style", "dashed")
		return cluster
	}

	for _, id := range g.order {
		c := g.nodes[id].Component
		n := parentOf(id).Node(id)
		n.Attr("shape", "box")
		n.Attr("style", "rounded,filled")
		n.Attr("fillcolor", colorFor(c.Criticality))
		label := id
		if c.Type != "" {
			label = fmt.Sprintf("%s\n(%s)", id, c.Type)
		}
		n.Attr("label", label)
		nodes[id] = n
	}

	for _, id := range g.order {
		for _, e := range g.nodes[id].DependsOn {
			edge := out.Edge(nodes[e.DependsOn], nodes[id])
			switch {
			case e.Optional || e.Type == domain.DependencySoft:
				edge.Attr("style", "dashed")
				edge.Attr("color", "gray")
			case e.Type == domain.DependencyOrder:
				edge.Attr("style", "dotted")
			case e.Type == domain.DependencyData:
				edge.Attr("color", "blue")
			}
		}
	}
	return out
}

func colorFor(c domain.Criticality) string {
	if color, ok := criticalityColors[c]; ok {
		return color
	}
	return "white"
}
