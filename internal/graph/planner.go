package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// Schedule is the ordered list of execution groups for a plan
type Schedule struct {
	Groups            []domain.ExecutionGroup
	Warnings          []string
	EstimatedDuration time.Duration
}

// GroupOf returns the index of the group containing id, or -1
func (s *Schedule) GroupOf(id string) int {
	for _, g := range s.Groups {
		for _, member := range g.ComponentIDs {
			if member == id {
				return g.Index
			}
		}
	}
	return -1
}

// PlanSchedule levels the graph: each pass takes every unvisited component
// whose blocking dependencies are all in earlier groups. A pass with no
// eligible component means the remaining components form a cycle.
func PlanSchedule(g *Graph) (*Schedule, error) {
	visited := make(map[string]bool, g.Len())
	sched := &Schedule{}

	for len(visited) < g.Len() {
		var eligible []string
		for _, id := range g.order {
			if visited[id] {
				continue
			}
			if blockersVisited(g.nodes[id], visited) {
				eligible = append(eligible, id)
			}
		}

		if len(eligible) == 0 {
			var remaining []string
			for _, id := range g.order {
				if !visited[id] {
					remaining = append(remaining, id)
				}
			}
			return nil, fmt.Errorf("%w: components [%s] never became eligible",
				domain.ErrCyclicDependency, strings.Join(remaining, ", "))
		}

		var longest time.Duration
		for _, id := range eligible {
			n := g.nodes[id]
			for _, e := range n.DependsOn {
				if !e.Blocking() && !visited[e.DependsOn] {
					sched.Warnings = append(sched.Warnings,
						fmt.Sprintf("%s scheduled before optional dependency %s", id, e.DependsOn))
				}
			}
			if d := n.Component.EstimatedRecoveryTime(); d > longest {
				longest = d
			}
		}
		for _, id := range eligible {
			visited[id] = true
		}

		sched.Groups = append(sched.Groups, domain.ExecutionGroup{
			Index:                    len(sched.Groups),
			ComponentIDs:             eligible,
			EstimatedDurationSeconds: int(longest / time.Second),
		})
		sched.EstimatedDuration += longest
	}
	return sched, nil
}

func blockersVisited(n *Node, visited map[string]bool) bool {
	for _, e := range n.DependsOn {
		if e.Blocking() && !visited[e.DependsOn] {
			return false
		}
	}
	return true
}

// GroupRequirements returns the combined resource request of each group
func GroupRequirements(g *Graph, s *Schedule, estimate func(domain.RecoveryComponent) domain.ResourceRequirements) []domain.ResourceRequirements {
	out := make([]domain.ResourceRequirements, len(s.Groups))
	for i, grp := range s.Groups {
		for _, id := range grp.ComponentIDs {
			out[i] = out[i].Add(estimate(g.nodes[id].Component))
		}
	}
	return out
}
