package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drorchestrator/backend-go/internal/domain"
)

func component(id string, seconds int, deps ...string) domain.RecoveryComponent {
	return domain.RecoveryComponent{
		ID:                           id,
		Name:                         id,
		Type:                         domain.ComponentApplication,
		EstimatedRecoveryTimeSeconds: seconds,
		Dependencies:                 deps,
	}
}

func schedule(t *testing.T, plan *domain.RecoveryPlan) *Schedule {
	t.Helper()
	g, err := Build(plan)
	require.NoError(t, err)
	s, err := PlanSchedule(g)
	require.NoError(t, err)
	return s
}

func groupIDs(s *Schedule) [][]string {
	var out [][]string
	for _, g := range s.Groups {
		out = append(out, g.ComponentIDs)
	}
	return out
}

func TestPlanScheduleLevels(t *testing.T) {
	plan := &domain.RecoveryPlan{
		ID: "p",
		Components: []domain.RecoveryComponent{
			component("A", 60),
			component("B", 30, "A"),
			component("C", 90, "A"),
		},
	}

	s := schedule(t, plan)

	assert.Equal(t, [][]string{{"A"}, {"B", "C"}}, groupIDs(s))
	assert.Equal(t, 60, s.Groups[0].EstimatedDurationSeconds)
	// group duration is the slowest member, not the sum
	assert.Equal(t, 90, s.Groups[1].EstimatedDurationSeconds)
	assert.Equal(t, 150, int(s.EstimatedDuration.Seconds()))
	assert.Empty(t, s.Warnings)
}

func TestPlanScheduleCycle(t *testing.T) {
	plan := &domain.RecoveryPlan{
		ID: "p",
		Components: []domain.RecoveryComponent{
			component("A", 1, "B"),
			component("B", 1, "A"),
			component("C", 1),
		},
	}

	g, err := Build(plan)
	require.NoError(t, err)
	_, err = PlanSchedule(g)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCyclicDependency))
	assert.Contains(t, err.Error(), "A, B")
}

func TestBuildSelfDependency(t *testing.T) {
	plan := &domain.RecoveryPlan{Components: []domain.RecoveryComponent{component("A", 1, "A")}}

	_, err := Build(plan)
	assert.True(t, errors.Is(err, domain.ErrCyclicDependency))
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name string
		plan *domain.RecoveryPlan
		want error
	}{
		{"nil plan", nil, domain.ErrInvalidPlan},
		{"no components", &domain.RecoveryPlan{ID: "p"}, domain.ErrInvalidPlan},
		{"duplicate ids", &domain.RecoveryPlan{Components: []domain.RecoveryComponent{component("A", 1), component("A", 1)}}, domain.ErrInvalidPlan},
		{"empty id", &domain.RecoveryPlan{Components: []domain.RecoveryComponent{component("", 1)}}, domain.ErrInvalidPlan},
		{"unknown dependency", &domain.RecoveryPlan{Components: []domain.RecoveryComponent{component("A", 1, "ghost")}}, domain.ErrUnknownComponent},
		{
			"unknown edge source",
			&domain.RecoveryPlan{
				Components:   []domain.RecoveryComponent{component("A", 1)},
				Dependencies: []domain.RecoveryDependency{{ComponentID: "ghost", DependsOn: []string{"A"}}},
			},
			domain.ErrUnknownComponent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.plan)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}
}

func TestOptionalEdgesDoNotBlock(t *testing.T) {
	plan := &domain.RecoveryPlan{
		ID:         "p",
		Components: []domain.RecoveryComponent{component("cache", 1), component("app", 1)},
		Dependencies: []domain.RecoveryDependency{
			{ComponentID: "app", DependsOn: []string{"cache"}, Type: domain.DependencySoft},
			{ComponentID: "cache", DependsOn: []string{"app"}, Type: domain.DependencyHard, Optional: true},
		},
	}

	s := schedule(t, plan)

	assert.Equal(t, [][]string{{"cache", "app"}}, groupIDs(s))
	assert.Len(t, s.Warnings, 2)
}

func TestExplicitEdgeOverridesComponentList(t *testing.T) {
	plan := &domain.RecoveryPlan{
		ID:         "p",
		Components: []domain.RecoveryComponent{component("db", 1), component("app", 1, "db")},
		Dependencies: []domain.RecoveryDependency{
			{ComponentID: "app", DependsOn: []string{"db"}, Type: domain.DependencySoft},
		},
	}

	g, err := Build(plan)
	require.NoError(t, err)
	n, ok := g.Node("app")
	require.True(t, ok)
	require.Len(t, n.DependsOn, 1)
	assert.Equal(t, domain.DependencySoft, n.DependsOn[0].Type)
	assert.Equal(t, 0, n.BlockingCount())
}

func TestEdgeClasses(t *testing.T) {
	tests := []struct {
		edge     Edge
		blocking bool
		success  bool
	}{
		{Edge{Type: domain.DependencyHard}, true, true},
		{Edge{Type: domain.DependencyData}, true, true},
		{Edge{Type: domain.DependencyOrder}, true, false},
		{Edge{Type: domain.DependencySoft}, false, false},
		{Edge{Type: domain.DependencyHard, Optional: true}, false, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s optional=%v", tt.edge.Type, tt.edge.Optional), func(t *testing.T) {
			assert.Equal(t, tt.blocking, tt.edge.Blocking())
			assert.Equal(t, tt.success, tt.edge.RequiresSuccess())
		})
	}
}

// Random DAGs: every component appears in exactly one group and every
// hard dependency sits in a strictly earlier group.
func TestPlanScheduleRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 50; iter++ {
		n := 2 + rng.Intn(25)
		plan := &domain.RecoveryPlan{ID: "rand"}
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if rng.Float64() < 0.2 {
					deps = append(deps, fmt.Sprintf("c%d", j))
				}
			}
			plan.Components = append(plan.Components, component(fmt.Sprintf("c%d", i), rng.Intn(100), deps...))
		}
		// shuffle declaration order so leveling cannot lean on it
		rng.Shuffle(len(plan.Components), func(i, j int) {
			plan.Components[i], plan.Components[j] = plan.Components[j], plan.Components[i]
		})

		s := schedule(t, plan)

		seen := make(map[string]int)
		for _, g := range s.Groups {
			for _, id := range g.ComponentIDs {
				_, dup := seen[id]
				require.False(t, dup, "component %s scheduled twice", id)
				seen[id] = g.Index
			}
		}
		require.Len(t, seen, n)
		for _, c := range plan.Components {
			for _, dep := range c.Dependencies {
				assert.Less(t, seen[dep], seen[c.ID], "%s must run after %s", c.ID, dep)
			}
		}
	}
}

func TestGroupRequirements(t *testing.T) {
	plan := &domain.RecoveryPlan{
		ID:         "p",
		Components: []domain.RecoveryComponent{component("A", 1), component("B", 1, "A"), component("C", 1, "A")},
	}
	g, err := Build(plan)
	require.NoError(t, err)
	s, err := PlanSchedule(g)
	require.NoError(t, err)

	reqs := GroupRequirements(g, s, func(domain.RecoveryComponent) domain.ResourceRequirements {
		return domain.ResourceRequirements{CPUMillis: 100, MemoryMB: 10}
	})

	require.Len(t, reqs, 2)
	assert.Equal(t, int64(100), reqs[0].CPUMillis)
	assert.Equal(t, int64(200), reqs[1].CPUMillis)
	assert.Equal(t, int64(20), reqs[1].MemoryMB)
}

func TestViewAndDOT(t *testing.T) {
	plan := &domain.RecoveryPlan{
		ID: "orders",
		Components: []domain.RecoveryComponent{
			{ID: "db", Type: domain.ComponentDatabase, Criticality: domain.CriticalityCritical},
			{ID: "api", Type: domain.ComponentApplication, Dependencies: []string{"db"}},
		},
	}
	g, err := Build(plan)
	require.NoError(t, err)
	s, err := PlanSchedule(g)
	require.NoError(t, err)

	view := g.View(s)
	require.Len(t, view.Nodes, 2)
	assert.Equal(t, 1, view.Nodes[1].Group)
	require.Len(t, view.Edges, 1)
	assert.Equal(t, "db", view.Edges[0].Source)
	assert.Equal(t, "api", view.Edges[0].Target)

	out := DOT(g, s).String()
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "lightcoral")
	assert.Contains(t, out, "group 0")
}
