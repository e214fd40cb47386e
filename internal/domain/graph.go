package domain

// ExecutionGroup is a set of components that may recover concurrently
type ExecutionGroup struct {
	Index                    int      `json:"index"`
	ComponentIDs             []string `json:"component_ids"`
	EstimatedDurationSeconds int      `json:"estimated_duration_seconds"`
}

// GraphNode is a component in the dependency graph view
type GraphNode struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        ComponentType `json:"type"`
	Criticality Criticality   `json:"criticality"`
	Group       int           `json:"group"`
}

// GraphEdge points from a dependency to its dependent
type GraphEdge struct {
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Type     DependencyType `json:"type"`
	Optional bool           `json:"optional"`
}

// DependencyGraphView is the serializable form of a plan's graph
type DependencyGraphView struct {
	PlanID string      `json:"plan_id"`
	Nodes  []GraphNode `json:"nodes"`
	Edges  []GraphEdge `json:"edges"`
}
