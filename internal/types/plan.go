package types

import "fmt"

// Validate checks the structural invariants the orchestrator depends on:
// pairwise-distinct file paths and an acyclic dependency graph over known ids.
func (p *Plan) Validate() error {
	seen := make(map[string]int, len(p.Tasks))
	byID := make(map[int]*TaskNode, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.File == "" {
			return fmt.Errorf("%w: task %d has no file path", ErrPlanInvariant, t.ID)
		}
		if prev, ok := seen[t.File]; ok {
			return fmt.Errorf("%w: tasks %d and %d both target %s", ErrPlanInvariant, prev, t.ID, t.File)
		}
		seen[t.File] = t.ID
		if _, ok := byID[t.ID]; ok {
			return fmt.Errorf("%w: duplicate task id %d", ErrPlanInvariant, t.ID)
		}
		byID[t.ID] = t
	}

	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("%w: task %d depends on unknown task %d", ErrPlanInvariant, t.ID, dep)
			}
		}
	}

	// Kahn topological pass; leftover nodes mean a cycle.
	indeg := make(map[int]int, len(p.Tasks))
	for _, t := range p.Tasks {
		indeg[t.ID] = len(t.DependsOn)
	}
	dependents := make(map[int][]int)
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}
	queue := make([]int, 0, len(p.Tasks))
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(p.Tasks) {
		return fmt.Errorf("%w: dependency cycle detected", ErrPlanInvariant)
	}
	return nil
}

// Task returns the node with the given id, or nil.
func (p *Plan) Task(id int) *TaskNode {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Dependents returns the ids of tasks that depend (directly) on id.
func (p *Plan) Dependents(id int) []int {
	var out []int
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if dep == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out
}
