// Package dag parses a workflow spec into a validated, in-memory DAG: cycle
// detection, reference integrity, and a deterministic topological order.
package dag

import (
	"encoding/json"
	"fmt"
	"sort"
)

// NodeDefinition is one vertex of a workflow spec.
type NodeDefinition struct {
	ID           string                 `json:"id"`
	Handler      string                 `json:"handler"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Config       map[string]interface{} `json:"config,omitempty"`
	Condition    *string                `json:"condition,omitempty"`
}

type nodeSpec struct {
	ID           string                 `json:"id"`
	Handler      string                 `json:"handler"`
	Dependencies []string               `json:"dependencies"`
	Config       map[string]interface{} `json:"config"`
	Condition    *string                `json:"condition"`
}

type workflowSpec struct {
	Nodes []nodeSpec `json:"nodes"`
}

// DAG is a validated, acyclic dependency graph built from a workflow spec.
type DAG struct {
	Nodes             map[string]*NodeDefinition
	Adjacency         map[string]map[string]struct{} // node -> dependents
	ReverseAdjacency  map[string]map[string]struct{} // node -> dependencies
}

// Build parses raw JSON into a validated DAG, or fails with one of
// ErrEmptyWorkflow, *DuplicateNodeIDError, *InvalidNodeReferenceError, or
// *CyclicDependencyError.
func Build(specJSON []byte) (*DAG, error) {
	var spec workflowSpec
	if err := json.Unmarshal(specJSON, &spec); err != nil {
		return nil, fmt.Errorf("parse workflow spec: %w", err)
	}
	return fromSpecs(spec.Nodes)
}

func fromSpecs(nodes []nodeSpec) (*DAG, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyWorkflow
	}

	d := &DAG{
		Nodes:            make(map[string]*NodeDefinition, len(nodes)),
		Adjacency:        make(map[string]map[string]struct{}),
		ReverseAdjacency: make(map[string]map[string]struct{}),
	}

	for _, n := range nodes {
		if _, exists := d.Nodes[n.ID]; exists {
			return nil, &DuplicateNodeIDError{NodeID: n.ID}
		}
		d.Nodes[n.ID] = &NodeDefinition{
			ID:           n.ID,
			Handler:      n.Handler,
			Dependencies: append([]string(nil), n.Dependencies...),
			Config:       n.Config,
			Condition:    n.Condition,
		}
	}

	d.buildAdjacency()

	if err := d.validateReferences(); err != nil {
		return nil, err
	}
	if err := d.detectCycles(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *DAG) buildAdjacency() {
	for id, n := range d.Nodes {
		if _, ok := d.ReverseAdjacency[id]; !ok {
			d.ReverseAdjacency[id] = make(map[string]struct{})
		}
		for _, dep := range n.Dependencies {
			if _, ok := d.Adjacency[dep]; !ok {
				d.Adjacency[dep] = make(map[string]struct{})
			}
			d.Adjacency[dep][id] = struct{}{}
			d.ReverseAdjacency[id][dep] = struct{}{}
		}
	}
}

func (d *DAG) validateReferences() error {
	for id, n := range d.Nodes {
		for _, dep := range n.Dependencies {
			if _, ok := d.Nodes[dep]; !ok {
				return &InvalidNodeReferenceError{NodeID: id, RefID: dep}
			}
		}
	}
	return nil
}

// detectCycles runs Kahn's algorithm: iteratively remove zero in-degree
// nodes. Anything left over forms the cycle.
func (d *DAG) detectCycles() error {
	inDegree := d.inDegrees()

	queue := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++

		for neighbor := range d.Adjacency[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if visited != len(d.Nodes) {
		var offending []string
		for id, degree := range inDegree {
			if degree > 0 {
				offending = append(offending, id)
			}
		}
		return &CyclicDependencyError{OffendingNodeIDs: offending}
	}

	return nil
}

func (d *DAG) inDegrees() map[string]int {
	inDegree := make(map[string]int, len(d.Nodes))
	for id := range d.Nodes {
		inDegree[id] = len(d.ReverseAdjacency[id])
	}
	return inDegree
}

// TopologicalSort returns a deterministic permutation of node ids such that
// every edge (u -> v) has index(u) < index(v). Ties among siblings are
// broken by id, so the same spec always yields the same order.
func (d *DAG) TopologicalSort() []string {
	inDegree := d.inDegrees()

	queue := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(d.Nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		ready := make([]string, 0)
		for neighbor := range d.Adjacency[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				ready = append(ready, neighbor)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
		sort.Strings(queue)
	}

	return result
}

// RootNodes returns the ids of nodes with no dependencies.
func (d *DAG) RootNodes() []string {
	var roots []string
	for id, n := range d.Nodes {
		if len(n.Dependencies) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Dependents returns the ids of nodes that depend directly on nodeID.
func (d *DAG) Dependents(nodeID string) []string {
	deps := d.Adjacency[nodeID]
	out := make([]string, 0, len(deps))
	for id := range deps {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the dependency ids of nodeID in spec order.
func (d *DAG) Dependencies(nodeID string) []string {
	n, ok := d.Nodes[nodeID]
	if !ok {
		return nil
	}
	return n.Dependencies
}
