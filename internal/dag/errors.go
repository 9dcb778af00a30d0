package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptyWorkflow is returned when a spec has no nodes.
var ErrEmptyWorkflow = errors.New("workflow has no nodes")

// DuplicateNodeIDError is returned when two nodes in a spec share an id.
type DuplicateNodeIDError struct {
	NodeID string
}

func (e *DuplicateNodeIDError) Error() string {
	return fmt.Sprintf("duplicate node id: %s", e.NodeID)
}

// InvalidNodeReferenceError is returned when a node depends on an id that
// doesn't exist in the spec.
type InvalidNodeReferenceError struct {
	NodeID  string
	RefID   string
}

func (e *InvalidNodeReferenceError) Error() string {
	return fmt.Sprintf("node %s references undefined dependency %s", e.NodeID, e.RefID)
}

// CyclicDependencyError is returned when the dependency graph contains a
// cycle. OffendingNodeIDs is the residue left over after Kahn's algorithm
// drains every zero-in-degree node; it is compared as a set in tests, not as
// an ordered slice.
type CyclicDependencyError struct {
	OffendingNodeIDs []string
}

func (e *CyclicDependencyError) Error() string {
	ids := append([]string(nil), e.OffendingNodeIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("cyclic dependency detected among nodes: %s", strings.Join(ids, ", "))
}

// Is implements set-equality comparison so CyclicDependencyError can be used
// with errors.Is/As by tests that only care about the offending node set.
func (e *CyclicDependencyError) Is(target error) bool {
	other, ok := target.(*CyclicDependencyError)
	if !ok {
		return false
	}
	return sameSet(e.OffendingNodeIDs, other.OffendingNodeIDs)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
