package merge

import (
	"fmt"

	"github.com/treemerge-io/treemerge/pkg/tree"
)

// ConflictKind enumerates the irreconcilable structural states that the
// merge algorithm can detect.
type ConflictKind uint8

const (
	// ConflictCollidingInsert indicates different new nodes inserted at the
	// same position by both branches.
	ConflictCollidingInsert ConflictKind = iota
	// ConflictConflictingPosition indicates a node placed in mutually
	// incompatible positions by the two branches.
	ConflictConflictingPosition
	// ConflictDeleteMove indicates a node deleted in one branch and moved or
	// repositioned in the other.
	ConflictDeleteMove
	// ConflictDeleteChange indicates a node deleted in one branch whose
	// content the other branch modified.
	ConflictDeleteChange
	// ConflictMovedOutOfDeletedSubtree indicates a node that one branch
	// moved out of a subtree the other branch deleted.
	ConflictMovedOutOfDeletedSubtree
	// ConflictInsertedIntoDeletedSubtree indicates a node that one branch
	// inserted into a subtree the other branch deleted.
	ConflictInsertedIntoDeletedSubtree
	// ConflictInsertedThenDeleted indicates an inserted node that didn't
	// survive into the merged child list.
	ConflictInsertedThenDeleted
	// ConflictCyclicMerge indicates cross-moves whose combination would
	// produce a cyclic (and hence infinite) merged tree.
	ConflictCyclicMerge
)

// String provides a human-readable representation of the conflict kind.
func (k ConflictKind) String() string {
	switch k {
	case ConflictCollidingInsert:
		return "colliding insert"
	case ConflictConflictingPosition:
		return "conflicting position"
	case ConflictDeleteMove:
		return "delete/move"
	case ConflictDeleteChange:
		return "delete/change"
	case ConflictMovedOutOfDeletedSubtree:
		return "moved out of deleted subtree"
	case ConflictInsertedIntoDeletedSubtree:
		return "inserted into deleted subtree"
	case ConflictInsertedThenDeleted:
		return "inserted node was deleted"
	case ConflictCyclicMerge:
		return "cyclic merged tree"
	default:
		return "unknown"
	}
}

// StructuralConflictError is returned when the merge algorithm detects an
// irreconcilable structural state and the conflict handler escalates it. It
// aborts the merge; no partial merged tree is observable.
type StructuralConflictError struct {
	// Kind is the conflict subkind.
	Kind ConflictKind
	// ID is the identifier of the node at which the conflict was detected,
	// if one applies.
	ID string
}

// Error implements error.Error.
func (e *StructuralConflictError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("structural conflict: %s", e.Kind)
	}
	return fmt.Sprintf("structural conflict at %q: %s", e.ID, e.Kind)
}

// ContentConflictError is returned by a NodeMerger when both sides diverge
// from the base content and can't be reconciled, and by the merge when the
// conflict handler escalates such a state.
type ContentConflictError struct {
	// ID is the identifier of the node whose content conflicts, if known at
	// the point of detection.
	ID string
	// Reason is a human-readable description of the divergence.
	Reason string
}

// Error implements error.Error.
func (e *ContentConflictError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("content conflict: %s", e.Reason)
	}
	return fmt.Sprintf("content conflict at %q: %s", e.ID, e.Reason)
}

// InternalError indicates that an assertion about the algorithm's own
// invariants failed, for instance a sentinel appearing where a real node was
// expected. It indicates a bug in the merger, not a problem with the input.
type InternalError struct {
	// Reason describes the violated invariant.
	Reason string
}

// Error implements error.Error.
func (e *InternalError) Error() string {
	return fmt.Sprintf("internal merge error: %s", e.Reason)
}

// ConflictHandler is the policy hook invoked when the merger detects an
// irreconcilable state. Each hook may resolve the state in place (by
// returning reconciled content or by advancing the passed cursors) and
// return nil, in which case the merge resumes, or re-raise by returning an
// error, which aborts the merge.
type ConflictHandler interface {
	// CollidingContent reconciles the contents of two nodes inserted with
	// the same identifier but different content by the two branches.
	CollidingContent(c1, c2 interface{}, id string) (interface{}, error)
	// ConflictingContent reconciles diverging updates to an existing node.
	ConflictingContent(base, c1, c2 interface{}, id string) (interface{}, error)
	// CollidingNode handles different new nodes inserted at the same
	// position. A resolving implementation must advance at least one of the
	// cursors.
	CollidingNode(n1, n2 *tree.Node, cursor1, cursor2 *Cursor) error
	// ConflictingPosition handles a node placed in mutually incompatible
	// positions. Any of the nodes may be nil when the corresponding branch
	// has no node at the position. A resolving implementation must advance
	// at least one of the cursors.
	ConflictingPosition(nb, n1, n2 *tree.Node, cursorB, cursor1, cursor2 *Cursor) error
}

// NullConflictHandler is the default ConflictHandler. It re-raises on all
// four hooks, converting every conflict into a terminating error.
type NullConflictHandler struct{}

// CollidingContent implements ConflictHandler.CollidingContent.
func (*NullConflictHandler) CollidingContent(c1, c2 interface{}, id string) (interface{}, error) {
	return nil, &ContentConflictError{ID: id, Reason: "colliding insert content"}
}

// ConflictingContent implements ConflictHandler.ConflictingContent.
func (*NullConflictHandler) ConflictingContent(base, c1, c2 interface{}, id string) (interface{}, error) {
	return nil, &ContentConflictError{ID: id, Reason: "diverging content updates"}
}

// CollidingNode implements ConflictHandler.CollidingNode.
func (*NullConflictHandler) CollidingNode(n1, n2 *tree.Node, cursor1, cursor2 *Cursor) error {
	return &StructuralConflictError{Kind: ConflictCollidingInsert, ID: n1.ID()}
}

// ConflictingPosition implements ConflictHandler.ConflictingPosition.
func (*NullConflictHandler) ConflictingPosition(nb, n1, n2 *tree.Node, cursorB, cursor1, cursor2 *Cursor) error {
	var id string
	if nb != nil {
		id = nb.ID()
	} else if n1 != nil {
		id = n1.ID()
	} else if n2 != nil {
		id = n2.ID()
	}
	return &StructuralConflictError{Kind: ConflictConflictingPosition, ID: id}
}
