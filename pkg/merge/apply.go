package merge

import (
	"github.com/treemerge-io/treemerge/pkg/tree"
)

// ApplyHandler is an EditHandler that replays operations onto a mutable
// tree, typically a copy of the merge's base tree. After a successful merge
// the handler's tree equals the merged tree.
type ApplyHandler struct {
	// target is the tree receiving the operations.
	target *tree.Tree
}

// NewApplyHandler creates an ApplyHandler replaying onto the specified
// tree.
func NewApplyHandler(target *tree.Tree) *ApplyHandler {
	return &ApplyHandler{target: target}
}

// Tree returns the tree receiving the operations.
func (h *ApplyHandler) Tree() *tree.Tree {
	return h.target
}

// Insert implements EditHandler.Insert.
func (h *ApplyHandler) Insert(content interface{}, id, parentID string, position int, origin Origin) error {
	return h.target.Insert(content, id, parentID, position)
}

// Delete implements EditHandler.Delete.
func (h *ApplyHandler) Delete(id string, origin Origin) error {
	return h.target.Delete(id)
}

// Move implements EditHandler.Move.
func (h *ApplyHandler) Move(id, parentID string, position int, origin Origin) error {
	return h.target.Move(id, parentID, position)
}

// Update implements EditHandler.Update.
func (h *ApplyHandler) Update(content interface{}, id string, origin Origin) error {
	return h.target.Update(content, id)
}

// EditKind enumerates edit-script operation kinds.
type EditKind uint8

const (
	// EditInsert is an insert operation.
	EditInsert EditKind = iota
	// EditDelete is a delete operation.
	EditDelete
	// EditMove is a move operation.
	EditMove
	// EditUpdate is an update operation.
	EditUpdate
)

// String provides a human-readable representation of the edit kind.
func (k EditKind) String() string {
	switch k {
	case EditInsert:
		return "insert"
	case EditDelete:
		return "delete"
	case EditMove:
		return "move"
	case EditUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Edit is one recorded edit-script operation.
type Edit struct {
	// Kind is the operation kind.
	Kind EditKind
	// ID is the identifier of the affected node.
	ID string
	// ParentID is the target parent for inserts and moves.
	ParentID string
	// Position is the target position for inserts and moves.
	Position int
	// Content is the new content for inserts and updates.
	Content interface{}
	// Origin is the side that caused the operation.
	Origin Origin
}

// Recorder is an EditHandler that records operations for inspection. It can
// wrap another handler, forwarding every operation after recording it.
type Recorder struct {
	// Edits are the recorded operations in emission order.
	Edits []Edit
	// Next is an optional handler to forward operations to.
	Next EditHandler
}

// Insert implements EditHandler.Insert.
func (r *Recorder) Insert(content interface{}, id, parentID string, position int, origin Origin) error {
	r.Edits = append(r.Edits, Edit{Kind: EditInsert, ID: id, ParentID: parentID, Position: position, Content: content, Origin: origin})
	if r.Next != nil {
		return r.Next.Insert(content, id, parentID, position, origin)
	}
	return nil
}

// Delete implements EditHandler.Delete.
func (r *Recorder) Delete(id string, origin Origin) error {
	r.Edits = append(r.Edits, Edit{Kind: EditDelete, ID: id, Origin: origin})
	if r.Next != nil {
		return r.Next.Delete(id, origin)
	}
	return nil
}

// Move implements EditHandler.Move.
func (r *Recorder) Move(id, parentID string, position int, origin Origin) error {
	r.Edits = append(r.Edits, Edit{Kind: EditMove, ID: id, ParentID: parentID, Position: position, Origin: origin})
	if r.Next != nil {
		return r.Next.Move(id, parentID, position, origin)
	}
	return nil
}

// Update implements EditHandler.Update.
func (r *Recorder) Update(content interface{}, id string, origin Origin) error {
	r.Edits = append(r.Edits, Edit{Kind: EditUpdate, ID: id, Content: content, Origin: origin})
	if r.Next != nil {
		return r.Next.Update(content, id, origin)
	}
	return nil
}
