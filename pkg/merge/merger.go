package merge

import (
	"fmt"

	"github.com/treemerge-io/treemerge/pkg/logging"
	"github.com/treemerge-io/treemerge/pkg/tree"
)

// annotation carries the per-node change origins recorded by the merge walk
// and consumed by the edit-script generator.
type annotation struct {
	// insert is the origin of the node's insertion, if the node is new.
	insert Origin
	// reorder is the origin of the node's repositioning, if it moved.
	reorder Origin
	// update is the origin of the node's content change, if it changed.
	update Origin
}

// Merger performs three-way merges of ordered labeled trees. One Merger
// instance serves one merge operation at a time; instances are not
// reentrant or thread-safe.
type Merger struct {
	// NodeMerger is the content merger. If nil, a NullMerger with the
	// default comparator is used.
	NodeMerger NodeMerger
	// ConflictHandler is the conflict policy. If nil, a NullConflictHandler
	// (fail on any conflict) is used.
	ConflictHandler ConflictHandler
	// EditHandler receives the edit script that transforms the base tree
	// into the merged tree. If nil, no edit script is generated.
	EditHandler EditHandler
	// Logger is an optional trace logger.
	Logger *logging.Logger
	// NodeBudget bounds the number of nodes the merged tree may contain, as
	// a guard against hostile input. Zero means unbounded.
	NodeBudget int
}

// Merge merges the two branch trees against their common ancestor using the
// specified node merger, conflict handler, and edit handler, any of which
// may be nil for the default behavior. It returns the merged tree, or nil
// and an error describing the first irreconcilable edit.
func Merge(base, first, second *tree.Tree, nodeMerger NodeMerger, conflicts ConflictHandler, edits EditHandler) (*tree.Tree, error) {
	merger := &Merger{
		NodeMerger:      nodeMerger,
		ConflictHandler: conflicts,
		EditHandler:     edits,
	}
	return merger.Merge(base, first, second)
}

// merger is the state of one merge operation.
type merger struct {
	// base, first, and second are the input trees, treated read-only.
	base, first, second *tree.Tree
	// out is the merged tree under construction.
	out *tree.Tree
	// nodeMerger is the content merger.
	nodeMerger NodeMerger
	// conflicts is the conflict policy.
	conflicts ConflictHandler
	// script is the edit-script generator, or nil if no edit handler was
	// provided.
	script *scriptGenerator
	// emitted tracks every identifier emitted into the merged tree. It
	// guards against cyclic merges and lets cursors skip children consumed
	// by an earlier realignment.
	emitted map[string]bool
	// annotations records per-node change origins.
	annotations map[string]*annotation
	// logger is the optional trace logger.
	logger *logging.Logger
	// budget bounds the merged node count; zero means unbounded.
	budget int
	// depth is the recursion depth for trace output.
	depth int
}

// childInfo describes one node of a merged child list along with the input
// partners that define its own child lists.
type childInfo struct {
	// node is the merged node.
	node *tree.Node
	// pb, p1, and p2 are the node's counterparts in the base, first, and
	// second trees. Any of them may be nil.
	pb, p1, p2 *tree.Node
	// recurse indicates whether the walk should descend into the node.
	// Rescued descendants of deleted subtrees are emitted as leaves and not
	// descended into.
	recurse bool
}

// Merge implements the merge operation described on the package-level Merge
// function.
func (m *Merger) Merge(base, first, second *tree.Tree) (*tree.Tree, error) {
	// Apply defaults.
	nodeMerger := m.NodeMerger
	if nodeMerger == nil {
		nodeMerger = NewNullMerger(nil)
	}
	conflicts := m.ConflictHandler
	if conflicts == nil {
		conflicts = &NullConflictHandler{}
	}

	// Set up the operation state.
	state := &merger{
		base:        base,
		first:       first,
		second:      second,
		out:         tree.NewTree(),
		nodeMerger:  nodeMerger,
		conflicts:   conflicts,
		emitted:     make(map[string]bool),
		annotations: make(map[string]*annotation),
		logger:      m.Logger,
		budget:      m.NodeBudget,
	}
	if m.EditHandler != nil {
		state.script = newScriptGenerator(m.EditHandler, base, first, second, nodeMerger)
	}

	// Run the merge. On any error the output tree under construction is
	// discarded; no partial result is observable.
	if err := state.run(); err != nil {
		return nil, err
	}

	// Success.
	return state.out, nil
}

// annotate returns the annotation record for the specified identifier,
// creating it if necessary.
func (m *merger) annotate(id string) *annotation {
	record, ok := m.annotations[id]
	if !ok {
		record = &annotation{}
		m.annotations[id] = record
	}
	return record
}

// newCursor creates a cursor over the child list of the specified parent. A
// nil parent yields a deletia cursor.
func (m *merger) newCursor(parent *tree.Node) *Cursor {
	return &Cursor{parent: parent, emitted: m.emitted}
}

// trace logs a trace-level message at the current recursion depth.
func (m *merger) trace(format string, v ...interface{}) {
	if m.logger != nil {
		m.logger.Tracef("%*s"+format, append([]interface{}{2 * m.depth, ""}, v...)...)
	}
}

// run drives the merge: it reconciles the three roots and then recursively
// merges child lists.
func (m *merger) run() error {
	rb, r1, r2 := m.base.Root(), m.first.Root(), m.second.Root()

	// If neither branch has a root, the merged tree is empty. If the base
	// had a root, both branches deleted the document.
	if r1 == nil && r2 == nil {
		if rb != nil && m.script != nil {
			if err := m.script.deleteRoot(rb.ID(), OriginBoth); err != nil {
				return err
			}
		}
		return nil
	}

	// If the base had a root and exactly one branch deleted it, the
	// deletion wins only if the keeping branch left the document untouched;
	// any edit on the keeping side is a delete/change conflict.
	if rb != nil && (r1 == nil || r2 == nil) {
		keeper, origin := m.first, OriginSecond
		if r2 == nil {
			keeper, origin = m.second, OriginFirst
		}
		if !m.base.Equal(keeper, m.nodeMerger.NodeEquals) {
			return &StructuralConflictError{Kind: ConflictDeleteChange, ID: rb.ID()}
		}
		if m.script != nil {
			if err := m.script.deleteRoot(rb.ID(), origin); err != nil {
				return err
			}
		}
		return nil
	}

	// Determine the root identifier. With no base root, both branches must
	// have inserted the same root; with a base root, neither branch may
	// have replaced it.
	var rootID string
	if rb == nil {
		if r1 != nil && r2 != nil && r1.ID() != r2.ID() {
			return &StructuralConflictError{Kind: ConflictCollidingInsert, ID: r1.ID()}
		} else if r1 != nil {
			rootID = r1.ID()
		} else {
			rootID = r2.ID()
		}
	} else {
		if r1.ID() != rb.ID() || r2.ID() != rb.ID() {
			return &StructuralConflictError{Kind: ConflictConflictingPosition, ID: rb.ID()}
		}
		rootID = rb.ID()
	}

	// Emit the merged root and its edit contributions, then descend.
	info, err := m.emitNode(rootID, OriginNone, nil)
	if err != nil {
		return err
	}
	if m.script != nil {
		record := m.annotate(rootID)
		if err := m.script.emitRoot(info.node, record.insert, record.update); err != nil {
			return err
		}
	}
	if err := m.mergeChildLists(info.pb, info.p1, info.p2, info.node); err != nil {
		return err
	}

	// Flush deletes that were delayed behind moves.
	if m.script != nil {
		if err := m.script.flush(); err != nil {
			return err
		}
	}

	// Success.
	return nil
}

// emitNode computes the merged node for the specified identifier from its
// counterparts in the three input trees, applying the deletion-state table,
// the content merge, and the cycle guard, and appends it to the merged
// child list of the specified parent (nil for the root). The deviated
// argument names the side whose edit drove the walk to this node, if any.
func (m *merger) emitNode(id string, deviated Origin, outParent *tree.Node) (*childInfo, error) {
	pb, p1, p2 := m.base.Lookup(id), m.first.Lookup(id), m.second.Lookup(id)
	record := m.annotate(id)

	// Determine the merged content and the change origins.
	var content interface{}
	if pb != nil && p1 != nil && p2 != nil {
		// Reject divergent cross-parent moves: if both branches reparented
		// the node and disagree on the new parent, the placements can't be
		// reconciled. Divergence within a single child list is caught by
		// the synchronized walk itself.
		baseParent := parentIDOf(pb)
		firstParent := parentIDOf(p1)
		secondParent := parentIDOf(p2)
		if firstParent != baseParent && secondParent != baseParent && firstParent != secondParent {
			return nil, &StructuralConflictError{Kind: ConflictConflictingPosition, ID: id}
		}
		firstChanged := !m.nodeMerger.NodeEquals(pb.Content(), p1.Content())
		secondChanged := !m.nodeMerger.NodeEquals(pb.Content(), p2.Content())
		if !firstChanged && !secondChanged {
			content = pb.Content()
		} else {
			merged, err := m.nodeMerger.MergeContent(pb.Content(), p1.Content(), p2.Content())
			if err != nil {
				if _, ok := err.(*ContentConflictError); !ok {
					return nil, err
				}
				merged, err = m.conflicts.ConflictingContent(pb.Content(), p1.Content(), p2.Content(), id)
				if err != nil {
					return nil, err
				}
			}
			content = merged
			if firstChanged && secondChanged {
				record.update = OriginBoth
			} else if firstChanged {
				record.update = OriginFirst
			} else {
				record.update = OriginSecond
			}
		}
		if deviated != OriginNone {
			record.reorder = record.reorder.union(deviated)
		}
	} else if pb == nil && p1 != nil && p2 != nil {
		if m.nodeMerger.NodeEquals(p1.Content(), p2.Content()) {
			content = p1.Content()
		} else {
			resolved, err := m.conflicts.CollidingContent(p1.Content(), p2.Content(), id)
			if err != nil {
				return nil, err
			}
			content = resolved
		}
		record.insert = OriginBoth
	} else if pb == nil && p1 != nil {
		content = p1.Content()
		record.insert = OriginFirst
	} else if pb == nil && p2 != nil {
		content = p2.Content()
		record.insert = OriginSecond
	} else if pb != nil && (p1 != nil || p2 != nil) {
		// Present in the base and exactly one branch: the other branch
		// deleted a node that this walk position requires.
		return nil, &StructuralConflictError{Kind: ConflictDeleteMove, ID: id}
	} else {
		return nil, &InternalError{Reason: fmt.Sprintf("node %q absent from every input tree", id)}
	}

	// Guard against cyclic merges: cross-moves whose combination would
	// require emitting the same node twice.
	if m.emitted[id] {
		return nil, &StructuralConflictError{Kind: ConflictCyclicMerge, ID: id}
	}
	m.emitted[id] = true

	// Enforce the caller-supplied node budget, if one was set.
	if m.budget > 0 && len(m.emitted) > m.budget {
		return nil, fmt.Errorf("merged tree exceeds the node budget of %d", m.budget)
	}

	// Emit into the merged tree. Merged nodes own their content by value.
	parentID := ""
	if outParent != nil {
		parentID = outParent.ID()
	}
	if err := m.out.Insert(m.nodeMerger.CopyContent(content), id, parentID, tree.DefaultPosition); err != nil {
		return nil, &InternalError{Reason: fmt.Sprintf("unable to emit merged node: %v", err)}
	}

	m.trace("emit %q (insert=%v reorder=%v update=%v)", id, record.insert, record.reorder, record.update)

	// Done.
	return &childInfo{
		node:    m.out.Lookup(id),
		pb:      pb,
		p1:      p1,
		p2:      p2,
		recurse: true,
	}, nil
}

// parentIDOf returns the identifier of a node's parent, or the empty string
// for a root.
func parentIDOf(n *tree.Node) string {
	if parent := n.Parent(); parent != nil {
		return parent.ID()
	}
	return ""
}

// cursorState captures cursor positions and emission progress for detecting
// conflict handlers that resolve without advancing anything.
type cursorState struct {
	positions [3]int
	emitted   int
}

// snapshot captures the walk state across the three cursors.
func (m *merger) snapshot(cb, c1, c2 *Cursor) cursorState {
	return cursorState{
		positions: [3]int{cb.position, c1.position, c2.position},
		emitted:   len(m.emitted),
	}
}

// mergeChildLists walks the three child lists of the specified parent
// counterparts in sync, producing the merged child list of outParent,
// validating it, emitting its edit-script contributions, and recursing into
// each merged child. Any of the parent counterparts may be nil, subject to
// the legal parent deletion states.
func (m *merger) mergeChildLists(pb, p1, p2 *tree.Node, outParent *tree.Node) error {
	// Validate the parent deletion state: all present, insert-from-first,
	// insert-from-second, or insert-from-both. Anything else means the walk
	// descended into a state that the merge-node step should have handled.
	if p1 == nil && p2 == nil {
		return &InternalError{Reason: "child-list walk entered with both branch parents deleted"}
	} else if pb != nil && (p1 == nil || p2 == nil) {
		return &InternalError{Reason: "child-list walk entered with a base parent but a deleted branch parent"}
	}

	m.depth++
	defer func() {
		m.depth--
	}()
	m.trace("merge child lists of %q", outParent.ID())

	cb, c1, c2 := m.newCursor(pb), m.newCursor(p1), m.newCursor(p2)
	var children []*childInfo

	// Walk the three lists in sync.
	for {
		n0, n1, n2 := cb.current(), c1.current(), c2.current()

		if n1.id() == n2.id() {
			// Both sides agree on the next node (the common case), or both
			// performed the same edit.
			if n1.isEnd() {
				break
			} else if n1.isSentinel() {
				return &InternalError{Reason: "both branch cursors yielded deletia"}
			}
			id := n1.id()
			deviated := OriginNone
			if id != n0.id() {
				// Same-edit-both-branches reorder or insert: realign the
				// base cursor onto the shared node.
				if m.base.Lookup(id) != nil {
					deviated = OriginBoth
				}
				cb.Seek(id)
			}
			info, err := m.emitNode(id, deviated, outParent)
			if err != nil {
				return err
			}
			children = append(children, info)
		} else if n1.id() != n0.id() && n2.id() != n0.id() {
			// Both branches differ from the base at this position. If both
			// sides present new non-sentinel nodes, it's a colliding
			// insert; otherwise the same node is wanted in incompatible
			// positions. Either way the conflict handler decides, and a
			// resolving handler must make progress on the cursors.
			before := m.snapshot(cb, c1, c2)
			newFirst := !n1.isSentinel() && m.base.Lookup(n1.id()) == nil
			newSecond := !n2.isSentinel() && m.base.Lookup(n2.id()) == nil
			var err error
			if newFirst && newSecond {
				err = m.conflicts.CollidingNode(n1.node, n2.node, c1, c2)
			} else {
				err = m.conflicts.ConflictingPosition(n0.node, n1.node, n2.node, cb, c1, c2)
			}
			if err != nil {
				return err
			}
			if m.snapshot(cb, c1, c2) == before {
				return &InternalError{Reason: "conflict handler resolved without advancing any cursor"}
			}
		} else if n1.id() != n0.id() {
			// The first branch edited at this position.
			if n1.isEnd() {
				// The first branch's list ended while the base and second
				// still agree on a node: the first branch deleted it or
				// relocated it. Skip it here; the post-list checks and the
				// walk of its new location validate the outcome.
				if n0.isSentinel() {
					break
				}
				cb.Advance()
				c2.Advance()
				continue
			}
			id := n1.id()
			deviated := OriginNone
			if m.base.Lookup(id) != nil {
				deviated = OriginFirst
			}
			cb.Seek(id)
			c2.Seek(id)
			info, err := m.emitNode(id, deviated, outParent)
			if err != nil {
				return err
			}
			children = append(children, info)
		} else {
			// Symmetric: the second branch edited at this position.
			if n2.isEnd() {
				if n0.isSentinel() {
					break
				}
				cb.Advance()
				c1.Advance()
				continue
			}
			id := n2.id()
			deviated := OriginNone
			if m.base.Lookup(id) != nil {
				deviated = OriginSecond
			}
			cb.Seek(id)
			c1.Seek(id)
			info, err := m.emitNode(id, deviated, outParent)
			if err != nil {
				return err
			}
			children = append(children, info)
		}
	}

	// Validate the completed child list against the base and branch lists,
	// rescuing repositioned descendants of deleted subtrees.
	children, err := m.checkChildLists(pb, p1, p2, outParent, children)
	if err != nil {
		return err
	}

	// Emit the edit-script contributions for this child list before
	// recursing: an inserted parent must exist before inserts into it can
	// be applied.
	if m.script != nil {
		if err := m.script.emitFrame(pb, outParent, children, m.annotations); err != nil {
			return err
		}
	}

	// Recurse.
	for _, child := range children {
		if !child.recurse {
			continue
		}
		if err := m.mergeChildLists(child.pb, child.p1, child.p2, child.node); err != nil {
			return err
		}
	}

	// Done.
	return nil
}
