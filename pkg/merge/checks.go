package merge

import (
	"github.com/treemerge-io/treemerge/pkg/tree"
)

// checkChildLists performs the whole-list validations that follow the
// completion of a merged child list: the deleted-node check (with rescue of
// repositioned descendants of deleted subtrees) and the missing-insert
// check. It returns the merged child list, extended with any rescued nodes.
func (m *merger) checkChildLists(pb, p1, p2 *tree.Node, outParent *tree.Node, children []*childInfo) ([]*childInfo, error) {
	merged := make(map[string]bool, len(children))
	for _, child := range children {
		merged[child.node.ID()] = true
	}

	// Deleted-node check: every base child that one branch deleted must be
	// untouched in the branch that kept it, and its subtree may only have
	// been edited by moves: the deleting branch's moves out of it, or the
	// keeping branch's repositioning within it, which is rescued.
	if pb != nil {
		for _, x := range pb.Children() {
			if merged[x.ID()] {
				continue
			}
			inFirst := m.first.Lookup(x.ID()) != nil
			inSecond := m.second.Lookup(x.ID()) != nil
			if inFirst == inSecond {
				// Present in both branches, the node was moved and will be
				// (or was) merged at its new location; absent from both,
				// the deletion is concurrent and trivially consistent.
				continue
			}
			var deleting, keeping *tree.Tree
			var keepOrigin Origin
			if inFirst {
				deleting, keeping, keepOrigin = m.second, m.first, OriginFirst
			} else {
				deleting, keeping, keepOrigin = m.first, m.second, OriginSecond
			}
			var err error
			children, err = m.checkDeletedSubtree(x, deleting, keeping, keepOrigin, outParent, children)
			if err != nil {
				return children, err
			}
		}
	}

	// Missing-insert check: every node a branch inserted into this child
	// list must have survived into the merged child list.
	for _, branchParent := range []*tree.Node{p1, p2} {
		if branchParent == nil {
			continue
		}
		for _, c := range branchParent.Children() {
			if m.base.Lookup(c.ID()) == nil && !merged[c.ID()] {
				return children, &StructuralConflictError{Kind: ConflictInsertedThenDeleted, ID: c.ID()}
			}
		}
	}

	// Done.
	return children, nil
}

// checkDeletedSubtree validates the deletion of the base child x, which is
// absent from the deleting branch's tree and present in the keeping
// branch's tree. The keeping branch must not have repositioned or modified
// x, inserted into its subtree, or moved descendants out of it; descendants
// it repositioned within the subtree are rescued into the merged child list
// of outParent. Descendants that the deleting branch itself moved out are
// left for the walk of their new location.
func (m *merger) checkDeletedSubtree(x *tree.Node, deleting, keeping *tree.Tree, keepOrigin Origin, outParent *tree.Node, children []*childInfo) ([]*childInfo, error) {
	kx := keeping.Lookup(x.ID())

	// The deleted node itself must sit between the same surviving
	// neighbors, under the same parent, as in the base.
	if !m.positionUnchanged(x, kx, keeping) {
		return children, &StructuralConflictError{Kind: ConflictDeleteMove, ID: x.ID()}
	}

	// And its content must be untouched.
	if !m.nodeMerger.NodeEquals(x.Content(), kx.Content()) {
		return children, &StructuralConflictError{Kind: ConflictDeleteChange, ID: x.ID()}
	}

	// Collect the identifiers of the deleted base subtree.
	ids := make(map[string]bool)
	x.Walk(func(n *tree.Node) {
		ids[n.ID()] = true
	})

	// The keeping branch must not have inserted new nodes anywhere inside
	// its copy of the subtree.
	var inserted string
	x.Walk(func(n *tree.Node) {
		if inserted != "" {
			return
		}
		kn := keeping.Lookup(n.ID())
		if kn == nil {
			return
		}
		for _, c := range kn.Children() {
			if m.base.Lookup(c.ID()) == nil {
				inserted = c.ID()
				return
			}
		}
	})
	if inserted != "" {
		return children, &StructuralConflictError{Kind: ConflictInsertedIntoDeletedSubtree, ID: inserted}
	}

	// Descend into the deleted subtree.
	var err error
	for _, child := range x.Children() {
		child.Walk(func(d *tree.Node) {
			if err != nil {
				return
			}
			if deleting.Lookup(d.ID()) != nil {
				// Saved by the deleting branch's own move: it merges at
				// its new location, and the subtree delete is delayed
				// behind that move.
				return
			}
			dKeep := keeping.Lookup(d.ID())
			if dKeep == nil {
				return
			}
			if !m.nodeMerger.NodeEquals(d.Content(), dKeep.Content()) {
				err = &StructuralConflictError{Kind: ConflictDeleteChange, ID: d.ID()}
				return
			}
			kParent := dKeep.Parent()
			if kParent == nil || !ids[kParent.ID()] {
				err = &StructuralConflictError{Kind: ConflictMovedOutOfDeletedSubtree, ID: d.ID()}
				return
			}
			if m.positionUnchanged(d, dKeep, keeping) {
				// Untouched by the keeping branch: the deletion claims it.
				return
			}
			// Repositioned within the deleted subtree by the keeping
			// branch: rescue it into the merged child list as a leaf. Its
			// own children are resolved by this same descent.
			children, err = m.rescue(d, dKeep, keepOrigin, outParent, children)
		})
		if err != nil {
			return children, err
		}
	}

	// Done.
	return children, nil
}

// rescue emits a repositioned descendant of a deleted subtree into the
// merged child list of outParent.
func (m *merger) rescue(d, dKeep *tree.Node, keepOrigin Origin, outParent *tree.Node, children []*childInfo) ([]*childInfo, error) {
	if m.emitted[d.ID()] {
		return children, &StructuralConflictError{Kind: ConflictCyclicMerge, ID: d.ID()}
	}
	m.emitted[d.ID()] = true
	if err := m.out.Insert(m.nodeMerger.CopyContent(dKeep.Content()), d.ID(), outParent.ID(), tree.DefaultPosition); err != nil {
		return children, &InternalError{Reason: "unable to emit rescued node: " + err.Error()}
	}
	record := m.annotate(d.ID())
	record.reorder = record.reorder.union(keepOrigin)
	m.trace("rescue %q into %q", d.ID(), outParent.ID())
	return append(children, &childInfo{
		node:    m.out.Lookup(d.ID()),
		pb:      d,
		recurse: false,
	}), nil
}

// positionUnchanged determines whether the keeping branch left a base node
// in position: same parent and the same immediate predecessor and successor
// (or list boundary) among siblings that exist in both trees.
func (m *merger) positionUnchanged(baseNode, keepNode *tree.Node, keeping *tree.Tree) bool {
	baseParent, keepParent := baseNode.Parent(), keepNode.Parent()
	if (baseParent == nil) != (keepParent == nil) {
		return false
	} else if baseParent != nil && baseParent.ID() != keepParent.ID() {
		return false
	}
	basePred, baseSucc := filteredNeighbors(baseNode, func(id string) bool {
		return keeping.Lookup(id) != nil
	})
	keepPred, keepSucc := filteredNeighbors(keepNode, func(id string) bool {
		return m.base.Lookup(id) != nil
	})
	return basePred == keepPred && baseSucc == keepSucc
}

// filteredNeighbors returns the identifiers of the nearest preceding and
// following siblings satisfying the predicate, or the sequence boundary
// sentinels where none exist.
func filteredNeighbors(n *tree.Node, present func(id string) bool) (string, string) {
	pred, succ := startOfSequenceID, endOfSequenceID
	if n.Parent() == nil {
		return pred, succ
	}
	siblings := n.Parent().Children()
	index := n.Index()
	for i := index - 1; i >= 0; i-- {
		if present(siblings[i].ID()) {
			pred = siblings[i].ID()
			break
		}
	}
	for i := index + 1; i < len(siblings); i++ {
		if present(siblings[i].ID()) {
			succ = siblings[i].ID()
			break
		}
	}
	return pred, succ
}
