package merge

import (
	"github.com/treemerge-io/treemerge/pkg/tree"
)

// EditHandler receives the edit script derived during a merge: a sequence
// of insert, delete, move, and update operations that transforms the base
// tree into the merged tree. Operations arrive in replay order on the
// calling goroutine: a parent's child-list edits precede edits inside its
// children, and a delete whose subtree had nodes moved out arrives after
// those moves. Positions are valid at application time, so replaying the
// operations in order on a mutable copy of the base tree yields a tree
// equal to the merged tree.
type EditHandler interface {
	// Insert adds a new leaf node. The node's children, if any, arrive as
	// subsequent Insert calls.
	Insert(content interface{}, id, parentID string, position int, origin Origin) error
	// Delete removes the subtree rooted at the identified node.
	Delete(id string, origin Origin) error
	// Move reparents or repositions the identified node with its subtree.
	Move(id, parentID string, position int, origin Origin) error
	// Update replaces the content of the identified node.
	Update(content interface{}, id string, origin Origin) error
}

// NullEditHandler is an EditHandler that discards all operations.
type NullEditHandler struct{}

// Insert implements EditHandler.Insert.
func (*NullEditHandler) Insert(content interface{}, id, parentID string, position int, origin Origin) error {
	return nil
}

// Delete implements EditHandler.Delete.
func (*NullEditHandler) Delete(id string, origin Origin) error {
	return nil
}

// Move implements EditHandler.Move.
func (*NullEditHandler) Move(id, parentID string, position int, origin Origin) error {
	return nil
}

// Update implements EditHandler.Update.
func (*NullEditHandler) Update(content interface{}, id string, origin Origin) error {
	return nil
}

// pendingDelete is a delete operation delayed behind the moves that extract
// surviving nodes from its subtree.
type pendingDelete struct {
	// id is the root of the subtree to delete.
	id string
	// origin is the side that performed the deletion.
	origin Origin
}

// scriptGenerator derives edit-script operations from base and merged child
// lists. It maintains a simulation tree that tracks the state a replaying
// handler would observe, so that emitted positions are valid at application
// time.
type scriptGenerator struct {
	// handler is the edit sink.
	handler EditHandler
	// base, first, and second are the merge's input trees.
	base, first, second *tree.Tree
	// nodeMerger provides content copying for emitted operations.
	nodeMerger NodeMerger
	// sim is the replay simulation tree. It starts as a structural copy of
	// the base tree and has every emitted operation applied to it.
	sim *tree.Tree
	// pending are deletes delayed behind moves out of their subtrees.
	pending []pendingDelete
}

// newScriptGenerator creates an edit-script generator for one merge.
func newScriptGenerator(handler EditHandler, base, first, second *tree.Tree, nodeMerger NodeMerger) *scriptGenerator {
	sim := tree.NewTree()
	if root := base.Root(); root != nil {
		root.Walk(func(n *tree.Node) {
			parentID := ""
			if n.Parent() != nil {
				parentID = n.Parent().ID()
			}
			if err := sim.Insert(n.Content(), n.ID(), parentID, tree.DefaultPosition); err != nil {
				panic("unable to mirror base tree into simulation")
			}
		})
	}
	return &scriptGenerator{
		handler:    handler,
		base:       base,
		first:      first,
		second:     second,
		nodeMerger: nodeMerger,
		sim:        sim,
	}
}

// emitRoot emits the edit contributions of the merged root.
func (g *scriptGenerator) emitRoot(root *tree.Node, insert, update Origin) error {
	if insert != OriginNone {
		if err := g.handler.Insert(g.nodeMerger.CopyContent(root.Content()), root.ID(), "", 0, insert); err != nil {
			return err
		}
		return g.sim.Insert(root.Content(), root.ID(), "", 0)
	} else if update != OriginNone {
		if err := g.handler.Update(g.nodeMerger.CopyContent(root.Content()), root.ID(), update); err != nil {
			return err
		}
		return g.sim.Update(root.Content(), root.ID())
	}
	return nil
}

// deleteRoot emits a whole-document deletion.
func (g *scriptGenerator) deleteRoot(id string, origin Origin) error {
	if err := g.handler.Delete(id, origin); err != nil {
		return err
	}
	return g.sim.Delete(id)
}

// emitFrame emits the edit contributions of one merged child list: content
// updates, deletes of dead base children (delayed when their subtrees still
// hold surviving nodes), and the inserts and moves that realize the merged
// order.
func (g *scriptGenerator) emitFrame(pb *tree.Node, outParent *tree.Node, children []*childInfo, annotations map[string]*annotation) error {
	merged := make(map[string]int, len(children))
	for i, child := range children {
		merged[child.node.ID()] = i
	}

	// Updates.
	for _, child := range children {
		record := annotations[child.node.ID()]
		if record == nil || record.update == OriginNone {
			continue
		}
		if err := g.handler.Update(g.nodeMerger.CopyContent(child.node.Content()), child.node.ID(), record.update); err != nil {
			return err
		}
		if err := g.sim.Update(child.node.Content(), child.node.ID()); err != nil {
			return err
		}
	}

	// Deletes. A base child is dead if it is absent from the merged child
	// list and from at least one branch tree (present in both branches
	// means it was moved and merges elsewhere). A dead subtree that still contains nodes
	// alive in a branch tree or in the merged list is deleted only after
	// the moves that extract them, so it's queued for the final flush.
	if pb != nil {
		for _, x := range pb.Children() {
			if _, ok := merged[x.ID()]; ok {
				continue
			}
			inFirst := g.first.Lookup(x.ID()) != nil
			inSecond := g.second.Lookup(x.ID()) != nil
			if inFirst && inSecond {
				continue
			}
			var origin Origin
			if !inFirst && !inSecond {
				origin = OriginBoth
			} else if !inFirst {
				origin = OriginFirst
			} else {
				origin = OriginSecond
			}
			if g.subtreeHasSurvivors(x) {
				g.pending = append(g.pending, pendingDelete{id: x.ID(), origin: origin})
				continue
			}
			if err := g.handler.Delete(x.ID(), origin); err != nil {
				return err
			}
			if err := g.sim.Delete(x.ID()); err != nil {
				return err
			}
		}
	}

	// Inserts and moves. Children of the simulated parent that already
	// appear in merged order (a longest increasing subsequence) stay put;
	// every other merged child is inserted or moved into place immediately
	// after its merged predecessor.
	simParent := g.sim.Lookup(outParent.ID())
	if simParent == nil {
		return &InternalError{Reason: "merged parent missing from edit simulation"}
	}
	var keep []int
	for _, child := range simParent.Children() {
		if index, ok := merged[child.ID()]; ok {
			keep = append(keep, index)
		}
	}
	stable := longestIncreasing(keep)

	var prev *tree.Node
	for i, child := range children {
		id := child.node.ID()
		record := annotations[id]
		simNode := g.sim.Lookup(id)
		if simNode == nil {
			origin := OriginNone
			if record != nil {
				origin = record.insert
			}
			position := g.placement(prev, nil)
			if err := g.handler.Insert(g.nodeMerger.CopyContent(child.node.Content()), id, outParent.ID(), position, origin); err != nil {
				return err
			}
			if err := g.sim.Insert(child.node.Content(), id, outParent.ID(), position); err != nil {
				return err
			}
		} else if !stable[i] || simNode.Parent() == nil || simNode.Parent().ID() != outParent.ID() {
			origin := OriginNone
			if record != nil {
				origin = record.reorder
			}
			position := g.placement(prev, simNode)
			if err := g.handler.Move(id, outParent.ID(), position, origin); err != nil {
				return err
			}
			if err := g.sim.Move(id, outParent.ID(), position); err != nil {
				return err
			}
		}
		prev = g.sim.Lookup(id)
	}

	// Done.
	return nil
}

// placement computes the application-time position immediately after the
// previously placed sibling. For a move within the same parent from an
// earlier position, detachment shifts the predecessor left by one.
func (g *scriptGenerator) placement(prev, moving *tree.Node) int {
	if prev == nil {
		return 0
	}
	position := prev.Index() + 1
	if moving != nil && moving.Parent() == prev.Parent() && moving.Index() < prev.Index() {
		position--
	}
	return position
}

// subtreeHasSurvivors determines whether any proper descendant of the
// specified base node is still present in a branch tree, and hence will be
// (or was) moved out of the subtree before it can be deleted.
func (g *scriptGenerator) subtreeHasSurvivors(x *tree.Node) bool {
	survivors := false
	for _, child := range x.Children() {
		child.Walk(func(d *tree.Node) {
			if g.first.Lookup(d.ID()) != nil || g.second.Lookup(d.ID()) != nil {
				survivors = true
			}
		})
	}
	return survivors
}

// flush emits the deletes that were delayed behind moves. It is called once
// all moves have been emitted.
func (g *scriptGenerator) flush() error {
	for _, entry := range g.pending {
		if err := g.handler.Delete(entry.id, entry.origin); err != nil {
			return err
		}
		if err := g.sim.Delete(entry.id); err != nil {
			return err
		}
	}
	g.pending = nil
	return nil
}

// longestIncreasing computes a longest strictly increasing subsequence of
// the values and returns membership keyed by value. Ties resolve to the
// leftmost subsequence, keeping the emitted move set deterministic.
func longestIncreasing(values []int) map[int]bool {
	result := make(map[int]bool, len(values))
	if len(values) == 0 {
		return result
	}
	lengths := make([]int, len(values))
	parents := make([]int, len(values))
	best, bestIndex := 0, 0
	for i := range values {
		lengths[i] = 1
		parents[i] = -1
		for j := 0; j < i; j++ {
			if values[j] < values[i] && lengths[j]+1 > lengths[i] {
				lengths[i] = lengths[j] + 1
				parents[i] = j
			}
		}
		if lengths[i] > best {
			best = lengths[i]
			bestIndex = i
		}
	}
	for i := bestIndex; i >= 0; i = parents[i] {
		result[values[i]] = true
	}
	return result
}
