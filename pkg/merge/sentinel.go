package merge

import (
	"github.com/treemerge-io/treemerge/pkg/tree"
)

// stepKind tags the variant of a child-list walk position: a real node or
// one of the algorithm's internal sentinels. Sentinels never appear in input
// or output trees; they exist only inside the merge walk.
type stepKind uint8

const (
	// stepReal indicates a real tree node.
	stepReal stepKind = iota
	// stepDeletia indicates the absence of a node, e.g. a child list whose
	// parent one branch has deleted.
	stepDeletia
	// stepStartOfSequence marks the position before the first child. It is
	// used only in conflict-detection scans.
	stepStartOfSequence
	// stepEndOfSequence marks the position after the last child.
	stepEndOfSequence
)

// Sentinel identifiers contain a NUL byte, which no input identifier can
// carry (the tree layer never synthesizes them and document identifiers are
// attribute values), so they can't collide with real nodes.
const (
	deletiaID         = "\x00deletia"
	startOfSequenceID = "\x00start-of-sequence"
	endOfSequenceID   = "\x00end-of-sequence"
)

// step is a position in a child-list walk: either a real node or a sentinel.
type step struct {
	// kind is the variant tag.
	kind stepKind
	// node is the underlying tree node for stepReal positions and nil
	// otherwise.
	node *tree.Node
}

// deletia is the shared deletia step value.
var deletia = step{kind: stepDeletia}

// endOfSequence is the shared end-of-sequence step value.
var endOfSequence = step{kind: stepEndOfSequence}

// id returns the step's identifier: the node identifier for real steps and
// the reserved sentinel identifier otherwise.
func (s step) id() string {
	switch s.kind {
	case stepReal:
		return s.node.ID()
	case stepDeletia:
		return deletiaID
	case stepStartOfSequence:
		return startOfSequenceID
	default:
		return endOfSequenceID
	}
}

// isSentinel returns true if the step is not a real node.
func (s step) isSentinel() bool {
	return s.kind != stepReal
}

// isEnd returns true if the step marks the end of a child list.
func (s step) isEnd() bool {
	return s.kind == stepEndOfSequence
}
