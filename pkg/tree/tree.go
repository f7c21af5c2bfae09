package tree

// DefaultPosition is the position value that requests appending to the end
// of the target parent's child list.
const DefaultPosition = -1

// Tree is a mutable ordered labeled tree with by-identifier addressing. The
// zero value is not usable; trees must be created with NewTree. A tree is
// either empty or rooted, and every live node is indexed by its identifier.
// Trees are not safe for concurrent mutation.
type Tree struct {
	// root is the tree's root node, or nil if the tree is empty.
	root *Node
	// index maps identifiers to live nodes.
	index map[string]*Node
}

// NewTree creates a new empty tree.
func NewTree() *Tree {
	return &Tree{
		index: make(map[string]*Node),
	}
}

// Root returns the tree's root node, or nil if the tree is empty.
func (t *Tree) Root() *Node {
	return t.root
}

// Len returns the number of live nodes in the tree.
func (t *Tree) Len() int {
	return len(t.index)
}

// Lookup returns the live node with the specified identifier, or nil if no
// such node exists.
func (t *Tree) Lookup(id string) *Node {
	return t.index[id]
}

// ParentID returns the identifier of the parent of the specified node. The
// second return value is false if the node is the root. It fails with
// NotFoundError if the identifier doesn't resolve.
func (t *Tree) ParentID(id string) (string, bool, error) {
	node, ok := t.index[id]
	if !ok {
		return "", false, &NotFoundError{ID: id}
	} else if node.parent == nil {
		return "", false, nil
	}
	return node.parent.id, true, nil
}

// Insert adds a new leaf node with the specified content and identifier as a
// child of the specified parent at the specified position. An empty parent
// identifier is allowed only when the tree is empty, in which case the new
// node becomes the root and the position is ignored. It fails with
// NotFoundError if the parent doesn't resolve, DuplicateError if the
// identifier is already present, and InvalidPositionError if the position is
// outside [0, childCount]. On failure the tree is unchanged.
func (t *Tree) Insert(content interface{}, id, parentID string, position int) error {
	// Reject duplicate identifiers.
	if _, ok := t.index[id]; ok {
		return &DuplicateError{ID: id}
	}

	// Handle root insertion.
	if parentID == "" {
		if t.root != nil {
			return &NotFoundError{ID: parentID}
		}
		root := &Node{id: id, content: content}
		t.root = root
		t.index[id] = root
		return nil
	}

	// Resolve the parent.
	parent, ok := t.index[parentID]
	if !ok {
		return &NotFoundError{ID: parentID}
	}

	// Validate and normalize the position.
	if position == DefaultPosition {
		position = len(parent.children)
	} else if position < 0 || position > len(parent.children) {
		return &InvalidPositionError{Position: position, Limit: len(parent.children)}
	}

	// Attach.
	node := &Node{id: id, content: content, parent: parent}
	parent.children = append(parent.children, nil)
	copy(parent.children[position+1:], parent.children[position:])
	parent.children[position] = node
	t.index[id] = node

	// Success.
	return nil
}

// Delete removes the subtree rooted at the specified node, purging the node
// and all of its descendants from the index. Deleting the root empties the
// tree. It fails with NotFoundError if the identifier doesn't resolve, in
// which case the tree is unchanged.
func (t *Tree) Delete(id string) error {
	// Resolve the target.
	node, ok := t.index[id]
	if !ok {
		return &NotFoundError{ID: id}
	}

	// Detach from the parent (or empty the tree).
	if node.parent == nil {
		t.root = nil
	} else {
		t.detach(node)
	}

	// Purge the subtree from the index.
	node.Walk(func(n *Node) {
		delete(t.index, n.id)
	})

	// Success.
	return nil
}

// Update replaces the content of the specified node. It fails with
// NotFoundError if the identifier doesn't resolve.
func (t *Tree) Update(content interface{}, id string) error {
	node, ok := t.index[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	node.content = content
	return nil
}

// Move detaches the specified node from its current parent and reattaches it
// (with its subtree) under the target parent at the specified position. The
// position is interpreted after detachment: when the target parent is the
// current parent the allowed range is [0, childCount-1], and across parents
// it is [0, targetChildCount]. It fails with NotFoundError if either
// identifier doesn't resolve and InvalidMoveError if the node is the root or
// an ancestor of (or equal to) the target parent. On failure the tree is
// unchanged.
func (t *Tree) Move(id, parentID string, position int) error {
	// Resolve the node and the target parent.
	node, ok := t.index[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	parent, ok := t.index[parentID]
	if !ok {
		return &NotFoundError{ID: parentID}
	}

	// Reject root moves and cycles.
	if node.parent == nil {
		return &InvalidMoveError{ID: id, Reason: "node is the root"}
	} else if node.IsAncestorOf(parent) {
		return &InvalidMoveError{ID: id, Reason: "target parent lies within the moved subtree"}
	}

	// Validate the position against the post-detachment child count.
	limit := len(parent.children)
	if parent == node.parent {
		limit--
	}
	if position == DefaultPosition {
		position = limit
	} else if position < 0 || position > limit {
		return &InvalidPositionError{Position: position, Limit: limit}
	}

	// Detach, then attach.
	t.detach(node)
	node.parent = parent
	parent.children = append(parent.children, nil)
	copy(parent.children[position+1:], parent.children[position:])
	parent.children[position] = node

	// Success.
	return nil
}

// detach removes a non-root node from its parent's child list and clears its
// parent pointer. The node stays indexed.
func (t *Tree) detach(node *Node) {
	siblings := node.parent.children
	for i, sibling := range siblings {
		if sibling == node {
			copy(siblings[i:], siblings[i+1:])
			siblings[len(siblings)-1] = nil
			node.parent.children = siblings[:len(siblings)-1]
			break
		}
	}
	node.parent = nil
}

// Equal determines whether two trees are structurally equal: same shape,
// same identifiers in the same order, and equal content at every node as
// judged by the specified content comparator.
func (t *Tree) Equal(other *Tree, contentEquals func(a, b interface{}) bool) bool {
	if t.root == nil || other.root == nil {
		return t.root == nil && other.root == nil
	}
	return nodesEqual(t.root, other.root, contentEquals)
}

// nodesEqual provides the recursive implementation of Tree.Equal.
func nodesEqual(a, b *Node, contentEquals func(a, b interface{}) bool) bool {
	if a.id != b.id || !contentEquals(a.content, b.content) {
		return false
	} else if len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !nodesEqual(a.children[i], b.children[i], contentEquals) {
			return false
		}
	}
	return true
}
