package merge

import (
	"github.com/treemerge-io/treemerge/pkg/tree"
)

// Cursor iterates the ordered child list of one parent node during a merge
// walk. After the last real child it yields the end-of-sequence sentinel
// indefinitely (the walk consumes it at most once), and a cursor over a
// deleted parent yields the deletia sentinel indefinitely. Cursors are
// created by the merger, live for the duration of one child-list walk, and
// are exposed to ConflictHandler hooks so that resolving handlers can
// advance or realign them.
type Cursor struct {
	// parent is the parent whose children are iterated. It is nil for a
	// deletia cursor.
	parent *tree.Node
	// position is the current position within the parent's child list.
	position int
	// emitted is the merger's emitted-identifier set, used to skip children
	// that an earlier realignment already consumed into the merged tree.
	emitted map[string]bool
}

// current returns the step at the cursor's position, skipping children that
// have already been emitted into the merged tree.
func (c *Cursor) current() step {
	if c.parent == nil {
		return deletia
	}
	children := c.parent.Children()
	for c.position < len(children) && c.emitted[children[c.position].ID()] {
		c.position++
	}
	if c.position >= len(children) {
		return endOfSequence
	}
	return step{kind: stepReal, node: children[c.position]}
}

// Advance moves the cursor past its current position. Advancing a deletia
// cursor or a cursor that has reached the end of the list is a no-op.
func (c *Cursor) Advance() {
	if c.parent == nil || c.position >= c.parent.ChildCount() {
		return
	}
	c.position++
}

// Seek realigns the cursor to the named child. If the identifier names a
// child of the cursor's parent, the cursor repositions onto it (seeking the
// already-current child is a no-op); children jumped over are left for
// later realignment or for the post-list checks. If the identifier doesn't
// name a child of this parent, the cursor is left unchanged and false is
// returned.
func (c *Cursor) Seek(id string) bool {
	if c.parent == nil {
		return false
	}
	for i, child := range c.parent.Children() {
		if child.ID() == id {
			c.position = i
			return true
		}
	}
	return false
}

// advanceIf advances the cursor if its current step carries the specified
// identifier.
func (c *Cursor) advanceIf(id string) {
	if current := c.current(); !current.isSentinel() && current.id() == id {
		c.Advance()
	}
}
