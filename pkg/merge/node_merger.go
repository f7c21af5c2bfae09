package merge

import (
	"reflect"
)

// NodeMerger performs three-way merging over an opaque content domain. One
// merger instance serves one merge operation; implementations don't need to
// be reentrant or thread-safe.
type NodeMerger interface {
	// MergeContent merges the content of a node present in all three input
	// trees. It may be called when no real merge is needed (two or three
	// sides equal). It fails with a ContentConflictError when both sides
	// diverge from the base and can't be reconciled.
	MergeContent(base, first, second interface{}) (interface{}, error)
	// NodeEquals is the content equality the algorithm uses to decide
	// changed versus unchanged.
	NodeEquals(a, b interface{}) bool
	// CopyContent returns a value-owned copy of the content for emission
	// into the merged tree, whose lifetime is independent of the inputs.
	CopyContent(content interface{}) interface{}
}

// NullMerger is a NodeMerger over contents with no internal structure: if
// both branches equal the base it keeps the base; if exactly one side
// differs it takes that side; if both differ but agree it takes either; and
// if both differ and disagree it fails with a ContentConflictError.
type NullMerger struct {
	// equals is the content comparator.
	equals func(a, b interface{}) bool
}

// NewNullMerger creates a NullMerger with the specified content comparator.
// A nil comparator defaults to reflect.DeepEqual.
func NewNullMerger(equals func(a, b interface{}) bool) *NullMerger {
	if equals == nil {
		equals = reflect.DeepEqual
	}
	return &NullMerger{equals: equals}
}

// MergeContent implements NodeMerger.MergeContent.
func (m *NullMerger) MergeContent(base, first, second interface{}) (interface{}, error) {
	firstChanged := !m.equals(base, first)
	secondChanged := !m.equals(base, second)
	if !firstChanged && !secondChanged {
		return base, nil
	} else if firstChanged && !secondChanged {
		return first, nil
	} else if !firstChanged {
		return second, nil
	} else if m.equals(first, second) {
		return first, nil
	}
	return nil, &ContentConflictError{Reason: "both sides modified content differently"}
}

// NodeEquals implements NodeMerger.NodeEquals.
func (m *NullMerger) NodeEquals(a, b interface{}) bool {
	return m.equals(a, b)
}

// CopyContent implements NodeMerger.CopyContent. Contents without internal
// structure are owned by value already.
func (*NullMerger) CopyContent(content interface{}) interface{} {
	return content
}
