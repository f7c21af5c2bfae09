package dom

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/treemerge-io/treemerge/pkg/merge"
)

// MergerOptions are the tunables of the character-level text merge.
type MergerOptions struct {
	// MatchThreshold is the patch-matching fuzziness threshold.
	MatchThreshold float64
	// MatchDistance is how far from the expected location a patch match may
	// stray.
	MatchDistance int
	// DeleteThreshold is the tolerance for deleting partially matched
	// content when applying patches.
	DeleteThreshold float64
}

// DefaultMergerOptions returns the reference tunable values.
func DefaultMergerOptions() MergerOptions {
	return MergerOptions{
		MatchThreshold:  0.2,
		MatchDistance:   2500,
		DeleteThreshold: 0.05,
	}
}

// Merger is a merge.NodeMerger over the HTML content model. It merges
// element tag names and attribute maps three-way and text nodes via
// character-level diff-and-patch.
type Merger struct {
	// dmp is the diff-match-patch engine used for text merging.
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewMerger creates an HTML node merger with the specified options. A nil
// options value uses the defaults.
func NewMerger(options *MergerOptions) *Merger {
	resolved := DefaultMergerOptions()
	if options != nil {
		resolved = *options
	}
	dmp := diffmatchpatch.New()
	dmp.MatchThreshold = resolved.MatchThreshold
	dmp.MatchDistance = resolved.MatchDistance
	dmp.PatchDeleteThreshold = resolved.DeleteThreshold
	return &Merger{dmp: dmp}
}

// MergeContent implements merge.NodeMerger.MergeContent.
func (m *Merger) MergeContent(base, first, second interface{}) (interface{}, error) {
	cb, c1, c2, err := contents(base, first, second)
	if err != nil {
		return nil, err
	}

	// Mixed kinds can't be reconciled.
	if c1.Kind != cb.Kind || c2.Kind != cb.Kind {
		return nil, &merge.ContentConflictError{Reason: "node kinds diverge"}
	}

	switch cb.Kind {
	case KindElement:
		return m.mergeElement(cb, c1, c2)
	case KindText:
		return m.mergeText(cb, c1, c2)
	case KindComment:
		// Comments are compared by value; divergent comments conflict.
		merged, err := mergeScalar(cb.Text, c1.Text, c2.Text)
		if err != nil {
			return nil, &merge.ContentConflictError{Reason: "comments diverge"}
		}
		return Content{Kind: KindComment, Text: merged}, nil
	default:
		return nil, &merge.ContentConflictError{Reason: fmt.Sprintf("unknown node kind %d", cb.Kind)}
	}
}

// NodeEquals implements merge.NodeMerger.NodeEquals.
func (*Merger) NodeEquals(a, b interface{}) bool {
	ca, ok := a.(Content)
	if !ok {
		return false
	}
	cb, ok := b.(Content)
	if !ok {
		return false
	}
	return ca.Equal(cb)
}

// CopyContent implements merge.NodeMerger.CopyContent.
func (*Merger) CopyContent(content interface{}) interface{} {
	if c, ok := content.(Content); ok {
		return c.Copy()
	}
	return content
}

// mergeElement merges the tag name and attribute map of an element.
func (m *Merger) mergeElement(base, first, second Content) (interface{}, error) {
	// Merge the tag name.
	tag, err := mergeScalar(base.Tag, first.Tag, second.Tag)
	if err != nil {
		return nil, &merge.ContentConflictError{Reason: "tag names diverge"}
	}

	// Duplicate attribute names within any single element can't be merged.
	for _, attributes := range [][]Attribute{base.Attributes, first.Attributes, second.Attributes} {
		seen := make(map[string]bool, len(attributes))
		for _, attribute := range attributes {
			if seen[attribute.Name] {
				return nil, &merge.ContentConflictError{
					Reason: fmt.Sprintf("duplicate attribute %q", attribute.Name),
				}
			}
			seen[attribute.Name] = true
		}
	}

	// Collect the union of attribute names in insertion order: base, then
	// first, then second.
	var names []string
	seen := make(map[string]bool)
	for _, attributes := range [][]Attribute{base.Attributes, first.Attributes, second.Attributes} {
		for _, attribute := range attributes {
			if !seen[attribute.Name] {
				seen[attribute.Name] = true
				names = append(names, attribute.Name)
			}
		}
	}

	// Apply the scalar three-way rule over the three optional values for
	// each name. A merged absence deletes the attribute.
	var merged []Attribute
	for _, name := range names {
		baseValue, inBase := lookupAttribute(base.Attributes, name)
		firstValue, inFirst := lookupAttribute(first.Attributes, name)
		secondValue, inSecond := lookupAttribute(second.Attributes, name)
		value, present, err := mergeOptionalScalar(
			baseValue, inBase, firstValue, inFirst, secondValue, inSecond,
		)
		if err != nil {
			return nil, &merge.ContentConflictError{
				Reason: fmt.Sprintf("attribute %q diverges", name),
			}
		}
		if present {
			merged = append(merged, Attribute{Name: name, Value: value})
		}
	}

	// Done.
	return Content{Kind: KindElement, Tag: tag, Attributes: merged}, nil
}

// mergeText merges text content by computing character-level patches from
// the base to the first branch and applying them to the second; on failure
// it tries the opposite direction, and if both fail the texts conflict.
func (m *Merger) mergeText(base, first, second Content) (interface{}, error) {
	if result, ok := m.patchAcross(base.Text, first.Text, second.Text); ok {
		return Content{Kind: KindText, Text: result}, nil
	}
	if result, ok := m.patchAcross(base.Text, second.Text, first.Text); ok {
		return Content{Kind: KindText, Text: result}, nil
	}
	return nil, &merge.ContentConflictError{Reason: "text edits overlap"}
}

// patchAcross computes patches turning from into to and applies them to
// across, reporting whether every patch applied.
func (m *Merger) patchAcross(from, to, across string) (string, bool) {
	patches := m.dmp.PatchMake(from, to)
	result, applied := m.dmp.PatchApply(patches, across)
	for _, ok := range applied {
		if !ok {
			return "", false
		}
	}
	return result, true
}

// mergeScalar applies the scalar three-way rule to required values.
func mergeScalar(base, first, second string) (string, error) {
	if first == base {
		return second, nil
	} else if second == base || second == first {
		return first, nil
	}
	return "", fmt.Errorf("values diverge")
}

// mergeOptionalScalar applies the scalar three-way rule to optional values,
// where absence participates as a distinguished state.
func mergeOptionalScalar(base string, inBase bool, first string, inFirst bool, second string, inSecond bool) (string, bool, error) {
	firstChanged := inFirst != inBase || (inBase && first != base)
	secondChanged := inSecond != inBase || (inBase && second != base)
	if !firstChanged && !secondChanged {
		return base, inBase, nil
	} else if firstChanged && !secondChanged {
		return first, inFirst, nil
	} else if !firstChanged {
		return second, inSecond, nil
	} else if inFirst == inSecond && first == second {
		return first, inFirst, nil
	}
	return "", false, fmt.Errorf("values diverge")
}

// contents casts the three content values to the HTML content model.
func contents(base, first, second interface{}) (Content, Content, Content, error) {
	cb, ok := base.(Content)
	if !ok {
		return Content{}, Content{}, Content{}, &merge.ContentConflictError{Reason: "base content is not HTML content"}
	}
	c1, ok := first.(Content)
	if !ok {
		return Content{}, Content{}, Content{}, &merge.ContentConflictError{Reason: "first content is not HTML content"}
	}
	c2, ok := second.(Content)
	if !ok {
		return Content{}, Content{}, Content{}, &merge.ContentConflictError{Reason: "second content is not HTML content"}
	}
	return cb, c1, c2, nil
}
