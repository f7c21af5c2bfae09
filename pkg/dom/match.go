package dom

import (
	"github.com/pkg/errors"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Matcher imputes identifiers onto the nodes of a target document that lack
// them, using a fully identified source document as the reference. Matched
// target nodes receive the identifier of their source counterpart;
// unmatched nodes receive synthesized identifiers.
type Matcher interface {
	// Match identifies the target document from the source document. The
	// source must be fully identified.
	Match(target, source *docNode) error
}

// textSimilarityThreshold is the minimum character-level similarity for two
// text nodes to be considered aligned.
const textSimilarityThreshold = 0.5

// AlignmentMatcher aligns documents structurally: matching elements by tag
// along a common subsequence of each child list, text nodes by
// character-level similarity, and comments by value, recursing into matched
// element pairs.
type AlignmentMatcher struct {
	// dmp is the diff engine used for text similarity.
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewAlignmentMatcher creates an alignment matcher.
func NewAlignmentMatcher() *AlignmentMatcher {
	return &AlignmentMatcher{dmp: diffmatchpatch.New()}
}

// Match implements Matcher.Match.
func (m *AlignmentMatcher) Match(target, source *docNode) error {
	// Collect identifiers already present in the target so that imputation
	// never duplicates them.
	used := make(map[string]bool)
	target.walk(func(n *docNode) {
		if n.id != "" {
			used[n.id] = true
		}
	})

	// Align recursively from the roots, which are assumed to correspond.
	m.align(target, source, used)

	// Synthesize identifiers for whatever stayed unmatched.
	if err := synthesize(target); err != nil {
		return errors.Wrap(err, "unable to synthesize unmatched identifiers")
	}

	// Success.
	return nil
}

// align imputes the source node's identifier onto the target node (if the
// target lacks one and the identifier is free) and aligns their child
// lists.
func (m *AlignmentMatcher) align(target, source *docNode, used map[string]bool) {
	if target.id == "" && source.id != "" && !used[source.id] {
		target.id = source.id
		used[source.id] = true
	}

	// Compute a longest common subsequence of the child lists under the
	// alignment predicate and recurse into each aligned pair.
	lengths := make([][]int, len(target.children)+1)
	for i := range lengths {
		lengths[i] = make([]int, len(source.children)+1)
	}
	for i := len(target.children) - 1; i >= 0; i-- {
		for j := len(source.children) - 1; j >= 0; j-- {
			if m.corresponds(target.children[i], source.children[j]) {
				lengths[i][j] = lengths[i+1][j+1] + 1
			} else if lengths[i+1][j] >= lengths[i][j+1] {
				lengths[i][j] = lengths[i+1][j]
			} else {
				lengths[i][j] = lengths[i][j+1]
			}
		}
	}
	i, j := 0, 0
	for i < len(target.children) && j < len(source.children) {
		if m.corresponds(target.children[i], source.children[j]) {
			m.align(target.children[i], source.children[j], used)
			i++
			j++
		} else if lengths[i+1][j] >= lengths[i][j+1] {
			i++
		} else {
			j++
		}
	}
}

// corresponds determines whether a target node and a source node should be
// treated as the same node for identifier imputation.
func (m *AlignmentMatcher) corresponds(target, source *docNode) bool {
	if target.content.Kind != source.content.Kind {
		return false
	}
	// A target node with an author-supplied identifier corresponds only to
	// the source node carrying the same identifier.
	if target.id != "" {
		return target.id == source.id
	}
	switch target.content.Kind {
	case KindElement:
		return target.content.Tag == source.content.Tag
	case KindText:
		return m.textSimilarity(target.content.Text, source.content.Text) >= textSimilarityThreshold
	default:
		return target.content.Text == source.content.Text
	}
}

// textSimilarity computes the character-level similarity of two strings as
// one minus the normalized Levenshtein distance of their diff.
func (m *AlignmentMatcher) textSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	diffs := m.dmp.DiffMain(a, b, false)
	distance := m.dmp.DiffLevenshtein(diffs)
	return 1 - float64(distance)/float64(longest)
}

// NullMatcher is a Matcher that only synthesizes identifiers, never
// imputing them from the source. It's useful when correlation between the
// documents isn't wanted.
type NullMatcher struct{}

// Match implements Matcher.Match.
func (*NullMatcher) Match(target, source *docNode) error {
	return synthesize(target)
}
