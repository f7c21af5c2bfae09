package merge

import (
	"errors"
	"testing"

	"github.com/treemerge-io/treemerge/pkg/tree"
)

// mergeScenario runs a merge over scenario trees with the null merger and
// the default conflict handler, replaying the edit script onto a copy of
// the base as it goes.
func mergeScenario(t *testing.T, base, first, second string) (string, error) {
	t.Helper()
	baseTree := buildTree(t, base)
	replay := NewApplyHandler(copyTree(t, baseTree))
	merged, err := Merge(
		baseTree,
		buildTree(t, first),
		buildTree(t, second),
		NewNullMerger(contentEquals),
		nil,
		replay,
	)
	if err != nil {
		return "", err
	}
	if !merged.Equal(replay.Tree(), contentEquals) {
		t.Errorf("replayed edit script diverges from merged tree: %s != %s",
			renderTree(replay.Tree()), renderTree(merged),
		)
	}
	return renderTree(merged), nil
}

// TestMergeScenarios tests Merge over the canonical merge scenarios.
func TestMergeScenarios(t *testing.T) {
	// Define test cases.
	tests := []struct {
		description    string
		base           string
		first          string
		second         string
		expected       string
		expectConflict bool
	}{
		{
			"concurrent inserts",
			"a (b c)", "a (b c j)", "a (i b c)",
			"a (i b c j)", false,
		},
		{
			"concurrent deletes",
			"r (a (b) c)", "r (a c)", "r (a (b))",
			"r (a)", false,
		},
		{
			"concurrent updates on disjoint nodes",
			"r (a (b) c)", "R (a (b) c)", "r (a (b) C)",
			"R (a (b) C)", false,
		},
		{
			"concurrent moves",
			"r (a (b d) c)", "r (a (d b) c)", "r (c a (b d))",
			"r (c a (d b))", false,
		},
		{
			"update/delete conflict",
			"r (a (b) c)", "r (c)", "r (A (b) c)",
			"", true,
		},
		{
			"delayed delete",
			"a (b (k (l (m n) d)))", "a", "a (b (d))",
			"a (d)", false,
		},
		{
			"identical edits on both sides",
			"r (a b)", "r (b a)", "r (b a)",
			"r (b a)", false,
		},
		{
			"insert into subtree deleted by the other side",
			"r (a (b))", "r (a (b x))", "r",
			"", true,
		},
		{
			"delete/move conflict",
			"r (a b)", "r (b a)", "r (b)",
			"", true,
		},
		{
			"colliding inserts at the same position",
			"a", "a (x)", "a (y)",
			"", true,
		},
		{
			"colliding insert content",
			"a", "a (x1)", "a (x2)",
			"", true,
		},
		{
			"identical root inserts into an empty base",
			"", "a (b)", "a (b)",
			"a (b)", false,
		},
		{
			"one-sided root insert into an empty base",
			"", "a (b)", "",
			"a (b)", false,
		},
		{
			"colliding root inserts",
			"", "a", "b",
			"", true,
		},
	}

	// Process test cases.
	for _, test := range tests {
		result, err := mergeScenario(t, test.base, test.first, test.second)
		if test.expectConflict {
			if err == nil {
				t.Errorf("%s: merge unexpectedly succeeded with %s", test.description, result)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unable to merge: %v", test.description, err)
		} else if result != test.expected {
			t.Errorf("%s: merge result does not match expected: %s != %s",
				test.description, result, test.expected,
			)
		}
	}
}

// TestMergeIdentity tests that merging a tree with itself on all three
// sides yields the same tree.
func TestMergeIdentity(t *testing.T) {
	specifications := []string{
		"",
		"a",
		"a (b c)",
		"r (a (b d) c)",
		"a (b (k (l (m n) d)))",
	}
	for _, specification := range specifications {
		result, err := mergeScenario(t, specification, specification, specification)
		if err != nil {
			t.Errorf("unable to merge %q with itself: %v", specification, err)
			continue
		}
		expected := renderTree(buildTree(t, specification))
		if result != expected {
			t.Errorf("identity merge of %q does not match expected: %s != %s",
				specification, result, expected,
			)
		}
	}
}

// TestMergeSideIdentity tests that an unmodified branch contributes
// nothing: the merge equals the other branch.
func TestMergeSideIdentity(t *testing.T) {
	// Define test cases.
	tests := []struct {
		base   string
		edited string
	}{
		{"a (b c)", "a (c b)"},
		{"a (b c)", "a (b c j)"},
		{"r (a (b) c)", "r (a c)"},
		{"r (a (b d) c)", "r (c a (b d))"},
		{"r (a (b) c)", "R (a (b) C)"},
	}

	// Process test cases, in both orientations.
	for _, test := range tests {
		expected := renderTree(buildTree(t, test.edited))
		if result, err := mergeScenario(t, test.base, test.edited, test.base); err != nil {
			t.Errorf("unable to merge %q against unmodified second: %v", test.edited, err)
		} else if result != expected {
			t.Errorf("first-side identity violated: %s != %s", result, expected)
		}
		if result, err := mergeScenario(t, test.base, test.base, test.edited); err != nil {
			t.Errorf("unable to merge %q against unmodified first: %v", test.edited, err)
		} else if result != expected {
			t.Errorf("second-side identity violated: %s != %s", result, expected)
		}
	}
}

// TestMergeSymmetry tests that swapping the branches yields the same merged
// tree (or conflicts in both orientations).
func TestMergeSymmetry(t *testing.T) {
	// Define test cases.
	tests := []struct {
		base   string
		first  string
		second string
	}{
		{"a (b c)", "a (b c j)", "a (i b c)"},
		{"r (a (b) c)", "r (a c)", "r (a (b))"},
		{"r (a (b) c)", "R (a (b) c)", "r (a (b) C)"},
		{"r (a (b d) c)", "r (a (d b) c)", "r (c a (b d))"},
		{"r (a (b) c)", "r (c)", "r (A (b) c)"},
		{"a (b (k (l (m n) d)))", "a", "a (b (d))"},
		{"R (a (b (c (d))))", "R (a (c (b (d))))", "R (d (b (c (a))))"},
	}

	// Process test cases.
	for _, test := range tests {
		forward, forwardErr := mergeScenario(t, test.base, test.first, test.second)
		reverse, reverseErr := mergeScenario(t, test.base, test.second, test.first)
		if (forwardErr == nil) != (reverseErr == nil) {
			t.Errorf("conflict asymmetry for %q / %q / %q: %v vs %v",
				test.base, test.first, test.second, forwardErr, reverseErr,
			)
		} else if forwardErr == nil && forward != reverse {
			t.Errorf("merge asymmetry for %q: %s != %s", test.base, forward, reverse)
		}
	}
}

// TestMergeCycleGuard tests that pathological cross-moves conflict instead
// of looping.
func TestMergeCycleGuard(t *testing.T) {
	_, err := mergeScenario(t,
		"R (a (b (c (d))))",
		"R (a (c (b (d))))",
		"R (d (b (c (a))))",
	)
	if err == nil {
		t.Fatal("cyclic merge unexpectedly succeeded")
	}
	var conflict *StructuralConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("cyclic merge failed with unexpected error: %v", err)
	}
	if conflict.Kind != ConflictCyclicMerge && conflict.Kind != ConflictConflictingPosition {
		t.Errorf("cyclic merge failed with unexpected conflict kind: %v", conflict.Kind)
	}
}

// TestMergeContentConflict tests that diverging updates to one node
// escalate through the content hook of the conflict handler.
func TestMergeContentConflict(t *testing.T) {
	// The labels "X" and "xX" share the identifier "x" but carry different
	// content, diverging from the base in incompatible ways.
	base := buildTree(t, "a (x)")
	first := buildTree(t, "a (X)")
	second := buildTree(t, "a (xX)")
	_, err := Merge(base, first, second, NewNullMerger(contentEquals), nil, nil)
	if err == nil {
		t.Fatal("diverging updates unexpectedly merged")
	}
	var conflict *ContentConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("diverging updates failed with unexpected error: %v", err)
	}
	if conflict.ID != "x" {
		t.Errorf("conflict identifier does not match expected: %q != %q", conflict.ID, "x")
	}
}

// resolvingHandler is a ConflictHandler that resolves diverging content
// updates by concatenating the two sides.
type resolvingHandler struct {
	NullConflictHandler
}

// ConflictingContent implements ConflictHandler.ConflictingContent.
func (*resolvingHandler) ConflictingContent(base, c1, c2 interface{}, id string) (interface{}, error) {
	return c1.(string) + c2.(string), nil
}

// TestMergeContentResolution tests that a resolving conflict handler can
// reconcile diverging updates and let the merge complete.
func TestMergeContentResolution(t *testing.T) {
	base := buildTree(t, "a (x)")
	first := buildTree(t, "a (X)")
	second := buildTree(t, "a (xX)")
	merged, err := Merge(base, first, second, NewNullMerger(contentEquals), &resolvingHandler{}, nil)
	if err != nil {
		t.Fatalf("unable to merge with resolving handler: %v", err)
	}
	if result := renderTree(merged); result != "a (XxX)" {
		t.Errorf("merge result does not match expected: %s != %s", result, "a (XxX)")
	}
}

// collidingNodeRecorder is a ConflictHandler that records the nodes passed
// to CollidingNode before escalating.
type collidingNodeRecorder struct {
	NullConflictHandler
	first  string
	second string
}

// CollidingNode implements ConflictHandler.CollidingNode.
func (r *collidingNodeRecorder) CollidingNode(n1, n2 *tree.Node, cursor1, cursor2 *Cursor) error {
	r.first, r.second = n1.ID(), n2.ID()
	return r.NullConflictHandler.CollidingNode(n1, n2, cursor1, cursor2)
}

// TestMergeCollidingNode tests that different new identifiers inserted at
// the same position route through the CollidingNode hook and escalate as a
// colliding-insert conflict.
func TestMergeCollidingNode(t *testing.T) {
	handler := &collidingNodeRecorder{}
	_, err := Merge(
		buildTree(t, "a"),
		buildTree(t, "a (x)"),
		buildTree(t, "a (y)"),
		NewNullMerger(contentEquals),
		handler,
		nil,
	)
	if err == nil {
		t.Fatal("colliding inserts unexpectedly merged")
	}
	var conflict *StructuralConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("colliding inserts failed with unexpected error: %v", err)
	}
	if conflict.Kind != ConflictCollidingInsert {
		t.Errorf("conflict kind does not match expected: %v != %v", conflict.Kind, ConflictCollidingInsert)
	}
	if handler.first != "x" || handler.second != "y" {
		t.Errorf("hook nodes do not match expected: %q, %q", handler.first, handler.second)
	}
}

// TestMergeCollidingContent tests that inserts of the same new identifier
// with divergent content route through the CollidingContent hook.
func TestMergeCollidingContent(t *testing.T) {
	// The labels "x1" and "x2" share the identifier "x" but carry different
	// content.
	_, err := Merge(
		buildTree(t, "a"),
		buildTree(t, "a (x1)"),
		buildTree(t, "a (x2)"),
		NewNullMerger(contentEquals),
		nil,
		nil,
	)
	if err == nil {
		t.Fatal("colliding insert content unexpectedly merged")
	}
	var conflict *ContentConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("colliding insert content failed with unexpected error: %v", err)
	}
	if conflict.ID != "x" {
		t.Errorf("conflict identifier does not match expected: %q != %q", conflict.ID, "x")
	}
}

// collidingContentResolver is a ConflictHandler that reconciles colliding
// insert content by concatenating the two sides.
type collidingContentResolver struct {
	NullConflictHandler
}

// CollidingContent implements ConflictHandler.CollidingContent.
func (*collidingContentResolver) CollidingContent(c1, c2 interface{}, id string) (interface{}, error) {
	return c1.(string) + c2.(string), nil
}

// TestMergeCollidingContentResolution tests that a resolving handler can
// reconcile colliding insert content and let the merge complete.
func TestMergeCollidingContentResolution(t *testing.T) {
	merged, err := Merge(
		buildTree(t, "a"),
		buildTree(t, "a (x1)"),
		buildTree(t, "a (x2)"),
		NewNullMerger(contentEquals),
		&collidingContentResolver{},
		nil,
	)
	if err != nil {
		t.Fatalf("unable to merge with resolving handler: %v", err)
	}
	if result := renderTree(merged); result != "a (x1x2)" {
		t.Errorf("merge result does not match expected: %s != %s", result, "a (x1x2)")
	}
}

// TestMergeCollidingRoots tests that inserting different roots into an
// empty base is a colliding-insert conflict.
func TestMergeCollidingRoots(t *testing.T) {
	_, err := mergeScenario(t, "", "a", "b")
	if err == nil {
		t.Fatal("colliding root inserts unexpectedly merged")
	}
	var conflict *StructuralConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("colliding root inserts failed with unexpected error: %v", err)
	}
	if conflict.Kind != ConflictCollidingInsert {
		t.Errorf("conflict kind does not match expected: %v != %v", conflict.Kind, ConflictCollidingInsert)
	}
}
