package merge

import (
	"testing"
)

// deriveScript merges a base tree against one edited tree on both branches,
// which yields the edited tree along with the edit script transforming the
// base into it. It returns the recorded script after verifying replay
// equivalence.
func deriveScript(t *testing.T, base, target string) []Edit {
	t.Helper()
	baseTree := buildTree(t, base)
	targetTree := buildTree(t, target)
	recorder := &Recorder{Next: NewApplyHandler(copyTree(t, baseTree))}
	merged, err := Merge(
		baseTree,
		targetTree,
		buildTree(t, target),
		NewNullMerger(contentEquals),
		nil,
		recorder,
	)
	if err != nil {
		t.Fatalf("unable to derive script from %q to %q: %v", base, target, err)
	}
	replayed := recorder.Next.(*ApplyHandler).Tree()
	if !merged.Equal(replayed, contentEquals) {
		t.Fatalf("replayed script does not reproduce target: %s != %s",
			renderTree(replayed), renderTree(merged),
		)
	}
	if result := renderTree(merged); result != renderTree(targetTree) {
		t.Fatalf("merge does not reproduce target: %s != %q", result, target)
	}
	return recorder.Edits
}

// countKinds tallies the operations of a script by kind.
func countKinds(edits []Edit) map[EditKind]int {
	result := make(map[EditKind]int)
	for _, edit := range edits {
		result[edit.Kind]++
	}
	return result
}

// TestEditScriptInsertAndDelete tests script derivation for one insert and
// one delete.
func TestEditScriptInsertAndDelete(t *testing.T) {
	edits := deriveScript(t, "a (b c d)", "a (i b d)")
	counts := countKinds(edits)
	if counts[EditInsert] != 1 || counts[EditDelete] != 1 || counts[EditMove] != 0 || counts[EditUpdate] != 0 {
		t.Errorf("script operations do not match expected: %v", edits)
	}
	for _, edit := range edits {
		if edit.Kind == EditInsert {
			if edit.ID != "i" || edit.ParentID != "a" || edit.Position != 0 {
				t.Errorf("insert does not match expected: %+v", edit)
			}
		} else if edit.ID != "c" {
			t.Errorf("delete does not match expected: %+v", edit)
		}
	}
}

// TestEditScriptReorder tests script derivation for a sibling swap, which
// must resolve to a single deterministic move.
func TestEditScriptReorder(t *testing.T) {
	edits := deriveScript(t, "a (b c)", "a (c b)")
	counts := countKinds(edits)
	if counts[EditMove] != 1 || len(edits) != 1 {
		t.Errorf("script operations do not match expected: %v", edits)
	}
}

// TestEditScriptCrossParentMove tests script derivation for a move across
// parents.
func TestEditScriptCrossParentMove(t *testing.T) {
	edits := deriveScript(t, "a (g (b c d) h (e f))", "a (g (b d) h (e c f))")
	counts := countKinds(edits)
	if counts[EditMove] != 1 || len(edits) != 1 {
		t.Errorf("script operations do not match expected: %v", edits)
	}
	if edits[0].ID != "c" || edits[0].ParentID != "h" || edits[0].Position != 1 {
		t.Errorf("move does not match expected: %+v", edits[0])
	}
}

// TestEditScriptDelayedDelete tests that a delete whose subtree had a node
// moved out is emitted after the move.
func TestEditScriptDelayedDelete(t *testing.T) {
	baseTree := buildTree(t, "a (b (k (l (m n) d)))")
	recorder := &Recorder{Next: NewApplyHandler(copyTree(t, baseTree))}
	merged, err := Merge(
		baseTree,
		buildTree(t, "a"),
		buildTree(t, "a (b (d))"),
		NewNullMerger(contentEquals),
		nil,
		recorder,
	)
	if err != nil {
		t.Fatalf("unable to merge: %v", err)
	}
	if result := renderTree(merged); result != "a (d)" {
		t.Fatalf("merge result does not match expected: %s != %s", result, "a (d)")
	}
	var moveIndex, deleteIndex int
	for i, edit := range recorder.Edits {
		if edit.Kind == EditMove && edit.ID == "d" {
			moveIndex = i
		} else if edit.Kind == EditDelete && edit.ID == "b" {
			deleteIndex = i
		}
	}
	if deleteIndex < moveIndex {
		t.Errorf("delete of b emitted before move of d: %v", recorder.Edits)
	}
	replayed := recorder.Next.(*ApplyHandler).Tree()
	if !merged.Equal(replayed, contentEquals) {
		t.Errorf("replayed script diverges from merged tree: %s != %s",
			renderTree(replayed), renderTree(merged),
		)
	}
}

// TestEditScriptUpdates tests update emission with origins.
func TestEditScriptUpdates(t *testing.T) {
	baseTree := buildTree(t, "r (a b)")
	recorder := &Recorder{}
	_, err := Merge(
		baseTree,
		buildTree(t, "r (A b)"),
		buildTree(t, "r (a B)"),
		NewNullMerger(contentEquals),
		nil,
		recorder,
	)
	if err != nil {
		t.Fatalf("unable to merge: %v", err)
	}
	updates := make(map[string]Origin)
	for _, edit := range recorder.Edits {
		if edit.Kind == EditUpdate {
			updates[edit.ID] = edit.Origin
		}
	}
	if len(updates) != 2 {
		t.Fatalf("update count does not match expected: %v", recorder.Edits)
	}
	if updates["a"] != OriginFirst {
		t.Errorf("update origin for a does not match expected: %v", updates["a"])
	}
	if updates["b"] != OriginSecond {
		t.Errorf("update origin for b does not match expected: %v", updates["b"])
	}
}

// TestEditScriptInsertSubtree tests that an inserted subtree arrives as
// parent-before-children inserts.
func TestEditScriptInsertSubtree(t *testing.T) {
	edits := deriveScript(t, "r (a)", "r (a x (y z))")
	counts := countKinds(edits)
	if counts[EditInsert] != 3 || len(edits) != 3 {
		t.Fatalf("script operations do not match expected: %v", edits)
	}
	if edits[0].ID != "x" || edits[0].ParentID != "r" || edits[0].Position != 1 {
		t.Errorf("subtree root insert does not match expected: %+v", edits[0])
	}
	if edits[1].ID != "y" || edits[1].ParentID != "x" || edits[1].Position != 0 {
		t.Errorf("first child insert does not match expected: %+v", edits[1])
	}
	if edits[2].ID != "z" || edits[2].ParentID != "x" || edits[2].Position != 1 {
		t.Errorf("second child insert does not match expected: %+v", edits[2])
	}
}
