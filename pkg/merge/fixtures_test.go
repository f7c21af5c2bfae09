package merge

import (
	"fmt"
	"strings"
	"testing"

	"github.com/treemerge-io/treemerge/pkg/tree"
)

// buildTree constructs a tree from a Lisp-like scenario notation:
// "label (children...)", where a node's identifier is the lowercased first
// character of its label and its content is the label itself. An empty
// specification yields an empty tree.
func buildTree(t *testing.T, specification string) *tree.Tree {
	t.Helper()
	result := tree.NewTree()
	tokens := tokenize(specification)
	if len(tokens) == 0 {
		return result
	}
	parser := &scenarioParser{tokens: tokens}
	if err := parser.parseNode(result, ""); err != nil {
		t.Fatalf("unable to build tree from %q: %v", specification, err)
	}
	if parser.position != len(parser.tokens) {
		t.Fatalf("trailing tokens in %q", specification)
	}
	return result
}

// tokenize splits a scenario specification into labels and parentheses.
func tokenize(specification string) []string {
	specification = strings.ReplaceAll(specification, "(", " ( ")
	specification = strings.ReplaceAll(specification, ")", " ) ")
	return strings.Fields(specification)
}

// scenarioParser parses tokenized scenario notation.
type scenarioParser struct {
	tokens   []string
	position int
}

// parseNode parses one node (and its children) into the tree under the
// specified parent.
func (p *scenarioParser) parseNode(target *tree.Tree, parentID string) error {
	label := p.tokens[p.position]
	p.position++
	id := strings.ToLower(label[:1])
	if err := target.Insert(label, id, parentID, tree.DefaultPosition); err != nil {
		return err
	}
	if p.position < len(p.tokens) && p.tokens[p.position] == "(" {
		p.position++
		for p.position < len(p.tokens) && p.tokens[p.position] != ")" {
			if err := p.parseNode(target, id); err != nil {
				return err
			}
		}
		if p.position >= len(p.tokens) {
			return fmt.Errorf("unbalanced parentheses")
		}
		p.position++
	}
	return nil
}

// contentEquals is the content comparator for scenario trees, whose
// contents are plain strings.
func contentEquals(a, b interface{}) bool {
	return a == b
}

// copyTree creates an independent copy of a tree.
func copyTree(t *testing.T, source *tree.Tree) *tree.Tree {
	t.Helper()
	result := tree.NewTree()
	if source.Root() == nil {
		return result
	}
	source.Root().Walk(func(n *tree.Node) {
		parentID := ""
		if n.Parent() != nil {
			parentID = n.Parent().ID()
		}
		if err := result.Insert(n.Content(), n.ID(), parentID, tree.DefaultPosition); err != nil {
			t.Fatalf("unable to copy tree: %v", err)
		}
	})
	return result
}

// renderTree formats a tree in scenario notation for failure messages.
func renderTree(t *tree.Tree) string {
	if t.Root() == nil {
		return "<empty>"
	}
	builder := &strings.Builder{}
	renderScenarioNode(builder, t.Root())
	return builder.String()
}

// renderScenarioNode provides the recursive implementation of renderTree.
func renderScenarioNode(builder *strings.Builder, n *tree.Node) {
	label, ok := n.Content().(string)
	if !ok {
		label = "?" + n.ID()
	}
	builder.WriteString(label)
	if n.ChildCount() > 0 {
		builder.WriteString(" (")
		for i, child := range n.Children() {
			if i > 0 {
				builder.WriteString(" ")
			}
			renderScenarioNode(builder, child)
		}
		builder.WriteString(")")
	}
}
