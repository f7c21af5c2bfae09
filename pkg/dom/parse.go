package dom

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"golang.org/x/net/html"

	"github.com/treemerge-io/treemerge/pkg/identifier"
	"github.com/treemerge-io/treemerge/pkg/tree"
)

// docNode is the parsed form of a document node before identification. The
// matcher operates on this representation, because identifiers must be
// settled before a tree can be built.
type docNode struct {
	// content is the node's content.
	content Content
	// id is the node's identifier, or empty if not yet assigned.
	id string
	// children are the node's children in document order.
	children []*docNode
}

// walk performs a depth-first preorder traversal of the node.
func (d *docNode) walk(visitor func(*docNode)) {
	visitor(d)
	for _, child := range d.children {
		child.walk(visitor)
	}
}

// identified determines whether the node and all of its descendants carry
// identifiers.
func (d *docNode) identified() bool {
	result := true
	d.walk(func(n *docNode) {
		if n.id == "" {
			result = false
		}
	})
	return result
}

// parseDocument parses an HTML document into a docNode rooted at the
// document element. Author-supplied id attributes become node identifiers;
// an id that's duplicated within the document or that uses the reserved
// synthesized prefix is a hard error, and an empty or missing id leaves the
// node unidentified. Whitespace-only text between elements is discarded.
func parseDocument(r io.Reader) (*docNode, error) {
	document, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse HTML")
	}

	// Locate the document element.
	var rootElement *html.Node
	for child := document.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode {
			rootElement = child
			break
		}
	}
	if rootElement == nil {
		return nil, errors.New("document has no root element")
	}

	// Convert and validate identifier uniqueness.
	seen := make(map[string]bool)
	root, err := convert(rootElement, seen)
	if err != nil {
		return nil, err
	} else if root == nil {
		return nil, errors.New("document root is not convertible")
	}

	// Success.
	return root, nil
}

// convert converts one html.Node (and its subtree) to a docNode, returning
// nil for nodes that don't participate in merging.
func convert(node *html.Node, seen map[string]bool) (*docNode, error) {
	switch node.Type {
	case html.ElementNode:
		result := &docNode{
			content: Content{Kind: KindElement, Tag: node.Data},
		}
		for _, attribute := range node.Attr {
			if attribute.Key == "id" {
				if attribute.Val == "" {
					continue
				} else if identifier.IsGenerated(attribute.Val) {
					return nil, errors.Errorf("identifier %q uses the reserved synthesized prefix", attribute.Val)
				} else if seen[attribute.Val] {
					return nil, errors.Errorf("duplicate identifier %q", attribute.Val)
				}
				seen[attribute.Val] = true
				result.id = attribute.Val
				continue
			}
			result.content.Attributes = append(result.content.Attributes, Attribute{
				Name:  attribute.Key,
				Value: attribute.Val,
			})
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			converted, err := convert(child, seen)
			if err != nil {
				return nil, err
			} else if converted != nil {
				result.children = append(result.children, converted)
			}
		}
		return result, nil
	case html.TextNode:
		if strings.TrimSpace(node.Data) == "" {
			return nil, nil
		}
		return &docNode{content: Content{Kind: KindText, Text: node.Data}}, nil
	case html.CommentNode:
		return &docNode{content: Content{Kind: KindComment, Text: node.Data}}, nil
	default:
		return nil, nil
	}
}

// synthesize assigns synthesized identifiers to every unidentified node.
func synthesize(root *docNode) error {
	var failure error
	root.walk(func(n *docNode) {
		if failure != nil || n.id != "" {
			return
		}
		id, err := identifier.NewGenerated()
		if err != nil {
			failure = errors.Wrap(err, "unable to synthesize identifier")
			return
		}
		n.id = id
	})
	return failure
}

// build constructs a merged-tree representation from a fully identified
// docNode.
func build(root *docNode) (*tree.Tree, error) {
	result := tree.NewTree()
	var failure error
	var descend func(n *docNode, parentID string)
	descend = func(n *docNode, parentID string) {
		if failure != nil {
			return
		}
		if err := result.Insert(n.content.Copy(), n.id, parentID, tree.DefaultPosition); err != nil {
			failure = errors.Wrap(err, "unable to build tree")
			return
		}
		for _, child := range n.children {
			descend(child, n.id)
		}
	}
	descend(root, "")
	if failure != nil {
		return nil, failure
	}
	return result, nil
}

// Parse parses a single HTML document into a tree, synthesizing identifiers
// for nodes without well-formed ones.
func Parse(r io.Reader) (*tree.Tree, error) {
	root, err := parseDocument(r)
	if err != nil {
		return nil, err
	}
	if err := synthesize(root); err != nil {
		return nil, err
	}
	return build(root)
}

// ParseTrees parses the three input documents of a merge. If every document
// is fully identified, the trees build directly. Otherwise the matcher
// imputes identifiers: the first (server) tree is identified outright, the
// base tree is identified from it, and the second (client) tree from the
// now-identified base. A nil matcher defaults to the alignment matcher.
func ParseTrees(base, first, second io.Reader, matcher Matcher) (*tree.Tree, *tree.Tree, *tree.Tree, error) {
	baseDoc, err := parseDocument(base)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "base")
	}
	firstDoc, err := parseDocument(first)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "first")
	}
	secondDoc, err := parseDocument(second)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "second")
	}

	if !baseDoc.identified() || !firstDoc.identified() || !secondDoc.identified() {
		if matcher == nil {
			matcher = NewAlignmentMatcher()
		}
		if err := synthesize(firstDoc); err != nil {
			return nil, nil, nil, err
		}
		if err := matcher.Match(baseDoc, firstDoc); err != nil {
			return nil, nil, nil, errors.Wrap(err, "unable to identify base document")
		}
		if err := matcher.Match(secondDoc, baseDoc); err != nil {
			return nil, nil, nil, errors.Wrap(err, "unable to identify second document")
		}
	}

	baseTree, err := build(baseDoc)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "base")
	}
	firstTree, err := build(firstDoc)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "first")
	}
	secondTree, err := build(secondDoc)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "second")
	}

	// Success.
	return baseTree, firstTree, secondTree, nil
}
