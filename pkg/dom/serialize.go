package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/treemerge-io/treemerge/pkg/identifier"
	"github.com/treemerge-io/treemerge/pkg/tree"
)

// voidElements are elements serialized without end tags.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// rawTextElements are elements whose text content is serialized without
// escaping.
var rawTextElements = map[string]bool{
	"script": true, "style": true,
}

// SerializerOptions control tree-to-HTML rendering.
type SerializerOptions struct {
	// KeepGeneratedIDs emits synthesized identifiers as id attributes.
	// They're suppressed by default.
	KeepGeneratedIDs bool
}

// Render writes the HTML serialization of the tree to the writer. The
// identifying id attribute is emitted first on each element; synthesized
// identifiers are suppressed unless the options request otherwise.
func Render(w io.Writer, t *tree.Tree, options *SerializerOptions) error {
	resolved := SerializerOptions{}
	if options != nil {
		resolved = *options
	}
	root := t.Root()
	if root == nil {
		return nil
	}
	return renderNode(w, root, false, resolved)
}

// renderNode provides the recursive implementation of Render.
func renderNode(w io.Writer, node *tree.Node, raw bool, options SerializerOptions) error {
	content, ok := node.Content().(Content)
	if !ok {
		return fmt.Errorf("node %q doesn't carry HTML content", node.ID())
	}

	switch content.Kind {
	case KindElement:
		if _, err := fmt.Fprintf(w, "<%s", content.Tag); err != nil {
			return err
		}
		if options.KeepGeneratedIDs || !identifier.IsGenerated(node.ID()) {
			if _, err := fmt.Fprintf(w, ` id="%s"`, html.EscapeString(node.ID())); err != nil {
				return err
			}
		}
		for _, attribute := range content.Attributes {
			if _, err := fmt.Fprintf(w, ` %s="%s"`, attribute.Name, html.EscapeString(attribute.Value)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ">"); err != nil {
			return err
		}
		if voidElements[content.Tag] {
			return nil
		}
		childRaw := rawTextElements[content.Tag]
		for _, child := range node.Children() {
			if err := renderNode(w, child, childRaw, options); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "</%s>", content.Tag); err != nil {
			return err
		}
		return nil
	case KindText:
		text := content.Text
		if !raw {
			text = html.EscapeString(text)
		}
		_, err := io.WriteString(w, text)
		return err
	case KindComment:
		_, err := fmt.Fprintf(w, "<!--%s-->", content.Text)
		return err
	default:
		return fmt.Errorf("node %q has unknown kind", node.ID())
	}
}

// RenderString renders the tree to a string.
func RenderString(t *tree.Tree, options *SerializerOptions) (string, error) {
	builder := &strings.Builder{}
	if err := Render(builder, t, options); err != nil {
		return "", err
	}
	return builder.String(), nil
}
