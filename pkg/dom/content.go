package dom

// Kind enumerates the node kinds of the HTML content model.
type Kind uint8

const (
	// KindElement is an element node.
	KindElement Kind = iota
	// KindText is a text node.
	KindText
	// KindComment is a comment node.
	KindComment
)

// String provides a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Attribute is a single element attribute. The identifying "id" attribute
// is never stored here; it lives as the node's identifier in the tree.
type Attribute struct {
	// Name is the attribute name.
	Name string
	// Value is the attribute value.
	Value string
}

// Content is the content value carried by HTML tree nodes. Elements use Tag
// and Attributes; text and comment nodes use Text.
type Content struct {
	// Kind is the node kind.
	Kind Kind
	// Tag is the element tag name.
	Tag string
	// Attributes are the element attributes in document order.
	Attributes []Attribute
	// Text is the text or comment content.
	Text string
}

// Copy returns a value-owned copy of the content.
func (c Content) Copy() Content {
	result := c
	if c.Attributes != nil {
		result.Attributes = make([]Attribute, len(c.Attributes))
		copy(result.Attributes, c.Attributes)
	}
	return result
}

// Equal determines content equality as the merge algorithm sees it:
// matching kinds, attribute equality that's insensitive to order, and exact
// text for text and comment nodes.
func (c Content) Equal(other Content) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case KindElement:
		return c.Tag == other.Tag && attributesEqual(c.Attributes, other.Attributes)
	default:
		return c.Text == other.Text
	}
}

// attributesEqual determines whether two attribute lists represent the same
// name-to-value mapping, regardless of order.
func attributesEqual(a, b []Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	values := make(map[string]string, len(a))
	for _, attribute := range a {
		values[attribute.Name] = attribute.Value
	}
	for _, attribute := range b {
		value, ok := values[attribute.Name]
		if !ok || value != attribute.Value {
			return false
		}
	}
	return true
}

// lookupAttribute finds an attribute by name.
func lookupAttribute(attributes []Attribute, name string) (string, bool) {
	for _, attribute := range attributes {
		if attribute.Name == name {
			return attribute.Value, true
		}
	}
	return "", false
}
