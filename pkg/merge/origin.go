package merge

// Origin identifies which side (or sides) of a merge caused a change. It is
// attached to merged nodes as insert, reorder, and update annotations, and
// it accompanies every operation emitted to an EditHandler.
type Origin uint8

const (
	// OriginNone indicates that no side caused a change.
	OriginNone Origin = iota
	// OriginFirst indicates a change caused by the first branch.
	OriginFirst
	// OriginSecond indicates a change caused by the second branch.
	OriginSecond
	// OriginBoth indicates the same change performed by both branches.
	OriginBoth
)

// union combines two origins: a change attributed to both individual sides
// is attributed to both.
func (o Origin) union(other Origin) Origin {
	if o == OriginNone {
		return other
	} else if other == OriginNone || o == other {
		return o
	}
	return OriginBoth
}

// MarshalText implements encoding.TextMarshaler.MarshalText.
func (o Origin) MarshalText() ([]byte, error) {
	var result string
	switch o {
	case OriginNone:
		result = "none"
	case OriginFirst:
		result = "first"
	case OriginSecond:
		result = "second"
	case OriginBoth:
		result = "both"
	default:
		result = "unknown"
	}
	return []byte(result), nil
}

// String provides a human-readable representation of the origin.
func (o Origin) String() string {
	result, _ := o.MarshalText()
	return string(result)
}
