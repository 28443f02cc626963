package richtext

// Annotation is a named formatting marker attached to a character,
// e.g. {"type":"bold"} or {"type":"link"}. Annotations have no identity
// beyond their type; equality is structural.
type Annotation struct {
	Type string `json:"type"`
}

// ListStyle is the rendering style of a list item. The values double as
// the wire representation.
type ListStyle string

const (
	StyleBullet ListStyle = "bullet"
	StyleNumber ListStyle = "number"
)

// ElementKind tags the variant of an Element. For structural markers the
// value doubles as the wire "type" tag; KindChar never appears on the
// wire (characters encode as bare strings or arrays).
type ElementKind string

const (
	KindChar         ElementKind = "char"
	KindParagraph    ElementKind = "paragraph"
	KindParagraphEnd ElementKind = "/paragraph"
	KindHeading      ElementKind = "heading"
	KindHeadingEnd   ElementKind = "/heading"
	KindPre          ElementKind = "pre"
	KindPreEnd       ElementKind = "/pre"
	KindList         ElementKind = "list"
	KindListEnd      ElementKind = "/list"
	KindListItem     ElementKind = "listItem"
	KindListItemEnd  ElementKind = "/listItem"
)

// Element is one position in a document: either a single rendered
// character carrying its active annotations (in start-nesting order), or
// a structural marker. Markers carry no character and no annotations but
// count as one position, exactly like a character, for retain/remove.
type Element struct {
	Kind        ElementKind
	Rune        rune         // KindChar only
	Annotations []Annotation // KindChar only, order significant
	Level       int          // KindHeading only
	Styles      []ListStyle  // KindListItem only
}

// Document is an ordered sequence of elements. No structural-balance
// invariant is enforced here; unmatched start/end markers are legal.
type Document []Element

// Char returns a character element with the given annotations.
func Char(r rune, anns ...Annotation) Element {
	return Element{Kind: KindChar, Rune: r, Annotations: anns}
}

// Marker returns a payload-free structural element.
func Marker(kind ElementKind) Element {
	return Element{Kind: kind}
}

// Heading returns a heading start marker.
func Heading(level int) Element {
	return Element{Kind: KindHeading, Level: level}
}

// ListItem returns a list item start marker.
func ListItem(styles ...ListStyle) Element {
	return Element{Kind: KindListItem, Styles: styles}
}

// Equal reports structural equality: same variant and same payload.
// Annotation order matters; ["bold","link"] != ["link","bold"].
func (e Element) Equal(other Element) bool {
	if e.Kind != other.Kind {
		return false
	}
	switch e.Kind {
	case KindChar:
		return e.Rune == other.Rune && annotationsEqual(e.Annotations, other.Annotations)
	case KindHeading:
		return e.Level == other.Level
	case KindListItem:
		return stylesEqual(e.Styles, other.Styles)
	default:
		return true
	}
}

// Equal reports elementwise structural equality of two documents.
func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if !d[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

func annotationsEqual(a, b []Annotation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stylesEqual(a, b []ListStyle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
