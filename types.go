package sgml

import "github.com/lestrrat-go/sgml/internal/dtd"

// NodeType enumerates the kinds of node the Reader can surface (spec §3
// "Parser node").
type NodeType int

const (
	Document NodeType = iota + 1
	Element
	EndElement
	Text
	Whitespace
	CData
	Comment
	ProcessingInstruction
	DocumentType
	AttributeNode
)

func (t NodeType) String() string {
	switch t {
	case Document:
		return "Document"
	case Element:
		return "Element"
	case EndElement:
		return "EndElement"
	case Text:
		return "Text"
	case Whitespace:
		return "Whitespace"
	case CData:
		return "CData"
	case Comment:
		return "Comment"
	case ProcessingInstruction:
		return "ProcessingInstruction"
	case DocumentType:
		return "DocumentType"
	case AttributeNode:
		return "Attribute"
	default:
		return "Unknown"
	}
}

// CaseFolding selects how element and attribute names are normalized as
// they are read (spec §4.5.2).
type CaseFolding int

const (
	CaseFoldNone CaseFolding = iota
	CaseFoldUpper
	CaseFoldLower
)

// WhitespaceHandling controls whether pure-whitespace text nodes surface at
// all (spec §4.5.9).
type WhitespaceHandling int

const (
	WhitespaceAll WhitespaceHandling = iota
	WhitespaceSignificant
	WhitespaceNone
)

// TextWhitespaceFlag is a bitmask controlling leading/trailing trimming of
// surfaced text nodes (spec §4.5.9).
type TextWhitespaceFlag int

const (
	TrimLeading TextWhitespaceFlag = 1 << iota
	TrimTrailing
	OnlyLineBreaks

	textWhitespaceAll = TrimLeading | TrimTrailing | OnlyLineBreaks
)

// Attr is a single attribute record (spec §3 "Attribute record"). Name is
// already case-folded per the reader's configuration; QuoteChar is '\'',
// '"', or 0 when the value was unquoted or synthesized.
type Attr struct {
	Name      string
	Value     string
	QuoteChar rune
	Default   bool
	Def       *dtd.AttDef
}
