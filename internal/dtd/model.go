// Package dtd implements the in-memory DTD model (element declarations,
// attribute definitions, content-model groups, entity tables) and the
// recursive-descent parser that builds it by consuming entity.Entity
// primitives.
package dtd

import (
	"strings"

	"github.com/lestrrat-go/sgml/internal/entity"
)

// AttrType enumerates the attribute value types recognized by an ATTLIST
// declaration.
type AttrType int

const (
	AttrInvalid AttrType = iota
	AttrCDATA
	AttrID
	AttrIDRef
	AttrIDRefs
	AttrName
	AttrNames
	AttrNmtoken
	AttrNmtokens
	AttrNumber
	AttrNumbers
	AttrNutoken
	AttrNutokens
	AttrEntity
	AttrEntities
	AttrNotation
	AttrEnumeration
)

// AttrPresence enumerates the #REQUIRED / #IMPLIED / #FIXED / default-literal
// forms an attribute default can take.
type AttrPresence int

const (
	PresenceDefault AttrPresence = iota
	PresenceFixed
	PresenceRequired
	PresenceImplied
)

// AttDef is a single attribute definition from an ATTLIST declaration.
type AttDef struct {
	Name     string
	Type     AttrType
	Presence AttrPresence
	Default  string
	Values   []string // enumeration or NOTATION member list
}

// DeclaredContent marks an element whose content has no nested structure.
type DeclaredContent int

const (
	DeclaredNone DeclaredContent = iota
	DeclaredEmpty
	DeclaredCData
	DeclaredRCData
)

// Connector is the separator used between the members of a content-model
// Group. It is uniform within a single group (spec invariant: mixing
// connectors in one group is a parse error).
type Connector int

const (
	ConnNone Connector = iota
	ConnSeq            // ","
	ConnOr             // "|"
	ConnAnd            // "&"
)

// Occurrence is the suffix applied to a content-model member or group.
type Occurrence int

const (
	OccurOnce Occurrence = iota
	OccurOpt             // "?"
	OccurMult            // "*"
	OccurPlus            // "+"
)

// Group is one level of a content model's parenthesized structure. A leaf
// member has Name set and no Members; #PCDATA is recorded by setting Mixed
// on the group that contains it.
type Group struct {
	Name       string // leaf member name, empty for a non-leaf group
	Members    []*Group
	Connector  Connector
	Occurrence Occurrence
	Mixed      bool // group contains #PCDATA
}

// IsLeaf reports whether g names a single element rather than containing
// nested members.
func (g *Group) IsLeaf() bool {
	return g.Name != "" && len(g.Members) == 0
}

// ContentModel is an element's full structural rule: either a declared
// content kind (EMPTY/CDATA/RCDATA, no nested structure) or a root Group.
type ContentModel struct {
	Declared DeclaredContent
	Root     *Group // nil when Declared != DeclaredNone
}

// AllowsText reports whether this content model admits #PCDATA, either via
// declared content or a mixed root group.
func (cm *ContentModel) AllowsText() bool {
	if cm == nil {
		return false
	}
	switch cm.Declared {
	case DeclaredCData, DeclaredRCData:
		return true
	case DeclaredEmpty:
		return false
	}
	return cm.Root != nil && cm.Root.Mixed
}

// Members returns the element names this content model can directly
// contain (flattening nested groups at every depth so membership tests
// don't need to recurse at call sites). #PCDATA is omitted.
func (cm *ContentModel) Members() []string {
	if cm == nil || cm.Root == nil {
		return nil
	}
	var names []string
	var walk func(g *Group)
	walk = func(g *Group) {
		if g.IsLeaf() {
			names = append(names, g.Name)
			return
		}
		for _, m := range g.Members {
			walk(m)
		}
	}
	walk(cm.Root)
	return names
}

// ElementDecl is a single <!ELEMENT> declaration (spec §3 "Element
// declaration"). Names are stored uppercased; lookups are case-insensitive.
type ElementDecl struct {
	Name             string
	StartTagOptional bool
	EndTagOptional   bool
	Content          *ContentModel
	Inclusions       map[string]bool
	Exclusions       map[string]bool
	Attributes       map[string]*AttDef // lazily populated, keyed by upper name
}

func newElementDecl(name string) *ElementDecl {
	return &ElementDecl{
		Name:       strings.ToUpper(name),
		Inclusions: make(map[string]bool),
		Exclusions: make(map[string]bool),
		Attributes: make(map[string]*AttDef),
	}
}

// CanContain reports whether name is a direct member of this element's
// content model (ignoring inherited inclusion/exclusion, which the document
// parser layers on top per spec §4.5.7).
func (e *ElementDecl) CanContain(name string) bool {
	name = strings.ToUpper(name)
	for _, m := range e.Content.Members() {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

// EntityDecl is a single <!ENTITY> declaration, general or parameter.
type EntityDecl struct {
	Name        string
	Parameter   bool
	Literal     string
	LiteralType entity.LiteralType
	PublicID    string
	SystemURI   string
	NData       string // unparsed external entity notation name, if any
}

// DTD is the full in-memory model produced by parsing one external or
// internal subset (or both, merged): element declarations, attribute
// definitions folded into their owning element, and the general/parameter
// entity tables. It is immutable after Parse returns and may be shared
// across any number of document parses (spec §5 "Shared-lifetime DTD").
type DTD struct {
	Name       string
	Elements   map[string]*ElementDecl
	Entities   map[string]*EntityDecl
	PEntities  map[string]*EntityDecl
	SystemID   string
	PublicID   string
}

// New returns an empty, mutable DTD ready to be populated by a Parser.
func New(name string) *DTD {
	return &DTD{
		Name:      strings.ToUpper(name),
		Elements:  make(map[string]*ElementDecl),
		Entities:  make(map[string]*EntityDecl),
		PEntities: make(map[string]*EntityDecl),
	}
}

// Element looks up an element declaration case-insensitively.
func (d *DTD) Element(name string) (*ElementDecl, bool) {
	e, ok := d.Elements[strings.ToUpper(name)]
	return e, ok
}

// Entity looks up a general entity declaration case-sensitively (general
// entity names, unlike element names, are not folded per SGML convention
// carried over from the source format).
func (d *DTD) Entity(name string) (*EntityDecl, bool) {
	e, ok := d.Entities[name]
	return e, ok
}

// ParameterEntity looks up a parameter entity declaration.
func (d *DTD) ParameterEntity(name string) (*EntityDecl, bool) {
	e, ok := d.PEntities[name]
	return e, ok
}

func (d *DTD) addElement(e *ElementDecl) {
	if _, exists := d.Elements[e.Name]; exists {
		return // spec §7.4: duplicate declarations are logged by the caller, first wins
	}
	d.Elements[e.Name] = e
}

func (d *DTD) addEntity(e *EntityDecl) {
	table := d.Entities
	if e.Parameter {
		table = d.PEntities
	}
	if _, exists := table[e.Name]; exists {
		return
	}
	table[e.Name] = e
}
