package sgml

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/lestrrat-go/sgml/internal/debug"
	"github.com/lestrrat-go/sgml/internal/dtd"
	"github.com/lestrrat-go/sgml/internal/entity"
	"github.com/lestrrat-go/sgml/internal/htmldtd"
	"github.com/lestrrat-go/sgml/internal/stack"
	"github.com/lestrrat-go/sgml/resolver"
)

// frame is one element-stack entry (spec §3 "Parser node"). Slots are
// reused across Push/Pop via stack.Stack's high-water mark so a long parse
// does not reallocate per element.
type frame struct {
	name         string
	decl         *dtd.ElementDecl
	included     map[string]bool
	excluded     map[string]bool
	seenChildren map[string]bool // direct children opened so far, for sequence-gap detection
	attrs        []Attr
	simulated    bool
	empty        bool
	xmlSpace     string
	xmlLang      string
}

func (f *frame) reset(name string, decl *dtd.ElementDecl, parent *frame) {
	f.name = name
	f.decl = decl
	f.simulated = false
	f.empty = false
	if parent != nil {
		f.xmlSpace = parent.xmlSpace
		f.xmlLang = parent.xmlLang
	} else {
		f.xmlSpace = ""
		f.xmlLang = ""
	}
	f.attrs = f.attrs[:0]
	if f.seenChildren == nil {
		f.seenChildren = make(map[string]bool)
	} else {
		clearMap(f.seenChildren)
	}
	if f.included == nil {
		f.included = make(map[string]bool)
	} else {
		clearMap(f.included)
	}
	if f.excluded == nil {
		f.excluded = make(map[string]bool)
	} else {
		clearMap(f.excluded)
	}
	if parent != nil {
		for k := range parent.included {
			f.included[k] = true
		}
		for k := range parent.excluded {
			f.excluded[k] = true
		}
	}
	if decl != nil {
		for k := range decl.Inclusions {
			f.included[k] = true
		}
		for k := range decl.Exclusions {
			f.excluded[k] = true
			delete(f.included, k) // spec §4.5.7: an exclusion wins at the same depth
		}
	}
}

func clearMap(m map[string]bool) {
	for k := range m {
		delete(m, k)
	}
}

func (f *frame) includes(name string) bool {
	up := strings.ToUpper(name)
	if f.excluded[up] {
		return false
	}
	return f.included[up]
}

// event is a fully-formed node snapshot queued for surfacing. Tag inference
// and auto-close both work by queuing several events ahead of the "real"
// one that triggered them.
type event struct {
	typ       NodeType
	name      string
	prefix    string
	namespace string
	value     string
	attrs     []Attr
	simulated bool
	isEmpty   bool
	depth     int
	xmlSpace  string
	xmlLang   string
}

// Reader is the pull-style node-stream reader (spec §4.5, §6). It is
// single-threaded and synchronous; a Reader is not safe for concurrent use.
type Reader struct {
	cfg *config
	dtd *dtd.DTD

	root *entity.Entity
	cur  *entity.Entity

	elementStack stack.Stack[frame]
	pending      []event

	rootSeen  bool
	eof       bool
	fatal     error
	cdataDone bool // current element's CDATA content already fully consumed

	node    event
	attrIdx int

	unknownNSCounter int
	unknownNSNames   map[string]string
}

// New constructs a Reader from the given options and opens its document
// source immediately (spec §6 "InputStream / Href (stream wins)").
func New(opts ...Option) (*Reader, error) {
	cfg := newConfig()
	for _, o := range opts {
		o(cfg)
	}

	r := &Reader{cfg: cfg, unknownNSNames: make(map[string]string)}

	if err := r.loadDTD(); err != nil {
		return nil, err
	}
	if err := r.openDocument(); err != nil {
		return nil, err
	}

	// the document frame, depth 0, always present per spec §3 invariant
	doc := r.elementStack.Push()
	doc.reset("#document", nil, nil)

	return r, nil
}

func (r *Reader) loadDTD() error {
	if r.cfg.ignoreDtd {
		return nil
	}
	if r.cfg.dtd != nil {
		r.dtd = r.cfg.dtd
		r.notifyDeclHandler()
		return nil
	}

	isHTML := strings.EqualFold(r.cfg.docType, "html")
	systemLiteral := r.cfg.systemLiteral
	if isHTML && systemLiteral == "" && r.cfg.publicIdentifier == "" && r.cfg.internalSubset == "" {
		systemLiteral = htmldtd.Name
	}
	if systemLiteral == "" && r.cfg.internalSubset == "" {
		return nil // no DTD named: tag inference and validation are disabled
	}

	resolv := r.effectiveResolver()

	var src *entity.Entity
	if r.cfg.internalSubset != "" {
		src = entity.NewInternal("[dtd]", r.cfg.internalSubset, entity.LiteralNone, nil)
	} else {
		src = entity.NewExternal("[dtd]", r.cfg.publicIdentifier, systemLiteral, nil)
	}
	if err := src.Open(r.cfg.baseURI, resolv, nil, r.cfg.defaultEncoding); err != nil {
		return &FatalError{Message: fmt.Sprintf("sgml: failed to open DTD: %s", err)}
	}

	d, err := dtd.Parse(src, resolv, r.cfg.baseURI, r.cfg.errorLog)
	if err != nil {
		return &FatalError{Message: fmt.Sprintf("sgml: DTD parse failed: %s", err), Context: src.Context(), Root: src.RootURI()}
	}
	r.dtd = d
	r.notifyDeclHandler()
	return nil
}

// notifyDeclHandler replays the just-loaded DTD's declarations through the
// configured sax.Handler, if any, once as a batch rather than interleaved
// with parsing (the dtd package has no per-declaration callback point of
// its own, so a shared, already-parsed DTD and a freshly parsed one are
// reported identically).
func (r *Reader) notifyDeclHandler() {
	h := r.cfg.saxHandler
	if h == nil || r.dtd == nil {
		return
	}
	for _, e := range r.dtd.Elements {
		h.ElementDecl(strings.ToLower(e.Name), e.StartTagOptional, e.EndTagOptional)
		for _, a := range e.Attributes {
			h.AttributeDecl(strings.ToLower(e.Name), strings.ToLower(a.Name), attrTypeName(a.Type), a.Presence == dtd.PresenceRequired)
		}
	}
	for _, e := range r.dtd.Entities {
		h.EntityDecl(e.Name, false, e.Literal)
	}
	for _, e := range r.dtd.PEntities {
		h.EntityDecl(e.Name, true, e.Literal)
	}
}

func attrTypeName(t dtd.AttrType) string {
	switch t {
	case dtd.AttrID:
		return "ID"
	case dtd.AttrIDRef:
		return "IDREF"
	case dtd.AttrIDRefs:
		return "IDREFS"
	case dtd.AttrName:
		return "NAME"
	case dtd.AttrNames:
		return "NAMES"
	case dtd.AttrNmtoken:
		return "NMTOKEN"
	case dtd.AttrNmtokens:
		return "NMTOKENS"
	case dtd.AttrNumber:
		return "NUMBER"
	case dtd.AttrNumbers:
		return "NUMBERS"
	case dtd.AttrNutoken:
		return "NUTOKEN"
	case dtd.AttrNutokens:
		return "NUTOKENS"
	case dtd.AttrEntity:
		return "ENTITY"
	case dtd.AttrEntities:
		return "ENTITIES"
	case dtd.AttrNotation:
		return "NOTATION"
	case dtd.AttrEnumeration:
		return "ENUMERATION"
	default:
		return "CDATA"
	}
}

// effectiveResolver wraps the configured resolver (if any) so requests for
// the built-in HTML DTD always resolve locally (spec §6).
func (r *Reader) effectiveResolver() resolver.Resolver {
	return resolver.NewBuiltinResolver(r.cfg.resolver)
}

func (r *Reader) openDocument() error {
	isHTML := strings.EqualFold(r.cfg.docType, "html")
	var e *entity.Entity
	switch {
	case r.cfg.inputStream != nil:
		e = entity.NewCallerReader("[document]", isHTML)
		if err := e.Open(r.cfg.baseURI, nil, r.cfg.inputStream, r.cfg.defaultEncoding); err != nil {
			return &FatalError{Message: fmt.Sprintf("sgml: failed to open input stream: %s", err)}
		}
	case r.cfg.href != "":
		e = entity.NewExternal("[document]", "", r.cfg.href, nil)
		if err := e.Open(r.cfg.baseURI, r.effectiveResolver(), nil, r.cfg.defaultEncoding); err != nil {
			return &FatalError{Message: fmt.Sprintf("sgml: failed to open href %q: %s", r.cfg.href, err)}
		}
	default:
		return &FatalError{Message: "sgml: neither InputStream nor Href was provided"}
	}
	r.root = e
	r.cur = e
	return nil
}

// --- public surface -------------------------------------------------------

// Type returns the current node's type.
func (r *Reader) Type() NodeType { return r.node.typ }

// Name returns the current node's local name.
func (r *Reader) Name() string { return r.node.name }

// Prefix returns the current element's namespace prefix, or "".
func (r *Reader) Prefix() string { return r.node.prefix }

// NamespaceURI returns the current element's resolved namespace URI, the
// synthesized "#unknown"/"#unknownN" placeholder for an unresolvable
// prefix, or "" when the element is unprefixed with no default xmlns in
// scope (spec §4.5.4).
func (r *Reader) NamespaceURI() string { return r.node.namespace }

// Value returns the current node's text/comment/PI/attribute value.
func (r *Reader) Value() string { return r.node.value }

// Depth returns the current node's nesting depth; the document is depth 0.
func (r *Reader) Depth() int { return r.node.depth }

// IsEmptyElement reports whether the current Element node is self-closing.
func (r *Reader) IsEmptyElement() bool { return r.node.isEmpty }

// IsSimulated reports whether the current node was synthesized by tag
// inference or auto-close rather than present in the source.
func (r *Reader) IsSimulated() bool { return r.node.simulated }

// XmlSpace returns the nearest ancestor's resolved xml:space value.
func (r *Reader) XmlSpace() string { return r.node.xmlSpace }

// XmlLang returns the nearest ancestor's resolved xml:lang value.
func (r *Reader) XmlLang() string { return r.node.xmlLang }

// BaseURI returns the resolved URI of the entity the current node was read
// from.
func (r *Reader) BaseURI() string { return r.cur.ResolvedURI }

// AttributeCount returns the number of attributes on the current Element
// node.
func (r *Reader) AttributeCount() int { return len(r.node.attrs) }

// EOF reports whether the stream is fully consumed.
func (r *Reader) EOF() bool { return r.eof }

// MoveToFirstAttribute positions the reader at the first attribute of the
// current element, if any.
func (r *Reader) MoveToFirstAttribute() bool {
	if len(r.node.attrs) == 0 {
		return false
	}
	r.attrIdx = 0
	return true
}

// MoveToNextAttribute advances to the next attribute, returning false past
// the last one.
func (r *Reader) MoveToNextAttribute() bool {
	if r.attrIdx+1 >= len(r.node.attrs) {
		return false
	}
	r.attrIdx++
	return true
}

// MoveToAttribute positions the reader at the i'th attribute (0-indexed).
func (r *Reader) MoveToAttribute(i int) bool {
	if i < 0 || i >= len(r.node.attrs) {
		return false
	}
	r.attrIdx = i
	return true
}

// MoveToAttributeByName positions the reader at the attribute with the
// given case-folded name.
func (r *Reader) MoveToAttributeByName(name string) bool {
	for i, a := range r.node.attrs {
		if strings.EqualFold(a.Name, name) {
			r.attrIdx = i
			return true
		}
	}
	return false
}

// ReadAttributeValue returns the value of the attribute the reader is
// currently positioned at (via MoveToAttribute*).
func (r *Reader) ReadAttributeValue() string {
	if r.attrIdx < 0 || r.attrIdx >= len(r.node.attrs) {
		return ""
	}
	return r.node.attrs[r.attrIdx].Value
}

// Attribute returns the i'th attribute record directly.
func (r *Reader) Attribute(i int) (Attr, bool) {
	if i < 0 || i >= len(r.node.attrs) {
		return Attr{}, false
	}
	return r.node.attrs[i], true
}

// AttributeValue returns the value of the named attribute on the current
// element.
func (r *Reader) AttributeValue(name string) (string, bool) {
	for _, a := range r.node.attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return "", false
}

// Dtd exposes the loaded DTD, or nil when IgnoreDtd was set or no DocType
// was named. Useful for reuse across parser instances (spec §5).
func (r *Reader) Dtd() *dtd.DTD { return r.dtd }

// --- read loop -------------------------------------------------------------

// Read advances to the next node. It returns false (with a nil error) at a
// clean end of stream, and a non-nil error — always a *FatalError — when
// the parse cannot continue.
func (r *Reader) Read() (bool, error) {
	if r.fatal != nil {
		return false, r.fatal
	}
	if len(r.pending) > 0 {
		r.surface(r.pending[0])
		r.pending = r.pending[1:]
		return true, nil
	}
	if r.eof {
		return false, nil
	}

	if err := r.scan(); err != nil {
		r.fatal = err
		return false, err
	}
	if len(r.pending) == 0 {
		r.eof = true
		return false, nil
	}
	r.surface(r.pending[0])
	r.pending = r.pending[1:]
	return true, nil
}

func (r *Reader) surface(e event) {
	r.node = e
	r.attrIdx = 0
}

func (r *Reader) queue(e event) {
	r.pending = append(r.pending, e)
}

func (r *Reader) depth() int { return r.elementStack.Count() - 1 }

func (r *Reader) top() *frame { return r.elementStack.Peek() }

func (r *Reader) topDecl() *dtd.ElementDecl {
	f := r.top()
	if f == nil {
		return nil
	}
	return f.decl
}

// fold applies the configured case-folding mode to a tag or attribute name.
func (r *Reader) fold(name string) string {
	switch r.cfg.caseFolding {
	case CaseFoldUpper:
		return strings.ToUpper(name)
	case CaseFoldLower:
		return strings.ToLower(name)
	default:
		return name
	}
}

// foldSynthesized is used for element names that came from a DTD content
// model rather than from the document text (tag inference has no "as
// typed" case to preserve), so it normalizes to lower case before applying
// the configured CaseFolding, matching the convention that HTML markup is
// conventionally lower case regardless of how its DTD spells element names.
func (r *Reader) foldSynthesized(name string) string {
	return r.fold(strings.ToLower(name))
}

// scan is the core of the forgiving document parser (component G). It reads
// from the current entity until at least one event is queued (callers treat
// "something was queued" as "a node is ready"), performing tag inference and
// auto-close along the way.
func (r *Reader) scan() error {
	g := debug.IPrintf("START Reader.scan")
	defer g.IRelease("END Reader.scan")

	for {
		cur := r.topDecl()
		if cur != nil && r.isCDataContent(cur) && !r.cdataDone {
			return r.scanCData()
		}

		c := r.cur.LastChar
		if c == entity.EOF {
			return r.handleEntityEOF()
		}

		if c != '<' {
			return r.scanText()
		}

		r.cur.ReadChar() // consume '<'
		switch r.cur.LastChar {
		case '!':
			r.cur.ReadChar()
			if err := r.scanMarkupBang(); err != nil {
				return err
			}
		case '?':
			r.cur.ReadChar()
			if err := r.scanProcessingInstruction(); err != nil {
				return err
			}
		case '/':
			r.cur.ReadChar()
			if err := r.scanEndTag(); err != nil {
				return err
			}
		default:
			if isNameStart(r.cur.LastChar) {
				if err := r.scanStartTag(); err != nil {
					return err
				}
			} else {
				// a '<' not followed by a name-start character (e.g. "a < b")
				// is not markup at all; spec §4.5.1 forgives it as literal
				// text rather than attempting a doomed tag parse.
				if err := r.scanTextInto("<"); err != nil {
					return err
				}
			}
		}

		if r.eof {
			return nil // a further top-level element ended the stream
		}
		if len(r.pending) > 0 {
			return nil
		}
	}
}

// handleEntityEOF pops back through any pushed entity (general entity
// expansion) or, at the true root, closes every element still open before
// reporting end-of-stream (spec §4.5.1 "Eof").
func (r *Reader) handleEntityEOF() error {
	if r.cur.Parent != nil {
		r.cur.Close()
		r.cur = r.cur.Parent
		return nil
	}
	for r.elementStack.Count() > 1 {
		r.closeTop(false)
	}
	if len(r.pending) > 0 {
		return nil
	}
	return nil
}

func isNameStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func (r *Reader) scanText() error {
	return r.scanTextInto("")
}

// scanTextInto accumulates text starting from prefix (used to splice a
// stray '<' that turned out not to introduce markup back into the run) up
// to the next real markup delimiter or end of input.
func (r *Reader) scanTextInto(prefix string) error {
	var sb strings.Builder
	sb.WriteString(prefix)
	for r.cur.LastChar != entity.EOF && r.cur.LastChar != '<' {
		switch r.cur.LastChar {
		case '&':
			text, _, err := r.scanEntityInText()
			if err != nil {
				return err
			}
			sb.WriteString(text)
		default:
			sb.WriteRune(r.cur.LastChar)
			r.cur.ReadChar()
		}
	}
	text := sb.String()
	if text == "" {
		return nil
	}
	return r.emitText(text)
}

func (r *Reader) scanEntityInText() (string, bool, error) {
	// The decision is made inline rather than through the entity-level
	// ScanLiteral, which expects a closing quote: a numeric reference is
	// expanded via ExpandCharEntity, a named reference is replaced by its
	// DTD general-entity literal when one is declared, and anything else is
	// kept verbatim.
	r.cur.ReadChar() // consume '&'
	if r.cur.LastChar == '#' {
		rs, raw, err := r.cur.ExpandCharEntity()
		if err != nil {
			return "&#" + raw, false, nil
		}
		return string(rs), true, nil
	}
	var sb strings.Builder
	sb.WriteRune('&')
	for r.cur.LastChar != entity.EOF && r.cur.LastChar != ';' && r.cur.LastChar != '<' && !unicode.IsSpace(r.cur.LastChar) {
		sb.WriteRune(r.cur.LastChar)
		r.cur.ReadChar()
	}
	if r.cur.LastChar == ';' {
		sb.WriteRune(';')
		r.cur.ReadChar()
	}

	name := strings.TrimSuffix(strings.TrimPrefix(sb.String(), "&"), ";")
	if r.dtd != nil {
		if decl, ok := r.dtd.Entity(name); ok && !decl.Parameter {
			return decl.Literal, true, nil
		}
	}
	return sb.String(), false, nil
}

// emitText applies whitespace-mode and tag-inference-for-text (spec §4.5.9,
// §4.5.5.2) before queuing a Text or Whitespace event. It returns
// ErrNoRootElement if text appears before any start tag and the configured
// DocType requires an explicit root (§4.5.5.1).
func (r *Reader) emitText(text string) error {
	if _, err := r.ensureRoot(""); err != nil {
		return err
	}

	cur := r.topDecl()
	if cur != nil && !cur.Content.AllowsText() {
		if !r.inferChainForText() {
			r.cfg.errorLog(fmt.Sprintf("sgml: dropped text %q: no element in the content model admits #PCDATA", truncate(text, 32)))
			return nil
		}
	}

	isWS := strings.TrimSpace(text) == ""
	if isWS {
		preserved := r.top().xmlSpace == "preserve"
		switch r.cfg.whitespaceMode {
		case WhitespaceNone:
			return nil
		case WhitespaceSignificant:
			if !preserved {
				return nil
			}
		}
	}

	text = r.applyTextWhitespace(text)
	if text == "" && isWS {
		return nil
	}

	typ := Text
	if isWS {
		typ = Whitespace
	}
	r.queue(event{typ: typ, value: text, depth: r.depth()})
	return nil
}

func (r *Reader) applyTextWhitespace(s string) string {
	flags := r.cfg.textWhitespace
	if flags&(TrimLeading|TrimTrailing) == 0 {
		return s
	}
	cut := func(c rune) bool {
		if flags&OnlyLineBreaks != 0 {
			return c == '\n' || c == '\r'
		}
		return unicode.IsSpace(c)
	}
	if flags&TrimLeading != 0 {
		s = strings.TrimLeftFunc(s, cut)
	}
	if flags&TrimTrailing != 0 {
		s = strings.TrimRightFunc(s, cut)
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// --- markup dispatch ---------------------------------------------------

func (r *Reader) scanMarkupBang() error {
	switch r.cur.LastChar {
	case '-':
		return r.scanComment()
	case '[':
		return r.scanCDataSectionMarker()
	default:
		word, err := r.cur.ScanToken(" \t\r\n>", false)
		if err != nil {
			r.cfg.errorLog(err.Error())
			return r.recoverToGT()
		}
		if strings.EqualFold(word, "DOCTYPE") {
			return r.scanDoctypeNode()
		}
		r.cfg.errorLog(fmt.Sprintf("sgml: unsupported markup declaration <!%s>", word))
		return r.recoverToGT()
	}
}

func (r *Reader) recoverToGT() error {
	for r.cur.LastChar != '>' && r.cur.LastChar != entity.EOF {
		r.cur.ReadChar()
	}
	if r.cur.LastChar == '>' {
		r.cur.ReadChar()
	}
	return nil
}

func (r *Reader) scanComment() error {
	r.cur.ReadChar()
	if r.cur.LastChar != '-' {
		r.cfg.errorLog("sgml: malformed comment start")
		return r.recoverToGT()
	}
	r.cur.ReadChar()
	content, err := r.cur.ScanToEnd("-->")
	if err != nil {
		return &FatalError{Message: err.Error(), Context: r.cur.Context(), Root: r.cur.RootURI()}
	}
	r.queue(event{typ: Comment, value: content, depth: r.depth()})
	if h := r.cfg.saxHandler; h != nil {
		h.Comment(content)
	}
	return nil
}

func (r *Reader) scanDoctypeNode() error {
	r.cur.SkipWhitespace()
	name, err := r.cur.ScanToken(" \t\r\n[>", true)
	if err != nil {
		r.cfg.errorLog(err.Error())
		return r.recoverToGT()
	}
	for r.cur.LastChar != '>' && r.cur.LastChar != entity.EOF {
		r.cur.ReadChar()
	}
	if r.cur.LastChar == '>' {
		r.cur.ReadChar()
	}
	if r.cfg.stripDocType {
		return nil
	}
	r.queue(event{typ: DocumentType, name: name, depth: r.depth()})
	return nil
}

func (r *Reader) scanProcessingInstruction() error {
	target, err := r.cur.ScanToken(" \t\r\n?", true)
	if err != nil {
		r.cfg.errorLog(err.Error())
		return r.recoverToGT()
	}
	r.cur.SkipWhitespace()
	content, err := r.cur.ScanToEnd("?>")
	if err != nil {
		return &FatalError{Message: err.Error(), Context: r.cur.Context(), Root: r.cur.RootURI()}
	}
	r.queue(event{typ: ProcessingInstruction, name: target, value: content, depth: r.depth()})
	return nil
}

// scanCDataSectionMarker handles a literal "<![CDATA[ … ]]>" section
// appearing in normal markup (as opposed to a CDATA-declared-content
// element body, handled by scanCData).
func (r *Reader) scanCDataSectionMarker() error {
	r.cur.ReadChar() // consume '['
	kw, err := r.cur.ScanToken("[", false)
	if err != nil {
		r.cfg.errorLog(err.Error())
		return r.recoverToGT()
	}
	if r.cur.LastChar == '[' {
		r.cur.ReadChar()
	}
	if !strings.EqualFold(kw, "CDATA") {
		r.cfg.errorLog(fmt.Sprintf("sgml: unrecognized marked section %q in document content", kw))
		if _, err := r.cur.ScanToEnd("]]>"); err != nil {
			return &FatalError{Message: err.Error(), Context: r.cur.Context(), Root: r.cur.RootURI()}
		}
		return nil
	}
	content, err := r.cur.ScanToEnd("]]>")
	if err != nil {
		return &FatalError{Message: err.Error(), Context: r.cur.Context(), Root: r.cur.RootURI()}
	}
	return r.emitText(content)
}

// --- start / end tags ---------------------------------------------------

func (r *Reader) scanStartTag() error {
	name, err := r.cur.ScanToken(" \t\r\n/>", true)
	if err != nil {
		r.cfg.errorLog(err.Error())
		return r.recoverToGT()
	}
	attrs, empty, err := r.scanAttributes()
	if err != nil {
		return err
	}

	foldedName := r.fold(name)
	decl, _ := r.lookupDecl(name)

	if _, err := r.ensureRoot(foldedName); err != nil {
		return err
	}

	if !r.cfg.allowMultipleRoot && r.elementStack.Count() == 1 && r.rootSeen {
		// the first root element has already been opened and fully closed;
		// spec §4.5.10 treats a further top-level element as end of stream
		// rather than a second document element.
		r.eof = true
		return nil
	}

	if parentDecl := r.topDecl(); parentDecl != nil && decl != nil && !r.top().includes(foldedName) && !r.canAcceptNow(r.top(), parentDecl, foldedName) {
		r.autoClose(foldedName, decl)
	}

	if parentDecl := r.topDecl(); parentDecl != nil && decl != nil && !r.top().includes(foldedName) && !r.canAcceptNow(r.top(), parentDecl, foldedName) {
		r.inferChainTo(foldedName)
	}

	r.openElement(foldedName, decl, attrs, empty, false)
	if r.elementStack.Count() == 2 {
		r.rootSeen = true
	}
	return nil
}

func (r *Reader) lookupDecl(name string) (*dtd.ElementDecl, bool) {
	if r.dtd == nil {
		return nil, false
	}
	return r.dtd.Element(name)
}

// openElement pushes a new frame and queues its Element event. simulated
// marks a tag-inference-synthesized start tag (spec §4.5.5.1).
func (r *Reader) openElement(name string, decl *dtd.ElementDecl, attrs []Attr, empty, simulated bool) {
	parent := r.top()
	if parent != nil {
		if parent.seenChildren == nil {
			parent.seenChildren = make(map[string]bool)
		}
		parent.seenChildren[strings.ToUpper(name)] = true
	}
	f := r.elementStack.Push()
	f.reset(name, decl, parent)
	f.attrs = append(f.attrs[:0], attrs...)
	f.simulated = simulated
	f.empty = empty
	r.applyXmlAttrs(f, attrs)

	prefix, ns := r.resolveNamespace(name, f, attrs)

	r.queue(event{
		typ: Element, name: name, prefix: prefix, namespace: ns, attrs: attrs,
		simulated: simulated, isEmpty: empty, depth: r.depth(),
		xmlSpace: f.xmlSpace, xmlLang: f.xmlLang,
	})

	r.cdataDone = false

	if empty {
		r.closeTop(simulated)
	}
}

func (r *Reader) applyXmlAttrs(f *frame, attrs []Attr) {
	for _, a := range attrs {
		switch {
		case strings.EqualFold(a.Name, "xml:space"):
			f.xmlSpace = a.Value
		case strings.EqualFold(a.Name, "xml:lang"):
			f.xmlLang = a.Value
		}
	}
}

// resolveNamespace implements spec §4.5.4: scan xmlns/xmlns:prefix
// declarations on the current element and its ancestors; unresolvable
// prefixes are mapped to a synthesized "#unknown" / "#unknownN" URI.
func (r *Reader) resolveNamespace(name string, f *frame, attrs []Attr) (prefix, uri string) {
	prefix = ""
	if i := strings.IndexByte(name, ':'); i > 0 {
		prefix = name[:i]
	}
	if prefix == "" {
		uri = r.lookupXmlns("", attrs)
		return "", uri
	}
	if prefix == XMLPrefix {
		return prefix, XMLNamespace
	}
	uri = r.lookupXmlns(prefix, attrs)
	if uri == "" {
		if existing, ok := r.unknownNSNames[prefix]; ok {
			return prefix, existing
		}
		synth := "#unknown"
		if r.unknownNSCounter > 0 {
			synth = fmt.Sprintf("#unknown%d", r.unknownNSCounter)
		}
		r.unknownNSCounter++
		r.unknownNSNames[prefix] = synth
		return prefix, synth
	}
	return prefix, uri
}

// lookupXmlns walks the element stack from the innermost frame outward
// (checking attrs supplied for the element currently being opened first)
// looking for an "xmlns" (prefix=="") or "xmlns:prefix" declaration.
func (r *Reader) lookupXmlns(prefix string, attrs []Attr) string {
	want := XMLNsPrefix
	if prefix != "" {
		want = XMLNsPrefix + ":" + prefix
	}
	for _, a := range attrs {
		if strings.EqualFold(a.Name, want) {
			return a.Value
		}
	}
	for i := r.elementStack.Count() - 1; i >= 0; i-- {
		f := r.elementStack.At(i)
		for _, a := range f.attrs {
			if strings.EqualFold(a.Name, want) {
				return a.Value
			}
		}
	}
	return ""
}

func (r *Reader) scanEndTag() error {
	name, err := r.cur.ScanToken(" \t\r\n>", true)
	if err != nil {
		r.cfg.errorLog(err.Error())
		return r.recoverToGT()
	}
	r.cur.SkipWhitespace()
	if r.cur.LastChar == '>' {
		r.cur.ReadChar()
	}
	folded := r.fold(name)

	idx := -1
	for i := r.elementStack.Count() - 1; i >= 1; i-- {
		if strings.EqualFold(r.elementStack.At(i).name, folded) {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.cfg.errorLog(fmt.Sprintf("sgml: end tag %q with no matching open start tag; ignored", name))
		return nil
	}
	for r.elementStack.Count()-1 >= idx {
		r.closeTop(false)
	}
	return nil
}

// closeTop pops the innermost open element and queues its EndElement event.
func (r *Reader) closeTop(simulated bool) {
	f := r.top()
	if f == nil || f.name == "#document" {
		return
	}
	r.queue(event{typ: EndElement, name: f.name, simulated: simulated || f.simulated, depth: r.depth()})
	r.elementStack.Pop()
	r.cdataDone = false
}

// ensureRoot synthesizes the configured DocType's root element when content
// appears before any start tag has been seen (spec §4.5.5 "tag inference
// before the first tag"). Returns true when it queued a synthetic root.
//
// If the DocType's declaration marks its start tag as required (not
// optional), a root is never synthesized: the document is malformed and
// ensureRoot reports ErrNoRootElement instead, per §4.5.5.1.
func (r *Reader) ensureRoot(incomingName string) (bool, error) {
	if r.elementStack.Count() > 1 || r.dtd == nil || r.cfg.docType == "" {
		return false, nil
	}
	if incomingName != "" && strings.EqualFold(incomingName, r.cfg.docType) {
		return false, nil // the incoming tag is itself the root; nothing to infer
	}
	decl, ok := r.dtd.Element(r.cfg.docType)
	if !ok {
		return false, nil
	}
	if !decl.StartTagOptional {
		return false, ErrNoRootElement
	}
	name := r.foldSynthesized(r.cfg.docType)
	r.openElement(name, decl, nil, false, true)
	r.rootSeen = true
	return true, nil
}

// --- attributes ----------------------------------------------------------

// scanAttributes consumes the attribute list of a start tag up to its
// closing '>' (or "/>"), per spec §4.5.3: quoted values, unquoted values,
// valueless (boolean) attributes, a missing '=' recovered as boolean, and
// duplicate names where the first occurrence wins.
func (r *Reader) scanAttributes() ([]Attr, bool, error) {
	var attrs []Attr
	seen := make(map[string]bool)
	for {
		r.cur.SkipWhitespace()
		switch r.cur.LastChar {
		case entity.EOF:
			return attrs, false, &FatalError{Message: "sgml: unterminated start tag at end of input", Context: r.cur.Context(), Root: r.cur.RootURI()}
		case '>':
			r.cur.ReadChar()
			return attrs, false, nil
		case '/':
			r.cur.ReadChar()
			if r.cur.LastChar == '>' {
				r.cur.ReadChar()
			}
			return attrs, true, nil
		}

		name, err := r.cur.ScanToken(" \t\r\n=/>", true)
		if err != nil || name == "" {
			// spurious token: not a legal name character; skip it and
			// keep scanning rather than aborting the whole tag.
			r.cfg.errorLog(fmt.Sprintf("sgml: spurious character %q in attribute list, skipped", r.cur.LastChar))
			r.cur.ReadChar()
			continue
		}

		r.cur.SkipWhitespace()
		var value string
		quote := rune(0)
		hasValue := false
		if r.cur.LastChar == '=' {
			r.cur.ReadChar()
			r.cur.SkipWhitespace()
			hasValue = true
			switch r.cur.LastChar {
			case '"', '\'':
				quote = r.cur.LastChar
				r.cur.ReadChar()
				value, err = r.cur.ScanLiteral(quote)
				if err != nil {
					return attrs, false, &FatalError{Message: err.Error(), Context: r.cur.Context(), Root: r.cur.RootURI()}
				}
			default:
				value, err = r.cur.ScanToken(" \t\r\n>", false)
				if err != nil {
					return attrs, false, err
				}
			}
		}

		foldedName := r.fold(name)
		if !hasValue {
			value = foldedName
		}
		if seen[strings.ToLower(foldedName)] {
			r.cfg.errorLog(fmt.Sprintf("sgml: duplicate attribute %q; first occurrence wins", name))
			continue
		}
		seen[strings.ToLower(foldedName)] = true
		attrs = append(attrs, Attr{Name: foldedName, Value: value, QuoteChar: quote})
	}
}

// --- CDATA-content elements ------------------------------------------------

// isCDataContent reports whether the current element's declared content is
// CDATA or RCDATA (spec §4.5.8): its body is scanned as raw text up to the
// matching end tag, with only RCDATA still expanding entity references.
func (r *Reader) isCDataContent(decl *dtd.ElementDecl) bool {
	if decl == nil || decl.Content == nil {
		return false
	}
	return decl.Content.Declared == dtd.DeclaredCData || decl.Content.Declared == dtd.DeclaredRCData
}

// scanCData reads the content of a CDATA/RCDATA-declared element up to its
// closing tag, per spec §4.5.8. Entity exposes only a single character of
// lookahead (LastChar), so a prospective "</name" is consumed optimistically
// and, on a name mismatch, replayed back into the accumulated content as
// literal text rather than being pushed back onto the stream.
func (r *Reader) scanCData() error {
	f := r.top()
	decl := f.decl
	rcdata := decl.Content.Declared == dtd.DeclaredRCData
	if h := r.cfg.saxHandler; h != nil {
		h.StartCData(f.name)
	}

	var sb strings.Builder
	for {
		c := r.cur.LastChar
		if c == entity.EOF {
			r.cdataDone = true
			return &FatalError{Message: fmt.Sprintf("sgml: unterminated %s content at end of input", f.name), Context: r.cur.Context(), Root: r.cur.RootURI()}
		}
		if c == '<' {
			r.cur.ReadChar()
			if r.cur.LastChar != '/' {
				sb.WriteRune('<')
				continue
			}
			r.cur.ReadChar()
			name, _ := r.cur.ScanToken(" \t\r\n>", true)
			if strings.EqualFold(name, f.name) {
				r.cur.SkipWhitespace()
				if r.cur.LastChar == '>' {
					r.cur.ReadChar()
				}
				break
			}
			sb.WriteString("</" + name)
			continue
		}
		if rcdata && c == '&' {
			text, _, err := r.scanEntityInText()
			if err != nil {
				return err
			}
			sb.WriteString(text)
			continue
		}
		sb.WriteRune(c)
		r.cur.ReadChar()
	}

	r.cdataDone = true
	if sb.Len() > 0 {
		r.queue(event{typ: CData, value: sb.String(), depth: r.depth()})
	}
	r.closeTop(false)
	if h := r.cfg.saxHandler; h != nil {
		h.EndCData(f.name)
	}
	return nil
}

// --- tag inference & auto-close -------------------------------------------

// canReach is a pure, memoizing reachability query (no events emitted):
// can a chain of inferred start tags, beginning at an instance of from and
// following only elements whose start tag is optional, eventually admit
// target as a content-model member? It visits each element declaration at
// most once, guaranteeing termination even over a DTD with mutually
// recursive content models.
func (r *Reader) canReach(from *dtd.ElementDecl, target string, visited map[string]bool) bool {
	if from == nil || from.Content == nil {
		return false
	}
	if visited[from.Name] {
		return false
	}
	visited[from.Name] = true

	for _, member := range from.Content.Members() {
		if strings.EqualFold(member, target) {
			return true
		}
	}
	for _, member := range from.Content.Members() {
		decl, ok := r.lookupDecl(member)
		if !ok || !decl.StartTagOptional {
			continue
		}
		if r.canReach(decl, target, visited) {
			return true
		}
	}
	return false
}

// sequenceGapBefore reports whether target sits behind an unsatisfied
// mandatory predecessor in decl's top-level sequence group. SGML tag
// omission lets a writer skip straight to a later sequence member only when
// every earlier member is either already present or itself optional; HTML's
// `(HEAD, BODY)` is the motivating case, where an explicit <body> with no
// preceding <head> still requires HEAD to be inferred first.
func sequenceGapBefore(decl *dtd.ElementDecl, seen map[string]bool, target string) bool {
	if decl == nil || decl.Content == nil || decl.Content.Root == nil {
		return false
	}
	root := decl.Content.Root
	if root.Connector != dtd.ConnSeq {
		return false
	}
	for _, m := range root.Members {
		if !m.IsLeaf() {
			continue // nested group ordering is out of scope; assume satisfied
		}
		if strings.EqualFold(m.Name, target) {
			return false
		}
		if seen[strings.ToUpper(m.Name)] {
			continue
		}
		if m.Occurrence == dtd.OccurOpt || m.Occurrence == dtd.OccurMult {
			continue // optional predecessor, no gap
		}
		return true
	}
	return false
}

// canAcceptNow reports whether f, an open instance of decl, can directly
// take target as its next child right now: target must be a content-model
// member and no mandatory, unsatisfied sequence predecessor of target may
// remain.
func (r *Reader) canAcceptNow(f *frame, decl *dtd.ElementDecl, target string) bool {
	if decl == nil || !decl.CanContain(target) {
		return false
	}
	var seen map[string]bool
	if f != nil {
		seen = f.seenChildren
	}
	return !sequenceGapBefore(decl, seen, target)
}

// inferChainTo implements spec §4.5.5.1's tag inference: while the current
// element cannot directly accept name, try its content-model members in
// declared order; a member through which target is reachable is opened and
// kept open (becoming the new current element), any other member tried
// along the way is opened and immediately closed (a dead end probed and
// abandoned), and the walk continues one level at a time until name itself
// is directly acceptable by the (possibly now different) current element.
func (r *Reader) inferChainTo(name string) {
	for {
		cur := r.topDecl()
		if cur == nil {
			return
		}
		if r.canAcceptNow(r.top(), cur, name) {
			return
		}

		found := false
		for _, member := range cur.Content.Members() {
			decl, ok := r.lookupDecl(member)
			if !ok || !decl.StartTagOptional {
				continue
			}
			if strings.EqualFold(member, name) {
				// name itself is reachable as this very member: stop without
				// opening it, so the caller's real start tag becomes its
				// (non-simulated) occurrence once any dead-end probes ahead
				// of it have marked this frame's sequence gap as closed.
				found = true
				break
			}
			reachable := r.canReach(decl, name, map[string]bool{})
			if !reachable {
				// a dead end: probed by opening and immediately closing it,
				// then the walk tries the next sibling member.
				r.openElement(r.foldSynthesized(member), decl, nil, false, true)
				r.closeTop(true)
				continue
			}
			r.openElement(r.foldSynthesized(member), decl, nil, false, true)
			found = true
			break
		}
		if !found {
			return // no path found; the element is simply dropped in place
		}
		// the newly opened member becomes the current element (or, for an
		// exact match left unopened above, the same element with one more
		// sequence predecessor satisfied); loop again and recheck.
	}
}

// inferChainForText is the text-node counterpart of inferChainTo: it walks
// the same content-model chain looking for an element admitting #PCDATA.
func (r *Reader) inferChainForText() bool {
	for {
		cur := r.topDecl()
		if cur == nil {
			return false
		}
		if cur.Content.AllowsText() {
			return true
		}

		found := false
		for _, member := range cur.Content.Members() {
			decl, ok := r.lookupDecl(member)
			if !ok || !decl.StartTagOptional {
				continue
			}
			reachable := decl.Content.AllowsText() || r.canReachText(decl, map[string]bool{})
			if !reachable {
				r.openElement(r.foldSynthesized(member), decl, nil, false, true)
				r.closeTop(true)
				continue
			}
			r.openElement(r.foldSynthesized(member), decl, nil, false, true)
			found = true
			break
		}
		if !found {
			return false
		}
	}
}

func (r *Reader) canReachText(from *dtd.ElementDecl, visited map[string]bool) bool {
	if from == nil || from.Content == nil || visited[from.Name] {
		return false
	}
	visited[from.Name] = true
	if from.Content.AllowsText() {
		return true
	}
	for _, member := range from.Content.Members() {
		decl, ok := r.lookupDecl(member)
		if !ok || !decl.StartTagOptional {
			continue
		}
		if r.canReachText(decl, visited) {
			return true
		}
	}
	return false
}

// autoClose implements spec §4.5.6: when name is illegal as a child of the
// current element, walk up the open-element stack looking for an ancestor
// that can contain it, closing every element passed over whose end tag is
// optional. The document's BODY element, when at depth 2 (HTML > BODY), is
// never auto-closed past: its content model is deliberately treated as the
// floor of the walk regardless of its own EndTagOptional flag, since an
// auto-close that escaped BODY would misnest the rest of the document.
func (r *Reader) autoClose(name string, decl *dtd.ElementDecl) {
	count := r.elementStack.Count()
	for i := count - 1; i >= 1; i-- {
		f := r.elementStack.At(i)
		if f.decl != nil && f.decl.CanContain(name) {
			for r.elementStack.Count()-1 > i {
				top := r.elementStack.Peek()
				if top.decl != nil && !top.decl.EndTagOptional {
					return // an element with a mandatory end tag blocks the walk
				}
				r.closeTop(true)
			}
			return
		}
		if strings.EqualFold(f.name, "BODY") && i == 2 {
			return // never climb past the document body
		}
		if f.decl != nil && !f.decl.EndTagOptional {
			return
		}
	}
}
