// Package entity implements the entity reader (spec §3 "Entity", §4.3): a
// single named input source with its own line/column tracking, last-char,
// parent pointer, and a set of primitive scanners shared by both the DTD
// parser and the forgiving document parser.
package entity

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/lestrrat-go/sgml/internal/debug"
	"github.com/lestrrat-go/sgml/internal/decoder"
	"github.com/lestrrat-go/sgml/resolver"
)

// EOF is the sentinel returned by ReadChar at end of input. SGML text
// cannot legally contain U+FFFF, so it doubles as "no character available"
// without needing a separate ok bool on every call site (spec §3).
const EOF = '￿'

// Kind distinguishes the three ways an Entity's content can be sourced.
type Kind int

const (
	KindInternalLiteral Kind = iota
	KindExternalURI
	KindCallerReader
)

// LiteralType is set on entities declared with an explicit CDATA, SDATA, or
// PI literal type (spec §4.4 "<!ENTITY [%] name … >").
type LiteralType int

const (
	LiteralNone LiteralType = iota
	LiteralCDATA
	LiteralSDATA
	LiteralPI
)

// runeSource is the minimal surface Entity needs from whatever is actually
// producing characters: either a decoder.Decoder (external/caller streams)
// or a plain string reader (internal literal entities, which are already
// decoded Go strings).
type runeSource interface {
	ReadRune() (rune, error)
}

type stringSource struct {
	runes []rune
	pos   int
}

func newStringSource(s string) *stringSource {
	return &stringSource{runes: []rune(s)}
}

func (s *stringSource) ReadRune() (rune, error) {
	if s.pos >= len(s.runes) {
		return 0, io.EOF
	}
	r := s.runes[s.pos]
	s.pos++
	return r, nil
}

// Entity is a single named input source, per spec §3.
type Entity struct {
	Name        string
	Kind        Kind
	PublicID    string
	SystemURI   string
	Literal     string
	LiteralType LiteralType
	ResolvedURI string
	Parent      *Entity
	IsHTML      bool
	Encoding    decoder.Encoding

	LastChar     rune
	Line         int
	Column       int
	IsWhitespace bool

	src    runeSource
	closer func() error
	opened bool
	closed bool

	pending    rune
	hasPending bool
}

// NewInternal creates an internal-literal entity (one whose content is an
// in-memory string, e.g. a DTD parameter entity's replacement text).
func NewInternal(name, literal string, litType LiteralType, parent *Entity) *Entity {
	return &Entity{
		Name:        name,
		Kind:        KindInternalLiteral,
		Literal:     literal,
		LiteralType: litType,
		Parent:      parent,
		IsHTML:      parent != nil && parent.IsHTML,
		Line:        1,
	}
}

// NewExternal creates an external-URI entity that will fetch its content
// through a Resolver when Open is called.
func NewExternal(name, publicID, systemURI string, parent *Entity) *Entity {
	return &Entity{
		Name:      name,
		Kind:      KindExternalURI,
		PublicID:  publicID,
		SystemURI: systemURI,
		Parent:    parent,
		IsHTML:    parent != nil && parent.IsHTML,
		Line:      1,
	}
}

// NewCallerReader creates the root entity wrapping a caller-supplied byte
// stream (the top-level document). Per spec §5, this stream is not owned by
// the parser and Close must not close it.
func NewCallerReader(name string, isHTML bool) *Entity {
	return &Entity{
		Name:   name,
		Kind:   KindCallerReader,
		IsHTML: isHTML,
		Line:   1,
	}
}

// Open establishes the entity's character source, per spec §4.3 "Open":
// internal entities read from their literal; external entities are fetched
// through resolv and wrapped in the character stream decoder; caller
// entities decode an already-open io.Reader-ish source supplied via body.
func (e *Entity) Open(baseURI string, resolv resolver.Resolver, body io.Reader, defaultEncoding string) error {
	g := debug.IPrintf("START Entity.Open %q", e.Name)
	defer g.IRelease("END Entity.Open")

	if e.opened {
		return fmt.Errorf("entity %q already open", e.Name)
	}

	switch e.Kind {
	case KindInternalLiteral:
		e.src = newStringSource(e.Literal)
		e.ResolvedURI = baseURI

	case KindCallerReader:
		if body == nil {
			return fmt.Errorf("entity %q: caller-reader entity requires a body", e.Name)
		}
		dec, err := decoder.New(body, defaultEncoding)
		if err != nil {
			return fmt.Errorf("entity %q: %w", e.Name, err)
		}
		e.src = dec
		e.Encoding = dec.Encoding()
		e.ResolvedURI = baseURI

	case KindExternalURI:
		if resolv == nil {
			return fmt.Errorf("entity %q: external entity requires a resolver", e.Name)
		}
		res, err := resolv.GetContent(e.SystemURI, baseURI)
		if err != nil {
			return fmt.Errorf("entity %q: %w", e.Name, err)
		}
		dec, err := decoder.New(res.Body, res.Encoding)
		if err != nil {
			res.Body.Close()
			return fmt.Errorf("entity %q: %w", e.Name, err)
		}
		e.src = dec
		e.Encoding = dec.Encoding()
		e.ResolvedURI = res.ResolvedURI
		if res.MIMEType == "text/html" || strings.EqualFold(e.Name, "html") {
			e.IsHTML = true
		}
		e.closer = res.Body.Close

	default:
		return fmt.Errorf("entity %q: unknown kind %d", e.Name, e.Kind)
	}

	e.opened = true
	e.Line = 1
	e.Column = 0
	e.ReadChar() // prime LastChar, per the Initial->Markup priming in §4.5.1
	return nil
}

// Close releases the entity's owned stream exactly once (spec §4.3, §5).
// It is a no-op for internal-literal and caller-reader entities, which are
// never owned by the entity frame.
func (e *Entity) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.closer != nil {
		return e.closer()
	}
	return nil
}

// ReadChar returns the next character, updating line/column and the
// is-whitespace flag, per spec §4.3. CRLF and lone CR are normalized to a
// single line-feed semantics: a line counter bump happens exactly once per
// line break regardless of which of CR, LF, or CRLF produced it.
func (e *Entity) ReadChar() rune {
	r, ok := e.nextRaw()
	if !ok {
		e.LastChar = EOF
		e.IsWhitespace = false
		return EOF
	}

	if r == '\r' {
		if nr, ok2 := e.nextRaw(); ok2 && nr != '\n' {
			e.pending, e.hasPending = nr, true
		}
		r = '\n'
	}

	if r == '\n' {
		e.Line++
		e.Column = 0
	} else {
		e.Column++
	}

	e.IsWhitespace = r == ' ' || r == '\t' || r == '\n'
	e.LastChar = r
	return r
}

func (e *Entity) nextRaw() (rune, bool) {
	if e.hasPending {
		e.hasPending = false
		return e.pending, true
	}
	r, err := e.src.ReadRune()
	if err != nil {
		return 0, false
	}
	return r, true
}

// SkipWhitespace returns the first non-{space, CR, LF, tab} character,
// consuming everything before it (spec §4.3).
func (e *Entity) SkipWhitespace() rune {
	for e.LastChar == ' ' || e.LastChar == '\t' || e.LastChar == '\n' || e.LastChar == '\r' {
		e.ReadChar()
	}
	return e.LastChar
}

// ScanToken accumulates characters, starting from the current LastChar,
// until a terminator in terminators or EOF, per spec §4.3. When nmtoken is
// true it additionally enforces the XML/SGML name-character rules: the
// first character must be '_' or a letter, subsequent characters must be a
// letter, digit, '_', '.', '-', or ':'.
func (e *Entity) ScanToken(terminators string, nmtoken bool) (string, error) {
	var sb strings.Builder
	first := true
	for {
		c := e.LastChar
		if c == EOF || strings.ContainsRune(terminators, c) || (nmtoken && isEntityWhitespace(c) && !first) {
			break
		}
		if nmtoken {
			if first {
				if !(c == '_' || unicode.IsLetter(c)) {
					return sb.String(), fmt.Errorf("entity: invalid name-start character %q at line %d", c, e.Line)
				}
			} else if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.' || c == '-' || c == ':') {
				return sb.String(), fmt.Errorf("entity: invalid name character %q at line %d", c, e.Line)
			}
		}
		sb.WriteRune(c)
		first = false
		e.ReadChar()
	}
	return sb.String(), nil
}

func isEntityWhitespace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ScanLiteral accumulates characters until the matching quote, expanding
// numeric character references inline via ExpandCharEntity; unknown or
// non-numeric &name; references are kept verbatim (spec §4.3). The caller
// is expected to have already consumed the opening quote and primed
// LastChar with the first content character.
func (e *Entity) ScanLiteral(quote rune) (string, error) {
	var sb strings.Builder
	for {
		c := e.LastChar
		switch {
		case c == EOF:
			return sb.String(), fmt.Errorf("entity: unterminated literal starting before line %d", e.Line)
		case c == quote:
			e.ReadChar()
			return sb.String(), nil
		case c == '&':
			text, _, err := e.scanEntityRef()
			if err != nil {
				return sb.String(), err
			}
			sb.WriteString(text)
		default:
			sb.WriteRune(c)
			e.ReadChar()
		}
	}
}

// scanEntityRef is positioned with LastChar=='&'. It either decodes a
// numeric character reference (returning the decoded text and expanded
// true) or, for a named reference, returns the reference's literal source
// text unchanged (expanded false), per spec §4.3's "kept verbatim" rule.
func (e *Entity) scanEntityRef() (text string, expanded bool, err error) {
	if e.LastChar != '&' {
		return "", false, fmt.Errorf("entity: scanEntityRef called without '&'")
	}
	e.ReadChar() // consume '&'; LastChar now holds the char right after it
	if e.LastChar == '#' {
		return e.scanNumericRefAndMaybePair()
	}
	return e.scanNamedRefTail(), false, nil
}

// scanNamedRefTail reconstructs "&name;" (or a bare trailing "&" if no
// terminator is found) starting with LastChar positioned at the character
// immediately after the already-consumed '&'. The reference is never
// resolved here — only reproduced verbatim, per spec §4.3.
func (e *Entity) scanNamedRefTail() string {
	var sb strings.Builder
	sb.WriteRune('&')
	for e.LastChar != EOF && e.LastChar != ';' && !isEntityWhitespace(e.LastChar) && e.LastChar != '&' && e.LastChar != '<' {
		sb.WriteRune(e.LastChar)
		e.ReadChar()
	}
	if e.LastChar == ';' {
		sb.WriteRune(';')
		e.ReadChar()
	}
	return sb.String()
}

// scanNumericRefAndMaybePair is positioned with LastChar=='#'. It decodes
// one numeric character reference and, if that reference is a UTF-16 high
// surrogate immediately followed by another numeric reference, combines
// them into their single intended scalar value (spec §4.3 "Recognize
// high/low surrogate pairs").
func (e *Entity) scanNumericRefAndMaybePair() (string, bool, error) {
	r, raw, derr := e.ExpandCharEntity()
	if derr != nil {
		return "&#" + raw, false, derr
	}

	if r[0] < 0xD800 || r[0] > 0xDBFF || e.LastChar != '&' {
		return string(r), true, nil
	}

	// Commit to consuming the next "&…": whatever it turns out to be, it
	// has already left the input stream, so it must be reflected in the
	// returned text one way or another.
	e.ReadChar() // consume '&'
	if e.LastChar != '#' {
		return string(r) + e.scanNamedRefTail(), true, nil
	}

	r2, raw2, derr2 := e.ExpandCharEntity()
	if derr2 != nil {
		return string(r) + "&#" + raw2, false, derr2
	}
	if r2[0] >= 0xDC00 && r2[0] <= 0xDFFF {
		return string(utf16.DecodeRune(r[0], r2[0])), true, nil
	}
	return string(r) + string(r2), true, nil
}

// ExpandCharEntity parses &#digits; or &#x[0-9a-fA-F]+; starting with
// LastChar=='#' (the leading '&' already consumed), per spec §4.3. Values
// in 0x80-0x9F are remapped through the Windows-1252 compatibility table
// when the entity is marked HTML.
func (e *Entity) ExpandCharEntity() ([]rune, string, error) {
	raw := strings.Builder{}
	e.ReadChar() // consume '#'
	hex := false
	if e.LastChar == 'x' || e.LastChar == 'X' {
		hex = true
		e.ReadChar()
	}

	var digits strings.Builder
	for isHexOrDec(e.LastChar, hex) {
		digits.WriteRune(e.LastChar)
		raw.WriteRune(e.LastChar)
		e.ReadChar()
	}
	if digits.Len() == 0 {
		return nil, raw.String(), fmt.Errorf("entity: malformed numeric character reference at line %d", e.Line)
	}

	var v int64
	var err error
	if hex {
		v, err = strconv.ParseInt(digits.String(), 16, 64)
	} else {
		v, err = strconv.ParseInt(digits.String(), 10, 64)
	}
	if err != nil {
		return nil, raw.String(), fmt.Errorf("entity: bad numeric character reference %q: %w", digits.String(), err)
	}

	if e.LastChar == ';' {
		e.ReadChar()
	}

	r := rune(v)
	if e.IsHTML && r >= 0x80 && r <= 0x9F {
		r = windows1252Remap(r)
	}
	return []rune{r}, raw.String(), nil
}

func isHexOrDec(c rune, hex bool) bool {
	if hex {
		return unicode.IsDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	}
	return unicode.IsDigit(c)
}

// ScanToEnd string-searches for a multi-character terminator (e.g. "-->",
// "]]>") using a KMP failure-function scan so overlapping partial matches
// (e.g. scanning for "-->" through "--->") are handled without rewinding
// character-by-character. Unclosed blocks are a fatal error carrying the
// opening line (spec §4.3, §7.2). The historical SgmlReader implementation
// this spec distills had a documented off-by-one in its own rewind index
// computation (spec §9(a)); this KMP-based rewrite sidesteps the whole
// class of bug by never rewinding the input, and TestScanToEndOverlapping*
// in entity_test.go pins the overlapping-terminator cases that would have
// exposed it.
func (e *Entity) ScanToEnd(terminator string) (string, error) {
	startLine := e.Line
	term := []rune(terminator)
	failure := kmpFailure(term)

	var buf []rune
	matched := 0
	for {
		c := e.LastChar
		if c == EOF {
			return string(buf), fmt.Errorf("entity: unclosed block starting at line %d (expected %q)", startLine, terminator)
		}
		buf = append(buf, c)

		for matched > 0 && c != term[matched] {
			matched = failure[matched-1]
		}
		if c == term[matched] {
			matched++
		}
		e.ReadChar()

		if matched == len(term) {
			return string(buf[:len(buf)-len(term)]), nil
		}
	}
}

func kmpFailure(pattern []rune) []int {
	failure := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = failure[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		failure[i] = k
	}
	return failure
}

// Context returns the error-reporting context chain (spec §4.3 "Error
// reporting"): one line per frame, from this entity back to the root,
// each annotated with its current line/column.
func (e *Entity) Context() []string {
	var frames []string
	for cur := e; cur != nil; cur = cur.Parent {
		frames = append(frames, fmt.Sprintf("%s (line %d, col %d)", cur.Name, cur.Line, cur.Column))
	}
	return frames
}

// RootURI walks to the outermost entity and returns its resolved URI, used
// by the error log format (spec §6).
func (e *Entity) RootURI() string {
	cur := e
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur.ResolvedURI
}
