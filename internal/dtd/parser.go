package dtd

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/lestrrat-go/sgml/internal/entity"
	"github.com/lestrrat-go/sgml/resolver"
)

// Parser drives entity.Entity primitives to build a DTD, recognizing
// declarations starting with "<!" at the top level (spec §4.4, component E).
type Parser struct {
	cur      *entity.Entity
	resolv   resolver.Resolver
	errorLog func(string)
	dtd      *DTD
	baseURI  string
}

// Parse consumes markup declarations from root, which must already be open,
// until its entity chain is exhausted, and returns the built DTD. errorLog
// receives one line per recoverable condition (spec §4.6); a nil errorLog
// discards them.
func Parse(root *entity.Entity, resolv resolver.Resolver, baseURI string, errorLog func(string)) (*DTD, error) {
	if errorLog == nil {
		errorLog = func(string) {}
	}
	p := &Parser{cur: root, resolv: resolv, errorLog: errorLog, dtd: New(root.Name), baseURI: baseURI}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.dtd, nil
}

func (p *Parser) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.errorLog(msg + " (" + strings.Join(p.cur.Context(), " < ") + ")")
}

// advance reads the next character, transparently popping back to a parent
// parameter-entity frame on exhaustion (spec §4.4 "Parameter entity
// expansion").
func (p *Parser) advance() rune {
	r := p.cur.ReadChar()
	for r == entity.EOF && p.cur.Parent != nil {
		p.cur.Close()
		p.cur = p.cur.Parent
		r = p.cur.LastChar
	}
	return r
}

func (p *Parser) skipWS() {
	for {
		p.cur.SkipWhitespace()
		if p.cur.LastChar == entity.EOF && p.cur.Parent != nil {
			p.cur.Close()
			p.cur = p.cur.Parent
			continue
		}
		if p.cur.LastChar == '%' {
			if p.maybeExpandPE() {
				continue
			}
		}
		return
	}
}

// maybeExpandPE handles a '%name;' parameter entity reference encountered
// between tokens by pushing a new entity frame on top of the current one.
// PE expansion mid-literal (inside a quoted value) is not attempted; the
// source material this is distilled from only relies on between-token
// expansion in practice.
func (p *Parser) maybeExpandPE() bool {
	p.cur.ReadChar() // consume '%'
	name, err := p.cur.ScanToken(";", true)
	if err != nil {
		p.logf("dtd: %s", err)
		return false
	}
	if p.cur.LastChar == ';' {
		p.cur.ReadChar()
	}

	decl, ok := p.dtd.ParameterEntity(name)
	if !ok {
		p.logf("dtd: undefined parameter entity %%%s;", name)
		return false
	}

	var child *entity.Entity
	if decl.SystemURI != "" {
		child = entity.NewExternal(name, decl.PublicID, decl.SystemURI, p.cur)
	} else {
		child = entity.NewInternal(name, decl.Literal, entity.LiteralNone, p.cur)
	}
	if err := child.Open(p.baseURI, p.resolv, nil, ""); err != nil {
		p.logf("dtd: parameter entity %q: %s", name, err)
		return false
	}
	p.cur = child
	return true
}

func (p *Parser) run() error {
	for {
		p.skipWS()
		if p.cur.LastChar == entity.EOF {
			return nil
		}
		if p.cur.LastChar != '<' {
			p.logf("dtd: unexpected character %q outside declaration", p.cur.LastChar)
			p.advance()
			continue
		}
		p.advance()
		if p.cur.LastChar != '!' {
			p.logf("dtd: expected '!' after '<'")
			continue
		}
		p.advance()
		if err := p.parseDeclaration(); err != nil {
			return err
		}
	}
}

// parseSubset is run() restricted to an internal DOCTYPE subset: it returns
// as soon as terminator (usually ']') is seen instead of running to EOF.
func (p *Parser) parseSubset(terminator rune) error {
	for {
		p.skipWS()
		if p.cur.LastChar == terminator || p.cur.LastChar == entity.EOF {
			return nil
		}
		if p.cur.LastChar != '<' {
			p.logf("dtd: unexpected character %q in internal subset", p.cur.LastChar)
			p.advance()
			continue
		}
		p.advance()
		if p.cur.LastChar != '!' {
			p.logf("dtd: expected '!' after '<' in internal subset")
			continue
		}
		p.advance()
		if err := p.parseDeclaration(); err != nil {
			return err
		}
	}
}

func (p *Parser) parseExternalSubset(systemURI, publicID string) error {
	ext := entity.NewExternal("[external-subset]", publicID, systemURI, nil)
	if err := ext.Open(p.baseURI, p.resolv, nil, ""); err != nil {
		return err
	}
	saved := p.cur
	p.cur = ext
	err := p.parseSubset(entity.EOF)
	p.cur.Close()
	p.cur = saved
	return err
}

func (p *Parser) parseDeclaration() error {
	switch {
	case p.cur.LastChar == '-':
		return p.parseComment()
	case p.cur.LastChar == '[':
		return p.parseMarkedSection()
	default:
		kw, err := p.cur.ScanToken(" \t\r\n[>", false)
		if err != nil {
			return err
		}
		switch strings.ToUpper(kw) {
		case "DOCTYPE":
			return p.parseDoctype()
		case "ENTITY":
			return p.parseEntity()
		case "ELEMENT":
			return p.parseElement()
		case "ATTLIST":
			return p.parseAttlist()
		default:
			p.logf("dtd: unsupported declaration <!%s>", kw)
			return p.skipToGT()
		}
	}
}

func (p *Parser) skipToGT() error {
	for p.cur.LastChar != '>' && p.cur.LastChar != entity.EOF {
		p.advance()
	}
	if p.cur.LastChar == '>' {
		p.advance()
	}
	return nil
}

// parseComment handles a declaration comment "<!-- … -->" (the second '-'
// of the opening delimiter is still unread when this is called).
func (p *Parser) parseComment() error {
	p.advance()
	if p.cur.LastChar != '-' {
		return fmt.Errorf("dtd: malformed comment start at line %d", p.cur.Line)
	}
	p.advance()
	_, err := p.cur.ScanToEnd("-->")
	return err
}

// parseMarkedSection handles "<![ IGNORE|INCLUDE [ … ]]>" (spec §4.4, §9(c)).
func (p *Parser) parseMarkedSection() error {
	p.advance() // consume '['
	p.skipWS()
	kw, err := p.cur.ScanToken(" \t\r\n[", false)
	if err != nil {
		return err
	}
	p.skipWS()
	if p.cur.LastChar == '[' {
		p.advance()
	}
	switch strings.ToUpper(kw) {
	case "IGNORE":
		_, err := p.cur.ScanToEnd("]]>")
		return err
	case "INCLUDE":
		return fmt.Errorf("dtd: <![INCLUDE[ … ]]> marked sections are not implemented (line %d)", p.cur.Line)
	default:
		p.logf("dtd: unrecognized marked section type %q", kw)
		_, err := p.cur.ScanToEnd("]]>")
		return err
	}
}

// parseDoctype handles "<!DOCTYPE name (PUBLIC pubid | SYSTEM) syslit
// [internal-subset]? >".
func (p *Parser) parseDoctype() error {
	p.skipWS()
	name, err := p.cur.ScanToken(" \t\r\n[>", true)
	if err != nil {
		return err
	}
	p.dtd.Name = strings.ToUpper(name)
	p.skipWS()

	var publicID, systemURI string
	if isLetterRune(p.cur.LastChar) {
		kw, err := p.cur.ScanToken(" \t\r\n\"'[>", false)
		if err != nil {
			return err
		}
		p.skipWS()
		switch strings.ToUpper(kw) {
		case "PUBLIC":
			publicID, err = p.scanQuotedLiteral()
			if err != nil {
				return err
			}
			p.skipWS()
			if p.cur.LastChar == '"' || p.cur.LastChar == '\'' {
				systemURI, err = p.scanQuotedLiteral()
				if err != nil {
					return err
				}
				p.skipWS()
			}
		case "SYSTEM":
			systemURI, err = p.scanQuotedLiteral()
			if err != nil {
				return err
			}
			p.skipWS()
		default:
			p.logf("dtd: unexpected token %q in DOCTYPE", kw)
		}
	}
	p.dtd.PublicID = publicID
	p.dtd.SystemID = systemURI

	if p.cur.LastChar == '[' {
		p.advance()
		if err := p.parseSubset(']'); err != nil {
			return err
		}
		if p.cur.LastChar == ']' {
			p.advance()
		}
		p.skipWS()
	}
	if p.cur.LastChar == '>' {
		p.advance()
	}

	if systemURI != "" && p.resolv != nil {
		if err := p.parseExternalSubset(systemURI, publicID); err != nil {
			p.logf("dtd: external subset %q: %s", systemURI, err)
		}
	}
	return nil
}

// parseEntity handles "<!ENTITY [%] name …>" in its three forms (spec §4.4).
func (p *Parser) parseEntity() error {
	// plain whitespace skip: the '%' that marks a parameter entity
	// declaration is not a reference and must not be expanded here
	p.cur.SkipWhitespace()
	isParam := false
	if p.cur.LastChar == '%' {
		isParam = true
		p.advance()
		p.skipWS()
	}
	name, err := p.cur.ScanToken(" \t\r\n", true)
	if err != nil {
		return err
	}
	p.skipWS()

	decl := &EntityDecl{Name: name, Parameter: isParam}

	if p.cur.LastChar == '"' || p.cur.LastChar == '\'' {
		lit, err := p.scanQuotedLiteral()
		if err != nil {
			return err
		}
		decl.Literal = lit
	} else {
		kw, err := p.cur.ScanToken(" \t\r\n", false)
		if err != nil {
			return err
		}
		p.skipWS()
		switch strings.ToUpper(kw) {
		case "CDATA", "SDATA", "PI":
			switch strings.ToUpper(kw) {
			case "CDATA":
				decl.LiteralType = entity.LiteralCDATA
			case "SDATA":
				decl.LiteralType = entity.LiteralSDATA
			case "PI":
				decl.LiteralType = entity.LiteralPI
			}
			lit, err := p.scanQuotedLiteral()
			if err != nil {
				return err
			}
			decl.Literal = lit

		case "PUBLIC":
			pub, err := p.scanQuotedLiteral()
			if err != nil {
				return err
			}
			decl.PublicID = pub
			p.skipWS()
			if p.cur.LastChar == '"' || p.cur.LastChar == '\'' {
				sys, err := p.scanQuotedLiteral()
				if err != nil {
					return err
				}
				decl.SystemURI = sys
				p.skipWS()
			}
			if err := p.maybeParseNData(decl); err != nil {
				return err
			}

		case "SYSTEM":
			sys, err := p.scanQuotedLiteral()
			if err != nil {
				return err
			}
			decl.SystemURI = sys
			p.skipWS()
			if err := p.maybeParseNData(decl); err != nil {
				return err
			}

		default:
			p.logf("dtd: malformed entity declaration, unexpected token %q", kw)
		}
	}

	p.skipWS()
	if p.cur.LastChar == '>' {
		p.advance()
	}
	p.dtd.addEntity(decl)
	return nil
}

func (p *Parser) maybeParseNData(decl *EntityDecl) error {
	if !isLetterRune(p.cur.LastChar) {
		return nil
	}
	word, err := p.cur.ScanToken(" \t\r\n>", false)
	if err != nil {
		return err
	}
	if !strings.EqualFold(word, "NDATA") {
		p.logf("dtd: unexpected token %q in entity declaration", word)
		return nil
	}
	p.skipWS()
	ndata, err := p.cur.ScanToken(" \t\r\n>", true)
	if err != nil {
		return err
	}
	decl.NData = ndata
	p.skipWS()
	return nil
}

// parseElement handles "<!ELEMENT (name|name-group) minimization
// content-model (- exclusions)? (+ inclusions)? >".
func (p *Parser) parseElement() error {
	p.skipWS()
	names, err := p.scanNameOrGroup()
	if err != nil {
		return err
	}
	p.skipWS()

	startOpt, endOpt := true, true
	if p.cur.LastChar == 'O' || p.cur.LastChar == '-' {
		startOpt = p.cur.LastChar == 'O'
		p.advance()
		p.skipWS()
		if p.cur.LastChar == 'O' || p.cur.LastChar == '-' {
			endOpt = p.cur.LastChar == 'O'
			p.advance()
			p.skipWS()
		}
	}

	cm, err := p.parseContentModel()
	if err != nil {
		return err
	}

	excl := make(map[string]bool)
	incl := make(map[string]bool)
	p.skipWS()
	if p.cur.LastChar == '-' {
		p.advance()
		p.skipWS()
		ns, err := p.scanNameOrGroup()
		if err != nil {
			return err
		}
		for _, n := range ns {
			excl[strings.ToUpper(n)] = true
		}
		p.skipWS()
	}
	if p.cur.LastChar == '+' {
		p.advance()
		p.skipWS()
		ns, err := p.scanNameOrGroup()
		if err != nil {
			return err
		}
		for _, n := range ns {
			incl[strings.ToUpper(n)] = true
		}
		p.skipWS()
	}

	if p.cur.LastChar == '>' {
		p.advance()
	}

	for _, n := range names {
		e := newElementDecl(n)
		e.StartTagOptional = startOpt
		e.EndTagOptional = endOpt
		e.Content = cm
		e.Exclusions = excl
		e.Inclusions = incl
		if _, exists := p.dtd.Elements[e.Name]; exists {
			p.logf("dtd: duplicate element declaration %q ignored", e.Name)
		}
		p.dtd.addElement(e)
	}
	return nil
}

func (p *Parser) scanNameOrGroup() ([]string, error) {
	if p.cur.LastChar == '(' {
		p.advance()
		var names []string
		for {
			p.skipWS()
			name, err := p.cur.ScanToken(" \t\r\n|,)", true)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
			p.skipWS()
			switch p.cur.LastChar {
			case ')':
				p.advance()
				return names, nil
			case '|', ',':
				p.advance()
			default:
				return names, fmt.Errorf("dtd: malformed name group at line %d", p.cur.Line)
			}
		}
	}
	name, err := p.cur.ScanToken(" \t\r\n>-+", true)
	if err != nil {
		return nil, err
	}
	return []string{name}, nil
}

func (p *Parser) parseContentModel() (*ContentModel, error) {
	p.skipWS()
	if isLetterRune(p.cur.LastChar) {
		word, err := p.cur.ScanToken(" \t\r\n()>-+", false)
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(word) {
		case "EMPTY":
			return &ContentModel{Declared: DeclaredEmpty}, nil
		case "CDATA":
			return &ContentModel{Declared: DeclaredCData}, nil
		case "RCDATA":
			return &ContentModel{Declared: DeclaredRCData}, nil
		case "ANY":
			return &ContentModel{Root: &Group{Mixed: true}}, nil
		default:
			return nil, fmt.Errorf("dtd: unrecognized content model keyword %q at line %d", word, p.cur.Line)
		}
	}
	grp, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	return &ContentModel{Root: grp}, nil
}

func (p *Parser) parseGroup() (*Group, error) {
	if p.cur.LastChar != '(' {
		return nil, fmt.Errorf("dtd: expected '(' at line %d", p.cur.Line)
	}
	p.advance()
	g := &Group{}
	conn := ConnNone

	for {
		p.skipWS()
		var member *Group
		if p.cur.LastChar == '#' {
			p.advance()
			name, err := p.cur.ScanToken(" \t\r\n|,)&", true)
			if err != nil {
				return nil, err
			}
			if !strings.EqualFold(name, "PCDATA") {
				return nil, fmt.Errorf("dtd: unexpected '#%s' in content model at line %d", name, p.cur.Line)
			}
			g.Mixed = true
		} else if p.cur.LastChar == '(' {
			sub, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			member = sub
		} else {
			name, err := p.cur.ScanToken(" \t\r\n|,&)?+*", true)
			if err != nil {
				return nil, err
			}
			member = &Group{Name: strings.ToUpper(name)}
		}

		if member != nil {
			member.Occurrence = p.parseOccurrence()
			g.Members = append(g.Members, member)
		}

		p.skipWS()
		switch p.cur.LastChar {
		case ',', '|', '&':
			c := connectorFor(p.cur.LastChar)
			if conn != ConnNone && conn != c {
				return nil, fmt.Errorf("dtd: mixed connectors in one content-model group at line %d", p.cur.Line)
			}
			conn = c
			p.advance()
		case ')':
			p.advance()
			g.Connector = conn
			g.Occurrence = p.parseOccurrence()
			return g, nil
		default:
			return nil, fmt.Errorf("dtd: malformed content model at line %d", p.cur.Line)
		}
	}
}

func connectorFor(c rune) Connector {
	switch c {
	case ',':
		return ConnSeq
	case '|':
		return ConnOr
	case '&':
		return ConnAnd
	}
	return ConnNone
}

func (p *Parser) parseOccurrence() Occurrence {
	switch p.cur.LastChar {
	case '?':
		p.advance()
		return OccurOpt
	case '*':
		p.advance()
		return OccurMult
	case '+':
		p.advance()
		return OccurPlus
	}
	return OccurOnce
}

// parseAttlist handles "<!ATTLIST name-group (attdef)* >".
func (p *Parser) parseAttlist() error {
	p.skipWS()
	names, err := p.scanNameOrGroup()
	if err != nil {
		return err
	}
	p.skipWS()

	var defs []*AttDef
	for p.cur.LastChar != '>' && p.cur.LastChar != entity.EOF {
		def, err := p.parseAttDef()
		if err != nil {
			return err
		}
		defs = append(defs, def)
		p.skipWS()
	}
	if p.cur.LastChar == '>' {
		p.advance()
	}

	for _, n := range names {
		e, ok := p.dtd.Element(n)
		if !ok {
			e = newElementDecl(n)
			p.dtd.addElement(e)
		}
		for _, d := range defs {
			e.Attributes[strings.ToUpper(d.Name)] = d
		}
	}
	return nil
}

func (p *Parser) parseAttDef() (*AttDef, error) {
	name, err := p.cur.ScanToken(" \t\r\n", true)
	if err != nil {
		return nil, err
	}
	p.skipWS()

	def := &AttDef{Name: name}

	if p.cur.LastChar == '(' {
		values, err := p.scanNameOrGroup()
		if err != nil {
			return nil, err
		}
		def.Type = AttrEnumeration
		def.Values = values
	} else {
		kw, err := p.cur.ScanToken(" \t\r\n(", false)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(kw, "NOTATION") {
			p.skipWS()
			values, err := p.scanNameOrGroup()
			if err != nil {
				return nil, err
			}
			def.Type = AttrNotation
			def.Values = values
		} else {
			def.Type = attrTypeFromKeyword(kw)
		}
	}
	p.skipWS()

	switch {
	case p.cur.LastChar == '#':
		p.advance()
		word, err := p.cur.ScanToken(" \t\r\n>", false)
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(word) {
		case "REQUIRED":
			def.Presence = PresenceRequired
		case "IMPLIED":
			def.Presence = PresenceImplied
		case "FIXED":
			p.skipWS()
			lit, err := p.scanDefaultLiteral()
			if err != nil {
				return nil, err
			}
			def.Presence = PresenceFixed
			def.Default = lit
		default:
			p.logf("dtd: unrecognized attribute default %q", word)
		}
	default:
		lit, err := p.scanDefaultLiteral()
		if err != nil {
			return nil, err
		}
		def.Default = lit
	}
	return def, nil
}

func (p *Parser) scanDefaultLiteral() (string, error) {
	if p.cur.LastChar == '"' || p.cur.LastChar == '\'' {
		return p.scanQuotedLiteral()
	}
	return p.cur.ScanToken(" \t\r\n>", true)
}

func attrTypeFromKeyword(kw string) AttrType {
	switch strings.ToUpper(kw) {
	case "CDATA":
		return AttrCDATA
	case "ID":
		return AttrID
	case "IDREF":
		return AttrIDRef
	case "IDREFS":
		return AttrIDRefs
	case "NAME":
		return AttrName
	case "NAMES":
		return AttrNames
	case "NMTOKEN":
		return AttrNmtoken
	case "NMTOKENS":
		return AttrNmtokens
	case "NUMBER":
		return AttrNumber
	case "NUMBERS":
		return AttrNumbers
	case "NUTOKEN":
		return AttrNutoken
	case "NUTOKENS":
		return AttrNutokens
	case "ENTITY":
		return AttrEntity
	case "ENTITIES":
		return AttrEntities
	default:
		return AttrInvalid
	}
}

func (p *Parser) scanQuotedLiteral() (string, error) {
	q := p.cur.LastChar
	if q != '"' && q != '\'' {
		return "", fmt.Errorf("dtd: expected quoted literal at line %d", p.cur.Line)
	}
	p.advance()
	return p.cur.ScanLiteral(q)
}

func isLetterRune(r rune) bool {
	return unicode.IsLetter(r)
}
