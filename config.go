package sgml

import (
	"io"

	"github.com/lestrrat-go/sgml/internal/dtd"
	"github.com/lestrrat-go/sgml/resolver"
	"github.com/lestrrat-go/sgml/sax"
)

// config holds everything recognized by Option (spec §6 "Configuration").
type config struct {
	docType           string
	publicIdentifier  string
	systemLiteral     string
	internalSubset    string
	inputStream       io.Reader
	href              string
	baseURI           string
	caseFolding       CaseFolding
	whitespaceMode    WhitespaceHandling
	textWhitespace    TextWhitespaceFlag
	stripDocType      bool
	ignoreDtd         bool
	dtd               *dtd.DTD
	resolver          resolver.Resolver
	errorLog          func(string)
	allowMultipleRoot bool
	defaultEncoding   string
	saxHandler        sax.Handler
}

func newConfig() *config {
	return &config{
		caseFolding:    CaseFoldNone,
		whitespaceMode: WhitespaceAll,
		textWhitespace: textWhitespaceAll,
		errorLog:       func(string) {},
	}
}

// Option configures a Reader, following the functional-options convention
// used throughout this codebase's dependency wiring.
type Option func(*config)

// WithDocType names the root element; when equal to "html"
// (case-insensitive) and no explicit DTD is supplied, the built-in HTML DTD
// is selected.
func WithDocType(name string) Option {
	return func(c *config) { c.docType = name }
}

// WithPublicIdentifier supplies the PUBLIC identifier used to locate a DTD.
func WithPublicIdentifier(id string) Option {
	return func(c *config) { c.publicIdentifier = id }
}

// WithSystemLiteral supplies the SYSTEM identifier used to locate a DTD.
func WithSystemLiteral(uri string) Option {
	return func(c *config) { c.systemLiteral = uri }
}

// WithInternalSubset supplies a literal internal DTD subset.
func WithInternalSubset(subset string) Option {
	return func(c *config) { c.internalSubset = subset }
}

// WithInputStream supplies the document source directly; it wins over
// WithHref when both are given.
func WithInputStream(r io.Reader) Option {
	return func(c *config) { c.inputStream = r }
}

// WithHref supplies a URI resolved via the configured Resolver to obtain the
// document source.
func WithHref(uri string) Option {
	return func(c *config) { c.href = uri }
}

// WithBaseURI sets the URI relative DTD and entity references resolve
// against.
func WithBaseURI(uri string) Option {
	return func(c *config) { c.baseURI = uri }
}

// WithCaseFolding selects the case-normalization mode for element and
// attribute names.
func WithCaseFolding(mode CaseFolding) Option {
	return func(c *config) { c.caseFolding = mode }
}

// WithWhitespaceHandling selects whether pure-whitespace text nodes surface.
func WithWhitespaceHandling(mode WhitespaceHandling) Option {
	return func(c *config) { c.whitespaceMode = mode }
}

// WithTextWhitespace sets the trim-flags applied to surfaced text nodes.
// Flags outside TrimLeading|TrimTrailing|OnlyLineBreaks are silently
// dropped, and OnlyLineBreaks is cleared unless at least one trim flag is
// also set (spec §4.5.9).
func WithTextWhitespace(flags TextWhitespaceFlag) Option {
	return func(c *config) {
		flags &= textWhitespaceAll
		if flags&(TrimLeading|TrimTrailing) == 0 {
			flags &^= OnlyLineBreaks
		}
		c.textWhitespace = flags
	}
}

// WithStripDocType, when true, absorbs the DOCTYPE node instead of
// surfacing it.
func WithStripDocType(strip bool) Option {
	return func(c *config) { c.stripDocType = strip }
}

// WithIgnoreDtd, when true, disables DTD loading entirely; tag inference
// and validation are effectively disabled.
func WithIgnoreDtd(ignore bool) Option {
	return func(c *config) { c.ignoreDtd = ignore }
}

// WithDtd supplies a pre-parsed, shareable DTD to reuse across parses
// (spec §5 "Shared-lifetime DTD"), bypassing DTD loading altogether.
func WithDtd(d *dtd.DTD) Option {
	return func(c *config) { c.dtd = d }
}

// WithResolver supplies the Resolver used for external entities, DTDs, and
// WithHref documents.
func WithResolver(r resolver.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithErrorLog supplies the sink for recoverable-error lines (spec §4.6,
// §6 "Error log format").
func WithErrorLog(fn func(string)) Option {
	return func(c *config) {
		if fn != nil {
			c.errorLog = fn
		}
	}
}

// WithAllowMultipleRoot permits more than one top-level element; otherwise
// a second top-level element forces the parser to close everything open and
// report end-of-stream (spec §4.5.10).
func WithAllowMultipleRoot(allow bool) Option {
	return func(c *config) { c.allowMultipleRoot = allow }
}

// WithDefaultEncoding sets the decoder's fallback encoding when no BOM,
// XML declaration, or <meta> sniff succeeds (spec §4.2).
func WithDefaultEncoding(enc string) Option {
	return func(c *config) { c.defaultEncoding = enc }
}

// WithSAXHandler attaches a push-style observer notified of DTD
// declarations as the DTD is loaded and of comment/CDATA boundaries as the
// document is read, alongside (not instead of) the ordinary pull node
// stream.
func WithSAXHandler(h sax.Handler) Option {
	return func(c *config) { c.saxHandler = h }
}
