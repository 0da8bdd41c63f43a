// Package sgml implements a forgiving SGML-to-XML pull parser: it consumes
// a byte or character stream of SGML (most prominently HTML 4 and OFX 1.x),
// validates it loosely against an SGML Document Type Definition, and
// exposes a well-formed XML node stream through a pull-style Reader.
//
// The parser recovers from malformed markup, folds case, infers omitted
// start and end tags from the DTD's minimization flags, auto-closes
// elements when a new child is illegal in the current context, and treats
// CDATA-content elements such as <script> and <style> specially. It does
// not perform strict SGML conformance checking or DTD validation in the
// sense of rejecting non-conforming input; it aims to produce some
// well-formed tree from arbitrary input.
package sgml

const (
	XMLNamespace = "http://www.w3.org/XML/1998/namespace"
	XMLNSNamespace = "http://www.w3.org/2000/xmlns/"
	XMLNsPrefix  = "xmlns"
	XMLPrefix    = "xml"
)
