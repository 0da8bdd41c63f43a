// Package sax defines optional observer hooks a caller can attach to a
// Reader to be notified of DTD declarations and lexical events as they are
// parsed, independent of pulling the document's node stream. It is a
// secondary, push-style companion to the pull Reader, not a replacement for
// it: a Handler sees each event exactly once. Lexical events arrive in
// document order, interleaved with the caller's own Read loop; DTD
// declarations are reported in one batch when the Reader is constructed,
// in no defined order.
package sax

// DeclHandler receives DTD declaration events once the DTD has been parsed
// (or supplied pre-parsed), before any document content is read.
type DeclHandler interface {
	// ElementDecl is called once per <!ELEMENT> declaration, after parsing.
	ElementDecl(name string, startTagOptional, endTagOptional bool)

	// AttributeDecl is called once per attribute definition within an
	// <!ATTLIST> declaration.
	AttributeDecl(elementName, attributeName, typ string, required bool)

	// EntityDecl is called once per <!ENTITY> declaration, general or
	// parameter; parameter indicates which.
	EntityDecl(name string, parameter bool, value string)
}

// LexicalHandler receives notification of lexical events the document node
// stream also surfaces as ordinary nodes; it exists for callers that want a
// push-style shadow of comments and CDATA boundaries without draining Read
// themselves, e.g. a syntax highlighter running alongside a Reader.
type LexicalHandler interface {
	Comment(content string)
	StartCData(elementName string)
	EndCData(elementName string)
}

// Handler is the combined interface a caller registers with WithSAXHandler.
// Embedding both DeclHandler and LexicalHandler keeps a single attach point
// while letting an implementation leave either half a no-op.
type Handler interface {
	DeclHandler
	LexicalHandler
}

// NopHandler is a Handler whose methods all do nothing; embed it to
// implement only the callbacks a particular caller cares about.
type NopHandler struct{}

func (NopHandler) ElementDecl(name string, startTagOptional, endTagOptional bool)      {}
func (NopHandler) AttributeDecl(elementName, attributeName, typ string, required bool) {}
func (NopHandler) EntityDecl(name string, parameter bool, value string)                {}
func (NopHandler) Comment(content string)                                              {}
func (NopHandler) StartCData(elementName string)                                       {}
func (NopHandler) EndCData(elementName string)                                         {}
