// Package resolver implements the resource resolver contract (spec §4.1):
// the sole I/O boundary of the parser core. A Resolver maps a (possibly
// relative) URI to an opened byte stream plus whatever encoding/MIME/
// redirect metadata it was able to determine.
package resolver

import (
	"errors"
	"io"
)

// ErrNotFound is returned by a Resolver when the requested resource could
// not be located, distinct from a resource that was found but is empty
// (spec §4.1).
var ErrNotFound = errors.New("resolver: resource not found")

// Resource is what a Resolver hands back for a successfully opened URI.
type Resource struct {
	// Body is the open byte stream. The caller (the entity layer) owns it
	// and must Close it exactly once.
	Body io.ReadCloser
	// Encoding is the declared encoding, if the resolver's transport
	// exposed one (e.g. an HTTP Content-Type charset parameter). Empty
	// means "unknown; let the character stream decoder sniff it."
	Encoding string
	// MIMEType is the resource's declared MIME type, if known.
	MIMEType string
	// ResolvedURI is the URI after following any server-side redirects; it
	// becomes the new base URI for resolving further relative references.
	ResolvedURI string
}

// Resolver is the pluggable abstraction over "get me the bytes at this
// URI", implemented by FileResolver, HTTPResolver, and EmbeddedResolver.
// Implementations may refuse schemes they don't support; a caller wanting a
// specific transport plus a fallback should compose with Chain.
type Resolver interface {
	// GetContent resolves uri (optionally relative to baseURI) and returns
	// an open Resource, or ErrNotFound (wrapped) if it does not exist, or
	// any other error the transport produced.
	GetContent(uri, baseURI string) (*Resource, error)
}

// Chain tries each Resolver in order, returning the first successful
// Resource. It returns the last error seen if all resolvers fail, or
// ErrNotFound if the chain is empty.
type Chain []Resolver

// GetContent implements Resolver.
func (c Chain) GetContent(uri, baseURI string) (*Resource, error) {
	var lastErr error = ErrNotFound
	for _, r := range c {
		res, err := r.GetContent(uri, baseURI)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
