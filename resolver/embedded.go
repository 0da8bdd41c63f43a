package resolver

import (
	"fmt"
	"io"
	"strings"
)

// EmbeddedResolver serves a fixed table of in-memory assets, keyed by the
// exact URI requested. It is the third of the "file-system, HTTP,
// embedded-asset" trio called for by spec §9's design notes.
type EmbeddedResolver struct {
	assets map[string]string
}

// NewEmbeddedResolver builds an EmbeddedResolver from a name->content table.
func NewEmbeddedResolver(assets map[string]string) *EmbeddedResolver {
	cp := make(map[string]string, len(assets))
	for k, v := range assets {
		cp[k] = v
	}
	return &EmbeddedResolver{assets: cp}
}

// GetContent implements Resolver.
func (e *EmbeddedResolver) GetContent(uri, _ string) (*Resource, error) {
	content, ok := e.assets[uri]
	if !ok {
		return nil, fmt.Errorf("%w: embedded asset %q", ErrNotFound, uri)
	}
	return &Resource{
		Body:        io.NopCloser(strings.NewReader(content)),
		ResolvedURI: uri,
	}, nil
}
