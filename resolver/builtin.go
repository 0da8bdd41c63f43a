package resolver

import (
	"strings"

	"github.com/lestrrat-go/sgml/internal/htmldtd"
)

// BuiltinResolver intercepts requests for the bundled HTML DTD (spec §6:
// "requests for either resolve to the bundled copy to avoid network
// traffic") before delegating anything else to an underlying Resolver.
type BuiltinResolver struct {
	delegate Resolver
	html     *EmbeddedResolver
}

// NewBuiltinResolver wraps delegate with built-in HTML DTD recognition. A
// nil delegate means "only the built-in HTML DTD is resolvable", useful for
// IgnoreDtd-free parses that never touch external resources.
func NewBuiltinResolver(delegate Resolver) *BuiltinResolver {
	return &BuiltinResolver{
		delegate: delegate,
		html:     NewEmbeddedResolver(map[string]string{htmldtd.Name: htmldtd.Source()}),
	}
}

// GetContent implements Resolver.
func (b *BuiltinResolver) GetContent(uri, baseURI string) (*Resource, error) {
	if IsBuiltinHTMLDTD(uri) {
		return b.html.GetContent(htmldtd.Name, baseURI)
	}
	if b.delegate == nil {
		return nil, ErrNotFound
	}
	return b.delegate.GetContent(uri, baseURI)
}

// IsBuiltinHTMLDTD reports whether uri names the bundled HTML DTD: either
// the literal identifier "Html.dtd" (case-insensitive) or any URI that
// contains both "w3.org" and "html" (case-insensitive), which covers the
// common "http://www.w3.org/TR/html4/strict.dtd"-style system identifiers.
// Other w3.org URIs are not intercepted.
func IsBuiltinHTMLDTD(uri string) bool {
	lower := strings.ToLower(uri)
	if lower == strings.ToLower(htmldtd.Name) {
		return true
	}
	return strings.Contains(lower, "w3.org") && strings.Contains(lower, "html")
}
