// Package htmldtd bundles the built-in HTML DTD asset (spec §6 "Built-in
// HTML DTD"). Assembling/embedding the definitive HTML DTD is explicitly an
// external-collaborator concern (spec §1); this package supplies a compact
// but functioning stand-in good enough to drive tag inference for the
// common HTML element set.
package htmldtd

import _ "embed"

//go:embed html.dtd
var source string

// Source returns the embedded DTD text.
func Source() string { return source }

// Name is the canonical identifier implementations must recognize for the
// bundled copy (spec §6): the resolver package answers any request for this
// name, or for a URI containing both "w3.org" and "html", with Source()
// instead of touching the network.
const Name = "Html.dtd"
