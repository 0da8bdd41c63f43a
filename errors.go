package sgml

import "fmt"

// FatalError is returned by Read when the parse cannot continue (spec §4.6,
// §7 taxonomy items 1 and 6): failure to open a required external resource,
// an unclosed CDATA section or comment at end of input, or an invalid UCS-4
// code point. Content-model depth across parameter entity expansion and a
// DOCTYPE name that differs from a pre-loaded DTD are not checked, so
// neither produces a FatalError. No further nodes follow a FatalError.
type FatalError struct {
	Message string
	Context []string // entity chain, outermost first is not guaranteed; see entity.Context
	Root    string   // absolute URI of the outermost entity, when known
}

func (e *FatalError) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	msg := e.Message + " ("
	for i, c := range e.Context {
		if i > 0 {
			msg += " < "
		}
		msg += c
	}
	msg += ")"
	if e.Root != "" {
		msg += fmt.Sprintf(" [root=%s]", e.Root)
	}
	return msg
}

var (
	ErrNoRootElement = &FatalError{Message: "document type declares a required root element that never appeared"}
)
