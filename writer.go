package sgml

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/lestrrat-go/sgml/internal/debug"
)

var (
	escQuot = []byte("&#34;") // shorter than "&quot;"
	escApos = []byte("&#39;") // shorter than "&apos;"
	escAmp  = []byte("&amp;")
	escLt   = []byte("&lt;")
	escGt   = []byte("&gt;")
	escTab  = []byte("&#9;")
	escNl   = []byte("&#10;")
	escCr   = []byte("&#13;")
	escFffd = []byte("�") // Unicode replacement character
)

// isInCharacterRange reports whether r is in the XML Character Range, per
// the Char production of the XML 1.0 spec, Section 2.2.
func isInCharacterRange(r rune) bool {
	return r == 0x09 ||
		r == 0x0A ||
		r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}

func escapeAttrValue(w io.Writer, s []byte) error {
	var esc []byte
	last := 0
	for i := 0; i < len(s); {
		r, width := utf8.DecodeRune(s[i:])
		i += width
		switch r {
		case '"':
			esc = escQuot
		case '\'':
			esc = escApos
		case '&':
			esc = escAmp
		case '<':
			esc = escLt
		case '>':
			esc = escGt
		case '\n':
			esc = escNl
		case '\r':
			esc = escCr
		case '\t':
			esc = escTab
		default:
			if !(0x20 <= r && r < 0x80) {
				if r < 0xE0 {
					esc = []byte(fmt.Sprintf("&#x%X;", r))
					break
				}
			}
			if !isInCharacterRange(r) || (r == 0xFFFD && width == 1) {
				esc = escFffd
				break
			}
			continue
		}

		if _, err := w.Write(s[last : i-width]); err != nil {
			return err
		}
		if _, err := w.Write(esc); err != nil {
			return err
		}
		last = i
	}

	if _, err := w.Write(s[last:]); err != nil {
		return err
	}
	return nil
}

// escapeText writes to w the properly escaped XML equivalent of the plain
// text data s. If escapeNewline is true, newline characters are escaped
// too (needed inside attribute-like contexts; ordinary text content leaves
// them alone).
func escapeText(w io.Writer, s []byte, escapeNewline bool) error {
	debug.Printf("escapeText = %q", s)
	var esc []byte
	last := 0
	for i := 0; i < len(s); {
		r, width := utf8.DecodeRune(s[i:])
		i += width
		switch r {
		case '&':
			esc = escAmp
		case '<':
			esc = escLt
		case '>':
			esc = escGt
		case '\n':
			if !escapeNewline {
				continue
			}
			esc = escNl
		case '\r':
			esc = escCr
		default:
			if !(r == '\t' || (0x20 <= r && r < 0x80)) {
				if r < 0xE0 {
					esc = []byte(fmt.Sprintf("&#x%X;", r))
					break
				}
			}
			if !isInCharacterRange(r) || (r == 0xFFFD && width == 1) {
				esc = escFffd
				break
			}
			continue
		}

		if _, err := w.Write(s[last : i-width]); err != nil {
			return err
		}
		if _, err := w.Write(esc); err != nil {
			return err
		}
		last = i
	}

	if _, err := w.Write(s[last:]); err != nil {
		return err
	}
	return nil
}

// WriteXML drains r to completion, writing a well-formed XML serialization
// of its node stream to out. It is a convenience wrapper, not the primary
// contract of this package: callers that need streaming or node-by-node
// control should drive Read themselves.
func WriteXML(out io.Writer, r *Reader) error {
	g := debug.IPrintf("START WriteXML")
	defer g.IRelease("END WriteXML")

	open := make([]string, 0, 8)
	for {
		ok, err := r.Read()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		switch r.Type() {
		case Element:
			name := qualifiedName(r.Prefix(), r.Name())
			if _, err := io.WriteString(out, "<"+name); err != nil {
				return err
			}
			if err := writeAttributes(out, r); err != nil {
				return err
			}
			if r.IsEmptyElement() {
				if _, err := io.WriteString(out, "/>"); err != nil {
					return err
				}
				continue
			}
			if _, err := io.WriteString(out, ">"); err != nil {
				return err
			}
			open = append(open, name)

		case EndElement:
			if len(open) == 0 {
				continue // a synthesized close with nothing left open; nothing to balance
			}
			name := open[len(open)-1]
			open = open[:len(open)-1]
			if _, err := fmt.Fprintf(out, "</%s>", name); err != nil {
				return err
			}

		case Text, Whitespace:
			if err := escapeText(out, []byte(r.Value()), false); err != nil {
				return err
			}

		case CData:
			if _, err := fmt.Fprintf(out, "<![CDATA[%s]]>", r.Value()); err != nil {
				return err
			}

		case Comment:
			if _, err := fmt.Fprintf(out, "<!--%s-->", r.Value()); err != nil {
				return err
			}

		case ProcessingInstruction:
			if _, err := fmt.Fprintf(out, "<?%s %s?>", r.Name(), r.Value()); err != nil {
				return err
			}

		case DocumentType:
			if _, err := fmt.Fprintf(out, "<!DOCTYPE %s>", r.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}

func qualifiedName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

func writeAttributes(out io.Writer, r *Reader) error {
	for i := 0; i < r.AttributeCount(); i++ {
		a, ok := r.Attribute(i)
		if !ok {
			continue
		}
		if _, err := io.WriteString(out, " "+a.Name+`="`); err != nil {
			return err
		}
		if err := escapeAttrValue(out, []byte(a.Value)); err != nil {
			return err
		}
		if _, err := io.WriteString(out, `"`); err != nil {
			return err
		}
	}
	return nil
}
