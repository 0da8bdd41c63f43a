// Package decoder implements the character stream decoder (spec §4.2): it
// wraps a byte stream, detects its encoding via BOM, XML declaration, or
// HTML <meta> sniffing, and yields decoded runes with null-byte remapping.
// Line endings are passed through unchanged; CR/CRLF normalization happens
// one layer up, in the entity reader's ReadChar.
package decoder

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lestrrat-go/sgml/internal/debug"
)

// Encoding names the detected or requested encoding of a stream.
type Encoding string

const (
	UTF8    Encoding = "utf-8"
	UTF16LE Encoding = "utf-16le"
	UTF16BE Encoding = "utf-16be"
	UCS4LE  Encoding = "ucs-4le"
	UCS4BE  Encoding = "ucs-4be"
)

// Decoder yields decoded runes one at a time from an underlying byte
// stream, per spec §4.2.
type Decoder struct {
	src      *bufio.Reader
	encoding Encoding
	// xform decodes one rune at a time for the non-custom encodings; it is
	// nil when Encoding is one of the hand-rolled UCS-4 variants.
	xform *transform.Reader
}

// xmlDeclRe sniffs an XML declaration's encoding pseudo-attribute at the very
// start of the (possibly BOM-stripped) byte stream (spec §4.2.1b).
var xmlDeclRe = regexp.MustCompile(`(?s)^<\?xml[^>]*\bencoding\s*=\s*["']([^"']+)["']`)

// metaCharsetAttrRe sniffs an HTML <meta http-equiv="content-type" content="...charset=...">
// or the HTML5 <meta charset="..."> form (spec §4.2.1c).
var (
	metaCharsetAttrRe = regexp.MustCompile(`(?is)<meta\s[^>]*charset\s*=\s*["']?([a-zA-Z0-9_\-]+)`)
)

// New detects the encoding of r (always buffering it fully into memory
// first, since sniffing needs to rewind; see §4.2.3) and returns a Decoder
// ready to emit characters.
// defaultEnc is used when no BOM, XML declaration, or <meta> tag is found;
// an empty defaultEnc means UTF-8, per §4.2.1b.
func New(r io.Reader, defaultEnc string) (*Decoder, error) {
	g := debug.IPrintf("START decoder.New")
	defer g.IRelease("END decoder.New")

	buf, err := io.ReadAll(r) // §4.2.3: non-seekable streams are buffered for sniffing
	if err != nil {
		return nil, fmt.Errorf("decoder: read source: %w", err)
	}

	if defaultEnc == "" {
		defaultEnc = string(UTF8)
	}

	enc, body, custom := detectBOM(buf)
	if enc == "" {
		// No BOM: decode provisionally with defaultEnc and sniff §4.2.1b/c.
		enc = Encoding(defaultEnc)
		body = buf
		if name, ok := DecodeXMLDeclOrMeta(body); ok {
			enc = Encoding(normalizeName(name))
		}
	}

	d := &Decoder{encoding: enc}
	switch enc {
	case UCS4BE, UCS4LE:
		d.src = bufio.NewReader(bytes.NewReader(body))
	default:
		if custom != nil {
			d.xform = transform.NewReader(bytes.NewReader(body), custom)
		} else {
			e, name := charset.Lookup(string(enc))
			if e == nil {
				// Unknown/unsupported name: fall back to UTF-8 rather than
				// failing the whole parse (the source commonly lies about
				// its own charset).
				e = unicode.UTF8
				name = "utf-8"
				debug.Printf("decoder: unknown encoding %q, falling back to utf-8", enc)
			}
			d.encoding = Encoding(name)
			d.xform = transform.NewReader(bytes.NewReader(body), e.NewDecoder())
		}
		d.src = bufio.NewReader(d.xform)
	}
	return d, nil
}

// Encoding returns the encoding that was ultimately selected.
func (d *Decoder) Encoding() Encoding { return d.encoding }

// ReadRune decodes the next rune, mapping NUL bytes to spaces (§4.2.4).
func (d *Decoder) ReadRune() (rune, error) {
	switch d.encoding {
	case UCS4BE, UCS4LE:
		r, err := d.readUCS4Rune()
		if err != nil {
			return 0, err
		}
		if r == 0 {
			return ' ', nil
		}
		return r, nil
	default:
		r, _, err := d.src.ReadRune()
		if err != nil {
			return 0, err
		}
		if r == 0 {
			return ' ', nil
		}
		return r, nil
	}
}

// readUCS4Rune implements the custom UCS-4 decoder required by §4.2.2: it
// validates code points <= 0x10FFFF, rejects surrogate values as illegal
// scalars, and never itself produces a surrogate pair (callers reading a
// UCS-4 stream get one rune per 4-byte unit).
func (d *Decoder) readUCS4Rune() (rune, error) {
	var b [4]byte
	n, err := io.ReadFull(d.src, b[:])
	if err != nil {
		if n == 0 {
			return 0, err
		}
		return 0, fmt.Errorf("decoder: truncated UCS-4 code unit: %w", err)
	}

	var v uint32
	if d.encoding == UCS4BE {
		v = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	} else {
		v = uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
	}

	if v > 0x10FFFF {
		return 0, fmt.Errorf("decoder: UCS-4 code point 0x%X out of range", v)
	}
	if v >= 0xD800 && v <= 0xDFFF {
		return 0, fmt.Errorf("decoder: UCS-4 code point 0x%X is a surrogate, not a legal scalar value", v)
	}
	return rune(v), nil
}

// detectBOM recognizes the 2- and 4-byte byte-order marks for UCS-4
// (big/little), UTF-16 (big/little), and UTF-8, consuming the BOM and
// returning the remaining bytes. The custom return value is non-nil when
// the chosen codec is a golang.org/x/text decoder (UTF-16); it is nil for
// UTF-8 (New then looks the codec up by name via charset.Lookup) and for
// UCS-4 (handled by readUCS4Rune).
func detectBOM(buf []byte) (enc Encoding, body []byte, custom encoding.Encoding) {
	switch {
	case len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0x00, 0x00, 0xFE, 0xFF}):
		return UCS4BE, buf[4:], nil
	case len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0xFF, 0xFE, 0x00, 0x00}):
		return UCS4LE, buf[4:], nil
	case len(buf) >= 3 && bytes.Equal(buf[:3], []byte{0xEF, 0xBB, 0xBF}):
		return UTF8, buf[3:], nil
	case len(buf) >= 2 && bytes.Equal(buf[:2], []byte{0xFE, 0xFF}):
		return UTF16BE, buf[2:], unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case len(buf) >= 2 && bytes.Equal(buf[:2], []byte{0xFF, 0xFE}):
		return UTF16LE, buf[2:], unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	default:
		return "", nil, nil
	}
}

func normalizeName(s string) string {
	// Keep it simple: charset.Lookup already case-insensitively matches
	// common aliases (utf-8, UTF-8, windows-1252, iso-8859-1, ...).
	return s
}

// DecodeXMLDeclOrMeta sniffs an encoding name out of a leading XML
// declaration (<?xml ... encoding="..."?>) or an HTML <meta charset=...>
// / <meta http-equiv=Content-Type content="...charset=..."> tag, per
// §4.2.1b/c. It reports ok=false if neither is present in body.
func DecodeXMLDeclOrMeta(body []byte) (string, bool) {
	if m := xmlDeclRe.FindSubmatch(body); m != nil {
		return string(m[1]), true
	}
	if m := metaCharsetAttrRe.FindSubmatch(body); m != nil {
		return string(m[1]), true
	}
	return "", false
}
