package decoder_test

import (
	"strings"
	"testing"

	"github.com/lestrrat-go/sgml/internal/decoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, d *decoder.Decoder) string {
	t.Helper()
	var sb strings.Builder
	for {
		r, err := d.ReadRune()
		if err != nil {
			break
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func TestUTF8BOMStripped(t *testing.T) {
	src := "\xEF\xBB\xBF<p>hi</p>"
	d, err := decoder.New(strings.NewReader(src), "")
	require.NoError(t, err)
	assert.Equal(t, decoder.UTF8, d.Encoding())
	assert.Equal(t, "<p>hi</p>", readAll(t, d))
}

func TestXMLDeclSniff(t *testing.T) {
	src := `<?xml version="1.0" encoding="iso-8859-1"?><r>a</r>`
	d, err := decoder.New(strings.NewReader(src), "")
	require.NoError(t, err)
	assert.Equal(t, src, readAll(t, d))
}

func TestMetaCharsetSniff(t *testing.T) {
	src := `<html><head><meta http-equiv="content-type" content="text/html; charset=utf-8"></head></html>`
	d, err := decoder.New(strings.NewReader(src), "")
	require.NoError(t, err)
	assert.Equal(t, src, readAll(t, d))
}

func TestNullBytesMapToSpaces(t *testing.T) {
	d, err := decoder.New(strings.NewReader("a\x00b"), "")
	require.NoError(t, err)
	assert.Equal(t, "a b", readAll(t, d))
}

func TestUCS4BigEndianBOM(t *testing.T) {
	src := []byte{0x00, 0x00, 0xFE, 0xFF, 0x00, 0x00, 0x00, 0x41}
	d, err := decoder.New(bytesReader(src), "")
	require.NoError(t, err)
	assert.Equal(t, decoder.UCS4BE, d.Encoding())
	assert.Equal(t, "A", readAll(t, d))
}

func TestUCS4RejectsSurrogate(t *testing.T) {
	src := []byte{0x00, 0x00, 0xFE, 0xFF, 0x00, 0x00, 0xD8, 0x00}
	d, err := decoder.New(bytesReader(src), "")
	require.NoError(t, err)
	_, err = d.ReadRune()
	assert.Error(t, err)
}

func bytesReader(b []byte) *strings.Reader {
	return strings.NewReader(string(b))
}
