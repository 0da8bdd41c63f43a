package sgml_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sgml "github.com/lestrrat-go/sgml"
)

func TestWriteXMLRoundTripsWellFormedInput(t *testing.T) {
	r, err := sgml.New(
		sgml.WithDocType("html"),
		sgml.WithCaseFolding(sgml.CaseFoldLower),
		sgml.WithInputStream(strings.NewReader(`<html><head><title>t</title></head><body><p>hi</p></body></html>`)),
	)
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, sgml.WriteXML(&out, r))

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "<html>"))
	assert.Contains(t, got, "<title>t</title>")
	assert.Contains(t, got, "<p>hi</p>")
	assert.True(t, strings.HasSuffix(got, "</html>"))
}

func TestWriteXMLEscapesReservedCharacters(t *testing.T) {
	r, err := sgml.New(
		sgml.WithDocType("html"),
		sgml.WithCaseFolding(sgml.CaseFoldLower),
		sgml.WithInputStream(strings.NewReader(`<p>a & b < c</p>`)),
	)
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, sgml.WriteXML(&out, r))

	got := out.String()
	assert.Contains(t, got, "&amp;")
	assert.Contains(t, got, "&lt;")
}
