package dtd_test

import (
	"strings"
	"testing"

	"github.com/lestrrat-go/sgml/internal/dtd"
	"github.com/lestrrat-go/sgml/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) (*dtd.DTD, []string) {
	t.Helper()
	e := entity.NewCallerReader("test.dtd", false)
	require.NoError(t, e.Open("", nil, strings.NewReader(src), ""))

	var logged []string
	d, err := dtd.Parse(e, nil, "", func(s string) { logged = append(logged, s) })
	require.NoError(t, err)
	return d, logged
}

func TestParseSimpleElement(t *testing.T) {
	d, _ := parse(t, `<!ELEMENT P O O (#PCDATA|A)* >`)
	p, ok := d.Element("p")
	require.True(t, ok)
	assert.True(t, p.StartTagOptional)
	assert.True(t, p.EndTagOptional)
	assert.True(t, p.Content.AllowsText())
	assert.Contains(t, p.Content.Members(), "A")
}

func TestParseRequiredTags(t *testing.T) {
	d, _ := parse(t, `<!ELEMENT HTML - - (HEAD, BODY)>`)
	html, ok := d.Element("HTML")
	require.True(t, ok)
	assert.False(t, html.StartTagOptional)
	assert.False(t, html.EndTagOptional)
	assert.ElementsMatch(t, []string{"HEAD", "BODY"}, html.Content.Members())
}

func TestParseDeclaredContentKeywords(t *testing.T) {
	d, _ := parse(t, `
		<!ELEMENT SCRIPT - - CDATA>
		<!ELEMENT BR - O EMPTY>
	`)
	script, _ := d.Element("script")
	assert.Equal(t, dtd.DeclaredCData, script.Content.Declared)

	br, _ := d.Element("br")
	assert.Equal(t, dtd.DeclaredEmpty, br.Content.Declared)
}

func TestParseExclusionsAndInclusions(t *testing.T) {
	d, _ := parse(t, `<!ELEMENT P - O (#PCDATA) -(P) +(SPAN)>`)
	p, _ := d.Element("p")
	assert.True(t, p.Exclusions["P"])
	assert.True(t, p.Inclusions["SPAN"])
}

func TestParseNameGroupElement(t *testing.T) {
	d, _ := parse(t, `<!ELEMENT (B|I|EM) - - (#PCDATA)>`)
	for _, n := range []string{"B", "I", "EM"} {
		e, ok := d.Element(n)
		require.True(t, ok, n)
		assert.True(t, e.Content.AllowsText())
	}
}

func TestParseAttlistTypesAndDefaults(t *testing.T) {
	d, _ := parse(t, `
		<!ELEMENT A - - (#PCDATA)>
		<!ATTLIST A
			href CDATA #REQUIRED
			target CDATA #IMPLIED
			rel (nofollow|noopener) "nofollow"
		>
	`)
	a, ok := d.Element("A")
	require.True(t, ok)

	href := a.Attributes["HREF"]
	require.NotNil(t, href)
	assert.Equal(t, dtd.AttrCDATA, href.Type)
	assert.Equal(t, dtd.PresenceRequired, href.Presence)

	target := a.Attributes["TARGET"]
	require.NotNil(t, target)
	assert.Equal(t, dtd.PresenceImplied, target.Presence)

	rel := a.Attributes["REL"]
	require.NotNil(t, rel)
	assert.Equal(t, dtd.AttrEnumeration, rel.Type)
	assert.Equal(t, "nofollow", rel.Default)
}

func TestParseGeneralAndParameterEntities(t *testing.T) {
	d, _ := parse(t, `
		<!ENTITY % block "P | DIV | UL">
		<!ENTITY copy "&#169;">
		<!ELEMENT DIV - - (%block;)>
	`)
	gen, ok := d.Entity("copy")
	require.True(t, ok)
	assert.Equal(t, "©", gen.Literal, "numeric character references expand immediately in entity literal text")

	pe, ok := d.ParameterEntity("block")
	require.True(t, ok)
	assert.Equal(t, "P | DIV | UL", pe.Literal)

	div, ok := d.Element("DIV")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"P", "DIV", "UL"}, div.Content.Members())
}

func TestParseCommentsAreSkipped(t *testing.T) {
	d, _ := parse(t, `
		<!-- this is a DTD comment -->
		<!ELEMENT P - O (#PCDATA)>
	`)
	_, ok := d.Element("p")
	assert.True(t, ok)
}

func TestParseIgnoreMarkedSection(t *testing.T) {
	d, _ := parse(t, `
		<![ IGNORE [
			<!ELEMENT SHOULDNOTEXIST - - EMPTY>
		]]>
		<!ELEMENT P - O (#PCDATA)>
	`)
	_, ok := d.Element("SHOULDNOTEXIST")
	assert.False(t, ok)
	_, ok = d.Element("p")
	assert.True(t, ok)
}

func TestParseIncludeMarkedSectionIsUnsupported(t *testing.T) {
	e := entity.NewCallerReader("test.dtd", false)
	require.NoError(t, e.Open("", nil, strings.NewReader(`<![ INCLUDE [ <!ELEMENT X - - EMPTY> ]]>`), ""))
	_, err := dtd.Parse(e, nil, "", nil)
	assert.Error(t, err)
}

func TestParseMixedConnectorsIsError(t *testing.T) {
	e := entity.NewCallerReader("test.dtd", false)
	require.NoError(t, e.Open("", nil, strings.NewReader(`<!ELEMENT P - O (A, B | C)>`), ""))
	_, err := dtd.Parse(e, nil, "", nil)
	assert.Error(t, err)
}

func TestParseDoctypeInternalSubset(t *testing.T) {
	d, _ := parse(t, `<!DOCTYPE GREETING [
		<!ELEMENT GREETING - - (#PCDATA)>
	]>`)
	assert.Equal(t, "GREETING", d.Name)
	_, ok := d.Element("GREETING")
	assert.True(t, ok)
}
