package sgml_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sgml "github.com/lestrrat-go/sgml"
)

type node struct {
	typ       sgml.NodeType
	name      string
	value     string
	simulated bool
}

func drain(t *testing.T, r *sgml.Reader) []node {
	t.Helper()
	var got []node
	for {
		ok, err := r.Read()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, node{typ: r.Type(), name: r.Name(), value: r.Value(), simulated: r.IsSimulated()})
	}
	return got
}

func newHTMLReader(t *testing.T, src string) *sgml.Reader {
	t.Helper()
	r, err := sgml.New(
		sgml.WithDocType("html"),
		sgml.WithCaseFolding(sgml.CaseFoldLower),
		sgml.WithInputStream(strings.NewReader(src)),
	)
	require.NoError(t, err)
	return r
}

// spec scenario 1: auto-close of a sibling <p> inside <body>, both <p>
// elements surfacing under the real (not simulated) body.
func TestAutoCloseSiblingParagraphs(t *testing.T) {
	r := newHTMLReader(t, `<html><body><p>a<p>b</body></html>`)
	got := drain(t, r)

	var names []string
	for _, n := range got {
		if n.typ == sgml.Element || n.typ == sgml.EndElement {
			names = append(names, n.name)
		}
	}
	assert.Equal(t, []string{"html", "head", "head", "body", "p", "p", "p", "p", "body", "html"}, names)

	// the first <p>'s text is "a", the second's is "b", and neither leaks
	// into the other
	var texts []string
	for _, n := range got {
		if n.typ == sgml.Text {
			texts = append(texts, n.value)
		}
	}
	assert.Equal(t, []string{"a", "b"}, texts)
}

// spec scenario 2: a bare <p>x with no html/body at all gets the entire
// document skeleton inferred around it.
func TestTagInferenceSynthesizesSkeleton(t *testing.T) {
	r := newHTMLReader(t, `<p>x`)
	got := drain(t, r)

	require.NotEmpty(t, got)
	assert.Equal(t, sgml.Element, got[0].typ)
	assert.Equal(t, "html", got[0].name)
	assert.True(t, got[0].simulated)

	var names []string
	var sawP bool
	for _, n := range got {
		if n.typ == sgml.Element || n.typ == sgml.EndElement {
			names = append(names, n.name)
		}
		if n.typ == sgml.Element && n.name == "p" {
			sawP = true
		}
	}
	assert.True(t, sawP)
	// head opens and closes before body ever opens
	headOpen := indexOf(names, "head")
	headClose := indexOfFrom(names, "head", headOpen+1)
	bodyOpen := indexOf(names, "body")
	require.NotEqual(t, -1, headOpen)
	require.NotEqual(t, -1, headClose)
	require.NotEqual(t, -1, bodyOpen)
	assert.Less(t, headClose, bodyOpen)
}

// spec scenario 3: <script> content is scanned as CDATA, so an embedded
// "<b" never opens a <b> element.
func TestScriptIsCDataContent(t *testing.T) {
	r := newHTMLReader(t, `<script>if (a<b) x;</script>`)
	got := drain(t, r)

	for _, n := range got {
		assert.NotEqual(t, "b", n.name, "embedded %q must not open a b element", n.value)
	}

	var cdata []string
	for _, n := range got {
		if n.typ == sgml.CData {
			cdata = append(cdata, n.value)
		}
	}
	require.Len(t, cdata, 1)
	assert.Equal(t, "if (a<b) x;", cdata[0])
}

// spec scenario 4: a quote character inside a single-quoted attribute value
// is normalized, not treated as a terminator.
func TestAttributeQuoteNormalization(t *testing.T) {
	r := newHTMLReader(t, `<a href='u"1'>z</a>`)

	var sawA bool
	for {
		ok, err := r.Read()
		require.NoError(t, err)
		if !ok {
			break
		}
		if r.Type() == sgml.Element && r.Name() == "a" {
			sawA = true
			v, ok := r.AttributeValue("href")
			require.True(t, ok)
			assert.Equal(t, `u"1`, v)
		}
	}
	assert.True(t, sawA)
}

// spec scenario 5: named and numeric character references to the same code
// point all decode identically.
func TestCharacterReferencesAgree(t *testing.T) {
	r := newHTMLReader(t, `<p>caf&eacute; &#233; &#xE9;</p>`)
	got := drain(t, r)

	var text string
	for _, n := range got {
		if n.typ == sgml.Text {
			text += n.value
		}
	}
	parts := strings.Fields(strings.ReplaceAll(text, "caf", "caf "))
	require.GreaterOrEqual(t, len(parts), 3)
	last := parts[len(parts)-3:]
	assert.Equal(t, last[0], last[1])
	assert.Equal(t, last[1], last[2])
}

// spec scenario 6: an entity reference that no DTD declares (the document
// has no DTD of its own; only the built-in HTML DTD is loaded) still
// produces non-empty text, not a garbled sentinel code unit.
func TestUnresolvableEntityWithoutDtdIsNotSentinel(t *testing.T) {
	r := newHTMLReader(t, `&test`)
	got := drain(t, r)

	var text string
	for _, n := range got {
		if n.typ == sgml.Text {
			text += n.value
		}
	}
	require.NotEmpty(t, text)
	last := []rune(text)[len([]rune(text))-1]
	assert.NotEqual(t, rune(0xFFFF), last)
}

func indexOf(s []string, v string) int { return indexOfFrom(s, v, 0) }

func indexOfFrom(s []string, v string, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] == v {
			return i
		}
	}
	return -1
}
