package resolver_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lestrrat-go/sgml/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileResolver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.sgml")
	require.NoError(t, os.WriteFile(path, []byte("<p>hi</p>"), 0o644))

	var r resolver.FileResolver
	res, err := r.GetContent(path, "")
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(body))
}

func TestFileResolverNotFound(t *testing.T) {
	var r resolver.FileResolver
	_, err := r.GetContent("/no/such/file.sgml", "")
	assert.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestEmbeddedResolver(t *testing.T) {
	e := resolver.NewEmbeddedResolver(map[string]string{"asset://x": "<x/>"})
	res, err := e.GetContent("asset://x", "")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, "<x/>", string(body))

	_, err = e.GetContent("asset://missing", "")
	assert.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestBuiltinResolverRecognizesHTMLDTD(t *testing.T) {
	b := resolver.NewBuiltinResolver(nil)

	for _, uri := range []string{"Html.dtd", "html.dtd", "http://www.w3.org/TR/html4/strict.dtd"} {
		assert.True(t, resolver.IsBuiltinHTMLDTD(uri), uri)
		res, err := b.GetContent(uri, "")
		require.NoError(t, err, uri)
		body, _ := io.ReadAll(res.Body)
		assert.Contains(t, string(body), "<!ELEMENT HTML")
	}

	assert.False(t, resolver.IsBuiltinHTMLDTD("http://example.com/other.dtd"))
}

func TestChainFallsThrough(t *testing.T) {
	e1 := resolver.NewEmbeddedResolver(map[string]string{"a": "1"})
	e2 := resolver.NewEmbeddedResolver(map[string]string{"b": "2"})
	c := resolver.Chain{e1, e2}

	res, err := c.GetContent("b", "")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, "2", string(body))

	_, err = c.GetContent("missing", "")
	assert.ErrorIs(t, err, resolver.ErrNotFound)
}
