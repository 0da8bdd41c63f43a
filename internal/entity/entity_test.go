package entity_test

import (
	"strings"
	"testing"

	"github.com/lestrrat-go/sgml/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, s string) *entity.Entity {
	t.Helper()
	e := entity.NewCallerReader("[document]", false)
	require.NoError(t, e.Open("", nil, strings.NewReader(s), ""))
	return e
}

func TestReadCharNormalizesLineEndings(t *testing.T) {
	e := open(t, "a\r\nb\rc\nd")
	var got []rune
	for {
		got = append(got, e.LastChar)
		if e.LastChar == entity.EOF {
			break
		}
		e.ReadChar()
	}
	assert.Equal(t, []rune("a\nb\nc\nd"), got[:len(got)-1])
	assert.Equal(t, 4, e.Line, "each of the three breaks plus the starting line should bump Line")
}

func TestSkipWhitespace(t *testing.T) {
	e := open(t, "   \t\nhi")
	r := e.SkipWhitespace()
	assert.Equal(t, 'h', r)
}

func TestScanTokenNmtoken(t *testing.T) {
	e := open(t, "foo-bar.2:baz rest")
	tok, err := e.ScanToken(" ", true)
	require.NoError(t, err)
	assert.Equal(t, "foo-bar.2:baz", tok)
}

func TestScanTokenNmtokenRejectsBadStart(t *testing.T) {
	e := open(t, "1abc ")
	_, err := e.ScanToken(" ", true)
	assert.Error(t, err)
}

func TestScanLiteralExpandsNumericKeepsNamed(t *testing.T) {
	e := open(t, `caf&eacute; &#233; &#xE9;"`)
	lit, err := e.ScanLiteral('"')
	require.NoError(t, err)
	assert.Equal(t, "caf&eacute; é é", lit)
}

func TestScanToEndBasic(t *testing.T) {
	e := open(t, " a comment -->tail")
	content, err := e.ScanToEnd("-->")
	require.NoError(t, err)
	assert.Equal(t, " a comment ", content)
	assert.Equal(t, byte('t'), byte(e.LastChar))
}

func TestScanToEndOverlappingTerminator(t *testing.T) {
	// "--->" contains "-->" starting one character in; the KMP scan must
	// not falsely terminate early nor miss the real terminator.
	e := open(t, "x--->y")
	content, err := e.ScanToEnd("-->")
	require.NoError(t, err)
	assert.Equal(t, "x-", content)
	assert.Equal(t, 'y', e.LastChar)
}

func TestScanToEndUnclosedIsError(t *testing.T) {
	e := open(t, "never closes")
	_, err := e.ScanToEnd("-->")
	assert.Error(t, err)
}

func TestExpandCharEntityWindows1252Remap(t *testing.T) {
	e := entity.NewCallerReader("[document]", true) // IsHTML
	require.NoError(t, e.Open("", nil, strings.NewReader("&#x85;"), ""))
	e.ReadChar() // consume '&'
	r, _, err := e.ExpandCharEntity()
	require.NoError(t, err)
	assert.Equal(t, []rune{0x2026}, r, "0x85 remaps to HORIZONTAL ELLIPSIS under the HTML compatibility table")
}

func TestExpandCharEntityNoRemapWithoutHTML(t *testing.T) {
	e := entity.NewCallerReader("[document]", false)
	require.NoError(t, e.Open("", nil, strings.NewReader("&#x85;"), ""))
	e.ReadChar()
	r, _, err := e.ExpandCharEntity()
	require.NoError(t, err)
	assert.Equal(t, []rune{0x85}, r)
}

func TestSurrogatePairCombination(t *testing.T) {
	// U+1F600 GRINNING FACE as a surrogate pair: D83D DE00
	e := open(t, `&#xD83D;&#xDE00;"`)
	lit, err := e.ScanLiteral('"')
	require.NoError(t, err)
	assert.Equal(t, string(rune(0x1F600)), lit)
}

func TestSurrogateHighWithoutFollowingRefIsKeptLiteral(t *testing.T) {
	e := open(t, `&#xD83D;&amp;"`)
	lit, err := e.ScanLiteral('"')
	require.NoError(t, err)
	assert.Equal(t, string(rune(0xD83D))+"&amp;", lit)
}
