package dtd_test

import (
	"testing"

	"github.com/lestrrat-go/sgml/internal/dtd"
	"github.com/stretchr/testify/assert"
)

func TestContentModelAllowsText(t *testing.T) {
	cdata := &dtd.ContentModel{Declared: dtd.DeclaredCData}
	assert.True(t, cdata.AllowsText())

	empty := &dtd.ContentModel{Declared: dtd.DeclaredEmpty}
	assert.False(t, empty.AllowsText())

	mixed := &dtd.ContentModel{Root: &dtd.Group{Mixed: true}}
	assert.True(t, mixed.AllowsText())

	elementOnly := &dtd.ContentModel{Root: &dtd.Group{Members: []*dtd.Group{{Name: "P"}}}}
	assert.False(t, elementOnly.AllowsText())
}

func TestContentModelMembersFlattensOneLevel(t *testing.T) {
	cm := &dtd.ContentModel{
		Root: &dtd.Group{
			Connector: dtd.ConnOr,
			Members: []*dtd.Group{
				{Name: "P"},
				{Members: []*dtd.Group{{Name: "UL"}, {Name: "OL"}}, Connector: dtd.ConnOr},
			},
		},
	}
	assert.ElementsMatch(t, []string{"P", "UL", "OL"}, cm.Members())
}

func TestElementDeclCanContain(t *testing.T) {
	e := &dtd.ElementDecl{
		Content: &dtd.ContentModel{Root: &dtd.Group{Members: []*dtd.Group{{Name: "P"}, {Name: "DIV"}}}},
	}
	assert.True(t, e.CanContain("p"))
	assert.True(t, e.CanContain("DIV"))
	assert.False(t, e.CanContain("span"))
}

func TestDTDLookupsAreCaseInsensitiveForElements(t *testing.T) {
	d := dtd.New("html")
	d.Elements["P"] = &dtd.ElementDecl{Name: "P"}

	_, ok := d.Element("p")
	assert.True(t, ok)
	_, ok = d.Element("P")
	assert.True(t, ok)
	_, ok = d.Element("div")
	assert.False(t, ok)
}
