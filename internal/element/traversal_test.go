package element_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/rodplus/internal/element"
	"github.com/ahrdadan/rodplus/internal/element/fakedom"
)

func TestSiblings(t *testing.T) {
	p := newListPage()

	sel, err := p.wrap(p.c).Siblings()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, ids(t, sel))

	sel, err = p.wrap(p.a).Siblings()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, ids(t, sel))

	sel, err = p.wrap(p.c).Siblings(element.WithClass("item"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(t, sel))
}

func TestSiblingsExcludesSelf(t *testing.T) {
	p := newListPage()
	for _, n := range []*fakedom.Node{p.a, p.b, p.c, p.d} {
		self := p.wrap(n)
		siblings, err := self.Siblings()
		require.NoError(t, err)
		assert.False(t, siblings.Contains(self))
		assert.Len(t, siblings, 3)
	}
}

func TestNextPrev(t *testing.T) {
	p := newListPage()

	next, err := p.wrap(p.b).Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(t, next))

	prev, err := p.wrap(p.b).Prev()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(t, prev))

	none, err := p.wrap(p.d).Next()
	require.NoError(t, err)
	assert.True(t, none.Empty())

	none, err = p.wrap(p.a).Prev()
	require.NoError(t, err)
	assert.True(t, none.Empty())

	filtered, err := p.wrap(p.c).Next(element.WithClass("item"))
	require.NoError(t, err)
	assert.True(t, filtered.Empty())
}

func TestNextAllPrevAll(t *testing.T) {
	p := newListPage()

	next, err := p.wrap(p.b).NextAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, ids(t, next))

	prev, err := p.wrap(p.d).PrevAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(t, prev))

	prev, err = p.wrap(p.d).PrevAll(element.Not(element.WithClass("active")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(t, prev))
}

func TestParentAndAncestors(t *testing.T) {
	p := newListPage()

	parent, err := p.wrap(p.a).Parent()
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, ids(t, parent))

	parent, err = p.wrap(p.a).Parent(element.Tag("div"))
	require.NoError(t, err)
	assert.True(t, parent.Empty())

	ancestors, err := p.wrap(p.a).Ancestors()
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	tag, err := ancestors[0].TagName()
	require.NoError(t, err)
	assert.Equal(t, "body", tag)
	assert.Equal(t, p.ul.ObjectID(), ancestors[1].Key())

	top, err := element.New(p.doc.Body(), p.doc).Parent()
	require.NoError(t, err)
	assert.True(t, top.Empty())
}

func TestChildrenAndDescendants(t *testing.T) {
	p := newListPage()

	children, err := p.wrap(p.ul).Children(element.Tag("LI"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(t, children))

	children, err = p.wrap(p.ul).Children(element.Not(element.WithClass("item")))
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(t, children))

	desc, err := element.New(p.doc.Body(), p.doc).Descendants(element.Matches("li.active"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(t, desc))

	desc, err = element.New(p.doc.Body(), p.doc).Descendants(element.HasAttr("class"), element.Contains("Beta"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(t, desc))
}

func TestIndex(t *testing.T) {
	p := newListPage()
	for want, n := range []*fakedom.Node{p.a, p.b, p.c, p.d} {
		el := p.wrap(n)
		idx, err := el.Index()
		require.NoError(t, err)
		assert.Equal(t, want, idx)

		prev, err := el.PrevAll()
		require.NoError(t, err)
		assert.Equal(t, prev.Len(), idx)
	}
}

func TestFind(t *testing.T) {
	p := newListPage()

	sel, err := p.wrap(p.ul).Find("li.item")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(t, sel))

	sel, err = p.wrap(p.ul).Find("li", element.WithID("d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(t, sel))

	sel, err = p.wrap(p.ul).FindX("./following-sibling::*")
	require.NoError(t, err)
	assert.True(t, sel.Empty())
}

func TestTraverse(t *testing.T) {
	p := newListPage()
	el := p.wrap(p.b)

	for _, axis := range element.Axes {
		assert.True(t, axis.Valid(), axis)
		_, err := el.Traverse(axis)
		assert.NoError(t, err, axis)
	}

	sel, err := el.Traverse(element.AxisSiblings, element.WithClass("item"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(t, sel))

	_, err = el.Traverse("sideways")
	var axisErr *element.UnknownAxisError
	require.True(t, errors.As(err, &axisErr))
	assert.Equal(t, element.Axis("sideways"), axisErr.Axis)
	assert.False(t, element.Axis("sideways").Valid())
}

func TestTraversalKeepsOptions(t *testing.T) {
	p := newListPage()

	sel, err := p.wrap(p.a, element.WithSyntheticEvents()).Next()
	require.NoError(t, err)
	b, err := sel.First()
	require.NoError(t, err)

	_, err = b.DoubleClick()
	require.NoError(t, err)
	assert.Len(t, p.b.Events(), 1)
	assert.Empty(t, p.doc.Pointer().Log())
}

func TestTraversalOnStaleElement(t *testing.T) {
	p := newListPage()
	el := p.wrap(p.b)
	p.b.Destroy()

	_, err := el.Siblings()
	assert.True(t, element.IsStale(err))
	_, err = el.Index()
	assert.True(t, element.IsStale(err))
}
