package element_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/rodplus/internal/element"
	"github.com/ahrdadan/rodplus/internal/element/fakedom"
)

func newButton() (*fakedom.Document, *fakedom.Node, *element.Element) {
	doc := fakedom.NewDocument()
	node := doc.Body().Append("button", "id", "go").SetBox(10, 20, 100, 40)
	return doc, node, element.New(node, doc)
}

func TestNativeMouseActions(t *testing.T) {
	tests := []struct {
		name string
		act  func(*element.Element) (*element.Element, error)
		want []string
	}{
		{
			name: "double click",
			act:  (*element.Element).DoubleClick,
			want: []string{"move 60,40", "down left 1", "up left 1", "down left 2", "up left 2"},
		},
		{
			name: "context click",
			act:  (*element.Element).ContextClick,
			want: []string{"move 60,40", "down right 1", "up right 1"},
		},
		{
			name: "click and hold",
			act:  (*element.Element).ClickAndHold,
			want: []string{"move 60,40", "down left 1"},
		},
		{
			name: "hover centre",
			act:  func(e *element.Element) (*element.Element, error) { return e.MoveTo(0, 0) },
			want: []string{"move 60,40"},
		},
		{
			name: "hover offset",
			act:  func(e *element.Element) (*element.Element, error) { return e.MoveTo(5, 7) },
			want: []string{"move 15,27"},
		},
		{
			name: "hover single offset centres",
			act:  func(e *element.Element) (*element.Element, error) { return e.MoveTo(5, 0) },
			want: []string{"move 60,40"},
		},
		{
			name: "hover and click",
			act:  func(e *element.Element) (*element.Element, error) { return e.MoveToAndClick(0, 0) },
			want: []string{"move 60,40", "down left 1", "up left 1"},
		},
		{
			name: "hover and click single offset",
			act:  func(e *element.Element) (*element.Element, error) { return e.MoveToAndClick(0, 5) },
			want: []string{"move 10,25", "down left 1", "up left 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, node, el := newButton()

			got, err := tt.act(el)
			require.NoError(t, err)
			assert.Same(t, el, got)
			assert.Equal(t, tt.want, doc.Pointer().Log())
			assert.Empty(t, node.Events())
		})
	}
}

func TestSyntheticActions(t *testing.T) {
	tests := []struct {
		name string
		act  func(*element.Element) (*element.Element, error)
		want []fakedom.Event
	}{
		{
			name: "double click",
			act:  (*element.Element).DoubleClick,
			want: []fakedom.Event{{Name: "dblclick"}},
		},
		{
			name: "context click",
			act:  (*element.Element).ContextClick,
			want: []fakedom.Event{{Name: "click", Options: map[string]interface{}{"button": 2}}},
		},
		{
			name: "click and hold",
			act:  (*element.Element).ClickAndHold,
			want: []fakedom.Event{{Name: "mousedown"}},
		},
		{
			name: "hover",
			act:  func(e *element.Element) (*element.Element, error) { return e.MoveTo(3, 4) },
			want: []fakedom.Event{{Name: "mouseover"}},
		},
		{
			name: "hover and click",
			act:  func(e *element.Element) (*element.Element, error) { return e.MoveToAndClick(0, 0) },
			want: []fakedom.Event{{Name: "mouseover"}, {Name: "click"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fakedom.NewDocument()
			node := doc.Body().Append("div").SetBox(0, 0, 10, 10)
			el := element.New(node, doc, element.WithSyntheticEvents())

			_, err := tt.act(el)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.Events())
			assert.Empty(t, doc.Pointer().Log())
		})
	}
}

func TestReleaseIsAlwaysSynthetic(t *testing.T) {
	doc, node, el := newButton()

	_, err := el.ClickAndHold()
	require.NoError(t, err)
	_, err = el.Release()
	require.NoError(t, err)

	assert.Equal(t, []string{"move 60,40", "down left 1"}, doc.Pointer().Log())
	assert.Equal(t, []fakedom.Event{{Name: "mouseup"}}, node.Events())
}

func TestActionsChain(t *testing.T) {
	doc, _, src := newButton()
	dst := element.New(doc.Body().Append("div").SetBox(200, 0, 20, 20), doc)

	err := element.NewActions(doc).
		ClickAndHold(src).
		Release(dst).
		Perform()
	require.NoError(t, err)
	assert.Equal(t, []string{"move 60,40", "down left 1", "move 210,10", "up left 1"}, doc.Pointer().Log())

	doc.Pointer().Reset()
	err = element.NewActions(doc).MoveToElementWithOffset(dst, 1, 2).Click().Perform()
	require.NoError(t, err)
	assert.Equal(t, []string{"move 201,2", "down left 1", "up left 1"}, doc.Pointer().Log())
}

func TestActionsStopAtFirstError(t *testing.T) {
	doc, node, el := newButton()
	boom := errors.New("input dispatch failed")
	doc.Pointer().FailWith(boom)

	_, err := el.DoubleClick()
	assert.ErrorIs(t, err, boom)

	node.Destroy()
	doc.Pointer().FailWith(nil)
	_, err = el.ContextClick()
	assert.True(t, element.IsStale(err))
	assert.Empty(t, doc.Pointer().Log())
}

func TestCheckIsIdempotent(t *testing.T) {
	doc := fakedom.NewDocument()
	box := doc.Body().Append("input", "type", "checkbox")
	el := element.New(box, doc)

	require.NoError(t, el.Check())
	require.NoError(t, el.Check())
	checked, err := el.IsChecked()
	require.NoError(t, err)
	assert.True(t, checked)
	assert.Equal(t, 1, box.Clicks())

	require.NoError(t, el.Uncheck())
	require.NoError(t, el.Uncheck())
	checked, err = el.IsChecked()
	require.NoError(t, err)
	assert.False(t, checked)
	assert.Equal(t, 2, box.Clicks())
}

func TestTypeKeysReplacesValue(t *testing.T) {
	doc := fakedom.NewDocument()
	node := doc.Body().Append("input", "type", "text", "value", "old")
	el := element.New(node, doc)

	require.NoError(t, el.TypeKeys("new ", "value"))
	value, err := el.Value()
	require.NoError(t, err)
	assert.Equal(t, "new value", value)
	assert.Equal(t, 1, node.Clicks())

	require.NoError(t, el.SendKeys("!"))
	value, err = el.Value()
	require.NoError(t, err)
	assert.Equal(t, "new value!", value)

	require.NoError(t, el.Clear())
	value, err = el.Value()
	require.NoError(t, err)
	assert.Empty(t, value)
}
