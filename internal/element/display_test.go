package element_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/rodplus/internal/element"
	"github.com/ahrdadan/rodplus/internal/element/fakedom"
)

func fixedWidth(t *testing.T, width int, err error) {
	t.Helper()
	orig := element.TerminalWidth
	element.TerminalWidth = func() (int, error) { return width, err }
	t.Cleanup(func() { element.TerminalWidth = orig })
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		width int
		want  string
	}{
		{
			name:  "collapses whitespace",
			html:  "<p>\n   hello \t  world\n</p>",
			width: 80,
			want:  "<p> hello world </p>",
		},
		{
			name:  "fits below width-2",
			html:  strings.Repeat("x", 17),
			width: 20,
			want:  strings.Repeat("x", 17),
		},
		{
			name:  "cut at width-2",
			html:  strings.Repeat("x", 18),
			width: 20,
			want:  strings.Repeat("x", 15) + "...",
		},
		{
			name:  "cut long",
			html:  strings.Repeat("y", 200),
			width: 80,
			want:  strings.Repeat("y", 75) + "...",
		},
		{
			name:  "cut keeps runes whole",
			html:  strings.Repeat("a", 14) + "é" + strings.Repeat("b", 10),
			width: 20,
			want:  strings.Repeat("a", 14) + "...",
		},
		{
			name:  "tiny width",
			html:  "<div></div>",
			width: 3,
			want:  "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, element.Snippet(tt.html, tt.width))
		})
	}
}

func TestStringUsesTerminalWidth(t *testing.T) {
	p := newListPage()
	p.a.SetText(strings.Repeat("z", 100))

	fixedWidth(t, 40, nil)
	got := p.wrap(p.a).String()
	assert.Len(t, got, 38)
	assert.True(t, strings.HasPrefix(got, `<li id="a"`))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestStringFallsBackTo80Columns(t *testing.T) {
	p := newListPage()
	p.a.SetText(strings.Repeat("z", 100))

	fixedWidth(t, 0, errors.New("not a terminal"))
	assert.Len(t, p.wrap(p.a).String(), 78)
}

func TestStringShortElement(t *testing.T) {
	p := newListPage()
	fixedWidth(t, 120, nil)
	assert.Equal(t, `<li id="b" class="item">Beta</li>`, p.wrap(p.b).String())
}

func TestStringStaleElement(t *testing.T) {
	p := newListPage()
	el := p.wrap(p.c)
	p.c.Destroy()
	assert.Equal(t, element.StalePlaceholder, el.String())
	assert.Equal(t, "<StaleElement>", el.String())
}

func TestStringRemovedElement(t *testing.T) {
	p := newListPage()
	el := p.wrap(p.c)
	p.c.Remove()

	// The handle still answers reads, but the node left its document.
	tag, err := el.TagName()
	require.NoError(t, err)
	assert.Equal(t, "li", tag)

	assert.Equal(t, element.StalePlaceholder, el.String())

	_, err = el.HTML()
	assert.ErrorIs(t, err, element.ErrStale)
	assert.True(t, element.IsStale(err))

	stale, err := el.IsStale()
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestStringOtherError(t *testing.T) {
	doc := fakedom.NewDocument()
	node := doc.Body().Append("div")
	node.Fail(errors.New("websocket closed"))
	assert.Equal(t, "<Element: websocket closed>", element.New(node, doc).String())
}
