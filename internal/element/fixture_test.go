package element_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/rodplus/internal/element"
	"github.com/ahrdadan/rodplus/internal/element/fakedom"
)

// listPage is:
//
//	<body><ul id="list">
//	  <li id="a" class="item first">Alpha</li>
//	  <li id="b" class="item">Beta</li>
//	  <li id="c" class="item active">Gamma</li>
//	  <li id="d">Delta</li>
//	</ul></body>
type listPage struct {
	doc        *fakedom.Document
	ul         *fakedom.Node
	a, b, c, d *fakedom.Node
}

func newListPage() *listPage {
	doc := fakedom.NewDocument()
	ul := doc.Body().Append("ul", "id", "list")
	return &listPage{
		doc: doc,
		ul:  ul,
		a:   ul.Append("li", "id", "a", "class", "item first").SetText("Alpha"),
		b:   ul.Append("li", "id", "b", "class", "item").SetText("Beta"),
		c:   ul.Append("li", "id", "c", "class", "item active").SetText("Gamma"),
		d:   ul.Append("li", "id", "d").SetText("Delta"),
	}
}

func (p *listPage) wrap(n *fakedom.Node, opts ...element.Option) *element.Element {
	return element.New(n, p.doc, opts...)
}

func ids(t *testing.T, sel element.Selection) []string {
	t.Helper()
	out := make([]string, 0, len(sel))
	for _, e := range sel {
		id, err := e.ID()
		require.NoError(t, err)
		out = append(out, id)
	}
	return out
}
