package element

import (
	"strconv"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/ahrdadan/rodplus/internal/element/js"
)

// rodNode adapts a rod element to Node.
type rodNode struct {
	el *rod.Element
	id string
}

func newRodNode(el *rod.Element) (*rodNode, error) {
	desc, err := el.Describe(0, false)
	if err != nil {
		return nil, err
	}
	return &rodNode{el: el, id: strconv.Itoa(int(desc.BackendNodeID))}, nil
}

// Wrap decorates a rod element. The node identity is resolved here, so a
// stale element fails to wrap.
func Wrap(el *rod.Element, opts ...Option) (*Element, error) {
	node, err := newRodNode(el)
	if err != nil {
		return nil, err
	}
	return New(node, &RodSession{Page: el.Page()}, opts...), nil
}

// WrapAll decorates every element of els.
func WrapAll(els rod.Elements, opts ...Option) (Selection, error) {
	sel := make(Selection, 0, len(els))
	for _, el := range els {
		e, err := Wrap(el, opts...)
		if err != nil {
			return nil, err
		}
		sel = append(sel, e)
	}
	return sel, nil
}

// Find waits for the first element matching selector on page.
func Find(page *rod.Page, selector string, opts ...Option) (*Element, error) {
	el, err := page.Element(selector)
	if err != nil {
		return nil, err
	}
	return Wrap(el, opts...)
}

// FindX waits for the first element matching xpath on page.
func FindX(page *rod.Page, xpath string, opts ...Option) (*Element, error) {
	el, err := page.ElementX(xpath)
	if err != nil {
		return nil, err
	}
	return Wrap(el, opts...)
}

// FindAll returns every element currently matching selector on page.
func FindAll(page *rod.Page, selector string, opts ...Option) (Selection, error) {
	els, err := page.Elements(selector)
	if err != nil {
		return nil, err
	}
	return WrapAll(els, opts...)
}

func (n *rodNode) ObjectID() string {
	return n.id
}

func (n *rodNode) Attribute(name string) (*string, error) {
	return n.el.Attribute(name)
}

func (n *rodNode) Property(name string) (gson.JSON, error) {
	return n.el.Property(name)
}

func (n *rodNode) Call(fn *js.Function, args ...interface{}) (gson.JSON, error) {
	res, err := n.el.Eval(fn.Definition, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

func (n *rodNode) wrapAll(els rod.Elements) ([]Node, error) {
	nodes := make([]Node, 0, len(els))
	for _, el := range els {
		node, err := newRodNode(el)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (n *rodNode) ElementsByXPath(xpath string) ([]Node, error) {
	els, err := n.el.ElementsX(xpath)
	if err != nil {
		return nil, err
	}
	return n.wrapAll(els)
}

func (n *rodNode) ElementsByCSS(selector string) ([]Node, error) {
	els, err := n.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return n.wrapAll(els)
}

func (n *rodNode) Box() (Rect, error) {
	shape, err := n.el.Shape()
	if err != nil {
		return Rect{}, err
	}
	box := shape.Box()
	if box == nil {
		return Rect{}, nil
	}
	return Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (n *rodNode) Click() error {
	return n.el.Click(proto.InputMouseButtonLeft, 1)
}

func (n *rodNode) Clear() error {
	if err := n.el.SelectAllText(); err != nil {
		return err
	}
	return n.el.Input("")
}

func (n *rodNode) Input(text string) error {
	return n.el.Input(text)
}

// RodSession is the rod page that owns a wrapped element.
type RodSession struct {
	Page *rod.Page
}

// Mouse returns the page's mouse.
func (s *RodSession) Mouse() Mouse {
	return rodMouse{m: s.Page.Mouse}
}

type rodMouse struct {
	m *rod.Mouse
}

func (r rodMouse) MoveTo(x, y float64) error {
	return r.m.MoveTo(proto.Point{X: x, Y: y})
}

func (r rodMouse) Down(button Button, clicks int) error {
	return r.m.Down(proto.InputMouseButton(button), clicks)
}

func (r rodMouse) Up(button Button, clicks int) error {
	return r.m.Up(proto.InputMouseButton(button), clicks)
}
