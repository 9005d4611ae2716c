// Package element decorates a remote browser element with jQuery-style
// traversal, accessors and mouse-action helpers.
//
// An Element never owns the node it wraps. Every call goes back to the
// browser, so results always reflect the live page and any call can fail
// once the node is gone (see IsStale).
package element

import (
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/element/js"
)

// Node is the remote element reference an Element decorates.
type Node interface {
	// ObjectID identifies the browser-side node. Two handles to the same
	// node report the same id.
	ObjectID() string
	// Attribute returns the HTML attribute, or nil if it is absent.
	Attribute(name string) (*string, error)
	// Property returns a live DOM property.
	Property(name string) (gson.JSON, error)
	// Call evaluates fn with the node bound to this.
	Call(fn *js.Function, args ...interface{}) (gson.JSON, error)
	// ElementsByXPath runs an xpath query relative to the node.
	ElementsByXPath(xpath string) ([]Node, error)
	// ElementsByCSS runs a CSS query scoped to the node.
	ElementsByCSS(selector string) ([]Node, error)
	// Box returns the border box in page coordinates.
	Box() (Rect, error)
	Click() error
	Clear() error
	Input(text string) error
}

// Session is the page that owns a node.
type Session interface {
	Mouse() Mouse
}

// Mouse is the low-level pointer device of a session.
type Mouse interface {
	MoveTo(x, y float64) error
	Down(button Button, clicks int) error
	Up(button Button, clicks int) error
}

// Button is a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonMiddle Button = "middle"
	ButtonRight  Button = "right"
)

// Rect is a box in page coordinates.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Element is a remote element with extra helpers.
type Element struct {
	node      Node
	session   Session
	synthetic bool
	logger    *zap.Logger
}

// Option configures an Element.
type Option func(*Element)

// WithSyntheticEvents makes the action helpers dispatch DOM events through
// script instead of driving the native mouse. Use it where the driver has no
// native input support.
func WithSyntheticEvents() Option {
	return func(e *Element) {
		e.synthetic = true
	}
}

// WithLogger sets the logger used for action and display diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Element) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New wraps node, owned by session.
func New(node Node, session Session, opts ...Option) *Element {
	e := &Element{
		node:    node,
		session: session,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// wrap decorates a node found from e with the same session and options.
func (e *Element) wrap(node Node) *Element {
	return &Element{
		node:      node,
		session:   e.session,
		synthetic: e.synthetic,
		logger:    e.logger,
	}
}

func (e *Element) wrapAll(nodes []Node) Selection {
	sel := make(Selection, 0, len(nodes))
	for _, n := range nodes {
		sel = append(sel, e.wrap(n))
	}
	return sel
}

// Node returns the underlying remote reference.
func (e *Element) Node() Node {
	return e.node
}

// Session returns the page that owns the element.
func (e *Element) Session() Session {
	return e.session
}

// Key identifies the browser-side node; use it as a map key.
func (e *Element) Key() string {
	return e.node.ObjectID()
}

// Equal reports whether both handles point at the same browser-side node.
func (e *Element) Equal(other *Element) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.node.ObjectID() == other.node.ObjectID()
}
