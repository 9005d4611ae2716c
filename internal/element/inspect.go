package element

import (
	"strings"

	"github.com/ysmood/gson"

	"github.com/ahrdadan/rodplus/internal/element/js"
)

// Size is the element's rendered size at read time.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Location is the element's top-left corner at read time.
type Location struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (e *Element) attrString(name string) (string, error) {
	v, err := e.node.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

// ID returns the id attribute, or "" when absent.
func (e *Element) ID() (string, error) {
	return e.attrString("id")
}

// Type returns the type attribute, or "" when absent.
func (e *Element) Type() (string, error) {
	return e.attrString("type")
}

// Value returns the live value property.
func (e *Element) Value() (string, error) {
	v, err := e.node.Property("value")
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.Str(), nil
}

// IsChecked reports the live checked state.
func (e *Element) IsChecked() (bool, error) {
	v, err := e.node.Property("checked")
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

// InnerHTML returns the markup of the element's children.
func (e *Element) InnerHTML() (string, error) {
	v, err := e.node.Property("innerHTML")
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

// HTML returns the element's own markup including its tag. A node removed
// from its document reports ErrStale even though the client still holds it.
func (e *Element) HTML() (string, error) {
	v, err := e.node.Call(js.OuterHTML)
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", ErrStale
	}
	return v.Str(), nil
}

// TagName returns the lower-cased tag name.
func (e *Element) TagName() (string, error) {
	v, err := e.node.Call(js.TagName)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

// Text returns the rendered text.
func (e *Element) Text() (string, error) {
	v, err := e.node.Call(js.Text)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

// Index is the number of preceding element siblings.
func (e *Element) Index() (int, error) {
	prev, err := e.PrevAll()
	if err != nil {
		return 0, err
	}
	return len(prev), nil
}

// Size returns the current width and height.
func (e *Element) Size() (Size, error) {
	box, err := e.node.Box()
	if err != nil {
		return Size{}, err
	}
	return Size{Width: box.Width, Height: box.Height}, nil
}

// Location returns the current top-left corner.
func (e *Element) Location() (Location, error) {
	box, err := e.node.Box()
	if err != nil {
		return Location{}, err
	}
	return Location{X: box.X, Y: box.Y}, nil
}

// Attr returns an attribute, nil when absent.
func (e *Element) Attr(name string) (*string, error) {
	return e.node.Attribute(name)
}

// HasClass reports whether the class attribute lists class.
func (e *Element) HasClass(class string) (bool, error) {
	classes, err := e.attrString("class")
	if err != nil {
		return false, err
	}
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true, nil
		}
	}
	return false, nil
}

// Style returns a view of the inline style object.
func (e *Element) Style() *Style {
	return &Style{el: e}
}

// Attributes returns a view of the attribute table.
func (e *Element) Attributes() *Attributes {
	return &Attributes{el: e}
}

// CSS reads an inline style property.
func (e *Element) CSS(name string) (string, error) {
	return e.Style().Get(name)
}

// SetCSS writes an inline style property and returns e for chaining.
func (e *Element) SetCSS(name, value string) (*Element, error) {
	if err := e.Style().Set(name, value); err != nil {
		return nil, err
	}
	return e, nil
}

// JavaScript evaluates this.<expr> against the element, e.g. "scrollHeight"
// or "getAttribute('href')".
func (e *Element) JavaScript(expr string) (gson.JSON, error) {
	return e.node.Call(js.Property(expr))
}

// JQuery evaluates $(this).<expr>. The page must have jQuery loaded.
func (e *Element) JQuery(expr string) (gson.JSON, error) {
	return e.node.Call(js.JQuery(expr))
}

// IsStale reports whether the node has left its document. A node whose
// execution context is gone counts as stale too.
func (e *Element) IsStale() (bool, error) {
	v, err := e.node.Call(js.IsConnected)
	if err != nil {
		if IsStale(err) {
			return true, nil
		}
		return false, err
	}
	return !v.Bool(), nil
}

// Style reads and writes the element's inline style object.
type Style struct {
	el *Element
}

// Get returns the inline value of a CSS property, "" when unset.
func (s *Style) Get(name string) (string, error) {
	v, err := s.el.node.Call(js.GetStyle, name)
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.Str(), nil
}

// Set writes the inline value of a CSS property.
func (s *Style) Set(name, value string) error {
	_, err := s.el.node.Call(js.SetStyle, name, value)
	return err
}

// Computed returns the resolved value after the cascade.
func (s *Style) Computed(name string) (string, error) {
	v, err := s.el.node.Call(js.ComputedStyle, name)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

// Attributes reads and writes the element's attribute table.
type Attributes struct {
	el *Element
}

// Get returns an attribute, nil when absent.
func (a *Attributes) Get(name string) (*string, error) {
	return a.el.node.Attribute(name)
}

// Set writes an attribute.
func (a *Attributes) Set(name, value string) error {
	_, err := a.el.node.Call(js.SetAttribute, name, value)
	return err
}

// Remove deletes an attribute.
func (a *Attributes) Remove(name string) error {
	_, err := a.el.node.Call(js.RemoveAttribute, name)
	return err
}

// Names lists attribute names in document order.
func (a *Attributes) Names() ([]string, error) {
	v, err := a.el.node.Call(js.AttributeNames)
	if err != nil {
		return nil, err
	}
	arr := v.Arr()
	names := make([]string, 0, len(arr))
	for _, n := range arr {
		names = append(names, n.Str())
	}
	return names, nil
}

// Map reads every attribute.
func (a *Attributes) Map() (map[string]string, error) {
	names, err := a.Names()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := a.Get(name)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[name] = *v
		}
	}
	return out, nil
}
