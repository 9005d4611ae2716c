// Package fakedom is an in-memory DOM that satisfies element.Node and
// element.Session. It answers the queries the element layer issues and
// records every input it receives, so element behaviour can be tested
// without a browser.
package fakedom

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/ysmood/gson"

	"github.com/ahrdadan/rodplus/internal/element"
	"github.com/ahrdadan/rodplus/internal/element/js"
)

// Event is a synthetic DOM event dispatched on a node.
type Event struct {
	Name    string
	Options map[string]interface{}
}

// Document owns a node tree and the page mouse.
type Document struct {
	mu     sync.Mutex
	root   *Node
	nextID int
	mouse  *Mouse
}

// NewDocument creates a document with an empty body.
func NewDocument() *Document {
	d := &Document{}
	d.mouse = &Mouse{doc: d}
	d.root = d.newNode("body")
	return d
}

// Body returns the root node.
func (d *Document) Body() *Node {
	return d.root
}

// Mouse implements element.Session.
func (d *Document) Mouse() element.Mouse {
	return d.mouse
}

// Pointer returns the recording mouse.
func (d *Document) Pointer() *Mouse {
	return d.mouse
}

func (d *Document) newNode(tag string) *Node {
	d.nextID++
	return &Node{
		doc:   d,
		id:    "node-" + strconv.Itoa(d.nextID),
		tag:   strings.ToLower(tag),
		attrs: map[string]string{},
		style: map[string]string{},
		props: map[string]interface{}{},
	}
}

// Node is a fake element.
type Node struct {
	doc      *Document
	id       string
	tag      string
	attrs    map[string]string
	order    []string
	style    map[string]string
	props    map[string]interface{}
	text     string
	value    string
	checked  bool
	box      element.Rect
	parent   *Node
	children []*Node
	fail     error
	clicks   int
	events   []Event
}

// Append adds a child with attributes given as name/value pairs.
func (n *Node) Append(tag string, attrs ...string) *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()

	child := n.doc.newNode(tag)
	for i := 0; i+1 < len(attrs); i += 2 {
		child.setAttr(attrs[i], attrs[i+1])
	}
	if v, ok := child.attrs["value"]; ok {
		child.value = v
	}
	_, child.checked = child.attrs["checked"]
	child.parent = n
	n.children = append(n.children, child)
	return child
}

// SetText sets the node's own text content.
func (n *Node) SetText(text string) *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.text = text
	return n
}

// SetBox sets the border box.
func (n *Node) SetBox(x, y, width, height float64) *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.box = element.Rect{X: x, Y: y, Width: width, Height: height}
	return n
}

// SetChecked sets the live checked property.
func (n *Node) SetChecked(checked bool) *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.checked = checked
	return n
}

// SetValue sets the live value property.
func (n *Node) SetValue(value string) *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.value = value
	return n
}

// SetProp registers a value answered by JavaScript, JQuery and Property
// lookups of expr.
func (n *Node) SetProp(expr string, value interface{}) *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.props[expr] = value
	return n
}

// Fail makes every later call on the node return err.
func (n *Node) Fail(err error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.fail = err
}

// Remove detaches the node the way node.remove() does in a browser. The
// handle stays readable but serialises to null, and input fails with the
// CDP detached-node error.
func (n *Node) Remove() {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.detach()
}

// Destroy removes the node and invalidates the handle, as when its execution
// context is gone. Every later call fails with the CDP missing-context error.
func (n *Node) Destroy() {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.detach()
	n.fail = errContextGone
}

var (
	errContextGone = &cdp.Error{Code: -32000, Message: "Cannot find context with specified id"}
	errDetached    = &cdp.Error{Code: -32000, Message: "Node is detached from document"}
	errNoQuads     = &cdp.Error{Code: -32000, Message: "Could not compute content quads."}
)

func (n *Node) detach() {
	if p := n.parent; p != nil {
		for i, c := range p.children {
			if c == n {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
		n.parent = nil
	}
}

// Clicks returns how many native clicks the node received.
func (n *Node) Clicks() int {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.clicks
}

// Events returns the synthetic events dispatched on the node.
func (n *Node) Events() []Event {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return append([]Event(nil), n.events...)
}

// InlineStyle returns an inline style property as stored.
func (n *Node) InlineStyle(name string) string {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.style[name]
}

func (n *Node) setAttr(name, value string) {
	if _, ok := n.attrs[name]; !ok {
		n.order = append(n.order, name)
	}
	n.attrs[name] = value
}

func (n *Node) removeAttr(name string) {
	if _, ok := n.attrs[name]; !ok {
		return
	}
	delete(n.attrs, name)
	for i, a := range n.order {
		if a == name {
			n.order = append(n.order[:i:i], n.order[i+1:]...)
			break
		}
	}
}

// ObjectID implements element.Node.
func (n *Node) ObjectID() string {
	return n.id
}

// Attribute implements element.Node.
func (n *Node) Attribute(name string) (*string, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return nil, n.fail
	}
	v, ok := n.attrs[name]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// Property implements element.Node.
func (n *Node) Property(name string) (gson.JSON, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return gson.JSON{}, n.fail
	}
	switch name {
	case "value":
		return jsonValue(n.value), nil
	case "checked":
		return jsonValue(n.checked), nil
	case "innerHTML":
		return jsonValue(n.innerHTML()), nil
	}
	if v, ok := n.props[name]; ok {
		return jsonValue(v), nil
	}
	return jsonValue(nil), nil
}

// Call implements element.Node by dispatching on the function name.
func (n *Node) Call(fn *js.Function, args ...interface{}) (gson.JSON, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return gson.JSON{}, n.fail
	}

	arg := func(i int) string {
		if i < len(args) {
			return fmt.Sprint(args[i])
		}
		return ""
	}

	switch fn.Name {
	case js.OuterHTML.Name:
		if !n.connected() {
			return jsonValue(nil), nil
		}
		return jsonValue(n.outerHTML()), nil
	case js.GetStyle.Name, js.ComputedStyle.Name:
		return jsonValue(n.style[arg(0)]), nil
	case js.SetStyle.Name:
		n.style[arg(0)] = arg(1)
		return jsonValue(nil), nil
	case js.SetAttribute.Name:
		n.setAttr(arg(0), arg(1))
		return jsonValue(nil), nil
	case js.RemoveAttribute.Name:
		n.removeAttr(arg(0))
		return jsonValue(nil), nil
	case js.AttributeNames.Name:
		return jsonValue(append([]string{}, n.order...)), nil
	case js.Matches.Name:
		sel, err := parseSelector(arg(0))
		if err != nil {
			return gson.JSON{}, err
		}
		return jsonValue(sel.match(n)), nil
	case js.TagName.Name:
		return jsonValue(n.tag), nil
	case js.Text.Name:
		return jsonValue(n.textContent()), nil
	case js.IsConnected.Name:
		return jsonValue(n.connected()), nil
	case js.Simulate.Name:
		ev := Event{Name: arg(0)}
		if len(args) > 1 {
			if opts, ok := args[1].(map[string]interface{}); ok {
				ev.Options = opts
			}
		}
		n.events = append(n.events, ev)
		return jsonValue(true), nil
	}

	for _, prefix := range []string{"this.", "$(this)."} {
		if expr, ok := strings.CutPrefix(fn.Name, prefix); ok {
			if v, ok := n.props[expr]; ok {
				return jsonValue(v), nil
			}
			return gson.JSON{}, fmt.Errorf("fakedom: %s is not defined", fn.Name)
		}
	}
	return gson.JSON{}, fmt.Errorf("fakedom: unsupported function %q", fn.Name)
}

// ElementsByXPath implements element.Node for the relative axis queries.
func (n *Node) ElementsByXPath(xpath string) ([]element.Node, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return nil, n.fail
	}

	var found []*Node
	switch xpath {
	case "..":
		if n.parent != nil {
			found = []*Node{n.parent}
		}
	case "./*":
		found = n.children
	case "./descendant::*":
		found = n.descendants()
	case "./ancestor::*":
		for p := n.parent; p != nil; p = p.parent {
			found = append([]*Node{p}, found...)
		}
	case "./following-sibling::*":
		found = n.following()
	case "./following-sibling::*[1]":
		if f := n.following(); len(f) > 0 {
			found = f[:1]
		}
	case "./preceding-sibling::*":
		found = n.preceding()
	case "./preceding-sibling::*[1]":
		if p := n.preceding(); len(p) > 0 {
			found = p[len(p)-1:]
		}
	default:
		return nil, fmt.Errorf("fakedom: unsupported xpath %q", xpath)
	}
	return toNodes(found), nil
}

// ElementsByCSS implements element.Node for compound selectors such as
// "li.item", "#main" or "input[type=checkbox]".
func (n *Node) ElementsByCSS(selector string) ([]element.Node, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return nil, n.fail
	}

	sel, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	var found []*Node
	for _, d := range n.descendants() {
		if sel.match(d) {
			found = append(found, d)
		}
	}
	return toNodes(found), nil
}

// Box implements element.Node.
func (n *Node) Box() (element.Rect, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return element.Rect{}, n.fail
	}
	if !n.connected() {
		return element.Rect{}, errNoQuads
	}
	return n.box, nil
}

// Click implements element.Node. Checkboxes toggle and radios select.
func (n *Node) Click() error {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	if !n.connected() {
		return errDetached
	}

	n.clicks++
	if n.tag == "input" {
		switch n.attrs["type"] {
		case "checkbox":
			n.checked = !n.checked
		case "radio":
			n.checked = true
		}
	}
	return nil
}

// Clear implements element.Node.
func (n *Node) Clear() error {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	if !n.connected() {
		return errDetached
	}
	n.value = ""
	return nil
}

// Input implements element.Node by appending to the value.
func (n *Node) Input(text string) error {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	if !n.connected() {
		return errDetached
	}
	n.value += text
	return nil
}

// jsonValue normalises v to what a decoded CDP result holds: float64,
// string, bool, nil, []interface{} or map[string]interface{}.
func jsonValue(v interface{}) gson.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return gson.New(nil)
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return gson.New(nil)
	}
	return gson.New(out)
}

func toNodes(found []*Node) []element.Node {
	out := make([]element.Node, len(found))
	for i, f := range found {
		out[i] = f
	}
	return out
}

func (n *Node) connected() bool {
	p := n
	for p.parent != nil {
		p = p.parent
	}
	return p == n.doc.root
}

func (n *Node) descendants() []*Node {
	var out []*Node
	for _, c := range n.children {
		out = append(out, c)
		out = append(out, c.descendants()...)
	}
	return out
}

func (n *Node) position() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

func (n *Node) following() []*Node {
	i := n.position()
	if i < 0 {
		return nil
	}
	return n.parent.children[i+1:]
}

func (n *Node) preceding() []*Node {
	i := n.position()
	if i < 0 {
		return nil
	}
	return n.parent.children[:i]
}

func (n *Node) textContent() string {
	var b strings.Builder
	b.WriteString(n.text)
	for _, c := range n.children {
		b.WriteString(c.textContent())
	}
	return b.String()
}

func (n *Node) innerHTML() string {
	var b strings.Builder
	b.WriteString(n.text)
	for _, c := range n.children {
		b.WriteString(c.outerHTML())
	}
	return b.String()
}

func (n *Node) outerHTML() string {
	var b strings.Builder
	b.WriteString("<" + n.tag)
	for _, name := range n.order {
		fmt.Fprintf(&b, " %s=%q", name, n.attrs[name])
	}
	if len(n.style) > 0 {
		names := make([]string, 0, len(n.style))
		for name := range n.style {
			names = append(names, name)
		}
		sort.Strings(names)
		decls := make([]string, 0, len(names))
		for _, name := range names {
			decls = append(decls, name+": "+n.style[name]+";")
		}
		fmt.Fprintf(&b, " style=%q", strings.Join(decls, " "))
	}
	b.WriteString(">")
	b.WriteString(n.innerHTML())
	b.WriteString("</" + n.tag + ">")
	return b.String()
}
