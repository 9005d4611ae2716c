package element

// Relative xpath queries issued by the traversal helpers. Results come back
// in document order, including for the reverse axes.
const (
	xpathParent      = ".."
	xpathChildren    = "./*"
	xpathDescendants = "./descendant::*"
	xpathAncestors   = "./ancestor::*"
	xpathNext        = "./following-sibling::*[1]"
	xpathPrev        = "./preceding-sibling::*[1]"
	xpathNextAll     = "./following-sibling::*"
	xpathPrevAll     = "./preceding-sibling::*"
)

// Axis names a traversal direction.
type Axis string

const (
	AxisParent      Axis = "parent"
	AxisChildren    Axis = "children"
	AxisDescendants Axis = "descendants"
	AxisAncestors   Axis = "ancestors"
	AxisNext        Axis = "next"
	AxisPrev        Axis = "prev"
	AxisNextAll     Axis = "next_all"
	AxisPrevAll     Axis = "prev_all"
	AxisSiblings    Axis = "siblings"
)

// Axes lists every supported axis.
var Axes = []Axis{
	AxisParent, AxisChildren, AxisDescendants, AxisAncestors,
	AxisNext, AxisPrev, AxisNextAll, AxisPrevAll, AxisSiblings,
}

var axisXPath = map[Axis]string{
	AxisParent:      xpathParent,
	AxisChildren:    xpathChildren,
	AxisDescendants: xpathDescendants,
	AxisAncestors:   xpathAncestors,
	AxisNext:        xpathNext,
	AxisPrev:        xpathPrev,
	AxisNextAll:     xpathNextAll,
	AxisPrevAll:     xpathPrevAll,
}

// Valid reports whether a is a known axis.
func (a Axis) Valid() bool {
	if a == AxisSiblings {
		return true
	}
	_, ok := axisXPath[a]
	return ok
}

// Traverse walks axis from e and applies the filters.
func (e *Element) Traverse(axis Axis, filters ...Filter) (Selection, error) {
	if axis == AxisSiblings {
		return e.Siblings(filters...)
	}
	xpath, ok := axisXPath[axis]
	if !ok {
		return nil, &UnknownAxisError{Axis: axis}
	}
	return e.query(xpath, filters)
}

// UnknownAxisError is returned by Traverse for an unsupported axis.
type UnknownAxisError struct {
	Axis Axis
}

func (e *UnknownAxisError) Error() string {
	return "unknown traversal axis: " + string(e.Axis)
}

func (e *Element) query(xpath string, filters []Filter) (Selection, error) {
	nodes, err := e.node.ElementsByXPath(xpath)
	if err != nil {
		return nil, err
	}
	return e.wrapAll(nodes).Filter(filters...)
}

// Parent returns the DOM parent, filtered. The owning page is Session.
func (e *Element) Parent(filters ...Filter) (Selection, error) {
	return e.query(xpathParent, filters)
}

// Children returns the element children.
func (e *Element) Children(filters ...Filter) (Selection, error) {
	return e.query(xpathChildren, filters)
}

// Descendants returns every element below e.
func (e *Element) Descendants(filters ...Filter) (Selection, error) {
	return e.query(xpathDescendants, filters)
}

// Ancestors returns every element above e, outermost first.
func (e *Element) Ancestors(filters ...Filter) (Selection, error) {
	return e.query(xpathAncestors, filters)
}

// Next returns the immediately following sibling if it passes the filters.
func (e *Element) Next(filters ...Filter) (Selection, error) {
	return e.query(xpathNext, filters)
}

// Prev returns the immediately preceding sibling if it passes the filters.
func (e *Element) Prev(filters ...Filter) (Selection, error) {
	return e.query(xpathPrev, filters)
}

// NextAll returns all following siblings.
func (e *Element) NextAll(filters ...Filter) (Selection, error) {
	return e.query(xpathNextAll, filters)
}

// PrevAll returns all preceding siblings in document order.
func (e *Element) PrevAll(filters ...Filter) (Selection, error) {
	return e.query(xpathPrevAll, filters)
}

// Siblings returns PrevAll followed by NextAll, then filtered. e itself is
// never included.
func (e *Element) Siblings(filters ...Filter) (Selection, error) {
	prev, err := e.PrevAll()
	if err != nil {
		return nil, err
	}
	next, err := e.NextAll()
	if err != nil {
		return nil, err
	}
	return prev.Union(next).Filter(filters...)
}

// Find runs a CSS query below e.
func (e *Element) Find(selector string, filters ...Filter) (Selection, error) {
	nodes, err := e.node.ElementsByCSS(selector)
	if err != nil {
		return nil, err
	}
	return e.wrapAll(nodes).Filter(filters...)
}

// FindX runs an xpath query relative to e.
func (e *Element) FindX(xpath string, filters ...Filter) (Selection, error) {
	return e.query(xpath, filters)
}
