package browser

import (
	"fmt"

	"github.com/ahrdadan/rodplus/internal/element"
)

// FilterSpec is the wire form of element filters. Every non-empty field must
// match.
type FilterSpec struct {
	Tag      string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	ID       string            `json:"id,omitempty" yaml:"id,omitempty"`
	Class    string            `json:"class,omitempty" yaml:"class,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Text     string            `json:"text,omitempty" yaml:"text,omitempty"`
	Selector string            `json:"selector,omitempty" yaml:"selector,omitempty"`
}

// Filters converts f into element filters.
func (f FilterSpec) Filters() []element.Filter {
	var filters []element.Filter
	if f.Tag != "" {
		filters = append(filters, element.Tag(f.Tag))
	}
	if f.ID != "" {
		filters = append(filters, element.WithID(f.ID))
	}
	if f.Class != "" {
		filters = append(filters, element.WithClass(f.Class))
	}
	for name, value := range f.Attrs {
		filters = append(filters, element.WithAttr(name, value))
	}
	if f.Text != "" {
		filters = append(filters, element.Contains(f.Text))
	}
	if f.Selector != "" {
		filters = append(filters, element.Matches(f.Selector))
	}
	return filters
}

// TraverseQuery walks one axis from an element.
type TraverseQuery struct {
	Axis   element.Axis `json:"axis"`
	Filter FilterSpec   `json:"filter,omitempty"`
}

// Validate rejects unknown axes.
func (q TraverseQuery) Validate() error {
	if !q.Axis.Valid() {
		return fmt.Errorf("unknown axis %q", q.Axis)
	}
	return nil
}

// Apply runs the query from el.
func (q TraverseQuery) Apply(el *element.Element) (element.Selection, error) {
	return el.Traverse(q.Axis, q.Filter.Filters()...)
}
