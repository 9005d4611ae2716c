package element

import (
	"strings"

	"github.com/ahrdadan/rodplus/internal/element/js"
)

// Filter is a predicate applied to traversal results.
type Filter func(*Element) (bool, error)

func matchAll(e *Element, filters []Filter) (bool, error) {
	for _, f := range filters {
		ok, err := f(e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Tag matches elements by tag name, case-insensitively.
func Tag(name string) Filter {
	want := strings.ToLower(name)
	return func(e *Element) (bool, error) {
		tag, err := e.TagName()
		if err != nil {
			return false, err
		}
		return tag == want, nil
	}
}

// WithID matches elements whose id attribute equals id.
func WithID(id string) Filter {
	return WithAttr("id", id)
}

// WithClass matches elements carrying the class.
func WithClass(class string) Filter {
	return func(e *Element) (bool, error) {
		return e.HasClass(class)
	}
}

// WithAttr matches elements whose attribute equals value.
func WithAttr(name, value string) Filter {
	return func(e *Element) (bool, error) {
		v, err := e.node.Attribute(name)
		if err != nil {
			return false, err
		}
		return v != nil && *v == value, nil
	}
}

// HasAttr matches elements that carry the attribute at all.
func HasAttr(name string) Filter {
	return func(e *Element) (bool, error) {
		v, err := e.node.Attribute(name)
		if err != nil {
			return false, err
		}
		return v != nil, nil
	}
}

// Contains matches elements whose text contains substr.
func Contains(substr string) Filter {
	return func(e *Element) (bool, error) {
		text, err := e.Text()
		if err != nil {
			return false, err
		}
		return strings.Contains(text, substr), nil
	}
}

// Matches matches elements against a CSS selector, evaluated in the browser.
func Matches(selector string) Filter {
	return func(e *Element) (bool, error) {
		res, err := e.node.Call(js.Matches, selector)
		if err != nil {
			return false, err
		}
		return res.Bool(), nil
	}
}

// Not negates a filter.
func Not(f Filter) Filter {
	return func(e *Element) (bool, error) {
		ok, err := f(e)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// Func adapts a plain predicate.
func Func(fn func(*Element) bool) Filter {
	return func(e *Element) (bool, error) {
		return fn(e), nil
	}
}
