package fakedom

import (
	"fmt"
	"strings"
)

type attrTest struct {
	name  string
	value string
	exact bool
}

// selector is a single compound CSS selector.
type selector struct {
	tag     string
	id      string
	classes []string
	attrs   []attrTest
}

func parseSelector(s string) (*selector, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " >+~,:") {
		return nil, fmt.Errorf("fakedom: unsupported selector %q", s)
	}

	sel := &selector{}
	i := 0
	name := func() string {
		start := i
		for i < len(s) && !strings.ContainsRune("#.[", rune(s[i])) {
			i++
		}
		return s[start:i]
	}

	if s[0] != '*' {
		sel.tag = strings.ToLower(name())
	} else {
		i++
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			sel.id = name()
		case '.':
			i++
			sel.classes = append(sel.classes, name())
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("fakedom: unterminated attribute in %q", s)
			}
			body := s[i+1 : i+end]
			i += end + 1
			test := attrTest{name: body}
			if k, v, ok := strings.Cut(body, "="); ok {
				test = attrTest{name: k, value: strings.Trim(v, `"'`), exact: true}
			}
			sel.attrs = append(sel.attrs, test)
		default:
			return nil, fmt.Errorf("fakedom: unsupported selector %q", s)
		}
	}
	return sel, nil
}

func (sel *selector) match(n *Node) bool {
	if sel.tag != "" && sel.tag != n.tag {
		return false
	}
	if sel.id != "" && n.attrs["id"] != sel.id {
		return false
	}
	classes := strings.Fields(n.attrs["class"])
	for _, want := range sel.classes {
		found := false
		for _, c := range classes {
			if c == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, t := range sel.attrs {
		v, ok := n.attrs[t.name]
		if !ok || (t.exact && v != t.value) {
			return false
		}
	}
	return true
}
