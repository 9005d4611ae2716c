package browser

import (
	"github.com/ahrdadan/rodplus/internal/element"
)

// snippetWidth is the column budget for ElementInfo.Display.
const snippetWidth = 120

// ElementInfo is a point-in-time reading of every element accessor.
type ElementInfo struct {
	Key        string            `json:"key" yaml:"key"`
	Tag        string            `json:"tag" yaml:"tag"`
	ID         string            `json:"id,omitempty" yaml:"id,omitempty"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty"`
	Value      string            `json:"value,omitempty" yaml:"value,omitempty"`
	Checked    bool              `json:"checked" yaml:"checked"`
	Text       string            `json:"text,omitempty" yaml:"text,omitempty"`
	Index      int               `json:"index" yaml:"index"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Size       element.Size      `json:"size" yaml:"size"`
	Location   element.Location  `json:"location" yaml:"location"`
	HTML       string            `json:"html" yaml:"html"`
	Display    string            `json:"display" yaml:"display"`
}

// Snapshot reads el into an ElementInfo. Geometry is best effort: an element
// without a layout box reports zero size and location. Every other failure,
// staleness included, aborts the snapshot.
func Snapshot(el *element.Element) (*ElementInfo, error) {
	info := &ElementInfo{Key: el.Key()}

	var err error
	if info.Tag, err = el.TagName(); err != nil {
		return nil, err
	}
	if info.ID, err = el.ID(); err != nil {
		return nil, err
	}
	if info.Type, err = el.Type(); err != nil {
		return nil, err
	}
	if info.Value, err = el.Value(); err != nil {
		return nil, err
	}
	if info.Checked, err = el.IsChecked(); err != nil {
		return nil, err
	}
	if info.Text, err = el.Text(); err != nil {
		return nil, err
	}
	if info.Index, err = el.Index(); err != nil {
		return nil, err
	}
	if info.Attributes, err = el.Attributes().Map(); err != nil {
		return nil, err
	}
	if info.HTML, err = el.HTML(); err != nil {
		return nil, err
	}
	info.Display = element.Snippet(info.HTML, snippetWidth)

	if info.Size, err = el.Size(); err != nil && element.IsStale(err) {
		return nil, err
	}
	if info.Location, err = el.Location(); err != nil && element.IsStale(err) {
		return nil, err
	}
	return info, nil
}

// SnapshotAll reads every element of sel.
func SnapshotAll(sel element.Selection) ([]ElementInfo, error) {
	out := make([]ElementInfo, 0, len(sel))
	for _, el := range sel {
		info, err := Snapshot(el)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}
