package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/rodplus/internal/element"
	"github.com/ahrdadan/rodplus/internal/element/fakedom"
)

func strPtr(s string) *string { return &s }

type formPage struct {
	doc    *fakedom.Document
	form   *fakedom.Node
	name   *fakedom.Node
	agree  *fakedom.Node
	submit *fakedom.Node
}

func newFormPage() *formPage {
	doc := fakedom.NewDocument()
	form := doc.Body().Append("form", "id", "signup")
	return &formPage{
		doc:    doc,
		form:   form,
		name:   form.Append("input", "id", "name", "type", "text", "value", "old").SetBox(0, 0, 200, 20),
		agree:  form.Append("input", "id", "agree", "type", "checkbox", "class", "opt"),
		submit: form.Append("button", "id", "submit", "class", "primary").SetText("Send").SetBox(0, 40, 80, 20),
	}
}

func TestRunSteps(t *testing.T) {
	p := newFormPage()
	name := element.New(p.name, p.doc)

	var progress []int
	steps := []Step{
		{Action: ActionType, Text: "alice"},
		{Action: ActionCSS, Name: "color", Value: strPtr("red")},
		{Action: ActionCSS, Name: "color"},
		{Action: ActionAttr, Name: "data-state", Value: strPtr("dirty")},
		{Action: ActionAttr, Name: "data-state"},
		{Action: ActionTraverse, Query: TraverseQuery{Axis: element.AxisNextAll, Filter: FilterSpec{Class: "primary"}}},
	}

	res, err := Run(context.Background(), name, steps, func(done, total int, _ StepResult) {
		assert.Equal(t, len(steps), total)
		progress = append(progress, done)
	})
	require.NoError(t, err)
	require.Len(t, res.Steps, len(steps))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)

	value, err := name.Value()
	require.NoError(t, err)
	assert.Equal(t, "alice", value)

	assert.Equal(t, "red", res.Steps[2].Output)
	attr, ok := res.Steps[4].Output.(*string)
	require.True(t, ok)
	assert.Equal(t, "dirty", *attr)

	infos, ok := res.Steps[5].Output.([]ElementInfo)
	require.True(t, ok)
	require.Len(t, infos, 1)
	assert.Equal(t, "submit", infos[0].ID)
}

func TestRunStepsStopsAtFirstFailure(t *testing.T) {
	p := newFormPage()
	submit := element.New(p.submit, p.doc)

	steps := []Step{
		{Action: ActionHoverClick},
		{Action: ActionJavaScript, Expr: "undefinedThing"},
		{Action: ActionClick},
	}
	res, err := Run(context.Background(), submit, steps, nil)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, ActionJavaScript, stepErr.Action)
	assert.Len(t, res.Steps, 1)
	assert.Equal(t, 0, p.submit.Clicks())
	assert.Equal(t, []string{"move 40,50", "down left 1", "up left 1"}, p.doc.Pointer().Log())
}

func TestRunStepsStale(t *testing.T) {
	p := newFormPage()
	agree := element.New(p.agree, p.doc)

	res, err := Run(context.Background(), agree, []Step{{Action: ActionCheck}, {Action: ActionUncheck}}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Steps, 2)
	assert.Equal(t, 2, p.agree.Clicks())

	p.agree.Remove()
	_, err = Run(context.Background(), agree, []Step{{Action: ActionCheck}}, nil)
	assert.True(t, element.IsStale(err))
}

func TestRunStepsCanceled(t *testing.T) {
	p := newFormPage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, element.New(p.submit, p.doc), []Step{{Action: ActionClick}}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, p.submit.Clicks())
}

func TestRunStepsSynthetic(t *testing.T) {
	p := newFormPage()
	submit := element.New(p.submit, p.doc, element.WithSyntheticEvents())

	steps := []Step{
		{Action: ActionDoubleClick},
		{Action: ActionContextClick},
		{Action: ActionClickAndHold},
		{Action: ActionRelease},
		{Action: ActionHover},
	}
	_, err := Run(context.Background(), submit, steps, nil)
	require.NoError(t, err)

	var names []string
	for _, ev := range p.submit.Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"dblclick", "click", "mousedown", "mouseup", "mouseover"}, names)
	assert.Empty(t, p.doc.Pointer().Log())
}

func TestRunInspectStep(t *testing.T) {
	p := newFormPage()
	res, err := Run(context.Background(), element.New(p.agree, p.doc), []Step{{Action: ActionCheck}, {Action: ActionInspect}}, nil)
	require.NoError(t, err)

	info, ok := res.Steps[1].Output.(*ElementInfo)
	require.True(t, ok)
	assert.True(t, info.Checked)
	assert.Equal(t, 1, info.Index)
}

func TestValidateSteps(t *testing.T) {
	require.NoError(t, ValidateSteps([]Step{
		{Action: ActionClick},
		{Action: ActionCSS, Name: "color"},
		{Action: ActionJQuery, Expr: "text()"},
		{Action: ActionTraverse, Query: TraverseQuery{Axis: element.AxisSiblings}},
	}))

	tests := []struct {
		name  string
		steps []Step
		index int
	}{
		{name: "unknown", steps: []Step{{Action: ActionClick}, {Action: "explode"}}, index: 1},
		{name: "css without name", steps: []Step{{Action: ActionCSS}}, index: 0},
		{name: "attr without name", steps: []Step{{Action: ActionAttr}}, index: 0},
		{name: "javascript without expr", steps: []Step{{Action: ActionJavaScript}}, index: 0},
		{name: "bad axis", steps: []Step{{Action: ActionTraverse, Query: TraverseQuery{Axis: "up"}}}, index: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stepErr *StepError
			require.ErrorAs(t, ValidateSteps(tt.steps), &stepErr)
			assert.Equal(t, tt.index, stepErr.Index)
		})
	}

	assert.Error(t, ValidateSteps(nil))
}
