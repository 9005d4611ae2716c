package browser

import (
	"context"
	"fmt"

	"github.com/ahrdadan/rodplus/internal/element"
)

// Action names one element step.
type Action string

const (
	ActionClick        Action = "click"
	ActionDoubleClick  Action = "double_click"
	ActionContextClick Action = "context_click"
	ActionClickAndHold Action = "click_and_hold"
	ActionRelease      Action = "release"
	ActionHover        Action = "hover"
	ActionHoverClick   Action = "hover_click"
	ActionCheck        Action = "check"
	ActionUncheck      Action = "uncheck"
	ActionType         Action = "type"
	ActionClear        Action = "clear"
	ActionCSS          Action = "css"
	ActionAttr         Action = "attr"
	ActionJavaScript   Action = "javascript"
	ActionJQuery       Action = "jquery"
	ActionInspect      Action = "inspect"
	ActionTraverse     Action = "traverse"
)

// Step is one operation applied to the target element.
type Step struct {
	Action Action `json:"action"`
	// Text is typed by "type".
	Text string `json:"text,omitempty"`
	// Name is the CSS property or attribute for "css" and "attr".
	Name string `json:"name,omitempty"`
	// Value, when set, turns "css" and "attr" into writes.
	Value *string `json:"value,omitempty"`
	// Expr is evaluated by "javascript" and "jquery".
	Expr string `json:"expr,omitempty"`
	// X and Y offset "hover" and "hover_click" from the top-left corner.
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	// Query drives "traverse".
	Query TraverseQuery `json:"query,omitempty"`
}

// StepResult is the outcome of a successful step.
type StepResult struct {
	Index  int         `json:"index"`
	Action Action      `json:"action"`
	Output interface{} `json:"output,omitempty"`
}

// RunResult collects the results of a step script.
type RunResult struct {
	Steps []StepResult `json:"steps"`
}

// ProgressFunc is called after every successful step.
type ProgressFunc func(done, total int, result StepResult)

// StepError reports the step that stopped a script.
type StepError struct {
	Index  int
	Action Action
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Validate checks the step's arguments without touching the browser.
func (s Step) Validate() error {
	switch s.Action {
	case ActionClick, ActionDoubleClick, ActionContextClick, ActionClickAndHold,
		ActionRelease, ActionHover, ActionHoverClick, ActionCheck, ActionUncheck,
		ActionType, ActionClear, ActionInspect:
		return nil
	case ActionCSS, ActionAttr:
		if s.Name == "" {
			return fmt.Errorf("%s requires name", s.Action)
		}
	case ActionJavaScript, ActionJQuery:
		if s.Expr == "" {
			return fmt.Errorf("%s requires expr", s.Action)
		}
	case ActionTraverse:
		return s.Query.Validate()
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	return nil
}

// ValidateSteps checks every step and reports the first invalid one.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, s := range steps {
		if err := s.Validate(); err != nil {
			return &StepError{Index: i, Action: s.Action, Err: err}
		}
	}
	return nil
}

// Run applies steps to el in order and stops at the first failure, which is
// returned as a *StepError. Results of the steps that ran are kept.
func Run(ctx context.Context, el *element.Element, steps []Step, progress ProgressFunc) (*RunResult, error) {
	result := &RunResult{Steps: make([]StepResult, 0, len(steps))}
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return result, &StepError{Index: i, Action: s.Action, Err: err}
		}

		out, err := runStep(el, s)
		if err != nil {
			return result, &StepError{Index: i, Action: s.Action, Err: err}
		}

		sr := StepResult{Index: i, Action: s.Action, Output: out}
		result.Steps = append(result.Steps, sr)
		if progress != nil {
			progress(i+1, len(steps), sr)
		}
	}
	return result, nil
}

func runStep(el *element.Element, s Step) (interface{}, error) {
	var err error
	switch s.Action {
	case ActionClick:
		err = el.Click()
	case ActionDoubleClick:
		_, err = el.DoubleClick()
	case ActionContextClick:
		_, err = el.ContextClick()
	case ActionClickAndHold:
		_, err = el.ClickAndHold()
	case ActionRelease:
		_, err = el.Release()
	case ActionHover:
		_, err = el.MoveTo(s.X, s.Y)
	case ActionHoverClick:
		_, err = el.MoveToAndClick(s.X, s.Y)
	case ActionCheck:
		err = el.Check()
	case ActionUncheck:
		err = el.Uncheck()
	case ActionType:
		err = el.TypeKeys(s.Text)
	case ActionClear:
		err = el.Clear()
	case ActionCSS:
		if s.Value != nil {
			_, err = el.SetCSS(s.Name, *s.Value)
			return nil, err
		}
		return el.CSS(s.Name)
	case ActionAttr:
		if s.Value != nil {
			return nil, el.Attributes().Set(s.Name, *s.Value)
		}
		return el.Attr(s.Name)
	case ActionJavaScript:
		v, err := el.JavaScript(s.Expr)
		if err != nil {
			return nil, err
		}
		return v.Val(), nil
	case ActionJQuery:
		v, err := el.JQuery(s.Expr)
		if err != nil {
			return nil, err
		}
		return v.Val(), nil
	case ActionInspect:
		return Snapshot(el)
	case ActionTraverse:
		sel, err := s.Query.Apply(el)
		if err != nil {
			return nil, err
		}
		return SnapshotAll(sel)
	default:
		err = fmt.Errorf("unknown action %q", s.Action)
	}
	return nil, err
}
