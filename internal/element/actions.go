package element

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/element/js"
)

// Actions queues mouse steps against a session and commits them in order on
// Perform. Element positions are read when the step runs, not when it is
// queued.
type Actions struct {
	mouse Mouse
	steps []func() error
}

// NewActions starts an empty sequence on the session's mouse.
func NewActions(s Session) *Actions {
	return &Actions{mouse: s.Mouse()}
}

func (a *Actions) add(step func() error) *Actions {
	a.steps = append(a.steps, step)
	return a
}

// MoveToElement moves the pointer to the centre of el.
func (a *Actions) MoveToElement(el *Element) *Actions {
	return a.add(func() error {
		box, err := el.node.Box()
		if err != nil {
			return err
		}
		return a.mouse.MoveTo(box.X+box.Width/2, box.Y+box.Height/2)
	})
}

// MoveToElementWithOffset moves the pointer to (x, y) from el's top-left
// corner.
func (a *Actions) MoveToElementWithOffset(el *Element, x, y float64) *Actions {
	return a.add(func() error {
		box, err := el.node.Box()
		if err != nil {
			return err
		}
		return a.mouse.MoveTo(box.X+x, box.Y+y)
	})
}

func (a *Actions) moveIfTarget(el *Element) {
	if el != nil {
		a.MoveToElement(el)
	}
}

func (a *Actions) press(button Button, clicks int) *Actions {
	return a.add(func() error {
		if err := a.mouse.Down(button, clicks); err != nil {
			return err
		}
		return a.mouse.Up(button, clicks)
	})
}

// Click clicks the left button at the current pointer position.
func (a *Actions) Click() *Actions {
	return a.press(ButtonLeft, 1)
}

// DoubleClick double-clicks el, or the current position when el is nil.
func (a *Actions) DoubleClick(el *Element) *Actions {
	a.moveIfTarget(el)
	a.press(ButtonLeft, 1)
	return a.press(ButtonLeft, 2)
}

// ContextClick right-clicks el, or the current position when el is nil.
func (a *Actions) ContextClick(el *Element) *Actions {
	a.moveIfTarget(el)
	return a.press(ButtonRight, 1)
}

// ClickAndHold presses the left button on el without releasing it.
func (a *Actions) ClickAndHold(el *Element) *Actions {
	a.moveIfTarget(el)
	return a.add(func() error {
		return a.mouse.Down(ButtonLeft, 1)
	})
}

// Release lets go of the left button over el.
func (a *Actions) Release(el *Element) *Actions {
	a.moveIfTarget(el)
	return a.add(func() error {
		return a.mouse.Up(ButtonLeft, 1)
	})
}

// Perform runs the queued steps and stops at the first failure.
func (a *Actions) Perform() error {
	for _, step := range a.steps {
		if err := step(); err != nil {
			return err
		}
	}
	a.steps = nil
	return nil
}

func (e *Element) simulate(event string, options map[string]interface{}) error {
	e.logger.Debug("Dispatching synthetic event", zap.String("event", event), zap.String("element", e.Key()))
	_, err := e.node.Call(js.Simulate, event, options)
	return err
}

// Click clicks the element with the client's native click.
func (e *Element) Click() error {
	return e.node.Click()
}

// Clear empties an editable element.
func (e *Element) Clear() error {
	return e.node.Clear()
}

// SendKeys types text into the element without clearing it.
func (e *Element) SendKeys(text ...string) error {
	return e.node.Input(strings.Join(text, ""))
}

// DoubleClick double-clicks the element.
func (e *Element) DoubleClick() (*Element, error) {
	if e.synthetic {
		return e, e.simulate("dblclick", nil)
	}
	return e, NewActions(e.session).DoubleClick(e).Perform()
}

// ContextClick right-clicks the element.
func (e *Element) ContextClick() (*Element, error) {
	if e.synthetic {
		return e, e.simulate("click", map[string]interface{}{"button": 2})
	}
	return e, NewActions(e.session).ContextClick(e).Perform()
}

// ClickAndHold presses the left button on the element and keeps it down.
func (e *Element) ClickAndHold() (*Element, error) {
	if e.synthetic {
		return e, e.simulate("mousedown", nil)
	}
	return e, NewActions(e.session).ClickAndHold(e).Perform()
}

// Release fires mouseup on the element. It always goes through a synthetic
// event so that it pairs with holds started by either path.
func (e *Element) Release() (*Element, error) {
	return e, e.simulate("mouseup", nil)
}

// MoveTo hovers the element: its centre, or (x, y) from its top-left corner
// when both offsets are non-zero.
func (e *Element) MoveTo(x, y float64) (*Element, error) {
	if e.synthetic {
		return e, e.simulate("mouseover", nil)
	}
	return e, e.hover(NewActions(e.session), x, y).Perform()
}

// MoveToAndClick moves to (x, y) from the element's top-left corner and
// clicks. Unlike MoveTo a single non-zero offset is honoured; only (0, 0)
// targets the centre.
func (e *Element) MoveToAndClick(x, y float64) (*Element, error) {
	if e.synthetic {
		if err := e.simulate("mouseover", nil); err != nil {
			return e, err
		}
		return e, e.simulate("click", nil)
	}
	a := NewActions(e.session)
	if x != 0 || y != 0 {
		a.MoveToElementWithOffset(e, x, y)
	} else {
		a.MoveToElement(e)
	}
	return e, a.Click().Perform()
}

func (e *Element) hover(a *Actions, x, y float64) *Actions {
	if x != 0 && y != 0 {
		return a.MoveToElementWithOffset(e, x, y)
	}
	return a.MoveToElement(e)
}

// Check clicks the element only if it is not already checked.
func (e *Element) Check() error {
	return e.setChecked(true)
}

// Uncheck clicks the element only if it is checked.
func (e *Element) Uncheck() error {
	return e.setChecked(false)
}

func (e *Element) setChecked(want bool) error {
	checked, err := e.IsChecked()
	if err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return e.Click()
}

// TypeKeys replaces the element's text: click, clear, then send. Some
// drivers reject text entry on inputs that were not clicked and cleared
// first.
func (e *Element) TypeKeys(text ...string) error {
	if err := e.Click(); err != nil {
		return err
	}
	if err := e.Clear(); err != nil {
		return err
	}
	return e.SendKeys(text...)
}
