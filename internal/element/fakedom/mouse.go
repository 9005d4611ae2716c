package fakedom

import (
	"fmt"

	"github.com/ahrdadan/rodplus/internal/element"
)

// Mouse records pointer input as readable log lines such as "move 10,20",
// "down left 1" and "up right 1".
type Mouse struct {
	doc *Document
	log []string
	err error
}

// FailWith makes later mouse input fail with err.
func (m *Mouse) FailWith(err error) {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	m.err = err
}

// Log returns the recorded input.
func (m *Mouse) Log() []string {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	return append([]string(nil), m.log...)
}

// Reset clears the log.
func (m *Mouse) Reset() {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	m.log = nil
}

func (m *Mouse) record(line string) error {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.log = append(m.log, line)
	return nil
}

func (m *Mouse) MoveTo(x, y float64) error {
	return m.record(fmt.Sprintf("move %g,%g", x, y))
}

func (m *Mouse) Down(button element.Button, clicks int) error {
	return m.record(fmt.Sprintf("down %s %d", button, clicks))
}

func (m *Mouse) Up(button element.Button, clicks int) error {
	return m.record(fmt.Sprintf("up %s %d", button, clicks))
}
