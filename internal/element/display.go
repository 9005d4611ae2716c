package element

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	// StalePlaceholder is what String prints for a node that no longer exists.
	StalePlaceholder = "<StaleElement>"

	defaultWidth = 80
)

// TerminalWidth probes the column count String fits its output to. Any error
// falls back to 80 columns.
var TerminalWidth = probeTerminalWidth

func probeTerminalWidth() (int, error) {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return defaultWidth, nil
	}
	w, _, err := term.GetSize(int(fd))
	if err != nil {
		return 0, err
	}
	return w, nil
}

func displayWidth() int {
	w, err := TerminalWidth()
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// String renders the element's markup on one line, cut to the terminal
// width. It never fails: a stale node prints StalePlaceholder.
func (e *Element) String() string {
	html, err := e.HTML()
	if err != nil {
		if IsStale(err) {
			return StalePlaceholder
		}
		e.logger.Debug("Failed to render element", zap.Error(err))
		return "<Element: " + err.Error() + ">"
	}
	return Snippet(html, displayWidth())
}

// Snippet collapses whitespace runs in html to single spaces and, when the
// result would not fit in width columns, cuts it to width-5 bytes plus "...".
// The cut never splits a UTF-8 sequence.
func Snippet(html string, width int) string {
	s := strings.Join(strings.Fields(html), " ")
	if len(s) < width-2 {
		return s
	}

	cut := width - 5
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
