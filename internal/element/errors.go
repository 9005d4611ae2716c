package element

import (
	"errors"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
)

var (
	// ErrStale reports an operation on a node that no longer exists.
	ErrStale = errors.New("stale element reference")
	// ErrNoElements is returned when a selection is empty.
	ErrNoElements = errors.New("no elements in selection")
)

// CDP messages raised when the node or its execution context is gone.
var staleMessages = []string{
	"could not find node with given id",
	"no node with given id found",
	"could not find object with given id",
	"cannot find context with specified id",
	"execution context was destroyed",
	"node is detached from document",
}

// IsStale reports whether err means the browser-side node no longer exists.
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStale) {
		return true
	}

	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return true
	}

	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		msg := strings.ToLower(cdpErr.Message)
		for _, m := range staleMessages {
			if strings.Contains(msg, m) {
				return true
			}
		}
	}
	return false
}
