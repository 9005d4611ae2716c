package browser

import "context"

// Client defines the browser operations used by the API handlers and the
// job processor.
type Client interface {
	IsRunning() bool
	GetEndpoint() string
	InspectElement(ctx context.Context, target Target) (*ElementInfo, error)
	TraverseElement(ctx context.Context, target Target, query TraverseQuery) ([]ElementInfo, error)
	RunSteps(ctx context.Context, target Target, steps []Step, progress ProgressFunc) (*RunResult, error)
}
