package queue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/browser"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with
// Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// StepProcessor runs element jobs against a browser.
type StepProcessor struct {
	client browser.Client
	logger *zap.Logger
}

// NewStepProcessor creates a processor backed by client.
func NewStepProcessor(client browser.Client, logger *zap.Logger) *StepProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepProcessor{
		client: client,
		logger: logger.Named("processor"),
	}
}

// Process executes one job. Invalid requests fail permanently; everything
// else is left to the retry policy.
func (p *StepProcessor) Process(ctx context.Context, job *Job, progress ProgressCallback) (interface{}, error) {
	req := job.Request
	if err := req.Validate(); err != nil {
		return nil, Permanent(fmt.Errorf("invalid job: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := req.Target()
	log := p.logger.With(zap.String("job_id", job.ID))

	switch req.Type {
	case JobTypeRun:
		total := len(req.Steps)
		progress(0, total, fmt.Sprintf("[Step 0/%d] Opening %s", total, req.URL))

		result, err := p.client.RunSteps(ctx, target, req.Steps, func(done, total int, r browser.StepResult) {
			log.Debug("Step finished", zap.Int("step", done), zap.String("action", string(r.Action)))
			progress(done, total, fmt.Sprintf("[Step %d/%d] %s", done, total, r.Action))
		})
		if err != nil {
			return nil, fmt.Errorf("steps failed: %w", err)
		}
		return result, nil

	case JobTypeInspect:
		progress(0, 1, "Inspecting element")
		info, err := p.client.InspectElement(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("inspect failed: %w", err)
		}
		progress(1, 1, "Element inspected")
		return info, nil

	case JobTypeTraverse:
		progress(0, 1, fmt.Sprintf("Traversing %s", req.Query.Axis))
		infos, err := p.client.TraverseElement(ctx, target, *req.Query)
		if err != nil {
			return nil, fmt.Errorf("traverse failed: %w", err)
		}
		progress(1, 1, fmt.Sprintf("Found %d elements", len(infos)))
		return infos, nil
	}

	return nil, Permanent(fmt.Errorf("unknown job type %q", req.Type))
}
