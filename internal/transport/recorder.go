package transport

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-connector/internal/connector"
)

// Recorder receives every finished connection attempt.
type Recorder interface {
	RecordAttempt(ctx context.Context, a connector.Attempt) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, a connector.Attempt) error

// RecordAttempt calls f(ctx, a).
func (f RecorderFunc) RecordAttempt(ctx context.Context, a connector.Attempt) error {
	return f(ctx, a)
}

// MultiRecorder sends each attempt to every recorder in order. One failing
// recorder does not stop the others; their errors are joined.
type MultiRecorder []Recorder

// RecordAttempt implements Recorder.
func (m MultiRecorder) RecordAttempt(ctx context.Context, a connector.Attempt) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordAttempt(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
