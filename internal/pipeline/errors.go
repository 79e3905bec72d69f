package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// InferenceError reports which item and segment could not be analyzed. The
// whole request fails with it; no partial results are returned.
type InferenceError struct {
	ItemID  string
	Segment int
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for item %q (segment %d): %v", e.ItemID, e.Segment, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was the per-segment deadline.
func (e *InferenceError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
