package runs

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/tangle/pkg/store"
	"github.com/google/uuid"
)

// GetRun retrieves a single run by full ID and writes it as pretty-printed JSON.
func GetRun(ctx context.Context, client *store.Client, runID string, w io.Writer) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("invalid run ID format: must be a valid UUID")
	}

	run, err := client.GetRun(ctx, runID)
	if err != nil {
		if store.IsNotFound(err) {
			return &RunNotFoundError{RunID: runID}
		}
		return fmt.Errorf("failed to fetch run: %w", err)
	}

	if err := FormatJSON(w, run); err != nil {
		return fmt.Errorf("failed to format run: %w", err)
	}
	return nil
}

// RunNotFoundError is returned when no run or model exists for an ID.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run with ID '%s' not found", e.RunID)
}

// IsNotFound returns true if the error is a RunNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*RunNotFoundError)
	return ok
}
