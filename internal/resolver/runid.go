// Package resolver turns user-supplied run references into full run IDs.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/tangle/pkg/store"
	"github.com/google/uuid"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// Latest refers to the most recently started run.
const Latest = "latest"

// RunStore is the subset of *store.Client used for resolution.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*store.Run, error)
	ScanRuns(ctx context.Context, prefix string) ([]string, error)
	ListRuns(ctx context.Context) ([]*store.Run, []string, error)
}

// ResolveRunID resolves a reference to a full run UUID. The reference may be
// a full UUID, a prefix of at least MinShortIDLength characters, or "latest".
func ResolveRunID(ctx context.Context, s RunStore, ref string) (string, error) {
	if ref == Latest {
		return latestRun(ctx, s)
	}

	if _, err := uuid.Parse(ref); err == nil && len(ref) == 36 {
		if _, err := s.GetRun(ctx, ref); err != nil {
			if store.IsNotFound(err) {
				return "", &NotFoundError{ShortID: ref}
			}
			return "", fmt.Errorf("failed to verify run existence: %w", err)
		}
		return ref, nil
	}

	if len(ref) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(ref))
	}

	matches, err := s.ScanRuns(ctx, strings.ToLower(ref))
	if err != nil {
		return "", fmt.Errorf("failed to search for run: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: ref}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: ref, Matches: matches}
	}
}

func latestRun(ctx context.Context, s RunStore) (string, error) {
	runs, _, err := s.ListRuns(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return "", &NotFoundError{ShortID: Latest}
	}
	// ListRuns is ordered oldest first
	return runs[len(runs)-1].ID, nil
}

// NotFoundError indicates no run matched the reference.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no runs found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple runs matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d runs", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists up to 10 matching IDs, then "...and N more".
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: ambiguous short ID '%s' matches %d runs:\n", err.ShortID, len(err.Matches))

	shown := min(len(err.Matches), 10)
	for _, m := range err.Matches[:shown] {
		fmt.Fprintf(&b, "  %s\n", m)
	}
	if len(err.Matches) > shown {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-shown)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the run.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var amb *AmbiguousError
	return errors.As(err, &amb)
}
