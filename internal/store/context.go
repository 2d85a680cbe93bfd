package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// MaxPriorSummaries caps how many previous check-ins are folded into the
// reference context for a call.
const MaxPriorSummaries = 3

// ContextResolver builds the reference context for a subject out of the
// patient record and recent call summaries.
type ContextResolver struct {
	store Store
}

// NewContextResolver creates a resolver over the given store.
func NewContextResolver(s Store) *ContextResolver {
	return &ContextResolver{store: s}
}

// PatientContext renders the subject's record and recent check-in history as
// plain text for the oracle prompt.
func (r *ContextResolver) PatientContext(ctx context.Context, subjectID string) (string, error) {
	p, err := r.store.GetPatient(ctx, subjectID)
	if err != nil {
		return "", fmt.Errorf("failed to load patient %s: %w", subjectID, err)
	}

	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "Patient: %s\n", p.Name)
	}
	if p.Procedure != "" {
		fmt.Fprintf(&b, "Procedure: %s\n", p.Procedure)
	}
	if !p.SurgeryDate.IsZero() {
		fmt.Fprintf(&b, "Surgery date: %s\n", p.SurgeryDate.Format("2006-01-02"))
	}
	if p.RecoveryNotes != "" {
		fmt.Fprintf(&b, "Expected recovery: %s\n", p.RecoveryNotes)
	}

	summaries, err := r.store.ListCallSummaries(ctx, subjectID)
	if err != nil {
		// History is best effort; the record alone is still useful.
		slog.Warn("ContextResolver.PatientContext: summary lookup failed", "error", err, "subjectID", subjectID)
		return b.String(), nil
	}
	if len(summaries) > MaxPriorSummaries {
		summaries = summaries[:MaxPriorSummaries]
	}
	for _, cs := range summaries {
		fmt.Fprintf(&b, "Prior check-in %s: %s", cs.CompletedAt.Format("2006-01-02"), cs.TriageLevel)
		if cs.Rationale != "" {
			fmt.Fprintf(&b, " (%s)", cs.Rationale)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
