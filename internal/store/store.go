// Package store provides storage backends for CareLink patient records and
// call summaries.
//
// It includes an in-memory store for tests and single-process runs, plus
// SQLite and PostgreSQL backends selected by DSN.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
)

// Store is the persistence surface for patient reference records and
// completed call summaries.
type Store interface {
	UpsertPatient(ctx context.Context, p models.Patient) error
	GetPatient(ctx context.Context, subjectID string) (models.Patient, error)
	ListPatients(ctx context.Context) ([]models.Patient, error)
	AddCallSummary(ctx context.Context, summary models.CallSummary) error
	ListCallSummaries(ctx context.Context, subjectID string) ([]models.CallSummary, error)
	Close() error
}

// Opts holds configuration options for store constructors.
type Opts struct {
	// DSN is the database connection string.
	DSN string
}

// Option defines a functional option for store configuration.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports which backend a DSN addresses: "postgres" for
// postgres:// URLs and key=value connection strings, "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps patients and call summaries in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	patients  map[string]models.Patient
	summaries []models.CallSummary
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{patients: make(map[string]models.Patient)}
}

// UpsertPatient inserts or replaces a patient record.
func (s *InMemoryStore) UpsertPatient(_ context.Context, p models.Patient) error {
	if p.SubjectID == "" {
		return models.ErrEmptySubjectID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.SubjectID] = p
	return nil
}

// GetPatient returns the patient record for a subject.
func (s *InMemoryStore) GetPatient(_ context.Context, subjectID string) (models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[subjectID]
	if !ok {
		return models.Patient{}, models.ErrPatientNotFound
	}
	return p, nil
}

// ListPatients returns all patient records ordered by subject ID.
func (s *InMemoryStore) ListPatients(_ context.Context) ([]models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// AddCallSummary appends a completed call summary.
func (s *InMemoryStore) AddCallSummary(_ context.Context, summary models.CallSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

// ListCallSummaries returns summaries, newest first. An empty subjectID
// returns every summary.
func (s *InMemoryStore) ListCallSummaries(_ context.Context, subjectID string) ([]models.CallSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CallSummary
	for _, cs := range s.summaries {
		if subjectID == "" || cs.SubjectID == subjectID {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
