// Package store provides storage backends for CareLink patient records and
// call summaries.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a PostgreSQL-backed store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// UpsertPatient inserts or replaces a patient record.
func (s *PostgresStore) UpsertPatient(ctx context.Context, p models.Patient) error {
	if p.SubjectID == "" {
		return models.ErrEmptySubjectID
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (subject_id, name, phone_number, procedure, surgery_date, recovery_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subject_id) DO UPDATE SET
			name = EXCLUDED.name,
			phone_number = EXCLUDED.phone_number,
			procedure = EXCLUDED.procedure,
			surgery_date = EXCLUDED.surgery_date,
			recovery_notes = EXCLUDED.recovery_notes,
			updated_at = EXCLUDED.updated_at`,
		p.SubjectID, p.Name, p.PhoneNumber, p.Procedure, p.SurgeryDate, p.RecoveryNotes, now, now)
	if err != nil {
		slog.Error("PostgresStore.UpsertPatient failed", "error", err, "subjectID", p.SubjectID)
		return fmt.Errorf("failed to upsert patient %s: %w", p.SubjectID, err)
	}
	slog.Debug("PostgresStore.UpsertPatient succeeded", "subjectID", p.SubjectID)
	return nil
}

// GetPatient returns the patient record for a subject.
func (s *PostgresStore) GetPatient(ctx context.Context, subjectID string) (models.Patient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject_id, name, phone_number, procedure, surgery_date, recovery_notes, created_at, updated_at
		FROM patients WHERE subject_id = $1`, subjectID)
	p, err := scanPatient(row.Scan)
	if err == sql.ErrNoRows {
		return models.Patient{}, models.ErrPatientNotFound
	}
	if err != nil {
		slog.Error("PostgresStore.GetPatient failed", "error", err, "subjectID", subjectID)
		return models.Patient{}, fmt.Errorf("failed to get patient %s: %w", subjectID, err)
	}
	return p, nil
}

// ListPatients returns all patient records ordered by subject ID.
func (s *PostgresStore) ListPatients(ctx context.Context) ([]models.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, name, phone_number, procedure, surgery_date, recovery_notes, created_at, updated_at
		FROM patients ORDER BY subject_id`)
	if err != nil {
		slog.Error("PostgresStore.ListPatients query failed", "error", err)
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()
	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient row: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patient rows: %w", err)
	}
	return patients, nil
}

// AddCallSummary appends a completed call summary.
func (s *PostgresStore) AddCallSummary(ctx context.Context, summary models.CallSummary) error {
	complications, transcript, err := marshalSummaryJSON(summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO call_summaries (id, session_id, subject_id, triage_level, rationale, matched_complications, recommended_action, transcript, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		summary.ID, summary.SessionID, summary.SubjectID, string(summary.TriageLevel),
		summary.Rationale, complications, summary.RecommendedAction, transcript, summary.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore.AddCallSummary failed", "error", err, "sessionID", summary.SessionID)
		return fmt.Errorf("failed to insert call summary for session %s: %w", summary.SessionID, err)
	}
	slog.Debug("PostgresStore.AddCallSummary succeeded", "sessionID", summary.SessionID, "triageLevel", summary.TriageLevel)
	return nil
}

// ListCallSummaries returns summaries newest first. An empty subjectID
// returns every summary.
func (s *PostgresStore) ListCallSummaries(ctx context.Context, subjectID string) ([]models.CallSummary, error) {
	query := `
		SELECT id, session_id, subject_id, triage_level, rationale, matched_complications, recommended_action, transcript, completed_at
		FROM call_summaries`
	args := []interface{}{}
	if subjectID != "" {
		query += ` WHERE subject_id = $1`
		args = append(args, subjectID)
	}
	query += ` ORDER BY completed_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore.ListCallSummaries query failed", "error", err)
		return nil, fmt.Errorf("failed to query call summaries: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
