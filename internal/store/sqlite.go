// Package store provides storage backends for CareLink patient records and
// call summaries.
//
// This file implements a SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a SQLite-backed store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store based on provided options.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite database", "error", err, "dsn", dsn)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")
	return &SQLiteStore{db: db}, nil
}

// UpsertPatient inserts or replaces a patient record.
func (s *SQLiteStore) UpsertPatient(ctx context.Context, p models.Patient) error {
	if p.SubjectID == "" {
		return models.ErrEmptySubjectID
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (subject_id, name, phone_number, procedure, surgery_date, recovery_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			name = excluded.name,
			phone_number = excluded.phone_number,
			procedure = excluded.procedure,
			surgery_date = excluded.surgery_date,
			recovery_notes = excluded.recovery_notes,
			updated_at = excluded.updated_at`,
		p.SubjectID, p.Name, p.PhoneNumber, p.Procedure, p.SurgeryDate, p.RecoveryNotes, now, now)
	if err != nil {
		slog.Error("SQLiteStore.UpsertPatient failed", "error", err, "subjectID", p.SubjectID)
		return fmt.Errorf("failed to upsert patient %s: %w", p.SubjectID, err)
	}
	slog.Debug("SQLiteStore.UpsertPatient succeeded", "subjectID", p.SubjectID)
	return nil
}

// GetPatient returns the patient record for a subject.
func (s *SQLiteStore) GetPatient(ctx context.Context, subjectID string) (models.Patient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject_id, name, phone_number, procedure, surgery_date, recovery_notes, created_at, updated_at
		FROM patients WHERE subject_id = ?`, subjectID)
	p, err := scanPatient(row.Scan)
	if err == sql.ErrNoRows {
		return models.Patient{}, models.ErrPatientNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.GetPatient failed", "error", err, "subjectID", subjectID)
		return models.Patient{}, fmt.Errorf("failed to get patient %s: %w", subjectID, err)
	}
	return p, nil
}

// ListPatients returns all patient records ordered by subject ID.
func (s *SQLiteStore) ListPatients(ctx context.Context) ([]models.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, name, phone_number, procedure, surgery_date, recovery_notes, created_at, updated_at
		FROM patients ORDER BY subject_id`)
	if err != nil {
		slog.Error("SQLiteStore.ListPatients query failed", "error", err)
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
func (s *SQLiteStore) AddCallSummary(ctx context.Context, summary models.CallSummary) error {
	complications, transcript, err := marshalSummaryJSON(summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO call_summaries (id, session_id, subject_id, triage_level, rationale, matched_complications, recommended_action, transcript, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.SessionID, summary.SubjectID, string(summary.TriageLevel),
		summary.Rationale, complications, summary.RecommendedAction, transcript, summary.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore.AddCallSummary failed", "error", err, "sessionID", summary.SessionID)
		return fmt.Errorf("failed to insert call summary for session %s: %w", summary.SessionID, err)
	}
	slog.Debug("SQLiteStore.AddCallSummary succeeded", "sessionID", summary.SessionID, "triageLevel", summary.TriageLevel)
	return nil
}

// ListCallSummaries returns summaries newest first. An empty subjectID
// returns every summary.
func (s *SQLiteStore) ListCallSummaries(ctx context.Context, subjectID string) ([]models.CallSummary, error) {
	query := `
		SELECT id, session_id, subject_id, triage_level, rationale, matched_complications, recommended_action, transcript, completed_at
		FROM call_summaries`
	args := []interface{}{}
	if subjectID != "" {
		query += ` WHERE subject_id = ?`
		args = append(args, subjectID)
	}
	query += ` ORDER BY completed_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore.ListCallSummaries query failed", "error", err)
		return nil, fmt.Errorf("failed to query call summaries: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanPatient scans a patient row; the scan argument lets it work for both
// sql.Row and sql.Rows.
func scanPatient(scan func(...interface{}) error) (models.Patient, error) {
	var p models.Patient
	var name, procedure, notes sql.NullString
	var surgeryDate sql.NullTime
	err := scan(&p.SubjectID, &name, &p.PhoneNumber, &procedure, &surgeryDate, &notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Name = name.String
	p.Procedure = procedure.String
	p.RecoveryNotes = notes.String
	if surgeryDate.Valid {
		p.SurgeryDate = surgeryDate.Time
	}
	return p, nil
}

// marshalSummaryJSON serializes the JSON-text columns of a call summary.
func marshalSummaryJSON(summary models.CallSummary) (complications string, transcript string, err error) {
	cb, err := json.Marshal(summary.MatchedComplications)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal complications: %w", err)
	}
	tb, err := json.Marshal(summary.Transcript)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return string(cb), string(tb), nil
}

// collectSummaries drains call-summary rows, decoding the JSON-text columns.
func collectSummaries(rows *sql.Rows) ([]models.CallSummary, error) {
	var summaries []models.CallSummary
	for rows.Next() {
		var cs models.CallSummary
		var level string
		var rationale, complications, action, transcript sql.NullString
		if err := rows.Scan(&cs.ID, &cs.SessionID, &cs.SubjectID, &level, &rationale,
			&complications, &action, &transcript, &cs.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call summary row: %w", err)
		}
		cs.TriageLevel = models.TriageLevel(level)
		cs.Rationale = rationale.String
		cs.RecommendedAction = action.String
		if complications.Valid && complications.String != "" {
			if err := json.Unmarshal([]byte(complications.String), &cs.MatchedComplications); err != nil {
				return nil, fmt.Errorf("failed to unmarshal complications: %w", err)
			}
		}
		if transcript.Valid && transcript.String != "" {
			if err := json.Unmarshal([]byte(transcript.String), &cs.Transcript); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
			}
		}
		summaries = append(summaries, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call summary rows: %w", err)
	}
	return summaries, nil
}
