package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mettafore/evals-workshop/internal/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store handles all persisted annotation state.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens the database and ensures the schema exists.
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite hands each pooled connection its own view of an
	// in-memory database, so writes must stay on a single connection.
	db.SetMaxOpenConns(1)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Annotation store initialized", zap.String("db_path", dbPath))

	return store, nil
}

// migrate creates tables
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS labelers (
		labeler_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trace_runs (
		run_id TEXT PRIMARY KEY,
		prompt_path TEXT,
		prompt_checksum TEXT,
		source_csv TEXT,
		model_name TEXT,
		generated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS raw_emails (
		email_hash TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		metadata TEXT,
		run_id TEXT NOT NULL REFERENCES trace_runs(run_id),
		summary TEXT,
		commitments TEXT,
		ingested_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_raw_emails_run_id ON raw_emails(run_id);

	CREATE TABLE IF NOT EXISTS email_judgments (
		email_hash TEXT NOT NULL,
		labeler_id TEXT NOT NULL REFERENCES labelers(labeler_id),
		run_id TEXT NOT NULL,
		pass_fail BOOLEAN NOT NULL,
		judged_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (email_hash, labeler_id)
	);

	CREATE INDEX IF NOT EXISTS idx_judgments_email_hash ON email_judgments(email_hash);

	CREATE TABLE IF NOT EXISTS annotations (
		annotation_id TEXT PRIMARY KEY,
		email_hash TEXT NOT NULL,
		labeler_id TEXT NOT NULL REFERENCES labelers(labeler_id),
		open_code TEXT NOT NULL,
		pass_fail BOOLEAN,
		run_id TEXT NOT NULL REFERENCES trace_runs(run_id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_annotations_email_hash ON annotations(email_hash);
	CREATE INDEX IF NOT EXISTS idx_annotations_run_id ON annotations(run_id);

	CREATE TABLE IF NOT EXISTS failure_modes (
		failure_mode_id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		definition TEXT,
		examples TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS axial_links (
		annotation_id TEXT NOT NULL REFERENCES annotations(annotation_id),
		failure_mode_id TEXT NOT NULL REFERENCES failure_modes(failure_mode_id),
		run_id TEXT NOT NULL,
		linked_at DATETIME NOT NULL,
		PRIMARY KEY (annotation_id, failure_mode_id)
	);

	CREATE INDEX IF NOT EXISTS idx_axial_links_failure_mode ON axial_links(failure_mode_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertRun inserts or refreshes a trace run row.
func (s *Store) UpsertRun(run *models.TraceRun) error {
	query := `
		INSERT INTO trace_runs (run_id, prompt_path, prompt_checksum, source_csv, model_name, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			prompt_path = excluded.prompt_path,
			prompt_checksum = excluded.prompt_checksum,
			source_csv = excluded.source_csv,
			model_name = excluded.model_name,
			generated_at = excluded.generated_at
	`

	_, err := s.db.Exec(query,
		run.RunID,
		run.PromptPath,
		run.PromptChecksum,
		run.SourceCSV,
		run.ModelName,
		run.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	return nil
}

// ResolveRun returns the requested run id when it exists, otherwise the most
// recently generated run. Empty string means no runs are loaded yet.
func (s *Store) ResolveRun(requested string) (string, error) {
	if requested != "" {
		var exists int
		err := s.db.QueryRow("SELECT 1 FROM trace_runs WHERE run_id = ? LIMIT 1", requested).Scan(&exists)
		if err == nil {
			return requested, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("failed to check run: %w", err)
		}
	}

	var runID string
	err := s.db.QueryRow("SELECT run_id FROM trace_runs ORDER BY generated_at DESC LIMIT 1").Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve run: %w", err)
	}

	return runID, nil
}

// SaveEmail inserts an email row. Emails are immutable once ingested;
// re-ingesting the same hash refreshes the derived model outputs only.
func (s *Store) SaveEmail(email *models.Email) error {
	metadata, err := json.Marshal(email.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	commitments, err := json.Marshal(email.Commitments)
	if err != nil {
		return fmt.Errorf("failed to encode commitments: %w", err)
	}

	query := `
		INSERT INTO raw_emails (email_hash, subject, body, metadata, run_id, summary, commitments, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email_hash) DO UPDATE SET
			summary = excluded.summary,
			commitments = excluded.commitments
	`

	_, err = s.db.Exec(query,
		email.Hash,
		email.Subject,
		email.Body,
		string(metadata),
		email.RunID,
		email.Summary,
		string(commitments),
		email.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save email: %w", err)
	}

	return nil
}

// GetEmail retrieves one email by hash.
func (s *Store) GetEmail(hash string) (*models.Email, error) {
	query := `
		SELECT email_hash, subject, body, metadata, run_id, summary, commitments, ingested_at
		FROM raw_emails
		WHERE email_hash = ?
	`

	email := &models.Email{}
	var metadata, commitments sql.NullString
	err := s.db.QueryRow(query, hash).Scan(
		&email.Hash,
		&email.Subject,
		&email.Body,
		&metadata,
		&email.RunID,
		&email.Summary,
		&commitments,
		&email.IngestedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &email.Metadata); err != nil {
			s.logger.Warn("Failed to decode email metadata", zap.String("email_hash", hash), zap.Error(err))
		}
	}
	if commitments.Valid && commitments.String != "" {
		if err := json.Unmarshal([]byte(commitments.String), &email.Commitments); err != nil {
			s.logger.Warn("Failed to decode email commitments", zap.String("email_hash", hash), zap.Error(err))
		}
	}

	return email, nil
}

// ListEmailHashes returns the ordered email sequence for a run.
func (s *Store) ListEmailHashes(runID string) ([]string, error) {
	query := `
		SELECT email_hash
		FROM raw_emails
		WHERE run_id = ?
		ORDER BY ingested_at, email_hash
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			s.logger.Error("Failed to scan email hash", zap.Error(err))
			continue
		}
		hashes = append(hashes, hash)
	}

	return hashes, rows.Err()
}

// CreateLabeler inserts a labeler row, replacing an existing row with the
// same id so repeated setup calls stay idempotent.
func (s *Store) CreateLabeler(labeler *models.Labeler) error {
	if labeler.CreatedAt.IsZero() {
		labeler.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO labelers (labeler_id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(labeler_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`

	_, err := s.db.Exec(query, labeler.ID, labeler.Name, labeler.Email, labeler.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create labeler: %w", err)
	}

	return nil
}

// ListLabelers returns all labelers in creation order.
func (s *Store) ListLabelers() ([]models.Labeler, error) {
	query := `
		SELECT labeler_id, name, COALESCE(email, ''), created_at
		FROM labelers
		ORDER BY created_at, labeler_id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list labelers: %w", err)
	}
	defer rows.Close()

	var labelers []models.Labeler
	for rows.Next() {
		var labeler models.Labeler
		if err := rows.Scan(&labeler.ID, &labeler.Name, &labeler.Email, &labeler.CreatedAt); err != nil {
			s.logger.Error("Failed to scan labeler", zap.Error(err))
			continue
		}
		labelers = append(labelers, labeler)
	}

	return labelers, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
