package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mettafore/evals-workshop/internal/models"

	"go.uber.org/zap"
)

// UpsertJudgment records a pass/fail verdict, replacing any prior judgment
// by the same labeler on the same email.
func (s *Store) UpsertJudgment(judgment *models.Judgment) error {
	now := time.Now().UTC()
	if judgment.JudgedAt.IsZero() {
		judgment.JudgedAt = now
	}
	judgment.UpdatedAt = now

	query := `
		INSERT INTO email_judgments (email_hash, labeler_id, run_id, pass_fail, judged_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email_hash, labeler_id) DO UPDATE SET
			pass_fail = excluded.pass_fail,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		judgment.EmailHash,
		judgment.LabelerID,
		judgment.RunID,
		judgment.PassFail,
		judgment.JudgedAt,
		judgment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert judgment: %w", err)
	}

	return nil
}

// GetJudgment returns the labeler's judgment for an email, or nil.
func (s *Store) GetJudgment(emailHash, labelerID string) (*models.Judgment, error) {
	query := `
		SELECT email_hash, labeler_id, run_id, pass_fail, judged_at, updated_at
		FROM email_judgments
		WHERE email_hash = ? AND labeler_id = ?
	`

	judgment := &models.Judgment{}
	err := s.db.QueryRow(query, emailHash, labelerID).Scan(
		&judgment.EmailHash,
		&judgment.LabelerID,
		&judgment.RunID,
		&judgment.PassFail,
		&judgment.JudgedAt,
		&judgment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get judgment: %w", err)
	}

	return judgment, nil
}

// DeleteJudgment removes the labeler's judgment for an email.
func (s *Store) DeleteJudgment(emailHash, labelerID string) error {
	_, err := s.db.Exec(
		"DELETE FROM email_judgments WHERE email_hash = ? AND labeler_id = ?",
		emailHash, labelerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete judgment: %w", err)
	}

	return nil
}

// SaveAnnotation inserts a new open-code annotation.
func (s *Store) SaveAnnotation(ann *models.Annotation) error {
	now := time.Now().UTC()
	if ann.CreatedAt.IsZero() {
		ann.CreatedAt = now
	}
	ann.UpdatedAt = now

	query := `
		INSERT INTO annotations (annotation_id, email_hash, labeler_id, open_code, pass_fail, run_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var passFail interface{}
	if ann.PassFail != nil {
		passFail = *ann.PassFail
	}

	_, err := s.db.Exec(query,
		ann.ID,
		ann.EmailHash,
		ann.LabelerID,
		ann.OpenCode,
		passFail,
		ann.RunID,
		ann.CreatedAt,
		ann.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save annotation: %w", err)
	}

	return nil
}

// UpdateAnnotation rewrites an annotation's open code in place.
func (s *Store) UpdateAnnotation(annotationID, openCode string) error {
	result, err := s.db.Exec(
		"UPDATE annotations SET open_code = ?, updated_at = ? WHERE annotation_id = ?",
		openCode, time.Now().UTC(), annotationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check annotation update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("annotation not found: %s", annotationID)
	}

	return nil
}

// DeleteAnnotation removes an annotation and any axial links hanging off it.
func (s *Store) DeleteAnnotation(annotationID string) error {
	if _, err := s.db.Exec("DELETE FROM axial_links WHERE annotation_id = ?", annotationID); err != nil {
		return fmt.Errorf("failed to delete axial links: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM annotations WHERE annotation_id = ?", annotationID); err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}

	return nil
}

// GetAnnotation returns one annotation by id, or nil.
func (s *Store) GetAnnotation(annotationID string) (*models.Annotation, error) {
	query := `
		SELECT annotation_id, email_hash, labeler_id, open_code, pass_fail, run_id, created_at, updated_at
		FROM annotations
		WHERE annotation_id = ?
	`

	row := s.db.QueryRow(query, annotationID)
	ann, err := scanAnnotation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}

	return ann, nil
}

// GetAnnotationsByEmail returns all annotations for an email, newest first.
func (s *Store) GetAnnotationsByEmail(emailHash string) ([]models.Annotation, error) {
	query := `
		SELECT annotation_id, email_hash, labeler_id, open_code, pass_fail, run_id, created_at, updated_at
		FROM annotations
		WHERE email_hash = ?
		ORDER BY created_at DESC, annotation_id
	`

	rows, err := s.db.Query(query, emailHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()

	var annotations []models.Annotation
	for rows.Next() {
		ann, err := scanAnnotation(rows)
		if err != nil {
			s.logger.Error("Failed to scan annotation", zap.Error(err))
			continue
		}
		annotations = append(annotations, *ann)
	}

	return annotations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnnotation(row rowScanner) (*models.Annotation, error) {
	ann := &models.Annotation{}
	var passFail sql.NullBool
	err := row.Scan(
		&ann.ID,
		&ann.EmailHash,
		&ann.LabelerID,
		&ann.OpenCode,
		&passFail,
		&ann.RunID,
		&ann.CreatedAt,
		&ann.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if passFail.Valid {
		ann.PassFail = &passFail.Bool
	}

	return ann, nil
}

// CreateFailureMode inserts a taxonomy row. A failure mode with the same
// slug is reused rather than duplicated; its id is returned unchanged.
func (s *Store) CreateFailureMode(fm *models.FailureMode) (*models.FailureMode, error) {
	existing, err := s.GetFailureModeBySlug(fm.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if fm.CreatedAt.IsZero() {
		fm.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO failure_modes (failure_mode_id, slug, display_name, definition, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query, fm.ID, fm.Slug, fm.DisplayName, fm.Definition, fm.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure mode: %w", err)
	}

	return fm, nil
}

// GetFailureModeBySlug returns the failure mode with a slug, or nil.
func (s *Store) GetFailureModeBySlug(slug string) (*models.FailureMode, error) {
	query := `
		SELECT failure_mode_id, slug, display_name, COALESCE(definition, ''), created_at
		FROM failure_modes
		WHERE slug = ?
	`

	fm := &models.FailureMode{}
	err := s.db.QueryRow(query, slug).Scan(&fm.ID, &fm.Slug, &fm.DisplayName, &fm.Definition, &fm.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure mode: %w", err)
	}

	return fm, nil
}

// ListFailureModes returns the whole taxonomy ordered by display name.
func (s *Store) ListFailureModes() ([]models.FailureMode, error) {
	query := `
		SELECT failure_mode_id, slug, display_name, COALESCE(definition, ''), created_at
		FROM failure_modes
		ORDER BY display_name
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list failure modes: %w", err)
	}
	defer rows.Close()

	var modes []models.FailureMode
	for rows.Next() {
		var fm models.FailureMode
		if err := rows.Scan(&fm.ID, &fm.Slug, &fm.DisplayName, &fm.Definition, &fm.CreatedAt); err != nil {
			s.logger.Error("Failed to scan failure mode", zap.Error(err))
			continue
		}
		modes = append(modes, fm)
	}

	return modes, rows.Err()
}

// CreateAxialLink links an annotation to a failure mode. Linking the same
// pair twice is a no-op, not a duplicate row.
func (s *Store) CreateAxialLink(link *models.AxialLink) error {
	if link.LinkedAt.IsZero() {
		link.LinkedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO axial_links (annotation_id, failure_mode_id, run_id, linked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(annotation_id, failure_mode_id) DO NOTHING
	`

	_, err := s.db.Exec(query, link.AnnotationID, link.FailureModeID, link.RunID, link.LinkedAt)
	if err != nil {
		return fmt.Errorf("failed to create axial link: %w", err)
	}

	return nil
}

// DeleteAxialLink removes exactly the (annotation, failure mode) pair.
func (s *Store) DeleteAxialLink(annotationID, failureModeID string) error {
	_, err := s.db.Exec(
		"DELETE FROM axial_links WHERE annotation_id = ? AND failure_mode_id = ?",
		annotationID, failureModeID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete axial link: %w", err)
	}

	return nil
}

// GetAttachedFailureModes returns the failure modes linked to any of an
// email's annotations, newest link first.
func (s *Store) GetAttachedFailureModes(emailHash string) ([]models.AttachedFailureMode, error) {
	query := `
		SELECT al.failure_mode_id, fm.display_name, COALESCE(fm.definition, ''), al.annotation_id
		FROM axial_links al
		JOIN failure_modes fm ON al.failure_mode_id = fm.failure_mode_id
		WHERE al.annotation_id IN (SELECT annotation_id FROM annotations WHERE email_hash = ?)
		ORDER BY al.linked_at DESC, al.failure_mode_id
	`

	rows, err := s.db.Query(query, emailHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query attached failure modes: %w", err)
	}
	defer rows.Close()

	var attached []models.AttachedFailureMode
	for rows.Next() {
		var a models.AttachedFailureMode
		if err := rows.Scan(&a.FailureModeID, &a.DisplayName, &a.Definition, &a.AnnotationID); err != nil {
			s.logger.Error("Failed to scan attached failure mode", zap.Error(err))
			continue
		}
		attached = append(attached, a)
	}

	return attached, rows.Err()
}

// ClearCounts reports how many rows each clearable table held.
type ClearCounts struct {
	AxialLinks   int
	Annotations  int
	Judgments    int
	FailureModes int
	TraceRuns    int
	Labelers     int
}

// CountAnnotationData returns current row counts for every table touched or
// preserved by ClearAnnotationData.
func (s *Store) CountAnnotationData() (*ClearCounts, error) {
	counts := &ClearCounts{}
	tables := []struct {
		name string
		dest *int
	}{
		{"axial_links", &counts.AxialLinks},
		{"annotations", &counts.Annotations},
		{"email_judgments", &counts.Judgments},
		{"failure_modes", &counts.FailureModes},
		{"trace_runs", &counts.TraceRuns},
		{"labelers", &counts.Labelers},
	}

	for _, table := range tables {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table.name).Scan(table.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table.name, err)
		}
	}

	return counts, nil
}

// ClearAnnotationData wipes axial links, annotations, judgments and failure
// modes while preserving trace runs, raw emails and labelers.
func (s *Store) ClearAnnotationData() error {
	// Delete in order respecting foreign key constraints.
	for _, table := range []string{"axial_links", "annotations", "email_judgments", "failure_modes"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	s.logger.Info("Annotation data cleared")

	return nil
}
