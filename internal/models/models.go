package models

import "time"

// Labeler identifies a human annotator. Rows are created on first use and
// never mutated or deleted by the annotation workflow.
type Labeler struct {
	ID        string    `json:"labeler_id" db:"labeler_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TraceRun is a named batch of emails generated under one prompt/model
// version. All annotation state is scoped to exactly one run.
type TraceRun struct {
	RunID          string    `json:"run_id" db:"run_id"`
	PromptPath     string    `json:"prompt_path,omitempty" db:"prompt_path"`
	PromptChecksum string    `json:"prompt_checksum,omitempty" db:"prompt_checksum"`
	SourceCSV      string    `json:"source_csv,omitempty" db:"source_csv"`
	ModelName      string    `json:"model_name,omitempty" db:"model_name"`
	GeneratedAt    time.Time `json:"generated_at" db:"generated_at"`
}

// Email is one input unit, content-addressed by hash. Immutable once
// ingested. Summary and Commitments are the model-generated outputs captured
// from the trace; both may be absent.
type Email struct {
	Hash        string            `json:"email_hash" db:"email_hash"`
	Subject     string            `json:"subject" db:"subject"`
	Body        string            `json:"body" db:"body"`
	Metadata    map[string]string `json:"metadata" db:"metadata"`
	RunID       string            `json:"run_id" db:"run_id"`
	Summary     string            `json:"summary,omitempty" db:"summary"`
	Commitments []string          `json:"commitments,omitempty" db:"commitments"`
	IngestedAt  time.Time         `json:"ingested_at" db:"ingested_at"`
}

// Judgment is a pass/fail verdict by one labeler on one email. At most one
// judgment exists per (email, labeler) pair; re-judging replaces it.
type Judgment struct {
	EmailHash string    `json:"email_hash" db:"email_hash"`
	LabelerID string    `json:"labeler_id" db:"labeler_id"`
	RunID     string    `json:"run_id" db:"run_id"`
	PassFail  bool      `json:"pass_fail" db:"pass_fail"`
	JudgedAt  time.Time `json:"judged_at" db:"judged_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Annotation is a free-text open code by one labeler on one email. PassFail
// is optional (the annotation-first workflow records the verdict here).
type Annotation struct {
	ID        string    `json:"annotation_id" db:"annotation_id"`
	EmailHash string    `json:"email_hash" db:"email_hash"`
	LabelerID string    `json:"labeler_id" db:"labeler_id"`
	OpenCode  string    `json:"open_code" db:"open_code"`
	PassFail  *bool     `json:"pass_fail,omitempty" db:"pass_fail"`
	RunID     string    `json:"run_id" db:"run_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FailureMode is a reusable taxonomy entry. Global, not scoped to a run.
type FailureMode struct {
	ID          string    `json:"failure_mode_id" db:"failure_mode_id"`
	Slug        string    `json:"slug" db:"slug"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Definition  string    `json:"definition,omitempty" db:"definition"`
	Examples    []string  `json:"examples,omitempty" db:"examples"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AxialLink joins one annotation to one failure mode. The
// (annotation, failure mode) pair is unique; re-linking is a no-op.
type AxialLink struct {
	AnnotationID  string    `json:"annotation_id" db:"annotation_id"`
	FailureModeID string    `json:"failure_mode_id" db:"failure_mode_id"`
	RunID         string    `json:"run_id" db:"run_id"`
	LinkedAt      time.Time `json:"linked_at" db:"linked_at"`
}

// AttachedFailureMode is the join-query row returned with an email's
// composite payload: the failure mode plus the annotation anchoring it.
type AttachedFailureMode struct {
	FailureModeID string `json:"failure_mode_id"`
	DisplayName   string `json:"display_name"`
	Definition    string `json:"definition,omitempty"`
	AnnotationID  string `json:"annotation_id"`
}

// ContextResponse is the payload for GET /api/context. Labelers are
// [id, name] pairs, matching the roster shape the client consumes.
type ContextResponse struct {
	RunID       string      `json:"run_id"`
	EmailHashes []string    `json:"email_hashes"`
	Labelers    [][2]string `json:"labelers"`
}

// EmailDetailResponse is the composite payload for GET /api/email/:hash.
// Judgment is null when the requesting labeler has not judged the email.
type EmailDetailResponse struct {
	Email                 *Email                `json:"email"`
	Judgment              *Judgment             `json:"judgment"`
	Annotations           []Annotation          `json:"annotations"`
	FailureModes          []AttachedFailureMode `json:"failure_modes"`
	AvailableFailureModes []FailureMode         `json:"available_failure_modes"`
}

// CreateLabelerRequest for POST /api/labelers.
type CreateLabelerRequest struct {
	LabelerID string `json:"labeler_id"`
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email"`
}

// JudgmentRequest for POST /api/judgments.
type JudgmentRequest struct {
	EmailHash string `json:"email_hash" binding:"required"`
	LabelerID string `json:"labeler_id" binding:"required"`
	PassFail  *bool  `json:"pass_fail" binding:"required"`
}

// AnnotationRequest for POST /api/annotations.
type AnnotationRequest struct {
	EmailHash string `json:"email_hash" binding:"required"`
	LabelerID string `json:"labeler_id" binding:"required"`
	OpenCode  string `json:"open_code" binding:"required"`
	PassFail  *bool  `json:"pass_fail"`
}

// AnnotationUpdateRequest for PUT /api/annotations/:id.
type AnnotationUpdateRequest struct {
	OpenCode string `json:"open_code" binding:"required"`
}

// FailureModeRequest for POST /api/failure-modes.
type FailureModeRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Slug        string `json:"slug"`
	Definition  string `json:"definition"`
}

// AxialLinkRequest for POST /api/axial-links.
type AxialLinkRequest struct {
	AnnotationID  string `json:"annotation_id" binding:"required"`
	FailureModeID string `json:"failure_mode_id" binding:"required"`
}

// Suggestion is one proposed failure mode from the suggest endpoint.
type Suggestion struct {
	DisplayName string `json:"display_name"`
	Slug        string `json:"slug"`
	Definition  string `json:"definition"`
}

// SuggestionsResponse for GET /api/failure-modes/suggest.
type SuggestionsResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}
