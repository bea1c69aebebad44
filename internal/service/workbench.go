package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mettafore/evals-workshop/internal/models"
	"github.com/mettafore/evals-workshop/internal/repository"
	"github.com/mettafore/evals-workshop/internal/suggest"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sentinel errors the HTTP layer maps to status codes.
var (
	ErrNoRuns   = errors.New("no trace runs loaded yet")
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)

// Suggester proposes failure modes for an email.
type Suggester interface {
	Suggest(ctx context.Context, input suggest.Input) ([]models.Suggestion, error)
	Close() error
}

// Workbench is the business layer behind the annotation API.
type Workbench struct {
	store     *repository.Store
	suggester Suggester
	logger    *zap.Logger
}

// NewWorkbench creates the service.
func NewWorkbench(store *repository.Store, suggester Suggester, logger *zap.Logger) *Workbench {
	return &Workbench{
		store:     store,
		suggester: suggester,
		logger:    logger,
	}
}

// GetContext resolves the active run and assembles the navigation context:
// the ordered email sequence plus the labeler roster.
func (w *Workbench) GetContext(requestedRun string) (*models.ContextResponse, error) {
	runID, err := w.store.ResolveRun(requestedRun)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, ErrNoRuns
	}

	hashes, err := w.store.ListEmailHashes(runID)
	if err != nil {
		return nil, err
	}

	labelers, err := w.store.ListLabelers()
	if err != nil {
		return nil, err
	}

	pairs := make([][2]string, 0, len(labelers))
	for _, labeler := range labelers {
		pairs = append(pairs, [2]string{labeler.ID, labeler.Name})
	}

	if hashes == nil {
		hashes = []string{}
	}

	return &models.ContextResponse{
		RunID:       runID,
		EmailHashes: hashes,
		Labelers:    pairs,
	}, nil
}

// CreateLabeler provisions an annotator row. A missing id is synthesized
// from a uuid; a missing name falls back to the id.
func (w *Workbench) CreateLabeler(req *models.CreateLabelerRequest) (*models.Labeler, error) {
	labeler := &models.Labeler{
		ID:    req.LabelerID,
		Name:  strings.TrimSpace(req.Name),
		Email: req.Email,
	}
	if labeler.ID == "" {
		labeler.ID = uuid.NewString()[:8]
	}
	if labeler.Name == "" {
		labeler.Name = labeler.ID
	}

	if err := w.store.CreateLabeler(labeler); err != nil {
		return nil, err
	}

	w.logger.Info("Labeler created", zap.String("labeler_id", labeler.ID), zap.String("name", labeler.Name))

	return labeler, nil
}

// GetEmailDetail assembles the full composite payload the client renders:
// email, the labeler's judgment (or nil), all annotations, the taxonomy and
// the failure modes attached to this email.
func (w *Workbench) GetEmailDetail(emailHash, labelerID string) (*models.EmailDetailResponse, error) {
	email, err := w.store.GetEmail(emailHash)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("%w: email %s", ErrNotFound, emailHash)
	}

	var judgment *models.Judgment
	if labelerID != "" {
		judgment, err = w.store.GetJudgment(emailHash, labelerID)
		if err != nil {
			return nil, err
		}
	}

	annotations, err := w.store.GetAnnotationsByEmail(emailHash)
	if err != nil {
		return nil, err
	}

	attached, err := w.store.GetAttachedFailureModes(emailHash)
	if err != nil {
		return nil, err
	}

	available, err := w.store.ListFailureModes()
	if err != nil {
		return nil, err
	}

	if annotations == nil {
		annotations = []models.Annotation{}
	}
	if attached == nil {
		attached = []models.AttachedFailureMode{}
	}
	if available == nil {
		available = []models.FailureMode{}
	}

	return &models.EmailDetailResponse{
		Email:                 email,
		Judgment:              judgment,
		Annotations:           annotations,
		FailureModes:          attached,
		AvailableFailureModes: available,
	}, nil
}

// UpsertJudgment records or replaces the labeler's verdict on an email.
func (w *Workbench) UpsertJudgment(req *models.JudgmentRequest) (*models.Judgment, error) {
	email, err := w.store.GetEmail(req.EmailHash)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("%w: email %s", ErrNotFound, req.EmailHash)
	}

	judgment := &models.Judgment{
		EmailHash: req.EmailHash,
		LabelerID: req.LabelerID,
		RunID:     email.RunID,
		PassFail:  *req.PassFail,
	}

	if err := w.store.UpsertJudgment(judgment); err != nil {
		return nil, err
	}

	return judgment, nil
}

// DeleteJudgment removes the labeler's verdict on an email.
func (w *Workbench) DeleteJudgment(emailHash, labelerID string) error {
	return w.store.DeleteJudgment(emailHash, labelerID)
}

// CreateAnnotation records a free-text open code. An unknown labeler id is
// auto-provisioned so a fresh database never rejects the first note.
func (w *Workbench) CreateAnnotation(req *models.AnnotationRequest) (*models.Annotation, error) {
	openCode := strings.TrimSpace(req.OpenCode)
	if openCode == "" {
		return nil, fmt.Errorf("%w: open_code is required", ErrInvalid)
	}

	email, err := w.store.GetEmail(req.EmailHash)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("%w: email %s", ErrNotFound, req.EmailHash)
	}

	if err := w.ensureLabeler(req.LabelerID); err != nil {
		return nil, err
	}

	ann := &models.Annotation{
		ID:        uuid.NewString(),
		EmailHash: req.EmailHash,
		LabelerID: req.LabelerID,
		OpenCode:  openCode,
		PassFail:  req.PassFail,
		RunID:     email.RunID,
		CreatedAt: time.Now().UTC(),
	}

	if err := w.store.SaveAnnotation(ann); err != nil {
		return nil, err
	}

	return ann, nil
}

func (w *Workbench) ensureLabeler(labelerID string) error {
	labelers, err := w.store.ListLabelers()
	if err != nil {
		return err
	}
	for _, labeler := range labelers {
		if labeler.ID == labelerID {
			return nil
		}
	}
	return w.store.CreateLabeler(&models.Labeler{ID: labelerID, Name: labelerID})
}

// UpdateAnnotation rewrites an annotation's open code.
func (w *Workbench) UpdateAnnotation(annotationID, openCode string) (*models.Annotation, error) {
	openCode = strings.TrimSpace(openCode)
	if openCode == "" {
		return nil, fmt.Errorf("%w: open_code is required", ErrInvalid)
	}

	ann, err := w.store.GetAnnotation(annotationID)
	if err != nil {
		return nil, err
	}
	if ann == nil {
		return nil, fmt.Errorf("%w: annotation %s", ErrNotFound, annotationID)
	}

	if err := w.store.UpdateAnnotation(annotationID, openCode); err != nil {
		return nil, err
	}

	return w.store.GetAnnotation(annotationID)
}

// DeleteAnnotation removes an annotation and its axial links.
func (w *Workbench) DeleteAnnotation(annotationID string) error {
	return w.store.DeleteAnnotation(annotationID)
}

// CreateFailureMode adds a taxonomy entry, reusing an existing slug.
func (w *Workbench) CreateFailureMode(req *models.FailureModeRequest) (*models.FailureMode, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display_name is required", ErrInvalid)
	}

	slug := req.Slug
	if slug == "" {
		slug = suggest.Slugify(displayName)
	}

	fm := &models.FailureMode{
		ID:          uuid.NewString()[:8],
		Slug:        slug,
		DisplayName: displayName,
		Definition:  req.Definition,
	}

	return w.store.CreateFailureMode(fm)
}

// CreateAxialLink attaches a failure mode to an annotation. The link carries
// the run id under which the annotation was made.
func (w *Workbench) CreateAxialLink(req *models.AxialLinkRequest) (*models.AxialLink, error) {
	ann, err := w.store.GetAnnotation(req.AnnotationID)
	if err != nil {
		return nil, err
	}
	if ann == nil {
		return nil, fmt.Errorf("%w: annotation %s", ErrNotFound, req.AnnotationID)
	}

	link := &models.AxialLink{
		AnnotationID:  req.AnnotationID,
		FailureModeID: req.FailureModeID,
		RunID:         ann.RunID,
	}

	if err := w.store.CreateAxialLink(link); err != nil {
		return nil, err
	}

	return link, nil
}

// DeleteAxialLink detaches exactly one (annotation, failure mode) pair.
func (w *Workbench) DeleteAxialLink(annotationID, failureModeID string) error {
	return w.store.DeleteAxialLink(annotationID, failureModeID)
}

// SuggestFailureModes runs the suggestion provider over the email's open
// codes and the current taxonomy.
func (w *Workbench) SuggestFailureModes(ctx context.Context, emailHash string) ([]models.Suggestion, error) {
	email, err := w.store.GetEmail(emailHash)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("%w: email %s", ErrNotFound, emailHash)
	}

	annotations, err := w.store.GetAnnotationsByEmail(emailHash)
	if err != nil {
		return nil, err
	}
	openCodes := make([]string, 0, len(annotations))
	for _, ann := range annotations {
		openCodes = append(openCodes, ann.OpenCode)
	}

	existing, err := w.store.ListFailureModes()
	if err != nil {
		return nil, err
	}

	suggestions, err := w.suggester.Suggest(ctx, suggest.Input{
		Email:     email,
		OpenCodes: openCodes,
		Existing:  existing,
	})
	if err != nil {
		return nil, fmt.Errorf("suggestion failed: %w", err)
	}

	return suggestions, nil
}
