// Package session holds the annotation workbench's client-side state: the
// email sequence, the cursor, the active labeler and the loaded detail for
// the current email. All state transitions go through it; the terminal layer
// only renders and collects input.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/mettafore/evals-workshop/internal/client"
	"github.com/mettafore/evals-workshop/internal/models"
)

// Guard errors raised before any network call is made.
var (
	ErrNoLabeler    = errors.New("select a labeler first")
	ErrNoEmails     = errors.New("no emails in this run")
	ErrEmptyNote    = errors.New("note is empty")
	ErrEmptyName    = errors.New("failure mode name is empty")
	ErrNoNote       = errors.New("no note to delete")
	ErrNoJudgment   = errors.New("no judgment recorded")
	ErrJudgmentPass = errors.New("failure modes attach to fail judgments only")
	ErrNoSuchLink   = errors.New("failure mode is not attached")
)

// PlaceholderNote anchors axial links on emails the labeler tagged without
// writing a note first.
const PlaceholderNote = "(tagged failure modes)"

// Status reports what the client must do after loading context.
type Status int

const (
	// NeedsLabelerSetup means no labeler is active yet; the client must
	// pick one from the roster or create one before annotating.
	NeedsLabelerSetup Status = iota
	// Ready means an active labeler is set and annotation can begin.
	Ready
)

// Session is the mutable client-side state. Not safe for concurrent use;
// the terminal loop is single-threaded.
type Session struct {
	api client.API

	runID       string
	hashes      []string
	index       int
	roster      [][2]string
	labelerID   string
	labelerName string

	detail *models.EmailDetailResponse
}

// New creates an empty session bound to an API client.
func New(api client.API) *Session {
	return &Session{api: api}
}

// LoadContext fetches the run context and resets the cursor to the first
// email. An empty runID resolves to the latest run on the server. Returns
// NeedsLabelerSetup until SetLabeler or CreateLabeler has been called.
func (s *Session) LoadContext(ctx context.Context, runID string) (Status, error) {
	resp, err := s.api.GetContext(ctx, runID)
	if err != nil {
		return NeedsLabelerSetup, err
	}

	s.runID = resp.RunID
	s.hashes = resp.EmailHashes
	s.roster = resp.Labelers
	s.index = 0
	s.detail = nil

	if s.labelerID == "" {
		return NeedsLabelerSetup, nil
	}

	return Ready, s.Reload(ctx)
}

// SetLabeler activates an existing roster entry and loads the current email.
func (s *Session) SetLabeler(ctx context.Context, labelerID, name string) error {
	s.labelerID = labelerID
	s.labelerName = name
	return s.Reload(ctx)
}

// CreateLabeler provisions a new labeler on the server, activates it and
// adds it to the local roster.
func (s *Session) CreateLabeler(ctx context.Context, name string) error {
	labeler, err := s.api.CreateLabeler(ctx, &models.CreateLabelerRequest{Name: name})
	if err != nil {
		return err
	}

	s.roster = append(s.roster, [2]string{labeler.ID, labeler.Name})
	return s.SetLabeler(ctx, labeler.ID, labeler.Name)
}

// Reload re-fetches the composite detail for the email under the cursor.
// Every mutation ends with a reload so the local view never drifts from
// the server.
func (s *Session) Reload(ctx context.Context) error {
	if len(s.hashes) == 0 {
		s.detail = nil
		return nil
	}

	detail, err := s.api.GetEmailDetail(ctx, s.hashes[s.index], s.labelerID)
	if err != nil {
		return err
	}

	s.detail = detail
	return nil
}

// Advance moves the cursor one email forward. At the last email it is a
// no-op and returns nil.
func (s *Session) Advance(ctx context.Context) error {
	if s.index >= len(s.hashes)-1 {
		return nil
	}
	s.index++
	return s.Reload(ctx)
}

// Retreat moves the cursor one email back. At the first email it is a
// no-op and returns nil.
func (s *Session) Retreat(ctx context.Context) error {
	if s.index <= 0 {
		return nil
	}
	s.index--
	return s.Reload(ctx)
}

// JumpToRun switches the session to another run, resetting the cursor.
func (s *Session) JumpToRun(ctx context.Context, runID string) error {
	_, err := s.LoadContext(ctx, runID)
	return err
}

// Position reports the 1-based cursor position and the sequence length.
// (0, 0) when the run has no emails.
func (s *Session) Position() (int, int) {
	if len(s.hashes) == 0 {
		return 0, 0
	}
	return s.index + 1, len(s.hashes)
}

// Current returns the loaded detail for the email under the cursor, or nil
// when the run is empty or nothing is loaded yet.
func (s *Session) Current() *models.EmailDetailResponse {
	return s.detail
}

// RunID returns the resolved run the session is annotating.
func (s *Session) RunID() string { return s.runID }

// Labeler returns the active labeler's id and name.
func (s *Session) Labeler() (string, string) { return s.labelerID, s.labelerName }

// Roster returns the [id, name] pairs known to the session.
func (s *Session) Roster() [][2]string { return s.roster }

func (s *Session) currentHash() (string, error) {
	if s.labelerID == "" {
		return "", ErrNoLabeler
	}
	if len(s.hashes) == 0 || s.detail == nil {
		return "", ErrNoEmails
	}
	return s.hashes[s.index], nil
}

// SetJudgment records a pass/fail verdict for the current email and reloads.
func (s *Session) SetJudgment(ctx context.Context, pass bool) error {
	hash, err := s.currentHash()
	if err != nil {
		return err
	}

	_, err = s.api.UpsertJudgment(ctx, &models.JudgmentRequest{
		EmailHash: hash,
		LabelerID: s.labelerID,
		PassFail:  &pass,
	})
	if err != nil {
		return err
	}

	return s.Reload(ctx)
}

// ClearJudgment deletes the labeler's verdict on the current email. It runs
// immediately, without confirmation; re-judging restores the verdict.
func (s *Session) ClearJudgment(ctx context.Context) error {
	hash, err := s.currentHash()
	if err != nil {
		return err
	}
	if s.detail.Judgment == nil {
		return ErrNoJudgment
	}

	if err := s.api.DeleteJudgment(ctx, hash, s.labelerID); err != nil {
		return err
	}

	return s.Reload(ctx)
}

// myAnnotation returns the active labeler's annotation on the current
// email, or nil. One note per labeler per email is the working convention.
func (s *Session) myAnnotation() *models.Annotation {
	if s.detail == nil {
		return nil
	}
	for i := range s.detail.Annotations {
		if s.detail.Annotations[i].LabelerID == s.labelerID {
			return &s.detail.Annotations[i]
		}
	}
	return nil
}

// SaveNote records or rewrites the labeler's open code on the current
// email. An existing note is updated in place rather than duplicated.
func (s *Session) SaveNote(ctx context.Context, text string) error {
	hash, err := s.currentHash()
	if err != nil {
		return err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyNote
	}

	if existing := s.myAnnotation(); existing != nil {
		if _, err := s.api.UpdateAnnotation(ctx, existing.ID, text); err != nil {
			return err
		}
	} else {
		_, err := s.api.CreateAnnotation(ctx, &models.AnnotationRequest{
			EmailHash: hash,
			LabelerID: s.labelerID,
			OpenCode:  text,
		})
		if err != nil {
			return err
		}
	}

	return s.Reload(ctx)
}

// DeleteNote removes the labeler's annotation on the current email along
// with any axial links anchored to it.
func (s *Session) DeleteNote(ctx context.Context) error {
	if _, err := s.currentHash(); err != nil {
		return err
	}

	ann := s.myAnnotation()
	if ann == nil {
		return ErrNoNote
	}

	if err := s.api.DeleteAnnotation(ctx, ann.ID); err != nil {
		return err
	}

	return s.Reload(ctx)
}

// Note returns the labeler's current note text, or "" when none exists.
func (s *Session) Note() string {
	if ann := s.myAnnotation(); ann != nil {
		return ann.OpenCode
	}
	return ""
}

// AttachFailureMode tags the current email with a failure mode, creating
// the taxonomy entry when the name is new. The email must carry a fail
// verdict first. When the labeler has no annotation yet, a placeholder one
// is created to anchor the link.
func (s *Session) AttachFailureMode(ctx context.Context, displayName, definition string) error {
	hash, err := s.currentHash()
	if err != nil {
		return err
	}
	if s.detail.Judgment == nil {
		return ErrNoJudgment
	}
	if s.detail.Judgment.PassFail {
		return ErrJudgmentPass
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return ErrEmptyName
	}

	ann := s.myAnnotation()
	if ann == nil {
		created, err := s.api.CreateAnnotation(ctx, &models.AnnotationRequest{
			EmailHash: hash,
			LabelerID: s.labelerID,
			OpenCode:  PlaceholderNote,
		})
		if err != nil {
			return err
		}
		ann = created
	}

	fm := s.findFailureMode(displayName)
	if fm == nil {
		created, err := s.api.CreateFailureMode(ctx, &models.FailureModeRequest{
			DisplayName: displayName,
			Definition:  definition,
		})
		if err != nil {
			return err
		}
		fm = created
	}

	_, err = s.api.CreateAxialLink(ctx, &models.AxialLinkRequest{
		AnnotationID:  ann.ID,
		FailureModeID: fm.ID,
	})
	if err != nil {
		return err
	}

	return s.Reload(ctx)
}

func (s *Session) findFailureMode(displayName string) *models.FailureMode {
	lowered := strings.ToLower(strings.TrimSpace(displayName))
	for i := range s.detail.AvailableFailureModes {
		fm := &s.detail.AvailableFailureModes[i]
		if strings.ToLower(fm.DisplayName) == lowered {
			return fm
		}
	}
	return nil
}

// DetachFailureMode removes one attached failure mode from the current
// email. The id must name a mode currently attached, otherwise no network
// call is made.
func (s *Session) DetachFailureMode(ctx context.Context, failureModeID string) error {
	if _, err := s.currentHash(); err != nil {
		return err
	}

	var link *models.AttachedFailureMode
	for i := range s.detail.FailureModes {
		if s.detail.FailureModes[i].FailureModeID == failureModeID {
			link = &s.detail.FailureModes[i]
			break
		}
	}
	if link == nil {
		return ErrNoSuchLink
	}

	if err := s.api.DeleteAxialLink(ctx, link.AnnotationID, link.FailureModeID); err != nil {
		return err
	}

	return s.Reload(ctx)
}

// Suggest asks the server to propose failure modes for the current email.
func (s *Session) Suggest(ctx context.Context) ([]models.Suggestion, error) {
	hash, err := s.currentHash()
	if err != nil {
		return nil, err
	}
	return s.api.SuggestFailureModes(ctx, hash)
}
