package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mettafore/evals-workshop/internal/models"
	"github.com/mettafore/evals-workshop/internal/repository"
	"github.com/mettafore/evals-workshop/internal/suggest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWorkbench(t *testing.T) (*Workbench, *repository.Store) {
	t.Helper()

	store, err := repository.NewStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewWorkbench(store, suggest.NewHeuristic(), zap.NewNop()), store
}

func seedRunWithEmail(t *testing.T, store *repository.Store) {
	t.Helper()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertRun(&models.TraceRun{RunID: "run-1", GeneratedAt: base}))
	require.NoError(t, store.SaveEmail(&models.Email{
		Hash:       "aaa",
		Subject:    "Project kickoff",
		Body:       "Kickoff on Monday.",
		RunID:      "run-1",
		Summary:    "Kickoff scheduled Tuesday.",
		IngestedAt: base,
	}))
	require.NoError(t, store.CreateLabeler(&models.Labeler{ID: "lab-1", Name: "Priya"}))
}

func TestGetContextNoRuns(t *testing.T) {
	workbench, _ := newTestWorkbench(t)

	_, err := workbench.GetContext("")
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestGetContextEmptyRun(t *testing.T) {
	workbench, store := newTestWorkbench(t)
	require.NoError(t, store.UpsertRun(&models.TraceRun{
		RunID:       "run-empty",
		GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}))

	resp, err := workbench.GetContext("")
	require.NoError(t, err)
	assert.Equal(t, "run-empty", resp.RunID)
	assert.NotNil(t, resp.EmailHashes)
	assert.Empty(t, resp.EmailHashes, "empty run yields an empty, non-null sequence")
}

func TestCreateLabelerDefaults(t *testing.T) {
	workbench, _ := newTestWorkbench(t)

	labeler, err := workbench.CreateLabeler(&models.CreateLabelerRequest{Name: "Sam"})
	require.NoError(t, err)
	assert.Len(t, labeler.ID, 8, "synthesized id")
	assert.Equal(t, "Sam", labeler.Name)

	labeler, err = workbench.CreateLabeler(&models.CreateLabelerRequest{LabelerID: "sam2", Name: "  "})
	require.NoError(t, err)
	assert.Equal(t, "sam2", labeler.Name, "blank name falls back to id")
}

func TestJudgmentAttachReloadRoundTrip(t *testing.T) {
	workbench, _ := newTestWorkbench(t)
	seedRunWithEmail(t, workbench.store)

	fail := false
	_, err := workbench.UpsertJudgment(&models.JudgmentRequest{
		EmailHash: "aaa", LabelerID: "lab-1", PassFail: &fail,
	})
	require.NoError(t, err)

	ann, err := workbench.CreateAnnotation(&models.AnnotationRequest{
		EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "summary invented the kickoff day",
	})
	require.NoError(t, err)

	fm, err := workbench.CreateFailureMode(&models.FailureModeRequest{DisplayName: "Hallucinated Detail"})
	require.NoError(t, err)
	assert.Equal(t, "hallucinated-detail", fm.Slug)

	_, err = workbench.CreateAxialLink(&models.AxialLinkRequest{
		AnnotationID: ann.ID, FailureModeID: fm.ID,
	})
	require.NoError(t, err)

	detail, err := workbench.GetEmailDetail("aaa", "lab-1")
	require.NoError(t, err)
	require.NotNil(t, detail.Judgment)
	assert.False(t, detail.Judgment.PassFail)
	require.Len(t, detail.FailureModes, 1)
	assert.Equal(t, "Hallucinated Detail", detail.FailureModes[0].DisplayName)
	assert.Equal(t, ann.ID, detail.FailureModes[0].AnnotationID)
	require.Len(t, detail.Annotations, 1)
}

func TestGetEmailDetailWithoutJudgment(t *testing.T) {
	workbench, _ := newTestWorkbench(t)
	seedRunWithEmail(t, workbench.store)

	detail, err := workbench.GetEmailDetail("aaa", "lab-1")
	require.NoError(t, err)
	assert.Nil(t, detail.Judgment, "no judgment is a distinct, explicit state")
	assert.NotNil(t, detail.Annotations)
	assert.NotNil(t, detail.FailureModes)
	assert.NotNil(t, detail.AvailableFailureModes)

	_, err = workbench.GetEmailDetail("missing", "lab-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAnnotationValidation(t *testing.T) {
	workbench, _ := newTestWorkbench(t)
	seedRunWithEmail(t, workbench.store)

	_, err := workbench.CreateAnnotation(&models.AnnotationRequest{
		EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "   ",
	})
	assert.Error(t, err, "blank open code rejected")

	_, err = workbench.CreateAnnotation(&models.AnnotationRequest{
		EmailHash: "missing", LabelerID: "lab-1", OpenCode: "note",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	// Unknown labeler id is auto-provisioned, not rejected.
	ann, err := workbench.CreateAnnotation(&models.AnnotationRequest{
		EmailHash: "aaa", LabelerID: "lab-new", OpenCode: "first note",
	})
	require.NoError(t, err)
	assert.Equal(t, "lab-new", ann.LabelerID)

	labelers, err := workbench.store.ListLabelers()
	require.NoError(t, err)
	assert.Len(t, labelers, 2)
}

func TestUpdateAnnotationRoundTrip(t *testing.T) {
	workbench, _ := newTestWorkbench(t)
	seedRunWithEmail(t, workbench.store)

	ann, err := workbench.CreateAnnotation(&models.AnnotationRequest{
		EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "first draft",
	})
	require.NoError(t, err)

	updated, err := workbench.UpdateAnnotation(ann.ID, "second draft")
	require.NoError(t, err)
	assert.Equal(t, "second draft", updated.OpenCode)

	_, err = workbench.UpdateAnnotation("nope", "text")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAxialLinkRequiresAnnotation(t *testing.T) {
	workbench, _ := newTestWorkbench(t)
	seedRunWithEmail(t, workbench.store)

	_, err := workbench.CreateAxialLink(&models.AxialLinkRequest{
		AnnotationID: "ghost", FailureModeID: "fm-1",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuggestFailureModes(t *testing.T) {
	workbench, _ := newTestWorkbench(t)
	seedRunWithEmail(t, workbench.store)

	_, err := workbench.CreateAnnotation(&models.AnnotationRequest{
		EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "kickoff date hallucinated, attendees hallucinated",
	})
	require.NoError(t, err)

	suggestions, err := workbench.SuggestFailureModes(context.Background(), "aaa")
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "hallucinated", suggestions[0].Slug)

	_, err = workbench.SuggestFailureModes(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
