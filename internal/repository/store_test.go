package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mettafore/evals-workshop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func seedRun(t *testing.T, store *Store, runID string, generatedAt time.Time) {
	t.Helper()

	require.NoError(t, store.UpsertRun(&models.TraceRun{
		RunID:       runID,
		ModelName:   "gpt-4o-mini",
		GeneratedAt: generatedAt,
	}))
}

func seedEmail(t *testing.T, store *Store, runID, hash string, ingestedAt time.Time) {
	t.Helper()

	require.NoError(t, store.SaveEmail(&models.Email{
		Hash:       hash,
		Subject:    "Quarterly planning",
		Body:       "Let's sync on Friday.",
		Metadata:   map[string]string{"from_email": "alice@example.com"},
		RunID:      runID,
		IngestedAt: ingestedAt,
	}))
}

func TestResolveRun(t *testing.T) {
	store := newTestStore(t)

	runID, err := store.ResolveRun("")
	require.NoError(t, err)
	assert.Empty(t, runID, "no runs loaded yet")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-old", base)
	seedRun(t, store, "run-new", base.Add(time.Hour))

	runID, err = store.ResolveRun("")
	require.NoError(t, err)
	assert.Equal(t, "run-new", runID, "defaults to latest run")

	runID, err = store.ResolveRun("run-old")
	require.NoError(t, err)
	assert.Equal(t, "run-old", runID, "explicit run wins when it exists")

	runID, err = store.ResolveRun("run-missing")
	require.NoError(t, err)
	assert.Equal(t, "run-new", runID, "unknown run falls back to latest")
}

func TestListEmailHashesOrdering(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)
	seedRun(t, store, "run-2", base.Add(time.Hour))

	seedEmail(t, store, "run-1", "bbb", base.Add(2*time.Minute))
	seedEmail(t, store, "run-1", "aaa", base.Add(1*time.Minute))
	seedEmail(t, store, "run-2", "ccc", base.Add(3*time.Minute))

	hashes, err := store.ListEmailHashes("run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb"}, hashes, "ingestion order within the run")

	hashes, err = store.ListEmailHashes("run-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"ccc"}, hashes)
}

func TestJudgmentUpsertReplacesPriorVerdict(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)
	seedEmail(t, store, "run-1", "aaa", base)

	require.NoError(t, store.UpsertJudgment(&models.Judgment{
		EmailHash: "aaa", LabelerID: "lab-1", RunID: "run-1", PassFail: true,
	}))
	require.NoError(t, store.UpsertJudgment(&models.Judgment{
		EmailHash: "aaa", LabelerID: "lab-1", RunID: "run-1", PassFail: false,
	}))

	judgment, err := store.GetJudgment("aaa", "lab-1")
	require.NoError(t, err)
	require.NotNil(t, judgment)
	assert.False(t, judgment.PassFail, "latest verdict wins")
	assert.False(t, judgment.UpdatedAt.Before(judgment.JudgedAt))

	var count int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM email_judgments WHERE email_hash = ? AND labeler_id = ?", "aaa", "lab-1",
	).Scan(&count))
	assert.Equal(t, 1, count, "exactly one judgment row per (email, labeler)")
}

func TestJudgmentsAreScopedPerLabeler(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)
	seedEmail(t, store, "run-1", "aaa", base)

	require.NoError(t, store.UpsertJudgment(&models.Judgment{
		EmailHash: "aaa", LabelerID: "lab-1", RunID: "run-1", PassFail: true,
	}))
	require.NoError(t, store.UpsertJudgment(&models.Judgment{
		EmailHash: "aaa", LabelerID: "lab-2", RunID: "run-1", PassFail: false,
	}))

	require.NoError(t, store.DeleteJudgment("aaa", "lab-1"))

	judgment, err := store.GetJudgment("aaa", "lab-1")
	require.NoError(t, err)
	assert.Nil(t, judgment, "deleted judgment is gone")

	judgment, err = store.GetJudgment("aaa", "lab-2")
	require.NoError(t, err)
	require.NotNil(t, judgment, "other labeler's judgment untouched")
	assert.False(t, judgment.PassFail)
}

func TestAnnotationUpdateInPlace(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)
	seedEmail(t, store, "run-1", "aaa", base)

	ann := &models.Annotation{
		ID: "ann-1", EmailHash: "aaa", LabelerID: "lab-1",
		OpenCode: "missed the Friday deadline", RunID: "run-1",
	}
	require.NoError(t, store.SaveAnnotation(ann))

	require.NoError(t, store.UpdateAnnotation("ann-1", "missed the Friday deadline and the owner"))

	annotations, err := store.GetAnnotationsByEmail("aaa")
	require.NoError(t, err)
	require.Len(t, annotations, 1, "update does not grow the annotation count")
	assert.Equal(t, "missed the Friday deadline and the owner", annotations[0].OpenCode)

	err = store.UpdateAnnotation("ann-missing", "whatever")
	assert.Error(t, err, "updating a missing annotation fails loudly")
}

func TestDeleteAnnotationCascadesLinks(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)
	seedEmail(t, store, "run-1", "aaa", base)

	require.NoError(t, store.SaveAnnotation(&models.Annotation{
		ID: "ann-1", EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "wrong owner", RunID: "run-1",
	}))
	fm, err := store.CreateFailureMode(&models.FailureMode{
		ID: "fm-1", Slug: "wrong-owner", DisplayName: "Wrong Owner",
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateAxialLink(&models.AxialLink{
		AnnotationID: "ann-1", FailureModeID: fm.ID, RunID: "run-1",
	}))

	require.NoError(t, store.DeleteAnnotation("ann-1"))

	attached, err := store.GetAttachedFailureModes("aaa")
	require.NoError(t, err)
	assert.Empty(t, attached)

	ann, err := store.GetAnnotation("ann-1")
	require.NoError(t, err)
	assert.Nil(t, ann)
}

func TestAxialLinkPairIsUnique(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)
	seedEmail(t, store, "run-1", "aaa", base)

	require.NoError(t, store.SaveAnnotation(&models.Annotation{
		ID: "ann-1", EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "made up a meeting", RunID: "run-1",
	}))
	_, err := store.CreateFailureMode(&models.FailureMode{
		ID: "fm-1", Slug: "hallucinated-detail", DisplayName: "Hallucinated Detail",
	})
	require.NoError(t, err)
	_, err = store.CreateFailureMode(&models.FailureMode{
		ID: "fm-2", Slug: "missed-commitment", DisplayName: "Missed Commitment",
	})
	require.NoError(t, err)

	link := &models.AxialLink{AnnotationID: "ann-1", FailureModeID: "fm-1", RunID: "run-1"}
	require.NoError(t, store.CreateAxialLink(link))
	require.NoError(t, store.CreateAxialLink(link), "re-linking the same pair is a no-op")
	require.NoError(t, store.CreateAxialLink(&models.AxialLink{
		AnnotationID: "ann-1", FailureModeID: "fm-2", RunID: "run-1",
	}))

	attached, err := store.GetAttachedFailureModes("aaa")
	require.NoError(t, err)
	assert.Len(t, attached, 2)
}

func TestDeleteAxialLinkLeavesOtherLinksIntact(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)
	seedEmail(t, store, "run-1", "aaa", base)

	require.NoError(t, store.SaveAnnotation(&models.Annotation{
		ID: "ann-1", EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "summary is off", RunID: "run-1",
	}))
	for _, fm := range []models.FailureMode{
		{ID: "fm-1", Slug: "wrong-date", DisplayName: "Wrong Date"},
		{ID: "fm-2", Slug: "wrong-owner", DisplayName: "Wrong Owner"},
	} {
		fm := fm
		_, err := store.CreateFailureMode(&fm)
		require.NoError(t, err)
		require.NoError(t, store.CreateAxialLink(&models.AxialLink{
			AnnotationID: "ann-1", FailureModeID: fm.ID, RunID: "run-1",
		}))
	}

	require.NoError(t, store.DeleteAxialLink("ann-1", "fm-1"))

	attached, err := store.GetAttachedFailureModes("aaa")
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, "fm-2", attached[0].FailureModeID)
}

func TestCreateFailureModeReusesSlug(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateFailureMode(&models.FailureMode{
		ID: "fm-1", Slug: "hallucinated-detail", DisplayName: "Hallucinated Detail",
	})
	require.NoError(t, err)

	second, err := store.CreateFailureMode(&models.FailureMode{
		ID: "fm-other", Slug: "hallucinated-detail", DisplayName: "Hallucinated Detail (dup)",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same slug resolves to the existing taxonomy row")

	modes, err := store.ListFailureModes()
	require.NoError(t, err)
	assert.Len(t, modes, 1)
}

func TestClearAnnotationDataPreservesRunsAndLabelers(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)
	seedEmail(t, store, "run-1", "aaa", base)
	require.NoError(t, store.CreateLabeler(&models.Labeler{ID: "lab-1", Name: "Priya"}))

	require.NoError(t, store.UpsertJudgment(&models.Judgment{
		EmailHash: "aaa", LabelerID: "lab-1", RunID: "run-1", PassFail: false,
	}))
	require.NoError(t, store.SaveAnnotation(&models.Annotation{
		ID: "ann-1", EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "bad summary", RunID: "run-1",
	}))
	fm, err := store.CreateFailureMode(&models.FailureMode{ID: "fm-1", Slug: "bad", DisplayName: "Bad"})
	require.NoError(t, err)
	require.NoError(t, store.CreateAxialLink(&models.AxialLink{
		AnnotationID: "ann-1", FailureModeID: fm.ID, RunID: "run-1",
	}))

	require.NoError(t, store.ClearAnnotationData())

	counts, err := store.CountAnnotationData()
	require.NoError(t, err)
	assert.Zero(t, counts.AxialLinks)
	assert.Zero(t, counts.Annotations)
	assert.Zero(t, counts.Judgments)
	assert.Zero(t, counts.FailureModes)
	assert.Equal(t, 1, counts.TraceRuns, "runs preserved")
	assert.Equal(t, 1, counts.Labelers, "labelers preserved")
}

func TestLabelerRosterOrdering(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateLabeler(&models.Labeler{ID: "lab-2", Name: "Sam", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.CreateLabeler(&models.Labeler{ID: "lab-1", Name: "Priya", CreatedAt: base}))

	labelers, err := store.ListLabelers()
	require.NoError(t, err)
	require.Len(t, labelers, 2)
	assert.Equal(t, "Priya", labelers[0].Name, "creation order")

	// Re-creating the same id refreshes the row instead of duplicating it.
	require.NoError(t, store.CreateLabeler(&models.Labeler{ID: "lab-1", Name: "Priya K", CreatedAt: base}))
	labelers, err = store.ListLabelers()
	require.NoError(t, err)
	require.Len(t, labelers, 2)
	assert.Equal(t, "Priya K", labelers[0].Name)
}

func TestEmailRoundTrip(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, store, "run-1", base)

	require.NoError(t, store.SaveEmail(&models.Email{
		Hash:    "aaa",
		Subject: "Budget review",
		Body:    "Numbers attached.\n> original message below",
		Metadata: map[string]string{
			"from_email": "cfo@example.com",
			"to_emails":  "team@example.com",
		},
		RunID:       "run-1",
		Summary:     "CFO shares budget numbers.",
		Commitments: []string{"Review numbers by Monday"},
		IngestedAt:  base,
	}))

	email, err := store.GetEmail("aaa")
	require.NoError(t, err)
	require.NotNil(t, email)
	assert.Equal(t, "Budget review", email.Subject)
	assert.Equal(t, "cfo@example.com", email.Metadata["from_email"])
	assert.Equal(t, []string{"Review numbers by Monday"}, email.Commitments)

	missing, err := store.GetEmail("zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
