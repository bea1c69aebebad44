package view

import (
	"strings"
	"testing"

	"github.com/mettafore/evals-workshop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDetail() *models.EmailDetailResponse {
	return &models.EmailDetailResponse{
		Email: &models.Email{
			Hash:    "aaa",
			Subject: "Quarterly planning",
			Body:    "Top line.\n> quoted reply\nBottom line.",
			Metadata: map[string]string{
				"from_email": "alice@example.com",
				"to_emails":  "bob@example.com",
				"date_raw":   "Mon, 3 Aug 2026 09:12:00 -0500",
			},
			Summary:     "Planning meeting set for Friday.",
			Commitments: []string{"Send deck by Thursday"},
		},
		Judgment: &models.Judgment{EmailHash: "aaa", LabelerID: "lab-1", PassFail: false},
		Annotations: []models.Annotation{
			{ID: "ann-1", EmailHash: "aaa", LabelerID: "lab-1", OpenCode: "summary invented the day"},
		},
		FailureModes: []models.AttachedFailureMode{
			{FailureModeID: "fm-1", DisplayName: "Hallucinated Detail", AnnotationID: "ann-1"},
		},
	}
}

func TestProject(t *testing.T) {
	vm := Project(State{
		Detail:      sampleDetail(),
		RunID:       "run-1",
		LabelerID:   "lab-1",
		LabelerName: "Priya",
		Roster:      [][2]string{{"lab-1", "Priya"}},
		Position:    2,
		Total:       5,
	})

	assert.False(t, vm.Empty)
	assert.Equal(t, "2 / 5", vm.Position)
	assert.Equal(t, "Quarterly planning", vm.Subject)
	assert.Equal(t, "alice@example.com", vm.From)
	assert.Equal(t, "bob@example.com", vm.To)
	assert.Equal(t, "Mon, 3 Aug 2026 09:12:00 -0500", vm.Date)
	assert.True(t, vm.HasJudgment)
	assert.False(t, vm.Pass)
	assert.Equal(t, "summary invented the day", vm.Note)

	require.Len(t, vm.Notes, 1)
	assert.Equal(t, "Priya", vm.Notes[0].Labeler, "labeler id resolved through the roster")

	require.Len(t, vm.Body, 3)
	assert.False(t, vm.Body[0].Quoted)
	assert.True(t, vm.Body[1].Quoted)
	assert.False(t, vm.Body[2].Quoted)
}

func TestProjectHeaderFallbackChain(t *testing.T) {
	detail := sampleDetail()

	// Structured fields win when present.
	detail.Email.Metadata = map[string]string{
		"from_email": "alice@example.com",
		"from_raw":   "Alice A <alice@example.com>",
		"to_emails":  "bob@example.com",
		"to_raw":     "Bob B <bob@example.com>",
	}
	vm := Project(State{Detail: detail, Position: 1, Total: 1})
	assert.Equal(t, "alice@example.com", vm.From)
	assert.Equal(t, "bob@example.com", vm.To)

	// Raw header text fills in when the structured field is absent or blank.
	detail.Email.Metadata = map[string]string{
		"from_email": "  ",
		"from_raw":   "Alice A <alice@example.com>",
		"to_raw":     "Bob B <bob@example.com>",
		"cc_raw":     "carol@example.com",
	}
	vm = Project(State{Detail: detail, Position: 1, Total: 1})
	assert.Equal(t, "Alice A <alice@example.com>", vm.From)
	assert.Equal(t, "Bob B <bob@example.com>", vm.To)
	assert.Equal(t, "carol@example.com", vm.Cc)

	// Both absent: the field stays empty and the line is omitted.
	detail.Email.Metadata = map[string]string{}
	vm = Project(State{Detail: detail, Position: 1, Total: 1})
	assert.Empty(t, vm.From)
	assert.Empty(t, vm.To)
	assert.Empty(t, vm.Date)

	out := Render(vm)
	assert.NotContains(t, out, "From:")
	assert.NotContains(t, out, "To:")
	assert.NotContains(t, out, "Date:")
}

func TestProjectEmptyRun(t *testing.T) {
	vm := Project(State{RunID: "run-1", LabelerID: "lab-1", Total: 0})

	assert.True(t, vm.Empty)
	assert.Equal(t, "0 / 0", vm.Position)
}

func TestProjectMissingSubjectAndSummary(t *testing.T) {
	detail := sampleDetail()
	detail.Email.Subject = ""
	detail.Email.Summary = ""
	detail.Email.Commitments = nil
	detail.Judgment = nil

	vm := Project(State{Detail: detail, Position: 1, Total: 1})

	assert.Equal(t, "(no subject)", vm.Subject)
	assert.Empty(t, vm.Summary)
	assert.False(t, vm.HasJudgment)

	out := Render(vm)
	assert.Contains(t, out, "(no summary captured)")
	assert.Contains(t, out, "(none extracted)")
	assert.Contains(t, out, "No judgment yet")
}

func TestSanitizeStripsControlBytes(t *testing.T) {
	assert.Equal(t, "clean text", Sanitize("clean\x1b\x07 text"))
	assert.Equal(t, "tab\tand\nnewline", Sanitize("tab\tand\nnewline"))
	assert.Equal(t, "bell", Sanitize("be\x07ll"))
}

func TestFirstPresent(t *testing.T) {
	assert.Equal(t, "b", FirstPresent("", "  ", "b", "c"))
	assert.Equal(t, "", FirstPresent("", "   "))
}

func TestRenderVerdicts(t *testing.T) {
	detail := sampleDetail()
	st := State{Detail: detail, RunID: "run-1", LabelerID: "lab-1", Position: 1, Total: 1}

	out := Render(Project(st))
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "Hallucinated Detail")
	assert.Contains(t, out, "1 / 1")

	detail.Judgment.PassFail = true
	out = Render(Project(st))
	assert.Contains(t, out, "PASS")
}

func TestRenderEmpty(t *testing.T) {
	out := Render(Project(State{RunID: "run-1"}))
	assert.Contains(t, out, "No emails in this run.")
	assert.Contains(t, out, "0 / 0")
	assert.False(t, strings.Contains(out, "Subject:"))
}
