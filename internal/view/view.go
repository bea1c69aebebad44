// Package view turns session state into terminal output. Project builds an
// immutable ViewModel from the loaded detail; Render lays it out with
// lipgloss. Nothing here mutates session state.
package view

import (
	"fmt"
	"strings"

	"github.com/mettafore/evals-workshop/internal/models"
)

// BodyLine is one line of email body with its quote flag. Quoted lines
// (">" prefix) render dimmed.
type BodyLine struct {
	Text   string
	Quoted bool
}

// ViewModel is everything Render needs, precomputed. Building it does no
// I/O and never fails.
type ViewModel struct {
	RunID       string
	LabelerName string
	Position    string

	Subject  string
	From     string
	To       string
	Cc       string
	Date     string
	Body     []BodyLine
	Metadata map[string]string

	Summary     string
	Commitments []string

	HasJudgment bool
	Pass        bool

	Note          string
	Notes         []NoteLine
	AttachedModes []models.AttachedFailureMode

	Empty bool
}

// NoteLine is one labeler's open code, resolved to a display name.
type NoteLine struct {
	Labeler string
	Text    string
}

// FirstPresent returns the first non-blank value, or "" when all are blank.
func FirstPresent(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Sanitize strips control bytes that would corrupt the terminal, keeping
// tabs and newlines.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// splitBody breaks a sanitized body into lines with quote flags.
func splitBody(body string) []BodyLine {
	if body == "" {
		return nil
	}

	raw := strings.Split(body, "\n")
	lines := make([]BodyLine, 0, len(raw))
	for _, line := range raw {
		lines = append(lines, BodyLine{
			Text:   line,
			Quoted: strings.HasPrefix(strings.TrimLeft(line, " "), ">"),
		})
	}
	return lines
}

// State is the session snapshot Project consumes.
type State struct {
	Detail      *models.EmailDetailResponse
	RunID       string
	LabelerID   string
	LabelerName string
	Roster      [][2]string
	Position    int
	Total       int
}

// Project builds the ViewModel for the current session state. A nil detail
// yields the empty-run model.
func Project(st State) ViewModel {
	detail := st.Detail
	vm := ViewModel{
		RunID:       st.RunID,
		LabelerName: FirstPresent(st.LabelerName, st.LabelerID),
	}

	if st.Total == 0 || detail == nil || detail.Email == nil {
		vm.Position = "0 / 0"
		vm.Empty = true
		return vm
	}

	vm.Position = fmt.Sprintf("%d / %d", st.Position, st.Total)

	email := detail.Email
	vm.Subject = Sanitize(FirstPresent(email.Subject, "(no subject)"))

	// Structured fields preferred, raw header text as the fallback; the
	// line is omitted when both are absent.
	vm.From = Sanitize(FirstPresent(email.Metadata["from_email"], email.Metadata["from_raw"]))
	vm.To = Sanitize(FirstPresent(email.Metadata["to_emails"], email.Metadata["to_raw"]))
	vm.Cc = Sanitize(FirstPresent(email.Metadata["cc_emails"], email.Metadata["cc_raw"]))
	vm.Date = Sanitize(email.Metadata["date_raw"])
	vm.Body = splitBody(Sanitize(email.Body))
	vm.Metadata = email.Metadata

	vm.Summary = Sanitize(email.Summary)
	for _, c := range email.Commitments {
		vm.Commitments = append(vm.Commitments, Sanitize(c))
	}

	if detail.Judgment != nil {
		vm.HasJudgment = true
		vm.Pass = detail.Judgment.PassFail
	}

	names := make(map[string]string, len(st.Roster))
	for _, pair := range st.Roster {
		names[pair[0]] = pair[1]
	}
	for _, ann := range detail.Annotations {
		text := Sanitize(ann.OpenCode)
		vm.Notes = append(vm.Notes, NoteLine{
			Labeler: FirstPresent(names[ann.LabelerID], ann.LabelerID),
			Text:    text,
		})
		if ann.LabelerID == st.LabelerID {
			vm.Note = text
		}
	}

	vm.AttachedModes = detail.FailureModes

	return vm
}
