package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1a1a8c", Dark: "#8c8cff"})
	labelStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
	quoteStyle = mutedStyle
	passStyle  = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1a8c1a", Dark: "#5fd75f"})
	failStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#8c1a1a", Dark: "#ff5f5f"})
	modeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#8c5a1a", Dark: "#ffaf5f"})
	divider = mutedStyle.Render(strings.Repeat("─", 72))
)

// Render lays the ViewModel out as a full screen of text.
func Render(vm ViewModel) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s  %s\n",
		headerStyle.Render("Email "+vm.Position),
		mutedStyle.Render("run "+vm.RunID),
		mutedStyle.Render("labeler "+vm.LabelerName))
	b.WriteString(divider + "\n")

	if vm.Empty {
		b.WriteString(mutedStyle.Render("No emails in this run.") + "\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Subject:"), vm.Subject)
	if vm.From != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("From:"), vm.From)
	}
	if vm.To != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("To:"), vm.To)
	}
	if vm.Cc != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Cc:"), vm.Cc)
	}
	if vm.Date != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Date:"), vm.Date)
	}

	b.WriteString("\n")
	for _, line := range vm.Body {
		if line.Quoted {
			b.WriteString(quoteStyle.Render(line.Text) + "\n")
		} else {
			b.WriteString(line.Text + "\n")
		}
	}

	b.WriteString(divider + "\n")
	b.WriteString(labelStyle.Render("Summary") + "\n")
	if vm.Summary != "" {
		b.WriteString(vm.Summary + "\n")
	} else {
		b.WriteString(mutedStyle.Render("(no summary captured)") + "\n")
	}

	b.WriteString("\n" + labelStyle.Render("Commitments") + "\n")
	if len(vm.Commitments) > 0 {
		for _, c := range vm.Commitments {
			fmt.Fprintf(&b, "  • %s\n", c)
		}
	} else {
		b.WriteString(mutedStyle.Render("(none extracted)") + "\n")
	}

	b.WriteString(divider + "\n")
	b.WriteString(labelStyle.Render("Judgment: "))
	switch {
	case !vm.HasJudgment:
		b.WriteString(mutedStyle.Render("No judgment yet") + "\n")
	case vm.Pass:
		b.WriteString(passStyle.Render("PASS") + "\n")
	default:
		b.WriteString(failStyle.Render("FAIL") + "\n")
	}

	if len(vm.Notes) > 0 {
		b.WriteString("\n" + labelStyle.Render("Notes") + "\n")
		for _, note := range vm.Notes {
			fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("["+note.Labeler+"]"), note.Text)
		}
	}

	if len(vm.AttachedModes) > 0 {
		b.WriteString("\n" + labelStyle.Render("Failure modes") + "\n")
		for _, fm := range vm.AttachedModes {
			fmt.Fprintf(&b, "  %s\n", modeStyle.Render("⊗ "+fm.DisplayName))
		}
	}

	b.WriteString(divider + "\n")
	b.WriteString(mutedStyle.Render("h/l or ←/→ navigate · p pass · f fail · u clear · n note · x delete note · a attach · d detach · s suggest · w labeler · q quit") + "\n")

	return b.String()
}
