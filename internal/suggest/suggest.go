// Package suggest proposes failure-mode taxonomy entries for an annotated
// email. Providers are pluggable: LLM-backed ones for richer suggestions,
// a token-frequency heuristic as the always-available fallback.
package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/mettafore/evals-workshop/internal/models"
)

// Input is everything a provider may draw on: the email under review, the
// open codes labelers have written on it, and the existing taxonomy.
type Input struct {
	Email     *models.Email
	OpenCodes []string
	Existing  []models.FailureMode
}

// Provider proposes failure modes for one email.
type Provider interface {
	Suggest(ctx context.Context, input Input) ([]models.Suggestion, error)
	Name() string
	Close() error
}

// SystemInstruction primes LLM providers for the taxonomy task.
const SystemInstruction = `You help an email-summarization evaluation team grow a taxonomy of summarizer failure modes (axial codes).
Given an email, its model-generated summary, and the free-text notes human labelers wrote about it, propose up to 5 reusable failure mode categories.
Prefer reusing the existing taxonomy entries you are shown; only invent a new category when none of them fits.
Respond with a JSON array of objects, each with keys "display_name", "slug" (lowercase, dash-separated) and "definition" (one sentence). No other text.`

// BuildPrompt renders the user prompt for LLM providers.
func BuildPrompt(input Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Subject: %s\n\n", input.Email.Subject)
	fmt.Fprintf(&b, "Email body:\n```\n%s\n```\n\n", input.Email.Body)
	if input.Email.Summary != "" {
		fmt.Fprintf(&b, "Model summary:\n%s\n\n", input.Email.Summary)
	}
	if len(input.Email.Commitments) > 0 {
		b.WriteString("Model-extracted commitments:\n")
		for _, c := range input.Email.Commitments {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	if len(input.OpenCodes) > 0 {
		b.WriteString("Labeler notes (open codes):\n")
		for _, code := range input.OpenCodes {
			fmt.Fprintf(&b, "- %s\n", code)
		}
		b.WriteString("\n")
	}
	if len(input.Existing) > 0 {
		b.WriteString("Existing failure mode taxonomy:\n")
		for _, fm := range input.Existing {
			fmt.Fprintf(&b, "- %s (%s): %s\n", fm.DisplayName, fm.Slug, fm.Definition)
		}
		b.WriteString("\n")
	}
	b.WriteString("Propose failure modes now.")

	return b.String()
}

// Slugify derives a slug from a display name the way the API does.
func Slugify(displayName string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(displayName)), " ", "-")
}
