package executor

import (
	"embed"
	"fmt"

	"github.com/droverdev/drover/internal/plan"
)

//go:embed prompts/*.md
var promptFS embed.FS

// promptTemplate resolves the prompt template for a phase: an inline
// template on the phase spec wins, then the builtin prompt for the
// phase ID, then the generic fallback.
func promptTemplate(phase *plan.PhaseSpec) (string, error) {
	if phase.Prompt != "" {
		return phase.Prompt, nil
	}

	data, err := promptFS.ReadFile("prompts/" + phase.ID + ".md")
	if err == nil {
		return string(data), nil
	}

	data, err = promptFS.ReadFile("prompts/generic.md")
	if err != nil {
		return "", fmt.Errorf("no prompt template for phase %s: %w", phase.ID, err)
	}
	return string(data), nil
}
