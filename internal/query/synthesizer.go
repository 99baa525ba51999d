package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/rulebook/internal/llm"
	"github.com/hyperjump/rulebook/internal/models"
)

// NoContextAnswer is returned without calling the model when retrieval finds nothing.
const NoContextAnswer = "No relevant rulebook passages were found for this question."

// Synthesizer writes an answer from retrieved nodes.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, sources []*models.ScoredNode) (string, error)
}

// LLMSynthesizer answers with a single completion over the concatenated sources.
type LLMSynthesizer struct {
	completer llm.Completer
}

// NewLLMSynthesizer creates a synthesizer backed by completer.
func NewLLMSynthesizer(completer llm.Completer) *LLMSynthesizer {
	return &LLMSynthesizer{completer: completer}
}

// Synthesize implements Synthesizer.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, query string, sources []*models.ScoredNode) (string, error) {
	if len(sources) == 0 {
		return NoContextAnswer, nil
	}
	answer, err := s.completer.Complete(ctx, answerPrompt(query, sources))
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return answer, nil
}

func answerPrompt(query string, sources []*models.ScoredNode) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the rulebook passages below. ")
	b.WriteString("Cite the volume, module and section of every passage you rely on.\n\n")
	for i, s := range sources {
		m := s.Node.Metadata
		fmt.Fprintf(&b, "[%d] %s", i+1, m.Filename)
		if ref := firstNonEmpty(m.SectionReference, m.ChapterReference, m.ModuleCode); ref != "" {
			fmt.Fprintf(&b, " (%s)", ref)
		}
		b.WriteString("\n")
		b.WriteString(s.Node.Text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", query)
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
