package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/platform/openai"
	"github.com/yungbote/enneagram-backend/internal/scoring"
)

// NarrativeGenerator turns sorted scores into the written analysis.
type NarrativeGenerator interface {
	Generate(ctx context.Context, sorted []scoring.TypeScore) (string, error)
	Model() string
}

const narrativeSystemPrompt = `You are an experienced Enneagram practitioner writing a personal results analysis.
Write in second person, warm but precise. Use plain paragraphs, no markdown headings.
Cover: the dominant type and what drives it, how the next two types colour it,
strengths to lean on, and two or three concrete growth suggestions.
Do not mention numeric scores verbatim and do not invent questionnaire answers.`

type narrativeGenerator struct {
	log     *logger.Logger
	client  openai.Client
	library *scoring.Library
}

func NewNarrativeGenerator(baseLog *logger.Logger, client openai.Client, library *scoring.Library) NarrativeGenerator {
	return &narrativeGenerator{
		log:     baseLog.With("service", "NarrativeGenerator"),
		client:  client,
		library: library,
	}
}

func (g *narrativeGenerator) Model() string {
	if g.client == nil {
		return ""
	}
	return g.client.Model()
}

func (g *narrativeGenerator) Generate(ctx context.Context, sorted []scoring.TypeScore) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("narrative generator not configured (OPENAI_API_KEY)")
	}
	text, err := g.client.GenerateText(ctx, narrativeSystemPrompt, BuildNarrativePrompt(sorted, g.library))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("narrative generator returned empty text")
	}
	return text, nil
}

// BuildNarrativePrompt lists types in the given order, which callers keep
// sorted by score, highest first.
func BuildNarrativePrompt(sorted []scoring.TypeScore, library *scoring.Library) string {
	var b strings.Builder
	b.WriteString("Enneagram scores for this respondent, highest first (0-100 scale):\n")
	for i, ts := range sorted {
		fmt.Fprintf(&b, "%d. Type %s (%s): %.1f\n", i+1, ts.Type, library.Name(ts.Type), ts.Score)
	}
	if len(sorted) > 0 && library != nil {
		if p, ok := library.Get(sorted[0].Type); ok {
			fmt.Fprintf(&b, "\nDominant type core desire: %s\nDominant type core fear: %s\n", p.CoreDesire, p.CoreFear)
		}
	}
	b.WriteString("\nWrite the analysis.")
	return b.String()
}
