package scoring

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var bundledQuestions []byte

type Option struct {
	Type TypeID `yaml:"type" json:"type"`
	Text string `yaml:"text" json:"text"`
}

type RankingQuestion struct {
	ID       string   `yaml:"id" json:"id"`
	LikertID string   `yaml:"likert_id" json:"likert_id"`
	Prompt   string   `yaml:"prompt" json:"prompt"`
	Options  []Option `yaml:"options" json:"options"`
}

type LikertQuestion struct {
	ID     string `yaml:"id" json:"id"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Bank is the full questionnaire. Ranking question order is significant:
// response rankings are keyed by index into Ranking.
type Bank struct {
	Version string            `yaml:"version" json:"version"`
	Likert  []LikertQuestion  `yaml:"likert" json:"likert"`
	Ranking []RankingQuestion `yaml:"ranking" json:"ranking"`
}

// LoadBank parses and validates the bundled questionnaire.
func LoadBank() (*Bank, error) {
	return ParseBank(bundledQuestions)
}

func ParseBank(raw []byte) (*Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Bank) Validate() error {
	if len(b.Ranking) == 0 {
		return fmt.Errorf("question bank: no ranking questions")
	}
	likert := make(map[string]bool, len(b.Likert))
	for _, l := range b.Likert {
		id := strings.TrimSpace(l.ID)
		if id == "" {
			return fmt.Errorf("question bank: likert question without id")
		}
		if likert[id] {
			return fmt.Errorf("question bank: duplicate likert id %q", id)
		}
		likert[id] = true
	}
	seen := make(map[string]bool, len(b.Ranking))
	for i, q := range b.Ranking {
		if seen[q.ID] {
			return fmt.Errorf("question bank: duplicate ranking id %q", q.ID)
		}
		seen[q.ID] = true
		if !likert[q.LikertID] {
			return fmt.Errorf("question bank: ranking question %d references unknown likert id %q", i, q.LikertID)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question bank: ranking question %d needs at least two options", i)
		}
		for j, opt := range q.Options {
			if !IsTypeID(string(opt.Type)) {
				return fmt.Errorf("question bank: question %d option %d has invalid type %q", i, j, opt.Type)
			}
		}
	}
	return nil
}

// MatchesBaseline reports whether the ranking set still has the size the
// 100-point scale was calibrated for.
func (b *Bank) MatchesBaseline() bool {
	return len(b.Ranking) == BaselineQuestionCount
}

func (b *Bank) LikertIDs() map[string]bool {
	out := make(map[string]bool, len(b.Likert))
	for _, l := range b.Likert {
		out[l.ID] = true
	}
	return out
}
