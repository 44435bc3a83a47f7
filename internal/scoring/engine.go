package scoring

import "sort"

// TypeID is one of the nine type ids "1".."9".
type TypeID string

var TypeIDs = []TypeID{"1", "2", "3", "4", "5", "6", "7", "8", "9"}

const (
	// FullScale is what a type scores when it is ranked first, at full
	// weight, on every ranking question.
	FullScale = 100.0

	SecondPlaceMultiplier = 0.5

	// BaselineQuestionCount is the size of the bundled ranking question set.
	BaselineQuestionCount = 12
)

func IsTypeID(s string) bool {
	for _, id := range TypeIDs {
		if string(id) == s {
			return true
		}
	}
	return false
}

type TypeScore struct {
	Type  TypeID  `json:"type"`
	Score float64 `json:"score"`
}

// PointsPerQuestion spreads FullScale evenly over n ranking questions.
func PointsPerQuestion(n int) float64 {
	if n <= 0 {
		return 0
	}
	return FullScale / float64(n)
}

// ComputeScores turns weighted rankings into one score per type.
//
// weights maps likert ids to 0..100 agreement, rankings maps a ranking
// question index to option indices ordered most preferred first. The result
// always holds all nine types and is not rounded.
func ComputeScores(weights map[string]float64, rankings map[int][]int, questions []RankingQuestion) map[TypeID]float64 {
	scores := make(map[TypeID]float64, len(TypeIDs))
	for _, id := range TypeIDs {
		scores[id] = 0
	}
	points := PointsPerQuestion(len(questions))

	for i, q := range questions {
		ranked := rankings[i]
		if len(ranked) == 0 {
			continue
		}
		weight := clampUnit(weights[q.LikertID] / 100)
		if weight == 0 {
			continue
		}
		for place, optIdx := range ranked {
			var factor float64
			switch place {
			case 0:
				factor = 1
			case 1:
				factor = SecondPlaceMultiplier
			default:
				factor = 0
			}
			if factor == 0 {
				break
			}
			if optIdx < 0 || optIdx >= len(q.Options) {
				continue
			}
			t := q.Options[optIdx].Type
			if _, ok := scores[t]; !ok {
				continue
			}
			scores[t] += points * factor * weight
		}
	}
	return scores
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Sorted orders scores highest first. Equal scores keep type id order.
func Sorted(scores map[TypeID]float64) []TypeScore {
	out := make([]TypeScore, 0, len(TypeIDs))
	for _, id := range TypeIDs {
		out = append(out, TypeScore{Type: id, Score: scores[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
