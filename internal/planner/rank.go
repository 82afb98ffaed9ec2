package planner

import (
	"sort"

	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// riskSafety maps risk level to the safety criterion score.
var riskSafety = map[models.RiskLevel]float64{
	models.RiskLow:    1.0,
	models.RiskMedium: 0.6,
	models.RiskHigh:   0.3,
}

// hintBoost scales the historical success rate added to a strategy's score.
// Small on purpose: hints break ties and nudge, they never dominate the
// risk/complexity criteria.
const hintBoost = 0.1

// Score computes the weighted ranking score for one strategy.
// Criteria derive from risk (safety) and complexity (quality, speed,
// simplicity); higher is better on all of them.
func Score(s models.Strategy, weights models.RankWeights) float64 {
	c := float64(s.ClampComplexity())

	safety, ok := riskSafety[s.Risk]
	if !ok {
		safety = riskSafety[models.RiskMedium]
	}
	quality := 1 - c/15
	speed := 1 - c/12
	simplicity := 1 - c/10

	return weights.Safety*safety +
		weights.Quality*quality +
		weights.Speed*speed +
		weights.Simplicity*simplicity
}

// Rank returns a new slice ordered by descending score. The input is not
// modified. Sorting is stable: equal scores keep their generation order.
// hints maps strategy name to historical success rate in [0,1]; nil means
// no history.
func Rank(strategies []models.Strategy, weights models.RankWeights, hints map[string]float64) []models.Strategy {
	ranked := make([]models.Strategy, len(strategies))
	copy(ranked, strategies)

	for i := range ranked {
		score := Score(ranked[i], weights)
		if rate, ok := hints[ranked[i].Name]; ok {
			score += hintBoost * rate
		}
		ranked[i].Score = score
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
