package models

// RiskLevel classifies the estimated risk of an implementation strategy.
type RiskLevel string

const (
	// RiskLow indicates a safe, well-understood change.
	RiskLow RiskLevel = "low"
	// RiskMedium indicates moderate uncertainty.
	RiskMedium RiskLevel = "medium"
	// RiskHigh indicates significant uncertainty or blast radius.
	RiskHigh RiskLevel = "high"
)

// Valid returns true if the risk level is a known value.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// Strategy is one candidate implementation approach for a ticket.
// Strategies are generated fresh per ticket and immutable once ranked;
// the ranked sequence is consumed strictly front-to-back.
type Strategy struct {
	// Name is the short strategy name (e.g., "Minimal change").
	Name string `json:"name"`
	// Approach describes how the strategy would implement the ticket.
	Approach string `json:"approach"`
	// Pros lists advantages of this approach.
	Pros []string `json:"pros"`
	// Cons lists limitations of this approach.
	Cons []string `json:"cons"`
	// Risk is the estimated risk level.
	Risk RiskLevel `json:"risk_level"`
	// Complexity is the estimated complexity on a 1-10 scale.
	Complexity int `json:"estimated_complexity"`
	// Score is the weighted ranking score assigned by the planner.
	Score float64 `json:"score"`
}

// ClampComplexity returns the complexity clamped to the 1-10 scale.
func (s *Strategy) ClampComplexity() int {
	if s.Complexity < 1 {
		return 1
	}
	if s.Complexity > 10 {
		return 10
	}
	return s.Complexity
}

// RankWeights holds the criteria weights used to score strategies.
// Weights should sum to roughly 1.0 but the planner normalizes nothing;
// relative magnitude is what matters.
type RankWeights struct {
	Safety     float64 `json:"safety"`
	Quality    float64 `json:"quality"`
	Speed      float64 `json:"speed"`
	Simplicity float64 `json:"simplicity"`
}

// DefaultRankWeights favors safety first, then quality, then speed.
func DefaultRankWeights() RankWeights {
	return RankWeights{Safety: 0.4, Quality: 0.3, Speed: 0.2, Simplicity: 0.1}
}
