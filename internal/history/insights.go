package history

import (
	"sort"
)

// StrategyStat aggregates outcomes for one strategy name.
type StrategyStat struct {
	Name        string  `json:"name"`
	Runs        int     `json:"runs"`
	SuccessRate float64 `json:"success_rate"`
}

// FailurePattern is a recurring error message and how often it appeared.
type FailurePattern struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Insights summarizes the recorded outcomes.
type Insights struct {
	TotalRuns          int              `json:"total_runs"`
	SuccessRate        float64          `json:"success_rate"`
	AvgAttempts        float64          `json:"avg_attempts"`
	AvgCost            float64          `json:"avg_cost"`
	AvgDurationSeconds float64          `json:"avg_duration_seconds"`
	BestStrategies     []StrategyStat   `json:"best_strategies,omitempty"`
	CommonFailures     []FailurePattern `json:"common_failures,omitempty"`
}

// maxReportedFailures caps the common-failure list in insights output.
const maxReportedFailures = 5

// Insights computes aggregate statistics over all recorded outcomes.
func (s *Store) Insights() (*Insights, error) {
	outcomes, err := s.all()
	if err != nil {
		return nil, err
	}

	ins := &Insights{TotalRuns: len(outcomes)}
	if len(outcomes) == 0 {
		return ins, nil
	}

	var successes int
	byStrategy := make(map[string]*StrategyStat)
	failureCounts := make(map[string]int)

	for _, o := range outcomes {
		if o.Success {
			successes++
		}
		ins.AvgAttempts += float64(o.AttemptsUsed)
		ins.AvgCost += o.Cost
		ins.AvgDurationSeconds += o.DurationSeconds

		stat, ok := byStrategy[o.StrategyUsed]
		if !ok {
			stat = &StrategyStat{Name: o.StrategyUsed}
			byStrategy[o.StrategyUsed] = stat
		}
		stat.Runs++
		if o.Success {
			stat.SuccessRate++ // holds raw success count until the division below
		}

		for _, msg := range o.ErrorMessages {
			failureCounts[msg]++
		}
	}

	n := float64(len(outcomes))
	ins.SuccessRate = float64(successes) / n
	ins.AvgAttempts /= n
	ins.AvgCost /= n
	ins.AvgDurationSeconds /= n

	for _, stat := range byStrategy {
		stat.SuccessRate /= float64(stat.Runs)
		ins.BestStrategies = append(ins.BestStrategies, *stat)
	}
	sort.Slice(ins.BestStrategies, func(i, j int) bool {
		a, b := ins.BestStrategies[i], ins.BestStrategies[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		if a.Runs != b.Runs {
			return a.Runs > b.Runs
		}
		return a.Name < b.Name
	})

	for msg, count := range failureCounts {
		if count < 2 {
			continue
		}
		ins.CommonFailures = append(ins.CommonFailures, FailurePattern{Message: msg, Count: count})
	}
	sort.Slice(ins.CommonFailures, func(i, j int) bool {
		a, b := ins.CommonFailures[i], ins.CommonFailures[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Message < b.Message
	})
	if len(ins.CommonFailures) > maxReportedFailures {
		ins.CommonFailures = ins.CommonFailures[:maxReportedFailures]
	}

	return ins, nil
}

// StrategyHints returns the historical success rate per strategy name among
// outcomes whose label set overlaps the given labels. With no labels, all
// outcomes contribute. The result feeds the planner's ranking boost and is
// purely advisory.
func (s *Store) StrategyHints(labels []string) (map[string]float64, error) {
	outcomes, err := s.all()
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}

	runs := make(map[string]int)
	wins := make(map[string]int)
	for _, o := range outcomes {
		if len(want) > 0 && !overlaps(o.Labels, want) {
			continue
		}
		runs[o.StrategyUsed]++
		if o.Success {
			wins[o.StrategyUsed]++
		}
	}

	hints := make(map[string]float64, len(runs))
	for name, total := range runs {
		hints[name] = float64(wins[name]) / float64(total)
	}
	return hints, nil
}

func overlaps(labels []string, want map[string]bool) bool {
	for _, l := range labels {
		if want[l] {
			return true
		}
	}
	return false
}
