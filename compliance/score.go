package compliance

import "github.com/shopspring/decimal"

// ComplianceScore reduces a list of verdicts to a 0-100 score, rounded to
// two decimal places.
//
// Only failed verdicts accrue penalty, weighted by severity. The maximum
// penalty is every checked rule failing at critical weight, so a single
// critical failure weighs more against a small playbook than a large one.
func ComplianceScore(verdicts []Verdict) Score {
	checked := len(verdicts)
	if checked == 0 {
		// No rules, nothing to fail.
		return 100
	}

	var totalPenalty float64
	for _, v := range verdicts {
		if v.Status == StatusFailed {
			totalPenalty += v.Severity.Weight()
		}
	}

	maxPenalty := float64(checked) * SeverityCritical.Weight()
	if maxPenalty == 0 {
		return 100
	}

	score := 100 - (totalPenalty/maxPenalty)*100
	if score < 0 {
		score = 0
	}
	return Score(decimal.NewFromFloat(score).Round(2).InexactFloat64())
}

// ClassifyStatus maps a score plus critical/high failure counts to an
// overall status. Clauses are checked in strict priority order: a single
// critical violation is never hidden behind an otherwise-high score.
func ClassifyStatus(score Score, criticalFailures, highFailures int) OverallStatus {
	if criticalFailures > 0 {
		return NonCompliant
	}
	if score >= 90 && highFailures == 0 {
		return Compliant
	}
	if score >= 70 {
		return PartialCompliant
	}
	return NonCompliant
}

// FailureCounts tallies failed verdicts per severity.
func FailureCounts(verdicts []Verdict) map[Severity]int {
	counts := map[Severity]int{
		SeverityCritical: 0,
		SeverityHigh:     0,
		SeverityMedium:   0,
		SeverityLow:      0,
		SeverityInfo:     0,
	}
	for _, v := range verdicts {
		if v.Status == StatusFailed {
			counts[v.Severity]++
		}
	}
	return counts
}
