package compliance

import (
	"fmt"
	"sort"
	"strings"
)

// Fixed closing recommendations. Wording is load-bearing for downstream
// consumers that string-match on these.
const (
	adviceCritical = "Do not proceed with contract execution until critical issues are resolved"
	adviceHigh     = "Seek legal review before finalizing the agreement"
)

// maxSuggestionsPerSeverity caps how many per-violation suggestions the
// recommendation list carries for each of critical and high.
const maxSuggestionsPerSeverity = 3

// BuildReport assembles the final report from verdicts, score, and status.
// Violations are sorted by severity descending; ties keep their original
// rule order. Verdict order in the input must match post-filter rule order.
func BuildReport(verdicts []Verdict, score Score, status OverallStatus) *ComplianceReport {
	var violations, passed, warnings []Verdict
	for _, v := range verdicts {
		switch v.Status {
		case StatusFailed:
			violations = append(violations, v)
		case StatusWarning:
			warnings = append(warnings, v)
		default:
			passed = append(passed, v)
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Severity.rank() < violations[j].Severity.rank()
	})

	counts := FailureCounts(verdicts)

	return &ComplianceReport{
		OverallStatus:    status,
		Score:            score,
		RulesChecked:     len(verdicts),
		RulesPassed:      len(passed),
		RulesFailed:      len(violations),
		RulesWarning:     len(warnings),
		Violations:       violations,
		PassedRules:      passed,
		Warnings:         warnings,
		ExecutiveSummary: executiveSummary(score, status, violations, counts),
		Recommendations:  recommendations(violations, counts),
	}
}

// executiveSummary restates the outcome in prose: overall status and score,
// failure counts per severity, and the leading critical violation verbatim.
func executiveSummary(score Score, status OverallStatus, violations []Verdict, counts map[Severity]int) string {
	statusText := map[OverallStatus]string{
		Compliant:        "fully compliant",
		PartialCompliant: "partially compliant",
		NonCompliant:     "non-compliant",
	}

	text, ok := statusText[status]
	if !ok {
		text = "under review"
	}

	parts := []string{
		fmt.Sprintf("Contract is %s with a compliance score of %.1f%%.", text, float64(score)),
	}

	if n := counts[SeverityCritical]; n > 0 {
		parts = append(parts, fmt.Sprintf("Found %d critical violation(s) requiring immediate attention.", n))
	}
	if n := counts[SeverityHigh]; n > 0 {
		parts = append(parts, fmt.Sprintf("Identified %d high-severity issue(s) that should be addressed.", n))
	}
	if n := counts[SeverityMedium]; n > 0 {
		parts = append(parts, fmt.Sprintf("Detected %d medium-severity concern(s).", n))
	}

	// Violations are already severity-sorted, so the first critical one is
	// the headline.
	for _, v := range violations {
		if v.Severity == SeverityCritical {
			parts = append(parts, fmt.Sprintf("Most critical: %s", v.Message))
			break
		}
	}

	return strings.Join(parts, " ")
}

// recommendations ranks actionable follow-ups: up to three critical-violation
// suggestions, then up to three high, then a fixed instruction when critical
// violations exist, or the legal-review instruction when only high ones do.
// Input order is the sorted violations slice, so output is deterministic.
func recommendations(violations []Verdict, counts map[Severity]int) []string {
	recs := []string{}

	take := func(sev Severity, prefix string) {
		taken := 0
		for _, v := range violations {
			if taken == maxSuggestionsPerSeverity {
				break
			}
			if v.Severity == sev && v.Suggestion != "" {
				recs = append(recs, prefix+" "+v.Suggestion)
				taken++
			}
		}
	}
	take(SeverityCritical, "[CRITICAL]")
	take(SeverityHigh, "[HIGH]")

	switch {
	case counts[SeverityCritical] > 0:
		recs = append(recs, adviceCritical)
	case counts[SeverityHigh] > 0:
		recs = append(recs, adviceHigh)
	}

	return recs
}
