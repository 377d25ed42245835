package compliance

import (
	"strings"
	"testing"
)

func TestBuildReportPartitionsAndCounts(t *testing.T) {
	verdicts := []Verdict{
		{RuleID: "r1", Status: StatusPassed, Severity: SeverityHigh},
		{RuleID: "r2", Status: StatusFailed, Severity: SeverityMedium, Suggestion: "fix medium"},
		{RuleID: "r3", Status: StatusWarning, Severity: SeverityLow},
		{RuleID: "r4", Status: StatusFailed, Severity: SeverityCritical, Suggestion: "fix critical"},
	}

	report := BuildReport(verdicts, 42.5, NonCompliant)

	if report.RulesChecked != 4 {
		t.Errorf("RulesChecked = %d, want 4", report.RulesChecked)
	}
	if report.RulesPassed != 1 || report.RulesFailed != 2 || report.RulesWarning != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/2/1",
			report.RulesPassed, report.RulesFailed, report.RulesWarning)
	}
	if report.RulesPassed+report.RulesFailed+report.RulesWarning != report.RulesChecked {
		t.Error("partition counts should sum to rules checked")
	}
	if report.Score != 42.5 {
		t.Errorf("Score = %v, want 42.5", report.Score)
	}
	if report.OverallStatus != NonCompliant {
		t.Errorf("OverallStatus = %s, want %s", report.OverallStatus, NonCompliant)
	}
}

func TestBuildReportSortsViolationsBySeverity(t *testing.T) {
	verdicts := []Verdict{
		{RuleID: "low-1", Status: StatusFailed, Severity: SeverityLow},
		{RuleID: "high-1", Status: StatusFailed, Severity: SeverityHigh},
		{RuleID: "crit-1", Status: StatusFailed, Severity: SeverityCritical},
		{RuleID: "high-2", Status: StatusFailed, Severity: SeverityHigh},
		{RuleID: "med-1", Status: StatusFailed, Severity: SeverityMedium},
	}

	report := BuildReport(verdicts, 0, NonCompliant)

	wantOrder := []string{"crit-1", "high-1", "high-2", "med-1", "low-1"}
	if len(report.Violations) != len(wantOrder) {
		t.Fatalf("got %d violations, want %d", len(report.Violations), len(wantOrder))
	}
	for i, id := range wantOrder {
		if report.Violations[i].RuleID != id {
			t.Errorf("Violations[%d].RuleID = %s, want %s (ties must keep rule order)",
				i, report.Violations[i].RuleID, id)
		}
	}
}

func TestExecutiveSummary(t *testing.T) {
	t.Run("clean contract", func(t *testing.T) {
		report := BuildReport([]Verdict{
			{RuleID: "r1", Status: StatusPassed, Severity: SeverityHigh},
		}, 100, Compliant)

		want := "Contract is fully compliant with a compliance score of 100.0%."
		if report.ExecutiveSummary != want {
			t.Errorf("ExecutiveSummary = %q, want %q", report.ExecutiveSummary, want)
		}
	})

	t.Run("headline is the first critical violation", func(t *testing.T) {
		report := BuildReport([]Verdict{
			{RuleID: "r1", Status: StatusFailed, Severity: SeverityHigh, Message: "high issue"},
			{RuleID: "r2", Status: StatusFailed, Severity: SeverityCritical, Message: "missing indemnification"},
			{RuleID: "r3", Status: StatusFailed, Severity: SeverityCritical, Message: "second critical"},
		}, 10, NonCompliant)

		s := report.ExecutiveSummary
		if !strings.Contains(s, "Contract is non-compliant with a compliance score of 10.0%.") {
			t.Errorf("summary missing status sentence: %q", s)
		}
		if !strings.Contains(s, "Found 2 critical violation(s) requiring immediate attention.") {
			t.Errorf("summary missing critical count: %q", s)
		}
		if !strings.Contains(s, "Identified 1 high-severity issue(s) that should be addressed.") {
			t.Errorf("summary missing high count: %q", s)
		}
		if !strings.Contains(s, "Most critical: missing indemnification") {
			t.Errorf("summary should headline the top critical violation: %q", s)
		}
		if strings.Contains(s, "second critical") {
			t.Errorf("summary should only headline one violation: %q", s)
		}
	})

	t.Run("medium count included", func(t *testing.T) {
		report := BuildReport([]Verdict{
			{RuleID: "r1", Status: StatusFailed, Severity: SeverityMedium, Message: "m"},
		}, 80, PartialCompliant)
		if !strings.Contains(report.ExecutiveSummary, "Detected 1 medium-severity concern(s).") {
			t.Errorf("summary missing medium count: %q", report.ExecutiveSummary)
		}
		if !strings.Contains(report.ExecutiveSummary, "partially compliant") {
			t.Errorf("summary missing status: %q", report.ExecutiveSummary)
		}
	})
}

func TestRecommendations(t *testing.T) {
	t.Run("caps at three per severity and keeps order", func(t *testing.T) {
		var verdicts []Verdict
		for _, id := range []string{"c1", "c2", "c3", "c4"} {
			verdicts = append(verdicts, Verdict{
				RuleID: id, Status: StatusFailed, Severity: SeverityCritical, Suggestion: "fix " + id,
			})
		}
		for _, id := range []string{"h1", "h2"} {
			verdicts = append(verdicts, Verdict{
				RuleID: id, Status: StatusFailed, Severity: SeverityHigh, Suggestion: "fix " + id,
			})
		}

		report := BuildReport(verdicts, 0, NonCompliant)

		want := []string{
			"[CRITICAL] fix c1",
			"[CRITICAL] fix c2",
			"[CRITICAL] fix c3",
			"[HIGH] fix h1",
			"[HIGH] fix h2",
			adviceCritical,
		}
		if len(report.Recommendations) != len(want) {
			t.Fatalf("got %d recommendations %v, want %d", len(report.Recommendations), report.Recommendations, len(want))
		}
		for i, rec := range want {
			if report.Recommendations[i] != rec {
				t.Errorf("Recommendations[%d] = %q, want %q", i, report.Recommendations[i], rec)
			}
		}
	})

	t.Run("legal review advice only without criticals", func(t *testing.T) {
		report := BuildReport([]Verdict{
			{RuleID: "h1", Status: StatusFailed, Severity: SeverityHigh, Suggestion: "fix h1"},
		}, 80, PartialCompliant)

		want := []string{"[HIGH] fix h1", adviceHigh}
		if len(report.Recommendations) != len(want) {
			t.Fatalf("got %v, want %v", report.Recommendations, want)
		}
		for i, rec := range want {
			if report.Recommendations[i] != rec {
				t.Errorf("Recommendations[%d] = %q, want %q", i, report.Recommendations[i], rec)
			}
		}
	})

	t.Run("critical presence suppresses legal review advice", func(t *testing.T) {
		report := BuildReport([]Verdict{
			{RuleID: "c1", Status: StatusFailed, Severity: SeverityCritical, Suggestion: "fix c1"},
			{RuleID: "h1", Status: StatusFailed, Severity: SeverityHigh, Suggestion: "fix h1"},
		}, 0, NonCompliant)

		for _, rec := range report.Recommendations {
			if rec == adviceHigh {
				t.Errorf("legal review advice should not appear alongside critical advice: %v", report.Recommendations)
			}
		}
		last := report.Recommendations[len(report.Recommendations)-1]
		if last != adviceCritical {
			t.Errorf("last recommendation = %q, want %q", last, adviceCritical)
		}
	})

	t.Run("violations without suggestions are skipped", func(t *testing.T) {
		report := BuildReport([]Verdict{
			{RuleID: "c1", Status: StatusFailed, Severity: SeverityCritical},
		}, 0, NonCompliant)

		want := []string{adviceCritical}
		if len(report.Recommendations) != 1 || report.Recommendations[0] != want[0] {
			t.Errorf("got %v, want %v", report.Recommendations, want)
		}
	})

	t.Run("clean report has no recommendations", func(t *testing.T) {
		report := BuildReport([]Verdict{
			{RuleID: "r1", Status: StatusPassed, Severity: SeverityHigh},
		}, 100, Compliant)
		if len(report.Recommendations) != 0 {
			t.Errorf("got %v, want none", report.Recommendations)
		}
	})
}
