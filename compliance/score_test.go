package compliance

import (
	"encoding/json"
	"math/rand"
	"testing"
)

func failedVerdict(sev Severity) Verdict {
	return Verdict{Status: StatusFailed, Severity: sev}
}

func passedVerdict(sev Severity) Verdict {
	return Verdict{Status: StatusPassed, Severity: sev}
}

func TestComplianceScore(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []Verdict
		want     Score
	}{
		{
			name:     "no verdicts",
			verdicts: nil,
			want:     100,
		},
		{
			name:     "all passed",
			verdicts: []Verdict{passedVerdict(SeverityCritical), passedVerdict(SeverityHigh)},
			want:     100,
		},
		{
			// One critical failure out of two checked rules: penalty 10
			// against a maximum of 20.
			name:     "critical failure halves a two-rule playbook",
			verdicts: []Verdict{failedVerdict(SeverityCritical), passedVerdict(SeverityInfo)},
			want:     50,
		},
		{
			name:     "single critical failure alone",
			verdicts: []Verdict{failedVerdict(SeverityCritical)},
			want:     0,
		},
		{
			// 5 / 40 = 12.5% penalty.
			name: "high failure among four rules",
			verdicts: []Verdict{
				failedVerdict(SeverityHigh),
				passedVerdict(SeverityMedium),
				passedVerdict(SeverityLow),
				passedVerdict(SeverityCritical),
			},
			want: 87.5,
		},
		{
			// 0.5 / 30 rounds to 98.33.
			name: "info failure rounds to two decimals",
			verdicts: []Verdict{
				failedVerdict(SeverityInfo),
				passedVerdict(SeverityHigh),
				passedVerdict(SeverityHigh),
			},
			want: 98.33,
		},
		{
			name: "warnings carry no penalty",
			verdicts: []Verdict{
				{Status: StatusWarning, Severity: SeverityCritical},
				{Status: StatusWarning, Severity: SeverityHigh},
			},
			want: 100,
		},
		{
			name: "every rule failing critical floors at zero",
			verdicts: []Verdict{
				failedVerdict(SeverityCritical),
				failedVerdict(SeverityCritical),
				failedVerdict(SeverityCritical),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComplianceScore(tt.verdicts); got != tt.want {
				t.Errorf("ComplianceScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreBounds(t *testing.T) {
	// Scores must stay in [0, 100] no matter the verdict mix.
	mixes := [][]Verdict{
		nil,
		{failedVerdict(SeverityCritical)},
		{failedVerdict(SeverityCritical), failedVerdict(SeverityHigh), failedVerdict(SeverityMedium)},
		{passedVerdict(SeverityInfo)},
		{failedVerdict(SeverityInfo), failedVerdict(SeverityLow)},
	}
	for _, mix := range mixes {
		got := ComplianceScore(mix)
		if got < 0 || got > 100 {
			t.Errorf("ComplianceScore(%v) = %v, out of range", mix, got)
		}
	}
}

func TestCriticalFailureAlwaysNonCompliant(t *testing.T) {
	// One failed critical rule must classify as non-compliant regardless
	// of how many other rules the playbook carries or how they resolve.
	rng := rand.New(rand.NewSource(42))
	severities := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

	for trial := 0; trial < 200; trial++ {
		verdicts := []Verdict{failedVerdict(SeverityCritical)}
		for i := rng.Intn(20); i > 0; i-- {
			sev := severities[rng.Intn(len(severities))]
			if rng.Intn(2) == 0 {
				verdicts = append(verdicts, failedVerdict(sev))
			} else {
				verdicts = append(verdicts, passedVerdict(sev))
			}
		}

		score := ComplianceScore(verdicts)
		counts := FailureCounts(verdicts)
		got := ClassifyStatus(score, counts[SeverityCritical], counts[SeverityHigh])
		if got != NonCompliant {
			t.Fatalf("trial %d: ClassifyStatus(%v, %d, %d) = %s with %d verdicts, want %s",
				trial, score, counts[SeverityCritical], counts[SeverityHigh], got, len(verdicts), NonCompliant)
		}
	}
}

func TestScoreJSONHasTwoDecimals(t *testing.T) {
	tests := []struct {
		score Score
		want  string
	}{
		{100, "100.00"},
		{87.5, "87.50"},
		{98.33, "98.33"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.score)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.score, err)
		}
		if string(b) != tt.want {
			t.Errorf("json.Marshal(%v) = %s, want %s", tt.score, b, tt.want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		score    Score
		critical int
		high     int
		want     OverallStatus
	}{
		{"critical failure overrides perfect score", 100, 1, 0, NonCompliant},
		{"high score no high failures", 95, 0, 0, Compliant},
		{"exactly ninety", 90, 0, 0, Compliant},
		{"high score but high failure", 95, 0, 1, PartialCompliant},
		{"mid score", 75, 0, 0, PartialCompliant},
		{"exactly seventy", 70, 0, 2, PartialCompliant},
		{"low score", 69.99, 0, 0, NonCompliant},
		{"zero score", 0, 0, 0, NonCompliant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStatus(tt.score, tt.critical, tt.high); got != tt.want {
				t.Errorf("ClassifyStatus(%v, %d, %d) = %s, want %s", tt.score, tt.critical, tt.high, got, tt.want)
			}
		})
	}
}

func TestFailureCounts(t *testing.T) {
	verdicts := []Verdict{
		failedVerdict(SeverityCritical),
		failedVerdict(SeverityHigh),
		failedVerdict(SeverityHigh),
		passedVerdict(SeverityHigh),
		{Status: StatusWarning, Severity: SeverityMedium},
		failedVerdict(SeverityInfo),
	}

	counts := FailureCounts(verdicts)
	want := map[Severity]int{
		SeverityCritical: 1,
		SeverityHigh:     2,
		SeverityMedium:   0,
		SeverityLow:      0,
		SeverityInfo:     1,
	}
	for sev, n := range want {
		if counts[sev] != n {
			t.Errorf("counts[%s] = %d, want %d", sev, counts[sev], n)
		}
	}
}
