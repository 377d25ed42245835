package compliance

import (
	"strings"
	"testing"
)

func validRule() Rule {
	return Rule{
		ID:       "r1",
		Name:     "Termination required",
		Type:     RuleTypeRequiredClause,
		Severity: SeverityHigh,
		Params:   &RequiredClauseParams{Category: "termination"},
		Active:   true,
	}
}

func TestValidateRule(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr string
	}{
		{
			name:   "valid rule",
			mutate: func(r *Rule) {},
		},
		{
			name:    "missing name",
			mutate:  func(r *Rule) { r.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "unknown severity",
			mutate:  func(r *Rule) { r.Severity = "urgent" },
			wantErr: "unknown severity",
		},
		{
			name:    "pattern on non-pattern rule",
			mutate:  func(r *Rule) { r.Pattern = `\d+` },
			wantErr: "only allowed on custom_pattern",
		},
		{
			name:    "required clause without category",
			mutate:  func(r *Rule) { r.Params = &RequiredClauseParams{} },
			wantErr: "need a category",
		},
		{
			name: "prohibited clause without category",
			mutate: func(r *Rule) {
				r.Type = RuleTypeProhibitedClause
				r.Params = &ProhibitedClauseParams{}
			},
			wantErr: "need a category",
		},
		{
			name: "term rule without terms",
			mutate: func(r *Rule) {
				r.Type = RuleTypeRequiredTerm
				r.Params = &RequiredTermParams{}
			},
			wantErr: "at least one term",
		},
		{
			name: "term rule with empty term",
			mutate: func(r *Rule) {
				r.Type = RuleTypeProhibitedTerm
				r.Params = &ProhibitedTermParams{Terms: []string{"ok", ""}}
			},
			wantErr: "empty strings",
		},
		{
			name: "too many terms",
			mutate: func(r *Rule) {
				terms := make([]string, maxTermsPerRule+1)
				for i := range terms {
					terms[i] = "term"
				}
				r.Type = RuleTypeRequiredTerm
				r.Params = &RequiredTermParams{Terms: terms}
			},
			wantErr: "maximum allowed",
		},
		{
			name: "threshold without field",
			mutate: func(r *Rule) {
				r.Type = RuleTypeNumericThreshold
				r.Params = &NumericThresholdParams{Min: f64(1)}
			},
			wantErr: "need a field",
		},
		{
			name: "threshold without bounds",
			mutate: func(r *Rule) {
				r.Type = RuleTypeNumericThreshold
				r.Params = &NumericThresholdParams{Field: "cap"}
			},
			wantErr: "at least one of min, max",
		},
		{
			name: "threshold with inverted bounds",
			mutate: func(r *Rule) {
				r.Type = RuleTypeNumericThreshold
				r.Params = &NumericThresholdParams{Field: "cap", Min: f64(10), Max: f64(1)}
			},
			wantErr: "exceeds max",
		},
		{
			name: "pattern rule without pattern",
			mutate: func(r *Rule) {
				r.Type = RuleTypeCustomPattern
				r.Params = &CustomPatternParams{ShouldMatch: true}
			},
			wantErr: "need a pattern",
		},
		{
			name: "pattern rule with bad regex",
			mutate: func(r *Rule) {
				r.Type = RuleTypeCustomPattern
				r.Pattern = `([unclosed`
				r.Params = &CustomPatternParams{ShouldMatch: true}
			},
			wantErr: "invalid pattern",
		},
		{
			name: "valid pattern rule",
			mutate: func(r *Rule) {
				r.Type = RuleTypeCustomPattern
				r.Pattern = `\d+ days`
				r.Params = &CustomPatternParams{ShouldMatch: true}
			},
		},
		{
			name: "expression rule without expression",
			mutate: func(r *Rule) {
				r.Type = RuleTypeExpression
				r.Params = &ExpressionParams{}
			},
			wantErr: "need an expression",
		},
		{
			name: "expression rule with compile error",
			mutate: func(r *Rule) {
				r.Type = RuleTypeExpression
				r.Params = &ExpressionParams{Expression: `text.contains(`}
			},
			wantErr: "invalid expression",
		},
		{
			name: "valid expression rule",
			mutate: func(r *Rule) {
				r.Type = RuleTypeExpression
				r.Params = &ExpressionParams{Expression: `text.contains("notice")`}
			},
		},
		{
			name: "date requirement storable without params",
			mutate: func(r *Rule) {
				r.Type = RuleTypeDateRequirement
				r.Params = nil
			},
		},
		{
			name: "party requirement storable without params",
			mutate: func(r *Rule) {
				r.Type = RuleTypePartyRequirement
				r.Params = nil
			},
		},
		{
			name: "unknown rule type rejected",
			mutate: func(r *Rule) {
				r.Type = "made_up"
				r.Params = nil
			},
			wantErr: "unknown rule type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(&r)
			err := e.ValidateRule(r)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateRule() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateRule() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePlaybook(t *testing.T) {
	e := newTestEngine(t)

	t.Run("valid", func(t *testing.T) {
		pb := Playbook{Name: "MSA Review", Rules: []Rule{validRule()}}
		if err := e.ValidatePlaybook(pb); err != nil {
			t.Errorf("ValidatePlaybook() = %v, want nil", err)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		pb := Playbook{Rules: []Rule{validRule()}}
		if err := e.ValidatePlaybook(pb); err == nil {
			t.Error("ValidatePlaybook() should require a name")
		}
	})

	t.Run("too many rules", func(t *testing.T) {
		rules := make([]Rule, maxRulesPerPlaybook+1)
		for i := range rules {
			rules[i] = validRule()
		}
		pb := Playbook{Name: "huge", Rules: rules}
		err := e.ValidatePlaybook(pb)
		if err == nil || !strings.Contains(err.Error(), "maximum allowed") {
			t.Errorf("ValidatePlaybook() = %v, want rule-count error", err)
		}
	})

	t.Run("bad rule names the rule", func(t *testing.T) {
		bad := validRule()
		bad.Params = &RequiredClauseParams{}
		pb := Playbook{Name: "MSA Review", Rules: []Rule{bad}}
		err := e.ValidatePlaybook(pb)
		if err == nil || !strings.Contains(err.Error(), `"Termination required"`) {
			t.Errorf("ValidatePlaybook() = %v, want error naming the rule", err)
		}
	})
}
