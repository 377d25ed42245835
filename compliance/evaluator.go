package compliance

import (
	"fmt"
	"regexp"
	"strings"
)

// EvaluateRule checks one rule against one contract's facts and returns
// exactly one verdict. It never fails the run: malformed configuration
// (bad regex, unknown rule type, missing numeric field) degrades the
// verdict to a warning instead.
func (e *Engine) EvaluateRule(r Rule, facts ContractFacts) Verdict {
	var v Verdict
	switch p := r.Params.(type) {
	case *RequiredClauseParams:
		v = checkRequiredClause(p, facts)
	case *ProhibitedClauseParams:
		v = checkProhibitedClause(p, facts)
	case *RequiredTermParams:
		v = checkRequiredTerm(p, facts)
	case *ProhibitedTermParams:
		v = checkProhibitedTerm(p, facts)
	case *NumericThresholdParams:
		v = checkNumericThreshold(p, facts)
	case *CustomPatternParams:
		v = checkCustomPattern(r.Pattern, p, facts)
	case *ExpressionParams:
		v = e.exprs.check(r.ID, p, facts)
	default:
		v = Verdict{
			Status:  StatusWarning,
			Message: fmt.Sprintf("Unknown rule type: %s", r.Type),
		}
	}

	v.RuleID = r.ID
	v.RuleName = r.Name
	v.Severity = r.Severity
	applyAutoFix(&v, r.AutoFix)
	return v
}

// applyAutoFix overlays the rule's remediation descriptor on a failed or
// warning verdict; passed verdicts carry no suggestion. Priority:
// replacement text, then replacement clause reference, then
// natural-language instruction, then whatever default the strategy set.
// Only the first two make a verdict auto-fixable.
func applyAutoFix(v *Verdict, fix *AutoFix) {
	if fix == nil || v.Status == StatusPassed {
		return
	}
	switch {
	case fix.ReplacementText != "":
		v.Suggestion = "Replace with: " + fix.ReplacementText
		v.AutoFixable = true
	case fix.ReplacementClauseID != "":
		v.Suggestion = "Insert Clause ID: " + fix.ReplacementClauseID
		v.AutoFixable = true
	case fix.Instruction != "":
		v.Suggestion = "Redline instruction: " + fix.Instruction
	}
}

func checkRequiredClause(p *RequiredClauseParams, facts ContractFacts) Verdict {
	matching := facts.ClausesOfType(p.Category)

	if len(matching) == 0 {
		return Verdict{
			Status:     StatusFailed,
			Message:    fmt.Sprintf("Contract missing required %s clause", p.Category),
			Suggestion: fmt.Sprintf("Add a %s clause", p.Category),
		}
	}

	if p.MustContain != "" {
		want := strings.ToLower(p.MustContain)
		for _, c := range matching {
			if strings.Contains(strings.ToLower(c.Text), want) {
				return Verdict{
					Status:  StatusPassed,
					Message: fmt.Sprintf("Required %s clause present with expected content", p.Category),
				}
			}
		}
		return Verdict{
			Status:     StatusFailed,
			Message:    fmt.Sprintf("%s clause present but missing required text: '%s'", capitalize(p.Category), p.MustContain),
			Suggestion: fmt.Sprintf("Ensure %s clause contains: %s", p.Category, p.MustContain),
		}
	}

	return Verdict{
		Status:  StatusPassed,
		Message: fmt.Sprintf("Required %s clause present", p.Category),
	}
}

func checkProhibitedClause(p *ProhibitedClauseParams, facts ContractFacts) Verdict {
	matching := facts.ClausesOfType(p.Category)

	if len(matching) == 0 {
		return Verdict{
			Status:  StatusPassed,
			Message: fmt.Sprintf("No prohibited %s clause found", p.Category),
		}
	}

	if p.ProhibitedContent != "" {
		want := strings.ToLower(p.ProhibitedContent)
		for _, c := range matching {
			if strings.Contains(strings.ToLower(c.Text), want) {
				return Verdict{
					Status:     StatusFailed,
					Message:    fmt.Sprintf("Contract contains prohibited content in %s: '%s'", p.Category, p.ProhibitedContent),
					Suggestion: fmt.Sprintf("Remove or modify %s clause to exclude: %s", p.Category, p.ProhibitedContent),
				}
			}
		}
	}

	// The category is present but the specific prohibited content is not.
	// Flag for human review rather than passing outright.
	return Verdict{
		Status:     StatusWarning,
		Message:    fmt.Sprintf("Contract contains %s clause - review recommended", p.Category),
		Suggestion: "Review clause to ensure compliance",
	}
}

func checkRequiredTerm(p *RequiredTermParams, facts ContractFacts) Verdict {
	if len(p.Terms) == 0 {
		return Verdict{
			Status:  StatusWarning,
			Message: "No required terms specified",
		}
	}

	text := strings.ToLower(facts.Text)
	var found, missing []string
	for _, term := range p.Terms {
		if strings.Contains(text, strings.ToLower(term)) {
			found = append(found, term)
		} else {
			missing = append(missing, term)
		}
	}

	if p.RequireAll {
		if len(missing) == 0 {
			return Verdict{
				Status:  StatusPassed,
				Message: fmt.Sprintf("All required terms present: %s", strings.Join(p.Terms, ", ")),
			}
		}
		return Verdict{
			Status:     StatusFailed,
			Message:    fmt.Sprintf("Missing required terms: %s", strings.Join(missing, ", ")),
			Suggestion: fmt.Sprintf("Add the following terms: %s", strings.Join(missing, ", ")),
		}
	}

	if len(found) > 0 {
		return Verdict{
			Status:  StatusPassed,
			Message: fmt.Sprintf("Found required term(s): %s", strings.Join(found, ", ")),
		}
	}
	return Verdict{
		Status:     StatusFailed,
		Message:    fmt.Sprintf("None of the required terms found: %s", strings.Join(p.Terms, ", ")),
		Suggestion: fmt.Sprintf("Add at least one of: %s", strings.Join(p.Terms, ", ")),
	}
}

func checkProhibitedTerm(p *ProhibitedTermParams, facts ContractFacts) Verdict {
	if len(p.Terms) == 0 {
		return Verdict{
			Status:  StatusWarning,
			Message: "No prohibited terms specified",
		}
	}

	text := strings.ToLower(facts.Text)
	var found []string
	for _, term := range p.Terms {
		if strings.Contains(text, strings.ToLower(term)) {
			found = append(found, term)
		}
	}

	if len(found) == 0 {
		return Verdict{
			Status:  StatusPassed,
			Message: "No prohibited terms found",
		}
	}
	return Verdict{
		Status:     StatusFailed,
		Message:    fmt.Sprintf("Contract contains prohibited terms: %s", strings.Join(found, ", ")),
		Suggestion: fmt.Sprintf("Remove or replace: %s", strings.Join(found, ", ")),
	}
}

func checkNumericThreshold(p *NumericThresholdParams, facts ContractFacts) Verdict {
	value, ok := facts.Field(p.Field)
	if !ok {
		return Verdict{
			Status:     StatusWarning,
			Message:    fmt.Sprintf("Could not determine %s value from contract", p.Field),
			Suggestion: fmt.Sprintf("Manually verify %s meets requirements", p.Field),
		}
	}

	var violated []string
	if p.Min != nil && value < *p.Min {
		violated = append(violated, fmt.Sprintf("below minimum of %v", *p.Min))
	}
	if p.Max != nil && value > *p.Max {
		violated = append(violated, fmt.Sprintf("above maximum of %v", *p.Max))
	}

	if len(violated) > 0 {
		return Verdict{
			Status:     StatusFailed,
			Message:    fmt.Sprintf("%s (%v) is %s", fieldTitle(p.Field), value, strings.Join(violated, ", ")),
			Suggestion: fmt.Sprintf("Adjust %s to be between %s and %s", p.Field, boundString(p.Min), boundString(p.Max)),
		}
	}

	return Verdict{
		Status:  StatusPassed,
		Message: fmt.Sprintf("%s (%v) within acceptable range", fieldTitle(p.Field), value),
	}
}

func checkCustomPattern(pattern string, p *CustomPatternParams, facts ContractFacts) Verdict {
	if pattern == "" {
		return Verdict{
			Status:  StatusWarning,
			Message: "No pattern specified",
		}
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		// A malformed rule must never abort the whole check.
		return Verdict{
			Status:  StatusWarning,
			Message: fmt.Sprintf("Invalid regex pattern: %v", err),
		}
	}

	matched := re.MatchString(facts.Text)
	if p.ShouldMatch {
		if matched {
			return Verdict{
				Status:  StatusPassed,
				Message: "Required pattern found in contract",
			}
		}
		return Verdict{
			Status:     StatusFailed,
			Message:    "Required pattern not found in contract",
			Suggestion: "Add required content",
		}
	}

	if matched {
		return Verdict{
			Status:     StatusFailed,
			Message:    "Prohibited pattern found in contract",
			Suggestion: "Remove prohibited content",
		}
	}
	return Verdict{
		Status:  StatusPassed,
		Message: "Prohibited pattern not found",
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// fieldTitle turns a snake_case field name into prose, e.g. "liability_cap"
// becomes "Liability Cap".
func fieldTitle(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func boundString(b *float64) string {
	if b == nil {
		return "unbounded"
	}
	return fmt.Sprintf("%v", *b)
}
