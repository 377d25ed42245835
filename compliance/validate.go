package compliance

import (
	"fmt"
	"regexp"
)

const (
	maxRulesPerPlaybook = 200
	maxTermsPerRule     = 100
)

// ValidatePlaybook checks author-supplied playbook input before it is
// persisted. The evaluator itself degrades malformed rules to warnings at
// check time; validation here is the stricter gate for the write path.
func (e *Engine) ValidatePlaybook(pb Playbook) error {
	if pb.Name == "" {
		return fmt.Errorf("playbook name is required")
	}
	if len(pb.Rules) > maxRulesPerPlaybook {
		return fmt.Errorf("playbook contains %d rules, maximum allowed is %d", len(pb.Rules), maxRulesPerPlaybook)
	}
	for _, r := range pb.Rules {
		if err := e.ValidateRule(r); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}

// ValidateRule checks a single rule definition: known severity and type,
// variant-specific parameter requirements, and the invariant that a pattern
// is present iff the rule type is custom_pattern.
func (e *Engine) ValidateRule(r Rule) error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("unknown severity %q (must be one of: critical, high, medium, low, info)", r.Severity)
	}

	if r.Type != RuleTypeCustomPattern && r.Pattern != "" {
		return fmt.Errorf("pattern is only allowed on custom_pattern rules")
	}

	switch p := r.Params.(type) {
	case *RequiredClauseParams:
		if p.Category == "" {
			return fmt.Errorf("required_clause rules need a category")
		}
	case *ProhibitedClauseParams:
		if p.Category == "" {
			return fmt.Errorf("prohibited_clause rules need a category")
		}
	case *RequiredTermParams:
		return validateTerms(p.Terms)
	case *ProhibitedTermParams:
		return validateTerms(p.Terms)
	case *NumericThresholdParams:
		if p.Field == "" {
			return fmt.Errorf("numeric_threshold rules need a field")
		}
		if p.Min == nil && p.Max == nil {
			return fmt.Errorf("numeric_threshold rules need at least one of min, max")
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("numeric_threshold min %v exceeds max %v", *p.Min, *p.Max)
		}
	case *CustomPatternParams:
		if r.Pattern == "" {
			return fmt.Errorf("custom_pattern rules need a pattern")
		}
		if _, err := regexp.Compile("(?i)" + r.Pattern); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
	case *ExpressionParams:
		if p.Expression == "" {
			return fmt.Errorf("expression rules need an expression")
		}
		if _, err := e.exprs.compile(p.Expression); err != nil {
			return fmt.Errorf("invalid expression: %w", err)
		}
	default:
		switch r.Type {
		case RuleTypeDateRequirement, RuleTypePartyRequirement:
			// Declared but unimplemented variants are storable; they
			// evaluate to a warning verdict.
		default:
			return fmt.Errorf("unknown rule type %q", r.Type)
		}
	}

	return nil
}

func validateTerms(terms []string) error {
	if len(terms) == 0 {
		return fmt.Errorf("term rules need at least one term")
	}
	if len(terms) > maxTermsPerRule {
		return fmt.Errorf("rule contains %d terms, maximum allowed is %d", len(terms), maxTermsPerRule)
	}
	for _, t := range terms {
		if t == "" {
			return fmt.Errorf("terms cannot be empty strings")
		}
	}
	return nil
}
