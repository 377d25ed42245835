package compliance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Severity ranks how serious a rule violation is. Values serialize as their
// lowercase names to stay compatible with existing report consumers.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Weight returns the scoring penalty for a failed rule of this severity.
// Unrecognized severities weigh 1.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 10
	case SeverityHigh:
		return 5
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0.5
	}
	return 1
}

// rank orders severities for sorting, most severe first. Unrecognized
// severities sort last.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	}
	return 5
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	return s.rank() < 5
}

// RuleType identifies which evaluation strategy a rule uses.
type RuleType string

const (
	RuleTypeRequiredClause   RuleType = "required_clause"
	RuleTypeProhibitedClause RuleType = "prohibited_clause"
	RuleTypeRequiredTerm     RuleType = "required_term"
	RuleTypeProhibitedTerm   RuleType = "prohibited_term"
	RuleTypeNumericThreshold RuleType = "numeric_threshold"
	RuleTypeCustomPattern    RuleType = "custom_pattern"
	RuleTypeExpression       RuleType = "expression"

	// Declared for playbook authors but not yet backed by a strategy.
	// Rules of these types evaluate to a warning verdict.
	RuleTypeDateRequirement  RuleType = "date_requirement"
	RuleTypePartyRequirement RuleType = "party_requirement"
)

// VerdictStatus is the per-rule evaluation outcome.
type VerdictStatus string

const (
	StatusPassed  VerdictStatus = "passed"
	StatusFailed  VerdictStatus = "failed"
	StatusWarning VerdictStatus = "warning"
)

// OverallStatus is the three-way classification of a whole check.
type OverallStatus string

const (
	Compliant        OverallStatus = "compliant"
	PartialCompliant OverallStatus = "partial_compliant"
	NonCompliant     OverallStatus = "non_compliant"
)

// RuleParams is the typed, variant-specific parameter payload of a Rule.
// Each rule type owns its own parameter struct; the evaluator dispatches on
// the concrete type.
type RuleParams interface {
	ruleType() RuleType
}

// RequiredClauseParams configures a required_clause rule.
type RequiredClauseParams struct {
	Category    string `json:"category"`
	MustContain string `json:"must_contain,omitempty"`
}

// ProhibitedClauseParams configures a prohibited_clause rule.
type ProhibitedClauseParams struct {
	Category          string `json:"category"`
	ProhibitedContent string `json:"prohibited_content,omitempty"`
}

// RequiredTermParams configures a required_term rule. RequireAll demands
// every term; otherwise one match suffices.
type RequiredTermParams struct {
	Terms      []string `json:"terms"`
	RequireAll bool     `json:"require_all,omitempty"`
}

// ProhibitedTermParams configures a prohibited_term rule.
type ProhibitedTermParams struct {
	Terms []string `json:"terms"`
}

// NumericThresholdParams configures a numeric_threshold rule. A nil bound is
// unchecked.
type NumericThresholdParams struct {
	Field string   `json:"field"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// CustomPatternParams configures a custom_pattern rule. The pattern itself
// lives on Rule.Pattern.
type CustomPatternParams struct {
	ShouldMatch bool `json:"should_match"`
}

// ExpressionParams configures an expression rule evaluated as a CEL program
// over the contract facts.
type ExpressionParams struct {
	Expression string `json:"expression"`
}

func (*RequiredClauseParams) ruleType() RuleType   { return RuleTypeRequiredClause }
func (*ProhibitedClauseParams) ruleType() RuleType { return RuleTypeProhibitedClause }
func (*RequiredTermParams) ruleType() RuleType     { return RuleTypeRequiredTerm }
func (*ProhibitedTermParams) ruleType() RuleType   { return RuleTypeProhibitedTerm }
func (*NumericThresholdParams) ruleType() RuleType { return RuleTypeNumericThreshold }
func (*CustomPatternParams) ruleType() RuleType    { return RuleTypeCustomPattern }
func (*ExpressionParams) ruleType() RuleType       { return RuleTypeExpression }

// DecodeParams unmarshals a raw parameters payload into the typed struct for
// the given rule type. Types without a strategy decode to nil params.
func DecodeParams(t RuleType, raw json.RawMessage) (RuleParams, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var p RuleParams
	switch t {
	case RuleTypeRequiredClause:
		p = &RequiredClauseParams{}
	case RuleTypeProhibitedClause:
		p = &ProhibitedClauseParams{}
	case RuleTypeRequiredTerm:
		p = &RequiredTermParams{}
	case RuleTypeProhibitedTerm:
		p = &ProhibitedTermParams{}
	case RuleTypeNumericThreshold:
		p = &NumericThresholdParams{}
	case RuleTypeCustomPattern:
		// should_match defaults to true when the author omits it.
		p = &CustomPatternParams{ShouldMatch: true}
	case RuleTypeExpression:
		p = &ExpressionParams{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("invalid %s parameters: %w", t, err)
	}
	return p, nil
}

// AutoFix describes how a violation can be remediated. Exactly one field is
// normally set; ReplacementText wins over ReplacementClauseID, which wins
// over Instruction.
type AutoFix struct {
	ReplacementText     string `json:"replacement_text,omitempty"`
	ReplacementClauseID string `json:"replacement_clause_id,omitempty"`
	Instruction         string `json:"instruction,omitempty"`
}

// Rule is one compliance requirement inside a playbook.
type Rule struct {
	ID          string     `json:"rule_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        RuleType   `json:"rule_type"`
	Severity    Severity   `json:"severity"`
	Params      RuleParams `json:"parameters,omitempty"`
	Pattern     string     `json:"pattern,omitempty"`
	AutoFix     *AutoFix   `json:"auto_fix,omitempty"`
	Active      bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
}

// ruleJSON mirrors Rule with raw parameters so the typed payload survives a
// round trip through JSON.
type ruleJSON struct {
	ID          string          `json:"rule_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        RuleType        `json:"rule_type"`
	Severity    Severity        `json:"severity"`
	Params      json.RawMessage `json:"parameters,omitempty"`
	Pattern     string          `json:"pattern,omitempty"`
	AutoFix     *AutoFix        `json:"auto_fix,omitempty"`
	Active      bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at,omitzero"`
	UpdatedAt   time.Time       `json:"updated_at,omitzero"`
}

// UnmarshalJSON decodes the parameters payload into the typed struct
// selected by rule_type.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var rj ruleJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	params, err := DecodeParams(rj.Type, rj.Params)
	if err != nil {
		return err
	}
	*r = Rule{
		ID:          rj.ID,
		Name:        rj.Name,
		Description: rj.Description,
		Type:        rj.Type,
		Severity:    rj.Severity,
		Params:      params,
		Pattern:     rj.Pattern,
		AutoFix:     rj.AutoFix,
		Active:      rj.Active,
		CreatedAt:   rj.CreatedAt,
		UpdatedAt:   rj.UpdatedAt,
	}
	return nil
}

// Playbook is a named, ordered collection of rules. The engine treats it as
// read-only; mutation happens through the store.
type Playbook struct {
	ID           string    `json:"playbook_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Version      string    `json:"version,omitempty"`
	DocumentType string    `json:"document_type,omitempty"`
	Jurisdiction string    `json:"jurisdiction,omitempty"`
	Active       bool      `json:"is_active"`
	Rules        []Rule    `json:"rules"`
	UsageCount   int       `json:"usage_count,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// ActiveRules returns the rules flagged active, preserving playbook order.
func (p Playbook) ActiveRules() []Rule {
	active := make([]Rule, 0, len(p.Rules))
	for _, r := range p.Rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return active
}

// Clause is one clause the upstream extractor detected in a contract.
type Clause struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	RiskLevel string `json:"risk_level,omitempty"`
}

// ContractFacts is the structured extraction the engine evaluates. It is
// produced upstream and may be partially populated; absent fields are a
// normal state, not an error.
type ContractFacts struct {
	Clauses []Clause           `json:"detected_clauses"`
	Text    string             `json:"extracted_text"`
	Fields  map[string]float64 `json:"fields,omitempty"`
}

// Field looks up a named scalar fact. The second return reports presence.
func (f ContractFacts) Field(name string) (float64, bool) {
	v, ok := f.Fields[name]
	return v, ok
}

// ClausesOfType returns the detected clauses matching the given category.
func (f ContractFacts) ClausesOfType(category string) []Clause {
	var out []Clause
	for _, c := range f.Clauses {
		if c.Type == category {
			out = append(out, c)
		}
	}
	return out
}

// ComplianceException suppresses one rule for one contract. Revoking clears
// Active instead of deleting the row so the audit trail survives.
type ComplianceException struct {
	ID         string     `json:"exception_id"`
	RuleID     string     `json:"rule_id"`
	ContractID string     `json:"contract_id"`
	Reason     string     `json:"reason"`
	GrantedBy  string     `json:"granted_by,omitempty"`
	ApprovedAt time.Time  `json:"approved_at,omitzero"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Permanent  bool       `json:"is_permanent"`
	Active     bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at,omitzero"`
}

// AppliesAt reports whether the exception suppresses its rule at the given
// instant. A non-permanent exception with no expiry never applies; grants
// must either be permanent or carry a deadline.
func (e ComplianceException) AppliesAt(now time.Time) bool {
	if !e.Active {
		return false
	}
	if e.Permanent {
		return true
	}
	return e.ExpiresAt != nil && now.Before(*e.ExpiresAt)
}

// Verdict is the evaluator's output for one rule. Severity is copied from
// the rule at evaluation time so later rule edits cannot rewrite history.
type Verdict struct {
	RuleID      string        `json:"rule_id"`
	RuleName    string        `json:"rule_name"`
	Severity    Severity      `json:"severity"`
	Status      VerdictStatus `json:"status"`
	Message     string        `json:"message"`
	Location    string        `json:"location,omitempty"`
	Suggestion  string        `json:"suggestion,omitempty"`
	AutoFixable bool          `json:"auto_fixable"`
}

// Score is a 0-100 compliance score. It marshals with exactly two fraction
// digits, matching the wire contract of existing report consumers.
type Score float64

// MarshalJSON renders the score as a JSON number with two fraction digits.
func (s Score) MarshalJSON() ([]byte, error) {
	return []byte(decimal.NewFromFloat(float64(s)).StringFixed(2)), nil
}

// UnmarshalJSON parses a JSON number into a Score.
func (s *Score) UnmarshalJSON(data []byte) error {
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("invalid score: %w", err)
	}
	*s = Score(d.InexactFloat64())
	return nil
}

// ComplianceReport is the aggregate result of one check run. It is built
// once and never mutated; a re-run produces a new report.
type ComplianceReport struct {
	OverallStatus       OverallStatus `json:"overall_status"`
	Score               Score         `json:"compliance_score"`
	RulesChecked        int           `json:"rules_checked"`
	RulesPassed         int           `json:"rules_passed"`
	RulesFailed         int           `json:"rules_failed"`
	RulesWarning        int           `json:"rules_warning"`
	Violations          []Verdict     `json:"violations"`
	PassedRules         []Verdict     `json:"passed_rules"`
	Warnings            []Verdict     `json:"warnings"`
	ExecutiveSummary    string        `json:"executive_summary"`
	Recommendations     []string      `json:"recommendations"`
	SkippedByException  []string      `json:"skipped_by_exception,omitempty"`
}
