package compliance

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoActiveRules is returned by RunCheck when the playbook has no active
// rules left after exception filtering. Callers should map it to a
// user-facing validation error, not an internal fault.
var ErrNoActiveRules = errors.New("playbook has no active rules")

// Engine evaluates contracts against playbooks. It holds no per-check
// state; a single Engine serves any number of concurrent checks.
type Engine struct {
	exprs *exprCompiler
}

// NewEngine creates an engine, initializing the CEL environment used by
// expression rules.
func NewEngine() (*Engine, error) {
	exprs, err := newExprCompiler()
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return &Engine{exprs: exprs}, nil
}

// RunCheck evaluates one contract against one playbook and returns a
// complete report. It is a pure orchestration: no I/O, no retries, no
// partial results. Identical inputs with an identical now produce an
// identical report.
func (e *Engine) RunCheck(pb Playbook, facts ContractFacts, contractID string, exceptions []ComplianceException, now time.Time) (*ComplianceReport, error) {
	active := pb.ActiveRules()
	rules, skipped := FilterExceptions(active, contractID, exceptions, now)
	if len(rules) == 0 {
		return nil, ErrNoActiveRules
	}

	// Rule evaluations are independent, so fan out one goroutine per rule.
	// Results land at the rule's own index to preserve playbook order;
	// ordering of the final violation list is the report builder's job.
	verdicts := make([]Verdict, len(rules))
	var wg sync.WaitGroup
	for i, r := range rules {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdicts[i] = e.EvaluateRule(r, facts)
		}()
	}
	wg.Wait()

	score := ComplianceScore(verdicts)
	counts := FailureCounts(verdicts)
	status := ClassifyStatus(score, counts[SeverityCritical], counts[SeverityHigh])

	report := BuildReport(verdicts, score, status)
	report.SkippedByException = skipped
	return report, nil
}
