package compliance

import "time"

// FilterExceptions removes rules that have a currently-active exception for
// the given contract. Filtered rules never reach the evaluator and do not
// count toward RulesChecked; their ids are returned separately for audit.
// Pure and deterministic for a fixed now.
func FilterExceptions(rules []Rule, contractID string, exceptions []ComplianceException, now time.Time) (kept []Rule, skipped []string) {
	suppressed := make(map[string]bool)
	for _, ex := range exceptions {
		if ex.ContractID == contractID && ex.AppliesAt(now) {
			suppressed[ex.RuleID] = true
		}
	}

	kept = make([]Rule, 0, len(rules))
	for _, r := range rules {
		if suppressed[r.ID] {
			skipped = append(skipped, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	return kept, skipped
}
