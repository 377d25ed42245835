package compliance

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresPlaybookStore implements PlaybookStore backed by PostgreSQL.
// Rule parameters, auto-fix descriptors, and check reports are stored as
// JSONB. Schema lives in migrations/.
type PostgresPlaybookStore struct {
	db *sql.DB
}

// NewPostgresPlaybookStore creates a PostgreSQL-backed store.
func NewPostgresPlaybookStore(db *sql.DB) *PostgresPlaybookStore {
	return &PostgresPlaybookStore{db: db}
}

func (s *PostgresPlaybookStore) CreatePlaybook(pb *Playbook) error {
	now := time.Now()
	pb.CreatedAt = now
	pb.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO playbooks (id, name, description, version, document_type, jurisdiction, active, usage_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
	`, pb.ID, pb.Name, pb.Description, pb.Version, pb.DocumentType, pb.Jurisdiction, pb.Active, pb.CreatedAt, pb.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert playbook: %w", err)
	}

	for i := range pb.Rules {
		if err := s.insertRule(pb.ID, &pb.Rules[i], i+1); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresPlaybookStore) GetPlaybook(id string) (*Playbook, error) {
	var pb Playbook
	err := s.db.QueryRow(`
		SELECT id, name, description, version, document_type, jurisdiction, active, usage_count, created_at, updated_at
		FROM playbooks
		WHERE id = $1
	`, id).Scan(&pb.ID, &pb.Name, &pb.Description, &pb.Version, &pb.DocumentType,
		&pb.Jurisdiction, &pb.Active, &pb.UsageCount, &pb.CreatedAt, &pb.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("playbook %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playbook: %w", err)
	}

	rules, err := s.listRules(id)
	if err != nil {
		return nil, err
	}
	pb.Rules = rules
	return &pb, nil
}

func (s *PostgresPlaybookStore) ListPlaybooks() ([]*Playbook, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, version, document_type, jurisdiction, active, usage_count, created_at, updated_at
		FROM playbooks
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list playbooks: %w", err)
	}
	defer rows.Close()

	var out []*Playbook
	for rows.Next() {
		var pb Playbook
		if err := rows.Scan(&pb.ID, &pb.Name, &pb.Description, &pb.Version, &pb.DocumentType,
			&pb.Jurisdiction, &pb.Active, &pb.UsageCount, &pb.CreatedAt, &pb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playbook: %w", err)
		}
		out = append(out, &pb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playbooks: %w", err)
	}

	for _, pb := range out {
		rules, err := s.listRules(pb.ID)
		if err != nil {
			return nil, err
		}
		pb.Rules = rules
	}
	return out, nil
}

func (s *PostgresPlaybookStore) DeletePlaybook(id string) error {
	result, err := s.db.Exec(`DELETE FROM playbooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playbook: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("playbook %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresPlaybookStore) AddRule(playbookID string, r *Rule) error {
	if _, err := s.GetPlaybook(playbookID); err != nil {
		return err
	}
	return s.insertRule(playbookID, r, 0)
}

// insertRule writes one rule row. position 0 means append after the
// playbook's current last rule.
func (s *PostgresPlaybookStore) insertRule(playbookID string, r *Rule, position int) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	params, err := marshalNullable(r.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal rule parameters: %w", err)
	}
	autoFix, err := marshalNullable(r.AutoFix)
	if err != nil {
		return fmt.Errorf("failed to marshal auto fix: %w", err)
	}

	if position > 0 {
		_, err = s.db.Exec(`
			INSERT INTO compliance_rules (id, playbook_id, name, description, rule_type, severity, parameters, pattern, auto_fix, active, position, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, r.ID, playbookID, r.Name, r.Description, string(r.Type), string(r.Severity),
			params, r.Pattern, autoFix, r.Active, position, r.CreatedAt, r.UpdatedAt)
	} else {
		_, err = s.db.Exec(`
			INSERT INTO compliance_rules (id, playbook_id, name, description, rule_type, severity, parameters, pattern, auto_fix, active, position, created_at, updated_at)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE(MAX(position), 0) + 1, $11, $12
			FROM compliance_rules WHERE playbook_id = $2
		`, r.ID, playbookID, r.Name, r.Description, string(r.Type), string(r.Severity),
			params, r.Pattern, autoFix, r.Active, r.CreatedAt, r.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func (s *PostgresPlaybookStore) listRules(playbookID string) ([]Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, rule_type, severity, parameters, pattern, auto_fix, active, created_at, updated_at
		FROM compliance_rules
		WHERE playbook_id = $1
		ORDER BY position ASC
	`, playbookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func (s *PostgresPlaybookStore) GetRule(playbookID, ruleID string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, rule_type, severity, parameters, pattern, auto_fix, active, created_at, updated_at
		FROM compliance_rules
		WHERE id = $1 AND playbook_id = $2
	`, ruleID, playbookID)

	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return r, err
}

func (s *PostgresPlaybookStore) UpdateRule(playbookID string, r *Rule) error {
	r.UpdatedAt = time.Now()

	params, err := marshalNullable(r.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal rule parameters: %w", err)
	}
	autoFix, err := marshalNullable(r.AutoFix)
	if err != nil {
		return fmt.Errorf("failed to marshal auto fix: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE compliance_rules
		SET name = $1, description = $2, rule_type = $3, severity = $4, parameters = $5, pattern = $6, auto_fix = $7, active = $8, updated_at = $9
		WHERE id = $10 AND playbook_id = $11
	`, r.Name, r.Description, string(r.Type), string(r.Severity), params, r.Pattern,
		autoFix, r.Active, r.UpdatedAt, r.ID, playbookID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresPlaybookStore) DeleteRule(playbookID, ruleID string) error {
	result, err := s.db.Exec(`
		DELETE FROM compliance_rules WHERE id = $1 AND playbook_id = $2
	`, ruleID, playbookID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

func (s *PostgresPlaybookStore) CreateException(ex *ComplianceException) error {
	ex.CreatedAt = time.Now()

	_, err := s.db.Exec(`
		INSERT INTO compliance_exceptions (id, rule_id, contract_id, reason, granted_by, approved_at, expires_at, is_permanent, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ex.ID, ex.RuleID, ex.ContractID, ex.Reason, ex.GrantedBy,
		nullableTime(ex.ApprovedAt), ex.ExpiresAt, ex.Permanent, ex.Active, ex.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert exception: %w", err)
	}
	return nil
}

func (s *PostgresPlaybookStore) ListExceptions(contractID string) ([]ComplianceException, error) {
	rows, err := s.db.Query(`
		SELECT id, rule_id, contract_id, reason, granted_by, approved_at, expires_at, is_permanent, is_active, created_at
		FROM compliance_exceptions
		WHERE contract_id = $1
		ORDER BY created_at ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exceptions: %w", err)
	}
	defer rows.Close()

	var out []ComplianceException
	for rows.Next() {
		var ex ComplianceException
		var approvedAt, expiresAt sql.NullTime
		if err := rows.Scan(&ex.ID, &ex.RuleID, &ex.ContractID, &ex.Reason, &ex.GrantedBy,
			&approvedAt, &expiresAt, &ex.Permanent, &ex.Active, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exception: %w", err)
		}
		if approvedAt.Valid {
			ex.ApprovedAt = approvedAt.Time
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			ex.ExpiresAt = &t
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exceptions: %w", err)
	}
	return out, nil
}

func (s *PostgresPlaybookStore) RevokeException(id string) error {
	result, err := s.db.Exec(`
		UPDATE compliance_exceptions SET is_active = false WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke exception: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("exception %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresPlaybookStore) SaveCheck(rec *CheckRecord) error {
	rec.CreatedAt = time.Now()

	report, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO compliance_checks (id, playbook_id, contract_id, report, processing_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.PlaybookID, rec.ContractID, report, rec.ProcessingSeconds, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert check: %w", err)
	}
	return nil
}

func (s *PostgresPlaybookStore) GetCheck(id string) (*CheckRecord, error) {
	var rec CheckRecord
	var report []byte
	err := s.db.QueryRow(`
		SELECT id, playbook_id, contract_id, report, processing_seconds, created_at
		FROM compliance_checks
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.PlaybookID, &rec.ContractID, &report, &rec.ProcessingSeconds, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get check: %w", err)
	}

	if err := json.Unmarshal(report, &rec.Report); err != nil {
		return nil, fmt.Errorf("failed to parse stored report: %w", err)
	}
	return &rec, nil
}

func (s *PostgresPlaybookStore) RecordUsage(playbookID string, violatedRuleIDs []string, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE playbooks SET usage_count = usage_count + 1, last_used_at = $1 WHERE id = $2
	`, now, playbookID)
	if err != nil {
		return fmt.Errorf("failed to update playbook usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("playbook %s: %w", playbookID, ErrNotFound)
	}

	for _, ruleID := range violatedRuleIDs {
		_, err := tx.Exec(`
			UPDATE compliance_rules SET violation_count = violation_count + 1, last_triggered_at = $1 WHERE id = $2
		`, now, ruleID)
		if err != nil {
			return fmt.Errorf("failed to update rule violation count: %w", err)
		}
	}

	return tx.Commit()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var ruleType, severity string
	var params, autoFix []byte
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &ruleType, &severity,
		&params, &r.Pattern, &autoFix, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	r.Type = RuleType(ruleType)
	r.Severity = Severity(severity)

	decoded, err := DecodeParams(r.Type, params)
	if err != nil {
		return nil, fmt.Errorf("stored parameters for rule %s: %w", r.ID, err)
	}
	r.Params = decoded

	if len(autoFix) > 0 {
		var fix AutoFix
		if err := json.Unmarshal(autoFix, &fix); err != nil {
			return nil, fmt.Errorf("stored auto fix for rule %s: %w", r.ID, err)
		}
		r.AutoFix = &fix
	}
	return &r, nil
}

// marshalNullable marshals v to JSON, mapping nil to SQL NULL.
func marshalNullable(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *AutoFix:
		if x == nil {
			return nil, nil
		}
	case RuleParams:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
