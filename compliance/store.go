package compliance

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is wrapped by store lookups that miss. Callers map it to a
// 404-style response.
var ErrNotFound = errors.New("not found")

// CheckRecord is a persisted compliance check run. The engine never writes
// these; the caller persists the report it gets back.
type CheckRecord struct {
	ID                string            `json:"check_id"`
	PlaybookID        string            `json:"playbook_id"`
	ContractID        string            `json:"contract_id"`
	Report            *ComplianceReport `json:"report"`
	ProcessingSeconds float64           `json:"processing_time_seconds"`
	CreatedAt         time.Time         `json:"created_at"`
}

// PlaybookStore manages persistence of playbooks, rules, exceptions, and
// check records.
type PlaybookStore interface {
	// Playbooks
	CreatePlaybook(pb *Playbook) error
	GetPlaybook(id string) (*Playbook, error)
	ListPlaybooks() ([]*Playbook, error)
	DeletePlaybook(id string) error

	// Rules within a playbook
	AddRule(playbookID string, r *Rule) error
	GetRule(playbookID, ruleID string) (*Rule, error)
	UpdateRule(playbookID string, r *Rule) error
	DeleteRule(playbookID, ruleID string) error

	// Exceptions
	CreateException(ex *ComplianceException) error
	ListExceptions(contractID string) ([]ComplianceException, error)
	RevokeException(id string) error

	// Check records and post-run counters
	SaveCheck(rec *CheckRecord) error
	GetCheck(id string) (*CheckRecord, error)
	RecordUsage(playbookID string, violatedRuleIDs []string, now time.Time) error
}

// InMemoryPlaybookStore implements PlaybookStore with maps. Thread-safe.
// Useful for tests and single-node deployments without Postgres.
type InMemoryPlaybookStore struct {
	mu         sync.RWMutex
	playbooks  map[string]*Playbook
	exceptions map[string]*ComplianceException
	checks     map[string]*CheckRecord
	violations map[string]int // ruleID -> violation count
}

// NewInMemoryPlaybookStore creates an empty in-memory store.
func NewInMemoryPlaybookStore() *InMemoryPlaybookStore {
	return &InMemoryPlaybookStore{
		playbooks:  make(map[string]*Playbook),
		exceptions: make(map[string]*ComplianceException),
		checks:     make(map[string]*CheckRecord),
		violations: make(map[string]int),
	}
}

func (s *InMemoryPlaybookStore) CreatePlaybook(pb *Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.playbooks[pb.ID]; exists {
		return fmt.Errorf("playbook %s already exists", pb.ID)
	}

	now := time.Now()
	pb.CreatedAt = now
	pb.UpdatedAt = now
	cp := clonePlaybook(pb)
	s.playbooks[pb.ID] = &cp
	return nil
}

func (s *InMemoryPlaybookStore) GetPlaybook(id string) (*Playbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pb, exists := s.playbooks[id]
	if !exists {
		return nil, fmt.Errorf("playbook %s: %w", id, ErrNotFound)
	}
	cp := clonePlaybook(pb)
	return &cp, nil
}

func (s *InMemoryPlaybookStore) ListPlaybooks() ([]*Playbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Playbook, 0, len(s.playbooks))
	for _, pb := range s.playbooks {
		cp := clonePlaybook(pb)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryPlaybookStore) DeletePlaybook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.playbooks[id]; !exists {
		return fmt.Errorf("playbook %s: %w", id, ErrNotFound)
	}
	delete(s.playbooks, id)
	return nil
}

func (s *InMemoryPlaybookStore) AddRule(playbookID string, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb, exists := s.playbooks[playbookID]
	if !exists {
		return fmt.Errorf("playbook %s: %w", playbookID, ErrNotFound)
	}
	for _, existing := range pb.Rules {
		if existing.ID == r.ID {
			return fmt.Errorf("rule %s already exists", r.ID)
		}
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	pb.Rules = append(pb.Rules, *r)
	pb.UpdatedAt = now
	return nil
}

func (s *InMemoryPlaybookStore) GetRule(playbookID, ruleID string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pb, exists := s.playbooks[playbookID]
	if !exists {
		return nil, fmt.Errorf("playbook %s: %w", playbookID, ErrNotFound)
	}
	for _, r := range pb.Rules {
		if r.ID == ruleID {
			cp := r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
}

func (s *InMemoryPlaybookStore) UpdateRule(playbookID string, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb, exists := s.playbooks[playbookID]
	if !exists {
		return fmt.Errorf("playbook %s: %w", playbookID, ErrNotFound)
	}
	for i, existing := range pb.Rules {
		if existing.ID == r.ID {
			r.CreatedAt = existing.CreatedAt
			r.UpdatedAt = time.Now()
			pb.Rules[i] = *r
			pb.UpdatedAt = r.UpdatedAt
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", r.ID, ErrNotFound)
}

func (s *InMemoryPlaybookStore) DeleteRule(playbookID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb, exists := s.playbooks[playbookID]
	if !exists {
		return fmt.Errorf("playbook %s: %w", playbookID, ErrNotFound)
	}
	for i, r := range pb.Rules {
		if r.ID == ruleID {
			pb.Rules = append(pb.Rules[:i], pb.Rules[i+1:]...)
			pb.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
}

func (s *InMemoryPlaybookStore) CreateException(ex *ComplianceException) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exceptions[ex.ID]; exists {
		return fmt.Errorf("exception %s already exists", ex.ID)
	}
	ex.CreatedAt = time.Now()
	cp := *ex
	s.exceptions[ex.ID] = &cp
	return nil
}

func (s *InMemoryPlaybookStore) ListExceptions(contractID string) ([]ComplianceException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ComplianceException
	for _, ex := range s.exceptions {
		if ex.ContractID == contractID {
			out = append(out, *ex)
		}
	}
	return out, nil
}

func (s *InMemoryPlaybookStore) RevokeException(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, exists := s.exceptions[id]
	if !exists {
		return fmt.Errorf("exception %s: %w", id, ErrNotFound)
	}
	ex.Active = false
	return nil
}

func (s *InMemoryPlaybookStore) SaveCheck(rec *CheckRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checks[rec.ID]; exists {
		return fmt.Errorf("check %s already exists", rec.ID)
	}
	rec.CreatedAt = time.Now()
	cp := *rec
	s.checks[rec.ID] = &cp
	return nil
}

func (s *InMemoryPlaybookStore) GetCheck(id string) (*CheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.checks[id]
	if !exists {
		return nil, fmt.Errorf("check %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// RecordUsage bumps the playbook usage counter and per-rule violation
// counters after a check. The engine never calls this; the HTTP layer
// records usage once a check run is persisted.
func (s *InMemoryPlaybookStore) RecordUsage(playbookID string, violatedRuleIDs []string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb, exists := s.playbooks[playbookID]
	if !exists {
		return fmt.Errorf("playbook %s: %w", playbookID, ErrNotFound)
	}
	pb.UsageCount++
	for _, id := range violatedRuleIDs {
		s.violations[id]++
	}
	return nil
}

// ViolationCount reports how many times a rule has been violated across
// recorded checks.
func (s *InMemoryPlaybookStore) ViolationCount(ruleID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.violations[ruleID]
}

func clonePlaybook(pb *Playbook) Playbook {
	cp := *pb
	cp.Rules = make([]Rule, len(pb.Rules))
	copy(cp.Rules, pb.Rules)
	return cp
}
