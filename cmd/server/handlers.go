package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/counselops/playbook/compliance"
	"github.com/counselops/playbook/internal/logger"
)

func (s *Server) handleCreatePlaybook(w http.ResponseWriter, r *http.Request) {
	var req createPlaybookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	version := req.Version
	if version == "" {
		version = "1.0"
	}

	pb := &compliance.Playbook{
		ID:           newID("plb"),
		Name:         req.Name,
		Description:  req.Description,
		Version:      version,
		DocumentType: req.DocumentType,
		Jurisdiction: req.Jurisdiction,
		Active:       true,
		Rules:        []compliance.Rule{},
	}
	if err := s.engine.ValidatePlaybook(*pb); err != nil {
		respondError(w, http.StatusBadRequest, "playbook validation failed", err)
		return
	}

	if err := s.store.CreatePlaybook(pb); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create playbook", err)
		return
	}
	respondJSON(w, http.StatusCreated, pb)
}

func (s *Server) handleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	playbooks, err := s.store.ListPlaybooks()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list playbooks", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"playbooks": playbooks})
}

func (s *Server) handleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	pb, err := s.loadPlaybook(chi.URLParam(r, "playbookId"))
	if err != nil {
		respondStoreError(w, "playbook not found", err)
		return
	}
	respondJSON(w, http.StatusOK, pb)
}

func (s *Server) handleDeletePlaybook(w http.ResponseWriter, r *http.Request) {
	playbookID := chi.URLParam(r, "playbookId")
	if err := s.store.DeletePlaybook(playbookID); err != nil {
		respondStoreError(w, "playbook not found", err)
		return
	}
	s.cache.Invalidate(playbookID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	playbookID := chi.URLParam(r, "playbookId")

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	rule, err := req.toRule(newID("rul"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule parameters", err)
		return
	}
	if err := s.engine.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "rule validation failed", err)
		return
	}

	if err := s.store.AddRule(playbookID, &rule); err != nil {
		respondStoreError(w, "failed to add rule", err)
		return
	}
	s.cache.Invalidate(playbookID)
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	pb, err := s.loadPlaybook(chi.URLParam(r, "playbookId"))
	if err != nil {
		respondStoreError(w, "playbook not found", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": pb.Rules})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.GetRule(chi.URLParam(r, "playbookId"), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondStoreError(w, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	playbookID := chi.URLParam(r, "playbookId")
	ruleID := chi.URLParam(r, "ruleId")

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := req.toRule(ruleID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule parameters", err)
		return
	}
	if err := s.engine.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "rule validation failed", err)
		return
	}

	if err := s.store.UpdateRule(playbookID, &rule); err != nil {
		respondStoreError(w, "failed to update rule", err)
		return
	}
	s.cache.Invalidate(playbookID)
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	playbookID := chi.URLParam(r, "playbookId")
	if err := s.store.DeleteRule(playbookID, chi.URLParam(r, "ruleId")); err != nil {
		respondStoreError(w, "rule not found", err)
		return
	}
	s.cache.Invalidate(playbookID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateException(w http.ResponseWriter, r *http.Request) {
	var req createExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.RuleID == "" || req.ContractID == "" || req.Reason == "" {
		respondError(w, http.StatusBadRequest, "rule_id, contract_id, and reason are required", nil)
		return
	}
	if !req.Permanent && req.ExpiresAt == nil {
		respondError(w, http.StatusBadRequest, "exception must be permanent or have expires_at", nil)
		return
	}

	ex := &compliance.ComplianceException{
		ID:         newID("exc"),
		RuleID:     req.RuleID,
		ContractID: req.ContractID,
		Reason:     req.Reason,
		GrantedBy:  req.GrantedBy,
		ApprovedAt: time.Now(),
		ExpiresAt:  req.ExpiresAt,
		Permanent:  req.Permanent,
		Active:     true,
	}

	if err := s.store.CreateException(ex); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create exception", err)
		return
	}
	respondJSON(w, http.StatusCreated, ex)
}

func (s *Server) handleRevokeException(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RevokeException(chi.URLParam(r, "exceptionId")); err != nil {
		respondStoreError(w, "exception not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	var req runCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.PlaybookID == "" || req.ContractID == "" {
		respondError(w, http.StatusBadRequest, "playbook_id and contract_id are required", nil)
		return
	}

	pb, err := s.loadPlaybook(req.PlaybookID)
	if err != nil {
		respondStoreError(w, "playbook not found", err)
		return
	}

	exceptions, err := s.store.ListExceptions(req.ContractID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load exceptions", err)
		return
	}

	start := time.Now()
	report, err := s.engine.RunCheck(*pb, req.Facts, req.ContractID, exceptions, start)
	if errors.Is(err, compliance.ErrNoActiveRules) {
		respondError(w, http.StatusBadRequest, "playbook has no active rules", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "check failed", err)
		return
	}

	rec := &compliance.CheckRecord{
		ID:                newID("chk"),
		PlaybookID:        pb.ID,
		ContractID:        req.ContractID,
		Report:            report,
		ProcessingSeconds: time.Since(start).Seconds(),
	}
	if err := s.store.SaveCheck(rec); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist check", err)
		return
	}

	// Usage counters are a persistence concern, recorded after the pure
	// check completes. A failure here should not fail the request.
	var violated []string
	for _, v := range report.Violations {
		violated = append(violated, v.RuleID)
	}
	if err := s.store.RecordUsage(pb.ID, violated, start); err != nil {
		logger.Warn("failed to record playbook usage", "playbook_id", pb.ID, "error", err)
	} else {
		// The cached copy predates the usage bump; evict it so reads see
		// the updated counters.
		s.cache.Invalidate(pb.ID)
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetCheck(chi.URLParam(r, "checkId"))
	if err != nil {
		respondStoreError(w, "check not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// loadPlaybook consults the cache before the store.
func (s *Server) loadPlaybook(id string) (*compliance.Playbook, error) {
	if pb := s.cache.Get(id); pb != nil {
		return pb, nil
	}
	pb, err := s.store.GetPlaybook(id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(pb)
	return pb, nil
}

// respondStoreError maps ErrNotFound to 404 and everything else to 500.
func respondStoreError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, compliance.ErrNotFound) {
		respondError(w, http.StatusNotFound, message, err)
		return
	}
	respondError(w, http.StatusInternalServerError, message, err)
}
