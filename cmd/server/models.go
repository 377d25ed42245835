package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/counselops/playbook/compliance"
	"github.com/counselops/playbook/internal/logger"
)

type createPlaybookRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Version      string `json:"version"`
	DocumentType string `json:"document_type"`
	Jurisdiction string `json:"jurisdiction"`
}

type ruleRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	RuleType    compliance.RuleType `json:"rule_type"`
	Severity    compliance.Severity `json:"severity"`
	Parameters  json.RawMessage     `json:"parameters"`
	Pattern     string              `json:"pattern"`
	AutoFix     *compliance.AutoFix `json:"auto_fix"`
	Active      *bool               `json:"is_active"`
}

// toRule converts the request into a domain Rule, applying defaults:
// severity medium, active true.
func (req ruleRequest) toRule(id string) (compliance.Rule, error) {
	severity := req.Severity
	if severity == "" {
		severity = compliance.SeverityMedium
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	params, err := compliance.DecodeParams(req.RuleType, req.Parameters)
	if err != nil {
		return compliance.Rule{}, err
	}

	return compliance.Rule{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.RuleType,
		Severity:    severity,
		Params:      params,
		Pattern:     req.Pattern,
		AutoFix:     req.AutoFix,
		Active:      active,
	}, nil
}

type createExceptionRequest struct {
	RuleID     string     `json:"rule_id"`
	ContractID string     `json:"contract_id"`
	Reason     string     `json:"reason"`
	GrantedBy  string     `json:"granted_by"`
	ExpiresAt  *time.Time `json:"expires_at"`
	Permanent  bool       `json:"is_permanent"`
}

type runCheckRequest struct {
	PlaybookID string                   `json:"playbook_id"`
	ContractID string                   `json:"contract_id"`
	Facts      compliance.ContractFacts `json:"facts"`
}

// newID generates a prefixed public identifier, e.g. plb_6f1a....
func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
