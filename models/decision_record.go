package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/upb/model-router/services/routing"
)

// DecisionRecord is the persisted form of a routing decision. The prompt
// itself is never stored, only its hash, so the audit trail stays free of
// user content.
type DecisionRecord struct {
	ID           uuid.UUID `json:"id"`
	SelectedID   string    `json:"selected_id"`
	Strategy     string    `json:"strategy"`
	Reason       string    `json:"reason"`
	FallbackUsed bool      `json:"fallback_used"`
	PromptHash   string    `json:"prompt_hash"`
	DecidedAt    time.Time `json:"decided_at"`
}

// NewDecisionRecord creates a record from a decision and the routed prompt
func NewDecisionRecord(decision *routing.Decision, prompt string) *DecisionRecord {
	sum := sha256.Sum256([]byte(prompt))

	return &DecisionRecord{
		ID:           uuid.New(),
		SelectedID:   decision.SelectedID,
		Strategy:     decision.Strategy,
		Reason:       decision.Reason,
		FallbackUsed: decision.FallbackUsed,
		PromptHash:   hex.EncodeToString(sum[:]),
		DecidedAt:    decision.DecidedAt,
	}
}
