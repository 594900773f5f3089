package dedup

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Candidate lifecycle statuses. Transitions are one-way: pending moves to
// exactly one terminal status and never back.
const (
	StatusPending      = "pending"
	StatusMerged       = "merged"
	StatusKeptSeparate = "kept_separate"
	StatusDismissed    = "dismissed"
)

// Resolution actions accepted by the orchestrator.
const (
	ActionMerge        = "merge"
	ActionKeepSeparate = "keep_separate"
	ActionDismiss      = "dismiss"
)

// Actors recorded for transitions the system makes on its own, without a
// human reviewer.
const (
	systemMergeActor = "system:merge"
	SweepActor       = "system:orphan_sweep"
)

// ValidAction reports whether s names a known resolution action.
func ValidAction(s string) bool {
	return s == ActionMerge || s == ActionKeepSeparate || s == ActionDismiss
}

// terminalStatus maps an action to the candidate status it produces.
func terminalStatus(action string) string {
	switch action {
	case ActionMerge:
		return StatusMerged
	case ActionKeepSeparate:
		return StatusKeptSeparate
	case ActionDismiss:
		return StatusDismissed
	default:
		return ""
	}
}

// DedupCandidate is one proposed duplicate pair awaiting review. Rows are
// created by the external candidate generator; this core only reads them and
// transitions status. Rows are never deleted, status is the tombstone.
type DedupCandidate struct {
	bun.BaseModel `bun:"table:trapper.dedup_candidates,alias:dc"`

	ID          uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"candidate_id"`
	EntityType  string    `bun:"entity_type,notnull" json:"entity_type"`
	CanonicalID uuid.UUID `bun:"canonical_id,type:uuid,notnull" json:"canonical_id"`
	DuplicateID uuid.UUID `bun:"duplicate_id,type:uuid,notnull" json:"duplicate_id"`

	// MatchTier is ordinal evidence strength, 1 strongest.
	MatchTier int     `bun:"match_tier,notnull" json:"match_tier"`
	Score     float64 `bun:"score,notnull" json:"score"`

	Status         string         `bun:"status,notnull,default:'pending'" json:"status"`
	Evidence       map[string]any `bun:"evidence,type:jsonb,notnull,default:'{}'" json:"evidence"`
	GeneratorRunID *string        `bun:"generator_run_id" json:"generator_run_id,omitempty"`

	CreatedAt  time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
	ResolvedAt *time.Time `bun:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy *string    `bun:"resolved_by" json:"resolved_by,omitempty"`
}

// Terminal reports whether the candidate has left the pending state.
func (c *DedupCandidate) Terminal() bool {
	return c.Status != StatusPending
}

// SamePair reports whether a and b are this candidate's two entities, in
// either orientation.
func (c *DedupCandidate) SamePair(a, b uuid.UUID) bool {
	return (a == c.CanonicalID && b == c.DuplicateID) ||
		(a == c.DuplicateID && b == c.CanonicalID)
}

// AuditRecord is the append-only ledger entry for one resolution decision.
// It is keyed independently of the candidate row so history survives
// candidate-table pruning.
type AuditRecord struct {
	bun.BaseModel `bun:"table:trapper.dedup_audit,alias:da"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"audit_id"`
	EntityType  string     `bun:"entity_type,notnull" json:"entity_type"`
	Action      string     `bun:"action,notnull" json:"action"`
	CanonicalID uuid.UUID  `bun:"canonical_id,type:uuid,notnull" json:"canonical_id"`
	DuplicateID uuid.UUID  `bun:"duplicate_id,type:uuid,notnull" json:"duplicate_id"`
	Actor       string     `bun:"actor,notnull" json:"actor"`
	Reason      *string    `bun:"reason" json:"reason,omitempty"`
	PriorStatus *string    `bun:"prior_status" json:"prior_status,omitempty"`
	CandidateID *uuid.UUID `bun:"candidate_id,type:uuid" json:"candidate_id,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// TierLabel describes one match tier for UI display.
type TierLabel struct {
	Tier  int    `json:"tier"`
	Label string `json:"label"`
}

// TierConfig maps tiers to human labels. Injected rather than hardcoded so
// display stays configurable without touching resolution logic.
type TierConfig struct {
	Labels []TierLabel
}

// Label returns the label for a tier, or "unknown" for unmapped tiers.
func (tc *TierConfig) Label(tier int) string {
	for _, l := range tc.Labels {
		if l.Tier == tier {
			return l.Label
		}
	}
	return "unknown"
}

// DefaultTierConfig matches the generator's tier assignments.
func DefaultTierConfig() *TierConfig {
	return &TierConfig{
		Labels: []TierLabel{
			{Tier: 1, Label: "exact identifier"},
			{Tier: 2, Label: "strong fuzzy"},
			{Tier: 3, Label: "name only"},
		},
	}
}
