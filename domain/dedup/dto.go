package dedup

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/felinebridge/cockpit/domain/entities"
	"github.com/felinebridge/cockpit/pkg/apperror"
)

// PairRef identifies one candidate pair in a resolve request. CandidateID
// may be omitted when both entity ids are given; the repository then finds
// the matching candidate row.
type PairRef struct {
	CandidateID *uuid.UUID `json:"candidate_id,omitempty"`
	CanonicalID *uuid.UUID `json:"canonical_id,omitempty"`
	DuplicateID *uuid.UUID `json:"duplicate_id,omitempty"`
}

func (p PairRef) valid() bool {
	if p.CandidateID != nil {
		return true
	}
	return p.CanonicalID != nil && p.DuplicateID != nil
}

// ResolveRequest is the POST body. It accepts either a batch shape with
// pairs[] or a flat single-pair shape; Normalize folds both into one list.
type ResolveRequest struct {
	Action string    `json:"action"`
	Pairs  []PairRef `json:"pairs,omitempty"`

	// Flat single-pair shorthand.
	CandidateID *uuid.UUID `json:"candidate_id,omitempty"`
	CanonicalID *uuid.UUID `json:"canonical_id,omitempty"`
	DuplicateID *uuid.UUID `json:"duplicate_id,omitempty"`

	// ConfirmReview acknowledges review verdicts. Defaults to true for
	// this reviewer-initiated endpoint; unattended callers set it false
	// so review verdicts fail instead of merging.
	ConfirmReview *bool `json:"confirm_review,omitempty"`
}

// Normalize validates the request and returns the uniform pair list.
func (r *ResolveRequest) Normalize() ([]PairRef, error) {
	if !ValidAction(r.Action) {
		return nil, apperror.NewBadRequest("unknown action: " + r.Action)
	}

	pairs := r.Pairs
	if len(pairs) == 0 {
		flat := PairRef{
			CandidateID: r.CandidateID,
			CanonicalID: r.CanonicalID,
			DuplicateID: r.DuplicateID,
		}
		if flat.CandidateID == nil && flat.CanonicalID == nil && flat.DuplicateID == nil {
			return nil, apperror.NewBadRequest("no pairs given")
		}
		pairs = []PairRef{flat}
	}

	for i, p := range pairs {
		if !p.valid() {
			return nil, apperror.NewBadRequest(fmt.Sprintf(
				"pair %d needs candidate_id or both canonical_id and duplicate_id", i))
		}
	}

	return pairs, nil
}

// AllowReview reports whether review verdicts may proceed.
func (r *ResolveRequest) AllowReview() bool {
	if r.ConfirmReview == nil {
		return true
	}
	return *r.ConfirmReview
}

// TierSummary is a count of pending candidates in one tier, independent of
// pagination.
type TierSummary struct {
	Tier         int    `json:"tier"`
	Label        string `json:"label"`
	PendingCount int    `json:"pending_count"`
}

// Pagination describes the window of a list response.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// ListResponse is the GET /dedup/:entityType payload.
type ListResponse struct {
	Candidates []*DedupCandidate `json:"candidates"`
	Summary    []TierSummary     `json:"summary"`
	Pagination Pagination        `json:"pagination"`
}

// PairResult is the per-pair outcome inside a resolve response.
type PairResult struct {
	CandidateID *uuid.UUID `json:"candidate_id,omitempty"`
	CanonicalID *uuid.UUID `json:"canonical_id,omitempty"`
	DuplicateID *uuid.UUID `json:"duplicate_id,omitempty"`
	Success     bool       `json:"success"`
	NoOp        bool       `json:"no_op,omitempty"`
	Error       string     `json:"error,omitempty"`

	// validationFailure marks failures caused by the caller's input rather
	// than system state, used for the all-pairs-invalid status mapping.
	validationFailure bool
}

// ResolveResponse aggregates a batch resolution.
type ResolveResponse struct {
	Action  string       `json:"action"`
	Total   int          `json:"total"`
	Success int          `json:"success"`
	Errors  int          `json:"errors"`
	Results []PairResult `json:"results"`
}

// AllValidationFailed reports whether every pair in the batch failed on the
// caller's input. The handler maps this case to a 400 instead of the usual
// 200-with-errors partial result.
func (r *ResolveResponse) AllValidationFailed() bool {
	if r.Total == 0 || r.Success > 0 {
		return false
	}
	for _, result := range r.Results {
		if !result.validationFailure {
			return false
		}
	}
	return true
}

// PreviewResponse is a dry-run of a merge: the snapshots, the safety verdict
// and the field policy outcomes, with nothing written.
type PreviewResponse struct {
	Candidate *DedupCandidate    `json:"candidate"`
	Canonical *entities.Snapshot `json:"canonical"`
	Duplicate *entities.Snapshot `json:"duplicate"`
	Verdict   Verdict            `json:"verdict"`
	Fields    []FieldResolution  `json:"fields"`
}

// AuditListResponse is the audit ledger page.
type AuditListResponse struct {
	Records    []*AuditRecord `json:"records"`
	Pagination Pagination     `json:"pagination"`
}
