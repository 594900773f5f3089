package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/felinebridge/cockpit/domain/entities"
	"github.com/felinebridge/cockpit/internal/config"
	"github.com/felinebridge/cockpit/pkg/apperror"
	"github.com/felinebridge/cockpit/pkg/logger"
)

// CandidateStore is the candidate queue and audit ledger persistence the
// orchestrator needs. Satisfied by Repository.
type CandidateStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*DedupCandidate, error)
	FindPair(ctx context.Context, entityType string, a, b uuid.UUID) (*DedupCandidate, error)
	List(ctx context.Context, params ListParams) ([]*DedupCandidate, error)
	TierCounts(ctx context.Context, entityType string) (map[int]int, error)
	ResolveTerminal(ctx context.Context, id uuid.UUID, toStatus, actor string, audit *AuditRecord) (bool, error)
	ListAudit(ctx context.Context, params AuditListParams) ([]*AuditRecord, error)
}

// Merger executes merges. Satisfied by Executor.
type Merger interface {
	Merge(ctx context.Context, params MergeParams) (*MergeOutcome, error)
	PreviewFields(ctx context.Context, entityType string, canonicalID, duplicateID uuid.UUID) ([]FieldResolution, error)
}

// SnapshotLoader reads entity state for previews. Satisfied by
// entities.Repository.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, entityType string, id uuid.UUID) (*entities.Snapshot, error)
}

// Service orchestrates candidate listing and resolution. Batch resolution is
// per-pair isolated: each pair succeeds or fails on its own, and one failure
// never rolls back another pair's committed work.
type Service struct {
	store     CandidateStore
	merger    Merger
	snapshots SnapshotLoader
	tiers     *TierConfig
	cfg       config.DedupConfig
	log       *slog.Logger
}

// NewService creates a new dedup service.
func NewService(store CandidateStore, merger Merger, snapshots SnapshotLoader, tiers *TierConfig, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		merger:    merger,
		snapshots: snapshots,
		tiers:     tiers,
		cfg:       cfg.Dedup,
		log:       log.With(logger.Scope("dedup.service")),
	}
}

// List returns one page of the review queue plus per-tier pending counts.
func (s *Service) List(ctx context.Context, params ListParams) (*ListResponse, error) {
	if params.Limit <= 0 {
		params.Limit = s.cfg.DefaultPageSize
	}
	if params.Limit > s.cfg.MaxPageSize {
		params.Limit = s.cfg.MaxPageSize
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	// Fetch one extra row to learn whether another page exists.
	fetch := params
	fetch.Limit = params.Limit + 1
	candidates, err := s.store.List(ctx, fetch)
	if err != nil {
		return nil, err
	}

	hasMore := len(candidates) > params.Limit
	if hasMore {
		candidates = candidates[:params.Limit]
	}

	counts, err := s.store.TierCounts(ctx, params.EntityType)
	if err != nil {
		return nil, err
	}

	summary := make([]TierSummary, 0, len(counts))
	for tier, count := range counts {
		summary = append(summary, TierSummary{
			Tier:         tier,
			Label:        s.tiers.Label(tier),
			PendingCount: count,
		})
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Tier < summary[j].Tier })

	return &ListResponse{
		Candidates: candidates,
		Summary:    summary,
		Pagination: Pagination{
			Limit:   params.Limit,
			Offset:  params.Offset,
			HasMore: hasMore,
		},
	}, nil
}

// Resolve applies one action to a batch of pairs. Pairs are processed in
// order, each against a fresh read of candidate state, so earlier merges in
// the same batch are visible to later pairs.
func (s *Service) Resolve(ctx context.Context, entityType, actor string, req *ResolveRequest) (*ResolveResponse, error) {
	pairs, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if len(pairs) > s.cfg.MaxBatchSize {
		return nil, apperror.NewBadRequest(fmt.Sprintf(
			"batch of %d pairs exceeds the maximum of %d", len(pairs), s.cfg.MaxBatchSize))
	}

	resp := &ResolveResponse{
		Action:  req.Action,
		Total:   len(pairs),
		Results: make([]PairResult, 0, len(pairs)),
	}

	for _, pair := range pairs {
		result := s.resolvePair(ctx, entityType, actor, req, pair)
		if result.Success {
			resp.Success++
		} else {
			resp.Errors++
		}
		resp.Results = append(resp.Results, result)
	}

	return resp, nil
}

// resolvePair handles one pair end to end and never panics the batch: any
// error becomes the pair's failure result.
func (s *Service) resolvePair(ctx context.Context, entityType, actor string, req *ResolveRequest, pair PairRef) PairResult {
	result := PairResult{
		CandidateID: pair.CandidateID,
		CanonicalID: pair.CanonicalID,
		DuplicateID: pair.DuplicateID,
	}

	candidate, err := s.locate(ctx, entityType, pair)
	if err != nil {
		result.Error = errMessage(err)
		result.validationFailure = isValidationError(err)
		ResolutionsTotal.WithLabelValues(entityType, req.Action, "error").Inc()
		return result
	}

	result.CandidateID = &candidate.ID
	result.CanonicalID = &candidate.CanonicalID
	result.DuplicateID = &candidate.DuplicateID

	// A candidate already resolved is a success, not an error. Retried
	// requests and double-clicked buttons land here.
	if candidate.Terminal() {
		result.Success = true
		result.NoOp = true
		ResolutionsTotal.WithLabelValues(entityType, req.Action, "noop").Inc()
		return result
	}

	// The request's explicit orientation wins over the candidate row's;
	// reviewers sometimes decide the generator guessed the survivor wrong.
	// The ids must still name this candidate's own pair, or the transition
	// would tombstone a pair that was never consolidated.
	canonicalID := candidate.CanonicalID
	duplicateID := candidate.DuplicateID
	if pair.CanonicalID != nil && pair.DuplicateID != nil {
		if !candidate.SamePair(*pair.CanonicalID, *pair.DuplicateID) {
			err := apperror.NewBadRequest(fmt.Sprintf(
				"canonical_id and duplicate_id do not match candidate %s", candidate.ID))
			result.Error = errMessage(err)
			result.validationFailure = true
			ResolutionsTotal.WithLabelValues(entityType, req.Action, "error").Inc()
			return result
		}
		canonicalID = *pair.CanonicalID
		duplicateID = *pair.DuplicateID
	}
	result.CanonicalID = &canonicalID
	result.DuplicateID = &duplicateID

	switch req.Action {
	case ActionMerge:
		err = s.doMerge(ctx, actor, req, candidate, canonicalID, duplicateID)
	default:
		err = s.doTerminal(ctx, actor, req.Action, candidate, canonicalID, duplicateID, &result)
	}
	if err != nil {
		result.Error = errMessage(err)
		result.validationFailure = isValidationError(err)
		ResolutionsTotal.WithLabelValues(entityType, req.Action, "error").Inc()
		return result
	}

	result.Success = true
	if !result.NoOp {
		ResolutionsTotal.WithLabelValues(entityType, req.Action, "success").Inc()
	}
	return result
}

func (s *Service) doMerge(ctx context.Context, actor string, req *ResolveRequest, candidate *DedupCandidate, canonicalID, duplicateID uuid.UUID) error {
	outcome, err := s.merger.Merge(ctx, MergeParams{
		EntityType:  candidate.EntityType,
		CanonicalID: canonicalID,
		DuplicateID: duplicateID,
		Actor:       actor,
		CandidateID: &candidate.ID,
		PriorStatus: candidate.Status,
		AllowReview: req.AllowReview(),
	})
	if err != nil {
		return err
	}

	s.log.Info("merge committed",
		"entity_type", candidate.EntityType,
		"candidate_id", candidate.ID,
		"canonical_id", canonicalID,
		"duplicate_id", duplicateID,
		"edges_reparented", outcome.EdgesReparented,
		"edges_collapsed", outcome.EdgesCollapsed,
		"candidates_dismissed", outcome.CandidatesDismissed,
		"actor", actor)
	return nil
}

func (s *Service) doTerminal(ctx context.Context, actor, action string, candidate *DedupCandidate, canonicalID, duplicateID uuid.UUID, result *PairResult) error {
	priorStatus := candidate.Status
	audit := &AuditRecord{
		EntityType:  candidate.EntityType,
		Action:      action,
		CanonicalID: canonicalID,
		DuplicateID: duplicateID,
		Actor:       actor,
		PriorStatus: &priorStatus,
		CandidateID: &candidate.ID,
	}

	transitioned, err := s.store.ResolveTerminal(ctx, candidate.ID, terminalStatus(action), actor, audit)
	if err != nil {
		return err
	}
	if !transitioned {
		// Someone else resolved it between our read and the update.
		result.NoOp = true
		ResolutionsTotal.WithLabelValues(candidate.EntityType, action, "noop").Inc()
	}
	return nil
}

// locate finds the candidate row named by the pair reference, by id when
// given, by unordered entity pair otherwise.
func (s *Service) locate(ctx context.Context, entityType string, pair PairRef) (*DedupCandidate, error) {
	if pair.CandidateID != nil {
		candidate, err := s.store.GetByID(ctx, *pair.CandidateID)
		if err != nil {
			return nil, err
		}
		if candidate.EntityType != entityType {
			return nil, apperror.NewBadRequest(fmt.Sprintf(
				"candidate %s is a %s candidate", candidate.ID, candidate.EntityType))
		}
		return candidate, nil
	}
	return s.store.FindPair(ctx, entityType, *pair.CanonicalID, *pair.DuplicateID)
}

// Preview loads both snapshots, evaluates safety and runs the field policy
// without writing anything. The verdict shown here is advisory; Merge
// re-evaluates inside its transaction.
func (s *Service) Preview(ctx context.Context, entityType string, candidateID uuid.UUID) (*PreviewResponse, error) {
	candidate, err := s.store.GetByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if candidate.EntityType != entityType {
		return nil, apperror.ErrCandidateNotFound
	}

	canonical, err := s.snapshots.LoadSnapshot(ctx, entityType, candidate.CanonicalID)
	if err != nil {
		return nil, err
	}
	duplicate, err := s.snapshots.LoadSnapshot(ctx, entityType, candidate.DuplicateID)
	if err != nil {
		return nil, err
	}

	verdict := Evaluate(canonical, duplicate)

	var fields []FieldResolution
	if verdict.Kind != VerdictBlocked {
		fields, err = s.merger.PreviewFields(ctx, entityType, candidate.CanonicalID, candidate.DuplicateID)
		if err != nil {
			return nil, err
		}
	}

	return &PreviewResponse{
		Candidate: candidate,
		Canonical: canonical,
		Duplicate: duplicate,
		Verdict:   verdict,
		Fields:    fields,
	}, nil
}

// Audit returns one page of the resolution ledger.
func (s *Service) Audit(ctx context.Context, params AuditListParams) (*AuditListResponse, error) {
	if params.Limit <= 0 {
		params.Limit = s.cfg.DefaultPageSize
	}
	if params.Limit > s.cfg.MaxPageSize {
		params.Limit = s.cfg.MaxPageSize
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	fetch := params
	fetch.Limit = params.Limit + 1
	records, err := s.store.ListAudit(ctx, fetch)
	if err != nil {
		return nil, err
	}

	hasMore := len(records) > params.Limit
	if hasMore {
		records = records[:params.Limit]
	}

	return &AuditListResponse{
		Records: records,
		Pagination: Pagination{
			Limit:   params.Limit,
			Offset:  params.Offset,
			HasMore: hasMore,
		},
	}, nil
}

// errMessage extracts the client-facing message from an error. Safety block
// reasons pass through verbatim.
func errMessage(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func isValidationError(err error) bool {
	var appErr *apperror.Error
	return errors.As(err, &appErr) && appErr.HTTPStatus == http.StatusBadRequest
}
