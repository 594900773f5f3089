package dedup

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felinebridge/cockpit/domain/entities"
	"github.com/felinebridge/cockpit/internal/config"
	"github.com/felinebridge/cockpit/pkg/apperror"
)

// fakeStore implements CandidateStore in memory.
type fakeStore struct {
	candidates map[uuid.UUID]*DedupCandidate
	audits     []*AuditRecord
	tierCounts map[int]int
}

func newFakeStore(candidates ...*DedupCandidate) *fakeStore {
	s := &fakeStore{
		candidates: make(map[uuid.UUID]*DedupCandidate),
		tierCounts: make(map[int]int),
	}
	for _, c := range candidates {
		s.candidates[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*DedupCandidate, error) {
	c, ok := s.candidates[id]
	if !ok {
		return nil, apperror.ErrCandidateNotFound
	}
	return c, nil
}

func (s *fakeStore) FindPair(_ context.Context, entityType string, a, b uuid.UUID) (*DedupCandidate, error) {
	var found *DedupCandidate
	for _, c := range s.candidates {
		if c.EntityType != entityType {
			continue
		}
		if (c.CanonicalID == a && c.DuplicateID == b) || (c.CanonicalID == b && c.DuplicateID == a) {
			if found == nil || c.Status == StatusPending {
				found = c
			}
		}
	}
	if found == nil {
		return nil, apperror.ErrCandidateNotFound
	}
	return found, nil
}

func (s *fakeStore) List(_ context.Context, params ListParams) ([]*DedupCandidate, error) {
	status := params.Status
	if status == "" {
		status = StatusPending
	}
	var all []*DedupCandidate
	for _, c := range s.candidates {
		if c.EntityType == params.EntityType && c.Status == status {
			all = append(all, c)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return queueLess(all[i], all[j]) })
	if params.Offset >= len(all) {
		return []*DedupCandidate{}, nil
	}
	all = all[params.Offset:]
	if len(all) > params.Limit {
		all = all[:params.Limit]
	}
	return all, nil
}

func (s *fakeStore) TierCounts(_ context.Context, _ string) (map[int]int, error) {
	return s.tierCounts, nil
}

func (s *fakeStore) ResolveTerminal(_ context.Context, id uuid.UUID, toStatus, actor string, audit *AuditRecord) (bool, error) {
	c, ok := s.candidates[id]
	if !ok {
		return false, apperror.ErrCandidateNotFound
	}
	if c.Status != StatusPending {
		return false, nil
	}
	now := time.Now()
	c.Status = toStatus
	c.ResolvedAt = &now
	c.ResolvedBy = &actor
	s.audits = append(s.audits, audit)
	return true, nil
}

func (s *fakeStore) ListAudit(_ context.Context, params AuditListParams) ([]*AuditRecord, error) {
	out := s.audits
	if params.Offset >= len(out) {
		return []*AuditRecord{}, nil
	}
	out = out[params.Offset:]
	if len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

// fakeMerger implements Merger, recording calls and optionally failing.
type fakeMerger struct {
	store  *fakeStore
	calls  []MergeParams
	err    error
	fields []FieldResolution
}

func (m *fakeMerger) Merge(_ context.Context, params MergeParams) (*MergeOutcome, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	if params.CandidateID != nil {
		if c, ok := m.store.candidates[*params.CandidateID]; ok {
			c.Status = StatusMerged
		}
	}
	return &MergeOutcome{Verdict: safe()}, nil
}

func (m *fakeMerger) PreviewFields(_ context.Context, _ string, _, _ uuid.UUID) ([]FieldResolution, error) {
	return m.fields, nil
}

// fakeSnapshots implements SnapshotLoader from a fixed map.
type fakeSnapshots struct {
	snapshots map[uuid.UUID]*entities.Snapshot
}

func (f *fakeSnapshots) LoadSnapshot(_ context.Context, _ string, id uuid.UUID) (*entities.Snapshot, error) {
	s, ok := f.snapshots[id]
	if !ok {
		return nil, apperror.ErrPersonNotFound
	}
	return s, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Dedup: config.DedupConfig{
			DefaultPageSize: 30,
			MaxPageSize:     200,
			MaxBatchSize:    100,
		},
	}
}

func newTestService(store *fakeStore, merger *fakeMerger, snapshots *fakeSnapshots) *Service {
	if snapshots == nil {
		snapshots = &fakeSnapshots{snapshots: map[uuid.UUID]*entities.Snapshot{}}
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, merger, snapshots, DefaultTierConfig(), testConfig(), log)
}

func pendingCandidate(entityType string, tier int) *DedupCandidate {
	return &DedupCandidate{
		ID:          uuid.New(),
		EntityType:  entityType,
		CanonicalID: uuid.New(),
		DuplicateID: uuid.New(),
		MatchTier:   tier,
		Score:       0.9,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

func TestServiceList_Pagination(t *testing.T) {
	store := newFakeStore(
		pendingCandidate(entities.TypePerson, 1),
		pendingCandidate(entities.TypePerson, 1),
		pendingCandidate(entities.TypePerson, 2),
	)
	store.tierCounts = map[int]int{2: 1, 1: 2}
	svc := newTestService(store, &fakeMerger{store: store}, nil)

	resp, err := svc.List(context.Background(), ListParams{
		EntityType: entities.TypePerson,
		Limit:      2,
	})
	require.NoError(t, err)

	assert.Len(t, resp.Candidates, 2)
	assert.True(t, resp.Pagination.HasMore)
	assert.Equal(t, 2, resp.Pagination.Limit)

	require.Len(t, resp.Summary, 2)
	assert.Equal(t, 1, resp.Summary[0].Tier)
	assert.Equal(t, "exact identifier", resp.Summary[0].Label)
	assert.Equal(t, 2, resp.Summary[0].PendingCount)
	assert.Equal(t, 2, resp.Summary[1].Tier)
}

func TestServiceList_QueueOrdering(t *testing.T) {
	scored := func(tier int, score float64) *DedupCandidate {
		c := pendingCandidate(entities.TypePerson, tier)
		c.Score = score
		return c
	}

	// Inserted weakest first; the queue must come back strongest first,
	// tier ascending with score descending within a tier.
	weak := scored(3, 0.99)
	strong := scored(2, 0.99)
	low := scored(1, 0.9)
	high := scored(1, 0.95)

	store := newFakeStore(weak, strong, low, high)
	svc := newTestService(store, &fakeMerger{store: store}, nil)

	resp, err := svc.List(context.Background(), ListParams{
		EntityType: entities.TypePerson,
		Limit:      10,
	})
	require.NoError(t, err)

	require.Len(t, resp.Candidates, 4)
	assert.Equal(t, high.ID, resp.Candidates[0].ID)
	assert.Equal(t, low.ID, resp.Candidates[1].ID)
	assert.Equal(t, strong.ID, resp.Candidates[2].ID)
	assert.Equal(t, weak.ID, resp.Candidates[3].ID)
}

func TestQueueLess_TiesBreakOnAge(t *testing.T) {
	older := pendingCandidate(entities.TypePerson, 1)
	newer := pendingCandidate(entities.TypePerson, 1)
	older.CreatedAt = newer.CreatedAt.Add(-time.Hour)

	assert.True(t, queueLess(older, newer))
	assert.False(t, queueLess(newer, older))
}

func TestServiceList_ClampsLimit(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMerger{store: store}, nil)

	resp, err := svc.List(context.Background(), ListParams{EntityType: entities.TypePerson})
	require.NoError(t, err)
	assert.Equal(t, 30, resp.Pagination.Limit)

	resp, err = svc.List(context.Background(), ListParams{
		EntityType: entities.TypePerson,
		Limit:      9999,
		Offset:     -5,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Pagination.Limit)
	assert.Equal(t, 0, resp.Pagination.Offset)
}

func TestResolve_MergeSuccess(t *testing.T) {
	candidate := pendingCandidate(entities.TypePerson, 1)
	store := newFakeStore(candidate)
	merger := &fakeMerger{store: store}
	svc := newTestService(store, merger, nil)

	resp, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer@example.org", &ResolveRequest{
		Action:      ActionMerge,
		CandidateID: &candidate.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Success)
	assert.Equal(t, 0, resp.Errors)
	require.Len(t, merger.calls, 1)
	assert.Equal(t, candidate.CanonicalID, merger.calls[0].CanonicalID)
	assert.Equal(t, "reviewer@example.org", merger.calls[0].Actor)
	assert.Equal(t, StatusPending, merger.calls[0].PriorStatus)
}

func TestResolve_IdempotentNoOp(t *testing.T) {
	candidate := pendingCandidate(entities.TypePerson, 2)
	store := newFakeStore(candidate)
	merger := &fakeMerger{store: store}
	svc := newTestService(store, merger, nil)

	req := &ResolveRequest{Action: ActionKeepSeparate, CandidateID: &candidate.ID}

	first, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Success)
	assert.False(t, first.Results[0].NoOp)
	assert.Equal(t, StatusKeptSeparate, candidate.Status)

	// The double-click: same request again lands on a terminal candidate.
	second, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", req)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Success)
	assert.Equal(t, 0, second.Errors)
	assert.True(t, second.Results[0].NoOp)

	// One resolution, one ledger entry. The no-op wrote nothing.
	assert.Len(t, store.audits, 1)
}

func TestResolve_BatchPartialFailure(t *testing.T) {
	pair1 := pendingCandidate(entities.TypePerson, 1)
	pair2 := pendingCandidate(entities.TypePerson, 1)
	pair2.Status = StatusMerged
	missing := uuid.New()

	store := newFakeStore(pair1, pair2)
	merger := &fakeMerger{store: store}
	svc := newTestService(store, merger, nil)

	resp, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action: ActionMerge,
		Pairs: []PairRef{
			{CandidateID: &pair1.ID},
			{CandidateID: &pair2.ID},
			{CandidateID: &missing},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Success)
	assert.Equal(t, 1, resp.Errors)

	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[0].NoOp)

	assert.True(t, resp.Results[1].Success)
	assert.True(t, resp.Results[1].NoOp)

	assert.False(t, resp.Results[2].Success)
	assert.Contains(t, resp.Results[2].Error, "not found")

	// A partial failure is not an all-validation failure.
	assert.False(t, resp.AllValidationFailed())
}

func TestResolve_SafetyBlockedSurfacesReason(t *testing.T) {
	candidate := pendingCandidate(entities.TypePerson, 1)
	store := newFakeStore(candidate)
	merger := &fakeMerger{
		store: store,
		err:   apperror.NewSafetyBlocked("both entities hold verified phone identifiers with no overlap"),
	}
	svc := newTestService(store, merger, nil)

	resp, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action:      ActionMerge,
		CandidateID: &candidate.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Errors)
	assert.Equal(t, "both entities hold verified phone identifiers with no overlap", resp.Results[0].Error)
	assert.Equal(t, StatusPending, candidate.Status)
}

func TestResolve_ConfirmReviewPassedThrough(t *testing.T) {
	candidate := pendingCandidate(entities.TypePerson, 2)
	store := newFakeStore(candidate)
	merger := &fakeMerger{store: store}
	svc := newTestService(store, merger, nil)

	no := false
	_, err := svc.Resolve(context.Background(), entities.TypePerson, "batch-job", &ResolveRequest{
		Action:        ActionMerge,
		CandidateID:   &candidate.ID,
		ConfirmReview: &no,
	})
	require.NoError(t, err)
	require.Len(t, merger.calls, 1)
	assert.False(t, merger.calls[0].AllowReview)

	candidate.Status = StatusPending
	_, err = svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action:      ActionMerge,
		CandidateID: &candidate.ID,
	})
	require.NoError(t, err)
	require.Len(t, merger.calls, 2)
	assert.True(t, merger.calls[1].AllowReview)
}

func TestResolve_OrientationOverride(t *testing.T) {
	candidate := pendingCandidate(entities.TypePerson, 1)
	store := newFakeStore(candidate)
	merger := &fakeMerger{store: store}
	svc := newTestService(store, merger, nil)

	// Reviewer flips the generator's canonical/duplicate guess.
	resp, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action:      ActionMerge,
		CanonicalID: &candidate.DuplicateID,
		DuplicateID: &candidate.CanonicalID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Success)

	require.Len(t, merger.calls, 1)
	assert.Equal(t, candidate.DuplicateID, merger.calls[0].CanonicalID)
	assert.Equal(t, candidate.CanonicalID, merger.calls[0].DuplicateID)
}

func TestResolve_RejectsForeignPairOverride(t *testing.T) {
	candidate := pendingCandidate(entities.TypePerson, 1)
	store := newFakeStore(candidate)
	merger := &fakeMerger{store: store}
	svc := newTestService(store, merger, nil)

	// Valid candidate_id, but entity ids naming a different pair entirely.
	strangerA, strangerB := uuid.New(), uuid.New()
	resp, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action:      ActionMerge,
		CandidateID: &candidate.ID,
		CanonicalID: &strangerA,
		DuplicateID: &strangerB,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Errors)
	assert.Contains(t, resp.Results[0].Error, "do not match candidate")
	assert.True(t, resp.AllValidationFailed())

	// Nothing merged, nothing transitioned, nothing audited.
	assert.Empty(t, merger.calls)
	assert.Equal(t, StatusPending, candidate.Status)
	assert.Empty(t, store.audits)

	// Swapping the candidate's own ids is still a legal override.
	resp, err = svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action:      ActionMerge,
		CandidateID: &candidate.ID,
		CanonicalID: &candidate.DuplicateID,
		DuplicateID: &candidate.CanonicalID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Success)
	require.Len(t, merger.calls, 1)
	assert.Equal(t, candidate.DuplicateID, merger.calls[0].CanonicalID)
}

func TestResolve_WrongEntityTypeCandidate(t *testing.T) {
	candidate := pendingCandidate(entities.TypePlace, 1)
	store := newFakeStore(candidate)
	svc := newTestService(store, &fakeMerger{store: store}, nil)

	resp, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action:      ActionDismiss,
		CandidateID: &candidate.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Errors)
	assert.True(t, resp.AllValidationFailed())
	assert.Equal(t, StatusPending, candidate.Status)
}

func TestResolve_BatchTooLarge(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMerger{store: store}, nil)

	pairs := make([]PairRef, 101)
	for i := range pairs {
		id := uuid.New()
		pairs[i] = PairRef{CandidateID: &id}
	}

	_, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action: ActionDismiss,
		Pairs:  pairs,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the maximum")
}

func TestResolve_AuditCompleteness(t *testing.T) {
	c1 := pendingCandidate(entities.TypePerson, 1)
	c2 := pendingCandidate(entities.TypePerson, 2)
	store := newFakeStore(c1, c2)
	svc := newTestService(store, &fakeMerger{store: store}, nil)

	resp, err := svc.Resolve(context.Background(), entities.TypePerson, "reviewer", &ResolveRequest{
		Action: ActionKeepSeparate,
		Pairs: []PairRef{
			{CandidateID: &c1.ID},
			{CandidateID: &c2.ID},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Success)

	// Exactly one ledger entry per state transition, each naming actor,
	// action and both entity ids.
	require.Len(t, store.audits, 2)
	for _, record := range store.audits {
		assert.Equal(t, ActionKeepSeparate, record.Action)
		assert.Equal(t, "reviewer", record.Actor)
		assert.NotEqual(t, uuid.Nil, record.CanonicalID)
		assert.NotEqual(t, uuid.Nil, record.DuplicateID)
		require.NotNil(t, record.PriorStatus)
		assert.Equal(t, StatusPending, *record.PriorStatus)
	}
}

func TestPreview(t *testing.T) {
	candidate := pendingCandidate(entities.TypePerson, 2)
	store := newFakeStore(candidate)

	snapshots := &fakeSnapshots{snapshots: map[uuid.UUID]*entities.Snapshot{
		candidate.CanonicalID: {
			ID:         candidate.CanonicalID,
			EntityType: entities.TypePerson,
			EdgeCounts: map[string]int{},
		},
		candidate.DuplicateID: {
			ID:         candidate.DuplicateID,
			EntityType: entities.TypePerson,
			EdgeCounts: map[string]int{"person_cats": 1},
		},
	}}
	merger := &fakeMerger{
		store: store,
		fields: []FieldResolution{
			{Field: "display_name", Outcome: FieldCanonicalWins},
		},
	}
	svc := newTestService(store, merger, snapshots)

	resp, err := svc.Preview(context.Background(), entities.TypePerson, candidate.ID)
	require.NoError(t, err)

	assert.Equal(t, candidate.ID, resp.Candidate.ID)
	assert.Equal(t, VerdictReview, resp.Verdict.Kind)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "display_name", resp.Fields[0].Field)
}

func TestPreview_UnknownCandidate(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMerger{store: store}, nil)

	_, err := svc.Preview(context.Background(), entities.TypePerson, uuid.New())
	assert.Error(t, err)
}
