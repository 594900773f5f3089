package dedup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uuidPtr() *uuid.UUID {
	id := uuid.New()
	return &id
}

func TestNormalize_FlatShape(t *testing.T) {
	req := &ResolveRequest{
		Action:      ActionMerge,
		CandidateID: uuidPtr(),
	}

	pairs, err := req.Normalize()
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, req.CandidateID, pairs[0].CandidateID)
}

func TestNormalize_FlatShapeByEntityIDs(t *testing.T) {
	req := &ResolveRequest{
		Action:      ActionKeepSeparate,
		CanonicalID: uuidPtr(),
		DuplicateID: uuidPtr(),
	}

	pairs, err := req.Normalize()
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Nil(t, pairs[0].CandidateID)
}

func TestNormalize_BatchShape(t *testing.T) {
	req := &ResolveRequest{
		Action: ActionDismiss,
		Pairs: []PairRef{
			{CandidateID: uuidPtr()},
			{CanonicalID: uuidPtr(), DuplicateID: uuidPtr()},
		},
	}

	pairs, err := req.Normalize()
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestNormalize_UnknownAction(t *testing.T) {
	req := &ResolveRequest{Action: "obliterate", CandidateID: uuidPtr()}
	_, err := req.Normalize()
	assert.Error(t, err)
}

func TestNormalize_NoPairs(t *testing.T) {
	req := &ResolveRequest{Action: ActionMerge}
	_, err := req.Normalize()
	assert.Error(t, err)
}

func TestNormalize_IncompletePair(t *testing.T) {
	// canonical_id without duplicate_id cannot identify a pair
	req := &ResolveRequest{Action: ActionMerge, CanonicalID: uuidPtr()}
	_, err := req.Normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "candidate_id or both")

	req = &ResolveRequest{
		Action: ActionMerge,
		Pairs: []PairRef{
			{CandidateID: uuidPtr()},
			{DuplicateID: uuidPtr()},
		},
	}
	_, err = req.Normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pair 1")
}

func TestAllowReview(t *testing.T) {
	yes := true
	no := false

	assert.True(t, (&ResolveRequest{}).AllowReview())
	assert.True(t, (&ResolveRequest{ConfirmReview: &yes}).AllowReview())
	assert.False(t, (&ResolveRequest{ConfirmReview: &no}).AllowReview())
}

func TestAllValidationFailed(t *testing.T) {
	assert.False(t, (&ResolveResponse{}).AllValidationFailed())

	mixed := &ResolveResponse{
		Total:   2,
		Success: 1,
		Errors:  1,
		Results: []PairResult{
			{Success: true},
			{Error: "bad", validationFailure: true},
		},
	}
	assert.False(t, mixed.AllValidationFailed())

	systemFailure := &ResolveResponse{
		Total:  1,
		Errors: 1,
		Results: []PairResult{
			{Error: "database down"},
		},
	}
	assert.False(t, systemFailure.AllValidationFailed())

	allInvalid := &ResolveResponse{
		Total:  2,
		Errors: 2,
		Results: []PairResult{
			{Error: "bad", validationFailure: true},
			{Error: "bad", validationFailure: true},
		},
	}
	assert.True(t, allInvalid.AllValidationFailed())
}
