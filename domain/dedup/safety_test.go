package dedup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/felinebridge/cockpit/domain/entities"
)

func personSnapshot(opts ...func(*entities.Snapshot)) *entities.Snapshot {
	s := &entities.Snapshot{
		ID:         uuid.New(),
		EntityType: entities.TypePerson,
		EdgeCounts: map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func withIdentifier(kind, normalized string, verified bool) func(*entities.Snapshot) {
	return func(s *entities.Snapshot) {
		s.Identifiers = append(s.Identifiers, entities.IdentifierClaim{
			Kind:            kind,
			Value:           normalized,
			NormalizedValue: normalized,
			Verified:        verified,
		})
	}
}

func withEdges(table string, n int) func(*entities.Snapshot) {
	return func(s *entities.Snapshot) {
		s.EdgeCounts[table] = n
	}
}

func TestEvaluate_SafeWhenNoEdgesNoIdentifiers(t *testing.T) {
	verdict := Evaluate(personSnapshot(), personSnapshot())
	assert.Equal(t, VerdictSafe, verdict.Kind)
	assert.Empty(t, verdict.Reason)
	assert.True(t, verdict.Mergeable())
}

func TestEvaluate_BlockedSameEntity(t *testing.T) {
	s := personSnapshot()
	verdict := Evaluate(s, s)
	assert.Equal(t, VerdictBlocked, verdict.Kind)
	assert.False(t, verdict.Mergeable())
}

func TestEvaluate_BlockedTypeMismatch(t *testing.T) {
	place := personSnapshot()
	place.EntityType = entities.TypePlace

	verdict := Evaluate(personSnapshot(), place)
	assert.Equal(t, VerdictBlocked, verdict.Kind)
	assert.Contains(t, verdict.Reason, "entity types differ")
}

func TestEvaluate_BlockedAlreadyMerged(t *testing.T) {
	target := uuid.New()

	canonical := personSnapshot()
	canonical.MergedInto = &target
	verdict := Evaluate(canonical, personSnapshot())
	assert.Equal(t, VerdictBlocked, verdict.Kind)
	assert.Contains(t, verdict.Reason, "already merged")

	duplicate := personSnapshot()
	duplicate.MergedInto = &target
	verdict = Evaluate(personSnapshot(), duplicate)
	assert.Equal(t, VerdictBlocked, verdict.Kind)
}

func TestEvaluate_BlockedConflictingVerifiedIdentifiers(t *testing.T) {
	canonical := personSnapshot(withIdentifier("phone", "+15551230001", true))
	duplicate := personSnapshot(withIdentifier("phone", "+15551239999", true))

	verdict := Evaluate(canonical, duplicate)
	assert.Equal(t, VerdictBlocked, verdict.Kind)
	assert.Contains(t, verdict.Reason, "verified phone identifiers")
}

func TestEvaluate_VerifiedOverlapNotBlocked(t *testing.T) {
	// Shared verified value plus an extra on one side is overlap, not
	// conflict.
	canonical := personSnapshot(
		withIdentifier("phone", "+15551230001", true),
		withIdentifier("phone", "+15551230002", true),
	)
	duplicate := personSnapshot(withIdentifier("phone", "+15551230001", true))

	verdict := Evaluate(canonical, duplicate)
	assert.NotEqual(t, VerdictBlocked, verdict.Kind)
}

func TestEvaluate_VerifiedAgainstUnverifiedNotBlocked(t *testing.T) {
	// Only a verified-vs-verified disjoint pair blocks. One unverified
	// side downgrades the conflict to review.
	canonical := personSnapshot(withIdentifier("email", "a@example.org", true))
	duplicate := personSnapshot(withIdentifier("email", "b@example.org", false))

	verdict := Evaluate(canonical, duplicate)
	assert.Equal(t, VerdictReview, verdict.Kind)
	assert.Contains(t, verdict.Reason, "different email identifiers")
}

func TestEvaluate_ReviewWhenDuplicateHasEdges(t *testing.T) {
	canonical := personSnapshot()
	duplicate := personSnapshot(withEdges("person_places", 2), withEdges("person_cats", 1))

	verdict := Evaluate(canonical, duplicate)
	assert.Equal(t, VerdictReview, verdict.Kind)
	assert.Contains(t, verdict.Reason, "3 relationship edge(s)")
	assert.True(t, verdict.Mergeable())
}

func TestEvaluate_BlockedPlaceClassificationConflict(t *testing.T) {
	canonical := personSnapshot()
	canonical.EntityType = entities.TypePlace
	canonical.Classification = "colony_site"

	duplicate := personSnapshot()
	duplicate.EntityType = entities.TypePlace
	duplicate.Classification = "residence"

	verdict := Evaluate(canonical, duplicate)
	assert.Equal(t, VerdictBlocked, verdict.Kind)
	assert.Contains(t, verdict.Reason, "classifications")
}

func TestEvaluate_PlaceClassificationMissingSideOK(t *testing.T) {
	canonical := personSnapshot()
	canonical.EntityType = entities.TypePlace
	canonical.Classification = "colony_site"

	duplicate := personSnapshot()
	duplicate.EntityType = entities.TypePlace

	verdict := Evaluate(canonical, duplicate)
	assert.Equal(t, VerdictSafe, verdict.Kind)
}

func TestEvaluate_Deterministic(t *testing.T) {
	// Multiple identifier kinds exercise the sorted-kind iteration; the
	// same inputs must always produce the same verdict and reason.
	canonical := personSnapshot(
		withIdentifier("phone", "+15551230001", true),
		withIdentifier("email", "a@example.org", true),
	)
	duplicate := personSnapshot(
		withIdentifier("phone", "+15551239999", true),
		withIdentifier("email", "b@example.org", true),
	)

	first := Evaluate(canonical, duplicate)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Evaluate(canonical, duplicate))
	}
}
