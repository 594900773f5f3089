package dedup

import (
	"fmt"
	"sort"

	"github.com/felinebridge/cockpit/domain/entities"
)

// VerdictKind classifies whether a merge may proceed.
type VerdictKind string

const (
	VerdictSafe    VerdictKind = "safe"
	VerdictReview  VerdictKind = "review"
	VerdictBlocked VerdictKind = "blocked"
)

// Verdict is the safety evaluator's decision. Reason is set for review and
// blocked verdicts and is surfaced verbatim to reviewers.
type Verdict struct {
	Kind   VerdictKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

func safe() Verdict {
	return Verdict{Kind: VerdictSafe}
}

func review(format string, args ...any) Verdict {
	return Verdict{Kind: VerdictReview, Reason: fmt.Sprintf(format, args...)}
}

func blocked(format string, args ...any) Verdict {
	return Verdict{Kind: VerdictBlocked, Reason: fmt.Sprintf(format, args...)}
}

// Mergeable reports whether the verdict permits a merge at all.
// Review verdicts additionally require an explicit human confirmation.
func (v Verdict) Mergeable() bool {
	return v.Kind != VerdictBlocked
}

// Evaluate inspects two entity snapshots and decides whether merging
// duplicate into canonical is safe, needs human confirmation, or must be
// blocked. Pure function: no store access, deterministic for a given pair
// of snapshots, so retries under the same state reach the same verdict.
func Evaluate(canonical, duplicate *entities.Snapshot) Verdict {
	if canonical.ID == duplicate.ID {
		return blocked("canonical and duplicate are the same entity")
	}
	if canonical.EntityType != duplicate.EntityType {
		return blocked("entity types differ: %s vs %s", canonical.EntityType, duplicate.EntityType)
	}
	if canonical.MergedInto != nil {
		return blocked("canonical entity was already merged into %s", canonical.MergedInto)
	}
	if duplicate.MergedInto != nil {
		return blocked("duplicate entity was already merged into %s", duplicate.MergedInto)
	}

	if v, conflict := verifiedIdentifierConflict(canonical, duplicate); conflict {
		return v
	}

	if canonical.EntityType == entities.TypePlace &&
		canonical.Classification != "" && duplicate.Classification != "" &&
		canonical.Classification != duplicate.Classification {
		return blocked("conflicting place classifications: %q vs %q",
			canonical.Classification, duplicate.Classification)
	}

	if reason, ambiguous := unverifiedIdentifierConflict(canonical, duplicate); ambiguous {
		return review("%s", reason)
	}

	if edges := duplicate.TotalEdges(); edges > 0 {
		return review("duplicate has %d relationship edge(s) to reparent", edges)
	}

	return safe()
}

// verifiedIdentifierConflict blocks when both sides hold staff-verified
// identifiers of the same kind with no overlap. Two different confirmed
// phone numbers means the records may describe two different people, and
// merging would silently destroy that distinction.
func verifiedIdentifierConflict(canonical, duplicate *entities.Snapshot) (Verdict, bool) {
	canVerified := canonical.VerifiedIdentifiers()
	dupVerified := duplicate.VerifiedIdentifiers()

	for _, kind := range sortedKinds(canVerified) {
		dupClaims, ok := dupVerified[kind]
		if !ok {
			continue
		}
		if !valuesOverlap(canVerified[kind], dupClaims) {
			return blocked("both entities hold verified %s identifiers with no overlap", kind), true
		}
	}
	return Verdict{}, false
}

// unverifiedIdentifierConflict flags disjoint same-kind identifier sets
// where at least one side is unverified. Plausible but ambiguous, so a
// human must confirm.
func unverifiedIdentifierConflict(canonical, duplicate *entities.Snapshot) (string, bool) {
	canByKind := claimsByKind(canonical.Identifiers)
	dupByKind := claimsByKind(duplicate.Identifiers)

	for _, kind := range sortedKinds(canByKind) {
		dupClaims, ok := dupByKind[kind]
		if !ok {
			continue
		}
		if !valuesOverlap(canByKind[kind], dupClaims) {
			return fmt.Sprintf("entities hold different %s identifiers (unverified)", kind), true
		}
	}
	return "", false
}

func claimsByKind(claims []entities.IdentifierClaim) map[string][]entities.IdentifierClaim {
	out := make(map[string][]entities.IdentifierClaim)
	for _, c := range claims {
		out[c.Kind] = append(out[c.Kind], c)
	}
	return out
}

func valuesOverlap(a, b []entities.IdentifierClaim) bool {
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[c.NormalizedValue] = true
	}
	for _, c := range b {
		if seen[c.NormalizedValue] {
			return true
		}
	}
	return false
}

func sortedKinds[T any](m map[string]T) []string {
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
