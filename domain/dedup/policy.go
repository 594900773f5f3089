package dedup

// FieldOutcome describes how one attribute was combined during a merge.
type FieldOutcome string

const (
	// FieldCanonicalWins means the canonical value was kept.
	FieldCanonicalWins FieldOutcome = "canonical_wins"

	// FieldDuplicateFills means the canonical value was null and the
	// duplicate's value was backfilled.
	FieldDuplicateFills FieldOutcome = "duplicate_fills"

	// FieldConflict means both sides had different non-null values. The
	// canonical value is kept and the conflict is recorded in the audit
	// trail so the losing value is recoverable from the archived duplicate.
	FieldConflict FieldOutcome = "conflict"
)

// FieldResolution is the decision for one named attribute.
type FieldResolution struct {
	Field     string       `json:"field"`
	Outcome   FieldOutcome `json:"outcome"`
	Value     *string      `json:"value,omitempty"`
	Discarded *string      `json:"discarded,omitempty"`
}

// ResolveField applies the conservative merge policy to a single attribute:
// canonical wins, duplicate only fills nulls, disagreements are flagged but
// never overwrite. The policy runs on values, not on the store, so it is
// unit-testable without a database.
func ResolveField(name string, canonical, duplicate *string) FieldResolution {
	switch {
	case isEmpty(canonical) && isEmpty(duplicate):
		return FieldResolution{Field: name, Outcome: FieldCanonicalWins, Value: canonical}
	case isEmpty(canonical):
		return FieldResolution{Field: name, Outcome: FieldDuplicateFills, Value: duplicate}
	case isEmpty(duplicate):
		return FieldResolution{Field: name, Outcome: FieldCanonicalWins, Value: canonical}
	case *canonical == *duplicate:
		return FieldResolution{Field: name, Outcome: FieldCanonicalWins, Value: canonical}
	default:
		return FieldResolution{
			Field:     name,
			Outcome:   FieldConflict,
			Value:     canonical,
			Discarded: duplicate,
		}
	}
}

// ResolveFields applies ResolveField over a set of named attribute pairs,
// preserving input order.
func ResolveFields(pairs []FieldPair) []FieldResolution {
	out := make([]FieldResolution, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, ResolveField(p.Name, p.Canonical, p.Duplicate))
	}
	return out
}

// FieldPair names one attribute with both sides' values.
type FieldPair struct {
	Name      string
	Canonical *string
	Duplicate *string
}

func isEmpty(s *string) bool {
	return s == nil || *s == ""
}
