package entities

import "github.com/google/uuid"

// IdentifierClaim is one matchable identifier held by an entity, reduced to
// what safety evaluation needs.
type IdentifierClaim struct {
	Kind            string `json:"kind"`
	Value           string `json:"value"`
	NormalizedValue string `json:"normalized_value"`
	Verified        bool   `json:"verified"`
}

// Snapshot is a read-only view of one entity's identity and relationship
// graph at a point in time. The safety evaluator works exclusively over
// snapshots, which keeps it deterministic and free of store access.
type Snapshot struct {
	ID          uuid.UUID `json:"id"`
	EntityType  string    `json:"entity_type"`
	DisplayName string    `json:"display_name"`

	// Classification is set for places only (e.g. "colony_site", "residence").
	Classification string `json:"classification,omitempty"`

	// MergedInto is non-nil when the entity is already an alias.
	MergedInto *uuid.UUID `json:"merged_into,omitempty"`

	Identifiers []IdentifierClaim `json:"identifiers"`

	// EdgeCounts maps edge-table name to the number of rows referencing
	// this entity.
	EdgeCounts map[string]int `json:"edge_counts"`
}

// TotalEdges returns the number of relationship edges across all tables.
func (s *Snapshot) TotalEdges() int {
	total := 0
	for _, n := range s.EdgeCounts {
		total += n
	}
	return total
}

// VerifiedIdentifiers returns only staff-verified claims, grouped by kind.
func (s *Snapshot) VerifiedIdentifiers() map[string][]IdentifierClaim {
	out := make(map[string][]IdentifierClaim)
	for _, id := range s.Identifiers {
		if id.Verified {
			out[id.Kind] = append(out[id.Kind], id)
		}
	}
	return out
}
