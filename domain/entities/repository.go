package entities

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/felinebridge/cockpit/pkg/apperror"
	"github.com/felinebridge/cockpit/pkg/logger"
)

// maxAliasHops bounds merged_into chain traversal. Chains longer than this
// indicate a data bug (or a cycle) and resolution fails loudly.
const maxAliasHops = 20

// Repository handles database operations for people and places.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new entities repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("entities.repo")),
	}
}

// GetPerson returns a person by id, merged or not.
func (r *Repository) GetPerson(ctx context.Context, id uuid.UUID) (*Person, error) {
	return r.getPerson(ctx, r.db, id)
}

func (r *Repository) getPerson(ctx context.Context, db bun.IDB, id uuid.UUID) (*Person, error) {
	person := new(Person)
	err := db.NewSelect().Model(person).Where("p.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrPersonNotFound
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return person, nil
}

// GetPlace returns a place by id, merged or not.
func (r *Repository) GetPlace(ctx context.Context, id uuid.UUID) (*Place, error) {
	return r.getPlace(ctx, r.db, id)
}

func (r *Repository) getPlace(ctx context.Context, db bun.IDB, id uuid.UUID) (*Place, error) {
	place := new(Place)
	err := db.NewSelect().Model(place).Where("pl.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrPlaceNotFound
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return place, nil
}

// ResolvePerson follows the merged_into chain from id to the live canonical
// person. The returned chain holds every alias id traversed, oldest first,
// excluding the canonical id itself. A non-merged person resolves to itself
// with an empty chain.
func (r *Repository) ResolvePerson(ctx context.Context, id uuid.UUID) (*Person, []uuid.UUID, error) {
	var chain []uuid.UUID
	current := id

	for hop := 0; hop <= maxAliasHops; hop++ {
		person, err := r.GetPerson(ctx, current)
		if err != nil {
			return nil, nil, err
		}
		if !person.Merged() {
			return person, chain, nil
		}
		chain = append(chain, person.ID)
		current = *person.MergedIntoPersonID
	}

	r.log.Error("person alias chain exceeded hop limit", slog.String("id", id.String()))
	return nil, nil, apperror.ErrInternal.WithMessage("alias chain too deep")
}

// ResolvePlace follows the merged_into chain from id to the live canonical
// place. Same contract as ResolvePerson.
func (r *Repository) ResolvePlace(ctx context.Context, id uuid.UUID) (*Place, []uuid.UUID, error) {
	var chain []uuid.UUID
	current := id

	for hop := 0; hop <= maxAliasHops; hop++ {
		place, err := r.GetPlace(ctx, current)
		if err != nil {
			return nil, nil, err
		}
		if !place.Merged() {
			return place, chain, nil
		}
		chain = append(chain, place.ID)
		current = *place.MergedIntoPlaceID
	}

	r.log.Error("place alias chain exceeded hop limit", slog.String("id", id.String()))
	return nil, nil, apperror.ErrInternal.WithMessage("alias chain too deep")
}

// LoadSnapshot loads a relationship snapshot for the given entity using the
// repository's default connection.
func (r *Repository) LoadSnapshot(ctx context.Context, entityType string, id uuid.UUID) (*Snapshot, error) {
	return r.LoadSnapshotIn(ctx, r.db, entityType, id)
}

// LoadSnapshotIn loads a relationship snapshot using the given connection.
// The merge executor passes its transaction here so the safety re-check sees
// the same state the merge will operate on.
func (r *Repository) LoadSnapshotIn(ctx context.Context, db bun.IDB, entityType string, id uuid.UUID) (*Snapshot, error) {
	switch entityType {
	case TypePerson:
		return r.loadPersonSnapshot(ctx, db, id)
	case TypePlace:
		return r.loadPlaceSnapshot(ctx, db, id)
	default:
		return nil, apperror.NewBadRequest("unknown entity type: " + entityType)
	}
}

func (r *Repository) loadPersonSnapshot(ctx context.Context, db bun.IDB, id uuid.UUID) (*Snapshot, error) {
	person, err := r.getPerson(ctx, db, id)
	if err != nil {
		return nil, err
	}

	var identifiers []PersonIdentifier
	err = db.NewSelect().Model(&identifiers).
		Where("pi.person_id = ?", id).
		Order("pi.kind", "pi.normalized_value").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	claims := make([]IdentifierClaim, 0, len(identifiers))
	for _, pi := range identifiers {
		claims = append(claims, IdentifierClaim{
			Kind:            pi.Kind,
			Value:           pi.Value,
			NormalizedValue: pi.NormalizedValue,
			Verified:        pi.Verified,
		})
	}

	edgeCounts := make(map[string]int)
	edges := []struct {
		name  string
		model any
		col   string
	}{
		{"person_places", (*PersonPlace)(nil), "person_id"},
		{"person_cats", (*PersonCat)(nil), "person_id"},
		{"person_source_links", (*PersonSourceLink)(nil), "person_id"},
		{"requests", (*Request)(nil), "requester_person_id"},
	}
	for _, e := range edges {
		count, err := db.NewSelect().Model(e.model).
			Where("? = ?", bun.Ident(e.col), id).
			Count(ctx)
		if err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		edgeCounts[e.name] = count
	}

	return &Snapshot{
		ID:          person.ID,
		EntityType:  TypePerson,
		DisplayName: person.DisplayName,
		MergedInto:  person.MergedIntoPersonID,
		Identifiers: claims,
		EdgeCounts:  edgeCounts,
	}, nil
}

func (r *Repository) loadPlaceSnapshot(ctx context.Context, db bun.IDB, id uuid.UUID) (*Snapshot, error) {
	place, err := r.getPlace(ctx, db, id)
	if err != nil {
		return nil, err
	}

	var identifiers []PlaceIdentifier
	err = db.NewSelect().Model(&identifiers).
		Where("pli.place_id = ?", id).
		Order("pli.kind", "pli.normalized_value").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	claims := make([]IdentifierClaim, 0, len(identifiers))
	for _, pi := range identifiers {
		claims = append(claims, IdentifierClaim{
			Kind:            pi.Kind,
			Value:           pi.Value,
			NormalizedValue: pi.NormalizedValue,
			Verified:        pi.Verified,
		})
	}

	edgeCounts := make(map[string]int)

	personPlaces, err := db.NewSelect().Model((*PersonPlace)(nil)).
		Where("place_id = ?", id).Count(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	edgeCounts["person_places"] = personPlaces

	requests, err := db.NewSelect().Model((*Request)(nil)).
		Where("place_id = ?", id).Count(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	edgeCounts["requests"] = requests

	placeRels, err := db.NewSelect().Model((*PlaceRelationship)(nil)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("parent_place_id = ?", id).
				WhereOr("child_place_id = ?", id)
		}).
		Count(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	edgeCounts["place_relationships"] = placeRels

	colonySites, err := db.NewSelect().Model((*ColonySite)(nil)).
		Where("place_id = ?", id).Count(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	edgeCounts["colony_sites"] = colonySites

	classification := ""
	if place.Classification != nil {
		classification = *place.Classification
	}

	return &Snapshot{
		ID:             place.ID,
		EntityType:     TypePlace,
		DisplayName:    place.DisplayName,
		Classification: classification,
		MergedInto:     place.MergedIntoPlaceID,
		Identifiers:    claims,
		EdgeCounts:     edgeCounts,
	}, nil
}
