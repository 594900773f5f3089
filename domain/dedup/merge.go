package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/felinebridge/cockpit/domain/entities"
	"github.com/felinebridge/cockpit/internal/database"
	"github.com/felinebridge/cockpit/pkg/apperror"
	"github.com/felinebridge/cockpit/pkg/logger"
)

// edgeTable describes one relationship table referencing an entity type.
// dedupeKeys are the columns that, together with the FK, make an edge
// unique; reassignment collapses would-be duplicate edges on those columns
// before updating the FK. A nil dedupeKeys means the table has no uniqueness
// involving the FK and rows can be reassigned unconditionally.
type edgeTable struct {
	table      string
	fk         string
	dedupeKeys []string
}

var personEdgeTables = []edgeTable{
	{"trapper.person_places", "person_id", []string{"place_id", "role"}},
	{"trapper.person_cats", "person_id", []string{"cat_id"}},
	{"trapper.person_identifiers", "person_id", []string{"kind", "normalized_value"}},
	{"trapper.person_source_links", "person_id", nil},
	{"trapper.requests", "requester_person_id", nil},
}

var placeEdgeTables = []edgeTable{
	{"trapper.person_places", "place_id", []string{"person_id", "role"}},
	{"trapper.place_identifiers", "place_id", []string{"kind", "normalized_value"}},
	{"trapper.colony_sites", "place_id", []string{"colony_id"}},
	{"trapper.requests", "place_id", nil},
}

// MergeParams identifies one merge unit of work.
type MergeParams struct {
	EntityType  string
	CanonicalID uuid.UUID
	DuplicateID uuid.UUID
	Actor       string

	// CandidateID ties the merge to its queue row; the status transition
	// happens inside the same transaction as the merge itself.
	CandidateID *uuid.UUID
	PriorStatus string

	// AllowReview permits merging under a review verdict. Set from an
	// explicit human confirmation, never defaulted by unattended callers.
	AllowReview bool
}

// MergeOutcome reports what one committed merge did.
type MergeOutcome struct {
	Verdict             Verdict           `json:"verdict"`
	Fields              []FieldResolution `json:"fields"`
	EdgesReparented     int64             `json:"edges_reparented"`
	EdgesCollapsed      int64             `json:"edges_collapsed"`
	CandidatesDismissed int64             `json:"candidates_dismissed"`
}

// Executor performs entity consolidation as a single transaction: safety
// re-check, edge reparenting, alias pointer, conservative field backfill,
// candidate transition and audit write all commit or roll back together.
type Executor struct {
	db       bun.IDB
	entities *entities.Repository
	repo     *Repository
	log      *slog.Logger
}

// NewExecutor creates a new merge executor.
func NewExecutor(db bun.IDB, entitiesRepo *entities.Repository, repo *Repository, log *slog.Logger) *Executor {
	return &Executor{
		db:       db,
		entities: entitiesRepo,
		repo:     repo,
		log:      log.With(logger.Scope("dedup.executor")),
	}
}

// Merge consolidates duplicate into canonical. The safety verdict is
// re-evaluated inside the transaction; a verdict from a prior page load is
// never trusted.
func (e *Executor) Merge(ctx context.Context, params MergeParams) (*MergeOutcome, error) {
	start := time.Now()

	tx, err := database.BeginSafeTx(ctx, e.db)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	if err := e.lockEntities(ctx, tx, params); err != nil {
		return nil, err
	}

	canonical, err := e.entities.LoadSnapshotIn(ctx, tx, params.EntityType, params.CanonicalID)
	if err != nil {
		return nil, err
	}
	duplicate, err := e.entities.LoadSnapshotIn(ctx, tx, params.EntityType, params.DuplicateID)
	if err != nil {
		return nil, err
	}

	verdict := Evaluate(canonical, duplicate)
	if verdict.Kind == VerdictBlocked {
		return nil, apperror.NewSafetyBlocked(verdict.Reason)
	}
	if verdict.Kind == VerdictReview && !params.AllowReview {
		return nil, apperror.NewSafetyBlocked("merge requires review confirmation: " + verdict.Reason)
	}

	outcome := &MergeOutcome{Verdict: verdict}

	if err := e.reparentEdges(ctx, tx, params, outcome); err != nil {
		return nil, err
	}

	if err := e.markMerged(ctx, tx, params); err != nil {
		return nil, err
	}

	fields, err := e.backfillFields(ctx, tx, params)
	if err != nil {
		return nil, err
	}
	outcome.Fields = fields

	if params.CandidateID != nil {
		transitioned, err := e.repo.Transition(ctx, tx, *params.CandidateID, StatusMerged, params.Actor)
		if err != nil {
			return nil, err
		}
		if !transitioned {
			// The candidate left pending under our feet. Abort rather
			// than double-merge.
			return nil, apperror.ErrConflict.WithMessage("candidate was resolved concurrently")
		}

		dismissed, err := e.repo.DismissPendingForEntity(ctx, tx, params.EntityType, params.DuplicateID, *params.CandidateID)
		if err != nil {
			return nil, err
		}
		outcome.CandidatesDismissed = dismissed
	}

	if err := e.writeAudit(ctx, tx, params, verdict, fields); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	MergeDuration.Observe(time.Since(start).Seconds())
	e.log.Info("merged entities",
		slog.String("entity_type", params.EntityType),
		slog.String("canonical_id", params.CanonicalID.String()),
		slog.String("duplicate_id", params.DuplicateID.String()),
		slog.String("verdict", string(verdict.Kind)),
		slog.Int64("edges_reparented", outcome.EdgesReparented),
		slog.Int64("edges_collapsed", outcome.EdgesCollapsed),
		slog.Duration("duration", time.Since(start)))

	return outcome, nil
}

// lockEntities takes row locks on both entity rows for the duration of the
// transaction. Deterministic lock order (by id) avoids deadlocks between
// concurrent merges touching the same entities.
func (e *Executor) lockEntities(ctx context.Context, tx bun.IDB, params MergeParams) error {
	table := "trapper.people"
	if params.EntityType == entities.TypePlace {
		table = "trapper.places"
	}

	first, second := params.CanonicalID, params.DuplicateID
	if second.String() < first.String() {
		first, second = second, first
	}

	for _, id := range []uuid.UUID{first, second} {
		var locked uuid.UUID
		err := tx.NewSelect().
			TableExpr(table).
			Column("id").
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx, &locked)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewNotFound(params.EntityType, id.String())
		}
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}
	return nil
}

// reparentEdges moves every relationship edge from duplicate to canonical.
// Where the move would collide with an edge the canonical side already has,
// the duplicate's edge is dropped first so uniqueness constraints hold.
func (e *Executor) reparentEdges(ctx context.Context, tx bun.IDB, params MergeParams, outcome *MergeOutcome) error {
	tables := personEdgeTables
	if params.EntityType == entities.TypePlace {
		tables = placeEdgeTables
	}

	for _, et := range tables {
		collapsed, moved, err := e.reparentTable(ctx, tx, et, params.CanonicalID, params.DuplicateID)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(
				fmt.Errorf("reparent %s: %w", et.table, err))
		}
		outcome.EdgesCollapsed += collapsed
		outcome.EdgesReparented += moved
	}

	if params.EntityType == entities.TypePlace {
		collapsed, moved, err := e.reparentPlaceRelationships(ctx, tx, params.CanonicalID, params.DuplicateID)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(
				fmt.Errorf("reparent trapper.place_relationships: %w", err))
		}
		outcome.EdgesCollapsed += collapsed
		outcome.EdgesReparented += moved
	}

	return nil
}

func (e *Executor) reparentTable(ctx context.Context, tx bun.IDB, et edgeTable, canonicalID, duplicateID uuid.UUID) (collapsed, moved int64, err error) {
	if len(et.dedupeKeys) > 0 {
		joins := make([]string, 0, len(et.dedupeKeys))
		for _, k := range et.dedupeKeys {
			joins = append(joins, fmt.Sprintf("keep.%s = dup.%s", k, k))
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM %s dup
			WHERE dup.%s = ?
			  AND EXISTS (
				SELECT 1 FROM %s keep
				WHERE keep.%s = ? AND %s
			  )
		`, et.table, et.fk, et.table, et.fk, strings.Join(joins, " AND ")),
			duplicateID, canonicalID)
		if err != nil {
			return 0, 0, err
		}
		collapsed, _ = res.RowsAffected()
	}

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", et.table, et.fk, et.fk),
		canonicalID, duplicateID)
	if err != nil {
		return 0, 0, err
	}
	moved, _ = res.RowsAffected()
	return collapsed, moved, nil
}

// reparentPlaceRelationships handles the place hierarchy edges, which
// reference places on both sides. Pairs linking canonical and duplicate
// directly would become self-edges and are dropped instead of reassigned.
func (e *Executor) reparentPlaceRelationships(ctx context.Context, tx bun.IDB, canonicalID, duplicateID uuid.UUID) (collapsed, moved int64, err error) {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM trapper.place_relationships
		WHERE (parent_place_id = ? AND child_place_id = ?)
		   OR (parent_place_id = ? AND child_place_id = ?)
	`, duplicateID, canonicalID, canonicalID, duplicateID)
	if err != nil {
		return 0, 0, err
	}
	collapsed, _ = res.RowsAffected()

	for _, cols := range []struct{ fk, other string }{
		{"parent_place_id", "child_place_id"},
		{"child_place_id", "parent_place_id"},
	} {
		c, m, err := e.reparentTable(ctx, tx, edgeTable{
			table:      "trapper.place_relationships",
			fk:         cols.fk,
			dedupeKeys: []string{cols.other},
		}, canonicalID, duplicateID)
		if err != nil {
			return 0, 0, err
		}
		collapsed += c
		moved += m
	}
	return collapsed, moved, nil
}

// markMerged sets the duplicate's alias pointer. Runs before field backfill
// so partial unique indexes scoped to live rows release the duplicate's
// values first.
func (e *Executor) markMerged(ctx context.Context, tx bun.IDB, params MergeParams) error {
	table := "trapper.people"
	column := "merged_into_person_id"
	if params.EntityType == entities.TypePlace {
		table = "trapper.places"
		column = "merged_into_place_id"
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET %s = ?, updated_at = NOW() WHERE id = ?
	`, table, column), params.CanonicalID, params.DuplicateID)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperror.NewNotFound(params.EntityType, params.DuplicateID.String())
	}
	return nil
}

// backfillFields applies the conservative field policy: canonical values
// stay, nulls are filled from the duplicate, conflicts keep canonical and
// are recorded for the audit trail.
func (e *Executor) backfillFields(ctx context.Context, tx bun.IDB, params MergeParams) ([]FieldResolution, error) {
	if params.EntityType == entities.TypePerson {
		return e.backfillPerson(ctx, tx, params.CanonicalID, params.DuplicateID)
	}
	return e.backfillPlace(ctx, tx, params.CanonicalID, params.DuplicateID)
}

func personFieldPairs(canonical, duplicate *entities.Person) []FieldPair {
	return []FieldPair{
		{"first_name", canonical.FirstName, duplicate.FirstName},
		{"last_name", canonical.LastName, duplicate.LastName},
		{"email", canonical.Email, duplicate.Email},
		{"phone", canonical.Phone, duplicate.Phone},
		{"phone_normalized", canonical.PhoneNormalized, duplicate.PhoneNormalized},
		{"address_display", canonical.AddressDisplay, duplicate.AddressDisplay},
	}
}

func placeFieldPairs(canonical, duplicate *entities.Place) []FieldPair {
	return []FieldPair{
		{"place_key", canonical.PlaceKey, duplicate.PlaceKey},
		{"address_line", canonical.AddressLine, duplicate.AddressLine},
		{"city", canonical.City, duplicate.City},
		{"postal_code", canonical.PostalCode, duplicate.PostalCode},
		{"classification", canonical.Classification, duplicate.Classification},
	}
}

// PreviewFields computes the field policy outcomes for a prospective merge
// without writing anything.
func (e *Executor) PreviewFields(ctx context.Context, entityType string, canonicalID, duplicateID uuid.UUID) ([]FieldResolution, error) {
	if entityType == entities.TypePerson {
		canonical, duplicate, err := e.loadPersonPair(ctx, e.db, canonicalID, duplicateID)
		if err != nil {
			return nil, err
		}
		return ResolveFields(personFieldPairs(canonical, duplicate)), nil
	}

	canonical, duplicate, err := e.loadPlacePair(ctx, e.db, canonicalID, duplicateID)
	if err != nil {
		return nil, err
	}
	return ResolveFields(placeFieldPairs(canonical, duplicate)), nil
}

func (e *Executor) loadPersonPair(ctx context.Context, db bun.IDB, canonicalID, duplicateID uuid.UUID) (*entities.Person, *entities.Person, error) {
	var canonical, duplicate entities.Person
	if err := db.NewSelect().Model(&canonical).Where("p.id = ?", canonicalID).Scan(ctx); err != nil {
		return nil, nil, apperror.ErrDatabase.WithInternal(err)
	}
	if err := db.NewSelect().Model(&duplicate).Where("p.id = ?", duplicateID).Scan(ctx); err != nil {
		return nil, nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &canonical, &duplicate, nil
}

func (e *Executor) loadPlacePair(ctx context.Context, db bun.IDB, canonicalID, duplicateID uuid.UUID) (*entities.Place, *entities.Place, error) {
	var canonical, duplicate entities.Place
	if err := db.NewSelect().Model(&canonical).Where("pl.id = ?", canonicalID).Scan(ctx); err != nil {
		return nil, nil, apperror.ErrDatabase.WithInternal(err)
	}
	if err := db.NewSelect().Model(&duplicate).Where("pl.id = ?", duplicateID).Scan(ctx); err != nil {
		return nil, nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &canonical, &duplicate, nil
}

func (e *Executor) backfillPerson(ctx context.Context, tx bun.IDB, canonicalID, duplicateID uuid.UUID) ([]FieldResolution, error) {
	canonical, duplicate, err := e.loadPersonPair(ctx, tx, canonicalID, duplicateID)
	if err != nil {
		return nil, err
	}

	resolutions := ResolveFields(personFieldPairs(canonical, duplicate))
	return resolutions, e.applyBackfill(ctx, tx, "trapper.people", canonicalID, resolutions)
}

func (e *Executor) backfillPlace(ctx context.Context, tx bun.IDB, canonicalID, duplicateID uuid.UUID) ([]FieldResolution, error) {
	canonical, duplicate, err := e.loadPlacePair(ctx, tx, canonicalID, duplicateID)
	if err != nil {
		return nil, err
	}

	resolutions := ResolveFields(placeFieldPairs(canonical, duplicate))

	if err := e.applyBackfill(ctx, tx, "trapper.places", canonicalID, resolutions); err != nil {
		return nil, err
	}

	// Coordinates backfill only when the canonical has none.
	if canonical.Lat == nil && canonical.Lng == nil && duplicate.Lat != nil && duplicate.Lng != nil {
		_, err := tx.ExecContext(ctx,
			`UPDATE trapper.places SET lat = ?, lng = ?, updated_at = NOW() WHERE id = ?`,
			*duplicate.Lat, *duplicate.Lng, canonicalID)
		if err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		resolutions = append(resolutions, FieldResolution{
			Field:   "coordinates",
			Outcome: FieldDuplicateFills,
		})
	}

	return resolutions, nil
}

func (e *Executor) applyBackfill(ctx context.Context, tx bun.IDB, table string, canonicalID uuid.UUID, resolutions []FieldResolution) error {
	sets := make([]string, 0, len(resolutions))
	args := make([]any, 0, len(resolutions)+1)
	for _, res := range resolutions {
		if res.Outcome != FieldDuplicateFills {
			continue
		}
		sets = append(sets, res.Field+" = ?")
		args = append(args, *res.Value)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, canonicalID)
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET %s, updated_at = NOW() WHERE id = ?",
		table, strings.Join(sets, ", ")), args...)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (e *Executor) writeAudit(ctx context.Context, tx bun.IDB, params MergeParams, verdict Verdict, fields []FieldResolution) error {
	reason := string(verdict.Kind)
	if verdict.Reason != "" {
		reason += ": " + verdict.Reason
	}
	if conflicts := conflictFields(fields); len(conflicts) > 0 {
		reason += "; field conflicts kept canonical: " + strings.Join(conflicts, ", ")
	}

	prior := params.PriorStatus
	if prior == "" {
		prior = StatusPending
	}

	return e.repo.InsertAudit(ctx, tx, &AuditRecord{
		EntityType:  params.EntityType,
		Action:      ActionMerge,
		CanonicalID: params.CanonicalID,
		DuplicateID: params.DuplicateID,
		Actor:       params.Actor,
		Reason:      &reason,
		PriorStatus: &prior,
		CandidateID: params.CandidateID,
	})
}

func conflictFields(fields []FieldResolution) []string {
	var out []string
	for _, f := range fields {
		if f.Outcome == FieldConflict {
			out = append(out, f.Field)
		}
	}
	return out
}
