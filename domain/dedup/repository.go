package dedup

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/felinebridge/cockpit/domain/entities"
	"github.com/felinebridge/cockpit/internal/database"
	"github.com/felinebridge/cockpit/pkg/apperror"
	"github.com/felinebridge/cockpit/pkg/logger"
)

// Repository handles database access for candidates and the audit ledger.
// Methods that participate in the merge unit of work take an explicit
// bun.IDB so callers can pass their transaction.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new dedup repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("dedup.repo")),
	}
}

// DB exposes the underlying connection for transaction begin.
func (r *Repository) DB() bun.IDB {
	return r.db
}

// ListParams filters the candidate queue.
type ListParams struct {
	EntityType string
	Tier       *int
	Status     string // defaults to pending
	Limit      int
	Offset     int
}

// queueLess is the review queue ordering contract: strongest evidence first,
// meaning tier ascending, then score descending, then oldest first. It
// mirrors the ORDER BY in List so in-memory stores sort the same way the
// SQL does.
func queueLess(a, b *DedupCandidate) bool {
	if a.MatchTier != b.MatchTier {
		return a.MatchTier < b.MatchTier
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// List returns candidates ordered strongest evidence first: tier ascending,
// then score descending. Callers pass limit+1 to detect another page.
func (r *Repository) List(ctx context.Context, params ListParams) ([]*DedupCandidate, error) {
	status := params.Status
	if status == "" {
		status = StatusPending
	}

	var candidates []*DedupCandidate
	q := r.db.NewSelect().
		Model(&candidates).
		Where("dc.entity_type = ?", params.EntityType).
		Where("dc.status = ?", status)

	if params.Tier != nil {
		q = q.Where("dc.match_tier = ?", *params.Tier)
	}

	err := q.
		Order("dc.match_tier ASC").
		Order("dc.score DESC").
		Order("dc.created_at ASC").
		Limit(params.Limit).
		Offset(params.Offset).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if candidates == nil {
		candidates = []*DedupCandidate{}
	}
	return candidates, nil
}

// TierCounts returns pending counts per tier, independent of any pagination
// or tier filter applied to the listing itself.
func (r *Repository) TierCounts(ctx context.Context, entityType string) (map[int]int, error) {
	var rows []struct {
		MatchTier int `bun:"match_tier"`
		Count     int `bun:"count"`
	}

	err := r.db.NewSelect().
		Model((*DedupCandidate)(nil)).
		ColumnExpr("match_tier").
		ColumnExpr("COUNT(*) AS count").
		Where("entity_type = ?", entityType).
		Where("status = ?", StatusPending).
		GroupExpr("match_tier").
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.MatchTier] = row.Count
	}
	return counts, nil
}

// GetByID returns one candidate by id using the default connection.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*DedupCandidate, error) {
	return r.Get(ctx, r.db, id)
}

// FindPair locates the candidate row for an unordered entity pair using the
// default connection.
func (r *Repository) FindPair(ctx context.Context, entityType string, a, b uuid.UUID) (*DedupCandidate, error) {
	return r.FindByPair(ctx, r.db, entityType, a, b)
}

// ResolveTerminal transitions a pending candidate to a terminal status and
// appends the audit record in one transaction. Returns false when the
// candidate was no longer pending; in that case nothing is written, keeping
// the one-transition-one-audit-record correspondence exact.
func (r *Repository) ResolveTerminal(ctx context.Context, id uuid.UUID, toStatus, actor string, audit *AuditRecord) (bool, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	transitioned, err := r.Transition(ctx, tx, id, toStatus, actor)
	if err != nil {
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	if err := r.InsertAudit(ctx, tx, audit); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return true, nil
}

// Get returns one candidate by id.
func (r *Repository) Get(ctx context.Context, db bun.IDB, id uuid.UUID) (*DedupCandidate, error) {
	candidate := new(DedupCandidate)
	err := db.NewSelect().Model(candidate).Where("dc.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrCandidateNotFound
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return candidate, nil
}

// FindByPair locates the candidate row for an unordered entity pair,
// preferring the live pending row over resolved history.
func (r *Repository) FindByPair(ctx context.Context, db bun.IDB, entityType string, a, b uuid.UUID) (*DedupCandidate, error) {
	candidate := new(DedupCandidate)
	err := db.NewSelect().Model(candidate).
		Where("dc.entity_type = ?", entityType).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("(dc.canonical_id = ? AND dc.duplicate_id = ?)", a, b).
				WhereOr("(dc.canonical_id = ? AND dc.duplicate_id = ?)", b, a)
		}).
		OrderExpr("CASE WHEN dc.status = ? THEN 0 ELSE 1 END", StatusPending).
		Order("dc.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrCandidateNotFound
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return candidate, nil
}

// Transition moves a pending candidate to a terminal status. Returns false
// without error when the row was no longer pending, which callers treat as
// the idempotent no-op. The status guard in the WHERE clause is what makes
// two concurrent reviewer tabs safe.
func (r *Repository) Transition(ctx context.Context, db bun.IDB, id uuid.UUID, toStatus, actor string) (bool, error) {
	now := time.Now()
	res, err := db.NewUpdate().
		Model((*DedupCandidate)(nil)).
		Set("status = ?", toStatus).
		Set("resolved_at = ?", now).
		Set("resolved_by = ?", actor).
		Where("id = ?", id).
		Where("status = ?", StatusPending).
		Exec(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return affected > 0, nil
}

// DismissPendingForEntity dismisses all other pending candidates that
// reference an entity absorbed by a merge, writing one audit record per
// dismissed row. Their duplicate side no longer exists as a live record, so
// the pairs are moot.
func (r *Repository) DismissPendingForEntity(ctx context.Context, db bun.IDB, entityType string, entityID uuid.UUID, except uuid.UUID) (int64, error) {
	var dismissed []DedupCandidate
	_, err := db.NewUpdate().
		Model((*DedupCandidate)(nil)).
		Set("status = ?", StatusDismissed).
		Set("resolved_at = ?", time.Now()).
		Set("resolved_by = ?", systemMergeActor).
		Where("entity_type = ?", entityType).
		Where("status = ?", StatusPending).
		Where("id != ?", except).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				WhereOr("canonical_id = ?", entityID).
				WhereOr("duplicate_id = ?", entityID)
		}).
		Returning("id, canonical_id, duplicate_id").
		Exec(ctx, &dismissed)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}

	for i := range dismissed {
		c := &dismissed[i]
		reason := "other party of the pair was merged away"
		prior := StatusPending
		err := r.InsertAudit(ctx, db, &AuditRecord{
			EntityType:  entityType,
			Action:      ActionDismiss,
			CanonicalID: c.CanonicalID,
			DuplicateID: c.DuplicateID,
			Actor:       systemMergeActor,
			Reason:      &reason,
			PriorStatus: &prior,
			CandidateID: &c.ID,
		})
		if err != nil {
			return 0, err
		}
	}
	return int64(len(dismissed)), nil
}

var orphanSweepTargets = map[string]struct{ table, mergedCol string }{
	entities.TypePerson: {"trapper.people", "merged_into_person_id"},
	entities.TypePlace:  {"trapper.places", "merged_into_place_id"},
}

// SweepOrphans dismisses pending candidates whose canonical or duplicate
// side was already merged away through another pair, one audit record per
// dismissed row. The merge executor dismisses siblings synchronously; this
// is the backstop for rows the generator created after that pass.
func (r *Repository) SweepOrphans(ctx context.Context, entityType string) (int64, error) {
	target, ok := orphanSweepTargets[entityType]
	if !ok {
		return 0, apperror.NewBadRequest("unknown entity type: " + entityType)
	}

	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	var dismissed []DedupCandidate
	_, err = tx.NewUpdate().
		Model((*DedupCandidate)(nil)).
		Set("status = ?", StatusDismissed).
		Set("resolved_at = ?", time.Now()).
		Set("resolved_by = ?", SweepActor).
		Where("entity_type = ?", entityType).
		Where("status = ?", StatusPending).
		Where("EXISTS (SELECT 1 FROM "+target.table+" e WHERE e.id IN (canonical_id, duplicate_id) AND e."+target.mergedCol+" IS NOT NULL)").
		Returning("id, canonical_id, duplicate_id").
		Exec(ctx, &dismissed)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}

	for i := range dismissed {
		c := &dismissed[i]
		reason := "entity already merged away"
		prior := StatusPending
		err := r.InsertAudit(ctx, tx, &AuditRecord{
			EntityType:  entityType,
			Action:      ActionDismiss,
			CanonicalID: c.CanonicalID,
			DuplicateID: c.DuplicateID,
			Actor:       SweepActor,
			Reason:      &reason,
			PriorStatus: &prior,
			CandidateID: &c.ID,
		})
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return int64(len(dismissed)), nil
}

// InsertAudit appends one ledger record. Nothing ever updates or deletes
// these rows.
func (r *Repository) InsertAudit(ctx context.Context, db bun.IDB, record *AuditRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := db.NewInsert().Model(record).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// AuditListParams filters the audit ledger listing.
type AuditListParams struct {
	EntityType string
	EntityID   *uuid.UUID // matches either side of the pair
	Limit      int
	Offset     int
}

// ListAudit returns ledger entries newest first.
func (r *Repository) ListAudit(ctx context.Context, params AuditListParams) ([]*AuditRecord, error) {
	var records []*AuditRecord
	q := r.db.NewSelect().
		Model(&records).
		Where("da.entity_type = ?", params.EntityType)

	if params.EntityID != nil {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("da.canonical_id = ?", *params.EntityID).
				WhereOr("da.duplicate_id = ?", *params.EntityID)
		})
	}

	err := q.
		Order("da.created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if records == nil {
		records = []*AuditRecord{}
	}
	return records, nil
}
