package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/felinebridge/cockpit/domain/dedup"
	"github.com/felinebridge/cockpit/domain/entities"
	"github.com/felinebridge/cockpit/pkg/logger"
)

// QueueStatsTask refreshes the Prometheus gauges for dedup queue depth.
type QueueStatsTask struct {
	db  bun.IDB
	log *slog.Logger
}

// NewQueueStatsTask creates a new queue stats task
func NewQueueStatsTask(db bun.IDB, log *slog.Logger) *QueueStatsTask {
	return &QueueStatsTask{
		db:  db,
		log: log.With(logger.Scope("scheduler.queue_stats")),
	}
}

// Run recomputes pending counts per entity type and tier.
func (t *QueueStatsTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("refreshing dedup queue gauges")

	var rows []struct {
		EntityType string `bun:"entity_type"`
		MatchTier  int    `bun:"match_tier"`
		Count      int64  `bun:"count"`
	}

	err := t.db.NewSelect().
		TableExpr("trapper.dedup_candidates").
		ColumnExpr("entity_type").
		ColumnExpr("match_tier").
		ColumnExpr("COUNT(*) AS count").
		Where("status = 'pending'").
		GroupExpr("entity_type, match_tier").
		Scan(ctx, &rows)
	if err != nil {
		t.log.Error("failed to refresh queue gauges",
			slog.String("error", err.Error()))
		return err
	}

	// Reset so tiers that drained to zero do not keep stale values.
	dedup.QueueDepth.Reset()
	for _, row := range rows {
		dedup.QueueDepth.WithLabelValues(row.EntityType, strconv.Itoa(row.MatchTier)).
			Set(float64(row.Count))
	}

	t.log.Debug("dedup queue gauges refreshed",
		slog.Int("rows", len(rows)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// OrphanSweepTask dismisses pending candidates that reference an entity
// already merged away through another pair. The merge executor dismisses
// these synchronously; the sweep is the backstop for rows created between
// the executor's snapshot and commit. Each swept row gets an audit record,
// written by the dedup repository in the same transaction.
type OrphanSweepTask struct {
	repo *dedup.Repository
	log  *slog.Logger
}

// NewOrphanSweepTask creates a new orphan sweep task
func NewOrphanSweepTask(repo *dedup.Repository, log *slog.Logger) *OrphanSweepTask {
	return &OrphanSweepTask{
		repo: repo,
		log:  log.With(logger.Scope("scheduler.orphan_sweep")),
	}
}

// Run executes the orphan sweep for both entity types.
func (t *OrphanSweepTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("sweeping orphaned candidates")

	totalSwept := int64(0)
	for _, entityType := range []string{entities.TypePerson, entities.TypePlace} {
		count, err := t.repo.SweepOrphans(ctx, entityType)
		if err != nil {
			t.log.Warn("orphan sweep failed",
				slog.String("entity_type", entityType),
				slog.String("error", err.Error()))
			continue
		}
		if count > 0 {
			t.log.Info("dismissed orphaned candidates",
				slog.String("entity_type", entityType),
				slog.Int64("count", count))
			totalSwept += count
		}
	}

	t.log.Debug("orphan sweep completed",
		slog.Int64("total_swept", totalSwept),
		slog.Duration("duration", time.Since(start)))
	return nil
}
