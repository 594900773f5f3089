package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// MetricsHandler exposes review-queue depth for the dashboard.
type MetricsHandler struct {
	db bun.IDB
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(db bun.IDB) *MetricsHandler {
	return &MetricsHandler{
		db: db,
	}
}

// QueueMetrics represents the dedup queue state for one entity type.
type QueueMetrics struct {
	EntityType    string           `json:"entity_type"`
	Pending       int64            `json:"pending"`
	Merged        int64            `json:"merged"`
	KeptSeparate  int64            `json:"kept_separate"`
	Dismissed     int64            `json:"dismissed"`
	PendingByTier map[string]int64 `json:"pending_by_tier"`
	ResolvedLast7 int64            `json:"resolved_last_7_days"`
}

// AllQueueMetrics contains metrics for all dedup queues.
type AllQueueMetrics struct {
	Queues    []QueueMetrics `json:"queues"`
	Timestamp string         `json:"timestamp"`
}

// DedupMetrics returns review-queue metrics for both entity types.
func (h *MetricsHandler) DedupMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	var all []QueueMetrics
	for _, entityType := range []string{"person", "place"} {
		metrics, err := h.getQueueMetrics(ctx, entityType)
		if err != nil {
			// Partial metrics beat a 500 on the dashboard.
			continue
		}
		all = append(all, *metrics)
	}

	return c.JSON(http.StatusOK, AllQueueMetrics{
		Queues:    all,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *MetricsHandler) getQueueMetrics(ctx context.Context, entityType string) (*QueueMetrics, error) {
	var row struct {
		Pending       int64 `bun:"pending"`
		Merged        int64 `bun:"merged"`
		KeptSeparate  int64 `bun:"kept_separate"`
		Dismissed     int64 `bun:"dismissed"`
		ResolvedLast7 int64 `bun:"resolved_last_7"`
	}

	err := h.db.NewSelect().
		TableExpr("trapper.dedup_candidates").
		ColumnExpr("COUNT(*) FILTER (WHERE status = 'pending') AS pending").
		ColumnExpr("COUNT(*) FILTER (WHERE status = 'merged') AS merged").
		ColumnExpr("COUNT(*) FILTER (WHERE status = 'kept_separate') AS kept_separate").
		ColumnExpr("COUNT(*) FILTER (WHERE status = 'dismissed') AS dismissed").
		ColumnExpr("COUNT(*) FILTER (WHERE resolved_at > NOW() - INTERVAL '7 days') AS resolved_last_7").
		Where("entity_type = ?", entityType).
		Scan(ctx, &row)
	if err != nil {
		return nil, err
	}

	var tierRows []struct {
		MatchTier int   `bun:"match_tier"`
		Count     int64 `bun:"count"`
	}
	err = h.db.NewSelect().
		TableExpr("trapper.dedup_candidates").
		ColumnExpr("match_tier").
		ColumnExpr("COUNT(*) AS count").
		Where("entity_type = ?", entityType).
		Where("status = 'pending'").
		GroupExpr("match_tier").
		Scan(ctx, &tierRows)
	if err != nil {
		return nil, err
	}

	byTier := make(map[string]int64, len(tierRows))
	for _, t := range tierRows {
		byTier[tierKey(t.MatchTier)] = t.Count
	}

	return &QueueMetrics{
		EntityType:    entityType,
		Pending:       row.Pending,
		Merged:        row.Merged,
		KeptSeparate:  row.KeptSeparate,
		Dismissed:     row.Dismissed,
		PendingByTier: byTier,
		ResolvedLast7: row.ResolvedLast7,
	}, nil
}

func tierKey(tier int) string {
	switch tier {
	case 1:
		return "tier_1"
	case 2:
		return "tier_2"
	case 3:
		return "tier_3"
	default:
		return "other"
	}
}
