package catalog

import (
	"context"
	"fmt"
	"time"
)

// UploadSummary is the persisted outcome of one reconciliation run,
// kept per upload so operators can see what each file did.
type UploadSummary struct {
	ID              int64         `json:"id"`
	PharmacyID      int64         `json:"pharmacy_id"`
	Status          string        `json:"status"`
	Added           int           `json:"added"`
	Updated         int           `json:"updated"`
	Removed         int           `json:"removed"`
	CancelledOrders int           `json:"cancelled_orders"`
	TotalRows       int           `json:"total_rows"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
}

// Upload run statuses.
const (
	UploadStatusCompleted = "completed"
	UploadStatusFailed    = "failed"
)

// RecordUpload persists the run summary. Called outside the apply
// transaction so failed runs are recorded too.
func (r *Repository) RecordUpload(ctx context.Context, s UploadSummary) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("catalog repo not initialised")
	}
	const query = `
INSERT INTO catalog_uploads
	(pharmacy_id, status, added, updated, removed, cancelled_orders, total_rows, error, started_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		s.PharmacyID, s.Status, s.Added, s.Updated, s.Removed,
		s.CancelledOrders, s.TotalRows, s.Error, s.StartedAt,
		s.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("catalog: record upload: %w", err)
	}
	return nil
}

// ListUploads returns recent upload summaries for a pharmacy, newest first.
func (r *Repository) ListUploads(ctx context.Context, pharmacyID int64, limit int) ([]UploadSummary, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("catalog repo not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, pharmacy_id, status, added, updated, removed, cancelled_orders, total_rows, error, started_at, duration_ms
FROM catalog_uploads
WHERE pharmacy_id = $1
ORDER BY started_at DESC
LIMIT $2`
	rows, err := r.pool.Query(ctx, query, pharmacyID, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list uploads: %w", err)
	}
	defer rows.Close()
	var uploads []UploadSummary
	for rows.Next() {
		var s UploadSummary
		var durationMS int64
		if err := rows.Scan(&s.ID, &s.PharmacyID, &s.Status, &s.Added, &s.Updated,
			&s.Removed, &s.CancelledOrders, &s.TotalRows, &s.Error, &s.StartedAt, &durationMS); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		uploads = append(uploads, s)
	}
	return uploads, rows.Err()
}
