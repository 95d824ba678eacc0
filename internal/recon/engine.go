// Package recon wires normalize -> parse -> diff -> apply into one
// reconciliation run per uploaded pharmacy catalog file.
package recon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/catalog"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/ingest"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/orders"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/pharmacy"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/shared"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/textenc"
)

const (
	// AuditAction identifies audit log entries emitted by the engine.
	AuditAction = "catalog_reconcile"
	// AuditEntity describes the audit entity for reconciliation runs.
	AuditEntity = "pharmacies"
)

// RepositoryProvider describes the persistence operations the engine needs.
type RepositoryProvider interface {
	FingerprintMap(ctx context.Context, pharmacyID int64) (map[string]catalog.ExistingEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error
	RecordUpload(ctx context.Context, s catalog.UploadSummary) error
}

// PharmacyResolver maps upload credentials to the owning pharmacy.
type PharmacyResolver interface {
	Resolve(ctx context.Context, chain, number string) (pharmacy.Pharmacy, error)
}

// Locker serializes runs per pharmacy.
type Locker interface {
	Acquire(ctx context.Context, pharmacyID int64) (func(context.Context) error, error)
}

// AuditRecorder captures audit events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RunInput is one reconciliation request: who uploaded, and the raw file.
type RunInput struct {
	Chain          string
	PharmacyNumber string
	Payload        []byte
}

// Result summarises one completed run.
type Result struct {
	PharmacyID      int64             `json:"pharmacy_id"`
	Added           int               `json:"added"`
	Updated         int               `json:"updated"`
	Removed         int               `json:"removed"`
	CancelledOrders int               `json:"cancelled_orders"`
	TotalRows       int               `json:"total_rows_parsed"`
	Stats           ingest.ParseStats `json:"stats"`
	Duration        time.Duration     `json:"duration_ns"`
}

// Engine executes reconciliation runs.
type Engine struct {
	repo       RepositoryProvider
	pharmacies PharmacyResolver
	locker     Locker
	audit      AuditRecorder
	parser     *ingest.Parser
	logger     *slog.Logger
	runBudget  time.Duration
	now        func() time.Time
}

// EngineConfig configures optional engine behaviour.
type EngineConfig struct {
	// RunBudget bounds one run end to end; an expired budget rolls the
	// apply transaction back.
	RunBudget time.Duration
}

// NewEngine wires required dependencies for the reconciliation engine.
func NewEngine(repo RepositoryProvider, pharmacies PharmacyResolver, locker Locker, audit AuditRecorder, logger *slog.Logger, cfg EngineConfig) *Engine {
	budget := cfg.RunBudget
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	return &Engine{
		repo:       repo,
		pharmacies: pharmacies,
		locker:     locker,
		audit:      audit,
		parser:     ingest.NewParser(logger),
		logger:     logger,
		runBudget:  budget,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Reconcile runs the full pipeline for one uploaded file. Parse defects
// degrade locally; an unknown chain or any storage failure aborts the run
// with no partial catalog state. Runs are re-entrant, so the caller may
// blindly retry a failed run.
func (e *Engine) Reconcile(ctx context.Context, input RunInput) (Result, error) {
	if e == nil || e.repo == nil {
		return Result{}, fmt.Errorf("recon engine not initialised")
	}
	startedAt := e.now()

	ph, err := e.pharmacies.Resolve(ctx, input.Chain, input.PharmacyNumber)
	if err != nil {
		return Result{}, err
	}

	if e.locker != nil {
		release, err := e.locker.Acquire(ctx, ph.ID)
		if err != nil {
			return Result{}, err
		}
		defer func() {
			if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
				e.log().Warn("release pharmacy lock", slog.Int64("pharmacy_id", ph.ID), slog.Any("error", releaseErr))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, e.runBudget)
	defer cancel()

	// Parsing and diffing happen before any transaction opens; the write
	// transaction spans only the five apply steps. The parse and the
	// fingerprint-map read are independent, so they overlap.
	var (
		parsed   ingest.ParseResult
		existing map[string]catalog.ExistingEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		parsed = e.parser.Parse(textenc.Normalize(input.Payload), ph.ID)
		return nil
	})
	g.Go(func() error {
		var err error
		existing, err = e.repo.FingerprintMap(gctx, ph.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		e.recordFailure(ctx, ph.ID, startedAt, err)
		return Result{}, err
	}
	diff := catalog.Diff(parsed.Fingerprints, existing)

	result := Result{PharmacyID: ph.ID, Stats: parsed.Stats, TotalRows: parsed.Stats.Parsed}
	if err := e.apply(ctx, ph.ID, diff, &result); err != nil {
		e.recordFailure(ctx, ph.ID, startedAt, err)
		return Result{}, err
	}
	result.Duration = e.now().Sub(startedAt)

	e.recordSuccess(ctx, ph, startedAt, result)
	e.log().Info("reconciliation run completed",
		slog.Int64("pharmacy_id", ph.ID),
		slog.Int("total_rows", result.TotalRows),
		slog.Int("added", result.Added),
		slog.Int("updated", result.Updated),
		slog.Int("removed", result.Removed),
		slog.Int("cancelled_orders", result.CancelledOrders),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// apply executes the diff as one atomic unit of work. Step order matters:
// orders must be snapshotted and unlinked before their product rows are
// flagged removed, or the snapshot source is gone.
func (e *Engine) apply(ctx context.Context, pharmacyID int64, diff catalog.DiffResult, result *Result) error {
	now := e.now()
	return e.repo.WithTx(ctx, func(ctx context.Context, tx catalog.TxRepository) error {
		detached, err := tx.SnapshotAndDetachOrders(ctx, diff.ToRemove)
		if err != nil {
			return err
		}

		var activeIDs []int64
		for _, d := range detached {
			if isActiveStatus(d.Status) {
				activeIDs = append(activeIDs, d.ID)
			}
		}
		cancelled, err := tx.CancelOrders(ctx, activeIDs, orders.CancelReasonProductRemoved, now)
		if err != nil {
			return err
		}

		if err := tx.SoftDeleteProducts(ctx, diff.ToRemove, now); err != nil {
			return err
		}
		if err := tx.UpdateProducts(ctx, diff.ToUpdate); err != nil {
			return err
		}
		if err := tx.InsertProducts(ctx, pharmacyID, diff.ToAdd); err != nil {
			return err
		}

		result.Added = len(diff.ToAdd)
		result.Updated = len(diff.ToUpdate)
		result.Removed = len(diff.ToRemove)
		result.CancelledOrders = cancelled
		return nil
	})
}

func (e *Engine) recordSuccess(ctx context.Context, ph pharmacy.Pharmacy, startedAt time.Time, result Result) {
	summary := catalog.UploadSummary{
		PharmacyID:      ph.ID,
		Status:          catalog.UploadStatusCompleted,
		Added:           result.Added,
		Updated:         result.Updated,
		Removed:         result.Removed,
		CancelledOrders: result.CancelledOrders,
		TotalRows:       result.TotalRows,
		StartedAt:       startedAt,
		Duration:        result.Duration,
	}
	if err := e.repo.RecordUpload(ctx, summary); err != nil {
		e.log().Warn("record upload summary", slog.Any("error", err))
	}
	if e.audit == nil {
		return
	}
	_ = e.audit.Record(ctx, shared.AuditLog{
		Action:   AuditAction,
		Entity:   AuditEntity,
		EntityID: fmt.Sprintf("%d", ph.ID),
		Meta: map[string]any{
			"pharmacy":         ph.Name,
			"number":           ph.Number,
			"added":            result.Added,
			"updated":          result.Updated,
			"removed":          result.Removed,
			"cancelled_orders": result.CancelledOrders,
			"total_rows":       result.TotalRows,
			"malformed":        result.Stats.Malformed,
			"recovered_prices": result.Stats.RecoveredPrices,
		},
		At: e.now(),
	})
}

func (e *Engine) recordFailure(ctx context.Context, pharmacyID int64, startedAt time.Time, runErr error) {
	summary := catalog.UploadSummary{
		PharmacyID: pharmacyID,
		Status:     catalog.UploadStatusFailed,
		Error:      runErr.Error(),
		StartedAt:  startedAt,
		Duration:   e.now().Sub(startedAt),
	}
	if err := e.repo.RecordUpload(context.WithoutCancel(ctx), summary); err != nil {
		e.log().Warn("record failed upload summary", slog.Any("error", err))
	}
}

func (e *Engine) log() *slog.Logger {
	if e != nil && e.logger != nil {
		return e.logger.With(slog.String("component", "recon_engine"))
	}
	return slog.Default().With(slog.String("component", "recon_engine"))
}

func isActiveStatus(status string) bool {
	for _, s := range orders.ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}
