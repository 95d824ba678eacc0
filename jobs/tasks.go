package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/pharmacy"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/recon"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeCatalogReconcile is the task type for one reconciliation run.
	TaskTypeCatalogReconcile = "catalog:reconcile"
)

// CatalogReconcilePayload carries one uploaded file to the worker. The
// payload is base64 so arbitrary legacy-encoded bytes survive JSON.
type CatalogReconcilePayload struct {
	Chain          string `json:"chain"`
	PharmacyNumber string `json:"pharmacy_number"`
	FileB64        string `json:"file_b64"`
}

// NewCatalogReconcileTask constructs an Asynq task for one upload.
func NewCatalogReconcileTask(chain, number string, file []byte) (*asynq.Task, error) {
	data, err := json.Marshal(CatalogReconcilePayload{
		Chain:          chain,
		PharmacyNumber: number,
		FileB64:        base64.StdEncoding.EncodeToString(file),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCatalogReconcile, data), nil
}

// NewCatalogReconcileHandler processes TaskTypeCatalogReconcile tasks by
// running the reconciliation engine. Transactional failures return the
// error so asynq retries the run; reconciliation is re-entrant, so blind
// retry is safe. Input defects that retrying cannot fix skip the retry.
func NewCatalogReconcileHandler(engine *recon.Engine, metrics *Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CatalogReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		file, err := base64.StdEncoding.DecodeString(payload.FileB64)
		if err != nil {
			return asynq.SkipRetry
		}

		tracker := metrics.Track(payload.Chain)
		result, err := engine.Reconcile(ctx, recon.RunInput{
			Chain:          payload.Chain,
			PharmacyNumber: payload.PharmacyNumber,
			Payload:        file,
		})
		tracker.Done(err)
		if err != nil {
			logger.Error("reconciliation task failed",
				slog.String("chain", payload.Chain),
				slog.String("number", payload.PharmacyNumber),
				slog.Any("error", err))
			if errors.Is(err, pharmacy.ErrUnknownChain) {
				return errors.Join(err, asynq.SkipRetry)
			}
			if errors.Is(err, shared.ErrRunInProgress) {
				// Another run holds the pharmacy; retry later.
				return err
			}
			return err
		}
		logger.Info("reconciliation task completed",
			slog.String("chain", payload.Chain),
			slog.String("number", payload.PharmacyNumber),
			slog.Int64("pharmacy_id", result.PharmacyID),
			slog.Int("added", result.Added),
			slog.Int("updated", result.Updated),
			slog.Int("removed", result.Removed),
			slog.Int("cancelled_orders", result.CancelledOrders))
		return nil
	}
}
