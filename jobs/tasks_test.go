package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/catalog"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/pharmacy"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/recon"
)

type nopProvider struct{}

func (nopProvider) FingerprintMap(ctx context.Context, pharmacyID int64) (map[string]catalog.ExistingEntry, error) {
	return map[string]catalog.ExistingEntry{}, nil
}

func (nopProvider) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	return fn(ctx, nopTx{})
}

func (nopProvider) RecordUpload(ctx context.Context, s catalog.UploadSummary) error {
	return nil
}

type nopTx struct{}

func (nopTx) SnapshotAndDetachOrders(ctx context.Context, productUUIDs []uuid.UUID) ([]catalog.DetachedOrder, error) {
	return nil, nil
}

func (nopTx) CancelOrders(ctx context.Context, orderIDs []int64, reason string, at time.Time) (int, error) {
	return 0, nil
}

func (nopTx) SoftDeleteProducts(ctx context.Context, productUUIDs []uuid.UUID, at time.Time) error {
	return nil
}

func (nopTx) UpdateProducts(ctx context.Context, entries []catalog.UpdateEntry) error {
	return nil
}

func (nopTx) InsertProducts(ctx context.Context, pharmacyID int64, records []catalog.ProductRecord) error {
	return nil
}

type fakePharmacyRepo struct{}

func (fakePharmacyRepo) FindOrCreate(ctx context.Context, name, number string) (pharmacy.Pharmacy, error) {
	return pharmacy.Pharmacy{ID: 1, Name: name, Number: number}, nil
}

func newTaskEngine() *recon.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := pharmacy.NewService(fakePharmacyRepo{})
	return recon.NewEngine(nopProvider{}, resolver, nil, nil, logger, recon.EngineConfig{})
}

func TestCatalogReconcileTaskPayload(t *testing.T) {
	file := []byte("Paracetamol;Acme;Poland;SN001;5.50;100;550.00;31.12.2025;;;;;;;")
	task, err := NewCatalogReconcileTask("novamedika", "12", file)
	require.NoError(t, err)
	require.Equal(t, TaskTypeCatalogReconcile, task.Type())

	var payload CatalogReconcilePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "novamedika", payload.Chain)
	require.Equal(t, "12", payload.PharmacyNumber)

	decoded, err := base64.StdEncoding.DecodeString(payload.FileB64)
	require.NoError(t, err)
	require.Equal(t, file, decoded)
}

func TestCatalogReconcileHandlerCompletesRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewCatalogReconcileHandler(newTaskEngine(), nil, logger)

	task, err := NewCatalogReconcileTask("novamedika", "12",
		[]byte("Paracetamol;Acme;Poland;SN001;5.50;100;550.00;31.12.2025;;;;;;;"))
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
}

func TestCatalogReconcileHandlerSkipsRetryOnBadPayload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewCatalogReconcileHandler(newTaskEngine(), nil, logger)

	err := handler(context.Background(), asynq.NewTask(TaskTypeCatalogReconcile, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCatalogReconcileHandlerSkipsRetryOnUnknownChain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewCatalogReconcileHandler(newTaskEngine(), nil, logger)

	task, err := NewCatalogReconcileTask("не та сеть", "1", []byte("x;;;;;;;31.12.2025;;;;;;;"))
	require.NoError(t, err)

	runErr := handler(context.Background(), task)
	require.ErrorIs(t, runErr, asynq.SkipRetry)
	require.ErrorIs(t, runErr, pharmacy.ErrUnknownChain)
}
