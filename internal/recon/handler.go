package recon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/catalog"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/pharmacy"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/platform/httpx"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/shared"
)

// maxUploadBytes bounds one catalog file; full exports run to a few MB.
const maxUploadBytes = 64 << 20

// UploadQueue hands a file off to the background worker.
type UploadQueue interface {
	Enqueue(ctx context.Context, chain, number string, file []byte) (string, error)
}

// UploadLister reads back persisted run summaries.
type UploadLister interface {
	ListUploads(ctx context.Context, pharmacyID int64, limit int) ([]catalog.UploadSummary, error)
}

// Handler wires the ingestion trigger endpoints. It stays thin: validate,
// hand off to the queue (or run inline in sync mode), report.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	queue     UploadQueue
	uploads   UploadLister
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, queue UploadQueue, uploads UploadLister) *Handler {
	return &Handler{
		logger:    logger,
		engine:    engine,
		queue:     queue,
		uploads:   uploads,
		validator: validator.New(),
	}
}

// MountRoutes registers catalog ingestion routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/uploads", h.handleUpload)
	r.Get("/uploads", h.handleListUploads)
}

type uploadForm struct {
	Chain  string `validate:"required"`
	Number string `validate:"required"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	form := uploadForm{
		Chain:  r.URL.Query().Get("chain"),
		Number: r.URL.Query().Get("number"),
	}
	file, err := readUploadBody(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if form.Chain == "" {
		form.Chain = r.FormValue("chain")
	}
	if form.Number == "" {
		form.Number = r.FormValue("number")
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "chain and number are required")
		return
	}
	if len(file) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "empty file payload")
		return
	}

	if r.URL.Query().Get("sync") == "1" {
		result, err := h.engine.Reconcile(r.Context(), RunInput{
			Chain:          form.Chain,
			PharmacyNumber: form.Number,
			Payload:        file,
		})
		if err != nil {
			h.writeRunError(w, form, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
		return
	}

	taskID, err := h.queue.Enqueue(r.Context(), form.Chain, form.Number, file)
	if err != nil {
		h.logger.Error("enqueue reconciliation", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to enqueue run")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (h *Handler) handleListUploads(w http.ResponseWriter, r *http.Request) {
	pharmacyID, err := strconv.ParseInt(r.URL.Query().Get("pharmacy_id"), 10, 64)
	if err != nil || pharmacyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "pharmacy_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	uploads, err := h.uploads.ListUploads(r.Context(), pharmacyID, limit)
	if err != nil {
		h.logger.Error("list uploads", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to list uploads")
		return
	}
	httpx.JSON(w, http.StatusOK, uploads)
}

// writeRunError maps engine failures to responses without leaking
// internals: config errors are the client's fault, the rest are not.
func (h *Handler) writeRunError(w http.ResponseWriter, form uploadForm, err error) {
	switch {
	case errors.Is(err, pharmacy.ErrUnknownChain):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown pharmacy chain")
	case errors.Is(err, shared.ErrRunInProgress):
		httpx.Problem(w, http.StatusConflict, "Run In Progress", "a run for this pharmacy is already in progress")
	default:
		h.logger.Error("reconciliation run failed",
			slog.String("chain", form.Chain),
			slog.String("number", form.Number),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "reconciliation run failed")
	}
}

// readUploadBody accepts either a multipart "file" part or the raw body.
func readUploadBody(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err == nil {
		part, _, err := r.FormFile("file")
		if err == nil {
			defer part.Close()
			return io.ReadAll(part)
		}
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.New("failed to read upload body")
	}
	return data, nil
}
