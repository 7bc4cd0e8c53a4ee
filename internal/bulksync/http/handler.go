package bulksynchttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/partsline/catalog/internal/bulksync"
	"github.com/partsline/catalog/internal/observability"
	"github.com/partsline/catalog/internal/platform/httpx"
	"github.com/partsline/catalog/jobs"
)

// Enqueuer hands a job over to the worker queue.
type Enqueuer interface {
	EnqueueBulkSync(ctx context.Context, payload jobs.BulkSyncPayload) (*asynq.TaskInfo, error)
}

// Config wires the handler.
type Config struct {
	Service   *bulksync.Service
	Queue     Enqueuer
	UploadDir string
	// MaxUploadBytes caps the request body; zero means 50 MB.
	MaxUploadBytes int64
	Metrics        *observability.Metrics
	Logger         *slog.Logger
}

// Handler serves job submission and polling.
type Handler struct {
	service   *bulksync.Service
	queue     Enqueuer
	uploadDir string
	maxBytes  int64
	metrics   *observability.Metrics
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs a Handler value.
func NewHandler(cfg Config) *Handler {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		service:   cfg.Service,
		queue:     cfg.Queue,
		uploadDir: cfg.UploadDir,
		maxBytes:  maxBytes,
		metrics:   cfg.Metrics,
		logger:    logger,
		validator: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bulk-sync", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/template", h.template)
		r.Get("/{id}", h.poll)
	})
}

type submitForm struct {
	Mode string `validate:"omitempty,oneof=upsert create update replace delete"`
}

type submitResponse struct {
	JobID  int64           `json:"jobId"`
	Status bulksync.Status `json:"status"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, fmt.Errorf("%w: workbook exceeds %d MB", httpx.ErrTooLarge, h.maxBytes>>20))
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "expected a multipart form with a file field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	form := submitForm{Mode: strings.ToLower(strings.TrimSpace(r.FormValue("mode")))}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
			fmt.Sprintf("mode must be one of upsert, create, update, replace, delete; got %q", form.Mode))
		return
	}
	mode, err := bulksync.ParseMode(form.Mode)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file is required")
		return
	}
	defer file.Close()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := workbookTypes[ext]; !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "only Excel workbooks (.xlsx, .xlsm) are accepted")
		return
	}

	path, size, err := h.store(file, ext)
	if err != nil {
		h.logger.Error("store upload", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.metrics.ObserveUpload(size)

	job, err := h.service.Create(r.Context(), bulksync.CreateRequest{
		Mode:     mode,
		Filename: filepath.Base(header.Filename),
		FilePath: path,
		UserID:   userID(r),
	})
	if err != nil {
		h.discard(path)
		h.logger.Error("create bulk sync job", slog.Any("error", err))
		respondError(w, err)
		return
	}

	if _, err := h.queue.EnqueueBulkSync(r.Context(), jobs.BulkSyncPayload{JobID: job.ID, FilePath: path}); err != nil {
		h.logger.Error("enqueue bulk sync", slog.Int64("job_id", job.ID), slog.Any("error", err))
		if markErr := h.service.MarkFailed(r.Context(), job.ID, "enqueue failed: "+err.Error()); markErr != nil {
			h.logger.Error("mark job failed", slog.Int64("job_id", job.ID), slog.Any("error", markErr))
		}
		h.discard(path)
		httpx.RespondError(w, fmt.Errorf("%w: job could not be scheduled, retry later", httpx.ErrUnavailable))
		return
	}

	h.logger.Info("bulk sync accepted",
		slog.Int64("job_id", job.ID),
		slog.String("mode", string(mode)),
		slog.String("filename", job.Filename),
		slog.Int64("bytes", size))
	httpx.JSON(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: bulksync.StatusPending})
}

func (h *Handler) poll(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "job id must be a positive integer")
		return
	}
	job, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, bulksync.ErrJobNotFound) {
			h.logger.Error("load bulk sync job", slog.Int64("job_id", id), slog.Any("error", err))
		}
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) template(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := bulksync.WriteTemplate(&buf); err != nil {
		h.logger.Error("build template", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType(".xlsx"))
	w.Header().Set("Content-Disposition", `attachment; filename="plantilla-catalogo.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// store copies the upload under a random name so client file names never touch the filesystem.
func (h *Handler) store(src io.Reader, ext string) (string, int64, error) {
	dir := h.uploadDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "bulk-sync")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	path := filepath.Join(dir, uuid.NewString()+ext)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, size, nil
}

func (h *Handler) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.Warn("remove upload", slog.String("file", path), slog.Any("error", err))
	}
}

func userID(r *http.Request) *int64 {
	v := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if v == "" {
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bulksync.ErrJobNotFound):
		err = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case errors.Is(err, bulksync.ErrInvalidMode), errors.Is(err, bulksync.ErrFileRequired):
		err = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	httpx.RespondError(w, err)
}
