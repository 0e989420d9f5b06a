package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/api/shared"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/ingest"
	"github.com/phrazzld/shelf-api/internal/service/batch"
)

// MaxUploadBytes bounds a bulk-upload request body.
const MaxUploadBytes = 10 << 20

// uploadFormField is the multipart field carrying the upload file.
const uploadFormField = "file"

// BatchTracker is the bulk-upload behavior the batch handler needs.
type BatchTracker interface {
	SubmitBatch(ctx context.Context, ownerID uuid.UUID, rows []domain.BookRow) (*batch.SubmitResult, error)
	GetTask(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.UploadTask, error)
	GetBatch(ctx context.Context, ownerID, batchID uuid.UUID) (*domain.BatchSummary, error)
}

// ErrUploadTooLarge is returned when a bulk-upload body exceeds the size limit.
var ErrUploadTooLarge = errors.New("upload exceeds the size limit")

// BatchHandler handles bulk-upload submission and status queries.
type BatchHandler struct {
	tracker  BatchTracker
	maxRows  int
	maxBytes int64
}

// NewBatchHandler creates a BatchHandler. maxRows bounds decoded files; zero
// means unbounded.
func NewBatchHandler(tracker BatchTracker, maxRows int) *BatchHandler {
	return &BatchHandler{tracker: tracker, maxRows: maxRows, maxBytes: MaxUploadBytes}
}

// BulkUpload handles POST /api/books/bulk-upload. It accepts either a
// multipart file (CSV or XLSX) or a JSON body of rows, and responds 202 once
// the tasks are stored and queued.
func (h *BatchHandler) BulkUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := getIdentity(w, r)
	if !ok {
		return
	}

	rows, err := h.readRows(w, r)
	if err != nil {
		if errors.Is(err, errUnsupportedMediaType) {
			shared.RespondWithError(w, r, http.StatusUnsupportedMediaType,
				"Send a multipart file or a JSON body of rows")
			return
		}
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.tracker.SubmitBatch(r.Context(), id.UserID(), rows)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, result)
}

// TaskStatus handles GET /api/books/task-status?task_id=.
func (h *BatchHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := getIdentity(w, r)
	if !ok {
		return
	}

	taskID, err := getQueryUUID(r, "task_id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tracker.GetTask(r.Context(), id.UserID(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// BatchStatus handles GET /api/books/batch-status?batch_id=.
func (h *BatchHandler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := getIdentity(w, r)
	if !ok {
		return
	}

	batchID, err := getQueryUUID(r, "batch_id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	summary, err := h.tracker.GetBatch(r.Context(), id.UserID(), batchID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}

var errUnsupportedMediaType = errors.New("unsupported media type")

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (h *BatchHandler) readRows(w http.ResponseWriter, r *http.Request) ([]domain.BookRow, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, errUnsupportedMediaType
	}

	switch mediaType {
	case "application/json":
		var req BulkUploadRequest
		if err := shared.DecodeJSON(w, r, &req); err != nil {
			if isTooLarge(err) {
				return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, shared.MaxJSONBodyBytes)
			}
			return nil, domain.NewValidationError("body", "is not valid JSON", nil)
		}
		return req.Rows, nil

	case "multipart/form-data":
		if r.ContentLength > h.maxBytes {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, h.maxBytes)
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
		file, header, err := r.FormFile(uploadFormField)
		if err != nil {
			if isTooLarge(err) {
				return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, h.maxBytes)
			}
			return nil, domain.NewValidationError(uploadFormField, "is required", nil)
		}
		defer func() { _ = file.Close() }()

		reader := bufio.NewReader(file)
		head, _ := reader.Peek(4)
		format, err := ingest.DetectFormat(header.Filename, head)
		if err != nil {
			return nil, err
		}
		return ingest.Decode(reader, format, h.maxRows)
	}
	return nil, errUnsupportedMediaType
}
