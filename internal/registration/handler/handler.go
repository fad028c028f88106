package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"feria/internal/registration/models"
	"feria/internal/registration/service"
	dErrors "feria/pkg/domain-errors"
	"feria/pkg/platform/httputil"
	"feria/pkg/requestcontext"
)

// Service defines the registration operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Registration, error)
	Get(ctx context.Context, id int64) (*models.Registration, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Registration, error)
	UpdateState(ctx context.Context, id int64, target string) (*models.Registration, error)
	Stats(ctx context.Context) (*models.Summary, error)
}

// Handler serves the /registros endpoints.
type Handler struct {
	logger      *slog.Logger
	service     Service
	maxFileSize int64
}

// New creates a registration Handler. maxFileSize bounds the certificate upload.
func New(svc Service, logger *slog.Logger, maxFileSize int64) *Handler {
	return &Handler{
		logger:      logger,
		service:     svc,
		maxFileSize: maxFileSize,
	}
}

// Register mounts the registration routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/registros", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/estadisticas/resumen", h.handleStats)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}/estado", h.handleUpdateState)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, err := h.decodeCreate(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid registration request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	reg, err := h.service.Create(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegistrationResponse(reg))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := decodeListFilter(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid list request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	regs, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list registrations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegistrationResponses(regs))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	reg, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to get registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegistrationResponse(reg))
}

func (h *Handler) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := decodeTargetState(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid state update request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	if _, err := h.service.UpdateState(ctx, id, target); err != nil {
		h.writeServiceError(ctx, w, "failed to update registration state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "state updated successfully"})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.service.Stats(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to compute statistics", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// writeServiceError logs client mistakes at warn and everything else at error.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeStorage, dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	default:
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, dErrors.NewField(dErrors.CodeValidation, "id", "id must be an integer")
	}
	return id, nil
}
