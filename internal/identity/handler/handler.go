package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"contactlink/internal/identity/models"
	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/platform/httputil"
	"contactlink/pkg/requestcontext"
)

// Service defines the interface for identity reconciliation.
type Service interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentityView, error)
}

// Handler wires the identify endpoint to the identity service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an identity handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts identity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identify", h.HandleIdentify)
}

// HandleIdentify handles POST /identify requests.
func (h *Handler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[IdentifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.service.Identify(ctx, req.Parsed())
	if err != nil {
		h.logFailure(ctx, requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identity resolved",
		"request_id", requestID,
		"primary_contact_id", view.PrimaryContactID,
		"secondary_count", len(view.SecondaryContactIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromView(view))
}

func (h *Handler) logFailure(ctx context.Context, requestID string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		h.logger.WarnContext(ctx, "identify rejected",
			"request_id", requestID,
			"error", err,
		)
		return
	}
	h.logger.ErrorContext(ctx, "identify failed",
		"request_id", requestID,
		"error", err,
	)
}
