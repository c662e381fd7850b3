package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookline-ai/bookline/internal/availability"
	"github.com/bookline-ai/bookline/internal/bookings"
	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/dialogue"
	"github.com/bookline-ai/bookline/internal/engine"
	"github.com/bookline-ai/bookline/pkg/logging"
)

// Handler exposes the orchestration engine over a thin JSON surface. The
// inbound channel is assumed to deliver each message exactly once.
type Handler struct {
	engine *engine.Engine
	logger *logging.Logger
}

// NewHandler creates the API handler.
func NewHandler(eng *engine.Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: eng, logger: logger}
}

// HealthCheck handles GET /healthz requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// MessageRequest is the payload for POST /v1/messages.
type MessageRequest struct {
	Channel       string `json:"channel"`
	ChannelUserID string `json:"channelUserId"`
	BusinessID    string `json:"businessId"`
	Content       string `json:"content"`
}

// MessageResponse reports the conversation's focused goal after the
// message was applied.
type MessageResponse struct {
	FocusedGoal  *dialogue.ActiveGoal `json:"focusedGoal,omitempty"`
	GoalComplete bool                 `json:"goalComplete"`
	TurnCount    int                  `json:"turnCount"`
}

// ProcessMessage handles POST /v1/messages requests.
func (h *Handler) ProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Channel == "" || req.ChannelUserID == "" || req.BusinessID == "" {
		http.Error(w, "channel, channelUserId and businessId are required", http.StatusBadRequest)
		return
	}

	key := conversation.Key{
		Channel:       req.Channel,
		ChannelUserID: req.ChannelUserID,
		BusinessID:    req.BusinessID,
	}
	res, err := h.engine.ProcessMessage(r.Context(), req.Content, key)
	if err != nil {
		h.logger.Error("failed to process message", "conversation", key.String(), "error", err)
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	resp := MessageResponse{
		FocusedGoal: res.FocusedGoal,
		TurnCount:   len(res.Context.Turns),
	}
	if res.FocusedGoal != nil {
		resp.GoalComplete = res.FocusedGoal.Complete()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetAvailability handles GET /v1/availability requests.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	providerID := r.URL.Query().Get("providerId")
	date := r.URL.Query().Get("date")
	businessID := r.URL.Query().Get("businessId")

	windows, err := h.engine.GetAvailability(r.Context(), providerID, date, businessID)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"providerId": providerID,
		"date":       date,
		"windows":    windows,
	})
}

// BookingRequest is the payload for POST /v1/bookings.
type BookingRequest struct {
	ProviderID string `json:"providerId"`
	BusinessID string `json:"businessId"`
	UserID     string `json:"userId"`
	QuoteID    string `json:"quoteId"`
	DateTime   string `json:"dateTime"`
}

// BookingResponse wraps a committed booking.
type BookingResponse struct {
	Booking bookings.Booking `json:"booking"`
	// ReconciliationRequired is set when the booking stands but its day's
	// availability windows could not be refreshed.
	ReconciliationRequired bool `json:"reconciliationRequired,omitempty"`
}

// CommitBooking handles POST /v1/bookings requests.
func (h *Handler) CommitBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b, err := h.engine.CommitBooking(r.Context(), availability.Request{
		ProviderID: req.ProviderID,
		BusinessID: req.BusinessID,
		UserID:     req.UserID,
		QuoteID:    req.QuoteID,
		DateTime:   req.DateTime,
	})

	var rr *availability.ReconciliationRequired
	if errors.As(err, &rr) {
		h.logger.Warn("booking committed, windows need reconciliation",
			"booking_id", b.ID,
			"provider_id", rr.ProviderID,
			"date", rr.Date,
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(BookingResponse{Booking: b, ReconciliationRequired: true})
		return
	}
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(BookingResponse{Booking: b})
}

// RescheduleRequest is the payload for PATCH /v1/bookings/{id}.
type RescheduleRequest struct {
	DateTime string `json:"dateTime"`
}

// RescheduleBooking handles PATCH /v1/bookings/{id} requests.
func (h *Handler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b, err := h.engine.RescheduleBooking(r.Context(), id, req.DateTime)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BookingResponse{Booking: b})
}

// CancelBooking handles DELETE /v1/bookings/{id} requests.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.engine.CancelBooking(r.Context(), id); err != nil {
		h.writeBookingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeBookingError(w http.ResponseWriter, err error) {
	var (
		ve *availability.ValidationError
		ce *availability.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	case errors.As(err, &ce):
		http.Error(w, ce.Error(), http.StatusConflict)
	case errors.Is(err, bookings.ErrNotFound):
		http.Error(w, "booking not found", http.StatusNotFound)
	default:
		h.logger.Error("booking operation failed", "error", err)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	}
}
