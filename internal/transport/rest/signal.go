package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
)

// PaymentHeader carries the payment proof of a submission.
const PaymentHeader = "X-Payment"

const maxSubmitBodyBytes = 64 << 10

type signalService interface {
	Submit(ctx context.Context, input signal.SubmitInput) (signal.SubmitResult, error)
	Get(ctx context.Context, input signal.GetInput) (domain.Signal, error)
}

type cooldownService interface {
	Status(ctx context.Context, senderKey string) (domain.CooldownStatus, error)
}

// SignalHandler serves the public signal and cooldown endpoints.
type SignalHandler struct {
	signals   signalService
	cooldowns cooldownService
	log       *slog.Logger
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(signals signalService, cooldowns cooldownService, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		signals:   signals,
		cooldowns: cooldowns,
		log:       logger.With("handler", "signal"),
	}
}

type submitRequest struct {
	SenderKey       string  `json:"senderKey"`
	RecipientHandle string  `json:"recipientHandle"`
	Message         string  `json:"message"`
	SenderContact   *string `json:"senderContact,omitempty"`
}

type submitResponse struct {
	SignalID   string `json:"signalId"`
	State      string `json:"state"`
	Dispatched bool   `json:"dispatched"`
}

type signalResponse struct {
	ID              string     `json:"id"`
	RecipientHandle string     `json:"recipientHandle"`
	State           string     `json:"state"`
	Message         string     `json:"message,omitempty"`
	SenderContact   *string    `json:"senderContact,omitempty"`
	RejectReason    *string    `json:"rejectReason,omitempty"`
	LedgerRef       *string    `json:"ledgerRef,omitempty"`
	Attempts        int        `json:"attempts"`
	CreatedAt       time.Time  `json:"createdAt"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	CommittedAt     *time.Time `json:"committedAt,omitempty"`
}

type cooldownResponse struct {
	SenderKey       string     `json:"senderKey"`
	Locked          bool       `json:"locked"`
	RecipientHandle *string    `json:"recipientHandle,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// Submit handles POST /signals.
func (h *SignalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty request body")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.signals.Submit(r.Context(), signal.SubmitInput{
		PaymentProof:    r.Header.Get(PaymentHeader),
		SenderKey:       req.SenderKey,
		RecipientHandle: req.RecipientHandle,
		Message:         req.Message,
		SenderContact:   req.SenderContact,
	})
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	w.Header().Set("Location", "/signals/"+res.SignalID.String())
	writeJSON(w, http.StatusAccepted, submitResponse{
		SignalID:   res.SignalID.String(),
		State:      res.State.String(),
		Dispatched: res.Dispatched,
	})
}

// Get handles GET /signals/{id}.
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal id")
		return
	}

	sig, err := h.signals.Get(r.Context(), signal.GetInput{ID: id})
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSignalResponse(sig))
}

// Cooldown handles GET /cooldowns/{senderKey}.
func (h *SignalHandler) Cooldown(w http.ResponseWriter, r *http.Request) {
	st, err := h.cooldowns.Status(r.Context(), chi.URLParam(r, "senderKey"))
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cooldownResponse{
		SenderKey:       st.SenderKey,
		Locked:          st.Locked,
		RecipientHandle: st.RecipientHandle,
		ExpiresAt:       st.ExpiresAt,
	})
}

// toSignalResponse expects an already redacted signal.
func toSignalResponse(sig domain.Signal) signalResponse {
	resp := signalResponse{
		ID:              sig.ID.String(),
		RecipientHandle: sig.RecipientHandle,
		State:           sig.State.String(),
		Message:         sig.Message,
		SenderContact:   sig.SenderContact,
		LedgerRef:       sig.LedgerRef,
		Attempts:        sig.Attempts,
		CreatedAt:       sig.CreatedAt,
		ResolvedAt:      sig.ResolvedAt,
		CommittedAt:     sig.CommittedAt,
	}
	if sig.RejectReason != nil {
		reason := string(*sig.RejectReason)
		resp.RejectReason = &reason
	}
	return resp
}
