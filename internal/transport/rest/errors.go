package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
}

// handleError maps domain errors to HTTP responses. Anything unrecognized is
// logged and hidden behind a 500.
func handleError(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domain.ValidationError
		paymentErr    *domain.PaymentDeniedError
		cooldownErr   *domain.CooldownError
	)

	switch {
	case errors.As(err, &validationErr):
		fields := make(map[string]string, len(validationErr.Errors))
		for _, fe := range validationErr.Errors {
			fields[fe.Field] = fe.Message
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &paymentErr):
		writeError(w, http.StatusPaymentRequired, paymentErr.Error())
	case errors.As(err, &cooldownErr):
		retry := cooldownErr.RetryAfter(time.Now())
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
		exp := cooldownErr.ExpiresAt.UTC()
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:     "sender is locked to another recipient",
			ExpiresAt: &exp,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		log.ErrorContext(r.Context(), "internal error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
