package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
	"github.com/heartmarshall/firstsignal-backend/internal/transport/middleware"
)

const (
	testAdminToken    = "admin-secret"
	testWebhookSecret = "hook-secret"
)

type routerFixture struct {
	handler   http.Handler
	signals   *signalServiceMock
	cooldowns *cooldownServiceMock
	updates   *updateHandlerMock
}

func newRouterFixture(t *testing.T, limiter *middleware.RateLimiter) routerFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := routerFixture{
		signals:   &signalServiceMock{},
		cooldowns: &cooldownServiceMock{},
		updates:   &updateHandlerMock{},
	}
	f.handler = NewRouter(RouterDeps{
		Signals:     NewSignalHandler(f.signals, f.cooldowns, log),
		Admin:       NewAdminHandler(f.signals, log),
		Health:      NewHealthHandler("test", nil),
		Webhook:     NewWebhookHandler(testWebhookSecret, f.updates, log),
		AdminToken:  testAdminToken,
		RateLimiter: limiter,
		Middlewares: []middleware.Middleware{middleware.RequestID(), middleware.Recovery(log)},
	})
	return f
}

func (f routerFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

const validSubmit = `{"senderKey":"s1","recipientHandle":"alice","message":"hello there","senderContact":"tg:@s1"}`

// ---------------------------------------------------------------------------
// POST /signals
// ---------------------------------------------------------------------------

func TestSubmit_Accepted(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil)
	id := uuid.New()
	f.signals.SubmitFunc = func(context.Context, signal.SubmitInput) (signal.SubmitResult, error) {
		return signal.SubmitResult{SignalID: id, State: domain.SignalStatePending, Dispatched: true}, nil
	}

	rec := f.do(http.MethodPost, "/signals", validSubmit, map[string]string{PaymentHeader: "proof-token"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/signals/"+id.String(), rec.Header().Get("Location"))
	assert.JSONEq(t, `{"signalId":"`+id.String()+`","state":"PENDING","dispatched":true}`, rec.Body.String())

	calls := f.signals.SubmitCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "proof-token", calls[0].PaymentProof)
	assert.Equal(t, "alice", calls[0].RecipientHandle)
	require.NotNil(t, calls[0].SenderContact)
	assert.Equal(t, "tg:@s1", *calls[0].SenderContact)
}

func TestSubmit_ErrorMapping(t *testing.T) {
	t.Parallel()

	expires := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		check      func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name: "validation",
			err: domain.NewValidationErrors([]domain.FieldError{
				{Field: "message", Message: "min 2 characters"},
				{Field: "recipient_handle", Message: "max 64 characters"},
			}),
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				body := decodeBody(t, rec)
				fields := body["fields"].(map[string]any)
				assert.Equal(t, "min 2 characters", fields["message"])
				assert.Equal(t, "max 64 characters", fields["recipient_handle"])
			},
		},
		{
			name:       "payment denied",
			err:        &domain.PaymentDeniedError{Reason: "payment proof expired"},
			wantStatus: http.StatusPaymentRequired,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Contains(t, decodeBody(t, rec)["error"], "payment proof expired")
			},
		},
		{
			name:       "cooldown",
			err:        &domain.CooldownError{SenderKey: "s1", LockedRecipient: "bob", ExpiresAt: expires},
			wantStatus: http.StatusTooManyRequests,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.NotEmpty(t, rec.Header().Get("Retry-After"))
				body := decodeBody(t, rec)
				assert.Equal(t, expires.Format(time.RFC3339), body["expiresAt"])
				assert.NotContains(t, rec.Body.String(), "bob")
			},
		},
		{
			name:       "internal",
			err:        errors.New("pool closed"),
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.NotContains(t, rec.Body.String(), "pool closed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newRouterFixture(t, nil)
			f.signals.SubmitFunc = func(context.Context, signal.SubmitInput) (signal.SubmitResult, error) {
				return signal.SubmitResult{}, tt.err
			}

			rec := f.do(http.MethodPost, "/signals", validSubmit, nil)
			require.Equal(t, tt.wantStatus, rec.Code)
			tt.check(t, rec)
		})
	}
}

func TestSubmit_BadBody(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"empty":         "",
		"not json":      "{",
		"unknown field": `{"senderKey":"s1","extra":true}`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newRouterFixture(t, nil)
			rec := f.do(http.MethodPost, "/signals", body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, f.signals.SubmitCalls())
		})
	}
}

func TestSubmit_BodyTooLarge(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil)
	body := `{"message":"` + strings.Repeat("x", maxSubmitBodyBytes) + `"}`
	rec := f.do(http.MethodPost, "/signals", body, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// ---------------------------------------------------------------------------
// GET /signals/{id}, /cooldowns/{senderKey}
// ---------------------------------------------------------------------------

func TestGetSignal(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil)
	id := uuid.New()
	reason := domain.RejectReasonModerator
	f.signals.GetFunc = func(_ context.Context, in signal.GetInput) (domain.Signal, error) {
		if in.ID != id {
			return domain.Signal{}, domain.ErrNotFound
		}
		return domain.Signal{ID: id, RecipientHandle: "alice", State: domain.SignalStateRejected, RejectReason: &reason}, nil
	}

	rec := f.do(http.MethodGet, "/signals/"+id.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "REJECTED", body["state"])
	assert.Equal(t, "moderator", body["rejectReason"])
	assert.NotContains(t, body, "message")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/signals/"+uuid.NewString(), "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/signals/not-a-uuid", "", nil).Code)
}

func TestCooldownStatus(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil)
	handle := "alice"
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	f.cooldowns.StatusFunc = func(_ context.Context, key string) (domain.CooldownStatus, error) {
		return domain.CooldownStatus{SenderKey: key, Locked: true, RecipientHandle: &handle, ExpiresAt: &exp}, nil
	}

	rec := f.do(http.MethodGet, "/cooldowns/s1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"senderKey":"s1","locked":true,"recipientHandle":"alice","expiresAt":"2030-01-02T03:04:05Z"}`, rec.Body.String())
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

func TestAdmin_RequiresToken(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/admin/signals/stats", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/admin/signals/stats", "",
		map[string]string{middleware.AdminTokenHeader: "wrong"}).Code)
}

func TestAdmin_Stats(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil)
	f.signals.StatsFunc = func(context.Context) (domain.SignalStats, error) {
		return domain.SignalStats{domain.SignalStatePending: 2, domain.SignalStateCommitted: 1}, nil
	}

	rec := f.do(http.MethodGet, "/admin/signals/stats", "", map[string]string{middleware.AdminTokenHeader: testAdminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":3,"states":{"PENDING":2,"APPROVED":0,"REJECTED":0,"COMMITTED":1,"FAILED":0}}`, rec.Body.String())
}

func TestAdmin_List(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil)
	f.signals.ListFunc = func(context.Context, signal.ListInput) ([]domain.Signal, error) {
		return []domain.Signal{{ID: uuid.New(), State: domain.SignalStatePending}}, nil
	}
	auth := map[string]string{"Authorization": "Bearer " + testAdminToken}

	rec := f.do(http.MethodGet, "/admin/signals?state=pending&limit=10&offset=20", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	assert.Len(t, items, 1)
	assert.Equal(t, []signal.ListInput{{State: domain.SignalStatePending, Limit: 10, Offset: 20}}, f.signals.ListCalls())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/admin/signals?state=bogus", "", auth).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/admin/signals?state=failed&limit=x", "", auth).Code)
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

func TestWebhook(t *testing.T) {
	t.Parallel()

	update := `{"update_id":7,"callback_query":{"id":"cb","from":{"id":1},"data":"register"}}`
	secret := map[string]string{WebhookSecretHeader: testWebhookSecret}

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t, nil)
		rec := f.do(http.MethodPost, "/telegram/webhook", update, map[string]string{WebhookSecretHeader: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, f.updates.HandleUpdateCalls())
	})

	t.Run("delivered", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t, nil)
		rec := f.do(http.MethodPost, "/telegram/webhook", update, secret)
		require.Equal(t, http.StatusOK, rec.Code)
		calls := f.updates.HandleUpdateCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, int64(7), calls[0].UpdateID)
		assert.Equal(t, "register", calls[0].CallbackQuery.Data)
	})

	t.Run("malformed update is dropped", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t, nil)
		rec := f.do(http.MethodPost, "/telegram/webhook", "[", secret)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.updates.HandleUpdateCalls())
	})

	t.Run("handler failure asks for redelivery", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t, nil)
		f.updates.HandleUpdateFunc = func(context.Context, telegram.Update) error {
			return errors.New("db down")
		}
		rec := f.do(http.MethodPost, "/telegram/webhook", update, secret)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func TestRouter_NotFoundIsJSON(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil)
	rec := f.do(http.MethodGet, "/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_RateLimitGuardsPublicRoutesOnly(t *testing.T) {
	t.Parallel()

	limiter := middleware.NewRateLimiter(config.RateLimitConfig{RPS: 0.01, Burst: 1}, time.Minute)
	t.Cleanup(limiter.Stop)

	f := newRouterFixture(t, limiter)
	f.cooldowns.StatusFunc = func(_ context.Context, key string) (domain.CooldownStatus, error) {
		return domain.CooldownStatus{SenderKey: key}, nil
	}

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/cooldowns/s1", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/cooldowns/s1", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/live", "", nil).Code)
}
