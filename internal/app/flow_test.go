package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/memory"
	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/payment"
	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/metrics"
	"github.com/heartmarshall/firstsignal-backend/internal/service/cooldown"
	"github.com/heartmarshall/firstsignal-backend/internal/service/dispatch"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
	"github.com/heartmarshall/firstsignal-backend/internal/transport/bot"
	"github.com/heartmarshall/firstsignal-backend/internal/transport/middleware"
	"github.com/heartmarshall/firstsignal-backend/internal/transport/rest"
)

const (
	flowModeratorChat int64 = -100500
	flowAliceChat     int64 = 777
	flowBotToken            = "123:abc"
	flowWebhookSecret       = "hook"
)

// botCall is one request received by the fake Bot API.
type botCall struct {
	Method string
	Params map[string]string
}

// fakeBotAPI answers Bot API calls the way Telegram does and records them.
type fakeBotAPI struct {
	mu     sync.Mutex
	calls  []botCall
	nextID int64
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	_ = r.ParseMultipartForm(1 << 20)
	params := make(map[string]string, len(r.Form))
	for k := range r.Form {
		params[k] = strings.Trim(r.Form.Get(k), `"`)
	}

	f.mu.Lock()
	f.calls = append(f.calls, botCall{Method: method, Params: params})
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "sendMessage", "editMessageText":
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":1,"chat":{"id":%s,"type":"private"}}}`, id, params["chat_id"])
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeBotAPI) sent(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Method == "sendMessage" && c.Params["chat_id"] == strconv.FormatInt(chatID, 10) {
			out = append(out, c.Params["text"])
		}
	}
	return out
}

// lastPrompt returns the message id of the newest moderator prompt.
func (f *fakeBotAPI) lastPrompt(t *testing.T) (messageID int64, approveData string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		c := f.calls[i]
		if c.Method != "sendMessage" || c.Params["chat_id"] != strconv.FormatInt(flowModeratorChat, 10) {
			continue
		}
		var markup struct {
			InlineKeyboard [][]struct {
				CallbackData string `json:"callback_data"`
			} `json:"inline_keyboard"`
		}
		require.NoError(t, json.Unmarshal([]byte(c.Params["reply_markup"]), &markup))
		// Message ids are handed out in call order, starting at 1.
		return int64(i + 1), markup.InlineKeyboard[0][0].CallbackData
	}
	t.Fatal("no moderator prompt sent")
	return 0, ""
}

type committerFunc func(ctx context.Context, sig domain.Signal, record func(context.Context, []byte) error) (string, error)

func (f committerFunc) Commit(ctx context.Context, sig domain.Signal, record func(context.Context, []byte) error) (string, error) {
	return f(ctx, sig, record)
}

type flowFixture struct {
	server  *httptest.Server
	botAPI  *fakeBotAPI
	gate    *payment.Gate
	signals *signal.Service
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	botAPI := &fakeBotAPI{}
	botServer := httptest.NewServer(botAPI)
	t.Cleanup(botServer.Close)

	signalStore := memory.NewSignalStore()
	tg, err := telegram.NewClient(botServer.URL, flowBotToken, 2*time.Second, time.Second, log)
	require.NoError(t, err)
	cooldownSvc := cooldown.NewService(log, memory.NewCooldownStore(), 30)
	dispatchSvc := dispatch.NewService(log, tg, memory.NewRecipientStore(), signalStore, dispatch.Config{
		ModeratorChatID: flowModeratorChat,
		ExplorerTxURL:   "https://explorer.test/tx/",
	})
	gate := payment.NewGate(config.PaymentConfig{
		Secret: strings.Repeat("k", 32),
		Issuer: "firstsignal-payments",
		Leeway: time.Second,
	}, memory.NewReplayGuard(), log)

	signalSvc := signal.NewService(log, signalStore, cooldownSvc, gate, dispatchSvc,
		committerFunc(func(ctx context.Context, sig domain.Signal, record func(context.Context, []byte) error) (string, error) {
			if len(sig.LedgerTx) == 0 {
				if err := record(ctx, []byte("signed")); err != nil {
					return "", err
				}
			}
			return "0xfeed", nil
		}),
		memory.NewKeyedLocker(), memory.NewTxManager(), metrics.New(),
		config.SignalConfig{
			CooldownDays:         30,
			PendingTTL:           time.Hour,
			LedgerMaxAttempts:    2,
			LedgerInitialBackoff: time.Millisecond,
			LedgerMaxBackoff:     time.Millisecond,
			CommitTimeout:        5 * time.Second,
			SweepBatch:           10,
			RedispatchAfter:      time.Minute,
		},
	)

	updates := bot.NewHandler(signalSvc, dispatchSvc, log)
	router := rest.NewRouter(rest.RouterDeps{
		Signals:     rest.NewSignalHandler(signalSvc, cooldownSvc, log),
		Admin:       rest.NewAdminHandler(signalSvc, log),
		Health:      rest.NewHealthHandler("test", nil),
		Webhook:     rest.NewWebhookHandler(flowWebhookSecret, updates, log),
		Middlewares: []middleware.Middleware{middleware.Recovery(log), middleware.RequestID()},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &flowFixture{server: server, botAPI: botAPI, gate: gate, signals: signalSvc}
}

func (f *flowFixture) post(t *testing.T, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *flowFixture) getJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	resp, err := f.server.Client().Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *flowFixture) webhook(t *testing.T, update string) {
	t.Helper()
	resp := f.post(t, "/telegram/webhook", update, map[string]string{rest.WebhookSecretHeader: flowWebhookSecret})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (f *flowFixture) submit(t *testing.T, sender, recipient string) *http.Response {
	t.Helper()
	proof, err := f.gate.Issue(sender, recipient, time.Hour)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"senderKey":%q,"recipientHandle":%q,"message":"see you at the lighthouse","senderContact":"tg:@bob"}`, sender, recipient)
	return f.post(t, "/signals", body, map[string]string{rest.PaymentHeader: proof})
}

func TestFlow_SubmitApproveCommitDeliver(t *testing.T) {
	f := newFlowFixture(t)

	// Alice registers with the bot.
	f.webhook(t, fmt.Sprintf(`{"update_id":1,"message":{"message_id":1,"chat":{"id":%d,"type":"private"},"text":"/start"}}`, flowAliceChat))
	f.webhook(t, fmt.Sprintf(`{"update_id":2,"callback_query":{"id":"cb-reg","from":{"id":%d,"username":"Alice"},"message":{"message_id":2,"chat":{"id":%d}},"data":"register"}}`,
		flowAliceChat, flowAliceChat))

	// A paid submission is accepted and prompted to the moderator.
	resp := f.submit(t, "sender-1", "@alice")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	id := accepted["signalId"].(string)
	assert.Equal(t, "PENDING", accepted["state"])
	assert.Equal(t, true, accepted["dispatched"])

	pending := f.getJSON(t, "/signals/"+id)
	assert.NotContains(t, pending, "message")

	// The moderator approves; the press is redelivered once.
	promptID, approve := f.botAPI.lastPrompt(t)
	press := fmt.Sprintf(`{"update_id":3,"callback_query":{"id":"cb-ok","from":{"id":1},"message":{"message_id":%d,"chat":{"id":%d}},"data":%q}}`,
		promptID, flowModeratorChat, approve)
	f.webhook(t, press)
	f.webhook(t, press)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.signals.Wait(ctx))

	committed := f.getJSON(t, "/signals/"+id)
	assert.Equal(t, "COMMITTED", committed["state"])
	assert.Equal(t, "0xfeed", committed["ledgerRef"])
	assert.Equal(t, "see you at the lighthouse", committed["message"])

	delivered := f.botAPI.sent(flowAliceChat)
	require.NotEmpty(t, delivered)
	assert.Contains(t, delivered[len(delivered)-1], "see you at the lighthouse")

	// The sender is now locked to alice.
	cd := f.getJSON(t, "/cooldowns/sender-1")
	assert.Equal(t, true, cd["locked"])
	assert.Equal(t, "alice", cd["recipientHandle"])

	blocked := f.submit(t, "sender-1", "carol")
	assert.Equal(t, http.StatusTooManyRequests, blocked.StatusCode)
	assert.NotEmpty(t, blocked.Header.Get("Retry-After"))

	again := f.submit(t, "sender-1", "alice")
	assert.Equal(t, http.StatusAccepted, again.StatusCode)
}

func TestFlow_RejectDiscardsMessage(t *testing.T) {
	f := newFlowFixture(t)

	resp := f.submit(t, "sender-2", "dave")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	id := accepted["signalId"].(string)

	promptID, _ := f.botAPI.lastPrompt(t)
	f.webhook(t, fmt.Sprintf(`{"update_id":9,"callback_query":{"id":"cb-no","from":{"id":1},"message":{"message_id":%d,"chat":{"id":%d}},"data":"reject:%s"}}`,
		promptID, flowModeratorChat, id))

	rejected := f.getJSON(t, "/signals/"+id)
	assert.Equal(t, "REJECTED", rejected["state"])
	assert.Equal(t, "moderator", rejected["rejectReason"])

	cd := f.getJSON(t, "/cooldowns/sender-2")
	assert.Equal(t, false, cd["locked"])
}

func TestFlow_ReplayedPaymentProofIsRefused(t *testing.T) {
	f := newFlowFixture(t)

	proof, err := f.gate.Issue("sender-3", "erin", time.Hour)
	require.NoError(t, err)
	body := `{"senderKey":"sender-3","recipientHandle":"erin","message":"hello erin"}`

	first := f.post(t, "/signals", body, map[string]string{rest.PaymentHeader: proof})
	assert.Equal(t, http.StatusAccepted, first.StatusCode)

	second := f.post(t, "/signals", body, map[string]string{rest.PaymentHeader: proof})
	assert.Equal(t, http.StatusPaymentRequired, second.StatusCode)

	missing := f.post(t, "/signals", body, nil)
	assert.Equal(t, http.StatusPaymentRequired, missing.StatusCode)
}
