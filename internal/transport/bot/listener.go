package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
)

// handleAttempts bounds how often one update is handed to the handler.
const handleAttempts = 5

type updateSource interface {
	Start(ctx context.Context)
	Updates() <-chan telegram.Update
}

type updateHandler interface {
	HandleUpdate(ctx context.Context, upd telegram.Update) error
}

// Listener runs long polling and hands updates to a bounded pool of workers.
//
// Telegram treats an update as delivered once the poller asks for the next
// batch, which happens independently of handling. A failed update is retried
// in-process with backoff; after handleAttempts it is logged and dropped. An
// update that is still queued or failing when the process dies is lost. The
// prompt keeps its buttons in that case, so the moderator can press again.
type Listener struct {
	source       updateSource
	handler      updateHandler
	workers      int
	retryInitial time.Duration
	retryMax     time.Duration
	log          *slog.Logger
}

// NewListener creates a Listener running at most workers handlers at once.
func NewListener(source updateSource, handler updateHandler, workers int, logger *slog.Logger) *Listener {
	if workers < 1 {
		workers = 1
	}
	return &Listener{
		source:       source,
		handler:      handler,
		workers:      workers,
		retryInitial: 200 * time.Millisecond,
		retryMax:     5 * time.Second,
		log:          logger.With("service", "telegram_listener"),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight handlers. It
// returns nil on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	l.log.InfoContext(ctx, "listener started", slog.Int("workers", l.workers))

	polling := make(chan struct{})
	go func() {
		defer close(polling)
		l.source.Start(ctx)
	}()

	// Decisions must finish even when shutdown starts mid-update.
	hctx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(l.workers)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			<-polling
			l.log.InfoContext(hctx, "listener stopped")
			return nil
		case upd := <-l.source.Updates():
			g.Go(func() error {
				l.handle(hctx, upd)
				return nil
			})
		}
	}
}

func (l *Listener) handle(ctx context.Context, upd telegram.Update) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryInitial
	b.MaxInterval = l.retryMax
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return l.handler.HandleUpdate(ctx, upd)
	}, backoff.WithMaxRetries(b, handleAttempts-1), func(err error, wait time.Duration) {
		l.log.WarnContext(ctx, "handle update failed",
			slog.Int64("update_id", upd.UpdateID),
			slog.String("error", err.Error()),
			slog.Duration("retry_in", wait),
		)
	})
	if err != nil {
		l.log.ErrorContext(ctx, "update dropped",
			slog.Int64("update_id", upd.UpdateID),
			slog.Int("attempts", handleAttempts),
			slog.String("error", err.Error()),
		)
	}
}
