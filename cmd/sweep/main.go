// Command sweep runs one sweep pass: it expires stale pending signals,
// re-sends prompts that were never sent and resumes approvals whose commit
// was interrupted. It is intended to be invoked by an external cron job
// when the in-process sweeper is not enough.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heartmarshall/firstsignal-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if err := app.RunSweep(ctx); err != nil {
		log.Printf("sweep: %v", err)
		cancel()
		stop()
		os.Exit(1)
	}
}
