// Package signal implements the Signal Store using PostgreSQL.
// Message and contact columns are sealed at rest and erased on rejection.
// The signed ledger transaction carries the message, so it is sealed too.
package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

const table = "signals"

var columns = []string{
	"id", "sender_key", "recipient_handle", "message", "sender_contact",
	"state", "prompt_ref", "reject_reason", "ledger_ref", "attempts",
	"last_error", "created_at", "resolved_at", "committed_at", "updated_at",
	"dispatched_at", "ledger_tx",
}

// sealer encrypts message bodies at rest.
type sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Repo provides signal persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
	box  sealer
}

// New creates a new signal repository.
func New(pool *pgxpool.Pool, box sealer) *Repo {
	return &Repo{pool: pool, box: box}
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Create inserts a new PENDING signal and returns the persisted row.
func (r *Repo) Create(ctx context.Context, s domain.Signal) (domain.Signal, error) {
	if s.State != domain.SignalStatePending {
		return domain.Signal{}, fmt.Errorf("signal %s: create in state %s: %w", s.ID, s.State, domain.ErrValidation)
	}

	message, err := r.box.Seal([]byte(s.Message))
	if err != nil {
		return domain.Signal{}, fmt.Errorf("signal %s: seal message: %w", s.ID, err)
	}
	var contact []byte
	if s.SenderContact != nil {
		if contact, err = r.box.Seal([]byte(*s.SenderContact)); err != nil {
			return domain.Signal{}, fmt.Errorf("signal %s: seal contact: %w", s.ID, err)
		}
	}

	query, args, err := postgres.Builder().
		Insert(table).
		Columns("id", "sender_key", "recipient_handle", "message", "sender_contact",
			"message_length", "state", "created_at", "updated_at").
		Values(s.ID, s.SenderKey, s.RecipientHandle, message, contact,
			domain.TextLength(s.Message), string(s.State), s.CreatedAt, s.CreatedAt).
		Suffix(returning()).
		ToSql()
	if err != nil {
		return domain.Signal{}, fmt.Errorf("build insert signal: %w", err)
	}

	row := postgres.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, query, args...)
	created, err := r.scan(row)
	if err != nil {
		return domain.Signal{}, postgres.MapError(err, "signal", s.ID)
	}
	return created, nil
}

// Transition moves a signal from one state to another in a single conditional
// UPDATE. When the stored state is not from, it returns *domain.ConflictError.
func (r *Repo) Transition(ctx context.Context, id uuid.UUID, from, to domain.SignalState, upd domain.SignalUpdate) (domain.Signal, error) {
	if !from.CanTransitionTo(to) {
		return domain.Signal{}, fmt.Errorf("signal %s: %s -> %s: %w", id, from, to, domain.ErrValidation)
	}
	if to == domain.SignalStateRejected {
		upd.DiscardMessage = true
	}

	b := postgres.Builder().
		Update(table).
		Set("state", string(to)).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id, "state": string(from)}).
		Suffix(returning())
	if from == domain.SignalStateApproved {
		b = b.Set("ledger_tx", nil)
	}
	b = applyUpdate(b, upd)

	query, args, err := b.ToSql()
	if err != nil {
		return domain.Signal{}, fmt.Errorf("build transition signal: %w", err)
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)
	updated, err := r.scan(q.QueryRow(ctx, query, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Signal{}, postgres.MapError(err, "signal", id)
	}

	// Zero rows: either the signal does not exist or it left `from`.
	var actual string
	if err := q.QueryRow(ctx, `SELECT state FROM signals WHERE id = $1`, id).Scan(&actual); err != nil {
		return domain.Signal{}, postgres.MapError(err, "signal", id)
	}
	return domain.Signal{}, &domain.ConflictError{
		SignalID: id,
		Expected: from,
		Actual:   domain.SignalState(actual),
	}
}

// SetPromptRef records the moderation prompt of a PENDING signal.
func (r *Repo) SetPromptRef(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx,
		`UPDATE signals SET prompt_ref = $2, updated_at = now() WHERE id = $1 AND state = 'PENDING'`,
		id, ref,
	)
	if err != nil {
		return postgres.MapError(err, "signal", id)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		return &domain.ConflictError{SignalID: id, Expected: domain.SignalStatePending, Actual: current.State}
	}
	return nil
}

// ClaimDispatch marks the prompt of a PENDING signal as being sent. It
// reports false when the signal is no longer PENDING or already claimed.
func (r *Repo) ClaimDispatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx,
		`UPDATE signals SET dispatched_at = $2, updated_at = now()
		 WHERE id = $1 AND state = 'PENDING' AND prompt_ref IS NULL AND dispatched_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, postgres.MapError(err, "signal", id)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseDispatch drops a dispatch claim that never produced a prompt.
func (r *Repo) ReleaseDispatch(ctx context.Context, id uuid.UUID) error {
	_, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx,
		`UPDATE signals SET dispatched_at = NULL, updated_at = now()
		 WHERE id = $1 AND prompt_ref IS NULL`,
		id,
	)
	if err != nil {
		return postgres.MapError(err, "signal", id)
	}
	return nil
}

// SetLedgerTx records the signed ledger transaction of an APPROVED signal.
// A signal holds at most one; a second call returns *domain.ConflictError.
func (r *Repo) SetLedgerTx(ctx context.Context, id uuid.UUID, rawTx []byte) error {
	sealed, err := r.box.Seal(rawTx)
	if err != nil {
		return fmt.Errorf("signal %s: seal ledger tx: %w", id, err)
	}
	tag, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx,
		`UPDATE signals SET ledger_tx = $2, updated_at = now()
		 WHERE id = $1 AND state = 'APPROVED' AND ledger_tx IS NULL`,
		id, sealed,
	)
	if err != nil {
		return postgres.MapError(err, "signal", id)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		return &domain.ConflictError{SignalID: id, Expected: domain.SignalStateApproved, Actual: current.State}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// Get returns a signal by id.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (domain.Signal, error) {
	return r.getOne(ctx, sq.Eq{"id": id}, id)
}

// GetByPromptRef returns the signal whose moderation prompt is ref.
func (r *Repo) GetByPromptRef(ctx context.Context, ref string) (domain.Signal, error) {
	return r.getOne(ctx, sq.Eq{"prompt_ref": ref}, ref)
}

// ListByState returns signals in the given state, newest first.
func (r *Repo) ListByState(ctx context.Context, state domain.SignalState, limit, offset int) ([]domain.Signal, error) {
	b := selectSignals().
		Where(sq.Eq{"state": string(state)}).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	return r.list(ctx, b)
}

// ListPendingBefore returns PENDING signals created before the cutoff, oldest first.
func (r *Repo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Signal, error) {
	b := selectSignals().
		Where(sq.Eq{"state": string(domain.SignalStatePending)}).
		Where(sq.Lt{"created_at": before}).
		OrderBy("created_at ASC").
		Limit(uint64(limit))
	return r.list(ctx, b)
}

// ListUndispatched returns unclaimed PENDING signals created before the cutoff.
func (r *Repo) ListUndispatched(ctx context.Context, before time.Time, limit int) ([]domain.Signal, error) {
	b := selectSignals().
		Where(sq.Eq{"state": string(domain.SignalStatePending), "prompt_ref": nil, "dispatched_at": nil}).
		Where(sq.Lt{"created_at": before}).
		OrderBy("created_at ASC").
		Limit(uint64(limit))
	return r.list(ctx, b)
}

// ListStaleApproved returns APPROVED signals resolved before the cutoff.
func (r *Repo) ListStaleApproved(ctx context.Context, before time.Time, limit int) ([]domain.Signal, error) {
	b := selectSignals().
		Where(sq.Eq{"state": string(domain.SignalStateApproved)}).
		Where(sq.Lt{"resolved_at": before}).
		OrderBy("resolved_at ASC").
		Limit(uint64(limit))
	return r.list(ctx, b)
}

// HasInFlight reports whether the sender has an APPROVED signal to a
// recipient other than recipientHandle.
func (r *Repo) HasInFlight(ctx context.Context, senderKey, recipientHandle string) (bool, error) {
	var exists bool
	err := postgres.QuerierFromCtx(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM signals
			WHERE sender_key = $1 AND state = 'APPROVED' AND recipient_handle <> $2
		)`,
		senderKey, recipientHandle,
	).Scan(&exists)
	if err != nil {
		return false, postgres.MapError(err, "signal sender", senderKey)
	}
	return exists, nil
}

// Stats returns the number of signals per state.
func (r *Repo) Stats(ctx context.Context) (domain.SignalStats, error) {
	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx,
		`SELECT state, count(*) FROM signals GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("signal stats: %w", err)
	}
	defer rows.Close()

	stats := make(domain.SignalStats, len(domain.SignalStates))
	for _, st := range domain.SignalStates {
		stats[st] = 0
	}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan signal stats: %w", err)
		}
		stats[domain.SignalState(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("signal stats: %w", err)
	}
	return stats, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func selectSignals() sq.SelectBuilder {
	return postgres.Builder().Select(columns...).From(table)
}

func returning() string {
	return "RETURNING " + strings.Join(columns, ", ")
}

func applyUpdate(b sq.UpdateBuilder, upd domain.SignalUpdate) sq.UpdateBuilder {
	if upd.ResolvedAt != nil {
		b = b.Set("resolved_at", *upd.ResolvedAt)
	}
	if upd.CommittedAt != nil {
		b = b.Set("committed_at", *upd.CommittedAt)
	}
	if upd.RejectReason != nil {
		b = b.Set("reject_reason", string(*upd.RejectReason))
	}
	if upd.LedgerRef != nil {
		b = b.Set("ledger_ref", *upd.LedgerRef)
	}
	if upd.Attempts != nil {
		b = b.Set("attempts", *upd.Attempts)
	}
	if upd.LastError != nil {
		b = b.Set("last_error", *upd.LastError)
	}
	if upd.DiscardMessage {
		b = b.Set("message", nil).Set("sender_contact", nil)
	}
	return b
}

func (r *Repo) getOne(ctx context.Context, where sq.Eq, id any) (domain.Signal, error) {
	query, args, err := selectSignals().Where(where).ToSql()
	if err != nil {
		return domain.Signal{}, fmt.Errorf("build select signal: %w", err)
	}
	s, err := r.scan(postgres.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Signal{}, postgres.MapError(err, "signal", id)
	}
	return s, nil
}

func (r *Repo) list(ctx context.Context, b sq.SelectBuilder) ([]domain.Signal, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list signals: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return out, nil
}

func (r *Repo) scan(row pgx.Row) (domain.Signal, error) {
	var (
		s            domain.Signal
		message      []byte
		contact      []byte
		ledgerTx     []byte
		state        string
		rejectReason *string
	)
	err := row.Scan(
		&s.ID, &s.SenderKey, &s.RecipientHandle, &message, &contact,
		&state, &s.PromptRef, &rejectReason, &s.LedgerRef, &s.Attempts,
		&s.LastError, &s.CreatedAt, &s.ResolvedAt, &s.CommittedAt, &s.UpdatedAt,
		&s.DispatchedAt, &ledgerTx,
	)
	if err != nil {
		return domain.Signal{}, err
	}
	s.State = domain.SignalState(state)
	if rejectReason != nil {
		reason := domain.RejectReason(*rejectReason)
		s.RejectReason = &reason
	}

	if message != nil {
		plain, err := r.box.Open(message)
		if err != nil {
			return domain.Signal{}, fmt.Errorf("signal %s: open message: %w", s.ID, err)
		}
		s.Message = string(plain)
	}
	if contact != nil {
		plain, err := r.box.Open(contact)
		if err != nil {
			return domain.Signal{}, fmt.Errorf("signal %s: open contact: %w", s.ID, err)
		}
		c := string(plain)
		s.SenderContact = &c
	}
	if ledgerTx != nil {
		if s.LedgerTx, err = r.box.Open(ledgerTx); err != nil {
			return domain.Signal{}, fmt.Errorf("signal %s: open ledger tx: %w", s.ID, err)
		}
	}
	return s, nil
}
