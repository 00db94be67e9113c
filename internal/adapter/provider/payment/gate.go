// Package payment verifies payment proofs presented with a submission.
// A proof is an HS256 JWT issued by the payment processor: the subject is
// the sender key, jti identifies the payment and may be spent once.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

type replayGuard interface {
	Claim(ctx context.Context, id string, expiresAt time.Time) (bool, error)
}

// Gate verifies payment proofs and spends them once.
type Gate struct {
	secret []byte
	issuer string
	leeway time.Duration
	replay replayGuard
	log    *slog.Logger
}

// NewGate creates a Gate. The secret must be at least 32 characters for HS256.
func NewGate(cfg config.PaymentConfig, replay replayGuard, logger *slog.Logger) *Gate {
	return &Gate{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		replay: replay,
		log:    logger.With("adapter", "payment"),
	}
}

// proofClaims extends the registered claims with the recipient the payment
// was made for. An empty recipient means the proof is not bound to one.
type proofClaims struct {
	jwt.RegisteredClaims
	Recipient string `json:"rcp,omitempty"`
}

// Issue signs a proof for senderKey. It is used by the payment processor
// integration and by tests.
func (g *Gate) Issue(senderKey, recipientHandle string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := proofClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   domain.NormalizeSenderKey(senderKey),
			Issuer:    g.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Recipient: domain.NormalizeHandle(recipientHandle),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign proof: %w", err)
	}
	return signed, nil
}

// Verify checks proof for the given sender and recipient without spending
// it. Any rejection is a *domain.PaymentDeniedError.
func (g *Gate) Verify(ctx context.Context, proof, senderKey, recipientHandle string) (domain.PaymentReceipt, error) {
	if proof == "" {
		return domain.PaymentReceipt{}, &domain.PaymentDeniedError{Reason: "missing payment proof"}
	}

	token, err := jwt.ParseWithClaims(proof, &proofClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	},
		jwt.WithIssuer(g.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(g.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		reason := "invalid payment proof"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "payment proof expired"
		}
		g.log.InfoContext(ctx, "payment proof rejected", slog.String("error", err.Error()))
		return domain.PaymentReceipt{}, &domain.PaymentDeniedError{Reason: reason}
	}

	claims, ok := token.Claims.(*proofClaims)
	if !ok || !token.Valid {
		return domain.PaymentReceipt{}, &domain.PaymentDeniedError{Reason: "invalid payment proof"}
	}
	if claims.ID == "" {
		return domain.PaymentReceipt{}, &domain.PaymentDeniedError{Reason: "payment proof has no id"}
	}
	if claims.Subject != domain.NormalizeSenderKey(senderKey) {
		return domain.PaymentReceipt{}, &domain.PaymentDeniedError{Reason: "payment proof issued to another sender"}
	}
	if claims.Recipient != "" && claims.Recipient != domain.NormalizeHandle(recipientHandle) {
		return domain.PaymentReceipt{}, &domain.PaymentDeniedError{Reason: "payment proof issued for another recipient"}
	}

	return domain.PaymentReceipt{
		PaymentID: claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.Add(g.leeway),
	}, nil
}

// Claim spends a verified payment. A payment spent before is denied;
// infrastructure failures are returned as plain errors.
func (g *Gate) Claim(ctx context.Context, receipt domain.PaymentReceipt) error {
	fresh, err := g.replay.Claim(ctx, receipt.PaymentID, receipt.ExpiresAt)
	if err != nil {
		return fmt.Errorf("claim payment %s: %w", receipt.PaymentID, err)
	}
	if !fresh {
		g.log.WarnContext(ctx, "payment proof replayed", slog.String("payment_id", receipt.PaymentID))
		return &domain.PaymentDeniedError{Reason: "payment proof already used"}
	}
	return nil
}
