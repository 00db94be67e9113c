package signal

import (
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// SubmitInput is a paid submission.
type SubmitInput struct {
	PaymentProof    string
	SenderKey       string
	RecipientHandle string
	Message         string
	SenderContact   *string
}

// normalize trims fields, lower-cases keys and drops an empty contact.
func (i SubmitInput) normalize() SubmitInput {
	i.SenderKey = domain.NormalizeSenderKey(i.SenderKey)
	i.RecipientHandle = domain.NormalizeHandle(i.RecipientHandle)
	i.Message = strings.TrimSpace(i.Message)
	if i.SenderContact != nil {
		c := strings.TrimSpace(*i.SenderContact)
		if c == "" {
			i.SenderContact = nil
		} else {
			i.SenderContact = &c
		}
	}
	return i
}

// Validate checks all fields and collects all errors.
func (i SubmitInput) Validate() error {
	var errs []domain.FieldError

	switch n := domain.TextLength(i.SenderKey); {
	case n == 0:
		errs = append(errs, domain.FieldError{Field: "sender_key", Message: "required"})
	case n > domain.MaxSenderKeyLength:
		errs = append(errs, domain.FieldError{Field: "sender_key", Message: "max 128 characters"})
	}

	switch n := domain.TextLength(domain.NormalizeHandle(i.RecipientHandle)); {
	case n < domain.MinTextLength:
		errs = append(errs, domain.FieldError{Field: "recipient_handle", Message: "min 2 characters"})
	case n > domain.MaxHandleLength:
		errs = append(errs, domain.FieldError{Field: "recipient_handle", Message: "max 64 characters"})
	case strings.ContainsAny(domain.NormalizeHandle(i.RecipientHandle), " \t\r\n@"):
		errs = append(errs, domain.FieldError{Field: "recipient_handle", Message: "must be a single username"})
	}

	switch n := domain.TextLength(i.Message); {
	case n < domain.MinTextLength:
		errs = append(errs, domain.FieldError{Field: "message", Message: "min 2 characters"})
	case n > domain.MaxMessageLength:
		errs = append(errs, domain.FieldError{Field: "message", Message: "max 3500 characters"})
	}

	if i.SenderContact != nil && domain.TextLength(*i.SenderContact) > domain.MaxContactLength {
		errs = append(errs, domain.FieldError{Field: "sender_contact", Message: "max 256 characters"})
	}

	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// ListInput selects a page of signals in one state.
type ListInput struct {
	State  domain.SignalState
	Limit  int
	Offset int
}

// DefaultLimit is the page size when none is given.
const DefaultLimit = 50

// Validate checks all fields and collects all errors.
func (i ListInput) Validate() error {
	var errs []domain.FieldError
	if !i.State.IsValid() {
		errs = append(errs, domain.FieldError{Field: "state", Message: "unknown state"})
	}
	if i.Limit < 0 {
		errs = append(errs, domain.FieldError{Field: "limit", Message: "must be non-negative"})
	}
	if i.Limit > 200 {
		errs = append(errs, domain.FieldError{Field: "limit", Message: "max 200"})
	}
	if i.Offset < 0 {
		errs = append(errs, domain.FieldError{Field: "offset", Message: "must be non-negative"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// GetInput identifies one signal.
type GetInput struct {
	ID uuid.UUID
}

// Validate checks all fields and collects all errors.
func (i GetInput) Validate() error {
	if i.ID == uuid.Nil {
		return domain.NewValidationError("id", "required")
	}
	return nil
}
