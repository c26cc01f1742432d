package payments

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when the provider has no session for the id.
var ErrSessionNotFound = errors.New("payments: session not found")

type LineItem struct {
	Name      string
	ImageURL  string
	UnitPrice int64 // minor units
	Quantity  int
}

type SessionRequest struct {
	LineItems []LineItem
	// PercentOff > 0 attaches a one-time discount to the session.
	PercentOff int
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type Session struct {
	ID          string
	Paid        bool
	AmountTotal int64
	Metadata    map[string]string
}

// Provider abstracts the hosted checkout processor. The real backend is
// Stripe Checkout; tests use an in-memory fake.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
}
