package api

import "context"

// EnvelopeService is the envelope collaborator. MarkCompleted and MarkVoided
// must be idempotent: effects may be delivered more than once.
type EnvelopeService interface {
	EnvelopeStatus(ctx context.Context, envelopeID string) (EnvelopeStatus, error)
	MarkCompleted(ctx context.Context, envelopeID string) error
	MarkVoided(ctx context.Context, envelopeID string, reason string) error
}

// Notifier tells a recipient it is their turn to act. Delivery is
// fire-and-forget from the engine's point of view.
type Notifier interface {
	NotifyRecipientOfTurn(ctx context.Context, envelopeID, recipientID string) error
}

// RecipientReader gives read-only access to an envelope's recipients.
type RecipientReader interface {
	// ListRecipients returns the envelope's recipients in listing order.
	ListRecipients(ctx context.Context, envelopeID string) ([]Recipient, error)

	// GetRecipient returns ErrRecipientNotFound for unknown recipients.
	GetRecipient(ctx context.Context, envelopeID, recipientID string) (Recipient, error)
}
