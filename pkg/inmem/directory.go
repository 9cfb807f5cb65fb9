// Package inmem provides an in-process envelope directory that implements
// the engine's collaborator interfaces. It backs the examples and tests, and
// is a reference for adapters to a real envelope service.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

// Notification records one NotifyRecipientOfTurn call.
type Notification struct {
	EnvelopeID  string
	RecipientID string
	At          time.Time
}

type envelope struct {
	status     api.EnvelopeStatus
	voidReason string
	recipients []api.Recipient
}

// Directory is a goroutine-safe EnvelopeService, RecipientReader and
// Notifier held in memory.
type Directory struct {
	mu            sync.Mutex
	envelopes     map[string]*envelope
	notifications []Notification

	notifyErr    error
	markErr      error
	markFailures int
}

var (
	_ api.EnvelopeService = (*Directory)(nil)
	_ api.RecipientReader = (*Directory)(nil)
	_ api.Notifier        = (*Directory)(nil)
)

func NewDirectory() *Directory {
	return &Directory{envelopes: make(map[string]*envelope)}
}

// AddEnvelope registers an envelope with its recipients. Recipients get the
// envelope ID and, when unset, their listing index and Created status.
func (d *Directory) AddEnvelope(envelopeID string, status api.EnvelopeStatus, recipients ...api.Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()

	env := &envelope{status: status}
	for i, r := range recipients {
		r.EnvelopeID = envelopeID
		if r.ListingIndex == 0 {
			r.ListingIndex = i
		}
		if r.Status == "" {
			r.Status = api.RecipientCreated
		}
		env.recipients = append(env.recipients, r)
	}
	d.envelopes[envelopeID] = env
}

// SetEnvelopeStatus overrides an envelope's status.
func (d *Directory) SetEnvelopeStatus(envelopeID string, status api.EnvelopeStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	env, ok := d.envelopes[envelopeID]
	if !ok {
		return api.ErrEnvelopeNotFound
	}
	env.status = status
	return nil
}

// SetRecipientStatus records a recipient-level status change, such as a
// signature.
func (d *Directory) SetRecipientStatus(envelopeID, recipientID string, status api.RecipientStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	env, ok := d.envelopes[envelopeID]
	if !ok {
		return api.ErrEnvelopeNotFound
	}
	for i := range env.recipients {
		if env.recipients[i].ID == recipientID {
			env.recipients[i].Status = status
			return nil
		}
	}
	return api.ErrRecipientNotFound
}

// FailNotifications makes every following notification fail with err.
// A nil err restores normal delivery.
func (d *Directory) FailNotifications(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifyErr = err
}

// FailEnvelopeUpdates makes the next n MarkCompleted/MarkVoided calls fail
// with err.
func (d *Directory) FailEnvelopeUpdates(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markFailures = n
	d.markErr = err
}

func (d *Directory) EnvelopeStatus(ctx context.Context, envelopeID string) (api.EnvelopeStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	env, ok := d.envelopes[envelopeID]
	if !ok {
		return "", api.ErrEnvelopeNotFound
	}
	return env.status, nil
}

func (d *Directory) MarkCompleted(ctx context.Context, envelopeID string) error {
	return d.mark(envelopeID, api.EnvelopeCompleted, "")
}

func (d *Directory) MarkVoided(ctx context.Context, envelopeID string, reason string) error {
	return d.mark(envelopeID, api.EnvelopeVoided, reason)
}

func (d *Directory) mark(envelopeID string, status api.EnvelopeStatus, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.markFailures > 0 {
		d.markFailures--
		return d.markErr
	}
	env, ok := d.envelopes[envelopeID]
	if !ok {
		return api.ErrEnvelopeNotFound
	}
	env.status = status
	if status == api.EnvelopeVoided {
		env.voidReason = reason
	}
	return nil
}

// VoidReason returns the reason recorded by MarkVoided.
func (d *Directory) VoidReason(envelopeID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if env, ok := d.envelopes[envelopeID]; ok {
		return env.voidReason
	}
	return ""
}

func (d *Directory) NotifyRecipientOfTurn(ctx context.Context, envelopeID, recipientID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.notifyErr != nil {
		return d.notifyErr
	}
	d.notifications = append(d.notifications, Notification{
		EnvelopeID:  envelopeID,
		RecipientID: recipientID,
		At:          time.Now(),
	})
	return nil
}

// Notifications returns every delivered notification in order.
func (d *Directory) Notifications() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notification(nil), d.notifications...)
}

// NotifiedRecipients returns the recipient IDs notified for an envelope,
// in delivery order.
func (d *Directory) NotifiedRecipients(envelopeID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for _, n := range d.notifications {
		if n.EnvelopeID == envelopeID {
			out = append(out, n.RecipientID)
		}
	}
	return out
}

func (d *Directory) ListRecipients(ctx context.Context, envelopeID string) ([]api.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	env, ok := d.envelopes[envelopeID]
	if !ok {
		return nil, api.ErrEnvelopeNotFound
	}
	return append([]api.Recipient(nil), env.recipients...), nil
}

func (d *Directory) GetRecipient(ctx context.Context, envelopeID, recipientID string) (api.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	env, ok := d.envelopes[envelopeID]
	if !ok {
		return api.Recipient{}, api.ErrEnvelopeNotFound
	}
	for _, r := range env.recipients {
		if r.ID == recipientID {
			return r, nil
		}
	}
	return api.Recipient{}, fmt.Errorf("%w: %s", api.ErrRecipientNotFound, recipientID)
}
