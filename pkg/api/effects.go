package api

import (
	"context"
	"fmt"
)

// EffectKind identifies a side effect produced by a committed transition.
type EffectKind string

const (
	EffectNotifyRecipient  EffectKind = "notify-recipient"
	EffectCompleteEnvelope EffectKind = "complete-envelope"
	EffectVoidEnvelope     EffectKind = "void-envelope"
)

// Effect is a side effect the engine emits after a transition commits.
// Transitions never call collaborators directly; they append effects, and a
// dispatcher delivers them once the new state is durable.
type Effect struct {
	Kind        EffectKind
	EnvelopeID  string
	WorkflowID  string
	RecipientID string // EffectNotifyRecipient only
	Reason      string // EffectVoidEnvelope only
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectNotifyRecipient:
		return fmt.Sprintf("%s envelope=%s recipient=%s", e.Kind, e.EnvelopeID, e.RecipientID)
	case EffectVoidEnvelope:
		return fmt.Sprintf("%s envelope=%s reason=%q", e.Kind, e.EnvelopeID, e.Reason)
	case EffectCompleteEnvelope:
		return fmt.Sprintf("%s envelope=%s", e.Kind, e.EnvelopeID)
	}
	return string(e.Kind)
}

// FireAndForget reports whether a failed delivery of e is dropped after
// logging instead of retried.
func (e Effect) FireAndForget() bool {
	return e.Kind == EffectNotifyRecipient
}

// Apply delivers e to the matching collaborator.
func (e Effect) Apply(ctx context.Context, envelopes EnvelopeService, notifier Notifier) error {
	switch e.Kind {
	case EffectNotifyRecipient:
		return notifier.NotifyRecipientOfTurn(ctx, e.EnvelopeID, e.RecipientID)
	case EffectCompleteEnvelope:
		return envelopes.MarkCompleted(ctx, e.EnvelopeID)
	case EffectVoidEnvelope:
		return envelopes.MarkVoided(ctx, e.EnvelopeID, e.Reason)
	}
	return fmt.Errorf("unknown effect kind: %s", e.Kind)
}
