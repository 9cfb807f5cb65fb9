package api

// EnvelopeStatus is the lifecycle status of the envelope that owns a workflow.
// Envelopes are owned by an external service; the engine only reads the
// status and asks for completion or voiding.
type EnvelopeStatus string

const (
	EnvelopeDraft     EnvelopeStatus = "draft"
	EnvelopeSent      EnvelopeStatus = "sent"
	EnvelopeDelivered EnvelopeStatus = "delivered"
	EnvelopeCompleted EnvelopeStatus = "completed"
	EnvelopeVoided    EnvelopeStatus = "voided"
)

// Dispatched reports whether the envelope has left draft and is out with
// recipients, i.e. cancelling its workflow must void it.
func (s EnvelopeStatus) Dispatched() bool {
	return s == EnvelopeSent || s == EnvelopeDelivered
}

// RecipientType is the role a recipient plays on an envelope.
type RecipientType string

const (
	RecipientSigner            RecipientType = "signer"
	RecipientInPersonSigner    RecipientType = "in_person_signer"
	RecipientCarbonCopy        RecipientType = "carbon_copy"
	RecipientCertifiedDelivery RecipientType = "certified_delivery"
	RecipientAgent             RecipientType = "agent"
	RecipientEditor            RecipientType = "editor"
	RecipientIntermediary      RecipientType = "intermediary"
	RecipientWitness           RecipientType = "witness"
)

// RecipientStatus is the recipient-level status kept by the envelope service.
type RecipientStatus string

const (
	RecipientCreated   RecipientStatus = "created"
	RecipientSent      RecipientStatus = "sent"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientSigned    RecipientStatus = "signed"
	RecipientCompleted RecipientStatus = "completed"
	RecipientDeclined  RecipientStatus = "declined"
)

// Recipient is a party to an envelope.
type Recipient struct {
	ID         string
	EnvelopeID string
	Name       string
	Email      string
	Type       RecipientType

	// RoutingOrder groups recipients into waves; 1 is the first wave.
	RoutingOrder int

	// ListingIndex is the recipient's position in the envelope's recipient
	// listing. It breaks ties between recipients sharing a routing order.
	ListingIndex int

	Status RecipientStatus
}

// HasSigned reports whether the recipient finished their action.
func (r Recipient) HasSigned() bool {
	return r.Status == RecipientSigned || r.Status == RecipientCompleted
}

// HasDeclined reports whether the recipient declined the envelope.
func (r Recipient) HasDeclined() bool {
	return r.Status == RecipientDeclined
}
