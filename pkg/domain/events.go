package domain

import "time"

// EventKind is the category of an asynchronous notification.
type EventKind string

const (
	EventProposalRejected    EventKind = "proposal_rejected"
	EventAgreementApproved   EventKind = "agreement_approved"
	EventAgreementTerminated EventKind = "agreement_terminated"
	EventInvoiceAccepted     EventKind = "invoice_accepted"
	EventInvoiceRejected     EventKind = "invoice_rejected"
	EventInvoicePaid         EventKind = "invoice_paid"
)

// AllEventKinds lists every broadcastable kind, in a stable order.
func AllEventKinds() []EventKind {
	return []EventKind{
		EventProposalRejected,
		EventAgreementApproved,
		EventAgreementTerminated,
		EventInvoiceAccepted,
		EventInvoiceRejected,
		EventInvoicePaid,
	}
}

// Event is a notification delivered to subscribed component instances outside
// the decision path. Delivery is fire-and-forget and best-effort.
type Event struct {
	Kind EventKind

	// Source identifies the originating party or subsystem. Delivery order is
	// preserved per source.
	Source string

	// ProposalID is set for proposal-related kinds.
	ProposalID string

	// AgreementID is set for agreement- and invoice-related kinds.
	AgreementID string

	// Reason accompanies rejection kinds.
	Reason *Reason

	// Payload carries kind-specific extra data.
	Payload map[string]any

	Timestamp time.Time
}

// SessionInfo is the per-call context handed to a component's Decide.
type SessionInfo struct {
	SessionID string
	Round     int

	// Deadline is the wall/virtual instant the Session gives up.
	Deadline time.Time
}
