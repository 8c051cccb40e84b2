package bridge

import "github.com/vergetel/ussdbridge/internal/parlayx"

// SessionEvent is the lifecycle kind attached to every message crossing
// the bridge.
type SessionEvent string

const (
	SessionNew    SessionEvent = "new"
	SessionResume SessionEvent = "resume"
	SessionClose  SessionEvent = "close"
)

// DetermineSessionEvent maps the carrier's raw msgType discriminator to
// a session event. Anything beyond new/resume closes the session.
func DetermineSessionEvent(msgType string) SessionEvent {
	switch msgType {
	case parlayx.MsgTypeNew:
		return SessionNew
	case parlayx.MsgTypeResume:
		return SessionResume
	default:
		return SessionClose
	}
}

// Topics names the bus topics the bridge publishes to and consumes from.
type Topics struct {
	Inbound  string
	Outbound string
	Events   string
}

func DefaultTopics() Topics {
	return Topics{
		Inbound:  "ussd.inbound",
		Outbound: "ussd.outbound",
		Events:   "ussd.event",
	}
}

// Metadata threads the carrier correlation fields from an inbound
// notification to the outbound reply that answers it.
type Metadata struct {
	SessionID   string `json:"session_id"`
	SenderCB    string `json:"senderCB"`
	Linkid      string `json:"linkid,omitempty"`
	UssdOpType  string `json:"ussdOpType"`
	ServiceCode string `json:"serviceCode"`
	CodeScheme  string `json:"codeScheme"`
}

// InboundMessage is the internal event emitted for each accepted
// carrier notification. Content is empty on a NEW event: the first
// message's payload is the dial string, not user content.
type InboundMessage struct {
	MessageID    string       `json:"message_id"`
	ToAddr       string       `json:"to_addr"`
	FromAddr     string       `json:"from_addr"`
	Content      string       `json:"content"`
	SessionEvent SessionEvent `json:"session_event"`
	Metadata     Metadata     `json:"transport_metadata"`
}

// OutboundMessage is an application reply consumed from the bus.
type OutboundMessage struct {
	MessageID    string       `json:"message_id"`
	ToAddr       string       `json:"to_addr"`
	Content      string       `json:"content"`
	SessionEvent SessionEvent `json:"session_event"`
	Metadata     Metadata     `json:"transport_metadata"`
}

// Event acknowledgement kinds.
const (
	EventAck  = "ack"
	EventNack = "nack"
)

// Event reports the outcome of one outbound message: exactly one Event
// is published per OutboundMessage, never zero, never two.
type Event struct {
	Type string `json:"event_type"`
	// UserMessageID references the outbound message being acknowledged.
	UserMessageID string `json:"user_message_id"`
	// RemoteID is the carrier request identifier, set on ack.
	RemoteID string `json:"remote_id,omitempty"`
	// Reason is the failure description, set on nack.
	Reason string `json:"nack_reason,omitempty"`
}
