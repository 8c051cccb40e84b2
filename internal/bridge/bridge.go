// Package bridge connects the carrier-facing protocol layer to the
// internal message bus: inbound notifications become inbound message
// events, outbound replies become carrier calls, and every outbound
// message is answered by exactly one ack or nack event.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/vergetel/ussdbridge/internal/logging"
	"github.com/vergetel/ussdbridge/internal/parlayx"
	"github.com/vergetel/ussdbridge/internal/session"
)

// Sender is the carrier-bound side the bridge needs; satisfied by
// *parlayx.Client.
type Sender interface {
	SendUssd(ctx context.Context, p parlayx.SendParams) (string, error)
}

// ClassifiedError carries the retry disposition attached to an outbound
// failure after the nack has been emitted.
type ClassifiedError struct {
	Disposition parlayx.Disposition
	Err         error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Disposition, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Bridge is the session-stateful glue between the protocol layer and
// the bus. It holds no per-session state itself; the Store owns session
// lifetime.
type Bridge struct {
	store      session.Store
	sender     Sender
	publisher  message.Publisher
	subscriber message.Subscriber
	topics     Topics
}

func New(store session.Store, sender Sender, pub message.Publisher, sub message.Subscriber, topics Topics) *Bridge {
	return &Bridge{
		store:      store,
		sender:     sender,
		publisher:  pub,
		subscriber: sub,
		topics:     topics,
	}
}

// HandleInbound resolves session state for one carrier notification and
// emits the corresponding inbound message event.
//
// A NEW event creates the session record and discards the notification
// text: the first payload is the USSD dial string, not user content.
// RESUME and CLOSE look the session up; an unknown or expired session
// fails with session.ErrNotFound and never fabricates a record.
func (b *Bridge) HandleInbound(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error {
	ctx = logging.ContextWithSessionID(ctx, sessionID)
	ctx = logging.ContextWithMSISDN(ctx, msg.MsIsdn)
	event := DetermineSessionEvent(msg.MsgType)

	var toAddr, content string
	switch event {
	case SessionNew:
		toAddr = msg.ServiceCode
		if err := b.store.Create(ctx, sessionID, session.Session{
			ToAddr:   toAddr,
			FromAddr: msg.MsIsdn,
		}); err != nil {
			return fmt.Errorf("creating session %s: %w", sessionID, err)
		}
	default:
		s, err := b.store.Load(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("resuming session %s: %w", sessionID, err)
		}
		toAddr = s.ToAddr
		content = msg.UssdString
	}

	inbound := InboundMessage{
		MessageID:    uuid.NewString(),
		ToAddr:       toAddr,
		FromAddr:     msg.MsIsdn,
		Content:      content,
		SessionEvent: event,
		Metadata: Metadata{
			SessionID:   sessionID,
			SenderCB:    msg.SenderCB,
			Linkid:      linkid,
			UssdOpType:  msg.UssdOpType,
			ServiceCode: msg.ServiceCode,
			CodeScheme:  msg.CodeScheme,
		},
	}
	slog.InfoContext(ctx, "Receiving USSD via carrier",
		slog.String("session_event", string(event)), slog.String("to", toAddr))
	return b.publish(b.topics.Inbound, inbound)
}

// HandleOutbound issues one carrier call for an application reply and
// publishes its acknowledgement. On failure the nack event is emitted
// first, then the classified failure is returned; reporting and
// classification are not separable steps.
func (b *Bridge) HandleOutbound(ctx context.Context, out OutboundMessage) error {
	ctx = logging.ContextWithMessageID(ctx, out.MessageID)
	ctx = logging.ContextWithSessionID(ctx, out.Metadata.SessionID)

	msgType, opType := parlayx.MsgTypeResume, parlayx.OpTypeRequest
	if out.SessionEvent == SessionClose {
		msgType, opType = parlayx.MsgTypeClose, parlayx.OpTypeRelease
	}

	requestID, err := b.sender.SendUssd(ctx, parlayx.SendParams{
		ToAddr:      out.ToAddr,
		Content:     out.Content,
		SenderCB:    out.Metadata.SenderCB,
		MsgType:     msgType,
		UssdOpType:  opType,
		ServiceCode: out.Metadata.ServiceCode,
		CodeScheme:  out.Metadata.CodeScheme,
		Linkid:      out.Metadata.Linkid,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Sending USSD failed", slog.Any("error", err))
		if pubErr := b.publish(b.topics.Events, Event{
			Type:          EventNack,
			UserMessageID: out.MessageID,
			Reason:        err.Error(),
		}); pubErr != nil {
			slog.ErrorContext(ctx, "Publishing nack failed", slog.Any("error", pubErr))
		}
		return &ClassifiedError{Disposition: parlayx.Classify(err), Err: err}
	}

	return b.publish(b.topics.Events, Event{
		Type:          EventAck,
		UserMessageID: out.MessageID,
		RemoteID:      requestID,
	})
}

// Run consumes outbound messages until ctx is cancelled. Temporary
// failures are returned to the bus for redelivery; permanent and
// unclassified failures are consumed, having already been nacked to the
// application.
func (b *Bridge) Run(ctx context.Context) error {
	msgs, err := b.subscriber.Subscribe(ctx, b.topics.Outbound)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.topics.Outbound, err)
	}
	slog.InfoContext(ctx, "Outbound loop started", slog.String("topic", b.topics.Outbound))

	for msg := range msgs {
		b.consume(ctx, msg)
	}
	slog.InfoContext(ctx, "Outbound loop stopped")
	return nil
}

func (b *Bridge) consume(ctx context.Context, msg *message.Message) {
	var out OutboundMessage
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		slog.ErrorContext(ctx, "Dropping undecodable outbound message",
			slog.String("uuid", msg.UUID), slog.Any("error", err))
		msg.Ack()
		return
	}

	err := b.HandleOutbound(ctx, out)
	if err == nil {
		msg.Ack()
		return
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) && ce.Disposition == parlayx.Temporary {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (b *Bridge) publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event for %s: %w", topic, err)
	}
	if err := b.publisher.Publish(topic, message.NewMessage(watermill.NewUUID(), data)); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}
