package delivery

import (
	"time"

	"github.com/revflow-dev/queue/internal/domain/message"
)

const wireTimestampLayout = "2006-01-02T15:04:05.000Z"

// wireMessage is the over-the-wire JSON projection of message.Message, with
// sentAt stamped by the delivery job immediately before send. Field names
// and nullability follow the batch body documented for the delivery
// endpoint: userId is present but null rather than omitted when unset.
type wireMessage struct {
	ID          string                         `json:"id"`
	Type        message.Type                   `json:"type"`
	UserID      *string                        `json:"userId"`
	AnonymousID *string                        `json:"anonymousId"`
	Timestamp   string                         `json:"timestamp"`
	APIVersion  string                         `json:"apiVersion"`
	Event       string                         `json:"event,omitempty"`
	Properties  map[string]message.Primitive   `json:"properties"`
	Traits      map[string]message.TraitUpdate `json:"traits"`
	Context     message.Context                `json:"context"`
	SentAt      string                         `json:"sentAt"`
}

type wireBatch struct {
	Batch []wireMessage `json:"batch"`
}

func toWireMessage(msg message.Message, sentAt time.Time) wireMessage {
	w := wireMessage{
		ID:         msg.ID,
		Type:       msg.Type,
		Timestamp:  msg.Timestamp.UTC().Format(wireTimestampLayout),
		APIVersion: msg.APIVersion,
		Event:      msg.Event,
		Properties: msg.Properties,
		Traits:     msg.Traits,
		Context:    msg.Context,
		SentAt:     sentAt.UTC().Format(wireTimestampLayout),
	}
	if msg.UserID != "" {
		userID := msg.UserID
		w.UserID = &userID
	}
	if msg.AnonymousID != "" {
		anonID := msg.AnonymousID
		w.AnonymousID = &anonID
	}
	return w
}

func toWireBatch(batch []message.Message, sentAt time.Time) wireBatch {
	out := wireBatch{Batch: make([]wireMessage, len(batch))}
	for i, msg := range batch {
		out.Batch[i] = toWireMessage(msg, sentAt)
	}
	return out
}
