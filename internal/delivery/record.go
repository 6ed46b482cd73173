package delivery

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/revflow-dev/queue/errs"
	"github.com/revflow-dev/queue/internal/domain/message"
)

// storedMessage is the persistable projection of message.Message used
// inside a job's Params, distinct from wireMessage since it must round-trip
// exactly (no sentAt, no wire-only nullability rules) across a scheduler
// restore.
type storedMessage struct {
	ID          string                          `json:"id"`
	Type        message.Type                    `json:"type"`
	UserID      string                          `json:"userId,omitempty"`
	AnonymousID string                          `json:"anonymousId,omitempty"`
	Timestamp   time.Time                       `json:"timestamp"`
	APIVersion  string                          `json:"apiVersion"`
	Event       string                          `json:"event,omitempty"`
	Properties  map[string]message.Primitive    `json:"properties,omitempty"`
	Traits      map[string]message.TraitUpdate  `json:"traits,omitempty"`
	Context     message.Context                 `json:"context"`
}

func toStoredMessage(msg message.Message) storedMessage {
	return storedMessage{
		ID:          msg.ID,
		Type:        msg.Type,
		UserID:      msg.UserID,
		AnonymousID: msg.AnonymousID,
		Timestamp:   msg.Timestamp,
		APIVersion:  msg.APIVersion,
		Event:       msg.Event,
		Properties:  msg.Properties,
		Traits:      msg.Traits,
		Context:     msg.Context,
	}
}

func (s storedMessage) toMessage() message.Message {
	return message.New(message.Params{
		ID:          s.ID,
		Type:        s.Type,
		UserID:      s.UserID,
		AnonymousID: s.AnonymousID,
		Timestamp:   s.Timestamp,
		APIVersion:  s.APIVersion,
		Event:       s.Event,
		Traits:      s.Traits,
		Context:     s.Context,
		Properties:  primitivesToAny(s.Properties),
	})
}

// primitivesToAny widens an already-validated Properties map back to the
// any-typed shape message.New expects, so restored jobs go through the
// same construction path as freshly emitted ones.
func primitivesToAny(props map[string]message.Primitive) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch v.Kind() {
		case message.KindInt:
			iv, _ := v.Int()
			out[k] = iv
		case message.KindDouble:
			dv, _ := v.Double()
			out[k] = dv
		case message.KindString:
			sv, _ := v.String()
			out[k] = sv
		case message.KindBool:
			bv, _ := v.Bool()
			out[k] = bv
		}
	}
	return out
}

const batchParamKey = "messages"

// encodeBatchParam renders batch as the single Params entry a sendBatchJob
// needs, ready to survive a JSON round trip through jobscheduler.Record.
func encodeBatchParam(batch []message.Message) (map[string]any, error) {
	stored := make([]storedMessage, len(batch))
	for i, msg := range batch {
		stored[i] = toStoredMessage(msg)
	}
	blob, err := json.Marshal(stored)
	if err != nil {
		return nil, errs.Serialization("delivery: encode batch params", err)
	}
	return map[string]any{batchParamKey: string(blob)}, nil
}

func decodeBatchParam(params map[string]any) ([]message.Message, error) {
	raw, ok := params[batchParamKey]
	if !ok {
		return nil, errs.Serialization("delivery: missing batch params", nil)
	}
	text, ok := raw.(string)
	if !ok {
		return nil, errs.Serialization("delivery: batch params not a string", nil)
	}
	var stored []storedMessage
	if err := json.Unmarshal([]byte(text), &stored); err != nil {
		return nil, errs.Serialization("delivery: decode batch params", err)
	}
	out := make([]message.Message, len(stored))
	for i, s := range stored {
		out[i] = s.toMessage()
	}
	return out, nil
}
