package message

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the three telemetry message kinds the queue accepts.
type Type string

const (
	TypeTrack    Type = "track"
	TypeIdentify Type = "identify"
	TypeAlias    Type = "alias"
)

// Message is the unit of telemetry buffered by the queue. Once constructed
// via New, a Message is immutable: storage holds it by value semantics and
// the queue never mutates a stored record in place.
type Message struct {
	ID            string
	Type          Type
	UserID        string
	AnonymousID   string
	Timestamp     time.Time
	APIVersion    string
	Event         string
	Properties    map[string]Primitive
	Traits        map[string]TraitUpdate
	Context       Context
}

// Params carries the producer-supplied fields used to build a Message. Raw
// property and trait values are validated and filtered by New; unsupported
// property types are silently dropped, matching the documented behavior.
type Params struct {
	ID          string
	Type        Type
	UserID      string
	AnonymousID string
	Timestamp   time.Time
	APIVersion  string
	Event       string
	Properties  map[string]any
	Traits      map[string]TraitUpdate
	Context     Context
}

// New constructs a Message from Params, generating an ID when the caller
// does not supply one and filtering out any property values whose runtime
// type does not map to a Primitive.
func New(p Params) Message {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	msg := Message{
		ID:          id,
		Type:        p.Type,
		UserID:      p.UserID,
		AnonymousID: p.AnonymousID,
		Timestamp:   ts,
		APIVersion:  p.APIVersion,
		Event:       p.Event,
		Traits:      p.Traits,
		Context:     p.Context,
	}
	if props := filterProperties(p.Properties); len(props) > 0 {
		msg.Properties = props
	}
	return msg
}

// filterProperties drops any value whose type does not correspond to a
// Primitive, so Properties is nil iff empty after filtering (spec section 3
// invariant).
func filterProperties(raw map[string]any) map[string]Primitive {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]Primitive, len(raw))
	for k, v := range raw {
		if prim, ok := FromAny(v); ok {
			out[k] = prim
		}
	}
	return out
}
