package message

import (
	json "github.com/goccy/go-json"

	"github.com/revflow-dev/queue/errs"
)

// EncodeProperties renders Properties as JSON text for storage, returning
// nil (not "null") when there are no properties, matching the nil-iff-empty
// invariant all the way down to the persisted row.
func EncodeProperties(props map[string]Primitive) ([]byte, error) {
	if len(props) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, errs.Serialization("encode properties", err)
	}
	return data, nil
}

// DecodeProperties parses previously stored JSON text back into a
// Properties map. Empty input decodes to a nil map.
func DecodeProperties(data []byte) (map[string]Primitive, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]Primitive
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errs.Serialization("decode properties", err)
	}
	return out, nil
}

// EncodeTraits renders Traits as JSON text for storage.
func EncodeTraits(traits map[string]TraitUpdate) ([]byte, error) {
	if len(traits) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(traits)
	if err != nil {
		return nil, errs.Serialization("encode traits", err)
	}
	return data, nil
}

// DecodeTraits parses previously stored JSON text back into a Traits map.
func DecodeTraits(data []byte) (map[string]TraitUpdate, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]TraitUpdate
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errs.Serialization("decode traits", err)
	}
	return out, nil
}

// EncodeContext renders Context as JSON text for storage. Context is
// required, so this always returns non-nil.
func EncodeContext(ctx Context) ([]byte, error) {
	data, err := json.Marshal(ctx)
	if err != nil {
		return nil, errs.Serialization("encode context", err)
	}
	return data, nil
}

// DecodeContext parses previously stored JSON text back into a Context.
func DecodeContext(data []byte) (Context, error) {
	var out Context
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return Context{}, errs.Serialization("decode context", err)
	}
	return out, nil
}
