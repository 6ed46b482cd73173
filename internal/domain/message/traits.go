package message

// TraitOp enumerates the supported trait update operations. Unknown
// operators are rejected by NewTraitUpdate, mirroring the way FromAny
// silently drops unsupported property value types.
type TraitOp string

const (
	OpSet           TraitOp = "set"
	OpSetOnce       TraitOp = "setOnce"
	OpSetOnInsert   TraitOp = "setOnInsert"
	OpUnset         TraitOp = "unset"
	OpRename        TraitOp = "rename"
	OpCurrentDate   TraitOp = "currentDate"
	OpInc           TraitOp = "inc"
	OpMul           TraitOp = "mul"
	OpMin           TraitOp = "min"
	OpMax           TraitOp = "max"
	OpAdd           TraitOp = "add"
)

var validTraitOps = map[TraitOp]struct{}{
	OpSet: {}, OpSetOnce: {}, OpSetOnInsert: {}, OpUnset: {}, OpRename: {},
	OpCurrentDate: {}, OpInc: {}, OpMul: {}, OpMin: {}, OpMax: {}, OpAdd: {},
}

// TraitUpdate describes a single mutation to apply to a user trait.
type TraitUpdate struct {
	Op    TraitOp   `json:"op"`
	Value Primitive `json:"value,omitempty"`
}

// NewTraitUpdate validates op before constructing a TraitUpdate. ok is false
// for any operator outside the documented set.
func NewTraitUpdate(op TraitOp, value Primitive) (TraitUpdate, bool) {
	if _, known := validTraitOps[op]; !known {
		return TraitUpdate{}, false
	}
	return TraitUpdate{Op: op, Value: value}, true
}
