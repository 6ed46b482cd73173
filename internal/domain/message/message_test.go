package message_test

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/revflow-dev/queue/internal/domain/message"
)

func TestNewGeneratesIDAndTimestampWhenAbsent(t *testing.T) {
	msg := message.New(message.Params{Type: message.TypeTrack, Event: "signed_up"})

	require.NotEmpty(t, msg.ID)
	require.False(t, msg.Timestamp.IsZero())
	require.Equal(t, message.TypeTrack, msg.Type)
}

func TestNewPreservesCallerSuppliedIDAndTimestamp(t *testing.T) {
	ts := message.New(message.Params{ID: "explicit-id"}).Timestamp
	msg := message.New(message.Params{ID: "explicit-id", Timestamp: ts})

	require.Equal(t, "explicit-id", msg.ID)
	require.Equal(t, ts, msg.Timestamp)
}

func TestNewFiltersUnsupportedPropertyTypes(t *testing.T) {
	msg := message.New(message.Params{
		Type: message.TypeTrack,
		Properties: map[string]any{
			"plan":       "pro",
			"seats":      int64(5),
			"discount":   0.15,
			"active":     true,
			"unsupported": []string{"a", "b"},
		},
	})

	require.Len(t, msg.Properties, 4)
	require.Contains(t, msg.Properties, "plan")
	require.Contains(t, msg.Properties, "seats")
	require.Contains(t, msg.Properties, "discount")
	require.Contains(t, msg.Properties, "active")
	require.NotContains(t, msg.Properties, "unsupported")
}

func TestNewLeavesPropertiesNilWhenAllFiltered(t *testing.T) {
	msg := message.New(message.Params{
		Type:       message.TypeTrack,
		Properties: map[string]any{"unsupported": []int{1, 2}},
	})

	require.Nil(t, msg.Properties)
}

func TestNewLeavesPropertiesNilWhenEmpty(t *testing.T) {
	msg := message.New(message.Params{Type: message.TypeTrack})
	require.Nil(t, msg.Properties)
}

func TestPrimitiveRoundTripsThroughJSON(t *testing.T) {
	cases := []message.Primitive{
		message.NewInt(42),
		message.NewDouble(decimal.NewFromFloat(3.14)),
		message.NewString("hello"),
		message.NewBool(true),
	}

	for _, want := range cases {
		data, err := json.Marshal(want)
		require.NoError(t, err)

		var got message.Primitive
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, want.Kind(), got.Kind())
	}
}

func TestPrimitiveUnmarshalDistinguishesIntFromDouble(t *testing.T) {
	var whole message.Primitive
	require.NoError(t, json.Unmarshal([]byte(`5`), &whole))
	_, isInt := whole.Int()
	require.True(t, isInt)

	var fractional message.Primitive
	require.NoError(t, json.Unmarshal([]byte(`5.5`), &fractional))
	_, isDouble := fractional.Double()
	require.True(t, isDouble)
}

func TestFromAnyRejectsUnsupportedType(t *testing.T) {
	_, ok := message.FromAny(struct{}{})
	require.False(t, ok)
}

func TestEncodeDecodePropertiesRoundTrips(t *testing.T) {
	props := map[string]message.Primitive{
		"plan":  message.NewString("pro"),
		"seats": message.NewInt(3),
	}

	data, err := message.EncodeProperties(props)
	require.NoError(t, err)
	require.NotNil(t, data)

	decoded, err := message.DecodeProperties(data)
	require.NoError(t, err)
	require.Equal(t, props, decoded)
}

func TestEncodePropertiesReturnsNilForEmptyMap(t *testing.T) {
	data, err := message.EncodeProperties(nil)
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestNewTraitUpdateRejectsUnknownOp(t *testing.T) {
	_, ok := message.NewTraitUpdate("unknown", message.NewInt(1))
	require.False(t, ok)
}

func TestNewTraitUpdateAcceptsKnownOp(t *testing.T) {
	update, ok := message.NewTraitUpdate(message.OpInc, message.NewInt(1))
	require.True(t, ok)
	require.Equal(t, message.OpInc, update.Op)
}

func TestEncodeDecodeTraitsRoundTrips(t *testing.T) {
	traits := map[string]message.TraitUpdate{
		"login_count": {Op: message.OpInc, Value: message.NewInt(1)},
	}

	data, err := message.EncodeTraits(traits)
	require.NoError(t, err)

	decoded, err := message.DecodeTraits(data)
	require.NoError(t, err)
	require.Equal(t, traits, decoded)
}

func TestDecodeContextEmptyInputReturnsZeroValue(t *testing.T) {
	ctx, err := message.DecodeContext(nil)
	require.NoError(t, err)
	require.Equal(t, message.Context{}, ctx)
}
