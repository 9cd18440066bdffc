package events

import (
	"encoding/json"
	"testing"

	"github.com/stocky-devel/stocky/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginsAreDisjointAndComplete(t *testing.T) {
	counts := map[Origin]int{}
	for _, k := range Kinds() {
		o := OriginOf(k)
		require.NotEqual(t, OriginUnknown, o, k)
		counts[o]++
	}
	assert.Equal(t, 10, counts[OriginServer])
	assert.Equal(t, 9, counts[OriginClient])
	assert.Equal(t, 3, counts[OriginReader])
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	_, err := New("NOT_A_KIND", nil)
	assert.ErrorIs(t, err, ErrUnknownKind)

	ev, err := New(KindRadarData, []RadarTag{{EPC: "AA"}})
	require.NoError(t, err)
	assert.Equal(t, OriginReader, ev.Origin())

	assert.Panics(t, func() { Must("nope", nil) })
}

func TestEvent_JSONShape(t *testing.T) {
	ev := Must(KindActivity, true)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"RFID_ACTIVITY","data":true}`, string(raw))
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"RADAR_MODE","data":{"on":true,"epc":"3000AB"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindRadarMode, ev.Kind)
	assert.Equal(t, OriginClient, ev.Origin())

	req, err := As[RadarModeRequest](ev)
	require.NoError(t, err)
	assert.Equal(t, RadarModeRequest{On: true, EPC: "3000AB"}, req)
}

func TestDecode_NullDataIsPresent(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"LOGOUT_TRY","data":null}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Data)
}

func TestDecode_Violations(t *testing.T) {
	cases := map[string]error{
		`{"data":1}`:                   ErrMissingField,
		`{"kind":"RADAR_MODE"}`:        ErrMissingField,
		`{"kind":"BOGUS","data":null}`: ErrUnknownKind,
	}
	for in, want := range cases {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, want, in)
	}

	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"kind":5,"data":null}`))
	assert.Error(t, err)
}

func TestDecode_ExtraFieldsWarn(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	ev, err := Decode([]byte(`{"kind":"CONFIG_REQUEST","data":null,"ts":12}`))
	require.NoError(t, err)
	assert.Equal(t, KindConfigRequest, ev.Kind)
	assert.True(t, logs.Contains(`unexpected field "ts"`))
}

func TestAs_DirectValue(t *testing.T) {
	in := GenericCommand{Command: ".vr"}
	got, err := As[GenericCommand](Must(KindGenericCommand, in))
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = As[GenericCommand](Event{Kind: KindGenericCommand, Data: "not an object"})
	assert.Error(t, err)

	b, err := As[bool](Event{Kind: KindStockMode, Data: nil})
	require.NoError(t, err)
	assert.False(t, b)
}
