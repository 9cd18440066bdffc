package tlsascii

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_RoundTrip(t *testing.T) {
	for code := range responseCodes {
		for _, payload := range []string{"", "-64", "No barcode found", "3000E2001234", ".iv -x", " padded ", "trailing  "} {
			raw := code + ":" + payload
			line, ok := ParseLine(raw + "\r\n")
			require.True(t, ok, "line %q rejected", raw)
			assert.Equal(t, code, line.Code)
			assert.Equal(t, payload, line.Payload)
			assert.Equal(t, raw, line.String())
		}
	}
}

func TestParseLine_Malformed(t *testing.T) {
	for _, raw := range []string{"", "OK", "ZZ:foo", "OK-", "ok:", "RI -64", "  OK:"} {
		_, ok := ParseLine(raw)
		assert.False(t, ok, "line %q accepted", raw)
	}
}

func TestFrame_ReturnCode(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  int
	}{
		{"empty", nil, ReturnTimeout},
		{"ok", Frame{{CodeCommandEcho, ".iv"}, {CodeOK, ""}}, ReturnOK},
		{"error six", Frame{{CodeCommandEcho, ".bc"}, {CodeMessage, "No barcode found"}, {CodeError, "006"}}, 6},
		{"system error", Frame{{CodeError, "255"}}, ReturnSystemError},
		{"garbled error", Frame{{CodeError, "abc"}}, ReturnTimeout},
		{"no terminal", Frame{{CodeEPC, "AA"}, {CodeRSSI, "-64"}}, ReturnTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.frame.ReturnCode())
		})
	}
}

func TestFrame_Lookup(t *testing.T) {
	f := Frame{{"CS", ".iv"}, {"EP", "AA"}, {"RI", "-64"}, {"EP", "BB"}, {"RI", "-55"}, {"OK", ""}}
	if diff := cmp.Diff([]string{"AA", "BB"}, f.Lookup(CodeEPC)); diff != "" {
		t.Errorf("Lookup(EP) mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, f.Lookup("TD"))
	assert.Equal(t, []string{"CS:.iv", "EP:AA", "RI:-64", "EP:BB", "RI:-55", "OK:"}, f.Lines())
}

func TestFrameBuilder(t *testing.T) {
	var b FrameBuilder
	for _, raw := range []string{"CS:.bc", "garbage line", "ME:No barcode found", ""} {
		assert.False(t, b.Add(raw), "frame completed early at %q", raw)
	}
	assert.False(t, b.Add("ER:006"))
	assert.True(t, b.Add(""))
	assert.True(t, b.Done())

	f := b.Frame()
	require.Len(t, f, 3)
	assert.Equal(t, 6, f.ReturnCode())

	b.Reset()
	assert.False(t, b.Done())
	assert.True(t, b.Frame().Empty())
}

func TestFrame_CorrelationMap(t *testing.T) {
	suffix, err := FrameCorrelation(NewCorrelation(42, "radar-sample"))
	require.NoError(t, err)

	f := Frame{{CodeCommandEcho, ".iv " + suffix}, {CodeOK, ""}}
	c, ok := f.CorrelationMap()
	require.True(t, ok)
	seq, ok := c.Seq()
	require.True(t, ok)
	assert.Equal(t, uint64(42), seq)
	assert.Equal(t, "radar-sample", c.Comment())

	// no sentinels is not an error
	_, ok = Frame{{CodeCommandEcho, ".iv -x"}, {CodeOK, ""}}.CorrelationMap()
	assert.False(t, ok)

	// garbage between sentinels is reported as absent
	_, ok = Frame{{CodeCommandEcho, ".iv ~!!!~"}, {CodeOK, ""}}.CorrelationMap()
	assert.False(t, ok)

	_, ok = Frame(nil).CorrelationMap()
	assert.False(t, ok)
}
