package tlsascii

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	cmd := NewCommand("sr", Param{"s", "eu"})
	assert.Equal(t, ".sr -s eu\r\n", Encode(cmd, ""))
	assert.Equal(t, ".sr -s eu ~oA~\r\n", Encode(cmd, "~oA~"))

	bare := NewCommand("iv", Param{Flag: "x"}, Param{Flag: "n"})
	assert.Equal(t, ".iv -x -n", bare.String())
}

func TestCommand_Validate(t *testing.T) {
	assert.NoError(t, NewCommand("iv").Validate())
	assert.True(t, errors.Is(NewCommand("zz").Validate(), ErrUnknownOpcode))
	assert.True(t, errors.Is(NewCommand("iv", Param{Flag: ""}).Validate(), ErrBadParameter))
	assert.True(t, errors.Is(NewCommand("iv", Param{"sd", "a~b"}).Validate(), ErrBadParameter))
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(".iv -x -n -r on -sd 3000E2")
	require.NoError(t, err)
	assert.Equal(t, "iv", cmd.Opcode)
	assert.Equal(t, []Param{{Flag: "x"}, {Flag: "n"}, {"r", "on"}, {"sd", "3000E2"}}, cmd.Params)

	for _, bad := range []string{"", "iv -x", ".zz", ".iv x", ".iv -"} {
		_, err := ParseCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestAlertParams(t *testing.T) {
	cmd := AlertParams{Buzzer: true, Duration: BuzzLong, Tone: ToneHigh}.Command()
	assert.Equal(t, ".al -b on -v off -d lon -t hig", cmd.String())
	assert.Equal(t, ".al -b off -v off -d sho -t med", AlertParams{}.Command().String())
}

func TestBarcodeParams(t *testing.T) {
	cmd, err := BarcodeParams{Alert: true, ReadSeconds: 3}.Command()
	require.NoError(t, err)
	assert.Equal(t, ".bc -al on -dt off -t 3", cmd.String())

	_, err = BarcodeParams{ReadSeconds: 0}.Command()
	assert.Error(t, err)
	_, err = BarcodeParams{ReadSeconds: 10}.Command()
	assert.Error(t, err)
}

func TestInventoryOptions_Order(t *testing.T) {
	cmd, err := InventoryOptions{"n": "", "sd": "ABCD", "x": "", "r": "on"}.Command()
	require.NoError(t, err)
	assert.Equal(t, ".iv -x -r on -sd ABCD -n", cmd.String())

	_, err = InventoryOptions{"bogus": "1"}.Command()
	assert.ErrorIs(t, err, ErrBadParameter)
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "No Barcode found", ErrorText(6))
	assert.Equal(t, "System Error", ErrorText(ReturnSystemError))
	assert.Contains(t, ErrorText(ReturnTimeout), "Timeout")
	assert.Equal(t, "Unknown error code", ErrorText(99))
}
