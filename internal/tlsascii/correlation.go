package tlsascii

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Sentinel delimits the correlation value inside a command line.
const Sentinel = '~'

// Correlation keys.
const (
	KeySeq     = "seq"
	KeyComment = "cmt"
)

// Correlation is the small map embedded in an outgoing command and echoed
// back by the device, letting the issuer match a reply to its request.
type Correlation map[string]string

// NewCorrelation builds the correlation for a sequence number and caller tag.
func NewCorrelation(seq uint64, comment string) Correlation {
	c := Correlation{KeySeq: strconv.FormatUint(seq, 10)}
	if comment != "" {
		c[KeyComment] = comment
	}
	return c
}

// Seq returns the sequence number, if present and well formed.
func (c Correlation) Seq() (uint64, bool) {
	s, ok := c[KeySeq]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

// Comment returns the caller tag, or "" when none was given.
func (c Correlation) Comment() string {
	return c[KeyComment]
}

var (
	corrEnc cbor.EncMode
	corrDec cbor.DecMode
)

func init() {
	var err error
	corrEnc, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}
	corrDec, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// EncodeCorrelation serializes c into the unframed suffix value. The result
// uses the base64url alphabet, so it holds neither whitespace nor Sentinel.
func EncodeCorrelation(c Correlation) (string, error) {
	data, err := corrEnc.Marshal(map[string]string(c))
	if err != nil {
		return "", fmt.Errorf("encode correlation: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCorrelation is the inverse of EncodeCorrelation.
func DecodeCorrelation(s string) (Correlation, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode correlation: %w", err)
	}
	var m map[string]string
	if err := corrDec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode correlation: %w", err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return Correlation(m), nil
}

// FrameCorrelation returns the suffix as written on the wire: the encoded
// value between two sentinels.
func FrameCorrelation(c Correlation) (string, error) {
	enc, err := EncodeCorrelation(c)
	if err != nil {
		return "", err
	}
	return string(Sentinel) + enc + string(Sentinel), nil
}

// extractFramed returns the text between the first two sentinels in s.
func extractFramed(s string) (string, bool) {
	start := strings.IndexRune(s, Sentinel)
	if start < 0 {
		return "", false
	}
	end := strings.IndexRune(s[start+1:], Sentinel)
	if end < 0 {
		return "", false
	}
	return s[start+1 : start+1+end], true
}
