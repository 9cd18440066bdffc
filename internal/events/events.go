// Package events defines the messages exchanged between the reader, the
// server and the remote client. Every event kind belongs to exactly one
// origin and that is checked when an event is constructed or decoded.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/stocky-devel/stocky/internal/monitoring"
)

// VocabularyVersion is bumped whenever a kind is added, removed or its
// payload changes shape. It is reported to clients in SRV_CONFIG_DATA.
const VocabularyVersion = 1

// Kind names an event type on the wire.
type Kind string

// Origin is the producer category of an event kind.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginServer
	OriginClient
	OriginReader
)

func (o Origin) String() string {
	switch o {
	case OriginServer:
		return "server"
	case OriginClient:
		return "client"
	case OriginReader:
		return "reader"
	}
	return "unknown"
}

// Server-emitted kinds.
const (
	KindTimerTick      Kind = "TIMER_TICK"
	KindDevicePresence Kind = "USB_STATE"
	KindReaderState    Kind = "RFID_STATREP"
	KindActivity       Kind = "RFID_ACTIVITY"
	KindLoginResult    Kind = "LOGIN_RES"
	KindLogoutResult   Kind = "LOGOUT_RES"
	KindStockInfo      Kind = "STOCK_INFO_RESP"
	KindLocMutResult   Kind = "LOCMUT_RESP"
	KindConfigData     Kind = "SRV_CONFIG_DATA"
	KindEndSession     Kind = "END_SESSION"
)

// Client-emitted kinds.
const (
	KindRadarMode      Kind = "RADAR_MODE"
	KindStockMode      Kind = "STOCK_MODE"
	KindLoginTry       Kind = "LOGIN_TRY"
	KindLogoutTry      Kind = "LOGOUT_TRY"
	KindStockInfoReq   Kind = "STOCK_INFO_REQ"
	KindSetLocation    Kind = "SET_STOCK_LOCATION"
	KindLocMutRequest  Kind = "LOCMUT_REQ"
	KindConfigRequest  Kind = "CONFIG_REQUEST"
	KindGenericCommand Kind = "RFID_GENERIC_CMD"
)

// Reader-emitted kinds.
const (
	KindRadarData       Kind = "RADAR_DATA"
	KindCommandResponse Kind = "RF_CMD_RESP"
	KindStatusReport    Kind = "RF_STATUS"
)

var origins = map[Kind]Origin{
	KindTimerTick:      OriginServer,
	KindDevicePresence: OriginServer,
	KindReaderState:    OriginServer,
	KindActivity:       OriginServer,
	KindLoginResult:    OriginServer,
	KindLogoutResult:   OriginServer,
	KindStockInfo:      OriginServer,
	KindLocMutResult:   OriginServer,
	KindConfigData:     OriginServer,
	KindEndSession:     OriginServer,

	KindRadarMode:      OriginClient,
	KindStockMode:      OriginClient,
	KindLoginTry:       OriginClient,
	KindLogoutTry:      OriginClient,
	KindStockInfoReq:   OriginClient,
	KindSetLocation:    OriginClient,
	KindLocMutRequest:  OriginClient,
	KindConfigRequest:  OriginClient,
	KindGenericCommand: OriginClient,

	KindRadarData:       OriginReader,
	KindCommandResponse: OriginReader,
	KindStatusReport:    OriginReader,
}

// OriginOf returns the origin of k, or OriginUnknown if k is not in the
// vocabulary.
func OriginOf(k Kind) Origin {
	return origins[k]
}

// Kinds returns the whole vocabulary in lexical order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(origins))
	for k := range origins {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	ErrUnknownKind  = errors.New("unknown event kind")
	ErrMissingField = errors.New("missing required field")
)

// Event is a tagged message. Data holds a Go value when the event was built
// in-process and the generic JSON decoding when it came from a client; use
// As to read it either way.
type Event struct {
	Kind Kind `json:"kind"`
	Data any  `json:"data"`
}

// New builds an event, rejecting kinds outside the vocabulary.
func New(kind Kind, data any) (Event, error) {
	if OriginOf(kind) == OriginUnknown {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return Event{Kind: kind, Data: data}, nil
}

// Must is New for kinds known at compile time.
func Must(kind Kind, data any) Event {
	ev, err := New(kind, data)
	if err != nil {
		panic(err)
	}
	return ev
}

// Origin returns the origin category of the event's kind.
func (e Event) Origin() Origin {
	return OriginOf(e.Kind)
}

// Decode parses a client payload. Both "kind" and "data" must be present and
// the kind must be in the vocabulary; unexpected extra fields are tolerated
// with a warning.
func Decode(payload []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Event{}, err
	}
	rawKind, ok := fields["kind"]
	if !ok {
		return Event{}, fmt.Errorf("%w: kind", ErrMissingField)
	}
	rawData, ok := fields["data"]
	if !ok {
		return Event{}, fmt.Errorf("%w: data", ErrMissingField)
	}
	for name := range fields {
		if name != "kind" && name != "data" {
			monitoring.Warnf("event payload has unexpected field %q", name)
		}
	}

	var kind Kind
	if err := json.Unmarshal(rawKind, &kind); err != nil {
		return Event{}, fmt.Errorf("kind: %w", err)
	}
	var data any
	if err := json.Unmarshal(rawData, &data); err != nil {
		return Event{}, fmt.Errorf("data: %w", err)
	}
	return New(kind, data)
}

// As converts the event's data into T. Values built in-process are returned
// directly; decoded JSON is re-marshalled into T.
func As[T any](e Event) (T, error) {
	var out T
	if v, ok := e.Data.(T); ok {
		return v, nil
	}
	if e.Data == nil {
		return out, nil
	}
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return out, fmt.Errorf("%s payload: %w", e.Kind, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%s payload: %w", e.Kind, err)
	}
	return out, nil
}
