package events

// RadarTag is one entry of a RADAR_DATA payload.
type RadarTag struct {
	EPC      string  `json:"epc"`
	RSSI     float64 `json:"rssi"`
	Distance float64 `json:"distance"`
}

// StatusReport is the payload of RF_STATUS.
type StatusReport struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

// ReaderState is reported to the client when device presence changes.
type ReaderState struct {
	Present bool   `json:"present"`
	ID      string `json:"id"`
}

// RadarModeRequest switches radar mode on or off. An empty EPC with On set
// ranges on every tag in the field.
type RadarModeRequest struct {
	On  bool   `json:"on"`
	EPC string `json:"epc,omitempty"`
}

// GenericCommand carries a raw reader command line from the client.
type GenericCommand struct {
	Command string `json:"command"`
	Comment string `json:"comment,omitempty"`
}

// Credentials is the LOGIN_TRY payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the LOGIN_RES payload.
type LoginResult struct {
	OK       bool   `json:"ok"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

// StockInfoRequest asks for stock info, optionally refreshing from the
// remote inventory first.
type StockInfoRequest struct {
	Refresh bool `json:"refresh"`
}

// StockInfo is the STOCK_INFO_RESP payload.
type StockInfo struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Items   any    `json:"items,omitempty"`
}

// LocationItem is one observed item at a location.
type LocationItem struct {
	ItemID string `json:"item_id"`
	Opcode string `json:"opcode"`
}

// LocationObservation is the SET_STOCK_LOCATION payload.
type LocationObservation struct {
	LocationID string         `json:"location_id"`
	Items      []LocationItem `json:"items"`
}

// LocMutRequest asks for the location-change summary. Hash is the client's
// last known summary hash and may be empty.
type LocMutRequest struct {
	Hash string `json:"hash"`
}

// LocMutResult is the LOCMUT_RESP payload. Data is nil when the client's
// hash matched.
type LocMutResult struct {
	Hash    string `json:"hash"`
	Changed bool   `json:"changed"`
	Data    any    `json:"data,omitempty"`
}
