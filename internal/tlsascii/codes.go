package tlsascii

// Response codes that carry special meaning.
const (
	CodeOK           = "OK"
	CodeError        = "ER"
	CodeRSSI         = "RI"
	CodeEPC          = "EP"
	CodeCommandEcho  = "CS"
	CodeMessage      = "ME"
	CodeTransponder  = "TD"
	CodeBarcode      = "BC"
	CodeSerialNumber = "US"
	CodeManufacturer = "MF"
	CodeProtocolVer  = "PV"
)

// ReturnOK is the return code of a frame terminated by OK:.
const ReturnOK = 0

// ReturnTimeout is the return code of a frame that carries no valid
// terminating line, including the empty frame produced when nothing came back
// from the device.
const ReturnTimeout = -1

// ReturnSystemError is the device code for an unclassified failure.
const ReturnSystemError = 255

var responseCodes = func() map[string]struct{} {
	codes := []string{
		"AB", "AC", "AE", "AS", "BA", "BC", "BP", "BR", "CH", "CR", "CS", "DA", "DP",
		"DT", "EA", "EB", "EP", "FN", "IA", "IX", "KS", "LB", "LE", "LL", "LK", "LS",
		"ME", "MF", "QT", "PC", "PR", "PV", "RB", "RD", "RF", "RS", "SP",
		"SR", "SW", "TD", "TM", "UB", "UF", "US", "WW", CodeOK, CodeError, CodeRSSI,
	}
	m := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}()

// IsResponseCode reports whether code belongs to the closed response vocabulary.
func IsResponseCode(code string) bool {
	_, ok := responseCodes[code]
	return ok
}

var opcodes = func() map[string]struct{} {
	ops := []string{
		"al", "ab", "bc", "bl", "bt", "da", "dp", "ea", "ec",
		"fd", "hc", "hd", "hs", "iv", "ki", "lk", "lo", "mt",
		"pd", "ps", "ra", "rd", "rl", "sa", "sl", "sp", "sr",
		"ss", "st", "tm", "ts", "vr", "wa", "wr", "ws",
	}
	m := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		m[op] = struct{}{}
	}
	return m
}()

// IsOpcode reports whether op is a command the reader understands.
func IsOpcode(op string) bool {
	_, ok := opcodes[op]
	return ok
}

// errorTexts maps device return codes to descriptions. It is built once and
// never mutated.
var errorTexts = map[int]string{
	ReturnTimeout:     "Timeout: no response from reader",
	0:                 "No Error",
	1:                 "Syntax Error",
	2:                 "Parameter not supported",
	3:                 "Action not enabled",
	4:                 "Command not supported by hardware",
	5:                 "No transponder found",
	6:                 "No Barcode found",
	7:                 "Parameter configuration invalid",
	8:                 "Antenna/Radio Error (Wrong region of Antenna/Radio not fitted)",
	9:                 "Battery level too low",
	10:                "Scanner not ready",
	11:                "Command not supported on interface",
	12:                "Command not supported from Autorun file",
	13:                "Write Failure",
	14:                "Switch already in use",
	15:                "Command Aborted",
	16:                "Lock Failure",
	17:                "Bluetooth Error",
	18:                "Licence Key is not Blank",
	ReturnSystemError: "System Error",
}

// ErrorText returns a human-readable description of a return code. Unknown
// codes are reported as unclassified rather than failing.
func ErrorText(code int) string {
	if s, ok := errorTexts[code]; ok {
		return s
	}
	return "Unknown error code"
}
