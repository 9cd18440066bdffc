// Package tlsascii implements the line-oriented ASCII protocol spoken by
// handheld RFID/barcode readers.
//
// Commands are written as
//
//	.<opcode> {-<flag> [<value>]} [~<correlation>~]<CR><LF>
//
// and the device answers with lines of the form <CC>:<payload>. A group of
// response lines is terminated by an OK: or ER:<n> line followed by a blank
// line. The device echoes the command it is answering in a CS: line, which is
// where the correlation suffix is recovered from.
package tlsascii
