package handlers

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// decodeText returns b as a UTF-8 string and the name of the encoding used.
// Invalid UTF-8 is decoded as Windows-1252, or as ISO-8859-1 when the input
// uses bytes Windows-1252 leaves undefined.
func decodeText(b []byte) (string, string) {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b), "utf-8"
	}
	if out, err := charmap.Windows1252.NewDecoder().Bytes(b); err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
		return string(out), "windows-1252"
	}
	if out, err := charmap.ISO8859_1.NewDecoder().Bytes(b); err == nil {
		return string(out), "iso-8859-1"
	}
	return strings.ToValidUTF8(string(b), "�"), "utf-8"
}
