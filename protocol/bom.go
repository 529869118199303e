package protocol

import (
	"bytes"
	"unicode/utf16"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// stripBOM removes a leading UTF-8 or UTF-16 byte-order mark from raw
// manifest bytes and, for UTF-16, transcodes the remainder to UTF-8.
// Manifest files dropped onto disk by Windows-authored tooling carry
// these marks; gopkg.in/yaml.v3 chokes on them otherwise.
func stripBOM(raw []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, utf8BOM):
		return raw[len(utf8BOM):], nil
	case bytes.HasPrefix(raw, utf16LEBOM):
		return utf16ToUTF8(raw[len(utf16LEBOM):], false)
	case bytes.HasPrefix(raw, utf16BEBOM):
		return utf16ToUTF8(raw[len(utf16BEBOM):], true)
	default:
		return raw, nil
	}
}

func utf16ToUTF8(raw []byte, bigEndian bool) ([]byte, error) {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		if bigEndian {
			units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
		} else {
			units = append(units, uint16(raw[i+1])<<8|uint16(raw[i]))
		}
	}
	runes := utf16.Decode(units)
	return []byte(string(runes)), nil
}
