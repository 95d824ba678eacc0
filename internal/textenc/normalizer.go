// Package textenc decodes catalog file payloads of unknown encoding into
// UTF-8. Pharmacy point-of-sale exports arrive in a mix of UTF-8,
// Windows-1251, KOI8-R, DOS (CP866) and ISO 8859-5, sometimes with a BOM.
package textenc

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// legacyEncodings is the fallback order tried when the payload is not
// valid UTF-8 and carries no BOM. Windows-1251 first: it is what the
// deployed POS systems actually emit.
var legacyEncodings = []encoding.Encoding{
	charmap.Windows1251,
	charmap.KOI8R,
	charmap.CodePage866,
	charmap.ISO8859_5,
}

// Normalize decodes raw into a best-effort UTF-8 string. It never fails:
// when no candidate encoding decodes cleanly the payload is decoded as
// UTF-8 with replacement runes, and the caller decides whether the loss
// matters.
func Normalize(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	if s, ok := fromBOM(raw); ok {
		return s
	}

	if utf8.Valid(raw) {
		return string(raw)
	}

	for _, enc := range legacyEncodings {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}

	// Lossy last resort: substitute undecodable bytes.
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

// NormalizeString applies Normalize to an already-decoded string, which may
// still carry mojibake from an earlier bad decode upstream.
func NormalizeString(s string) string {
	return Normalize([]byte(s))
}

func fromBOM(raw []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		body := raw[len(bomUTF8):]
		if utf8.Valid(body) {
			return string(body), true
		}
		return "", false
	case bytes.HasPrefix(raw, bomUTF16LE):
		return decodeUTF16(raw, unicode.LittleEndian)
	case bytes.HasPrefix(raw, bomUTF16BE):
		return decodeUTF16(raw, unicode.BigEndian)
	}
	return "", false
}

func decodeUTF16(raw []byte, order unicode.Endianness) (string, bool) {
	dec := unicode.UTF16(order, unicode.ExpectBOM).NewDecoder()
	decoded, _, err := transform.Bytes(dec, raw)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}
