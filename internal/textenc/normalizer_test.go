package textenc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

func encodeWith(t *testing.T, enc *charmap.Charmap, s string) []byte {
	t.Helper()
	out, _, err := transform.Bytes(enc.NewEncoder(), []byte(s))
	require.NoError(t, err)
	return out
}

func TestNormalizeUTF8Passthrough(t *testing.T) {
	in := "Парацетамол;Акме;Польша"
	require.Equal(t, in, Normalize([]byte(in)))
}

func TestNormalizeStripsUTF8BOM(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Аспирин;таб")...)
	require.Equal(t, "Аспирин;таб", Normalize(in))
}

func TestNormalizeWindows1251(t *testing.T) {
	raw := encodeWith(t, charmap.Windows1251, "Лексредства;Курск")
	require.Equal(t, "Лексредства;Курск", Normalize(raw))
}

func TestNormalizeUTF16LE(t *testing.T) {
	// "Аб" little-endian with BOM.
	raw := []byte{0xFF, 0xFE, 0x10, 0x04, 0x31, 0x04}
	require.Equal(t, "Аб", Normalize(raw))
}

func TestNormalizeNeverFails(t *testing.T) {
	// Byte soup that no candidate decodes into valid text is still
	// returned, lossily, rather than erroring.
	raw := []byte{0xFF, 0xFF, 0xFF, 0x3B, 0x41}
	out := Normalize(raw)
	require.NotEmpty(t, out)
	require.True(t, strings.ContainsRune(out, 'A'))
}

func TestNormalizeEmpty(t *testing.T) {
	require.Equal(t, "", Normalize(nil))
}
