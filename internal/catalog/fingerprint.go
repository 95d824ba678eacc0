package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// fingerprintDateLayout fixes the expiry serialization so the hash does not
// depend on locale or process state.
const fingerprintDateLayout = "2006-01-02"

// Fingerprint derives the stable identity hash of a product from its six
// identity fields. Both the parser and the repository compute it the same
// way, so a record round-tripped through storage keeps its fingerprint.
// Collisions between genuinely distinct products are an accepted risk.
func Fingerprint(name, form, serial string, expiry time.Time, manufacturer, country string) string {
	parts := []string{
		name,
		form,
		serial,
		expiry.Format(fingerprintDateLayout),
		manufacturer,
		country,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// RecordFingerprint computes the fingerprint of a parsed record.
func RecordFingerprint(r ProductRecord) string {
	return Fingerprint(r.Name, r.Form, r.Serial, r.ExpiryDate, r.Manufacturer, r.Country)
}
