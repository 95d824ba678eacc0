// Package pharmacy resolves upload credentials (chain name + pharmacy
// number) to the catalog-owning pharmacy row, creating it on first sight.
package pharmacy

import (
	"errors"
	"strings"
	"time"
)

// ErrUnknownChain rejects a run before parsing: there is no safe default
// pharmacy to attribute records to.
var ErrUnknownChain = errors.New("pharmacy: unknown chain identifier")

// Pharmacy is one physical pharmacy owning a product catalog.
type Pharmacy struct {
	ID        int64
	Name      string
	Number    string
	Address   string
	Phone     string
	Email     string
	CreatedAt time.Time
}

// chainNames maps accepted chain identifiers (lowercased) to the canonical
// display name stored on the pharmacy row.
var chainNames = map[string]string{
	"новамедика":  "Новамедика",
	"novamedika":  "Новамедика",
	"фармация":    "Фармация",
	"белфармация": "Белфармация",
}

// CanonicalChainName maps a raw chain identifier to its display name.
func CanonicalChainName(chain string) (string, error) {
	name, ok := chainNames[strings.ToLower(strings.TrimSpace(chain))]
	if !ok {
		return "", ErrUnknownChain
	}
	return name, nil
}
