package catalog

import (
	"time"

	"github.com/google/uuid"
)

// NoExpirySentinel is stored when a row carries no usable expiry date.
// The domain treats a missing expiry as "effectively never expires".
var NoExpirySentinel = time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)

// ProductRecord is one row of an uploaded catalog file after parsing.
// Identity fields (Name, Form, Manufacturer, Country, Serial, ExpiryDate)
// feed the fingerprint; the rest may change between uploads.
type ProductRecord struct {
	Name         string
	Form         string
	Manufacturer string
	Country      string
	Serial       string
	ExpiryDate   time.Time

	Price          float64
	Quantity       float64
	TotalPrice     float64
	WholesalePrice float64
	RetailPrice    float64
	Category       string
	ImportDate     string
	InternalCode   string
	InternalID     string
	Distributor    string

	UpdatedAt   time.Time
	Fingerprint string
}

// Product is the persisted catalog row for one pharmacy.
type Product struct {
	UUID       uuid.UUID
	PharmacyID int64
	ProductRecord
	IsRemoved bool
	RemovedAt *time.Time
	CreatedAt time.Time
}

// ExistingEntry is the minimal identity info held per persisted fingerprint.
type ExistingEntry struct {
	UUID    uuid.UUID
	Removed bool
}

// UpdateEntry pairs a fresh record with the persisted row it refreshes.
type UpdateEntry struct {
	UUID    uuid.UUID
	Record  ProductRecord
	Restore bool
}

// DiffResult holds the three disjoint outcomes of a catalog diff.
type DiffResult struct {
	ToAdd    []ProductRecord
	ToUpdate []UpdateEntry
	ToRemove []uuid.UUID
}

// Empty reports whether the diff requires no storage mutation.
func (d DiffResult) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToUpdate) == 0 && len(d.ToRemove) == 0
}
