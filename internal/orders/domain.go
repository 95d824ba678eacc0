// Package orders holds the slice of the booking-order model that catalog
// reconciliation touches. The booking workflow itself lives elsewhere; this
// engine only severs and snapshots order->product links when products
// disappear from an upload.
package orders

// Order status values shared with the booking collaborator.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// CancelReasonProductRemoved is recorded on orders cancelled because their
// product vanished from the pharmacy's catalog export.
const CancelReasonProductRemoved = "product removed from pharmacy catalog"

// ActiveStatuses are the in-flight states eligible for cascade cancellation.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

// Snapshot is the denormalized product data stamped onto an order before
// its product reference is cleared, so the order stays displayable.
type Snapshot struct {
	ProductName  string
	ProductForm  string
	Manufacturer string
	Country      string
	Price        float64
	Serial       string
}
