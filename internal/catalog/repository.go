package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/orders"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/platform/db"
)

// batchChunkSize bounds how many rows one generated statement or batch
// carries; chunk failure still aborts the surrounding transaction.
const batchChunkSize = 500

// productColumns is the fixed column list bulk statements are generated
// from, so placeholder numbering never drifts from the data.
var productColumns = []string{
	"uuid", "pharmacy_id", "name", "form", "manufacturer", "country",
	"serial", "expiry_date", "price", "quantity", "total_price",
	"wholesale_price", "retail_price", "category", "import_date",
	"internal_code", "internal_id", "distributor", "fingerprint",
	"is_removed", "removed_at", "updated_at", "created_at",
}

// DetachedOrder reports one order whose product reference was severed,
// with the status it held at that moment.
type DetachedOrder struct {
	ID     int64
	Status string
}

// TxRepository exposes the apply-phase operations composable inside one
// reconciliation transaction.
type TxRepository interface {
	SnapshotAndDetachOrders(ctx context.Context, productUUIDs []uuid.UUID) ([]DetachedOrder, error)
	CancelOrders(ctx context.Context, orderIDs []int64, reason string, at time.Time) (int, error)
	SoftDeleteProducts(ctx context.Context, productUUIDs []uuid.UUID, at time.Time) error
	UpdateProducts(ctx context.Context, entries []UpdateEntry) error
	InsertProducts(ctx context.Context, pharmacyID int64, records []ProductRecord) error
}

// Repository persists the product catalog in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FingerprintMap rebuilds the persisted fingerprint map for a pharmacy,
// including soft-deleted rows so a removed product can be told apart from
// a genuinely new one with the same fingerprint.
func (r *Repository) FingerprintMap(ctx context.Context, pharmacyID int64) (map[string]ExistingEntry, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("catalog repo not initialised")
	}
	const query = `SELECT fingerprint, uuid, is_removed FROM products WHERE pharmacy_id = $1`
	rows, err := r.pool.Query(ctx, query, pharmacyID)
	if err != nil {
		return nil, fmt.Errorf("catalog: fingerprint map: %w", err)
	}
	defer rows.Close()
	existing := make(map[string]ExistingEntry)
	for rows.Next() {
		var fp string
		var entry ExistingEntry
		if err := rows.Scan(&fp, &entry.UUID, &entry.Removed); err != nil {
			return nil, err
		}
		existing[fp] = entry
	}
	return existing, rows.Err()
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("catalog repo not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

// SnapshotAndDetachOrders stamps the denormalized product fields onto every
// order referencing one of the given products, clears the reference, and
// returns the touched orders with their pre-detach status.
func (t *txRepo) SnapshotAndDetachOrders(ctx context.Context, productUUIDs []uuid.UUID) ([]DetachedOrder, error) {
	if len(productUUIDs) == 0 {
		return nil, nil
	}
	const query = `
UPDATE orders o SET
	product_name = p.name,
	product_form = p.form,
	product_manufacturer = p.manufacturer,
	product_country = p.country,
	product_price = p.price,
	product_serial = p.serial,
	product_uuid = NULL
FROM products p
WHERE o.product_uuid = p.uuid AND p.uuid = ANY($1)
RETURNING o.id, o.status`
	rows, err := t.tx.Query(ctx, query, productUUIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog: snapshot orders: %w", err)
	}
	defer rows.Close()
	var detached []DetachedOrder
	for rows.Next() {
		var d DetachedOrder
		if err := rows.Scan(&d.ID, &d.Status); err != nil {
			return nil, err
		}
		detached = append(detached, d)
	}
	return detached, rows.Err()
}

// CancelOrders transitions the given orders to the cancelled terminal
// status with a reason and timestamp, returning how many rows changed.
func (t *txRepo) CancelOrders(ctx context.Context, orderIDs []int64, reason string, at time.Time) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	const query = `
UPDATE orders SET status = $2, cancel_reason = $3, cancelled_at = $4
WHERE id = ANY($1) AND status <> $2`
	tag, err := t.tx.Exec(ctx, query, orderIDs, orders.StatusCancelled, reason, at)
	if err != nil {
		return 0, fmt.Errorf("catalog: cancel orders: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SoftDeleteProducts flags products removed, stamps the removal time and
// zeroes remaining quantity. Rows stay in place for order history.
func (t *txRepo) SoftDeleteProducts(ctx context.Context, productUUIDs []uuid.UUID, at time.Time) error {
	if len(productUUIDs) == 0 {
		return nil
	}
	const query = `
UPDATE products SET is_removed = TRUE, removed_at = $2, quantity = 0, updated_at = $2
WHERE uuid = ANY($1)`
	if _, err := t.tx.Exec(ctx, query, productUUIDs, at); err != nil {
		return fmt.Errorf("catalog: soft delete products: %w", err)
	}
	return nil
}

// UpdateProducts refreshes matched rows from their fresh records and lifts
// the removed flag on restores. Statements go out in chunked batches.
func (t *txRepo) UpdateProducts(ctx context.Context, entries []UpdateEntry) error {
	const query = `
UPDATE products SET
	name = $2, form = $3, manufacturer = $4, country = $5, serial = $6,
	expiry_date = $7, price = $8, quantity = $9, total_price = $10,
	wholesale_price = $11, retail_price = $12, category = $13,
	import_date = $14, internal_code = $15, internal_id = $16,
	distributor = $17, fingerprint = $18, updated_at = $19,
	is_removed = FALSE, removed_at = NULL
WHERE uuid = $1`
	for start := 0; start < len(entries); start += batchChunkSize {
		end := min(start+batchChunkSize, len(entries))
		batch := &pgx.Batch{}
		for _, e := range entries[start:end] {
			rec := e.Record
			batch.Queue(query, e.UUID,
				rec.Name, rec.Form, rec.Manufacturer, rec.Country, rec.Serial,
				rec.ExpiryDate, rec.Price, rec.Quantity, rec.TotalPrice,
				rec.WholesalePrice, rec.RetailPrice, rec.Category,
				rec.ImportDate, rec.InternalCode, rec.InternalID,
				rec.Distributor, rec.Fingerprint, rec.UpdatedAt)
		}
		results := t.tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("catalog: update products: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("catalog: update products: %w", err)
		}
	}
	return nil
}

// InsertProducts bulk-inserts new catalog rows with fresh UUIDs.
func (t *txRepo) InsertProducts(ctx context.Context, pharmacyID int64, records []ProductRecord) error {
	for start := 0; start < len(records); start += batchChunkSize {
		end := min(start+batchChunkSize, len(records))
		chunk := records[start:end]
		args := make([]any, 0, len(chunk)*len(productColumns))
		for _, rec := range chunk {
			args = append(args,
				uuid.New(), pharmacyID, rec.Name, rec.Form, rec.Manufacturer,
				rec.Country, rec.Serial, rec.ExpiryDate, rec.Price,
				rec.Quantity, rec.TotalPrice, rec.WholesalePrice,
				rec.RetailPrice, rec.Category, rec.ImportDate,
				rec.InternalCode, rec.InternalID, rec.Distributor,
				rec.Fingerprint, false, nil, rec.UpdatedAt, rec.UpdatedAt)
		}
		query := bulkInsertSQL("products", productColumns, len(chunk))
		if _, err := t.tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("catalog: insert products: %w", err)
		}
	}
	return nil
}

// bulkInsertSQL generates a multi-row INSERT with placeholders derived
// from the column list, instead of hand-counted indexes.
func bulkInsertSQL(table string, columns []string, rowCount int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES ")
	arg := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for col := range columns {
			if col > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", arg)
			arg++
		}
		sb.WriteString(")")
	}
	return sb.String()
}
