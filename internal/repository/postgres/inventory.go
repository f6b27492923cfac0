package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/database"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

const (
	movementReserve = "reserve"
	movementRelease = "release"
)

// InventoryRepository implements repository.InventoryRepository.
type InventoryRepository struct {
	pool database.DBTX
}

// NewInventoryRepository creates a PostgreSQL-backed inventory store.
func NewInventoryRepository(pool database.DBTX) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

const itemColumns = `id, kind, name, unit_price, available, active, updated_at`

func scanItem(row pgx.Row) (*domain.InventoryItem, error) {
	var (
		it        domain.InventoryItem
		kind      string
		unitPrice decimal.Decimal
	)
	if err := row.Scan(&it.ID, &kind, &it.Name, &unitPrice, &it.Available, &it.Active, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Kind = domain.ItemKind(kind)
	it.UnitPrice = unitPrice
	return &it, nil
}

// LockItems selects the items FOR UPDATE in id order, so concurrent
// reservations touching overlapping items always lock in the same order.
func (r *InventoryRepository) LockItems(ctx context.Context, ids []string) (items map[string]*domain.InventoryItem, err error) {
	query := `SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	ctx, end := database.TraceQuery(ctx, "LockItems", query)
	defer func() { end(err) }()

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("lock inventory items: %w", err)
	}
	defer rows.Close()

	items = make(map[string]*domain.InventoryItem, len(ids))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		items[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory items: %w", err)
	}
	return items, nil
}

// GetByID reads one item without locking it.
func (r *InventoryRepository) GetByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = $1`

	it, err := scanItem(database.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("inventory item", id)
		}
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return it, nil
}

// Reserve decrements available only while it stays non-negative. The
// CHECK (available >= 0) constraint backs the same rule in the schema.
func (r *InventoryRepository) Reserve(ctx context.Context, orderID, itemID string, qty int) (err error) {
	query := `
		UPDATE inventory_items
		SET available = available - $2, updated_at = NOW()
		WHERE id = $1 AND available >= $2`

	ctx, end := database.TraceQuery(ctx, "ReserveStock", query)
	defer func() { end(err) }()

	conn := database.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, query, itemID, qty)
	if err != nil {
		return fmt.Errorf("reserve item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		var available int
		if err := conn.QueryRow(ctx, `SELECT available FROM inventory_items WHERE id = $1`, itemID).Scan(&available); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.InvalidItemError([]string{itemID})
			}
			return fmt.Errorf("read available for %s: %w", itemID, err)
		}
		return domain.InsufficientStockError([]domain.Shortfall{{ItemID: itemID, Requested: qty, Available: available}})
	}

	if err := r.recordMovement(ctx, conn, orderID, itemID, -qty, movementReserve); err != nil {
		return err
	}
	return nil
}

// Release writes the release ledger row first; the unique
// (order_id, item_id, reason) key turns a repeated release into a no-op
// before any stock is added back.
func (r *InventoryRepository) Release(ctx context.Context, orderID, itemID string, qty int) (released bool, err error) {
	query := `
		INSERT INTO inventory_movements (id, item_id, order_id, delta, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, item_id, reason) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "ReleaseStock", query)
	defer func() { end(err) }()

	conn := database.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, query, uuid.NewString(), itemID, orderID, qty, movementRelease)
	if err != nil {
		return false, fmt.Errorf("record release of %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = conn.Exec(ctx, `
		UPDATE inventory_items
		SET available = available + $2, updated_at = NOW()
		WHERE id = $1`, itemID, qty)
	if err != nil {
		return false, fmt.Errorf("release item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, apperrors.NotFound("inventory item", itemID)
	}
	return true, nil
}

func (r *InventoryRepository) recordMovement(ctx context.Context, conn database.DBTX, orderID, itemID string, delta int, reason string) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO inventory_movements (id, item_id, order_id, delta, reason)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), itemID, orderID, delta, reason,
	)
	if err != nil {
		return fmt.Errorf("record %s of %s: %w", reason, itemID, err)
	}
	return nil
}
