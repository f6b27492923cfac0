package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/database"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

// externalPaymentConstraint guards external_payment_id uniqueness.
const externalPaymentConstraint = "orders_external_payment_id_key"

// OrderRepository implements repository.OrderRepository.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, user_id, family, status, total,
	COALESCE(payment_intent_id, ''), COALESCE(payment_redirect_url, ''),
	COALESCE(external_payment_id, ''), COALESCE(external_payment_status, ''),
	stock_released, COALESCE(cancel_reason, ''), created_at, updated_at`

func scanOrder(row pgx.Row, extra ...any) (*domain.Order, error) {
	var (
		o              domain.Order
		family, status string
		total          decimal.Decimal
	)
	dest := []any{
		&o.ID, &o.UserID, &family, &status, &total,
		&o.PaymentIntentID, &o.PaymentRedirectURL,
		&o.ExternalPaymentID, &o.ExternalPaymentStatus,
		&o.StockReleased, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	o.Family = domain.Family(family)
	o.Status = domain.Status(status)
	o.Total = total
	return &o, nil
}

// Create inserts the order and its lines. Callers wrap it in a transaction
// together with the stock reservation.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) (err error) {
	query := `
		INSERT INTO orders (id, user_id, family, status, total, stock_released, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "CreateOrder", query)
	defer func() { end(err) }()

	conn := database.Conn(ctx, r.pool)
	_, err = conn.Exec(ctx, query,
		order.ID, order.UserID, string(order.Family), string(order.Status), order.Total,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	lineQuery := `
		INSERT INTO order_lines (id, order_id, item_id, item_name, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, l := range order.Lines {
		_, err = conn.Exec(ctx, lineQuery,
			l.ID, order.ID, l.ItemID, l.ItemName, l.Quantity, l.UnitPrice, l.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("insert order line %s: %w", l.ItemID, err)
		}
	}
	return nil
}

// GetByID loads an order and its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate loads an order and locks its row until the surrounding
// transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, id, true)
}

func (r *OrderRepository) get(ctx context.Context, id string, lock bool) (order *domain.Order, err error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	op := "GetOrder"
	if lock {
		query += ` FOR UPDATE`
		op = "GetOrderForUpdate"
	}

	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	conn := database.Conn(ctx, r.pool)
	order, err = scanOrder(conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.OrderNotFoundError(id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Lines, err = r.loadLines(ctx, conn, id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, conn database.DBTX, orderID string) ([]domain.OrderLine, error) {
	rows, err := conn.Query(ctx, `
		SELECT id, order_id, item_id, item_name, quantity, unit_price, subtotal
		FROM order_lines
		WHERE order_id = $1
		ORDER BY item_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			l                   domain.OrderLine
			unitPrice, subtotal decimal.Decimal
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.ItemName, &l.Quantity, &unitPrice, &subtotal); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		l.UnitPrice = unitPrice
		l.Subtotal = subtotal
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

// FindIDByExternalPaymentID returns the id of the order holding paymentID.
func (r *OrderRepository) FindIDByExternalPaymentID(ctx context.Context, paymentID string) (string, error) {
	var id string
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id FROM orders WHERE external_payment_id = $1`, paymentID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NotFound("payment", paymentID)
		}
		return "", fmt.Errorf("find order by payment id: %w", err)
	}
	return id, nil
}

// List returns a page of orders, newest first, without their lines.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) (orders []domain.Order, total int, err error) {
	var (
		conditions []string
		args       []any
		argIdx     = 1
	)
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER()
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, orderColumns, where, argIdx, argIdx+1)
	args = append(args, perPage, (page-1)*perPage)

	ctx, end := database.TraceQuery(ctx, "ListOrders", query)
	defer func() { end(err) }()

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, total, nil
}

// TransitionStatus is a compare-and-set on status.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from, to domain.Status, reason string) (changed bool, err error) {
	query := `
		UPDATE orders
		SET status = $3, cancel_reason = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1 AND status = $2`

	ctx, end := database.TraceQuery(ctx, "TransitionStatus", query)
	defer func() { end(err) }()

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, query, id, string(from), string(to), reason)
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkStockReleased flips stock_released from false to true. Only the call
// that flips it may release stock.
func (r *OrderRepository) MarkStockReleased(ctx context.Context, id string) (bool, error) {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE orders
		SET stock_released = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT stock_released`, id)
	if err != nil {
		return false, fmt.Errorf("mark stock released for %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordPayment keeps the first external payment id and always refreshes
// the status mirror.
func (r *OrderRepository) RecordPayment(ctx context.Context, id, paymentID, providerStatus string) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE orders
		SET external_payment_id = COALESCE(external_payment_id, NULLIF($2, '')),
		    external_payment_status = COALESCE(NULLIF($3, ''), external_payment_status),
		    updated_at = NOW()
		WHERE id = $1`, id, paymentID, providerStatus)
	if err != nil {
		if database.IsUniqueViolation(err, externalPaymentConstraint) {
			return apperrors.Conflict(fmt.Sprintf("payment %s already belongs to another order", paymentID))
		}
		return fmt.Errorf("record payment for %s: %w", id, err)
	}
	return nil
}

// SetPaymentIntent stores the checkout intent once.
func (r *OrderRepository) SetPaymentIntent(ctx context.Context, id string, intent domain.PaymentIntent) (bool, error) {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE orders
		SET payment_intent_id = $2, payment_redirect_url = $3, updated_at = NOW()
		WHERE id = $1 AND payment_intent_id IS NULL`, id, intent.IntentID, intent.RedirectURL)
	if err != nil {
		return false, fmt.Errorf("set payment intent for %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStalePending returns pending orders created before cutoff, skipping
// the ids in exclude.
func (r *OrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, exclude []string, limit int) ([]string, error) {
	// A NULL array would filter out every row.
	if exclude == nil {
		exclude = []string{}
	}
	rows, err := database.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM orders
		WHERE status = $1 AND created_at < $2
		  AND NOT (id::text = ANY($3::text[]))
		ORDER BY created_at, id
		LIMIT $4`, string(domain.StatusPending), cutoff, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale orders: %w", err)
	}
	return ids, nil
}
