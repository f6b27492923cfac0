package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Family selects one of the two structurally identical order flows.
type Family string

const (
	FamilyProductOrder     Family = "product_order"
	FamilyEventReservation Family = "event_reservation"
)

// Status is the settlement state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// MinUnitPrice is the smallest price an order line may carry.
var MinUnitPrice = decimal.New(1, -2)

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	return f == FamilyProductOrder || f == FamilyEventReservation
}

// SuccessStatus is the terminal success state: paid for product orders,
// confirmed for event reservations.
func (f Family) SuccessStatus() Status {
	if f == FamilyEventReservation {
		return StatusConfirmed
	}
	return StatusPaid
}

// ItemKind is the inventory kind the family reserves.
func (f Family) ItemKind() ItemKind {
	if f == FamilyEventReservation {
		return ItemKindEventSeat
	}
	return ItemKindProduct
}

// Statuses lists the family's status vocabulary.
func (f Family) Statuses() []Status {
	return []Status{StatusPending, f.SuccessStatus(), StatusCancelled}
}

// HasStatus reports whether s belongs to the family's vocabulary.
func (f Family) HasStatus(s Status) bool {
	return s == StatusPending || s == StatusCancelled || s == f.SuccessStatus()
}

// OrderLine is one priced line of an order. UnitPrice is a snapshot taken
// at creation; Subtotal is derived from it and never accepted from input.
type OrderLine struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ItemID    string          `json:"item_id"`
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// LineSubtotal computes unit price times quantity.
func LineSubtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// NewOrderLine snapshots item's current price for quantity units.
func NewOrderLine(lineID, orderID string, item *InventoryItem, quantity int) (OrderLine, error) {
	line := OrderLine{
		ID:        lineID,
		OrderID:   orderID,
		ItemID:    item.ID,
		ItemName:  item.Name,
		Quantity:  quantity,
		UnitPrice: item.UnitPrice,
		Subtotal:  LineSubtotal(item.UnitPrice, quantity),
	}
	return line, line.Validate()
}

// Validate re-derives the subtotal and checks the line's bounds.
func (l OrderLine) Validate() error {
	if l.Quantity < 1 {
		return fmt.Errorf("line %s: quantity %d must be at least 1", l.ItemID, l.Quantity)
	}
	if l.UnitPrice.LessThan(MinUnitPrice) {
		return fmt.Errorf("line %s: unit price %s below %s", l.ItemID, l.UnitPrice, MinUnitPrice)
	}
	if want := LineSubtotal(l.UnitPrice, l.Quantity); !l.Subtotal.Equal(want) {
		return fmt.Errorf("line %s: subtotal %s does not match %s", l.ItemID, l.Subtotal, want)
	}
	return nil
}

// Total sums the line subtotals.
func Total(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal)
	}
	return total
}

// Order is a product order or an event reservation.
type Order struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"user_id"`
	Family                Family          `json:"family"`
	Status                Status          `json:"status"`
	Total                 decimal.Decimal `json:"total"`
	Lines                 []OrderLine     `json:"lines,omitempty"`
	PaymentIntentID       string          `json:"payment_intent_id,omitempty"`
	PaymentRedirectURL    string          `json:"payment_redirect_url,omitempty"`
	ExternalPaymentID     string          `json:"external_payment_id,omitempty"`
	ExternalPaymentStatus string          `json:"external_payment_status,omitempty"`
	StockReleased         bool            `json:"stock_released"`
	CancelReason          string          `json:"cancel_reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NewOrder builds a pending order whose total is derived from lines.
func NewOrder(id, userID string, family Family, lines []OrderLine, now time.Time) *Order {
	return &Order{
		ID:        id,
		UserID:    userID,
		Family:    family,
		Status:    StatusPending,
		Total:     Total(lines),
		Lines:     lines,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the aggregate invariants: at least one line, every line
// valid, and total equal to the sum of subtotals.
func (o *Order) Validate() error {
	if !o.Family.Valid() {
		return fmt.Errorf("order %s: unknown family %q", o.ID, o.Family)
	}
	if !o.Family.HasStatus(o.Status) {
		return fmt.Errorf("order %s: status %q not valid for %s", o.ID, o.Status, o.Family)
	}
	if len(o.Lines) == 0 {
		return fmt.Errorf("order %s: no lines", o.ID)
	}
	for _, l := range o.Lines {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("order %s: %w", o.ID, err)
		}
	}
	if sum := Total(o.Lines); !o.Total.Equal(sum) {
		return fmt.Errorf("order %s: total %s does not match line sum %s", o.ID, o.Total, sum)
	}
	if o.Total.LessThan(MinUnitPrice) {
		return fmt.Errorf("order %s: total %s below %s", o.ID, o.Total, MinUnitPrice)
	}
	return nil
}

// IsTerminal reports whether the order can no longer move on its own.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusCancelled || o.Status == o.Family.SuccessStatus()
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

// StatusView is the read model returned by get_order_status.
type StatusView struct {
	OrderID               string          `json:"order_id"`
	Family                Family          `json:"family"`
	Status                Status          `json:"status"`
	Total                 decimal.Decimal `json:"total"`
	ExternalPaymentStatus string          `json:"external_payment_status,omitempty"`
}

// StatusView projects the order onto its status read model.
func (o *Order) StatusView() StatusView {
	return StatusView{
		OrderID:               o.ID,
		Family:                o.Family,
		Status:                o.Status,
		Total:                 o.Total,
		ExternalPaymentStatus: o.ExternalPaymentStatus,
	}
}
