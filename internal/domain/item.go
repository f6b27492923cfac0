package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind distinguishes the two finite resources the engine reserves.
type ItemKind string

const (
	ItemKindProduct   ItemKind = "product"
	ItemKindEventSeat ItemKind = "event_seat"
)

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	return k == ItemKindProduct || k == ItemKindEventSeat
}

// InventoryItem is a countable resource: product stock or event seat
// capacity. Available never goes below zero.
type InventoryItem struct {
	ID        string          `json:"id"`
	Kind      ItemKind        `json:"kind"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Available int             `json:"available"`
	Active    bool            `json:"active"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanReserve reports whether qty units can be taken right now. The answer
// is only meaningful while the row lock is held.
func (i *InventoryItem) CanReserve(qty int) bool {
	return qty > 0 && i.Available >= qty
}

// RequestedLine is one (item, quantity) pair submitted by a client.
type RequestedLine struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// MaxLineQuantity bounds the units of one item in a single order, after
// repeated lines are merged.
const MaxLineQuantity = 1000

// MergeLines folds repeated item ids into one line, keeping first-seen
// order, so each item is checked and reserved once with its full quantity.
// Sums saturate at math.MaxInt.
func MergeLines(lines []RequestedLine) []RequestedLine {
	merged := make([]RequestedLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ItemID]; ok {
			if l.Quantity > 0 && merged[i].Quantity > math.MaxInt-l.Quantity {
				merged[i].Quantity = math.MaxInt
			} else {
				merged[i].Quantity += l.Quantity
			}
			continue
		}
		index[l.ItemID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

// ItemIDs returns the ids referenced by lines.
func ItemIDs(lines []RequestedLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ItemID
	}
	return ids
}
