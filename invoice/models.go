// Package invoice defines the sales invoice aggregate: the invoice header,
// its line items, and the Pending/Paid state machine.
package invoice

import (
	"time"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/types"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid
}

// Invoice is a sales invoice with embedded line items.
// Total is derived from the items and is never accepted from callers.
type Invoice struct {
	types.Entity
	ID              id.InvoiceID `json:"id"`
	ReferenceNumber string       `json:"reference_number"`
	CustomerName    string       `json:"customer_name"`
	CustomerEmail   string       `json:"customer_email"`
	CustomerPhone   string       `json:"customer_phone,omitempty"`
	CustomerAddress string       `json:"customer_address,omitempty"`
	Status          Status       `json:"status"`
	Total           types.Money  `json:"total_amount"`
	Items           []Item       `json:"items"`
	CreatedBy       id.UserID    `json:"created_by,omitempty"`
	PaidAt          *time.Time   `json:"paid_at,omitempty"`
}

// Item is a single invoice line: a description, a quantity of at least one,
// and a non-negative unit price.
type Item struct {
	ID          id.ItemID    `json:"id"`
	InvoiceID   id.InvoiceID `json:"invoice_id"`
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
	UnitPrice   types.Money  `json:"unit_price"`
}

// LineTotal returns quantity × unit price.
func (it Item) LineTotal() types.Money {
	return it.UnitPrice.Multiply(it.Quantity)
}

// ComputeTotal sums the line totals of items in the given currency.
func ComputeTotal(currency string, items []Item) types.Money {
	total := types.Zero(currency)
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Recalculate recomputes Total from Items. Call after any item mutation;
// stores must persist the recomputed value, never a caller-supplied one.
func (inv *Invoice) Recalculate() {
	currency := inv.Total.Currency
	if currency == "" {
		if len(inv.Items) > 0 {
			currency = inv.Items[0].UnitPrice.Currency
		} else {
			currency = "usd"
		}
	}
	inv.Total = ComputeTotal(currency, inv.Items)
}

// IsPending reports whether the invoice can still be modified or paid.
func (inv *Invoice) IsPending() bool { return inv.Status == StatusPending }

// Clone returns a deep copy of the invoice.
func (inv *Invoice) Clone() *Invoice {
	cp := *inv
	cp.Items = make([]Item, len(inv.Items))
	copy(cp.Items, inv.Items)
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}
