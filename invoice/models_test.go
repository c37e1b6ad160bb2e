package invoice

import (
	"testing"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/types"
)

func TestItemLineTotal(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want types.Money
	}{
		{"single unit", Item{Quantity: 1, UnitPrice: types.USD(5000)}, types.USD(5000)},
		{"many units", Item{Quantity: 40, UnitPrice: types.USD(12500)}, types.USD(500000)},
		{"free line", Item{Quantity: 3, UnitPrice: types.Zero("usd")}, types.Zero("usd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.LineTotal(); !got.Equal(tt.want) {
				t.Errorf("LineTotal: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecalculate(t *testing.T) {
	inv := &Invoice{
		ID: id.NewInvoiceID(),
		Items: []Item{
			{ID: id.NewItemID(), Quantity: 2, UnitPrice: types.USD(5000)},
			{ID: id.NewItemID(), Quantity: 1, UnitPrice: types.USD(7500)},
		},
	}

	inv.Recalculate()

	if !inv.Total.Equal(types.USD(17500)) {
		t.Errorf("Total: got %v, want %v", inv.Total, types.USD(17500))
	}

	// Removing an item shrinks the total.
	inv.Items = inv.Items[:1]
	inv.Recalculate()
	if !inv.Total.Equal(types.USD(10000)) {
		t.Errorf("Total after removal: got %v, want %v", inv.Total, types.USD(10000))
	}

	// No items means a zero total in the established currency.
	inv.Items = nil
	inv.Recalculate()
	if !inv.Total.Equal(types.Zero("usd")) {
		t.Errorf("Total with no items: got %v, want zero", inv.Total)
	}
}

func TestRecalculateCurrencyFallback(t *testing.T) {
	inv := &Invoice{
		Items: []Item{
			{Quantity: 1, UnitPrice: types.EUR(900)},
		},
	}

	inv.Recalculate()

	if inv.Total.Currency != "eur" {
		t.Errorf("Currency: got %q, want eur", inv.Total.Currency)
	}
}

func TestStatusValid(t *testing.T) {
	if !StatusPending.Valid() || !StatusPaid.Valid() {
		t.Error("known statuses should be valid")
	}
	if Status("Voided").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestIsPending(t *testing.T) {
	inv := &Invoice{Status: StatusPending}
	if !inv.IsPending() {
		t.Error("pending invoice should report pending")
	}

	inv.Status = StatusPaid
	if inv.IsPending() {
		t.Error("paid invoice should not report pending")
	}
}

func TestClone(t *testing.T) {
	inv := &Invoice{
		ID:     id.NewInvoiceID(),
		Status: StatusPending,
		Items: []Item{
			{ID: id.NewItemID(), Description: "Widget", Quantity: 1, UnitPrice: types.USD(100)},
		},
	}

	cp := inv.Clone()
	cp.Items[0].Description = "Gadget"
	cp.Status = StatusPaid

	if inv.Items[0].Description != "Widget" {
		t.Error("mutating the clone's items leaked into the original")
	}
	if inv.Status != StatusPending {
		t.Error("mutating the clone's status leaked into the original")
	}
}
