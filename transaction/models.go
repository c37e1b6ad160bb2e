// Package transaction defines the append-only financial ledger: one Sale
// entry per invoice at creation, one Payment entry when it is paid.
package transaction

import (
	"time"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/types"
)

// Type classifies a ledger entry.
type Type string

const (
	TypeSale    Type = "Sale"
	TypePayment Type = "Payment"
)

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	return t == TypeSale || t == TypePayment
}

// Transaction is an immutable ledger entry tied to an invoice. Entries are
// only ever created alongside invoice mutations and removed by cascade when
// their invoice is deleted.
type Transaction struct {
	types.Entity
	ID          id.TransactionID `json:"id"`
	InvoiceID   id.InvoiceID     `json:"invoice_id"`
	Type        Type             `json:"transaction_type"`
	Amount      types.Money      `json:"amount"`
	Description string           `json:"description"`
	Date        time.Time        `json:"transaction_date"`
	CreatedBy   id.UserID        `json:"created_by,omitempty"`
}

// Clone returns a copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	return &cp
}
