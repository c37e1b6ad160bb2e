// Package store defines the unified storage interface implemented by the
// memory, postgres, sqlite, and mongo drivers.
package store

import (
	"context"
	"time"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/invoice"
	"github.com/xraph/folio/transaction"
)

// Store is the unified storage interface for all Folio entities.
//
// The multi-entity mutations (CreateInvoice, MarkInvoicePaid, DeleteInvoice)
// are atomic: no caller may ever observe the invoice side without the ledger
// side or vice versa. List methods return the page of matches plus the total
// match count before limit/offset.
type Store interface {
	// Invoice methods.
	//
	// CreateInvoice persists the invoice together with its Sale ledger entry.
	// UpdateInvoice replaces the stored row conditional on the status not
	// having changed since the invoice was loaded; a lost race surfaces as
	// folio.ErrConflict.
	// MarkInvoicePaid atomically flips Pending to Paid, stamps paidAt, fills
	// in the payment amount and description from the stored invoice, and
	// appends the Payment entry. A non-Pending invoice yields a
	// *folio.StateError.
	// DeleteInvoice removes the invoice and cascades to its transactions.
	CreateInvoice(ctx context.Context, inv *invoice.Invoice, sale *transaction.Transaction) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	GetInvoiceByReference(ctx context.Context, ref string) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, int, error)
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error
	MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, payment *transaction.Transaction) (*invoice.Invoice, error)
	DeleteInvoice(ctx context.Context, invID id.InvoiceID) error

	// Transaction methods. The ledger is append-only: entries are written
	// exclusively through the invoice mutations above.
	GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error)
	ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, int, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
