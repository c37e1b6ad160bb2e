// Package folio provides a sales invoice and transaction ledger engine for Go
// applications.
//
// Folio is designed as a library, not a service. Import it directly into your
// Go application and wire it to the store of your choice. It provides:
//
//   - Invoice management with embedded line items and derived totals
//   - An append-only transaction ledger paired with every invoice write
//   - A race-safe Pending to Paid transition with exactly one winner
//   - Filtering, searching, whitelisted ordering, and page-based pagination
//   - Pluggable lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
// Create a service instance with your preferred store:
//
//	import (
//	    "github.com/xraph/folio"
//	    "github.com/xraph/folio/store/memory"
//	)
//
//	svc := folio.New(memory.New())
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop()
//
// # Core Concepts
//
// Invoices carry a customer, a reference number, and at least one line item.
// The total is always computed from the items:
//
//	inv, err := svc.CreateInvoice(ctx, actor, folio.CreateInvoiceInput{
//	    ReferenceNumber: "INV-001",
//	    CustomerName:    "Acme Corp",
//	    CustomerEmail:   "billing@acme.test",
//	    Items: []folio.ItemInput{
//	        {Description: "Widget", Quantity: 40, UnitPrice: folio.USD(12500)},
//	    },
//	})
//
// Creating an invoice records a Sale transaction for the full amount; marking
// it paid records the matching Payment:
//
//	inv, err = svc.PayInvoice(ctx, actor, inv.ID)
//
// Transactions are read-only. They are created by the engine as a side effect
// of invoice operations and removed only when their invoice is deleted.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
//	txn_01h2xcejqtf2nbrexx3vqjhp41   // Transaction ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package folio
