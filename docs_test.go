package folio_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/folio"
	"github.com/xraph/folio/auth"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/store/memory"
	"github.com/xraph/folio/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from the package docs
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize Folio
		svc := folio.New(store,
			folio.WithLogger(slog.Default()),
			folio.WithPayRetries(3),
		)

		// Start the engine
		ctx := context.Background()
		if err := svc.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer svc.Stop()

		actor := &auth.Identity{ID: id.NewUserID(), Name: "clerk"}

		// Create an invoice
		inv, err := svc.CreateInvoice(ctx, actor, folio.CreateInvoiceInput{
			ReferenceNumber: "INV-2024-001",
			CustomerName:    "Acme Corp",
			CustomerEmail:   "billing@acme.test",
			Items: []folio.ItemInput{
				{Description: "Widget", Quantity: 40, UnitPrice: types.USD(12500)}, // $125.00 each
				{Description: "Gadget", Quantity: 20, UnitPrice: types.USD(10000)}, // $100.00 each
			},
		})
		if err != nil {
			t.Fatal(err)
		}

		log.Printf("Invoice created: %s total %s\n", inv.ReferenceNumber, inv.Total.String())

		// Mark it paid. The store records the Payment transaction atomically.
		paid, err := svc.PayInvoice(ctx, actor, inv.ID)
		if err != nil {
			t.Fatal(err)
		}

		log.Printf("Invoice paid at %s\n", paid.PaidAt)
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)   // $49.00
		_ = types.EUR(9900)   // €99.00
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)     // $3.00
		_ = m1.Multiply(3) // $3.00
		_ = m1.Divide(2)   // $0.50

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}
