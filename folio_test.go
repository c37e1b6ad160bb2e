package folio_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/folio"
	"github.com/xraph/folio/auth"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/invoice"
	"github.com/xraph/folio/query"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/memory"
	"github.com/xraph/folio/transaction"
	"github.com/xraph/folio/types"
)

func newTestService(t *testing.T, opts ...folio.Option) *folio.Service {
	t.Helper()
	svc := folio.New(memory.New(), opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

func testActor() *auth.Identity {
	return &auth.Identity{ID: id.NewUserID(), Name: "clerk"}
}

func validInput(ref string) folio.CreateInvoiceInput {
	return folio.CreateInvoiceInput{
		ReferenceNumber: ref,
		CustomerName:    "Acme Corp",
		CustomerEmail:   "Billing@Acme.Test",
		Items: []folio.ItemInput{
			{Description: "Widget", Quantity: 40, UnitPrice: types.USD(12500)},
			{Description: "Gadget", Quantity: 20, UnitPrice: types.USD(10000)},
		},
	}
}

func TestCreateInvoice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	if inv.Status != invoice.StatusPending {
		t.Errorf("Status: got %q, want Pending", inv.Status)
	}
	// 40 x 125.00 + 20 x 100.00 = 7000.00
	if !inv.Total.Equal(types.USD(700000)) {
		t.Errorf("Total: got %v, want %v", inv.Total, types.USD(700000))
	}
	if inv.CustomerEmail != "billing@acme.test" {
		t.Errorf("email not normalized: %q", inv.CustomerEmail)
	}

	// The paired Sale transaction exists with the full amount.
	page, err := svc.ListTransactions(ctx, actor, folio.ListTransactionsRequest{InvoiceID: inv.ID})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if page.Count != 1 {
		t.Fatalf("transaction count: got %d, want 1", page.Count)
	}
	sale := page.Results[0]
	if sale.Type != transaction.TypeSale {
		t.Errorf("Type: got %q, want Sale", sale.Type)
	}
	if !sale.Amount.Equal(types.USD(700000)) {
		t.Errorf("sale amount: got %v", sale.Amount)
	}
	if sale.Description != "Sale transaction for invoice INV-001" {
		t.Errorf("sale description: got %q", sale.Description)
	}
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	tests := []struct {
		name    string
		mutate  func(*folio.CreateInvoiceInput)
		field   string
		message string
	}{
		{
			"no items",
			func(in *folio.CreateInvoiceInput) { in.Items = nil },
			"items", "Invoice must have at least one item.",
		},
		{
			"zero quantity",
			func(in *folio.CreateInvoiceInput) { in.Items[0].Quantity = 0 },
			"items[0].quantity", "Quantity must be at least 1.",
		},
		{
			"negative unit price",
			func(in *folio.CreateInvoiceInput) { in.Items[1].UnitPrice = types.USD(-100) },
			"items[1].unit_price", "Unit price cannot be negative.",
		},
		{
			"missing reference",
			func(in *folio.CreateInvoiceInput) { in.ReferenceNumber = "  " },
			"reference_number", "This field is required.",
		},
		{
			"missing customer name",
			func(in *folio.CreateInvoiceInput) { in.CustomerName = "" },
			"customer_name", "This field is required.",
		},
		{
			"bad email",
			func(in *folio.CreateInvoiceInput) { in.CustomerEmail = "not-an-email" },
			"customer_email", "Enter a valid email address.",
		},
		{
			"reference too long",
			func(in *folio.CreateInvoiceInput) { in.ReferenceNumber = strings.Repeat("X", 51) },
			"reference_number", "Ensure this field has no more than 50 characters.",
		},
		{
			"mixed currencies",
			func(in *folio.CreateInvoiceInput) { in.Items[1].UnitPrice = types.EUR(10000) },
			"items[1].unit_price", "All items must use the same currency.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput("INV-X")
			tt.mutate(&in)

			_, err := svc.CreateInvoice(ctx, actor, in)
			if !errors.Is(err, folio.ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}

			var ve *folio.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error is not a ValidationError: %v", err)
			}
			found := false
			for _, f := range ve.Fields {
				if f.Field == tt.field && f.Message == tt.message {
					found = true
				}
			}
			if !found {
				t.Errorf("missing %s=%q in %+v", tt.field, tt.message, ve.Fields)
			}
		})
	}
}

func TestCreateInvoiceDuplicateReference(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	if _, err := svc.CreateInvoice(ctx, actor, validInput("INV-001")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if !errors.Is(err, folio.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}

	var ve *folio.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error is not a ValidationError: %v", err)
	}
	want := "Invoice with reference number 'INV-001' already exists."
	if len(ve.Fields) != 1 || ve.Fields[0].Message != want {
		t.Errorf("got %+v, want message %q", ve.Fields, want)
	}
}

func TestPayInvoice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	paid, err := svc.PayInvoice(ctx, actor, inv.ID)
	if err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}
	if paid.Status != invoice.StatusPaid {
		t.Errorf("Status: got %q, want Paid", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Error("PaidAt not set")
	}

	// Ledger now holds a Sale and a Payment, both for the full amount.
	page, err := svc.ListTransactions(ctx, actor, folio.ListTransactionsRequest{
		InvoiceID: inv.ID,
		Type:      transaction.TypePayment,
	})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if page.Count != 1 {
		t.Fatalf("payment count: got %d, want 1", page.Count)
	}
	payment := page.Results[0]
	if !payment.Amount.Equal(types.USD(700000)) {
		t.Errorf("payment amount: got %v", payment.Amount)
	}
	if payment.Description != "Payment received for invoice INV-001" {
		t.Errorf("payment description: got %q", payment.Description)
	}

	// Paying again fails with the exact status message.
	_, err = svc.PayInvoice(ctx, actor, inv.ID)
	if !errors.Is(err, folio.ErrInvoiceNotPending) {
		t.Fatalf("second pay: got %v, want ErrInvoiceNotPending", err)
	}
	want := "Cannot mark invoice as paid. Current status is 'Paid'."
	if err.Error() != want {
		t.Errorf("message: got %q, want %q", err.Error(), want)
	}
}

func TestPayInvoiceConcurrent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	const callers = 8
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PayInvoice(ctx, actor, inv.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, folio.ErrInvoiceNotPending):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners: got %d, want exactly 1", wins)
	}

	// Exactly one Payment was recorded despite the race.
	page, err := svc.ListTransactions(ctx, actor, folio.ListTransactionsRequest{
		InvoiceID: inv.ID,
		Type:      transaction.TypePayment,
	})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if page.Count != 1 {
		t.Errorf("payment count: got %d, want 1", page.Count)
	}
}

func TestUpdateInvoice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	updated, err := svc.UpdateInvoice(ctx, actor, inv.ID, folio.InvoiceUpdate{
		CustomerName:  "Globex",
		CustomerEmail: "AP@Globex.Test",
		Items: []folio.ItemInput{
			{Description: "Widget", Quantity: 2, UnitPrice: types.USD(5000)},
		},
	})
	if err != nil {
		t.Fatalf("UpdateInvoice: %v", err)
	}
	if updated.CustomerName != "Globex" {
		t.Errorf("CustomerName: got %q", updated.CustomerName)
	}
	if updated.CustomerEmail != "ap@globex.test" {
		t.Errorf("email not normalized: %q", updated.CustomerEmail)
	}
	if !updated.Total.Equal(types.USD(10000)) {
		t.Errorf("Total not recomputed: got %v, want %v", updated.Total, types.USD(10000))
	}
	if updated.ReferenceNumber != "INV-001" {
		t.Errorf("reference changed: %q", updated.ReferenceNumber)
	}
}

func TestUpdatePaidInvoiceRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if _, err := svc.PayInvoice(ctx, actor, inv.ID); err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}

	_, err = svc.UpdateInvoice(ctx, actor, inv.ID, folio.InvoiceUpdate{
		CustomerName:  "Globex",
		CustomerEmail: "ap@globex.test",
		Items:         []folio.ItemInput{{Description: "Widget", Quantity: 1, UnitPrice: types.USD(100)}},
	})
	if !errors.Is(err, folio.ErrInvoicePaid) {
		t.Errorf("item edit on paid invoice: got %v, want ErrInvoicePaid", err)
	}

	// Header-only patches remain allowed after payment.
	name := "Globex"
	patched, err := svc.PatchInvoice(ctx, actor, inv.ID, folio.InvoicePatch{CustomerName: &name})
	if err != nil {
		t.Fatalf("PatchInvoice: %v", err)
	}
	if patched.CustomerName != "Globex" {
		t.Errorf("CustomerName: got %q", patched.CustomerName)
	}

	// But item patches are not.
	items := []folio.ItemInput{{Description: "Widget", Quantity: 1, UnitPrice: types.USD(100)}}
	_, err = svc.PatchInvoice(ctx, actor, inv.ID, folio.InvoicePatch{Items: &items})
	if !errors.Is(err, folio.ErrInvoicePaid) {
		t.Errorf("item patch on paid invoice: got %v, want ErrInvoicePaid", err)
	}
}

func TestDeleteInvoice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if _, err := svc.PayInvoice(ctx, actor, inv.ID); err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}

	if err := svc.DeleteInvoice(ctx, actor, inv.ID); err != nil {
		t.Fatalf("DeleteInvoice: %v", err)
	}

	if _, err := svc.GetInvoice(ctx, actor, inv.ID); !errors.Is(err, folio.ErrInvoiceNotFound) {
		t.Errorf("got %v, want ErrInvoiceNotFound", err)
	}

	page, err := svc.ListTransactions(ctx, actor, folio.ListTransactionsRequest{InvoiceID: inv.ID})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if page.Count != 0 {
		t.Errorf("transactions survived delete: %d", page.Count)
	}
}

func TestListInvoicesPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	for _, ref := range []string{"INV-001", "INV-002", "INV-003"} {
		in := validInput(ref)
		if _, err := svc.CreateInvoice(ctx, actor, in); err != nil {
			t.Fatalf("CreateInvoice(%s): %v", ref, err)
		}
	}

	page, err := svc.ListInvoices(ctx, actor, folio.ListInvoicesRequest{
		Order: "reference_number",
		Page:  query.PageRequest{Page: 1, PageSize: 2},
	})
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if page.Count != 3 || page.TotalPages != 2 {
		t.Errorf("Count %d TotalPages %d, want 3 and 2", page.Count, page.TotalPages)
	}
	if len(page.Results) != 2 || page.Results[0].ReferenceNumber != "INV-001" {
		t.Errorf("page 1: %+v", page.Results)
	}
	if !page.HasNext() {
		t.Error("page 1 should have a next page")
	}

	// Unknown order fields are rejected, not ignored.
	_, err = svc.ListInvoices(ctx, actor, folio.ListInvoicesRequest{Order: "customer_name"})
	if !errors.Is(err, folio.ErrInvalidInput) {
		t.Errorf("bad order: got %v, want ErrInvalidInput", err)
	}
}

func TestAuthorization(t *testing.T) {
	denyDeletes := auth.AuthorizerFunc(func(_ context.Context, _ *auth.Identity, op auth.Operation) error {
		if op == auth.OpInvoiceDelete {
			return auth.ErrDenied
		}
		return nil
	})

	svc := newTestService(t, folio.WithAuthorizer(denyDeletes))
	ctx := context.Background()
	actor := testActor()

	// A nil actor is rejected before anything else.
	_, err := svc.CreateInvoice(ctx, nil, validInput("INV-001"))
	if !errors.Is(err, folio.ErrUnauthorized) {
		t.Errorf("nil actor: got %v, want ErrUnauthorized", err)
	}

	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	if err := svc.DeleteInvoice(ctx, actor, inv.ID); !errors.Is(err, folio.ErrForbidden) {
		t.Errorf("denied delete: got %v, want ErrForbidden", err)
	}
}

// conflictingStore wraps a real store and fails the next n write calls with
// ErrConflict, simulating driver-level contention.
type conflictingStore struct {
	store.Store
	updateConflicts int
	payConflicts    int
}

func (s *conflictingStore) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if s.updateConflicts > 0 {
		s.updateConflicts--
		return folio.ErrConflict
	}
	return s.Store.UpdateInvoice(ctx, inv)
}

func (s *conflictingStore) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, payment *transaction.Transaction) (*invoice.Invoice, error) {
	if s.payConflicts > 0 {
		s.payConflicts--
		return nil, folio.ErrConflict
	}
	return s.Store.MarkInvoicePaid(ctx, invID, paidAt, payment)
}

func TestRetryOnConflict(t *testing.T) {
	cs := &conflictingStore{Store: memory.New(), updateConflicts: 1, payConflicts: 1}
	svc := folio.New(cs)
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })

	actor := testActor()
	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	// One conflict per operation is within the default retry bound.
	updated, err := svc.UpdateInvoice(ctx, actor, inv.ID, folio.InvoiceUpdate{
		CustomerName:  "Globex",
		CustomerEmail: "ap@globex.test",
		Items:         []folio.ItemInput{{Description: "Widget", Quantity: 1, UnitPrice: types.USD(100)}},
	})
	if err != nil {
		t.Fatalf("UpdateInvoice after conflict: %v", err)
	}
	if updated.CustomerName != "Globex" {
		t.Errorf("CustomerName: got %q", updated.CustomerName)
	}

	paid, err := svc.PayInvoice(ctx, actor, inv.ID)
	if err != nil {
		t.Fatalf("PayInvoice after conflict: %v", err)
	}
	if paid.Status != invoice.StatusPaid {
		t.Errorf("Status: got %q, want Paid", paid.Status)
	}

	// Exactly one Payment despite the retried attempt.
	page, err := svc.ListTransactions(ctx, actor, folio.ListTransactionsRequest{
		InvoiceID: inv.ID,
		Type:      transaction.TypePayment,
	})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if page.Count != 1 {
		t.Errorf("payment count: got %d, want 1", page.Count)
	}
}

func TestRetryExhaustion(t *testing.T) {
	cs := &conflictingStore{Store: memory.New(), payConflicts: 10}
	svc := folio.New(cs, folio.WithPayRetries(2))
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })

	actor := testActor()
	inv, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	if _, err := svc.PayInvoice(ctx, actor, inv.ID); !errors.Is(err, folio.ErrConflict) {
		t.Fatalf("exhausted retries: got %v, want ErrConflict", err)
	}
	if cs.payConflicts != 8 {
		t.Errorf("store attempts: got %d, want 2", 10-cs.payConflicts)
	}

	// The invoice is still pending and payable once contention clears.
	cs.payConflicts = 0
	if _, err := svc.PayInvoice(ctx, actor, inv.ID); err != nil {
		t.Fatalf("PayInvoice after contention cleared: %v", err)
	}
}

func TestGetInvoiceByReference(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := testActor()

	created, err := svc.CreateInvoice(ctx, actor, validInput("INV-001"))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	got, err := svc.GetInvoiceByReference(ctx, actor, "INV-001")
	if err != nil {
		t.Fatalf("GetInvoiceByReference: %v", err)
	}
	if got.ID != created.ID {
		t.Error("lookup returned a different invoice")
	}

	if _, err := svc.GetInvoiceByReference(ctx, actor, "INV-999"); !errors.Is(err, folio.ErrInvoiceNotFound) {
		t.Errorf("got %v, want ErrInvoiceNotFound", err)
	}
}
