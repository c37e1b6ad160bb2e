// Package memory provides an in-memory Store implementation, suitable for
// tests and single-process deployments. A single mutex guards every mutation
// so the multi-entity invariants hold trivially.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/folio"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/invoice"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/transaction"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	invoices map[string]*invoice.Invoice
	byRef    map[string]string // reference_number -> invoice id

	transactions map[string]*transaction.Transaction
	txnOrder     []string // insertion order, stable base for sorting
}

func New() *Store {
	return &Store{
		invoices:     make(map[string]*invoice.Invoice),
		byRef:        make(map[string]string),
		transactions: make(map[string]*transaction.Transaction),
	}
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice, sale *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[inv.ReferenceNumber]; exists {
		return folio.ErrReferenceExists
	}

	s.invoices[inv.ID.String()] = inv.Clone()
	s.byRef[inv.ReferenceNumber] = inv.ID.String()
	s.appendTransaction(sale)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return inv.Clone(), nil
	}
	return nil, folio.ErrInvoiceNotFound
}

func (s *Store) GetInvoiceByReference(_ context.Context, ref string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if invID, ok := s.byRef[ref]; ok {
		return s.invoices[invID].Clone(), nil
	}
	return nil, folio.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*invoice.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if matchInvoice(inv, opts) {
			matched = append(matched, inv)
		}
	}

	sortInvoices(matched, opts.OrderField, opts.OrderDesc)

	total := len(matched)
	page := slicePage(matched, opts.Offset, opts.Limit)

	result := make([]*invoice.Invoice, len(page))
	for i, inv := range page {
		result[i] = inv.Clone()
	}
	return result, total, nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoices[inv.ID.String()]
	if !ok {
		return folio.ErrInvoiceNotFound
	}
	// The caller loaded the invoice at some earlier point; a status that has
	// moved underneath it means the update raced a concurrent pay.
	if existing.Status != inv.Status {
		return folio.ErrConflict
	}

	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) MarkInvoicePaid(_ context.Context, invID id.InvoiceID, paidAt time.Time, payment *transaction.Transaction) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return nil, folio.ErrInvoiceNotFound
	}
	if inv.Status != invoice.StatusPending {
		return nil, &folio.StateError{Current: string(inv.Status)}
	}

	inv.Status = invoice.StatusPaid
	inv.PaidAt = &paidAt
	inv.UpdatedAt = paidAt

	payment.Amount = inv.Total
	payment.Description = fmt.Sprintf("Payment received for invoice %s", inv.ReferenceNumber)
	s.appendTransaction(payment)

	return inv.Clone(), nil
}

func (s *Store) DeleteInvoice(_ context.Context, invID id.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return folio.ErrInvoiceNotFound
	}

	delete(s.invoices, invID.String())
	delete(s.byRef, inv.ReferenceNumber)

	// Cascade: drop every ledger entry for this invoice.
	kept := s.txnOrder[:0]
	for _, txnID := range s.txnOrder {
		if s.transactions[txnID].InvoiceID == invID {
			delete(s.transactions, txnID)
			continue
		}
		kept = append(kept, txnID)
	}
	s.txnOrder = kept
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if txn, ok := s.transactions[txnID.String()]; ok {
		return txn.Clone(), nil
	}
	return nil, folio.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*transaction.Transaction, 0, len(s.txnOrder))
	for _, txnID := range s.txnOrder {
		txn := s.transactions[txnID]
		if matchTransaction(txn, opts) {
			matched = append(matched, txn)
		}
	}

	sortTransactions(matched, opts.OrderField, opts.OrderDesc)

	total := len(matched)
	page := slicePage(matched, opts.Offset, opts.Limit)

	result := make([]*transaction.Transaction, len(page))
	for i, txn := range page {
		result[i] = txn.Clone()
	}
	return result, total, nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ==================== Helpers ====================

// appendTransaction stores a clone; callers hold the write lock.
func (s *Store) appendTransaction(txn *transaction.Transaction) {
	s.transactions[txn.ID.String()] = txn.Clone()
	s.txnOrder = append(s.txnOrder, txn.ID.String())
}

func matchInvoice(inv *invoice.Invoice, opts invoice.ListOpts) bool {
	if opts.Status != "" && inv.Status != opts.Status {
		return false
	}
	if opts.CustomerName != "" && !containsFold(inv.CustomerName, opts.CustomerName) {
		return false
	}
	if opts.CustomerEmail != "" && !containsFold(inv.CustomerEmail, opts.CustomerEmail) {
		return false
	}
	if opts.CreatedAfter != nil && inv.CreatedAt.Before(*opts.CreatedAfter) {
		return false
	}
	if opts.CreatedBefore != nil && inv.CreatedAt.After(*opts.CreatedBefore) {
		return false
	}
	if opts.Search != "" {
		if !containsFold(inv.ReferenceNumber, opts.Search) &&
			!containsFold(inv.CustomerName, opts.Search) &&
			!containsFold(inv.CustomerEmail, opts.Search) {
			return false
		}
	}
	return true
}

func matchTransaction(txn *transaction.Transaction, opts transaction.ListOpts) bool {
	if opts.Type != "" && txn.Type != opts.Type {
		return false
	}
	if !opts.InvoiceID.IsNil() && txn.InvoiceID != opts.InvoiceID {
		return false
	}
	if opts.DateAfter != nil && txn.Date.Before(*opts.DateAfter) {
		return false
	}
	if opts.DateBefore != nil && txn.Date.After(*opts.DateBefore) {
		return false
	}
	return true
}

func sortInvoices(invs []*invoice.Invoice, field string, desc bool) {
	sort.SliceStable(invs, func(i, j int) bool {
		a, b := invs[i], invs[j]
		if desc {
			a, b = b, a
		}

		var less, equal bool
		switch field {
		case "updated_at":
			less, equal = a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
		case "total_amount":
			less, equal = a.Total.Amount < b.Total.Amount, a.Total.Amount == b.Total.Amount
		case "reference_number":
			less, equal = a.ReferenceNumber < b.ReferenceNumber, a.ReferenceNumber == b.ReferenceNumber
		default: // created_at
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
		if equal {
			// Deterministic tiebreak, always ascending by id.
			return invs[i].ID.String() < invs[j].ID.String()
		}
		return less
	})
}

func sortTransactions(txns []*transaction.Transaction, field string, desc bool) {
	sort.SliceStable(txns, func(i, j int) bool {
		a, b := txns[i], txns[j]
		if desc {
			a, b = b, a
		}

		var less, equal bool
		switch field {
		case "amount":
			less, equal = a.Amount.Amount < b.Amount.Amount, a.Amount.Amount == b.Amount.Amount
		case "transaction_type":
			less, equal = a.Type < b.Type, a.Type == b.Type
		default: // transaction_date
			less, equal = a.Date.Before(b.Date), a.Date.Equal(b.Date)
		}
		if equal {
			return txns[i].ID.String() < txns[j].ID.String()
		}
		return less
	})
}

func slicePage[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
