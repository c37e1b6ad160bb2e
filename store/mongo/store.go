// Package mongo implements the Folio store on MongoDB via Grove ORM.
//
// Invoices are stored as single documents with their line items embedded, so
// the header and items always change atomically. The pay transition is a
// filtered update on {_id, status: Pending} whose matched count decides the
// winner when two callers race.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/folio"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/invoice"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/transaction"
)

// Collection name constants.
const (
	colInvoices     = "folio_invoices"
	colTransactions = "folio_transactions"
)

// compile-time interface check
var _ foliostore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the invoice and transaction collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("folio/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice, sale *transaction.Transaction) error {
	m := toInvoiceModel(inv)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return folio.ErrReferenceExists
		}
		return fmt.Errorf("folio/mongo: create invoice: %w", err)
	}

	tm := toTransactionModel(sale)
	if _, err := s.mdb.NewInsert(tm).Exec(ctx); err != nil {
		del := s.mdb.NewDelete((*invoiceModel)(nil)).Filter(bson.M{"_id": m.ID})
		_, _ = del.Exec(ctx) //nolint:errcheck // compensation is best-effort
		return fmt.Errorf("folio/mongo: record sale: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, folio.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("folio/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) GetInvoiceByReference(ctx context.Context, ref string) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"reference_number": ref}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, folio.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("folio/mongo: get invoice by reference: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, int, error) {
	filter := invoiceFilter(opts)

	n, err := s.mdb.Collection(colInvoices).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("folio/mongo: count invoices: %w", err)
	}

	var models []invoiceModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(sortSpec(invoiceSortKey(opts.OrderField), opts.OrderDesc))

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, 0, fmt.Errorf("folio/mongo: list invoices: %w", err)
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, 0, err
		}
		result[i] = inv
	}
	return result, int(n), nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": m.ID, "status": m.Status}).
		Set("customer_name", m.CustomerName).
		Set("customer_email", m.CustomerEmail).
		Set("customer_phone", m.CustomerPhone).
		Set("customer_address", m.CustomerAddress).
		Set("total_cents", m.TotalCents).
		Set("currency", m.Currency).
		Set("items", m.Items).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: update invoice: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetInvoice(ctx, inv.ID); err != nil {
			return err
		}
		return folio.ErrConflict
	}
	return nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, payment *transaction.Transaction) (*invoice.Invoice, error) {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String(), "status": string(invoice.StatusPending)}).
		Set("status", string(invoice.StatusPaid)).
		Set("paid_at", paidAt).
		Set("updated_at", paidAt).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("folio/mongo: mark invoice paid: %w", err)
	}
	if res.MatchedCount() == 0 {
		var m invoiceModel
		err := s.mdb.NewFind(&m).Filter(bson.M{"_id": invID.String()}).Scan(ctx)
		if err != nil {
			if isNoDocuments(err) {
				return nil, folio.ErrInvoiceNotFound
			}
			return nil, fmt.Errorf("folio/mongo: mark invoice paid: %w", err)
		}
		return nil, &folio.StateError{Current: m.Status}
	}

	var m invoiceModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"_id": invID.String()}).Scan(ctx); err != nil {
		s.revertPaid(ctx, invID)
		return nil, fmt.Errorf("folio/mongo: reload invoice: %w", err)
	}
	inv, err := fromInvoiceModel(&m)
	if err != nil {
		s.revertPaid(ctx, invID)
		return nil, err
	}

	payment.Amount = inv.Total
	payment.Description = fmt.Sprintf("Payment received for invoice %s", inv.ReferenceNumber)
	tm := toTransactionModel(payment)
	if _, err := s.mdb.NewInsert(tm).Exec(ctx); err != nil {
		s.revertPaid(ctx, invID)
		return nil, fmt.Errorf("folio/mongo: record payment: %w", err)
	}

	return inv, nil
}

// revertPaid undoes the Pending to Paid flip after a later step of the pay
// sequence failed, so a Paid document never exists without its Payment entry.
// Compensation is best-effort: if the invoice was deleted in the meantime
// there is nothing left to revert.
func (s *Store) revertPaid(ctx context.Context, invID id.InvoiceID) {
	revert := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String()}).
		Set("status", string(invoice.StatusPending)).
		Set("paid_at", nil)
	_, _ = revert.Exec(ctx) //nolint:errcheck
}

func (s *Store) DeleteInvoice(ctx context.Context, invID id.InvoiceID) error {
	res, err := s.mdb.NewDelete((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: delete invoice: %w", err)
	}
	if res.DeletedCount() == 0 {
		return folio.ErrInvoiceNotFound
	}

	// MongoDB has no foreign keys, the ledger rows are swept explicitly.
	_, err = s.mdb.NewDelete((*transactionModel)(nil)).
		Filter(bson.M{"invoice_id": invID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: delete invoice transactions: %w", err)
	}
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": txnID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, folio.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("folio/mongo: get transaction: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, int, error) {
	filter := transactionFilter(opts)

	n, err := s.mdb.Collection(colTransactions).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("folio/mongo: count transactions: %w", err)
	}

	var models []transactionModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(sortSpec(transactionSortKey(opts.OrderField), opts.OrderDesc))

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, 0, fmt.Errorf("folio/mongo: list transactions: %w", err)
	}

	result := make([]*transaction.Transaction, len(models))
	for i := range models {
		txn, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, 0, err
		}
		result[i] = txn
	}
	return result, int(n), nil
}

// ==================== Helpers ====================

func invoiceFilter(opts invoice.ListOpts) bson.M {
	filter := bson.M{}

	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.CustomerName != "" {
		filter["customer_name"] = containsPattern(opts.CustomerName)
	}
	if opts.CustomerEmail != "" {
		filter["customer_email"] = containsPattern(opts.CustomerEmail)
	}
	if opts.CreatedAfter != nil || opts.CreatedBefore != nil {
		created := bson.M{}
		if opts.CreatedAfter != nil {
			created["$gte"] = *opts.CreatedAfter
		}
		if opts.CreatedBefore != nil {
			created["$lte"] = *opts.CreatedBefore
		}
		filter["created_at"] = created
	}
	if opts.Search != "" {
		p := containsPattern(opts.Search)
		filter["$or"] = bson.A{
			bson.M{"reference_number": p},
			bson.M{"customer_name": p},
			bson.M{"customer_email": p},
		}
	}
	return filter
}

func transactionFilter(opts transaction.ListOpts) bson.M {
	filter := bson.M{}

	if opts.Type != "" {
		filter["transaction_type"] = string(opts.Type)
	}
	if !opts.InvoiceID.IsNil() {
		filter["invoice_id"] = opts.InvoiceID.String()
	}
	if opts.DateAfter != nil || opts.DateBefore != nil {
		date := bson.M{}
		if opts.DateAfter != nil {
			date["$gte"] = *opts.DateAfter
		}
		if opts.DateBefore != nil {
			date["$lte"] = *opts.DateBefore
		}
		filter["transaction_date"] = date
	}
	return filter
}

func invoiceSortKey(field string) string {
	switch field {
	case "updated_at":
		return "updated_at"
	case "total_amount":
		return "total_cents"
	case "reference_number":
		return "reference_number"
	default:
		return "created_at"
	}
}

func transactionSortKey(field string) string {
	switch field {
	case "amount":
		return "amount_cents"
	case "transaction_type":
		return "transaction_type"
	default:
		return "transaction_date"
	}
}

// sortSpec appends an ascending _id tiebreak so pagination is deterministic.
func sortSpec(key string, desc bool) bson.D {
	dir := 1
	if desc {
		dir = -1
	}
	return bson.D{{Key: key, Value: dir}, {Key: "_id", Value: 1}}
}

// containsPattern builds a case-insensitive substring regex with the term
// itself escaped.
func containsPattern(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isDuplicateKey matches unique index violations, including the server error
// string form surfaced through the driver.
func isDuplicateKey(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "E11000")
}

// migrationIndexes returns the index definitions for the folio collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvoices: {
			{
				Keys:    bson.D{{Key: "reference_number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colTransactions: {
			{
				Keys:    bson.D{{Key: "invoice_id", Value: 1}, {Key: "transaction_type", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
			{Keys: bson.D{{Key: "transaction_date", Value: -1}}},
		},
	}
}
