// Package sqlite implements the Folio store on SQLite via Grove ORM.
//
// The layout mirrors the postgres driver: line items embedded as JSON in the
// invoice row, a conditional UPDATE on status for the pay transition, and an
// explicit ledger cleanup on delete (SQLite only honors the declared cascade
// when foreign keys are enabled on the connection).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/folio"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/invoice"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/transaction"
)

// compile-time interface check
var _ foliostore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("folio/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("folio/sqlite: migration failed: %w", err)
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
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return folio.ErrReferenceExists
		}
		return mapErr(err)
	}

	tm := toTransactionModel(sale)
	if _, err := s.sdb.NewInsert(tm).Exec(ctx); err != nil {
		del := s.sdb.NewDelete((*invoiceModel)(nil)).Where("id = ?", m.ID)
		_, _ = del.Exec(ctx) //nolint:errcheck // compensation is best-effort
		return mapErr(err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, folio.ErrInvoiceNotFound
		}
		return nil, mapErr(err)
	}
	return fromInvoiceModel(m)
}

func (s *Store) GetInvoiceByReference(ctx context.Context, ref string) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("reference_number = ?", ref).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, folio.ErrInvoiceNotFound
		}
		return nil, mapErr(err)
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, int, error) {
	conds, args := invoiceConds(opts)

	total, err := s.count(ctx, "folio_invoices", conds, args)
	if err != nil {
		return nil, 0, mapErr(err)
	}

	var models []invoiceModel
	q := s.sdb.NewSelect(&models)
	for i, c := range conds {
		q = q.Where(c, args[i]...)
	}
	q = q.OrderExpr(orderExpr(invoiceOrderColumn(opts.OrderField), opts.OrderDesc))
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, 0, mapErr(err)
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, 0, err
		}
		result[i] = inv
	}
	return result, total, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()

	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("customer_name = ?", m.CustomerName).
		Set("customer_email = ?", m.CustomerEmail).
		Set("customer_phone = ?", m.CustomerPhone).
		Set("customer_address = ?", m.CustomerAddress).
		Set("total_cents = ?", m.TotalCents).
		Set("currency = ?", m.Currency).
		Set("items = ?", m.Items).
		Set("updated_at = ?", m.UpdatedAt).
		Where("id = ?", m.ID).
		Where("status = ?", m.Status).
		Exec(ctx)
	if err != nil {
		return mapErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetInvoice(ctx, inv.ID); err != nil {
			return err
		}
		return folio.ErrConflict
	}
	return nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, payment *transaction.Transaction) (*invoice.Invoice, error) {
	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusPaid)).
		Set("paid_at = ?", paidAt).
		Set("updated_at = ?", paidAt).
		Where("id = ?", invID.String()).
		Where("status = ?", string(invoice.StatusPending)).
		Exec(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		m := new(invoiceModel)
		err := s.sdb.NewSelect(m).Where("id = ?", invID.String()).Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return nil, folio.ErrInvoiceNotFound
			}
			return nil, mapErr(err)
		}
		return nil, &folio.StateError{Current: m.Status}
	}

	m := new(invoiceModel)
	if err := s.sdb.NewSelect(m).Where("id = ?", invID.String()).Scan(ctx); err != nil {
		s.revertPaid(ctx, invID)
		return nil, mapErr(err)
	}
	inv, err := fromInvoiceModel(m)
	if err != nil {
		s.revertPaid(ctx, invID)
		return nil, err
	}

	payment.Amount = inv.Total
	payment.Description = fmt.Sprintf("Payment received for invoice %s", inv.ReferenceNumber)
	tm := toTransactionModel(payment)
	if _, err := s.sdb.NewInsert(tm).Exec(ctx); err != nil {
		s.revertPaid(ctx, invID)
		return nil, mapErr(err)
	}

	return inv, nil
}

// revertPaid undoes the Pending to Paid flip after a later step of the pay
// sequence failed, so a Paid row never exists without its Payment entry.
// Compensation is best-effort: if the invoice was deleted in the meantime
// there is nothing left to revert.
func (s *Store) revertPaid(ctx context.Context, invID id.InvoiceID) {
	revert := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusPending)).
		Set("paid_at = ?", (*time.Time)(nil)).
		Where("id = ?", invID.String())
	_, _ = revert.Exec(ctx) //nolint:errcheck
}

func (s *Store) DeleteInvoice(ctx context.Context, invID id.InvoiceID) error {
	res, err := s.sdb.NewDelete((*invoiceModel)(nil)).
		Where("id = ?", invID.String()).
		Exec(ctx)
	if err != nil {
		return mapErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return folio.ErrInvoiceNotFound
	}

	// The declared cascade only fires when the connection has foreign keys
	// enabled, so sweep the ledger explicitly as well.
	_, err = s.sdb.NewDelete((*transactionModel)(nil)).
		Where("invoice_id = ?", invID.String()).
		Exec(ctx)
	return mapErr(err)
}

// ==================== Transaction Store ====================

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	m := new(transactionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", txnID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, folio.ErrTransactionNotFound
		}
		return nil, mapErr(err)
	}
	return fromTransactionModel(m)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, int, error) {
	conds, args := transactionConds(opts)

	total, err := s.count(ctx, "folio_transactions", conds, args)
	if err != nil {
		return nil, 0, mapErr(err)
	}

	var models []transactionModel
	q := s.sdb.NewSelect(&models)
	for i, c := range conds {
		q = q.Where(c, args[i]...)
	}
	q = q.OrderExpr(orderExpr(transactionOrderColumn(opts.OrderField), opts.OrderDesc))
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, 0, mapErr(err)
	}

	result := make([]*transaction.Transaction, len(models))
	for i := range models {
		txn, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, 0, err
		}
		result[i] = txn
	}
	return result, total, nil
}

// ==================== Helpers ====================

// invoiceConds builds WHERE fragments with ? placeholders and the matching
// argument lists, one per fragment. SQLite LIKE is case-insensitive for
// ASCII only, so substring matches fold both sides explicitly.
func invoiceConds(opts invoice.ListOpts) ([]string, [][]any) {
	var conds []string
	var args [][]any

	add := func(expr string, vals ...any) {
		conds = append(conds, expr)
		args = append(args, vals)
	}

	if opts.Status != "" {
		add("status = ?", string(opts.Status))
	}
	if opts.CustomerName != "" {
		add("lower(customer_name) LIKE ?", likePattern(opts.CustomerName))
	}
	if opts.CustomerEmail != "" {
		add("lower(customer_email) LIKE ?", likePattern(opts.CustomerEmail))
	}
	if opts.CreatedAfter != nil {
		add("created_at >= ?", *opts.CreatedAfter)
	}
	if opts.CreatedBefore != nil {
		add("created_at <= ?", *opts.CreatedBefore)
	}
	if opts.Search != "" {
		p := likePattern(opts.Search)
		add("(lower(reference_number) LIKE ? OR lower(customer_name) LIKE ? OR lower(customer_email) LIKE ?)",
			p, p, p)
	}
	return conds, args
}

func transactionConds(opts transaction.ListOpts) ([]string, [][]any) {
	var conds []string
	var args [][]any

	add := func(expr string, vals ...any) {
		conds = append(conds, expr)
		args = append(args, vals)
	}

	if opts.Type != "" {
		add("transaction_type = ?", string(opts.Type))
	}
	if !opts.InvoiceID.IsNil() {
		add("invoice_id = ?", opts.InvoiceID.String())
	}
	if opts.DateAfter != nil {
		add("transaction_date >= ?", *opts.DateAfter)
	}
	if opts.DateBefore != nil {
		add("transaction_date <= ?", *opts.DateBefore)
	}
	return conds, args
}

// count runs a raw COUNT(*) over the same WHERE fragments as the page query.
func (s *Store) count(ctx context.Context, table string, conds []string, args [][]any) (int, error) {
	stmt := "SELECT COUNT(*) FROM " + table
	if len(conds) > 0 {
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}
	var flat []any
	for _, a := range args {
		flat = append(flat, a...)
	}

	var total int
	if err := s.sdb.NewRaw(stmt, flat...).Scan(ctx, &total); err != nil {
		return 0, err
	}
	return total, nil
}

func invoiceOrderColumn(field string) string {
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

func transactionOrderColumn(field string) string {
	switch field {
	case "amount":
		return "amount_cents"
	case "transaction_type":
		return "transaction_type"
	default:
		return "transaction_date"
	}
}

// orderExpr appends an ascending id tiebreak so pagination is deterministic.
func orderExpr(column string, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s, id ASC", column, dir)
}

// likePattern lowercases and wraps a search term for substring matching,
// escaping the LIKE metacharacters in the term itself.
func likePattern(term string) string {
	r := strings.NewReplacer(`%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches SQLite unique constraint failures.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapErr translates SQLITE_BUSY/locked contention into the retryable sentinel.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %s", folio.ErrConflict, msg)
	}
	return err
}
