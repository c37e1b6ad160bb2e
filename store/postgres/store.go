// Package postgres implements the Folio store on PostgreSQL via Grove ORM.
//
// Invoices keep their line items as JSONB inside the invoice row, so a
// header-plus-items change is one statement. The pay transition is a
// conditional UPDATE on status, and invoice deletion cascades to the ledger
// through the declared foreign key.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/folio"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/invoice"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/transaction"
)

// compile-time interface check
var _ foliostore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("folio/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("folio/postgres: migration failed: %w", err)
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
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return folio.ErrReferenceExists
		}
		return mapErr(err)
	}

	tm := toTransactionModel(sale)
	if _, err := s.pg.NewInsert(tm).Exec(ctx); err != nil {
		// Compensate so the invoice never exists without its Sale entry.
		del := s.pg.NewDelete((*invoiceModel)(nil)).Where("id = $1", m.ID)
		_, _ = del.Exec(ctx) //nolint:errcheck // compensation is best-effort
		return mapErr(err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
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
	err := s.pg.NewSelect(m).
		Where("reference_number = $1", ref).
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
	q := s.pg.NewSelect(&models)
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

	// Conditional on status so an item replacement cannot race a concurrent
	// pay: the caller saw this status when it loaded the invoice.
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("customer_name = $1", m.CustomerName).
		Set("customer_email = $2", m.CustomerEmail).
		Set("customer_phone = $3", m.CustomerPhone).
		Set("customer_address = $4", m.CustomerAddress).
		Set("total_cents = $5", m.TotalCents).
		Set("currency = $6", m.Currency).
		Set("items = $7", m.Items).
		Set("updated_at = $8", m.UpdatedAt).
		Where("id = $9", m.ID).
		Where("status = $10", m.Status).
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
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusPaid)).
		Set("paid_at = $2", paidAt).
		Set("updated_at = $3", paidAt).
		Where("id = $4", invID.String()).
		Where("status = $5", string(invoice.StatusPending)).
		Exec(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Distinguish a missing invoice from one already out of Pending.
		m := new(invoiceModel)
		err := s.pg.NewSelect(m).Where("id = $1", invID.String()).Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return nil, folio.ErrInvoiceNotFound
			}
			return nil, mapErr(err)
		}
		return nil, &folio.StateError{Current: m.Status}
	}

	m := new(invoiceModel)
	if err := s.pg.NewSelect(m).Where("id = $1", invID.String()).Scan(ctx); err != nil {
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
	if _, err := s.pg.NewInsert(tm).Exec(ctx); err != nil {
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
	revert := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusPending)).
		Set("paid_at = $2", (*time.Time)(nil)).
		Where("id = $3", invID.String())
	_, _ = revert.Exec(ctx) //nolint:errcheck
}

func (s *Store) DeleteInvoice(ctx context.Context, invID id.InvoiceID) error {
	res, err := s.pg.NewDelete((*invoiceModel)(nil)).
		Where("id = $1", invID.String()).
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
	// Ledger entries go with the invoice via ON DELETE CASCADE.
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	m := new(transactionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", txnID.String()).
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
	q := s.pg.NewSelect(&models)
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

// invoiceConds builds WHERE fragments with embedded $n placeholders and the
// matching argument lists, one per fragment.
func invoiceConds(opts invoice.ListOpts) ([]string, [][]any) {
	var conds []string
	var args [][]any
	n := 0

	add := func(expr string, vals ...any) {
		conds = append(conds, expr)
		args = append(args, vals)
	}

	if opts.Status != "" {
		n++
		add(fmt.Sprintf("status = $%d", n), string(opts.Status))
	}
	if opts.CustomerName != "" {
		n++
		add(fmt.Sprintf("customer_name ILIKE $%d", n), likePattern(opts.CustomerName))
	}
	if opts.CustomerEmail != "" {
		n++
		add(fmt.Sprintf("customer_email ILIKE $%d", n), likePattern(opts.CustomerEmail))
	}
	if opts.CreatedAfter != nil {
		n++
		add(fmt.Sprintf("created_at >= $%d", n), *opts.CreatedAfter)
	}
	if opts.CreatedBefore != nil {
		n++
		add(fmt.Sprintf("created_at <= $%d", n), *opts.CreatedBefore)
	}
	if opts.Search != "" {
		p := likePattern(opts.Search)
		add(fmt.Sprintf("(reference_number ILIKE $%d OR customer_name ILIKE $%d OR customer_email ILIKE $%d)",
			n+1, n+2, n+3), p, p, p)
		n += 3
	}
	return conds, args
}

func transactionConds(opts transaction.ListOpts) ([]string, [][]any) {
	var conds []string
	var args [][]any
	n := 0

	add := func(expr string, vals ...any) {
		conds = append(conds, expr)
		args = append(args, vals)
	}

	if opts.Type != "" {
		n++
		add(fmt.Sprintf("transaction_type = $%d", n), string(opts.Type))
	}
	if !opts.InvoiceID.IsNil() {
		n++
		add(fmt.Sprintf("invoice_id = $%d", n), opts.InvoiceID.String())
	}
	if opts.DateAfter != nil {
		n++
		add(fmt.Sprintf("transaction_date >= $%d", n), *opts.DateAfter)
	}
	if opts.DateBefore != nil {
		n++
		add(fmt.Sprintf("transaction_date <= $%d", n), *opts.DateBefore)
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
	if err := s.pg.NewRaw(stmt, flat...).Scan(ctx, &total); err != nil {
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

// likePattern wraps a search term for substring matching, escaping the LIKE
// metacharacters in the term itself.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches postgres unique_violation failures (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

// mapErr translates driver-level contention into the retryable sentinel.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "40001") || strings.Contains(msg, "deadlock detected") {
		return fmt.Errorf("%w: %s", folio.ErrConflict, msg)
	}
	return err
}
