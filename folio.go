package folio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/folio/auth"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/invoice"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/query"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/transaction"
	"github.com/xraph/folio/types"
)

// Service is the main invoicing engine. Every invoice write is paired with
// its ledger transaction by the store, so the two never drift apart.
type Service struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	authz   auth.Authorizer

	// Configuration
	payRetries int
}

// New creates a new Service instance.
func New(s store.Store, opts ...Option) *Service {
	svc := &Service{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		authz:      auth.AllowAll(),
		payRetries: 3,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
		s.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(s *Service) {
		_ = s.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithAuthorizer sets the authorization policy.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(s *Service) {
		s.authz = a
	}
}

// WithPayRetries bounds how often a write is retried after losing a
// concurrent-modification race.
func WithPayRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.payRetries = n
		}
	}
}

// Plugins returns the plugin registry.
func (s *Service) Plugins() *plugin.Registry { return s.plugins }

// Start migrates the store and initializes plugins.
func (s *Service) Start(ctx context.Context) error {
	if err := s.store.Migrate(ctx); err != nil {
		return err
	}

	s.plugins.EmitInit(ctx, s)

	s.logger.Info("folio started",
		"plugins", s.plugins.Count(),
		"pay_retries", s.payRetries,
	)

	return nil
}

// Stop shuts down the Service.
func (s *Service) Stop() error {
	ctx := context.Background()
	s.plugins.EmitShutdown(ctx)

	return s.store.Close()
}

// ──────────────────────────────────────────────────
// Invoice Management
// ──────────────────────────────────────────────────

// CreateInvoice validates the payload, persists the invoice with a Pending
// status, and records the paired Sale transaction in the same store call.
func (s *Service) CreateInvoice(ctx context.Context, actor *auth.Identity, in CreateInvoiceInput) (*invoice.Invoice, error) {
	if err := s.authorize(ctx, actor, auth.OpInvoiceCreate); err != nil {
		return nil, err
	}
	if err := validateCreate(&in); err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		Entity:          types.NewEntity(),
		ID:              id.NewInvoiceID(),
		ReferenceNumber: in.ReferenceNumber,
		CustomerName:    in.CustomerName,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		CustomerAddress: in.CustomerAddress,
		Status:          invoice.StatusPending,
		CreatedBy:       actor.ID,
	}
	inv.Items = buildItems(inv.ID, in.Items)
	inv.Recalculate()

	sale := &transaction.Transaction{
		Entity:      types.NewEntity(),
		ID:          id.NewTransactionID(),
		InvoiceID:   inv.ID,
		Type:        transaction.TypeSale,
		Amount:      inv.Total,
		Description: fmt.Sprintf("Sale transaction for invoice %s", inv.ReferenceNumber),
		Date:        time.Now().UTC(),
		CreatedBy:   actor.ID,
	}

	if err := s.store.CreateInvoice(ctx, inv, sale); err != nil {
		if errors.Is(err, ErrReferenceExists) {
			ve := &ValidationError{}
			ve.Add("reference_number", referenceExistsMessage(in.ReferenceNumber))
			return nil, ve
		}
		return nil, err
	}

	s.logger.Info("invoice created",
		"invoice_id", inv.ID.String(),
		"reference_number", inv.ReferenceNumber,
		"total", inv.Total.String(),
	)

	s.plugins.EmitInvoiceCreated(ctx, inv)
	s.plugins.EmitTransactionRecorded(ctx, sale)
	return inv, nil
}

// GetInvoice retrieves an invoice by ID.
func (s *Service) GetInvoice(ctx context.Context, actor *auth.Identity, invID id.InvoiceID) (*invoice.Invoice, error) {
	if err := s.authorize(ctx, actor, auth.OpInvoiceRead); err != nil {
		return nil, err
	}
	return s.store.GetInvoice(ctx, invID)
}

// GetInvoiceByReference retrieves an invoice by its reference number.
func (s *Service) GetInvoiceByReference(ctx context.Context, actor *auth.Identity, ref string) (*invoice.Invoice, error) {
	if err := s.authorize(ctx, actor, auth.OpInvoiceRead); err != nil {
		return nil, err
	}
	return s.store.GetInvoiceByReference(ctx, ref)
}

// ListInvoicesRequest selects, orders, and pages invoices.
type ListInvoicesRequest struct {
	Status        invoice.Status
	CustomerName  string
	CustomerEmail string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Search        string
	Order         string
	Page          query.PageRequest
}

// ListInvoices returns one page of invoices matching the request.
func (s *Service) ListInvoices(ctx context.Context, actor *auth.Identity, req ListInvoicesRequest) (*query.Page[*invoice.Invoice], error) {
	if err := s.authorize(ctx, actor, auth.OpInvoiceRead); err != nil {
		return nil, err
	}

	sort, err := query.ParseSort(req.Order, invoice.DefaultOrder, invoice.OrderFields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	pr := req.Page.Normalize()

	opts := invoice.ListOpts{
		Status:        req.Status,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CreatedAfter:  req.CreatedAfter,
		CreatedBefore: req.CreatedBefore,
		Search:        req.Search,
		OrderField:    sort.Field,
		OrderDesc:     sort.Desc,
		Limit:         pr.PageSize,
		Offset:        pr.Offset(),
	}

	results, total, err := s.store.ListInvoices(ctx, opts)
	if err != nil {
		return nil, err
	}

	page := query.NewPage(results, total, pr)
	return &page, nil
}

// UpdateInvoice replaces the mutable fields of a pending invoice and
// recomputes its total. Item changes on a paid invoice are rejected.
func (s *Service) UpdateInvoice(ctx context.Context, actor *auth.Identity, invID id.InvoiceID, upd InvoiceUpdate) (*invoice.Invoice, error) {
	if err := s.authorize(ctx, actor, auth.OpInvoiceUpdate); err != nil {
		return nil, err
	}
	if err := validateUpdate(&upd); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < s.payRetries; attempt++ {
		old, err := s.store.GetInvoice(ctx, invID)
		if err != nil {
			return nil, err
		}
		if !old.IsPending() {
			return nil, ErrInvoicePaid
		}

		inv := old.Clone()
		inv.CustomerName = upd.CustomerName
		inv.CustomerEmail = upd.CustomerEmail
		inv.CustomerPhone = upd.CustomerPhone
		inv.CustomerAddress = upd.CustomerAddress
		inv.Items = buildItems(inv.ID, upd.Items)
		inv.Recalculate()
		inv.Touch()

		err = s.store.UpdateInvoice(ctx, inv)
		if err == nil {
			s.logger.Info("invoice updated",
				"invoice_id", inv.ID.String(),
				"total", inv.Total.String(),
			)
			s.plugins.EmitInvoiceUpdated(ctx, old, inv)
			return inv, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// PatchInvoice applies a partial update. Customer fields may change on any
// invoice; item changes require a pending one.
func (s *Service) PatchInvoice(ctx context.Context, actor *auth.Identity, invID id.InvoiceID, patch InvoicePatch) (*invoice.Invoice, error) {
	if err := s.authorize(ctx, actor, auth.OpInvoiceUpdate); err != nil {
		return nil, err
	}
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < s.payRetries; attempt++ {
		old, err := s.store.GetInvoice(ctx, invID)
		if err != nil {
			return nil, err
		}
		if patch.Items != nil && !old.IsPending() {
			return nil, ErrInvoicePaid
		}

		inv := old.Clone()
		if patch.CustomerName != nil {
			inv.CustomerName = *patch.CustomerName
		}
		if patch.CustomerEmail != nil {
			inv.CustomerEmail = *patch.CustomerEmail
		}
		if patch.CustomerPhone != nil {
			inv.CustomerPhone = *patch.CustomerPhone
		}
		if patch.CustomerAddress != nil {
			inv.CustomerAddress = *patch.CustomerAddress
		}
		if patch.Items != nil {
			inv.Items = buildItems(inv.ID, *patch.Items)
			inv.Recalculate()
		}
		inv.Touch()

		err = s.store.UpdateInvoice(ctx, inv)
		if err == nil {
			s.plugins.EmitInvoiceUpdated(ctx, old, inv)
			return inv, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// PayInvoice marks a pending invoice as paid and records the paired Payment
// transaction for the full invoice amount. The store performs the transition
// conditionally, so exactly one of any concurrent callers wins.
func (s *Service) PayInvoice(ctx context.Context, actor *auth.Identity, invID id.InvoiceID) (*invoice.Invoice, error) {
	if err := s.authorize(ctx, actor, auth.OpInvoicePay); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < s.payRetries; attempt++ {
		paidAt := time.Now().UTC()
		payment := &transaction.Transaction{
			Entity:    types.NewEntity(),
			ID:        id.NewTransactionID(),
			InvoiceID: invID,
			Type:      transaction.TypePayment,
			Date:      paidAt,
			CreatedBy: actor.ID,
		}

		inv, err := s.store.MarkInvoicePaid(ctx, invID, paidAt, payment)
		if err == nil {
			s.logger.Info("invoice paid",
				"invoice_id", inv.ID.String(),
				"reference_number", inv.ReferenceNumber,
				"amount", inv.Total.String(),
			)
			s.plugins.EmitInvoicePaid(ctx, inv)
			s.plugins.EmitTransactionRecorded(ctx, payment)
			return inv, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// DeleteInvoice removes an invoice and its ledger transactions.
func (s *Service) DeleteInvoice(ctx context.Context, actor *auth.Identity, invID id.InvoiceID) error {
	if err := s.authorize(ctx, actor, auth.OpInvoiceDelete); err != nil {
		return err
	}

	if err := s.store.DeleteInvoice(ctx, invID); err != nil {
		return err
	}

	s.logger.Info("invoice deleted", "invoice_id", invID.String())
	s.plugins.EmitInvoiceDeleted(ctx, invID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Transaction Ledger
// ──────────────────────────────────────────────────

// GetTransaction retrieves a ledger transaction by ID.
func (s *Service) GetTransaction(ctx context.Context, actor *auth.Identity, txnID id.TransactionID) (*transaction.Transaction, error) {
	if err := s.authorize(ctx, actor, auth.OpTransactionRead); err != nil {
		return nil, err
	}
	return s.store.GetTransaction(ctx, txnID)
}

// ListTransactionsRequest selects, orders, and pages ledger transactions.
type ListTransactionsRequest struct {
	Type       transaction.Type
	InvoiceID  id.InvoiceID
	DateAfter  *time.Time
	DateBefore *time.Time
	Order      string
	Page       query.PageRequest
}

// ListTransactions returns one page of transactions matching the request.
func (s *Service) ListTransactions(ctx context.Context, actor *auth.Identity, req ListTransactionsRequest) (*query.Page[*transaction.Transaction], error) {
	if err := s.authorize(ctx, actor, auth.OpTransactionRead); err != nil {
		return nil, err
	}

	sort, err := query.ParseSort(req.Order, transaction.DefaultOrder, transaction.OrderFields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	pr := req.Page.Normalize()

	opts := transaction.ListOpts{
		Type:       req.Type,
		InvoiceID:  req.InvoiceID,
		DateAfter:  req.DateAfter,
		DateBefore: req.DateBefore,
		OrderField: sort.Field,
		OrderDesc:  sort.Desc,
		Limit:      pr.PageSize,
		Offset:     pr.Offset(),
	}

	results, total, err := s.store.ListTransactions(ctx, opts)
	if err != nil {
		return nil, err
	}

	page := query.NewPage(results, total, pr)
	return &page, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Service) authorize(ctx context.Context, actor *auth.Identity, op auth.Operation) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if s.authz == nil {
		return nil
	}
	if err := s.authz.Authorize(ctx, actor, op); err != nil {
		return fmt.Errorf("%w: %s", ErrForbidden, op)
	}
	return nil
}

// buildItems materializes input lines into invoice items with fresh IDs.
func buildItems(invID id.InvoiceID, inputs []ItemInput) []invoice.Item {
	items := make([]invoice.Item, len(inputs))
	for i, in := range inputs {
		items[i] = invoice.Item{
			ID:          id.NewItemID(),
			InvoiceID:   invID,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
		}
	}
	return items
}
