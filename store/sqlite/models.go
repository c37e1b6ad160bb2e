package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/invoice"
	"github.com/xraph/folio/transaction"
	"github.com/xraph/folio/types"
)

// Line items live as a JSON document inside the invoice row so that header
// and items always change in a single statement.
type invoiceModel struct {
	grove.BaseModel `grove:"table:folio_invoices"`

	ID              string          `grove:"id,pk"`
	ReferenceNumber string          `grove:"reference_number"`
	CustomerName    string          `grove:"customer_name"`
	CustomerEmail   string          `grove:"customer_email"`
	CustomerPhone   string          `grove:"customer_phone"`
	CustomerAddress string          `grove:"customer_address"`
	Status          string          `grove:"status"`
	TotalCents      int64           `grove:"total_cents"`
	Currency        string          `grove:"currency"`
	Items           json.RawMessage `grove:"items"`
	CreatedBy       string          `grove:"created_by"`
	PaidAt          *time.Time      `grove:"paid_at"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

type itemRecord struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitCents   int64  `json:"unit_cents"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	records := make([]itemRecord, len(inv.Items))
	for i, it := range inv.Items {
		records[i] = itemRecord{
			ID:          it.ID.String(),
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitCents:   it.UnitPrice.Amount,
		}
	}
	items, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("folio/sqlite: encode items for invoice %s: %w", inv.ID, err)
	}

	return &invoiceModel{
		ID:              inv.ID.String(),
		ReferenceNumber: inv.ReferenceNumber,
		CustomerName:    inv.CustomerName,
		CustomerEmail:   inv.CustomerEmail,
		CustomerPhone:   inv.CustomerPhone,
		CustomerAddress: inv.CustomerAddress,
		Status:          string(inv.Status),
		TotalCents:      inv.Total.Amount,
		Currency:        inv.Total.Currency,
		Items:           items,
		CreatedBy:       inv.CreatedBy.String(),
		PaidAt:          inv.PaidAt,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}, nil
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}

	// A corrupt items column must fail loudly rather than load an invoice
	// with no lines.
	var records []itemRecord
	if len(m.Items) > 0 {
		if err := json.Unmarshal(m.Items, &records); err != nil {
			return nil, fmt.Errorf("folio/sqlite: decode items for invoice %s: %w", m.ID, err)
		}
	}

	items := make([]invoice.Item, len(records))
	for i, r := range records {
		itemID, err := id.ParseItemID(r.ID)
		if err != nil {
			return nil, err
		}
		items[i] = invoice.Item{
			ID:          itemID,
			InvoiceID:   invID,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   types.Money{Amount: r.UnitCents, Currency: m.Currency},
		}
	}

	var createdBy id.UserID
	if m.CreatedBy != "" {
		createdBy, err = id.ParseUserID(m.CreatedBy)
		if err != nil {
			return nil, err
		}
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              invID,
		ReferenceNumber: m.ReferenceNumber,
		CustomerName:    m.CustomerName,
		CustomerEmail:   m.CustomerEmail,
		CustomerPhone:   m.CustomerPhone,
		CustomerAddress: m.CustomerAddress,
		Status:          invoice.Status(m.Status),
		Total:           types.Money{Amount: m.TotalCents, Currency: m.Currency},
		Items:           items,
		CreatedBy:       createdBy,
		PaidAt:          m.PaidAt,
	}, nil
}

type transactionModel struct {
	grove.BaseModel `grove:"table:folio_transactions"`

	ID              string    `grove:"id,pk"`
	InvoiceID       string    `grove:"invoice_id"`
	Type            string    `grove:"transaction_type"`
	AmountCents     int64     `grove:"amount_cents"`
	Currency        string    `grove:"currency"`
	Description     string    `grove:"description"`
	TransactionDate time.Time `grove:"transaction_date"`
	CreatedBy       string    `grove:"created_by"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	return &transactionModel{
		ID:              t.ID.String(),
		InvoiceID:       t.InvoiceID.String(),
		Type:            string(t.Type),
		AmountCents:     t.Amount.Amount,
		Currency:        t.Amount.Currency,
		Description:     t.Description,
		TransactionDate: t.Date,
		CreatedBy:       t.CreatedBy.String(),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}

	var createdBy id.UserID
	if m.CreatedBy != "" {
		createdBy, err = id.ParseUserID(m.CreatedBy)
		if err != nil {
			return nil, err
		}
	}

	return &transaction.Transaction{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          txnID,
		InvoiceID:   invID,
		Type:        transaction.Type(m.Type),
		Amount:      types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Description: m.Description,
		Date:        m.TransactionDate,
		CreatedBy:   createdBy,
	}, nil
}
