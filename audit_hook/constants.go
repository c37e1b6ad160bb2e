package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceCreated = "invoice.created"
	ActionInvoiceUpdated = "invoice.updated"
	ActionInvoicePaid    = "invoice.paid"
	ActionInvoiceDeleted = "invoice.deleted"

	// Ledger actions
	ActionTransactionRecorded = "transaction.recorded"
)

// Resource constants for audit events.
const (
	ResourceInvoice     = "invoice"
	ResourceTransaction = "transaction"
)

// Category constants for audit events.
const (
	CategorySales   = "sales"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
