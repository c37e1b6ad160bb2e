// Package observability provides a metrics extension for Folio that records
// lifecycle event counts via a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/folio/invoice"
	"github.com/xraph/folio/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated      = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid         = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDeleted      = (*MetricsExtension)(nil)
	_ plugin.OnTransactionRecorded = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Folio plugin to automatically track invoicing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceCreated Counter
	InvoiceUpdated Counter
	InvoicePaid    Counter
	InvoiceDeleted Counter
	InvoiceTotal   Histogram

	// Ledger metrics
	TransactionsRecorded Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Invoice metrics
		InvoiceCreated: factory.Counter("folio.invoice.created"),
		InvoiceUpdated: factory.Counter("folio.invoice.updated"),
		InvoicePaid:    factory.Counter("folio.invoice.paid"),
		InvoiceDeleted: factory.Counter("folio.invoice.deleted"),
		InvoiceTotal:   factory.Histogram("folio.invoice.total_amount"),

		// Ledger metrics
		TransactionsRecorded: factory.Counter("folio.transaction.recorded"),

		// Error metrics
		StoreErrors:  factory.Counter("folio.store.errors"),
		PluginErrors: factory.Counter("folio.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, inv interface{}) error {
	m.InvoiceCreated.Inc()
	if v, ok := inv.(*invoice.Invoice); ok {
		m.InvoiceTotal.Observe(float64(v.Total.Amount) / 100)
	}
	return nil
}

// OnInvoiceUpdated implements plugin.OnInvoiceUpdated.
func (m *MetricsExtension) OnInvoiceUpdated(_ context.Context, _, _ interface{}) error {
	m.InvoiceUpdated.Inc()
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ interface{}) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceDeleted implements plugin.OnInvoiceDeleted.
func (m *MetricsExtension) OnInvoiceDeleted(_ context.Context, _ string) error {
	m.InvoiceDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (m *MetricsExtension) OnTransactionRecorded(_ context.Context, _ interface{}) error {
	m.TransactionsRecorded.Inc()
	return nil
}
