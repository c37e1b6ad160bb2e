package invoice

import "time"

// Order fields accepted when listing invoices. "total_amount" sorts by the
// derived total; everything else maps directly onto a column.
var OrderFields = []string{"created_at", "updated_at", "total_amount", "reference_number"}

// DefaultOrder is the ordering applied when the caller supplies none.
const DefaultOrder = "-created_at"

// ListOpts narrows and orders an invoice listing. Stores apply every set
// field; zero values mean "no constraint". Substring matches are
// case-insensitive.
type ListOpts struct {
	Status        Status
	CustomerName  string
	CustomerEmail string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// Search matches reference_number, customer_name, or customer_email.
	Search string

	OrderField string
	OrderDesc  bool

	Limit  int
	Offset int
}
