package transaction

import (
	"time"

	"github.com/xraph/folio/id"
)

// Order fields accepted when listing transactions.
var OrderFields = []string{"transaction_date", "amount", "transaction_type"}

// DefaultOrder is the ordering applied when the caller supplies none.
const DefaultOrder = "-transaction_date"

// ListOpts narrows and orders a transaction listing. Zero values mean
// "no constraint".
type ListOpts struct {
	Type       Type
	InvoiceID  id.InvoiceID
	DateAfter  *time.Time
	DateBefore *time.Time

	OrderField string
	OrderDesc  bool

	Limit  int
	Offset int
}
