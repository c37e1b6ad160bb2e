package folio

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/xraph/folio/types"
)

// ItemInput is one requested invoice line. The line total and the invoice
// total are always derived server-side.
type ItemInput struct {
	Description string      `json:"description"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   types.Money `json:"unit_price"`
}

// CreateInvoiceInput is the payload for creating an invoice.
type CreateInvoiceInput struct {
	ReferenceNumber string      `json:"reference_number"`
	CustomerName    string      `json:"customer_name"`
	CustomerEmail   string      `json:"customer_email"`
	CustomerPhone   string      `json:"customer_phone,omitempty"`
	CustomerAddress string      `json:"customer_address,omitempty"`
	Items           []ItemInput `json:"items"`
}

// InvoiceUpdate is a full replacement of the mutable invoice fields. The
// reference number and status are not part of the payload; neither can be
// changed through an update.
type InvoiceUpdate struct {
	CustomerName    string      `json:"customer_name"`
	CustomerEmail   string      `json:"customer_email"`
	CustomerPhone   string      `json:"customer_phone,omitempty"`
	CustomerAddress string      `json:"customer_address,omitempty"`
	Items           []ItemInput `json:"items"`
}

// InvoicePatch updates only the fields that are set. A nil Items leaves the
// line items untouched, which is the only item mutation allowed on a paid
// invoice (none).
type InvoicePatch struct {
	CustomerName    *string      `json:"customer_name,omitempty"`
	CustomerEmail   *string      `json:"customer_email,omitempty"`
	CustomerPhone   *string      `json:"customer_phone,omitempty"`
	CustomerAddress *string      `json:"customer_address,omitempty"`
	Items           *[]ItemInput `json:"items,omitempty"`
}

// Validation messages. These are part of the API surface; transports return
// them verbatim.
const (
	msgRequired      = "This field is required."
	msgInvalidEmail  = "Enter a valid email address."
	msgNoItems       = "Invoice must have at least one item."
	msgQuantityMin   = "Quantity must be at least 1."
	msgUnitPriceNeg  = "Unit price cannot be negative."
	msgCurrencyMixed = "All items must use the same currency."
)

// Field length caps, matching the original storage schema.
const (
	maxReferenceLen   = 50
	maxCustomerLen    = 255
	maxDescriptionLen = 255
)

// referenceExistsMessage formats the duplicate-reference validation message.
func referenceExistsMessage(ref string) string {
	return fmt.Sprintf("Invoice with reference number '%s' already exists.", ref)
}

func maxLengthMessage(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

// normalizeEmail trims whitespace and lowercases an email address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func validateCustomer(ve *ValidationError, name, email string) {
	if strings.TrimSpace(name) == "" {
		ve.Add("customer_name", msgRequired)
	} else if len(name) > maxCustomerLen {
		ve.Add("customer_name", maxLengthMessage(maxCustomerLen))
	}
	if email == "" {
		ve.Add("customer_email", msgRequired)
	} else if !validEmail(email) {
		ve.Add("customer_email", msgInvalidEmail)
	}
}

func validateItems(ve *ValidationError, items []ItemInput) {
	if len(items) == 0 {
		ve.Add("items", msgNoItems)
		return
	}
	// Money arithmetic requires one currency across the invoice, so a mixed
	// set must be rejected here before any total is derived.
	currency := items[0].UnitPrice.Currency
	for i, it := range items {
		if strings.TrimSpace(it.Description) == "" {
			ve.Add(fmt.Sprintf("items[%d].description", i), msgRequired)
		} else if len(it.Description) > maxDescriptionLen {
			ve.Add(fmt.Sprintf("items[%d].description", i), maxLengthMessage(maxDescriptionLen))
		}
		if it.Quantity < 1 {
			ve.Add(fmt.Sprintf("items[%d].quantity", i), msgQuantityMin)
		}
		if it.UnitPrice.IsNegative() {
			ve.Add(fmt.Sprintf("items[%d].unit_price", i), msgUnitPriceNeg)
		}
		if it.UnitPrice.Currency != currency {
			ve.Add(fmt.Sprintf("items[%d].unit_price", i), msgCurrencyMixed)
		}
	}
}

// validateCreate normalizes and validates a create payload in place.
func validateCreate(in *CreateInvoiceInput) error {
	in.ReferenceNumber = strings.TrimSpace(in.ReferenceNumber)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = normalizeEmail(in.CustomerEmail)

	ve := &ValidationError{}
	if in.ReferenceNumber == "" {
		ve.Add("reference_number", msgRequired)
	} else if len(in.ReferenceNumber) > maxReferenceLen {
		ve.Add("reference_number", maxLengthMessage(maxReferenceLen))
	}
	validateCustomer(ve, in.CustomerName, in.CustomerEmail)
	validateItems(ve, in.Items)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// validateUpdate normalizes and validates a full update payload in place.
func validateUpdate(in *InvoiceUpdate) error {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = normalizeEmail(in.CustomerEmail)

	ve := &ValidationError{}
	validateCustomer(ve, in.CustomerName, in.CustomerEmail)
	validateItems(ve, in.Items)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// validatePatch normalizes and validates only the fields a patch carries.
func validatePatch(in *InvoicePatch) error {
	ve := &ValidationError{}

	if in.CustomerName != nil {
		trimmed := strings.TrimSpace(*in.CustomerName)
		in.CustomerName = &trimmed
		if trimmed == "" {
			ve.Add("customer_name", msgRequired)
		}
	}
	if in.CustomerEmail != nil {
		normalized := normalizeEmail(*in.CustomerEmail)
		in.CustomerEmail = &normalized
		if normalized == "" {
			ve.Add("customer_email", msgRequired)
		} else if !validEmail(normalized) {
			ve.Add("customer_email", msgInvalidEmail)
		}
	}
	if in.Items != nil {
		validateItems(ve, *in.Items)
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}
