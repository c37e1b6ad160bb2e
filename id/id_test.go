package id

import (
	"strings"
	"testing"
)

func TestNewGeneratesPrefixedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     ID
		prefix Prefix
	}{
		{"invoice", NewInvoiceID(), PrefixInvoice},
		{"item", NewItemID(), PrefixItem},
		{"transaction", NewTransactionID(), PrefixTransaction},
		{"user", NewUserID(), PrefixUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.id.IsNil() {
				t.Fatal("new ID should not be nil")
			}
			if tt.id.Prefix() != tt.prefix {
				t.Errorf("Prefix: got %q, want %q", tt.id.Prefix(), tt.prefix)
			}
			if !strings.HasPrefix(tt.id.String(), string(tt.prefix)+"_") {
				t.Errorf("String %q does not start with %q", tt.id.String(), tt.prefix)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := NewInvoiceID()

	parsed, err := ParseInvoiceID(original.String())
	if err != nil {
		t.Fatalf("ParseInvoiceID: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round trip: got %q, want %q", parsed.String(), original.String())
	}
}

func TestParseRejectsWrongPrefix(t *testing.T) {
	txn := NewTransactionID()

	if _, err := ParseInvoiceID(txn.String()); err == nil {
		t.Error("expected error parsing transaction ID as invoice ID")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []string{"", "not-an-id", "inv_", "inv_!!!"}

	for _, s := range tests {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestNilID(t *testing.T) {
	var zero ID

	if !zero.IsNil() {
		t.Error("zero value should be nil")
	}
	if zero.String() != "" {
		t.Errorf("nil String: got %q, want empty", zero.String())
	}

	v, err := zero.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Errorf("nil Value: got %v, want nil", v)
	}
}

func TestTextMarshaling(t *testing.T) {
	original := NewTransactionID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var decoded ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if decoded.String() != original.String() {
		t.Errorf("round trip: got %q, want %q", decoded.String(), original.String())
	}
}

func TestScan(t *testing.T) {
	original := NewUserID()

	var fromString ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if fromString.String() != original.String() {
		t.Errorf("Scan string: got %q, want %q", fromString.String(), original.String())
	}

	var fromNil ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("Scan nil should produce nil ID")
	}
}
