package query

import (
	"errors"
	"testing"
)

var testFields = []string{"created_at", "updated_at", "total_amount", "reference_number"}

func TestParseSort(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    Sort
		wantErr bool
	}{
		{"empty uses default", "", Sort{Field: "created_at", Desc: true}, false},
		{"ascending", "total_amount", Sort{Field: "total_amount", Desc: false}, false},
		{"descending", "-updated_at", Sort{Field: "updated_at", Desc: true}, false},
		{"whitespace", "  reference_number ", Sort{Field: "reference_number", Desc: false}, false},
		{"unknown field", "customer_name", Sort{}, true},
		{"unknown descending", "-status", Sort{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSort(tt.expr, "-created_at", testFields)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrUnknownOrderField) {
					t.Errorf("error should wrap ErrUnknownOrderField, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSort: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseSortPanicsOnBadDefault(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for default outside whitelist")
		}
	}()

	_, _ = ParseSort("", "-nope", testFields)
}

func TestPageRequestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		req      PageRequest
		wantPage int
		wantSize int
	}{
		{"zero values", PageRequest{}, 1, DefaultPageSize},
		{"negative page", PageRequest{Page: -3, PageSize: 20}, 1, 20},
		{"oversized", PageRequest{Page: 2, PageSize: 500}, 2, MaxPageSize},
		{"in bounds", PageRequest{Page: 4, PageSize: 25}, 4, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.req.Normalize()
			if got.Page != tt.wantPage {
				t.Errorf("Page: got %d, want %d", got.Page, tt.wantPage)
			}
			if got.PageSize != tt.wantSize {
				t.Errorf("PageSize: got %d, want %d", got.PageSize, tt.wantSize)
			}
		})
	}
}

func TestPageRequestOffset(t *testing.T) {
	req := PageRequest{Page: 3, PageSize: 10}.Normalize()
	if got := req.Offset(); got != 20 {
		t.Errorf("Offset: got %d, want 20", got)
	}
}

func TestNewPage(t *testing.T) {
	req := PageRequest{Page: 2, PageSize: 10}.Normalize()
	page := NewPage([]int{1, 2, 3}, 23, req)

	if page.Count != 23 {
		t.Errorf("Count: got %d, want 23", page.Count)
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages: got %d, want 3", page.TotalPages)
	}
	if !page.HasNext() || !page.HasPrevious() {
		t.Error("middle page should have next and previous")
	}
}

func TestNewPageEmpty(t *testing.T) {
	req := PageRequest{Page: 5, PageSize: 10}.Normalize()
	page := NewPage[int](nil, 0, req)

	if page.Results == nil {
		t.Error("Results should never be nil")
	}
	if page.TotalPages != 0 {
		t.Errorf("TotalPages: got %d, want 0", page.TotalPages)
	}
	if page.HasNext() {
		t.Error("empty page should not have a next page")
	}
}
