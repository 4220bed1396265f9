package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTotalVAT(t *testing.T) {
	d := &ExtractedVATData{
		SalesVAT:    []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(15)},
		PurchaseVAT: []decimal.Decimal{decimal.NewFromInt(23)},
	}
	assert.True(t, d.TotalVAT().Equal(decimal.NewFromInt(138)))

	empty := &ExtractedVATData{}
	assert.True(t, empty.TotalVAT().IsZero())
	assert.False(t, empty.HasVATAmounts())
}

func TestDeriveIrishCompliance(t *testing.T) {
	irish := "IE1234567A"
	german := "DE123456789"

	tests := []struct {
		name      string
		vatNumber *string
		amounts   []decimal.Decimal
		want      bool
	}{
		{"irish number with amounts", &irish, []decimal.Decimal{decimal.NewFromInt(23)}, true},
		{"irish number without amounts", &irish, nil, false},
		{"foreign number", &german, []decimal.Decimal{decimal.NewFromInt(23)}, false},
		{"no number", nil, []decimal.Decimal{decimal.NewFromInt(23)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &ExtractedVATData{VATNumber: tt.vatNumber, SalesVAT: tt.amounts}
			d.DeriveIrishCompliance()
			assert.Equal(t, tt.want, d.IrishVATCompliant)
		})
	}
}

func TestDocumentCategoryHints(t *testing.T) {
	doc := &Document{Category: "purchase_expenses"}
	assert.True(t, doc.IsPurchaseCategory())
	assert.False(t, doc.IsSalesCategory())

	doc = &Document{Category: "SALES"}
	assert.True(t, doc.IsSalesCategory())

	doc = &Document{}
	assert.False(t, doc.IsPurchaseCategory())
	assert.False(t, doc.IsSalesCategory())
}
