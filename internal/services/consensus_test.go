package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/payvat/vat-extraction-service/internal/models"
)

func TestAssessMethodQuality(t *testing.T) {
	name := "Acme Ltd"
	vatNumber := "IE1234567A"

	bare := &models.ExtractedVATData{DocumentType: models.DocTypeOther}
	assert.Equal(t, 85, assessMethodQuality(models.TagAIVision, bare))
	assert.Equal(t, 90, assessMethodQuality(models.TagStructuredParser, bare))
	assert.Equal(t, 70, assessMethodQuality(models.TagOCRPatterns, bare))

	rich := &models.ExtractedVATData{
		SalesVAT: []decimal.Decimal{
			decimal.NewFromInt(1), decimal.NewFromInt(2),
			decimal.NewFromInt(3), decimal.NewFromInt(4),
		},
		SupplierName: &name,
		VATNumber:    &vatNumber,
		DocumentType: models.DocTypeSalesInvoice,
	}
	// 90 + 10 + 5 + 5 + 10 + 5 exceeds the cap.
	assert.Equal(t, 100, assessMethodQuality(models.TagStructuredParser, rich))

	withAmounts := &models.ExtractedVATData{
		PurchaseVAT:  []decimal.Decimal{decimal.NewFromInt(5)},
		DocumentType: models.DocTypeOther,
	}
	assert.Equal(t, 80, assessMethodQuality(models.TagOCRPatterns, withAmounts))
}

func TestRecommend(t *testing.T) {
	assert.Equal(t, models.ActionReject, recommend(0.4, nil))
	assert.Equal(t, models.ActionReview, recommend(0.65, nil))
	assert.Equal(t, models.ActionAccept, recommend(0.85, nil))
	assert.Equal(t, models.ActionAccept, recommend(0.85, []string{"VAT amounts"}))
	assert.Equal(t, models.ActionReview, recommend(0.85, []string{"VAT amounts", "Document type"}))
}

func TestFieldAgreement(t *testing.T) {
	assert.Equal(t, 1.0, fieldAgreement(nil, 0.5))
	assert.Equal(t, 1.0, fieldAgreement([]string{"Acme"}, 0.5))
	assert.Equal(t, 1.0, fieldAgreement([]string{"Acme", "Acme"}, 0.5))
	assert.Equal(t, 0.5, fieldAgreement([]string{"Acme", "Bravo"}, 0.5))
	assert.Equal(t, 0.3, fieldAgreement([]string{"IE1", "IE2"}, 0.3))
}

func TestSelectBest_PrefersQualityAndWeight(t *testing.T) {
	results := []models.MethodResult{
		{Method: models.TagOCRPatterns, Confidence: 0.9, Weight: 0.7, Quality: 70,
			Result: &models.ExtractedVATData{}},
		{Method: models.TagAIVision, Confidence: 0.85, Weight: 1.0, Quality: 95,
			Result: &models.ExtractedVATData{}},
	}

	best := selectBest(results)
	assert.Equal(t, models.TagAIVision, best.Method)
}

func TestCloneResult_IsolatesConsensusMutation(t *testing.T) {
	original := &models.ExtractedVATData{
		SalesVAT:        []decimal.Decimal{decimal.NewFromInt(100)},
		Confidence:      0.9,
		ValidationFlags: []string{models.FlagMissingDate},
	}

	clone := cloneResult(original)
	clone.Confidence = 0.99
	clone.SalesVAT[0] = decimal.NewFromInt(1)
	clone.ValidationFlags = append(clone.ValidationFlags, models.FlagNoVATFound)

	assert.Equal(t, 0.9, original.Confidence)
	assert.True(t, original.SalesVAT[0].Equal(decimal.NewFromInt(100)))
	assert.Len(t, original.ValidationFlags, 1)
}
