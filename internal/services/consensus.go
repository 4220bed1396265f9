package services

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/payvat/vat-extraction-service/internal/models"
)

// maxFinalConfidence is the hard ceiling: the pipeline never claims
// certainty.
const maxFinalConfidence = 0.99

// agreementThreshold is the sub-score below which a field is considered
// conflicting.
const agreementThreshold = 0.8

// buildConsensus reconciles one or more method results into the final
// validation artifact.
func (v *MultiMethodValidator) buildConsensus(results []models.MethodResult) *models.ValidationResult {
	if len(results) == 1 {
		return singleMethodResult(results[0], results)
	}

	amountScore, agreeing := amountAgreement(results)
	businessScore := businessAgreement(results)
	typeScore := documentTypeAgreement(results)
	agreementScore := (amountScore + businessScore + typeScore) / 3

	best := selectBest(results)
	final := cloneResult(best.Result)

	methodBonus := 0.05 * float64(len(results)-1)
	if methodBonus > 0.1 {
		methodBonus = 0.1
	}
	multiplier := 0.8 + 0.4*agreementScore + methodBonus
	if multiplier > 1.3 {
		multiplier = 1.3
	}
	finalConfidence := best.Confidence * multiplier
	if finalConfidence > maxFinalConfidence {
		finalConfidence = maxFinalConfidence
	}
	final.Confidence = finalConfidence

	var conflicts []string
	if amountScore < agreementThreshold {
		conflicts = append(conflicts, "VAT amounts")
	}
	if businessScore < agreementThreshold {
		conflicts = append(conflicts, "Business data")
	}
	if typeScore < agreementThreshold {
		conflicts = append(conflicts, "Document type")
	}

	return &models.ValidationResult{
		FinalResult:      final,
		Confidence:       finalConfidence,
		ConsensusReached: agreementScore >= agreementThreshold,
		AgreementScore:   agreementScore,
		MethodResults:    results,
		ValidationSummary: models.ValidationSummary{
			TotalMethods:      len(results),
			AgreeingMethods:   agreeing,
			ConflictingFields: conflicts,
			RecommendedAction: recommend(finalConfidence, conflicts),
		},
	}
}

// singleMethodResult passes a lone method's output through untouched:
// trivially consensus, confidence unchanged apart from the hard cap.
func singleMethodResult(only models.MethodResult, results []models.MethodResult) *models.ValidationResult {
	confidence := only.Confidence
	if confidence > maxFinalConfidence {
		confidence = maxFinalConfidence
	}

	action := models.ActionReview
	if confidence > 0.8 {
		action = models.ActionAccept
	}

	return &models.ValidationResult{
		FinalResult:      only.Result,
		Confidence:       confidence,
		ConsensusReached: true,
		AgreementScore:   1.0,
		MethodResults:    results,
		ValidationSummary: models.ValidationSummary{
			TotalMethods:      1,
			AgreeingMethods:   1,
			RecommendedAction: action,
		},
	}
}

// amountAgreement compares each method's total VAT against the
// weight-averaged total. The tolerance is the larger of one euro and
// 10% of the weighted average, so small documents are not penalised
// for cent-level noise and large ones are held to a relative band.
func amountAgreement(results []models.MethodResult) (score float64, agreeing int) {
	totalWeight := 0.0
	weightedSum := 0.0
	totals := make([]float64, len(results))
	for i, r := range results {
		total, _ := r.Result.TotalVAT().Float64()
		totals[i] = total
		weightedSum += total * r.Weight
		totalWeight += r.Weight
	}
	if totalWeight == 0 {
		return 1.0, len(results)
	}
	weightedAverage := weightedSum / totalWeight

	tolerance := math.Max(1.0, 0.1*weightedAverage)

	weightedAgreement := 0.0
	for i, r := range results {
		agreement := math.Max(0, 1-math.Abs(totals[i]-weightedAverage)/tolerance)
		if agreement >= agreementThreshold {
			agreeing++
		}
		weightedAgreement += agreement * r.Weight
	}
	return weightedAgreement / totalWeight, agreeing
}

// businessAgreement compares supplier names and VAT numbers across
// methods. A sub-comparison with fewer than two reported values is
// skipped (treated as full agreement).
func businessAgreement(results []models.MethodResult) float64 {
	var names, numbers []string
	for _, r := range results {
		if r.Result.SupplierName != nil && *r.Result.SupplierName != "" {
			names = append(names, *r.Result.SupplierName)
		}
		if r.Result.VATNumber != nil && *r.Result.VATNumber != "" {
			numbers = append(numbers, *r.Result.VATNumber)
		}
	}

	nameScore := fieldAgreement(names, 0.5)
	numberScore := fieldAgreement(numbers, 0.3)
	return (nameScore + numberScore) / 2
}

// fieldAgreement scores a set of reported values: 1.0 when all are
// identical or when fewer than two exist, else the given partial score.
func fieldAgreement(values []string, partial float64) float64 {
	if len(values) < 2 {
		return 1.0
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return partial
		}
	}
	return 1.0
}

// documentTypeAgreement is 1.0 when all reported types match, 0.6
// otherwise.
func documentTypeAgreement(results []models.MethodResult) float64 {
	var types []models.DocumentType
	for _, r := range results {
		if r.Result.DocumentType != "" {
			types = append(types, r.Result.DocumentType)
		}
	}
	if len(types) < 2 {
		return 1.0
	}
	for _, t := range types[1:] {
		if t != types[0] {
			return 0.6
		}
	}
	return 1.0
}

// selectBest scores each method result by confidence, static weight and
// quality, returning the highest scorer.
func selectBest(results []models.MethodResult) models.MethodResult {
	best := results[0]
	bestScore := -1.0
	for _, r := range results {
		score := 0.4*r.Confidence + 0.3*r.Weight + 0.3*float64(r.Quality)/100
		if score > bestScore {
			best = r
			bestScore = score
		}
	}
	return best
}

// recommend maps final confidence and conflicts onto a triage action.
func recommend(confidence float64, conflicts []string) models.RecommendedAction {
	switch {
	case confidence < 0.5:
		return models.ActionReject
	case confidence < 0.7 || len(conflicts) > 1:
		return models.ActionReview
	default:
		return models.ActionAccept
	}
}

// assessMethodQuality scores how rich a method's extraction is. The
// base reflects a prior that structured machine-generated data is most
// trustworthy and raw OCR weakest; richer extractions are rewarded
// regardless of method.
func assessMethodQuality(tag models.MethodTag, result *models.ExtractedVATData) int {
	score := 0
	switch tag {
	case models.TagAIVision:
		score = 85
	case models.TagStructuredParser:
		score = 90
	case models.TagOCRPatterns:
		score = 70
	}

	amountCount := len(result.SalesVAT) + len(result.PurchaseVAT)
	if amountCount > 0 {
		score += 10
	}
	if amountCount > 3 {
		score += 5
	}
	if result.SupplierName != nil && *result.SupplierName != "" {
		score += 5
	}
	if result.VATNumber != nil && *result.VATNumber != "" {
		score += 10
	}
	if result.DocumentType != models.DocTypeOther && result.DocumentType != "" {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

// cloneResult copies a result so consensus confidence adjustment does
// not mutate the method's own record.
func cloneResult(r *models.ExtractedVATData) *models.ExtractedVATData {
	clone := *r
	clone.SalesVAT = append([]decimal.Decimal(nil), r.SalesVAT...)
	clone.PurchaseVAT = append([]decimal.Decimal(nil), r.PurchaseVAT...)
	clone.ExtractedText = append([]string(nil), r.ExtractedText...)
	clone.ValidationFlags = append([]string(nil), r.ValidationFlags...)
	return &clone
}
