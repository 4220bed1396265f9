package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/payvat/vat-extraction-service/internal/models"
)

type Extraction struct {
	ID                uuid.UUID  `json:"id"`
	FileName          string     `json:"file_name"`
	Category          string     `json:"category"`
	DocumentType      string     `json:"document_type"`
	SalesVAT          float64    `json:"sales_vat"`
	PurchaseVAT       float64    `json:"purchase_vat"`
	TotalAmount       float64    `json:"total_amount"`
	VATRate           float64    `json:"vat_rate"`
	VATNumber         string     `json:"vat_number"`
	SupplierName      string     `json:"supplier_name"`
	InvoiceDate       *time.Time `json:"invoice_date,omitempty"`
	Confidence        float64    `json:"confidence"`
	AgreementScore    float64    `json:"agreement_score"`
	MethodCount       int        `json:"method_count"`
	RecommendedAction string     `json:"recommended_action"`
	IrishCompliant    bool       `json:"irish_compliant"`
	DocumentURL       string     `json:"document_url"`
	ResultJSON        string     `json:"result_json,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// NewExtraction flattens a validation result into the row shape persisted
// for listing and stats queries. The full result is retained as JSON.
func NewExtraction(fileName, category, documentURL string, vr *models.ValidationResult) *Extraction {
	final := vr.FinalResult

	ext := &Extraction{
		FileName:          fileName,
		Category:          category,
		DocumentType:      string(final.DocumentType),
		TotalAmount:       final.TotalAmount.InexactFloat64(),
		VATRate:           final.VATRate,
		Confidence:        vr.Confidence,
		AgreementScore:    vr.AgreementScore,
		MethodCount:       vr.ValidationSummary.TotalMethods,
		RecommendedAction: string(vr.ValidationSummary.RecommendedAction),
		IrishCompliant:    final.IrishVATCompliant,
		DocumentURL:       documentURL,
	}

	for _, v := range final.SalesVAT {
		ext.SalesVAT += v.InexactFloat64()
	}
	for _, v := range final.PurchaseVAT {
		ext.PurchaseVAT += v.InexactFloat64()
	}

	if final.VATNumber != nil {
		ext.VATNumber = *final.VATNumber
	}
	if final.SupplierName != nil {
		ext.SupplierName = *final.SupplierName
	}
	ext.InvoiceDate = final.InvoiceDate

	if raw, err := json.Marshal(vr); err == nil {
		ext.ResultJSON = string(raw)
	}

	return ext
}

func SaveExtraction(ctx context.Context, ext *Extraction) error {
	query := `
		INSERT INTO extractions (
			file_name, category, document_type, sales_vat, purchase_vat,
			total_amount, vat_rate, vat_number, supplier_name, invoice_date,
			confidence, agreement_score, method_count, recommended_action,
			irish_compliant, document_url, result_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at
	`

	err := Pool.QueryRow(ctx, query,
		ext.FileName, ext.Category, ext.DocumentType, ext.SalesVAT, ext.PurchaseVAT,
		ext.TotalAmount, ext.VATRate, ext.VATNumber, ext.SupplierName, ext.InvoiceDate,
		ext.Confidence, ext.AgreementScore, ext.MethodCount, ext.RecommendedAction,
		ext.IrishCompliant, ext.DocumentURL, ext.ResultJSON,
	).Scan(&ext.ID, &ext.CreatedAt)

	return err
}

func GetExtractions(ctx context.Context, limit int) ([]Extraction, error) {
	query := `
		SELECT id, COALESCE(file_name, ''), COALESCE(category, ''), COALESCE(document_type, ''),
		       COALESCE(sales_vat, 0), COALESCE(purchase_vat, 0), COALESCE(total_amount, 0),
		       COALESCE(vat_rate, 0), COALESCE(vat_number, ''), COALESCE(supplier_name, ''),
		       invoice_date, COALESCE(confidence, 0), COALESCE(agreement_score, 0),
		       COALESCE(method_count, 0), COALESCE(recommended_action, ''),
		       COALESCE(irish_compliant, false), COALESCE(document_url, ''), created_at
		FROM extractions
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extractions []Extraction
	for rows.Next() {
		var ext Extraction
		err := rows.Scan(
			&ext.ID, &ext.FileName, &ext.Category, &ext.DocumentType,
			&ext.SalesVAT, &ext.PurchaseVAT, &ext.TotalAmount,
			&ext.VATRate, &ext.VATNumber, &ext.SupplierName,
			&ext.InvoiceDate, &ext.Confidence, &ext.AgreementScore,
			&ext.MethodCount, &ext.RecommendedAction,
			&ext.IrishCompliant, &ext.DocumentURL, &ext.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		extractions = append(extractions, ext)
	}

	return extractions, nil
}

// GetExtractionByID retrieves a single extraction, including the full result JSON.
func GetExtractionByID(ctx context.Context, extractionID string) (*Extraction, error) {
	query := `
		SELECT id, COALESCE(file_name, ''), COALESCE(category, ''), COALESCE(document_type, ''),
		       COALESCE(sales_vat, 0), COALESCE(purchase_vat, 0), COALESCE(total_amount, 0),
		       COALESCE(vat_rate, 0), COALESCE(vat_number, ''), COALESCE(supplier_name, ''),
		       invoice_date, COALESCE(confidence, 0), COALESCE(agreement_score, 0),
		       COALESCE(method_count, 0), COALESCE(recommended_action, ''),
		       COALESCE(irish_compliant, false), COALESCE(document_url, ''),
		       COALESCE(result_json::text, ''), created_at
		FROM extractions
		WHERE id = $1
	`

	var ext Extraction
	err := Pool.QueryRow(ctx, query, extractionID).Scan(
		&ext.ID, &ext.FileName, &ext.Category, &ext.DocumentType,
		&ext.SalesVAT, &ext.PurchaseVAT, &ext.TotalAmount,
		&ext.VATRate, &ext.VATNumber, &ext.SupplierName,
		&ext.InvoiceDate, &ext.Confidence, &ext.AgreementScore,
		&ext.MethodCount, &ext.RecommendedAction,
		&ext.IrishCompliant, &ext.DocumentURL,
		&ext.ResultJSON, &ext.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ext, nil
}

// DeleteExtraction removes an extraction record.
func DeleteExtraction(ctx context.Context, extractionID string) error {
	query := `DELETE FROM extractions WHERE id = $1`
	_, err := Pool.Exec(ctx, query, extractionID)
	return err
}

// MonthlyStats represents aggregate figures for the current month.
type MonthlyStats struct {
	Month            string  `json:"month"`
	TotalDocuments   int     `json:"total_documents"`
	TotalSalesVAT    float64 `json:"total_sales_vat"`
	TotalPurchaseVAT float64 `json:"total_purchase_vat"`
	TotalAmount      float64 `json:"total_amount"`
	AcceptedCount    int     `json:"accepted_count"`
	ReviewCount      int     `json:"review_count"`
}

// GetMonthlyStats returns statistics for the current month.
func GetMonthlyStats(ctx context.Context) (*MonthlyStats, error) {
	query := `
		SELECT
			COUNT(*) as total_documents,
			COALESCE(SUM(sales_vat), 0) as total_sales_vat,
			COALESCE(SUM(purchase_vat), 0) as total_purchase_vat,
			COALESCE(SUM(total_amount), 0) as total_amount,
			COUNT(*) FILTER (WHERE recommended_action = 'ACCEPT') as accepted_count,
			COUNT(*) FILTER (WHERE recommended_action = 'REVIEW') as review_count
		FROM extractions
		WHERE DATE_TRUNC('month', created_at) = DATE_TRUNC('month', CURRENT_DATE)
	`

	stats := &MonthlyStats{
		Month: time.Now().Format("2006-01"),
	}

	err := Pool.QueryRow(ctx, query).Scan(
		&stats.TotalDocuments,
		&stats.TotalSalesVAT,
		&stats.TotalPurchaseVAT,
		&stats.TotalAmount,
		&stats.AcceptedCount,
		&stats.ReviewCount,
	)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
