package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/payvat/vat-extraction-service/internal/errtrack"
)

// ErrorStore persists tracker entries in Postgres. It satisfies
// errtrack.Store; the tracker swallows any error returned here.
type ErrorStore struct{}

func NewErrorStore() *ErrorStore {
	return &ErrorStore{}
}

func (s *ErrorStore) Insert(ctx context.Context, entry *errtrack.Entry) error {
	var contextJSON []byte
	if len(entry.Context) > 0 {
		contextJSON, _ = json.Marshal(entry.Context)
	}

	query := `
		INSERT INTO processing_errors (
			id, error_type, error_code, message, document_id,
			user_id, retry_count, context, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := Pool.Exec(ctx, query,
		entry.ID, string(entry.Type), entry.Code, entry.Message, entry.DocumentID,
		entry.UserID, entry.RetryCount, contextJSON, entry.OccurredAt,
	)
	return err
}

func (s *ErrorStore) CountsSince(ctx context.Context, since time.Time) (int, map[errtrack.ErrorType]int, []errtrack.CodeCount, error) {
	byType := make(map[errtrack.ErrorType]int)
	total := 0

	rows, err := Pool.Query(ctx, `
		SELECT error_type, COUNT(*)
		FROM processing_errors
		WHERE occurred_at >= $1
		GROUP BY error_type
	`, since)
	if err != nil {
		return 0, nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var errType string
		var count int
		if err := rows.Scan(&errType, &count); err != nil {
			return 0, nil, nil, err
		}
		byType[errtrack.ErrorType(errType)] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return 0, nil, nil, err
	}

	codeRows, err := Pool.Query(ctx, `
		SELECT error_code, COUNT(*)
		FROM processing_errors
		WHERE occurred_at >= $1
		GROUP BY error_code
		ORDER BY COUNT(*) DESC, error_code
		LIMIT 10
	`, since)
	if err != nil {
		return 0, nil, nil, err
	}
	defer codeRows.Close()

	var topCodes []errtrack.CodeCount
	for codeRows.Next() {
		var cc errtrack.CodeCount
		if err := codeRows.Scan(&cc.Code, &cc.Count); err != nil {
			return 0, nil, nil, err
		}
		topCodes = append(topCodes, cc)
	}
	if err := codeRows.Err(); err != nil {
		return 0, nil, nil, err
	}

	return total, byType, topCodes, nil
}
