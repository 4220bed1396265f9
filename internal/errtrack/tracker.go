package errtrack

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorType classifies a pipeline failure.
type ErrorType string

const (
	TypeAPI        ErrorType = "API_ERROR"
	TypeExtraction ErrorType = "EXTRACTION_ERROR"
	TypeValidation ErrorType = "VALIDATION_ERROR"
	TypeTemplate   ErrorType = "TEMPLATE_ERROR"
	TypeConfidence ErrorType = "CONFIDENCE_ERROR"
	TypeTimeout    ErrorType = "TIMEOUT_ERROR"
	TypeRateLimit  ErrorType = "RATE_LIMIT_ERROR"
	TypeParsing    ErrorType = "PARSING_ERROR"
	TypeLearning   ErrorType = "LEARNING_ERROR"
	TypeSystem     ErrorType = "SYSTEM_ERROR"
)

// Entry is one structured error record.
type Entry struct {
	ID         string            `json:"id"`
	Type       ErrorType         `json:"type"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	DocumentID string            `json:"documentId,omitempty"`
	UserID     string            `json:"userId,omitempty"`
	RetryCount int               `json:"retryCount"`
	Context    map[string]string `json:"context,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// CodeCount is one entry of the top-error-codes aggregation.
type CodeCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// Store persists error entries and serves aggregations.
type Store interface {
	Insert(ctx context.Context, entry *Entry) error
	CountsSince(ctx context.Context, since time.Time) (total int, byType map[ErrorType]int, topCodes []CodeCount, err error)
}

// TimeRange selects the trailing analytics window.
type TimeRange string

const (
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
)

// Duration returns the trailing window length, defaulting to a day.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case RangeWeek:
		return 7 * 24 * time.Hour
	case RangeMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Analytics aggregates errors over a trailing window.
type Analytics struct {
	TimeRange     TimeRange         `json:"timeRange"`
	TotalErrors   int               `json:"totalErrors"`
	ErrorsPerHour float64           `json:"errorsPerHour"`
	TopCodes      []CodeCount       `json:"topCodes"`
	ByType        map[ErrorType]int `json:"byType"`
}

// Pattern is a human-readable remediation suggestion for a recurring
// error category.
type Pattern struct {
	Type       ErrorType `json:"type"`
	Suggestion string    `json:"suggestion"`
}

// Tracker records structured errors without ever being allowed to
// disturb document processing: every operation swallows its own
// failures and reports them only on the tracker's own logger.
type Tracker struct {
	store   Store
	log     *zap.Logger
	alertFn func(Entry)
	recover func(Entry)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAlertFunc installs the alert path invoked for critical errors.
func WithAlertFunc(fn func(Entry)) Option {
	return func(t *Tracker) { t.alertFn = fn }
}

// WithRecoveryFunc installs the best-effort auto-recovery hook.
func WithRecoveryFunc(fn func(Entry)) Option {
	return func(t *Tracker) { t.recover = fn }
}

// New creates a tracker. store may be nil, in which case entries are
// only logged.
func New(store Store, log *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{store: store, log: log}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LogError records a structured error. It never returns an error and
// never panics; tracking failures are logged and dropped.
func (t *Tracker) LogError(entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("error tracker panicked", zap.Any("panic", r))
		}
	}()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}

	fields := []zap.Field{
		zap.String("errorId", entry.ID),
		zap.String("type", string(entry.Type)),
		zap.String("code", entry.Code),
		zap.Int("retryCount", entry.RetryCount),
	}
	if entry.DocumentID != "" {
		fields = append(fields, zap.String("documentId", entry.DocumentID))
	}

	critical := IsCritical(entry)
	if critical {
		t.log.Error(entry.Message, fields...)
	} else {
		t.log.Warn(entry.Message, fields...)
	}

	if t.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.store.Insert(ctx, &entry); err != nil {
			t.log.Error("failed to persist error entry", zap.Error(err))
		}
	}

	if critical && t.alertFn != nil {
		t.alertFn(entry)
	}

	if CanAutoRecover(entry) && t.recover != nil {
		// Best effort, off the caller's path.
		go func(e Entry) {
			defer func() {
				if r := recover(); r != nil {
					t.log.Error("auto-recovery panicked", zap.Any("panic", r))
				}
			}()
			t.recover(e)
		}(entry)
	}
}

// IsCritical reports whether an entry warrants the alert path.
func IsCritical(entry Entry) bool {
	switch entry.Type {
	case TypeAPI, TypeSystem, TypeRateLimit:
		return true
	}
	if strings.Contains(strings.ToUpper(entry.Code), "CRITICAL") {
		return true
	}
	return entry.RetryCount >= 3
}

// CanAutoRecover reports whether an entry is eligible for best-effort
// automatic recovery.
func CanAutoRecover(entry Entry) bool {
	if entry.RetryCount >= 3 {
		return false
	}
	switch entry.Type {
	case TypeTimeout, TypeRateLimit, TypeAPI:
		return true
	}
	return false
}

// GetErrorAnalytics aggregates the trailing window. Store failures
// yield an empty aggregate, never an error back into the pipeline.
func (t *Tracker) GetErrorAnalytics(ctx context.Context, timeRange TimeRange) Analytics {
	analytics := Analytics{
		TimeRange: timeRange,
		ByType:    map[ErrorType]int{},
	}
	if t.store == nil {
		return analytics
	}

	window := timeRange.Duration()
	total, byType, topCodes, err := t.store.CountsSince(ctx, time.Now().Add(-window))
	if err != nil {
		t.log.Error("failed to aggregate error analytics", zap.Error(err))
		return analytics
	}

	analytics.TotalErrors = total
	analytics.ByType = byType
	analytics.TopCodes = topCodes
	analytics.ErrorsPerHour = float64(total) / window.Hours()
	return analytics
}

// GetErrorPatterns returns remediation suggestions per recurring error
// category.
func (t *Tracker) GetErrorPatterns() []Pattern {
	return []Pattern{
		{TypeAPI, "Check AI provider credentials, quota and endpoint availability."},
		{TypeTimeout, "External calls are exceeding the per-method budget; verify provider latency or raise the method timeout."},
		{TypeRateLimit, "Requests are being throttled; reduce concurrency or request a higher provider quota."},
		{TypeParsing, "Uploads are arriving in an unexpected layout; inspect recent source documents for format drift."},
		{TypeExtraction, "No method could read these documents; review OCR quality and pattern coverage."},
		{TypeValidation, "Methods disagree frequently; review recent consensus conflicts for a systematic source mismatch."},
		{TypeConfidence, "Confidence is persistently low; documents may need manual VAT entry."},
		{TypeSystem, "Check database and storage connectivity."},
	}
}
