package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/payvat/vat-extraction-service/internal/errtrack"
	"github.com/payvat/vat-extraction-service/internal/models"
)

// ErrNoExtraction is the single user-visible failure mode: every
// attempted method came back empty.
var ErrNoExtraction = errors.New("could not extract VAT data from this document")

// DefaultMethodTimeout bounds each extraction method. Expiry counts as
// method failure, never as pipeline failure.
const DefaultMethodTimeout = 30 * time.Second

// MultiMethodValidator fans a document out to every applicable
// extraction method, awaits all of them, and reconciles their outputs
// into one consensus result.
type MultiMethodValidator struct {
	methods []Method
	log     *zap.Logger
	tracker *errtrack.Tracker
	timeout time.Duration
}

// NewMultiMethodValidator builds a validator over the given strategies.
// tracker may be nil; method failures are then only logged.
func NewMultiMethodValidator(log *zap.Logger, tracker *errtrack.Tracker, methods ...Method) *MultiMethodValidator {
	return &MultiMethodValidator{
		methods: methods,
		log:     log,
		tracker: tracker,
		timeout: DefaultMethodTimeout,
	}
}

// SetMethodTimeout overrides the per-method timeout.
func (v *MultiMethodValidator) SetMethodTimeout(d time.Duration) {
	if d > 0 {
		v.timeout = d
	}
}

// methodOutcome carries one method's run back to the collector.
type methodOutcome struct {
	method   Method
	result   *models.ExtractedVATData
	err      error
	duration time.Duration
}

// Validate runs all applicable methods concurrently and computes the
// consensus. It fails only when zero methods produce a usable result,
// or when ctx is cancelled before the fan-out completes.
func (v *MultiMethodValidator) Validate(ctx context.Context, doc *models.Document) (*models.ValidationResult, error) {
	attempted := make([]Method, 0, len(v.methods))
	for _, m := range v.methods {
		if m.Accepts(doc.MimeType, doc.FileName) {
			attempted = append(attempted, m)
		}
	}
	if len(attempted) == 0 {
		return nil, fmt.Errorf("%w: no extraction method accepts %q", ErrNoExtraction, doc.MimeType)
	}

	outcomes := make(chan methodOutcome, len(attempted))
	for _, m := range attempted {
		go v.runMethod(ctx, m, doc, outcomes)
	}

	var results []models.MethodResult
	for range attempted {
		select {
		case <-ctx.Done():
			// Partial results are discarded; nothing is persisted for a
			// cancelled validation.
			return nil, ctx.Err()
		case outcome := <-outcomes:
			if outcome.err != nil {
				v.recordFailure(doc, outcome)
				continue
			}
			if outcome.result == nil {
				v.log.Debug("method produced no result",
					zap.String("method", string(outcome.method.Tag())),
					zap.String("file", doc.FileName))
				continue
			}
			results = append(results, models.MethodResult{
				Method:         outcome.method.Tag(),
				Result:         outcome.result,
				Confidence:     outcome.result.Confidence,
				Weight:         outcome.method.Weight(),
				ProcessingTime: outcome.duration,
				Quality:        assessMethodQuality(outcome.method.Tag(), outcome.result),
			})
		}
	}

	if len(results) == 0 {
		return nil, ErrNoExtraction
	}
	return v.buildConsensus(results), nil
}

// runMethod executes one method with its own timeout, converting
// panics and errors into outcome records. One method's failure must
// never abort the others.
func (v *MultiMethodValidator) runMethod(ctx context.Context, m Method, doc *models.Document, out chan<- methodOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out <- methodOutcome{
				method:   m,
				err:      fmt.Errorf("method panicked: %v", r),
				duration: time.Since(start),
			}
		}
	}()

	methodCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	result, err := m.Extract(methodCtx, doc)
	out <- methodOutcome{method: m, result: result, err: err, duration: time.Since(start)}
}

// recordFailure logs a failed method and hands it to the error tracker.
// Tracking is fire-and-forget; it can never fail the validation.
func (v *MultiMethodValidator) recordFailure(doc *models.Document, outcome methodOutcome) {
	v.log.Warn("extraction method failed",
		zap.String("method", string(outcome.method.Tag())),
		zap.String("file", doc.FileName),
		zap.Duration("after", outcome.duration),
		zap.Error(outcome.err))

	if v.tracker == nil {
		return
	}
	errType := errtrack.TypeExtraction
	if errors.Is(outcome.err, context.DeadlineExceeded) {
		errType = errtrack.TypeTimeout
	}
	v.tracker.LogError(errtrack.Entry{
		Type:    errType,
		Code:    fmt.Sprintf("METHOD_%s_FAILED", outcome.method.Tag()),
		Message: outcome.err.Error(),
		Context: map[string]string{
			"file":     doc.FileName,
			"mimeType": doc.MimeType,
		},
	})
}
