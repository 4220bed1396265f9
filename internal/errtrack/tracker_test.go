package errtrack

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIsCritical(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  bool
	}{
		{"api error", Entry{Type: TypeAPI}, true},
		{"system error", Entry{Type: TypeSystem}, true},
		{"rate limit", Entry{Type: TypeRateLimit}, true},
		{"critical code", Entry{Type: TypeParsing, Code: "CRITICAL_PARSE_FAILURE"}, true},
		{"critical code lowercase", Entry{Type: TypeParsing, Code: "critical_parse"}, true},
		{"retries exhausted", Entry{Type: TypeTimeout, RetryCount: 3}, true},
		{"ordinary parsing", Entry{Type: TypeParsing, Code: "BAD_CSV"}, false},
		{"first timeout", Entry{Type: TypeTimeout, RetryCount: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCritical(tt.entry))
		})
	}
}

func TestCanAutoRecover(t *testing.T) {
	assert.True(t, CanAutoRecover(Entry{Type: TypeTimeout, RetryCount: 0}))
	assert.True(t, CanAutoRecover(Entry{Type: TypeRateLimit, RetryCount: 2}))
	assert.True(t, CanAutoRecover(Entry{Type: TypeAPI, RetryCount: 1}))
	assert.False(t, CanAutoRecover(Entry{Type: TypeTimeout, RetryCount: 3}))
	assert.False(t, CanAutoRecover(Entry{Type: TypeParsing, RetryCount: 0}))
	assert.False(t, CanAutoRecover(Entry{Type: TypeValidation}))
}

func TestLogError_FillsDefaultsAndStores(t *testing.T) {
	store := NewMemoryStore()
	tracker := New(store, zap.NewNop())

	tracker.LogError(Entry{
		Type:    TypeParsing,
		Code:    "BAD_CSV",
		Message: "unreadable export",
	})

	require.Equal(t, 1, store.Len())

	total, byType, topCodes, err := store.CountsSince(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, byType[TypeParsing])
	require.Len(t, topCodes, 1)
	assert.Equal(t, "BAD_CSV", topCodes[0].Code)
}

func TestLogError_NilStoreDoesNotPanic(t *testing.T) {
	tracker := New(nil, zap.NewNop())

	assert.NotPanics(t, func() {
		tracker.LogError(Entry{Type: TypeSystem, Code: "DB_DOWN", Message: "down"})
	})
}

func TestLogError_CriticalTriggersAlert(t *testing.T) {
	var mu sync.Mutex
	var alerted []Entry

	tracker := New(NewMemoryStore(), zap.NewNop(), WithAlertFunc(func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		alerted = append(alerted, e)
	}))

	tracker.LogError(Entry{Type: TypeSystem, Code: "DB_DOWN", Message: "down"})
	tracker.LogError(Entry{Type: TypeParsing, Code: "BAD_CSV", Message: "noise"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, alerted, 1)
	assert.Equal(t, "DB_DOWN", alerted[0].Code)
}

func TestLogError_RecoveryHookRunsOffCallerPath(t *testing.T) {
	recovered := make(chan Entry, 1)

	tracker := New(NewMemoryStore(), zap.NewNop(), WithRecoveryFunc(func(e Entry) {
		recovered <- e
	}))

	tracker.LogError(Entry{Type: TypeTimeout, Code: "SLOW_PROVIDER", Message: "timeout"})

	select {
	case e := <-recovered:
		assert.Equal(t, "SLOW_PROVIDER", e.Code)
	case <-time.After(time.Second):
		t.Fatal("recovery hook was not invoked")
	}
}

func TestLogError_PanickingAlertIsContained(t *testing.T) {
	tracker := New(NewMemoryStore(), zap.NewNop(), WithAlertFunc(func(Entry) {
		panic("alert channel down")
	}))

	assert.NotPanics(t, func() {
		tracker.LogError(Entry{Type: TypeSystem, Code: "DB_DOWN", Message: "down"})
	})
}

func TestGetErrorAnalytics(t *testing.T) {
	store := NewMemoryStore()
	tracker := New(store, zap.NewNop())

	now := time.Now()
	for i := 0; i < 3; i++ {
		tracker.LogError(Entry{Type: TypeTimeout, Code: "SLOW_PROVIDER", OccurredAt: now})
	}
	tracker.LogError(Entry{Type: TypeParsing, Code: "BAD_CSV", OccurredAt: now})
	// Outside every window.
	tracker.LogError(Entry{Type: TypeAPI, Code: "OLD", OccurredAt: now.Add(-60 * 24 * time.Hour)})

	analytics := tracker.GetErrorAnalytics(context.Background(), RangeDay)
	assert.Equal(t, RangeDay, analytics.TimeRange)
	assert.Equal(t, 4, analytics.TotalErrors)
	assert.Equal(t, 3, analytics.ByType[TypeTimeout])
	assert.Equal(t, 1, analytics.ByType[TypeParsing])
	require.NotEmpty(t, analytics.TopCodes)
	assert.Equal(t, "SLOW_PROVIDER", analytics.TopCodes[0].Code)
	assert.InDelta(t, 4.0/24.0, analytics.ErrorsPerHour, 0.0001)
}

type failingStore struct{}

func (failingStore) Insert(context.Context, *Entry) error { return errors.New("insert failed") }
func (failingStore) CountsSince(context.Context, time.Time) (int, map[ErrorType]int, []CodeCount, error) {
	return 0, nil, nil, errors.New("query failed")
}

func TestGetErrorAnalytics_StoreFailureYieldsEmptyAggregate(t *testing.T) {
	tracker := New(failingStore{}, zap.NewNop())

	assert.NotPanics(t, func() {
		tracker.LogError(Entry{Type: TypeParsing, Code: "BAD_CSV"})
	})

	analytics := tracker.GetErrorAnalytics(context.Background(), RangeWeek)
	assert.Equal(t, 0, analytics.TotalErrors)
	assert.Empty(t, analytics.TopCodes)
}

func TestTimeRangeDuration(t *testing.T) {
	assert.Equal(t, 24*time.Hour, RangeDay.Duration())
	assert.Equal(t, 7*24*time.Hour, RangeWeek.Duration())
	assert.Equal(t, 30*24*time.Hour, RangeMonth.Duration())
	assert.Equal(t, 24*time.Hour, TimeRange("bogus").Duration())
}
