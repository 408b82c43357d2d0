package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newRecordingMetrics returns a Metrics recorder backed by a manual reader so
// tests can inspect what was recorded.
func newRecordingMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func attrKey(set attribute.Set) string {
	return set.Encoded(attribute.DefaultEncoder())
}

// sums flattens an int64 counter into attribute-set -> value.
func sums(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		out[attrKey(dp.Attributes)] = dp.Value
	}
	return out
}

// counts flattens a histogram into attribute-set -> observation count.
func counts(t *testing.T, m metricdata.Metrics) map[string]uint64 {
	t.Helper()
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "%s is not a float64 histogram", m.Name)

	out := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		out[attrKey(dp.Attributes)] = dp.Count
	}
	return out
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m, reader := newRecordingMetrics(t, false)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/api/rules", 200, 100*time.Millisecond)
	m.RecordHTTPRequest(ctx, "GET", "/api/rules", 200, 20*time.Millisecond)
	m.RecordHTTPRequest(ctx, "PUT", "/api/rules/{id}", 400, 5*time.Millisecond)

	got := collect(t, reader)
	assert.Equal(t, map[string]int64{
		"method=GET,path=/api/rules,status=200":      2,
		"method=PUT,path=/api/rules/{id},status=400": 1,
	}, sums(t, got["http_requests_total"]))
	assert.Equal(t, uint64(2), counts(t, got["http_request_duration_seconds"])["method=GET,path=/api/rules,status=200"])
}

func TestMetrics_RecordGoogleAPIOperation(t *testing.T) {
	m, reader := newRecordingMetrics(t, false)
	ctx := context.Background()

	m.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationList, StatusSuccess, 200*time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationModify, StatusError, 500*time.Millisecond)

	got := collect(t, reader)
	assert.Equal(t, map[string]int64{
		"operation=list,service=gmail,status=success": 1,
		"operation=modify,service=gmail,status=error": 1,
	}, sums(t, got["google_api_operations_total"]))
	assert.Len(t, counts(t, got["google_api_operation_duration_seconds"]), 2)
}

func TestMetrics_RecordEmailProcessed(t *testing.T) {
	m, reader := newRecordingMetrics(t, false)
	ctx := context.Background()

	m.RecordEmailProcessed(ctx, ResultMatched)
	m.RecordEmailProcessed(ctx, ResultMatched)
	m.RecordEmailProcessed(ctx, ResultUnmatched)

	assert.Equal(t, map[string]int64{
		"result=matched":   2,
		"result=unmatched": 1,
	}, sums(t, collect(t, reader)["emails_processed_total"]))
}

func TestMetrics_RecordRuleAction(t *testing.T) {
	tests := []struct {
		name     string
		detailed bool
		want     map[string]int64
	}{
		{
			name: "label omitted",
			want: map[string]int64{
				"action=tag,status=success":   1,
				"action=archive,status=error": 1,
			},
		},
		{
			name:     "label included",
			detailed: true,
			want: map[string]int64{
				"action=tag,label=Bills,status=success": 1,
				"action=archive,status=error":           1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newRecordingMetrics(t, tt.detailed)
			ctx := context.Background()

			m.RecordRuleAction(ctx, "tag", "Bills", StatusSuccess)
			m.RecordRuleAction(ctx, "archive", "", StatusError)

			assert.Equal(t, tt.want, sums(t, collect(t, reader)["rule_actions_total"]))
		})
	}
}

func TestMetrics_RecordBatchAndJobs(t *testing.T) {
	m, reader := newRecordingMetrics(t, false)
	ctx := context.Background()

	m.RecordBatch(ctx, StatusSuccess, 3*time.Second)
	m.IncrementActiveJobs(ctx)
	m.IncrementActiveJobs(ctx)
	m.DecrementActiveJobs(ctx)

	got := collect(t, reader)
	assert.Equal(t, uint64(1), counts(t, got["batch_duration_seconds"])["status=success"])
	assert.Equal(t, map[string]int64{"": 1}, sums(t, got["processing_jobs_active"]))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	ctx := context.Background()

	// A nil recorder is valid for callers that run without instrumentation
	metrics.RecordHTTPRequest(ctx, "GET", "/api/rules", 200, time.Millisecond)
	metrics.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationGet, StatusSuccess, time.Millisecond)
	metrics.RecordEmailProcessed(ctx, ResultUnmatched)
	metrics.RecordRuleAction(ctx, "move", "Archive", StatusSuccess)
	metrics.RecordBatch(ctx, StatusError, time.Second)
	metrics.IncrementActiveJobs(ctx)
	metrics.DecrementActiveJobs(ctx)
}
