package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/model"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25, DLQThreshold: 10})

	snap := &MetricsSnapshot{
		Jobs:          model.JobStats{Total: 20, Succeeded: 19, Failed: 1},
		FailureRate:   0.05,
		DLQDepth:      2,
		LookbackHours: 24,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	snap := &MetricsSnapshot{
		Jobs:          model.JobStats{Total: 10, Succeeded: 5, Failed: 5},
		FailureRate:   0.5,
		LookbackHours: 24,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertJobFailureRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "50.0%")
	assert.Contains(t, alerts[0].Message, "5 failed / 10 finished")
}

func TestAlerter_Evaluate_MinimumJobsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		Jobs:        model.JobStats{Total: 3, Succeeded: 1, Failed: 2},
		FailureRate: 0.666,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_DLQDepth(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{DLQThreshold: 3})

	alerts := a.Evaluate(&MetricsSnapshot{DLQDepth: 3})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDLQDepth, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "3 dead-lettered")

	assert.Empty(t, NewAlerter(config.MonitoringConfig{}).Evaluate(&MetricsSnapshot{DLQDepth: 100}),
		"zero threshold disables the check")
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertJobFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertDLQDepth, Severity: "medium", Message: "test alert 2"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_Cooldown(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer ts.Close()

	now := fixedNow
	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL, CooldownMinutes: 60})
	a.now = func() time.Time { return now }
	alerts := []Alert{{Type: AlertDLQDepth, Message: "dlq"}}

	assert.Equal(t, 1, a.SendAlerts(context.Background(), alerts))
	now = now.Add(30 * time.Minute)
	assert.Equal(t, 0, a.SendAlerts(context.Background(), alerts))
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, a.SendAlerts(context.Background(), alerts))
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertJobFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL, CooldownMinutes: 60})
	alerts := []Alert{{Type: AlertJobFailureRate, Message: "test"}}
	assert.Equal(t, 0, a.SendAlerts(context.Background(), alerts))
	assert.False(t, a.coolingDown(AlertJobFailureRate), "failed sends do not start a cooldown")
}
