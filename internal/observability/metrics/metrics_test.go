package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("tx_type", "lead_charge"),
		attribute.String("broker_id", "456"),
		attribute.String("outcome", "charged"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("tx_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordLeadCharge(context.Background(), "charged")
	m.RecordLockConflict(context.Background())
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordCreditTransaction(context.Background(), "top_up")
	m.RecordInvoice(context.Background(), "monthly", true)
}
