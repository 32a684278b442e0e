package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}

func TestCollectorsRegistered(t *testing.T) {
	before := testutil.ToFloat64(Notifications.WithLabelValues("ok"))
	Notifications.WithLabelValues("ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Notifications.WithLabelValues("ok")))

	families, err := Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["cashback_gateway_notifications_total"])
}
