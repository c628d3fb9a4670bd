package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveLookup(t *testing.T) {
	ObserveLookup("env", OutcomeHit, 0.001)
	ObserveLookup("env", OutcomeHit, 0.002)
	ObserveLookup("aws", OutcomeNotFound, 0.05)

	assert.Equal(t, float64(2), testutil.ToFloat64(lookupsTotal.WithLabelValues("env", OutcomeHit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(lookupsTotal.WithLabelValues("aws", OutcomeNotFound)))
}

func TestObserveScan(t *testing.T) {
	before := testutil.ToFloat64(scanRunsTotal)
	ObserveScan(map[string]int{"SK301": 2})

	assert.Equal(t, before+1, testutil.ToFloat64(scanRunsTotal))
	assert.GreaterOrEqual(t, testutil.ToFloat64(scanFindings.WithLabelValues("SK301")), float64(2))
}

func TestRegistryGathers(t *testing.T) {
	ObserveLookup("env", OutcomeHit, 0.001)

	families, err := Registry().Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, strings.Join(names, ","), "skein_backend_lookups_total")
}
