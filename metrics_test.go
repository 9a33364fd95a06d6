package respcache_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stumble/respcache"
)

func TestNewMetricSetRegistersAndUnregisters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := respcache.NewMetricSet("test", reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	m.Unregister(reg)
	families, err = reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}

func TestNewMetricSetDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := respcache.NewMetricSet("dup", reg)
	require.NoError(t, err)

	_, err = respcache.NewMetricSet("dup", reg)
	require.Error(t, err)
}
