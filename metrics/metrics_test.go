package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-classify/classifier"
	"github.com/nvr-ai/go-classify/models"
)

var (
	_ classifier.Observer = (*Collector)(nil)
	_ models.LoadObserver = (*Collector)(nil)
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveInference("rice", 12*time.Millisecond, nil)
	c.ObserveInference("rice", 8*time.Millisecond, nil)
	c.ObserveInference("rice", 0, errors.New("boom"))
	c.ObserveLoad("rice", 1500*time.Millisecond)
	c.SetLoaded(2)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.Requests.WithLabelValues("rice", StatusOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Requests.WithLabelValues("rice", StatusError)))
	assert.Equal(t, 1.5, testutil.ToFloat64(c.LoadDuration.WithLabelValues("rice")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.ModelsLoaded))
	assert.Equal(t, 1, testutil.CollectAndCount(c.InferenceDuration))

	expected := `
# HELP classify_models_loaded Number of models currently loaded.
# TYPE classify_models_loaded gauge
classify_models_loaded 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "classify_models_loaded"))
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	assert.Error(t, err)
}
