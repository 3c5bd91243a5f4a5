package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAttempt(t *testing.T) {
	m := New()

	m.ObserveAttempt("gas-eth", "blocknative", errors.New("timeout"))
	m.ObserveAttempt("gas-eth", "owlracle", nil)
	m.ObserveAttempt("gas-eth", "owlracle", nil)
	m.ObserveDefault("nft")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("gas-eth", "blocknative", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("gas-eth", "owlracle", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderDefaults.WithLabelValues("nft")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveCache("get", "memory", "hit")
	m.ObserveApprovalPair(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "walletfolio_cache_operations_total")
	assert.Contains(t, string(body), "walletfolio_approval_pairs_checked_total")
}
