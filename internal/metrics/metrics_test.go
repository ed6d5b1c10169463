package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveFetch(t *testing.T) {
	t.Parallel()

	ObserveFetch("https://fetch.test/a", OutcomeOK, 512)
	ObserveFetch("https://FETCH.test/b", OutcomeOK, 0)
	ObserveFetch("https://fetch.test/c", OutcomeHTTPError, 0)

	require.InDelta(t, 2.0, testutil.ToFloat64(fetchTotal.WithLabelValues("fetch.test", OutcomeOK)), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(fetchTotal.WithLabelValues("fetch.test", OutcomeHTTPError)), 1e-9)
	require.InDelta(t, 512.0, testutil.ToFloat64(fetchBytesTotal.WithLabelValues("fetch.test")), 1e-9)
}

func TestObserveRetryAndFailures(t *testing.T) {
	t.Parallel()

	ObserveRetry("https://retry.test/x")
	ObserveRetry("https://retry.test/y")
	ObserveExtractFailure("observe_test_reason")
	ObserveRateLimitDelay("delay.test", 250*time.Millisecond)

	require.InDelta(t, 2.0, testutil.ToFloat64(fetchRetriesTotal.WithLabelValues("retry.test")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(extractFailuresTotal.WithLabelValues("observe_test_reason")), 1e-9)
	require.GreaterOrEqual(t, testutil.CollectAndCount(rateLimitDelaysSeconds), 1)
}

func TestInitIsIdempotent(t *testing.T) {
	t.Parallel()

	Init()
	first := fetchTotal
	Init()
	require.Same(t, first, fetchTotal)
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
