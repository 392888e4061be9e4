package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/foods/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /api/meals/types", func(w http.ResponseWriter, r *http.Request) {})
	return mux
}

func TestRouteLabel(t *testing.T) {
	cases := []struct {
		pattern string
		want    string
	}{
		{"", "unmatched"},
		{"GET /api/meals/{id}", "/api/meals/{id}"},
		{"/health", "/health"},
		{"POST /api/foods", "/api/foods"},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		r.Pattern = tc.pattern
		assert.Equal(t, tc.want, routeLabel(r), "pattern %q", tc.pattern)
	}
}

func TestInstrumentHandlerCountsRequests(t *testing.T) {
	handler := InstrumentHandler(newTestMux())

	counter := httpRequests.WithLabelValues("GET", "/api/foods/{id}", "404")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/foods/99", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/foods/abc", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestInstrumentHandlerUnknownPathsShareOneSeries(t *testing.T) {
	handler := InstrumentHandler(newTestMux())

	counter := httpRequests.WithLabelValues("GET", "unmatched", "404")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/wp-admin", "/a/b/c", "/api/foodz/1", "/.env"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	assert.Equal(t, before+4, testutil.ToFloat64(counter))
}

func TestRecordWriteAndExposition(t *testing.T) {
	RecordWrite("meal", "created")
	assert.GreaterOrEqual(t, testutil.ToFloat64(ledgerWrites.WithLabelValues("meal", "created")), 1.0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "nutriledger_ledger_writes_total"))
}
