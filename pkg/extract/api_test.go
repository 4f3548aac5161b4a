package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/flowline/pkg/settings"
)

func apiSettings(baseURL string) settings.Settings {
	return settings.Settings{
		PipelineKind:    settings.KindData,
		Entity:          "orders",
		SourceKind:      settings.SourceAPI,
		APIBaseURL:      baseURL,
		APIKey:          "test-key",
		OutputURI:       "file://out",
		BatchSize:       100,
		MaxConcurrency:  4,
		AtRiskAfterDays: 90,
	}
}

const ordersJSON = `[
	{"order_id": "O-1", "customer_id": "C-1", "order_date": "2024-01-10", "amount": 120.00},
	{"order_id": "O-2", "customer_id": "C-2", "order_date": "2024-02-01", "amount": 50.00}
]`

func TestAPIExtractor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("fetches_and_validates_response", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/orders", r.URL.Path)
			require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			w.Write([]byte(ordersJSON))
		}))
		defer srv.Close()

		e, err := New(Config{Logger: testLogger(), Settings: apiSettings(srv.URL)})
		require.NoError(t, err)

		d, err := e.Extract(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, d.NumRows())
	})

	t.Run("source_swap_yields_schema_identical_dataset", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFixture(t, dir, "orders.csv", "order_id,customer_id,order_date,amount\nO-1,C-1,2024-01-10,120.00\nO-2,C-2,2024-02-01,50.00\n")
		fileExt, err := New(Config{Logger: testLogger(), Settings: fileSettings(dir, "orders")})
		require.NoError(t, err)
		fromFile, err := fileExt.Extract(ctx)
		require.NoError(t, err)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(ordersJSON))
		}))
		defer srv.Close()
		apiExt, err := New(Config{Logger: testLogger(), Settings: apiSettings(srv.URL)})
		require.NoError(t, err)
		fromAPI, err := apiExt.Extract(ctx)
		require.NoError(t, err)

		require.Empty(t, cmp.Diff(fromFile, fromAPI))
	})

	t.Run("retries_transient_failures", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(ordersJSON))
		}))
		defer srv.Close()

		e, err := New(Config{Logger: testLogger(), Settings: apiSettings(srv.URL)})
		require.NoError(t, err)

		d, err := e.Extract(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, d.NumRows())
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("authentication_failure_is_not_retried", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		e, err := New(Config{Logger: testLogger(), Settings: apiSettings(srv.URL)})
		require.NoError(t, err)

		_, err = e.Extract(ctx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "authentication failed")
		require.Equal(t, int32(1), calls.Load())
	})

	t.Run("undeclared_field_in_response_is_terminal", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"order_id": "O-1", "customer_id": "C-1", "order_date": "2024-01-10", "amount": 1, "color": "red"}]`))
		}))
		defer srv.Close()

		e, err := New(Config{Logger: testLogger(), Settings: apiSettings(srv.URL)})
		require.NoError(t, err)

		_, err = e.Extract(ctx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "undeclared field")
	})
}
