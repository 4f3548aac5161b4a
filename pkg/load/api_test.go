package load

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPILoader(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("posts_batches_in_order", func(t *testing.T) {
		t.Parallel()
		var mu sync.Mutex
		var batches []loadBatch
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			var b loadBatch
			require.NoError(t, json.Unmarshal(body, &b))
			mu.Lock()
			batches = append(batches, b)
			mu.Unlock()
		}))
		defer srv.Close()

		l, err := New(Config{Logger: testLogger(), Settings: loaderSettings(srv.URL)})
		require.NoError(t, err)

		require.NoError(t, l.Load(ctx, ordersOut(t)))

		// 3 rows at batch size 2.
		require.Len(t, batches, 2)
		require.Equal(t, "orders", batches[0].Entity)
		require.Equal(t, 0, batches[0].Batch)
		require.Len(t, batches[0].Records, 2)
		require.Equal(t, 1, batches[1].Batch)
		require.Len(t, batches[1].Records, 1)
	})

	t.Run("rejected_batch_is_terminal", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		l, err := New(Config{Logger: testLogger(), Settings: loaderSettings(srv.URL)})
		require.NoError(t, err)

		err = l.Load(ctx, ordersOut(t))
		require.Error(t, err)
		require.Contains(t, err.Error(), "rejected")
	})
}
