package conversation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/copilot/internal/httpclient"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *httpclient.Client {
	return httpclient.New(httpclient.Options{
		BaseURL:      baseURL,
		Timeout:      5 * time.Second,
		RetryWait:    time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
	})
}

func signatureServer(t *testing.T, hits *atomic.Int32, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, createPath, r.URL.Path)
		assert.Equal(t, "1.1600.1-nodesign2", r.URL.Query().Get("bundleVersion"))
		time.Sleep(delay)
		w.Header().Set(headerPlainSignature, "plain-"+r.URL.Query().Get("conversationId"))
		w.Header().Set(headerEncryptedSignature, "enc-"+r.URL.Query().Get("conversationId"))
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsureFetchesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := signatureServer(t, &hits, 0)

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	signer := NewSigner(newTestClient(srv.URL), "1.1600.1-nodesign2", nil, metrics)
	c := New("c1")

	sigs, err := signer.Ensure(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, Signatures{Plain: "plain-c1", Encrypted: "enc-c1"}, sigs)

	plain, err := signer.Plain(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "plain-c1", plain)
	enc, err := signer.Encrypted(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "enc-c1", enc)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SignatureLookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SignatureLookups.WithLabelValues("hit")))
}

func TestEnsureCollapsesConcurrentCalls(t *testing.T) {
	var hits atomic.Int32
	srv := signatureServer(t, &hits, 50*time.Millisecond)
	signer := NewSigner(newTestClient(srv.URL), "1.1600.1-nodesign2", nil, nil)
	c := New("c1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sigs, err := signer.Ensure(context.Background(), c)
			assert.NoError(t, err)
			assert.Equal(t, "enc-c1", sigs.Encrypted)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestEnsureFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"missing plain header", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(headerEncryptedSignature, "enc")
		}},
		{"missing encrypted header", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(headerPlainSignature, "plain")
		}},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(headerPlainSignature, "plain")
			w.Header().Set(headerEncryptedSignature, "enc")
			w.WriteHeader(http.StatusForbidden)
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			signer := NewSigner(newTestClient(srv.URL), "v", nil, nil)
			c := New("c1")
			_, err := signer.Ensure(context.Background(), c)
			assert.ErrorIs(t, err, ErrSignatureFetchFailed)

			_, ok := c.Signatures()
			assert.False(t, ok)
		})
	}
}

func TestEnsureAcceptsAnySuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(headerPlainSignature, "plain")
				w.Header().Set(headerEncryptedSignature, "enc")
				w.WriteHeader(status)
			}))
			defer srv.Close()

			signer := NewSigner(newTestClient(srv.URL), "v", nil, nil)
			c := New("c1")
			sigs, err := signer.Ensure(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, Signatures{Plain: "plain", Encrypted: "enc"}, sigs)

			_, ok := c.Signatures()
			assert.True(t, ok)
		})
	}
}

func TestEnsureHonorsContext(t *testing.T) {
	var hits atomic.Int32
	srv := signatureServer(t, &hits, 200*time.Millisecond)
	signer := NewSigner(newTestClient(srv.URL), "1.1600.1-nodesign2", nil, nil)
	c := New("c1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := signer.Ensure(ctx, c)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared fetch still completes and fills the cache.
	assert.Eventually(t, func() bool {
		_, ok := c.Signatures()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
