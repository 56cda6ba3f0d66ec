package transport

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcast.transitpulse.org/internal/logging"
	"crowdcast.transitpulse.org/internal/metrics"
)

type recordedRequest struct {
	path   string
	accept string
	query  string
}

func newFeedServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32, chan recordedRequest) {
	t.Helper()
	var calls atomic.Int32
	seen := make(chan recordedRequest, 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		seen <- recordedRequest{path: r.URL.EscapedPath(), accept: r.Header.Get("Accept"), query: r.URL.RawQuery}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, seen
}

func testClient(srv *httptest.Server, busKey string, cache Cache, m *metrics.Metrics) *Client {
	return NewClient(Config{
		MTABaseURL: srv.URL,
		BusBaseURL: srv.URL + "/bus",
		BusAPIKey:  busKey,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}, cache, m, nil)
}

func TestFetchSendsAcceptHeaderPerKind(t *testing.T) {
	srv, _, seen := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	c := testClient(srv, "", nil, nil)

	assert.Equal(t, []byte("payload"), c.Fetch(context.Background(), SubwayACE))
	req := <-seen
	assert.Equal(t, "/nyct%2Fgtfs-ace", req.path)
	assert.Equal(t, "application/x-protobuf", req.accept)

	assert.NotNil(t, c.Fetch(context.Background(), Alerts))
	req = <-seen
	assert.Equal(t, "/camsys%2Fall-alerts.json", req.path)
	assert.Equal(t, "application/json", req.accept)
}

func TestFetchUsesCacheWithinTTL(t *testing.T) {
	srv, calls, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("feed"))
	})
	m := metrics.New()
	c := testClient(srv, "", NewMemoryCache(16), m)

	for i := 0; i < 3; i++ {
		assert.Equal(t, []byte("feed"), c.Fetch(context.Background(), SubwayL))
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedCacheTotal.WithLabelValues("subway-l", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedFetchesTotal.WithLabelValues("subway-l", "ok")))
}

func TestFetchMergesConcurrentMisses(t *testing.T) {
	srv, calls, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("feed"))
	})
	c := testClient(srv, "", NewMemoryCache(16), nil)

	var wg sync.WaitGroup
	bodies := make([][]byte, 16)
	for i := range bodies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bodies[i] = c.Fetch(context.Background(), SubwayACE)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, b := range bodies {
		assert.Equal(t, []byte("feed"), b)
	}
}

func TestFetchSharedLoadIgnoresCallerCancel(t *testing.T) {
	release := make(chan struct{})
	srv, calls, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("feed"))
	})
	c := testClient(srv, "", NewMemoryCache(16), nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan []byte)
	go func() { first <- c.Fetch(ctx, SubwayG) }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	close(release)

	assert.Equal(t, []byte("feed"), <-first)
	assert.Equal(t, []byte("feed"), c.Fetch(context.Background(), SubwayG))
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchFailureLogsRequestID(t *testing.T) {
	srv, _, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	var buf bytes.Buffer
	c := NewClient(Config{MTABaseURL: srv.URL, Timeout: time.Second}, nil, nil, slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := logging.WithRequestID(context.Background(), "req-42")
	assert.Nil(t, c.Fetch(ctx, SubwayL))
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.Contains(t, buf.String(), `"feed":"subway-l"`)
}

func TestFetchBusWithoutKeyShortCircuits(t *testing.T) {
	srv, calls, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bus"))
	})
	m := metrics.New()
	c := testClient(srv, "", nil, m)

	assert.False(t, c.HasBusKey())
	assert.Nil(t, c.Fetch(context.Background(), BusTripUpdates))
	assert.Nil(t, c.Fetch(context.Background(), BusVehicles))
	assert.EqualValues(t, 0, calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedFetchesTotal.WithLabelValues("bus-trip-updates", "skipped")))
}

func TestFetchBusWithKey(t *testing.T) {
	srv, _, seen := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bus"))
	})
	c := testClient(srv, "secret key", nil, nil)

	assert.Equal(t, []byte("bus"), c.Fetch(context.Background(), BusTripUpdates))
	req := <-seen
	assert.Equal(t, "/bus/tripUpdates", req.path)
	assert.Equal(t, "key=secret+key", req.query)
}

func TestFetchNon2xxReturnsNil(t *testing.T) {
	t.Run("client errors are not retried", func(t *testing.T) {
		srv, calls, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
		m := metrics.New()
		c := testClient(srv, "", NewMemoryCache(4), m)

		assert.Nil(t, c.Fetch(context.Background(), LIRR))
		assert.EqualValues(t, 1, calls.Load())
		assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedFetchesTotal.WithLabelValues("lirr", "status")))

		// failures are not cached
		assert.Nil(t, c.Fetch(context.Background(), LIRR))
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("server errors are retried then given up", func(t *testing.T) {
		srv, calls, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		c := testClient(srv, "", nil, nil)

		assert.Nil(t, c.Fetch(context.Background(), MetroNorth))
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("transient server error recovers", func(t *testing.T) {
		var n atomic.Int32
		srv, _, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
			if n.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ok"))
		})
		c := testClient(srv, "", nil, nil)

		assert.Equal(t, []byte("ok"), c.Fetch(context.Background(), SubwayG))
	})
}

func TestFetchNetworkErrorReturnsNil(t *testing.T) {
	c := NewClient(Config{MTABaseURL: "http://127.0.0.1:1", Timeout: 300 * time.Millisecond}, nil, nil, nil)
	assert.Nil(t, c.Fetch(context.Background(), SubwayJZ))
}

func TestFetchInflatesGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"entity":[]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv, _, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	})
	c := testClient(srv, "", nil, nil)

	assert.Equal(t, `{"entity":[]}`, string(c.Fetch(context.Background(), Outages)))
}

func TestFetchRejectsOversizeBody(t *testing.T) {
	srv, _, _ := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	})
	c := NewClient(Config{MTABaseURL: srv.URL, MaxBodyBytes: 32}, nil, nil, nil)

	assert.Nil(t, c.Fetch(context.Background(), Equipment))
}

func TestFetchUnknownKind(t *testing.T) {
	c := NewClient(Config{}, nil, nil, nil)
	assert.Nil(t, c.Fetch(context.Background(), Kind("ferry")))
	_, ok := c.URL(Kind("ferry"))
	assert.False(t, ok)
}

func TestTTLs(t *testing.T) {
	tests := []struct {
		kind Kind
		ttl  time.Duration
	}{
		{Subway1234567S, 30 * time.Second},
		{SubwaySIR, 30 * time.Second},
		{BusTripUpdates, 30 * time.Second},
		{LIRR, 30 * time.Second},
		{MetroNorth, 30 * time.Second},
		{Alerts, 60 * time.Second},
		{Outages, 300 * time.Second},
		{Equipment, 3600 * time.Second},
		{Kind("nope"), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ttl, TTL(tt.kind), string(tt.kind))
	}
	assert.Len(t, Kinds(), 15)
	assert.True(t, RequiresBusKey(BusVehicles))
	assert.False(t, RequiresBusKey(LIRR))
}

func TestSubwayKind(t *testing.T) {
	tests := map[string]Kind{
		"1": Subway1234567S, "GS": Subway1234567S, "a": SubwayACE, "H": SubwayACE,
		"M": SubwayBDFM, "G": SubwayG, "Z": SubwayJZ, "L": SubwayL, "W": SubwayNQRW, "SI": SubwaySIR,
	}
	for route, want := range tests {
		got, ok := SubwayKind(route)
		require.True(t, ok, route)
		assert.Equal(t, want, got, route)
	}
	_, ok := SubwayKind("M15")
	assert.False(t, ok)
}
