package server_test

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-nsf-vocoder/internal/server"
)

func TestVocode_OversizedBodyRejectedAs413(t *testing.T) {
	body := featureBody(t, 64)
	h := server.NewHandler(&stubSynthesizer{}, testInfo, server.WithMaxBodyBytes(int64(len(body)-1)))

	rec := postVocode(t, h, "/vocode", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestVocode_BodyAtExactLimitIsAccepted(t *testing.T) {
	body := featureBody(t, 64)
	h := server.NewHandler(&stubSynthesizer{}, testInfo, server.WithMaxBodyBytes(int64(len(body))))

	rec := postVocode(t, h, "/vocode", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVocode_RequestTimeoutCancelsInFlight(t *testing.T) {
	h := server.NewHandler(blockingSynthesizer{}, testInfo, server.WithRequestTimeout(20*time.Millisecond))

	rec := postVocode(t, h, "/vocode", featureBody(t, 4))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestVocode_ConcurrencyThrottling(t *testing.T) {
	const (
		workers       = 2
		totalRequests = 5
	)

	var (
		mu      sync.Mutex
		peak    int
		current int32
		entered = make(chan struct{}, totalRequests)
		release = make(chan struct{})
	)

	synth := &countingSynthesizer{
		onEnter: func() {
			n := int(atomic.AddInt32(&current, 1))

			mu.Lock()
			peak = max(peak, n)
			mu.Unlock()

			entered <- struct{}{}
		},
		onExit:  func() { atomic.AddInt32(&current, -1) },
		release: release,
	}

	h := server.NewHandler(synth, testInfo, server.WithWorkers(workers))
	body := featureBody(t, 4)

	var wg sync.WaitGroup

	codes := make([]int, totalRequests)
	for i := range totalRequests {
		wg.Add(1)

		go func() {
			defer wg.Done()

			codes[i] = postVocode(t, h, "/vocode", body).Code
		}()
	}

	// Wait until the pool is saturated, then give stragglers a chance to
	// (incorrectly) enter before releasing everyone.
	for range workers {
		<-entered
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, code := range codes {
		require.Equal(t, http.StatusOK, code, "request %d", i)
	}

	assert.LessOrEqual(t, peak, workers)
}
