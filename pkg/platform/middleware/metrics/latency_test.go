package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls [][3]string
}

func (o *recordingObserver) ObserveRequest(route, method, status string, _ time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, [3]string{route, method, status})
}

func TestLatencyMiddleware_UsesRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(LatencyMiddleware(obs))
	r.Get("/books/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books/123", nil))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, [3]string{"/books/{id}", "GET", "404"}, obs.calls[0])
}
