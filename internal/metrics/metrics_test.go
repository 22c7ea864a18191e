package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Draws.WithLabelValues("CRYPTO_SECURE").Inc()
	m.DrawFailures.WithLabelValues("already_drawn").Add(2)
	m.Commitments.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Draws.WithLabelValues("CRYPTO_SECURE")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DrawFailures.WithLabelValues("already_drawn")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "raffle_draws_total")
	assert.Contains(t, names, "raffle_commitments_total")
}

func TestNew_Unregistered(t *testing.T) {
	// Two unregistered sets must not collide.
	a, b := New(nil), New(nil)
	a.Commitments.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Commitments))
}

func TestRegisterRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}
