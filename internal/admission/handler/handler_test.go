package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/admission"
	"verigate/pkg/testutil"
)

type stubMonitor bool

func (m stubMonitor) Running() bool { return bool(m) }

func newRouter(c *admission.Controller, running bool) chi.Router {
	r := chi.NewRouter()
	New(c, stubMonitor(running), slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterAdminRoutes(r)
	return r
}

func TestSnapshot(t *testing.T) {
	c := admission.New(20)
	permit, err := c.Acquire(t.Context(), "spotify_student")
	require.NoError(t, err)
	defer permit.Release()

	rr := testutil.DoRequest(newRouter(c, true), testutil.NewRequest(t, http.MethodGet, "/admin/concurrency"))
	testutil.AssertStatusOK(t, rr)

	resp := testutil.UnmarshalResponse[snapshotResponse](t, rr)
	assert.Equal(t, 20, resp.Budget)
	assert.True(t, resp.MonitorRunning)
	require.Len(t, resp.Pools, 1)
	assert.Equal(t, "spotify_student", resp.Pools[0].Category)
	assert.Equal(t, admission.ClassHeavy, resp.Pools[0].Class)
	assert.Equal(t, 6, resp.Pools[0].Capacity)
	assert.Equal(t, 1, resp.Pools[0].InUse)
}

func TestSetBudget(t *testing.T) {
	t.Run("clamps the override", func(t *testing.T) {
		c := admission.New(20)
		rr := testutil.DoRequest(newRouter(c, false),
			testutil.NewJSONRequest(t, http.MethodPut, "/admin/concurrency/budget", map[string]int{"budget": 500}))
		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, 100, c.Budget())
		testutil.AssertJSONContains(t, rr, "budget", float64(100))
	})

	t.Run("rejects non-positive budget", func(t *testing.T) {
		c := admission.New(20)
		rr := testutil.DoRequest(newRouter(c, false),
			testutil.NewJSONRequest(t, http.MethodPut, "/admin/concurrency/budget", map[string]int{"budget": 0}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
		assert.Equal(t, 20, c.Budget())
	})
}
