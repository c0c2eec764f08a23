package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/engine-gc/internal/mock"
	"github.com/engine-gc/internal/repository"
	"github.com/engine-gc/internal/snapshot"
	"github.com/engine-gc/internal/statistics"
	"github.com/engine-gc/internal/testutil"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/model"
)

func get(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServer_Runs(t *testing.T) {
	runs := &mock.MockRunRepository{}
	a := testutil.Report("sim-1", "sim", 0, 2)
	b := testutil.Report("sim-2", "sim", time.Minute, 3)

	runs.On("ListRuns", tmock.Anything, repository.RunFilter{Name: "sim", Limit: 50}).
		Return([]*model.RunReport{b, a}, nil)
	runs.On("ListRuns", tmock.Anything, repository.RunFilter{Status: model.RunStatusFailed, Limit: 5}).
		Return(nil, nil)
	runs.On("GetRun", tmock.Anything, "sim-1").Return(a, nil)
	runs.On("GetRun", tmock.Anything, "sim-2").Return(b, nil)
	runs.On("GetRun", tmock.Anything, "nope").
		Return(nil, apperrors.New(apperrors.CodeNotFound, "run not found: nope"))
	runs.On("DeleteRun", tmock.Anything, "sim-1").Return(nil)
	runs.On("DeleteRun", tmock.Anything, "broken").Return(errors.New("disk on fire"))

	h := NewServer(runs, "", nil).Handler()

	rec := get(t, h, http.MethodGet, "/api/runs?name=sim")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var listed []model.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "sim-2", listed[0].RunID)

	rec = get(t, h, http.MethodGet, "/api/runs?status=failed&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = get(t, h, http.MethodGet, "/api/runs?limit=lots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeInvalidInput)

	rec = get(t, h, http.MethodGet, "/api/runs/sim-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Cycles, 2)

	rec = get(t, h, http.MethodGet, "/api/runs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, http.MethodGet, "/api/stats?name=sim&top=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats statistics.CycleStatsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Runs)
	assert.Equal(t, 5, stats.Cycles)
	require.Len(t, stats.Slowest, 2)
	assert.Equal(t, 45*time.Microsecond, stats.Slowest[0].Duration)

	assert.Equal(t, http.StatusNoContent, get(t, h, http.MethodDelete, "/api/runs/sim-1").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, h, http.MethodDelete, "/api/runs/broken").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, get(t, h, http.MethodPost, "/api/runs").Code)

	runs.AssertExpectations(t)
}

func TestServer_Snapshot(t *testing.T) {
	dir := t.TempDir()
	snap := &snapshot.Snapshot{
		TakenAt: testutil.Epoch,
		State:   "idle",
		Objects: []snapshot.Object{
			{ID: 1, Class: "Actor", Size: 64},
			{ID: 2, Class: "Item", Size: 32},
			{ID: 3, Class: "Item", Size: 32},
		},
		Classes: []snapshot.Class{
			{Name: "Item", Count: 2, Bytes: 64},
			{Name: "Actor", Count: 1, Bytes: 64},
		},
		Bytes: 128,
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sim-1"), 0o755))
	require.NoError(t, snap.Save(filepath.Join(dir, "sim-1", "heap.json.zst")))
	require.NoError(t, snap.Save(filepath.Join(dir, "sim-1", "late.json")))

	h := NewServer(&mock.MockRunRepository{}, dir, nil).Handler()

	decode := func(rec *httptest.ResponseRecorder) snapshot.Snapshot {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var s snapshot.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
		return s
	}

	got := decode(get(t, h, http.MethodGet, "/api/runs/sim-1/snapshot"))
	assert.Len(t, got.Classes, 2)
	assert.Empty(t, got.Objects)

	got = decode(get(t, h, http.MethodGet, "/api/runs/sim-1/snapshot?file=late.json&top=1"))
	require.Len(t, got.Classes, 1)
	assert.Equal(t, "Item", got.Classes[0].Name)

	got = decode(get(t, h, http.MethodGet, "/api/runs/sim-1/snapshot?class=!Item"))
	require.Len(t, got.Classes, 1)
	assert.Equal(t, "Actor", got.Classes[0].Name)
	assert.Equal(t, uint64(64), got.Bytes)

	assert.Equal(t, http.StatusNotFound, get(t, h, http.MethodGet, "/api/runs/sim-9/snapshot").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, http.MethodGet, "/api/runs/sim-1/snapshot?file=..").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, http.MethodGet, "/api/runs/sim-1/snapshot?class=A*b").Code)

	rec := get(t, NewServer(&mock.MockRunRepository{}, "", nil).Handler(), http.MethodGet, "/api/runs/sim-1/snapshot")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(&mock.MockRunRepository{}, "", nil)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(t.Context()))
	assert.NoError(t, <-done)
}

func TestServer_HealthCheck(t *testing.T) {
	down := true
	s := NewServer(&mock.MockRunRepository{}, "", nil).WithHealthCheck(func(context.Context) error {
		if down {
			return apperrors.New(apperrors.CodeDatabaseError, "connection refused")
		}
		return nil
	})
	h := s.Handler()

	rec := get(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"DATABASE_ERROR"`)

	down = false
	assert.Equal(t, http.StatusNoContent, get(t, h, http.MethodGet, "/healthz").Code)
}
