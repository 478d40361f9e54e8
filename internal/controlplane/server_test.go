package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	name    string
	paused  bool
	purged  bool
	resumed bool
}

func (s *stubWorker) Name() string         { return s.name }
func (s *stubWorker) MarketSymbol() string { return "HERTZ/BTS" }
func (s *stubWorker) Account() string      { return "alice" }
func (s *stubWorker) Disabled() bool       { return false }
func (s *stubWorker) Paused() bool         { return s.paused }

func (s *stubWorker) Pause(context.Context) error {
	s.paused = true
	return nil
}

func (s *stubWorker) Resume() {
	s.paused = false
	s.resumed = true
}

func (s *stubWorker) Purge(context.Context) error {
	s.purged = true
	return nil
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestListWorkers(t *testing.T) {
	w := &stubWorker{name: "w1"}
	srv := NewServer("127.0.0.1:0", []ManagedWorker{w})

	rec := do(t, srv, http.MethodGet, "/workers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Workers []workerView `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Workers, 1)
	assert.Equal(t, "w1", body.Workers[0].Name)
	assert.Equal(t, "HERTZ/BTS", body.Workers[0].Market)
	assert.False(t, body.Workers[0].Paused)
}

func TestPauseResumePurge(t *testing.T) {
	w := &stubWorker{name: "w1"}
	srv := NewServer("127.0.0.1:0", []ManagedWorker{w})

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/workers/w1/pause").Code)
	assert.True(t, w.paused)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/workers/w1/resume").Code)
	assert.True(t, w.resumed)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/workers/w1/purge").Code)
	assert.True(t, w.purged)
}

func TestUnknownWorkerIs404(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/workers/nope/pause").Code)
}
