package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobStatusHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("start"))
		assert.Equal(t, "30", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"total":3,"jobs":[
			{"id":3,"name":"CreatePDF","status":"finished","originatorType":"Unit","originatorID":"12","startedAt":"2026-10-01T10:00:00Z"},
			{"id":2,"name":"CheckOrder","status":"failure","originatorType":"Order","originatorID":"101","failures":2,"error":"bad","startedAt":"2026-10-01T09:00:00Z"},
			{"id":1,"name":"Cleanup","status":"running","startedAt":"2026-10-01T08:00:00Z"}
		]}`)
	})
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":3,"status":"finished","events":[
			{"id":10,"jobID":3,"level":0,"text":"start","createdAt":"2026-10-01T10:00:00Z"},
			{"id":11,"jobID":3,"level":1,"text":"slow page","createdAt":"2026-10-01T10:00:05Z"},
			{"id":12,"jobID":3,"level":3,"text":"boom","createdAt":"2026-10-01T10:00:09Z"}
		]}`)
	})
	mux.HandleFunc("DELETE /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Jobs []int64 `json:"jobs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(req)
	})
	return mux
}

func TestJobsStore_ListAndDetails(t *testing.T) {
	env := newStoreEnv(t, jobStatusHandler(t))
	store := NewJobsStore(JobsStoreOptions{Deps: env.deps})

	page, err := store.List(context.Background(), JobSearch{})
	require.NoError(t, err)
	require.Len(t, page.Jobs, 3)
	assert.Equal(t, "Unit 12", page.Jobs[0].AssociatedObject)
	assert.Equal(t, int64(2), page.Jobs[1].Warnings)
	assert.Equal(t, "None", page.Jobs[2].AssociatedObject)

	d, err := store.GetDetails(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Unit 12", d.AssociatedObject)
	require.Len(t, d.Events, 3)
	assert.Equal(t, []string{"info", "warning", "fatal"}, []string{d.Events[0].Level, d.Events[1].Level, d.Events[2].Level})
	assert.Equal(t, "slow page", d.Events[1].Text)
}

func TestJobsStore_GetDetailsNotFound(t *testing.T) {
	env := newStoreEnv(t, jobStatusHandler(t))
	store := NewJobsStore(JobsStoreOptions{Deps: env.deps})

	_, err := store.GetDetails(context.Background(), 77)
	require.Error(t, err)
	assert.Equal(t, NotFoundPath, env.nav.Last())
	assert.Empty(t, env.system.Error())
}

func TestJobsStore_Delete(t *testing.T) {
	env := newStoreEnv(t, jobStatusHandler(t))
	store := NewJobsStore(JobsStoreOptions{Deps: env.deps})

	_, err := store.List(context.Background(), JobSearch{})
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), []int64{1, 3}))
	cached := store.Cached()
	require.Len(t, cached.Jobs, 1)
	assert.Equal(t, int64(2), cached.Jobs[0].ID)
	assert.Equal(t, int64(1), cached.Total)

	require.NoError(t, store.Delete(context.Background(), nil))
}

func TestEventLevel_String(t *testing.T) {
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", EventLevel(9).String())
}
