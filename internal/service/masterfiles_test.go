package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jobsBackend fakes the jobs service and the job status endpoint.
type jobsBackend struct {
	jobID    string
	statuses []string // JSON documents served by /api/jobs/:id

	mu        sync.Mutex
	polls     int
	posted    map[string]json.RawMessage
	fileFetch atomic.Int32
}

func (b *jobsBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && len(r.URL.Path) > len("/jobs/") && r.URL.Path[:6] == "/jobs/":
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		if b.posted == nil {
			b.posted = map[string]json.RawMessage{}
		}
		b.posted[r.URL.Path] = body
		b.mu.Unlock()
		_, _ = io.WriteString(w, b.jobID+"\n")
	case r.URL.Path == "/api/jobs/"+b.jobID:
		b.mu.Lock()
		doc := b.statuses[min(b.polls, len(b.statuses)-1)]
		b.polls++
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, doc)
	case r.URL.Path == "/api/units/12/masterfiles":
		b.fileFetch.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":1,"pid":"tsm:1","unitID":12,"filename":"0001.tif"},{"id":2,"pid":"tsm:2","unitID":12,"filename":"0002.tif"}]`)
	case r.URL.Path == "/api/masterfiles/5":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"masterFile":{"id":5,"pid":"tsm:5","unitID":12,"filename":"0005.tif"},"thumbURL":"https://iiif/5/thumb","orderID":44}`)
	default:
		http.NotFound(w, r)
	}
}

func (b *jobsBackend) body(path string) json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.posted[path]
}

func newMasterFilesStore(t *testing.T, b *jobsBackend) (*MasterFilesStore, *UnitsStore, *storeEnv) {
	t.Helper()
	env := newStoreEnv(t, b)
	units := NewUnitsStore(UnitsStoreOptions{Deps: env.deps})
	store := NewMasterFilesStore(MasterFilesStoreOptions{
		Deps:      env.deps,
		Poll:      env.poll(),
		Units:     units,
		Extractor: env.extractor(t),
	})
	return store, units, env
}

func TestMasterFilesStore_CloneRefreshesUnit(t *testing.T) {
	b := &jobsBackend{jobID: "81", statuses: []string{`{"status":"running"}`, `{"status":"finished"}`}}
	store, units, env := newMasterFilesStore(t, b)

	req := CloneRequest{Sources: []CloneSource{{UnitID: 9, All: true}}}
	require.True(t, store.Clone(context.Background(), 12, req))
	assert.True(t, store.UpdateInProgress())
	assert.False(t, store.Replace(context.Background(), 12, ReplaceRequest{ComputeID: "lf6f"}), "clone and replace share a slot")

	env.tick(t)
	env.tick(t)
	waitFor(t, func() bool { return !store.UpdateInProgress() })

	assert.JSONEq(t, `{"list":[{"unitID":9,"all":true}]}`, string(b.body("/jobs/units/12/clone")))
	unitID, files := units.MasterFiles()
	assert.Equal(t, int64(12), unitID)
	assert.Len(t, files, 2)
	assert.Equal(t, int32(1), b.fileFetch.Load())

	n := env.system.Notices()
	require.Len(t, n.Toasts, 1)
	assert.Equal(t, Toast{Kind: ToastSuccess, Message: "Master files cloned"}, n.Toasts[0])
	assert.Empty(t, n.Error)
}

func TestMasterFilesStore_ReplaceFailure(t *testing.T) {
	b := &jobsBackend{jobID: "82", statuses: []string{`{"status":"failure","error":"0003.tif has no match"}`}}
	store, _, env := newMasterFilesStore(t, b)

	require.True(t, store.Replace(context.Background(), 12, ReplaceRequest{ComputeID: "lf6f", Filenames: []string{"0003.tif"}}))
	env.tick(t)
	waitFor(t, func() bool { return env.system.Error() != "" })

	assert.Equal(t, "replace failed: 0003.tif has no match", env.system.Error())
	assert.False(t, store.UpdateInProgress())
	assert.Zero(t, b.fileFetch.Load())
}

func TestMasterFilesStore_JobsServiceError(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "jobs service down", http.StatusInternalServerError)
	})
	env := newStoreEnv(t, h)
	store := NewMasterFilesStore(MasterFilesStoreOptions{
		Deps:      env.deps,
		Poll:      env.poll(),
		Units:     NewUnitsStore(UnitsStoreOptions{Deps: env.deps}),
		Extractor: env.extractor(t),
	})

	require.True(t, store.Clone(context.Background(), 12, CloneRequest{}))
	waitFor(t, func() bool { return env.system.Error() != "" })
	assert.Contains(t, env.system.Error(), "jobs service down")
}

func TestMasterFilesStore_GetDetails(t *testing.T) {
	b := &jobsBackend{jobID: "1"}
	store, _, env := newMasterFilesStore(t, b)

	d, err := store.GetDetails(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "tsm:5", d.MasterFile.PID)
	assert.Equal(t, int64(44), d.OrderID)
	assert.Equal(t, d, store.Details())

	_, err = store.GetDetails(context.Background(), 6)
	require.Error(t, err)
	assert.Equal(t, NotFoundPath, env.nav.Last())
	assert.Empty(t, env.system.Error())
}
