package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/uvalib/tracksys2/internal/poller"
)

// MasterFileDetails is the backend's master file detail answer.
type MasterFileDetails struct {
	MasterFile MasterFileRecord `json:"masterFile"`
	ThumbURL   string           `json:"thumbURL"`
	ViewerURL  string           `json:"viewerURL"`
	OrderID    int64            `json:"orderID"`
}

// MasterFileRecord is the full master file record.
type MasterFileRecord struct {
	ID             int64  `json:"id"`
	PID            string `json:"pid"`
	UnitID         int64  `json:"unitID"`
	MetadataID     int64  `json:"metadataID"`
	Filename       string `json:"filename"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Filesize       int64  `json:"filesize"`
	MD5            string `json:"md5"`
	DateArchived   string `json:"dateArchived"`
	DateDLIngest   string `json:"dateDLIngest"`
	TranscriptText string `json:"transcriptionText"`
}

// CloneSource selects master files of another unit to clone.
type CloneSource struct {
	UnitID        int64   `json:"unitID"`
	MasterFileIDs []int64 `json:"masterFiles,omitempty"`
	All           bool    `json:"all"`
}

// CloneRequest is the body of a clone job.
type CloneRequest struct {
	Sources []CloneSource `json:"list"`
}

// ReplaceRequest is the body of a replace job: files waiting in the unit's
// upload directory replace the master files of the same name.
type ReplaceRequest struct {
	ComputeID string   `json:"computeID"`
	Filenames []string `json:"filenames,omitempty"`
}

// MasterFilesStoreOptions groups dependencies for MasterFilesStore.
type MasterFilesStoreOptions struct {
	Deps      StoreDeps
	Poll      PollOptions
	Units     *UnitsStore             // Required: refreshed after clone and replace
	Extractor *poller.StatusExtractor // Required: reads /api/jobs/:id
}

// MasterFilesStore shows master file details and runs clone and replace jobs.
// Clone and replace share one slot, so only one update runs at a time.
type MasterFilesStore struct {
	deps   StoreDeps
	units  *UnitsStore
	jobs   jobWatch
	logger *slog.Logger
	update poller.Slot

	mu      sync.Mutex
	details MasterFileDetails
}

// NewMasterFilesStore constructs a MasterFilesStore.
func NewMasterFilesStore(opts MasterFilesStoreOptions) *MasterFilesStore {
	opts.Deps.validate("MasterFilesStore")
	if opts.Units == nil || opts.Extractor == nil {
		//nolint:forbidigo // Store construction must fail fast during wiring when dependencies are missing
		panic("MasterFilesStore: Units and Extractor are required")
	}
	logger := resolveLogger(opts.Deps.Logger).With("store", "masterfiles")
	return &MasterFilesStore{
		deps:   opts.Deps,
		units:  opts.Units,
		logger: logger,
		jobs: jobWatch{
			deps:      opts.Deps,
			poll:      opts.Poll,
			extractor: opts.Extractor,
			logger:    logger,
		},
	}
}

// GetDetails loads a master file.
func (s *MasterFilesStore) GetDetails(ctx context.Context, id int64) (MasterFileDetails, error) {
	s.deps.System.SetWorking(true)
	var d MasterFileDetails
	if err := s.deps.Backend.GetJSON(ctx, fmt.Sprintf("/api/masterfiles/%d", id), &d); err != nil {
		return MasterFileDetails{}, detailFailed(s.deps, err)
	}
	s.deps.System.SetWorking(false)

	s.mu.Lock()
	s.details = d
	s.mu.Unlock()
	return d, nil
}

// Details returns the last loaded master file.
func (s *MasterFilesStore) Details() MasterFileDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details
}

// Clone copies master files from other units into unitID. It reports false
// while another update is in progress.
func (s *MasterFilesStore) Clone(ctx context.Context, unitID int64, req CloneRequest) bool {
	return s.jobs.start(ctx, &s.update, jobOperation{
		name: "clone",
		path: fmt.Sprintf("/units/%d/clone", unitID),
		body: req,
		onSuccess: func(ctx context.Context) {
			s.refresh(ctx, unitID, "Master files cloned")
		},
	})
}

// Replace swaps unitID's master files for uploaded replacements. It reports
// false while another update is in progress.
func (s *MasterFilesStore) Replace(ctx context.Context, unitID int64, req ReplaceRequest) bool {
	return s.jobs.start(ctx, &s.update, jobOperation{
		name: "replace",
		path: fmt.Sprintf("/units/%d/replace", unitID),
		body: req,
		onSuccess: func(ctx context.Context) {
			s.refresh(ctx, unitID, "Master files replaced")
		},
	})
}

func (s *MasterFilesStore) refresh(ctx context.Context, unitID int64, msg string) {
	s.units.Invalidate()
	if _, err := s.units.GetMasterFiles(ctx, unitID); err != nil {
		return
	}
	s.deps.System.Toast(ToastSuccess, msg)
}

// UpdateInProgress reports whether a clone or replace is running.
func (s *MasterFilesStore) UpdateInProgress() bool {
	return s.update.Busy()
}

// Cancel stops an in-flight update poll.
func (s *MasterFilesStore) Cancel() {
	s.update.Cancel()
}
