package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// IntendedUse is a unit's declared use.
type IntendedUse struct {
	ID                    int64  `json:"id"`
	Description           string `json:"description"`
	DeliverableFormat     string `json:"deliverableFormat"`
	DeliverableResolution string `json:"deliverableResolution"`
}

// Attachment is a file attached to a unit.
type Attachment struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

// Unit is the backend's unit detail record.
type Unit struct {
	ID                          int64        `json:"id"`
	OrderID                     int64        `json:"orderID"`
	MetadataID                  int64        `json:"metadataID"`
	ProjectID                   int64        `json:"projectID"`
	Status                      string       `json:"status"`
	IntendedUse                 *IntendedUse `json:"intendedUse"`
	IncludeInDL                 bool         `json:"includeInDL"`
	RemoveWaterMark             bool         `json:"removeWaterMark"`
	Reorder                     bool         `json:"reorder"`
	CompleteScan                bool         `json:"completeScan"`
	ThrowAway                   bool         `json:"throwAway"`
	OCRMasterFiles              bool         `json:"ocrMasterFiles"`
	Attachments                 []Attachment `json:"attachments"`
	StaffNotes                  string       `json:"staffNotes"`
	DateArchived                string       `json:"dateArchived"`
	DatePatronDeliverablesReady string       `json:"datePatronDeliverablesReady"`
	DateDLDeliverablesReady     string       `json:"dateDLDeliverablesReady"`
	MasterFilesCount            int64        `json:"masterFilesCount"`
}

// MasterFile is one image in a unit.
type MasterFile struct {
	ID           int64  `json:"id"`
	PID          string `json:"pid"`
	UnitID       int64  `json:"unitID"`
	Filename     string `json:"filename"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailURL"`
	ViewerURL    string `json:"viewerURL"`
}

// UnitsStoreOptions groups dependencies for UnitsStore.
type UnitsStoreOptions struct {
	Deps StoreDeps
}

// UnitsStore holds the unit being viewed and its master files.
type UnitsStore struct {
	deps   StoreDeps
	logger *slog.Logger

	mu          sync.Mutex
	detail      Unit
	masterFiles []MasterFile
	filesUnitID int64
}

// NewUnitsStore constructs a UnitsStore.
func NewUnitsStore(opts UnitsStoreOptions) *UnitsStore {
	opts.Deps.validate("UnitsStore")
	return &UnitsStore{
		deps:   opts.Deps,
		logger: resolveLogger(opts.Deps.Logger).With("store", "units"),
	}
}

// GetDetails loads a unit from the backend. Every page view refetches, the
// cached copy only serves Details.
func (s *UnitsStore) GetDetails(ctx context.Context, unitID int64) (Unit, error) {
	s.deps.System.SetWorking(true)
	var u Unit
	if err := s.deps.Backend.GetJSON(ctx, fmt.Sprintf("/api/units/%d", unitID), &u); err != nil {
		return Unit{}, detailFailed(s.deps, err)
	}
	s.deps.System.SetWorking(false)

	s.mu.Lock()
	s.detail = u
	s.mu.Unlock()
	return u, nil
}

// Details returns the unit GetDetails last loaded.
func (s *UnitsStore) Details() Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail
}

// Invalidate forgets the last loaded unit, whose counts are stale once its
// master files change.
func (s *UnitsStore) Invalidate() {
	s.mu.Lock()
	s.detail = Unit{}
	s.mu.Unlock()
}

// GetMasterFiles loads a unit's master files and caches them.
func (s *UnitsStore) GetMasterFiles(ctx context.Context, unitID int64) ([]MasterFile, error) {
	var files []MasterFile
	if err := s.deps.Backend.GetJSON(ctx, fmt.Sprintf("/api/units/%d/masterfiles", unitID), &files); err != nil {
		s.deps.System.SetError(err)
		return nil, err
	}
	s.mu.Lock()
	s.masterFiles = files
	s.filesUnitID = unitID
	s.mu.Unlock()
	return files, nil
}

// MasterFiles returns the cached master files and the unit they belong to.
func (s *UnitsStore) MasterFiles() (int64, []MasterFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MasterFile, len(s.masterFiles))
	copy(out, s.masterFiles)
	return s.filesUnitID, out
}

// CloneSources lists units whose master files may be cloned into unitID.
func (s *UnitsStore) CloneSources(ctx context.Context, unitID int64) ([]Unit, error) {
	var units []Unit
	if err := s.deps.Backend.GetJSON(ctx, fmt.Sprintf("/api/units/%d/clone-sources", unitID), &units); err != nil {
		s.deps.System.SetError(err)
		return nil, err
	}
	return units, nil
}
