package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/uvalib/tracksys2/internal/poller"
)

// PDFRequest asks for a unit PDF, optionally limited to some master files.
type PDFRequest struct {
	UnitID        int64
	MasterFileIDs []int64
	IncludeText   bool
}

// PDFProgress is the state of the unit PDF slot.
type PDFProgress struct {
	UnitID      int64  `json:"unitID"`
	Percent     int    `json:"percent"`
	Downloading bool   `json:"downloading"`
	Ready       bool   `json:"ready"`
	IncludeText bool   `json:"includeText"`
	DownloadURL string `json:"downloadURL,omitempty"`
}

// PDFDownload is an open PDF response. The caller must close Body.
type PDFDownload struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Length      int64
}

// ErrPDFNotReady is returned by Open when no finished PDF is waiting.
var ErrPDFNotReady = errors.New("pdf is not ready")

// PDFStoreOptions groups dependencies for PDFStore.
type PDFStoreOptions struct {
	Deps StoreDeps
	Poll PollOptions
}

// PDFStore builds unit PDFs on the backend and tracks generation progress.
// One generation runs at a time; requests while one is running are ignored.
type PDFStore struct {
	deps   StoreDeps
	poll   PollOptions
	logger *slog.Logger
	slot   poller.Slot

	mu          sync.Mutex
	unitID      int64
	includeText bool
	percent     int
	downloading bool
	ready       bool
	token       string
}

// NewPDFStore constructs a PDFStore.
func NewPDFStore(opts PDFStoreOptions) *PDFStore {
	opts.Deps.validate("PDFStore")
	return &PDFStore{
		deps:   opts.Deps,
		poll:   opts.Poll,
		logger: resolveLogger(opts.Deps.Logger).With("store", "pdf"),
	}
}

type pdfTicket struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

// Request starts PDF generation. It reports false, without contacting the
// backend, while a previous request is still generating.
func (s *PDFStore) Request(ctx context.Context, req PDFRequest) bool {
	s.mu.Lock()
	if (s.downloading && !s.ready) || s.slot.Busy() {
		s.mu.Unlock()
		return false
	}
	s.downloading = true
	s.ready = false
	s.percent = 0
	s.token = ""
	s.unitID = req.UnitID
	s.includeText = req.IncludeText
	s.mu.Unlock()

	path := fmt.Sprintf("/api/units/%d/pdf", req.UnitID)
	if len(req.MasterFileIDs) > 0 {
		path += "?pages=" + joinIDs(req.MasterFileIDs)
	}

	trigger := func(ctx context.Context) (poller.Ticket, error) {
		var resp pdfTicket
		if err := s.deps.Backend.GetJSON(ctx, path, &resp); err != nil {
			return poller.Ticket{}, err
		}
		s.mu.Lock()
		s.token = resp.Token
		s.mu.Unlock()
		return poller.Ticket{Token: resp.Token, Status: resp.Status, Message: "Unable to generate PDF"}, nil
	}
	check := func(ctx context.Context, t poller.Ticket) (poller.Status, error) {
		statusPath := fmt.Sprintf("/api/units/%d/pdf/status?token=%s", req.UnitID, url.QueryEscape(t.Token))
		raw, err := s.deps.Backend.GetText(ctx, statusPath)
		if err != nil {
			return poller.Status{}, err
		}
		st := poller.ParseStatus(raw)
		if st.Phase == poller.Failed {
			st.Message = "PDF generation failed"
		}
		return st, nil
	}

	opts := s.poll.options("pdf", s.logger)
	opts.OnProgress = func(st poller.Status) {
		if !st.HasPercent {
			return
		}
		s.mu.Lock()
		s.percent = st.Percent
		s.mu.Unlock()
	}
	opts.OnSuccess = func(poller.Ticket, poller.Status) {
		s.mu.Lock()
		s.percent = 100
		s.ready = true
		s.mu.Unlock()
	}
	opts.OnFailure = func(_ poller.Ticket, err error) {
		s.reset()
		var failed *poller.FailedError
		if errors.As(err, &failed) {
			s.deps.System.SetErrorMessage(failed.Message)
			return
		}
		s.deps.System.SetError(err)
	}

	_, started := s.slot.TryStart(background(ctx), trigger, check, opts)
	if !started {
		s.reset()
	}
	return started
}

func (s *PDFStore) reset() {
	s.mu.Lock()
	s.downloading = false
	s.ready = false
	s.percent = 0
	s.mu.Unlock()
}

// Progress reports the current generation state.
func (s *PDFStore) Progress() PDFProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := PDFProgress{
		UnitID:      s.unitID,
		Percent:     s.percent,
		Downloading: s.downloading,
		Ready:       s.ready,
		IncludeText: s.includeText,
	}
	if s.ready {
		p.DownloadURL = s.downloadPathLocked()
	}
	return p
}

// DownloadPath is the backend path of the finished file, or "" when none is ready.
func (s *PDFStore) DownloadPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ""
	}
	return s.downloadPathLocked()
}

func (s *PDFStore) downloadPathLocked() string {
	p := fmt.Sprintf("/api/units/%d/pdf/download?token=%s", s.unitID, url.QueryEscape(s.token))
	if s.includeText {
		p += "&text=1"
	}
	return p
}

// Open streams the finished file from the backend and ends the download.
func (s *PDFStore) Open(ctx context.Context) (*PDFDownload, error) {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return nil, ErrPDFNotReady
	}
	path := s.downloadPathLocked()
	unitID, includeText := s.unitID, s.includeText
	s.mu.Unlock()

	resp, err := s.deps.Backend.Stream(ctx, path)
	if err != nil {
		s.reset()
		s.deps.System.SetError(err)
		return nil, err
	}

	name := fmt.Sprintf("unit-%d.pdf", unitID)
	ctype := resp.Header.Get("Content-Type")
	if includeText && strings.HasPrefix(ctype, "text/") {
		name = fmt.Sprintf("unit-%d.txt", unitID)
	}
	if ctype == "" {
		ctype = "application/pdf"
	}

	s.mu.Lock()
	s.downloading = false
	s.mu.Unlock()

	return &PDFDownload{Body: resp.Body, Filename: name, ContentType: ctype, Length: resp.ContentLength}, nil
}

// Cancel stops an in-flight generation poll.
func (s *PDFStore) Cancel() {
	s.slot.Cancel()
	s.reset()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
