package httpx

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/uvalib/tracksys2/internal/errors"
	"github.com/uvalib/tracksys2/internal/guard"
	"github.com/uvalib/tracksys2/internal/service"
	"github.com/uvalib/tracksys2/internal/workspace"
)

// UIHandlers serves the admin pages. Every page answers JSON to fetch callers
// and HTML to browsers.
type UIHandlers struct {
	T            *TemplateRenderer
	JWTCookie    string
	CookieDomain string
	CookieSecure bool
	Logger       *slog.Logger
}

func (h *UIHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *UIHandlers) jwtCookie() string {
	if h.JWTCookie != "" {
		return h.JWTCookie
	}
	return defaultJWTCookie
}

// pageView is one rendered page.
type pageView struct {
	Meta    PageMeta
	Status  int
	Payload any // JSON body, and .Data in templates
	// Configure adds page specific template fields.
	Configure func(*TemplateDataBuilder)
}

func (h *UIHandlers) render(w http.ResponseWriter, r *http.Request, v pageView) {
	if v.Status == 0 {
		v.Status = http.StatusOK
	}
	if !IsBrowserRequest(r) || h.T == nil {
		WriteJSON(w, v.Status, v.Payload)
		return
	}
	b := NewTemplateData(r, v.Meta).With("Data", v.Payload)
	if v.Configure != nil {
		v.Configure(b)
	}
	if err := h.T.RenderFull(w, v.Status, b.Build()); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// renderStatus shows msg on the home layout, or as a JSON error.
func (h *UIHandlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if !IsBrowserRequest(r) || h.T == nil {
		WriteJSON(w, status, map[string]string{"error": http.StatusText(status), "message": msg})
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Error", CurrentPage: PageHome}).WithError(msg).Build()
	if err := h.T.RenderFull(w, status, data); err != nil {
		http.Error(w, msg, status)
	}
}

// failed answers a store error: a pending navigation wins, otherwise the page
// renders empty under the error banner the store already raised.
func (h *UIHandlers) failed(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, meta PageMeta, err error) {
	if followNavigation(w, r, ws) {
		return
	}
	h.logger().DebugContext(r.Context(), "page load failed",
		slog.String("page", meta.CurrentPage),
		slog.Any("error", err),
	)
	if !IsBrowserRequest(r) {
		WriteAppError(w, err)
		return
	}
	h.render(w, r, pageView{Meta: meta, Status: apperrors.HTTPStatus(err)})
}

// pathID reads the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationField("id", "id must be a positive integer")
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// withWorkspace fetches the request's workspace and loads the backend
// configuration once the session is established.
func (h *UIHandlers) withWorkspace(next func(http.ResponseWriter, *http.Request, *workspace.Workspace)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := WorkspaceFromContext(r.Context())
		if !ok {
			http.Error(w, "no workspace", http.StatusInternalServerError)
			return
		}
		if ws.Session.SignedIn() {
			ws.LoadConfig(r.Context())
		}
		next(w, r, ws)
	}
}

// Home renders the landing page.
func (h *UIHandlers) Home(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	h.render(w, r, pageView{
		Meta:    PageMeta{Title: "TrackSys", CurrentPage: PageHome},
		Payload: map[string]any{"user": ws.Session.User(), "config": ws.System.Config()},
	})
}

// Orders lists orders.
// GET /orders?start=&limit=&filter=&sort=&order=&q=.
func (h *UIHandlers) Orders(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	meta := PageMeta{Title: "Orders", CurrentPage: PageOrders}
	q := r.URL.Query()
	page, err := ws.Orders.List(r.Context(), service.OrderSearch{
		Start:     queryInt(r, "start", 0),
		Limit:     queryInt(r, "limit", 0),
		Filter:    q.Get("filter"),
		SortField: q.Get("sort"),
		SortOrder: q.Get("order"),
		Query:     strings.TrimSpace(q.Get("q")),
	})
	if err != nil {
		h.failed(w, r, ws, meta, err)
		return
	}
	h.render(w, r, pageView{
		Meta:    meta,
		Payload: page,
		Configure: func(b *TemplateDataBuilder) {
			b.With("Search", page.Search).WithPagination(PaginationData{
				Start:    page.Search.Start,
				Limit:    page.Search.Limit,
				Total:    page.Total,
				BasePath: "/orders",
			})
		},
	})
}

// Order renders one order with its units.
func (h *UIHandlers) Order(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	meta := PageMeta{Title: "Order", CurrentPage: PageOrder}
	id, err := pathID(r)
	if err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, err.Error())
		return
	}
	details, err := ws.Orders.GetDetails(r.Context(), id)
	if err != nil {
		h.failed(w, r, ws, meta, err)
		return
	}
	meta.Title = "Order " + strconv.FormatInt(id, 10)
	h.render(w, r, pageView{
		Meta:    meta,
		Payload: details,
		Configure: func(b *TemplateDataBuilder) {
			b.With("CheckInProgress", ws.Orders.CheckInProgress())
		},
	})
}

// unitPage is the unit page payload.
type unitPage struct {
	Unit             service.Unit         `json:"unit"`
	MasterFiles      []service.MasterFile `json:"masterFiles"`
	PDF              service.PDFProgress  `json:"pdf"`
	UpdateInProgress bool                 `json:"updateInProgress"`
}

// Unit renders a unit and its master files, fetched concurrently.
func (h *UIHandlers) Unit(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	meta := PageMeta{Title: "Unit", CurrentPage: PageUnit}
	id, err := pathID(r)
	if err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var page unitPage
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		u, gerr := ws.Units.GetDetails(ctx, id)
		page.Unit = u
		return gerr
	})
	g.Go(func() error {
		files, gerr := ws.Units.GetMasterFiles(ctx, id)
		page.MasterFiles = files
		return gerr
	})
	if err := g.Wait(); err != nil {
		h.failed(w, r, ws, meta, err)
		return
	}
	page.PDF = browserProgress(ws.PDF.Progress())
	page.UpdateInProgress = ws.MasterFiles.UpdateInProgress()

	meta.Title = "Unit " + strconv.FormatInt(id, 10)
	h.render(w, r, pageView{Meta: meta, Payload: page})
}

// MasterFile renders one master file.
func (h *UIHandlers) MasterFile(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	meta := PageMeta{Title: "Master File", CurrentPage: PageMasterFile}
	id, err := pathID(r)
	if err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, err.Error())
		return
	}
	details, err := ws.MasterFiles.GetDetails(r.Context(), id)
	if err != nil {
		h.failed(w, r, ws, meta, err)
		return
	}
	h.render(w, r, pageView{Meta: meta, Payload: details})
}

// Metadata renders one metadata record.
func (h *UIHandlers) Metadata(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	meta := PageMeta{Title: "Metadata", CurrentPage: PageMetadata}
	id, err := pathID(r)
	if err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, err.Error())
		return
	}
	md, err := ws.Metadata.GetDetails(r.Context(), id)
	if err != nil {
		h.failed(w, r, ws, meta, err)
		return
	}
	h.render(w, r, pageView{Meta: meta, Payload: md})
}

// Jobs lists job statuses.
// GET /jobs?start=&limit=&q=.
func (h *UIHandlers) Jobs(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	meta := PageMeta{Title: "Job Statuses", CurrentPage: PageJobs}
	search := service.JobSearch{
		Start: queryInt(r, "start", 0),
		Limit: queryInt(r, "limit", 30),
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	}
	page, err := ws.Jobs.List(r.Context(), search)
	if err != nil {
		h.failed(w, r, ws, meta, err)
		return
	}
	h.render(w, r, pageView{
		Meta:    meta,
		Payload: page,
		Configure: func(b *TemplateDataBuilder) {
			b.With("Query", search.Query).WithPagination(PaginationData{
				Start:    search.Start,
				Limit:    search.Limit,
				Total:    page.Total,
				BasePath: "/jobs",
			})
		},
	})
}

// Job renders one job and its event log.
func (h *UIHandlers) Job(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	meta := PageMeta{Title: "Job", CurrentPage: PageJob}
	id, err := pathID(r)
	if err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, err.Error())
		return
	}
	details, err := ws.Jobs.GetDetails(r.Context(), id)
	if err != nil {
		h.failed(w, r, ws, meta, err)
		return
	}
	h.render(w, r, pageView{Meta: meta, Payload: details})
}

// Granted is only reached when the guard lets the callback through without
// a redirect, which it never does for a valid token.
func (h *UIHandlers) Granted(w http.ResponseWriter, r *http.Request, _ *workspace.Workspace) {
	respondNavigation(w, r, guard.HomePath, http.StatusOK)
}

// SignedOut renders the signed-out page; ?expired=1 marks a lapsed session.
func (h *UIHandlers) SignedOut(w http.ResponseWriter, r *http.Request, _ *workspace.Workspace) {
	expired := r.URL.Query().Get("expired") == "1"
	h.render(w, r, pageView{
		Meta:    PageMeta{Title: "Signed Out", CurrentPage: PageSignedOut},
		Payload: map[string]bool{"expired": expired},
	})
}

// Forbidden renders the access denied page.
func (h *UIHandlers) Forbidden(w http.ResponseWriter, r *http.Request, _ *workspace.Workspace) {
	h.render(w, r, pageView{
		Meta:    PageMeta{Title: "Forbidden", CurrentPage: PageForbidden},
		Status:  http.StatusForbidden,
		Payload: map[string]string{"error": "forbidden"},
	})
}

// NotFound renders the not found page for /not_found and unknown paths.
func (h *UIHandlers) NotFound(w http.ResponseWriter, r *http.Request, _ *workspace.Workspace) {
	h.render(w, r, pageView{
		Meta:    PageMeta{Title: "Not Found", CurrentPage: PageNotFound},
		Status:  http.StatusNotFound,
		Payload: map[string]string{"error": "not_found", "path": r.URL.Path},
	})
}
