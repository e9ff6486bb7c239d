package httpx

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/uvalib/tracksys2/internal/errors"
	"github.com/uvalib/tracksys2/internal/guard"
	"github.com/uvalib/tracksys2/internal/service"
	"github.com/uvalib/tracksys2/internal/workspace"
)

// maxActionBody caps JSON action bodies.
const maxActionBody = 1 << 20

// requireSession restores the session for an action. Actions never remember
// a navigation intent: a missing session ends on the signed-out page.
func (h *UIHandlers) requireSession(next func(http.ResponseWriter, *http.Request, *workspace.Workspace)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := WorkspaceFromContext(r.Context())
		if !ok {
			http.Error(w, "no workspace", http.StatusInternalServerError)
			return
		}
		signedIn, err := ws.Resume(r.Context())
		if err != nil {
			h.logger().ErrorContext(r.Context(), "resume session failed", slog.Any("error", err))
			WriteAppError(w, apperrors.Wrap(err, apperrors.ErrCodeInternal, "unable to read your session"))
			return
		}
		if !signedIn {
			respondNavigation(w, r, guard.SignedOutPath+"?expired=1", http.StatusUnauthorized)
			return
		}
		next(w, r, ws)
	}
}

// finishAction answers an action. A navigation raised by the action wins;
// browsers posting forms go back to returnTo; fetch callers get payload.
func finishAction(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, returnTo string, payload any) {
	if followNavigation(w, r, ws) {
		return
	}
	if IsBrowserRequest(r) {
		http.Redirect(w, r, safeRedirectPath(r.FormValue("return_to"), returnTo), http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}

func isJSONBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// decodeAction reads a JSON action body into dst. Form posts leave dst as is.
func decodeAction(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !isJSONBody(r) {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxActionBody)
	return DecodeJSON(w, r, dst)
}

// parseIDList reads ids from repeated or comma separated form values.
func parseIDList(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, apperrors.Validationf("invalid id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func formValues(r *http.Request, key string) []string {
	if err := r.ParseForm(); err != nil {
		return nil
	}
	return r.Form[key]
}

func unitPath(id int64) string { return "/units/" + strconv.FormatInt(id, 10) }

// browserProgress points the download link at the streaming route here
// rather than the backend.
func browserProgress(p service.PDFProgress) service.PDFProgress {
	if p.Ready {
		p.DownloadURL = unitPath(p.UnitID) + "/pdf/download"
	}
	return p
}

type pdfBody struct {
	MasterFiles []int64 `json:"masterFiles"`
	IncludeText bool    `json:"includeText"`
}

// RequestPDF starts a unit PDF.
// POST /units/{id}/pdf with {"masterFiles":[...],"includeText":bool} or pages=&text=.
func (h *UIHandlers) RequestPDF(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	id, err := pathID(r)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	var body pdfBody
	if !decodeAction(w, r, &body) {
		return
	}
	if !isJSONBody(r) {
		ids, perr := parseIDList(formValues(r, "pages"))
		if perr != nil {
			WriteAppError(w, perr)
			return
		}
		body.MasterFiles = ids
		body.IncludeText, _ = strconv.ParseBool(r.FormValue("text"))
	}

	started := ws.PDF.Request(r.Context(), service.PDFRequest{
		UnitID:        id,
		MasterFileIDs: body.MasterFiles,
		IncludeText:   body.IncludeText,
	})
	finishAction(w, r, ws, unitPath(id), map[string]any{
		"started":  started,
		"progress": browserProgress(ws.PDF.Progress()),
	})
}

// PDFProgress reports the PDF generation state.
// GET /units/{id}/pdf/progress.
func (h *UIHandlers) PDFProgress(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	if followNavigation(w, r, ws) {
		return
	}
	WriteJSON(w, http.StatusOK, browserProgress(ws.PDF.Progress()))
}

// DownloadPDF streams the finished PDF.
// GET /units/{id}/pdf/download.
func (h *UIHandlers) DownloadPDF(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	dl, err := ws.PDF.Open(r.Context())
	if errors.Is(err, service.ErrPDFNotReady) {
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "pdf_not_ready", Err: err})
		return
	}
	if err != nil {
		if followNavigation(w, r, ws) {
			return
		}
		WriteAppError(w, err)
		return
	}
	defer dl.Body.Close()

	ct := dl.ContentType
	if ct == "" {
		ct = "application/pdf"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
	if dl.Length > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Length, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger().WarnContext(r.Context(), "pdf download interrupted", slog.Any("error", err))
	}
}

// CloneMasterFiles starts a clone job into the unit.
// POST /units/{id}/clone with {"list":[{"unitID":..,"masterFiles":[..],"all":bool}]}.
func (h *UIHandlers) CloneMasterFiles(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	id, err := pathID(r)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if !isJSONBody(r) {
		WriteAppError(w, apperrors.Validation("clone expects a JSON body"))
		return
	}
	var req service.CloneRequest
	if !decodeAction(w, r, &req) {
		return
	}
	if len(req.Sources) == 0 {
		WriteAppError(w, apperrors.ValidationField("list", "at least one source unit is required"))
		return
	}
	started := ws.MasterFiles.Clone(r.Context(), id, req)
	finishAction(w, r, ws, unitPath(id), map[string]bool{"started": started})
}

// ReplaceMasterFiles starts a replace job for the unit as the signed-in user.
// POST /units/{id}/replace with {"filenames":[..]} or filenames=.
func (h *UIHandlers) ReplaceMasterFiles(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	id, err := pathID(r)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	var req service.ReplaceRequest
	if !decodeAction(w, r, &req) {
		return
	}
	if !isJSONBody(r) {
		for _, v := range formValues(r, "filenames") {
			for _, f := range strings.Split(v, ",") {
				if f = strings.TrimSpace(f); f != "" {
					req.Filenames = append(req.Filenames, f)
				}
			}
		}
	}
	if req.ComputeID == "" {
		req.ComputeID = ws.Session.User().ComputeID
	}
	started := ws.MasterFiles.Replace(r.Context(), id, req)
	finishAction(w, r, ws, unitPath(id), map[string]bool{"started": started})
}

// CheckOrder starts an order check job.
// POST /orders/{id}/check.
func (h *UIHandlers) CheckOrder(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	id, err := pathID(r)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	started := ws.Orders.Check(r.Context(), id)
	finishAction(w, r, ws, "/orders/"+strconv.FormatInt(id, 10), map[string]bool{"started": started})
}

type deleteJobsBody struct {
	Jobs []int64 `json:"jobs"`
}

// DeleteJobs removes job status records.
// POST /jobs/delete with {"jobs":[..]} or jobs=.
func (h *UIHandlers) DeleteJobs(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	var body deleteJobsBody
	if !decodeAction(w, r, &body) {
		return
	}
	if !isJSONBody(r) {
		ids, err := parseIDList(formValues(r, "jobs"))
		if err != nil {
			WriteAppError(w, err)
			return
		}
		body.Jobs = ids
	}
	if len(body.Jobs) == 0 {
		WriteAppError(w, apperrors.ValidationField("jobs", "no jobs selected"))
		return
	}
	if err := ws.Jobs.Delete(r.Context(), body.Jobs); err != nil {
		if followNavigation(w, r, ws) {
			return
		}
		if !IsBrowserRequest(r) {
			WriteAppError(w, err)
			return
		}
	}
	finishAction(w, r, ws, "/jobs", map[string]int{"deleted": len(body.Jobs)})
}

// Notices drains toasts and the error banner for the browser's poller.
// GET /notices.
func (h *UIHandlers) Notices(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	resp := struct {
		service.Notices
		Redirect string `json:"redirect,omitempty"`
	}{
		Notices:  ws.System.Notices(),
		Redirect: ws.TakeNavigation(),
	}
	WriteJSON(w, http.StatusOK, resp)
}

// SignOut ends the session and forgets the handed over token.
// POST /signout.
func (h *UIHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	ws, ok := WorkspaceFromContext(r.Context())
	if !ok {
		http.Error(w, "no workspace", http.StatusInternalServerError)
		return
	}
	if err := ws.SignOut(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "sign out failed", slog.Any("error", err))
	}
	clearCookie(w, r, cookieParams{Name: h.jwtCookie(), Domain: h.CookieDomain, Secure: h.CookieSecure})
	respondNavigation(w, r, guard.SignedOutPath, http.StatusOK)
}
