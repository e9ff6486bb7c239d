package httpx

import (
	"net/http"
	"net/url"
	"strconv"
)

// PageMeta names the page being rendered.
type PageMeta struct {
	Title       string
	CurrentPage string
}

// PaginationData contains pagination information for offset-based list views.
type PaginationData struct {
	Start    int
	Limit    int
	Total    int64
	BasePath string
}

// TemplateDataBuilder provides a fluent API for building template data maps.
type TemplateDataBuilder struct {
	data map[string]any
	r    *http.Request
}

// NewTemplateData creates a new TemplateDataBuilder initialized with basePageData.
func NewTemplateData(r *http.Request, meta PageMeta) *TemplateDataBuilder {
	return &TemplateDataBuilder{
		data: basePageData(r, meta),
		r:    r,
	}
}

// basePageData carries what the layout needs on every page: the signed-in
// user, the backend's version and links, plus the error banner and toasts,
// which are drained here so they show once.
func basePageData(r *http.Request, meta PageMeta) map[string]any {
	data := map[string]any{
		"Title":       meta.Title,
		"CurrentPage": meta.CurrentPage,
		"Path":        r.URL.Path,
	}
	ws, ok := WorkspaceFromContext(r.Context())
	if !ok {
		return data
	}
	if ws.Session.SignedIn() {
		data["User"] = ws.Session.User()
	}
	cfg := ws.System.Config()
	data["Version"] = cfg.Version
	data["ReportsURL"] = cfg.ReportsURL
	data["ProjectsURL"] = cfg.ProjectsURL
	n := ws.System.Notices()
	if n.Error != "" {
		data["Error"] = true
		data["ErrorMessage"] = n.Error
	}
	data["Toasts"] = n.Toasts
	return data
}

// WithPagination adds pagination data and builds PrevURL/NextURL.
func (b *TemplateDataBuilder) WithPagination(p PaginationData) *TemplateDataBuilder {
	if p.Limit <= 0 {
		p.Limit = 30
	}
	end := int64(p.Start + p.Limit)
	if end > p.Total {
		end = p.Total
	}
	b.data["Start"] = p.Start
	b.data["Limit"] = p.Limit
	b.data["TotalCount"] = p.Total
	b.data["StartIndex"] = min(int64(p.Start+1), p.Total)
	b.data["EndIndex"] = end

	if p.Start > 0 {
		b.data["PrevURL"] = buildPageURL(p.BasePath, b.r.URL.Query(), max(p.Start-p.Limit, 0), p.Limit)
	}
	if end < p.Total {
		b.data["NextURL"] = buildPageURL(p.BasePath, b.r.URL.Query(), p.Start+p.Limit, p.Limit)
	}
	return b
}

func buildPageURL(base string, q url.Values, start, limit int) string {
	next := url.Values{}
	for k, vs := range q {
		next[k] = append([]string(nil), vs...)
	}
	next.Set("start", strconv.Itoa(start))
	next.Set("limit", strconv.Itoa(limit))
	return base + "?" + next.Encode()
}

// WithError sets a general error message.
func (b *TemplateDataBuilder) WithError(msg string) *TemplateDataBuilder {
	b.data["Error"] = true
	b.data["ErrorMessage"] = msg
	return b
}

// With adds a custom field to the template data.
func (b *TemplateDataBuilder) With(key string, value any) *TemplateDataBuilder {
	b.data[key] = value
	return b
}

// Build returns the final template data map.
func (b *TemplateDataBuilder) Build() map[string]any {
	return b.data
}
