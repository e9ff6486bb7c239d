package httpx

// CurrentPage constants define the page identifiers used in templates and navigation.
const (
	PageHome       = "home"
	PageOrders     = "orders"
	PageOrder      = "order"
	PageUnit       = "unit"
	PageMasterFile = "masterfile"
	PageMetadata   = "metadata"
	PageJobs       = "jobs"
	PageJob        = "job"

	// Terminal views; rendered without a session.
	PageSignedOut = "signedout"
	PageForbidden = "forbidden"
	PageNotFound  = "not_found"
)

// Route names the guard sees. The no-auth ones match guard.Route*.
const (
	RouteHome       = "home"
	RouteOrders     = "orders"
	RouteOrder      = "order"
	RouteUnit       = "unit"
	RouteMasterFile = "masterfile"
	RouteMetadata   = "metadata"
	RouteJobs       = "jobs"
	RouteJob        = "job"
	RouteGranted    = "granted"
)

// Template paths used for loading templates from disk in dev mode and tests.
const (
	TemplatePathFromRoot = "web/templates"
	TemplatePathFromTest = "../../web/templates"
	StaticPathFromRoot   = "web/static"
)

// Cookie names owned by the HTTP layer.
const (
	oauthStateCookie  = "oauth_state"
	oauthNonceCookie  = "oauth_nonce"
	defaultJWTCookie  = "ts2_jwt"
	defaultBrowserKey = "ts_browser"
)

//nolint:gochecknoglobals // static read-only lookup for templates; avoids per-call allocations
var contentTemplates = map[string]string{
	PageHome:       "home-content",
	PageOrders:     "orders-content",
	PageOrder:      "order-content",
	PageUnit:       "unit-content",
	PageMasterFile: "masterfile-content",
	PageMetadata:   "metadata-content",
	PageJobs:       "jobs-content",
	PageJob:        "job-content",
	PageSignedOut:  "signedout-content",
	PageForbidden:  "forbidden-content",
	PageNotFound:   "not-found-content",
}

// ContentTemplateMap returns the mapping from CurrentPage to template name.
func ContentTemplateMap() map[string]string { return contentTemplates }

// ContentTemplateFor returns the content template for the given CurrentPage.
// Falls back to home-content for unknown pages.
func ContentTemplateFor(currentPage string) string {
	if name, ok := ContentTemplateMap()[currentPage]; ok {
		return name
	}
	return "home-content"
}
