// Package core holds the template helpers shared by every admin page.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"
)

// Deps holds optional dependencies for constructing the core template func map.
type Deps struct {
	Template           **template.Template
	ContentTemplateFor func(string) string
}

// Funcs returns a template.FuncMap containing helpers that are broadly useful across templates.
func Funcs(deps Deps) template.FuncMap {
	funcs := template.FuncMap{
		"sectionTmpl":  deps.ContentTemplateFor,
		"timeTag":      timeTag,
		"add":          func(a, b int) int { return a + b },
		"sub":          func(a, b int) int { return a - b },
		"contains":     strings.Contains,
		"formatNumber": FormatNumber,
		"levelClass":   LevelClass,
		"statusClass":  StatusClass,
		"truncateText": TruncateText,
		"yesNo":        YesNo,
	}

	addRenderFuncs(funcs, deps)
	return funcs
}

func addRenderFuncs(funcs template.FuncMap, deps Deps) {
	funcs["renderSection"] = func(page string, data any) (template.HTML, error) {
		if deps.Template == nil || *deps.Template == nil {
			return "", errors.New("template not initialized")
		}
		var buf bytes.Buffer
		if err := (*deps.Template).ExecuteTemplate(&buf, deps.ContentTemplateFor(page), data); err != nil {
			return "", err
		}
		// #nosec G203 - rendered by our own html/template set; values were escaped during ExecuteTemplate.
		return template.HTML(buf.String()), nil
	}

	funcs["toJSON"] = func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func timeTag(ts any) template.HTML {
	var t0 time.Time
	switch v := ts.(type) {
	case time.Time:
		t0 = v
	case *time.Time:
		if v != nil {
			t0 = *v
		}
	default:
		return ""
	}
	if t0.IsZero() {
		return ""
	}
	friendly := t0.Local().Format("2006-01-02 3:04:05 PM")
	dt := t0.UTC().Format(time.RFC3339)
	// #nosec G203 - constructed from escaped values only
	return template.HTML(fmt.Sprintf(
		"<time datetime=\"%s\">%s</time>",
		dt,
		template.HTMLEscapeString(friendly),
	))
}

// FormatNumber formats an integer with comma separators for thousands.
func FormatNumber(v any) string {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case int32:
		n = int64(x)
	default:
		return fmt.Sprint(v)
	}
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if len(s) > 3 {
		var b strings.Builder
		prefix := len(s) % 3
		if prefix == 0 {
			prefix = 3
		}
		b.WriteString(s[:prefix])
		for i := prefix; i < len(s); i += 3 {
			b.WriteByte(',')
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

// LevelClass maps a job event level to a badge class.
func LevelClass(level string) string {
	switch strings.ToLower(level) {
	case "fatal", "error":
		return "badge-danger"
	case "warning":
		return "badge-warning"
	default:
		return "badge-light"
	}
}

// StatusClass maps a job or order status to a badge class.
func StatusClass(status string) string {
	switch strings.ToLower(status) {
	case "finished", "completed", "approved":
		return "badge-success"
	case "failure", "canceled", "deferred":
		return "badge-danger"
	case "running", "await_fee", "requested":
		return "badge-info"
	default:
		return "badge-light"
	}
}

// TruncateText truncates a string to at most maxLen runes, ending in an ellipsis when cut.
func TruncateText(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen > 1 {
		return string(runes[:maxLen-1]) + "…"
	}
	return string(runes[:1])
}

// YesNo renders a flag the way the detail pages show it.
func YesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
