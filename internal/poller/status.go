package poller

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Phase is where a server-side job stands.
type Phase int

const (
	Pending Phase = iota
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Status is one observation of a job.
type Status struct {
	Phase Phase
	// Percent is valid when HasPercent is set.
	Percent    int
	HasPercent bool
	// Raw is the status value as the server sent it.
	Raw string
	// Message is the server's failure explanation, if any.
	Message string
}

// Terminal reports whether polling must stop.
func (s Status) Terminal() bool { return s.Phase != Pending }

// ParseStatus maps any status vocabulary the backend and jobs service use onto
// one contract. Matching is case-insensitive:
//
//	READY, finished, success, done  -> Succeeded
//	FAILED, failure, error          -> Failed
//	"NN%"                           -> Pending with percent
//	anything else                   -> Pending
func ParseStatus(raw string) Status {
	v := strings.Trim(strings.TrimSpace(raw), `"`)
	st := Status{Phase: Pending, Raw: v}

	switch strings.ToLower(v) {
	case "ready", "finished", "success", "done":
		st.Phase = Succeeded
		return st
	case "failed", "failure", "error":
		st.Phase = Failed
		return st
	}

	if num, ok := strings.CutSuffix(v, "%"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(num), 64); err == nil {
			pct := int(f)
			pct = max(0, min(100, pct))
			st.Percent = pct
			st.HasPercent = true
		}
	}
	return st
}

// StatusExtractor pulls status and failure message out of a JSON status
// document with compiled JMESPath expressions.
type StatusExtractor struct {
	statusExpr string
	status     jmespath.JMESPath
	errorExpr  string
	errMsg     jmespath.JMESPath // nil when no error expression is set
}

// NewStatusExtractor compiles both expressions. errorExpr may be empty.
func NewStatusExtractor(statusExpr, errorExpr string) (*StatusExtractor, error) {
	statusExpr = strings.TrimSpace(statusExpr)
	if statusExpr == "" {
		return nil, fmt.Errorf("status expression is required")
	}
	status, err := jmespath.Compile(statusExpr)
	if err != nil {
		return nil, fmt.Errorf("compile status expression %q: %w", statusExpr, err)
	}
	e := &StatusExtractor{statusExpr: statusExpr, status: status}

	errorExpr = strings.TrimSpace(errorExpr)
	if errorExpr != "" {
		msg, err := jmespath.Compile(errorExpr)
		if err != nil {
			return nil, fmt.Errorf("compile error expression %q: %w", errorExpr, err)
		}
		e.errorExpr = errorExpr
		e.errMsg = msg
	}
	return e, nil
}

// Extract parses body. A document without a status is an error.
func (e *StatusExtractor) Extract(body []byte) (Status, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Status{}, fmt.Errorf("decode status document: %w", err)
	}

	raw, err := e.status.Search(doc)
	if err != nil {
		return Status{}, fmt.Errorf("evaluate %q: %w", e.statusExpr, err)
	}
	statusText := scalarString(raw)
	if statusText == "" {
		return Status{}, fmt.Errorf("status document has no value at %q", e.statusExpr)
	}
	st := ParseStatus(statusText)

	if e.errMsg != nil {
		if msg, err := e.errMsg.Search(doc); err == nil {
			st.Message = scalarString(msg)
		}
	}
	return st, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
