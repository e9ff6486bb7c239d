package guard

import "fmt"

// Kind tags a Decision.
type Kind int

const (
	// Allow lets the navigation render.
	Allow Kind = iota
	// RedirectInApp sends the browser to another path of this app.
	RedirectInApp
	// RedirectExternal performs a full-page redirect off the app.
	RedirectExternal
	// Deny ends at the forbidden terminal state.
	Deny
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectInApp:
		return "redirect_in_app"
	case RedirectExternal:
		return "redirect_external"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Decision is the outcome of evaluating one navigation. Target is set for
// the two redirect kinds.
type Decision struct {
	Kind   Kind
	Target string
}

// Allowed is the Allow decision.
func Allowed() Decision { return Decision{Kind: Allow} }

// InApp redirects to path within the app.
func InApp(path string) Decision { return Decision{Kind: RedirectInApp, Target: path} }

// External redirects the browser to url.
func External(url string) Decision { return Decision{Kind: RedirectExternal, Target: url} }

// Denied is the Deny decision.
func Denied() Decision { return Decision{Kind: Deny} }

func (d Decision) String() string {
	if d.Target == "" {
		return d.Kind.String()
	}
	return d.Kind.String() + "(" + d.Target + ")"
}
