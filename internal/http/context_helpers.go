package httpx

import (
	"context"

	"github.com/uvalib/tracksys2/internal/workspace"
)

// workspaceKey is an unexported context key type to avoid collisions across packages.
type workspaceKey struct{}

// SetWorkspaceInContext returns a child context that carries the browser's workspace.
// If ws is nil, the original ctx is returned unchanged.
func SetWorkspaceInContext(ctx context.Context, ws *workspace.Workspace) context.Context {
	if ws == nil {
		return ctx
	}
	return context.WithValue(ctx, workspaceKey{}, ws)
}

// WorkspaceFromContext returns the workspace from context and a boolean indicating presence.
func WorkspaceFromContext(ctx context.Context) (*workspace.Workspace, bool) {
	if ws, ok := ctx.Value(workspaceKey{}).(*workspace.Workspace); ok && ws != nil {
		return ws, true
	}
	return nil, false
}

// IsSignedIn reports whether the request's workspace holds a signed-in session.
func IsSignedIn(ctx context.Context) bool {
	ws, ok := WorkspaceFromContext(ctx)
	return ok && ws.Session.SignedIn()
}
