package testutil

import (
	"context"
	"net/http"

	"stealwatch/internal/platform/middleware"
)

// WithReviewer stamps an authenticated reviewer onto the request context, the
// way RequireAuth would for a valid token.
func WithReviewer(req *http.Request, userID int64, username, role string) *http.Request {
	ctx := req.Context()
	ctx = context.WithValue(ctx, middleware.ContextKeyUserID, userID)
	ctx = context.WithValue(ctx, middleware.ContextKeyUsername, username)
	ctx = context.WithValue(ctx, middleware.ContextKeyRole, role)
	return req.WithContext(ctx)
}
