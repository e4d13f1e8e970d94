package testutil

import (
	"net/http"

	"labflow/pkg/requestcontext"
)

// WithActor adds an authenticated caller identity to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, actor string) *http.Request {
	if actor == "" {
		return req
	}
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
