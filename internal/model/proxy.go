// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
// Target is the raw value of the url query parameter. Body is read in full
// only once the target has been authorized, and never for GET.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Target string
	Header http.Header
	Body   io.Reader
}

// ProxyResponse represents the upstream response relayed back to the client.
// The body is buffered in full.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
