// Package api wires the gin router (router.go): route registration, the
// boundary authentication middleware, response compression, and the
// per-protocol handlers (internal/api/handlers) that translate a wire
// request, run it through the RetryDispatcher, and translate the response
// back. Grounded on the teacher's cmd/server + sdk handler-registration
// idiom, collapsed into a single package since this gateway has three
// protocol surfaces instead of the teacher's much larger admin+multi-
// provider handler tree.
package api

import (
	"github.com/antigravity-proxy/gatewaycore/internal/config"
	"github.com/antigravity-proxy/gatewaycore/internal/dispatch"
	"github.com/antigravity-proxy/gatewaycore/internal/identity"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

// Server bundles the dependencies every handler needs.
type Server struct {
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	Upstream   *upstream.Client
	UsageSink  identity.UsageSink
}

// New builds a Server.
func New(cfg *config.Config, dispatcher *dispatch.Dispatcher, upstreamClient *upstream.Client, usageSink identity.UsageSink) *Server {
	return &Server{Config: cfg, Dispatcher: dispatcher, Upstream: upstreamClient, UsageSink: usageSink}
}
