package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/mdfilter"
)

// ResponseProcessor is the http.RoundTripper that wraps the proxy's
// upstream transport, handing every response to the Filter Orchestrator
// before it reaches the client.
type ResponseProcessor struct {
	// Config resolves the effective Filter for the upstream host on each
	// request (spec §6 nested scope chain).
	Config *config.Config
	// Orchestrator runs the negotiation/eligibility/conversion pipeline.
	Orchestrator *mdfilter.Orchestrator
	// Inner is the actual transport used to make requests.
	Inner http.RoundTripper
}

// RoundTrip implements http.RoundTripper. It delegates to the inner
// transport, then hands the response to the orchestrator for the
// upstream host's resolved filter.
func (rp *ResponseProcessor) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rp.Inner.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	f := rp.Config.Resolve(req.URL.Hostname())
	requestID := middleware.GetReqID(req.Context())
	return rp.Orchestrator.Process(req, resp, f, requestID), nil
}
