// Package mdfilter implements the Filter Orchestrator (C17): the state
// machine that drives one response through negotiation, eligibility,
// buffering, conversion, conditional evaluation, and header rewriting,
// per spec.md §4.17. It is the single place that decides between
// emitting Markdown, bypassing untouched, replaying the original body
// on failure, or rejecting with an opaque 502.
package mdfilter

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rickcrawford/markdowninthemiddle/internal/bodybuffer"
	"github.com/rickcrawford/markdowninthemiddle/internal/conditional"
	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/eligibility"
	"github.com/rickcrawford/markdowninthemiddle/internal/errorpage"
	"github.com/rickcrawford/markdowninthemiddle/internal/headers"
	"github.com/rickcrawford/markdowninthemiddle/internal/htmlconv"
	"github.com/rickcrawford/markdowninthemiddle/internal/logging"
	"github.com/rickcrawford/markdowninthemiddle/internal/mderrors"
	"github.com/rickcrawford/markdowninthemiddle/internal/negotiate"
	"github.com/rickcrawford/markdowninthemiddle/internal/tokens"
)

// Orchestrator runs the response-rewriting pipeline, grounded on
// ResponseProcessor.RoundTrip's overall shape (decompress, buffer,
// convert, rewrite headers) but rebuilt as the explicit state machine
// spec.md §4.17 specifies.
type Orchestrator struct {
	Logger    *logging.Logger
	ErrorPage *errorpage.Renderer
	// PreciseCounter, when set and f.PreciseTokenCount is on, additionally
	// emits X-Markdown-Tokens-Precise with the tiktoken-based count,
	// alongside the heuristic X-Markdown-Tokens estimate
	// (SPEC_FULL §5.1, additive to spec.md §4.12).
	PreciseCounter *tokens.Counter
}

// New builds an Orchestrator. A nil logger falls back to logging.Nop.
func New(logger *logging.Logger, errorPage *errorpage.Renderer) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{Logger: logger, ErrorPage: errorPage}
}

// Process runs resp (already received from upstream for req) through the
// full pipeline under filter f, returning the response to actually send
// to the client. It always returns a non-nil response; errors from the
// conversion engine itself are handled internally via f.OnError and
// never propagate to the caller.
func (o *Orchestrator) Process(req *http.Request, resp *http.Response, f config.Filter, requestID string) *http.Response {
	if !f.Enabled {
		return resp
	}
	if !negotiate.Wants(req.Header.Get("Accept"), f.OnWildcard) {
		return resp
	}

	reqDecoded := eligibility.DecodeRequest(req)
	authenticated := eligibility.Authenticated(reqDecoded, f.AuthCookies)

	// Header-phase gate: method, range, and auth-deny are knowable before
	// the body is read, so a decline here never touches resp.Body.
	if ok, reason := eligibility.Eligible(reqDecoded, eligibility.ResponseDecoded{}, authenticated, f); !ok {
		o.Logger.Eligibility(requestID, req.URL.Host, req.URL.Path, false, string(reason))
		return resp
	}

	respDecoded := eligibility.DecodeResponse(resp)
	ok, reason := eligibility.Eligible(reqDecoded, respDecoded, authenticated, f)
	o.Logger.Eligibility(requestID, req.URL.Host, req.URL.Path, ok, string(reason))
	if !ok {
		return resp
	}

	result, err := bodybuffer.Accumulate(resp.Body, resp.Header.Get("Content-Encoding"), f.MaxSize)
	if result == nil || result.Replay == nil {
		// A Replay still reads the upstream remainder; it closes the body
		// itself (see replayOriginal).
		resp.Body.Close()
	}
	if err != nil {
		o.Logger.Decompress(requestID, resp.Header.Get("Content-Encoding"), false, err)
		return o.handleFailure(resp, result, f, requestID, err)
	}
	o.Logger.Decompress(requestID, resp.Header.Get("Content-Encoding"), true, nil)

	o.Logger.ConversionStart(requestID, len(result.Buffer))
	started := nowFunc()
	convResult, convErr := htmlconv.Convert(result.Buffer, htmlconv.Options{
		ContentType: resp.Header.Get("Content-Type"),
		Flavor:      f.Flavor,
		FrontMatter: f.FrontMatter,
		BaseURL:     f.BaseURL,
		Timeout:     f.Timeout,
	})
	elapsedMS := nowFunc().Sub(started).Milliseconds()
	if convErr != nil {
		o.Logger.ConversionOutcome(requestID, false, categoryOf(convErr), elapsedMS)
		return o.handleFailure(resp, result, f, requestID, convErr)
	}
	o.Logger.ConversionOutcome(requestID, true, "", elapsedMS)
	if convResult.CharsetWarning {
		o.Logger.CharsetWarning(requestID, convResult.CharsetLabel)
	}

	etag := ""
	if f.GenerateETag {
		etag = convResult.ETag
	}
	cond := conditional.Evaluate(f.ConditionalRequests, etag, req.Header.Get("If-None-Match"),
		resp.Header.Get("Last-Modified"), req.Header.Get("If-Modified-Since"))
	if cond.NotModified {
		return o.emitNotModified(resp, etag)
	}

	return o.emitConverted(resp, req, f, convResult, etag, authenticated)
}

// nowFunc is a seam so elapsed-time logging doesn't hardcode time.Now at
// every call site; production always uses the real clock.
var nowFunc = time.Now

func (o *Orchestrator) emitNotModified(resp *http.Response, etag string) *http.Response {
	headers.RewriteNotModified(resp.Header, etag)
	resp.StatusCode = http.StatusNotModified
	resp.Status = "304 Not Modified"
	resp.Body = http.NoBody
	resp.ContentLength = 0
	return resp
}

func (o *Orchestrator) emitConverted(resp *http.Response, req *http.Request, f config.Filter, conv *htmlconv.Result, etag string, authenticated bool) *http.Response {
	headers.RewriteConverted(resp.Header, len(conv.Markdown), etag, authenticated, f.TokenEstimate, conv.TokenEstimate)
	if f.PreciseTokenCount && o.PreciseCounter != nil {
		resp.Header.Set("X-Markdown-Tokens-Precise", strconv.Itoa(o.PreciseCounter.Count(string(conv.Markdown))))
	}
	resp.StatusCode = http.StatusOK
	resp.Status = "200 OK"
	if req.Method == http.MethodHead {
		// Headers reflect the converted response; the body is suppressed,
		// per spec.md §4.17's HEAD handling.
		resp.Body = http.NoBody
		resp.ContentLength = 0
		return resp
	}
	resp.Body = io.NopCloser(bytes.NewReader(conv.Markdown))
	resp.ContentLength = int64(len(conv.Markdown))
	return resp
}

// handleFailure implements the ReplayingOriginal / EmittingError branch:
// on_error=pass restores the exact upstream bytes untouched; reject
// serves the opaque 502 body. result may be nil if the failure happened
// before any bytes were read.
//
// ResourceLimit is special-cased: spec.md §4.17's state table makes
// "Buffering -> Bypassed(ResourceLimit)" on a size overrun an
// unconditional transition, distinct from a Converting-phase failure
// gated by on_error, and Testable Property 8 requires it never produce
// a truncated converted response regardless of on_error. So a
// ResourceLimit cause always replays the original, even under
// on_error=reject.
func (o *Orchestrator) handleFailure(resp *http.Response, result *bodybuffer.Result, f config.Filter, requestID string, cause error) *http.Response {
	category := categoryOf(cause)
	if f.OnError == config.OnErrorReject && category != string(mderrors.ResourceLimit) {
		o.Logger.RejectError(requestID, category)
		return o.rejectResponse(resp)
	}
	o.Logger.ReplayOriginal(requestID, category)
	return o.replayOriginal(resp, result)
}

func (o *Orchestrator) replayOriginal(resp *http.Response, result *bodybuffer.Result) *http.Response {
	switch {
	case result == nil:
		return resp
	case result.Replay != nil:
		// Wire bytes alone overran max_size: stream the already-read
		// prefix followed by the untouched remainder, without buffering
		// the whole body a second time. Closing it closes upstream.
		resp.Body = struct {
			io.Reader
			io.Closer
		}{result.Replay, resp.Body}
		resp.ContentLength = -1
		resp.Header.Del("Content-Length")
	case result.BufferedOriginal != nil:
		resp.Body = io.NopCloser(bytes.NewReader(result.BufferedOriginal))
		resp.ContentLength = int64(len(result.BufferedOriginal))
		resp.Header.Set("Content-Length", strconv.Itoa(len(result.BufferedOriginal)))
	}
	return resp
}

func (o *Orchestrator) rejectResponse(resp *http.Response) *http.Response {
	body := "Bad Gateway\n"
	if o.ErrorPage != nil {
		if rendered, err := o.ErrorPage.Render(); err == nil {
			body = rendered
		}
	}
	resp.StatusCode = http.StatusBadGateway
	resp.Status = "502 Bad Gateway"
	resp.Header = make(http.Header)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.Body = io.NopCloser(strings.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp
}

// categoryOf reduces err to the log-friendly error category; errors that
// never passed through mderrors are classified internal_error.
func categoryOf(err error) string {
	if e, ok := mderrors.As(err); ok {
		return string(e.Kind)
	}
	return string(mderrors.InternalError)
}
