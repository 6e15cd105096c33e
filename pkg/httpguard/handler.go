// Package httpguard adapts the guard to net/http. It wraps an existing
// handler and runs the policy chain before the wrapped handler sees the
// request; rejections are answered here with a JSON body and never reach the
// wrapped handler.
package httpguard

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/clearid-dev/sandbox-guard/guard"
	"github.com/clearid-dev/sandbox-guard/internal/log"
)

// AdvisoryHeader carries a non-blocking advisory back to the explorer on
// admitted requests. The explorer shows it briefly next to the response.
const AdvisoryHeader = "X-Sandbox-Advisory"

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type handler struct {
	guard *guard.Guard
	next  http.Handler
}

// Wrap returns a handler that checks every request against g before handing
// it to next. The request reaching next is the one that came in: the body is
// buffered for inspection and restored untouched.
func Wrap(g *guard.Guard, next http.Handler) http.Handler {
	return &handler{guard: g, next: next}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errorBody{
			Error:   "unreadable_body",
			Message: "the request body could not be read",
		})
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	decision, err := h.guard.Check(r.Context(), &guard.Descriptor{
		URL:    r.URL.String(),
		Header: r.Header,
		Body:   body,
	})
	if err != nil {
		var violation *guard.Violation
		if !errors.As(err, &violation) {
			log.Logger().Error("guard check failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, errorBody{
				Error:   "guard_unavailable",
				Message: "the sandbox guard could not evaluate this request; try again",
			})
			return
		}
		if violation.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(violation.RetryAfter))
		}
		h.writeError(w, statusFor(violation.Code), errorBody{
			Error:      string(violation.Code),
			Message:    violation.Message,
			RetryAfter: violation.RetryAfter,
		})
		return
	}

	// set before next flushes headers so admitted responses carry it
	if decision.Advisory != "" {
		w.Header().Set(AdvisoryHeader, decision.Advisory)
	}
	h.next.ServeHTTP(w, r)
}

func (h *handler) writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Logger().Error("failed to write guard response", zap.Error(err))
	}
}

func statusFor(code guard.Code) int {
	switch code {
	case guard.CodeCredentialRequired:
		return http.StatusUnauthorized
	case guard.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case guard.CodeTooManyItems:
		return http.StatusUnprocessableEntity
	case guard.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		// production and admin toggles
		return http.StatusForbidden
	}
}
