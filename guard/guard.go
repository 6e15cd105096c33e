// Package guard decides whether a single API-explorer request may be
// dispatched. Every outgoing call is described to Check, which runs a fixed,
// ordered policy chain and short-circuits on the first violation: host, admin
// path, credential, payload size, session checks, rate limit. The order is a
// contract; callers rely on the most specific message being surfaced first.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clearid-dev/sandbox-guard/store"
)

// Storage keys shared by every guard instance pointed at the same store.
const (
	keyAdminEnabled      = "sandbox:admin_enabled"
	keyProductionEnabled = "sandbox:production_enabled"
	keyRequestLog        = "sandbox:request_log"
)

// Policy holds the constants the rules check against. DefaultPolicy matches
// the limits published in the explorer documentation.
type Policy struct {
	// Origin is the base the explorer's relative URLs resolve against.
	Origin string
	// ProductionHost is blocked unless the production flag is on.
	ProductionHost string
	// AdminSegment marks administrative endpoints, blocked unless the admin
	// flag is on.
	AdminSegment string
	// PublicAPIPrefix marks versioned public endpoints that require a
	// sandbox credential.
	PublicAPIPrefix string
	// SessionPath is the session-creation endpoint with per-request check
	// limits.
	SessionPath string
	// TestKeyPrefix is the only accepted credential prefix. Live keys never
	// pass, whatever the flags say.
	TestKeyPrefix string

	MaxBodyBytes   int
	SoftCheckLimit int
	HardCheckLimit int
	WindowLimit    int
	Window         time.Duration
}

// DefaultPolicy returns the documented explorer limits.
func DefaultPolicy() Policy {
	return Policy{
		Origin:          "https://sandbox.clearid.dev",
		ProductionHost:  "api.clearid.dev",
		AdminSegment:    "admin",
		PublicAPIPrefix: "/v1/",
		SessionPath:     "/v1/sessions",
		TestKeyPrefix:   "sk_test_",
		MaxBodyBytes:    16384,
		SoftCheckLimit:  5,
		HardCheckLimit:  8,
		WindowLimit:     10,
		Window:          time.Minute,
	}
}

// Descriptor describes one outgoing request before dispatch. Check never
// modifies it.
type Descriptor struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Decision is the outcome of an admitted request. Advisory, when set, should
// be shown to the user alongside the successful call.
type Decision struct {
	Advisory string
}

type resolved struct {
	desc *Descriptor
	url  *url.URL
}

// Each rule either admits (returning an optional advisory), rejects with a
// *Violation, or fails with a store error.
type rule func(ctx context.Context, r *resolved) (advisory string, err error)

// Guard evaluates the policy chain. State (the two flags and the rate-limit
// window) lives in the injected store so instances sharing a backend share
// the limits.
type Guard struct {
	policy Policy
	store  store.Store
	now    func() time.Time
	rules  []rule
}

// New constructs a Guard. A nil now defaults to time.Now.
func New(policy Policy, s store.Store, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	g := &Guard{
		policy: policy,
		store:  s,
		now:    now,
	}
	g.rules = []rule{
		g.checkHost,
		g.checkAdminPath,
		g.checkCredential,
		g.checkBodySize,
		g.checkSessionItems,
		g.checkRateLimit,
	}
	return g
}

// Check runs the policy chain in order and returns the first violation, if
// any. The store is written only on the admit path: a rejected attempt leaves
// the window untouched, so re-checking a rejected descriptor yields the same
// violation.
func (g *Guard) Check(ctx context.Context, d *Descriptor) (*Decision, error) {
	u, err := g.resolveURL(d.URL)
	if err != nil {
		return nil, fmt.Errorf("resolve request url %q: %w", d.URL, err)
	}
	r := &resolved{desc: d, url: u}

	decision := &Decision{}
	for _, check := range g.rules {
		advisory, err := check(ctx, r)
		if err != nil {
			return nil, err
		}
		if advisory != "" {
			decision.Advisory = advisory
		}
	}
	return decision, nil
}

func (g *Guard) resolveURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		return u, nil
	}
	base, err := url.Parse(g.policy.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin %q: %w", g.policy.Origin, err)
	}
	return base.ResolveReference(u), nil
}

func (g *Guard) checkHost(ctx context.Context, r *resolved) (string, error) {
	if !strings.EqualFold(r.url.Host, g.policy.ProductionHost) {
		return "", nil
	}
	enabled, err := g.productionEnabled(ctx)
	if err != nil {
		return "", err
	}
	if enabled {
		return "", nil
	}
	return "", &Violation{
		Code: CodeProductionDisabled,
		Message: fmt.Sprintf("calls to %s are disabled in the explorer; enable production calls to send this request",
			g.policy.ProductionHost),
	}
}

func (g *Guard) checkAdminPath(ctx context.Context, r *resolved) (string, error) {
	if !hasSegment(r.url.Path, g.policy.AdminSegment) {
		return "", nil
	}
	enabled, err := g.adminEnabled(ctx)
	if err != nil {
		return "", err
	}
	if enabled {
		return "", nil
	}
	return "", &Violation{
		Code:    CodeAdminDisabled,
		Message: "administrative endpoints are disabled in the explorer; enable admin endpoints to send this request",
	}
}

func (g *Guard) checkCredential(_ context.Context, r *resolved) (string, error) {
	if !strings.HasPrefix(r.url.Path, g.policy.PublicAPIPrefix) {
		return "", nil
	}
	credential := strings.TrimSpace(r.desc.Header.Get("Authorization"))
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if strings.HasPrefix(credential, g.policy.TestKeyPrefix) {
		return "", nil
	}
	return "", &Violation{
		Code: CodeCredentialRequired,
		Message: fmt.Sprintf("the explorer only accepts sandbox API keys; set Authorization to a key starting with %q",
			g.policy.TestKeyPrefix),
	}
}

func (g *Guard) checkBodySize(_ context.Context, r *resolved) (string, error) {
	if len(r.desc.Body) <= g.policy.MaxBodyBytes {
		return "", nil
	}
	return "", &Violation{
		Code: CodePayloadTooLarge,
		Message: fmt.Sprintf("request body is %d bytes; the explorer caps payloads at %d bytes",
			len(r.desc.Body), g.policy.MaxBodyBytes),
	}
}

func (g *Guard) checkSessionItems(_ context.Context, r *resolved) (string, error) {
	if r.url.Path != g.policy.SessionPath || len(r.desc.Body) == 0 {
		return "", nil
	}
	var payload struct {
		Checks []json.RawMessage `json:"checks"`
	}
	// Malformed bodies are the API's problem, not the guard's.
	if err := json.Unmarshal(r.desc.Body, &payload); err != nil {
		return "", nil
	}
	n := len(payload.Checks)
	if n > g.policy.HardCheckLimit {
		return "", &Violation{
			Code: CodeTooManyItems,
			Message: fmt.Sprintf("a session supports at most %d checks, got %d; split them across sessions",
				g.policy.HardCheckLimit, n),
		}
	}
	if n > g.policy.SoftCheckLimit {
		return fmt.Sprintf("sessions with more than %d checks can take noticeably longer to complete",
			g.policy.SoftCheckLimit), nil
	}
	return "", nil
}

// hasSegment reports whether path contains segment as a whole path element.
func hasSegment(path, segment string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
