package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearid-dev/sandbox-guard/store"
)

var testNow = time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)

func newTestGuard(t *testing.T) (*Guard, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	return New(DefaultPolicy(), s, func() time.Time { return testNow }), s
}

func headerWithKey(key string) http.Header {
	h := http.Header{}
	h.Set("Authorization", key)
	return h
}

func sessionBody(t *testing.T, checks int) []byte {
	t.Helper()
	items := make([]string, checks)
	for i := range items {
		items[i] = fmt.Sprintf("check-%d", i)
	}
	body, err := json.Marshal(map[string]any{
		"vendor_data": "docs-explorer",
		"checks":      items,
	})
	require.NoError(t, err)
	return body
}

func TestCheck_PolicyChain(t *testing.T) {
	var tests = []struct {
		name         string
		flags        Flags
		desc         *Descriptor
		wantCode     Code
		wantAdvisory string
	}{
		{
			name: "production host rejected while flag is off",
			desc: &Descriptor{
				URL:    "https://api.clearid.dev/v1/sessions",
				Header: headerWithKey("sk_test_abc123"),
			},
			wantCode: CodeProductionDisabled,
		},
		{
			name:  "production host rejected regardless of other fields",
			flags: Flags{AdminEnabled: true},
			desc: &Descriptor{
				URL:    "https://api.clearid.dev/admin/keys",
				Header: headerWithKey("sk_live_abc123"),
				Body:   []byte(strings.Repeat("x", 20000)),
			},
			wantCode: CodeProductionDisabled,
		},
		{
			name:  "production host allowed once enabled",
			flags: Flags{ProductionEnabled: true},
			desc: &Descriptor{
				URL:    "https://api.clearid.dev/v1/documents",
				Header: headerWithKey("sk_test_abc123"),
			},
		},
		{
			name:  "admin path rejected even with production enabled",
			flags: Flags{ProductionEnabled: true},
			desc: &Descriptor{
				URL:    "/admin/settings",
				Header: headerWithKey("sk_test_abc123"),
			},
			wantCode: CodeAdminDisabled,
		},
		{
			name:  "admin path allowed once enabled",
			flags: Flags{AdminEnabled: true},
			desc: &Descriptor{
				URL:    "/admin/settings",
				Header: headerWithKey("sk_test_abc123"),
			},
		},
		{
			name:     "public api call without credential rejected",
			desc:     &Descriptor{URL: "/v1/documents"},
			wantCode: CodeCredentialRequired,
		},
		{
			name: "live key rejected on public api paths",
			desc: &Descriptor{
				URL:    "/v1/documents",
				Header: headerWithKey("sk_live_abc123"),
			},
			wantCode: CodeCredentialRequired,
		},
		{
			name:  "live key rejected even with production enabled",
			flags: Flags{ProductionEnabled: true},
			desc: &Descriptor{
				URL:    "https://api.clearid.dev/v1/documents",
				Header: headerWithKey("sk_live_abc123"),
			},
			wantCode: CodeCredentialRequired,
		},
		{
			name: "bearer prefixed sandbox key accepted",
			desc: &Descriptor{
				URL:    "/v1/documents",
				Header: headerWithKey("Bearer sk_test_abc123"),
			},
		},
		{
			name: "non api path needs no credential",
			desc: &Descriptor{URL: "/health"},
		},
		{
			name: "body at the cap admitted",
			desc: &Descriptor{
				URL:    "/v1/documents",
				Header: headerWithKey("sk_test_abc123"),
				Body:   []byte(strings.Repeat("a", 16384)),
			},
		},
		{
			name: "body over the cap rejected",
			desc: &Descriptor{
				URL:    "/v1/documents",
				Header: headerWithKey("sk_test_abc123"),
				Body:   []byte(strings.Repeat("a", 16385)),
			},
			wantCode: CodePayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGuard(t)
			require.NoError(t, g.SetFlags(context.Background(), tt.flags))

			decision, err := g.Check(context.Background(), tt.desc)

			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAdvisory, decision.Advisory)
				return
			}
			var violation *Violation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, tt.wantCode, violation.Code)
			assert.NotEmpty(t, violation.Message)
		})
	}
}

func TestCheck_SessionCheckLimits(t *testing.T) {
	var tests = []struct {
		name         string
		checks       int
		wantCode     Code
		wantAdvisory bool
	}{
		{name: "five checks admitted silently", checks: 5},
		{name: "six checks admitted with advisory", checks: 6, wantAdvisory: true},
		{name: "eight checks admitted with advisory", checks: 8, wantAdvisory: true},
		{name: "nine checks rejected", checks: 9, wantCode: CodeTooManyItems},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGuard(t)
			desc := &Descriptor{
				URL:    "/v1/sessions",
				Header: headerWithKey("sk_test_abc123"),
				Body:   sessionBody(t, tt.checks),
			}

			decision, err := g.Check(context.Background(), desc)

			if tt.wantCode != "" {
				var violation *Violation
				require.ErrorAs(t, err, &violation)
				assert.Equal(t, tt.wantCode, violation.Code)
				return
			}
			require.NoError(t, err)
			if tt.wantAdvisory {
				assert.NotEmpty(t, decision.Advisory)
			} else {
				assert.Empty(t, decision.Advisory)
			}
		})
	}
}

func TestCheck_MalformedSessionBodyIsNotTheGuardsProblem(t *testing.T) {
	g, _ := newTestGuard(t)
	desc := &Descriptor{
		URL:    "/v1/sessions",
		Header: headerWithKey("sk_test_abc123"),
		Body:   []byte("{not json"),
	}

	decision, err := g.Check(context.Background(), desc)

	require.NoError(t, err)
	assert.Empty(t, decision.Advisory)
}

func TestCheck_RejectionLeavesWindowUntouched(t *testing.T) {
	g, s := newTestGuard(t)
	desc := &Descriptor{
		URL:    "/v1/documents",
		Header: headerWithKey("sk_live_abc123"),
	}

	for i := 0; i < 2; i++ {
		_, err := g.Check(context.Background(), desc)
		var violation *Violation
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, CodeCredentialRequired, violation.Code)
	}

	_, ok, err := s.Get(context.Background(), keyRequestLog)
	require.NoError(t, err)
	assert.False(t, ok, "rejected attempts must not be recorded")
}
