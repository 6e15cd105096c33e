package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// checkRateLimit enforces the sliding window: at most WindowLimit admissions
// per Window, tracked as millisecond timestamps in the store. Entries older
// than the window are pruned at every evaluation; the current timestamp is
// appended and persisted only when the request is admitted.
func (g *Guard) checkRateLimit(ctx context.Context, _ *resolved) (string, error) {
	now := g.now()
	cutoff := now.Add(-g.policy.Window).UnixMilli()

	stamps, err := g.loadWindow(ctx)
	if err != nil {
		return "", err
	}
	live := make([]int64, 0, len(stamps))
	for _, ts := range stamps {
		if ts > cutoff {
			live = append(live, ts)
		}
	}

	if len(live) >= g.policy.WindowLimit {
		// Admissions are appended in order, so the first live entry is the
		// oldest and decides when a slot frees up.
		wait := time.Duration(live[0]-cutoff) * time.Millisecond
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		return "", &Violation{
			Code: CodeRateLimited,
			Message: fmt.Sprintf("explorer rate limit of %d calls per %d seconds reached; try again in %d seconds",
				g.policy.WindowLimit, int(g.policy.Window.Seconds()), secs),
			RetryAfter: secs,
		}
	}

	live = append(live, now.UnixMilli())
	encoded, err := json.Marshal(live)
	if err != nil {
		return "", err
	}
	if err := g.store.Set(ctx, keyRequestLog, string(encoded)); err != nil {
		return "", fmt.Errorf("persist rate limit window: %w", err)
	}
	return "", nil
}

func (g *Guard) loadWindow(ctx context.Context) ([]int64, error) {
	raw, ok, err := g.store.Get(ctx, keyRequestLog)
	if err != nil {
		return nil, fmt.Errorf("load rate limit window: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var stamps []int64
	if err := json.Unmarshal([]byte(raw), &stamps); err != nil {
		// A corrupt window resets rather than wedging the explorer.
		return nil, nil
	}
	return stamps, nil
}
