package auth

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// RefreshGuard deduplicates concurrent Refresh calls against the underlying
// source. The poller and the socket dialer can both hit a 401 in the same
// window; only one refresh round-trip should result.
type RefreshGuard struct {
	src   TokenSource
	group singleflight.Group
}

// NewRefreshGuard wraps a TokenSource with refresh deduplication.
func NewRefreshGuard(src TokenSource) *RefreshGuard {
	return &RefreshGuard{src: src}
}

func (g *RefreshGuard) IsAuthenticated() bool { return g.src.IsAuthenticated() }

func (g *RefreshGuard) Token() string { return g.src.Token() }

// Refresh collapses concurrent callers onto a single underlying refresh.
// All callers observe the same token or the same error.
func (g *RefreshGuard) Refresh(ctx context.Context) (string, error) {
	v, err, _ := g.group.Do("refresh", func() (interface{}, error) {
		return g.src.Refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
