package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaticTokenSource(t *testing.T) {
	src := NewStaticTokenSource("tok-1")

	if !src.IsAuthenticated() {
		t.Error("IsAuthenticated = false, want true")
	}
	if got := src.Token(); got != "tok-1" {
		t.Errorf("Token = %q, want %q", got, "tok-1")
	}

	got, err := src.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got != "tok-1" {
		t.Errorf("Refresh = %q, want %q", got, "tok-1")
	}
}

func TestStaticTokenSourceRevoked(t *testing.T) {
	src := NewStaticTokenSource("tok-1")
	src.SetToken("")

	if src.IsAuthenticated() {
		t.Error("IsAuthenticated = true after revoke, want false")
	}
	if _, err := src.Refresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Refresh error = %v, want ErrNotAuthenticated", err)
	}
}

// slowSource counts refreshes and blocks until released so concurrent
// callers pile up on the same in-flight refresh.
type slowSource struct {
	token     string
	release   chan struct{}
	refreshes atomic.Int64
}

func (s *slowSource) IsAuthenticated() bool { return s.token != "" }
func (s *slowSource) Token() string         { return s.token }

func (s *slowSource) Refresh(ctx context.Context) (string, error) {
	s.refreshes.Add(1)
	<-s.release
	return s.token, nil
}

func TestRefreshGuardDeduplicates(t *testing.T) {
	src := &slowSource{token: "tok-2", release: make(chan struct{})}
	guard := NewRefreshGuard(src)

	const callers = 8
	var wg, ready sync.WaitGroup
	ready.Add(callers)
	results := make(chan string, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			tok, err := guard.Refresh(context.Background())
			if err != nil {
				t.Errorf("Refresh failed: %v", err)
				return
			}
			results <- tok
		}()
	}

	// Let every caller reach the in-flight refresh, then release it.
	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()
	close(results)

	for tok := range results {
		if tok != "tok-2" {
			t.Errorf("caller got token %q, want %q", tok, "tok-2")
		}
	}

	if n := src.refreshes.Load(); n != 1 {
		t.Errorf("underlying Refresh called %d times, want 1", n)
	}
}

func TestRefreshGuardPassthrough(t *testing.T) {
	guard := NewRefreshGuard(NewStaticTokenSource("tok-3"))

	if !guard.IsAuthenticated() {
		t.Error("IsAuthenticated = false, want true")
	}
	if got := guard.Token(); got != "tok-3" {
		t.Errorf("Token = %q, want %q", got, "tok-3")
	}
}
