package auth

import (
	"context"
	"sync"
	"time"
)

// AttemptTracker records failed authentications per source IP and blocks
// addresses that keep failing. It is a soft anti-abuse control: losing its
// state on restart is acceptable, relying on it as the sole security
// boundary is not.
type AttemptTracker interface {
	// Record notes a failure and returns the failure count inside the
	// current window.
	Record(ctx context.Context, ip string) (int, error)
	// IsBlocked reports whether the IP is currently blocked.
	IsBlocked(ctx context.Context, ip string) (bool, error)
	// Clear wipes failures and any block for the IP, called on the first
	// subsequent successful authentication.
	Clear(ctx context.Context, ip string) error
	// Sweep drops expired windows and blocks.
	Sweep(ctx context.Context)
}

// MemoryTracker is the in-process AttemptTracker: a mutex-guarded map with
// periodic sweep. Suitable for tests and single-instance deployments.
type MemoryTracker struct {
	mu        sync.Mutex
	window    time.Duration
	blockFor  time.Duration
	threshold int
	attempts  map[string][]time.Time
	blocked   map[string]time.Time
	now       func() time.Time
}

func NewMemoryTracker(window, blockFor time.Duration, threshold int) *MemoryTracker {
	return &MemoryTracker{
		window:    window,
		blockFor:  blockFor,
		threshold: threshold,
		attempts:  make(map[string][]time.Time),
		blocked:   make(map[string]time.Time),
		now:       time.Now,
	}
}

func (t *MemoryTracker) Record(_ context.Context, ip string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)

	kept := t.attempts[ip][:0]
	for _, at := range t.attempts[ip] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	t.attempts[ip] = kept

	if len(kept) >= t.threshold {
		t.blocked[ip] = now.Add(t.blockFor)
	}
	return len(kept), nil
}

func (t *MemoryTracker) IsBlocked(_ context.Context, ip string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	until, ok := t.blocked[ip]
	if !ok {
		return false, nil
	}
	if t.now().After(until) {
		delete(t.blocked, ip)
		return false, nil
	}
	return true, nil
}

func (t *MemoryTracker) Clear(_ context.Context, ip string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, ip)
	delete(t.blocked, ip)
	return nil
}

func (t *MemoryTracker) Sweep(_ context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)
	for ip, ats := range t.attempts {
		kept := ats[:0]
		for _, at := range ats {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}
		if len(kept) == 0 {
			delete(t.attempts, ip)
		} else {
			t.attempts[ip] = kept
		}
	}
	for ip, until := range t.blocked {
		if now.After(until) {
			delete(t.blocked, ip)
		}
	}
}
