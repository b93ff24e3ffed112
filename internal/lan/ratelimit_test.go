package lan

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUnderThreshold(t *testing.T) {
	rl := newRateLimiter(5, time.Minute, 100)
	for i := 0; i < 5; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("expected datagram %d to be allowed", i)
		}
	}
}

func TestRateLimiter_BlocksOverThreshold(t *testing.T) {
	rl := newRateLimiter(3, time.Minute, 100)
	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("expected datagram %d to be allowed", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("expected 4th datagram within the same window to be blocked")
	}
}

func TestRateLimiter_CooldownPersistsUntilExpiry(t *testing.T) {
	rl := newRateLimiter(1, time.Minute, 100)
	rl.Allow("10.0.0.1")
	if rl.Allow("10.0.0.1") {
		t.Fatalf("expected second datagram to trip cooldown")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("expected datagram during cooldown to stay blocked")
	}
}

func TestRateLimiter_IndependentSources(t *testing.T) {
	rl := newRateLimiter(1, time.Minute, 100)
	if !rl.Allow("10.0.0.1") {
		t.Fatalf("expected first source's first datagram to be allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("expected a different source's first datagram to be allowed independently")
	}
}

func TestRateLimiter_EvictsOldestWhenOverCapacity(t *testing.T) {
	rl := newRateLimiter(100, time.Minute, 10)
	for i := 0; i < 11; i++ {
		rl.Allow(addrFor(i))
	}
	rl.mu.Lock()
	count := len(rl.sources)
	rl.mu.Unlock()
	if count >= 11 {
		t.Fatalf("expected eviction to keep tracked sources below 11, got %d", count)
	}
}

func addrFor(i int) string {
	return string(rune('a'+i)) + ".example"
}
