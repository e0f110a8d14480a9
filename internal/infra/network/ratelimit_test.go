package network

import (
	"testing"
	"time"
)

func TestTokenBucketBurstThenRefill(t *testing.T) {
	b := NewTokenBucket(2, 0.5)
	now := time.Unix(1_700_000_000, 0)
	if !b.Allow(now) || !b.Allow(now) {
		t.Fatal("burst of 2 not allowed")
	}
	if b.Allow(now) {
		t.Fatal("third request allowed without refill")
	}
	if b.Allow(now.Add(time.Second)) {
		t.Fatal("half a token should not allow a request")
	}
	if !b.Allow(now.Add(2 * time.Second)) {
		t.Fatal("token not refilled after 2s at 0.5/s")
	}
}

func TestTokenBucketCapsAtCapacity(t *testing.T) {
	b := NewTokenBucket(1, 10)
	now := time.Unix(1_700_000_000, 0)
	b.Allow(now)
	if got := b.Tokens(now.Add(time.Hour)); got != 1 {
		t.Fatalf("tokens = %v, want capped at 1", got)
	}
}
